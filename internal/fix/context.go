package fix

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/standardbeagle/runbridge/internal/session"
)

// ContextLines is the number of lines shown on each side of the error line.
const ContextLines = 5

// ErrorCode is the source window around a failing line.
type ErrorCode struct {
	Line   int      `json:"line"`
	Before []string `json:"before"`
	Error  string   `json:"error"`
	After  []string `json:"after"`
}

// ErrorContext reads the window around sum.Line. The absolute path is
// returned even when reading fails so callers can still report it.
func ErrorContext(root string, sum session.FailureSummary) (*ErrorCode, string, error) {
	path := sum.File
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, filepath.FromSlash(path))
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	if strings.TrimSpace(sum.File) == "" {
		return nil, abs, fmt.Errorf("no source file identified")
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, abs, fmt.Errorf("file not found: %s", abs)
		}
		return nil, abs, err
	}

	lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if sum.Line < 1 || sum.Line > len(lines) {
		return nil, abs, fmt.Errorf("line %d out of range (%d lines)", sum.Line, len(lines))
	}

	idx := sum.Line - 1
	start := max(idx-ContextLines, 0)
	end := min(idx+1+ContextLines, len(lines))

	return &ErrorCode{
		Line:   sum.Line,
		Before: append([]string{}, lines[start:idx]...),
		Error:  lines[idx],
		After:  append([]string{}, lines[idx+1:end]...),
	}, abs, nil
}
