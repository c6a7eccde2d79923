package fix

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/standardbeagle/runbridge/internal/session"
)

// ErrOutsideRoot is returned for a fix path that resolves outside the
// project root.
var ErrOutsideRoot = errors.New("path escapes the project root")

// WriteError reports the fix that could not be written.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// ResolvePath resolves a fix path against root and rejects results
// outside it.
func ResolvePath(root, path string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}

	target := path
	if !filepath.IsAbs(target) {
		target = filepath.Join(absRoot, filepath.FromSlash(path))
	}
	target = filepath.Clean(target)

	rel, err := filepath.Rel(absRoot, target)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrOutsideRoot
	}
	return target, nil
}

// ApplyFixes writes each fix under root in order, creating parent
// directories and stripping code fences. It stops at the first failure and
// returns the absolute paths written so far together with a *WriteError.
func ApplyFixes(root string, fixes []session.FileFix) ([]string, error) {
	updated := make([]string, 0, len(fixes))
	for _, f := range fixes {
		target, err := ResolvePath(root, f.Path)
		if err != nil {
			return updated, &WriteError{Path: f.Path, Err: err}
		}
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return updated, &WriteError{Path: f.Path, Err: err}
		}
		if err := os.WriteFile(target, []byte(StripCodeFences(f.Code)), 0644); err != nil {
			return updated, &WriteError{Path: f.Path, Err: err}
		}
		updated = append(updated, target)
	}
	return updated, nil
}
