package fix

import (
	"encoding/json"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/standardbeagle/runbridge/internal/aichannel"
	"github.com/standardbeagle/runbridge/internal/session"
)

// Summary defaults used when the completion omits a field.
const (
	DefaultSummaryMessage = "Build failed"
	UnknownLine           = -1
)

var (
	dashedBlock  = regexp.MustCompile(`(?s)-- START OF FILE:[ \t]*([^\r\n]*)\r?\n(.*?)(?:\r?\n)?-- END OF FILE`)
	hyphenBlock  = regexp.MustCompile(`(?s)START-OF-FILE[ \t]+([^\r\n]*)\r?\n(.*?)(?:\r?\n)?END-OF-FILE`)
	messageField = regexp.MustCompile(`(?im)^[ \t]*MESSAGE:[ \t]*(.*)$`)
	fileField    = regexp.MustCompile(`(?im)^[ \t]*FILE:[ \t]*(.*)$`)
	lineField    = regexp.MustCompile(`(?im)^[ \t]*LINE:[ \t]*(\d+)`)
	openFence    = regexp.MustCompile("(?m)^[ \t]*```[A-Za-z0-9_+#.-]*[ \t]*\r?$\n?")
)

// ParseFixes extracts file replacements from a completion. Both
// "-- START OF FILE: path" and "START-OF-FILE path" blocks are recognized,
// in order of appearance; without any block an embedded
// {"files":[{"path","code"}]} object is used. No match yields an empty set.
func ParseFixes(text string) []session.FileFix {
	type block struct {
		at  int
		fix session.FileFix
	}

	var blocks []block
	for _, re := range []*regexp.Regexp{dashedBlock, hyphenBlock} {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			path := strings.TrimSpace(text[m[2]:m[3]])
			if path == "" {
				continue
			}
			blocks = append(blocks, block{
				at:  m[0],
				fix: session.FileFix{Path: path, Code: strings.TrimSpace(text[m[4]:m[5]])},
			})
		}
	}

	if len(blocks) == 0 {
		return parseJSONFixes(text)
	}

	sort.SliceStable(blocks, func(i, j int) bool { return blocks[i].at < blocks[j].at })
	fixes := make([]session.FileFix, 0, len(blocks))
	for _, b := range blocks {
		fixes = append(fixes, b.fix)
	}
	return fixes
}

func parseJSONFixes(text string) []session.FileFix {
	objects := aichannel.ExtractJSONObjects(text)
	for i := len(objects) - 1; i >= 0; i-- {
		var payload struct {
			Files []session.FileFix `json:"files"`
		}
		if err := json.Unmarshal([]byte(objects[i]), &payload); err != nil {
			continue
		}

		fixes := make([]session.FileFix, 0, len(payload.Files))
		for _, f := range payload.Files {
			if strings.TrimSpace(f.Path) == "" {
				continue
			}
			fixes = append(fixes, session.FileFix{Path: strings.TrimSpace(f.Path), Code: strings.TrimSpace(f.Code)})
		}
		if len(fixes) > 0 {
			return fixes
		}
	}
	return []session.FileFix{}
}

// ParseSummary reads MESSAGE:, FILE: and LINE: lines, case-insensitively.
// Without any of them an embedded {"message","file","line"} object is used.
// Missing fields default to "Build failed", "" and -1.
func ParseSummary(text string) session.FailureSummary {
	sum := session.FailureSummary{
		Message: DefaultSummaryMessage,
		Line:    UnknownLine,
	}

	msg := messageField.FindStringSubmatch(text)
	file := fileField.FindStringSubmatch(text)
	line := lineField.FindStringSubmatch(text)
	if msg == nil && file == nil && line == nil {
		return parseJSONSummary(text, sum)
	}

	if msg != nil {
		if m := strings.TrimSpace(msg[1]); m != "" {
			sum.Message = m
		}
	}
	if file != nil {
		sum.File = strings.Trim(strings.TrimSpace(file[1]), "`\"'")
	}
	if line != nil {
		if n, err := strconv.Atoi(line[1]); err == nil {
			sum.Line = n
		}
	}
	return sum
}

func parseJSONSummary(text string, sum session.FailureSummary) session.FailureSummary {
	obj := aichannel.ExtractEmbeddedJSON(text)
	if obj == "" {
		return sum
	}
	var payload struct {
		Message string `json:"message"`
		File    string `json:"file"`
		Line    *int   `json:"line"`
	}
	if err := json.Unmarshal([]byte(obj), &payload); err != nil {
		return sum
	}
	if m := strings.TrimSpace(payload.Message); m != "" {
		sum.Message = m
	}
	sum.File = strings.TrimSpace(payload.File)
	if payload.Line != nil {
		sum.Line = *payload.Line
	}
	return sum
}

// StripCodeFences removes markdown fence lines (```lang and ```) and trims
// the result.
func StripCodeFences(code string) string {
	code = openFence.ReplaceAllString(code, "")
	code = strings.ReplaceAll(code, "```", "")
	return strings.TrimSpace(code)
}
