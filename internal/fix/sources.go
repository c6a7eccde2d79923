package fix

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// SourceOptions selects the files sent with a fix request.
type SourceOptions struct {
	// Extensions are matched without the leading dot, case-insensitively.
	Extensions []string
	SkipDirs   []string
	// MaxFileSize skips larger files; zero means no limit.
	MaxFileSize int64
}

// SourceFile is one collected file, keyed by its slash-separated path
// relative to the project root.
type SourceFile struct {
	Path    string
	Content string
}

// CollectSources walks root and returns the matching files in lexical order.
// Unreadable entries are skipped.
func CollectSources(root string, opts SourceOptions) ([]SourceFile, error) {
	exts := make(map[string]bool, len(opts.Extensions))
	for _, e := range opts.Extensions {
		exts[strings.ToLower(strings.TrimPrefix(e, "."))] = true
	}
	skip := make(map[string]bool, len(opts.SkipDirs))
	for _, d := range opts.SkipDirs {
		skip[d] = true
	}

	var files []SourceFile
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if d.IsDir() {
			if path != root && skip[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(d.Name()), "."))
		if !exts[ext] {
			return nil
		}
		if opts.MaxFileSize > 0 {
			info, err := d.Info()
			if err != nil || info.Size() > opts.MaxFileSize {
				return nil
			}
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		files = append(files, SourceFile{Path: filepath.ToSlash(rel), Content: string(data)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// renderSources formats files in the same block format fixes are returned in.
func renderSources(files []SourceFile) string {
	var b strings.Builder
	for _, f := range files {
		b.WriteString("-- START OF FILE: ")
		b.WriteString(f.Path)
		b.WriteString("\n")
		b.WriteString(f.Content)
		if !strings.HasSuffix(f.Content, "\n") {
			b.WriteString("\n")
		}
		b.WriteString("-- END OF FILE\n\n")
	}
	return b.String()
}
