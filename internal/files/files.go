// Package files enumerates project files in batches for index
// ingestion. Enumeration is lazy in content: paths are walked up
// front (cheap), file contents are read one batch at a time so a large
// tree never sits in memory at once. Each call produces an independent
// Batcher — batchers are not shared or restarted.
package files

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
)

// File is one enumerated file with its content.
type File struct {
	Path     string
	Content  string
	Language string
}

// skipDirs are directory names never worth indexing.
var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	"dist":         true,
	"build":        true,
	"target":       true,
	".venv":        true,
	"__pycache__":  true,
	".next":        true,
}

// maxFileSize caps individual files; anything larger is skipped as
// generated or binary.
const maxFileSize = 256 * 1024

// languages maps extensions to index language tags.
var languages = map[string]string{
	".go":   "go",
	".ts":   "typescript",
	".tsx":  "typescript",
	".js":   "javascript",
	".jsx":  "javascript",
	".py":   "python",
	".rs":   "rust",
	".java": "java",
	".rb":   "ruby",
	".c":    "c",
	".h":    "c",
	".cpp":  "cpp",
	".cs":   "csharp",
	".php":  "php",
	".sh":   "shell",
	".sql":  "sql",
	".md":   "markdown",
	".json": "json",
	".yaml": "yaml",
	".yml":  "yaml",
	".toml": "toml",
}

// Options tunes enumeration.
type Options struct {
	// BatchSize is files per batch; defaults to 50.
	BatchSize int
	// Ignore holds extra doublestar patterns matched against the
	// path relative to the root.
	Ignore []string
}

// Batcher yields successive batches of files. Next returns nil when
// the walk is exhausted.
type Batcher struct {
	paths     []string
	root      string
	batchSize int
}

// ListFilesInBatches walks the tree under root and returns a Batcher
// over every indexable file.
func ListFilesInBatches(root string, opts Options) (*Batcher, error) {
	return list(root, opts, time.Time{})
}

// ListChangedFilesInBatches is ListFilesInBatches filtered to files
// modified after since.
func ListChangedFilesInBatches(root string, since time.Time, opts Options) (*Batcher, error) {
	return list(root, opts, since)
}

func list(root string, opts Options, since time.Time) (*Batcher, error) {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}

	var paths []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		if d.IsDir() {
			if skipDirs[d.Name()] || (d.Name() != "." && strings.HasPrefix(d.Name(), ".") && path != root) {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		for _, pattern := range opts.Ignore {
			if ok, _ := doublestar.Match(pattern, rel); ok {
				return nil
			}
		}

		info, err := d.Info()
		if err != nil || info.Size() > maxFileSize {
			return nil
		}
		if !since.IsZero() && !info.ModTime().After(since) {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}

	return &Batcher{paths: paths, root: root, batchSize: batchSize}, nil
}

// Next reads and returns the next batch, or nil when exhausted.
// Files deleted mid-walk or containing non-UTF-8 content are skipped.
func (b *Batcher) Next() []File {
	var batch []File
	for len(batch) < b.batchSize && len(b.paths) > 0 {
		path := b.paths[0]
		b.paths = b.paths[1:]

		data, err := os.ReadFile(path)
		if err != nil || !utf8.Valid(data) {
			continue
		}
		rel, err := filepath.Rel(b.root, path)
		if err != nil {
			rel = path
		}
		batch = append(batch, File{
			Path:     filepath.ToSlash(rel),
			Content:  string(data),
			Language: languages[strings.ToLower(filepath.Ext(path))],
		})
	}
	if len(batch) == 0 {
		return nil
	}
	return batch
}

// Remaining reports how many files have not yet been read.
func (b *Batcher) Remaining() int {
	return len(b.paths)
}
