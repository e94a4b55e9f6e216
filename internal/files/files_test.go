package files

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func write(t *testing.T, root, name, content string) string {
	t.Helper()
	path := filepath.Join(root, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func collect(b *Batcher) []File {
	var all []File
	for batch := b.Next(); batch != nil; batch = b.Next() {
		all = append(all, batch...)
	}
	return all
}

func TestListFilesInBatches_WalksTree(t *testing.T) {
	root := t.TempDir()
	write(t, root, "main.go", "package main\n")
	write(t, root, "docs/readme.md", "# hi\n")
	write(t, root, "scripts/run.sh", "echo ok\n")

	b, err := ListFilesInBatches(root, Options{})
	if err != nil {
		t.Fatal(err)
	}
	files := collect(b)
	if len(files) != 3 {
		t.Fatalf("got %d files, want 3", len(files))
	}

	byPath := map[string]File{}
	for _, f := range files {
		byPath[f.Path] = f
	}
	if f, ok := byPath["main.go"]; !ok || f.Language != "go" {
		t.Errorf("main.go = %+v", f)
	}
	if f, ok := byPath["docs/readme.md"]; !ok || f.Language != "markdown" {
		t.Errorf("docs/readme.md = %+v", f)
	}
	if f := byPath["docs/readme.md"]; f.Content != "# hi\n" {
		t.Errorf("content not read: %q", f.Content)
	}
}

func TestListFilesInBatches_BatchSize(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 5; i++ {
		write(t, root, string(rune('a'+i))+".go", "package x\n")
	}

	b, err := ListFilesInBatches(root, Options{BatchSize: 2})
	if err != nil {
		t.Fatal(err)
	}

	sizes := []int{}
	for batch := b.Next(); batch != nil; batch = b.Next() {
		sizes = append(sizes, len(batch))
	}
	if len(sizes) != 3 || sizes[0] != 2 || sizes[1] != 2 || sizes[2] != 1 {
		t.Errorf("batch sizes = %v, want [2 2 1]", sizes)
	}
}

func TestListFilesInBatches_SkipsKnownDirs(t *testing.T) {
	root := t.TempDir()
	write(t, root, "main.go", "package main\n")
	write(t, root, "node_modules/lib/index.js", "x")
	write(t, root, ".git/config", "x")
	write(t, root, ".hidden/secret.go", "package secret\n")

	b, err := ListFilesInBatches(root, Options{})
	if err != nil {
		t.Fatal(err)
	}
	files := collect(b)
	if len(files) != 1 || files[0].Path != "main.go" {
		t.Errorf("files = %+v, want only main.go", files)
	}
}

func TestListFilesInBatches_IgnorePatterns(t *testing.T) {
	root := t.TempDir()
	write(t, root, "main.go", "package main\n")
	write(t, root, "gen/types.go", "package gen\n")

	b, err := ListFilesInBatches(root, Options{Ignore: []string{"gen/**"}})
	if err != nil {
		t.Fatal(err)
	}
	files := collect(b)
	if len(files) != 1 || files[0].Path != "main.go" {
		t.Errorf("files = %+v, want only main.go", files)
	}
}

func TestListFilesInBatches_SkipsOversized(t *testing.T) {
	root := t.TempDir()
	write(t, root, "big.go", strings.Repeat("x", maxFileSize+1))
	write(t, root, "small.go", "package x\n")

	b, err := ListFilesInBatches(root, Options{})
	if err != nil {
		t.Fatal(err)
	}
	files := collect(b)
	if len(files) != 1 || files[0].Path != "small.go" {
		t.Errorf("oversized file should be skipped, got %+v", files)
	}
}

func TestNext_SkipsNonUTF8(t *testing.T) {
	root := t.TempDir()
	write(t, root, "ok.go", "package x\n")
	binary := filepath.Join(root, "blob.bin")
	if err := os.WriteFile(binary, []byte{0xff, 0xfe, 0x00, 0x01}, 0o644); err != nil {
		t.Fatal(err)
	}

	b, err := ListFilesInBatches(root, Options{})
	if err != nil {
		t.Fatal(err)
	}
	files := collect(b)
	if len(files) != 1 || files[0].Path != "ok.go" {
		t.Errorf("non-UTF-8 file should be skipped, got %+v", files)
	}
}

func TestNext_SkipsDeletedMidWalk(t *testing.T) {
	root := t.TempDir()
	write(t, root, "keep.go", "package x\n")
	doomed := write(t, root, "gone.go", "package x\n")

	b, err := ListFilesInBatches(root, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(doomed); err != nil {
		t.Fatal(err)
	}

	files := collect(b)
	if len(files) != 1 || files[0].Path != "keep.go" {
		t.Errorf("deleted file should be skipped, got %+v", files)
	}
}

func TestListChangedFilesInBatches(t *testing.T) {
	root := t.TempDir()
	old := write(t, root, "old.go", "package x\n")
	past := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatal(err)
	}
	write(t, root, "new.go", "package x\n")

	b, err := ListChangedFilesInBatches(root, time.Now().Add(-time.Hour), Options{})
	if err != nil {
		t.Fatal(err)
	}
	files := collect(b)
	if len(files) != 1 || files[0].Path != "new.go" {
		t.Errorf("files = %+v, want only new.go", files)
	}
}

func TestRemaining(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 3; i++ {
		write(t, root, string(rune('a'+i))+".go", "package x\n")
	}

	b, err := ListFilesInBatches(root, Options{BatchSize: 2})
	if err != nil {
		t.Fatal(err)
	}
	if b.Remaining() != 3 {
		t.Errorf("Remaining() = %d, want 3", b.Remaining())
	}
	b.Next()
	if b.Remaining() != 1 {
		t.Errorf("Remaining() = %d after one batch, want 1", b.Remaining())
	}
}
