package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestScanner_Scan(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "guide.md", "# Guide")
	writeFile(t, root, "notes/log.txt", "log text")
	writeFile(t, root, "data/items.csv", "a,b\n1,2\n")
	writeFile(t, root, "data/items.tsv", "a\tb\n")
	writeFile(t, root, "image.png", "binary")
	writeFile(t, root, ".cache/skip.md", "hidden")

	scanner := NewScanner(root)
	files, err := scanner.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() error: %v", err)
	}

	got := make(map[string]string, len(files))
	for _, f := range files {
		got[f.RelPath] = f.Ext
	}
	want := map[string]string{
		"guide.md":       ".md",
		"notes/log.txt":  ".txt",
		"data/items.csv": ".csv",
		"data/items.tsv": ".tsv",
	}
	if len(got) != len(want) {
		t.Fatalf("scanned %v, want %v", got, want)
	}
	for rel, ext := range want {
		if got[rel] != ext {
			t.Errorf("file %s ext = %q, want %q", rel, got[rel], ext)
		}
	}
}

func TestScanner_AbsPath(t *testing.T) {
	scanner := NewScanner("/docs")
	got := scanner.AbsPath("sub/file.md")
	want := filepath.Join("/docs", "sub", "file.md")
	if got != want {
		t.Errorf("AbsPath() = %q, want %q", got, want)
	}
}

func TestScanner_CancelledContext(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.md", "x")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewScanner(root).Scan(ctx); err == nil {
		t.Error("expected context cancellation error")
	}
}
