package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ScannedFile is one ingestable file found under the docs directory.
type ScannedFile struct {
	RelPath string // Relative path from the docs root (forward slashes)
	AbsPath string // Absolute file path
	Ext     string // Lowercased extension including the dot
}

var ingestableExts = map[string]struct{}{
	".md":  {},
	".txt": {},
	".csv": {},
	".tsv": {},
}

// Scanner walks a documents directory for ingestable files.
type Scanner struct {
	root string
}

// NewScanner creates a scanner over the given docs directory.
func NewScanner(root string) *Scanner {
	return &Scanner{root: root}
}

// Root returns the scanned directory.
func (s *Scanner) Root() string {
	return s.root
}

// AbsPath resolves a relative path against the docs root.
func (s *Scanner) AbsPath(relPath string) string {
	return filepath.Join(s.root, filepath.FromSlash(relPath))
}

// Scan walks the docs directory and returns every ingestable file. Hidden
// directories are skipped.
func (s *Scanner) Scan(ctx context.Context) ([]ScannedFile, error) {
	var files []ScannedFile

	err := filepath.Walk(s.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return fmt.Errorf("failed to access path %s: %w", path, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if info.IsDir() {
			if strings.HasPrefix(info.Name(), ".") && path != s.root {
				return filepath.SkipDir
			}
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		if _, ok := ingestableExts[ext]; !ok {
			return nil
		}

		relPath, err := filepath.Rel(s.root, path)
		if err != nil {
			return fmt.Errorf("failed to compute relative path for %s: %w", path, err)
		}

		files = append(files, ScannedFile{
			RelPath: filepath.ToSlash(relPath),
			AbsPath: path,
			Ext:     ext,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan docs directory %s: %w", s.root, err)
	}
	return files, nil
}
