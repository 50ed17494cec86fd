package rag

import (
	"strings"

	"localrag/internal/storage"
)

// ApplyFilters keeps chunks matching the request's file and page filters.
// File filters match case-insensitively on any substring of the file path;
// a chunk passes when any filter matches. When a page range is set, chunks
// without a page number are excluded.
func ApplyFilters(records []storage.ChunkRecord, fileFilters []string, pages *PageRange) []storage.ChunkRecord {
	if len(fileFilters) == 0 && pages == nil {
		return records
	}

	lowered := make([]string, len(fileFilters))
	for i, f := range fileFilters {
		lowered[i] = strings.ToLower(f)
	}

	out := make([]storage.ChunkRecord, 0, len(records))
	for _, rec := range records {
		if len(lowered) > 0 && !matchesFile(rec.FilePath, lowered) {
			continue
		}
		if pages != nil {
			if rec.PageNo == nil || *rec.PageNo < pages.Lo || *rec.PageNo > pages.Hi {
				continue
			}
		}
		out = append(out, rec)
	}
	return out
}

func matchesFile(path string, lowered []string) bool {
	p := strings.ToLower(path)
	for _, f := range lowered {
		if strings.Contains(p, f) {
			return true
		}
	}
	return false
}
