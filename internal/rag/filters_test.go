package rag

import (
	"testing"

	"localrag/internal/storage"
)

func intPtr(n int) *int { return &n }

func TestApplyFilters(t *testing.T) {
	records := []storage.ChunkRecord{
		{ID: "1", FilePath: "docs/Guide.md", PageNo: nil},
		{ID: "2", FilePath: "docs/manual.pdf", PageNo: intPtr(3)},
		{ID: "3", FilePath: "docs/manual.pdf", PageNo: intPtr(10)},
		{ID: "4", FilePath: "notes/scratch.txt", PageNo: intPtr(5)},
	}

	tests := []struct {
		name    string
		files   []string
		pages   *PageRange
		wantIDs []string
	}{
		{
			name:    "no filters pass everything",
			wantIDs: []string{"1", "2", "3", "4"},
		},
		{
			name:    "file substring case-insensitive",
			files:   []string{"GUIDE"},
			wantIDs: []string{"1"},
		},
		{
			name:    "any file filter matches",
			files:   []string{"scratch", "guide"},
			wantIDs: []string{"1", "4"},
		},
		{
			name:    "page range inclusive",
			pages:   &PageRange{Lo: 3, Hi: 5},
			wantIDs: []string{"2", "4"},
		},
		{
			name:    "page filter excludes chunks without a page",
			pages:   &PageRange{Lo: 1, Hi: 100},
			wantIDs: []string{"2", "3", "4"},
		},
		{
			name:    "file and page combine",
			files:   []string{"manual"},
			pages:   &PageRange{Lo: 10, Hi: 10},
			wantIDs: []string{"3"},
		},
		{
			name:    "no match yields empty",
			files:   []string{"missing"},
			wantIDs: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ApplyFilters(records, tt.files, tt.pages)
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("got %d records, want %d", len(got), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if got[i].ID != id {
					t.Errorf("record[%d] = %s, want %s", i, got[i].ID, id)
				}
			}
		})
	}
}
