package indexer

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestChunkMarkdown_Titles(t *testing.T) {
	chunker := NewMarkdownChunker()

	tests := []struct {
		name      string
		content   string
		filename  string
		wantTitle string
	}{
		{"h1 wins", "# Heading\n\nContent here.", "simple.md", "Heading"},
		{"h2 when no h1", "## First H2\n\nContent", "h2-title.md", "First H2"},
		{"filename fallback", "Just some content without headings.", "release notes.md", "Release Notes"},
		{"empty content falls back", "", "empty.md", "Empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			title, _, err := chunker.ChunkMarkdown([]byte(tt.content), tt.filename)
			if err != nil {
				t.Fatalf("ChunkMarkdown() error = %v", err)
			}
			if title != tt.wantTitle {
				t.Errorf("title = %q, want %q", title, tt.wantTitle)
			}
		})
	}
}

func TestChunkMarkdown_EmptyContent(t *testing.T) {
	chunker := NewMarkdownChunker()

	_, chunks, err := chunker.ChunkMarkdown(nil, "empty.md")
	if err != nil {
		t.Fatalf("ChunkMarkdown() error = %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("chunks = %d, want 0", len(chunks))
	}
}

func TestChunkMarkdown_HeadinglessContent(t *testing.T) {
	chunker := NewMarkdownChunker()

	title, chunks, err := chunker.ChunkMarkdown([]byte("Just some content without headings."), "notes.md")
	if err != nil {
		t.Fatalf("ChunkMarkdown() error = %v", err)
	}
	if len(chunks) == 0 {
		t.Fatal("headingless content should still produce a chunk")
	}
	if want := "# " + title; chunks[0].HeadingPath != want {
		t.Errorf("HeadingPath = %q, want %q", chunks[0].HeadingPath, want)
	}
}

func TestChunkMarkdown_HeadingHierarchy(t *testing.T) {
	chunker := NewMarkdownChunker()

	content := []byte(`# Main Heading

Content under main.

## Sub Heading 1

Content under sub 1.

### Sub Sub Heading

Content under sub sub.

## Sub Heading 2

Content under sub 2.
`)

	title, chunks, err := chunker.ChunkMarkdown(content, "hierarchy.md")
	if err != nil {
		t.Fatalf("ChunkMarkdown() error = %v", err)
	}

	if title != "Main Heading" {
		t.Errorf("title = %q, want Main Heading", title)
	}
	if len(chunks) < 2 {
		t.Fatalf("chunks = %d, want at least 2", len(chunks))
	}

	// A nested section carries its full ancestry in the path.
	var nested bool
	for _, chunk := range chunks {
		if strings.Contains(chunk.HeadingPath, "# Main Heading > ## Sub Heading 1") {
			nested = true
		}
	}
	if !nested {
		t.Error("expected a heading path containing the parent hierarchy")
	}

	// Indexes follow final order.
	for i, chunk := range chunks {
		if chunk.Index != i {
			t.Errorf("chunk[%d].Index = %d", i, chunk.Index)
		}
	}
}

func TestChunkMarkdown_CodeBlockContent(t *testing.T) {
	chunker := NewMarkdownChunker()

	content := []byte("# Setup\n\nInstall the binary and run it with the flags below.\n\n    make build\n    ./bin/server --port 8080\n")

	_, chunks, err := chunker.ChunkMarkdown(content, "setup.md")
	if err != nil {
		t.Fatalf("ChunkMarkdown() error = %v", err)
	}
	if len(chunks) == 0 {
		t.Fatal("expected at least one chunk")
	}
	for _, want := range []string{"make build", "./bin/server --port 8080"} {
		if !strings.Contains(chunks[0].Text, want) {
			t.Errorf("chunk text missing code line %q:\n%s", want, chunks[0].Text)
		}
	}
}

func TestChunkMarkdown_SizeBounds(t *testing.T) {
	chunker := NewMarkdownChunker()

	content := append([]byte("# Heading\n\n"), []byte(strings.Repeat("a", 5000))...)

	_, chunks, err := chunker.ChunkMarkdown(content, "large.md")
	if err != nil {
		t.Fatalf("ChunkMarkdown() error = %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("oversized section should split, got %d chunks", len(chunks))
	}
	for i, chunk := range chunks {
		if n := utf8.RuneCountInString(chunk.Text); n > maxChunkSize {
			t.Errorf("chunk[%d] = %d runes, exceeds max %d", i, n, maxChunkSize)
		}
	}
}

func TestSplitChunk_MultibyteText(t *testing.T) {
	// Multibyte runes shift byte offsets away from rune offsets; splits must
	// stay on rune boundaries and lose no text.
	sentence := "日本語のテキストです。ここで区切ります. "
	chunk := Chunk{
		HeadingPath: "# Doc",
		Text:        strings.Repeat(sentence, 80),
	}

	splits := splitChunk(chunk)
	if len(splits) < 2 {
		t.Fatalf("splits = %d, want at least 2", len(splits))
	}

	var rebuilt strings.Builder
	for i, s := range splits {
		if n := utf8.RuneCountInString(s.Text); n > maxChunkSize {
			t.Errorf("split[%d] = %d runes, exceeds max %d", i, n, maxChunkSize)
		}
		if !utf8.ValidString(s.Text) {
			t.Errorf("split[%d] is not valid UTF-8", i)
		}
		rebuilt.WriteString(s.Text)
	}
	if rebuilt.String() != chunk.Text {
		t.Error("concatenated splits should equal the original text")
	}
}

func TestSplitChunk_PrefersParagraphBoundary(t *testing.T) {
	para := strings.Repeat("b", 400)
	chunk := Chunk{Text: para + "\n\n" + para + "\n\n" + para}

	splits := splitChunk(chunk)
	if len(splits) < 2 {
		t.Fatalf("splits = %d, want at least 2", len(splits))
	}
	if !strings.HasSuffix(splits[0].Text, "\n\n") {
		t.Errorf("first split should end at a paragraph boundary, got %q tail", splits[0].Text[len(splits[0].Text)-4:])
	}
}

func TestTitleFromFilename(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"test.md", "Test"},
		{"my test file.md", "My Test File"},
		{"my_test_file.md", "My_test_file"},
		{"test", "Test"},
		{"folder/test.md", "Test"},
	}

	for _, tt := range tests {
		if got := titleFromFilename(tt.filename); got != tt.want {
			t.Errorf("titleFromFilename(%q) = %q, want %q", tt.filename, got, tt.want)
		}
	}
}
