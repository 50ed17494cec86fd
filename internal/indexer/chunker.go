package indexer

import (
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

const (
	minChunkSize = 50
	maxChunkSize = 700 // Max runes per chunk (targets ~450 tokens for 512-token embedding model)
)

// MarkdownChunker chunks markdown content using goldmark AST parsing.
// Sections follow the heading hierarchy; size normalization then merges
// fragments and splits oversized sections so every chunk fits the embedding
// model's context comfortably.
type MarkdownChunker struct {
	parser goldmark.Markdown
}

// NewMarkdownChunker creates a new markdown chunker.
func NewMarkdownChunker() *MarkdownChunker {
	return &MarkdownChunker{
		parser: goldmark.New(
			goldmark.WithExtensions(extension.Table),
		),
	}
}

// ChunkMarkdown parses markdown content and returns the document title and
// its chunks, one per heading-scoped section after size normalization.
func (c *MarkdownChunker) ChunkMarkdown(content []byte, filename string) (string, []Chunk, error) {
	if len(content) == 0 {
		return titleFromFilename(filename), []Chunk{}, nil
	}

	doc := c.parser.Parser().Parse(text.NewReader(content))
	title := documentTitle(doc, content, filename)

	w := &sectionWalker{src: content, docTitle: title}
	_ = ast.Walk(doc, w.visit)
	w.closeSection()

	chunks := w.chunks
	if len(chunks) == 0 {
		// Headingless and sectionless content still yields one chunk.
		chunks = []Chunk{{HeadingPath: "# " + title, Text: string(content)}}
	}

	return title, normalizeSizes(chunks), nil
}

// documentTitle picks the document title: the first level-1 heading wins,
// then the first level-2 heading, then the filename.
func documentTitle(doc ast.Node, content []byte, filename string) string {
	var firstH1, firstH2 string

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		heading, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}

		headingText := nodeText(heading, content)
		if heading.Level == 1 && firstH1 == "" {
			firstH1 = headingText
			return ast.WalkStop, nil
		}
		if heading.Level == 2 && firstH2 == "" && firstH1 == "" {
			firstH2 = headingText
		}
		return ast.WalkContinue, nil
	})

	if firstH1 != "" {
		return firstH1
	}
	if firstH2 != "" {
		return firstH2
	}
	return titleFromFilename(filename)
}

// titleFromFilename derives a title from the file name: extension stripped,
// each word capitalized.
func titleFromFilename(filename string) string {
	name := filepath.Base(filename)
	if ext := filepath.Ext(name); ext != "" {
		name = name[:len(name)-len(ext)]
	}

	words := strings.Fields(name)
	for i, word := range words {
		runes := []rune(word)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

// headingInfo tracks heading level and text for building heading paths.
type headingInfo struct {
	level int
	text  string
}

// sectionWalker accumulates heading-scoped sections while walking the AST.
// A section opens at each heading (or at leading content before the first
// heading) and closes when the next heading begins.
type sectionWalker struct {
	src      []byte
	docTitle string

	chunks     []Chunk
	current    *Chunk
	headings   []headingInfo
	sawHeading bool
}

func (w *sectionWalker) visit(n ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}

	switch node := n.(type) {
	case *ast.Heading:
		w.sawHeading = true

		// Pop headings at or below this level, then push the new one.
		for len(w.headings) > 0 && w.headings[len(w.headings)-1].level >= node.Level {
			w.headings = w.headings[:len(w.headings)-1]
		}
		w.headings = append(w.headings, headingInfo{
			level: node.Level,
			text:  nodeText(node, w.src),
		})

		w.closeSection()
		w.current = &Chunk{HeadingPath: headingPath(w.headings)}
		// The heading's own text nodes flow into the new section as its
		// first line.
		return ast.WalkContinue, nil

	case *ast.Text:
		w.ensureSection()
		if w.current != nil {
			w.current.Text += string(node.Segment.Value(w.src))
		}
		return ast.WalkContinue, nil

	case *ast.String:
		if w.current != nil {
			w.current.Text += string(node.Value)
		}
		return ast.WalkContinue, nil

	case *ast.CodeSpan:
		if w.current != nil {
			w.current.Text += nodeText(node, w.src)
		}
		return ast.WalkContinue, nil

	case *ast.CodeBlock:
		if w.current != nil {
			lines := node.Lines()
			for i := 0; i < lines.Len(); i++ {
				line := lines.At(i)
				w.current.Text += string(line.Value(w.src))
			}
		}
		return ast.WalkContinue, nil

	case *ast.Paragraph, *ast.List, *ast.ListItem:
		w.breakLine()
		return ast.WalkContinue, nil

	default:
		return w.visitTable(n)
	}
}

// visitTable handles the goldmark table extension nodes, which are only
// identifiable by kind name. Rows are flattened to "cell | cell" lines.
func (w *sectionWalker) visitTable(n ast.Node) (ast.WalkStatus, error) {
	kindName := n.Kind().String()
	if !strings.Contains(kindName, "Table") || w.current == nil {
		return ast.WalkContinue, nil
	}

	if strings.Contains(kindName, "TableRow") || strings.Contains(kindName, "TableHeader") {
		w.breakLine()
		w.current.Text += tableRowText(n, w.src) + "\n"
		return ast.WalkSkipChildren, nil
	}
	if strings.Contains(kindName, "TableCell") {
		// Cells are consumed by tableRowText.
		return ast.WalkSkipChildren, nil
	}

	// The table node itself.
	w.breakLine()
	return ast.WalkContinue, nil
}

// ensureSection opens the leading section for content that appears before
// the first heading.
func (w *sectionWalker) ensureSection() {
	if w.current == nil && !w.sawHeading {
		w.current = &Chunk{HeadingPath: "# " + w.docTitle}
	}
}

// breakLine terminates the current line if the section has unterminated text.
func (w *sectionWalker) breakLine() {
	if w.current != nil && len(w.current.Text) > 0 && !strings.HasSuffix(w.current.Text, "\n") {
		w.current.Text += "\n"
	}
}

// closeSection appends the open section, if any, to the finished chunks.
func (w *sectionWalker) closeSection() {
	if w.current != nil && len(w.current.Text) > 0 {
		w.chunks = append(w.chunks, *w.current)
	}
	w.current = nil
}

// headingPath renders the heading stack as "# H1 > ## H2 > ### H3".
func headingPath(stack []headingInfo) string {
	if len(stack) == 0 {
		return ""
	}
	parts := make([]string, len(stack))
	for i, h := range stack {
		parts[i] = strings.Repeat("#", h.level) + " " + h.text
	}
	return strings.Join(parts, " > ")
}

// nodeText extracts the plain text content of a node and its children.
func nodeText(n ast.Node, content []byte) string {
	var b strings.Builder

	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch v := node.(type) {
		case *ast.Text:
			b.Write(v.Segment.Value(content))
		case *ast.String:
			b.Write(v.Value)
		}
		return ast.WalkContinue, nil
	})

	return strings.TrimSpace(b.String())
}

// tableRowText flattens one table row into " | "-separated cell text.
func tableRowText(row ast.Node, content []byte) string {
	var b strings.Builder
	cells := 0

	_ = ast.Walk(row, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if strings.Contains(node.Kind().String(), "TableCell") {
			if cells > 0 {
				b.WriteString(" | ")
			}
			b.WriteString(strings.TrimSpace(nodeText(node, content)))
			cells++
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	return b.String()
}

// normalizeSizes enforces the chunk size bounds, measured in runes:
// adjacent sections sharing a heading path merge (content split around a
// table, say), undersized sections merge forward, oversized sections split.
// Chunk indexes are assigned from the final order.
func normalizeSizes(chunks []Chunk) []Chunk {
	if len(chunks) == 0 {
		return chunks
	}

	result := []Chunk{}
	i := 0

	for i < len(chunks) {
		current := chunks[i]

		if i+1 < len(chunks) && current.HeadingPath != "" && current.HeadingPath == chunks[i+1].HeadingPath {
			merged := current.Text + "\n\n" + chunks[i+1].Text
			if utf8.RuneCountInString(merged) <= maxChunkSize {
				current.Text = merged
				i++
			}
		}

		if utf8.RuneCountInString(current.Text) < minChunkSize && i+1 < len(chunks) {
			merged := current.Text + "\n\n" + chunks[i+1].Text
			if utf8.RuneCountInString(merged) <= maxChunkSize {
				current.Text = merged
				i++
			}
		}

		if utf8.RuneCountInString(current.Text) > maxChunkSize {
			result = append(result, splitChunk(current)...)
		} else {
			result = append(result, current)
		}
		i++
	}

	for i := range result {
		result[i].Index = i
	}
	return result
}

// splitChunk splits an oversized chunk, preferring paragraph boundaries,
// then line breaks, then sentence ends, then a hard cut at the size limit.
func splitChunk(chunk Chunk) []Chunk {
	if utf8.RuneCountInString(chunk.Text) <= maxChunkSize {
		return []Chunk{chunk}
	}

	var splits []Chunk
	runes := []rune(chunk.Text)
	start := 0

	for start < len(runes) {
		end := start + maxChunkSize
		if end >= len(runes) {
			splits = append(splits, Chunk{HeadingPath: chunk.HeadingPath, Text: string(runes[start:])})
			break
		}

		window := string(runes[start:end])
		cut := end
		for _, sep := range []string{"\n\n", "\n", ". "} {
			if at := strings.LastIndex(window, sep); at != -1 {
				// LastIndex is a byte offset; convert the prefix length
				// back to runes before advancing.
				cut = start + utf8.RuneCountInString(window[:at+len(sep)])
				break
			}
		}

		splits = append(splits, Chunk{HeadingPath: chunk.HeadingPath, Text: string(runes[start:cut])})
		start = cut
	}

	return splits
}
