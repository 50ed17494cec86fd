package indexer

import (
	"encoding/csv"
	"fmt"
	"strings"
	"unicode/utf8"
)

const tableRowsPerChunk = 20

// ChunkPlainText splits plain text into paragraph-aligned chunks under the
// size limit. Paragraphs are kept whole when possible; an oversized
// paragraph is split the same way oversized markdown sections are.
func ChunkPlainText(content []byte, filename string) (string, []Chunk, error) {
	title := titleFromFilename(filename)
	text := strings.TrimSpace(string(content))
	if text == "" {
		return title, []Chunk{}, nil
	}

	paragraphs := strings.Split(text, "\n\n")
	var chunks []Chunk
	var buf strings.Builder

	flush := func() {
		if buf.Len() == 0 {
			return
		}
		chunks = append(chunks, Chunk{
			Index:       len(chunks),
			HeadingPath: "# " + title,
			Text:        strings.TrimSpace(buf.String()),
		})
		buf.Reset()
	}

	for _, para := range paragraphs {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if buf.Len() > 0 && utf8.RuneCountInString(buf.String())+utf8.RuneCountInString(para) > maxChunkSize {
			flush()
		}
		if buf.Len() > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(para)
	}
	flush()

	var sized []Chunk
	for _, chunk := range chunks {
		sized = append(sized, splitChunk(chunk)...)
	}
	for i := range sized {
		sized[i].Index = i
	}
	return title, sized, nil
}

// ChunkDelimited chunks CSV or TSV content into row groups. Every chunk
// repeats the header line so each group stays interpretable on its own.
func ChunkDelimited(content []byte, filename string, comma rune) (string, []Chunk, error) {
	title := titleFromFilename(filename)

	reader := csv.NewReader(strings.NewReader(string(content)))
	reader.Comma = comma
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return "", nil, fmt.Errorf("failed to parse delimited file %s: %w", filename, err)
	}
	if len(records) == 0 {
		return title, []Chunk{}, nil
	}

	header := strings.Join(records[0], " | ")
	rows := records[1:]
	if len(rows) == 0 {
		return title, []Chunk{{Index: 0, HeadingPath: "# " + title, Text: header}}, nil
	}

	var chunks []Chunk
	for start := 0; start < len(rows); start += tableRowsPerChunk {
		end := start + tableRowsPerChunk
		if end > len(rows) {
			end = len(rows)
		}

		var sb strings.Builder
		sb.WriteString(header)
		for _, row := range rows[start:end] {
			sb.WriteString("\n")
			sb.WriteString(strings.Join(row, " | "))
		}
		chunks = append(chunks, Chunk{
			Index:       len(chunks),
			HeadingPath: fmt.Sprintf("# %s > rows %d-%d", title, start+1, end),
			Text:        sb.String(),
		})
	}
	return title, chunks, nil
}
