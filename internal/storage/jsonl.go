package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// chunkLine is the wire form of one record in a chunks.jsonl file, the
// interchange format shared with external ingest tooling.
type chunkLine struct {
	DocID       string         `json:"doc_id"`
	ChunkID     string         `json:"chunk_id"`
	Level       string         `json:"level"`
	HeadingPath string         `json:"heading_path,omitempty"`
	PageNo      *int           `json:"page_no,omitempty"`
	Text        string         `json:"text"`
	Meta        map[string]any `json:"meta"`
}

// ExportJSONL writes chunks as one JSON record per line. The meta map always
// carries the file_path key plus title and order so a reader can reconstruct
// the corpus without the sqlite store.
func ExportJSONL(w io.Writer, chunks []*ChunkRecord) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for _, chunk := range chunks {
		meta := make(map[string]any, len(chunk.Meta)+3)
		for k, v := range chunk.Meta {
			meta[k] = v
		}
		meta[MetaFilePath] = chunk.FilePath
		meta["title"] = chunk.Title
		meta["order"] = chunk.Ordinal

		line := chunkLine{
			DocID:       chunk.DocID,
			ChunkID:     chunk.ID,
			Level:       chunk.Level,
			HeadingPath: chunk.HeadingPath,
			PageNo:      chunk.PageNo,
			Text:        chunk.Text,
			Meta:        meta,
		}
		if err := enc.Encode(&line); err != nil {
			return fmt.Errorf("failed to encode chunk line: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to flush chunk lines: %w", err)
	}
	return nil
}

// ImportJSONL rebuilds chunk records from a chunks.jsonl stream written by an
// external ingest tool. Line order defines the global chunk order. It is
// intended for loading into an empty store: document rows are created from
// the doc_id and file_path fields as they are first seen.
func ImportJSONL(ctx context.Context, r io.Reader, docs DocumentStore, chunks ChunkStore) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	seenDocs := make(map[string]bool)
	var batch []*ChunkRecord
	var ordinal int64

	for scanner.Scan() {
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var line chunkLine
		if err := json.Unmarshal(raw, &line); err != nil {
			return 0, fmt.Errorf("failed to parse chunk line %d: %w", ordinal+1, err)
		}

		filePath, _ := line.Meta[MetaFilePath].(string)
		title, _ := line.Meta["title"].(string)

		if !seenDocs[line.DocID] {
			doc := &Document{ID: line.DocID, FilePath: filePath, Title: title, Hash: ""}
			if err := docs.Upsert(ctx, doc); err != nil {
				return 0, fmt.Errorf("failed to create document %s: %w", line.DocID, err)
			}
			seenDocs[line.DocID] = true
		}

		batch = append(batch, &ChunkRecord{
			ID:          line.ChunkID,
			DocID:       line.DocID,
			Ordinal:     ordinal,
			Level:       line.Level,
			HeadingPath: line.HeadingPath,
			PageNo:      line.PageNo,
			Title:       title,
			FilePath:    filePath,
			Text:        line.Text,
			Meta:        line.Meta,
		})
		ordinal++
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("failed to read chunk lines: %w", err)
	}

	if err := chunks.InsertBatch(ctx, batch); err != nil {
		return 0, err
	}
	return len(batch), nil
}
