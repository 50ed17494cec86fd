package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_chunk_store.go -package=mocks localrag/internal/storage ChunkStore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

// TextMatch is a lexical search result: a chunk ID with its BM25 score
// (higher is better).
type TextMatch struct {
	ChunkID string
	Score   float64
}

// ChunkStore defines the interface for chunk storage operations.
type ChunkStore interface {
	// InsertBatch inserts chunks and mirrors their text into the FTS index.
	// Chunk IDs must be set (UUID) before calling this method.
	InsertBatch(ctx context.Context, chunks []*ChunkRecord) error
	// GetByIDs returns the chunks for the given IDs, preserving the request
	// order. IDs with no matching record are silently dropped.
	GetByIDs(ctx context.Context, ids []string) ([]ChunkRecord, error)
	// OrderedIDs returns every chunk ID in global corpus order (by ordinal).
	OrderedIDs(ctx context.Context) ([]string, error)
	// SearchText performs a BM25 full-text search over chunk text.
	SearchText(ctx context.Context, query string, topK int) ([]TextMatch, error)
	// IDsByDoc returns the chunk IDs belonging to a document.
	IDsByDoc(ctx context.Context, docID string) ([]string, error)
	// DeleteByDoc deletes all chunks (and their FTS rows) for a document.
	DeleteByDoc(ctx context.Context, docID string) error
	// Count returns the total number of stored chunks.
	Count(ctx context.Context) (int, error)
	// NextOrdinal returns the next free position in the global corpus order.
	NextOrdinal(ctx context.Context) (int64, error)
}

// ChunkRepo provides methods for chunk operations backed by SQLite.
// It implements the ChunkStore interface.
type ChunkRepo struct {
	db *sql.DB
}

// NewChunkRepo creates a new ChunkRepo.
func NewChunkRepo(db *sql.DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

// InsertBatch inserts chunks and mirrors their text into the FTS index.
func (r *ChunkRepo) InsertBatch(ctx context.Context, chunks []*ChunkRecord) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, chunk := range chunks {
		meta, err := json.Marshal(chunk.Meta)
		if err != nil {
			return fmt.Errorf("failed to marshal chunk meta: %w", err)
		}

		var pageNo any
		if chunk.PageNo != nil {
			pageNo = *chunk.PageNo
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO chunks (id, doc_id, ordinal, level, heading_path, page_no, title, file_path, text, meta)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			chunk.ID, chunk.DocID, chunk.Ordinal, chunk.Level, chunk.HeadingPath,
			pageNo, chunk.Title, chunk.FilePath, chunk.Text, string(meta),
		)
		if err != nil {
			return fmt.Errorf("failed to insert chunk: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			"INSERT INTO chunks_fts (text, chunk_id) VALUES (?, ?)",
			chunk.Text, chunk.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to index chunk text: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunk batch: %w", err)
	}
	return nil
}

// GetByIDs returns the chunks for the given IDs, preserving the request
// order. IDs with no matching record are silently dropped: a stale or
// partially rebuilt index must not fail a query. Callers that care can
// compare input and output lengths.
func (r *ChunkRepo) GetByIDs(ctx context.Context, ids []string) ([]ChunkRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, doc_id, ordinal, level, heading_path, page_no, title, file_path, text, meta
			FROM chunks WHERE id IN (%s)`, placeholders),
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	byID := make(map[string]ChunkRecord, len(ids))
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		byID[chunk.ID] = chunk
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	out := make([]ChunkRecord, 0, len(byID))
	for _, id := range ids {
		if chunk, ok := byID[id]; ok {
			out = append(out, chunk)
		}
	}
	return out, nil
}

// OrderedIDs returns every chunk ID in global corpus order.
func (r *ChunkRepo) OrderedIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id FROM chunks ORDER BY ordinal")
	if err != nil {
		return nil, fmt.Errorf("failed to query chunk order: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan chunk ID: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return ids, nil
}

// SearchText performs a BM25 full-text search over chunk text.
// The query is reduced to alphanumeric terms OR-ed together so arbitrary
// user input cannot break the FTS MATCH syntax.
func (r *ChunkRepo) SearchText(ctx context.Context, query string, topK int) ([]TextMatch, error) {
	if topK <= 0 {
		return nil, nil
	}
	match := buildMatchQuery(query)
	if match == "" {
		return nil, nil
	}

	// bm25() returns lower-is-better; negate so callers see higher-is-better.
	rows, err := r.db.QueryContext(ctx,
		`SELECT chunk_id, bm25(chunks_fts) FROM chunks_fts
		 WHERE chunks_fts MATCH ? ORDER BY bm25(chunks_fts) LIMIT ?`,
		match, topK,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to run text search: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var matches []TextMatch
	for rows.Next() {
		var m TextMatch
		var rank float64
		if err := rows.Scan(&m.ChunkID, &rank); err != nil {
			return nil, fmt.Errorf("failed to scan text match: %w", err)
		}
		m.Score = -rank
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return matches, nil
}

// IDsByDoc returns the chunk IDs belonging to a document.
func (r *ChunkRepo) IDsByDoc(ctx context.Context, docID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id FROM chunks WHERE doc_id = ?", docID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunk IDs: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan chunk ID: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return ids, nil
}

// DeleteByDoc deletes all chunks and their FTS rows for a document.
// Used when re-indexing a document to remove old chunks first.
func (r *ChunkRepo) DeleteByDoc(ctx context.Context, docID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx,
		"DELETE FROM chunks_fts WHERE chunk_id IN (SELECT id FROM chunks WHERE doc_id = ?)",
		docID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete chunk FTS rows: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE doc_id = ?", docID); err != nil {
		return fmt.Errorf("failed to delete chunks by doc: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunk delete: %w", err)
	}
	return nil
}

// Count returns the total number of stored chunks.
func (r *ChunkRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

// AllOrdered returns every chunk in global corpus order. Used for the
// chunks.jsonl interchange export.
func (r *ChunkRepo) AllOrdered(ctx context.Context) ([]*ChunkRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, doc_id, ordinal, level, heading_path, page_no, title, file_path, text, meta
		 FROM chunks ORDER BY ordinal`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var chunks []*ChunkRecord
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, &chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return chunks, nil
}

// NextOrdinal returns the next free position in the global corpus order.
// Ordinals are append-only; re-indexed documents get fresh ordinals at the
// end rather than reusing old positions.
func (r *ChunkRepo) NextOrdinal(ctx context.Context) (int64, error) {
	var next int64
	if err := r.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(ordinal), -1) + 1 FROM chunks").Scan(&next); err != nil {
		return 0, fmt.Errorf("failed to query max ordinal: %w", err)
	}
	return next, nil
}

// DB exposes the underlying database handle for read-only stats queries.
func (r *ChunkRepo) DB() *sql.DB {
	return r.db
}

// scanChunk scans one chunks row.
func scanChunk(rows *sql.Rows) (ChunkRecord, error) {
	var chunk ChunkRecord
	var headingPath, title sql.NullString
	var pageNo sql.NullInt64
	var meta string

	err := rows.Scan(&chunk.ID, &chunk.DocID, &chunk.Ordinal, &chunk.Level,
		&headingPath, &pageNo, &title, &chunk.FilePath, &chunk.Text, &meta)
	if err != nil {
		return ChunkRecord{}, fmt.Errorf("failed to scan chunk: %w", err)
	}

	chunk.HeadingPath = headingPath.String
	chunk.Title = title.String
	if pageNo.Valid {
		p := int(pageNo.Int64)
		chunk.PageNo = &p
	}
	if meta != "" {
		if err := json.Unmarshal([]byte(meta), &chunk.Meta); err != nil {
			return ChunkRecord{}, fmt.Errorf("failed to unmarshal chunk meta: %w", err)
		}
	}
	return chunk, nil
}

// buildMatchQuery converts free text into a safe FTS5 MATCH expression.
func buildMatchQuery(query string) string {
	var builder strings.Builder
	builder.Grow(len(query))
	for _, r := range strings.ToLower(query) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			builder.WriteRune(r)
		} else {
			builder.WriteRune(' ')
		}
	}
	terms := strings.Fields(builder.String())
	if len(terms) == 0 {
		return ""
	}
	for i, term := range terms {
		terms[i] = `"` + term + `"`
	}
	return strings.Join(terms, " OR ")
}
