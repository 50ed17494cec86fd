package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_document_store.go -package=mocks localrag/internal/storage DocumentStore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DocumentStore defines the interface for document storage operations.
type DocumentStore interface {
	// GetByPath gets a document by its file path.
	// Returns nil and ErrNotFound if not found.
	GetByPath(ctx context.Context, filePath string) (*Document, error)
	// Upsert inserts a new document or updates an existing one by file path.
	Upsert(ctx context.Context, doc *Document) error
	// ListAll returns every document ordered by file path.
	ListAll(ctx context.Context) ([]Document, error)
	// Delete removes a document by ID. Chunks cascade via foreign key.
	Delete(ctx context.Context, id string) error
}

// DocumentRepo provides methods for document operations.
// It implements the DocumentStore interface.
type DocumentRepo struct {
	db *sql.DB
}

// NewDocumentRepo creates a new DocumentRepo.
func NewDocumentRepo(db *sql.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

// GetByPath gets a document by its file path.
// Returns nil and ErrNotFound if not found.
func (r *DocumentRepo) GetByPath(ctx context.Context, filePath string) (*Document, error) {
	var doc Document
	var updatedAtStr string

	err := r.db.QueryRowContext(ctx,
		"SELECT id, file_path, title, hash, updated_at FROM documents WHERE file_path = ?",
		filePath,
	).Scan(&doc.ID, &doc.FilePath, &doc.Title, &doc.Hash, &updatedAtStr)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query document: %w", err)
	}

	doc.UpdatedAt, err = parseSQLiteTime(updatedAtStr)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// Upsert inserts a new document or updates an existing one by file path.
// New documents get a fresh UUID; existing ones keep their ID.
func (r *DocumentRepo) Upsert(ctx context.Context, doc *Document) error {
	existing, err := r.GetByPath(ctx, doc.FilePath)
	if err != nil && err != ErrNotFound {
		return fmt.Errorf("failed to check existing document: %w", err)
	}

	if existing == nil && doc.ID == "" {
		doc.ID = uuid.New().String()
	} else if existing != nil {
		doc.ID = existing.ID
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO documents (id, file_path, title, hash, updated_at)
		 VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(file_path) DO UPDATE SET
			title = excluded.title,
			hash = excluded.hash,
			updated_at = CURRENT_TIMESTAMP`,
		doc.ID, doc.FilePath, doc.Title, doc.Hash,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}
	return nil
}

// ListAll returns every document ordered by file path.
func (r *DocumentRepo) ListAll(ctx context.Context) ([]Document, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, file_path, title, hash, updated_at FROM documents ORDER BY file_path",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var docs []Document
	for rows.Next() {
		var doc Document
		var updatedAtStr string
		if err := rows.Scan(&doc.ID, &doc.FilePath, &doc.Title, &doc.Hash, &updatedAtStr); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		doc.UpdatedAt, err = parseSQLiteTime(updatedAtStr)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return docs, nil
}

// Delete removes a document by ID. Chunks cascade via foreign key.
func (r *DocumentRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// DB exposes the underlying database handle for read-only stats queries.
func (r *DocumentRepo) DB() *sql.DB {
	return r.db
}

// parseSQLiteTime parses the DATETIME strings SQLite stores.
func parseSQLiteTime(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02 15:04:05", s)
	if err == nil {
		return t, nil
	}
	t, err = time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp: %w", err)
	}
	return t, nil
}
