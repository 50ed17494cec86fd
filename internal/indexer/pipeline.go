package indexer

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"localrag/internal/contextutil"
	"localrag/internal/storage"
	"localrag/internal/vectorstore"
)

// Embedder turns chunk texts into vectors.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// IngestSummary reports what one ingest run did.
type IngestSummary struct {
	FilesScanned  int `json:"files_scanned"`
	FilesIndexed  int `json:"files_indexed"`
	FilesSkipped  int `json:"files_skipped"`
	FilesFailed   int `json:"files_failed"`
	ChunksIndexed int `json:"chunks_indexed"`
}

// Pipeline ingests documents from a docs directory into SQLite (metadata +
// FTS) and Qdrant (vectors). Ingest and query must not run concurrently
// against the same index; callers serialize that externally.
type Pipeline struct {
	scanner     *Scanner
	docRepo     storage.DocumentStore
	chunkRepo   storage.ChunkStore
	embedder    Embedder
	vectorStore vectorstore.VectorStore
	collection  string
	chunker     *MarkdownChunker
}

// NewPipeline creates an ingest pipeline.
func NewPipeline(
	scanner *Scanner,
	docRepo storage.DocumentStore,
	chunkRepo storage.ChunkStore,
	embedder Embedder,
	vectorStore vectorstore.VectorStore,
	collection string,
) *Pipeline {
	return &Pipeline{
		scanner:     scanner,
		docRepo:     docRepo,
		chunkRepo:   chunkRepo,
		embedder:    embedder,
		vectorStore: vectorStore,
		collection:  collection,
		chunker:     NewMarkdownChunker(),
	}
}

// chunkFile dispatches to the chunker for the file's format.
func (p *Pipeline) chunkFile(content []byte, file ScannedFile) (string, []Chunk, error) {
	filename := filepath.Base(file.RelPath)
	switch file.Ext {
	case ".md":
		return p.chunker.ChunkMarkdown(content, filename)
	case ".csv":
		return ChunkDelimited(content, filename, ',')
	case ".tsv":
		return ChunkDelimited(content, filename, '\t')
	default:
		return ChunkPlainText(content, filename)
	}
}

// IndexFile ingests a single file. The returned count is the number of
// chunks written; indexed is false when the file was unchanged and skipped.
func (p *Pipeline) IndexFile(ctx context.Context, file ScannedFile) (count int, indexed bool, err error) {
	logger := contextutil.LoggerFromContext(ctx)

	content, err := os.ReadFile(file.AbsPath)
	if err != nil {
		return 0, false, fmt.Errorf("failed to read file %s: %w", file.AbsPath, err)
	}

	hash := sha256.Sum256(content)
	hashHex := fmt.Sprintf("%x", hash)

	existing, err := p.docRepo.GetByPath(ctx, file.RelPath)
	if err != nil && err != storage.ErrNotFound {
		return 0, false, fmt.Errorf("failed to check existing document: %w", err)
	}

	if existing != nil && existing.Hash == hashHex {
		logger.DebugContext(ctx, "skipping unchanged file", "rel_path", file.RelPath, "hash", hashHex)
		return 0, false, nil
	}

	title, chunks, err := p.chunkFile(content, file)
	if err != nil {
		return 0, false, fmt.Errorf("failed to chunk %s: %w", file.RelPath, err)
	}

	doc := &storage.Document{
		FilePath: file.RelPath,
		Title:    title,
		Hash:     hashHex,
	}
	if existing != nil {
		doc.ID = existing.ID
	}
	if err := p.docRepo.Upsert(ctx, doc); err != nil {
		return 0, false, fmt.Errorf("failed to upsert document: %w", err)
	}

	// Re-indexing replaces the document's chunks wholesale.
	if existing != nil {
		oldIDs, err := p.chunkRepo.IDsByDoc(ctx, existing.ID)
		if err != nil {
			return 0, false, fmt.Errorf("failed to list old chunk IDs: %w", err)
		}
		if len(oldIDs) > 0 {
			if err := p.vectorStore.Delete(ctx, p.collection, oldIDs); err != nil {
				logger.WarnContext(ctx, "failed to delete old vectors", "error", err, "count", len(oldIDs))
			}
		}
		if err := p.chunkRepo.DeleteByDoc(ctx, existing.ID); err != nil {
			return 0, false, fmt.Errorf("failed to delete old chunks: %w", err)
		}
	}

	if len(chunks) == 0 {
		logger.WarnContext(ctx, "no chunks generated", "rel_path", file.RelPath)
		return 0, true, nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}
	embeddings, err := p.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return 0, false, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(embeddings) != len(chunks) {
		return 0, false, fmt.Errorf("embedding count mismatch: expected %d, got %d", len(chunks), len(embeddings))
	}

	base, err := p.chunkRepo.NextOrdinal(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("failed to allocate ordinals: %w", err)
	}

	records := make([]*storage.ChunkRecord, len(chunks))
	points := make([]vectorstore.Point, len(chunks))
	for i, chunk := range chunks {
		chunkID := uuid.New().String()
		records[i] = &storage.ChunkRecord{
			ID:          chunkID,
			DocID:       doc.ID,
			Ordinal:     base + int64(i),
			Level:       storage.LevelChunk,
			HeadingPath: chunk.HeadingPath,
			PageNo:      chunk.PageNo,
			Title:       title,
			FilePath:    file.RelPath,
			Text:        chunk.Text,
			Meta:        map[string]any{storage.MetaFilePath: file.RelPath},
		}
		points[i] = vectorstore.Point{
			ID:  chunkID,
			Vec: embeddings[i],
			Meta: map[string]any{
				"doc_id":       doc.ID,
				"file_path":    file.RelPath,
				"heading_path": chunk.HeadingPath,
				"ordinal":      base + int64(i),
				"title":        title,
			},
		}
	}

	if err := p.chunkRepo.InsertBatch(ctx, records); err != nil {
		return 0, false, fmt.Errorf("failed to insert chunks: %w", err)
	}
	if err := p.vectorStore.Upsert(ctx, p.collection, points); err != nil {
		return 0, false, fmt.Errorf("failed to upsert vectors: %w", err)
	}

	logger.InfoContext(ctx, "indexed file", "rel_path", file.RelPath, "chunks", len(chunks), "title", title)
	return len(chunks), true, nil
}

// IndexAll scans the docs directory and ingests every file. Per-file
// failures are logged and counted; they do not stop the run.
func (p *Pipeline) IndexAll(ctx context.Context) (*IngestSummary, error) {
	logger := contextutil.LoggerFromContext(ctx)

	files, err := p.scanner.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to scan docs: %w", err)
	}

	summary := &IngestSummary{FilesScanned: len(files)}
	logger.InfoContext(ctx, "starting ingest", "total_files", len(files))

	for _, file := range files {
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		count, indexed, err := p.IndexFile(ctx, file)
		if err != nil {
			summary.FilesFailed++
			logger.ErrorContext(ctx, "failed to index file", "rel_path", file.RelPath, "error", err)
			continue
		}
		if !indexed {
			summary.FilesSkipped++
			continue
		}
		summary.FilesIndexed++
		summary.ChunksIndexed += count
	}

	logger.InfoContext(ctx, "ingest completed",
		"scanned", summary.FilesScanned,
		"indexed", summary.FilesIndexed,
		"skipped", summary.FilesSkipped,
		"failed", summary.FilesFailed,
	)

	if summary.FilesFailed > 0 {
		return summary, fmt.Errorf("ingest completed with %d errors", summary.FilesFailed)
	}
	return summary, nil
}

// ExportChunks writes the chunks.jsonl interchange file: one JSON record
// per chunk in global corpus order.
func (p *Pipeline) ExportChunks(ctx context.Context, path string) error {
	repo, ok := p.chunkRepo.(*storage.ChunkRepo)
	if !ok {
		return fmt.Errorf("chunk store does not support export")
	}

	chunks, err := repo.AllOrdered(ctx)
	if err != nil {
		return fmt.Errorf("failed to load chunks for export: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	if err := storage.ExportJSONL(f, chunks); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	return f.Close()
}
