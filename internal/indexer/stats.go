package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"unicode/utf8"

	"localrag/internal/storage"
)

const (
	// ChunkerVersion identifies the chunking implementation. Bump it when
	// chunking logic changes enough to warrant a rebuild.
	ChunkerVersion = "v1.0"
	// runesPerToken approximates token counting (4 chars per token).
	runesPerToken = 4.0
)

// CoverageStats describes the state of the index.
type CoverageStats struct {
	DocsIndexed     int             `json:"docs_indexed"`
	DocsWith0Chunks int             `json:"docs_with_0_chunks"`
	ChunksIndexed   int             `json:"chunks_indexed"`
	ChunkTokenStats ChunkTokenStats `json:"chunk_token_stats"`
	ChunkerVersion  string          `json:"chunker_version"`
	// IndexVersion hashes the chunker version, embedding model and chunking
	// parameters so clients can detect a stale index.
	IndexVersion string `json:"index_version"`
}

// ChunkTokenStats summarizes estimated token counts per chunk.
type ChunkTokenStats struct {
	Min  int     `json:"min"`
	Max  int     `json:"max"`
	Mean float64 `json:"mean"`
	P95  int     `json:"p95"`
}

// CoverageStats computes index coverage from the database.
func (p *Pipeline) CoverageStats(ctx context.Context, embeddingModel string) (*CoverageStats, error) {
	chunkRepo, ok := p.chunkRepo.(*storage.ChunkRepo)
	if !ok {
		return nil, fmt.Errorf("chunk store does not support stats queries")
	}
	db := chunkRepo.DB()

	stats := &CoverageStats{ChunkerVersion: ChunkerVersion}

	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&stats.DocsIndexed); err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM documents WHERE id NOT IN (SELECT DISTINCT doc_id FROM chunks)",
	).Scan(&stats.DocsWith0Chunks)
	if err != nil {
		return nil, fmt.Errorf("failed to count empty documents: %w", err)
	}

	chunks, err := chunkRepo.AllOrdered(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}
	stats.ChunksIndexed = len(chunks)

	if len(chunks) > 0 {
		tokenCounts := make([]int, 0, len(chunks))
		for _, chunk := range chunks {
			count := int(math.Round(float64(utf8.RuneCountInString(chunk.Text)) / runesPerToken))
			if count < 1 {
				count = 1
			}
			tokenCounts = append(tokenCounts, count)
		}
		stats.ChunkTokenStats = computeTokenStats(tokenCounts)
	}

	versionInput := fmt.Sprintf("%s|%s|minChunkSize=%d|maxChunkSize=%d",
		ChunkerVersion, embeddingModel, minChunkSize, maxChunkSize)
	hash := sha256.Sum256([]byte(versionInput))
	stats.IndexVersion = hex.EncodeToString(hash[:])[:16]

	return stats, nil
}

// computeTokenStats computes min, max, mean and p95 from token counts.
func computeTokenStats(tokenCounts []int) ChunkTokenStats {
	if len(tokenCounts) == 0 {
		return ChunkTokenStats{}
	}

	sorted := make([]int, len(tokenCounts))
	copy(sorted, tokenCounts)
	sort.Ints(sorted)

	sum := 0
	for _, count := range tokenCounts {
		sum += count
	}
	mean := float64(sum) / float64(len(tokenCounts))

	p95Index := int(math.Ceil(float64(len(sorted)) * 0.95))
	if p95Index >= len(sorted) {
		p95Index = len(sorted) - 1
	}

	return ChunkTokenStats{
		Min:  sorted[0],
		Max:  sorted[len(sorted)-1],
		Mean: math.Round(mean*100) / 100,
		P95:  sorted[p95Index],
	}
}
