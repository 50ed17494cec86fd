// Package search adapts the storage and vector backends to the retrieval
// pipeline's hit-producing interfaces.
package search

import (
	"context"
	"fmt"

	"localrag/internal/rag"
	"localrag/internal/storage"
)

// LexicalSearcher answers lexical recall from the SQLite FTS index.
type LexicalSearcher struct {
	chunks storage.ChunkStore
}

// NewLexicalSearcher creates a lexical searcher over the chunk store.
func NewLexicalSearcher(chunks storage.ChunkStore) *LexicalSearcher {
	return &LexicalSearcher{chunks: chunks}
}

func (s *LexicalSearcher) SearchLexical(ctx context.Context, query string, topK int) ([]rag.Hit, error) {
	if topK <= 0 {
		return nil, nil
	}

	matches, err := s.chunks.SearchText(ctx, query, topK)
	if err != nil {
		return nil, fmt.Errorf("lexical search failed: %w", err)
	}

	hits := make([]rag.Hit, len(matches))
	for i, m := range matches {
		hits[i] = rag.Hit{ChunkID: m.ChunkID, Score: m.Score}
	}
	return hits, nil
}
