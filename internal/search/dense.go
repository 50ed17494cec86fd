package search

import (
	"context"
	"fmt"

	"localrag/internal/rag"
	"localrag/internal/vectorstore"
)

// Embedder turns text into vectors. llm.EmbeddingsClient satisfies it.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// DenseSearcher answers semantic recall by embedding the query and
// searching the vector store.
type DenseSearcher struct {
	embedder   Embedder
	store      vectorstore.VectorStore
	collection string
}

// NewDenseSearcher creates a dense searcher over the given collection.
func NewDenseSearcher(embedder Embedder, store vectorstore.VectorStore, collection string) *DenseSearcher {
	return &DenseSearcher{
		embedder:   embedder,
		store:      store,
		collection: collection,
	}
}

func (s *DenseSearcher) SearchDense(ctx context.Context, query string, topK int) ([]rag.Hit, error) {
	if topK <= 0 {
		return nil, nil
	}

	vectors, err := s.embedder.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embedding service returned no vectors")
	}

	results, err := s.store.Search(ctx, s.collection, vectors[0], topK, nil)
	if err != nil {
		return nil, fmt.Errorf("dense search failed: %w", err)
	}

	hits := make([]rag.Hit, len(results))
	for i, r := range results {
		hits[i] = rag.Hit{ChunkID: r.PointID, Score: float64(r.Score)}
	}
	return hits, nil
}
