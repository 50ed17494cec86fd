package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"

	"localrag/internal/contextutil"
	"localrag/internal/storage"
)

// Reranker reorders candidate chunks by relevance to the query. Only the
// first topK candidates are scored; any tail beyond topK is appended after
// the scored prefix in its original order. The returned score map is keyed
// by chunk ID and covers the scored prefix only; a nil map means scoring
// was unavailable and the input order was preserved.
//
// Reranking is never a hard dependency: implementations must swallow their
// own failures and return the input unchanged rather than surface an error
// or drop candidates.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []storage.ChunkRecord, topK int) ([]storage.ChunkRecord, map[string]float64)
}

// NoopReranker passes candidates through untouched. It is selected at
// startup when no scoring backend is configured.
type NoopReranker struct{}

func (NoopReranker) Rerank(_ context.Context, _ string, candidates []storage.ChunkRecord, _ int) ([]storage.ChunkRecord, map[string]float64) {
	return candidates, nil
}

// HTTPReranker scores (query, document) pairs against a cross-encoder
// scoring service speaking the common /rerank JSON shape (TEI, Cohere-style
// local servers).
type HTTPReranker struct {
	BaseURL string
	Model   string
	client  *http.Client
}

// NewHTTPReranker creates a reranker backed by an HTTP scoring service.
func NewHTTPReranker(baseURL, model string) *HTTPReranker {
	return &HTTPReranker{
		BaseURL: baseURL,
		Model:   model,
		client:  http.DefaultClient,
	}
}

type rerankRequest struct {
	Model     string   `json:"model,omitempty"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

func (r *HTTPReranker) Rerank(ctx context.Context, query string, candidates []storage.ChunkRecord, topK int) ([]storage.ChunkRecord, map[string]float64) {
	if len(candidates) == 0 {
		return candidates, nil
	}
	if topK <= 0 || topK > len(candidates) {
		topK = len(candidates)
	}

	prefix := candidates[:topK]
	scores, err := r.score(ctx, query, prefix)
	if err != nil {
		logger := contextutil.LoggerFromContext(ctx)
		logger.Warn("reranker unavailable, keeping retrieval order", "error", err)
		return candidates, nil
	}

	reordered := make([]storage.ChunkRecord, len(prefix))
	copy(reordered, prefix)
	sort.SliceStable(reordered, func(i, j int) bool {
		return scores[reordered[i].ID] > scores[reordered[j].ID]
	})

	out := append(reordered, candidates[topK:]...)
	return out, scores
}

func (r *HTTPReranker) score(ctx context.Context, query string, prefix []storage.ChunkRecord) (map[string]float64, error) {
	docs := make([]string, len(prefix))
	for i, c := range prefix {
		docs[i] = c.Text
	}

	body, err := json.Marshal(rerankRequest{Model: r.Model, Query: query, Documents: docs})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", fmt.Sprintf("%s/rerank", r.BaseURL), bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("bad status %d: %s", resp.StatusCode, string(raw))
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return normalizeRerankScores(payload, prefix)
}

// normalizeRerankScores converts either score payload shape into a map keyed
// by chunk ID. Scoring services return either an object mapping document
// index (or ID) to score, or a results list of {index, relevance_score}
// entries; both collapse to the same map here so cutoff logic never has to
// care which shape arrived.
func normalizeRerankScores(payload []byte, prefix []storage.ChunkRecord) (map[string]float64, error) {
	var listShape struct {
		Results []struct {
			Index int     `json:"index"`
			Score float64 `json:"relevance_score"`
		} `json:"results"`
	}
	if err := json.Unmarshal(payload, &listShape); err == nil && len(listShape.Results) > 0 {
		scores := make(map[string]float64, len(listShape.Results))
		for _, res := range listShape.Results {
			if res.Index < 0 || res.Index >= len(prefix) {
				continue
			}
			scores[prefix[res.Index].ID] = res.Score
		}
		if len(scores) > 0 {
			return scores, nil
		}
	}

	var mapShape struct {
		Scores map[string]float64 `json:"scores"`
	}
	if err := json.Unmarshal(payload, &mapShape); err == nil && len(mapShape.Scores) > 0 {
		scores := make(map[string]float64, len(mapShape.Scores))
		for key, score := range mapShape.Scores {
			// Keys are either chunk IDs or positional indices.
			if idx, ok := positionalIndex(key, len(prefix)); ok {
				scores[prefix[idx].ID] = score
				continue
			}
			scores[key] = score
		}
		return scores, nil
	}

	var flat []float64
	if err := json.Unmarshal(payload, &flat); err == nil && len(flat) > 0 {
		scores := make(map[string]float64, len(flat))
		for i, score := range flat {
			if i >= len(prefix) {
				break
			}
			scores[prefix[i].ID] = score
		}
		return scores, nil
	}

	return nil, fmt.Errorf("unrecognized score payload: %s", truncateForError(payload))
}

func positionalIndex(key string, n int) (int, bool) {
	idx := 0
	if len(key) == 0 {
		return 0, false
	}
	for _, r := range key {
		if r < '0' || r > '9' {
			return 0, false
		}
		idx = idx*10 + int(r-'0')
	}
	if idx >= n {
		return 0, false
	}
	return idx, true
}

func truncateForError(payload []byte) string {
	const max = 200
	if len(payload) > max {
		return string(payload[:max]) + "..."
	}
	return string(payload)
}
