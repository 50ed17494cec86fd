package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"localrag/internal/contextutil"
	"localrag/internal/storage"
)

const (
	DefaultFinalK         = 8
	DefaultRecallK        = 40
	DefaultNeighborRadius = 1
	DefaultRerankTopK     = 50
	DefaultMaxAnswerChars = 1500

	contextPreviewChars = 1000
)

// LexicalSearcher retrieves chunk hits by full-text relevance.
type LexicalSearcher interface {
	SearchLexical(ctx context.Context, query string, topK int) ([]Hit, error)
}

// DenseSearcher retrieves chunk hits by embedding similarity.
type DenseSearcher interface {
	SearchDense(ctx context.Context, query string, topK int) ([]Hit, error)
}

// ChunkSource resolves chunk IDs to records and exposes the global corpus
// order used by neighbor expansion. storage.ChunkRepo satisfies it.
type ChunkSource interface {
	GetByIDs(ctx context.Context, ids []string) ([]storage.ChunkRecord, error)
	OrderedIDs(ctx context.Context) ([]string, error)
}

// SynthesisOutcome is the result of grounded synthesis: either an answer
// with citations or an abstention with its reason.
type SynthesisOutcome struct {
	Abstained bool
	Reason    string
	Answer    string
	Citations []Citation
}

// Synthesizer produces a grounded answer from the final contexts.
type Synthesizer interface {
	Synthesize(ctx context.Context, question string, contexts []storage.ChunkRecord, avgSimilarity float64) (SynthesisOutcome, error)
}

// Config holds the retrieval defaults a Pipeline runs with. Per-request
// overrides never mutate it; each query resolves a fresh EffectiveParams.
type Config struct {
	TopKLexical    int
	TopKDense      int
	RRFK           int
	NeighborRadius int
	FinalK         int
	RerankTopK     int
	MinScore       float64
	RerankEnabled  bool
	MaxAnswerChars int
}

// DefaultConfig returns the hardcoded fallback constants.
func DefaultConfig() Config {
	return Config{
		TopKLexical:    DefaultRecallK,
		TopKDense:      DefaultRecallK,
		RRFK:           DefaultRRFK,
		NeighborRadius: DefaultNeighborRadius,
		FinalK:         DefaultFinalK,
		RerankTopK:     DefaultRerankTopK,
		MinScore:       0,
		RerankEnabled:  false,
		MaxAnswerChars: DefaultMaxAnswerChars,
	}
}

// Pipeline runs one query through recall, fusion, neighbor expansion,
// filters, optional reranking and answering. Stages are strictly
// sequential; all per-query state lives in locals so concurrent queries
// never share mutable state.
type Pipeline struct {
	Lexical     LexicalSearcher
	Dense       DenseSearcher
	Chunks      ChunkSource
	Reranker    Reranker
	Synthesizer Synthesizer
	Config      Config
}

// countMissing reports how many ids are absent from the corpus order.
func countMissing(ids []string, order []string) int {
	known := make(map[string]struct{}, len(order))
	for _, id := range order {
		known[id] = struct{}{}
	}
	missing := 0
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			missing++
		}
	}
	return missing
}

// firstPositive returns v when it is set, else the fallback.
func firstPositive(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// resolve merges call-site overrides over config defaults over hardcoded
// constants into a fresh EffectiveParams.
func (p *Pipeline) resolve(req QueryRequest) EffectiveParams {
	cfg := p.Config
	def := DefaultConfig()

	eff := EffectiveParams{
		TopKLexical:    firstPositive(cfg.TopKLexical, def.TopKLexical),
		TopKDense:      firstPositive(cfg.TopKDense, def.TopKDense),
		RRFK:           firstPositive(cfg.RRFK, def.RRFK),
		NeighborRadius: cfg.NeighborRadius,
		FinalK:         firstPositive(cfg.FinalK, def.FinalK),
		RerankTopK:     firstPositive(cfg.RerankTopK, def.RerankTopK),
		MinScore:       cfg.MinScore,
		RerankEnabled:  cfg.RerankEnabled,
		MaxAnswerChars: firstPositive(cfg.MaxAnswerChars, def.MaxAnswerChars),
		Synthesize:     req.Synthesize,
	}
	if cfg.NeighborRadius < 0 {
		eff.NeighborRadius = def.NeighborRadius
	}

	if req.RecallK > 0 {
		eff.TopKLexical = req.RecallK
		eff.TopKDense = req.RecallK
	}
	if req.NeighborRadius != nil && *req.NeighborRadius >= 0 {
		eff.NeighborRadius = *req.NeighborRadius
	}
	if req.RerankTopK > 0 {
		eff.RerankTopK = req.RerankTopK
		// With no explicit final_k, rerank_topk doubles as the context count.
		eff.FinalK = req.RerankTopK
	}
	if req.FinalK > 0 {
		eff.FinalK = req.FinalK
	}
	if req.MinScore != nil {
		eff.MinScore = *req.MinScore
	}
	if req.DisableRerank {
		eff.RerankEnabled = false
	}
	if req.MaxAnswerChars > 0 {
		eff.MaxAnswerChars = req.MaxAnswerChars
	}
	return eff
}

// Query runs the full retrieval pipeline for one question.
func (p *Pipeline) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	logger := contextutil.LoggerFromContext(ctx)

	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is empty", ErrInvalidInput)
	}

	eff := p.resolve(req)
	trace := Trace{
		TimersMS:        make(map[string]int64),
		RerankerEnabled: eff.RerankEnabled,
	}
	t0 := time.Now()

	tLoad := time.Now()
	order, err := p.Chunks.OrderedIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunk order: %w", err)
	}
	trace.TimersMS["load_ms"] = time.Since(tLoad).Milliseconds()

	tRecall := time.Now()
	lexHits, err := p.Lexical.SearchLexical(ctx, question, eff.TopKLexical)
	if err != nil {
		return nil, fmt.Errorf("lexical recall failed: %w", err)
	}
	denseHits, err := p.Dense.SearchDense(ctx, question, eff.TopKDense)
	if err != nil {
		return nil, fmt.Errorf("dense recall failed: %w", err)
	}
	trace.TimersMS["recall_ms"] = time.Since(tRecall).Milliseconds()
	trace.LexicalIDs = hitIDList(lexHits)
	trace.DenseIDs = hitIDList(denseHits)

	tFuse := time.Now()
	fused := MergeRRF(lexHits, denseHits, eff.RRFK)
	trace.FusedIDs = hitIDList(fused)
	trace.TimersMS["fuse_ms"] = time.Since(tFuse).Milliseconds()

	tNeighbor := time.Now()
	ctxIDs := ExpandNeighbors(trace.FusedIDs, order, eff.NeighborRadius)
	trace.NeighborIDs = ctxIDs
	trace.TimersMS["neighbor_ms"] = time.Since(tNeighbor).Milliseconds()

	chunks, err := p.Chunks.GetByIDs(ctx, ctxIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}
	// Dropped context is fused IDs unknown to the corpus order plus
	// hydrated IDs the store no longer has. Both point at a stale index.
	trace.DroppedChunks = countMissing(trace.FusedIDs, order) + len(ctxIDs) - len(chunks)

	chunks = ApplyFilters(chunks, req.FileFilters, req.PageRange)
	trace.FilteredIDs = chunkIDList(chunks)

	if eff.RerankEnabled && p.Reranker != nil {
		tRerank := time.Now()
		reranked, scores := p.Reranker.Rerank(ctx, question, chunks, eff.RerankTopK)
		chunks = applyCutoff(reranked, scores, eff.MinScore, eff.FinalK)
		trace.TimersMS["rerank_ms"] = time.Since(tRerank).Milliseconds()
		n := eff.RerankTopK
		if n > len(reranked) {
			n = len(reranked)
		}
		trace.RerankedIDs = chunkIDList(reranked[:n])
	} else {
		trace.TimersMS["rerank_ms"] = 0
	}

	final := chunks
	if len(final) > eff.FinalK {
		final = final[:eff.FinalK]
	}
	trace.FinalIDs = chunkIDList(final)

	resp := &QueryResponse{Trace: trace, Effective: eff}

	tAnswer := time.Now()
	if eff.Synthesize && p.Synthesizer != nil {
		outcome, err := p.Synthesizer.Synthesize(ctx, question, final, avgDenseSimilarity(denseHits, final))
		if err != nil {
			return nil, fmt.Errorf("synthesis failed: %w", err)
		}
		resp.Answer = outcome.Answer
		resp.Abstained = outcome.Abstained
		resp.AbstainReason = outcome.Reason
		resp.Citations = outcome.Citations
	} else {
		answer, used := ExtractAnswer(question, final, ExtractOptions{
			MaxChars:        eff.MaxAnswerChars,
			JoinWith:        "\n\n",
			IncludeHeadings: true,
			Dehyphenate:     true,
		})
		resp.Answer = answer
		resp.Citations = citationsFor(used)
	}
	resp.Trace.TimersMS["answer_ms"] = time.Since(tAnswer).Milliseconds()
	resp.Trace.TimersMS["total_ms"] = time.Since(t0).Milliseconds()

	if req.ShowContexts {
		resp.Contexts = contextPreviews(final)
	}

	logger.Info("query completed",
		"question", question,
		"final_chunks", len(final),
		"dropped_chunks", trace.DroppedChunks,
		"total_ms", resp.Trace.TimersMS["total_ms"],
	)
	return resp, nil
}

// applyCutoff drops scored candidates below minScore. Unscored tail
// candidates pass through. A cutoff that removes everything falls back to
// the reranked list truncated to finalK so a non-empty candidate set never
// becomes empty context.
func applyCutoff(reranked []storage.ChunkRecord, scores map[string]float64, minScore float64, finalK int) []storage.ChunkRecord {
	if scores == nil || minScore <= 0 || len(reranked) == 0 {
		return reranked
	}

	kept := make([]storage.ChunkRecord, 0, len(reranked))
	for _, c := range reranked {
		if score, scored := scores[c.ID]; scored && score < minScore {
			continue
		}
		kept = append(kept, c)
	}
	if len(kept) > 0 {
		return kept
	}

	if finalK > 0 && len(reranked) > finalK {
		return reranked[:finalK]
	}
	return reranked
}

// avgDenseSimilarity averages the dense scores of the final chunks, the
// confidence prior blended into the abstention decision. Chunks that only
// arrived via lexical recall or neighbor expansion contribute nothing.
func avgDenseSimilarity(denseHits []Hit, final []storage.ChunkRecord) float64 {
	if len(final) == 0 {
		return 0
	}
	byID := make(map[string]float64, len(denseHits))
	for _, h := range denseHits {
		byID[h.ChunkID] = h.Score
	}

	sum := 0.0
	n := 0
	for _, c := range final {
		if score, ok := byID[c.ID]; ok {
			sum += score
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func citationsFor(used []storage.ChunkRecord) []Citation {
	citations := make([]Citation, 0, len(used))
	for _, c := range used {
		citations = append(citations, Citation{
			File:        c.FilePath,
			HeadingPath: c.HeadingPath,
			PageNo:      c.PageNo,
		})
	}
	return citations
}

func contextPreviews(final []storage.ChunkRecord) []ContextPreview {
	previews := make([]ContextPreview, 0, len(final))
	for _, c := range final {
		text := c.Text
		if len(text) > contextPreviewChars {
			text = text[:contextPreviewChars]
		}
		previews = append(previews, ContextPreview{
			ID:   c.ID,
			File: c.FilePath,
			Page: c.PageNo,
			Text: text,
		})
	}
	return previews
}

func hitIDList(hits []Hit) []string {
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ChunkID
	}
	return ids
}

func chunkIDList(chunks []storage.ChunkRecord) []string {
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	return ids
}
