package rag

import (
	"context"
	"errors"
	"math"
	"testing"

	"localrag/internal/storage"
)

type stubLexical struct {
	hits []Hit
	err  error
}

func (s stubLexical) SearchLexical(context.Context, string, int) ([]Hit, error) {
	return s.hits, s.err
}

type stubDense struct {
	hits []Hit
	err  error
}

func (s stubDense) SearchDense(context.Context, string, int) ([]Hit, error) {
	return s.hits, s.err
}

type stubChunks struct {
	order   []string
	records map[string]storage.ChunkRecord
}

func (s stubChunks) GetByIDs(_ context.Context, ids []string) ([]storage.ChunkRecord, error) {
	out := make([]storage.ChunkRecord, 0, len(ids))
	for _, id := range ids {
		if rec, ok := s.records[id]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s stubChunks) OrderedIDs(context.Context) ([]string, error) {
	return s.order, nil
}

type stubReranker struct {
	scores map[string]float64
}

func (s stubReranker) Rerank(_ context.Context, _ string, candidates []storage.ChunkRecord, _ int) ([]storage.ChunkRecord, map[string]float64) {
	return candidates, s.scores
}

type stubSynthesizer struct {
	gotAvg   float64
	gotCount int
	outcome  SynthesisOutcome
	err      error
}

func (s *stubSynthesizer) Synthesize(_ context.Context, _ string, contexts []storage.ChunkRecord, avgSimilarity float64) (SynthesisOutcome, error) {
	s.gotAvg = avgSimilarity
	s.gotCount = len(contexts)
	return s.outcome, s.err
}

func corpusABCD() stubChunks {
	records := make(map[string]storage.ChunkRecord)
	for _, id := range []string{"A", "B", "C", "D"} {
		records[id] = storage.ChunkRecord{ID: id, FilePath: "docs/guide.md", Text: "chunk " + id + " text."}
	}
	return stubChunks{order: []string{"A", "B", "C", "D"}, records: records}
}

func newTestPipeline(lex, dense []Hit) *Pipeline {
	return &Pipeline{
		Lexical: stubLexical{hits: lex},
		Dense:   stubDense{hits: dense},
		Chunks:  corpusABCD(),
		Config:  DefaultConfig(),
	}
}

func TestQuery_EndToEndFusionAndExpansion(t *testing.T) {
	p := newTestPipeline(
		[]Hit{{ChunkID: "B", Score: 5}, {ChunkID: "D", Score: 3}},
		[]Hit{{ChunkID: "B", Score: 0.9}, {ChunkID: "C", Score: 0.8}},
	)

	resp, err := p.Query(context.Background(), QueryRequest{Question: "what is in chunk B"})
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}

	if resp.Trace.FusedIDs[0] != "B" {
		t.Errorf("fused[0] = %s, want B (present in both sources)", resp.Trace.FusedIDs[0])
	}
	wantNeighbors := []string{"A", "B", "C", "D"}
	if len(resp.Trace.NeighborIDs) != len(wantNeighbors) {
		t.Fatalf("neighbor_ids = %v, want %v", resp.Trace.NeighborIDs, wantNeighbors)
	}
	for i, id := range wantNeighbors {
		if resp.Trace.NeighborIDs[i] != id {
			t.Errorf("neighbor_ids[%d] = %s, want %s", i, resp.Trace.NeighborIDs[i], id)
		}
	}
	if len(resp.Trace.FinalIDs) != 4 {
		t.Errorf("final_ids = %v, want all four chunks", resp.Trace.FinalIDs)
	}
	if resp.Answer == "" {
		t.Error("expected an extractive answer")
	}
	if len(resp.Citations) == 0 {
		t.Error("expected citations")
	}
	for _, key := range []string{"load_ms", "recall_ms", "fuse_ms", "neighbor_ms", "rerank_ms", "answer_ms", "total_ms"} {
		if _, ok := resp.Trace.TimersMS[key]; !ok {
			t.Errorf("missing timer %s", key)
		}
	}
}

func TestQuery_EmptyQuestion(t *testing.T) {
	p := newTestPipeline(nil, nil)
	_, err := p.Query(context.Background(), QueryRequest{Question: "   "})
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestQuery_RecallFailurePropagates(t *testing.T) {
	p := newTestPipeline(nil, nil)
	p.Lexical = stubLexical{err: errors.New("index gone")}
	if _, err := p.Query(context.Background(), QueryRequest{Question: "q"}); err == nil {
		t.Error("expected lexical recall error to propagate")
	}
}

func TestQuery_OverridePrecedence(t *testing.T) {
	hits := []Hit{{ChunkID: "A"}, {ChunkID: "B"}, {ChunkID: "C"}, {ChunkID: "D"}}
	radius := 0

	tests := []struct {
		name       string
		req        QueryRequest
		wantFinalK int
	}{
		{
			name:       "config default",
			req:        QueryRequest{Question: "q", NeighborRadius: &radius},
			wantFinalK: DefaultFinalK,
		},
		{
			name:       "rerank_topk doubles as final_k",
			req:        QueryRequest{Question: "q", NeighborRadius: &radius, RerankTopK: 2},
			wantFinalK: 2,
		},
		{
			name:       "final_k beats rerank_topk",
			req:        QueryRequest{Question: "q", NeighborRadius: &radius, RerankTopK: 2, FinalK: 3},
			wantFinalK: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPipeline(hits, nil)
			resp, err := p.Query(context.Background(), tt.req)
			if err != nil {
				t.Fatalf("Query() error: %v", err)
			}
			if resp.Effective.FinalK != tt.wantFinalK {
				t.Errorf("effective final_k = %d, want %d", resp.Effective.FinalK, tt.wantFinalK)
			}
			wantLen := tt.wantFinalK
			if wantLen > len(hits) {
				wantLen = len(hits)
			}
			if len(resp.Trace.FinalIDs) != wantLen {
				t.Errorf("final_ids = %v, want %d entries", resp.Trace.FinalIDs, wantLen)
			}
		})
	}
}

func TestResolve_ZeroConfigFallsBackToDefaults(t *testing.T) {
	p := &Pipeline{}
	eff := p.resolve(QueryRequest{})
	def := DefaultConfig()

	if eff.TopKLexical != def.TopKLexical || eff.TopKDense != def.TopKDense {
		t.Errorf("recall k = %d/%d, want %d/%d", eff.TopKLexical, eff.TopKDense, def.TopKLexical, def.TopKDense)
	}
	if eff.RRFK != def.RRFK {
		t.Errorf("rrf k = %d, want %d", eff.RRFK, def.RRFK)
	}
	if eff.FinalK != def.FinalK {
		t.Errorf("final_k = %d, want %d", eff.FinalK, def.FinalK)
	}
	if eff.RerankTopK != def.RerankTopK {
		t.Errorf("rerank_topk = %d, want %d", eff.RerankTopK, def.RerankTopK)
	}
	if eff.MaxAnswerChars != def.MaxAnswerChars {
		t.Errorf("max_answer_chars = %d, want %d", eff.MaxAnswerChars, def.MaxAnswerChars)
	}

	p.Config = Config{FinalK: 5}
	if got := p.resolve(QueryRequest{}).FinalK; got != 5 {
		t.Errorf("configured final_k = %d, want 5", got)
	}
}

func TestQuery_OverridesDoNotMutateConfig(t *testing.T) {
	p := newTestPipeline([]Hit{{ChunkID: "A"}}, nil)
	before := p.Config

	_, err := p.Query(context.Background(), QueryRequest{Question: "q", FinalK: 1, RecallK: 2})
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if p.Config != before {
		t.Errorf("config mutated by per-request overrides: %+v", p.Config)
	}
}

func TestQuery_CutoffSafeFallback(t *testing.T) {
	hits := []Hit{{ChunkID: "A"}, {ChunkID: "B"}}
	radius := 0
	minScore := 0.5

	p := newTestPipeline(hits, nil)
	p.Config.RerankEnabled = true
	// Every score fails the cutoff.
	p.Reranker = stubReranker{scores: map[string]float64{"A": 0.1, "B": 0.2}}

	resp, err := p.Query(context.Background(), QueryRequest{
		Question:       "q",
		NeighborRadius: &radius,
		MinScore:       &minScore,
	})
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if len(resp.Trace.FinalIDs) == 0 {
		t.Error("cutoff produced empty context despite non-empty candidates")
	}
}

func TestQuery_CutoffKeepsScoredAboveThreshold(t *testing.T) {
	hits := []Hit{{ChunkID: "A"}, {ChunkID: "B"}, {ChunkID: "C"}}
	radius := 0
	minScore := 0.5

	p := newTestPipeline(hits, nil)
	p.Config.RerankEnabled = true
	p.Reranker = stubReranker{scores: map[string]float64{"A": 0.9, "B": 0.1, "C": 0.8}}

	resp, err := p.Query(context.Background(), QueryRequest{
		Question:       "q",
		NeighborRadius: &radius,
		MinScore:       &minScore,
	})
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	want := []string{"A", "C"}
	if len(resp.Trace.FinalIDs) != len(want) {
		t.Fatalf("final_ids = %v, want %v", resp.Trace.FinalIDs, want)
	}
	for i, id := range want {
		if resp.Trace.FinalIDs[i] != id {
			t.Errorf("final_ids[%d] = %s, want %s", i, resp.Trace.FinalIDs[i], id)
		}
	}
}

func TestQuery_DisableRerankBypasses(t *testing.T) {
	hits := []Hit{{ChunkID: "A"}, {ChunkID: "B"}}
	radius := 0

	p := newTestPipeline(hits, nil)
	p.Config.RerankEnabled = true
	p.Reranker = stubReranker{scores: map[string]float64{"A": 0.0, "B": 1.0}}

	resp, err := p.Query(context.Background(), QueryRequest{
		Question:       "q",
		NeighborRadius: &radius,
		DisableRerank:  true,
	})
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if resp.Trace.RerankerEnabled {
		t.Error("trace claims reranker ran")
	}
	if len(resp.Trace.RerankedIDs) != 0 {
		t.Errorf("reranked_ids = %v, want empty", resp.Trace.RerankedIDs)
	}
}

func TestQuery_FileFilterNarrowsAndNeverFails(t *testing.T) {
	radius := 0
	p := newTestPipeline([]Hit{{ChunkID: "A"}, {ChunkID: "B"}}, nil)

	resp, err := p.Query(context.Background(), QueryRequest{
		Question:       "q",
		NeighborRadius: &radius,
		FileFilters:    []string{"no-such-file"},
	})
	if err != nil {
		t.Fatalf("filter that eliminates everything must not fail: %v", err)
	}
	if len(resp.Trace.FilteredIDs) != 0 || len(resp.Trace.FinalIDs) != 0 {
		t.Errorf("expected empty filtered set, got %v", resp.Trace.FilteredIDs)
	}
}

func TestQuery_DroppedChunksCounted(t *testing.T) {
	radius := 0
	chunks := corpusABCD()
	delete(chunks.records, "B")

	p := newTestPipeline([]Hit{{ChunkID: "A"}, {ChunkID: "B"}}, nil)
	p.Chunks = chunks

	resp, err := p.Query(context.Background(), QueryRequest{Question: "q", NeighborRadius: &radius})
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if resp.Trace.DroppedChunks != 1 {
		t.Errorf("dropped_chunks = %d, want 1", resp.Trace.DroppedChunks)
	}
}

func TestQuery_DroppedChunksIncludeUnknownFusedIDs(t *testing.T) {
	radius := 0

	// "Z" was recalled but is gone from the corpus order, so neighbor
	// expansion skips it before hydration ever sees it.
	p := newTestPipeline([]Hit{{ChunkID: "A"}, {ChunkID: "Z"}}, nil)

	resp, err := p.Query(context.Background(), QueryRequest{Question: "q", NeighborRadius: &radius})
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if resp.Trace.DroppedChunks != 1 {
		t.Errorf("dropped_chunks = %d, want 1", resp.Trace.DroppedChunks)
	}
	if len(resp.Trace.FinalIDs) != 1 || resp.Trace.FinalIDs[0] != "A" {
		t.Errorf("final_ids = %v, want [A]", resp.Trace.FinalIDs)
	}
}

func TestQuery_SynthesisRoute(t *testing.T) {
	radius := 0
	synth := &stubSynthesizer{outcome: SynthesisOutcome{
		Answer:    "grounded answer [C1]",
		Citations: []Citation{{File: "docs/guide.md", Quote: "chunk A text."}},
	}}

	p := newTestPipeline(
		[]Hit{{ChunkID: "A"}, {ChunkID: "B"}},
		[]Hit{{ChunkID: "A", Score: 0.8}, {ChunkID: "B", Score: 0.6}},
	)
	p.Synthesizer = synth

	resp, err := p.Query(context.Background(), QueryRequest{
		Question:       "q",
		NeighborRadius: &radius,
		Synthesize:     true,
	})
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if resp.Answer != "grounded answer [C1]" {
		t.Errorf("answer = %q", resp.Answer)
	}
	if synth.gotCount != 2 {
		t.Errorf("synthesizer saw %d contexts, want 2", synth.gotCount)
	}
	if math.Abs(synth.gotAvg-0.7) > 1e-9 {
		t.Errorf("avg similarity = %v, want 0.7", synth.gotAvg)
	}
}

func TestQuery_SynthesisAbstention(t *testing.T) {
	radius := 0
	synth := &stubSynthesizer{outcome: SynthesisOutcome{
		Abstained: true,
		Reason:    "low blended confidence",
	}}

	p := newTestPipeline([]Hit{{ChunkID: "A"}}, nil)
	p.Synthesizer = synth

	resp, err := p.Query(context.Background(), QueryRequest{
		Question:       "q",
		NeighborRadius: &radius,
		Synthesize:     true,
	})
	if err != nil {
		t.Fatalf("abstention must not be an error: %v", err)
	}
	if !resp.Abstained || resp.AbstainReason == "" {
		t.Errorf("expected abstention outcome, got %+v", resp)
	}
	if resp.Answer != "" {
		t.Errorf("abstained response carries an answer: %q", resp.Answer)
	}
}

func TestQuery_SynthesisFailurePropagates(t *testing.T) {
	radius := 0
	p := newTestPipeline([]Hit{{ChunkID: "A"}}, nil)
	p.Synthesizer = &stubSynthesizer{err: errors.New("backend unreachable")}

	_, err := p.Query(context.Background(), QueryRequest{
		Question:       "q",
		NeighborRadius: &radius,
		Synthesize:     true,
	})
	if err == nil {
		t.Error("expected synthesis failure to propagate")
	}
}

func TestQuery_ShowContextsTruncatesPreviews(t *testing.T) {
	radius := 0
	chunks := corpusABCD()
	rec := chunks.records["A"]
	rec.Text = longText(2000)
	chunks.records["A"] = rec

	p := newTestPipeline([]Hit{{ChunkID: "A"}}, nil)
	p.Chunks = chunks

	resp, err := p.Query(context.Background(), QueryRequest{
		Question:       "q",
		NeighborRadius: &radius,
		ShowContexts:   true,
	})
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if len(resp.Contexts) != 1 {
		t.Fatalf("contexts = %d, want 1", len(resp.Contexts))
	}
	if len(resp.Contexts[0].Text) != contextPreviewChars {
		t.Errorf("preview length = %d, want %d", len(resp.Contexts[0].Text), contextPreviewChars)
	}
}

func TestAvgDenseSimilarity(t *testing.T) {
	final := []storage.ChunkRecord{{ID: "A"}, {ID: "B"}, {ID: "X"}}
	hits := []Hit{{ChunkID: "A", Score: 1.0}, {ChunkID: "B", Score: 0.5}, {ChunkID: "Z", Score: 0.1}}

	got := avgDenseSimilarity(hits, final)
	if math.Abs(got-0.75) > 1e-9 {
		t.Errorf("avgDenseSimilarity = %v, want 0.75", got)
	}

	if got := avgDenseSimilarity(nil, final); got != 0 {
		t.Errorf("no dense hits should average to 0, got %v", got)
	}
	if got := avgDenseSimilarity(hits, nil); got != 0 {
		t.Errorf("empty final set should average to 0, got %v", got)
	}
}

func longText(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = 'x'
	}
	return string(b)
}
