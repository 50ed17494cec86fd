package rag

// Hit is a (chunk identifier, score) pair produced by a retrieval source.
// Hits are ephemeral per query and never persisted.
type Hit struct {
	ChunkID string  `json:"chunk_id"`
	Score   float64 `json:"score"`
}

// PageRange is an inclusive page filter.
type PageRange struct {
	Lo int `json:"lo"`
	Hi int `json:"hi"`
}

// QueryRequest represents a retrieval query with optional per-call overrides.
// Zero values mean "use the configured default"; pointer fields distinguish
// an explicit zero override from "unset".
type QueryRequest struct {
	// Question is the user's question.
	Question string `json:"question"`
	// FinalK overrides the number of chunks kept for answering.
	FinalK int `json:"final_k,omitempty"`
	// RerankTopK overrides how many candidates the reranker scores. When
	// FinalK is unset it also serves as the final context count.
	RerankTopK int `json:"rerank_topk,omitempty"`
	// RecallK overrides both the lexical and dense recall sizes symmetrically.
	RecallK int `json:"recall_k,omitempty"`
	// NeighborRadius overrides the neighbor expansion radius (0 is valid).
	NeighborRadius *int `json:"neighbor_radius,omitempty"`
	// MinScore overrides the rerank score cutoff (0 is valid and means no cutoff).
	MinScore *float64 `json:"min_score,omitempty"`
	// DisableRerank bypasses the reranker regardless of configuration.
	DisableRerank bool `json:"disable_rerank,omitempty"`
	// FileFilters keeps only chunks whose file path contains one of these
	// substrings (case-insensitive).
	FileFilters []string `json:"files,omitempty"`
	// PageRange keeps only chunks with a page number inside the range.
	PageRange *PageRange `json:"page_range,omitempty"`
	// ShowContexts includes truncated context previews in the response.
	ShowContexts bool `json:"show_contexts,omitempty"`
	// MaxAnswerChars overrides the extractive answer character budget.
	MaxAnswerChars int `json:"max_answer_chars,omitempty"`
	// Synthesize routes the final contexts through grounded LLM synthesis
	// instead of the extractive answerer.
	Synthesize bool `json:"synthesize,omitempty"`
}

// EffectiveParams is the fully resolved parameter set a query actually ran
// with, returned for reproducibility. It is built fresh per query; shared
// configuration is never mutated.
type EffectiveParams struct {
	TopKLexical    int     `json:"top_k_lexical"`
	TopKDense      int     `json:"top_k_dense"`
	RRFK           int     `json:"rrf_k"`
	NeighborRadius int     `json:"neighbor_radius"`
	FinalK         int     `json:"final_k"`
	RerankTopK     int     `json:"rerank_topk"`
	MinScore       float64 `json:"min_score"`
	RerankEnabled  bool    `json:"rerank_enabled"`
	MaxAnswerChars int     `json:"max_answer_chars"`
	Synthesize     bool    `json:"synthesize"`
}

// Trace records every intermediate ID list plus per-stage timing for one
// query. It is built fresh per query and returned to the caller.
type Trace struct {
	LexicalIDs      []string         `json:"lexical_ids"`
	DenseIDs        []string         `json:"dense_ids"`
	FusedIDs        []string         `json:"fused_ids"`
	NeighborIDs     []string         `json:"neighbor_ids"`
	FilteredIDs     []string         `json:"filtered_ids"`
	RerankedIDs     []string         `json:"reranked_ids"`
	FinalIDs        []string         `json:"final_ids"`
	DroppedChunks   int              `json:"dropped_chunks"`
	TimersMS        map[string]int64 `json:"timers_ms"`
	RerankerEnabled bool             `json:"reranker_enabled"`
}

// Citation points at the evidence behind an answer.
type Citation struct {
	File        string `json:"file"`
	HeadingPath string `json:"heading_path,omitempty"`
	PageNo      *int   `json:"page_no,omitempty"`
	Quote       string `json:"quote,omitempty"`
}

// ContextPreview is a truncated view of one final context chunk.
type ContextPreview struct {
	ID   string `json:"id"`
	File string `json:"file"`
	Page *int   `json:"page,omitempty"`
	Text string `json:"text"`
}

// QueryResponse is the result of one pipeline run. Abstention is a successful
// outcome, not an error: Abstained is set and Answer is empty.
type QueryResponse struct {
	Answer        string           `json:"answer"`
	Abstained     bool             `json:"abstained,omitempty"`
	AbstainReason string           `json:"abstain_reason,omitempty"`
	Citations     []Citation       `json:"citations"`
	Contexts      []ContextPreview `json:"contexts,omitempty"`
	Trace         Trace            `json:"trace"`
	Effective     EffectiveParams  `json:"effective"`
}
