package handlers

import (
	"encoding/json"
	"net/http"

	"localrag/internal/contextutil"
	"localrag/internal/rag"
)

// QueryHandler handles HTTP requests for retrieval queries.
type QueryHandler struct {
	pipeline *rag.Pipeline
}

// NewQueryHandler creates a new QueryHandler.
func NewQueryHandler(pipeline *rag.Pipeline) *QueryHandler {
	return &QueryHandler{pipeline: pipeline}
}

// QueryRequest represents the HTTP request payload for retrieval queries.
// This mirrors rag.QueryRequest but is defined here for HTTP layer
// separation; the page filter is flattened into page_start/page_end.
type QueryRequest struct {
	Question       string   `json:"question"`
	FinalK         int      `json:"final_k,omitempty"`
	RerankTopK     int      `json:"rerank_topk,omitempty"`
	RecallK        int      `json:"recall_k,omitempty"`
	NeighborRadius *int     `json:"neighbor_radius,omitempty"`
	MinScore       *float64 `json:"min_score,omitempty"`
	DisableRerank  bool     `json:"disable_rerank,omitempty"`
	Files          []string `json:"files,omitempty"`
	PageStart      *int     `json:"page_start,omitempty"`
	PageEnd        *int     `json:"page_end,omitempty"`
	ShowContexts   bool     `json:"show_contexts,omitempty"`
	MaxAnswerChars int      `json:"max_answer_chars,omitempty"`
	Synthesize     bool     `json:"synthesize,omitempty"`
}

// ServeHTTP runs the retrieval pipeline for one question.
func (h *QueryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Question == "" {
		logger.WarnContext(ctx, "empty question in request")
		writeError(w, http.StatusBadRequest, "Question is required")
		return
	}
	if (req.PageStart == nil) != (req.PageEnd == nil) {
		writeError(w, http.StatusBadRequest, "page_start and page_end must be set together")
		return
	}

	ragReq := rag.QueryRequest{
		Question:       req.Question,
		FinalK:         req.FinalK,
		RerankTopK:     req.RerankTopK,
		RecallK:        req.RecallK,
		NeighborRadius: req.NeighborRadius,
		MinScore:       req.MinScore,
		DisableRerank:  req.DisableRerank,
		FileFilters:    req.Files,
		ShowContexts:   req.ShowContexts,
		MaxAnswerChars: req.MaxAnswerChars,
		Synthesize:     req.Synthesize,
	}
	if req.PageStart != nil && req.PageEnd != nil {
		ragReq.PageRange = &rag.PageRange{Lo: *req.PageStart, Hi: *req.PageEnd}
	}

	resp, err := h.pipeline.Query(ctx, ragReq)
	if err != nil {
		handlePipelineError(w, ctx, err, "Failed to process query")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
