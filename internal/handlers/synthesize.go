package handlers

import (
	"encoding/json"
	"net/http"

	"localrag/internal/contextutil"
	"localrag/internal/storage"
	"localrag/internal/synthesis"
)

// SynthesizeHandler handles HTTP requests for direct grounded synthesis over
// caller-provided chunks, bypassing retrieval.
type SynthesizeHandler struct {
	synthesizer *synthesis.Synthesizer
}

// NewSynthesizeHandler creates a new SynthesizeHandler.
func NewSynthesizeHandler(synthesizer *synthesis.Synthesizer) *SynthesizeHandler {
	return &SynthesizeHandler{synthesizer: synthesizer}
}

// SynthesizeChunk is one caller-provided context chunk.
type SynthesizeChunk struct {
	ID          string `json:"id,omitempty"`
	Title       string `json:"title,omitempty"`
	FilePath    string `json:"file_path"`
	HeadingPath string `json:"heading_path,omitempty"`
	PageNo      *int   `json:"page_no,omitempty"`
	Text        string `json:"text"`
}

// SynthesizeRequest represents the HTTP request payload for direct synthesis.
type SynthesizeRequest struct {
	Question string            `json:"question"`
	Chunks   []SynthesizeChunk `json:"chunks"`
	// AvgSimilarity feeds the abstention gate. Callers that have no
	// retrieval scores should omit it; it defaults to 1 so the gate
	// depends on citation coverage alone.
	AvgSimilarity *float64 `json:"avg_similarity,omitempty"`
}

// SynthesizeResponse represents the HTTP response payload for direct synthesis.
type SynthesizeResponse struct {
	Abstain        bool                   `json:"abstain"`
	Why            string                 `json:"why,omitempty"`
	AnswerMarkdown string                 `json:"answer_markdown,omitempty"`
	Citations      []synthesis.Citation   `json:"citations,omitempty"`
	Snippets       []synthesis.PackedItem `json:"snippets,omitempty"`
}

// ServeHTTP synthesizes a grounded answer from the provided chunks.
func (h *SynthesizeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req SynthesizeRequest
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

	records := make([]storage.ChunkRecord, len(req.Chunks))
	for i, chunk := range req.Chunks {
		records[i] = storage.ChunkRecord{
			ID:          chunk.ID,
			Title:       chunk.Title,
			FilePath:    chunk.FilePath,
			HeadingPath: chunk.HeadingPath,
			PageNo:      chunk.PageNo,
			Text:        chunk.Text,
		}
	}

	avgSim := 1.0
	if req.AvgSimilarity != nil {
		avgSim = *req.AvgSimilarity
	}

	result, err := h.synthesizer.SynthesizeAnswer(ctx, req.Question, records, avgSim)
	if err != nil {
		handlePipelineError(w, ctx, err, "Failed to synthesize answer")
		return
	}

	writeJSON(w, http.StatusOK, SynthesizeResponse{
		Abstain:        result.Abstain,
		Why:            result.Why,
		AnswerMarkdown: result.AnswerMarkdown,
		Citations:      result.Citations,
		Snippets:       result.Snippets,
	})
}
