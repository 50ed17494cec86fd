package handlers

import (
	"net/http"

	"localrag/internal/contextutil"
	"localrag/internal/indexer"
)

// IngestHandler handles HTTP requests that run the indexer over the
// configured docs directory.
type IngestHandler struct {
	pipeline   *indexer.Pipeline
	exportPath string
}

// NewIngestHandler creates a new IngestHandler. When exportPath is non-empty
// the chunks.jsonl interchange file is rewritten after each successful run.
func NewIngestHandler(pipeline *indexer.Pipeline, exportPath string) *IngestHandler {
	return &IngestHandler{pipeline: pipeline, exportPath: exportPath}
}

// IngestResponse represents the HTTP response payload for an ingest run.
type IngestResponse struct {
	Summary indexer.IngestSummary `json:"summary"`
	// Partial is set when some files failed; the summary still reflects
	// everything that was indexed.
	Partial bool   `json:"partial,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ServeHTTP runs a full ingest pass.
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	summary, err := h.pipeline.IndexAll(ctx)
	if err != nil && summary == nil {
		logger.ErrorContext(ctx, "ingest failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to run ingest")
		return
	}

	resp := IngestResponse{Summary: *summary}
	if err != nil {
		resp.Partial = true
		resp.Error = err.Error()
	}

	if h.exportPath != "" && summary.FilesIndexed > 0 {
		if exportErr := h.pipeline.ExportChunks(ctx, h.exportPath); exportErr != nil {
			logger.WarnContext(ctx, "failed to export chunks", "error", exportErr, "path", h.exportPath)
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
