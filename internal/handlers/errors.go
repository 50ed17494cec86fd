package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"localrag/internal/contextutil"
	"localrag/internal/rag"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, ErrorResponse{Error: message})
}

// handlePipelineError maps retrieval pipeline errors to HTTP status codes.
func handlePipelineError(w http.ResponseWriter, ctx context.Context, err error, defaultMsg string) {
	logger := contextutil.LoggerFromContext(ctx)
	logger.ErrorContext(ctx, "pipeline error", "error", err)

	if errors.Is(err, rag.ErrInvalidInput) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if errors.Is(err, rag.ErrExternalService) {
		writeError(w, http.StatusBadGateway, "External service error")
		return
	}

	errMsg := strings.ToLower(err.Error())
	if strings.Contains(errMsg, "vector store") ||
		strings.Contains(errMsg, "qdrant") ||
		strings.Contains(errMsg, "dense search") {
		writeError(w, http.StatusServiceUnavailable, "Vector store unavailable")
		return
	}
	if strings.Contains(errMsg, "embed") || strings.Contains(errMsg, "llm") {
		writeError(w, http.StatusBadGateway, "External service error")
		return
	}

	writeError(w, http.StatusInternalServerError, defaultMsg)
}
