package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"localrag/internal/rag"
	"localrag/internal/storage"
)

type stubLexical struct {
	hits []rag.Hit
	err  error
}

func (s stubLexical) SearchLexical(_ context.Context, _ string, _ int) ([]rag.Hit, error) {
	return s.hits, s.err
}

type stubDense struct {
	hits []rag.Hit
	err  error
}

func (s stubDense) SearchDense(_ context.Context, _ string, _ int) ([]rag.Hit, error) {
	return s.hits, s.err
}

type stubChunks struct {
	records map[string]storage.ChunkRecord
	order   []string
}

func (s stubChunks) GetByIDs(_ context.Context, ids []string) ([]storage.ChunkRecord, error) {
	var out []storage.ChunkRecord
	for _, id := range ids {
		if rec, ok := s.records[id]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s stubChunks) OrderedIDs(_ context.Context) ([]string, error) {
	return s.order, nil
}

func testQueryPipeline() *rag.Pipeline {
	records := map[string]storage.ChunkRecord{
		"a": {ID: "a", FilePath: "docs/backup.md", Title: "Backups", Text: "Backups run nightly at two in the morning and rotate weekly."},
		"b": {ID: "b", FilePath: "docs/backup.md", Title: "Backups", Text: "Retention is thirty days for nightly backups in cold storage."},
	}
	return &rag.Pipeline{
		Lexical: stubLexical{hits: []rag.Hit{{ChunkID: "a", Score: 2.0}}},
		Dense:   stubDense{hits: []rag.Hit{{ChunkID: "b", Score: 0.8}}},
		Chunks:  stubChunks{records: records, order: []string{"a", "b"}},
		Config:  rag.DefaultConfig(),
	}
}

func TestQueryHandler_Success(t *testing.T) {
	handler := NewQueryHandler(testQueryPipeline())

	body := `{"question": "when do backups run?"}`
	req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(body))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp rag.QueryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Answer == "" {
		t.Error("expected a non-empty answer")
	}
	if len(resp.Trace.FinalIDs) == 0 {
		t.Error("expected final IDs in trace")
	}
	if resp.Effective.FinalK == 0 {
		t.Error("expected resolved effective params")
	}
}

func TestQueryHandler_PageRangeMapping(t *testing.T) {
	handler := NewQueryHandler(testQueryPipeline())

	body := `{"question": "backups", "page_start": 2, "page_end": 5}`
	req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(body))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	// The stub corpus has no page numbers, so a page filter removes
	// everything; the pipeline still answers (with an empty answer) rather
	// than failing.
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp rag.QueryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Trace.FilteredIDs) != 0 {
		t.Errorf("filtered IDs = %v, want none", resp.Trace.FilteredIDs)
	}
}

func TestQueryHandler_HalfOpenPageRange(t *testing.T) {
	handler := NewQueryHandler(testQueryPipeline())

	body := `{"question": "backups", "page_start": 2}`
	req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(body))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestQueryHandler_EmptyQuestion(t *testing.T) {
	handler := NewQueryHandler(testQueryPipeline())

	req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(`{"question": ""}`))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestQueryHandler_InvalidBody(t *testing.T) {
	handler := NewQueryHandler(testQueryPipeline())

	req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestQueryHandler_MethodNotAllowed(t *testing.T) {
	handler := NewQueryHandler(testQueryPipeline())

	req := httptest.NewRequest(http.MethodGet, "/api/query", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestQueryHandler_VectorStoreError(t *testing.T) {
	pipeline := testQueryPipeline()
	pipeline.Dense = stubDense{err: errors.New("qdrant: connection refused")}
	handler := NewQueryHandler(pipeline)

	req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(`{"question": "backups"}`))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}
