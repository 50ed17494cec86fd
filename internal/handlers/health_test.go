package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/mock/gomock"

	"localrag/internal/storage"
	vsmocks "localrag/internal/vectorstore/mocks"
)

func healthTestHandler(t *testing.T, ctrl *gomock.Controller) (*HealthHandler, *vsmocks.MockVectorStore) {
	t.Helper()
	db, err := storage.New(t.TempDir() + "/health.db")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	vectors := vsmocks.NewMockVectorStore(ctrl)
	return NewHealthHandler(db, vectors, "chunks"), vectors
}

func TestHealthHandler_Healthy(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	handler, vectors := healthTestHandler(t, ctrl)
	vectors.EXPECT().CollectionExists(gomock.Any(), "chunks").Return(true, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "healthy" || resp.Checks["vector_store"] != "ok" || resp.Checks["index_db"] != "ok" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestHealthHandler_VectorStoreDown(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	handler, vectors := healthTestHandler(t, ctrl)
	vectors.EXPECT().CollectionExists(gomock.Any(), "chunks").Return(false, errors.New("connection refused"))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "unhealthy" || len(resp.Issues) == 0 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestHealthHandler_MethodNotAllowed(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	handler, _ := healthTestHandler(t, ctrl)

	req := httptest.NewRequest(http.MethodPost, "/healthz", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}
