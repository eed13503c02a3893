package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blueberrycongee/aicore/internal/batch"
	"github.com/blueberrycongee/aicore/internal/cachecore"
	"github.com/blueberrycongee/aicore/internal/coreauth"
	"github.com/blueberrycongee/aicore/internal/corecfg"
	"github.com/blueberrycongee/aicore/internal/coretypes"
	"github.com/blueberrycongee/aicore/internal/registry"
	"github.com/blueberrycongee/aicore/internal/resilience"
)

type stubGenerator struct {
	response string
}

func (s *stubGenerator) Generate(_ context.Context, _ string, _ float64, _ string) (string, error) {
	return s.response, nil
}

func newTestServer(t *testing.T) *server {
	t.Helper()
	cache, err := cachecore.New(cachecore.Config{MemoryCacheSize: 100, TextHashThreshold: 2000}, nil)
	require.NoError(t, err)

	orchestrator := resilience.NewOrchestrator(nil)
	processor, err := registry.NewTextProcessor(cache, orchestrator, &stubGenerator{response: "a concise summary"}, registry.DefaultLimits(), nil)
	require.NoError(t, err)

	authn, err := coreauth.New(func(string) (string, bool) { return "", false }, false, nil)
	require.NoError(t, err)

	return &server{
		processor:         processor,
		batch:             batch.New(processor, batch.DefaultConcurrencyLimit),
		cache:             cache,
		orchestrator:      orchestrator,
		auth:              authn,
		validationLimiter: corecfg.DefaultValidationLimiter(),
	}
}

func TestHandleProcessReturnsSuccessResult(t *testing.T) {
	srv := newTestServer(t)
	mux := http.NewServeMux()
	srv.routes(mux)

	body, _ := json.Marshal(coretypes.ProcessingRequest{
		Text:      "a long article about orchestration cores",
		Operation: coretypes.Summarize,
		TraceID:   "trace-1",
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/process", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp coretypes.ProcessingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "a concise summary", resp.Result.Str)
}

func TestHandleProcessRejectsMalformedBody(t *testing.T) {
	srv := newTestServer(t)
	mux := http.NewServeMux()
	srv.routes(mux)

	req := httptest.NewRequest(http.MethodPost, "/v1/process", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleBatchAggregatesPerItemResults(t *testing.T) {
	srv := newTestServer(t)
	mux := http.NewServeMux()
	srv.routes(mux)

	body, _ := json.Marshal(coretypes.BatchRequest{
		BatchID: "batch-1",
		Items: []coretypes.ProcessingRequest{
			{Text: "first article body text", Operation: coretypes.Summarize},
			{Text: "second article body text", Operation: coretypes.Summarize},
		},
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/batch", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp coretypes.BatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Total)
	assert.Equal(t, 2, resp.Completed)
}

func TestHandleOperationsListsRegisteredOperations(t *testing.T) {
	srv := newTestServer(t)
	mux := http.NewServeMux()
	srv.routes(mux)

	req := httptest.NewRequest(http.MethodGet, "/v1/operations", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Operations []registry.OperationInfo `json:"operations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Operations, len(coretypes.AllOperations))
}

func TestHandleHealthReportsOKWithNoOpenBreakers(t *testing.T) {
	srv := newTestServer(t)
	mux := http.NewServeMux()
	srv.routes(mux)

	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Empty(t, resp.Resilience.OpenBreakers)
}

func TestHandleAuthStatusReportsDevelopmentMode(t *testing.T) {
	srv := newTestServer(t)
	mux := http.NewServeMux()
	srv.routes(mux)

	req := httptest.NewRequest(http.MethodGet, "/v1/internal/auth/status", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var status coreauth.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.DevelopmentMode)
}

func TestHandlePresetDetailsReturnsDescriptor(t *testing.T) {
	srv := newTestServer(t)
	mux := http.NewServeMux()
	srv.routes(mux)

	req := httptest.NewRequest(http.MethodGet, "/v1/internal/config/presets/development", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["is_valid"])
}

func TestHandlePresetDetailsUnknownPresetIs404(t *testing.T) {
	srv := newTestServer(t)
	mux := http.NewServeMux()
	srv.routes(mux)

	req := httptest.NewRequest(http.MethodGet, "/v1/internal/config/presets/not-a-preset", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
