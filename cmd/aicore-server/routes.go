package main

import (
	"encoding/json"
	"net"
	"net/http"

	"github.com/blueberrycongee/aicore/internal/batch"
	"github.com/blueberrycongee/aicore/internal/cachecore"
	"github.com/blueberrycongee/aicore/internal/coreauth"
	"github.com/blueberrycongee/aicore/internal/corecfg"
	"github.com/blueberrycongee/aicore/internal/coretypes"
	"github.com/blueberrycongee/aicore/internal/observability"
	"github.com/blueberrycongee/aicore/internal/registry"
	"github.com/blueberrycongee/aicore/internal/resilience"
	coreerrors "github.com/blueberrycongee/aicore/pkg/errors"
	"github.com/google/uuid"
)

// server bundles the request-path collaborators the HTTP handlers close
// over. It owns no lifecycle of its own; the composition root in main.go
// builds one and wires it into a mux.
type server struct {
	processor         *registry.TextProcessor
	batch             *batch.Executor
	cache             *cachecore.Facade
	orchestrator      *resilience.Orchestrator
	auth              *coreauth.Authenticator
	validationLimiter *corecfg.ValidationLimiter
	trustedProxies    []*net.IPNet
	logger            *observability.Logger
}

func (s *server) routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/process", s.handleProcess)
	mux.HandleFunc("POST /v1/batch", s.handleBatch)
	mux.HandleFunc("GET /v1/operations", s.handleOperations)
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.HandleFunc("GET /v1/internal/auth/status", s.handleAuthStatus)
	mux.HandleFunc("GET /v1/internal/config/presets/{name}", s.handlePresetDetails)
}

func (s *server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req coretypes.ProcessingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_error", "malformed request body")
		return
	}

	resp, err := s.processor.Process(r.Context(), req)
	if err != nil {
		writeLLMError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req coretypes.BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_error", "malformed request body")
		return
	}

	if req.BatchID == "" {
		req.BatchID = uuid.New().String()
	}

	resp := s.batch.ProcessBatch(r.Context(), req)
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleOperations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"operations": registry.Catalog()})
}

type healthCacheStatus struct {
	L1Size   int  `json:"l1_size"`
	RemoteOK bool `json:"remote_ok"`
}

type healthResilienceStatus struct {
	OpenBreakers []string `json:"open_breakers"`
}

type healthResponse struct {
	Status     string                 `json:"status"`
	Cache      healthCacheStatus      `json:"cache"`
	Resilience healthResilienceStatus `json:"resilience"`
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	openBreakers := s.orchestrator.OpenBreakers()
	status := "ok"
	if len(openBreakers) > 0 {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status: status,
		Cache: healthCacheStatus{
			L1Size:   s.cache.L1Len(),
			RemoteOK: s.cache.RemoteHealthy(),
		},
		Resilience: healthResilienceStatus{OpenBreakers: openBreakers},
	})
}

func (s *server) handleAuthStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.auth.StatusReport())
}

// handlePresetDetails implements the rate-limited configuration-validation
// endpoint spec §4.1 requires: callers are keyed by client IP (via the
// trusted-proxy-aware resolver) and capped by corecfg.ValidationLimiter
// before the preset descriptor is ever computed.
func (s *server) handlePresetDetails(w http.ResponseWriter, r *http.Request) {
	clientID := coreauth.ClientIP(r, s.trustedProxies)
	result := s.validationLimiter.CheckRateLimit(clientID)
	if !result.IsValid {
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"is_valid":   false,
			"suggestion": result.Suggestion,
		})
		return
	}

	name := r.PathValue("name")
	details, err := corecfg.GetPresetDetails(name)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"is_valid": true,
		"preset":   details,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{"type": errType, "message": message},
	})
}

// writeLLMError renders a *coreerrors.LLMError with its own status code and
// type; any other error is treated as an unclassified internal failure.
func writeLLMError(w http.ResponseWriter, err error) {
	if le, ok := err.(*coreerrors.LLMError); ok {
		writeError(w, le.HTTPStatusCode(), le.Type, le.Message)
		return
	}
	writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
}
