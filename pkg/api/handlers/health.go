package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/marmos91/stowd/pkg/store"
)

// HealthHandler handles health check endpoints.
//
// Health endpoints are unauthenticated and provide:
//   - Liveness probe: Is the server process running?
//   - Readiness probe: Can the file store serve requests?
type HealthHandler struct {
	store store.Store
}

// NewHealthHandler creates a new health handler. A nil store makes the
// readiness probe fail.
func NewHealthHandler(st store.Store) *HealthHandler {
	return &HealthHandler{store: st}
}

// Liveness handles GET /health. It succeeds as long as the HTTP server is
// responsive.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthyResponse(map[string]string{
		"service": "stowd",
	}))
}

// StoreHealth is the readiness payload.
type StoreHealth struct {
	Type    string `json:"type"`
	Latency string `json:"latency"`
}

// Readiness handles GET /health/ready. It runs the store health check and
// answers 503 when it fails.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("store not initialized"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	start := time.Now()
	if err := h.store.HealthCheck(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse(err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, healthyResponse(StoreHealth{
		Type:    storeType(h.store),
		Latency: time.Since(start).String(),
	}))
}

func storeType(st store.Store) string {
	if typed, ok := st.(interface{ Type() string }); ok {
		return typed.Type()
	}
	return "unknown"
}
