package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/eshaffer321/ledgerbook/internal/api/dto"
)

// HealthHandler handles health check requests.
type HealthHandler struct {
	probe func(ctx context.Context) error
}

// NewHealthHandler creates a new health handler. probe, when set, is run on
// every request and a failure reports 503.
func NewHealthHandler(probe func(ctx context.Context) error) *HealthHandler {
	return &HealthHandler{probe: probe}
}

// ServeHTTP handles the health check request.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	response := dto.NewHealthResponse()
	status := http.StatusOK
	if h.probe != nil {
		if err := h.probe(r.Context()); err != nil {
			response.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(response)
}
