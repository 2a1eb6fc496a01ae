package handlers

import (
	"net/http"
	"time"

	"github.com/fieldsync/agent/internal/models"
	"github.com/fieldsync/agent/internal/repository"
	"github.com/fieldsync/agent/internal/services"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	recordRepo repository.RecordRepo
	network    *services.NetworkMonitor
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(recordRepo repository.RecordRepo, network *services.NetworkMonitor) *HealthHandler {
	return &HealthHandler{
		recordRepo: recordRepo,
		network:    network,
	}
}

// HealthCheck returns the agent status with connectivity and sync counters.
// A failing store reports "degraded" but still answers 200.
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := models.HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Network:   h.network.Status(),
	}

	stats, err := h.recordRepo.GetStats(r.Context())
	if err != nil {
		response.Status = "degraded"
	} else {
		response.Stats = stats
	}

	respondJSON(w, http.StatusOK, response)
}
