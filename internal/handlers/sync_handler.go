package handlers

import (
	"net/http"

	"github.com/fieldsync/agent/internal/models"
	"github.com/fieldsync/agent/internal/repository"
	"github.com/fieldsync/agent/internal/services"
)

// SyncHandler handles sync and connectivity endpoints
type SyncHandler struct {
	recordRepo repository.RecordRepo
	engine     *services.SyncEngine
	network    *services.NetworkMonitor
}

// NewSyncHandler creates a new SyncHandler
func NewSyncHandler(
	recordRepo repository.RecordRepo,
	engine *services.SyncEngine,
	network *services.NetworkMonitor,
) *SyncHandler {
	return &SyncHandler{
		recordRepo: recordRepo,
		engine:     engine,
		network:    network,
	}
}

// ForceSync runs a sync pass now
// @Summary Force a sync pass
// @Description Pushes pending records to the remote target. Answers 503 when the device is offline.
// @Tags sync
// @Produce json
// @Success 200 {object} models.SyncResult
// @Failure 503 {object} models.ErrorResponse "Device is offline"
// @Router /api/sync [post]
func (h *SyncHandler) ForceSync(w http.ResponseWriter, r *http.Request) {
	result, err := h.engine.ForceSync(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// Requeue moves failed records back to pending
func (h *SyncHandler) Requeue(w http.ResponseWriter, r *http.Request) {
	n, err := h.engine.RequeueFailed(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, models.RequeueResponse{Requeued: n})
}

// Stats returns the record counts per sync status
func (h *SyncHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.recordRepo.GetStats(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// LastResult returns the result of the latest completed pass
func (h *SyncHandler) LastResult(w http.ResponseWriter, r *http.Request) {
	result, ok := h.engine.LastResult()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// NetworkStatus returns the last known connectivity
func (h *SyncHandler) NetworkStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.network.Status())
}

// ReportNetwork lets the UI shell push the platform's connectivity state
func (h *SyncHandler) ReportNetwork(w http.ResponseWriter, r *http.Request) {
	var status models.NetworkStatus
	if !decodeJSON(w, r, &status) {
		return
	}
	h.network.Report(status)
	respondJSON(w, http.StatusOK, h.network.Status())
}
