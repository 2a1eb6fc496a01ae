package handlers

import (
	"net/http"
	"strings"

	"github.com/fieldsync/agent/internal/models"
	"github.com/fieldsync/agent/internal/repository"
	"github.com/fieldsync/agent/internal/services"
	"github.com/go-chi/chi/v5"
)

// RecordHandler exposes the record store and its derived views
type RecordHandler struct {
	recordRepo repository.RecordRepo
	waypoints  *services.WaypointService
}

// NewRecordHandler creates a new RecordHandler
func NewRecordHandler(recordRepo repository.RecordRepo, waypoints *services.WaypointService) *RecordHandler {
	return &RecordHandler{
		recordRepo: recordRepo,
		waypoints:  waypoints,
	}
}

// List returns the records of a farm or of a kind.
// With both filters the farm's records are narrowed to the kind.
func (h *RecordHandler) List(w http.ResponseWriter, r *http.Request) {
	farmID := strings.TrimSpace(r.URL.Query().Get("farmId"))
	kind := models.RecordKind(r.URL.Query().Get("kind"))

	if kind != "" && !kind.Valid() {
		respondServiceError(w, r, models.ErrInvalidKind)
		return
	}

	var (
		records []*models.Record
		err     error
	)
	switch {
	case farmID != "":
		records, err = h.recordRepo.GetByFarm(r.Context(), farmID)
	case kind != "":
		records, err = h.recordRepo.GetByKind(r.Context(), kind)
	default:
		respondError(w, http.StatusBadRequest, "farmId or kind is required.")
		return
	}
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	if farmID != "" && kind != "" {
		filtered := records[:0]
		for _, rec := range records {
			if rec.Kind == kind {
				filtered = append(filtered, rec)
			}
		}
		records = filtered
	}
	if records == nil {
		records = []*models.Record{}
	}

	respondJSON(w, http.StatusOK, models.RecordListResponse{
		Records:    records,
		TotalCount: len(records),
	})
}

// GetByID returns one live record
func (h *RecordHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	record, err := h.recordRepo.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if record == nil {
		respondServiceError(w, r, models.ErrRecordNotFound)
		return
	}
	respondJSON(w, http.StatusOK, record)
}

// Delete soft-deletes a record; the deletion is sent on the next sync pass
func (h *RecordHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.recordRepo.MarkDeleted(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TrailWaypoints returns the waypoint view of a trail
func (h *RecordHandler) TrailWaypoints(w http.ResponseWriter, r *http.Request) {
	view, err := h.waypoints.TrailWaypoints(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// FarmSummary returns per-kind and per-status counts of a farm
func (h *RecordHandler) FarmSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.waypoints.FarmSummary(r.Context(), chi.URLParam(r, "farmId"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}
