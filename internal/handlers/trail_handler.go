package handlers

import (
	"net/http"

	"github.com/fieldsync/agent/internal/models"
	"github.com/fieldsync/agent/internal/services"
)

// TrailHandler drives the trail recorder
type TrailHandler struct {
	recorder *services.TrailRecorder
}

// NewTrailHandler creates a new TrailHandler
func NewTrailHandler(recorder *services.TrailRecorder) *TrailHandler {
	return &TrailHandler{recorder: recorder}
}

func (h *TrailHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req models.StartTrailRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	record, err := h.recorder.Start(r.Context(), &req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, record)
}

// AddPoint accepts one GPS update
func (h *TrailHandler) AddPoint(w http.ResponseWriter, r *http.Request) {
	var point models.TrailPoint
	if !decodeJSON(w, r, &point) {
		return
	}
	resp, err := h.recorder.AddPoint(point)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *TrailHandler) Stop(w http.ResponseWriter, r *http.Request) {
	record, err := h.recorder.Stop(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, record)
}

func (h *TrailHandler) Current(w http.ResponseWriter, r *http.Request) {
	record := h.recorder.Current()
	if record == nil {
		respondServiceError(w, r, models.ErrNotRecording)
		return
	}
	respondJSON(w, http.StatusOK, record)
}
