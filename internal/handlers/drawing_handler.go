package handlers

import (
	"net/http"

	"github.com/fieldsync/agent/internal/models"
	"github.com/fieldsync/agent/internal/services"
)

// DrawingHandler drives the field boundary drawing session
type DrawingHandler struct {
	drawings *services.DrawingService
}

// NewDrawingHandler creates a new DrawingHandler
func NewDrawingHandler(drawings *services.DrawingService) *DrawingHandler {
	return &DrawingHandler{drawings: drawings}
}

func (h *DrawingHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req models.StartDrawingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.respondSession(w, r, http.StatusCreated)(h.drawings.Start(r.Context(), &req))
}

func (h *DrawingHandler) AddPoint(w http.ResponseWriter, r *http.Request) {
	var point models.DrawingPoint
	if !decodeJSON(w, r, &point) {
		return
	}
	h.respondSession(w, r, http.StatusOK)(h.drawings.AddPoint(r.Context(), point))
}

func (h *DrawingHandler) Undo(w http.ResponseWriter, r *http.Request) {
	h.respondSession(w, r, http.StatusOK)(h.drawings.UndoLastPoint(r.Context()))
}

// Close saves the drawing as a record. The body is optional.
func (h *DrawingHandler) Close(w http.ResponseWriter, r *http.Request) {
	var req models.CloseDrawingRequest
	if r.ContentLength > 0 && !decodeJSON(w, r, &req) {
		return
	}
	record, err := h.drawings.Close(r.Context(), &req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, record)
}

func (h *DrawingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.drawings.Cancel(r.Context()); err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Recover resumes a session left over by a previous run, if any
func (h *DrawingHandler) Recover(w http.ResponseWriter, r *http.Request) {
	session, err := h.drawings.Recover(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if session == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	respondJSON(w, http.StatusOK, session)
}

func (h *DrawingHandler) Current(w http.ResponseWriter, r *http.Request) {
	session := h.drawings.Current()
	if session == nil {
		respondServiceError(w, r, models.ErrNoActiveDrawing)
		return
	}
	respondJSON(w, http.StatusOK, session)
}

func (h *DrawingHandler) respondSession(w http.ResponseWriter, r *http.Request, status int) func(*models.DrawingSession, error) {
	return func(session *models.DrawingSession, err error) {
		if err != nil {
			respondServiceError(w, r, err)
			return
		}
		respondJSON(w, status, session)
	}
}
