package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fieldsync/agent/internal/models"
	"github.com/fieldsync/agent/internal/observability"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, models.ErrorResponse{Error: message})
}

// respondServiceError maps domain errors onto status codes
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var recordErr models.RecordError
	var storageErr *models.StorageError

	switch {
	case errors.Is(err, models.ErrRecordNotFound),
		errors.Is(err, models.ErrNotRecording),
		errors.Is(err, models.ErrNoActiveDrawing):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrAlreadyRecording),
		errors.Is(err, models.ErrDrawingInProgress),
		errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, models.ErrKindChanged):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, models.ErrOffline):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, models.ErrFileTooLarge):
		respondError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.As(err, &storageErr):
		observability.WithContext(r.Context()).Errorf("Storage failure on %s %s: %v", r.Method, r.URL.Path, err)
		respondError(w, http.StatusInsufficientStorage, "Record could not be stored.")
	case errors.As(err, &recordErr):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		observability.WithContext(r.Context()).Errorf("Request %s %s failed: %v", r.Method, r.URL.Path, err)
		respondError(w, http.StatusInternalServerError, "Internal server error.")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON body.")
		return false
	}
	return true
}
