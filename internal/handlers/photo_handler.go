package handlers

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fieldsync/agent/internal/models"
	"github.com/fieldsync/agent/internal/services"
)

// PhotoHandler handles photo capture
type PhotoHandler struct {
	capture       *services.PhotoCaptureService
	maxUploadSize int64
}

// NewPhotoHandler creates a new PhotoHandler
func NewPhotoHandler(capture *services.PhotoCaptureService, maxFileSizeMB int64) *PhotoHandler {
	if maxFileSizeMB <= 0 {
		maxFileSizeMB = 25
	}
	return &PhotoHandler{
		capture:       capture,
		maxUploadSize: maxFileSizeMB << 20,
	}
}

// Capture saves a photo record
// @Summary Capture a photo
// @Description Accepts multipart/form-data with an optional "file" part, or a JSON body carrying an image reference.
// @Tags photos
// @Accept multipart/form-data
// @Produce json
// @Success 201 {object} models.Record
// @Failure 400 {object} models.ErrorResponse
// @Failure 507 {object} models.ErrorResponse "Record could not be stored"
// @Router /api/photos [post]
func (h *PhotoHandler) Capture(w http.ResponseWriter, r *http.Request) {
	var req models.PhotoCaptureRequest

	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if !decodeJSON(w, r, &req) {
			return
		}
	} else {
		// Parse multipart form, keeping room for the text fields
		if err := r.ParseMultipartForm(h.maxUploadSize + 1<<20); err != nil {
			respondError(w, http.StatusBadRequest, "Request must be multipart/form-data or JSON.")
			return
		}
		if !h.readForm(w, r, &req) {
			return
		}
	}

	record, err := h.capture.Capture(r.Context(), &req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, record)
}

func (h *PhotoHandler) readForm(w http.ResponseWriter, r *http.Request, req *models.PhotoCaptureRequest) bool {
	req.ID = r.FormValue("id")
	req.FarmID = r.FormValue("farmId")
	req.FarmName = r.FormValue("farmName")
	req.EventType = models.PhotoEvent(r.FormValue("eventType"))
	req.Label = r.FormValue("label")
	req.ImageRef = r.FormValue("imageRef")
	req.Notes = r.FormValue("notes")

	var ok bool
	if req.Latitude, ok = formFloat(w, r, "latitude"); !ok {
		return false
	}
	if req.Longitude, ok = formFloat(w, r, "longitude"); !ok {
		return false
	}
	if v := r.FormValue("severity"); v != "" {
		severity := models.Severity(v)
		req.Severity = &severity
	}
	if v := r.FormValue("quantity"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "quantity must be an integer.")
			return false
		}
		req.Quantity = &n
	}
	if v := r.FormValue("capturedAt"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "capturedAt must be RFC3339.")
			return false
		}
		req.CapturedAt = &t
	}

	file, header, err := r.FormFile("file")
	if err == http.ErrMissingFile {
		return true
	}
	if err != nil {
		respondError(w, http.StatusBadRequest, "Could not read uploaded file.")
		return false
	}
	defer file.Close()

	if header.Size > h.maxUploadSize {
		respondServiceError(w, r, models.ErrFileTooLarge)
		return false
	}
	req.Image, err = io.ReadAll(io.LimitReader(file, h.maxUploadSize+1))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Could not read uploaded file.")
		return false
	}
	req.Filename = header.Filename
	return true
}

func formFloat(w http.ResponseWriter, r *http.Request, key string) (*float64, bool) {
	v := r.FormValue(key)
	if v == "" {
		return nil, true
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, key+" must be a number.")
		return nil, false
	}
	return &f, true
}
