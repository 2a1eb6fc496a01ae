package handlers

import (
	"io"
	"net/http"

	"github.com/fieldsync/agent/internal/models"
	"github.com/fieldsync/agent/internal/services"
)

const maxImportUpload = 64 << 20

// ImportHandler handles KML/KMZ uploads
type ImportHandler struct {
	imports *services.FileImportService
}

// NewImportHandler creates a new ImportHandler
func NewImportHandler(imports *services.FileImportService) *ImportHandler {
	return &ImportHandler{imports: imports}
}

// Import stores an uploaded geometry file as a record
func (h *ImportHandler) Import(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxImportUpload); err != nil {
		respondError(w, http.StatusBadRequest, "Request must be multipart/form-data.")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "No file provided or file is empty.")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxImportUpload+1))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Could not read uploaded file.")
		return
	}
	if len(data) > maxImportUpload {
		respondServiceError(w, r, models.ErrFileTooLarge)
		return
	}

	fileName := r.FormValue("fileName")
	if fileName == "" {
		fileName = header.Filename
	}

	record, err := h.imports.Import(r.Context(), &models.FileImportRequest{
		ID:       r.FormValue("id"),
		FarmID:   r.FormValue("farmId"),
		FarmName: r.FormValue("farmName"),
		FileName: fileName,
		Data:     data,
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, record)
}
