package handlers

import (
	"net/http"

	"github.com/fieldsync/agent/internal/services"
)

// MaintenanceHandler exposes the media maintenance service
type MaintenanceHandler struct {
	maintenance *services.MaintenanceService
}

// NewMaintenanceHandler creates a new MaintenanceHandler
func NewMaintenanceHandler(maintenance *services.MaintenanceService) *MaintenanceHandler {
	return &MaintenanceHandler{maintenance: maintenance}
}

// Status returns the outcome of the latest maintenance run
func (h *MaintenanceHandler) Status(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.maintenance.GetStatus())
}

// Run performs maintenance now
// @Summary Run media maintenance
// @Description Removes orphaned media files, regenerates missing previews and recounts stats.
// @Tags maintenance
// @Produce json
// @Success 200 {object} services.MaintenanceStatus
// @Router /api/maintenance/run [post]
func (h *MaintenanceHandler) Run(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.maintenance.RunNow(r.Context()))
}
