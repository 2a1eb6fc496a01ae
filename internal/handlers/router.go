package handlers

import (
	"github.com/fieldsync/agent/internal/config"
	custommw "github.com/fieldsync/agent/internal/middleware"
	"github.com/fieldsync/agent/internal/observability"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Handlers bundles every endpoint of the local API
type Handlers struct {
	Health      *HealthHandler
	Records     *RecordHandler
	Photos      *PhotoHandler
	Trails      *TrailHandler
	Drawings    *DrawingHandler
	Imports     *ImportHandler
	Sync        *SyncHandler
	Maintenance *MaintenanceHandler
	WebSocket   *WebSocketHandler
}

// NewRouter wires the local API. metrics may be nil.
func NewRouter(security config.Security, h *Handlers, metrics *observability.HTTPMetrics) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.TracingMiddleware("fieldsync-agent"))
	r.Use(observability.MetricsMiddleware(metrics))
	r.Use(custommw.APIKeyAuth(security))

	// Routes
	r.Get("/health", h.Health.HealthCheck)
	r.Get("/api/health", h.Health.HealthCheck)
	r.Get("/api/version", VersionHandler)
	r.Get("/ws", h.WebSocket.HandleConnection)

	r.Route("/api/records", func(r chi.Router) {
		r.Get("/", h.Records.List)
		r.Get("/{id}", h.Records.GetByID)
		r.Delete("/{id}", h.Records.Delete)
	})
	r.Get("/api/farms/{farmId}/summary", h.Records.FarmSummary)

	r.Post("/api/photos", h.Photos.Capture)

	r.Route("/api/trails", func(r chi.Router) {
		r.Post("/start", h.Trails.Start)
		r.Post("/points", h.Trails.AddPoint)
		r.Post("/stop", h.Trails.Stop)
		r.Get("/current", h.Trails.Current)
		r.Get("/{id}/waypoints", h.Records.TrailWaypoints)
	})

	r.Route("/api/drawings", func(r chi.Router) {
		r.Post("/start", h.Drawings.Start)
		r.Post("/points", h.Drawings.AddPoint)
		r.Post("/undo", h.Drawings.Undo)
		r.Post("/close", h.Drawings.Close)
		r.Post("/cancel", h.Drawings.Cancel)
		r.Post("/recover", h.Drawings.Recover)
		r.Get("/current", h.Drawings.Current)
	})

	r.Post("/api/imports", h.Imports.Import)

	r.Route("/api/sync", func(r chi.Router) {
		r.Post("/", h.Sync.ForceSync)
		r.Post("/requeue", h.Sync.Requeue)
		r.Get("/stats", h.Sync.Stats)
		r.Get("/last", h.Sync.LastResult)
	})

	r.Get("/api/maintenance", h.Maintenance.Status)
	r.Post("/api/maintenance/run", h.Maintenance.Run)

	for _, path := range []string{"/api/network", "/api/network/status"} {
		r.Get(path, h.Sync.NetworkStatus)
		r.Post(path, h.Sync.ReportNetwork)
	}

	return r
}
