package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/fieldsync/agent/internal/handlers"
	"github.com/fieldsync/agent/internal/models"
	"github.com/fieldsync/agent/internal/observability"
	"github.com/fieldsync/agent/internal/services"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local API, the sync engine and the import inbox watcher",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logCloser, err := loadConfig()
	if err != nil {
		return err
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetryCfg := observability.NewConfig(
		"fieldsync-agent", handlers.Version, cfg.Telemetry.Environment, cfg.Telemetry.Endpoint, cfg.Telemetry.Enabled,
	)
	telemetryCfg.SampleRatio = cfg.Telemetry.SampleRatio
	telemetry, err := observability.Initialize(ctx, telemetryCfg)
	if err != nil {
		log.Printf("Warning: telemetry unavailable: %v", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			telemetry.Shutdown(shutdownCtx)
		}()
	}

	// Initialize database and repositories
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	stats, err := st.records.RecountStats(ctx)
	if err != nil {
		return err
	}
	log.Printf("Records: %d total, %d pending, %d failed", stats.Total, stats.Pending, stats.Failed)

	// Initialize services
	media, err := newMediaStorage(cfg.MediaStorage)
	if err != nil {
		return err
	}
	thumbnails := services.NewThumbnailService(media.BasePath())

	captureMetrics, err := observability.NewCaptureMetrics()
	if err != nil {
		log.Printf("Warning: capture metrics unavailable: %v", err)
	}
	httpMetrics, err := observability.NewHTTPMetrics()
	if err != nil {
		log.Printf("Warning: HTTP metrics unavailable: %v", err)
		httpMetrics = nil
	}

	events := services.NewNotifier[*models.Record]()
	network := newNetworkMonitor(cfg.Network)
	network.Initialize(ctx)
	defer network.Stop()

	engine, err := newSyncEngine(ctx, cfg, st, network, media)
	if err != nil {
		return err
	}
	engine.Start()
	defer engine.Stop()

	trails := services.NewTrailRecorder(st.records, cfg.Capture.MinTrailPointDistance, events, captureMetrics)
	photos := services.NewPhotoCaptureService(st.records, media, thumbnails, trails, events, captureMetrics)
	photos.SetLocateTimeout(time.Duration(cfg.Capture.LocateTimeoutSeconds) * time.Second)

	drawings := services.NewDrawingService(
		st.records, st.slots,
		cfg.Capture.DrawingMaxPoints,
		time.Duration(cfg.Capture.DrawingRecoveryMinutes)*time.Minute,
		events, captureMetrics,
	)
	if session, err := drawings.Recover(ctx); err != nil {
		log.Printf("Warning: drawing recovery failed: %v", err)
	} else if session != nil {
		log.Printf("Resumed drawing session %s with %d points", session.ID, len(session.Points))
	}

	imports := services.NewFileImportService(st.records, events, captureMetrics)
	if cfg.Imports.InboxPath != "" {
		watcher := services.NewImportInboxWatcher(
			cfg.Imports.InboxPath,
			time.Duration(cfg.Imports.DebounceMillis)*time.Millisecond,
			imports,
		)
		if err := watcher.Start(); err != nil {
			return err
		}
		defer watcher.Stop()
	}

	maintenance := services.NewMaintenanceService(
		st.records, media, thumbnails,
		cfg.MediaStorage.MaintenanceInterval(), cfg.MediaStorage.OrphanGrace(),
	)
	maintenance.Start()
	defer maintenance.Stop()

	hub := services.NewWebSocketHub()
	go hub.Run()
	defer hub.Stop()
	defer hub.Bridge(engine, network, events)()

	// Initialize handlers
	router := handlers.NewRouter(cfg.Security, &handlers.Handlers{
		Health:      handlers.NewHealthHandler(st.records, network),
		Records:     handlers.NewRecordHandler(st.records, services.NewWaypointService(st.records)),
		Photos:      handlers.NewPhotoHandler(photos, cfg.MediaStorage.MaxFileSizeMB),
		Trails:      handlers.NewTrailHandler(trails),
		Drawings:    handlers.NewDrawingHandler(drawings),
		Imports:     handlers.NewImportHandler(imports),
		Sync:        handlers.NewSyncHandler(st.records, engine, network),
		Maintenance: handlers.NewMaintenanceHandler(maintenance),
		WebSocket:   handlers.NewWebSocketHandler(hub),
	}, httpMetrics)

	srv := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second, // Longer for uploads
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("FieldSync agent %s starting on %s", handlers.Version, cfg.ServerAddress)
		log.Printf("Media storage path: %s", media.BasePath())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	log.Println("Shutting down agent...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	if trails.IsRecording() {
		if rec, err := trails.Stop(shutdownCtx); err != nil {
			log.Printf("Failed to save trail in progress: %v", err)
		} else {
			log.Printf("Saved trail in progress: %s", rec.ID)
		}
	}

	log.Println("Agent stopped")
	return nil
}
