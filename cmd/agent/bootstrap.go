package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/fieldsync/agent/internal/config"
	"github.com/fieldsync/agent/internal/models"
	"github.com/fieldsync/agent/internal/observability"
	"github.com/fieldsync/agent/internal/repository"
	"github.com/fieldsync/agent/internal/services"
)

// store is the opened record database
type store struct {
	db      *sql.DB
	records *repository.RecordRepository
	slots   *repository.SlotRepository
}

func (s *store) Close() error {
	return s.db.Close()
}

// loadConfig reads the configuration and sets up logging
func loadConfig() (*config.Config, io.Closer, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	closer := observability.Configure(cfg.Logging.Level, observability.FileConfig{
		Path:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	return cfg, closer, nil
}

func openStore(cfg *config.Config) (*store, error) {
	var (
		db      *sql.DB
		dialect repository.Dialect
		err     error
	)
	if cfg.UsePostgres() {
		log.Println("Using PostgreSQL database")
		db, err = repository.NewPostgresDB(cfg.DatabaseURL)
		dialect = repository.DialectPostgres
	} else {
		log.Println("Using SQLite database")
		db, err = repository.NewSQLiteDB(cfg.DatabasePath)
		dialect = repository.DialectSQLite
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return &store{
		db:      db,
		records: repository.NewRecordRepository(db, dialect),
		slots:   repository.NewSlotRepository(db),
	}, nil
}

// newNetworkMonitor probes the configured URL. Without one the monitor
// stays online until the UI reports otherwise.
func newNetworkMonitor(cfg config.Network) *services.NetworkMonitor {
	var probe services.ConnectivityProbe
	if cfg.ProbeURL != "" {
		probe = services.NewHTTPProbe(cfg.ProbeURL, time.Duration(cfg.ProbeTimeoutSeconds)*time.Second)
	}
	return services.NewNetworkMonitor(probe, time.Duration(cfg.PollIntervalSeconds)*time.Second)
}

// newPusher builds the remote client, or returns nil when no sync endpoint is
// configured
func newPusher(ctx context.Context, cfg config.Sync, media *services.MediaStorageService) (services.RecordPusher, error) {
	if cfg.Endpoint == "" {
		log.Println("No sync endpoint configured, records stay local")
		return nil, nil
	}

	var uploader services.MediaUploader
	if cfg.Media.Enabled() {
		s3Uploader, err := services.NewS3MediaUploader(ctx, cfg.Media)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize media uploader: %w", err)
		}
		uploader = s3Uploader
	}

	client, err := services.NewRemoteClient(cfg, media, uploader)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func newMediaStorage(cfg config.MediaStorage) (*services.MediaStorageService, error) {
	media, err := services.NewMediaStorageService(cfg.BasePath, cfg.AllowedExtensions, cfg.MaxFileSizeMB)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize media storage: %w", err)
	}
	return media, nil
}

func newSyncEngine(ctx context.Context, cfg *config.Config, s *store, network *services.NetworkMonitor, media *services.MediaStorageService) (*services.SyncEngine, error) {
	pusher, err := newPusher(ctx, cfg.Sync, media)
	if err != nil {
		return nil, err
	}

	metrics, err := observability.NewSyncMetrics()
	if err != nil {
		log.Printf("Warning: sync metrics unavailable: %v", err)
	}
	return services.NewSyncEngine(s.records, pusher, network, cfg.Sync, metrics), nil
}

func printStats(stats *models.SyncStats) {
	fmt.Printf("Total:                %d\n", stats.Total)
	fmt.Printf("Pending:              %d\n", stats.Pending)
	fmt.Printf("Synced:               %d\n", stats.Synced)
	fmt.Printf("Failed:               %d\n", stats.Failed)
	fmt.Printf("Deleted pending sync: %d\n", stats.DeletedPendingSync)
}
