package repository

import (
	"context"
	"time"

	"github.com/fieldsync/agent/internal/models"
)

// RecordRepo defines the durable record store.
// Reads other than GetByStatus skip soft-deleted records.
type RecordRepo interface {
	Save(ctx context.Context, record *models.Record) error
	GetByID(ctx context.Context, id string) (*models.Record, error)
	GetByFarm(ctx context.Context, farmID string) ([]*models.Record, error)
	GetByKind(ctx context.Context, kind models.RecordKind) ([]*models.Record, error)
	GetPendingSync(ctx context.Context) ([]*models.Record, error)
	GetByStatus(ctx context.Context, status models.SyncStatus) ([]*models.Record, error)
	UpdateSyncStatus(ctx context.Context, id string, status models.SyncStatus, syncErr string) error
	MarkDeleted(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	GetStats(ctx context.Context) (*models.SyncStats, error)
	RecountStats(ctx context.Context) (*models.SyncStats, error)
}

// SlotRepo defines a small key/value store for recovery snapshots
type SlotRepo interface {
	Get(ctx context.Context, key string) (value string, updatedAt time.Time, found bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}
