package services

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/fieldsync/agent/internal/models"
	"github.com/fieldsync/agent/internal/repository"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := repository.NewSQLiteDB(filepath.Join(t.TempDir(), "agent.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestRecordRepo(t *testing.T) *repository.RecordRepository {
	t.Helper()
	return repository.NewRecordRepository(newTestDB(t), repository.DialectSQLite)
}

// failingSaveRepo rejects every Save with a storage error until healed
type failingSaveRepo struct {
	repository.RecordRepo
	failing bool
	saves   int
}

func (r *failingSaveRepo) Save(ctx context.Context, record *models.Record) error {
	r.saves++
	if r.failing {
		return &models.StorageError{Op: "save", Err: errors.New("disk full")}
	}
	return r.RecordRepo.Save(ctx, record)
}

type fixedLocator struct {
	lat, lng float64
	err      error
	calls    int
}

func (l *fixedLocator) CurrentLocation(ctx context.Context) (float64, float64, error) {
	l.calls++
	if l.err != nil {
		return 0, 0, l.err
	}
	return l.lat, l.lng, nil
}

// blockingLocator never answers before its context ends
type blockingLocator struct{}

func (blockingLocator) CurrentLocation(ctx context.Context) (float64, float64, error) {
	<-ctx.Done()
	return 0, 0, ctx.Err()
}

func floatPtr(v float64) *float64 { return &v }
