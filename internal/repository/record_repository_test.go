package repository

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/fieldsync/agent/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := NewSQLiteDB(filepath.Join(t.TempDir(), "agent.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestRepo(t *testing.T) *RecordRepository {
	return NewRecordRepository(newTestDB(t), DialectSQLite)
}

func newPhotoRecord(t *testing.T, id, farmID, label string) *models.Record {
	t.Helper()
	lat, lng := -23.55, -46.63
	sev := models.SeverityHigh
	rec, err := models.NewRecord(id, farmID, "Farm "+farmID, time.Now(), &models.PhotoPayload{
		EventType: models.EventDisease,
		Label:     label,
		ImageRef:  "2024/03/leaf.jpg",
		Latitude:  &lat,
		Longitude: &lng,
		Severity:  &sev,
	})
	require.NoError(t, err)
	return rec
}

func TestRecordRepository_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	t.Run("round trips a photo record", func(t *testing.T) {
		rec := newPhotoRecord(t, "p1", "F1", "rust on leaves")
		require.NoError(t, repo.Save(ctx, rec))

		got, err := repo.GetByID(ctx, "p1")
		require.NoError(t, err)
		require.NotNil(t, got)

		assert.Equal(t, models.KindPhoto, got.Kind)
		assert.Equal(t, "F1", got.FarmID)
		assert.Equal(t, models.StatusPending, got.SyncStatus)
		assert.WithinDuration(t, rec.CapturedAt, got.CapturedAt, time.Millisecond)

		photo := got.Photo()
		require.NotNil(t, photo)
		assert.Equal(t, "rust on leaves", photo.Label)
		assert.Equal(t, models.SeverityHigh, *photo.Severity)
		assert.InDelta(t, -23.55, *photo.Latitude, 1e-9)
	})

	t.Run("missing record returns nil", func(t *testing.T) {
		got, err := repo.GetByID(ctx, "does-not-exist")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("rejects structurally invalid records", func(t *testing.T) {
		rec := newPhotoRecord(t, "p-invalid", "F1", "x")
		rec.FarmID = ""
		assert.ErrorIs(t, repo.Save(ctx, rec), models.ErrEmptyFarmID)
	})

	t.Run("rejects a kind change", func(t *testing.T) {
		rec, err := models.NewRecord("p1", "F1", "", time.Now(), &models.TrailPayload{})
		require.NoError(t, err)
		assert.ErrorIs(t, repo.Save(ctx, rec), models.ErrKindChanged)
	})
}

func TestRecordRepository_IdempotentSave(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	first := newPhotoRecord(t, "dup", "F1", "first")
	require.NoError(t, repo.Save(ctx, first))

	second := newPhotoRecord(t, "dup", "F1", "second")
	require.NoError(t, repo.Save(ctx, second))

	records, err := repo.GetByFarm(ctx, "F1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "second", records[0].Photo().Label)

	stats, err := repo.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Pending)
}

func TestRecordRepository_Queries(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	require.NoError(t, repo.Save(ctx, newPhotoRecord(t, "a", "F1", "a")))
	require.NoError(t, repo.Save(ctx, newPhotoRecord(t, "b", "F1", "b")))
	require.NoError(t, repo.Save(ctx, newPhotoRecord(t, "c", "F2", "c")))

	trail, err := models.NewRecord("t", "F1", "", time.Now(), &models.TrailPayload{StartTime: time.Now()})
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, trail))

	require.NoError(t, repo.MarkDeleted(ctx, "b"))

	t.Run("by farm excludes soft-deleted", func(t *testing.T) {
		records, err := repo.GetByFarm(ctx, "F1")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"a", "t"}, ids(records))
	})

	t.Run("by kind excludes soft-deleted", func(t *testing.T) {
		records, err := repo.GetByKind(ctx, models.KindPhoto)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"a", "c"}, ids(records))
	})

	t.Run("pending", func(t *testing.T) {
		records, err := repo.GetPendingSync(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"a", "c", "t"}, ids(records))
	})

	t.Run("by status includes soft-deleted", func(t *testing.T) {
		records, err := repo.GetByStatus(ctx, models.StatusDeletedPendingSync)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "b", records[0].ID)
		assert.True(t, records[0].IsDeleted)
		assert.NotNil(t, records[0].LastSyncAttempt)
	})

	t.Run("soft-deleted record is absent by id", func(t *testing.T) {
		got, err := repo.GetByID(ctx, "b")
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestRecordRepository_UpdateSyncStatus(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	require.NoError(t, repo.Save(ctx, newPhotoRecord(t, "ok", "F1", "x")))
	require.NoError(t, repo.Save(ctx, newPhotoRecord(t, "bad", "F1", "y")))

	t.Run("unknown id", func(t *testing.T) {
		err := repo.UpdateSyncStatus(ctx, "nope", models.StatusSynced, "")
		assert.ErrorIs(t, err, models.ErrRecordNotFound)
	})

	t.Run("pending to synced", func(t *testing.T) {
		require.NoError(t, repo.UpdateSyncStatus(ctx, "ok", models.StatusSynced, ""))

		got, err := repo.GetByID(ctx, "ok")
		require.NoError(t, err)
		assert.Equal(t, models.StatusSynced, got.SyncStatus)
		assert.NotNil(t, got.LastSyncAttempt)
		assert.Nil(t, got.SyncError)
		assert.Equal(t, 1, got.SyncAttempts)
	})

	t.Run("synced never returns to pending", func(t *testing.T) {
		err := repo.UpdateSyncStatus(ctx, "ok", models.StatusPending, "")
		assert.ErrorIs(t, err, models.ErrInvalidTransition)
	})

	t.Run("pending to failed keeps the error", func(t *testing.T) {
		require.NoError(t, repo.UpdateSyncStatus(ctx, "bad", models.StatusFailed, "remote said 500"))

		got, err := repo.GetByID(ctx, "bad")
		require.NoError(t, err)
		assert.Equal(t, models.StatusFailed, got.SyncStatus)
		require.NotNil(t, got.SyncError)
		assert.Equal(t, "remote said 500", *got.SyncError)
	})

	t.Run("failed back to pending clears the error", func(t *testing.T) {
		require.NoError(t, repo.UpdateSyncStatus(ctx, "bad", models.StatusPending, "ignored"))

		got, err := repo.GetByID(ctx, "bad")
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, got.SyncStatus)
		assert.Nil(t, got.SyncError)
		assert.Equal(t, 1, got.SyncAttempts)
	})

	t.Run("rejects unknown status", func(t *testing.T) {
		err := repo.UpdateSyncStatus(ctx, "bad", "queued", "")
		assert.ErrorIs(t, err, models.ErrInvalidStatus)
	})
}

func TestRecordRepository_DeleteLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	require.NoError(t, repo.Save(ctx, newPhotoRecord(t, "d", "F1", "x")))

	assert.ErrorIs(t, repo.MarkDeleted(ctx, "missing"), models.ErrRecordNotFound)

	require.NoError(t, repo.MarkDeleted(ctx, "d"))
	require.NoError(t, repo.UpdateSyncStatus(ctx, "d", models.StatusDeletedPendingSync, "timeout"))

	stats, err := repo.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStats{Total: 1, DeletedPendingSync: 1}, *stats)

	require.NoError(t, repo.Delete(ctx, "d"))
	assert.ErrorIs(t, repo.Delete(ctx, "d"), models.ErrRecordNotFound)

	remaining, err := repo.GetByStatus(ctx, models.StatusDeletedPendingSync)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	stats, err = repo.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStats{}, *stats)
}

func TestRecordRepository_Stats(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewRecordRepository(db, DialectSQLite)

	for _, id := range []string{"1", "2", "3", "4"} {
		require.NoError(t, repo.Save(ctx, newPhotoRecord(t, id, "F1", id)))
	}
	require.NoError(t, repo.UpdateSyncStatus(ctx, "1", models.StatusSynced, ""))
	require.NoError(t, repo.UpdateSyncStatus(ctx, "2", models.StatusFailed, "boom"))
	require.NoError(t, repo.MarkDeleted(ctx, "3"))

	want := models.SyncStats{Total: 4, Pending: 1, Synced: 1, Failed: 1, DeletedPendingSync: 1}

	t.Run("counters follow every write", func(t *testing.T) {
		stats, err := repo.GetStats(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, *stats)
	})

	t.Run("recount repairs drifted counters", func(t *testing.T) {
		_, err := db.Exec(`UPDATE record_stats SET total = 99, pending = -3 WHERE id = 1`)
		require.NoError(t, err)

		stats, err := repo.RecountStats(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, *stats)

		stats, err = repo.GetStats(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, *stats)
	})
}

func TestRecordRepository_StorageError(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewRecordRepository(db, DialectSQLite)
	db.Close()

	err := repo.Save(ctx, newPhotoRecord(t, "x", "F1", "x"))

	var storageErr *models.StorageError
	require.True(t, errors.As(err, &storageErr))
	assert.Equal(t, "save", storageErr.Op)

	_, err = repo.GetPendingSync(ctx)
	assert.True(t, errors.As(err, &storageErr))
}

func ids(records []*models.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}
