package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/fieldsync/agent/internal/models"
	"github.com/golang/snappy"
)

// Dialect selects the SQL flavour of the backing database
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// lockClause locks the selected row for the rest of the transaction.
// SQLite serializes writers on its own.
func (d Dialect) lockClause() string {
	if d == DialectPostgres {
		return " FOR UPDATE"
	}
	return ""
}

const recordColumns = `id, kind, farm_id, farm_name, captured_at, sync_status, last_sync_attempt,
	sync_error, sync_attempts, is_deleted, payload, created_at, updated_at`

// RecordRepository implements RecordRepo on SQLite or PostgreSQL
type RecordRepository struct {
	db      *sql.DB
	dialect Dialect
}

// NewRecordRepository creates a new RecordRepository
func NewRecordRepository(db *sql.DB, dialect Dialect) *RecordRepository {
	return &RecordRepository{db: db, dialect: dialect}
}

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *models.StorageError
	if errors.As(err, &se) {
		return err
	}
	return &models.StorageError{Op: op, Err: err}
}

// Save upserts a record by id. Saving the same id again overwrites every field
// except created_at.
func (r *RecordRepository) Save(ctx context.Context, record *models.Record) error {
	if err := record.Validate(); err != nil {
		return err
	}

	payload, err := encodePayload(record.Payload)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	return r.inTx(ctx, "save", func(tx *sql.Tx) error {
		var delta models.SyncStats

		var prevKind, prevStatus string
		err := tx.QueryRowContext(ctx,
			`SELECT kind, sync_status FROM records WHERE id = $1`+r.dialect.lockClause(),
			record.ID,
		).Scan(&prevKind, &prevStatus)
		switch {
		case err == sql.ErrNoRows:
			delta.Total++
		case err != nil:
			return err
		default:
			if models.RecordKind(prevKind) != record.Kind {
				return models.ErrKindChanged
			}
			delta.Add(models.SyncStatus(prevStatus), -1)
		}
		delta.Add(record.SyncStatus, 1)

		query := `
			INSERT INTO records (` + recordColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			ON CONFLICT (id) DO UPDATE SET
				farm_id = excluded.farm_id,
				farm_name = excluded.farm_name,
				captured_at = excluded.captured_at,
				sync_status = excluded.sync_status,
				last_sync_attempt = excluded.last_sync_attempt,
				sync_error = excluded.sync_error,
				sync_attempts = excluded.sync_attempts,
				is_deleted = excluded.is_deleted,
				payload = excluded.payload,
				updated_at = excluded.updated_at
		`
		_, err = tx.ExecContext(ctx, query,
			record.ID,
			string(record.Kind),
			record.FarmID,
			record.FarmName,
			record.CapturedAt.UTC(),
			string(record.SyncStatus),
			nullTime(record.LastSyncAttempt),
			nullString(record.SyncError),
			record.SyncAttempts,
			boolToInt(record.IsDeleted),
			payload,
			record.CreatedAt.UTC(),
			record.UpdatedAt,
		)
		if err != nil {
			return err
		}

		return r.applyStats(ctx, tx, delta)
	})
}

// GetByID retrieves a live record. A missing or soft-deleted record returns nil, nil.
func (r *RecordRepository) GetByID(ctx context.Context, id string) (*models.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records WHERE id = $1 AND is_deleted = 0`

	record, err := scanRecord(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get", err)
	}
	return record, nil
}

// GetByFarm returns every live record of a farm, oldest capture first
func (r *RecordRepository) GetByFarm(ctx context.Context, farmID string) ([]*models.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records
		WHERE farm_id = $1 AND is_deleted = 0
		ORDER BY captured_at, id`
	return r.queryRecords(ctx, "get by farm", query, farmID)
}

// GetByKind returns every live record of a kind, oldest capture first
func (r *RecordRepository) GetByKind(ctx context.Context, kind models.RecordKind) ([]*models.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records
		WHERE kind = $1 AND is_deleted = 0
		ORDER BY captured_at, id`
	return r.queryRecords(ctx, "get by kind", query, string(kind))
}

// GetPendingSync returns the records awaiting a push, in creation order
func (r *RecordRepository) GetPendingSync(ctx context.Context) ([]*models.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records
		WHERE sync_status = $1 AND is_deleted = 0
		ORDER BY created_at, id`
	return r.queryRecords(ctx, "get pending", query, string(models.StatusPending))
}

// GetByStatus scans the status index without filtering soft-deleted records
func (r *RecordRepository) GetByStatus(ctx context.Context, status models.SyncStatus) ([]*models.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records
		WHERE sync_status = $1
		ORDER BY created_at, id`
	return r.queryRecords(ctx, "get by status", query, string(status))
}

// UpdateSyncStatus moves a record through the sync state machine and stamps
// the attempt time. The error message is kept only for failed and
// deleted_pending_sync records.
func (r *RecordRepository) UpdateSyncStatus(ctx context.Context, id string, status models.SyncStatus, syncErr string) error {
	if !status.Valid() {
		return models.ErrInvalidStatus
	}

	return r.inTx(ctx, "update sync status", func(tx *sql.Tx) error {
		var current string
		err := tx.QueryRowContext(ctx,
			`SELECT sync_status FROM records WHERE id = $1`+r.dialect.lockClause(), id,
		).Scan(&current)
		if err == sql.ErrNoRows {
			return models.ErrRecordNotFound
		}
		if err != nil {
			return err
		}

		from := models.SyncStatus(current)
		if !models.CanTransition(from, status) {
			return models.ErrInvalidTransition
		}

		var errValue sql.NullString
		if syncErr != "" && (status == models.StatusFailed || status == models.StatusDeletedPendingSync) {
			errValue = sql.NullString{String: syncErr, Valid: true}
		}

		attempt := 0
		if status == models.StatusSynced || status == models.StatusFailed ||
			(from == models.StatusDeletedPendingSync && status == models.StatusDeletedPendingSync) {
			attempt = 1
		}

		now := time.Now().UTC()
		_, err = tx.ExecContext(ctx, `
			UPDATE records
			SET sync_status = $1, last_sync_attempt = $2, sync_error = $3,
				sync_attempts = sync_attempts + $4, updated_at = $2
			WHERE id = $5
		`, string(status), now, errValue, attempt, id)
		if err != nil {
			return err
		}

		var delta models.SyncStats
		delta.Add(from, -1)
		delta.Add(status, 1)
		return r.applyStats(ctx, tx, delta)
	})
}

// MarkDeleted soft-deletes a record and queues the deletion for sync
func (r *RecordRepository) MarkDeleted(ctx context.Context, id string) error {
	return r.inTx(ctx, "mark deleted", func(tx *sql.Tx) error {
		var current string
		err := tx.QueryRowContext(ctx,
			`SELECT sync_status FROM records WHERE id = $1`+r.dialect.lockClause(), id,
		).Scan(&current)
		if err == sql.ErrNoRows {
			return models.ErrRecordNotFound
		}
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		_, err = tx.ExecContext(ctx, `
			UPDATE records
			SET is_deleted = 1, sync_status = $1, last_sync_attempt = $2, updated_at = $2
			WHERE id = $3
		`, string(models.StatusDeletedPendingSync), now, id)
		if err != nil {
			return err
		}

		var delta models.SyncStats
		delta.Add(models.SyncStatus(current), -1)
		delta.Add(models.StatusDeletedPendingSync, 1)
		return r.applyStats(ctx, tx, delta)
	})
}

// Delete removes a record permanently
func (r *RecordRepository) Delete(ctx context.Context, id string) error {
	return r.inTx(ctx, "delete", func(tx *sql.Tx) error {
		var current string
		err := tx.QueryRowContext(ctx,
			`SELECT sync_status FROM records WHERE id = $1`+r.dialect.lockClause(), id,
		).Scan(&current)
		if err == sql.ErrNoRows {
			return models.ErrRecordNotFound
		}
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE id = $1`, id); err != nil {
			return err
		}

		delta := models.SyncStats{Total: -1}
		delta.Add(models.SyncStatus(current), -1)
		return r.applyStats(ctx, tx, delta)
	})
}

// GetStats reads the denormalized counters
func (r *RecordRepository) GetStats(ctx context.Context) (*models.SyncStats, error) {
	var stats models.SyncStats
	err := r.db.QueryRowContext(ctx, `
		SELECT total, pending, synced, failed, deleted_pending_sync
		FROM record_stats WHERE id = 1
	`).Scan(&stats.Total, &stats.Pending, &stats.Synced, &stats.Failed, &stats.DeletedPendingSync)
	if err == sql.ErrNoRows {
		return &stats, nil
	}
	if err != nil {
		return nil, storageErr("get stats", err)
	}
	return &stats, nil
}

// RecountStats rebuilds the counters from a full scan of the records table
func (r *RecordRepository) RecountStats(ctx context.Context) (*models.SyncStats, error) {
	var stats models.SyncStats

	err := r.inTx(ctx, "recount stats", func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT sync_status, COUNT(*) FROM records GROUP BY sync_status`)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var status string
			var count int
			if err := rows.Scan(&status, &count); err != nil {
				return err
			}
			stats.Total += count
			stats.Add(models.SyncStatus(status), count)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		rows.Close()

		_, err = tx.ExecContext(ctx, `
			UPDATE record_stats
			SET total = $1, pending = $2, synced = $3, failed = $4, deleted_pending_sync = $5
			WHERE id = 1
		`, stats.Total, stats.Pending, stats.Synced, stats.Failed, stats.DeletedPendingSync)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func (r *RecordRepository) applyStats(ctx context.Context, tx *sql.Tx, d models.SyncStats) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE record_stats
		SET total = total + $1, pending = pending + $2, synced = synced + $3,
			failed = failed + $4, deleted_pending_sync = deleted_pending_sync + $5
		WHERE id = 1
	`, d.Total, d.Pending, d.Synced, d.Failed, d.DeletedPendingSync)
	return err
}

// inTx runs fn in a transaction. Record errors pass through untouched, every
// other failure is reported as a StorageError.
func (r *RecordRepository) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr(op, err)
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		var recErr models.RecordError
		if errors.As(err, &recErr) {
			return err
		}
		return storageErr(op, err)
	}

	return storageErr(op, tx.Commit())
}

func (r *RecordRepository) queryRecords(ctx context.Context, op, query string, args ...any) ([]*models.Record, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer rows.Close()

	var records []*models.Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, storageErr(op, err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(op, err)
	}
	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.Record, error) {
	var (
		record          models.Record
		kind, status    string
		lastSyncAttempt sql.NullTime
		syncErr         sql.NullString
		isDeleted       int
		payload         []byte
	)

	err := row.Scan(
		&record.ID,
		&kind,
		&record.FarmID,
		&record.FarmName,
		&record.CapturedAt,
		&status,
		&lastSyncAttempt,
		&syncErr,
		&record.SyncAttempts,
		&isDeleted,
		&payload,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	record.Kind = models.RecordKind(kind)
	record.SyncStatus = models.SyncStatus(status)
	record.IsDeleted = isDeleted != 0
	record.CapturedAt = record.CapturedAt.UTC()
	record.CreatedAt = record.CreatedAt.UTC()
	record.UpdatedAt = record.UpdatedAt.UTC()
	if lastSyncAttempt.Valid {
		t := lastSyncAttempt.Time.UTC()
		record.LastSyncAttempt = &t
	}
	if syncErr.Valid {
		msg := syncErr.String
		record.SyncError = &msg
	}

	record.Payload, err = decodePayload(record.Kind, payload)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Payloads are stored as snappy-compressed JSON
func encodePayload(p models.RecordPayload) ([]byte, error) {
	data, err := models.EncodePayload(p)
	if err != nil {
		return nil, err
	}
	return snappy.Encode(nil, data), nil
}

func decodePayload(kind models.RecordKind, blob []byte) (models.RecordPayload, error) {
	data, err := snappy.Decode(nil, blob)
	if err != nil {
		return nil, err
	}
	return models.DecodePayload(kind, data)
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
