package repository

import (
	"context"
	"database/sql"
	"time"
)

// SlotRepository implements SlotRepo
type SlotRepository struct {
	db *sql.DB
}

// NewSlotRepository creates a new SlotRepository
func NewSlotRepository(db *sql.DB) *SlotRepository {
	return &SlotRepository{db: db}
}

func (r *SlotRepository) Get(ctx context.Context, key string) (string, time.Time, bool, error) {
	var value string
	var updatedAt time.Time
	err := r.db.QueryRowContext(ctx,
		`SELECT value, updated_at FROM recovery_slots WHERE key = $1`, key,
	).Scan(&value, &updatedAt)
	if err == sql.ErrNoRows {
		return "", time.Time{}, false, nil
	}
	if err != nil {
		return "", time.Time{}, false, storageErr("get slot", err)
	}
	return value, updatedAt.UTC(), true, nil
}

func (r *SlotRepository) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO recovery_slots (key, value, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = $2, updated_at = $3
	`
	_, err := r.db.ExecContext(ctx, query, key, value, time.Now().UTC())
	return storageErr("set slot", err)
}

func (r *SlotRepository) Delete(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM recovery_slots WHERE key = $1`, key)
	return storageErr("delete slot", err)
}
