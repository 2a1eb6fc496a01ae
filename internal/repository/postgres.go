package repository

import (
	"database/sql"

	_ "github.com/lib/pq"
)

// NewPostgresDB creates and initializes a PostgreSQL database connection
func NewPostgresDB(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	// Create tables
	if err := createPostgresTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func createPostgresTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		farm_id TEXT NOT NULL,
		farm_name TEXT NOT NULL DEFAULT '',
		captured_at TIMESTAMPTZ NOT NULL,
		sync_status TEXT NOT NULL DEFAULT 'pending',
		last_sync_attempt TIMESTAMPTZ,
		sync_error TEXT,
		sync_attempts INTEGER NOT NULL DEFAULT 0,
		is_deleted INTEGER NOT NULL DEFAULT 0,
		payload BYTEA NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_records_farm_id ON records(farm_id);
	CREATE INDEX IF NOT EXISTS idx_records_kind ON records(kind);
	CREATE INDEX IF NOT EXISTS idx_records_sync_status ON records(sync_status);

	CREATE TABLE IF NOT EXISTS record_stats (
		id INTEGER PRIMARY KEY,
		total BIGINT NOT NULL DEFAULT 0,
		pending BIGINT NOT NULL DEFAULT 0,
		synced BIGINT NOT NULL DEFAULT 0,
		failed BIGINT NOT NULL DEFAULT 0,
		deleted_pending_sync BIGINT NOT NULL DEFAULT 0
	);

	INSERT INTO record_stats (id) VALUES (1) ON CONFLICT (id) DO NOTHING;

	CREATE TABLE IF NOT EXISTS recovery_slots (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	`

	_, err := db.Exec(schema)
	return err
}
