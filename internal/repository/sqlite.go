package repository

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// NewSQLiteDB creates and initializes the on-device SQLite database
func NewSQLiteDB(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", sqliteDSN(dbPath))
	if err != nil {
		return nil, err
	}

	// A single connection serializes writers and keeps :memory: databases alive
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, err
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func sqliteDSN(dbPath string) string {
	if strings.Contains(dbPath, "?") {
		return dbPath
	}
	return fmt.Sprintf("%s?_busy_timeout=5000&_foreign_keys=on", dbPath)
}

func createTables(db *sql.DB) error {
	schema := `
	-- Captured field records, all kinds in one table
	CREATE TABLE IF NOT EXISTS records (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		farm_id TEXT NOT NULL,
		farm_name TEXT NOT NULL DEFAULT '',
		captured_at DATETIME NOT NULL,
		sync_status TEXT NOT NULL DEFAULT 'pending',
		last_sync_attempt DATETIME,
		sync_error TEXT,
		sync_attempts INTEGER NOT NULL DEFAULT 0,
		is_deleted INTEGER NOT NULL DEFAULT 0,
		payload BLOB NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_records_farm_id ON records(farm_id);
	CREATE INDEX IF NOT EXISTS idx_records_kind ON records(kind);
	CREATE INDEX IF NOT EXISTS idx_records_sync_status ON records(sync_status);

	-- Denormalized counters, updated in the same transaction as records
	CREATE TABLE IF NOT EXISTS record_stats (
		id INTEGER PRIMARY KEY,
		total INTEGER NOT NULL DEFAULT 0,
		pending INTEGER NOT NULL DEFAULT 0,
		synced INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		deleted_pending_sync INTEGER NOT NULL DEFAULT 0
	);

	INSERT INTO record_stats (id) VALUES (1) ON CONFLICT (id) DO NOTHING;

	-- Recovery slots for interrupted in-memory sessions
	CREATE TABLE IF NOT EXISTS recovery_slots (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := db.Exec(schema)
	return err
}
