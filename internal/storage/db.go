// Package storage keeps a local SQLite history of benchmark runs so results
// from different invocations can be compared.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

var ErrNotFound = errors.New("not found")

// DB wraps the SQL database connection.
type DB struct {
	*sql.DB
}

// New opens (creating if needed) the database at dbPath.
func New(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// SQLite serializes writers anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &DB{db}, nil
}

// Migrate creates the history tables.
func (db *DB) Migrate(ctx context.Context) error {
	migrations := []string{
		migrationRuns,
		migrationQueueResults,
		migrationIndexes,
	}
	for i, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}

func (db *DB) Close() error {
	return db.DB.Close()
}

const migrationRuns = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	backend TEXT NOT NULL,
	model TEXT NOT NULL,
	batch_size INTEGER NOT NULL,
	warmup INTEGER NOT NULL,
	repeats INTEGER NOT NULL,
	started_at DATETIME NOT NULL
);
`

const migrationQueueResults = `
CREATE TABLE IF NOT EXISTS queue_results (
	run_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	queue TEXT NOT NULL,
	total_ms REAL NOT NULL,
	avg_ms REAL,
	min_ms REAL,
	max_ms REAL,
	p50_ms REAL,
	p99_ms REAL,

	PRIMARY KEY (run_id, seq),
	FOREIGN KEY (run_id) REFERENCES runs(id)
);
`

const migrationIndexes = `
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_runs_model ON runs(model);
`
