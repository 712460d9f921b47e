// Package journal persists scheduler history to SQLite: task snapshots,
// the per-task event trail, worker lifecycle events, and autoscaler
// decisions. The journal is an observer; the in-memory stores remain the
// source of truth for live state.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Journal is a SQLite-backed history store.
type Journal struct {
	db *sql.DB
}

// Open creates or opens a journal at the given path. Parent directories
// are created as needed. WAL mode and a busy timeout are enabled through
// the connection string.
func Open(ctx context.Context, path string) (*Journal, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening journal database: %w", err)
	}

	j := &Journal{db: db}
	if err := j.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing journal schema: %w", err)
	}
	return j, nil
}

// OpenMemory creates an in-memory journal for testing. A shared cache
// keeps multiple connections on the same database.
func OpenMemory(ctx context.Context) (*Journal, error) {
	db, err := sql.Open("sqlite", "file::memory:?mode=memory&cache=shared")
	if err != nil {
		return nil, fmt.Errorf("opening memory database: %w", err)
	}

	// A single connection avoids separate in-memory databases per conn.
	db.SetMaxOpenConns(1)

	j := &Journal{db: db}
	if err := j.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing journal schema: %w", err)
	}
	return j, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS task_snapshots (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		priority TEXT NOT NULL,
		status TEXT NOT NULL,
		assigned_worker TEXT,
		progress INTEGER NOT NULL DEFAULT 0,
		result TEXT,
		fail_reason TEXT,
		retry_count INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS task_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		worker_id TEXT,
		detail TEXT,
		timestamp DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_task_events_task ON task_events(task_id, id);

	CREATE TABLE IF NOT EXISTS worker_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		worker_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		detail TEXT,
		timestamp DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS scale_decisions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		decision TEXT NOT NULL,
		pending INTEGER NOT NULL,
		in_progress INTEGER NOT NULL,
		workers INTEGER NOT NULL,
		timestamp DATETIME NOT NULL
	);
	`

	_, err := j.db.ExecContext(ctx, schema)
	return err
}
