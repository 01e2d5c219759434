// Package index persists download records in SQLite. It implements the
// record-store contract consumed by the download manager.
package index

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite database connection.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates and initializes the database in dataDir.
func Open(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "offliner.db")

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode so tooling can read while the daemon writes
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	db := &DB{conn: conn, path: dbPath}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// migrate runs database migrations.
func (db *DB) migrate() error {
	schema := `
	-- One row per content id; the scheduler rewrites the full row on
	-- every published change.
	CREATE TABLE IF NOT EXISTS downloads (
		id TEXT PRIMARY KEY,
		content_type TEXT NOT NULL DEFAULT '',
		uri TEXT NOT NULL,
		cache_key TEXT NOT NULL DEFAULT '',
		stream_keys TEXT NOT NULL DEFAULT '[]',
		custom_metadata BLOB,
		state INTEGER NOT NULL,
		failure_reason INTEGER NOT NULL DEFAULT 0,
		not_met_requirements INTEGER NOT NULL DEFAULT 0,
		stop_reason INTEGER NOT NULL DEFAULT 0,
		start_time_ms INTEGER NOT NULL DEFAULT 0,
		update_time_ms INTEGER NOT NULL DEFAULT 0,
		bytes_downloaded INTEGER NOT NULL DEFAULT 0,
		content_length INTEGER NOT NULL DEFAULT -1,
		filename TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_downloads_state ON downloads(state);
	`

	_, err := db.conn.Exec(schema)
	return err
}
