// Package store is the terminal's local sqlite database: timer states, the
// staff session and the stop audit trail.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps sql.DB for the terminal.
type DB struct {
	*sql.DB
	path string
}

// NewDB opens the database at path and runs migrations.
func NewDB(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// sqlite serializes writers anyway
	db.SetMaxOpenConns(1)
	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{DB: db, path: path}, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS timer_states (
            booking_id TEXT PRIMARY KEY,
            started_at DATETIME NOT NULL,
            base_minutes INTEGER NOT NULL,
            applied_extension_minutes INTEGER NOT NULL DEFAULT 0,
            remaining_seconds INTEGER NOT NULL DEFAULT 0,
            updated_at DATETIME NOT NULL
        )`,

		`CREATE TABLE IF NOT EXISTS staff_session (
            id INTEGER PRIMARY KEY CHECK (id = 1),
            token TEXT NOT NULL,
            staff_json TEXT NOT NULL,
            expires_at DATETIME NOT NULL,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE TABLE IF NOT EXISTS stop_records (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            booking_id TEXT NOT NULL,
            store_id TEXT NOT NULL,
            staff_name TEXT,
            customer_name TEXT,
            phone TEXT,
            screen TEXT,
            game TEXT,
            total_minutes INTEGER NOT NULL DEFAULT 0,
            players INTEGER NOT NULL DEFAULT 0,
            first_game_price REAL NOT NULL DEFAULT 0,
            extended_minutes INTEGER NOT NULL DEFAULT 0,
            extended_amount REAL NOT NULL DEFAULT 0,
            extra_snacks_total REAL NOT NULL DEFAULT 0,
            remaining_amount REAL NOT NULL DEFAULT 0,
            mode TEXT NOT NULL,
            ledger_debit REAL NOT NULL DEFAULT 0,
            stopped_at DATETIME NOT NULL
        )`,

		`CREATE INDEX IF NOT EXISTS idx_stop_records_stopped_at ON stop_records(stopped_at)`,
		`CREATE INDEX IF NOT EXISTS idx_stop_records_booking ON stop_records(booking_id)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

func trimSQL(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}
