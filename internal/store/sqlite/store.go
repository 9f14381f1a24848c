// Package sqlite is the reference persistence engine: trading_pairs,
// ohlcv, levels, signals, and signal_live_logs, backed by
// github.com/mattn/go-sqlite3 in WAL mode with a single writer
// connection, following the teacher's internal/store/sqlite writer
// idiom.
package sqlite

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"
)

// Store is a single-connection SQLite-backed implementation of every
// repository port in internal/model.
type Store struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Open opens (creating if needed) the database at path, enables WAL
// mode, and ensures the schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single-writer pool: SQLite serializes writers anyway, and a
	// single connection avoids "database is locked" contention.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	slog.Info("sqlite store opened", "path", path)
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
