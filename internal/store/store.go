// Package store persists consolidated record sets into the staging SQLite
// database and keeps the run history table.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/fatotools/wms-loader/internal/util"
)

// pragmas tune the staging engine. DELETE journaling keeps the database a
// single file, which the publisher depends on when copying it whole.
var pragmas = []string{
	"PRAGMA busy_timeout=60000",
	"PRAGMA journal_mode=DELETE",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA temp_store=MEMORY",
}

// Store wraps the staging database connection.
type Store struct {
	db        *sql.DB
	path      string
	maxParams int
	log       *slog.Logger
}

// Open opens the staging database at path, creating parent directories as
// needed, and applies the engine tuning.
func Open(path string, maxParams int, log *slog.Logger) (*Store, error) {
	if err := util.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open staging database %s: %w", path, err)
	}
	// A single connection: the loader writes serially and SQLite locks at
	// the file level anyway.
	db.SetMaxOpenConns(1)
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	log.Debug("staging database open", "path", path)
	return &Store{db: db, path: path, maxParams: maxParams, log: log}, nil
}

// Path returns the staging database file path.
func (s *Store) Path() string {
	return s.path
}

// Close releases the connection. The staging file is only safe to copy
// after Close returns.
func (s *Store) Close() error {
	return s.db.Close()
}
