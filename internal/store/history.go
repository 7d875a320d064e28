package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// RunRecord is one table's outcome within a run. The history travels
// inside the staging database, so every published file carries its own
// lineage.
type RunRecord struct {
	RunID      string
	Table      string
	FilesOK    int
	FilesFail  int
	Rows       int64
	Status     string
	StartedAt  time.Time
	FinishedAt time.Time
}

const historySchema = `
	CREATE TABLE IF NOT EXISTS _load_runs (
		run_id      TEXT NOT NULL,
		table_name  TEXT NOT NULL,
		files_ok    INTEGER NOT NULL,
		files_fail  INTEGER NOT NULL,
		row_count   INTEGER NOT NULL,
		status      TEXT NOT NULL,
		started_at  TEXT NOT NULL,
		finished_at TEXT NOT NULL
	)
`

// EnsureHistory creates the run history table if it doesn't exist.
func (s *Store) EnsureHistory(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, historySchema); err != nil {
		return fmt.Errorf("init run history: %w", err)
	}
	return nil
}

// RecordRun appends a run outcome to the history table.
func (s *Store) RecordRun(ctx context.Context, rec RunRecord) error {
	query := `
		INSERT INTO _load_runs (
			run_id, table_name, files_ok, files_fail, row_count,
			status, started_at, finished_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.RunID,
		rec.Table,
		rec.FilesOK,
		rec.FilesFail,
		rec.Rows,
		rec.Status,
		rec.StartedAt.UTC().Format(time.RFC3339),
		rec.FinishedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// LastRun returns the most recent history entry for a table, or nil when
// the table has never been loaded.
func (s *Store) LastRun(ctx context.Context, table string) (*RunRecord, error) {
	query := `
		SELECT run_id, table_name, files_ok, files_fail, row_count,
		       status, started_at, finished_at
		FROM _load_runs
		WHERE table_name = ?
		ORDER BY finished_at DESC, rowid DESC
		LIMIT 1
	`
	var (
		rec      RunRecord
		started  string
		finished string
	)
	err := s.db.QueryRowContext(ctx, query, table).Scan(
		&rec.RunID, &rec.Table, &rec.FilesOK, &rec.FilesFail, &rec.Rows,
		&rec.Status, &started, &finished,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get last run: %w", err)
	}
	if rec.StartedAt, err = time.Parse(time.RFC3339, started); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if rec.FinishedAt, err = time.Parse(time.RFC3339, finished); err != nil {
		return nil, fmt.Errorf("parse finished_at: %w", err)
	}
	return &rec, nil
}
