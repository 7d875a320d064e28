package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/fatotools/wms-loader/internal/schema"
)

// BatchSize computes how many rows fit in one INSERT given the engine's
// bound-parameter ceiling. The requested size is capped, never rejected,
// and the floor is one row.
func BatchSize(requested, maxParams, columns int) int {
	if columns < 1 {
		return 1
	}
	limit := maxParams / columns
	if limit < 1 {
		limit = 1
	}
	if requested > limit {
		return limit
	}
	if requested < 1 {
		return 1
	}
	return requested
}

// Replace drops and recreates table from the record set inside a single
// transaction. Every column is TEXT; readers of the published file are
// expected to cast.
func (s *Store) Replace(ctx context.Context, table string, rs *schema.RecordSet, requestedBatch int) error {
	if len(rs.Columns) == 0 {
		return fmt.Errorf("replace %s: record set has no columns", table)
	}
	batch := BatchSize(requestedBatch, s.maxParams, len(rs.Columns))
	if batch < requestedBatch {
		s.log.Info("batch size capped by parameter ceiling",
			"table", table,
			"requested", requestedBatch,
			"effective", batch)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace %s: %w", table, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %q", table)); err != nil {
		return fmt.Errorf("drop %s: %w", table, err)
	}
	if _, err := tx.ExecContext(ctx, createStmt(table, rs.Columns)); err != nil {
		return fmt.Errorf("create %s: %w", table, err)
	}

	for start := 0; start < rs.Len(); start += batch {
		end := start + batch
		if end > rs.Len() {
			end = rs.Len()
		}
		chunk := rs.Rows[start:end]
		stmt, args := insertStmt(table, rs.Columns, chunk)
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return fmt.Errorf("insert into %s (rows %d..%d): %w", table, start, end, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace %s: %w", table, err)
	}
	s.log.Info("table replaced", "table", table, "rows", rs.Len(), "batch", batch)
	return nil
}

func createStmt(table string, columns []string) string {
	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = fmt.Sprintf("%q TEXT", c)
	}
	return fmt.Sprintf("CREATE TABLE %q (%s)", table, strings.Join(defs, ", "))
}

func insertStmt(table string, columns []string, rows [][]sql.NullString) (string, []any) {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = fmt.Sprintf("%q", c)
	}
	group := "(" + strings.TrimSuffix(strings.Repeat("?,", len(columns)), ",") + ")"

	groups := make([]string, len(rows))
	args := make([]any, 0, len(rows)*len(columns))
	for i, row := range rows {
		groups[i] = group
		for _, cell := range row {
			args = append(args, cell)
		}
	}
	stmt := fmt.Sprintf("INSERT INTO %q (%s) VALUES %s",
		table, strings.Join(quoted, ", "), strings.Join(groups, ", "))
	return stmt, args
}

// RowCount returns the number of rows in table.
func (s *Store) RowCount(ctx context.Context, table string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %q", table)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}
