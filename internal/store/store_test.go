package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatotools/wms-loader/internal/logging"
	"github.com/fatotools/wms-loader/internal/schema"
)

func tempStore(t *testing.T, maxParams int) (*Store, string) {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "wms-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	path := filepath.Join(tmpDir, "staging", "wms.db")
	s, err := Open(path, maxParams, logging.Discard())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, path
}

func sampleSet(rows int) *schema.RecordSet {
	rs := schema.NewRecordSet([]string{"Tarefa", "Item", "dt_ref"})
	for i := 0; i < rows; i++ {
		rs.Rows = append(rs.Rows, []sql.NullString{
			schema.Text("T-" + string(rune('A'+i%26))),
			schema.Null(),
			schema.Text("2024-05-01 00:00:00"),
		})
	}
	return rs
}

func TestBatchSize(t *testing.T) {
	tests := []struct {
		requested, maxParams, columns int
		want                          int
	}{
		{50000, 999, 20, 49},
		{10, 999, 20, 10},
		{50000, 999, 1000, 1}, // wider than the ceiling still writes row by row
		{0, 999, 5, 1},
		{100, 999, 0, 1},
	}
	for _, tt := range tests {
		if got := BatchSize(tt.requested, tt.maxParams, tt.columns); got != tt.want {
			t.Errorf("BatchSize(%d, %d, %d) = %d, want %d",
				tt.requested, tt.maxParams, tt.columns, got, tt.want)
		}
	}
}

func TestReplaceRoundTrip(t *testing.T) {
	s, _ := tempStore(t, 999)
	ctx := context.Background()

	rs := schema.NewRecordSet([]string{"Tarefa", "Qtd."})
	rs.Rows = append(rs.Rows,
		[]sql.NullString{schema.Text("T-1"), schema.Text("10")},
		[]sql.NullString{schema.Text("T-2"), schema.Null()},
	)
	if err := s.Replace(ctx, "fato_saida", rs, 50000); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}

	n, err := s.RowCount(ctx, "fato_saida")
	if err != nil {
		t.Fatalf("RowCount failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("rows = %d, want 2", n)
	}

	// Null cells must come back as SQL NULL, not empty text.
	var qty sql.NullString
	err = s.db.QueryRowContext(ctx,
		`SELECT "Qtd." FROM "fato_saida" WHERE "Tarefa" = ?`, "T-2").Scan(&qty)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if qty.Valid {
		t.Errorf("Qtd. for T-2 = %q, want NULL", qty.String)
	}

	// Replace is a full swap, not an append.
	if err := s.Replace(ctx, "fato_saida", sampleSet(3), 50000); err != nil {
		t.Fatalf("second Replace failed: %v", err)
	}
	n, err = s.RowCount(ctx, "fato_saida")
	if err != nil {
		t.Fatalf("RowCount failed: %v", err)
	}
	if n != 3 {
		t.Errorf("rows after second replace = %d, want 3", n)
	}
}

func TestReplaceMultipleBatches(t *testing.T) {
	// Three columns and a tight ceiling forces two rows per statement.
	s, _ := tempStore(t, 6)
	ctx := context.Background()

	if err := s.Replace(ctx, "fato_saida", sampleSet(7), 50000); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}
	n, err := s.RowCount(ctx, "fato_saida")
	if err != nil {
		t.Fatalf("RowCount failed: %v", err)
	}
	if n != 7 {
		t.Errorf("rows = %d, want 7", n)
	}
}

func TestReplaceEmptySet(t *testing.T) {
	s, _ := tempStore(t, 999)
	ctx := context.Background()

	rs := schema.NewRecordSet([]string{"Tarefa"})
	if err := s.Replace(ctx, "fato_entrada", rs, 50000); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}
	n, err := s.RowCount(ctx, "fato_entrada")
	if err != nil {
		t.Fatalf("RowCount failed: %v", err)
	}
	if n != 0 {
		t.Errorf("rows = %d, want 0", n)
	}
}

func TestEnsureIndexes(t *testing.T) {
	s, _ := tempStore(t, 999)
	ctx := context.Background()

	rs := schema.NewRecordSet([]string{"Tarefa", "dt_carga", "dt_ref"})
	rs.Rows = append(rs.Rows, []sql.NullString{
		schema.Text("T-1"), schema.Text("2024-05-01"), schema.Text("2024-05-01 00:00:00"),
	})
	if err := s.Replace(ctx, "fato_saida", rs, 50000); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}

	// fato_picking doesn't exist; its index must be skipped, not fatal.
	s.EnsureIndexes(ctx, DefaultIndexes)

	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'index' AND name LIKE 'ix_%'`)
	if err != nil {
		t.Fatalf("query indexes failed: %v", err)
	}
	defer rows.Close()

	got := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("scan failed: %v", err)
		}
		got[name] = true
	}
	for _, want := range []string{"ix_fato_saida_tarefa", "ix_fato_saida_dt", "ix_fato_saida_dtref"} {
		if !got[want] {
			t.Errorf("index %s missing, got %v", want, got)
		}
	}
	if got["ix_fato_picking_dt"] {
		t.Error("index on missing table should have been skipped")
	}

	// A second pass is a no-op.
	s.EnsureIndexes(ctx, DefaultIndexes)
}

func TestRunHistory(t *testing.T) {
	s, _ := tempStore(t, 999)
	ctx := context.Background()

	if err := s.EnsureHistory(ctx); err != nil {
		t.Fatalf("EnsureHistory failed: %v", err)
	}

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	first := RunRecord{
		RunID: "run-1", Table: "fato_saida",
		FilesOK: 2, FilesFail: 1, Rows: 100, Status: "ok",
		StartedAt: base, FinishedAt: base.Add(time.Minute),
	}
	second := RunRecord{
		RunID: "run-2", Table: "fato_saida",
		FilesOK: 3, FilesFail: 0, Rows: 150, Status: "ok",
		StartedAt: base.Add(time.Hour), FinishedAt: base.Add(time.Hour + time.Minute),
	}
	if err := s.RecordRun(ctx, first); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}
	if err := s.RecordRun(ctx, second); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}

	last, err := s.LastRun(ctx, "fato_saida")
	if err != nil {
		t.Fatalf("LastRun failed: %v", err)
	}
	if last == nil || last.RunID != "run-2" {
		t.Fatalf("LastRun = %+v, want run-2", last)
	}
	if last.Rows != 150 || last.FilesOK != 3 {
		t.Errorf("LastRun counts = %+v", last)
	}
	if !last.FinishedAt.Equal(second.FinishedAt) {
		t.Errorf("FinishedAt = %v, want %v", last.FinishedAt, second.FinishedAt)
	}

	// Unknown table: no error, no record.
	none, err := s.LastRun(ctx, "fato_entrada")
	if err != nil {
		t.Fatalf("LastRun failed: %v", err)
	}
	if none != nil {
		t.Errorf("LastRun for unloaded table = %+v, want nil", none)
	}
}
