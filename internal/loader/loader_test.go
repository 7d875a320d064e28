package loader

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/fatotools/wms-loader/internal/audit"
	"github.com/fatotools/wms-loader/internal/config"
	"github.com/fatotools/wms-loader/internal/logging"
	"github.com/fatotools/wms-loader/internal/report"
	"github.com/fatotools/wms-loader/internal/schema"
)

func TestMain(m *testing.M) {
	slog.SetDefault(logging.Discard())
	os.Exit(m.Run())
}

// testConfig builds a config rooted in a fresh temp dir with one folder
// mapped to fato_saida.
func testConfig(t *testing.T) (config.Config, string) {
	t.Helper()
	dir, err := os.MkdirTemp("", "wms-test-*")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	cfg := config.Default()
	cfg.Folders = []config.FolderConfig{
		{Path: filepath.Join(dir, "saida"), Table: "fato_saida"},
	}
	cfg.StagingPath = filepath.Join(dir, "staging", "wms.db")
	cfg.FinalPath = filepath.Join(dir, "publish", "wms.db")
	cfg.Report.Dir = filepath.Join(dir, "reports")
	cfg.AuditLog.Path = filepath.Join(dir, "audit", "events.jsonl")
	return cfg, dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile %s: %v", path, err)
	}
}

func openPublished(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open published db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRunEndToEnd(t *testing.T) {
	cfg, _ := testConfig(t)
	folder := cfg.Folders[0].Path

	// One bannered export, one plain one sharing a business-key row,
	// and one file missing the required column.
	writeFile(t, filepath.Join(folder, "tarefas_2024_06.csv"),
		"Relatório de Tarefas;;;;;;\n"+
			"Tarefa;Tipo;Data inicial;Data final;Item;Qtd.;Pedido\n"+
			"T-1001;Separação;01/06/2024 08:00:00;01/06/2024 08:05:00;SKU-1;10;PED-9\n"+
			"T-1002;Separação;02/06/2024 09:10:00;;SKU-2;4;PED-9\n")
	writeFile(t, filepath.Join(folder, "tarefas_2024_06_rev.csv"),
		"Tarefa;Tipo;Data inicial;Data final;Item;Qtd.;Pedido\n"+
			"T-1001;Separação;01/06/2024 08:00:00;01/06/2024 08:05:00;SKU-1;10;PED-99\n"+
			"T-2001;Conferência;03/06/2024 10:00:00;03/06/2024 10:30:00;SKU-3;7;PED-10\n")
	writeFile(t, filepath.Join(folder, "broken.csv"),
		"Codigo;Descricao\nX;Y\n")

	l := New(cfg)
	defer l.Close()

	results, err := l.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	res := results[0]
	if res.Status != StatusOK {
		t.Errorf("status = %q, want %q", res.Status, StatusOK)
	}
	if res.FilesOK != 2 || res.FilesFail != 1 {
		t.Errorf("files ok/fail = %d/%d, want 2/1", res.FilesOK, res.FilesFail)
	}
	// T-1001 appears in both files with the same business key; one copy
	// survives.
	if res.Rows != 3 {
		t.Errorf("rows = %d, want 3", res.Rows)
	}

	db := openPublished(t, cfg.FinalPath)

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM fato_saida`).Scan(&n); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if n != 3 {
		t.Errorf("published rows = %d, want 3", n)
	}

	// The row with a missing end date was cross-filled from the start and
	// both feed dt_ref in canonical form.
	var dtFinal, dtRef string
	err = db.QueryRow(`SELECT "Data final", dt_ref FROM fato_saida WHERE "Tarefa" = 'T-1002'`).
		Scan(&dtFinal, &dtRef)
	if err != nil {
		t.Fatalf("query T-1002: %v", err)
	}
	if dtFinal != "2024-06-02 09:10:00" {
		t.Errorf("cross-filled end date = %q, want %q", dtFinal, "2024-06-02 09:10:00")
	}
	if dtRef != "2024-06-02 09:10:00" {
		t.Errorf("dt_ref = %q, want %q", dtRef, "2024-06-02 09:10:00")
	}

	var src, auditTable string
	err = db.QueryRow(`SELECT _source_file, tabela_origem FROM fato_saida WHERE "Tarefa" = 'T-2001'`).
		Scan(&src, &auditTable)
	if err != nil {
		t.Fatalf("query T-2001: %v", err)
	}
	if src != "tarefas_2024_06_rev.csv" {
		t.Errorf("_source_file = %q, want rev file", src)
	}
	if auditTable != "fato_saida" {
		t.Errorf("tabela_origem = %q, want fato_saida", auditTable)
	}

	// Files load in sorted order and the first copy of a duplicate wins,
	// so T-1001 keeps the order number from the first file.
	var pedido string
	err = db.QueryRow(`SELECT "Pedido" FROM fato_saida WHERE "Tarefa" = 'T-1001'`).Scan(&pedido)
	if err != nil {
		t.Fatalf("query T-1001: %v", err)
	}
	if pedido != "PED-9" {
		t.Errorf("Pedido = %q, want PED-9", pedido)
	}

	// Lineage travels inside the published file.
	if err := db.QueryRow(`SELECT COUNT(*) FROM _load_runs`).Scan(&n); err != nil {
		t.Fatalf("count history: %v", err)
	}
	if n != 1 {
		t.Errorf("history rows = %d, want 1", n)
	}

	// Run report on disk.
	w, err := report.NewWriter(cfg.Report.Dir)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	rep, err := w.Latest()
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if !rep.Published {
		t.Error("report.Published = false, want true")
	}
	if len(rep.Tables) != 1 || rep.Tables[0].FilesFail != 1 {
		t.Errorf("report tables = %+v, want one entry with files_fail 1", rep.Tables)
	}
	if !strings.HasPrefix(rep.StagingSHA256, "sha256:") {
		t.Errorf("staging checksum = %q, want sha256 prefix", rep.StagingSHA256)
	}

	// Audit trail has one verifiable event.
	if err := audit.VerifyChain(cfg.AuditLog.Path); err != nil {
		t.Errorf("VerifyChain: %v", err)
	}

	// A second run rebuilds rather than appends.
	if _, err := l.Run(context.Background()); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	db2 := openPublished(t, cfg.FinalPath)
	if err := db2.QueryRow(`SELECT COUNT(*) FROM fato_saida`).Scan(&n); err != nil {
		t.Fatalf("count rows after rerun: %v", err)
	}
	if n != 3 {
		t.Errorf("rows after rerun = %d, want 3", n)
	}
	if err := audit.VerifyChain(cfg.AuditLog.Path); err != nil {
		t.Errorf("VerifyChain after rerun: %v", err)
	}
}

func TestRunWorkbook(t *testing.T) {
	cfg, _ := testConfig(t)
	folder := cfg.Folders[0].Path
	if err := os.MkdirAll(folder, 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	rows := [][]any{
		{"Tarefa", "Tipo", "Data inicial", "Data final", "Item", "Qtd."},
		{"T-9001", "Reabastecimento", "05/06/2024 14:00:00", "05/06/2024 14:20:00", "SKU-9", "2"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("CoordinatesToCellName: %v", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}
	if err := f.SaveAs(filepath.Join(folder, "tarefas.xlsx")); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}

	l := New(cfg)
	defer l.Close()
	results, err := l.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if results[0].FilesOK != 1 || results[0].Rows != 1 {
		t.Fatalf("result = %+v, want 1 file and 1 row", results[0])
	}

	db := openPublished(t, cfg.FinalPath)
	var srcSheet string
	err = db.QueryRow(`SELECT _source_sheet FROM fato_saida WHERE "Tarefa" = 'T-9001'`).
		Scan(&srcSheet)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if srcSheet != sheet {
		t.Errorf("_source_sheet = %q, want %q", srcSheet, sheet)
	}
}

func TestRunMissingFolder(t *testing.T) {
	cfg, _ := testConfig(t)

	l := New(cfg)
	defer l.Close()
	results, err := l.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	res := results[0]
	if res.Status != StatusEmpty {
		t.Errorf("status = %q, want %q", res.Status, StatusEmpty)
	}
	if res.FilesOK != 0 || res.FilesFail != 0 || res.Rows != 0 {
		t.Errorf("result = %+v, want zero counts", res)
	}

	// Publish still happens; the destination carries an empty database.
	if _, err := os.Stat(cfg.FinalPath); err != nil {
		t.Errorf("published file missing: %v", err)
	}

	w, err := report.NewWriter(cfg.Report.Dir)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	rep, err := w.Latest()
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if rep.Tables[0].Status != StatusEmpty {
		t.Errorf("report status = %q, want %q", rep.Tables[0].Status, StatusEmpty)
	}
}

func TestRunAllFilesRejected(t *testing.T) {
	cfg, _ := testConfig(t)
	writeFile(t, filepath.Join(cfg.Folders[0].Path, "broken.csv"),
		"Codigo;Descricao\nX;Y\n")

	l := New(cfg)
	defer l.Close()
	results, err := l.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	res := results[0]
	if res.Status != StatusEmpty {
		t.Errorf("status = %q, want %q", res.Status, StatusEmpty)
	}
	// The failure is visible, not flattened into a bare empty marker.
	if res.FilesOK != 0 || res.FilesFail != 1 {
		t.Errorf("files ok/fail = %d/%d, want 0/1", res.FilesOK, res.FilesFail)
	}
}

func TestRunCancelledContext(t *testing.T) {
	cfg, _ := testConfig(t)
	writeFile(t, filepath.Join(cfg.Folders[0].Path, "t.csv"),
		"Tarefa;Tipo\nT-1;Separação\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l := New(cfg)
	defer l.Close()
	if _, err := l.Run(ctx); err == nil {
		t.Fatal("Run with cancelled context succeeded, want error")
	}
}

func TestValidateRecordSet(t *testing.T) {
	good := schema.NewRecordSet(schema.TargetColumns(true))
	row := make([]sql.NullString, len(good.Columns))
	for i := range row {
		row[i] = schema.Text("x")
	}
	good.Rows = append(good.Rows, row)
	if v := ValidateRecordSet(good, true); !v.Passed {
		t.Errorf("valid set rejected: %v", v.Errors)
	}

	// Audit columns expected but absent.
	bare := schema.NewRecordSet(schema.TargetColumns(false))
	if v := ValidateRecordSet(bare, true); v.Passed {
		t.Error("set without audit columns passed an audit-enabled check")
	}

	// Ragged row.
	ragged := schema.NewRecordSet(schema.TargetColumns(true))
	ragged.Rows = append(ragged.Rows, row[:3])
	if v := ValidateRecordSet(ragged, true); v.Passed {
		t.Error("ragged row passed")
	}

	// Required column present but never filled: loadable, flagged.
	hollow := schema.NewRecordSet(schema.TargetColumns(true))
	empty := make([]sql.NullString, len(hollow.Columns))
	for i := range empty {
		empty[i] = schema.Text("v")
	}
	empty[hollow.ColumnIndex(schema.RequiredColumn)] = schema.Text("  ")
	hollow.Rows = append(hollow.Rows, empty)
	v := ValidateRecordSet(hollow, true)
	if !v.Passed {
		t.Errorf("hollow set rejected: %v", v.Errors)
	}
	if len(v.Warnings) == 0 {
		t.Error("expected a warning for an all-empty required column")
	}
}
