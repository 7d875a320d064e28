// Package loader orchestrates a complete load run: discover source files,
// reconcile them onto the fixed schema, consolidate into the staging
// database and publish the result atomically.
package loader

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fatotools/wms-loader/internal/audit"
	"github.com/fatotools/wms-loader/internal/config"
	"github.com/fatotools/wms-loader/internal/dates"
	"github.com/fatotools/wms-loader/internal/dedup"
	"github.com/fatotools/wms-loader/internal/logging"
	"github.com/fatotools/wms-loader/internal/metrics"
	"github.com/fatotools/wms-loader/internal/publish"
	"github.com/fatotools/wms-loader/internal/reconcile"
	"github.com/fatotools/wms-loader/internal/report"
	"github.com/fatotools/wms-loader/internal/schema"
	"github.com/fatotools/wms-loader/internal/source"
	"github.com/fatotools/wms-loader/internal/store"
)

// Version information (set via ldflags)
var (
	Version = "v0.1.0"
	GitSHA  = "unknown"
)

// producerName identifies this loader in reports and audit events.
const producerName = "wms-loader"

// Per-folder result statuses.
const (
	StatusOK    = "ok"
	StatusEmpty = "empty"
)

// Result is one folder's outcome within a run.
type Result struct {
	Table     string `json:"table"`
	FilesOK   int    `json:"files_ok"`
	FilesFail int    `json:"files_fail"`
	Rows      int64  `json:"rows"`
	Status    string `json:"status"`
}

// Loader runs the ingestion pipeline end to end.
type Loader struct {
	cfg config.Config

	sniffer    *source.Sniffer
	reader     *source.Reader
	reconciler *reconcile.Reconciler
	dates      *dates.Normalizer
	publisher  *publish.Publisher
	reports    *report.Writer
	trail      audit.Emitter

	log *slog.Logger
}

// New builds a loader from configuration. Optional subsystems that fail to
// initialize are disabled with a warning; a run must not die because the
// report directory is unwritable.
func New(cfg config.Config) *Loader {
	log := slog.With("component", "loader")

	reports, err := report.NewWriter(cfg.Report.Dir)
	if err != nil {
		log.Warn("run reports disabled", "error", err)
		reports = nil
	}

	return &Loader{
		cfg:        cfg,
		sniffer:    source.NewSniffer(cfg.Sniff.BannerSignatures, cfg.Sniff.Delimiters, logging.Component("sniffer")),
		reader:     source.NewReader(logging.Component("reader")),
		reconciler: reconcile.New(reconcile.DefaultClassifiers(cfg.Sniff.BannerSignatures), logging.Component("reconciler")),
		dates:      dates.New(logging.Component("dates")),
		publisher:  publish.New(cfg.Publish.Attempts, time.Duration(cfg.Publish.RetryDelayMs)*time.Millisecond, logging.Component("publisher")),
		reports:    reports,
		trail:      audit.NewEmitter(audit.Config{Path: cfg.AuditLog.Path, WebhookURL: cfg.AuditLog.WebhookURL}, logging.Component("audit")),
		log:        log,
	}
}

// Close releases long-lived subsystem resources.
func (l *Loader) Close() error {
	return l.trail.Close()
}

// Run executes one complete load cycle:
//
//  1. Rebuild every configured folder's table in the staging database.
//  2. Record per-table history and ensure secondary indexes.
//  3. Close the staging database and swap it over the published file.
//  4. Write the run report and append the publish event to the audit trail.
//
// Per-file failures are contained: a folder loads what it can. Folder-level
// and publish failures abort the run.
func (l *Loader) Run(ctx context.Context) ([]Result, error) {
	runID := uuid.New().String()
	startedAt := time.Now()
	log := l.log.With("run_id", runID)
	log.Info("starting run",
		"version", Version,
		"git_sha", GitSHA,
		"folders", len(l.cfg.Folders))

	results, err := l.loadAll(ctx, runID, log)
	if err != nil {
		if m := metrics.Get(); m != nil {
			m.IncRuns("error")
		}
		return results, err
	}

	pubStart := time.Now()
	if err := l.publisher.Publish(ctx, l.cfg.StagingPath, l.cfg.FinalPath); err != nil {
		if m := metrics.Get(); m != nil {
			m.IncRuns("error")
		}
		return results, err
	}
	if m := metrics.Get(); m != nil {
		m.ObservePublishDuration(time.Since(pubStart).Seconds())
	}

	checksum, err := report.FileChecksum(l.cfg.StagingPath)
	if err != nil {
		log.Warn("staging checksum unavailable", "error", err)
		checksum = ""
	}
	finishedAt := time.Now()

	l.writeReport(runID, startedAt, finishedAt, results, checksum, log)
	l.emitPublishEvent(ctx, runID, results, checksum, log)

	if m := metrics.Get(); m != nil {
		m.IncRuns("ok")
		m.LastRunUnix.Set(float64(finishedAt.Unix()))
	}

	var totalRows int64
	for _, r := range results {
		totalRows += r.Rows
	}
	log.Info("run complete",
		"tables", len(results),
		"rows", totalRows,
		"duration", time.Since(startedAt),
		"dest", l.cfg.FinalPath)
	return results, nil
}

// loadAll rebuilds every folder's table and returns per-folder results. The
// staging database is closed before returning so the file is safe to copy.
func (l *Loader) loadAll(ctx context.Context, runID string, log *slog.Logger) ([]Result, error) {
	st, err := store.Open(l.cfg.StagingPath, l.cfg.MaxParams, logging.Component("store"))
	if err != nil {
		return nil, err
	}
	defer st.Close()

	if err := st.EnsureHistory(ctx); err != nil {
		log.Warn("run history unavailable", "error", err)
	}

	results := make([]Result, 0, len(l.cfg.Folders))
	for _, folder := range l.cfg.Folders {
		folderStart := time.Now()
		res, err := l.loadFolder(ctx, st, folder, log)
		if err != nil {
			return results, err
		}
		results = append(results, res)

		if m := metrics.Get(); m != nil {
			m.ObserveFolderLoadDuration(folder.Table, time.Since(folderStart).Seconds())
		}
		rec := store.RunRecord{
			RunID:      runID,
			Table:      res.Table,
			FilesOK:    res.FilesOK,
			FilesFail:  res.FilesFail,
			Rows:       res.Rows,
			Status:     res.Status,
			StartedAt:  folderStart,
			FinishedAt: time.Now(),
		}
		if err := st.RecordRun(ctx, rec); err != nil {
			log.Warn("run history not recorded", "table", res.Table, "error", err)
		}
	}

	st.EnsureIndexes(ctx, store.DefaultIndexes)

	// The publisher copies the file whole; it must be fully flushed first.
	if err := st.Close(); err != nil {
		return results, fmt.Errorf("close staging database: %w", err)
	}
	return results, nil
}

// loadFolder rebuilds one table from its source folder.
func (l *Loader) loadFolder(ctx context.Context, st *store.Store, folder config.FolderConfig, runLog *slog.Logger) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	log := logging.TableLogger(runLog, folder.Table)
	log.Info("loading folder", "path", folder.Path, "recursive", l.cfg.Recursive)

	files, err := source.Discover(folder.Path, l.cfg.Recursive)
	if err != nil {
		if errors.Is(err, source.ErrNotFound) {
			log.Warn("source folder missing", "path", folder.Path)
			return Result{Table: folder.Table, Status: StatusEmpty}, nil
		}
		return Result{}, fmt.Errorf("discover %s: %w", folder.Path, err)
	}

	var (
		sets []*schema.RecordSet
		ok   int
		fail int
	)
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		rs, err := l.loadFile(path, folder.Table, log)
		if err != nil {
			fail++
			log.Error("file rejected", "file", filepath.Base(path), "error", err)
			if m := metrics.Get(); m != nil {
				m.IncFilesProcessed(folder.Table, "fail")
			}
			continue
		}
		ok++
		if m := metrics.Get(); m != nil {
			m.IncFilesProcessed(folder.Table, "ok")
		}
		sets = append(sets, rs)
	}

	if len(sets) == 0 {
		// Counts stay real: zero discovered files and every file rejected
		// are different operational problems.
		log.Warn("nothing to load", "files_found", len(files), "files_fail", fail)
		return Result{Table: folder.Table, FilesOK: ok, FilesFail: fail, Status: StatusEmpty}, nil
	}

	consolidated, err := merge(sets)
	if err != nil {
		return Result{}, fmt.Errorf("consolidate %s: %w", folder.Table, err)
	}

	l.dates.NormalizeColumns(consolidated, schema.DateColumns)
	l.dates.CrossFill(consolidated, folder.Table)
	stats := l.dates.DeriveRef(consolidated)
	log.Info("reference dates derived",
		"rows", stats.Total,
		"missing", stats.Missing,
		"missing_rate", fmt.Sprintf("%.1f%%", stats.MissingRate()*100),
		"min", refTime(stats.Min),
		"max", refTime(stats.Max),
		"per_year", stats.PerYear)

	if removed := dedup.Dedup(consolidated, folder.Table, log); removed > 0 {
		if m := metrics.Get(); m != nil {
			m.AddDuplicatesRemoved(folder.Table, float64(removed))
		}
	}

	v := ValidateRecordSet(consolidated, l.cfg.AuditColumns)
	for _, w := range v.Warnings {
		log.Warn("validation warning", "detail", w)
	}
	if !v.Passed {
		return Result{}, fmt.Errorf("record set for %s failed validation: %s",
			folder.Table, strings.Join(v.Errors, "; "))
	}

	if err := st.Replace(ctx, folder.Table, consolidated, l.cfg.BatchSize); err != nil {
		return Result{}, err
	}
	if m := metrics.Get(); m != nil {
		m.AddRowsWritten(folder.Table, float64(consolidated.Len()))
	}

	return Result{
		Table:     folder.Table,
		FilesOK:   ok,
		FilesFail: fail,
		Rows:      int64(consolidated.Len()),
		Status:    StatusOK,
	}, nil
}

// loadFile reads one source file and reconciles it onto the fixed schema,
// with provenance stamped and the reference date derived.
func (l *Loader) loadFile(path, table string, log *slog.Logger) (*schema.RecordSet, error) {
	sn := l.sniffer.Sniff(path)
	rs, err := l.reader.Read(path, sn)
	if err != nil {
		return nil, err
	}
	rs, err = l.reconciler.Reconcile(filepath.Base(path), rs)
	if err != nil {
		return nil, err
	}

	l.stamp(rs, path, sn.Sheet, table)
	stats := l.dates.DeriveRef(rs)

	log.Debug("file loaded",
		"file", filepath.Base(path),
		"rows", rs.Len(),
		"ref_missing", stats.Missing,
		"ref_missing_rate", fmt.Sprintf("%.1f%%", stats.MissingRate()*100))
	return rs, nil
}

// stamp fills the provenance columns. Technical columns always carry the
// real origin: when a source column was remapped onto _source_file, the
// stamped value wins.
func (l *Loader) stamp(rs *schema.RecordSet, path, sheet, table string) {
	now := time.Now().Format(dates.Canonical)
	base := filepath.Base(path)

	mtime := schema.Null()
	if info, err := os.Stat(path); err == nil {
		mtime = schema.Text(info.ModTime().Format(dates.Canonical))
	}
	sheetCell := schema.Null()
	if sheet != "" {
		sheetCell = schema.Text(sheet)
	}

	fill := func(name string, value sql.NullString) {
		idx := rs.ColumnIndex(name)
		if idx < 0 {
			rs.AddColumn(name, value)
			return
		}
		for _, row := range rs.Rows {
			row[idx] = value
		}
	}

	fill(schema.ColSourceFile, schema.Text(base))
	fill(schema.ColSourceSheet, sheetCell)
	fill(schema.ColSourceMtime, mtime)
	fill(schema.ColLoadedAt, schema.Text(now))

	if l.cfg.AuditColumns {
		fill(schema.ColArquivoOrigem, schema.Text(base))
		fill(schema.ColDtCarga, schema.Text(now))
		fill(schema.ColTabelaOrigem, schema.Text(table))
	}
}

// merge concatenates per-file record sets. Every set must share the exact
// column order; reconciliation and stamping guarantee that within a run.
func merge(sets []*schema.RecordSet) (*schema.RecordSet, error) {
	columns := append([]string(nil), sets[0].Columns...)
	out := schema.NewRecordSet(columns)
	for _, rs := range sets {
		if len(rs.Columns) != len(columns) {
			return nil, fmt.Errorf("column count mismatch: %d vs %d", len(rs.Columns), len(columns))
		}
		for i, name := range rs.Columns {
			if name != columns[i] {
				return nil, fmt.Errorf("column %d mismatch: %q vs %q", i, name, columns[i])
			}
		}
		out.Rows = append(out.Rows, rs.Rows...)
	}
	return out, nil
}

func (l *Loader) writeReport(runID string, startedAt, finishedAt time.Time, results []Result, checksum string, log *slog.Logger) {
	if l.reports == nil {
		return
	}
	tables := make([]report.TableStatus, 0, len(results))
	for _, r := range results {
		tables = append(tables, report.TableStatus{
			Table:     r.Table,
			FilesOK:   r.FilesOK,
			FilesFail: r.FilesFail,
			Rows:      r.Rows,
			Status:    r.Status,
		})
	}
	rep := &report.Report{
		RunID:         runID,
		StartedAt:     startedAt.UTC(),
		FinishedAt:    finishedAt.UTC(),
		Tables:        tables,
		Published:     true,
		Destination:   l.cfg.FinalPath,
		StagingSHA256: checksum,
		Producer: report.ProducerInfo{
			Name:    producerName,
			Version: Version,
			GitSHA:  GitSHA,
		},
	}
	if err := l.reports.Save(rep); err != nil {
		log.Warn("run report not written", "error", err)
	}
}

func (l *Loader) emitPublishEvent(ctx context.Context, runID string, results []Result, checksum string, log *slog.Logger) {
	tables := make(map[string]audit.TableInfo, len(results))
	for _, r := range results {
		tables[r.Table] = audit.TableInfo{
			RowCount:  r.Rows,
			FilesOK:   r.FilesOK,
			FilesFail: r.FilesFail,
			Status:    r.Status,
		}
	}
	evt := audit.Event{
		Publish: audit.PublishInfo{
			RunID:         runID,
			Destination:   l.cfg.FinalPath,
			StagingSHA256: checksum,
		},
		Tables: tables,
		Producer: audit.ProducerInfo{
			Name:    producerName,
			Version: Version,
			GitSHA:  GitSHA,
		},
	}
	if err := l.trail.EmitPublish(ctx, evt); err != nil {
		log.Warn("publish event not recorded", "error", err)
	}
}

// refTime renders a derived-date bound for logging; empty sets have none.
func refTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dates.Canonical)
}
