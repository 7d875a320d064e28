// Package watch re-runs the loader when source folders change or on a
// fixed schedule.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"github.com/fatotools/wms-loader/internal/config"
	"github.com/fatotools/wms-loader/internal/loader"
	"github.com/fatotools/wms-loader/internal/source"
)

// Runner is the piece of the loader the watcher drives.
type Runner interface {
	Run(ctx context.Context) ([]loader.Result, error)
}

// Watcher triggers load runs from filesystem events and, optionally, a
// cron schedule. The event loop is the only caller of the runner, so runs
// never overlap; triggers landing mid-run coalesce into one follow-up.
type Watcher struct {
	cfg      config.Config
	runner   Runner
	debounce time.Duration
	trigger  chan struct{}
	log      *slog.Logger
}

func New(cfg config.Config, runner Runner) *Watcher {
	debounce := time.Duration(cfg.Watch.DebounceMs) * time.Millisecond
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	return &Watcher{
		cfg:      cfg,
		runner:   runner,
		debounce: debounce,
		trigger:  make(chan struct{}, 1),
		log:      slog.With("component", "watcher"),
	}
}

// Run performs one load at startup, then blocks re-running on folder
// changes until ctx is cancelled. Folders that cannot be watched are
// skipped; the schedule still covers them.
func (w *Watcher) Run(ctx context.Context) error {
	w.runOnce(ctx, "startup")

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create filesystem watcher: %w", err)
	}
	defer fw.Close()

	watched := 0
	for _, folder := range w.cfg.Folders {
		if err := fw.Add(folder.Path); err != nil {
			w.log.Warn("folder not watchable", "path", folder.Path, "error", err)
			continue
		}
		watched++
	}
	w.log.Info("watching folders", "count", watched, "debounce", w.debounce)

	if spec := w.cfg.Watch.Schedule; spec != "" {
		sched := cron.New()
		if _, err := sched.AddFunc(spec, func() { w.poke("schedule") }); err != nil {
			w.log.Warn("invalid schedule", "schedule", spec, "error", err)
		} else {
			sched.Start()
			defer sched.Stop()
			w.log.Info("schedule active", "schedule", spec)
		}
	}

	// The timer starts disarmed; events arm it and quiet time fires it.
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()
	pending := false

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !relevant(evt) {
				continue
			}
			w.log.Debug("filesystem event", "op", evt.Op.String(), "path", evt.Name)
			pending = true
			timer.Reset(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", "error", err)

		case <-w.trigger:
			pending = true
			timer.Reset(w.debounce)

		case <-timer.C:
			if !pending {
				continue
			}
			pending = false
			w.runOnce(ctx, "change")
		}
	}
}

// poke requests a run without blocking; one queued trigger is enough.
func (w *Watcher) poke(reason string) {
	w.log.Debug("run requested", "reason", reason)
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

func (w *Watcher) runOnce(ctx context.Context, reason string) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	results, err := w.runner.Run(ctx)
	if err != nil {
		w.log.Error("run failed", "reason", reason, "error", err)
		return
	}
	var rows int64
	for _, r := range results {
		rows += r.Rows
	}
	w.log.Info("run finished",
		"reason", reason,
		"tables", len(results),
		"rows", rows,
		"duration", time.Since(start))
}

// relevant filters events down to data-file changes. Spreadsheet lock
// files churn the whole time an operator has a workbook open.
func relevant(evt fsnotify.Event) bool {
	const ops = fsnotify.Create | fsnotify.Write | fsnotify.Rename | fsnotify.Remove
	if evt.Op&ops == 0 {
		return false
	}
	return source.IsDataFile(evt.Name)
}
