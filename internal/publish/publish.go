// Package publish copies the staging database over the published file
// atomically, riding out transient locks held by report readers.
package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fatotools/wms-loader/internal/metrics"
	"github.com/fatotools/wms-loader/internal/util"
)

// Overridable for fault injection in tests.
var (
	copyFn   = copyFile
	renameFn = os.Rename
)

// PublishError means the destination never became writable within the
// retry budget. The staging database is intact; only the swap failed.
type PublishError struct {
	Dest     string
	Attempts int
	Err      error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish to %s failed after %d attempts: %v", e.Dest, e.Attempts, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// Publisher swaps the staging database into the published location.
type Publisher struct {
	attempts int
	delay    time.Duration
	log      *slog.Logger
}

// New builds a Publisher retrying up to attempts times, waiting delay
// between tries.
func New(attempts int, delay time.Duration, log *slog.Logger) *Publisher {
	if attempts < 1 {
		attempts = 1
	}
	return &Publisher{attempts: attempts, delay: delay, log: log}
}

// Publish replaces dest with src:
//
//  1. Copy src to a temp sibling of dest, preserving mode and mtime.
//  2. Rename the temp file over dest.
//
// Readers holding dest open on platforms with mandatory locks surface as
// permission errors; those are retried. Anything else aborts immediately.
func (p *Publisher) Publish(ctx context.Context, src, dest string) error {
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("staging database: %w", err)
	}
	if err := util.EnsureDir(filepath.Dir(dest)); err != nil {
		return fmt.Errorf("create publish directory: %w", err)
	}

	tempPath := dest + ".tmp"
	var lastErr error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		err := p.swap(src, tempPath, dest)
		if err == nil {
			p.log.Info("published", "dest", dest, "attempt", attempt)
			return nil
		}
		if !errors.Is(err, os.ErrPermission) {
			return fmt.Errorf("publish to %s: %w", dest, err)
		}
		lastErr = err
		p.log.Warn("destination busy, retrying",
			"dest", dest,
			"attempt", attempt,
			"max_attempts", p.attempts,
			"error", err)
		if m := metrics.Get(); m != nil {
			m.PublishRetries.Inc()
		}
		if attempt < p.attempts {
			select {
			case <-time.After(p.delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return &PublishError{Dest: dest, Attempts: p.attempts, Err: lastErr}
}

func (p *Publisher) swap(src, tempPath, dest string) error {
	if err := copyFn(src, tempPath); err != nil {
		return fmt.Errorf("copy to temp file %s: %w", tempPath, err)
	}
	if err := renameFn(tempPath, dest); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename %s to %s: %w", tempPath, dest, err)
	}
	return nil
}

// copyFile copies src to dst, carrying over the file mode and
// modification time.
func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}
	return os.Chtimes(dst, time.Now(), info.ModTime())
}
