// Package report persists the per-run JSON summary the operators and the
// audit trail consume.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatotools/wms-loader/internal/util"
)

var (
	// ErrNoReport is returned when no run report exists yet.
	ErrNoReport = errors.New("no run report found")
)

// TableStatus is one table's outcome within a run.
type TableStatus struct {
	Table     string `json:"table"`
	FilesOK   int    `json:"files_ok"`
	FilesFail int    `json:"files_fail"`
	Rows      int64  `json:"rows"`
	Status    string `json:"status"`
}

// ProducerInfo identifies the build that produced a report.
type ProducerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	GitSHA  string `json:"git_sha,omitempty"`
}

// Report summarizes one complete run.
type Report struct {
	RunID         string        `json:"run_id"`
	StartedAt     time.Time     `json:"started_at"`
	FinishedAt    time.Time     `json:"finished_at"`
	Tables        []TableStatus `json:"tables"`
	Published     bool          `json:"published"`
	Destination   string        `json:"destination,omitempty"`
	StagingSHA256 string        `json:"staging_sha256,omitempty"`
	Producer      ProducerInfo  `json:"producer"`
}

// Writer persists run reports to a directory.
type Writer struct {
	dir string
}

// NewWriter creates a report writer, ensuring the directory exists.
func NewWriter(dir string) (*Writer, error) {
	if err := util.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("create report directory %s: %w", dir, err)
	}
	return &Writer{dir: dir}, nil
}

func (w *Writer) reportPath(runID string) string {
	return filepath.Join(w.dir, fmt.Sprintf("report_%s.json", runID))
}

// Save persists the report atomically.
func (w *Writer) Save(rep *Report) error {
	path := w.reportPath(rep.RunID)

	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	// Write atomically
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("write report temp file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename report file: %w", err)
	}

	return nil
}

// Latest loads the most recently finished report.
func (w *Writer) Latest() (*Report, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoReport
		}
		return nil, fmt.Errorf("read report directory: %w", err)
	}

	var latest *Report
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, "report_") || filepath.Ext(name) != ".json" {
			continue
		}
		rep, err := w.loadFromPath(filepath.Join(w.dir, name))
		if err != nil {
			continue
		}
		if latest == nil || rep.FinishedAt.After(latest.FinishedAt) {
			latest = rep
		}
	}
	if latest == nil {
		return nil, ErrNoReport
	}
	return latest, nil
}

func (w *Writer) loadFromPath(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read report file: %w", err)
	}
	var rep Report
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, fmt.Errorf("parse report file: %w", err)
	}
	return &rep, nil
}
