package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileEmitter appends events to a JSONL trail file. The chain head is
// recovered from the file itself, so the chain survives restarts.
type FileEmitter struct {
	path string
	log  *slog.Logger

	mu       sync.Mutex
	lastHash string
	loaded   bool
}

// NewFileEmitter creates a file emitter, ensuring the parent directory
// exists.
func NewFileEmitter(path string, log *slog.Logger) (*FileEmitter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create trail directory: %w", err)
	}
	return &FileEmitter{path: path, log: log}, nil
}

// EmitPublish fills in the event identity and chain fields and appends
// the event to the trail.
func (e *FileEmitter) EmitPublish(_ context.Context, evt Event) error {
	_, err := e.appendEvent(evt)
	return err
}

// appendEvent finalizes the event (identity, timestamp, chain) and
// appends it to the trail, returning the event as written.
func (e *FileEmitter) appendEvent(evt Event) (Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.loaded {
		hash, err := lastEventHash(e.path)
		if err != nil {
			return evt, fmt.Errorf("recover chain head: %w", err)
		}
		e.lastHash = hash
		e.loaded = true
	}

	evt.Version = eventVersion
	evt.EventType = eventType
	evt.EventID = GenerateEventID()
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	evt.Chain.PrevEventHash = e.lastHash
	evt.Chain.EventHash = ComputeEventHash(&evt)

	data, err := json.Marshal(evt)
	if err != nil {
		return evt, fmt.Errorf("marshal event: %w", err)
	}

	f, err := os.OpenFile(e.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return evt, fmt.Errorf("open trail: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		f.Close()
		return evt, fmt.Errorf("append trail: %w", err)
	}
	if err := f.Close(); err != nil {
		return evt, fmt.Errorf("close trail: %w", err)
	}

	e.lastHash = evt.Chain.EventHash
	e.log.Debug("publish event recorded",
		"event_id", evt.EventID,
		"event_hash", evt.Chain.EventHash)
	return evt, nil
}

// Close releases resources.
func (e *FileEmitter) Close() error {
	return nil
}
