// Package audit emits a hash-chained trail of publish events, to a local
// JSONL file and optionally a webhook.
package audit

import (
	"context"
	"log/slog"
)

// Emitter is the interface for publish event emission.
type Emitter interface {
	EmitPublish(ctx context.Context, evt Event) error
	Close() error
}

// Config holds audit trail configuration.
type Config struct {
	Path       string // JSONL trail file; empty disables the trail
	WebhookURL string // optional HTTP endpoint notified per publish
}

// NewEmitter creates an appropriate emitter based on configuration.
func NewEmitter(cfg Config, log *slog.Logger) Emitter {
	if cfg.Path == "" {
		log.Debug("audit trail disabled, using no-op emitter")
		return &noopEmitter{}
	}

	file, err := NewFileEmitter(cfg.Path, log)
	if err != nil {
		log.Warn("audit trail unavailable, using no-op emitter", "error", err)
		return &noopEmitter{}
	}

	if cfg.WebhookURL != "" {
		log.Info("audit trail with webhook", "path", cfg.Path, "endpoint", cfg.WebhookURL)
		return NewWebhookEmitter(file, cfg.WebhookURL, log)
	}
	log.Info("audit trail", "path", cfg.Path)
	return file
}

// noopEmitter discards all events.
type noopEmitter struct{}

func (n *noopEmitter) EmitPublish(_ context.Context, _ Event) error {
	return nil
}

func (n *noopEmitter) Close() error {
	return nil
}
