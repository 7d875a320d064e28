package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// WebhookEmitter appends to the file trail first, then notifies an HTTP
// endpoint. The file append is the primary record; webhook failures are
// reported but the event is already durable.
type WebhookEmitter struct {
	file     *FileEmitter
	endpoint string
	client   *http.Client
	log      *slog.Logger
}

// NewWebhookEmitter wraps a file emitter with webhook delivery.
func NewWebhookEmitter(file *FileEmitter, endpoint string, log *slog.Logger) *WebhookEmitter {
	return &WebhookEmitter{
		file:     file,
		endpoint: endpoint,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log,
	}
}

// EmitPublish records the event locally, then posts the event exactly as
// written to the endpoint.
func (e *WebhookEmitter) EmitPublish(ctx context.Context, evt Event) error {
	written, err := e.file.appendEvent(evt)
	if err != nil {
		return err
	}
	if err := e.postWithRetry(ctx, &written); err != nil {
		return fmt.Errorf("webhook delivery: %w", err)
	}
	return nil
}

// postWithRetry sends the event to the endpoint with retries.
func (e *WebhookEmitter) postWithRetry(ctx context.Context, evt *Event) error {
	var lastErr error
	retries := 3
	delay := time.Second

	for attempt := 1; attempt <= retries; attempt++ {
		err := e.post(ctx, evt)
		if err == nil {
			return nil
		}

		lastErr = err
		if attempt < retries {
			e.log.Warn("webhook attempt failed",
				"attempt", attempt,
				"max_attempts", retries,
				"error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}
	return fmt.Errorf("all %d attempts failed: %w", retries, lastErr)
}

func (e *WebhookEmitter) post(ctx context.Context, evt *Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", e.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	respBody, _ := io.ReadAll(resp.Body)
	return fmt.Errorf("http %d: %s", resp.StatusCode, string(respBody))
}

// Close releases resources.
func (e *WebhookEmitter) Close() error {
	return e.file.Close()
}
