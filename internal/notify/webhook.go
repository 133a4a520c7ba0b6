package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookPoster posts JSON payloads to arbitrary webhook URLs. It backs both
// the per-alert webhook delivery (each alert carries its own URL) and the
// fixed-URL operator channel below.
type WebhookPoster struct {
	client *http.Client
}

// NewWebhookPoster creates a WebhookPoster with a 5-second timeout. Alert
// delivery happens on the price-watch path, so a slow receiver must not
// stall evaluation for long.
func NewWebhookPoster() *WebhookPoster {
	return &WebhookPoster{
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

// Send POSTs the payload as JSON to the given URL. Any non-2xx response is
// an error.
func (w *WebhookPoster) Send(ctx context.Context, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("webhook: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// WebhookSender is a fixed-URL Sender for the operator notification channel.
type WebhookSender struct {
	url    string
	poster *WebhookPoster
}

// NewWebhookSender creates a WebhookSender delivering to the given URL.
func NewWebhookSender(url string) *WebhookSender {
	return &WebhookSender{
		url:    url,
		poster: NewWebhookPoster(),
	}
}

// Send posts the title and message as a JSON object.
func (w *WebhookSender) Send(ctx context.Context, title, message string) error {
	return w.poster.Send(ctx, w.url, map[string]string{
		"title":   title,
		"message": message,
	})
}

// Name returns the sender identifier.
func (w *WebhookSender) Name() string {
	return "webhook"
}
