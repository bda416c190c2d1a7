package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// Webhook posts alerts to a configured HTTP endpoint.
type Webhook struct {
	url        string
	httpClient *http.Client
}

// Ensure Webhook implements Notifier.
var _ Notifier = (*Webhook)(nil)

// NewWebhook creates a webhook notifier for the given destination URL.
func NewWebhook(url string) *Webhook {
	return &Webhook{
		url: url,
		httpClient: &http.Client{
			Timeout: sendTimeout,
		},
	}
}

// Name identifies the transport for logging.
func (w *Webhook) Name() string { return "webhook" }

// IsValidURL reports whether the value looks like an HTTP/HTTPS URL.
func IsValidURL(value string) bool {
	return strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://")
}

// Send posts the message JSON to the webhook URL.
// Client errors other than timeouts and rate limits are permanent.
func (w *Webhook) Send(ctx context.Context, msg Message) error {
	if !IsValidURL(w.url) {
		return Permanent(fmt.Errorf("invalid webhook URL: %q (must be a valid HTTP/HTTPS URL)", w.url))
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return Permanent(fmt.Errorf("failed to marshal webhook payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return Permanent(fmt.Errorf("failed to create webhook request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return Transient(fmt.Errorf("failed to send webhook: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		slog.Debug("Webhook alert sent",
			"webhook_url", w.url,
			"dedup_key", msg.DedupKey,
		)
		return nil
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusTooManyRequests:
		return Transient(fmt.Errorf("webhook throttled: status %d", resp.StatusCode))
	case resp.StatusCode >= 500:
		return Transient(fmt.Errorf("webhook server error: status %d", resp.StatusCode))
	default:
		return Permanent(fmt.Errorf("webhook rejected message: status %d", resp.StatusCode))
	}
}
