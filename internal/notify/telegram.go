package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// sendTimeout bounds one outbound HTTP call so a hung destination never
// stalls the broker's other concurrent deliveries.
const sendTimeout = 5 * time.Second

// Telegram sends alerts through the Telegram Bot API.
type Telegram struct {
	token      string
	chatID     string
	baseURL    string
	httpClient *http.Client
}

// Ensure Telegram implements Notifier.
var _ Notifier = (*Telegram)(nil)

// NewTelegram creates a Telegram notifier for the given bot token and chat.
func NewTelegram(token, chatID string) *Telegram {
	return &Telegram{
		token:   token,
		chatID:  chatID,
		baseURL: "https://api.telegram.org",
		httpClient: &http.Client{
			Timeout: sendTimeout,
		},
	}
}

// Name identifies the transport for logging.
func (t *Telegram) Name() string { return "telegram" }

// telegramRequest is the sendMessage API payload.
type telegramRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

// Send posts the message to the bot's sendMessage endpoint.
// Authentication and request errors are permanent; rate limiting, server
// errors and network failures are transient.
func (t *Telegram) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(telegramRequest{ChatID: t.chatID, Text: msg.Text})
	if err != nil {
		return Permanent(fmt.Errorf("failed to marshal telegram request: %w", err))
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Permanent(fmt.Errorf("failed to create telegram request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return Transient(fmt.Errorf("failed to reach telegram: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		slog.Debug("Telegram alert sent",
			"chat_id", t.chatID,
			"dedup_key", msg.DedupKey,
		)
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return Transient(fmt.Errorf("telegram rate limit: status %d", resp.StatusCode))
	case resp.StatusCode >= 500:
		return Transient(fmt.Errorf("telegram server error: status %d", resp.StatusCode))
	default:
		// 400/401/403: bad token, bad chat id or malformed request.
		// Redelivering cannot fix these.
		return Permanent(fmt.Errorf("telegram rejected message: status %d", resp.StatusCode))
	}
}
