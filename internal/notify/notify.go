// Package notify provides the outbound notification channel abstraction
// and its interchangeable transport implementations: Telegram and generic
// webhooks (push), email via Resend, and a Redis outbox polled by external
// consumers (pull). The transport is selected by configuration, never by
// branching inside the dispatcher.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/storepulse/inventory-alerts/internal/config"
)

// Notifier delivers one formatted alert message to the outbound channel.
// Send blocks with an explicit timeout and classifies failures as transient
// (*TransientError) or permanent (*PermanentError).
type Notifier interface {
	// Name identifies the transport for logging.
	Name() string
	// Send delivers the message text for the given alert.
	Send(ctx context.Context, msg Message) error
}

// Message is the formatted outbound alert.
type Message struct {
	DedupKey  string `json:"dedup_key"`
	AlertType string `json:"alert_type"`
	Text      string `json:"text"`
}

// TransientError marks a recoverable delivery failure (timeouts, rate
// limits). The dispatcher retries it with backoff and then escalates to
// broker-level redelivery.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient delivery failure: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks an unrecoverable delivery failure (bad credentials,
// destination rejects permanently). The alert is dead-lettered and never
// retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return fmt.Sprintf("permanent delivery failure: %v", e.Err) }
func (e *PermanentError) Unwrap() error { return e.Err }

// Transient wraps an error as a transient delivery failure.
func Transient(err error) error {
	return &TransientError{Err: err}
}

// Permanent wraps an error as a permanent delivery failure.
func Permanent(err error) error {
	return &PermanentError{Err: err}
}

// IsTransient reports whether err is a transient delivery failure.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsPermanent reports whether err is a permanent delivery failure.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// FromConfig builds the notifier selected by the processor configuration.
// The configuration has already been validated, so credentials are present.
func FromConfig(cfg *config.ProcessorConfig, redisClient *redis.Client) (Notifier, error) {
	switch cfg.Channel {
	case config.ChannelTelegram:
		return NewTelegram(cfg.TelegramToken, cfg.TelegramChat), nil
	case config.ChannelWebhook:
		return NewWebhook(cfg.WebhookURL), nil
	case config.ChannelEmail:
		return NewEmail(cfg.ResendAPIKey, cfg.EmailFrom, cfg.EmailTo), nil
	case config.ChannelOutbox:
		if redisClient == nil {
			return nil, fmt.Errorf("outbox channel requires a Redis connection")
		}
		return NewOutbox(redisClient), nil
	default:
		return nil, fmt.Errorf("unknown alert channel: %s", cfg.Channel)
	}
}
