package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/resend/resend-go/v2"
)

// Email sends alerts by email through the Resend API.
type Email struct {
	client *resend.Client
	from   string
	to     string
}

// Ensure Email implements Notifier.
var _ Notifier = (*Email)(nil)

// NewEmail creates an email notifier with the given Resend credentials.
func NewEmail(apiKey, from, to string) *Email {
	return &Email{
		client: resend.NewClient(apiKey),
		from:   from,
		to:     to,
	}
}

// Name identifies the transport for logging.
func (e *Email) Name() string { return "email" }

// Send delivers the alert as a plain-text email. API-key and address
// rejections are permanent; rate limits and server errors are transient.
func (e *Email) Send(ctx context.Context, msg Message) error {
	params := &resend.SendEmailRequest{
		From:    e.from,
		To:      []string{e.to},
		Subject: fmt.Sprintf("Inventory Alert: %s", msg.AlertType),
		Text:    msg.Text,
	}

	sent, err := e.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		if isPermanentEmailError(err) {
			return Permanent(fmt.Errorf("resend rejected email: %w", err))
		}
		return Transient(fmt.Errorf("failed to send email: %w", err))
	}

	slog.Debug("Email alert sent",
		"email_id", sent.Id,
		"to", e.to,
		"dedup_key", msg.DedupKey,
	)
	return nil
}

// isPermanentEmailError classifies Resend API errors that redelivery
// cannot fix.
func isPermanentEmailError(err error) bool {
	errStr := strings.ToLower(err.Error())
	for _, s := range []string{"api key", "unauthorized", "forbidden", "invalid", "not verified", "validation"} {
		if strings.Contains(errStr, s) {
			return true
		}
	}
	return false
}
