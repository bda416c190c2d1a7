package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

const (
	// outboxKey is the Redis list external consumers poll for alerts.
	outboxKey = "alerts:outbox"
	// outboxMaxLen caps the list so an absent consumer cannot grow it
	// without bound; the oldest alerts are trimmed first.
	outboxMaxLen = 10000
)

// Outbox is the pull transport: alerts are appended to a capped Redis list
// that external consumers poll (BLPOP or LRANGE) at their own pace.
type Outbox struct {
	client *redis.Client
}

// Ensure Outbox implements Notifier.
var _ Notifier = (*Outbox)(nil)

// NewOutbox creates an outbox notifier over the given Redis client.
func NewOutbox(client *redis.Client) *Outbox {
	return &Outbox{client: client}
}

// Name identifies the transport for logging.
func (o *Outbox) Name() string { return "outbox" }

// Send appends the message to the outbox list and trims it to the cap.
// Redis failures are transient: the list comes back with the server.
func (o *Outbox) Send(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return Permanent(fmt.Errorf("failed to marshal outbox message: %w", err))
	}

	pipe := o.client.TxPipeline()
	pipe.RPush(ctx, outboxKey, payload)
	pipe.LTrim(ctx, outboxKey, -outboxMaxLen, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return Transient(fmt.Errorf("failed to append to outbox: %w", err))
	}

	slog.Debug("Alert appended to outbox",
		"key", outboxKey,
		"dedup_key", msg.DedupKey,
	)
	return nil
}
