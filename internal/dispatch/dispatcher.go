// Package dispatch provides idempotent delivery of alert candidates to the
// outbound notification channel, with in-call retry, escalation to
// broker-level redelivery and dead-lettering.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/storepulse/inventory-alerts/internal/dispatch/retry"
	"github.com/storepulse/inventory-alerts/internal/events"
	"github.com/storepulse/inventory-alerts/internal/notify"
)

// Outcome describes how a dispatch call concluded.
type Outcome string

const (
	// OutcomeDelivered means this call sent the alert.
	OutcomeDelivered Outcome = "delivered"
	// OutcomeDuplicate means a previous delivery already handled the
	// candidate; nothing was sent.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeDeadLettered means the alert failed permanently and was
	// dead-lettered; nothing further will be attempted.
	OutcomeDeadLettered Outcome = "dead_lettered"
)

// Dispatcher delivers alert candidates exactly once per dedup key as
// observed by the outbound channel, under at-least-once redelivery from
// the broker.
type Dispatcher struct {
	store    Store
	notifier notify.Notifier
	retryCfg retry.Config
}

// New creates a dispatcher over the given record store and notifier.
func New(store Store, notifier notify.Notifier) *Dispatcher {
	return &Dispatcher{
		store:    store,
		notifier: notifier,
		retryCfg: retry.DefaultConfig(),
	}
}

// NewWithRetryConfig creates a dispatcher with custom retry behavior.
// Used by tests to shrink backoff delays.
func NewWithRetryConfig(store Store, notifier notify.Notifier, cfg retry.Config) *Dispatcher {
	return &Dispatcher{
		store:    store,
		notifier: notifier,
		retryCfg: cfg,
	}
}

// Dispatch sends one alert candidate through the outbound channel.
//
// The candidate's dedup key is claimed atomically before sending, so
// concurrent redelivery of the same message results in exactly one
// observable send. Transient failures are retried with backoff inside this
// call and then escalated as an error so the broker performs the
// coarser-grained redelivery; permanent failures dead-letter the candidate
// and return no error, since redelivering cannot fix them.
func (d *Dispatcher) Dispatch(ctx context.Context, candidate *events.AlertCandidate) (Outcome, error) {
	claim, status, err := d.store.Claim(ctx, candidate.DedupKey)
	if err != nil {
		return "", fmt.Errorf("failed to claim candidate %s: %w", candidate.DedupKey, err)
	}

	switch claim {
	case ClaimDuplicate:
		slog.Debug("Candidate already handled, skipping",
			"dedup_key", candidate.DedupKey,
			"alert_type", candidate.Type,
			"status", status,
		)
		if status == StatusDeadLettered {
			return OutcomeDeadLettered, nil
		}
		return OutcomeDuplicate, nil
	case ClaimInFlight:
		// Another worker holds the send. Let the broker redeliver later
		// rather than racing it.
		return "", notify.Transient(fmt.Errorf("candidate %s is in flight elsewhere", candidate.DedupKey))
	}

	msg := notify.FormatMessage(candidate)
	operation := fmt.Sprintf("send_%s_%s", d.notifier.Name(), candidate.DedupKey)

	sendErr := retry.WithRetry(ctx, d.retryCfg, operation, func() error {
		return d.notifier.Send(ctx, msg)
	})
	if sendErr == nil {
		if err := d.store.MarkDelivered(ctx, candidate.DedupKey); err != nil {
			// The send happened; failing the message now would cause a
			// duplicate on redelivery with no record to suppress it. Log
			// loudly and acknowledge.
			slog.Error("Alert sent but record update failed",
				"dedup_key", candidate.DedupKey,
				"error", err,
			)
		}
		slog.Info("Alert delivered",
			"dedup_key", candidate.DedupKey,
			"alert_type", candidate.Type,
			"channel", d.notifier.Name(),
		)
		return OutcomeDelivered, nil
	}

	if notify.IsPermanent(sendErr) {
		if err := d.store.MarkDeadLettered(ctx, candidate.DedupKey); err != nil {
			slog.Error("Failed to mark candidate dead-lettered",
				"dedup_key", candidate.DedupKey,
				"error", err,
			)
		}
		slog.Warn("Alert dead-lettered after permanent failure",
			"dedup_key", candidate.DedupKey,
			"alert_type", candidate.Type,
			"channel", d.notifier.Name(),
			"error", sendErr,
		)
		return OutcomeDeadLettered, nil
	}

	// Transient exhaustion: release the claim and escalate so the broker
	// redelivers the originating message.
	if err := d.store.Release(ctx, candidate.DedupKey); err != nil {
		slog.Error("Failed to release candidate claim",
			"dedup_key", candidate.DedupKey,
			"error", err,
		)
	}
	return "", fmt.Errorf("transient dispatch failure for %s: %w", candidate.DedupKey, sendErr)
}
