// Package processor orchestrates the per-message pipeline: decode and
// validate the sale event, classify it into alert candidates, and dispatch
// each candidate idempotently.
package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/storepulse/inventory-alerts/internal/audit"
	"github.com/storepulse/inventory-alerts/internal/broker"
	"github.com/storepulse/inventory-alerts/internal/dispatch"
	"github.com/storepulse/inventory-alerts/internal/engine"
	"github.com/storepulse/inventory-alerts/internal/events"
	"github.com/storepulse/inventory-alerts/internal/metrics"
)

// Processor handles delivered sale event messages.
type Processor struct {
	engine     *engine.Engine
	dispatcher *dispatch.Dispatcher
	audit      audit.Sink
	metrics    metrics.Recorder
}

// New creates a processor. audit and metrics may be the no-op
// implementations; engine and dispatcher are required.
func New(eng *engine.Engine, dispatcher *dispatch.Dispatcher, auditSink audit.Sink, recorder metrics.Recorder) *Processor {
	return &Processor{
		engine:     eng,
		dispatcher: dispatcher,
		audit:      auditSink,
		metrics:    recorder,
	}
}

// Handle processes one delivered message through the full state machine:
//
//	Received → Validating → {Invalid → Dropped} | Valid → Classifying →
//	Classified → Dispatching(each candidate) →
//	{Delivered → Acked} | {TransientFail → Redelivered} | {PermanentFail → DeadLettered}
//
// Returning nil acknowledges the message; returning an error requests
// broker redelivery. Malformed messages are acknowledged and dropped:
// redelivering them can never succeed.
func (p *Processor) Handle(ctx context.Context, msg broker.Message) error {
	p.metrics.RecordReceived()
	start := time.Now()

	var event events.SaleEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		slog.Error("Dropping undecodable message",
			"topic", msg.Topic,
			"attempt", msg.Attempt,
			"error", err,
		)
		p.metrics.RecordInvalid()
		return nil
	}

	candidates, err := p.engine.Classify(&event)
	if err != nil {
		var vErr *events.ValidationError
		if errors.As(err, &vErr) {
			slog.Error("Dropping invalid sale event",
				"event_id", event.EventID,
				"attempt", msg.Attempt,
				"error", vErr,
			)
			p.metrics.RecordInvalid()
			return nil
		}
		p.metrics.RecordError()
		return fmt.Errorf("classification failed for event %s: %w", event.EventID, err)
	}

	if err := p.audit.RecordEvent(ctx, &event); err != nil {
		// Auditing is best effort and never blocks the pipeline.
		slog.Warn("Failed to audit sale event", "event_id", event.EventID, "error", err)
	}

	if len(candidates) == 0 {
		slog.Debug("Event triggered no alerts", "event_id", event.EventID)
		p.metrics.RecordProcessed(time.Since(start))
		return nil
	}

	for i := range candidates {
		candidate := &candidates[i]
		outcome, err := p.dispatcher.Dispatch(ctx, candidate)
		if err != nil {
			// Transient: the broker redelivers the whole message. Already
			// delivered siblings are suppressed by their dispatch records.
			p.metrics.RecordError()
			return fmt.Errorf("dispatch failed for candidate %s: %w", candidate.DedupKey, err)
		}

		switch outcome {
		case dispatch.OutcomeDelivered:
			p.metrics.RecordDelivered()
		case dispatch.OutcomeDuplicate:
			p.metrics.RecordDuplicate()
		case dispatch.OutcomeDeadLettered:
			p.metrics.RecordDeadLettered()
		}

		if err := p.audit.RecordAlert(ctx, candidate, string(outcome)); err != nil {
			slog.Warn("Failed to audit alert dispatch",
				"dedup_key", candidate.DedupKey,
				"error", err,
			)
		}
	}

	p.metrics.RecordProcessed(time.Since(start))
	return nil
}
