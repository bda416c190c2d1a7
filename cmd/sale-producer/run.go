package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/storepulse/inventory-alerts/internal/config"
	"github.com/storepulse/inventory-alerts/internal/generator"
	"github.com/storepulse/inventory-alerts/internal/producer"
)

// run drives the generation loop until the count is reached or the context
// is cancelled. Events flow through a bounded buffer so a slow or
// unavailable broker never blocks generation.
func run(ctx context.Context, cfg *config.ProducerConfig, gen *generator.Generator, publisher producer.EventPublisher) error {
	buf := producer.NewBuffer(publisher, cfg.BufferSize)

	drainDone := make(chan struct{})
	drainCtx, drainCancel := context.WithCancel(context.Background())
	go func() {
		defer close(drainDone)
		buf.Run(drainCtx)
	}()

	sent := 0
	timer := time.NewTimer(gen.JitteredInterval(cfg.Interval))
	defer timer.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-timer.C:
		}

		event := gen.Generate()
		if ok := buf.Enqueue(event); !ok {
			slog.Warn("Publish buffer full, oldest event dropped", "event_id", event.EventID)
		} else {
			slog.Debug("Generated sale event",
				"event_id", event.EventID,
				"sku", event.SKU,
				"quantity", event.Quantity,
				"total_amount", event.TotalAmount,
				"stock_remaining", event.StockRemaining,
			)
		}

		sent++
		if cfg.Count > 0 && sent >= cfg.Count {
			slog.Info("Reached event count, stopping", "count", sent)
			break loop
		}
		timer.Reset(gen.JitteredInterval(cfg.Interval))
	}

	// Let the buffer flush what it already holds before closing.
	drainDeadline := time.NewTimer(5 * time.Second)
	defer drainDeadline.Stop()
	for {
		_, _, _, backlog := buf.Stats()
		if backlog == 0 {
			break
		}
		select {
		case <-drainDeadline.C:
			slog.Warn("Buffer drain timed out", "remaining", backlog)
			drainCancel()
			<-drainDone
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
	drainCancel()
	<-drainDone

	_, published, dropped, _ := buf.Stats()
	slog.Info("Producer summary",
		"generated", sent,
		"published", published,
		"dropped", dropped,
	)
	return ctx.Err()
}
