// Package engine provides stateless classification of sale events into
// alert candidates against configured thresholds.
package engine

import (
	"time"

	"github.com/storepulse/inventory-alerts/internal/config"
	"github.com/storepulse/inventory-alerts/internal/events"
)

// Engine classifies sale events. It is stateless and re-entrant: the only
// state it touches is the immutable threshold configuration, so it is safe
// to call concurrently without locks.
type Engine struct {
	thresholds config.ThresholdConfig
	now        func() time.Time
}

// New creates an engine over the given thresholds.
func New(thresholds config.ThresholdConfig) *Engine {
	return &Engine{
		thresholds: thresholds,
		now:        time.Now,
	}
}

// Classify validates the event and evaluates the two independent alert
// predicates, producing zero, one or two candidates:
//
//   - high value when total_amount is strictly above the high-value threshold
//   - low stock when stock_remaining is strictly below the low-stock threshold
//
// Boundary values trigger nothing. Classification is deterministic and
// total: redelivery of the same event yields candidates with identical
// dedup keys. A malformed event returns a *events.ValidationError; callers
// must drop the message rather than retry it.
func (e *Engine) Classify(event *events.SaleEvent) ([]events.AlertCandidate, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}

	payload := events.Payload{
		EventID:        event.EventID,
		SKU:            event.SKU,
		ProductName:    event.ProductName,
		Category:       event.Category,
		StoreID:        event.StoreID,
		TotalAmount:    event.TotalAmount,
		StockRemaining: event.StockRemaining,
		Timestamp:      event.Timestamp,
	}

	var candidates []events.AlertCandidate
	if event.TotalAmount > e.thresholds.HighValue {
		candidates = append(candidates, events.AlertCandidate{
			Type:      events.AlertHighValue,
			DedupKey:  events.DedupKey(event.EventID, events.AlertHighValue),
			Payload:   payload,
			CreatedAt: e.now(),
		})
	}
	if event.StockRemaining < e.thresholds.LowStock {
		candidates = append(candidates, events.AlertCandidate{
			Type:      events.AlertLowStock,
			DedupKey:  events.DedupKey(event.EventID, events.AlertLowStock),
			Payload:   payload,
			CreatedAt: e.now(),
		})
	}
	return candidates, nil
}
