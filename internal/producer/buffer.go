package producer

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/storepulse/inventory-alerts/internal/events"
)

// Buffer is a bounded publish queue between the generation timer and the
// publisher. Generation keeps its own cadence even when a publish is slow;
// under sustained overload the oldest buffered event is dropped, since
// alerting favors recency over completeness.
type Buffer struct {
	publisher EventPublisher
	capacity  int

	mu      sync.Mutex
	backlog []*events.SaleEvent
	notify  chan struct{}

	enqueued  atomic.Uint64
	published atomic.Uint64
	dropped   atomic.Uint64
}

// NewBuffer creates a buffer over the given publisher.
func NewBuffer(publisher EventPublisher, capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 64
	}
	return &Buffer{
		publisher: publisher,
		capacity:  capacity,
		notify:    make(chan struct{}, 1),
	}
}

// Enqueue adds an event for publishing without blocking. When the buffer is
// full the oldest event is dropped to make room. Returns false if a drop
// occurred.
func (b *Buffer) Enqueue(event *events.SaleEvent) bool {
	b.enqueued.Add(1)

	b.mu.Lock()
	kept := true
	if len(b.backlog) >= b.capacity {
		oldest := b.backlog[0]
		b.backlog = b.backlog[1:]
		b.dropped.Add(1)
		kept = false
		slog.Warn("Publish buffer full, dropping oldest event",
			"dropped_event_id", oldest.EventID,
			"capacity", b.capacity,
		)
	}
	b.backlog = append(b.backlog, event)
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
	return kept
}

// Run drains the backlog and publishes events until ctx is cancelled.
// Publish failures are logged and the event is abandoned: recency beats
// completeness for alerting, and redelivery is the broker's job once the
// event has been accepted.
func (b *Buffer) Run(ctx context.Context) {
	for {
		event := b.pop()
		if event == nil {
			select {
			case <-ctx.Done():
				return
			case <-b.notify:
				continue
			}
		}

		if err := b.publisher.Publish(ctx, event); err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("Failed to publish buffered event",
				"event_id", event.EventID,
				"error", err,
			)
			continue
		}
		b.published.Add(1)
	}
}

// pop removes and returns the oldest buffered event, or nil when empty.
func (b *Buffer) pop() *events.SaleEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.backlog) == 0 {
		return nil
	}
	event := b.backlog[0]
	b.backlog = b.backlog[1:]
	return event
}

// Stats returns the enqueue, publish and drop counters plus backlog depth.
func (b *Buffer) Stats() (enqueued, published, dropped uint64, backlog int) {
	b.mu.Lock()
	backlog = len(b.backlog)
	b.mu.Unlock()
	return b.enqueued.Load(), b.published.Load(), b.dropped.Load(), backlog
}
