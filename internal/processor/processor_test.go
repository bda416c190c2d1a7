package processor

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/storepulse/inventory-alerts/internal/audit"
	"github.com/storepulse/inventory-alerts/internal/broker"
	"github.com/storepulse/inventory-alerts/internal/config"
	"github.com/storepulse/inventory-alerts/internal/dispatch"
	"github.com/storepulse/inventory-alerts/internal/dispatch/retry"
	"github.com/storepulse/inventory-alerts/internal/engine"
	"github.com/storepulse/inventory-alerts/internal/events"
	"github.com/storepulse/inventory-alerts/internal/notify"
)

// countRecorder counts metric events for assertions.
type countRecorder struct {
	mu           sync.Mutex
	received     int
	processed    int
	delivered    int
	duplicate    int
	deadLettered int
	invalid      int
	errs         int
}

func (c *countRecorder) RecordReceived()                   { c.mu.Lock(); c.received++; c.mu.Unlock() }
func (c *countRecorder) RecordProcessed(_ time.Duration)   { c.mu.Lock(); c.processed++; c.mu.Unlock() }
func (c *countRecorder) RecordDelivered()                  { c.mu.Lock(); c.delivered++; c.mu.Unlock() }
func (c *countRecorder) RecordDuplicate()                  { c.mu.Lock(); c.duplicate++; c.mu.Unlock() }
func (c *countRecorder) RecordDeadLettered()               { c.mu.Lock(); c.deadLettered++; c.mu.Unlock() }
func (c *countRecorder) RecordInvalid()                    { c.mu.Lock(); c.invalid++; c.mu.Unlock() }
func (c *countRecorder) RecordError()                      { c.mu.Lock(); c.errs++; c.mu.Unlock() }

// scriptedNotifier returns scripted errors per call and records sends.
type scriptedNotifier struct {
	mu     sync.Mutex
	sent   []notify.Message
	script []error
	calls  int
}

func (n *scriptedNotifier) Name() string { return "scripted" }

func (n *scriptedNotifier) Send(ctx context.Context, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	var err error
	if n.calls < len(n.script) {
		err = n.script[n.calls]
	}
	n.calls++
	if err == nil {
		n.sent = append(n.sent, msg)
	}
	return err
}

func (n *scriptedNotifier) texts() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.sent))
	for i, m := range n.sent {
		out[i] = m.Text
	}
	return out
}

// newProcessor wires a processor over in-memory components.
func newProcessor(notifier notify.Notifier, rec *countRecorder) *Processor {
	d := dispatch.NewWithRetryConfig(dispatch.NewMemoryStore(), notifier, retry.Config{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		BackoffFactor:  2.0,
	})
	return New(engine.New(config.ThresholdConfig{HighValue: 120.0, LowStock: 5}), d, audit.NoOp{}, rec)
}

// message wraps a sale event as a delivered broker message.
func message(t *testing.T, event *events.SaleEvent, attempt int) broker.Message {
	t.Helper()
	payload, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return broker.Message{Topic: "live-sales", Value: payload, Attempt: attempt}
}

// saleEvent builds a valid event with the given total and stock.
func saleEvent(eventID string, total float64, quantity, stock int) *events.SaleEvent {
	return &events.SaleEvent{
		EventID:        eventID,
		SKU:            "SKU005",
		ProductName:    "Winter Jacket",
		Category:       "Jacket",
		StoreID:        "Berlin_01",
		Quantity:       quantity,
		UnitPrice:      total / float64(quantity),
		TotalAmount:    total,
		StockRemaining: stock,
		Timestamp:      "2024-01-15T14:30:00Z",
	}
}

// TestProcessor_HighValueSale verifies a qualifying sale produces exactly
// one high value alert.
func TestProcessor_HighValueSale(t *testing.T) {
	notifier := &scriptedNotifier{}
	rec := &countRecorder{}
	p := newProcessor(notifier, rec)

	event := saleEvent("event-1", 299.98, 2, 40)
	if err := p.Handle(context.Background(), message(t, event, 1)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	texts := notifier.texts()
	if len(texts) != 1 {
		t.Fatalf("sends = %d, want 1", len(texts))
	}
	want := "High-Value Sale: $299.98 Winter Jacket @ Berlin_01 2024-01-15T14:30:00Z"
	if texts[0] != want {
		t.Errorf("alert text = %q, want %q", texts[0], want)
	}
	if rec.delivered != 1 || rec.processed != 1 {
		t.Errorf("metrics delivered/processed = %d/%d, want 1/1", rec.delivered, rec.processed)
	}
}

// TestProcessor_LowStockSale verifies a low stock sale produces exactly one
// low stock alert.
func TestProcessor_LowStockSale(t *testing.T) {
	notifier := &scriptedNotifier{}
	p := newProcessor(notifier, &countRecorder{})

	event := saleEvent("event-1", 29.99, 1, 3)
	if err := p.Handle(context.Background(), message(t, event, 1)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	texts := notifier.texts()
	if len(texts) != 1 {
		t.Fatalf("sends = %d, want 1", len(texts))
	}
	want := "Low Stock: Winter Jacket remaining=3 last_sale=Berlin_01 2024-01-15T14:30:00Z"
	if texts[0] != want {
		t.Errorf("alert text = %q, want %q", texts[0], want)
	}
}

// TestProcessor_BothAlerts verifies one event can produce two independent
// alerts.
func TestProcessor_BothAlerts(t *testing.T) {
	notifier := &scriptedNotifier{}
	rec := &countRecorder{}
	p := newProcessor(notifier, rec)

	event := saleEvent("event-1", 299.98, 2, 2)
	if err := p.Handle(context.Background(), message(t, event, 1)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if len(notifier.texts()) != 2 {
		t.Fatalf("sends = %d, want 2", len(notifier.texts()))
	}
	if rec.delivered != 2 {
		t.Errorf("delivered = %d, want 2", rec.delivered)
	}
}

// TestProcessor_NoAlerts verifies an unremarkable sale is acknowledged
// silently.
func TestProcessor_NoAlerts(t *testing.T) {
	notifier := &scriptedNotifier{}
	rec := &countRecorder{}
	p := newProcessor(notifier, rec)

	event := saleEvent("event-1", 59.98, 2, 40)
	if err := p.Handle(context.Background(), message(t, event, 1)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if len(notifier.texts()) != 0 {
		t.Errorf("sends = %d, want 0", len(notifier.texts()))
	}
	if rec.processed != 1 {
		t.Errorf("processed = %d, want 1", rec.processed)
	}
}

// TestProcessor_RedeliverySuppressed verifies handling the same message
// twice sends each alert once.
func TestProcessor_RedeliverySuppressed(t *testing.T) {
	notifier := &scriptedNotifier{}
	rec := &countRecorder{}
	p := newProcessor(notifier, rec)
	ctx := context.Background()

	event := saleEvent("event-1", 299.98, 2, 2)
	if err := p.Handle(ctx, message(t, event, 1)); err != nil {
		t.Fatalf("first Handle() error = %v", err)
	}
	if err := p.Handle(ctx, message(t, event, 2)); err != nil {
		t.Fatalf("redelivered Handle() error = %v", err)
	}

	if got := len(notifier.texts()); got != 2 {
		t.Errorf("sends after redelivery = %d, want 2 (one per alert type)", got)
	}
	if rec.duplicate != 2 {
		t.Errorf("duplicates = %d, want 2", rec.duplicate)
	}
}

// TestProcessor_MalformedMessageAcked verifies undecodable payloads are
// dropped without requesting redelivery.
func TestProcessor_MalformedMessageAcked(t *testing.T) {
	rec := &countRecorder{}
	p := newProcessor(&scriptedNotifier{}, rec)

	msg := broker.Message{Topic: "live-sales", Value: []byte("not json"), Attempt: 1}
	if err := p.Handle(context.Background(), msg); err != nil {
		t.Fatalf("Handle() error = %v, malformed messages must be acked", err)
	}
	if rec.invalid != 1 {
		t.Errorf("invalid = %d, want 1", rec.invalid)
	}
}

// TestProcessor_InvalidEventAcked verifies structurally invalid events are
// dropped without requesting redelivery.
func TestProcessor_InvalidEventAcked(t *testing.T) {
	rec := &countRecorder{}
	p := newProcessor(&scriptedNotifier{}, rec)

	event := saleEvent("event-1", 299.98, 2, 40)
	event.SKU = ""
	if err := p.Handle(context.Background(), message(t, event, 1)); err != nil {
		t.Fatalf("Handle() error = %v, invalid events must be acked", err)
	}
	if rec.invalid != 1 {
		t.Errorf("invalid = %d, want 1", rec.invalid)
	}
}

// TestProcessor_TransientFailureRequestsRedelivery verifies an exhausted
// transient send surfaces as a handler error for the broker to redeliver,
// and that the eventual redelivery sends exactly once.
func TestProcessor_TransientFailureRequestsRedelivery(t *testing.T) {
	notifier := &scriptedNotifier{script: []error{
		notify.Transient(errors.New("503")),
		notify.Transient(errors.New("503")),
		notify.Transient(errors.New("503")),
		notify.Transient(errors.New("503")),
	}}
	rec := &countRecorder{}
	p := newProcessor(notifier, rec)
	ctx := context.Background()

	event := saleEvent("event-1", 299.98, 2, 40)
	err := p.Handle(ctx, message(t, event, 1))
	if err == nil {
		t.Fatal("Handle() error = nil, want redelivery request")
	}
	if !strings.Contains(err.Error(), "dispatch failed") {
		t.Errorf("Handle() error = %v, want dispatch failure", err)
	}

	// Redelivery succeeds and sends exactly once.
	if err := p.Handle(ctx, message(t, event, 2)); err != nil {
		t.Fatalf("redelivered Handle() error = %v", err)
	}
	if got := len(notifier.texts()); got != 1 {
		t.Errorf("sends = %d, want 1", got)
	}
	if rec.delivered != 1 {
		t.Errorf("delivered = %d, want 1", rec.delivered)
	}
}

// TestProcessor_PermanentFailureAcked verifies a permanently failing alert
// is dead-lettered and the message acknowledged.
func TestProcessor_PermanentFailureAcked(t *testing.T) {
	notifier := &scriptedNotifier{script: []error{
		notify.Permanent(errors.New("bad chat id")),
	}}
	rec := &countRecorder{}
	p := newProcessor(notifier, rec)

	event := saleEvent("event-1", 299.98, 2, 40)
	if err := p.Handle(context.Background(), message(t, event, 1)); err != nil {
		t.Fatalf("Handle() error = %v, permanent failures must be acked", err)
	}
	if rec.deadLettered != 1 {
		t.Errorf("dead lettered = %d, want 1", rec.deadLettered)
	}
	if len(notifier.texts()) != 0 {
		t.Errorf("sends = %d, want 0", len(notifier.texts()))
	}
}

// TestProcessor_EndToEndViaMemoryBroker runs the handler behind the
// in-memory broker and verifies delivery through the full delivery contract.
func TestProcessor_EndToEndViaMemoryBroker(t *testing.T) {
	notifier := &scriptedNotifier{script: []error{
		notify.Transient(errors.New("503")),
		notify.Transient(errors.New("503")),
		notify.Transient(errors.New("503")),
		notify.Transient(errors.New("503")),
		nil,
	}}
	p := newProcessor(notifier, &countRecorder{})

	m := broker.NewMemory(5, 1)
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Subscribe(ctx, "live-sales", "group", p.Handle)

	payload, _ := json.Marshal(saleEvent("event-1", 299.98, 2, 40))
	if err := m.Publish(ctx, "live-sales", nil, payload); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	deadline := time.After(5 * time.Second)
	for len(notifier.texts()) == 0 {
		select {
		case <-deadline:
			t.Fatal("alert never delivered through broker redelivery")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if got := len(notifier.texts()); got != 1 {
		t.Errorf("sends = %d, want exactly 1", got)
	}
}
