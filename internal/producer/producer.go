// Package producer provides publishing of sale events to the broker,
// with a console implementation for dry runs and a bounded buffer that
// decouples event generation from slow publishes.
package producer

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/storepulse/inventory-alerts/internal/broker"
	"github.com/storepulse/inventory-alerts/internal/events"
)

// EventPublisher defines the interface for publishing sale events.
type EventPublisher interface {
	Publish(ctx context.Context, event *events.SaleEvent) error
	Close() error
}

// BrokerPublisher serializes sale events to JSON and publishes them to a
// broker topic, keyed by a hash of event_id for even partition distribution.
type BrokerPublisher struct {
	broker broker.Broker
	topic  string
}

// Ensure BrokerPublisher implements EventPublisher.
var _ EventPublisher = (*BrokerPublisher)(nil)

// New creates a publisher over the given broker and topic.
func New(b broker.Broker, topic string) (*BrokerPublisher, error) {
	if topic == "" {
		return nil, fmt.Errorf("topic cannot be empty")
	}
	return &BrokerPublisher{broker: b, topic: topic}, nil
}

// Publish serializes the event and writes it to the topic.
func (p *BrokerPublisher) Publish(ctx context.Context, event *events.SaleEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal sale event: %w", err)
	}
	if err := p.broker.Publish(ctx, p.topic, partitionKey(event.EventID), payload); err != nil {
		slog.Error("Failed to publish sale event",
			"event_id", event.EventID,
			"topic", p.topic,
			"error", err,
		)
		return fmt.Errorf("failed to publish sale event: %w", err)
	}
	return nil
}

// Close closes the underlying broker.
func (p *BrokerPublisher) Close() error {
	return p.broker.Close()
}

// partitionKey creates a deterministic hash of the event_id for use as the
// partition key. The same event_id always maps to the same partition.
func partitionKey(eventID string) []byte {
	hash := sha256.Sum256([]byte(eventID))
	return hash[:16]
}

// ConsolePublisher logs events instead of publishing them to a broker.
// This is the dry-run mode: useful for local testing without Kafka.
type ConsolePublisher struct {
	topic string
}

// Ensure ConsolePublisher implements EventPublisher.
var _ EventPublisher = (*ConsolePublisher)(nil)

// NewConsole creates a dry-run publisher.
func NewConsole(topic string) *ConsolePublisher {
	slog.Info("Using dry-run publisher (no broker connection)",
		"topic", topic,
	)
	return &ConsolePublisher{topic: topic}
}

// Publish logs the event as JSON instead of publishing it.
func (p *ConsolePublisher) Publish(ctx context.Context, event *events.SaleEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal sale event: %w", err)
	}
	slog.Info("Dry-run publish (event logged, not sent to broker)",
		"topic", p.topic,
		"event_id", event.EventID,
		"product_name", event.ProductName,
		"quantity", event.Quantity,
		"total_amount", event.TotalAmount,
		"store_id", event.StoreID,
		"event_json", string(payload),
	)
	return nil
}

// Close is a no-op for the console publisher.
func (p *ConsolePublisher) Close() error {
	slog.Info("Dry-run publisher closed", "topic", p.topic)
	return nil
}
