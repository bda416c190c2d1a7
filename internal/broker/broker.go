// Package broker defines the message broker abstraction the pipeline runs
// on, with at-least-once delivery, bounded redelivery and a dead-letter
// path. Two interchangeable implementations are provided: a Kafka adapter
// for production and an in-memory adapter for dry runs and tests.
package broker

import "context"

// DefaultMaxDeliveries bounds how many times a message is delivered to a
// handler before it is routed to the dead-letter topic.
const DefaultMaxDeliveries = 5

// Message is one delivered unit. Attempt is 1-based and increments on every
// redelivery of the same logical message.
type Message struct {
	Topic   string
	Key     []byte
	Value   []byte
	Attempt int
}

// Handler processes one delivered message. Returning nil acknowledges the
// message; returning an error requests redelivery, subject to the broker's
// attempt budget. Handlers must tolerate duplicate and out-of-order
// deliveries.
type Handler func(ctx context.Context, msg Message) error

// Broker decouples producers from processors on a single logical topic.
// Delivery is at-least-once: a message may be delivered more than once but
// is never silently dropped.
type Broker interface {
	// Publish appends a message to the topic. It blocks until the broker
	// has accepted the message or ctx is cancelled.
	Publish(ctx context.Context, topic string, key, value []byte) error

	// Subscribe delivers topic messages to the handler until ctx is
	// cancelled. Handler invocations may run concurrently and carry no
	// ordering guarantee.
	Subscribe(ctx context.Context, topic, groupID string, h Handler) error

	// Close releases broker resources.
	Close() error
}

// DeadLetterTopic derives the dead-letter topic name for a topic.
func DeadLetterTopic(topic string) string {
	return topic + ".deadletter"
}
