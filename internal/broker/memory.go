package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// topicBuffer holds how many undelivered messages a topic retains before
// Publish blocks.
const topicBuffer = 1024

// Memory is an in-process broker with the same delivery contract as the
// Kafka adapter: at-least-once, bounded redelivery, dead-lettering. Used in
// dry-run mode and by tests; redelivery is immediate rather than scheduled.
type Memory struct {
	mu            sync.Mutex
	topics        map[string]chan Message
	maxDeliveries int
	workers       int
	closed        bool
}

// Ensure Memory implements Broker.
var _ Broker = (*Memory)(nil)

// NewMemory creates an in-memory broker. maxDeliveries <= 0 selects
// DefaultMaxDeliveries, workers <= 0 selects a single handler goroutine.
func NewMemory(maxDeliveries, workers int) *Memory {
	if maxDeliveries <= 0 {
		maxDeliveries = DefaultMaxDeliveries
	}
	if workers <= 0 {
		workers = 1
	}
	return &Memory{
		topics:        make(map[string]chan Message),
		maxDeliveries: maxDeliveries,
		workers:       workers,
	}
}

// channel returns the buffer for a topic, creating it on first use.
func (m *Memory) channel(topic string) chan Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.topics[topic]
	if !ok {
		ch = make(chan Message, topicBuffer)
		m.topics[topic] = ch
	}
	return ch
}

// Publish appends a message to the topic buffer. Blocks when the buffer is
// full so messages are never dropped.
func (m *Memory) Publish(ctx context.Context, topic string, key, value []byte) error {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return fmt.Errorf("broker is closed")
	}

	msg := Message{Topic: topic, Key: key, Value: value, Attempt: 1}
	select {
	case m.channel(topic) <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe delivers messages to the handler with the configured number of
// concurrent workers. On handler failure the message is redelivered with an
// incremented attempt count until the budget is exhausted, after which it is
// routed to the dead-letter topic.
func (m *Memory) Subscribe(ctx context.Context, topic, groupID string, h Handler) error {
	ch := m.channel(topic)
	dlq := m.channel(DeadLetterTopic(topic))

	var wg sync.WaitGroup
	for i := 0; i < m.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case msg := <-ch:
					m.deliver(ctx, ch, dlq, msg, h)
				}
			}
		}()
	}
	wg.Wait()
	return ctx.Err()
}

// deliver invokes the handler once and requeues or dead-letters on failure.
func (m *Memory) deliver(ctx context.Context, ch, dlq chan Message, msg Message, h Handler) {
	err := h(ctx, msg)
	if err == nil {
		return
	}

	if msg.Attempt >= m.maxDeliveries {
		slog.Warn("Message exhausted delivery budget, routing to dead letter",
			"topic", msg.Topic,
			"attempts", msg.Attempt,
			"error", err,
		)
		select {
		case dlq <- Message{Topic: DeadLetterTopic(msg.Topic), Key: msg.Key, Value: msg.Value, Attempt: 1}:
		case <-ctx.Done():
		}
		return
	}

	redelivery := msg
	redelivery.Attempt++
	select {
	case ch <- redelivery:
	case <-ctx.Done():
	}
}

// Pending returns the number of buffered messages on a topic. Intended for
// tests and dry-run progress logging.
func (m *Memory) Pending(topic string) int {
	return len(m.channel(topic))
}

// Close marks the broker closed. Buffered messages remain readable.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
