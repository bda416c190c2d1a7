package broker

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/storepulse/inventory-alerts/internal/kafka"
)

// attemptHeader carries the delivery attempt count across redeliveries.
// Republishing with an incremented header is what bounds the retry budget:
// Kafka itself has no per-message attempt counter.
const attemptHeader = "delivery_attempt"

// Kafka is the production broker adapter. Publishing uses synchronous
// leader-acked writes; consuming uses consumer groups with explicit commits
// so a message is only acknowledged after its handler returned.
type Kafka struct {
	brokers       []string
	maxDeliveries int

	mu      sync.Mutex
	writers map[string]*kafkago.Writer
}

// Ensure Kafka implements Broker.
var _ Broker = (*Kafka)(nil)

// NewKafka creates a Kafka broker adapter for the given comma-separated
// broker list. maxDeliveries <= 0 selects DefaultMaxDeliveries.
func NewKafka(brokers string, maxDeliveries int) (*Kafka, error) {
	if brokers == "" {
		return nil, fmt.Errorf("brokers cannot be empty")
	}
	if maxDeliveries <= 0 {
		maxDeliveries = DefaultMaxDeliveries
	}
	return &Kafka{
		brokers:       kafka.ParseBrokers(brokers),
		maxDeliveries: maxDeliveries,
		writers:       make(map[string]*kafkago.Writer),
	}, nil
}

// writerFor returns the writer for a topic, creating it on first use.
func (k *Kafka) writerFor(topic string) *kafkago.Writer {
	k.mu.Lock()
	defer k.mu.Unlock()
	w, ok := k.writers[topic]
	if !ok {
		w = kafka.NewWriter(k.brokers, topic)
		k.writers[topic] = w
	}
	return w
}

// Publish writes one message to the topic with attempt 1.
func (k *Kafka) Publish(ctx context.Context, topic string, key, value []byte) error {
	return k.publishAttempt(ctx, topic, key, value, 1)
}

// publishAttempt writes a message carrying an explicit attempt count.
func (k *Kafka) publishAttempt(ctx context.Context, topic string, key, value []byte, attempt int) error {
	msg := kafkago.Message{
		Key:   key,
		Value: value,
		Headers: []kafkago.Header{
			{Key: "content-type", Value: []byte("application/json")},
			{Key: attemptHeader, Value: []byte(strconv.Itoa(attempt))},
		},
	}
	if err := k.writerFor(topic).WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to topic %s: %w", topic, err)
	}
	return nil
}

// Subscribe reads topic messages in a consumer group and delivers them to
// the handler. Offsets are committed only after the handler outcome is
// recorded, so a crash between read and commit causes redelivery, never
// loss. Handler failure republishes the message with an incremented attempt
// count; an exhausted budget routes it to the dead-letter topic.
func (k *Kafka) Subscribe(ctx context.Context, topic, groupID string, h Handler) error {
	if err := kafka.ValidateConsumerParams(strings.Join(k.brokers, ","), topic, groupID); err != nil {
		return err
	}

	reader := kafkago.NewReader(kafka.NewReaderConfig(k.brokers, topic, groupID))
	defer reader.Close()

	slog.Info("Kafka subscription started",
		"topic", topic,
		"group_id", groupID,
		"max_deliveries", k.maxDeliveries,
	)

	for {
		fetched, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("Kafka subscription stopped", "topic", topic)
				return nil
			}
			slog.Error("Failed to fetch message", "topic", topic, "error", err)
			continue
		}

		msg := Message{
			Topic:   topic,
			Key:     fetched.Key,
			Value:   fetched.Value,
			Attempt: attemptFrom(fetched),
		}

		if herr := h(ctx, msg); herr != nil {
			if ctx.Err() != nil {
				// Shutdown mid-handling: leave the offset uncommitted so the
				// message is redelivered after restart.
				return nil
			}
			if err := k.requeue(ctx, msg, herr); err != nil {
				slog.Error("Failed to requeue message, leaving offset uncommitted",
					"topic", topic,
					"error", err,
				)
				continue
			}
		}

		if err := reader.CommitMessages(ctx, fetched); err != nil {
			slog.Error("Failed to commit offset", "topic", topic, "error", err)
		}
	}
}

// requeue republishes a failed message with an incremented attempt count,
// or routes it to the dead-letter topic when the budget is exhausted.
func (k *Kafka) requeue(ctx context.Context, msg Message, cause error) error {
	if msg.Attempt >= k.maxDeliveries {
		slog.Warn("Message exhausted delivery budget, routing to dead letter",
			"topic", msg.Topic,
			"attempts", msg.Attempt,
			"error", cause,
		)
		return k.publishAttempt(ctx, DeadLetterTopic(msg.Topic), msg.Key, msg.Value, 1)
	}
	slog.Warn("Handler failed, scheduling redelivery",
		"topic", msg.Topic,
		"attempt", msg.Attempt,
		"max_deliveries", k.maxDeliveries,
		"error", cause,
	)
	return k.publishAttempt(ctx, msg.Topic, msg.Key, msg.Value, msg.Attempt+1)
}

// attemptFrom extracts the delivery attempt from message headers,
// defaulting to 1 for messages published by other producers.
func attemptFrom(msg kafkago.Message) int {
	for _, h := range msg.Headers {
		if h.Key == attemptHeader {
			if n, err := strconv.Atoi(string(h.Value)); err == nil && n > 0 {
				return n
			}
		}
	}
	return 1
}

// Close closes all topic writers.
func (k *Kafka) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	var firstErr error
	for topic, w := range k.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close writer for topic %s: %w", topic, err)
		}
	}
	return firstErr
}
