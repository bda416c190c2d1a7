package kafka

import (
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// EnsureTopic attempts to create the topic if it doesn't exist.
// This is a best-effort operation: failures are logged but do not prevent the
// caller from proceeding, since the first write retries on its own.
func EnsureTopic(broker, topic string, partitions int) {
	conn, err := kafka.Dial("tcp", broker)
	if err != nil {
		slog.Warn("Could not connect to Kafka to check/create topic",
			"broker", broker,
			"topic", topic,
			"error", err,
		)
		return
	}
	defer conn.Close()

	partitionsInfo, err := conn.ReadPartitions(topic)
	if err == nil && len(partitionsInfo) > 0 {
		slog.Info("Topic already exists",
			"topic", topic,
			"partitions", len(partitionsInfo),
		)
		return
	}

	err = conn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     partitions,
		ReplicationFactor: 1,
	})
	if err != nil {
		slog.Warn("Could not create topic (may need to be created manually)",
			"topic", topic,
			"error", err,
		)
		return
	}

	slog.Info("Created topic", "topic", topic, "partitions", partitions)

	// Topic creation is asynchronous; wait briefly until partitions are visible.
	for i := 0; i < 5; i++ {
		time.Sleep(time.Second)
		if parts, err := conn.ReadPartitions(topic); err == nil && len(parts) > 0 {
			slog.Info("Topic is now available", "topic", topic, "partitions", len(parts))
			return
		}
	}

	slog.Warn("Topic created but may not be fully available yet", "topic", topic)
}
