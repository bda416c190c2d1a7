// Package main provides the CLI entry point for the sale-producer binary.
// It simulates a retail POS system: synthetic sale events are generated on
// a jittered interval and published to the broker, or logged locally in
// dry-run mode.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/storepulse/inventory-alerts/internal/broker"
	"github.com/storepulse/inventory-alerts/internal/config"
	"github.com/storepulse/inventory-alerts/internal/generator"
	"github.com/storepulse/inventory-alerts/internal/kafka"
	"github.com/storepulse/inventory-alerts/internal/producer"
)

func main() {
	logLevel := slog.LevelInfo
	if lv := os.Getenv("LOG_LEVEL"); lv == "DEBUG" || lv == "debug" {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfg := config.ProducerConfig{}
	var intervalSec float64
	var single bool
	flag.StringVar(&cfg.KafkaBrokers, "kafka-brokers", config.GetEnvOrDefault("KAFKA_BROKERS", "localhost:9092"), "Kafka broker addresses (comma-separated)")
	flag.StringVar(&cfg.Topic, "topic", config.GetEnvOrDefault("SALES_TOPIC", "live-sales"), "Topic name for sale events")
	flag.StringVar(&cfg.Project, "project", "", "Broker namespace; prefixes the topic when set")
	flag.StringVar(&cfg.Target, "target", config.TargetBroker, "Publish target: broker or dry-run")
	flag.Float64Var(&intervalSec, "interval", 2.0, "Seconds between events (jittered ±50%)")
	flag.IntVar(&cfg.Count, "count", 0, "Number of events to send (0 = run until stopped)")
	flag.Int64Var(&cfg.Seed, "seed", 0, "Random seed for deterministic generation (0 = random)")
	flag.IntVar(&cfg.BufferSize, "buffer", 256, "Publish buffer capacity (oldest events dropped under overload)")
	flag.BoolVar(&single, "single", false, "Send one fixed reference event and exit")
	flag.Parse()

	cfg.Interval = time.Duration(intervalSec * float64(time.Second))

	slog.Info("Starting sale-producer",
		"target", cfg.Target,
		"topic", cfg.FullTopic(),
		"interval", cfg.Interval,
		"count", cfg.Count,
		"seed", cfg.Seed,
	)

	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("Received shutdown signal, shutting down gracefully...")
		cancel()
	}()

	publisher, err := buildPublisher(&cfg)
	if err != nil {
		slog.Error("Failed to create publisher", "error", err)
		slog.Info("Tip: start Kafka with 'docker compose up -d' or use --target dry-run to test without a broker")
		os.Exit(1)
	}
	defer publisher.Close()

	if single {
		event := generator.GenerateTestEvent()
		if err := publisher.Publish(ctx, event); err != nil {
			slog.Error("Failed to publish reference event", "event_id", event.EventID, "error", err)
			os.Exit(1)
		}
		slog.Info("Published reference event",
			"event_id", event.EventID,
			"product_name", event.ProductName,
			"total_amount", event.TotalAmount,
			"stock_remaining", event.StockRemaining,
		)
		return
	}

	gen := generator.New(cfg.Seed)
	if err := run(ctx, &cfg, gen, publisher); err != nil && err != context.Canceled {
		slog.Error("Event generation failed", "error", err)
		os.Exit(1)
	}

	slog.Info("Sale producer stopped")
}

// buildPublisher creates the publisher selected by --target.
func buildPublisher(cfg *config.ProducerConfig) (producer.EventPublisher, error) {
	topic := cfg.FullTopic()
	if cfg.Target == config.TargetDryRun {
		return producer.NewConsole(topic), nil
	}

	slog.Info("Connecting to Kafka", "brokers", cfg.KafkaBrokers, "topic", topic)
	kafka.EnsureTopic(kafka.ParseBrokers(cfg.KafkaBrokers)[0], topic, 3)
	b, err := broker.NewKafka(cfg.KafkaBrokers, broker.DefaultMaxDeliveries)
	if err != nil {
		return nil, err
	}
	return producer.New(b, topic)
}
