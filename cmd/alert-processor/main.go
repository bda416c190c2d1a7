// Package main provides the CLI entry point for the alert-processor binary.
// It consumes sale events from the broker, classifies them against the
// configured thresholds and dispatches the resulting alerts exactly once
// per (event, alert type) through the configured outbound channel.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/storepulse/inventory-alerts/internal/audit"
	"github.com/storepulse/inventory-alerts/internal/broker"
	"github.com/storepulse/inventory-alerts/internal/config"
	"github.com/storepulse/inventory-alerts/internal/dispatch"
	"github.com/storepulse/inventory-alerts/internal/engine"
	"github.com/storepulse/inventory-alerts/internal/kafka"
	"github.com/storepulse/inventory-alerts/internal/metrics"
	"github.com/storepulse/inventory-alerts/internal/notify"
	"github.com/storepulse/inventory-alerts/internal/processor"
	"github.com/storepulse/inventory-alerts/internal/shared"
)

func main() {
	logLevel := slog.LevelInfo
	if lv := os.Getenv("LOG_LEVEL"); lv == "DEBUG" || lv == "debug" {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfg := config.ProcessorConfig{}
	var graceSec int
	flag.StringVar(&cfg.KafkaBrokers, "kafka-brokers", config.GetEnvOrDefault("KAFKA_BROKERS", "localhost:9092"), "Kafka broker addresses (comma-separated)")
	flag.StringVar(&cfg.Topic, "topic", config.GetEnvOrDefault("SALES_TOPIC", "live-sales"), "Topic name for sale events")
	flag.StringVar(&cfg.ConsumerGroupID, "consumer-group-id", config.GetEnvOrDefault("CONSUMER_GROUP_ID", "alert-processor"), "Consumer group ID")
	flag.StringVar(&cfg.Project, "project", "", "Broker namespace; prefixes the topic when set")
	flag.StringVar(&cfg.Channel, "channel", config.GetEnvOrDefault("ALERT_CHANNEL", config.ChannelTelegram), "Outbound alert channel: telegram, webhook, email or outbox")
	flag.StringVar(&cfg.RedisAddr, "redis-addr", config.GetEnvOrDefault("REDIS_ADDR", ""), "Redis address for dispatch records, metrics and outbox (empty = in-memory)")
	flag.StringVar(&cfg.PostgresDSN, "postgres-dsn", config.GetEnvOrDefault("POSTGRES_DSN", ""), "Postgres DSN for the audit trail (empty = disabled)")
	flag.IntVar(&cfg.Workers, "workers", 3, "Number of concurrent consumer workers")
	flag.IntVar(&graceSec, "shutdown-grace", envInt("SHUTDOWN_GRACE", 10), "Seconds to finish in-flight messages on shutdown")
	flag.Parse()

	cfg.TelegramToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.TelegramChat = os.Getenv("TELEGRAM_CHAT_ID")
	cfg.WebhookURL = os.Getenv("WEBHOOK_URL")
	cfg.ResendAPIKey = os.Getenv("RESEND_API_KEY")
	cfg.EmailFrom = os.Getenv("ALERT_EMAIL_FROM")
	cfg.EmailTo = os.Getenv("ALERT_EMAIL_TO")
	cfg.ShutdownGrace = time.Duration(graceSec) * time.Second

	thresholds, err := config.ThresholdsFromEnv()
	if err != nil {
		slog.Error("Invalid threshold configuration", "error", err)
		os.Exit(1)
	}
	cfg.Thresholds = thresholds

	slog.Info("Starting alert-processor",
		"topic", cfg.FullTopic(),
		"group_id", cfg.ConsumerGroupID,
		"channel", cfg.Channel,
		"workers", cfg.Workers,
		"high_value_threshold", cfg.Thresholds.HighValue,
		"low_stock_threshold", cfg.Thresholds.LowStock,
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
		slog.Info("Received shutdown signal, shutting down gracefully...",
			"grace", cfg.ShutdownGrace,
		)
		cancel()
	}()

	// Redis backs the dispatch store, the pull outbox and metrics reporting.
	// Without it the processor still runs, with in-process fallbacks.
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient, err = shared.ConnectRedis(ctx, cfg.RedisAddr)
		if err != nil {
			slog.Error("Failed to connect to Redis", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
	}

	var store dispatch.Store
	if redisClient != nil {
		store = dispatch.NewRedisStore(redisClient)
		slog.Info("Using Redis dispatch store", "addr", cfg.RedisAddr)
	} else {
		store = dispatch.NewMemoryStore()
		slog.Warn("Using in-memory dispatch store; duplicate suppression does not survive restarts")
	}

	notifier, err := notify.FromConfig(&cfg, redisClient)
	if err != nil {
		slog.Error("Failed to create notifier", "channel", cfg.Channel, "error", err)
		os.Exit(1)
	}
	slog.Info("Outbound channel ready", "channel", notifier.Name())

	var sink audit.Sink = audit.NoOp{}
	if cfg.PostgresDSN != "" {
		db, err := audit.NewDB(cfg.PostgresDSN)
		if err != nil {
			slog.Error("Failed to connect to Postgres", "dsn", shared.MaskDSN(cfg.PostgresDSN), "error", err)
			os.Exit(1)
		}
		defer db.Close()
		sink = db
		slog.Info("Audit trail enabled", "dsn", shared.MaskDSN(cfg.PostgresDSN))
	}

	var recorder metrics.Recorder = metrics.NoOp{}
	if redisClient != nil {
		collector := metrics.NewCollector("alert-processor", redisClient)
		collector.Start(ctx)
		defer collector.Stop()
		recorder = collector
	}

	topic := cfg.FullTopic()
	kafka.EnsureTopic(kafka.ParseBrokers(cfg.KafkaBrokers)[0], topic, 3)
	kafka.EnsureTopic(kafka.ParseBrokers(cfg.KafkaBrokers)[0], broker.DeadLetterTopic(topic), 1)

	b, err := broker.NewKafka(cfg.KafkaBrokers, broker.DefaultMaxDeliveries)
	if err != nil {
		slog.Error("Failed to create broker", "error", err)
		os.Exit(1)
	}
	defer b.Close()

	proc := processor.New(
		engine.New(cfg.Thresholds),
		dispatch.New(store, notifier),
		sink,
		recorder,
	)

	// Each worker runs its own consumer group member; the group assigns
	// partitions across them.
	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			if err := b.Subscribe(ctx, topic, cfg.ConsumerGroupID, proc.Handle); err != nil {
				slog.Error("Consumer worker failed", "worker", worker, "error", err)
				cancel()
			}
		}(i)
	}

	slog.Info("Alert processor running", "topic", topic)

	<-ctx.Done()

	// Give in-flight handlers the grace period to finish before exiting.
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		slog.Info("All workers stopped")
	case <-time.After(cfg.ShutdownGrace):
		slog.Warn("Shutdown grace expired with workers still running")
	}

	slog.Info("Alert processor stopped")
}

// envInt reads an integer environment variable with a default.
func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
