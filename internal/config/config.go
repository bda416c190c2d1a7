// Package config provides configuration parsing and validation for the
// sale-producer and alert-processor binaries.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Default threshold values, matching the deployed alerting function.
const (
	DefaultHighValueThreshold = 120.0
	DefaultLowStockThreshold  = 5
)

// Target selects where the sale producer publishes events.
const (
	TargetBroker = "broker"
	TargetDryRun = "dry-run"
)

// Supported outbound alert channels.
const (
	ChannelTelegram = "telegram"
	ChannelWebhook  = "webhook"
	ChannelEmail    = "email"
	ChannelOutbox   = "outbox"
)

// ConfigurationError indicates missing or invalid required settings at
// startup. It is fatal: the process logs it and exits non-zero before
// consuming any message.
type ConfigurationError struct {
	Setting string
	Reason  string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s %s", e.Setting, e.Reason)
}

// ThresholdConfig holds the alert thresholds. It is loaded once at startup
// and shared read-only across all concurrent classification invocations.
type ThresholdConfig struct {
	HighValue float64
	LowStock  int
}

// ThresholdsFromEnv loads thresholds from HIGH_VALUE_THRESHOLD and
// LOW_STOCK_THRESHOLD, falling back to the defaults when unset.
func ThresholdsFromEnv() (ThresholdConfig, error) {
	cfg := ThresholdConfig{
		HighValue: DefaultHighValueThreshold,
		LowStock:  DefaultLowStockThreshold,
	}
	if v := os.Getenv("HIGH_VALUE_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return cfg, &ConfigurationError{Setting: "HIGH_VALUE_THRESHOLD", Reason: "must be a number"}
		}
		cfg.HighValue = f
	}
	if v := os.Getenv("LOW_STOCK_THRESHOLD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, &ConfigurationError{Setting: "LOW_STOCK_THRESHOLD", Reason: "must be an integer"}
		}
		cfg.LowStock = n
	}
	return cfg, nil
}

// ProducerConfig holds all configuration for the sale-producer binary.
type ProducerConfig struct {
	KafkaBrokers string
	Topic        string
	Project      string
	Target       string
	Interval     time.Duration
	Count        int
	Seed         int64
	BufferSize   int
}

// Validate checks that all required producer settings are present and valid.
func (c *ProducerConfig) Validate() error {
	if c.Target != TargetBroker && c.Target != TargetDryRun {
		return &ConfigurationError{Setting: "target", Reason: fmt.Sprintf("must be %q or %q", TargetBroker, TargetDryRun)}
	}
	if c.Target == TargetBroker && c.KafkaBrokers == "" {
		return &ConfigurationError{Setting: "kafka-brokers", Reason: "cannot be empty when target is broker"}
	}
	if c.Topic == "" {
		return &ConfigurationError{Setting: "topic", Reason: "cannot be empty"}
	}
	if c.Interval <= 0 {
		return &ConfigurationError{Setting: "interval", Reason: "must be > 0"}
	}
	if c.Count < 0 {
		return &ConfigurationError{Setting: "count", Reason: "must be >= 0"}
	}
	if c.BufferSize <= 0 {
		return &ConfigurationError{Setting: "buffer-size", Reason: "must be > 0"}
	}
	return nil
}

// FullTopic returns the topic name, prefixed with the project namespace
// when one is configured.
func (c *ProducerConfig) FullTopic() string {
	if c.Project == "" {
		return c.Topic
	}
	return c.Project + "." + c.Topic
}

// ProcessorConfig holds all configuration for the alert-processor binary.
type ProcessorConfig struct {
	KafkaBrokers    string
	Topic           string
	ConsumerGroupID string
	Project         string

	Thresholds ThresholdConfig

	Channel       string
	TelegramToken string
	TelegramChat  string
	WebhookURL    string
	ResendAPIKey  string
	EmailFrom     string
	EmailTo       string

	RedisAddr     string
	PostgresDSN   string
	ShutdownGrace time.Duration
	Workers       int
}

// Validate checks that all required processor settings are present.
// Channel credentials are validated here, at startup, so a missing token
// fails the process instead of failing every message.
func (c *ProcessorConfig) Validate() error {
	if c.KafkaBrokers == "" {
		return &ConfigurationError{Setting: "kafka-brokers", Reason: "cannot be empty"}
	}
	if c.Topic == "" {
		return &ConfigurationError{Setting: "topic", Reason: "cannot be empty"}
	}
	if c.ConsumerGroupID == "" {
		return &ConfigurationError{Setting: "consumer-group-id", Reason: "cannot be empty"}
	}
	if c.Workers <= 0 {
		return &ConfigurationError{Setting: "workers", Reason: "must be > 0"}
	}
	if c.ShutdownGrace < 0 {
		return &ConfigurationError{Setting: "shutdown-grace", Reason: "must be >= 0"}
	}
	switch c.Channel {
	case ChannelTelegram:
		if c.TelegramToken == "" {
			return &ConfigurationError{Setting: "TELEGRAM_BOT_TOKEN", Reason: "is required for the telegram channel"}
		}
		if c.TelegramChat == "" {
			return &ConfigurationError{Setting: "TELEGRAM_CHAT_ID", Reason: "is required for the telegram channel"}
		}
	case ChannelWebhook:
		if c.WebhookURL == "" {
			return &ConfigurationError{Setting: "WEBHOOK_URL", Reason: "is required for the webhook channel"}
		}
	case ChannelEmail:
		if c.ResendAPIKey == "" {
			return &ConfigurationError{Setting: "RESEND_API_KEY", Reason: "is required for the email channel"}
		}
		if c.EmailFrom == "" || c.EmailTo == "" {
			return &ConfigurationError{Setting: "ALERT_EMAIL_FROM/ALERT_EMAIL_TO", Reason: "are required for the email channel"}
		}
	case ChannelOutbox:
		if c.RedisAddr == "" {
			return &ConfigurationError{Setting: "REDIS_ADDR", Reason: "is required for the outbox channel"}
		}
	default:
		return &ConfigurationError{Setting: "ALERT_CHANNEL", Reason: "must be telegram, webhook, email or outbox"}
	}
	return nil
}

// FullTopic returns the topic name, prefixed with the project namespace
// when one is configured.
func (c *ProcessorConfig) FullTopic() string {
	if c.Project == "" {
		return c.Topic
	}
	return c.Project + "." + c.Topic
}

// GetEnvOrDefault returns the environment variable value or a default if not set.
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
