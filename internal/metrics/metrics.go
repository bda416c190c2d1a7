// Package metrics provides pipeline metrics recording with a Redis-backed
// collector. It uses the null object pattern so callers never nil-check.
package metrics

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// metricsKeyPrefix is the Redis key prefix for service metrics.
	metricsKeyPrefix = "metrics:"
	// metricsTTL is how long metrics stay in Redis if not refreshed.
	metricsTTL = 2 * time.Minute
	// defaultReportInterval is how often metrics are written to Redis.
	defaultReportInterval = 30 * time.Second
)

// Recorder defines the interface for recording pipeline metrics.
type Recorder interface {
	// RecordReceived increments the count of received messages.
	RecordReceived()

	// RecordProcessed records a processed message with its latency.
	RecordProcessed(latency time.Duration)

	// RecordDelivered increments the count of delivered alerts.
	RecordDelivered()

	// RecordDuplicate increments the count of deduplicated alerts.
	RecordDuplicate()

	// RecordDeadLettered increments the count of dead-lettered alerts.
	RecordDeadLettered()

	// RecordInvalid increments the count of dropped malformed messages.
	RecordInvalid()

	// RecordError increments the processing error counter.
	RecordError()
}

// NoOp discards all metrics. Used when no Redis address is configured.
type NoOp struct{}

// Ensure NoOp implements Recorder.
var _ Recorder = (*NoOp)(nil)

func (NoOp) RecordReceived()                 {}
func (NoOp) RecordProcessed(time.Duration)   {}
func (NoOp) RecordDelivered()                {}
func (NoOp) RecordDuplicate()                {}
func (NoOp) RecordDeadLettered()             {}
func (NoOp) RecordInvalid()                  {}
func (NoOp) RecordError()                    {}

// ServiceMetrics holds the snapshot written to Redis for one service.
type ServiceMetrics struct {
	ServiceName string    `json:"service_name"`
	StartedAt   time.Time `json:"started_at"`
	LastUpdated time.Time `json:"last_updated"`

	MessagesReceived  uint64 `json:"messages_received"`
	MessagesProcessed uint64 `json:"messages_processed"`
	AlertsDelivered   uint64 `json:"alerts_delivered"`
	AlertsDuplicate   uint64 `json:"alerts_duplicate"`
	AlertsDeadLetter  uint64 `json:"alerts_dead_lettered"`
	InvalidMessages   uint64 `json:"invalid_messages"`
	ProcessingErrors  uint64 `json:"processing_errors"`

	MessagesPerSecond      float64 `json:"messages_per_second"`
	AvgProcessingLatencyNs float64 `json:"avg_processing_latency_ns"`
}

// Collector collects pipeline counters and periodically reports them to
// Redis where external dashboards read them.
type Collector struct {
	serviceName    string
	redis          *redis.Client
	startedAt      time.Time
	reportInterval time.Duration

	received     atomic.Uint64
	processed    atomic.Uint64
	delivered    atomic.Uint64
	duplicate    atomic.Uint64
	deadLettered atomic.Uint64
	invalid      atomic.Uint64
	errors       atomic.Uint64

	totalLatencyNs atomic.Uint64
	latencyCount   atomic.Uint64

	mu                 sync.Mutex
	lastReportTime     time.Time
	lastProcessedCount uint64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Ensure Collector implements Recorder.
var _ Recorder = (*Collector)(nil)

// NewCollector creates a metrics collector for a service.
func NewCollector(serviceName string, redisClient *redis.Client) *Collector {
	return &Collector{
		serviceName:    serviceName,
		redis:          redisClient,
		startedAt:      time.Now().UTC(),
		reportInterval: defaultReportInterval,
		lastReportTime: time.Now().UTC(),
		stopCh:         make(chan struct{}),
	}
}

// Start begins the periodic metrics reporting to Redis.
func (c *Collector) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.reportInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				c.writeMetrics(context.Background()) // Final write
				return
			case <-c.stopCh:
				c.writeMetrics(context.Background()) // Final write
				return
			case <-ticker.C:
				c.writeMetrics(ctx)
			}
		}
	}()
}

// Stop stops the metrics reporting.
func (c *Collector) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}

func (c *Collector) RecordReceived() { c.received.Add(1) }

func (c *Collector) RecordProcessed(latency time.Duration) {
	c.processed.Add(1)
	c.totalLatencyNs.Add(uint64(latency.Nanoseconds()))
	c.latencyCount.Add(1)
}

func (c *Collector) RecordDelivered()    { c.delivered.Add(1) }
func (c *Collector) RecordDuplicate()    { c.duplicate.Add(1) }
func (c *Collector) RecordDeadLettered() { c.deadLettered.Add(1) }
func (c *Collector) RecordInvalid()      { c.invalid.Add(1) }
func (c *Collector) RecordError()        { c.errors.Add(1) }

// Snapshot returns current metrics without writing to Redis.
func (c *Collector) Snapshot() *ServiceMetrics {
	now := time.Now().UTC()
	processed := c.processed.Load()

	c.mu.Lock()
	elapsed := now.Sub(c.lastReportTime).Seconds()
	lastCount := c.lastProcessedCount
	c.mu.Unlock()

	var rate float64
	if elapsed > 0 {
		rate = float64(processed-lastCount) / elapsed
	}

	var avgLatencyNs float64
	if n := c.latencyCount.Load(); n > 0 {
		avgLatencyNs = float64(c.totalLatencyNs.Load()) / float64(n)
	}

	return &ServiceMetrics{
		ServiceName:            c.serviceName,
		StartedAt:              c.startedAt,
		LastUpdated:            now,
		MessagesReceived:       c.received.Load(),
		MessagesProcessed:      processed,
		AlertsDelivered:        c.delivered.Load(),
		AlertsDuplicate:        c.duplicate.Load(),
		AlertsDeadLetter:       c.deadLettered.Load(),
		InvalidMessages:        c.invalid.Load(),
		ProcessingErrors:       c.errors.Load(),
		MessagesPerSecond:      rate,
		AvgProcessingLatencyNs: avgLatencyNs,
	}
}

// writeMetrics writes current metrics to Redis.
func (c *Collector) writeMetrics(ctx context.Context) {
	if c.redis == nil {
		return
	}

	snapshot := c.Snapshot()

	c.mu.Lock()
	c.lastReportTime = snapshot.LastUpdated
	c.lastProcessedCount = snapshot.MessagesProcessed
	c.mu.Unlock()

	data, err := json.Marshal(snapshot)
	if err != nil {
		slog.Error("Failed to marshal metrics", "service", c.serviceName, "error", err)
		return
	}

	key := metricsKeyPrefix + c.serviceName
	if err := c.redis.Set(ctx, key, data, metricsTTL).Err(); err != nil {
		slog.Error("Failed to write metrics to Redis", "service", c.serviceName, "error", err)
		return
	}

	slog.Debug("Metrics written to Redis", "service", c.serviceName, "key", key)
}
