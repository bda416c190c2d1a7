// Package audit provides an optional append-only Postgres log of processed
// sale events and alert dispatch outcomes, consumed by external analytics.
// It is not required for pipeline correctness: failures are logged and
// swallowed so auditing can never stall or fail message processing.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"github.com/storepulse/inventory-alerts/internal/events"
)

// Sink records processed events and dispatched alerts.
type Sink interface {
	// RecordEvent appends one processed sale event.
	RecordEvent(ctx context.Context, event *events.SaleEvent) error

	// RecordAlert appends one alert dispatch outcome.
	RecordAlert(ctx context.Context, candidate *events.AlertCandidate, status string) error

	// Close releases sink resources.
	Close() error
}

// NoOp discards all audit records. Used when no Postgres DSN is configured.
type NoOp struct{}

// Ensure NoOp implements Sink.
var _ Sink = (*NoOp)(nil)

func (NoOp) RecordEvent(context.Context, *events.SaleEvent) error                 { return nil }
func (NoOp) RecordAlert(context.Context, *events.AlertCandidate, string) error    { return nil }
func (NoOp) Close() error                                                         { return nil }

// DB is the Postgres-backed audit sink.
//
// Expected schema:
//
//	CREATE TABLE sale_events (
//	    event_id        TEXT PRIMARY KEY,
//	    sku             TEXT NOT NULL,
//	    product_name    TEXT NOT NULL,
//	    category        TEXT NOT NULL,
//	    store_id        TEXT NOT NULL,
//	    quantity        INTEGER NOT NULL,
//	    unit_price      NUMERIC(12,2) NOT NULL,
//	    total_amount    NUMERIC(12,2) NOT NULL,
//	    stock_remaining INTEGER NOT NULL,
//	    event_ts        TEXT NOT NULL,
//	    recorded_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
//
//	CREATE TABLE alert_dispatches (
//	    id          BIGSERIAL PRIMARY KEY,
//	    dedup_key   TEXT NOT NULL,
//	    alert_type  TEXT NOT NULL,
//	    event_id    TEXT NOT NULL,
//	    status      TEXT NOT NULL,
//	    recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
type DB struct {
	conn *sql.DB
}

// Ensure DB implements Sink.
var _ Sink = (*DB)(nil)

// NewDB creates an audit sink over the given Postgres DSN.
func NewDB(dsn string) (*DB, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("Connected to audit database")
	return &DB{conn: conn}, nil
}

// newWithConn wraps an existing connection. Used by tests with sqlmock.
func newWithConn(conn *sql.DB) *DB {
	return &DB{conn: conn}
}

// RecordEvent appends one processed sale event. Redelivered events collide
// on event_id and are skipped, keeping the log one row per logical event.
func (db *DB) RecordEvent(ctx context.Context, event *events.SaleEvent) error {
	query := `
		INSERT INTO sale_events (event_id, sku, product_name, category, store_id, quantity, unit_price, total_amount, stock_remaining, event_ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (event_id) DO NOTHING
	`
	_, err := db.conn.ExecContext(ctx, query,
		event.EventID,
		event.SKU,
		event.ProductName,
		event.Category,
		event.StoreID,
		event.Quantity,
		event.UnitPrice,
		event.TotalAmount,
		event.StockRemaining,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to record sale event: %w", err)
	}
	return nil
}

// RecordAlert appends one alert dispatch outcome.
func (db *DB) RecordAlert(ctx context.Context, candidate *events.AlertCandidate, status string) error {
	query := `
		INSERT INTO alert_dispatches (dedup_key, alert_type, event_id, status)
		VALUES ($1, $2, $3, $4)
	`
	_, err := db.conn.ExecContext(ctx, query,
		candidate.DedupKey,
		string(candidate.Type),
		candidate.Payload.EventID,
		status,
	)
	if err != nil {
		return fmt.Errorf("failed to record alert dispatch: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db.conn != nil {
		slog.Info("Closing audit database connection")
		return db.conn.Close()
	}
	return nil
}
