// Package events defines the sale event and alert candidate structures that
// flow through the pipeline, along with payload validation.
package events

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"time"
)

// totalTolerance is the allowed floating-point drift between total_amount
// and quantity * unit_price.
const totalTolerance = 0.005

// SaleEvent represents a single point-of-sale transaction.
// It is produced once by the event source and never mutated afterwards.
type SaleEvent struct {
	EventID        string  `json:"event_id"`
	SKU            string  `json:"sku"`
	ProductName    string  `json:"product_name"`
	Category       string  `json:"category"`
	StoreID        string  `json:"store_id"`
	Quantity       int     `json:"quantity"`
	UnitPrice      float64 `json:"unit_price"`
	TotalAmount    float64 `json:"total_amount"`
	StockRemaining int     `json:"stock_remaining"`
	Timestamp      string  `json:"timestamp"`
}

// ValidationError indicates a structurally invalid sale event.
// Messages failing validation are dropped and acknowledged, never retried:
// redelivering a malformed message can never succeed.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid sale event: field %q %s", e.Field, e.Reason)
}

// Validate checks that all required fields are present and internally
// consistent. Returns a *ValidationError describing the first problem found,
// or nil if the event is well formed.
func (e *SaleEvent) Validate() error {
	if e.EventID == "" {
		return &ValidationError{Field: "event_id", Reason: "is required"}
	}
	if e.SKU == "" {
		return &ValidationError{Field: "sku", Reason: "is required"}
	}
	if e.ProductName == "" {
		return &ValidationError{Field: "product_name", Reason: "is required"}
	}
	if e.Category == "" {
		return &ValidationError{Field: "category", Reason: "is required"}
	}
	if e.StoreID == "" {
		return &ValidationError{Field: "store_id", Reason: "is required"}
	}
	if e.Quantity <= 0 {
		return &ValidationError{Field: "quantity", Reason: "must be > 0"}
	}
	if e.UnitPrice < 0 {
		return &ValidationError{Field: "unit_price", Reason: "must be >= 0"}
	}
	if e.TotalAmount < 0 {
		return &ValidationError{Field: "total_amount", Reason: "must be >= 0"}
	}
	if diff := math.Abs(e.TotalAmount - float64(e.Quantity)*e.UnitPrice); diff > totalTolerance {
		return &ValidationError{
			Field:  "total_amount",
			Reason: fmt.Sprintf("must equal quantity * unit_price (off by %.4f)", diff),
		}
	}
	if e.StockRemaining < 0 {
		return &ValidationError{Field: "stock_remaining", Reason: "must be >= 0"}
	}
	if e.Timestamp == "" {
		return &ValidationError{Field: "timestamp", Reason: "is required"}
	}
	if _, err := time.Parse(time.RFC3339, e.Timestamp); err != nil {
		return &ValidationError{Field: "timestamp", Reason: "must be ISO-8601"}
	}
	return nil
}

// AlertType identifies which threshold an alert candidate crossed.
type AlertType string

const (
	// AlertHighValue fires when total_amount exceeds the high-value threshold.
	AlertHighValue AlertType = "HIGH_VALUE"
	// AlertLowStock fires when stock_remaining drops below the low-stock threshold.
	AlertLowStock AlertType = "LOW_STOCK"
)

// AlertCandidate is derived from exactly one SaleEvent by the alert engine.
// For a given event_id at most one candidate per alert type is ever produced;
// the dedup key makes redelivery of the same event collapse to one send.
type AlertCandidate struct {
	Type      AlertType `json:"alert_type"`
	DedupKey  string    `json:"dedup_key"`
	Payload   Payload   `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

// Payload carries the human-readable fields of an alert candidate, copied
// from the originating sale event.
type Payload struct {
	EventID        string  `json:"event_id"`
	SKU            string  `json:"sku"`
	ProductName    string  `json:"product_name"`
	Category       string  `json:"category"`
	StoreID        string  `json:"store_id"`
	TotalAmount    float64 `json:"total_amount"`
	StockRemaining int     `json:"stock_remaining"`
	Timestamp      string  `json:"timestamp"`
}

// DedupKey computes the deterministic deduplication key for an event and
// alert type. Returns the first 16 bytes of SHA-256 hex encoded, which keeps
// the key short while making collisions irrelevant in practice.
func DedupKey(eventID string, alertType AlertType) string {
	hash := sha256.Sum256([]byte(eventID + ":" + string(alertType)))
	return hex.EncodeToString(hash[:16])
}
