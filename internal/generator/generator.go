// Package generator provides synthetic sale event generation with a
// per-SKU stock walk. It supports deterministic generation via seed-based
// RNG for reproducible test data.
package generator

import (
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/storepulse/inventory-alerts/internal/events"
)

// Product describes one catalog entry.
type Product struct {
	SKU          string
	Name         string
	Category     string
	BasePrice    float64
	InitialStock int
}

// DefaultCatalog mirrors the retail catalog the POS simulator ships with.
func DefaultCatalog() []Product {
	return []Product{
		{SKU: "SKU001", Name: "Red T-Shirt", Category: "T-Shirt", BasePrice: 29.99, InitialStock: 50},
		{SKU: "SKU002", Name: "Blue Jeans", Category: "Jeans", BasePrice: 79.99, InitialStock: 30},
		{SKU: "SKU003", Name: "White Sneakers", Category: "Sneakers", BasePrice: 129.99, InitialStock: 20},
		{SKU: "SKU004", Name: "Black Dress", Category: "Dress", BasePrice: 99.99, InitialStock: 15},
		{SKU: "SKU005", Name: "Winter Jacket", Category: "Jacket", BasePrice: 149.99, InitialStock: 10},
	}
}

// DefaultStores lists the store identifiers used for synthetic events.
func DefaultStores() []string {
	return []string{"Berlin_01", "Hamburg_02", "Munich_01", "Online_Store"}
}

const (
	minQuantity = 1
	maxQuantity = 3
	// Discount range applied to the base price to simulate price variations.
	minPriceFactor = 0.85
	maxPriceFactor = 1.0
)

// Generator creates sale events with internally consistent fields.
// It owns a private per-SKU stock counter so successive events for the same
// SKU trend downward realistically. This state is never shared: the stock
// level rides on each event as stock_remaining.
type Generator struct {
	rng     *rand.Rand
	catalog []Product
	stores  []string
	stock   map[string]int
	now     func() time.Time
}

// New creates a generator over the default catalog and stores.
// A non-zero seed makes generation deterministic.
func New(seed int64) *Generator {
	return NewWithCatalog(seed, DefaultCatalog(), DefaultStores())
}

// NewWithCatalog creates a generator over a custom catalog and store list.
func NewWithCatalog(seed int64, catalog []Product, stores []string) *Generator {
	src := rand.NewSource(time.Now().UnixNano())
	if seed != 0 {
		src = rand.NewSource(seed)
	}
	stock := make(map[string]int, len(catalog))
	for _, p := range catalog {
		stock[p.SKU] = p.InitialStock
	}
	return &Generator{
		rng:     rand.New(src),
		catalog: catalog,
		stores:  stores,
		stock:   stock,
		now:     time.Now,
	}
}

// Generate synthesizes one sale event. The stock counter for the chosen SKU
// is decremented by the sold quantity; when it would go below zero the SKU
// is restocked to its initial level, keeping the walk bounded.
func (g *Generator) Generate() *events.SaleEvent {
	product := g.catalog[g.rng.Intn(len(g.catalog))]
	quantity := minQuantity + g.rng.Intn(maxQuantity-minQuantity+1)

	price := roundCents(product.BasePrice * (minPriceFactor + g.rng.Float64()*(maxPriceFactor-minPriceFactor)))
	total := roundCents(price * float64(quantity))

	remaining := g.stock[product.SKU] - quantity
	if remaining < 0 {
		// Restock: the walk resets instead of going negative.
		remaining = product.InitialStock
	}
	g.stock[product.SKU] = remaining

	return &events.SaleEvent{
		EventID:        uuid.New().String(),
		SKU:            product.SKU,
		ProductName:    product.Name,
		Category:       product.Category,
		StoreID:        g.stores[g.rng.Intn(len(g.stores))],
		Quantity:       quantity,
		UnitPrice:      price,
		TotalAmount:    total,
		StockRemaining: remaining,
		Timestamp:      g.now().Format(time.RFC3339),
	}
}

// JitteredInterval returns the base interval scaled by a uniform factor in
// [0.5, 1.5) so synthetic traffic does not arrive on a perfect clock.
func (g *Generator) JitteredInterval(base time.Duration) time.Duration {
	return time.Duration(float64(base) * (0.5 + g.rng.Float64()))
}

// GenerateTestEvent creates the fixed reference event used for end-to-end
// verification: two Winter Jackets for 299.98 total, 40 units remaining.
func GenerateTestEvent() *events.SaleEvent {
	return &events.SaleEvent{
		EventID:        uuid.New().String(),
		SKU:            "SKU005",
		ProductName:    "Winter Jacket",
		Category:       "Jacket",
		StoreID:        "Berlin_01",
		Quantity:       2,
		UnitPrice:      149.99,
		TotalAmount:    299.98,
		StockRemaining: 40,
		Timestamp:      time.Now().Format(time.RFC3339),
	}
}

// roundCents rounds a monetary amount to two decimal places.
func roundCents(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
