package stock

import "time"

// Record is the authoritative stock state for one product.
// Both counters are kept non-negative by the repository and by
// CHECK constraints on the backing table.
type Record struct {
	ProductID string    `json:"productId"`
	Available int       `json:"availableStock"`
	Reserved  int       `json:"reservedStock"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Line is one (product, quantity) pair of an order.
type Line struct {
	ProductID string
	Quantity  int
}
