package events

const EventTypeOrderCreated = "OrderCreated"

// OrderCreated is published by order-service when an order is placed.
// Inventory consumes this and attempts to reserve stock.
type OrderCreated struct {
	EventType     string      `json:"eventType"`
	OrderID       string      `json:"orderId"`
	CorrelationID string      `json:"correlationId"`
	CreatedAt     string      `json:"createdAt"` // ISO-8601, informational only
	Items         []OrderItem `json:"items"`
}

type OrderItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}
