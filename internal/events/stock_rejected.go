package events

import "time"

const EventTypeStockRejected = "StockRejected"

// StockRejected tells downstream consumers the order could not be
// reserved. The ledger is unchanged when this event is emitted.
type StockRejected struct {
	EventType     string `json:"eventType"`
	OrderID       string `json:"orderId"`
	CorrelationID string `json:"correlationId"`
	Reason        string `json:"reason"`
	RejectedAt    int64  `json:"rejectedAt"` // unix seconds
}

func newStockRejected(orderID, correlationID, reason string, rejectedAt time.Time) StockRejected {
	return StockRejected{
		EventType:     EventTypeStockRejected,
		OrderID:       orderID,
		CorrelationID: correlationID,
		Reason:        reason,
		RejectedAt:    rejectedAt.Unix(),
	}
}
