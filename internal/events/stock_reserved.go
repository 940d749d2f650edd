package events

import (
	"time"

	"github.com/espe-commerce/inventory-service-go/internal/stock"
)

const EventTypeStockReserved = "StockReserved"

// StockReserved tells downstream consumers the whole order was reserved.
type StockReserved struct {
	EventType     string         `json:"eventType"`
	OrderID       string         `json:"orderId"`
	CorrelationID string         `json:"correlationId"`
	ReservedItems []ReservedItem `json:"reservedItems"`
	ReservedAt    int64          `json:"reservedAt"` // unix seconds
}

type ReservedItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

func newStockReserved(orderID, correlationID string, items []stock.Line, reservedAt time.Time) StockReserved {
	ev := StockReserved{
		EventType:     EventTypeStockReserved,
		OrderID:       orderID,
		CorrelationID: correlationID,
		ReservedAt:    reservedAt.Unix(),
	}
	for _, it := range items {
		ev.ReservedItems = append(ev.ReservedItems, ReservedItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
		})
	}
	return ev
}
