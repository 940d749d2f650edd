package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/espe-commerce/inventory-service-go/internal/stock"
)

const publishTimeout = 3 * time.Second

// Publisher emits outcome events to the events exchange with persistent
// delivery so the broker retains them across restarts.
type Publisher struct {
	ch *amqp.Channel
}

func NewPublisher(conn *amqp.Connection) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := declareEventsExchange(ch); err != nil {
		return nil, fmt.Errorf("declare events exchange: %w", err)
	}
	return &Publisher{ch: ch}, nil
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}

func (p *Publisher) PublishStockReserved(ctx context.Context, orderID, correlationID string, items []stock.Line, reservedAt time.Time) error {
	ev := newStockReserved(orderID, correlationID, items, reservedAt)
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal StockReserved: %w", err)
	}
	return p.publishJSON(ctx, StockReservedRoutingKey, body)
}

func (p *Publisher) PublishStockRejected(ctx context.Context, orderID, correlationID, reason string, rejectedAt time.Time) error {
	ev := newStockRejected(orderID, correlationID, reason, rejectedAt)
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal StockRejected: %w", err)
	}
	return p.publishJSON(ctx, StockRejectedRoutingKey, body)
}

func (p *Publisher) publishJSON(ctx context.Context, routingKey string, body []byte) error {
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	return p.ch.PublishWithContext(
		pubCtx,
		EventsExchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}
