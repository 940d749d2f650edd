package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/espe-commerce/inventory-service-go/internal/saga"
	"github.com/espe-commerce/inventory-service-go/internal/stock"
)

// OrderProcessor runs the reservation saga for one order.
type OrderProcessor interface {
	ProcessOrder(ctx context.Context, req saga.OrderRequest) (saga.Outcome, error)
}

// StartOrderCreatedConsumer consumes order.created one message at a
// time (prefetch=1) and acknowledges based on the saga result:
// a decided outcome (reserved or rejected) acks, anything else nacks
// without requeue.
func StartOrderCreatedConsumer(ctx context.Context, conn *amqp.Connection, proc OrderProcessor, logger *log.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}

	if err := declareEventsExchange(ch); err != nil {
		return fmt.Errorf("declare events exchange: %w", err)
	}

	_, err = ch.QueueDeclare(
		OrderCreatedQueue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	)
	if err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	if err := ch.QueueBind(OrderCreatedQueue, OrderCreatedRoutingKey, EventsExchange, false, nil); err != nil {
		return fmt.Errorf("queue bind: %w", err)
	}

	// Single-flight intake: the saga for one message runs to completion
	// before the broker hands over the next one.
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set prefetch: %w", err)
	}

	msgs, err := ch.Consume(
		OrderCreatedQueue,
		consumerTag,
		false, // autoAck
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				logger.Println("stopping order.created consumer")
				return
			case msg, ok := <-msgs:
				if !ok {
					logger.Println("messages channel closed")
					return
				}

				if err := handleOrderCreated(ctx, proc, msg.Body, logger); err != nil {
					logger.Printf("handle order.created: %v", err)
					_ = msg.Nack(false, false)
					continue
				}
				_ = msg.Ack(false)
			}
		}
	}()

	return nil
}

// handleOrderCreated decodes the message and drives the orchestrator.
// A returned error means the delivery must be nacked: either a poison
// message that never reaches the orchestrator, or an infrastructure
// failure for which no outcome was published. Both rejection and
// reservation outcomes return nil; they are terminal successes from the
// transport's point of view.
func handleOrderCreated(ctx context.Context, proc OrderProcessor, body []byte, logger *log.Logger) error {
	var ev OrderCreated
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal OrderCreated: %w", err)
	}
	if ev.OrderID == "" {
		return fmt.Errorf("missing orderId")
	}

	correlationID := ev.CorrelationID
	if correlationID == "" {
		// legacy producers omit it; downstream still needs one
		correlationID = uuid.NewString()
	}

	lines := make([]stock.Line, 0, len(ev.Items))
	for _, it := range ev.Items {
		if it.ProductID == "" || it.Quantity <= 0 {
			continue
		}
		lines = append(lines, stock.Line{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	out, err := proc.ProcessOrder(ctx, saga.OrderRequest{
		OrderID:       ev.OrderID,
		CorrelationID: correlationID,
		Items:         lines,
	})
	if err != nil {
		return fmt.Errorf("process order %s: %w", ev.OrderID, err)
	}

	if out.Rejected() {
		logger.Printf("order %s rejected: %s", out.OrderID, out.Reason)
	} else {
		logger.Printf("order %s reserved %d lines", out.OrderID, len(out.Reserved))
	}
	return nil
}
