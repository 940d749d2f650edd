package events

import (
	"log"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	EventsExchange = "ecommerce.events"

	OrderCreatedQueue      = "order.created"
	OrderCreatedRoutingKey = "order.created"

	StockReservedRoutingKey = "stock.reserved"
	StockRejectedRoutingKey = "stock.rejected"

	consumerTag = "inventory-service"
)

func MustDialRabbit(url string) *amqp.Connection {
	conn, err := amqp.Dial(url)
	if err != nil {
		log.Fatalf("connect to RabbitMQ: %v", err)
	}
	return conn
}

func declareEventsExchange(ch *amqp.Channel) error {
	return ch.ExchangeDeclare(
		EventsExchange,
		"topic",
		true,  // durable
		false, // autoDelete
		false, // internal
		false, // noWait
		nil,
	)
}
