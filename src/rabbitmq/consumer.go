package rabbitmq

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"compliance-stream/src/models"

	"github.com/streadway/amqp"
)

// UpdateHandler receives each task update consumed from the broker.
type UpdateHandler func(models.TaskUpdate)

// AMQPConsumer drains task updates from a fanout exchange. Each gateway
// instance binds its own exclusive queue, so every instance sees every update.
type AMQPConsumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewAMQPConsumer creates a new AMQPConsumer and connects to RabbitMQ.
func NewAMQPConsumer(amqpURL string) (*AMQPConsumer, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &AMQPConsumer{conn: conn, channel: ch}, nil
}

// Consume binds an exclusive queue to the exchange and delivers every decoded
// task update to the handler from a background goroutine. The goroutine stops
// when the channel or connection closes.
func (c *AMQPConsumer) Consume(exchange string, handler UpdateHandler) error {
	err := c.channel.ExchangeDeclare(
		exchange,
		"fanout",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	queue, err := c.channel.QueueDeclare(
		"",    // broker-generated name
		false, // durable
		true,  // auto-delete
		true,  // exclusive
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := c.channel.QueueBind(queue.Name, "", exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	deliveries, err := c.channel.Consume(
		queue.Name,
		"",
		true, // auto-ack
		true, // exclusive
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	slog.Info("Consuming task updates", "exchange", exchange, "queue", queue.Name)

	go func() {
		for delivery := range deliveries {
			var update models.TaskUpdate
			if err := json.Unmarshal(delivery.Body, &update); err != nil {
				slog.Warn("Dropping malformed task update message", "error", err)
				continue
			}
			handler(update)
		}
		slog.Info("Task update consumer stopped")
	}()

	return nil
}

// Close closes the RabbitMQ connection and channel.
func (c *AMQPConsumer) Close() {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}
