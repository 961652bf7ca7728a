// Package queue moves analysis requests and status events over RabbitMQ.
package queue

import (
	"fmt"

	appErrors "resumescan/internal/errors"

	"github.com/streadway/amqp"
)

// AnalysisMessage is the body of a message on the analysis queue.
type AnalysisMessage struct {
	ResumeID string `json:"resumeId"`
}

// Channel is the subset of *amqp.Channel the queue package uses.
type Channel interface {
	Qos(prefetchCount, prefetchSize int, global bool) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Connection opens channels.
type Connection interface {
	Channel() (Channel, error)
	Close() error
}

type amqpConnection struct {
	conn *amqp.Connection
}

func (c *amqpConnection) Channel() (Channel, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func (c *amqpConnection) Close() error {
	return c.conn.Close()
}

// Dial connects to the broker at url.
func Dial(url string) (Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, queueFailed("error connecting to RabbitMQ", err)
	}
	return &amqpConnection{conn: conn}, nil
}

// declareQueue declares a durable, non-exclusive queue.
func declareQueue(ch Channel, name string) error {
	_, err := ch.QueueDeclare(
		name,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return queueFailed(fmt.Sprintf("failed to declare queue %q", name), err)
	}
	return nil
}

// declareExchange declares a durable topic exchange.
func declareExchange(ch Channel, name string) error {
	err := ch.ExchangeDeclare(
		name,
		amqp.ExchangeTopic,
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return queueFailed(fmt.Sprintf("failed to declare exchange %q", name), err)
	}
	return nil
}

func queueFailed(message string, cause error) *appErrors.AppError {
	return appErrors.NewNetworkError(appErrors.ErrCodeQueueFailed, message, cause)
}
