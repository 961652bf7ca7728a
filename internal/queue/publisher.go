package queue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"resumescan/internal/pipeline"

	"github.com/streadway/amqp"
)

// RoutingKey is the topic key status events for id are published under.
func RoutingKey(id string) string {
	return "resume." + id
}

// StatusPublisher publishes pipeline status events to a topic exchange.
// A single channel is shared and reopened after a failed publish.
type StatusPublisher struct {
	conn     Connection
	exchange string

	mu sync.Mutex
	ch Channel
}

// NewStatusPublisher declares exchange and returns a publisher for it.
func NewStatusPublisher(conn Connection, exchange string) (*StatusPublisher, error) {
	p := &StatusPublisher{conn: conn, exchange: exchange}
	if _, err := p.channel(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *StatusPublisher) channel() (Channel, error) {
	if p.ch != nil {
		return p.ch, nil
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return nil, queueFailed("error opening RabbitMQ channel", err)
	}
	if err := declareExchange(ch, p.exchange); err != nil {
		_ = ch.Close()
		return nil, err
	}
	p.ch = ch
	return ch, nil
}

// PublishStatus implements pipeline.StatusPublisher.
func (p *StatusPublisher) PublishStatus(ctx context.Context, event pipeline.StatusEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return err
	}
	err = ch.Publish(p.exchange, RoutingKey(event.ResumeID), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient,
		Timestamp:    event.Timestamp,
		Body:         body,
	})
	if err != nil {
		_ = ch.Close()
		p.ch = nil
		return queueFailed("failed to publish status update", err)
	}
	return nil
}

// Close closes the publishing channel. The connection is left open.
func (p *StatusPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		return nil
	}
	err := p.ch.Close()
	p.ch = nil
	return err
}
