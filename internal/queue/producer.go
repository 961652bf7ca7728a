package queue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/streadway/amqp"
)

// Producer enqueues analysis requests on the durable analysis queue.
type Producer struct {
	conn  Connection
	queue string

	mu sync.Mutex
	ch Channel
}

// NewProducer declares queue and returns a producer for it.
func NewProducer(conn Connection, queue string) (*Producer, error) {
	p := &Producer{conn: conn, queue: queue}
	if _, err := p.channel(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Producer) channel() (Channel, error) {
	if p.ch != nil {
		return p.ch, nil
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return nil, queueFailed("error opening RabbitMQ channel", err)
	}
	if err := declareQueue(ch, p.queue); err != nil {
		_ = ch.Close()
		return nil, err
	}
	p.ch = ch
	return ch, nil
}

// Enqueue publishes a persistent request to analyze resumeID.
func (p *Producer) Enqueue(ctx context.Context, resumeID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(AnalysisMessage{ResumeID: resumeID})
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return err
	}
	// Default exchange routes by queue name.
	err = ch.Publish("", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    resumeID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		_ = ch.Close()
		p.ch = nil
		return queueFailed("failed to enqueue analysis", err).WithContext("resume_id", resumeID)
	}
	return nil
}

// Close closes the producer channel.
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		return nil
	}
	err := p.ch.Close()
	p.ch = nil
	return err
}
