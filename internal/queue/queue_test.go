package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"resumescan/internal/config"
	appErrors "resumescan/internal/errors"
	"resumescan/internal/pipeline"
	"resumescan/internal/types"

	"github.com/google/uuid"
	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	mu         sync.Mutex
	deliveries chan amqp.Delivery
	published  []published
	queues     []string
	exchanges  []string
	prefetch   int
	publishErr error
	closed     bool
}

func (c *fakeChannel) Qos(prefetchCount, _ int, _ bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prefetch = prefetchCount
	return nil
}

func (c *fakeChannel) QueueDeclare(name string, _, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queues = append(c.queues, name)
	return amqp.Queue{Name: name}, nil
}

func (c *fakeChannel) ExchangeDeclare(name, kind string, _, _, _, _ bool, _ amqp.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exchanges = append(c.exchanges, name+":"+kind)
	return nil
}

func (c *fakeChannel) Consume(string, string, bool, bool, bool, bool, amqp.Table) (<-chan amqp.Delivery, error) {
	return c.deliveries, nil
}

func (c *fakeChannel) Publish(exchange, key string, _, _ bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		return c.publishErr
	}
	c.published = append(c.published, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

type fakeConnection struct {
	mu       sync.Mutex
	channels []*fakeChannel
	next     func() *fakeChannel
}

func (c *fakeConnection) Channel() (Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := &fakeChannel{}
	if c.next != nil {
		ch = c.next()
	}
	c.channels = append(c.channels, ch)
	return ch, nil
}

func (c *fakeConnection) Close() error { return nil }

// acker records how each delivery was settled.
type acker struct {
	mu      sync.Mutex
	results map[uint64]string
	done    chan uint64
}

func newAcker() *acker {
	return &acker{results: map[uint64]string{}, done: make(chan uint64, 16)}
}

func (a *acker) settle(tag uint64, how string) error {
	a.mu.Lock()
	a.results[tag] = how
	a.mu.Unlock()
	a.done <- tag
	return nil
}

func (a *acker) Ack(tag uint64, _ bool) error { return a.settle(tag, "ack") }
func (a *acker) Nack(tag uint64, _ bool, requeue bool) error {
	if requeue {
		return a.settle(tag, "requeue")
	}
	return a.settle(tag, "nack")
}
func (a *acker) Reject(tag uint64, requeue bool) error { return a.Nack(tag, false, requeue) }

func (a *acker) result(tag uint64) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.results[tag]
}

type funcRunner func(ctx context.Context, id string) error

func (f funcRunner) Run(ctx context.Context, id string) error { return f(ctx, id) }

func delivery(a *acker, tag uint64, body string) amqp.Delivery {
	return amqp.Delivery{Acknowledger: a, DeliveryTag: tag, Body: []byte(body)}
}

func TestConsumerSettlesEveryDelivery(t *testing.T) {
	deliveries := make(chan amqp.Delivery, 8)
	conn := &fakeConnection{next: func() *fakeChannel { return &fakeChannel{deliveries: deliveries} }}

	okID := uuid.NewString()
	failID := uuid.NewString()

	var mu sync.Mutex
	var ran []string
	runner := funcRunner(func(ctx context.Context, id string) error {
		mu.Lock()
		ran = append(ran, id)
		mu.Unlock()
		if id == failID {
			return appErrors.NewIOError(appErrors.ErrCodeEmptyDocument, "empty", nil)
		}
		return nil
	})

	c := NewConsumer(conn, config.QueueConfig{Name: "resume.analysis", Workers: 2, Prefetch: 1}, runner, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()

	a := newAcker()
	deliveries <- delivery(a, 1, `{"resumeId":"`+okID+`"}`)
	deliveries <- delivery(a, 2, `{"resumeId":"`+failID+`"}`)
	deliveries <- delivery(a, 3, `not json`)
	deliveries <- delivery(a, 4, `{"resumeId":"../etc/passwd"}`)

	for range 4 {
		select {
		case <-a.done:
		case <-time.After(2 * time.Second):
			t.Fatal("delivery was not settled")
		}
	}

	cancel()
	require.NoError(t, <-errCh)

	assert.Equal(t, "ack", a.result(1))
	assert.Equal(t, "ack", a.result(2), "failed runs are persisted, not redelivered")
	assert.Equal(t, "nack", a.result(3))
	assert.Equal(t, "nack", a.result(4))
	assert.ElementsMatch(t, []string{okID, failID}, ran)

	for _, ch := range conn.channels {
		assert.Equal(t, 1, ch.prefetch)
		assert.Equal(t, []string{"resume.analysis"}, ch.queues)
	}
	assert.Len(t, conn.channels, 2)
}

func TestConsumerRequeuesOnShutdown(t *testing.T) {
	deliveries := make(chan amqp.Delivery, 1)
	conn := &fakeConnection{next: func() *fakeChannel { return &fakeChannel{deliveries: deliveries} }}

	ctx, cancel := context.WithCancel(context.Background())
	runner := funcRunner(func(ctx context.Context, id string) error {
		cancel()
		<-ctx.Done()
		return ctx.Err()
	})
	c := NewConsumer(conn, config.QueueConfig{Name: "resume.analysis", Workers: 1}, runner, nil)

	a := newAcker()
	deliveries <- delivery(a, 7, `{"resumeId":"`+uuid.NewString()+`"}`)

	require.NoError(t, c.Run(ctx))
	assert.Equal(t, "requeue", a.result(7))
}

func TestConsumerReportsClosedChannel(t *testing.T) {
	deliveries := make(chan amqp.Delivery)
	close(deliveries)
	conn := &fakeConnection{next: func() *fakeChannel { return &fakeChannel{deliveries: deliveries} }}

	c := NewConsumer(conn, config.QueueConfig{Name: "resume.analysis", Workers: 1},
		funcRunner(func(context.Context, string) error { return nil }), nil)

	err := c.Run(context.Background())
	assert.Equal(t, appErrors.ErrCodeQueueFailed, appErrors.CodeOf(err))
}

func TestProducerEnqueue(t *testing.T) {
	conn := &fakeConnection{}
	p, err := NewProducer(conn, "resume.analysis")
	require.NoError(t, err)

	require.NoError(t, p.Enqueue(context.Background(), "abc"))

	ch := conn.channels[0]
	require.Len(t, ch.published, 1)
	got := ch.published[0]
	assert.Equal(t, "", got.exchange)
	assert.Equal(t, "resume.analysis", got.key)
	assert.Equal(t, amqp.Persistent, got.msg.DeliveryMode)
	assert.JSONEq(t, `{"resumeId":"abc"}`, string(got.msg.Body))
	assert.Equal(t, []string{"resume.analysis"}, ch.queues)
}

func TestStatusPublisher(t *testing.T) {
	conn := &fakeConnection{}
	p, err := NewStatusPublisher(conn, "resume_updates")
	require.NoError(t, err)

	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	err = p.PublishStatus(context.Background(), pipeline.StatusEvent{
		ResumeID:  "abc",
		Status:    types.StatusFailed,
		Message:   "This PDF contains no readable text. It might be a scanned image.",
		ErrorCode: appErrors.ErrCodeEmptyDocument,
		Timestamp: ts,
	})
	require.NoError(t, err)

	ch := conn.channels[0]
	assert.Equal(t, []string{"resume_updates:topic"}, ch.exchanges)
	require.Len(t, ch.published, 1)
	got := ch.published[0]
	assert.Equal(t, "resume_updates", got.exchange)
	assert.Equal(t, "resume.abc", got.key)

	var body map[string]any
	require.NoError(t, json.Unmarshal(got.msg.Body, &body))
	assert.Equal(t, "abc", body["resumeId"])
	assert.Equal(t, "FAILED", body["status"])
	assert.Equal(t, "EMPTY_DOCUMENT", body["errorCode"])
	assert.Equal(t, "2026-01-02T03:04:05Z", body["timestamp"])
}

func TestStatusPublisherOmitsEmptyErrorCode(t *testing.T) {
	conn := &fakeConnection{}
	p, err := NewStatusPublisher(conn, "resume_updates")
	require.NoError(t, err)

	require.NoError(t, p.PublishStatus(context.Background(), pipeline.StatusEvent{
		ResumeID: "abc",
		Status:   types.StatusCompleted,
		Message:  "Analysis complete",
	}))

	var body map[string]any
	require.NoError(t, json.Unmarshal(conn.channels[0].published[0].msg.Body, &body))
	assert.NotContains(t, body, "errorCode")
	assert.NotEmpty(t, body["timestamp"])
}

func TestStatusPublisherReopensAfterFailure(t *testing.T) {
	first := &fakeChannel{publishErr: errors.New("channel closed")}
	calls := 0
	conn := &fakeConnection{next: func() *fakeChannel {
		calls++
		if calls == 1 {
			return first
		}
		return &fakeChannel{}
	}}
	p, err := NewStatusPublisher(conn, "resume_updates")
	require.NoError(t, err)

	event := pipeline.StatusEvent{ResumeID: "abc", Status: types.StatusProcessing}
	err = p.PublishStatus(context.Background(), event)
	assert.Equal(t, appErrors.ErrCodeQueueFailed, appErrors.CodeOf(err))
	assert.True(t, first.closed)

	require.NoError(t, p.PublishStatus(context.Background(), event))
	assert.Len(t, conn.channels, 2)
	assert.Len(t, conn.channels[1].published, 1)
}
