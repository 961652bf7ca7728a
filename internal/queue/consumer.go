package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"resumescan/internal/config"
	appErrors "resumescan/internal/errors"
	"resumescan/internal/pipeline"

	"github.com/google/uuid"
	"github.com/streadway/amqp"
	"golang.org/x/sync/errgroup"
)

// Consumer runs a pool of workers reading the analysis queue. Each message
// is acknowledged once its run has finished, whatever the outcome; the
// outcome itself is persisted on the job.
type Consumer struct {
	conn     Connection
	queue    string
	workers  int
	prefetch int
	runner   pipeline.JobRunner
	logger   *appErrors.Logger
}

// NewConsumer builds a consumer from the queue config section.
func NewConsumer(conn Connection, cfg config.QueueConfig, runner pipeline.JobRunner, logger *appErrors.Logger) *Consumer {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	prefetch := cfg.Prefetch
	if prefetch < 1 {
		prefetch = 1
	}
	if logger == nil {
		logger = appErrors.NewNopLogger()
	}
	return &Consumer{
		conn:     conn,
		queue:    cfg.Name,
		workers:  workers,
		prefetch: prefetch,
		runner:   runner,
		logger:   logger,
	}
}

// Run starts the workers and blocks until ctx is done or a worker loses its
// channel. A lost channel is returned as an error.
func (c *Consumer) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := range c.workers {
		c.logger.Info("Worker started", "worker_id", i+1, "queue", c.queue)
		g.Go(func() error {
			return c.work(ctx, i+1)
		})
	}
	return g.Wait()
}

func (c *Consumer) work(ctx context.Context, workerID int) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return queueFailed("error connecting to rabbitmq channel", err)
	}
	defer func() {
		_ = ch.Close()
	}()

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return queueFailed("failed to set prefetch", err)
	}
	if err := declareQueue(ch, c.queue); err != nil {
		return err
	}

	msgs, err := ch.Consume(
		c.queue,
		fmt.Sprintf("resumescan-worker-%d", workerID),
		false, // manual ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return queueFailed("error consuming rabbitmq messages", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return queueFailed(fmt.Sprintf("worker %d: delivery channel closed", workerID), nil)
			}
			c.handle(ctx, workerID, msg)
		}
	}
}

// handle runs one delivery. Malformed messages are rejected without
// requeue. A run cut short by shutdown is requeued for another worker.
func (c *Consumer) handle(ctx context.Context, workerID int, msg amqp.Delivery) {
	id, err := parseMessage(msg.Body)
	if err != nil {
		c.logger.LogError(err, "Discarding malformed message", "worker_id", workerID)
		_ = msg.Nack(false, false)
		return
	}

	logger := c.logger.With("worker_id", workerID, "resume_id", id)
	logger.Info("Worker processing resume")

	err = c.runner.Run(ctx, id)
	if err != nil && ctx.Err() != nil {
		logger.Warn("Shutdown interrupted analysis, requeueing")
		_ = msg.Nack(false, true)
		return
	}
	if err != nil {
		logger.LogError(err, "Analysis run failed")
	}
	if ackErr := msg.Ack(false); ackErr != nil {
		logger.LogError(ackErr, "Failed to acknowledge message")
	}
}

func parseMessage(body []byte) (string, error) {
	var m AnalysisMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return "", appErrors.NewValidationError(appErrors.ErrCodeInvalidRequest, "message body is not JSON", err)
	}
	m.ResumeID = strings.TrimSpace(m.ResumeID)
	if err := uuid.Validate(m.ResumeID); err != nil {
		return "", appErrors.NewValidationError(appErrors.ErrCodeInvalidRequest, "message has no valid resumeId", err)
	}
	return m.ResumeID, nil
}
