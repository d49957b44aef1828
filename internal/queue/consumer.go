package queue

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"mailsync/pkg/metrics"
	"mailsync/pkg/util"
)

// HandlerFunc processes one dispatched job. A nil return acks the job; an
// error nacks it for redelivery until the attempts budget runs out.
type HandlerFunc func(ctx context.Context, data json.RawMessage) error

type Consumer struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
	queue   amqp091.Queue
	jobName string
	handler HandlerFunc
	retries *util.RetryCounter
	logger  *zap.Logger
}

// NewConsumer creates a consumer for one job name. The retry counter tracks
// delivery attempts across redeliveries so the at-least-once broker still
// honors each job's attempts budget.
func NewConsumer(url, jobName string, retries *util.RetryCounter, logger *zap.Logger) (*Consumer, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := DeclareExchanges(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	q, err := DeclareJobQueue(ch, jobName)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	// One unacked job per consumer: keeps priority ordering meaningful and
	// failure blast radius small.
	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to set qos: %w", err)
	}

	logger.Info("Consumer initialized",
		zap.String("job", jobName),
		zap.String("queue", q.Name),
		zap.String("exchange", ExchangeName),
	)

	return &Consumer{
		conn:    conn,
		channel: ch,
		queue:   q,
		jobName: jobName,
		retries: retries,
		logger:  logger,
	}, nil
}

func (c *Consumer) SetHandler(h HandlerFunc) {
	c.handler = h
}

func (c *Consumer) Close() {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// StartConsuming starts consuming jobs. Blocks until the delivery channel
// closes or ctx is cancelled; run it in a goroutine.
func (c *Consumer) StartConsuming(ctx context.Context) error {
	if c.handler == nil {
		return fmt.Errorf("consumer handler not set")
	}

	deliveries, err := c.channel.Consume(
		c.queue.Name,
		"worker",
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("Consumer started consuming jobs",
		zap.String("job", c.jobName),
		zap.String("queue", c.queue.Name),
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-deliveries:
			if !ok {
				return nil
			}
			c.process(ctx, msg)
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg amqp091.Delivery) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Handler panic recovered",
				zap.String("job", c.jobName),
				zap.Any("panic", r),
			)
			c.fail(ctx, msg, fmt.Errorf("handler panic: %v", r))
		}
	}()

	if err := c.handler(ctx, msg.Body); err != nil {
		c.logger.Error("Handler error",
			zap.String("job", c.jobName),
			zap.String("queue", c.queue.Name),
			zap.Error(err),
		)
		metrics.IncrementJobProcessed(c.jobName, "failed")
		c.fail(ctx, msg, err)
		return
	}

	c.retries.Reset(ctx, c.retryKey(msg.Body))
	if err := msg.Ack(false); err != nil {
		c.logger.Error("Failed to ack job", zap.String("job", c.jobName), zap.Error(err))
		return
	}
	metrics.IncrementJobProcessed(c.jobName, "success")
	metrics.RecordJobLatency(c.jobName, time.Since(start))
}

// fail either requeues the job for another attempt or parks it on the DLQ
// and acks the original. Non-retryable errors park immediately; a deleted
// account or a malformed payload does not heal with redelivery.
func (c *Consumer) fail(ctx context.Context, msg amqp091.Delivery, cause error) {
	key := c.retryKey(msg.Body)

	count, err := c.retries.IncrementAndGet(ctx, key)
	if err != nil {
		// Counting is best effort; without it we fall back to requeueing.
		c.logger.Warn("Retry counter unavailable", zap.String("job", c.jobName), zap.Error(err))
	}

	retry, errType := retryDelivery(cause, count, attemptsLimit(msg))
	if retry {
		if err := msg.Nack(false, true); err != nil {
			c.logger.Error("Failed to nack job", zap.String("job", c.jobName), zap.Error(err))
		}
		return
	}

	c.logger.Error("Parking job on DLQ",
		zap.String("job", c.jobName),
		zap.String("error_type", errType),
		zap.Int64("attempts", count),
		zap.String("last_error", cause.Error()),
	)
	if err := c.publishToDLQ(msg.Body, cause.Error()); err != nil {
		c.logger.Error("Failed to publish to DLQ, requeueing", zap.Error(err))
		_ = msg.Nack(false, true)
		return
	}
	c.retries.Reset(ctx, key)
	metrics.IncrementJobProcessed(c.jobName, "dead")
	_ = msg.Ack(false)
}

// retryDelivery decides whether a failed delivery gets another attempt: the
// error must be retryable and the attempts budget not yet spent. Returns the
// classified error type for logging.
func retryDelivery(cause error, attempts int64, limit int) (bool, string) {
	retryable, errType := util.IsRetryableError(cause)
	return util.ShouldRetry(attempts, int64(limit), retryable), errType
}

func (c *Consumer) publishToDLQ(body []byte, lastError string) error {
	return c.channel.Publish(
		DLQExchangeName,
		c.jobName,
		false,
		false,
		amqp091.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp091.Persistent,
			Headers:      amqp091.Table{"x-last-error": lastError},
		},
	)
}

func (c *Consumer) retryKey(body []byte) string {
	sum := sha256.Sum256(body)
	return c.jobName + ":" + hex.EncodeToString(sum[:8])
}

func attemptsLimit(msg amqp091.Delivery) int {
	if v, ok := msg.Headers["x-attempts-limit"]; ok {
		switch n := v.(type) {
		case int32:
			return int(n)
		case int64:
			return int(n)
		}
	}
	return DefaultAttempts
}
