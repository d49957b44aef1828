package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rabbitmq/amqp091-go"
)

const (
	// ExchangeName is the direct exchange all jobs flow through.
	ExchangeName = "jobs"
	// DLQExchangeName receives jobs whose retry budget is exhausted.
	DLQExchangeName = "jobs.dlq"
	// maxBrokerPriority is the x-max-priority every job queue is declared
	// with. Our priorities are "lower is more urgent", AMQP's are the
	// opposite, so publishers map through brokerPriority.
	maxBrokerPriority = 10
)

// brokerPriority converts a job priority (lower = urgent) to the AMQP
// priority field (higher = urgent).
func brokerPriority(p int) uint8 {
	if p < 0 {
		p = 0
	}
	if p > maxBrokerPriority {
		p = maxBrokerPriority
	}
	return uint8(maxBrokerPriority - p)
}

// Publisher is the RabbitMQ-backed Queue implementation.
type Publisher struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
}

func NewPublisher(url string) (*Publisher, error) {
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

	return &Publisher{conn: conn, channel: ch}, nil
}

func (p *Publisher) Close() {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

// IsConnected checks if the publisher connection is still alive.
func (p *Publisher) IsConnected() bool {
	return p.conn != nil && p.channel != nil && !p.conn.IsClosed()
}

// Add publishes one job to its queue. The attempts budget travels in a
// header so any consumer enforces the same limit.
func (p *Publisher) Add(ctx context.Context, name string, payload any, opts EnqueueOptions) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	attempts := opts.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}

	return p.channel.PublishWithContext(ctx,
		ExchangeName,
		name,
		false,
		false,
		amqp091.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp091.Persistent,
			Priority:     brokerPriority(opts.Priority),
			Headers: amqp091.Table{
				"x-attempts-limit": int32(attempts),
			},
		},
	)
}

// PublishToDLQ parks a job that exhausted its retry budget, preserving the
// last error for inspection.
func (p *Publisher) PublishToDLQ(name string, body []byte, lastError string) error {
	return p.channel.Publish(
		DLQExchangeName,
		name,
		false,
		false,
		amqp091.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp091.Persistent,
			Headers: amqp091.Table{
				"x-last-error": lastError,
			},
		},
	)
}

// DeclareExchanges declares the job and dead-letter exchanges.
func DeclareExchanges(ch *amqp091.Channel) error {
	err := ch.ExchangeDeclare(
		ExchangeName,
		"direct",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	err = ch.ExchangeDeclare(
		DLQExchangeName,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare DLQ exchange: %w", err)
	}
	return nil
}

// DeclareJobQueue declares the durable priority queue for one job name and
// binds it, plus its DLQ counterpart.
func DeclareJobQueue(ch *amqp091.Channel, name string) (amqp091.Queue, error) {
	q, err := ch.QueueDeclare(
		name+".q",
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		amqp091.Table{"x-max-priority": int32(maxBrokerPriority)},
	)
	if err != nil {
		return amqp091.Queue{}, fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, name, ExchangeName, false, nil); err != nil {
		return amqp091.Queue{}, fmt.Errorf("failed to bind queue: %w", err)
	}

	dlq, err := ch.QueueDeclare(
		name+".dlq",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return amqp091.Queue{}, fmt.Errorf("failed to declare DLQ queue: %w", err)
	}
	if err := ch.QueueBind(dlq.Name, name, DLQExchangeName, false, nil); err != nil {
		return amqp091.Queue{}, fmt.Errorf("failed to bind DLQ queue: %w", err)
	}

	return q, nil
}
