// Package rabbitmq adapts the transfer pipeline to its event source: an
// AMQP broker delivering transfer events at least once.
//
// The topology implements bounded redelivery without in-process state:
//
//	transfers.direct ──▶ transfers            (nack dead-letters to retry)
//	transfers.retry  ──▶ transfers.retry      (TTL expires back to main)
//	transfers.dlx    ──▶ transfers.dlq        (terminal parking)
//
// Each nack cycle passes through the retry queue, which delays the message
// and increments its x-death count; once the count exceeds the redelivery
// budget the consumer parks the message on the DLQ instead.
package rabbitmq

import (
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	defaultExchange      = "transfers.direct"
	defaultQueue         = "transfers"
	defaultRetryExchange = "transfers.retry"
	defaultRetryQueue    = "transfers.retry"
	defaultDLXExchange   = "transfers.dlx"
	defaultDLQ           = "transfers.dlq"
	defaultRetryDelay    = 5 * time.Second
)

// AMQPChannel defines the channel operations required for topology setup.
type AMQPChannel interface {
	ExchangeDeclare(
		name, kind string,
		durable, autoDelete, internal, noWait bool,
		args amqp.Table,
	) error
	QueueDeclare(
		name string,
		durable, autoDelete, exclusive, noWait bool,
		args amqp.Table,
	) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// Topology names the exchanges and queues of the transfer pipeline.
type Topology struct {
	Exchange      string
	Queue         string
	RetryExchange string
	RetryQueue    string
	RetryDelay    time.Duration
	DLXExchange   string
	DLQ           string
}

// DefaultTopology returns the standard names and retry delay.
func DefaultTopology() Topology {
	return Topology{
		Exchange:      defaultExchange,
		Queue:         defaultQueue,
		RetryExchange: defaultRetryExchange,
		RetryQueue:    defaultRetryQueue,
		RetryDelay:    defaultRetryDelay,
		DLXExchange:   defaultDLXExchange,
		DLQ:           defaultDLQ,
	}
}

// DeclareTopology declares the main, retry and dead-letter exchanges and
// queues. Safe to call on every start; declarations are idempotent as long
// as the arguments do not change.
func DeclareTopology(ch AMQPChannel, t Topology) error {
	// Parking lot for terminal messages.
	if err := ch.ExchangeDeclare(t.DLXExchange, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dlx exchange: %w", err)
	}

	if _, err := ch.QueueDeclare(t.DLQ, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dlq: %w", err)
	}

	if err := ch.QueueBind(t.DLQ, "", t.DLXExchange, false, nil); err != nil {
		return fmt.Errorf("bind dlq to dlx: %w", err)
	}

	// Retry loop: nacked messages sit here for RetryDelay, then expire
	// back to the main exchange with their routing key intact.
	if err := ch.ExchangeDeclare(t.RetryExchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare retry exchange: %w", err)
	}

	retryArgs := amqp.Table{
		"x-message-ttl":          t.RetryDelay.Milliseconds(),
		"x-dead-letter-exchange": t.Exchange,
	}
	if _, err := ch.QueueDeclare(t.RetryQueue, true, false, false, false, retryArgs); err != nil {
		return fmt.Errorf("declare retry queue: %w", err)
	}

	if err := ch.QueueBind(t.RetryQueue, t.Queue, t.RetryExchange, false, nil); err != nil {
		return fmt.Errorf("bind retry queue: %w", err)
	}

	// Main queue: nacks dead-letter into the retry exchange.
	if err := ch.ExchangeDeclare(t.Exchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare main exchange: %w", err)
	}

	mainArgs := amqp.Table{
		"x-dead-letter-exchange": t.RetryExchange,
	}
	if _, err := ch.QueueDeclare(t.Queue, true, false, false, false, mainArgs); err != nil {
		return fmt.Errorf("declare main queue: %w", err)
	}

	if err := ch.QueueBind(t.Queue, t.Queue, t.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind main queue: %w", err)
	}

	return nil
}
