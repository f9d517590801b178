package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultConfirmTimeout bounds the wait for a broker confirmation.
const DefaultConfirmTimeout = 5 * time.Second

var (
	ErrPublishNacked  = errors.New("publish nacked by broker")
	ErrConfirmTimeout = errors.New("publish confirmation timed out")
	ErrConfirmsClosed = errors.New("confirmation channel closed")
)

// ConfirmChannel defines the AMQP operations a confirming publisher needs.
type ConfirmChannel interface {
	Confirm(noWait bool) error
	NotifyPublish(confirm chan amqp.Confirmation) chan amqp.Confirmation
	PublishWithContext(
		ctx context.Context,
		exchange, key string,
		mandatory, immediate bool,
		msg amqp.Publishing,
	) error
}

// ConfirmPublisher publishes with broker confirms: Publish returns nil only
// after the broker has acked the message, so a nil error means the broker
// owns the message.
//
// Publishes are serialized so each confirmation pairs with its publish
// without delivery-tag bookkeeping.
type ConfirmPublisher struct {
	ch       ConfirmChannel
	confirms <-chan amqp.Confirmation
	timeout  time.Duration

	mu sync.Mutex
}

// NewConfirmPublisher puts the channel into confirm mode and registers the
// confirmation listener.
func NewConfirmPublisher(ch ConfirmChannel, timeout time.Duration) (*ConfirmPublisher, error) {
	if err := ch.Confirm(false); err != nil {
		return nil, fmt.Errorf("failed to enable confirm mode: %w", err)
	}

	if timeout <= 0 {
		timeout = DefaultConfirmTimeout
	}

	return &ConfirmPublisher{
		ch:       ch,
		confirms: ch.NotifyPublish(make(chan amqp.Confirmation, 1)),
		timeout:  timeout,
	}, nil
}

// Publish sends the message and waits for the broker to confirm it.
func (p *ConfirmPublisher) Publish(ctx context.Context, exchange, key string, msg amqp.Publishing) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ch.PublishWithContext(ctx, exchange, key, false, false, msg); err != nil {
		return err
	}

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case confirmed, ok := <-p.confirms:
		if !ok {
			return ErrConfirmsClosed
		}

		if !confirmed.Ack {
			return fmt.Errorf("%w: delivery_tag=%d", ErrPublishNacked, confirmed.DeliveryTag)
		}

		return nil
	case <-timer.C:
		return ErrConfirmTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}
