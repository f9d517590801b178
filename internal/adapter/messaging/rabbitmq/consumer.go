package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/dmcarvalho/transferflow-backend/internal/domain"
	"github.com/dmcarvalho/transferflow-backend/internal/platform/logger"
)

const (
	defaultWorkers = 4

	// handleGrace bounds how long a single delivery may process. It also
	// caps the shutdown drain, since claimed deliveries run detached from
	// the run context.
	handleGrace = 30 * time.Second
)

// Processor handles one deserialized transfer event.
type Processor interface {
	Process(ctx context.Context, req domain.TransferRequest) (domain.Outcome, error)
}

// Channel defines the AMQP channel operations the consumer needs.
type Channel interface {
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(
		queue, consumer string,
		autoAck, exclusive, noLocal, noWait bool,
		args amqp.Table,
	) (<-chan amqp.Delivery, error)
}

// Publisher sends a message and reports an error unless the broker has
// taken ownership of it. Satisfied by ConfirmPublisher.
type Publisher interface {
	Publish(ctx context.Context, exchange, key string, msg amqp.Publishing) error
}

// Config tunes the consumer.
type Config struct {
	Queue           string
	DLXExchange     string
	Workers         int // concurrent deliveries; prefetch is set to match
	MaxRedeliveries int // retry cycles before parking on the DLQ
}

// Consumer pulls transfer events off the queue, runs them through the
// processor and applies the ack/nack policy:
//
//   - Applied, Rejected and Duplicate outcomes are acked: they consumed the
//     event with a well-defined (possibly empty) effect.
//   - Malformed payloads and invalid requests are terminal: parked on the
//     DLQ immediately.
//   - Other errors left no side effect, so the delivery is nacked into the
//     retry loop until the redelivery budget runs out, then parked.
type Consumer struct {
	ch        Channel
	publisher Publisher
	processor Processor
	cfg       Config
	log       *logger.Logger
}

// NewConsumer creates a consumer over an open channel. The publisher carries
// parked events to the dead-letter exchange and must confirm publishes.
func NewConsumer(ch Channel, publisher Publisher, processor Processor, cfg Config, log *logger.Logger) *Consumer {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}

	return &Consumer{ch: ch, publisher: publisher, processor: processor, cfg: cfg, log: log}
}

// Run consumes until the context is cancelled or the delivery channel
// closes (broker connection lost). In-flight deliveries are drained before
// returning.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.ch.Qos(c.cfg.Workers, 0, false); err != nil {
		return err
	}

	deliveries, err := c.ch.Consume(c.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	c.log.Infow("consuming transfer events", "queue", c.cfg.Queue, "workers", c.cfg.Workers)

	var wg sync.WaitGroup
	for i := 0; i < c.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.worker(ctx, deliveries)
		}()
	}
	wg.Wait()

	return ctx.Err()
}

func (c *Consumer) worker(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			// A claimed delivery runs on its own deadline, detached
			// from the run context, so shutdown drains in-flight
			// events instead of aborting them mid-process.
			hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), handleGrace)
			c.handle(hctx, d)
			cancel()
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	var req domain.TransferRequest
	if err := json.Unmarshal(d.Body, &req); err != nil {
		c.log.Errorw("malformed transfer event", "error", err)
		c.park(ctx, d, "malformed_payload")

		return
	}

	outcome, err := c.processor.Process(ctx, req)
	if err != nil {
		c.handleError(ctx, d, req, err)

		return
	}

	switch outcome.Status {
	case domain.OutcomeApplied:
		c.log.Infow("transfer applied",
			"event_key", req.EventKey(),
			"sender_id", req.SenderID,
			"recipient_id", req.RecipientID,
			"amount", req.Amount.String(),
			"incentive", outcome.Record.Incentive.String(),
		)
	case domain.OutcomeRejected:
		c.log.Warnw("transfer rejected",
			"event_key", req.EventKey(),
			"reason", string(outcome.Reason),
			"sender_id", req.SenderID,
			"recipient_id", req.RecipientID,
		)
	case domain.OutcomeDuplicate:
		c.log.Infow("duplicate delivery ignored", "event_key", req.EventKey())
	}

	if err := d.Ack(false); err != nil {
		c.log.Errorw("failed to ack delivery", "event_key", req.EventKey(), "error", err)
	}
}

func (c *Consumer) handleError(ctx context.Context, d amqp.Delivery, req domain.TransferRequest, err error) {
	if errors.Is(err, domain.ErrInvalidRequest) {
		c.log.Errorw("invalid transfer event", "event_key", req.EventKey(), "error", err)
		c.park(ctx, d, "invalid_request")

		return
	}

	retries := deathCount(d.Headers, c.cfg.Queue)
	if retries >= int64(c.cfg.MaxRedeliveries) {
		c.log.Errorw("redelivery budget exhausted, parking event",
			"event_key", req.EventKey(), "retries", retries, "error", err)
		c.park(ctx, d, "retries_exhausted")

		return
	}

	c.log.Warnw("transfer processing failed, scheduling redelivery",
		"event_key", req.EventKey(), "attempt", retries+1, "error", err)

	// Routes through the retry queue and comes back after its TTL.
	if nackErr := d.Nack(false, false); nackErr != nil {
		c.log.Errorw("failed to nack delivery", "event_key", req.EventKey(), "error", nackErr)
	}
}

// park publishes the raw event to the dead-letter exchange as a persistent
// message and acks the original only after the broker confirms the publish.
// If parking fails the delivery is requeued so the event is not lost.
func (c *Consumer) park(ctx context.Context, d amqp.Delivery, reason string) {
	headers := make(amqp.Table, len(d.Headers)+1)
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers["x-park-reason"] = reason

	err := c.publisher.Publish(ctx, c.cfg.DLXExchange, "", amqp.Publishing{
		ContentType:  d.ContentType,
		DeliveryMode: amqp.Persistent,
		Body:         d.Body,
		Headers:      headers,
	})
	if err != nil {
		c.log.Errorw("failed to park event on dlq, requeueing", "reason", reason, "error", err)

		if nackErr := d.Nack(false, true); nackErr != nil {
			c.log.Errorw("failed to requeue delivery", "error", nackErr)
		}

		return
	}

	if ackErr := d.Ack(false); ackErr != nil {
		c.log.Errorw("failed to ack parked delivery", "error", ackErr)
	}
}

// deathCount extracts how many retry cycles this delivery has been through
// from the broker-maintained x-death header.
func deathCount(headers amqp.Table, queue string) int64 {
	deaths, ok := headers["x-death"].([]interface{})
	if !ok {
		return 0
	}

	for _, entry := range deaths {
		table, ok := entry.(amqp.Table)
		if !ok {
			continue
		}

		if q, _ := table["queue"].(string); q != queue {
			continue
		}

		if reason, _ := table["reason"].(string); reason != "rejected" {
			continue
		}

		if count, ok := table["count"].(int64); ok {
			return count
		}
	}

	return 0
}
