package rabbit

import (
	"context"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/virtual-waiting-room/internal/observability"
)

// Handler processes one delivery body. A nil error acks the message.
// Errors marked with Permanent are dropped; anything else is requeued.
type Handler func(ctx context.Context, body []byte) error

var errPermanent = errors.New("permanent failure")

// Permanent marks err so the consumer rejects the message without requeue.
func Permanent(err error) error {
	return errors.Mark(err, errPermanent)
}

func IsPermanent(err error) bool {
	return errors.Is(err, errPermanent)
}

type Consumer struct {
	ch     *amqp.Channel
	queue  string
	logger observability.Logger
}

// NewConsumer declares a durable queue and binds it to exchange with routingKey.
func NewConsumer(conn *amqp.Connection, queue, routingKey string, logger observability.Logger) (*Consumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, errors.Wrap(err, "rabbit: open channel")
	}
	if err := ch.ExchangeDeclare(EventsExchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, errors.Wrap(err, "rabbit: declare exchange")
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, errors.Wrap(err, "rabbit: declare queue")
	}
	if err := ch.QueueBind(queue, routingKey, EventsExchange, false, nil); err != nil {
		ch.Close()
		return nil, errors.Wrap(err, "rabbit: bind queue")
	}
	if err := ch.Qos(16, 0, false); err != nil {
		ch.Close()
		return nil, errors.Wrap(err, "rabbit: set qos")
	}
	return &Consumer{ch: ch, queue: queue, logger: logger}, nil
}

// Run consumes until ctx is cancelled or the delivery channel closes.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	deliveries, err := c.ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return errors.Wrap(err, "rabbit: consume")
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("rabbit: delivery channel closed")
			}
			c.dispatch(ctx, d, handle)
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, d amqp.Delivery, handle Handler) {
	err := handle(ctx, d.Body)
	switch {
	case err == nil:
		err = d.Ack(false)
	case IsPermanent(err):
		c.logger.WithError(err).WithField("message_id", d.MessageId).Warn("dropping message")
		err = d.Nack(false, false)
	default:
		c.logger.WithError(err).WithField("message_id", d.MessageId).Warn("requeueing message")
		err = d.Nack(false, true)
	}
	if err != nil {
		c.logger.WithError(err).Error("failed to settle delivery")
	}
}

func (c *Consumer) Close() error {
	return c.ch.Close()
}
