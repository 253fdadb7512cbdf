package rabbit

import (
	"context"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"
)

const EventsExchange = "waitroom.events"

type Publisher struct {
	ch *amqp.Channel
}

func NewPublisher(conn *amqp.Connection) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, errors.Wrap(err, "rabbit: open channel")
	}
	err = ch.ExchangeDeclare(EventsExchange, "topic", true, false, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, errors.Wrap(err, "rabbit: declare exchange")
	}
	return &Publisher{ch: ch}, nil
}

func (p *Publisher) Publish(ctx context.Context, key string, msg amqp.Publishing) error {
	if msg.DeliveryMode == 0 {
		msg.DeliveryMode = amqp.Persistent
	}
	if err := p.ch.PublishWithContext(ctx, EventsExchange, key, false, false, msg); err != nil {
		return errors.Wrapf(err, "rabbit: publish %s", key)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}
