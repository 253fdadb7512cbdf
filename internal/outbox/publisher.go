package outbox

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/virtual-waiting-room/internal/adapters/crdb"
	"github.com/robertarktes/virtual-waiting-room/internal/observability"
)

const defaultBatch = 50

// Store hands out unpublished outbox rows and marks the ones publish accepts.
type Store interface {
	PublishPending(ctx context.Context, limit int, publish func(ctx context.Context, rec crdb.OutboxRecord) error) (int, error)
}

type Broker interface {
	Publish(ctx context.Context, key string, msg amqp.Publishing) error
}

// Publisher relays outbox rows to the broker, routing each by its event type.
type Publisher struct {
	store    Store
	broker   Broker
	interval time.Duration
	batch    int
	logger   observability.Logger
	now      func() time.Time
}

func NewPublisher(store Store, broker Broker, interval time.Duration, logger observability.Logger) *Publisher {
	return &Publisher{
		store:    store,
		broker:   broker,
		interval: interval,
		batch:    defaultBatch,
		logger:   logger,
		now:      time.Now,
	}
}

func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("outbox publisher started")
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("outbox publisher stopped")
			return nil
		case <-ticker.C:
			if _, err := p.Flush(ctx); err != nil && ctx.Err() == nil {
				p.logger.WithError(err).Error("outbox flush failed")
			}
		}
	}
}

// Flush relays one batch and reports how many rows were published.
func (p *Publisher) Flush(ctx context.Context) (int, error) {
	first := true
	n, err := p.store.PublishPending(ctx, p.batch, func(ctx context.Context, rec crdb.OutboxRecord) error {
		if first {
			observability.OutboxLag.Set(p.now().Sub(rec.CreatedAt).Seconds())
			first = false
		}
		return p.broker.Publish(ctx, rec.EventType, amqp.Publishing{
			MessageId:   rec.DedupeKey,
			ContentType: "application/json",
			Timestamp:   rec.CreatedAt,
			Type:        rec.EventType,
			Body:        rec.Payload,
		})
	})
	if err != nil {
		return 0, errors.Wrap(err, "outbox: publish pending")
	}
	if first {
		observability.OutboxLag.Set(0)
	}
	if n > 0 {
		p.logger.WithField("count", n).Debug("outbox rows published")
	}
	return n, nil
}
