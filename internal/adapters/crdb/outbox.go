package crdb

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/virtual-waiting-room/internal/domain"
)

type OutboxRecord struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Status        string // NEW, PUBLISHED
	DedupeKey     string
}

// envelope is the message body relayed to the broker.
type envelope struct {
	ID          string                 `json:"id"`
	Type        string                 `json:"type"`
	AggregateID string                 `json:"aggregate_id"`
	UserID      string                 `json:"user_id,omitempty"`
	EventID     string                 `json:"event_id,omitempty"`
	OccurredAt  time.Time              `json:"occurred_at"`
	Data        map[string]interface{} `json:"data"`
}

// NewOutboxRecord converts a domain event into an outbox row. The event
// id doubles as the dedupe key.
func NewOutboxRecord(e domain.Event) (OutboxRecord, error) {
	payload, err := json.Marshal(envelope{
		ID:          e.ID.String(),
		Type:        e.Type,
		AggregateID: e.AggregateID,
		UserID:      e.UserID,
		EventID:     e.EventID,
		OccurredAt:  e.OccurredAt.UTC(),
		Data:        e.Payload,
	})
	if err != nil {
		return OutboxRecord{}, errors.Wrap(err, "crdb: encode outbox payload")
	}
	aggType := e.Type
	if i := strings.IndexByte(aggType, '.'); i > 0 {
		aggType = aggType[:i]
	}
	return OutboxRecord{
		ID:            e.ID,
		AggregateType: aggType,
		AggregateID:   e.AggregateID,
		EventType:     e.Type,
		Payload:       payload,
		DedupeKey:     e.ID.String(),
	}, nil
}

// Emit stores the event in the outbox for the relay to publish.
func (r *Repository) Emit(ctx context.Context, e domain.Event) error {
	rec, err := NewOutboxRecord(e)
	if err != nil {
		return err
	}
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		return r.InsertOutbox(ctx, tx, rec)
	})
}

func (r *Repository) InsertOutbox(ctx context.Context, tx pgx.Tx, record OutboxRecord) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload_json, status, dedupe_key)
		VALUES ($1, $2, $3, $4, $5, 'NEW', $6)
		ON CONFLICT (dedupe_key) DO NOTHING
	`, record.ID, record.AggregateType, record.AggregateID, record.EventType, record.Payload, record.DedupeKey)
	if err != nil {
		return errors.Wrap(err, "crdb: insert outbox")
	}
	return nil
}

func (r *Repository) getUnpublishedOutbox(ctx context.Context, tx pgx.Tx, limit int) ([]OutboxRecord, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload_json, created_at, published_at, status, dedupe_key
		FROM outbox WHERE status = 'NEW' ORDER BY created_at ASC LIMIT $1 FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "crdb: select outbox")
	}
	defer rows.Close()

	var records []OutboxRecord
	for rows.Next() {
		var rec OutboxRecord
		err := rows.Scan(&rec.ID, &rec.AggregateType, &rec.AggregateID, &rec.EventType, &rec.Payload, &rec.CreatedAt, &rec.PublishedAt, &rec.Status, &rec.DedupeKey)
		if err != nil {
			return nil, errors.Wrap(err, "crdb: scan outbox")
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *Repository) markPublished(ctx context.Context, tx pgx.Tx, id uuid.UUID, publishedAt time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE outbox SET status = 'PUBLISHED', published_at = $2 WHERE id = $1
	`, id, publishedAt)
	if err != nil {
		return errors.Wrap(err, "crdb: mark published")
	}
	return nil
}

// PublishPending locks up to limit unpublished rows, hands each to publish
// in creation order and marks the ones that succeeded. It stops at the
// first publish failure so later rows keep their order.
func (r *Repository) PublishPending(ctx context.Context, limit int, publish func(ctx context.Context, rec OutboxRecord) error) (int, error) {
	published := 0
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		published = 0
		records, err := r.getUnpublishedOutbox(ctx, tx, limit)
		if err != nil {
			return err
		}
		for _, rec := range records {
			if err := publish(ctx, rec); err != nil {
				r.logger.WithError(err).WithField("outbox_id", rec.ID.String()).Warn("outbox publish failed")
				break
			}
			if err := r.markPublished(ctx, tx, rec.ID, time.Now()); err != nil {
				return err
			}
			published++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return published, nil
}

// CountPending reports how many rows still wait for the relay.
func (r *Repository) CountPending(ctx context.Context) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM outbox WHERE status = 'NEW'`).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "crdb: count pending")
	}
	return n, nil
}
