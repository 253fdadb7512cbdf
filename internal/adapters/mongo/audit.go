package mongo

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/virtual-waiting-room/internal/domain"
	"github.com/robertarktes/virtual-waiting-room/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// AuditLogger keeps a queryable history of queue events per token and
// reservation.
type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("audit_logs"),
		logger: logger,
	}
}

type AuditLog struct {
	ID          string    `bson:"_id"`
	Action      string    `bson:"action"`
	AggregateID string    `bson:"aggregate_id"`
	UserID      string    `bson:"user_id"`
	EventID     string    `bson:"event_id"`
	Timestamp   time.Time `bson:"timestamp"`
	Data        bson.M    `bson:"data"`
}

func NewAuditLog(e domain.Event) AuditLog {
	return AuditLog{
		ID:          e.ID.String(),
		Action:      e.Type,
		AggregateID: e.AggregateID,
		UserID:      e.UserID,
		EventID:     e.EventID,
		Timestamp:   e.OccurredAt.UTC(),
		Data:        bson.M(e.Payload),
	}
}

func (a *AuditLogger) EnsureIndexes(ctx context.Context) error {
	_, err := a.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "aggregate_id", Value: 1}, {Key: "timestamp", Value: 1}}},
		{Keys: bson.D{{Key: "event_id", Value: 1}, {Key: "timestamp", Value: -1}}},
	})
	if err != nil {
		return errors.Wrap(err, "mongo: ensure audit indexes")
	}
	return nil
}

func (a *AuditLogger) Ping(ctx context.Context) error {
	if err := a.coll.Database().Client().Ping(ctx, readpref.Primary()); err != nil {
		return errors.Wrap(err, "mongo: ping")
	}
	return nil
}

// Emit records the event. Duplicate deliveries of the same event are ignored.
func (a *AuditLogger) Emit(ctx context.Context, e domain.Event) error {
	_, err := a.coll.InsertOne(ctx, NewAuditLog(e))
	if mongo.IsDuplicateKeyError(err) {
		return nil
	}
	if err != nil {
		a.logger.WithError(err).WithField("event_type", e.Type).Error("failed to insert audit log")
		return errors.Wrap(err, "mongo: insert audit log")
	}
	return nil
}

// History returns the audit trail for a queue token or reservation, oldest first.
func (a *AuditLogger) History(ctx context.Context, aggregateID string, limit int64) ([]AuditLog, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}).SetLimit(limit)
	cur, err := a.coll.Find(ctx, bson.M{"aggregate_id": aggregateID}, opts)
	if err != nil {
		return nil, errors.Wrap(err, "mongo: find audit logs")
	}
	defer cur.Close(ctx)

	var logs []AuditLog
	if err := cur.All(ctx, &logs); err != nil {
		return nil, errors.Wrap(err, "mongo: decode audit logs")
	}
	return logs, nil
}
