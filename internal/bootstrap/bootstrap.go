// Package bootstrap connects the backing services shared by the binaries.
package bootstrap

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/robertarktes/virtual-waiting-room/internal/adapters/crdb"
	mongoadapter "github.com/robertarktes/virtual-waiting-room/internal/adapters/mongo"
	"github.com/robertarktes/virtual-waiting-room/internal/config"
	"github.com/robertarktes/virtual-waiting-room/internal/observability"
	"github.com/robertarktes/virtual-waiting-room/internal/queue"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const mongoDatabase = "waitroom"

func Redis(ctx context.Context, cfg *config.Config) (*redisclient.Client, error) {
	client := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrapf(err, "connect to redis at %s", cfg.RedisAddr)
	}
	return client, nil
}

func Postgres(ctx context.Context, cfg *config.Config, logger observability.Logger) (*crdb.Repository, func(), error) {
	pool, err := pgxpool.New(ctx, cfg.CRDBDSN)
	if err != nil {
		return nil, nil, errors.Wrap(err, "connect to crdb")
	}
	repo := crdb.NewRepository(pool, logger)
	if err := repo.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return repo, pool.Close, nil
}

func Mongo(ctx context.Context, cfg *config.Config, logger observability.Logger) (*mongoadapter.AuditLogger, func(), error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, nil, errors.Wrap(err, "connect to mongo")
	}
	closeFn := func() { _ = client.Disconnect(context.Background()) }

	audit := mongoadapter.NewAuditLogger(client.Database(mongoDatabase), logger)
	if err := audit.EnsureIndexes(ctx); err != nil {
		closeFn()
		return nil, nil, err
	}
	return audit, closeFn, nil
}

// Sinks is the event sink assembled from whichever of CockroachDB and
// MongoDB are configured.
type Sinks struct {
	sinks   queue.MultiSink
	checks  []pinger
	closers []func()
}

type pinger interface {
	Ping(ctx context.Context) error
}

func OpenSinks(ctx context.Context, cfg *config.Config, logger observability.Logger) (*Sinks, error) {
	s := &Sinks{}
	if cfg.CRDBDSN != "" {
		repo, closeFn, err := Postgres(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		s.add(repo, repo, closeFn)
	}
	if cfg.MongoURI != "" {
		audit, closeFn, err := Mongo(ctx, cfg, logger)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.add(audit, audit, closeFn)
	}
	if len(s.sinks) == 0 {
		logger.Warn("no event sinks configured, domain events are discarded")
	}
	return s, nil
}

func (s *Sinks) add(sink queue.EventSink, check pinger, closeFn func()) {
	s.sinks = append(s.sinks, sink)
	s.checks = append(s.checks, check)
	s.closers = append(s.closers, closeFn)
}

// Sink returns the fan-out sink, or a discarding one when nothing is configured.
func (s *Sinks) Sink() queue.EventSink {
	if len(s.sinks) == 0 {
		return queue.DiscardSink{}
	}
	return s.sinks
}

// Ping checks every configured backend.
func (s *Sinks) Ping(ctx context.Context) error {
	for _, c := range s.checks {
		if err := c.Ping(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sinks) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}
