package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/virtual-waiting-room/internal/adapters/rabbit"
	"github.com/robertarktes/virtual-waiting-room/internal/bootstrap"
	"github.com/robertarktes/virtual-waiting-room/internal/config"
	"github.com/robertarktes/virtual-waiting-room/internal/observability"
	"github.com/robertarktes/virtual-waiting-room/internal/outbox"
)

const relayInterval = time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := run(cfg); err != nil {
		log.Fatalf("outbox-publisher: %v", err)
	}
}

func run(cfg *config.Config) error {
	if cfg.CRDBDSN == "" || cfg.RabbitURL == "" {
		return errors.New("CRDB_DSN and RABBIT_URL are required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := observability.NewLogger(cfg.LogLevel).WithField("component", "outbox-publisher")

	shutdownOtel, err := observability.SetupOTel(ctx, cfg)
	if err != nil {
		return errors.Wrap(err, "setup otel")
	}
	defer shutdownOtel()

	repo, closeRepo, err := bootstrap.Postgres(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeRepo()

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		return errors.Wrap(err, "connect to rabbitmq")
	}
	defer conn.Close()

	broker, err := rabbit.NewPublisher(conn)
	if err != nil {
		return err
	}
	defer broker.Close()

	return outbox.NewPublisher(repo, broker, relayInterval, logger).Run(ctx)
}
