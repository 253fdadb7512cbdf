package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/virtual-waiting-room/internal/adapters/rabbit"
	redisadapter "github.com/robertarktes/virtual-waiting-room/internal/adapters/redis"
	"github.com/robertarktes/virtual-waiting-room/internal/bootstrap"
	"github.com/robertarktes/virtual-waiting-room/internal/config"
	"github.com/robertarktes/virtual-waiting-room/internal/domain"
	"github.com/robertarktes/virtual-waiting-room/internal/observability"
	"github.com/robertarktes/virtual-waiting-room/internal/queue"
	"golang.org/x/sync/errgroup"
)

const completionQueue = "waitroom.reservation-completed"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := run(cfg); err != nil {
		log.Fatalf("admission-worker: %v", err)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := observability.NewLogger(cfg.LogLevel).WithField("component", "admission-worker")

	shutdownOtel, err := observability.SetupOTel(ctx, cfg)
	if err != nil {
		return errors.Wrap(err, "setup otel")
	}
	defer shutdownOtel()

	redisClient, err := bootstrap.Redis(ctx, cfg)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	sinks, err := bootstrap.OpenSinks(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer sinks.Close()
	sink := sinks.Sink()

	store := redisadapter.NewStore(redisClient)
	settings := queue.SettingsFromConfig(cfg)
	lease := redisadapter.NewLease(redisClient, cfg.SchedulerLeaseTTL)
	scheduler := queue.NewScheduler(store, store, store, lease, sink, settings, logger.WithField("lease_holder", lease.Holder()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return scheduler.Run(gctx) })

	if cfg.RabbitURL == "" {
		logger.Warn("RABBIT_URL not set, reservation completions are not consumed")
	} else {
		conn, err := amqp.Dial(cfg.RabbitURL)
		if err != nil {
			return errors.Wrap(err, "connect to rabbitmq")
		}
		defer conn.Close()

		consumer, err := rabbit.NewConsumer(conn, completionQueue, domain.EventReservationComplete, logger)
		if err != nil {
			return err
		}
		defer consumer.Close()

		handoff := queue.NewHandoff(store, store, store, sink, settings.ReservationTTL, logger)
		g.Go(func() error { return consumer.Run(gctx, completionHandler(handoff, logger)) })
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("admission worker exited")
	return nil
}
