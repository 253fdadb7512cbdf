package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	redisadapter "github.com/robertarktes/virtual-waiting-room/internal/adapters/redis"
	"github.com/robertarktes/virtual-waiting-room/internal/bootstrap"
	"github.com/robertarktes/virtual-waiting-room/internal/config"
	httphandler "github.com/robertarktes/virtual-waiting-room/internal/http"
	"github.com/robertarktes/virtual-waiting-room/internal/idempotency"
	"github.com/robertarktes/virtual-waiting-room/internal/observability"
	"github.com/robertarktes/virtual-waiting-room/internal/queue"
	"github.com/robertarktes/virtual-waiting-room/internal/rateLimit"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := run(cfg); err != nil {
		log.Fatalf("api: %v", err)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := observability.NewLogger(cfg.LogLevel)

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
	cache := redisadapter.NewCache(redisClient)
	settings := queue.SettingsFromConfig(cfg)

	service := queue.NewService(store, store, sink, settings, logger)
	handoff := queue.NewHandoff(store, store, store, sink, settings.ReservationTTL, logger)

	rl := rateLimit.NewRateLimiter(cache, cfg.RateLimitPerMinute, time.Minute)
	idemp := idempotency.NewIdempotency(redisadapter.NewIdempotency(redisClient), cfg.IdempotencyTTL)

	ready := httphandler.Pingers{cache, sinks}
	handlers := httphandler.NewHandlers(service, handoff, ready, cfg.RedeemBaseURL, logger)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httphandler.SetupRouter(handlers, logger, rl, idemp),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", cfg.HTTPAddr).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "listen")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if cfg.SchedulerEnabled {
		lease := redisadapter.NewLease(redisClient, cfg.SchedulerLeaseTTL)
		scheduler := queue.NewScheduler(store, store, store, lease, sink, settings, logger.WithField("lease_holder", lease.Holder()))
		g.Go(func() error { return scheduler.Run(gctx) })
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("api exited")
	return nil
}
