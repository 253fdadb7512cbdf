package main

import (
	"context"

	"github.com/cockroachdb/errors"
	redisadapter "github.com/robertarktes/virtual-waiting-room/internal/adapters/redis"
	"github.com/robertarktes/virtual-waiting-room/internal/bootstrap"
	"github.com/robertarktes/virtual-waiting-room/internal/config"
	"github.com/robertarktes/virtual-waiting-room/internal/observability"
	"github.com/robertarktes/virtual-waiting-room/internal/queue"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "waitroomctl",
	Short:         "Inspect and operate the virtual waiting room",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// env holds the queue connections a command needs. close releases them.
type env struct {
	service   *queue.Service
	scheduler *queue.Scheduler
	close     func()
}

func loadConfig() (*config.Config, observability.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, errors.Wrap(err, "load config")
	}
	return cfg, observability.NewLogger(cfg.LogLevel), nil
}

func connect(ctx context.Context) (*env, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}

	client, err := bootstrap.Redis(ctx, cfg)
	if err != nil {
		return nil, err
	}
	sinks, err := bootstrap.OpenSinks(ctx, cfg, logger)
	if err != nil {
		client.Close()
		return nil, err
	}

	store := redisadapter.NewStore(client)
	lease := redisadapter.NewLease(client, cfg.SchedulerLeaseTTL)
	settings := queue.SettingsFromConfig(cfg)
	return &env{
		service:   queue.NewService(store, store, sinks.Sink(), settings, logger),
		scheduler: queue.NewScheduler(store, store, store, lease, sinks.Sink(), settings, logger),
		close: func() {
			sinks.Close()
			client.Close()
		},
	}, nil
}
