package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/darkden-lab/eventbus/internal/broker"
	"github.com/darkden-lab/eventbus/internal/bus"
	"github.com/darkden-lab/eventbus/internal/config"
	"github.com/darkden-lab/eventbus/internal/logging"
	"github.com/darkden-lab/eventbus/internal/subscribers"
	"github.com/darkden-lab/eventbus/internal/telemetry"
)

const (
	serviceName     = "eventbus"
	shutdownTimeout = 10 * time.Second
)

func newListenCmd() *cobra.Command {
	var subscriptionsFile string

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Poll the events topic and dispatch events to subscribers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListen(cmd.Context(), subscriptionsFile)
		},
	}
	cmd.Flags().StringVarP(&subscriptionsFile, "subscriptions", "f", "", "Subscription file (overrides EVENTBUS_SUBSCRIPTIONS_FILE)")
	return cmd
}

// runtimeDeps is what every command needs before touching the broker.
type runtimeDeps struct {
	cfg      *config.Config
	logger   *slog.Logger
	shutdown func(context.Context) error
}

func setup(ctx context.Context) (*runtimeDeps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	shutdown, err := telemetry.Setup(ctx, serviceName, cfg.OTelEndpoint, cfg.OTelEnabled)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	return &runtimeDeps{cfg: cfg, logger: logger, shutdown: shutdown}, nil
}

func runListen(ctx context.Context, subscriptionsFile string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	deps, err := setup(ctx)
	if err != nil {
		return err
	}
	cfg, logger := deps.cfg, deps.logger
	defer shutdownTelemetry(deps)

	if subscriptionsFile == "" {
		subscriptionsFile = cfg.SubscriptionsFile
	}
	var provider bus.Provider
	if subscriptionsFile != "" {
		p, err := subscribers.LoadProvider(subscriptionsFile, logger)
		if err != nil {
			return err
		}
		provider = p
	}

	backend, err := broker.NewBackend(cfg, bus.EventsTopic, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	pool := bus.NewPool(bus.PoolConfig{
		Workers:        cfg.Workers,
		QueueSize:      cfg.QueueSize,
		HandlerTimeout: cfg.HandlerTimeout,
		Logger:         logger,
	})

	job, err := bus.NewListenerJob(provider, backend.Pollers, pool, bus.ListenerConfig{
		PollTimeout: cfg.PollTimeout,
		Logger:      logger,
	})
	if err != nil {
		_ = pool.Close(context.Background())
		return err
	}

	scheduler := bus.NewScheduler(job, cfg.JobInterval, logger)
	scheduler.Start()

	logger.Info("listener started",
		"event", "listener_started",
		"module", "cmd/eventbus",
		"group", job.GroupID(),
		"enabled", job.Enabled(),
		"topic", bus.EventsTopic,
	)

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	logger.Info("shutting down listener", "event", "listener_stopping", "module", "cmd/eventbus")
	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	var errs []error
	if err := pool.Close(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("drain handlers: %w", err))
	}
	if err := job.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close poller: %w", err))
	}

	logger.Info("listener stopped", "event", "listener_stopped", "module", "cmd/eventbus")
	return errors.Join(errs...)
}

func shutdownTelemetry(deps *runtimeDeps) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := deps.shutdown(ctx); err != nil {
		deps.logger.Warn("telemetry shutdown failed", "event", "telemetry_shutdown", "module", "cmd/eventbus", "error", err)
	}
}
