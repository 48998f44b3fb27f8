package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"clearpoint-monitor/internal/api"
	"clearpoint-monitor/internal/config"
	"clearpoint-monitor/internal/database"
	"clearpoint-monitor/internal/logging"
	"clearpoint-monitor/internal/monitoring"
	"clearpoint-monitor/internal/queue"
	"clearpoint-monitor/internal/scheduler"
)

var withScheduler bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the periodic monitoring scheduler",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&withScheduler, "scheduler", true, "run monitoring cycles on the configured interval")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	hub := api.NewAlertHub(logger)

	engine, cleanup, err := buildEngine(ctx, cfg, logger, db, hub)
	if err != nil {
		return err
	}
	defer cleanup()

	sched := scheduler.New(engine,
		scheduler.WithLogger(logger),
		scheduler.WithCycleTimeout(cfg.CycleTimeout()),
		scheduler.WithRetention(db, scheduler.DefaultCleanupInterval),
	)

	server := api.NewServer(cfg.APIConfig(), db, engine,
		api.WithLogger(logger),
		api.WithScheduler(sched),
		api.WithAlertHub(hub),
		api.WithVersion(version),
	)

	logger.WithFields(logrus.Fields{
		"port":      cfg.Server.Port,
		"scheduler": withScheduler,
		"driver":    cfg.Database.Driver,
	}).Info("Clearpoint monitor starting")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gctx)
	})
	if withScheduler {
		g.Go(func() error {
			return sched.Start(gctx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("Clearpoint monitor stopped")
	return nil
}

// buildEngine wires the notifier chain and the monitoring engine. The returned
// cleanup releases the queue connection.
func buildEngine(ctx context.Context, cfg *config.Config, logger *logrus.Logger, db *database.DB, extra ...monitoring.Notifier) (*monitoring.Engine, func(), error) {
	cleanup := func() {}

	if cfg.Redis.Enabled {
		rq, err := queue.NewRedisNotifier(ctx, cfg.Redis.Config, logging.NewServiceLogger(logger, "notification-queue"))
		if err != nil {
			return nil, cleanup, fmt.Errorf("failed to connect notification queue: %w", err)
		}
		cleanup = func() { rq.Close() }
		extra = append(extra, rq)
	}

	notifier, err := monitoring.NewNotifierFactory(logger).CreateNotifier(cfg.NotifierSettings(), extra...)
	if err != nil {
		cleanup()
		return nil, func() {}, fmt.Errorf("failed to configure notifiers: %w", err)
	}

	engine := monitoring.NewEngine(
		database.NewSettingsStore(db, cfg.Monitoring.Settings),
		db, db, db,
		notifier,
		monitoring.WithLogger(logger),
		monitoring.WithFallbackSettings(cfg.Monitoring.Settings),
		monitoring.WithFetchConcurrency(cfg.Monitoring.FetchConcurrency),
		monitoring.WithNotificationRecorder(db),
	)

	return engine, cleanup, nil
}
