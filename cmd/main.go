package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"clearpoint-monitor/internal/config"
	"clearpoint-monitor/internal/database"
	"clearpoint-monitor/internal/logging"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

var (
	configFile string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "clearpoint-monitor",
	Short: "Camera and mini-PC health monitoring and alerting",
	Long: `Monitors the cameras and on-site mini-PCs of every customer site. Health
reports posted by the mini-PCs are classified on a fixed schedule, alerts are
opened and auto-resolved, and notifications are fanned out to the configured
channels.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); overrides the config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads configuration and builds the root logger
func setup() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	logger := logging.Initialize(cfg.LogLevel)
	logger.AddHook(logging.NewFieldsHook(logrus.Fields{"version": version}))
	if err := logging.SetupFileLogging(logger, cfg.LogFile); err != nil {
		return nil, nil, fmt.Errorf("failed to set up file logging: %w", err)
	}

	return cfg, logger, nil
}

// openStore opens the database and applies pending migrations
func openStore(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*database.DB, error) {
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"driver": db.Dialect(),
	}).Info("Database ready")

	return db, nil
}
