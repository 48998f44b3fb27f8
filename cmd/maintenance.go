package main

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"clearpoint-monitor/internal/scheduler"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		// Open applies migrations
		db, err := openStore(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer db.Close()

		v, err := db.SchemaVersion(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Schema is at version %d\n", v)
		return nil
	},
}

var retentionDays int

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete resolved alerts older than the retention period",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		db, err := openStore(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer db.Close()

		settings, err := db.LoadSettings(ctx, cfg.Monitoring.Settings)
		if err != nil {
			logger.WithError(err).Warn("Failed to load stored settings, using configured retention")
		}
		retention := settings.AlertRetention()
		if retentionDays > 0 {
			retention = time.Duration(retentionDays) * 24 * time.Hour
		}

		n, err := scheduler.PurgeExpired(ctx, db, retention, time.Now())
		if err != nil {
			return err
		}

		logger.WithFields(logrus.Fields{
			"deleted":   n,
			"retention": retention.String(),
		}).Info("Retention cleanup complete")
		fmt.Printf("Deleted %d resolved alerts\n", n)
		return nil
	},
}

func init() {
	cleanupCmd.Flags().IntVar(&retentionDays, "days", 0, "override alert_retention_days")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(cleanupCmd)
}
