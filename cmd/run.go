package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a single monitoring cycle and print its counters",
	Long: `Runs one monitoring cycle against the configured store and notifiers,
prints the cycle counters as JSON and exits non-zero if the cycle failed.
Suitable for cron-driven deployments.`,
	RunE: runOnce,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runOnce(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if cfg.CycleTimeout() > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.CycleTimeout())
		defer cancel()
	}

	db, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	engine, cleanup, err := buildEngine(ctx, cfg, logger, db)
	if err != nil {
		return err
	}
	defer cleanup()

	result, err := engine.RunCycle(ctx)
	if err != nil {
		return fmt.Errorf("monitoring cycle failed: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
