package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"clearpoint-monitor/internal/config"
)

var (
	initOutput    string
	initOverwrite bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or generate configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file with a fresh jwt secret",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.DefaultConfig()
		secret, err := config.GenerateSecret()
		if err != nil {
			return err
		}
		cfg.Auth.JWTSecret = secret

		if err := config.WriteFile(initOutput, cfg, initOverwrite); err != nil {
			return err
		}
		fmt.Printf("Configuration written to %s\n", initOutput)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		if cfg.Auth.JWTSecret != "" {
			cfg.Auth.JWTSecret = "********"
		}
		if cfg.Database.Password != "" {
			cfg.Database.Password = "********"
		}
		if cfg.Notifier.WebhookToken != "" {
			cfg.Notifier.WebhookToken = "********"
		}
		if cfg.Notifier.WebhookSecret != "" {
			cfg.Notifier.WebhookSecret = "********"
		}
		if cfg.Redis.Password != "" {
			cfg.Redis.Password = "********"
		}

		data, err := config.Marshal(cfg)
		if err != nil {
			return err
		}
		fmt.Print(string(data))
		return nil
	},
}

func init() {
	configInitCmd.Flags().StringVar(&initOutput, "output", "./config.yaml", "where to write the file")
	configInitCmd.Flags().BoolVar(&initOverwrite, "force", false, "replace an existing file, keeping a backup")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
