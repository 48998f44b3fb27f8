package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"clearpoint-monitor/internal/api"
)

var (
	tokenSubject string
	tokenTTL     time.Duration
	tokenGateway string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an admin API token",
	Long: `Signs an HS256 admin token with auth.jwt_secret. The token is printed to
stdout and is accepted as a Bearer token by the admin API.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := setup()
		if err != nil {
			return err
		}

		token, err := api.IssueAdminToken(cfg.Auth.JWTSecret, tokenSubject, tokenTTL)
		if err != nil {
			return fmt.Errorf("failed to issue admin token: %w", err)
		}
		fmt.Println(token)
		return nil
	},
}

var deviceTokenCmd = &cobra.Command{
	Use:   "device",
	Short: "Issue an ingest token for a mini-PC",
	Long: `Creates a new device token for the given mini-PC. Only a hash is stored,
so the printed token cannot be recovered later.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		db, err := openStore(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer db.Close()

		raw, err := db.IssueDeviceToken(cmd.Context(), tokenGateway)
		if err != nil {
			return err
		}
		fmt.Println(raw)
		return nil
	},
}

var revokeTokenCmd = &cobra.Command{
	Use:   "revoke",
	Short: "Revoke every ingest token of a mini-PC",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		db, err := openStore(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.RevokeDeviceToken(cmd.Context(), tokenGateway); err != nil {
			return err
		}
		fmt.Printf("Revoked tokens for %s\n", tokenGateway)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "admin", "token subject")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")

	for _, c := range []*cobra.Command{deviceTokenCmd, revokeTokenCmd} {
		c.Flags().StringVar(&tokenGateway, "mini-pc", "", "mini-PC id (required)")
		c.MarkFlagRequired("mini-pc")
		tokenCmd.AddCommand(c)
	}

	rootCmd.AddCommand(tokenCmd)
}
