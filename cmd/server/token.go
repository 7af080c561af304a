package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"oktel-workforce/internal/auth"
	"oktel-workforce/internal/config"
	"oktel-workforce/internal/model"
)

// tokenCommand mints a bearer token signed with the configured secret, for local
// testing without the identity provider.
func tokenCommand(configFile *string) *cobra.Command {
	var (
		workerID string
		role     string
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a development bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configFile)
			if err != nil {
				return err
			}
			if cfg.IsProduction() {
				return fmt.Errorf("refusing to issue tokens in production")
			}
			r := model.Role(role)
			if r != model.RoleWorker && r != model.RoleManager {
				return fmt.Errorf("role must be %q or %q", model.RoleWorker, model.RoleManager)
			}
			tok, err := auth.NewToken(cfg.JWTSecret, cfg.JWTIssuer, model.Identity{WorkerID: workerID, Role: r}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&workerID, "worker", "", "Worker id the token identifies")
	cmd.Flags().StringVar(&role, "role", string(model.RoleWorker), "worker or manager")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("worker")
	return cmd
}
