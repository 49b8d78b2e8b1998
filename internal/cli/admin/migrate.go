package admin

import (
	"fmt"

	"github.com/cloo-solutions/reviewpulse/internal/config"
	"github.com/cloo-solutions/reviewpulse/internal/migrations"
	"github.com/cloo-solutions/reviewpulse/internal/telemetry"
	"github.com/spf13/cobra"
)

func MigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return migrations.Up(cfg.DatabaseURL, telemetry.NewLogger(cfg.Debug))
		},
	})

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, _ := cmd.Flags().GetInt("steps")
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return migrations.Down(cfg.DatabaseURL, steps, telemetry.NewLogger(cfg.Debug))
		},
	}
	down.Flags().Int("steps", 1, "Number of migrations to roll back")
	cmd.AddCommand(down)

	return cmd
}
