package admin

import (
	"context"
	"fmt"

	"github.com/cloo-solutions/reviewpulse/internal/config"
	"github.com/cloo-solutions/reviewpulse/internal/storage"
	"github.com/cloo-solutions/reviewpulse/internal/telemetry"
	"github.com/spf13/cobra"
)

func ArchiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Browse insight generations archived to object storage",
	}
	cmd.AddCommand(archiveListCmd())
	cmd.AddCommand(archiveShowCmd())
	return cmd
}

func archiveListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <group>",
		Short: "List archived generation times for a group, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withArchive(cmd, func(ctx context.Context, archive *storage.InsightArchive, format string) error {
				history, err := archive.History(ctx, args[0])
				if err != nil {
					return err
				}
				return printHistory(cmd.OutOrStdout(), format, args[0], history)
			})
		},
	}
	addOutputFlag(cmd)
	return cmd
}

func archiveShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <group> <generated-at>",
		Short: "Print one archived generation",
		Long:  "Print one archived generation. generated-at is RFC 3339 or the timestamp printed by archive list.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			at, err := storage.ParseArchiveTime(args[1])
			if err != nil {
				return err
			}
			return withArchive(cmd, func(ctx context.Context, archive *storage.InsightArchive, format string) error {
				doc, err := archive.Load(ctx, args[0], at)
				if err != nil {
					return err
				}
				return printArchivedGeneration(cmd.OutOrStdout(), format, doc)
			})
		},
	}
	addOutputFlag(cmd)
	return cmd
}

// withArchive opens only the object store; browsing the archive does not
// need the database.
func withArchive(cmd *cobra.Command, fn func(ctx context.Context, archive *storage.InsightArchive, format string) error) error {
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := telemetry.NewLogger(cfg.Debug)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	archive, err := openArchive(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if archive == nil {
		return fmt.Errorf("archive is not configured: set PULSE_S3_ENDPOINT, PULSE_S3_ACCESS_KEY_ID and PULSE_S3_SECRET_ACCESS_KEY")
	}
	return fn(ctx, archive, format)
}
