package admin

import (
	"context"

	"github.com/spf13/cobra"
)

func EmbedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "embed",
		Short: "Embed records that have no embedding yet",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStage(cmd, func(ctx context.Context, app *App, format string) error {
				report, err := app.Pipeline.RunEmbedding(ctx)
				if perr := printEmbeddingReport(cmd.OutOrStdout(), format, report); perr != nil && err == nil {
					err = perr
				}
				return err
			})
		},
	}
	addOutputFlag(cmd)
	return cmd
}

func ClusterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cluster",
		Short: "Assign unclustered embeddings to clusters per group",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStage(cmd, func(ctx context.Context, app *App, format string) error {
				report, err := app.Pipeline.RunClustering(ctx)
				if perr := printClusteringReport(cmd.OutOrStdout(), format, report); perr != nil && err == nil {
					err = perr
				}
				return err
			})
		},
	}
	addOutputFlag(cmd)
	return cmd
}

func InsightsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "insights",
		Short: "Compute window trends and synthesize insight generations",
		Long:  "Compute 7-day window trends per cluster. With PULSE_ENABLE_LLM set, each group's top clusters are summarized and stored as a new insight generation; otherwise the trends are only printed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStage(cmd, func(ctx context.Context, app *App, format string) error {
				report, err := app.Pipeline.RunInsights(ctx)
				if perr := printInsightReport(cmd.OutOrStdout(), format, report); perr != nil && err == nil {
					err = perr
				}
				return err
			})
		},
	}
	addOutputFlag(cmd)
	return cmd
}

func RunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run embed, cluster and insights once, in order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStage(cmd, func(ctx context.Context, app *App, format string) error {
				report, err := app.Pipeline.RunAll(ctx)
				if perr := printPipelineReport(cmd.OutOrStdout(), format, report); perr != nil && err == nil {
					err = perr
				}
				return err
			})
		},
	}
	addOutputFlag(cmd)
	return cmd
}

func runStage(cmd *cobra.Command, fn func(ctx context.Context, app *App, format string) error) error {
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	return fn(ctx, app, format)
}
