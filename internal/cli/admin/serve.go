package admin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloo-solutions/reviewpulse/internal/api/handlers"
	"github.com/cloo-solutions/reviewpulse/internal/jobs"
	"github.com/cloo-solutions/reviewpulse/internal/migrations"
	"github.com/cloo-solutions/reviewpulse/internal/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server and the pipeline worker",
		Long:  "Serve the insight API and run the embed, cluster and insights stages on PULSE_PIPELINE_INTERVAL",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "", "Port to listen on (overrides PULSE_PORT)")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")
	cmd.Flags().Bool("no-worker", false, "Serve the API without running the pipeline")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()
	logger := app.Logger

	if port, _ := cmd.Flags().GetString("port"); port != "" {
		app.Config.Port = port
	}

	if noMigrate, _ := cmd.Flags().GetBool("no-migrate"); !noMigrate {
		if err := migrations.Up(app.Config.DatabaseURL, logger); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	router := server.NewRouter(server.RouterConfig{
		Logger:         logger,
		HealthHandler:  handlers.NewHealthHandler(app.Pool),
		InsightHandler: handlers.NewInsightHandler(app.Insights),
	})
	srv := &http.Server{
		Addr:              ":" + app.Config.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("port", app.Config.Port).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	if noWorker, _ := cmd.Flags().GetBool("no-worker"); !noWorker {
		scheduler := jobs.NewScheduler(app.Pipeline, app.Config.PipelineInterval, logger)
		g.Go(func() error {
			scheduler.Start(gctx)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info().Msg("server exited")
	return nil
}
