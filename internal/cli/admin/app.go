package admin

import (
	"context"
	"fmt"

	"github.com/cloo-solutions/reviewpulse/internal/config"
	"github.com/cloo-solutions/reviewpulse/internal/database"
	"github.com/cloo-solutions/reviewpulse/internal/jobs"
	"github.com/cloo-solutions/reviewpulse/internal/openai"
	"github.com/cloo-solutions/reviewpulse/internal/repository"
	"github.com/cloo-solutions/reviewpulse/internal/service"
	"github.com/cloo-solutions/reviewpulse/internal/storage"
	"github.com/cloo-solutions/reviewpulse/internal/telemetry"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const lockNamespace = "reviewpulse"

// App holds everything a command needs after config and the database are up.
type App struct {
	Config   *config.Config
	Logger   *zerolog.Logger
	Pool     *pgxpool.Pool
	Pipeline *jobs.PipelineProcessor
	Insights *repository.InsightRepository
	Archive  *storage.InsightArchive

	shutdownTelemetry func()
}

func newApp(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger := telemetry.NewLogger(cfg.Debug)

	sampleRate := 0.1
	if cfg.Environment == "development" {
		sampleRate = 1.0
	}
	shutdownTelemetry, err := telemetry.Init(telemetry.Config{
		DSN:              cfg.SentryDSN,
		Environment:      cfg.Environment,
		TracesSampleRate: sampleRate,
	}, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("telemetry init failed, continuing without tracing")
		shutdownTelemetry = func() {}
	}

	pool, err := database.NewPool(ctx, database.Config{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DatabaseMaxConns,
	})
	if err != nil {
		shutdownTelemetry()
		return nil, err
	}

	app := &App{
		Config:            cfg,
		Logger:            logger,
		Pool:              pool,
		Insights:          repository.NewInsightRepository(pool),
		shutdownTelemetry: shutdownTelemetry,
	}

	archive, err := openArchive(ctx, cfg, logger)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Archive = archive

	var archiver service.InsightArchiver
	if archive != nil {
		archiver = archive
	}
	app.Pipeline = buildPipeline(cfg, pool, archiver, logger)
	return app, nil
}

func buildPipeline(cfg *config.Config, pool *pgxpool.Pool, archiver service.InsightArchiver, logger *zerolog.Logger) *jobs.PipelineProcessor {
	txRunner := repository.NewTxRunner(pool)

	embedder := openai.NewClientWithConfig(openai.Config{
		APIKey:              cfg.OpenAIAPIKey,
		BaseURL:             cfg.OpenAIBaseURL,
		EmbeddingModel:      cfg.EmbeddingModel,
		EmbeddingDimensions: cfg.EmbeddingDimensions,
	})

	var completer service.CompletionClient
	if cfg.HasSynthesis() {
		completer = openai.NewSynthesizer(openai.SynthesizerConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.SynthesisModel,
			Timeout: cfg.SynthesisTimeout,
		})
	}

	embedSvc := service.NewEmbeddingService(embedder, repository.NewEmbeddingRepository(pool), txRunner, cfg.EmbeddingConfig(), logger)
	clusterSvc := service.NewClusteringService(repository.NewAssignmentRepository(pool), txRunner, cfg.ClusteringConfig(), logger)
	insightSvc := service.NewInsightService(repository.NewInsightRepository(pool), txRunner, completer, archiver, cfg.InsightConfig(), logger)

	var locker jobs.StageLocker = database.NoopLocker{}
	if cfg.StageLocks {
		locker = database.NewStageLocker(pool, lockNamespace)
	}

	return jobs.NewPipelineProcessor(embedSvc, clusterSvc, insightSvc, locker, logger)
}

// openArchive returns nil when the S3 endpoint or credentials are unset.
func openArchive(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*storage.InsightArchive, error) {
	if !cfg.HasS3() {
		return nil, nil
	}

	client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        cfg.S3Endpoint,
		Region:          cfg.S3Region,
		AccessKeyID:     cfg.S3AccessKey,
		SecretAccessKey: cfg.S3SecretKey,
		Bucket:          cfg.S3Bucket,
		UsePathStyle:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}
	if err := client.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure S3 bucket: %w", err)
	}
	logger.Info().Str("bucket", cfg.S3Bucket).Msg("insight archive enabled")

	return storage.NewInsightArchive(client), nil
}

func (a *App) Close() {
	a.Pool.Close()
	a.shutdownTelemetry()
}
