package service

import (
	"context"
	"fmt"

	"github.com/cloo-solutions/reviewpulse/internal/domain"
	"github.com/cloo-solutions/reviewpulse/internal/telemetry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// EmbeddingClient embeds a batch of texts, returning vectors in input order.
type EmbeddingClient interface {
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

type EmbeddingConfig struct {
	Model       string
	FetchLimit  int // records per fetch window
	BatchSize   int // texts per embedding call
	CommitEvery int // buffered rows per flush
	MinTokens   int
	Dimensions  int
}

func DefaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		Model:       domain.DefaultEmbeddingModel,
		FetchLimit:  2000,
		BatchSize:   128,
		CommitEvery: 256,
		MinTokens:   1,
		Dimensions:  domain.DefaultEmbeddingDimensions,
	}
}

// EmbeddingReport counts what one embedding run did. Failed counts records
// whose sub-batch or flush block was discarded; they stay unembedded.
type EmbeddingReport struct {
	RunID    string `json:"run_id"`
	Seen     int    `json:"seen"`
	Inserted int    `json:"inserted"`
	Skipped  int    `json:"skipped"`
	Failed   int    `json:"failed"`
}

// EmbeddingService generates embeddings for records that lack one.
type EmbeddingService struct {
	client   EmbeddingClient
	repo     EmbeddingRepositoryInterface
	txRunner TxRunner
	cfg      EmbeddingConfig
	logger   *zerolog.Logger
}

func NewEmbeddingService(client EmbeddingClient, repo EmbeddingRepositoryInterface, txRunner TxRunner, cfg EmbeddingConfig, logger *zerolog.Logger) *EmbeddingService {
	defaults := DefaultEmbeddingConfig()
	if cfg.Model == "" {
		cfg.Model = defaults.Model
	}
	if cfg.FetchLimit <= 0 {
		cfg.FetchLimit = defaults.FetchLimit
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.CommitEvery <= 0 {
		cfg.CommitEvery = defaults.CommitEvery
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = defaults.Dimensions
	}
	return &EmbeddingService{
		client:   client,
		repo:     repo,
		txRunner: txRunner,
		cfg:      cfg,
		logger:   logger,
	}
}

type pendingText struct {
	recordID int64
	text     string
}

// Run fetches unembedded records window by window until a window comes back
// empty. Sub-batch and flush failures are counted and skipped; only a fetch
// failure ends the run with an error. Vectors already computed when ctx is
// cancelled are still committed.
func (s *EmbeddingService) Run(ctx context.Context) (*EmbeddingReport, error) {
	report := &EmbeddingReport{RunID: uuid.NewString()}
	log := s.logger.With().Str("run_id", report.RunID).Str("stage", "embed").Logger()

	ctx, span := telemetry.StartSpan(ctx, "pipeline.embed", telemetry.SpanAttributes{
		RunID:     report.RunID,
		Stage:     "embed",
		Operation: "generate_embeddings",
	})
	defer span.End()

	log.Info().Str("model", s.cfg.Model).Msg("embedding run starting")

	var pending []domain.Embedding
	var afterID int64
	for {
		if err := ctx.Err(); err != nil {
			s.flush(context.WithoutCancel(ctx), pending, report, &log)
			return report, err
		}

		records, err := s.repo.FetchUnembedded(ctx, afterID, s.cfg.FetchLimit)
		if err != nil {
			span.SetError(err)
			return report, fmt.Errorf("failed to fetch unembedded records: %w", err)
		}
		if len(records) == 0 {
			break
		}

		report.Seen += len(records)
		afterID = records[len(records)-1].ID

		eligible := s.eligible(records, report)
		log.Debug().Int("fetched", len(records)).Int("eligible", len(eligible)).Msg("fetch window")

		for start := 0; start < len(eligible); start += s.cfg.BatchSize {
			end := min(start+s.cfg.BatchSize, len(eligible))
			chunk := eligible[start:end]

			texts := make([]string, len(chunk))
			for i, p := range chunk {
				texts[i] = p.text
			}

			vectors, err := s.client.GenerateEmbeddings(ctx, texts)
			if err != nil {
				report.Failed += len(chunk)
				log.Warn().Err(err).Int("size", len(chunk)).Msg("embedding batch failed, skipping batch")
				telemetry.CaptureError(ctx, err, telemetry.SpanAttributes{RunID: report.RunID, Stage: "embed"})
				continue
			}

			for i, p := range chunk {
				e := domain.Embedding{
					RecordID: p.recordID,
					Vector:   vectors[i],
					Model:    s.cfg.Model,
				}
				if err := domain.ValidateEmbedding(&e, s.cfg.Dimensions); err != nil {
					report.Skipped++
					log.Warn().Err(err).Int64("record_id", p.recordID).Msg("invalid embedding, skipping record")
					continue
				}
				pending = append(pending, e)
			}

			if len(pending) >= s.cfg.CommitEvery {
				s.flush(ctx, pending, report, &log)
				pending = nil
			}
		}
	}

	s.flush(ctx, pending, report, &log)

	log.Info().
		Int("seen", report.Seen).
		Int("inserted", report.Inserted).
		Int("skipped", report.Skipped).
		Int("failed", report.Failed).
		Msg("embedding run completed")

	return report, nil
}

// eligible normalizes text and drops records that are empty or too short.
func (s *EmbeddingService) eligible(records []domain.Record, report *EmbeddingReport) []pendingText {
	out := make([]pendingText, 0, len(records))
	for _, rec := range records {
		text := NormalizeText(rec.Text())
		if text == "" || TokenCount(text) < s.cfg.MinTokens {
			report.Skipped++
			continue
		}
		out = append(out, pendingText{recordID: rec.ID, text: text})
	}
	return out
}

// flush commits one block atomically. A failed block is rolled back and
// counted; earlier blocks stay committed.
func (s *EmbeddingService) flush(ctx context.Context, block []domain.Embedding, report *EmbeddingReport, log *zerolog.Logger) {
	if len(block) == 0 {
		return
	}

	var inserted int64
	err := s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		n, err := repos.Embeddings().InsertEmbeddings(ctx, block)
		if err != nil {
			return err
		}
		inserted = n
		return nil
	})
	if err != nil {
		report.Failed += len(block)
		log.Warn().Err(err).Int("size", len(block)).Msg("embedding flush failed, block rolled back")
		telemetry.CaptureError(ctx, err, telemetry.SpanAttributes{RunID: report.RunID, Stage: "embed"})
		return
	}

	report.Inserted += int(inserted)
	log.Info().Int("committed", int(inserted)).Int("total_inserted", report.Inserted).Msg("embeddings committed")
}
