package service

import (
	"context"
	"fmt"

	"github.com/cloo-solutions/reviewpulse/internal/clustering"
	"github.com/cloo-solutions/reviewpulse/internal/domain"
	"github.com/cloo-solutions/reviewpulse/internal/telemetry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type ClusteringConfig struct {
	Model      string
	MinRecords int
	FetchLimit int
	Dimensions int
	KMeans     clustering.KMeansConfig
}

func DefaultClusteringConfig() ClusteringConfig {
	return ClusteringConfig{
		Model:      domain.DefaultClusteringModel,
		MinRecords: 15,
		FetchLimit: 5000,
		Dimensions: domain.DefaultEmbeddingDimensions,
		KMeans:     clustering.DefaultKMeansConfig(),
	}
}

// GroupClustering describes what happened to one group in a run.
type GroupClustering struct {
	Group      string `json:"group"`
	Fetched    int    `json:"fetched"`
	BadVectors int    `json:"bad_vectors"`
	K          int    `json:"k,omitempty"`
	Clustered  int    `json:"clustered"`
	Skipped    bool   `json:"skipped,omitempty"`
	Error      string `json:"error,omitempty"`
}

type ClusteringReport struct {
	RunID         string            `json:"run_id"`
	GroupsSeen    int               `json:"groups_seen"`
	GroupsSkipped int               `json:"groups_skipped"`
	GroupsFailed  int               `json:"groups_failed"`
	Clustered     int               `json:"clustered"`
	BadVectors    int               `json:"bad_vectors"`
	Groups        []GroupClustering `json:"groups"`
}

// ClusteringService assigns unclustered embeddings to clusters, one group at a time.
type ClusteringService struct {
	repo     AssignmentRepositoryInterface
	txRunner TxRunner
	kmeans   *clustering.KMeans
	cfg      ClusteringConfig
	logger   *zerolog.Logger
}

func NewClusteringService(repo AssignmentRepositoryInterface, txRunner TxRunner, cfg ClusteringConfig, logger *zerolog.Logger) *ClusteringService {
	defaults := DefaultClusteringConfig()
	if cfg.Model == "" {
		cfg.Model = defaults.Model
	}
	if cfg.MinRecords <= 0 {
		cfg.MinRecords = defaults.MinRecords
	}
	if cfg.FetchLimit <= 0 {
		cfg.FetchLimit = defaults.FetchLimit
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = defaults.Dimensions
	}
	if cfg.KMeans.MaxIterations <= 0 {
		cfg.KMeans = defaults.KMeans
	}
	return &ClusteringService{
		repo:     repo,
		txRunner: txRunner,
		kmeans:   clustering.NewKMeans(cfg.KMeans),
		cfg:      cfg,
		logger:   logger,
	}
}

// Run clusters every group that has unclustered embeddings. A failing group
// is rolled back and the run moves on to the next one.
func (s *ClusteringService) Run(ctx context.Context) (*ClusteringReport, error) {
	report := &ClusteringReport{RunID: uuid.NewString(), Groups: []GroupClustering{}}
	log := s.logger.With().Str("run_id", report.RunID).Str("stage", "cluster").Logger()

	ctx, span := telemetry.StartSpan(ctx, "pipeline.cluster", telemetry.SpanAttributes{
		RunID:     report.RunID,
		Stage:     "cluster",
		Operation: "cluster_groups",
	})
	defer span.End()

	groups, err := s.repo.GroupsWithUnclustered(ctx, s.cfg.Model)
	if err != nil {
		span.SetError(err)
		return report, fmt.Errorf("failed to list groups: %w", err)
	}

	log.Info().Int("groups", len(groups)).Str("model", s.cfg.Model).Msg("clustering run starting")

	for _, group := range groups {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		report.GroupsSeen++
		outcome, err := s.clusterGroup(ctx, group)
		report.BadVectors += outcome.BadVectors

		switch {
		case err != nil:
			report.GroupsFailed++
			outcome.Error = err.Error()
			log.Error().Err(err).Str("group", group).Msg("clustering failed for group, rolled back")
			telemetry.CaptureError(ctx, err, telemetry.SpanAttributes{RunID: report.RunID, Stage: "cluster", Group: group})
		case outcome.Skipped:
			report.GroupsSkipped++
			log.Info().Str("group", group).Int("fetched", outcome.Fetched).Int("bad_vectors", outcome.BadVectors).Msg("not enough records to cluster, skipping")
		default:
			report.Clustered += outcome.Clustered
			log.Info().Str("group", group).Int("k", outcome.K).Int("clustered", outcome.Clustered).Msg("group clustered")
		}

		report.Groups = append(report.Groups, outcome)
	}

	log.Info().
		Int("groups_seen", report.GroupsSeen).
		Int("groups_failed", report.GroupsFailed).
		Int("clustered", report.Clustered).
		Msg("clustering run completed")

	return report, nil
}

func (s *ClusteringService) clusterGroup(ctx context.Context, group string) (GroupClustering, error) {
	outcome := GroupClustering{Group: group}

	ctx, span := telemetry.StartSpan(ctx, "pipeline.cluster.group", telemetry.SpanAttributes{
		Stage: "cluster",
		Group: group,
	})
	defer span.End()

	err := s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		rows, err := repos.Assignments().FetchUnclustered(ctx, group, s.cfg.Model, s.cfg.FetchLimit)
		if err != nil {
			return fmt.Errorf("failed to fetch unclustered embeddings: %w", err)
		}
		outcome.Fetched = len(rows)
		if len(rows) < s.cfg.MinRecords {
			outcome.Skipped = true
			return nil
		}

		ids := make([]int64, 0, len(rows))
		vectors := make([][]float32, 0, len(rows))
		for _, row := range rows {
			if len(row.Vector) != s.cfg.Dimensions {
				outcome.BadVectors++
				continue
			}
			ids = append(ids, row.RecordID)
			vectors = append(vectors, row.Vector)
		}
		if len(vectors) < s.cfg.MinRecords {
			outcome.Skipped = true
			return nil
		}

		k := clustering.ChooseK(len(vectors))
		result, err := s.kmeans.Fit(clustering.Normalize(vectors), k)
		if err != nil {
			return fmt.Errorf("failed to fit k-means: %w", err)
		}
		outcome.K = k

		assignments := make([]domain.ClusterAssignment, len(ids))
		for i, id := range ids {
			assignments[i] = domain.ClusterAssignment{
				RecordID:  id,
				ClusterID: result.Labels[i],
				Model:     s.cfg.Model,
			}
			if err := domain.ValidateClusterAssignment(&assignments[i]); err != nil {
				return fmt.Errorf("invalid assignment for record %d: %w", id, err)
			}
		}

		n, err := repos.Assignments().InsertAssignments(ctx, assignments)
		if err != nil {
			return fmt.Errorf("failed to insert assignments: %w", err)
		}
		outcome.Clustered = int(n)
		return nil
	})
	if err != nil {
		span.SetError(err)
		outcome.K = 0
		outcome.Clustered = 0
		return outcome, err
	}
	return outcome, nil
}
