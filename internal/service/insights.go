package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cloo-solutions/reviewpulse/internal/domain"
	"github.com/cloo-solutions/reviewpulse/internal/telemetry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// CompletionClient sends one synthesis round trip.
type CompletionClient interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// InsightArchiver copies a committed generation elsewhere. Failures never
// affect the committed rows.
type InsightArchiver interface {
	ArchiveGeneration(ctx context.Context, group string, generatedAt time.Time, insights []domain.ClusterInsight) error
}

type InsightConfig struct {
	Model              string
	EnableSynthesis    bool
	TrendThreshold     int
	MaxClusters        int
	ExamplesPerCluster int
}

func DefaultInsightConfig() InsightConfig {
	return InsightConfig{
		Model:              domain.DefaultClusteringModel,
		TrendThreshold:     domain.DefaultTrendThreshold,
		MaxClusters:        12,
		ExamplesPerCluster: 5,
	}
}

type GroupInsights struct {
	Group    string `json:"group"`
	Clusters int    `json:"clusters"`
	Inserted int    `json:"inserted"`
	Skipped  bool   `json:"skipped,omitempty"`
	Error    string `json:"error,omitempty"`
}

type InsightReport struct {
	RunID             string                `json:"run_id"`
	DryRun            bool                  `json:"dry_run"`
	WindowStart       time.Time             `json:"window_start"`
	WindowEnd         time.Time             `json:"window_end"`
	GroupsSeen        int                   `json:"groups_seen"`
	GroupsSynthesized int                   `json:"groups_synthesized"`
	GroupsSkipped     int                   `json:"groups_skipped"`
	GroupsFailed      int                   `json:"groups_failed"`
	Inserted          int                   `json:"inserted"`
	Trends            []domain.ClusterTrend `json:"-"`
	Groups            []GroupInsights       `json:"groups"`
}

// InsightService computes window trends and, when enabled, synthesizes one
// insight generation per group.
type InsightService struct {
	repo     InsightRepositoryInterface
	txRunner TxRunner
	client   CompletionClient
	archiver InsightArchiver
	cfg      InsightConfig
	logger   *zerolog.Logger
	now      func() time.Time
}

// NewInsightService creates the service. client may be nil when synthesis is
// disabled and archiver may be nil when no archive is configured.
func NewInsightService(repo InsightRepositoryInterface, txRunner TxRunner, client CompletionClient, archiver InsightArchiver, cfg InsightConfig, logger *zerolog.Logger) *InsightService {
	defaults := DefaultInsightConfig()
	if cfg.Model == "" {
		cfg.Model = defaults.Model
	}
	if cfg.TrendThreshold <= 0 {
		cfg.TrendThreshold = defaults.TrendThreshold
	}
	if cfg.MaxClusters <= 0 {
		cfg.MaxClusters = defaults.MaxClusters
	}
	if cfg.ExamplesPerCluster <= 0 {
		cfg.ExamplesPerCluster = defaults.ExamplesPerCluster
	}
	return &InsightService{
		repo:     repo,
		txRunner: txRunner,
		client:   client,
		archiver: archiver,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Run computes trends for every cluster. In dry-run mode it only logs them.
// Otherwise each group is synthesized and committed on its own; transport
// and store failures are counted, while synthesis parse failures are also
// returned joined once all groups have been attempted.
func (s *InsightService) Run(ctx context.Context) (*InsightReport, error) {
	report := &InsightReport{RunID: uuid.NewString(), Groups: []GroupInsights{}}
	log := s.logger.With().Str("run_id", report.RunID).Str("stage", "insights").Logger()

	ctx, span := telemetry.StartSpan(ctx, "pipeline.insights", telemetry.SpanAttributes{
		RunID:     report.RunID,
		Stage:     "insights",
		Operation: "synthesize_insights",
	})
	defer span.End()

	current, previous := domain.WindowsFor(s.now())
	report.WindowStart = current.Start
	report.WindowEnd = current.End

	byGroup, err := s.trends(ctx, current, previous)
	if err != nil {
		span.SetError(err)
		return report, err
	}

	groups := make([]string, 0, len(byGroup))
	for g := range byGroup {
		groups = append(groups, g)
	}
	sort.Strings(groups)

	for _, g := range groups {
		report.Trends = append(report.Trends, byGroup[g]...)
	}
	report.GroupsSeen = len(groups)

	if !s.cfg.EnableSynthesis || s.client == nil {
		report.DryRun = true
		for _, t := range report.Trends {
			event := log.Info().
				Str("group", t.Key.Group).
				Int("cluster_id", t.Key.Label).
				Int("size", t.Size).
				Int("count_current", t.CurrentCount).
				Int("count_previous", t.PreviousCount).
				Int("delta", t.Delta).
				Str("trend", string(t.Trend))
			if t.DeltaPct != nil {
				event = event.Float64("delta_pct", *t.DeltaPct)
			}
			event.Msg("cluster trend")
		}
		log.Info().Int("groups", len(groups)).Int("clusters", len(report.Trends)).Bool("dry_run", true).Msg("synthesis disabled, no insights written")
		return report, nil
	}

	var parseErrs []error
	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		outcome, err := s.synthesizeGroup(ctx, g, byGroup[g], current, &log)
		switch {
		case err != nil:
			report.GroupsFailed++
			outcome.Error = err.Error()
			log.Error().Err(err).Str("group", g).Msg("insight synthesis failed for group, nothing written")
			telemetry.CaptureError(ctx, err, telemetry.SpanAttributes{RunID: report.RunID, Stage: "insights", Group: g})
			if errors.Is(err, domain.ErrSynthesisParse) {
				parseErrs = append(parseErrs, err)
			}
		case outcome.Skipped:
			report.GroupsSkipped++
			log.Info().Str("group", g).Msg("no clusters with examples, skipping synthesis")
		default:
			report.GroupsSynthesized++
			report.Inserted += outcome.Inserted
			log.Info().Str("group", g).Int("inserted", outcome.Inserted).Msg("insights committed")
		}
		report.Groups = append(report.Groups, outcome)
	}

	log.Info().
		Int("groups", report.GroupsSeen).
		Int("synthesized", report.GroupsSynthesized).
		Int("failed", report.GroupsFailed).
		Int("inserted", report.Inserted).
		Bool("dry_run", false).
		Msg("insights run completed")

	if len(parseErrs) > 0 {
		err := errors.Join(parseErrs...)
		span.SetError(err)
		return report, err
	}
	return report, nil
}

func (s *InsightService) trends(ctx context.Context, current, previous domain.Window) (map[string][]domain.ClusterTrend, error) {
	stats, err := s.repo.ClusterStats(ctx, s.cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to load cluster stats: %w", err)
	}
	currentCounts, err := s.repo.WindowCounts(ctx, s.cfg.Model, current)
	if err != nil {
		return nil, fmt.Errorf("failed to count current window: %w", err)
	}
	previousCounts, err := s.repo.WindowCounts(ctx, s.cfg.Model, previous)
	if err != nil {
		return nil, fmt.Errorf("failed to count previous window: %w", err)
	}

	byGroup := make(map[string][]domain.ClusterTrend)
	for _, stat := range stats {
		t := domain.NewClusterTrend(stat, currentCounts[stat.Key], previousCounts[stat.Key], s.cfg.TrendThreshold)
		byGroup[stat.Key.Group] = append(byGroup[stat.Key.Group], t)
	}
	return byGroup, nil
}

// SelectClusters keeps the n largest clusters by all-time size, ties broken
// by label.
func SelectClusters(trends []domain.ClusterTrend, n int) []domain.ClusterTrend {
	sorted := make([]domain.ClusterTrend, len(trends))
	copy(sorted, trends)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Size != sorted[j].Size {
			return sorted[i].Size > sorted[j].Size
		}
		return sorted[i].Key.Label < sorted[j].Key.Label
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func (s *InsightService) synthesizeGroup(ctx context.Context, group string, trends []domain.ClusterTrend, window domain.Window, log *zerolog.Logger) (GroupInsights, error) {
	outcome := GroupInsights{Group: group}

	ctx, span := telemetry.StartSpan(ctx, "pipeline.insights.group", telemetry.SpanAttributes{
		Stage: "insights",
		Group: group,
	})
	defer span.End()

	req := SynthesisRequest{Brand: group, Clusters: []SynthesisCluster{}}
	submitted := make(map[int]domain.ClusterTrend)
	for _, t := range SelectClusters(trends, s.cfg.MaxClusters) {
		examples, err := s.repo.ClusterExamples(ctx, t.Key, s.cfg.ExamplesPerCluster)
		if err != nil {
			span.SetError(err)
			return outcome, fmt.Errorf("failed to fetch examples for %s: %w", t.Key, err)
		}
		if len(examples) == 0 {
			continue
		}
		req.Clusters = append(req.Clusters, SynthesisCluster{
			ClusterID: t.Key.Label,
			Size:      domain.SizeBucket(t.Size),
			Sentiment: domain.SentimentBucket(t.AvgSentiment),
			Trend:     string(t.Trend),
			Examples:  examples,
		})
		submitted[t.Key.Label] = t
	}
	outcome.Clusters = len(req.Clusters)

	if len(req.Clusters) == 0 {
		outcome.Skipped = true
		return outcome, nil
	}

	system, user, err := BuildSynthesisPrompt(req)
	if err != nil {
		return outcome, err
	}

	raw, err := s.client.Complete(ctx, system, user)
	if err != nil {
		span.SetError(err)
		return outcome, err
	}

	resp, err := ParseSynthesisResponse(raw, req)
	if err != nil {
		span.SetError(err)
		return outcome, err
	}

	generatedAt := s.now().UTC().Truncate(time.Microsecond)
	rows := make([]domain.ClusterInsight, 0, len(req.Clusters))
	for _, c := range req.Clusters {
		summary, ok := resp.Summaries[c.ClusterID]
		if !ok {
			continue
		}
		t := submitted[c.ClusterID]
		row := domain.ClusterInsight{
			Key:           t.Key,
			GeneratedAt:   generatedAt,
			WindowStart:   window.Start,
			WindowEnd:     window.End,
			CountCurrent:  t.CurrentCount,
			CountPrevious: t.PreviousCount,
			Delta:         t.Delta,
			DeltaPct:      t.DeltaPct,
			Trend:         t.Trend,
			Summary:       domain.TruncateRunes(summary.Summary, domain.MaxSummaryLength),
			PrimaryIssue:  domain.TruncateRunes(summary.PrimaryIssue, domain.MaxIssueLength),
			Impact:        summary.Impact,
		}
		if err := domain.ValidateClusterInsight(&row); err != nil {
			return outcome, fmt.Errorf("invalid insight for %s: %w", t.Key, err)
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return outcome, nil
	}

	var inserted int64
	err = s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		n, err := repos.Insights().InsertInsights(ctx, rows)
		if err != nil {
			return err
		}
		inserted = n
		return nil
	})
	if err != nil {
		span.SetError(err)
		return outcome, fmt.Errorf("failed to commit insights: %w", err)
	}
	outcome.Inserted = int(inserted)

	if s.archiver != nil {
		if err := s.archiver.ArchiveGeneration(ctx, group, generatedAt, rows); err != nil {
			log.Warn().Err(err).Str("group", group).Msg("failed to archive insight generation")
		}
	}

	return outcome, nil
}
