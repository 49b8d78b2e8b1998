package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloo-solutions/reviewpulse/internal/domain"
	"github.com/cloo-solutions/reviewpulse/internal/service"
	"github.com/rs/zerolog"
)

const (
	StageEmbed    = "embed"
	StageCluster  = "cluster"
	StageInsights = "insights"
)

// StageLocker runs fn while holding the exclusive lock for a stage.
type StageLocker interface {
	WithLock(ctx context.Context, stage string, fn func(ctx context.Context) error) error
}

type EmbeddingStage interface {
	Run(ctx context.Context) (*service.EmbeddingReport, error)
}

type ClusteringStage interface {
	Run(ctx context.Context) (*service.ClusteringReport, error)
}

type InsightStage interface {
	Run(ctx context.Context) (*service.InsightReport, error)
}

// PipelineProcessor runs the embed, cluster and insights stages, each under
// its stage lock.
type PipelineProcessor struct {
	embed    EmbeddingStage
	cluster  ClusteringStage
	insights InsightStage
	locker   StageLocker
	logger   *zerolog.Logger
}

func NewPipelineProcessor(embed EmbeddingStage, cluster ClusteringStage, insights InsightStage, locker StageLocker, logger *zerolog.Logger) *PipelineProcessor {
	return &PipelineProcessor{
		embed:    embed,
		cluster:  cluster,
		insights: insights,
		locker:   locker,
		logger:   logger,
	}
}

func (p *PipelineProcessor) RunEmbedding(ctx context.Context) (*service.EmbeddingReport, error) {
	var report *service.EmbeddingReport
	err := p.locker.WithLock(ctx, StageEmbed, func(ctx context.Context) error {
		var err error
		report, err = p.embed.Run(ctx)
		return err
	})
	return report, err
}

func (p *PipelineProcessor) RunClustering(ctx context.Context) (*service.ClusteringReport, error) {
	var report *service.ClusteringReport
	err := p.locker.WithLock(ctx, StageCluster, func(ctx context.Context) error {
		var err error
		report, err = p.cluster.Run(ctx)
		return err
	})
	return report, err
}

func (p *PipelineProcessor) RunInsights(ctx context.Context) (*service.InsightReport, error) {
	var report *service.InsightReport
	err := p.locker.WithLock(ctx, StageInsights, func(ctx context.Context) error {
		var err error
		report, err = p.insights.Run(ctx)
		return err
	})
	return report, err
}

// PipelineReport collects the reports of one full pass. A stage that was
// locked or not reached leaves its report nil.
type PipelineReport struct {
	Embedding  *service.EmbeddingReport  `json:"embedding,omitempty"`
	Clustering *service.ClusteringReport `json:"clustering,omitempty"`
	Insights   *service.InsightReport    `json:"insights,omitempty"`
}

// RunAll runs the stages in order. A stage held by another process is
// skipped; any other stage error stops the pass.
func (p *PipelineProcessor) RunAll(ctx context.Context) (*PipelineReport, error) {
	report := &PipelineReport{}

	embedding, err := p.RunEmbedding(ctx)
	if err := p.stageError(StageEmbed, err); err != nil {
		return report, err
	}
	report.Embedding = embedding

	clustering, err := p.RunClustering(ctx)
	if err := p.stageError(StageCluster, err); err != nil {
		return report, err
	}
	report.Clustering = clustering

	insights, err := p.RunInsights(ctx)
	report.Insights = insights
	if err := p.stageError(StageInsights, err); err != nil {
		return report, err
	}

	return report, nil
}

// RunPass runs RunAll for the scheduler, logging the pass summary.
func (p *PipelineProcessor) RunPass(ctx context.Context) error {
	report, err := p.RunAll(ctx)

	event := p.logger.Info()
	if e := report.Embedding; e != nil {
		event = event.Int("embedded", e.Inserted)
	}
	if c := report.Clustering; c != nil {
		event = event.Int("clustered", c.Clustered)
	}
	if in := report.Insights; in != nil {
		event = event.Int("insights_inserted", in.Inserted).Int("groups_failed", in.GroupsFailed)
	}
	event.Msg("pipeline pass summary")

	return err
}

func (p *PipelineProcessor) stageError(stage string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrStageLocked) {
		p.logger.Warn().Str("stage", stage).Msg("stage already running elsewhere, skipping")
		return nil
	}
	return fmt.Errorf("%s stage: %w", stage, err)
}
