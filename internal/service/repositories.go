package service

import (
	"context"

	"github.com/cloo-solutions/reviewpulse/internal/domain"
)

// EmbeddingRepositoryInterface reads records lacking embeddings and writes new ones.
type EmbeddingRepositoryInterface interface {
	FetchUnembedded(ctx context.Context, afterID int64, limit int) ([]domain.Record, error)
	InsertEmbeddings(ctx context.Context, embeddings []domain.Embedding) (int64, error)
}

// AssignmentRepositoryInterface reads embedded records lacking a cluster
// assignment and writes new assignments.
type AssignmentRepositoryInterface interface {
	GroupsWithUnclustered(ctx context.Context, model string) ([]string, error)
	FetchUnclustered(ctx context.Context, group, model string, limit int) ([]domain.StoredVector, error)
	InsertAssignments(ctx context.Context, assignments []domain.ClusterAssignment) (int64, error)
}

// InsightRepositoryInterface aggregates clusters and persists insight generations.
type InsightRepositoryInterface interface {
	ClusterStats(ctx context.Context, model string) ([]domain.ClusterStat, error)
	WindowCounts(ctx context.Context, model string, w domain.Window) (map[domain.ClusterKey]int, error)
	ClusterExamples(ctx context.Context, key domain.ClusterKey, limit int) ([]string, error)
	InsertInsights(ctx context.Context, insights []domain.ClusterInsight) (int64, error)
	LatestInsights(ctx context.Context, group string) ([]domain.ClusterInsight, error)
	ListGroups(ctx context.Context) ([]domain.GroupSummary, error)
}
