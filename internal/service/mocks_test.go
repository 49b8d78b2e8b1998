package service

import (
	"context"
	"time"

	"github.com/cloo-solutions/reviewpulse/internal/domain"
	"github.com/stretchr/testify/mock"
)

// MockEmbeddingClient mocks the embedding API client
type MockEmbeddingClient struct {
	mock.Mock
}

func (m *MockEmbeddingClient) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

type MockEmbeddingRepository struct {
	mock.Mock
}

func (m *MockEmbeddingRepository) FetchUnembedded(ctx context.Context, afterID int64, limit int) ([]domain.Record, error) {
	args := m.Called(ctx, afterID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Record), args.Error(1)
}

func (m *MockEmbeddingRepository) InsertEmbeddings(ctx context.Context, embeddings []domain.Embedding) (int64, error) {
	args := m.Called(ctx, embeddings)
	return args.Get(0).(int64), args.Error(1)
}

type MockAssignmentRepository struct {
	mock.Mock
}

func (m *MockAssignmentRepository) GroupsWithUnclustered(ctx context.Context, model string) ([]string, error) {
	args := m.Called(ctx, model)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockAssignmentRepository) FetchUnclustered(ctx context.Context, group, model string, limit int) ([]domain.StoredVector, error) {
	args := m.Called(ctx, group, model, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.StoredVector), args.Error(1)
}

func (m *MockAssignmentRepository) InsertAssignments(ctx context.Context, assignments []domain.ClusterAssignment) (int64, error) {
	args := m.Called(ctx, assignments)
	return args.Get(0).(int64), args.Error(1)
}

type MockInsightRepository struct {
	mock.Mock
}

func (m *MockInsightRepository) ClusterStats(ctx context.Context, model string) ([]domain.ClusterStat, error) {
	args := m.Called(ctx, model)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ClusterStat), args.Error(1)
}

func (m *MockInsightRepository) WindowCounts(ctx context.Context, model string, w domain.Window) (map[domain.ClusterKey]int, error) {
	args := m.Called(ctx, model, w)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[domain.ClusterKey]int), args.Error(1)
}

func (m *MockInsightRepository) ClusterExamples(ctx context.Context, key domain.ClusterKey, limit int) ([]string, error) {
	args := m.Called(ctx, key, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockInsightRepository) InsertInsights(ctx context.Context, insights []domain.ClusterInsight) (int64, error) {
	args := m.Called(ctx, insights)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockInsightRepository) LatestInsights(ctx context.Context, group string) ([]domain.ClusterInsight, error) {
	args := m.Called(ctx, group)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ClusterInsight), args.Error(1)
}

func (m *MockInsightRepository) ListGroups(ctx context.Context) ([]domain.GroupSummary, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.GroupSummary), args.Error(1)
}

// MockCompletionClient mocks the synthesis chat client
type MockCompletionClient struct {
	mock.Mock
}

func (m *MockCompletionClient) Complete(ctx context.Context, system, user string) (string, error) {
	args := m.Called(ctx, system, user)
	return args.String(0), args.Error(1)
}

type MockInsightArchiver struct {
	mock.Mock
}

func (m *MockInsightArchiver) ArchiveGeneration(ctx context.Context, group string, generatedAt time.Time, insights []domain.ClusterInsight) error {
	args := m.Called(ctx, group, generatedAt, insights)
	return args.Error(0)
}
