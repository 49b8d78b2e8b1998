package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/cloo-solutions/reviewpulse/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var insightNow = time.Date(2025, 3, 15, 17, 42, 0, 0, time.UTC)

func key(group string, label int) domain.ClusterKey {
	return domain.ClusterKey{Group: group, Model: domain.DefaultClusteringModel, Label: label}
}

type insightFixture struct {
	svc      *InsightService
	repo     *MockInsightRepository
	client   *MockCompletionClient
	archiver *MockInsightArchiver
	txRunner *testTxRunner
}

func newInsightFixture(enable bool) *insightFixture {
	repo := new(MockInsightRepository)
	client := new(MockCompletionClient)
	archiver := new(MockInsightArchiver)
	txRunner := &testTxRunner{repos: &testTxRepos{insights: repo}}
	logger := zerolog.Nop()

	cfg := DefaultInsightConfig()
	cfg.EnableSynthesis = enable

	svc := NewInsightService(repo, txRunner, client, archiver, cfg, &logger)
	svc.now = func() time.Time { return insightNow }

	return &insightFixture{svc: svc, repo: repo, client: client, archiver: archiver, txRunner: txRunner}
}

// expectTrendInputs registers three acme clusters and one globex cluster.
func (f *insightFixture) expectTrendInputs() {
	current, previous := domain.WindowsFor(insightNow)

	f.repo.On("ClusterStats", mock.Anything, domain.DefaultClusteringModel).Return([]domain.ClusterStat{
		{Key: key("acme", 0), Size: 40, AvgSentiment: -0.5},
		{Key: key("acme", 1), Size: 8, AvgSentiment: 0.5},
		{Key: key("acme", 2), Size: 40, AvgSentiment: 0.0},
		{Key: key("globex", 0), Size: 20, AvgSentiment: 0.1},
	}, nil)
	f.repo.On("WindowCounts", mock.Anything, domain.DefaultClusteringModel, current).Return(map[domain.ClusterKey]int{
		key("acme", 0):   14,
		key("acme", 1):   2,
		key("acme", 2):   5,
		key("globex", 0): 1,
	}, nil)
	f.repo.On("WindowCounts", mock.Anything, domain.DefaultClusteringModel, previous).Return(map[domain.ClusterKey]int{
		key("acme", 0):   10,
		key("acme", 2):   5,
		key("globex", 0): 4,
	}, nil)
}

func forBrand(brand string) interface{} {
	return mock.MatchedBy(func(user string) bool {
		return strings.Contains(user, fmt.Sprintf(`"brand":%q`, brand))
	})
}

func TestInsightService_Run_DryRun(t *testing.T) {
	f := newInsightFixture(false)
	f.expectTrendInputs()

	report, err := f.svc.Run(context.Background())

	require.NoError(t, err)
	assert.True(t, report.DryRun)
	assert.Equal(t, 2, report.GroupsSeen)
	assert.Equal(t, 0, report.Inserted)
	assert.Equal(t, time.Date(2025, 3, 8, 0, 0, 0, 0, time.UTC), report.WindowStart)
	require.Len(t, report.Trends, 4)

	first := report.Trends[0]
	assert.Equal(t, key("acme", 0), first.Key)
	assert.Equal(t, 4, first.Delta)
	require.NotNil(t, first.DeltaPct)
	assert.Equal(t, 40.0, *first.DeltaPct)
	assert.Equal(t, domain.TrendGrowing, first.Trend)

	assert.Nil(t, report.Trends[1].DeltaPct)
	assert.Equal(t, domain.TrendStable, report.Trends[1].Trend)
	assert.Equal(t, domain.TrendDeclining, report.Trends[3].Trend)

	assert.Equal(t, 0, f.txRunner.calls)
	f.client.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything)
	f.repo.AssertNotCalled(t, "ClusterExamples", mock.Anything, mock.Anything, mock.Anything)
	f.repo.AssertNotCalled(t, "InsertInsights", mock.Anything, mock.Anything)
}

func TestInsightService_Run_NilClientIsDryRun(t *testing.T) {
	f := newInsightFixture(true)
	f.svc.client = nil
	f.expectTrendInputs()

	report, err := f.svc.Run(context.Background())

	require.NoError(t, err)
	assert.True(t, report.DryRun)
}

func TestInsightService_Run_SynthesizesAndCommitsGeneration(t *testing.T) {
	f := newInsightFixture(true)
	f.expectTrendInputs()

	f.repo.On("ClusterExamples", mock.Anything, key("acme", 0), 5).Return([]string{"cannot log in"}, nil)
	f.repo.On("ClusterExamples", mock.Anything, key("acme", 2), 5).Return([]string{"sync is slow"}, nil)
	f.repo.On("ClusterExamples", mock.Anything, key("acme", 1), 5).Return([]string{}, nil)
	f.repo.On("ClusterExamples", mock.Anything, key("globex", 0), 5).Return([]string{}, nil)

	f.client.On("Complete", mock.Anything, mock.Anything, forBrand("acme")).Return(`{
		"brand": "acme",
		"cluster_summaries": [
			{"cluster_id": 0, "summary": "Users cannot log in.", "primary_issue": "login failures", "user_impact": "high"}
		]
	}`, nil)

	var captured []domain.ClusterInsight
	f.repo.On("InsertInsights", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(1).([]domain.ClusterInsight) }).
		Return(int64(1), nil)
	f.archiver.On("ArchiveGeneration", mock.Anything, "acme", insightNow, mock.Anything).Return(nil)

	report, err := f.svc.Run(context.Background())

	require.NoError(t, err)
	assert.False(t, report.DryRun)
	assert.Equal(t, 1, report.GroupsSynthesized)
	assert.Equal(t, 1, report.GroupsSkipped)
	assert.Equal(t, 1, report.Inserted)

	require.Len(t, captured, 1)
	row := captured[0]
	assert.Equal(t, key("acme", 0), row.Key)
	assert.Equal(t, insightNow, row.GeneratedAt)
	assert.Equal(t, time.Date(2025, 3, 8, 0, 0, 0, 0, time.UTC), row.WindowStart)
	assert.Equal(t, time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC), row.WindowEnd)
	assert.Equal(t, 14, row.CountCurrent)
	assert.Equal(t, 10, row.CountPrevious)
	assert.Equal(t, 4, row.Delta)
	require.NotNil(t, row.DeltaPct)
	assert.Equal(t, 40.0, *row.DeltaPct)
	assert.Equal(t, domain.TrendGrowing, row.Trend)
	assert.Equal(t, domain.ImpactHigh, row.Impact)
	assert.Equal(t, "login failures", row.PrimaryIssue)

	f.client.AssertNumberOfCalls(t, "Complete", 1)
	f.archiver.AssertExpectations(t)
}

func TestInsightService_Run_PromptCarriesSelectedClusters(t *testing.T) {
	f := newInsightFixture(true)
	f.expectTrendInputs()

	f.repo.On("ClusterExamples", mock.Anything, mock.Anything, 5).Return([]string{"example"}, nil)

	var prompts []string
	f.client.On("Complete", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { prompts = append(prompts, args.String(2)) }).
		Return(`{"brand":"x","cluster_summaries":[]}`, nil)

	_, err := f.svc.Run(context.Background())

	require.Error(t, err)
	require.Len(t, prompts, 2)
	acme := prompts[0]
	assert.Contains(t, acme, `"brand":"acme"`)
	assert.Less(t, strings.Index(acme, `"cluster_id":0`), strings.Index(acme, `"cluster_id":2`))
	assert.Less(t, strings.Index(acme, `"cluster_id":2`), strings.Index(acme, `"cluster_id":1`))
	assert.Contains(t, acme, `"size":"large"`)
	assert.Contains(t, acme, `"sentiment":"strongly negative"`)
	assert.Contains(t, acme, `"trend":"growing"`)
}

func TestInsightService_Run_ParseFailureWritesNothingForGroup(t *testing.T) {
	f := newInsightFixture(true)
	f.expectTrendInputs()

	f.repo.On("ClusterExamples", mock.Anything, mock.Anything, 5).Return([]string{"example"}, nil)
	f.client.On("Complete", mock.Anything, mock.Anything, forBrand("acme")).Return(`{"brand":"acme"}`, nil)
	f.client.On("Complete", mock.Anything, mock.Anything, forBrand("globex")).Return(
		`{"brand":"globex","cluster_summaries":[{"cluster_id":0,"summary":"Fewer complaints.","primary_issue":"billing","user_impact":"low"}]}`, nil)

	f.repo.On("InsertInsights", mock.Anything, mock.MatchedBy(func(rows []domain.ClusterInsight) bool {
		return len(rows) == 1 && rows[0].Key.Group == "globex"
	})).Return(int64(1), nil)
	f.archiver.On("ArchiveGeneration", mock.Anything, "globex", mock.Anything, mock.Anything).Return(nil)

	report, err := f.svc.Run(context.Background())

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrSynthesisParse))
	assert.Contains(t, err.Error(), "acme")
	assert.Equal(t, 1, report.GroupsFailed)
	assert.Equal(t, 1, report.GroupsSynthesized)
	assert.Equal(t, 1, report.Inserted)
	assert.Equal(t, 1, f.txRunner.calls)
	f.repo.AssertExpectations(t)
}

func TestInsightService_Run_TransportFailureIsPerGroup(t *testing.T) {
	f := newInsightFixture(true)
	f.expectTrendInputs()

	f.repo.On("ClusterExamples", mock.Anything, mock.Anything, 5).Return([]string{"example"}, nil)
	transportErr := domain.NewDomainErrorWithCause(domain.ErrCodeSynthesisTransport, domain.ErrSynthesisTransport.Message, context.DeadlineExceeded)
	f.client.On("Complete", mock.Anything, mock.Anything, forBrand("acme")).Return("", transportErr)
	f.client.On("Complete", mock.Anything, mock.Anything, forBrand("globex")).Return(
		`{"brand":"globex","cluster_summaries":[{"cluster_id":0,"summary":"s","primary_issue":"i","user_impact":"medium"}]}`, nil)
	f.repo.On("InsertInsights", mock.Anything, mock.Anything).Return(int64(1), nil)
	f.archiver.On("ArchiveGeneration", mock.Anything, "globex", mock.Anything, mock.Anything).Return(nil)

	report, err := f.svc.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, report.GroupsFailed)
	assert.Equal(t, 1, report.GroupsSynthesized)
	assert.Contains(t, report.Groups[0].Error, "SYNTHESIS_TRANSPORT_ERROR")
}

func TestInsightService_Run_TruncatesLongFields(t *testing.T) {
	f := newInsightFixture(true)
	f.expectTrendInputs()

	f.repo.On("ClusterExamples", mock.Anything, key("acme", 0), 5).Return([]string{"example"}, nil)
	f.repo.On("ClusterExamples", mock.Anything, mock.Anything, 5).Return([]string{}, nil)

	long := strings.Repeat("a", 2500)
	issue := strings.Repeat("b", 300)
	f.client.On("Complete", mock.Anything, mock.Anything, forBrand("acme")).Return(
		fmt.Sprintf(`{"brand":"acme","cluster_summaries":[{"cluster_id":0,"summary":%q,"primary_issue":%q,"user_impact":"medium"}]}`, long, issue), nil)

	var captured []domain.ClusterInsight
	f.repo.On("InsertInsights", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(1).([]domain.ClusterInsight) }).
		Return(int64(1), nil)
	f.archiver.On("ArchiveGeneration", mock.Anything, "acme", mock.Anything, mock.Anything).Return(nil)

	_, err := f.svc.Run(context.Background())

	require.NoError(t, err)
	require.Len(t, captured, 1)
	assert.Len(t, captured[0].Summary, domain.MaxSummaryLength)
	assert.Len(t, captured[0].PrimaryIssue, domain.MaxIssueLength)
}

func TestInsightService_Run_ArchiveFailureKeepsCommit(t *testing.T) {
	f := newInsightFixture(true)
	f.expectTrendInputs()

	f.repo.On("ClusterExamples", mock.Anything, key("globex", 0), 5).Return([]string{"example"}, nil)
	f.repo.On("ClusterExamples", mock.Anything, mock.Anything, 5).Return([]string{}, nil)
	f.client.On("Complete", mock.Anything, mock.Anything, forBrand("globex")).Return(
		`{"brand":"globex","cluster_summaries":[{"cluster_id":0,"summary":"s","primary_issue":"i","user_impact":"low"}]}`, nil)
	f.repo.On("InsertInsights", mock.Anything, mock.Anything).Return(int64(1), nil)
	f.archiver.On("ArchiveGeneration", mock.Anything, "globex", mock.Anything, mock.Anything).Return(errors.New("bucket missing"))

	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	f.svc.logger = &logger

	report, err := f.svc.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, report.Inserted)
	assert.Equal(t, 0, report.GroupsFailed)

	var warning string
	for _, line := range strings.Split(buf.String(), "\n") {
		if strings.Contains(line, "failed to archive insight generation") {
			warning = line
		}
	}
	require.NotEmpty(t, warning)
	assert.Contains(t, warning, `"run_id":"`+report.RunID+`"`)
	assert.Contains(t, warning, `"stage":"insights"`)
	assert.Contains(t, warning, `"group":"globex"`)
}

func TestInsightService_Run_StoreErrorIsFatal(t *testing.T) {
	f := newInsightFixture(true)
	f.repo.On("ClusterStats", mock.Anything, domain.DefaultClusteringModel).Return(nil, errors.New("connection refused"))

	_, err := f.svc.Run(context.Background())

	assert.Error(t, err)
	f.client.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything)
}

func TestSelectClusters(t *testing.T) {
	trends := []domain.ClusterTrend{
		{Key: key("acme", 3), Size: 5},
		{Key: key("acme", 1), Size: 50},
		{Key: key("acme", 0), Size: 12},
		{Key: key("acme", 2), Size: 50},
	}

	selected := SelectClusters(trends, 3)

	require.Len(t, selected, 3)
	assert.Equal(t, 1, selected[0].Key.Label)
	assert.Equal(t, 2, selected[1].Key.Label)
	assert.Equal(t, 0, selected[2].Key.Label)
	assert.Equal(t, 3, trends[0].Key.Label)
}
