//go:build integration

package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloo-solutions/reviewpulse/internal/domain"
	"github.com/cloo-solutions/reviewpulse/internal/service"
	"github.com/cloo-solutions/reviewpulse/internal/testutil"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testModel = domain.DefaultClusteringModel

func setupPool(ctx context.Context, t *testing.T) *pgxpool.Pool {
	pc := testutil.NewPostgresContainer(ctx, t)
	t.Cleanup(func() { _ = pc.Terminate(context.Background()) })

	pool := testutil.NewTestPool(ctx, t, pc)
	t.Cleanup(pool.Close)
	return pool
}

func unitVector(axis, dims int) []float32 {
	v := make([]float32, dims)
	v[axis%dims] = 1
	return v
}

func TestEmbeddingRepository_FetchUnembedded(t *testing.T) {
	ctx := context.Background()
	pool := setupPool(ctx, t)
	repo := NewEmbeddingRepository(pool)

	id1 := testutil.SeedMention(ctx, t, pool, testutil.Mention{SourceID: "a", Brand: "acme", Body: testutil.StrPtr("first")})
	id2 := testutil.SeedMention(ctx, t, pool, testutil.Mention{SourceID: "b", Brand: "acme"})
	id3 := testutil.SeedMention(ctx, t, pool, testutil.Mention{SourceID: "c", Brand: "globex", Body: testutil.StrPtr("third")})
	testutil.SeedEmbedding(ctx, t, pool, id1, unitVector(0, 4), domain.DefaultEmbeddingModel)

	records, err := repo.FetchUnembedded(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, id2, records[0].ID)
	assert.Nil(t, records[0].Body)
	assert.Equal(t, id3, records[1].ID)
	assert.Equal(t, "globex", records[1].Group)
	require.NotNil(t, records[1].Body)
	assert.Equal(t, "third", *records[1].Body)

	records, err = repo.FetchUnembedded(ctx, id2, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, id3, records[0].ID)

	records, err = repo.FetchUnembedded(ctx, 0, 1)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestEmbeddingRepository_InsertEmbeddings_IgnoresExisting(t *testing.T) {
	ctx := context.Background()
	pool := setupPool(ctx, t)
	repo := NewEmbeddingRepository(pool)

	id1 := testutil.SeedMention(ctx, t, pool, testutil.Mention{SourceID: "a", Brand: "acme", Body: testutil.StrPtr("one")})
	id2 := testutil.SeedMention(ctx, t, pool, testutil.Mention{SourceID: "b", Brand: "acme", Body: testutil.StrPtr("two")})

	inserted, err := repo.InsertEmbeddings(ctx, []domain.Embedding{
		{RecordID: id1, Vector: unitVector(0, 4), Model: "m"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), inserted)

	inserted, err = repo.InsertEmbeddings(ctx, []domain.Embedding{
		{RecordID: id1, Vector: unitVector(1, 4), Model: "m"},
		{RecordID: id2, Vector: unitVector(2, 4), Model: "m"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), inserted)
	assert.Equal(t, 2, testutil.CountRows(ctx, t, pool, "review_embeddings"))

	vectors, err := NewAssignmentRepository(pool).FetchUnclustered(ctx, "acme", testModel, 10)
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, unitVector(0, 4), vectors[0].Vector)
}

func TestAssignmentRepository_UnclusteredIsPerModel(t *testing.T) {
	ctx := context.Background()
	pool := setupPool(ctx, t)
	repo := NewAssignmentRepository(pool)

	var acme []int64
	for i, sid := range []string{"a1", "a2", "a3"} {
		id := testutil.SeedMention(ctx, t, pool, testutil.Mention{SourceID: sid, Brand: "acme", Body: testutil.StrPtr("x")})
		testutil.SeedEmbedding(ctx, t, pool, id, unitVector(i, 3), domain.DefaultEmbeddingModel)
		acme = append(acme, id)
	}
	globex := testutil.SeedMention(ctx, t, pool, testutil.Mention{SourceID: "g1", Brand: "globex", Body: testutil.StrPtr("y")})
	testutil.SeedEmbedding(ctx, t, pool, globex, unitVector(0, 3), domain.DefaultEmbeddingModel)
	testutil.SeedMention(ctx, t, pool, testutil.Mention{SourceID: "n1", Brand: "initech", Body: testutil.StrPtr("no embedding")})

	groups, err := repo.GroupsWithUnclustered(ctx, testModel)
	require.NoError(t, err)
	assert.Equal(t, []string{"acme", "globex"}, groups)

	inserted, err := repo.InsertAssignments(ctx, []domain.ClusterAssignment{
		{RecordID: globex, ClusterID: 0, Model: testModel},
		{RecordID: acme[0], ClusterID: 1, Model: testModel},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), inserted)

	groups, err = repo.GroupsWithUnclustered(ctx, testModel)
	require.NoError(t, err)
	assert.Equal(t, []string{"acme"}, groups)

	vectors, err := repo.FetchUnclustered(ctx, "acme", testModel, 10)
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, acme[1], vectors[0].RecordID)
	assert.Equal(t, acme[2], vectors[1].RecordID)

	groups, err = repo.GroupsWithUnclustered(ctx, "other_model")
	require.NoError(t, err)
	assert.Equal(t, []string{"acme", "globex"}, groups)

	inserted, err = repo.InsertAssignments(ctx, []domain.ClusterAssignment{
		{RecordID: acme[0], ClusterID: 3, Model: testModel},
		{RecordID: acme[0], ClusterID: 3, Model: "other_model"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), inserted)
}

func TestInsightRepository_Aggregates(t *testing.T) {
	ctx := context.Background()
	pool := setupPool(ctx, t)
	repo := NewInsightRepository(pool)

	current, previous := domain.WindowsFor(time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC))

	seed := func(sid string, created time.Time, cluster int, body *string, score *float64) {
		id := testutil.SeedMention(ctx, t, pool, testutil.Mention{SourceID: sid, Brand: "acme", CreatedAt: created, Body: body})
		testutil.SeedEmbedding(ctx, t, pool, id, unitVector(cluster, 3), domain.DefaultEmbeddingModel)
		testutil.SeedAssignment(ctx, t, pool, id, cluster, testModel)
		if score != nil {
			testutil.SeedSentiment(ctx, t, pool, id, *score)
		}
	}
	score := func(f float64) *float64 { return &f }

	seed("c1", current.Start, 0, testutil.StrPtr("boundary start counts"), score(-0.8))
	seed("c2", current.End.Add(-time.Second), 0, testutil.StrPtr("late in window"), score(-0.2))
	seed("c3", current.End, 0, testutil.StrPtr("window end is excluded"), score(0.4))
	seed("p1", previous.Start.Add(time.Hour), 0, testutil.StrPtr("   "), score(-0.9))
	seed("p2", previous.Start.Add(2*time.Hour), 1, nil, nil)

	stats, err := repo.ClusterStats(ctx, testModel)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, domain.ClusterKey{Group: "acme", Model: testModel, Label: 0}, stats[0].Key)
	assert.Equal(t, 4, stats[0].Size)
	assert.InDelta(t, -0.375, stats[0].AvgSentiment, 1e-9)
	assert.Equal(t, 1, stats[1].Size)
	assert.Equal(t, 0.0, stats[1].AvgSentiment)

	counts, err := repo.WindowCounts(ctx, testModel, current)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[domain.ClusterKey{Group: "acme", Model: testModel, Label: 0}])
	assert.Equal(t, 0, counts[domain.ClusterKey{Group: "acme", Model: testModel, Label: 1}])

	counts, err = repo.WindowCounts(ctx, testModel, previous)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[domain.ClusterKey{Group: "acme", Model: testModel, Label: 0}])
	assert.Equal(t, 1, counts[domain.ClusterKey{Group: "acme", Model: testModel, Label: 1}])

	examples, err := repo.ClusterExamples(ctx, domain.ClusterKey{Group: "acme", Model: testModel, Label: 0}, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"boundary start counts", "late in window", "window end is excluded"}, examples)

	examples, err = repo.ClusterExamples(ctx, domain.ClusterKey{Group: "acme", Model: testModel, Label: 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"boundary start counts"}, examples)

	examples, err = repo.ClusterExamples(ctx, domain.ClusterKey{Group: "acme", Model: testModel, Label: 1}, 5)
	require.NoError(t, err)
	assert.Empty(t, examples)
}

func sampleGeneration(group string, generatedAt time.Time, labels ...int) []domain.ClusterInsight {
	current, _ := domain.WindowsFor(generatedAt)
	pct := 25.0
	rows := make([]domain.ClusterInsight, 0, len(labels))
	for _, label := range labels {
		row := domain.ClusterInsight{
			Key:           domain.ClusterKey{Group: group, Model: testModel, Label: label},
			GeneratedAt:   generatedAt,
			WindowStart:   current.Start,
			WindowEnd:     current.End,
			CountCurrent:  5,
			CountPrevious: 4,
			Delta:         1,
			Trend:         domain.TrendStable,
			Summary:       "Customers report slow checkout.",
			PrimaryIssue:  "slow checkout",
			Impact:        domain.ImpactMedium,
		}
		if label == 0 {
			row.DeltaPct = &pct
		}
		rows = append(rows, row)
	}
	return rows
}

func TestInsightRepository_Generations(t *testing.T) {
	ctx := context.Background()
	pool := setupPool(ctx, t)
	repo := NewInsightRepository(pool)

	_, err := repo.LatestInsights(ctx, "acme")
	assert.True(t, errors.Is(err, domain.ErrInsightsNotFound))

	first := time.Date(2025, 3, 15, 12, 0, 0, 123456000, time.UTC)
	second := first.Add(time.Hour)

	inserted, err := repo.InsertInsights(ctx, sampleGeneration("acme", first, 0, 1, 2))
	require.NoError(t, err)
	assert.Equal(t, int64(3), inserted)
	_, err = repo.InsertInsights(ctx, sampleGeneration("acme", second, 0, 1))
	require.NoError(t, err)
	_, err = repo.InsertInsights(ctx, sampleGeneration("globex", first, 4))
	require.NoError(t, err)

	latest, err := repo.LatestInsights(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, latest, 2)
	for _, row := range latest {
		assert.True(t, second.Equal(row.GeneratedAt))
	}
	require.NotNil(t, latest[0].DeltaPct)
	assert.Equal(t, 25.0, *latest[0].DeltaPct)
	assert.Nil(t, latest[1].DeltaPct)
	assert.Equal(t, domain.ImpactMedium, latest[1].Impact)

	groups, err := repo.ListGroups(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "acme", groups[0].Group)
	assert.Equal(t, 2, groups[0].Generations)
	assert.True(t, second.Equal(groups[0].LatestGeneration))
	assert.Equal(t, "globex", groups[1].Group)
	assert.Equal(t, 1, groups[1].Generations)

	_, err = repo.InsertInsights(ctx, sampleGeneration("acme", second, 1))
	assert.Error(t, err)
	assert.Equal(t, 6, testutil.CountRows(ctx, t, pool, "cluster_insights"))
}

func TestTxRunner_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	pool := setupPool(ctx, t)
	runner := NewTxRunner(pool)

	id := testutil.SeedMention(ctx, t, pool, testutil.Mention{SourceID: "a", Brand: "acme", Body: testutil.StrPtr("text")})
	testutil.SeedEmbedding(ctx, t, pool, id, unitVector(0, 3), domain.DefaultEmbeddingModel)

	boom := errors.New("boom")
	err := runner.WithTx(ctx, func(repos service.TxRepositories) error {
		if _, err := repos.Assignments().InsertAssignments(ctx, []domain.ClusterAssignment{{RecordID: id, ClusterID: 0, Model: testModel}}); err != nil {
			return err
		}
		if _, err := repos.Insights().InsertInsights(ctx, sampleGeneration("acme", time.Now().UTC(), 0)); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, testutil.CountRows(ctx, t, pool, "review_clusters"))
	assert.Equal(t, 0, testutil.CountRows(ctx, t, pool, "cluster_insights"))

	err = runner.WithTx(ctx, func(repos service.TxRepositories) error {
		_, err := repos.Assignments().InsertAssignments(ctx, []domain.ClusterAssignment{{RecordID: id, ClusterID: 0, Model: testModel}})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, testutil.CountRows(ctx, t, pool, "review_clusters"))
}
