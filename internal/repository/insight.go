package repository

import (
	"context"

	"github.com/cloo-solutions/reviewpulse/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type InsightRepository struct {
	db dbtx
}

func NewInsightRepository(pool *pgxpool.Pool) *InsightRepository {
	return &InsightRepository{db: pool}
}

func NewInsightRepositoryWithTx(tx pgx.Tx) *InsightRepository {
	return &InsightRepository{db: tx}
}

// ClusterStats returns the all-time size and mean sentiment of every cluster
// for model. Members without a sentiment score count toward size; a cluster
// with no scored members reports a mean of zero.
func (r *InsightRepository) ClusterStats(ctx context.Context, model string) ([]domain.ClusterStat, error) {
	rows, err := r.db.Query(ctx,
		`SELECT mr.brand, rc.cluster_id, COUNT(*), COALESCE(AVG(ml.sentiment_score), 0)
		 FROM review_clusters rc
		 JOIN mentions_raw mr ON mr.raw_id = rc.raw_id
		 LEFT JOIN mentions_ml ml ON ml.raw_id = rc.raw_id
		 WHERE rc.clustering_model = $1
		 GROUP BY mr.brand, rc.cluster_id
		 ORDER BY mr.brand, rc.cluster_id`,
		model,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []domain.ClusterStat
	for rows.Next() {
		stat := domain.ClusterStat{Key: domain.ClusterKey{Model: model}}
		if err := rows.Scan(&stat.Key.Group, &stat.Key.Label, &stat.Size, &stat.AvgSentiment); err != nil {
			return nil, err
		}
		stats = append(stats, stat)
	}
	return stats, rows.Err()
}

// WindowCounts counts assigned records per cluster whose created timestamp
// falls inside w.
func (r *InsightRepository) WindowCounts(ctx context.Context, model string, w domain.Window) (map[domain.ClusterKey]int, error) {
	rows, err := r.db.Query(ctx,
		`SELECT mr.brand, rc.cluster_id, COUNT(*)
		 FROM review_clusters rc
		 JOIN mentions_raw mr ON mr.raw_id = rc.raw_id
		 WHERE rc.clustering_model = $1
		   AND mr.created_utc >= $2
		   AND mr.created_utc < $3
		 GROUP BY mr.brand, rc.cluster_id`,
		model, w.Start, w.End,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.ClusterKey]int)
	for rows.Next() {
		key := domain.ClusterKey{Model: model}
		var n int
		if err := rows.Scan(&key.Group, &key.Label, &n); err != nil {
			return nil, err
		}
		counts[key] = n
	}
	return counts, rows.Err()
}

// ClusterExamples returns up to limit non-empty bodies from the cluster,
// most negative sentiment first.
func (r *InsightRepository) ClusterExamples(ctx context.Context, key domain.ClusterKey, limit int) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT mr.body
		 FROM review_clusters rc
		 JOIN mentions_raw mr ON mr.raw_id = rc.raw_id
		 JOIN mentions_ml ml ON ml.raw_id = mr.raw_id
		 WHERE mr.brand = $1
		   AND rc.clustering_model = $2
		   AND rc.cluster_id = $3
		   AND mr.body IS NOT NULL
		   AND LENGTH(TRIM(mr.body)) > 0
		 ORDER BY ml.sentiment_score ASC NULLS LAST, mr.raw_id ASC
		 LIMIT $4`,
		key.Group, key.Model, key.Label, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var examples []string
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		examples = append(examples, body)
	}
	return examples, rows.Err()
}

// InsertInsights appends one generation of insight rows. There is no update
// path: a conflicting row fails the insert.
func (r *InsightRepository) InsertInsights(ctx context.Context, insights []domain.ClusterInsight) (int64, error) {
	var inserted int64
	for _, in := range insights {
		tag, err := r.db.Exec(ctx,
			`INSERT INTO cluster_insights
				(brand, clustering_model, cluster_id, generated_at, window_start, window_end,
				 count_last_7d, count_prev_7d, delta_count, delta_pct, trend_label,
				 summary, primary_issue, user_impact)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			in.Key.Group, in.Key.Model, in.Key.Label, in.GeneratedAt, in.WindowStart, in.WindowEnd,
			in.CountCurrent, in.CountPrevious, in.Delta, in.DeltaPct, string(in.Trend),
			in.Summary, in.PrimaryIssue, string(in.Impact),
		)
		if err != nil {
			return inserted, err
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

// LatestInsights returns the rows of the newest generation for group.
func (r *InsightRepository) LatestInsights(ctx context.Context, group string) ([]domain.ClusterInsight, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, brand, clustering_model, cluster_id, generated_at, window_start, window_end,
		        count_last_7d, count_prev_7d, delta_count, delta_pct, trend_label,
		        summary, primary_issue, user_impact
		 FROM cluster_insights
		 WHERE brand = $1
		   AND generated_at = (SELECT MAX(generated_at) FROM cluster_insights WHERE brand = $1)
		 ORDER BY clustering_model, cluster_id`,
		group,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var insights []domain.ClusterInsight
	for rows.Next() {
		var in domain.ClusterInsight
		var trend, impact string
		if err := rows.Scan(
			&in.ID, &in.Key.Group, &in.Key.Model, &in.Key.Label, &in.GeneratedAt, &in.WindowStart, &in.WindowEnd,
			&in.CountCurrent, &in.CountPrevious, &in.Delta, &in.DeltaPct, &trend,
			&in.Summary, &in.PrimaryIssue, &impact,
		); err != nil {
			return nil, err
		}
		in.Trend = domain.Trend(trend)
		in.Impact = domain.Impact(impact)
		insights = append(insights, in)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(insights) == 0 {
		return nil, domain.ErrInsightsNotFound
	}
	return insights, nil
}

// ListGroups summarizes every group that has at least one insight generation.
func (r *InsightRepository) ListGroups(ctx context.Context) ([]domain.GroupSummary, error) {
	rows, err := r.db.Query(ctx,
		`SELECT brand, MAX(generated_at), COUNT(DISTINCT generated_at)
		 FROM cluster_insights
		 GROUP BY brand
		 ORDER BY brand`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []domain.GroupSummary
	for rows.Next() {
		var g domain.GroupSummary
		if err := rows.Scan(&g.Group, &g.LatestGeneration, &g.Generations); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}
