package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/cloo-solutions/reviewpulse/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

type AssignmentRepository struct {
	db dbtx
}

func NewAssignmentRepository(pool *pgxpool.Pool) *AssignmentRepository {
	return &AssignmentRepository{db: pool}
}

func NewAssignmentRepositoryWithTx(tx pgx.Tx) *AssignmentRepository {
	return &AssignmentRepository{db: tx}
}

// GroupsWithUnclustered lists groups that have embedded records without an
// assignment for model, sorted by group.
func (r *AssignmentRepository) GroupsWithUnclustered(ctx context.Context, model string) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT DISTINCT mr.brand
		 FROM mentions_raw mr
		 JOIN review_embeddings re ON re.raw_id = mr.raw_id
		 LEFT JOIN review_clusters rc ON rc.raw_id = mr.raw_id AND rc.clustering_model = $1
		 WHERE rc.raw_id IS NULL
		 ORDER BY mr.brand`,
		model,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// FetchUnclustered returns up to limit embedded records of group that have no
// assignment for model. Vectors are returned as stored; dimension checks are
// left to the caller.
func (r *AssignmentRepository) FetchUnclustered(ctx context.Context, group, model string, limit int) ([]domain.StoredVector, error) {
	rows, err := r.db.Query(ctx,
		`SELECT re.raw_id, re.embedding::text
		 FROM review_embeddings re
		 JOIN mentions_raw mr ON mr.raw_id = re.raw_id
		 LEFT JOIN review_clusters rc ON rc.raw_id = re.raw_id AND rc.clustering_model = $2
		 WHERE rc.raw_id IS NULL
		   AND mr.brand = $1
		 ORDER BY re.raw_id ASC
		 LIMIT $3`,
		group, model, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vectors []domain.StoredVector
	for rows.Next() {
		var id int64
		var raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		var vec pgvector.Vector
		if err := vec.Scan(raw); err != nil {
			return nil, fmt.Errorf("failed to decode embedding for record %d: %w", id, err)
		}
		vectors = append(vectors, domain.StoredVector{RecordID: id, Vector: vec.Slice()})
	}
	return vectors, rows.Err()
}

// InsertAssignments writes assignments that do not exist yet for their model
// and returns how many rows were actually inserted.
func (r *AssignmentRepository) InsertAssignments(ctx context.Context, assignments []domain.ClusterAssignment) (int64, error) {
	var inserted int64
	now := time.Now().UTC()
	for _, a := range assignments {
		tag, err := r.db.Exec(ctx,
			`INSERT INTO review_clusters (raw_id, cluster_id, clustering_model, created_at)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (raw_id, clustering_model) DO NOTHING`,
			a.RecordID, a.ClusterID, a.Model, now,
		)
		if err != nil {
			return inserted, err
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}
