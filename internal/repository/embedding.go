package repository

import (
	"context"
	"time"

	"github.com/cloo-solutions/reviewpulse/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

type EmbeddingRepository struct {
	db dbtx
}

func NewEmbeddingRepository(pool *pgxpool.Pool) *EmbeddingRepository {
	return &EmbeddingRepository{db: pool}
}

func NewEmbeddingRepositoryWithTx(tx pgx.Tx) *EmbeddingRepository {
	return &EmbeddingRepository{db: tx}
}

// FetchUnembedded returns up to limit records with id > afterID that have no
// embedding yet, ordered by id ascending.
func (r *EmbeddingRepository) FetchUnembedded(ctx context.Context, afterID int64, limit int) ([]domain.Record, error) {
	rows, err := r.db.Query(ctx,
		`SELECT mr.raw_id, mr.brand, mr.body, mr.created_utc
		 FROM mentions_raw mr
		 LEFT JOIN review_embeddings re ON re.raw_id = mr.raw_id
		 WHERE re.raw_id IS NULL
		   AND mr.raw_id > $1
		 ORDER BY mr.raw_id ASC
		 LIMIT $2`,
		afterID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.Record
	for rows.Next() {
		var rec domain.Record
		var body pgtype.Text
		if err := rows.Scan(&rec.ID, &rec.Group, &body, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if body.Valid {
			text := body.String
			rec.Body = &text
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// InsertEmbeddings writes embeddings that do not exist yet and returns how
// many rows were actually inserted.
func (r *EmbeddingRepository) InsertEmbeddings(ctx context.Context, embeddings []domain.Embedding) (int64, error) {
	var inserted int64
	for _, e := range embeddings {
		tag, err := r.db.Exec(ctx,
			`INSERT INTO review_embeddings (raw_id, embedding, embedding_model, created_at)
			 VALUES ($1, $2::text::vector, $3, $4)
			 ON CONFLICT (raw_id) DO NOTHING`,
			e.RecordID, pgvector.NewVector(e.Vector).String(), e.Model, time.Now().UTC(),
		)
		if err != nil {
			return inserted, err
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}
