package repository

import (
	"context"

	"github.com/cloo-solutions/reviewpulse/internal/domain"
	"github.com/cloo-solutions/reviewpulse/internal/service"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TxRunner hands stage services repositories bound to one pgx transaction.
// Stage writes use read committed; the stage lock already serializes writers.
type TxRunner struct {
	pool *pgxpool.Pool
	opts pgx.TxOptions
}

func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool, opts: pgx.TxOptions{IsoLevel: pgx.ReadCommitted}}
}

// WithTx commits when fn returns nil and rolls back otherwise. A transaction
// that cannot be opened is reported as ErrStoreUnavailable.
func (r *TxRunner) WithTx(ctx context.Context, fn func(repos service.TxRepositories) error) error {
	tx, err := r.pool.BeginTx(ctx, r.opts)
	if err != nil {
		return domain.NewDomainErrorWithCause(domain.ErrCodeStoreUnavailable, domain.ErrStoreUnavailable.Message, err)
	}

	if err := fn(txRepos{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

type txRepos struct {
	tx pgx.Tx
}

func (r txRepos) Embeddings() service.EmbeddingRepositoryInterface {
	return NewEmbeddingRepositoryWithTx(r.tx)
}

func (r txRepos) Assignments() service.AssignmentRepositoryInterface {
	return NewAssignmentRepositoryWithTx(r.tx)
}

func (r txRepos) Insights() service.InsightRepositoryInterface {
	return NewInsightRepositoryWithTx(r.tx)
}
