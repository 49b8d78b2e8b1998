package database

import (
	"context"
	"fmt"

	"github.com/cloo-solutions/reviewpulse/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

// StageLocker serializes runs of the same pipeline stage across processes
// with Postgres session advisory locks. The lock lives on one pooled
// connection for the duration of fn.
type StageLocker struct {
	pool      *pgxpool.Pool
	namespace string
}

func NewStageLocker(pool *pgxpool.Pool, namespace string) *StageLocker {
	return &StageLocker{pool: pool, namespace: namespace}
}

// WithLock runs fn while holding the lock for stage. It returns
// domain.ErrStageLocked without calling fn when another session holds it.
func (l *StageLocker) WithLock(ctx context.Context, stage string, fn func(ctx context.Context) error) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return domain.NewDomainErrorWithCause(domain.ErrCodeStoreUnavailable, domain.ErrStoreUnavailable.Message, err)
	}
	defer conn.Release()

	key := l.namespace + ":" + stage

	var acquired bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock(hashtext($1))`, key).Scan(&acquired); err != nil {
		return fmt.Errorf("failed to acquire stage lock %s: %w", key, err)
	}
	if !acquired {
		return domain.NewDomainErrorWithCause(domain.ErrCodeStageLocked, domain.ErrStageLocked.Message, fmt.Errorf("stage %s", stage))
	}

	defer func() {
		// Unlock on a fresh context so a cancelled run still releases the lock.
		_, _ = conn.Exec(context.Background(), `SELECT pg_advisory_unlock(hashtext($1))`, key)
	}()

	return fn(ctx)
}

// NoopLocker runs fn without any coordination.
type NoopLocker struct{}

func (NoopLocker) WithLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
