package service

import "context"

// TxRepositories provides transaction-bound repositories.
type TxRepositories interface {
	Embeddings() EmbeddingRepositoryInterface
	Assignments() AssignmentRepositoryInterface
	Insights() InsightRepositoryInterface
}

// TxRunner executes a function within a transaction. Returning an error from
// fn rolls back everything fn wrote.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(repos TxRepositories) error) error
}
