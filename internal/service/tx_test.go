package service

import "context"

type testTxRepos struct {
	embeddings  EmbeddingRepositoryInterface
	assignments AssignmentRepositoryInterface
	insights    InsightRepositoryInterface
}

func (t *testTxRepos) Embeddings() EmbeddingRepositoryInterface {
	return t.embeddings
}

func (t *testTxRepos) Assignments() AssignmentRepositoryInterface {
	return t.assignments
}

func (t *testTxRepos) Insights() InsightRepositoryInterface {
	return t.insights
}

type testTxRunner struct {
	repos TxRepositories
	calls int
}

func (t *testTxRunner) WithTx(ctx context.Context, fn func(repos TxRepositories) error) error {
	t.calls++
	return fn(t.repos)
}
