package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/cloo-solutions/reviewpulse/internal/migrations"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresContainer represents a PostgreSQL container for testing
type PostgresContainer struct {
	Container testcontainers.Container
	Host      string
	Port      string
	User      string
	Password  string
	Database  string
}

// NewPostgresContainer creates and starts a PostgreSQL container with pgvector
func NewPostgresContainer(ctx context.Context, t *testing.T) *PostgresContainer {
	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:0.8.1-pg18",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "pulse",
			"POSTGRES_PASSWORD": "pulse",
			"POSTGRES_DB":       "pulse",
		},
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		).WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to create postgres container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("failed to get container port: %v", err)
	}

	return &PostgresContainer{
		Container: container,
		Host:      host,
		Port:      port.Port(),
		User:      "pulse",
		Password:  "pulse",
		Database:  "pulse",
	}
}

// ConnectionString returns the PostgreSQL connection string
func (pc *PostgresContainer) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		pc.User, pc.Password, pc.Host, pc.Port, pc.Database)
}

// Terminate stops and removes the container
func (pc *PostgresContainer) Terminate(ctx context.Context) error {
	return testcontainers.TerminateContainer(pc.Container)
}

// RustFSContainer represents an S3-compatible RustFS container for testing
type RustFSContainer struct {
	Container testcontainers.Container
	Host      string
	Port      string
}

const (
	RustFSAccessKey = "rustfsadmin"
	RustFSSecretKey = "rustfsadmin"
)

// NewRustFSContainer creates and starts a RustFS container
func NewRustFSContainer(ctx context.Context, t *testing.T) *RustFSContainer {
	req := testcontainers.ContainerRequest{
		Image:        "rustfs/rustfs:latest",
		ExposedPorts: []string{"9000/tcp"},
		Env: map[string]string{
			"RUSTFS_ACCESS_KEY": RustFSAccessKey,
			"RUSTFS_SECRET_KEY": RustFSSecretKey,
		},
		WaitingFor: wait.ForListeningPort("9000/tcp").WithStartupTimeout(30 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to create rustfs container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "9000")
	if err != nil {
		t.Fatalf("failed to get container port: %v", err)
	}

	return &RustFSContainer{
		Container: container,
		Host:      host,
		Port:      port.Port(),
	}
}

// Endpoint returns the RustFS endpoint URL
func (rc *RustFSContainer) Endpoint() string {
	return fmt.Sprintf("http://%s:%s", rc.Host, rc.Port)
}

// Terminate stops and removes the container
func (rc *RustFSContainer) Terminate(ctx context.Context) error {
	return testcontainers.TerminateContainer(rc.Container)
}

// NewTestPool creates a pgxpool connected to the test container and applies
// the embedded migrations.
func NewTestPool(ctx context.Context, t *testing.T, pc *PostgresContainer) *pgxpool.Pool {
	var pool *pgxpool.Pool
	var err error
	for i := 0; i < 5; i++ {
		pool, err = pgxpool.New(ctx, pc.ConnectionString())
		if err == nil {
			if pingErr := pool.Ping(ctx); pingErr == nil {
				break
			}
			pool.Close()
		}
		time.Sleep(time.Duration(i+1) * 500 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("failed to create pool after retries: %v", err)
	}

	logger := zerolog.Nop()
	if err := migrations.Up(pc.ConnectionString(), &logger); err != nil {
		pool.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	return pool
}

// TruncateAll truncates all tables in the database for test isolation
func TruncateAll(ctx context.Context, pool *pgxpool.Pool) error {
	tables := []string{
		"cluster_insights",
		"review_clusters",
		"review_embeddings",
		"mentions_ml",
		"mentions_raw",
	}

	for _, table := range tables {
		_, err := pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", table))
		if err != nil {
			return fmt.Errorf("failed to truncate %s: %w", table, err)
		}
	}

	return nil
}

// Mention is an upstream record to seed.
type Mention struct {
	Source    string
	SourceID  string
	Brand     string
	CreatedAt time.Time
	Body      *string
}

// SeedMention inserts an upstream record and returns its raw_id.
func SeedMention(ctx context.Context, t *testing.T, pool *pgxpool.Pool, m Mention) int64 {
	t.Helper()
	if m.Source == "" {
		m.Source = "test"
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	var id int64
	err := pool.QueryRow(ctx, `
		INSERT INTO mentions_raw (source, source_id, brand, created_utc, body)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING raw_id
	`, m.Source, m.SourceID, m.Brand, m.CreatedAt, m.Body).Scan(&id)
	if err != nil {
		t.Fatalf("failed to seed mention: %v", err)
	}
	return id
}

// SeedSentiment attaches an external sentiment score to a record.
func SeedSentiment(ctx context.Context, t *testing.T, pool *pgxpool.Pool, rawID int64, score float64) {
	t.Helper()
	_, err := pool.Exec(ctx, `
		INSERT INTO mentions_ml (raw_id, sentiment_score)
		VALUES ($1, $2)
		ON CONFLICT (raw_id) DO UPDATE SET sentiment_score = EXCLUDED.sentiment_score
	`, rawID, score)
	if err != nil {
		t.Fatalf("failed to seed sentiment: %v", err)
	}
}

// SeedEmbedding stores a vector for a record directly.
func SeedEmbedding(ctx context.Context, t *testing.T, pool *pgxpool.Pool, rawID int64, vector []float32, model string) {
	t.Helper()
	_, err := pool.Exec(ctx, `
		INSERT INTO review_embeddings (raw_id, embedding, embedding_model)
		VALUES ($1, $2::text::vector, $3)
	`, rawID, pgvector.NewVector(vector).String(), model)
	if err != nil {
		t.Fatalf("failed to seed embedding: %v", err)
	}
}

// SeedAssignment stores a cluster assignment for a record directly.
func SeedAssignment(ctx context.Context, t *testing.T, pool *pgxpool.Pool, rawID int64, clusterID int, model string) {
	t.Helper()
	_, err := pool.Exec(ctx, `
		INSERT INTO review_clusters (raw_id, cluster_id, clustering_model)
		VALUES ($1, $2, $3)
	`, rawID, clusterID, model)
	if err != nil {
		t.Fatalf("failed to seed assignment: %v", err)
	}
}

// CountRows returns the number of rows in table.
func CountRows(ctx context.Context, t *testing.T, pool *pgxpool.Pool, table string) int {
	t.Helper()
	var n int
	if err := pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&n); err != nil {
		t.Fatalf("failed to count %s: %v", table, err)
	}
	return n
}

// StrPtr returns a pointer to s.
func StrPtr(s string) *string { return &s }
