package config

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/cloo-solutions/reviewpulse/internal/clustering"
	"github.com/cloo-solutions/reviewpulse/internal/service"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	DatabaseURL      string `envconfig:"DATABASE_URL" required:"true"`
	DatabaseMaxConns int32  `envconfig:"DATABASE_MAX_CONNS" default:"8"`

	// An empty key is fine for a local Ollama endpoint.
	OpenAIAPIKey  string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL"`

	EmbeddingModel      string `envconfig:"EMBEDDING_MODEL" default:"sentence-transformers/all-MiniLM-L6-v2"`
	EmbeddingDimensions int    `envconfig:"EMBEDDING_DIMENSIONS" default:"384"`
	EmbedFetchLimit     int    `envconfig:"EMBED_FETCH_LIMIT" default:"2000"`
	EmbedBatchSize      int    `envconfig:"EMBED_BATCH_SIZE" default:"128"`
	EmbedCommitEvery    int    `envconfig:"EMBED_COMMIT_EVERY" default:"256"`
	EmbedMinTokens      int    `envconfig:"EMBED_MIN_TOKENS" default:"1"`

	ClusteringModel   string `envconfig:"CLUSTERING_MODEL" default:"kmeans_v1_cosine_norm"`
	ClusterMinRecords int    `envconfig:"CLUSTER_MIN_RECORDS" default:"15"`
	ClusterFetchLimit int    `envconfig:"CLUSTER_FETCH_LIMIT" default:"5000"`
	ClusterSeed       int64  `envconfig:"CLUSTER_SEED" default:"42"`

	EnableLLM           bool          `envconfig:"ENABLE_LLM" default:"false"`
	SynthesisModel      string        `envconfig:"SYNTHESIS_MODEL" default:"llama3.1:8b"`
	SynthesisTimeout    time.Duration `envconfig:"SYNTHESIS_TIMEOUT" default:"600s"`
	TrendThreshold      int           `envconfig:"TREND_THRESHOLD" default:"3"`
	MaxClustersPerGroup int           `envconfig:"MAX_CLUSTERS_PER_GROUP" default:"12"`
	ExamplesPerCluster  int           `envconfig:"EXAMPLES_PER_CLUSTER" default:"5"`

	StageLocks       bool          `envconfig:"STAGE_LOCKS" default:"true"`
	PipelineInterval time.Duration `envconfig:"PIPELINE_INTERVAL" default:"15m"`

	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"reviewpulse-insights"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`
}

const EnvPrefix = "PULSE"

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects sizes and thresholds that would make a stage loop or do nothing.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("invalid config: DATABASE_URL is required")
	}
	positive := []struct {
		name  string
		value int
	}{
		{"EMBEDDING_DIMENSIONS", c.EmbeddingDimensions},
		{"EMBED_FETCH_LIMIT", c.EmbedFetchLimit},
		{"EMBED_BATCH_SIZE", c.EmbedBatchSize},
		{"EMBED_COMMIT_EVERY", c.EmbedCommitEvery},
		{"CLUSTER_MIN_RECORDS", c.ClusterMinRecords},
		{"CLUSTER_FETCH_LIMIT", c.ClusterFetchLimit},
		{"TREND_THRESHOLD", c.TrendThreshold},
		{"MAX_CLUSTERS_PER_GROUP", c.MaxClustersPerGroup},
		{"EXAMPLES_PER_CLUSTER", c.ExamplesPerCluster},
		{"DATABASE_MAX_CONNS", int(c.DatabaseMaxConns)},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("invalid config: %s must be positive, got %d", p.name, p.value)
		}
	}
	if c.ClusterMinRecords < clustering.MinK {
		return fmt.Errorf("invalid config: CLUSTER_MIN_RECORDS must be at least %d, got %d", clustering.MinK, c.ClusterMinRecords)
	}
	if c.EmbedMinTokens < 0 {
		return fmt.Errorf("invalid config: EMBED_MIN_TOKENS cannot be negative")
	}
	if c.SynthesisTimeout <= 0 {
		return fmt.Errorf("invalid config: SYNTHESIS_TIMEOUT must be positive")
	}
	if c.PipelineInterval <= 0 {
		return fmt.Errorf("invalid config: PIPELINE_INTERVAL must be positive")
	}
	return nil
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

// HasSynthesis reports whether insight runs call the synthesis service.
func (c *Config) HasSynthesis() bool {
	return c.EnableLLM
}

func (c *Config) EmbeddingConfig() service.EmbeddingConfig {
	return service.EmbeddingConfig{
		Model:       c.EmbeddingModel,
		FetchLimit:  c.EmbedFetchLimit,
		BatchSize:   c.EmbedBatchSize,
		CommitEvery: c.EmbedCommitEvery,
		MinTokens:   c.EmbedMinTokens,
		Dimensions:  c.EmbeddingDimensions,
	}
}

func (c *Config) ClusteringConfig() service.ClusteringConfig {
	km := clustering.DefaultKMeansConfig()
	km.Seed = c.ClusterSeed
	return service.ClusteringConfig{
		Model:      c.ClusteringModel,
		MinRecords: c.ClusterMinRecords,
		FetchLimit: c.ClusterFetchLimit,
		Dimensions: c.EmbeddingDimensions,
		KMeans:     km,
	}
}

func (c *Config) InsightConfig() service.InsightConfig {
	return service.InsightConfig{
		Model:              c.ClusteringModel,
		EnableSynthesis:    c.EnableLLM,
		TrendThreshold:     c.TrendThreshold,
		MaxClusters:        c.MaxClustersPerGroup,
		ExamplesPerCluster: c.ExamplesPerCluster,
	}
}

// EnvVar describes one environment variable Load reads.
type EnvVar struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Default  string `json:"default,omitempty"`
	Required bool   `json:"required"`
}

const envListFormat = `{{range .}}{{usage_key .}}	{{usage_type .}}	{{usage_default .}}	{{usage_required .}}
{{end}}`

// EnvVars lists the variables Load reads, in declaration order.
func EnvVars() ([]EnvVar, error) {
	var buf bytes.Buffer
	if err := envconfig.Usagef(EnvPrefix, &Config{}, &buf, envListFormat); err != nil {
		return nil, fmt.Errorf("failed to describe config: %w", err)
	}

	var vars []EnvVar
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		fields := strings.Split(line, "\t")
		if len(fields) != 4 {
			continue
		}
		vars = append(vars, EnvVar{
			Name:     fields[0],
			Type:     fields[1],
			Default:  fields[2],
			Required: fields[3] == "true",
		})
	}
	return vars, nil
}
