//go:build integration

package openai

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegration_GenerateEmbeddings_RealAPI(t *testing.T) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	baseURL := os.Getenv("OPENAI_BASE_URL")
	if apiKey == "" && baseURL == "" {
		t.Skip("OPENAI_API_KEY / OPENAI_BASE_URL not set, skipping integration test")
	}

	client := NewClientWithConfig(Config{
		APIKey:         apiKey,
		BaseURL:        baseURL,
		EmbeddingModel: os.Getenv("EMBEDDING_MODEL"),
	})

	vectors, err := client.GenerateEmbeddings(context.Background(), []string{
		"the app keeps logging me out",
		"delivery arrived two days late",
	})

	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Len(t, vectors[0], client.dimensions)
}
