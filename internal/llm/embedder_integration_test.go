//go:build integration

package llm

import (
	"context"
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	"github.com/raphaelgruber/podsearch/internal/config"
	"github.com/raphaelgruber/podsearch/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	ollamaImage    = "ollama/ollama:0.5.7"
	ollamaModel    = "all-minilm"
	ollamaModelDim = 384
)

// startOllama runs an Ollama container with the embedding model pulled
// and returns its base URL.
func startOllama(t *testing.T) string {
	t.Helper()
	// Ryuk can fail in rootless docker setups
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        ollamaImage,
			ExposedPorts: []string{"11434/tcp"},
			WaitingFor:   wait.ForHTTP("/").WithPort("11434/tcp").WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err, "start ollama container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	code, out, err := container.Exec(ctx, []string{"ollama", "pull", ollamaModel})
	require.NoError(t, err)
	if code != 0 {
		logs, _ := io.ReadAll(out)
		t.Fatalf("ollama pull exited %d: %s", code, logs)
	}

	host, err := container.Host(ctx)
	require.NoError(t, err)
	// testcontainers may report "null" as host in some environments
	if host == "" || host == "null" {
		host = "localhost"
	}
	port, err := container.MappedPort(ctx, "11434")
	require.NoError(t, err)

	return fmt.Sprintf("http://%s:%s", host, port.Port())
}

func TestOllamaEmbedderIntegration(t *testing.T) {
	baseURL := startOllama(t)

	e, err := NewEmbedder(config.Config{
		EmbedProvider:  config.ProviderOllama,
		EmbedModel:     ollamaModel,
		EmbedDimension: ollamaModelDim,
		OllamaHost:     baseURL,
	}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	t.Run("returns vectors of the configured dimension", func(t *testing.T) {
		vec, err := e.Embed(ctx, "Goroutines and channels in practice.")
		require.NoError(t, err)
		assert.Len(t, vec, ollamaModelDim)

		var sum float32
		for _, v := range vec {
			sum += v * v
		}
		assert.Greater(t, sum, float32(0.1), "embedding should have non-trivial values")
	})

	t.Run("rejects a wrong configured dimension", func(t *testing.T) {
		wrong, err := NewEmbedder(config.Config{
			EmbedProvider:  config.ProviderOllama,
			EmbedModel:     ollamaModel,
			EmbedDimension: 768,
			OllamaHost:     baseURL,
		}, nil)
		require.NoError(t, err)

		_, err = wrong.Embed(ctx, "dimension check")
		assert.ErrorIs(t, err, models.ErrDimensionMismatch)
	})
}
