package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/raphaelgruber/podsearch/internal/config"
	"github.com/raphaelgruber/podsearch/internal/metrics"
	"github.com/raphaelgruber/podsearch/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbeddings is a scripted embeddings.Embedder.
type fakeEmbeddings struct {
	dim int
	err error
}

func (f *fakeEmbeddings) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dim)
		out[i][0] = 1
	}
	return out, nil
}

func (f *fakeEmbeddings) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vs, err := f.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vs[0], nil
}

func TestEmbed(t *testing.T) {
	mc := metrics.NewCollector()
	e := newEmbedder(&fakeEmbeddings{dim: 4}, "nomic-embed-text", 4, mc)

	v, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Len(t, v, 4)
	assert.Equal(t, "nomic-embed-text", e.Model())
	assert.Equal(t, 4, e.Dimension())

	snap := mc.Snapshot()
	require.NotNil(t, snap.Embedding)
	assert.Equal(t, int64(1), snap.Embedding.Count)
}

func TestEmbed_DimensionMismatch(t *testing.T) {
	e := newEmbedder(&fakeEmbeddings{dim: 3}, "m", 4, nil)
	_, err := e.Embed(context.Background(), "hello")
	assert.ErrorIs(t, err, models.ErrDimensionMismatch)
}

func TestEmbed_ProviderError(t *testing.T) {
	e := newEmbedder(&fakeEmbeddings{err: errors.New("dial tcp: connection refused")}, "m", 4, nil)
	_, err := e.Embed(context.Background(), "hello")
	assert.ErrorIs(t, err, models.ErrProvider)
}

func TestNewEmbedder_Unsupported(t *testing.T) {
	_, err := NewEmbedder(config.Config{EmbedProvider: "nope"}, nil)
	assert.Error(t, err)

	_, err = NewEmbedder(config.Config{EmbedProvider: config.ProviderOpenAI}, nil)
	assert.Error(t, err)
}

func TestNewModel_Unsupported(t *testing.T) {
	_, err := NewModel(context.Background(), config.Config{LLMProvider: "nope"}, nil)
	assert.Error(t, err)

	_, err = NewModel(context.Background(), config.Config{LLMProvider: config.ProviderAnthropic}, nil)
	assert.Error(t, err)
}
