package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/raphaelgruber/podsearch/internal/config"
	"github.com/raphaelgruber/podsearch/internal/service"
	"github.com/raphaelgruber/podsearch/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDim = 8

func loadConfig(t *testing.T, extra string) config.Config {
	t.Helper()
	dir := t.TempDir()
	body := "db_path = \"" + filepath.Join(dir, "podsearch.db") + "\"\n" +
		"transcripts_dir = \"" + filepath.Join(dir, "transcripts") + "\"\n" +
		"log_file = \"" + filepath.Join(dir, "podsearch.log") + "\"\n" +
		"embed_dimension = 8\n" + extra
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func TestOpenCreatesStore(t *testing.T) {
	cfg := loadConfig(t, "")

	a, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, cfg.DBPath, a.DB.Path())
	assert.FileExists(t, cfg.DBPath)
	assert.DirExists(t, cfg.TranscriptsDir)
	assert.IsType(t, a.DB, a.sessions)
}

func TestOpenUsesMemorySessions(t *testing.T) {
	cfg := loadConfig(t, "persist_sessions = false\n")

	a, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &service.MemorySessionStore{}, a.sessions)
}

func TestServicesAreShared(t *testing.T) {
	cfg := loadConfig(t, "")
	a := NewWithProviders(cfg, testutil.OpenTestDB(t), testutil.NewStubEmbedder(testDim), &testutil.StubGenerator{Reply: "ok"}, nil)
	ctx := context.Background()

	require.NoError(t, a.InitAll(ctx))

	s1, err := a.Searcher()
	require.NoError(t, err)
	s2, err := a.Searcher()
	require.NoError(t, err)
	assert.Same(t, s1, s2)

	c1, err := a.Chatter(ctx)
	require.NoError(t, err)
	c2, err := a.Chatter(ctx)
	require.NoError(t, err)
	assert.Same(t, c1, c2)

	j1, err := a.Jobs(ctx)
	require.NoError(t, err)
	j2, err := a.Jobs(ctx)
	require.NoError(t, err)
	assert.Same(t, j1, j2)
}

func TestIndexSearchAndAsk(t *testing.T) {
	cfg := loadConfig(t, "")
	gen := &testutil.StubGenerator{Reply: "They talked about goroutines."}
	a := NewWithProviders(cfg, testutil.OpenTestDB(t), testutil.NewStubEmbedder(testDim), gen, nil)
	ctx := context.Background()

	indexer, err := a.Indexer()
	require.NoError(t, err)
	res, err := indexer.IndexTranscript(ctx, "ep1.txt", "---\ntitle: Go Concurrency\n---\nChannels and goroutines.", service.IndexOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Chunks)

	searcher, err := a.Searcher()
	require.NoError(t, err)
	found, err := searcher.Search(ctx, service.SearchOptions{Query: "Go Concurrency"})
	require.NoError(t, err)
	require.Len(t, found.Results, 1)
	assert.Equal(t, "ep1.txt", found.Results[0].EpisodeID)

	chat, err := a.Chatter(ctx)
	require.NoError(t, err)
	answer, err := chat.Ask(ctx, service.ChatRequest{EpisodeID: "ep1.txt", Message: "What was discussed?"})
	require.NoError(t, err)
	assert.Equal(t, "They talked about goroutines.", answer.Response)
	assert.NotEmpty(t, answer.SessionID)
	assert.Equal(t, []int{0}, answer.ChunksUsed)

	snap := a.Metrics.Snapshot()
	require.NotNil(t, snap.Search)
	assert.Equal(t, int64(1), snap.Search.Count)
}
