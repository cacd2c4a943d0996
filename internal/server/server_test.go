package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/podsearch/internal/db"
	"github.com/raphaelgruber/podsearch/internal/metrics"
	"github.com/raphaelgruber/podsearch/internal/parser"
	"github.com/raphaelgruber/podsearch/internal/scoring"
	"github.com/raphaelgruber/podsearch/internal/server"
	"github.com/raphaelgruber/podsearch/internal/service"
	"github.com/raphaelgruber/podsearch/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dim = 8

type fixture struct {
	ts     *httptest.Server
	client *db.Client
	emb    *testutil.StubEmbedder
	gen    *testutil.StubGenerator
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	client := testutil.OpenTestDB(t)
	emb := testutil.NewStubEmbedder(dim)
	gen := &testutil.StubGenerator{Reply: "It is about Go concurrency."}
	mc := metrics.NewCollector()

	indexer := service.NewIndexService(client, emb, parser.DefaultChunkConfig(), dim, mc)
	scorer, err := scoring.NewScorer(scoring.DefaultWeights())
	require.NoError(t, err)

	srv := server.New(server.Deps{
		DB:      client,
		Search:  service.NewSearchService(client, emb, scorer, service.SearchConfig{}, mc),
		Chat:    service.NewChatService(client, emb, gen, client, service.ChatConfig{}, mc),
		Jobs:    service.NewJobManager(indexer, client),
		Metrics: mc,
		Version: "test",
	}, testLogger())

	// "go concurrency" matches the Go episode's title exactly and its body halfway
	emb.Set("go concurrency", testutil.Axis(dim, 1))
	goBody := strings.TrimSpace(strings.Repeat("goroutines and channels ", 100))
	registerEpisode(emb, "Go Concurrency", goBody, testutil.Axis(dim, 1), testutil.Axis(dim, 0.5))
	breadBody := "flour water salt yeast"
	registerEpisode(emb, "Baking Bread", breadBody, testutil.Axis(dim, 0), testutil.Axis(dim, 0))

	_, err = indexer.IndexTranscript(ctx, "go.txt", "---\ntitle: Go Concurrency\n---\n"+goBody, service.IndexOptions{})
	require.NoError(t, err)
	_, err = indexer.IndexTranscript(ctx, "bread.txt", "---\ntitle: Baking Bread\n---\n"+breadBody, service.IndexOptions{})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &fixture{ts: ts, client: client, emb: emb, gen: gen}
}

// registerEpisode fixes the vectors the indexer will receive for an episode.
func registerEpisode(emb *testutil.StubEmbedder, title, body string, titleVec, bodyVec []float32) {
	cfg := parser.DefaultChunkConfig()
	emb.Set(title, titleVec)
	emb.Set(parser.Intro(body, cfg.SectionSize), bodyVec)
	emb.Set(parser.Outro(body, cfg.SectionSize), bodyVec)
	for _, c := range parser.ChunkText(body, cfg) {
		emb.Set(c.Content, bodyVec)
	}
}

func (f *fixture) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		if s, ok := body.(string); ok {
			rd = strings.NewReader(s)
		} else {
			raw, err := json.Marshal(body)
			require.NoError(t, err)
			rd = bytes.NewReader(raw)
		}
	}
	req, err := http.NewRequest(method, f.ts.URL+path, rd)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func errorKind(t *testing.T, body map[string]any) string {
	t.Helper()
	e, ok := body["error"].(map[string]any)
	require.True(t, ok, "expected error body, got %v", body)
	return e["kind"].(string)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	status, body := f.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])
	assert.EqualValues(t, 2, body["episodes"])
}

func TestSearch(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, http.MethodPost, "/api/search", map[string]any{"query": "go concurrency", "top_k": 1})
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, body["count"])
	assert.Equal(t, "weighted", body["profile"])

	results := body["results"].([]any)
	require.Len(t, results, 1)
	first := results[0].(map[string]any)
	assert.Equal(t, "go.txt", first["episode_id"])
	assert.Equal(t, "Go Concurrency", first["title"])
	assert.InDelta(t, 80.0, first["confidence_percent"], 1e-3)
	scores := first["scoring"].(map[string]any)
	assert.InDelta(t, 1.0, scores["title"], 1e-6)
	assert.Contains(t, scores, "content")
	assert.Contains(t, body, "search_time_ms")
}

func TestSearchErrors(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, http.MethodPost, "/api/search", map[string]any{"query": "  "})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_query", errorKind(t, body))

	status, body = f.do(t, http.MethodPost, "/api/search", "{not json")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_query", errorKind(t, body))

	status, _ = f.do(t, http.MethodPost, "/api/search", map[string]any{"query": "x", "top_k": 1000})
	assert.Equal(t, http.StatusBadRequest, status)

	f.emb.FailAll(errors.New("ollama unreachable"))
	status, body = f.do(t, http.MethodPost, "/api/search", map[string]any{"query": "bread"})
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, "provider", errorKind(t, body))
}

func TestChatAndSession(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, http.MethodPost, "/api/chat", map[string]any{"episode_id": "go.txt", "message": "what is it about?"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "It is about Go concurrency.", body["response"])
	assert.Equal(t, "Go Concurrency", body["episode_title"])
	assert.NotEmpty(t, body["chunks_used"])
	assert.Contains(t, body, "response_time_ms")
	sessionID := body["session_id"].(string)
	require.NotEmpty(t, sessionID)

	status, body = f.do(t, http.MethodGet, "/api/chat/session/"+sessionID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "go.txt", body["episode_id"])
	assert.Len(t, body["messages"], 2)

	status, _ = f.do(t, http.MethodDelete, "/api/chat/session/"+sessionID, nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, body = f.do(t, http.MethodGet, "/api/chat/session/"+sessionID, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", errorKind(t, body))
}

func TestChatErrors(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, http.MethodPost, "/api/chat", map[string]any{"episode_id": "missing.txt", "message": "hi"})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", errorKind(t, body))

	status, body = f.do(t, http.MethodPost, "/api/chat", map[string]any{"episode_id": "go.txt", "message": ""})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_query", errorKind(t, body))

	f.gen.Err = errors.New("model overloaded")
	status, body = f.do(t, http.MethodPost, "/api/chat", map[string]any{"episode_id": "go.txt", "message": "hi"})
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, "provider", errorKind(t, body))
}

func TestPodcasts(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, http.MethodGet, "/api/podcasts", nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 2, body["count"])
	podcasts := body["podcasts"].([]any)
	assert.Equal(t, "Baking Bread", podcasts[0].(map[string]any)["title"])

	status, body = f.do(t, http.MethodGet, "/api/podcasts/go.txt", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Go Concurrency", body["title"])
	assert.Equal(t, true, body["truncated"])
	assert.EqualValues(t, 3, body["chunk_count"])
	assert.LessOrEqual(t, len([]rune(body["content"].(string))), 1003)

	status, body = f.do(t, http.MethodGet, "/api/podcasts/nope.txt", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", errorKind(t, body))
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/api/search", map[string]any{"query": "bread"})

	status, body := f.do(t, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, status)
	store := body["store"].(map[string]any)
	assert.EqualValues(t, 2, store["episodes"])
	m := body["metrics"].(map[string]any)
	assert.NotNil(t, m["search"])
}

func TestIndexJob(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.txt"), []byte("a brand new episode"), 0o644))

	status, body := f.do(t, http.MethodPost, "/api/index", map[string]any{"dir": dir})
	require.Equal(t, http.StatusAccepted, status)
	id := body["id"].(string)

	require.Eventually(t, func() bool {
		_, job := f.do(t, http.MethodGet, "/api/jobs/"+id, nil)
		return job["status"] == "completed"
	}, 5*time.Second, 20*time.Millisecond)

	status, body = f.do(t, http.MethodGet, "/api/jobs", nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, body["count"])

	_, err := f.client.GetEpisode(context.Background(), "new.txt")
	assert.NoError(t, err)

	status, _ = f.do(t, http.MethodGet, "/api/jobs/unknown", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = f.do(t, http.MethodPost, "/api/index", map[string]any{"dir": ""})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = f.do(t, http.MethodPost, "/api/index", map[string]any{"dir": filepath.Join(dir, "missing")})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestChatStream(t *testing.T) {
	f := newFixture(t)

	url := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/api/chat/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{"episode_id": "go.txt", "message": "summary?"}))

	var tokens []string
	for {
		var frame map[string]any
		require.NoError(t, conn.ReadJSON(&frame))
		if frame["type"] == "token" {
			tokens = append(tokens, frame["content"].(string))
			continue
		}
		require.Equal(t, "done", frame["type"])
		result := frame["result"].(map[string]any)
		assert.Equal(t, "It is about Go concurrency.", result["response"])
		break
	}
	assert.Equal(t, "It is about Go concurrency.", strings.Join(tokens, ""))

	// errors keep the connection open
	require.NoError(t, conn.WriteJSON(map[string]any{"episode_id": "missing.txt", "message": "hi"}))
	var frame map[string]any
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "error", frame["type"])
	assert.Equal(t, "not_found", frame["error"].(map[string]any)["kind"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{bad")))
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "error", frame["type"])
	assert.Equal(t, "invalid_query", frame["error"].(map[string]any)["kind"])
}

func TestUnknownRoute(t *testing.T) {
	f := newFixture(t)
	resp, err := http.Get(f.ts.URL + "/api/nothing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
