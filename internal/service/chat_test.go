package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/raphaelgruber/podsearch/internal/db"
	"github.com/raphaelgruber/podsearch/internal/models"
	"github.com/raphaelgruber/podsearch/internal/service"
	"github.com/raphaelgruber/podsearch/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const question = "what is an operator?"

type chatFixture struct {
	svc      *service.ChatService
	client   *db.Client
	emb      *testutil.StubEmbedder
	gen      *testutil.StubGenerator
	sessions *service.MemorySessionStore
}

func newChat(t *testing.T, cfg service.ChatConfig) *chatFixture {
	t.Helper()
	f := &chatFixture{
		client:   testutil.OpenTestDB(t),
		emb:      testutil.NewStubEmbedder(testDim),
		gen:      &testutil.StubGenerator{Reply: "An operator extends Kubernetes."},
		sessions: service.NewMemorySessionStore(),
	}
	f.emb.Set(question, testutil.Axis(testDim, 1))
	f.svc = service.NewChatService(f.client, f.emb, f.gen, f.sessions, cfg, nil)

	// best matches in similarity order are chunks 4, 0, 2
	storeEpisode(t, f.client, "k8s.txt", "Kubernetes Operators", sims{
		title:  0.5,
		chunks: []float64{0.9, 0.1, 0.85, 0.2, 0.95, 0.3},
	})
	return f
}

func TestAskUsesTopChunksInTranscriptOrder(t *testing.T) {
	f := newChat(t, service.ChatConfig{TopK: 3})

	resp, err := f.svc.Ask(context.Background(), service.ChatRequest{EpisodeID: "k8s.txt", Message: question})
	require.NoError(t, err)

	assert.Equal(t, "An operator extends Kubernetes.", resp.Response)
	assert.Equal(t, "k8s.txt", resp.EpisodeID)
	assert.Equal(t, "Kubernetes Operators", resp.EpisodeTitle)
	assert.NotEmpty(t, resp.SessionID)
	assert.Equal(t, []int{0, 2, 4}, resp.ChunksUsed)

	require.Len(t, f.gen.Systems, 1)
	system := f.gen.Systems[0]
	assert.Contains(t, system, `"Kubernetes Operators"`)
	assert.Contains(t, system, "[characters 0-1000]")
	assert.Contains(t, system, "[characters 3200-4200]")
	assert.NotContains(t, system, "chunk 1 of k8s.txt")

	i0 := strings.Index(system, "chunk 0 of k8s.txt")
	i2 := strings.Index(system, "chunk 2 of k8s.txt")
	i4 := strings.Index(system, "chunk 4 of k8s.txt")
	assert.True(t, i0 < i2 && i2 < i4, "chunks should appear in transcript order")

	assert.Equal(t, question, f.gen.LastPrompt())
	assert.Empty(t, f.gen.Histories[0])

	session, err := f.svc.Session(context.Background(), resp.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "k8s.txt", session.EpisodeID)
	require.Len(t, session.Messages, 2)
	assert.Equal(t, models.RoleUser, session.Messages[0].Role)
	assert.Equal(t, question, session.Messages[0].Content)
	assert.Equal(t, models.RoleAssistant, session.Messages[1].Role)
}

func TestAskCarriesHistory(t *testing.T) {
	ctx := context.Background()
	f := newChat(t, service.ChatConfig{TopK: 2, HistoryTurns: 1})

	first, err := f.svc.Ask(ctx, service.ChatRequest{EpisodeID: "k8s.txt", Message: question})
	require.NoError(t, err)

	f.gen.Reply = "second answer"
	_, err = f.svc.Ask(ctx, service.ChatRequest{EpisodeID: "k8s.txt", SessionID: first.SessionID, Message: "and then?"})
	require.NoError(t, err)
	require.Len(t, f.gen.Histories[1], 2)
	assert.Equal(t, question, f.gen.Histories[1][0].Content)

	_, err = f.svc.Ask(ctx, service.ChatRequest{EpisodeID: "k8s.txt", SessionID: first.SessionID, Message: "one more"})
	require.NoError(t, err)

	// only the most recent exchange is replayed
	history := f.gen.Histories[2]
	require.Len(t, history, 2)
	assert.Equal(t, "and then?", history[0].Content)
	assert.Equal(t, "second answer", history[1].Content)

	session, err := f.svc.Session(ctx, first.SessionID)
	require.NoError(t, err)
	assert.Len(t, session.Messages, 6)
}

func TestAskSessionSwitchingEpisodeStartsOver(t *testing.T) {
	ctx := context.Background()
	f := newChat(t, service.ChatConfig{})
	storeEpisode(t, f.client, "other.txt", "Other", sims{chunks: []float64{0.4}})

	first, err := f.svc.Ask(ctx, service.ChatRequest{EpisodeID: "k8s.txt", Message: question})
	require.NoError(t, err)

	resp, err := f.svc.Ask(ctx, service.ChatRequest{EpisodeID: "other.txt", SessionID: first.SessionID, Message: question})
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, resp.SessionID)
	assert.Empty(t, f.gen.Histories[1])

	session, err := f.svc.Session(ctx, first.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "other.txt", session.EpisodeID)
	assert.Len(t, session.Messages, 2)
}

func TestAskUnknownSessionIDIsCreated(t *testing.T) {
	f := newChat(t, service.ChatConfig{})

	resp, err := f.svc.Ask(context.Background(), service.ChatRequest{EpisodeID: "k8s.txt", SessionID: "my-session", Message: question})
	require.NoError(t, err)
	assert.Equal(t, "my-session", resp.SessionID)
	assert.Equal(t, 1, f.sessions.Len())
}

func TestAskGenerationFailureRecordsNothing(t *testing.T) {
	f := newChat(t, service.ChatConfig{})
	f.gen.Err = errors.New("model not loaded")

	_, err := f.svc.Ask(context.Background(), service.ChatRequest{EpisodeID: "k8s.txt", SessionID: "s1", Message: question})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrProvider)
	assert.Zero(t, f.sessions.Len())
}

func TestAskValidation(t *testing.T) {
	ctx := context.Background()
	f := newChat(t, service.ChatConfig{})

	_, err := f.svc.Ask(ctx, service.ChatRequest{EpisodeID: "k8s.txt", Message: "  "})
	assert.ErrorIs(t, err, models.ErrInvalidQuery)

	_, err = f.svc.Ask(ctx, service.ChatRequest{Message: question})
	assert.ErrorIs(t, err, models.ErrInvalidQuery)
	assert.Empty(t, f.emb.Calls())

	_, err = f.svc.Ask(ctx, service.ChatRequest{EpisodeID: "missing.txt", Message: question})
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Empty(t, f.gen.Prompts)
}

func TestAskDimensionMismatch(t *testing.T) {
	f := newChat(t, service.ChatConfig{})
	storeEpisodeDim(t, f.client, "old.txt", "Old", sims{chunks: []float64{0.5}}, 4)

	_, err := f.svc.Ask(context.Background(), service.ChatRequest{EpisodeID: "old.txt", Message: question})
	assert.ErrorIs(t, err, models.ErrDimensionMismatch)
	assert.Empty(t, f.gen.Prompts)
}

func TestAskEpisodeWithoutChunks(t *testing.T) {
	f := newChat(t, service.ChatConfig{})
	storeEpisode(t, f.client, "empty.txt", "Empty", sims{title: 0.5})

	resp, err := f.svc.Ask(context.Background(), service.ChatRequest{EpisodeID: "empty.txt", Message: question})
	require.NoError(t, err)
	assert.Empty(t, resp.ChunksUsed)
	assert.Contains(t, f.gen.Systems[0], "no transcript excerpts")
}

func TestAskStream(t *testing.T) {
	f := newChat(t, service.ChatConfig{})

	var tokens []string
	resp, err := f.svc.AskStream(context.Background(), service.ChatRequest{EpisodeID: "k8s.txt", Message: question},
		func(tok string) error {
			tokens = append(tokens, tok)
			return nil
		})
	require.NoError(t, err)
	assert.Greater(t, len(tokens), 1)
	assert.Equal(t, resp.Response, strings.Join(tokens, ""))
	assert.Equal(t, 1, f.sessions.Len())
}

func TestAskStreamCallbackErrorAborts(t *testing.T) {
	f := newChat(t, service.ChatConfig{})

	_, err := f.svc.AskStream(context.Background(), service.ChatRequest{EpisodeID: "k8s.txt", Message: question},
		func(string) error { return errors.New("client gone") })
	require.Error(t, err)
	assert.Zero(t, f.sessions.Len())

	_, err = f.svc.AskStream(context.Background(), service.ChatRequest{EpisodeID: "k8s.txt", Message: question}, nil)
	assert.Error(t, err)
}

func TestAskPersistsSessionsInDatabase(t *testing.T) {
	ctx := context.Background()
	client := testutil.OpenTestDB(t)
	emb := testutil.NewStubEmbedder(testDim)
	gen := &testutil.StubGenerator{Reply: "ok"}
	storeEpisode(t, client, "ep.txt", "Ep", sims{chunks: []float64{0.5}})

	svc := service.NewChatService(client, emb, gen, client, service.ChatConfig{}, nil)
	resp, err := svc.Ask(ctx, service.ChatRequest{EpisodeID: "ep.txt", Message: "hi"})
	require.NoError(t, err)

	session, err := client.GetSession(ctx, resp.SessionID)
	require.NoError(t, err)
	assert.Len(t, session.Messages, 2)
}

func TestSelectChunks(t *testing.T) {
	query := testutil.Axis(testDim, 1)
	chunk := func(idx int, sim float64) models.Chunk {
		return models.Chunk{Index: idx, CharStart: idx * 800, Embedding: testutil.Axis(testDim, sim)}
	}

	t.Run("ties prefer earlier chunk", func(t *testing.T) {
		got, err := service.SelectChunks(query, []models.Chunk{chunk(0, 0.2), chunk(1, 0.5), chunk(2, 0.5), chunk(3, 0.5)}, 2)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, 1, got[0].Index)
		assert.Equal(t, 2, got[1].Index)
	})

	t.Run("k larger than chunk count", func(t *testing.T) {
		got, err := service.SelectChunks(query, []models.Chunk{chunk(1, 0.9), chunk(0, 0.1)}, 10)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, 0, got[0].Index)
	})

	t.Run("empty", func(t *testing.T) {
		got, err := service.SelectChunks(query, nil, 3)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		_, err := service.SelectChunks(query, []models.Chunk{{Index: 0, Embedding: []float32{1, 0}}}, 1)
		assert.ErrorIs(t, err, models.ErrDimensionMismatch)
	})
}

func TestMemorySessionStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := service.NewMemorySessionStore()

	s := &models.Session{ID: "s", EpisodeID: "e", Messages: []models.Message{{Role: models.RoleUser, Content: "a"}}}
	require.NoError(t, store.SaveSession(ctx, s))
	assert.False(t, s.CreatedAt.IsZero())

	got, err := store.GetSession(ctx, "s")
	require.NoError(t, err)
	got.Messages[0].Content = "changed"

	again, err := store.GetSession(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, "a", again.Messages[0].Content)

	_, err = store.GetSession(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)

	require.NoError(t, store.DeleteSession(ctx, "s"))
	assert.Zero(t, store.Len())
	assert.ErrorIs(t, store.DeleteSession(ctx, "s"), models.ErrNotFound)
}

func TestEndSession(t *testing.T) {
	ctx := context.Background()
	f := newChat(t, service.ChatConfig{})

	resp, err := f.svc.Ask(ctx, service.ChatRequest{EpisodeID: "k8s.txt", Message: question})
	require.NoError(t, err)

	require.NoError(t, f.svc.EndSession(ctx, resp.SessionID))
	_, err = f.svc.Session(ctx, resp.SessionID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

// gatedGenerator holds every call until release is closed.
type gatedGenerator struct {
	testutil.StubGenerator
	entered chan struct{}
	release chan struct{}
}

func (g *gatedGenerator) GenerateWithHistory(ctx context.Context, system string, history []models.Message, prompt string) (string, error) {
	g.entered <- struct{}{}
	<-g.release
	return g.StubGenerator.GenerateWithHistory(ctx, system, history, prompt)
}

func TestAskSameSessionConcurrentlyKeepsEveryTurn(t *testing.T) {
	ctx := context.Background()
	f := newChat(t, service.ChatConfig{TopK: 2})
	gen := &gatedGenerator{
		StubGenerator: testutil.StubGenerator{Reply: "answer"},
		entered:       make(chan struct{}, 2),
		release:       make(chan struct{}),
	}
	svc := service.NewChatService(f.client, f.emb, gen, f.sessions, service.ChatConfig{TopK: 2, HistoryTurns: 5}, nil)

	errs := make(chan error, 2)
	ask := func(msg string) {
		_, err := svc.Ask(ctx, service.ChatRequest{EpisodeID: "k8s.txt", SessionID: "shared", Message: msg})
		errs <- err
	}

	go ask(question)
	<-gen.entered
	go ask("and then?")

	// the second turn must wait for the first to be saved
	select {
	case <-gen.entered:
		t.Fatal("second turn reached the generator while the first was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(gen.release)
	require.NoError(t, <-errs)
	<-gen.entered
	require.NoError(t, <-errs)

	session, err := svc.Session(ctx, "shared")
	require.NoError(t, err)
	assert.Len(t, session.Messages, 4)
	require.Len(t, gen.Histories, 2)
	assert.Len(t, gen.Histories[1], 2)
}
