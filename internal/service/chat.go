package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/podsearch/internal/db"
	"github.com/raphaelgruber/podsearch/internal/metrics"
	"github.com/raphaelgruber/podsearch/internal/models"
	"github.com/raphaelgruber/podsearch/internal/scoring"
)

// Chat defaults.
const (
	DefaultChatTopK     = 4
	DefaultHistoryTurns = 5
)

// ChatConfig configures retrieval and history.
type ChatConfig struct {
	// TopK is how many chunks are handed to the generator
	TopK int
	// HistoryTurns is how many prior exchanges are replayed
	HistoryTurns int
}

// ChatService answers questions about one episode using its most relevant chunks.
// Turns on the same session are serialized so concurrent requests never
// overwrite each other's history.
type ChatService struct {
	db        *db.Client
	embedder  Embedder
	generator Generator
	sessions  SessionStore
	cfg       ChatConfig
	metrics   *metrics.Collector
	locks     sessionLocks
}

// sessionLocks hands out one mutex per session ID, dropped when unused.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// lock blocks until id is free and returns the matching unlock.
func (l *sessionLocks) lock(id string) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*sessionLock)
	}
	sl, ok := l.locks[id]
	if !ok {
		sl = &sessionLock{}
		l.locks[id] = sl
	}
	sl.refs++
	l.mu.Unlock()

	sl.mu.Lock()
	return func() {
		sl.mu.Unlock()
		l.mu.Lock()
		sl.refs--
		if sl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

// NewChatService creates a chat service. mc may be nil.
func NewChatService(db *db.Client, embedder Embedder, generator Generator, sessions SessionStore, cfg ChatConfig, mc *metrics.Collector) *ChatService {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultChatTopK
	}
	if cfg.HistoryTurns < 0 {
		cfg.HistoryTurns = DefaultHistoryTurns
	}
	return &ChatService{
		db:        db,
		embedder:  embedder,
		generator: generator,
		sessions:  sessions,
		cfg:       cfg,
		metrics:   mc,
	}
}

// ChatRequest is one user turn.
type ChatRequest struct {
	EpisodeID string `json:"episode_id"`
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

// ChatResponse is the generated reply and the context that produced it.
type ChatResponse struct {
	Response     string        `json:"response"`
	SessionID    string        `json:"session_id"`
	EpisodeID    string        `json:"episode_id"`
	EpisodeTitle string        `json:"episode_title"`
	ChunksUsed   []int         `json:"chunks_used"`
	Duration     time.Duration `json:"-"`
}

// chatTurn is everything prepared before generation.
type chatTurn struct {
	episode *models.Episode
	session *models.Session
	chunks  []models.Chunk
	system  string
	history []models.Message
	prompt  string
}

// Ask answers req.Message using the episode's most relevant chunks and the
// session history. The turn is recorded only after generation succeeds.
func (s *ChatService) Ask(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return s.run(ctx, req, nil)
}

// AskStream is Ask with tokens delivered to onToken as they are generated.
func (s *ChatService) AskStream(ctx context.Context, req ChatRequest, onToken func(string) error) (*ChatResponse, error) {
	if onToken == nil {
		return nil, errors.New("onToken is required")
	}
	return s.run(ctx, req, onToken)
}

func (s *ChatService) run(ctx context.Context, req ChatRequest, onToken func(string) error) (*ChatResponse, error) {
	start := time.Now()

	// A new session gets a fresh uuid, so only named sessions can collide
	if req.SessionID != "" {
		unlock := s.locks.lock(req.SessionID)
		defer unlock()
	}

	turn, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	var reply string
	if onToken != nil {
		reply, err = s.generator.StreamWithHistory(ctx, turn.system, turn.history, turn.prompt, onToken)
	} else {
		reply, err = s.generator.GenerateWithHistory(ctx, turn.system, turn.history, turn.prompt)
	}
	if err != nil {
		return nil, fmt.Errorf("generate reply: %w", err)
	}

	now := time.Now()
	turn.session.Messages = append(turn.session.Messages,
		models.Message{Role: models.RoleUser, Content: strings.TrimSpace(req.Message), CreatedAt: now},
		models.Message{Role: models.RoleAssistant, Content: reply, CreatedAt: now},
	)
	if err := s.sessions.SaveSession(ctx, turn.session); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	used := make([]int, len(turn.chunks))
	for i, c := range turn.chunks {
		used[i] = c.Index
	}

	duration := time.Since(start)
	s.metrics.RecordTiming(metrics.OpChat, duration)
	slog.Info("chat reply", "episode", turn.episode.ID, "session", turn.session.ID,
		"chunks", used, "history", len(turn.history), "duration_ms", duration.Milliseconds())

	return &ChatResponse{
		Response:     reply,
		SessionID:    turn.session.ID,
		EpisodeID:    turn.episode.ID,
		EpisodeTitle: turn.episode.Title,
		ChunksUsed:   used,
		Duration:     duration,
	}, nil
}

// prepare validates the request, resolves the session and selects context.
func (s *ChatService) prepare(ctx context.Context, req ChatRequest) (*chatTurn, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, fmt.Errorf("%w: message is empty", models.ErrInvalidQuery)
	}
	if strings.TrimSpace(req.EpisodeID) == "" {
		return nil, fmt.Errorf("%w: episode_id is required", models.ErrInvalidQuery)
	}

	episode, err := s.db.GetEpisode(ctx, req.EpisodeID)
	if err != nil {
		return nil, err
	}

	session, err := s.loadSession(ctx, req.SessionID, episode.ID)
	if err != nil {
		return nil, err
	}

	query, err := s.embedder.Embed(ctx, message)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	all, err := s.db.GetChunks(ctx, episode.ID)
	if err != nil {
		return nil, err
	}
	chunks, err := SelectChunks(query, all, s.cfg.TopK)
	if err != nil {
		return nil, fmt.Errorf("select chunks for %s: %w", episode.ID, err)
	}

	return &chatTurn{
		episode: episode,
		session: session,
		chunks:  chunks,
		system:  buildSystemPrompt(episode, chunks),
		history: recentHistory(session.Messages, s.cfg.HistoryTurns),
		prompt:  message,
	}, nil
}

// loadSession returns the requested session, or a new one when id is empty
// or unknown. A session bound to another episode starts over on this one.
func (s *ChatService) loadSession(ctx context.Context, id, episodeID string) (*models.Session, error) {
	if id == "" {
		return &models.Session{ID: uuid.New().String(), EpisodeID: episodeID}, nil
	}

	session, err := s.sessions.GetSession(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return &models.Session{ID: id, EpisodeID: episodeID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	if session.EpisodeID != episodeID {
		slog.Info("session switched episode, clearing history", "session", id, "from", session.EpisodeID, "to", episodeID)
		session.EpisodeID = episodeID
		session.Messages = nil
	}
	return session, nil
}

// Session returns a stored session.
func (s *ChatService) Session(ctx context.Context, id string) (*models.Session, error) {
	return s.sessions.GetSession(ctx, id)
}

// EndSession deletes a session and its history.
func (s *ChatService) EndSession(ctx context.Context, id string) error {
	return s.sessions.DeleteSession(ctx, id)
}

// SelectChunks returns the k chunks most similar to query, ordered by their
// position in the transcript. Ties in similarity prefer the earlier chunk.
func SelectChunks(query []float32, chunks []models.Chunk, k int) ([]models.Chunk, error) {
	type scored struct {
		chunk models.Chunk
		sim   float64
	}

	ranked := make([]scored, 0, len(chunks))
	seen := make(map[int]bool, len(chunks))
	for _, c := range chunks {
		if seen[c.Index] {
			continue
		}
		seen[c.Index] = true

		sim, err := scoring.Cosine(query, c.Embedding)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", c.Index, err)
		}
		ranked = append(ranked, scored{chunk: c, sim: sim})
	}

	slices.SortFunc(ranked, func(a, b scored) int {
		if c := cmp.Compare(b.sim, a.sim); c != 0 {
			return c
		}
		return cmp.Compare(a.chunk.Index, b.chunk.Index)
	})
	if len(ranked) > k {
		ranked = ranked[:k]
	}

	selected := make([]models.Chunk, len(ranked))
	for i, r := range ranked {
		selected[i] = r.chunk
	}
	slices.SortFunc(selected, func(a, b models.Chunk) int {
		return cmp.Compare(a.CharStart, b.CharStart)
	})
	return selected, nil
}

// recentHistory returns the messages of the last turns exchanges.
func recentHistory(messages []models.Message, turns int) []models.Message {
	if turns == 0 {
		return nil
	}
	n := turns * 2
	if len(messages) <= n {
		return messages
	}
	return messages[len(messages)-n:]
}

func buildSystemPrompt(episode *models.Episode, chunks []models.Chunk) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, `You are a helpful assistant answering questions about the podcast episode %q.
Answer using ONLY the transcript excerpts below. If they do not contain the answer, say so.
Be concise and quote the transcript where it helps.

Transcript excerpts:
`, episode.Title)

	if len(chunks) == 0 {
		sb.WriteString("\n(no transcript excerpts available)\n")
	}
	for _, c := range chunks {
		fmt.Fprintf(&sb, "\n[characters %d-%d]\n%s\n", c.CharStart, c.CharEnd, c.Content)
	}
	return sb.String()
}
