// Package app wires configuration, storage, providers and services together.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/raphaelgruber/podsearch/internal/config"
	"github.com/raphaelgruber/podsearch/internal/db"
	"github.com/raphaelgruber/podsearch/internal/llm"
	"github.com/raphaelgruber/podsearch/internal/metrics"
	"github.com/raphaelgruber/podsearch/internal/scoring"
	"github.com/raphaelgruber/podsearch/internal/service"
)

// App holds the store and lazily created providers and services.
// Commands that only read the store never touch a provider.
type App struct {
	Config  config.Config
	DB      *db.Client
	Metrics *metrics.Collector
	Logger  *slog.Logger

	mu       sync.Mutex
	embedder service.Embedder
	model    service.Generator
	sessions service.SessionStore
	index    *service.IndexService
	search   *service.SearchService
	chat     *service.ChatService
	jobs     *service.JobManager
}

// Open opens the database described by cfg.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}

	client, err := db.Open(ctx, cfg.DBPath, logger)
	if err != nil {
		return nil, err
	}

	var sessions service.SessionStore = client
	if !cfg.PersistSessions {
		sessions = service.NewMemorySessionStore()
	}

	return &App{
		Config:   cfg,
		DB:       client,
		Metrics:  metrics.NewCollector(),
		Logger:   logger,
		sessions: sessions,
	}, nil
}

// NewWithProviders builds an App around an open store and given providers.
// Tests use it to substitute stubs for the network providers.
func NewWithProviders(cfg config.Config, client *db.Client, embedder service.Embedder, model service.Generator, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{
		Config:   cfg,
		DB:       client,
		Metrics:  metrics.NewCollector(),
		Logger:   logger,
		embedder: embedder,
		model:    model,
		sessions: service.NewMemorySessionStore(),
	}
}

// Close closes the store.
func (a *App) Close() error {
	return a.DB.Close()
}

func (a *App) getEmbedder() (service.Embedder, error) {
	if a.embedder != nil {
		return a.embedder, nil
	}
	e, err := llm.NewEmbedder(a.Config, a.Metrics)
	if err != nil {
		return nil, fmt.Errorf("init embedder: %w", err)
	}
	a.Logger.Debug("embedder initialized", "provider", a.Config.EmbedProvider, "model", e.Model())
	a.embedder = e
	return e, nil
}

func (a *App) getModel(ctx context.Context) (service.Generator, error) {
	if a.model != nil {
		return a.model, nil
	}
	m, err := llm.NewModel(ctx, a.Config, a.Metrics)
	if err != nil {
		return nil, fmt.Errorf("init model: %w", err)
	}
	a.Logger.Debug("model initialized", "provider", a.Config.LLMProvider, "model", m.Model())
	a.model = m
	return m, nil
}

// Indexer returns the index service.
func (a *App) Indexer() (*service.IndexService, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.index != nil {
		return a.index, nil
	}
	e, err := a.getEmbedder()
	if err != nil {
		return nil, err
	}
	a.index = service.NewIndexService(a.DB, e, a.Config.ChunkConfig(), a.Config.EmbedDimension, a.Metrics)
	return a.index, nil
}

// Searcher returns the search service.
func (a *App) Searcher() (*service.SearchService, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.search != nil {
		return a.search, nil
	}
	e, err := a.getEmbedder()
	if err != nil {
		return nil, err
	}
	scorer, err := scoring.NewScorer(a.Config.Weights())
	if err != nil {
		return nil, err
	}
	a.search = service.NewSearchService(a.DB, e, scorer, service.SearchConfig{
		DefaultTopK:       a.Config.SearchTopK,
		FallbackThreshold: a.Config.FallbackThreshold,
	}, a.Metrics)
	return a.search, nil
}

// Chatter returns the chat service.
func (a *App) Chatter(ctx context.Context) (*service.ChatService, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.chat != nil {
		return a.chat, nil
	}
	e, err := a.getEmbedder()
	if err != nil {
		return nil, err
	}
	m, err := a.getModel(ctx)
	if err != nil {
		return nil, err
	}
	a.chat = service.NewChatService(a.DB, e, m, a.sessions, service.ChatConfig{
		TopK:         a.Config.ChatTopK,
		HistoryTurns: a.Config.ChatHistoryTurns,
	}, a.Metrics)
	return a.chat, nil
}

// Jobs returns the background job manager. Jobs left running by a previous
// process are marked failed the first time it is created.
func (a *App) Jobs(ctx context.Context) (*service.JobManager, error) {
	indexer, err := a.Indexer()
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.jobs != nil {
		return a.jobs, nil
	}
	a.jobs = service.NewJobManager(indexer, a.DB)
	if err := a.jobs.RecoverInterrupted(ctx); err != nil {
		a.Logger.Warn("failed to recover interrupted jobs", "error", err)
	}
	return a.jobs, nil
}

// InitAll creates every service up front, as long-running servers do.
func (a *App) InitAll(ctx context.Context) error {
	if _, err := a.Searcher(); err != nil {
		return err
	}
	if _, err := a.Chatter(ctx); err != nil {
		return err
	}
	_, err := a.Jobs(ctx)
	return err
}
