package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/raphaelgruber/podsearch/internal/db"
	"github.com/raphaelgruber/podsearch/internal/metrics"
	"github.com/raphaelgruber/podsearch/internal/models"
	"github.com/raphaelgruber/podsearch/internal/scoring"
)

// Search limits and preview length.
const (
	DefaultTopK   = 5
	MaxTopK       = 100
	previewLength = 200
)

// Scoring profiles reported with each response.
const (
	ProfileWeighted = "weighted"
	ProfileContent  = "content"
)

// SearchConfig configures ranking.
type SearchConfig struct {
	// DefaultTopK applies when a request leaves TopK at 0
	DefaultTopK int
	// FallbackThreshold enables content reweighting when the best title
	// similarity across all episodes is below it. 0 disables.
	FallbackThreshold float64
	// FallbackWeights are used when the fallback triggers
	FallbackWeights scoring.Weights
}

// SearchService ranks episodes against a free-text query.
type SearchService struct {
	db       *db.Client
	embedder Embedder
	scorer   *scoring.Scorer
	cfg      SearchConfig
	metrics  *metrics.Collector
}

// NewSearchService creates a new search service. mc may be nil.
func NewSearchService(db *db.Client, embedder Embedder, scorer *scoring.Scorer, cfg SearchConfig, mc *metrics.Collector) *SearchService {
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = DefaultTopK
	}
	if cfg.FallbackWeights == (scoring.Weights{}) {
		cfg.FallbackWeights = scoring.ContentWeights()
	}
	return &SearchService{
		db:       db,
		embedder: embedder,
		scorer:   scorer,
		cfg:      cfg,
		metrics:  mc,
	}
}

// SearchOptions configures a search operation.
type SearchOptions struct {
	Query string
	TopK  int
}

// SearchResult is one ranked episode.
type SearchResult struct {
	EpisodeID  string            `json:"episode_id"`
	Title      string            `json:"title"`
	Confidence float64           `json:"confidence"`
	Scores     scoring.Breakdown `json:"scoring"`
	Preview    string            `json:"preview"`
}

// SearchResponse is the ranked result list plus diagnostics.
type SearchResponse struct {
	Query    string         `json:"query"`
	Profile  string         `json:"profile"`
	Results  []SearchResult `json:"results"`
	Skipped  []string       `json:"skipped,omitempty"`
	Duration time.Duration  `json:"-"`
}

// Search embeds the query, scores every stored episode and returns the top K
// by confidence, ties broken by episode ID. An empty query fails with
// models.ErrInvalidQuery before the provider is called. Episodes whose stored
// vectors do not match the query's dimension are skipped.
func (s *SearchService) Search(ctx context.Context, opts SearchOptions) (*SearchResponse, error) {
	start := time.Now()

	query := strings.TrimSpace(opts.Query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is empty", models.ErrInvalidQuery)
	}
	topK := opts.TopK
	if topK < 0 || topK > MaxTopK {
		return nil, fmt.Errorf("%w: top_k must be between 1 and %d, got %d", models.ErrInvalidQuery, MaxTopK, topK)
	}
	if topK == 0 {
		topK = s.cfg.DefaultTopK
	}

	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	candidates, err := s.db.LoadSearchCandidates(ctx)
	if err != nil {
		return nil, fmt.Errorf("load episodes: %w", err)
	}

	resp := &SearchResponse{Query: query, Profile: ProfileWeighted}
	results := make([]SearchResult, 0, len(candidates))
	bestTitle := 0.0

	for _, c := range candidates {
		b, err := s.scorer.Score(embedding, scoring.EpisodeVectors{
			Title:  c.TitleVec,
			Intro:  c.IntroVec,
			Outro:  c.OutroVec,
			Chunks: c.ChunkVecs,
		})
		if errors.Is(err, models.ErrDimensionMismatch) {
			slog.Warn("skipping episode with mismatched embeddings", "episode", c.ID, "query_dim", len(embedding), "error", err)
			resp.Skipped = append(resp.Skipped, c.ID)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("score %s: %w", c.ID, err)
		}

		bestTitle = max(bestTitle, b.Title)
		results = append(results, SearchResult{
			EpisodeID:  c.ID,
			Title:      c.Title,
			Confidence: b.Confidence,
			Scores:     b,
			Preview:    models.Preview(c.Head, previewLength),
		})
	}

	if s.cfg.FallbackThreshold > 0 && len(results) > 0 && bestTitle < s.cfg.FallbackThreshold {
		resp.Profile = ProfileContent
		for i := range results {
			results[i].Confidence = s.cfg.FallbackWeights.Combine(results[i].Scores)
			results[i].Scores.Confidence = results[i].Confidence
		}
		slog.Debug("no strong title match, using content weights", "best_title", bestTitle, "threshold", s.cfg.FallbackThreshold)
	}

	rankResults(results)
	if len(results) > topK {
		results = results[:topK]
	}
	resp.Results = results
	resp.Duration = time.Since(start)

	s.metrics.RecordTiming(metrics.OpSearch, resp.Duration)
	slog.Info("search complete", "query_len", len(query), "candidates", len(candidates),
		"results", len(results), "skipped", len(resp.Skipped), "profile", resp.Profile,
		"duration_ms", resp.Duration.Milliseconds())
	return resp, nil
}

// rankResults sorts by confidence descending, then episode ID ascending.
func rankResults(results []SearchResult) {
	slices.SortFunc(results, func(a, b SearchResult) int {
		if c := cmp.Compare(b.Confidence, a.Confidence); c != 0 {
			return c
		}
		return strings.Compare(a.EpisodeID, b.EpisodeID)
	})
}
