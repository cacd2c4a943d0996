package server

import (
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/raphaelgruber/podsearch/internal/metrics"
	"github.com/raphaelgruber/podsearch/internal/models"
	"github.com/raphaelgruber/podsearch/internal/service"
)

// detailContentLength truncates transcript content in episode detail responses.
const detailContentLength = 1000

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.DB.Stats(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "healthy",
		"version":  s.deps.Version,
		"episodes": stats.Episodes,
		"chunks":   stats.Chunks,
	})
}

type statsResponse struct {
	Store   models.StoreStats `json:"store"`
	Metrics metrics.Snapshot  `json:"metrics"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.DB.Stats(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{Store: stats, Metrics: s.deps.Metrics.Snapshot()})
}

type searchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

type searchResult struct {
	EpisodeID         string        `json:"episode_id"`
	Title             string        `json:"title"`
	Confidence        float64       `json:"confidence"`
	ConfidencePercent float64       `json:"confidence_percent"`
	Preview           string        `json:"preview"`
	Scoring           sectionScores `json:"scoring"`
	BestChunk         int           `json:"best_chunk"`
}

// sectionScores are the per-section similarities behind a confidence.
type sectionScores struct {
	Title   float64 `json:"title"`
	Intro   float64 `json:"intro"`
	Content float64 `json:"content"`
	Outro   float64 `json:"outro"`
}

type searchResponse struct {
	Query        string         `json:"query"`
	Profile      string         `json:"profile"`
	Results      []searchResult `json:"results"`
	Count        int            `json:"count"`
	Skipped      []string       `json:"skipped,omitempty"`
	SearchTimeMS int64          `json:"search_time_ms"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	resp, err := s.deps.Search.Search(r.Context(), service.SearchOptions{Query: req.Query, TopK: req.TopK})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out := searchResponse{
		Query:        resp.Query,
		Profile:      resp.Profile,
		Results:      make([]searchResult, len(resp.Results)),
		Count:        len(resp.Results),
		Skipped:      resp.Skipped,
		SearchTimeMS: resp.Duration.Milliseconds(),
	}
	for i, res := range resp.Results {
		out.Results[i] = searchResult{
			EpisodeID:         res.EpisodeID,
			Title:             res.Title,
			Confidence:        res.Confidence,
			ConfidencePercent: percent(res.Confidence),
			Preview:           res.Preview,
			Scoring: sectionScores{
				Title:   res.Scores.Title,
				Intro:   res.Scores.Intro,
				Content: res.Scores.Chunks,
				Outro:   res.Scores.Outro,
			},
			BestChunk: res.Scores.BestChunk,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// percent renders a confidence as a percentage with one decimal.
func percent(c float64) float64 {
	return math.Round(c*1000) / 10
}

type chatResponse struct {
	service.ChatResponse
	ResponseTimeMS int64 `json:"response_time_ms"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req service.ChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	resp, err := s.deps.Chat.Ask(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{ChatResponse: *resp, ResponseTimeMS: resp.Duration.Milliseconds()})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.deps.Chat.Session(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Chat.EndSession(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type podcastList struct {
	Podcasts []models.EpisodeSummary `json:"podcasts"`
	Count    int                     `json:"count"`
}

func (s *Server) handleListPodcasts(w http.ResponseWriter, r *http.Request) {
	episodes, err := s.deps.DB.ListEpisodes(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if episodes == nil {
		episodes = []models.EpisodeSummary{}
	}
	writeJSON(w, http.StatusOK, podcastList{Podcasts: episodes, Count: len(episodes)})
}

type podcastDetail struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Truncated  bool      `json:"truncated"`
	CharCount  int       `json:"char_count"`
	ChunkCount int       `json:"chunk_count"`
	IndexedAt  time.Time `json:"indexed_at"`
}

func (s *Server) handleGetPodcast(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	ep, err := s.deps.DB.GetEpisode(ctx, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	chunks, err := s.deps.DB.CountChunks(ctx, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	content := models.Preview(ep.Content, detailContentLength)
	writeJSON(w, http.StatusOK, podcastDetail{
		ID:         ep.ID,
		Title:      ep.Title,
		Content:    content,
		Truncated:  content != ep.Content,
		CharCount:  ep.CharCount,
		ChunkCount: chunks,
		IndexedAt:  ep.IndexedAt,
	})
}

type indexRequest struct {
	Dir   string `json:"dir"`
	Force bool   `json:"force"`
	Prune bool   `json:"prune"`
}

func (s *Server) handleStartIndex(w http.ResponseWriter, r *http.Request) {
	var req indexRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Dir) == "" {
		s.writeError(w, r, fmt.Errorf("%w: dir is required", models.ErrInvalidQuery))
		return
	}

	job, err := s.deps.Jobs.Start(r.Context(), req.Dir, service.IndexOptions{Force: req.Force, Prune: req.Prune})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job.Snapshot())
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := s.deps.Jobs.ListJobs()
	out := make([]service.Job, len(jobs))
	for i, j := range jobs {
		out[i] = j.Snapshot()
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": out, "count": len(out)})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	job := s.deps.Jobs.GetJob(id)
	if job == nil {
		s.writeError(w, r, fmt.Errorf("job %q: %w", id, models.ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}
