package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/raphaelgruber/podsearch/internal/db"
	"github.com/raphaelgruber/podsearch/internal/llm"
	"github.com/raphaelgruber/podsearch/internal/metrics"
	"github.com/raphaelgruber/podsearch/internal/models"
	"github.com/raphaelgruber/podsearch/internal/parser"
)

// transcriptExts are the file extensions picked up by directory indexing.
var transcriptExts = []string{".txt", ".html", ".htm"}

// IndexService turns transcripts into stored episodes with section and chunk embeddings.
type IndexService struct {
	db        *db.Client
	embedder  Embedder
	chunking  parser.ChunkConfig
	dimension int
	metrics   *metrics.Collector
}

// NewIndexService creates an indexer. dimension is the vector length every
// embedding must have. mc may be nil.
func NewIndexService(db *db.Client, embedder Embedder, chunking parser.ChunkConfig, dimension int, mc *metrics.Collector) *IndexService {
	return &IndexService{
		db:        db,
		embedder:  embedder,
		chunking:  chunking,
		dimension: dimension,
		metrics:   mc,
	}
}

// IndexOptions configures an indexing run.
type IndexOptions struct {
	// Force re-embeds episodes whose content and title are unchanged
	Force bool
	// Prune deletes stored episodes whose source file is not part of the run
	Prune bool
	// Progress is called after each file of a directory run (optional)
	Progress func(done, total int, file string)
}

// IndexResult describes one indexed transcript.
type IndexResult struct {
	EpisodeID string
	Title     string
	CharCount int
	Chunks    int
	Skipped   bool
	Duration  time.Duration
}

// DirectoryResult summarizes a directory run.
type DirectoryResult struct {
	FilesProcessed int
	Indexed        int
	Skipped        int
	Pruned         int
	ChunksCreated  int
	Errors         []string
	// Aborted is set when a fatal provider error stopped the run early
	Aborted bool
}

// Summary converts the result for job persistence.
func (r *DirectoryResult) Summary() map[string]any {
	return map[string]any{
		"files_processed": r.FilesProcessed,
		"indexed":         r.Indexed,
		"skipped":         r.Skipped,
		"pruned":          r.Pruned,
		"chunks_created":  r.ChunksCreated,
		"errors":          r.Errors,
		"aborted":         r.Aborted,
	}
}

// ContentHash returns the hex sha256 of content.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// IndexFile reads and indexes one transcript file. The episode ID is the file's base name.
func (s *IndexService) IndexFile(ctx context.Context, path string, opts IndexOptions) (*IndexResult, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", models.ErrIndexing, path, err)
	}
	return s.IndexTranscript(ctx, filepath.Base(path), string(raw), opts)
}

// IndexTranscript indexes raw transcript text under source.
//
// Every section is embedded before anything is written; the episode and its
// chunks are then stored in one transaction. On any failure nothing is
// persisted and the error wraps models.ErrIndexing.
func (s *IndexService) IndexTranscript(ctx context.Context, source, raw string, opts IndexOptions) (*IndexResult, error) {
	start := time.Now()

	source = strings.TrimSpace(source)
	if source == "" {
		return nil, fmt.Errorf("%w: empty source key", models.ErrIndexing)
	}

	doc := parser.ParseTranscript(source, raw)
	if doc.Content == "" {
		return nil, fmt.Errorf("%w: %s: empty transcript", models.ErrIndexing, source)
	}

	hash := ContentHash(doc.Content)
	charCount := len([]rune(doc.Content))

	if !opts.Force {
		title, storedHash, ok, err := s.db.EpisodeFingerprint(ctx, source)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", models.ErrIndexing, source, err)
		}
		if ok && storedHash == hash && title == doc.Title {
			slog.Debug("episode unchanged, skipping", "episode", source)
			return &IndexResult{EpisodeID: source, Title: doc.Title, CharCount: charCount, Skipped: true, Duration: time.Since(start)}, nil
		}
	}

	ep := &models.Episode{
		ID:          source,
		Title:       doc.Title,
		Content:     doc.Content,
		CharCount:   charCount,
		ContentHash: hash,
	}

	var err error
	if ep.TitleEmbedding, err = s.embed(ctx, source, "title", doc.Title); err != nil {
		return nil, err
	}
	if ep.IntroEmbedding, err = s.embed(ctx, source, "intro", parser.Intro(doc.Content, s.chunking.SectionSize)); err != nil {
		return nil, err
	}
	if ep.OutroEmbedding, err = s.embed(ctx, source, "outro", parser.Outro(doc.Content, s.chunking.SectionSize)); err != nil {
		return nil, err
	}

	windows := parser.ChunkText(doc.Content, s.chunking)
	chunks := make([]models.Chunk, 0, len(windows))
	for _, w := range windows {
		vec, err := s.embed(ctx, source, fmt.Sprintf("chunk %d", w.Position), w.Content)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, models.Chunk{
			EpisodeID: source,
			Index:     w.Position,
			Content:   w.Content,
			CharStart: w.Start,
			CharEnd:   w.End,
			Embedding: vec,
		})
	}

	ep.IndexedAt = time.Now()
	if err := s.db.UpsertEpisode(ctx, ep, chunks); err != nil {
		s.metrics.RecordError(metrics.OpIndexEpisode)
		return nil, fmt.Errorf("%w: %s: %w", models.ErrIndexing, source, err)
	}

	duration := time.Since(start)
	s.metrics.RecordTiming(metrics.OpIndexEpisode, duration)
	slog.Info("episode indexed", "episode", source, "title", ep.Title, "chars", charCount, "chunks", len(chunks), "duration_ms", duration.Milliseconds())

	return &IndexResult{
		EpisodeID: source,
		Title:     ep.Title,
		CharCount: charCount,
		Chunks:    len(chunks),
		Duration:  duration,
	}, nil
}

// embed embeds one section and checks its length.
func (s *IndexService) embed(ctx context.Context, source, section, text string) ([]float32, error) {
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		s.metrics.RecordError(metrics.OpIndexEpisode)
		return nil, fmt.Errorf("%w: %s: embed %s: %w", models.ErrIndexing, source, section, err)
	}
	if len(vec) != s.dimension {
		s.metrics.RecordError(metrics.OpIndexEpisode)
		return nil, fmt.Errorf("%w: %s: embed %s: %w: got %d, want %d",
			models.ErrIndexing, source, section, models.ErrDimensionMismatch, len(vec), s.dimension)
	}
	return vec, nil
}

// CollectFiles returns transcript files directly inside dirPath, sorted by name.
func (s *IndexService) CollectFiles(dirPath string) ([]string, error) {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return nil, fmt.Errorf("scan directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if slices.Contains(transcriptExts, strings.ToLower(filepath.Ext(e.Name()))) {
			files = append(files, filepath.Join(dirPath, e.Name()))
		}
	}
	slices.Sort(files)
	return files, nil
}

// IndexDirectory indexes every transcript in dirPath sequentially.
func (s *IndexService) IndexDirectory(ctx context.Context, dirPath string, opts IndexOptions) (*DirectoryResult, error) {
	files, err := s.CollectFiles(dirPath)
	if err != nil {
		return nil, err
	}
	return s.IndexFiles(ctx, files, opts)
}

// IndexFiles indexes files in order. A failing file is recorded and the run
// continues, except for fatal provider errors which stop it.
func (s *IndexService) IndexFiles(ctx context.Context, files []string, opts IndexOptions) (*DirectoryResult, error) {
	slog.Info("starting indexing run", "files", len(files), "force", opts.Force, "prune", opts.Prune)
	result := &DirectoryResult{}

	for i, file := range files {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		res, err := s.IndexFile(ctx, file, opts)
		result.FilesProcessed++
		switch {
		case err != nil:
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", filepath.Base(file), err))
			slog.Warn("indexing failed", "file", filepath.Base(file), "error", err)
		case res.Skipped:
			result.Skipped++
		default:
			result.Indexed++
			result.ChunksCreated += res.Chunks
		}

		if opts.Progress != nil {
			opts.Progress(i+1, len(files), filepath.Base(file))
		}

		if errors.Is(err, llm.ErrFatalAPI) {
			result.Aborted = true
			slog.Error("fatal provider error, stopping run", "error", err)
			break
		}
	}

	if opts.Prune && !result.Aborted {
		pruned, err := s.prune(ctx, files)
		if err != nil {
			return result, err
		}
		result.Pruned = pruned
	}

	slog.Info("indexing run complete", "indexed", result.Indexed, "skipped", result.Skipped,
		"pruned", result.Pruned, "chunks", result.ChunksCreated, "errors", len(result.Errors))
	return result, nil
}

// prune deletes stored episodes with no matching file.
func (s *IndexService) prune(ctx context.Context, files []string) (int, error) {
	keep := make(map[string]bool, len(files))
	for _, f := range files {
		keep[filepath.Base(f)] = true
	}

	ids, err := s.db.ListEpisodeIDs(ctx)
	if err != nil {
		return 0, err
	}

	pruned := 0
	for _, id := range ids {
		if keep[id] {
			continue
		}
		if err := s.db.DeleteEpisode(ctx, id); err != nil {
			return pruned, err
		}
		slog.Info("episode pruned", "episode", id)
		pruned++
	}
	return pruned, nil
}
