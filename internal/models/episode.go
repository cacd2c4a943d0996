// Package models defines data structures for the podcast transcript index.
package models

import "time"

// Episode is one indexed podcast transcript.
// ID is the stable source key (the transcript filename).
type Episode struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	CharCount   int       `json:"char_count"`
	ContentHash string    `json:"content_hash"`
	IndexedAt   time.Time `json:"indexed_at"`

	// Section embeddings. The full content has no single embedding.
	TitleEmbedding []float32 `json:"-"`
	IntroEmbedding []float32 `json:"-"`
	OutroEmbedding []float32 `json:"-"`
}

// EpisodeSummary is the listing view of an episode without content or vectors.
type EpisodeSummary struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	CharCount  int       `json:"char_count"`
	ChunkCount int       `json:"chunk_count"`
	IndexedAt  time.Time `json:"indexed_at"`
}

// StoreStats aggregates counts across the transcript store.
type StoreStats struct {
	Episodes    int        `json:"episodes"`
	Chunks      int        `json:"chunks"`
	TotalChars  int64      `json:"total_chars"`
	Sessions    int        `json:"sessions"`
	Messages    int        `json:"messages"`
	LastIndexed *time.Time `json:"last_indexed,omitempty"`
}
