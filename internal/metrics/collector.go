// Package metrics keeps in-memory timing, error and token statistics for
// the provider calls and the search, chat and indexing paths.
package metrics

import (
	"sync"
	"time"
)

// Operation names for the collector.
const (
	OpEmbedding    = "embedding"
	OpLLMGenerate  = "llm_generate"
	OpLLMStream    = "llm_stream"
	OpSearch       = "search"
	OpChat         = "chat"
	OpIndexEpisode = "index_episode"
)

// span tracks min/max/total of a series of observations.
type span[T int64 | time.Duration] struct {
	total, min, max T
	n               int64
}

func (s *span[T]) add(v T) {
	if s.n == 0 || v < s.min {
		s.min = v
	}
	if v > s.max {
		s.max = v
	}
	s.total += v
	s.n++
}

type opStats struct {
	errors    int64
	latency   span[time.Duration]
	inTokens  span[int64]
	outTokens span[int64]
}

// OperationSnapshot is the exported view of one operation's statistics.
type OperationSnapshot struct {
	Count       int64   `json:"count"`
	Errors      int64   `json:"errors,omitempty"`
	TotalTimeMs int64   `json:"total_time_ms"`
	AvgTimeMs   float64 `json:"avg_time_ms"`
	MinTimeMs   int64   `json:"min_time_ms"`
	MaxTimeMs   int64   `json:"max_time_ms"`

	// Token stats, nil for operations that never reported usage
	TotalInputTokens  *int64   `json:"total_input_tokens,omitempty"`
	TotalOutputTokens *int64   `json:"total_output_tokens,omitempty"`
	AvgInputTokens    *float64 `json:"avg_input_tokens,omitempty"`
	AvgOutputTokens   *float64 `json:"avg_output_tokens,omitempty"`
	MinInputTokens    *int64   `json:"min_input_tokens,omitempty"`
	MaxInputTokens    *int64   `json:"max_input_tokens,omitempty"`
	MinOutputTokens   *int64   `json:"min_output_tokens,omitempty"`
	MaxOutputTokens   *int64   `json:"max_output_tokens,omitempty"`
}

// Snapshot is the full set of runtime statistics at a point in time.
type Snapshot struct {
	UptimeSeconds float64            `json:"uptime_seconds"`
	Embedding     *OperationSnapshot `json:"embedding,omitempty"`
	LLMGenerate   *OperationSnapshot `json:"llm_generate,omitempty"`
	LLMStream     *OperationSnapshot `json:"llm_stream,omitempty"`
	Search        *OperationSnapshot `json:"search,omitempty"`
	Chat          *OperationSnapshot `json:"chat,omitempty"`
	IndexEpisode  *OperationSnapshot `json:"index_episode,omitempty"`
}

// Collector aggregates runtime statistics. Safe for concurrent use.
// A nil *Collector discards everything.
type Collector struct {
	mu      sync.RWMutex
	started time.Time
	ops     map[string]*opStats
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{
		started: time.Now(),
		ops:     make(map[string]*opStats),
	}
}

// op returns the stats for name. Caller must hold the write lock.
func (c *Collector) op(name string) *opStats {
	s, ok := c.ops[name]
	if !ok {
		s = &opStats{}
		c.ops[name] = s
	}
	return s
}

// RecordTiming records one successful call of op.
func (c *Collector) RecordTiming(op string, d time.Duration) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.op(op).latency.add(d)
}

// RecordLLMUsage records one successful generation call with its token usage.
func (c *Collector) RecordLLMUsage(op string, d time.Duration, inputTokens, outputTokens int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.op(op)
	s.latency.add(d)
	s.inTokens.add(inputTokens)
	s.outTokens.add(outputTokens)
}

// RecordError counts a failed call of op.
func (c *Collector) RecordError(op string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.op(op).errors++
}

func (s *opStats) snapshot() *OperationSnapshot {
	if s == nil || (s.latency.n == 0 && s.errors == 0) {
		return nil
	}

	snap := &OperationSnapshot{
		Count:       s.latency.n,
		Errors:      s.errors,
		TotalTimeMs: s.latency.total.Milliseconds(),
		MinTimeMs:   s.latency.min.Milliseconds(),
		MaxTimeMs:   s.latency.max.Milliseconds(),
	}
	if s.latency.n > 0 {
		snap.AvgTimeMs = float64(s.latency.total.Milliseconds()) / float64(s.latency.n)
	}

	if s.inTokens.total > 0 || s.outTokens.total > 0 {
		in, out := s.inTokens, s.outTokens
		avgIn := float64(in.total) / float64(in.n)
		avgOut := float64(out.total) / float64(out.n)
		snap.TotalInputTokens = &in.total
		snap.TotalOutputTokens = &out.total
		snap.AvgInputTokens = &avgIn
		snap.AvgOutputTokens = &avgOut
		snap.MinInputTokens = &in.min
		snap.MaxInputTokens = &in.max
		snap.MinOutputTokens = &out.min
		snap.MaxOutputTokens = &out.max
	}
	return snap
}

// Snapshot returns a copy of all statistics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		UptimeSeconds: time.Since(c.started).Seconds(),
		Embedding:     c.ops[OpEmbedding].snapshot(),
		LLMGenerate:   c.ops[OpLLMGenerate].snapshot(),
		LLMStream:     c.ops[OpLLMStream].snapshot(),
		Search:        c.ops[OpSearch].snapshot(),
		Chat:          c.ops[OpChat].snapshot(),
		IndexEpisode:  c.ops[OpIndexEpisode].snapshot(),
	}
}
