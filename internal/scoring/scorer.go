package scoring

import (
	"fmt"
	"math"
)

// weightTolerance bounds floating point drift when checking the weight sum.
const weightTolerance = 1e-9

// Weights are the per-section contributions to confidence. They sum to 1.
type Weights struct {
	Title  float64 `json:"title"`
	Intro  float64 `json:"intro"`
	Chunks float64 `json:"content"`
	Outro  float64 `json:"outro"`
}

// DefaultWeights favor the title, then the intro.
func DefaultWeights() Weights {
	return Weights{Title: 0.60, Intro: 0.20, Chunks: 0.15, Outro: 0.05}
}

// ContentWeights shift emphasis to the body for queries that match no title.
func ContentWeights() Weights {
	return Weights{Title: 0.10, Intro: 0.30, Chunks: 0.50, Outro: 0.10}
}

// Validate checks that every weight is non-negative and the sum is 1.
func (w Weights) Validate() error {
	for name, v := range map[string]float64{"title": w.Title, "intro": w.Intro, "content": w.Chunks, "outro": w.Outro} {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("weight %s must be non-negative, got %v", name, v)
		}
	}
	if sum := w.Sum(); math.Abs(sum-1) > weightTolerance {
		return fmt.Errorf("weights must sum to 1, got %v", sum)
	}
	return nil
}

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	return w.Title + w.Intro + w.Chunks + w.Outro
}

// Combine computes confidence from the sub-scores of b.
func (w Weights) Combine(b Breakdown) float64 {
	return w.Title*b.Title + w.Intro*b.Intro + w.Chunks*b.Chunks + w.Outro*b.Outro
}

// EpisodeVectors holds the stored embeddings of one episode.
// An empty section vector contributes a sub-score of 0.
type EpisodeVectors struct {
	Title  []float32
	Intro  []float32
	Outro  []float32
	Chunks [][]float32
}

// Breakdown holds the sub-scores and the resulting confidence for one episode.
type Breakdown struct {
	Title      float64 `json:"title"`
	Intro      float64 `json:"intro"`
	Chunks     float64 `json:"content"`
	Outro      float64 `json:"outro"`
	Confidence float64 `json:"confidence"`
	BestChunk  int     `json:"best_chunk"`
}

// Scorer computes weighted confidence for episodes. It is pure and safe for concurrent use.
type Scorer struct {
	weights Weights
}

// NewScorer creates a scorer after validating weights.
func NewScorer(w Weights) (*Scorer, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{weights: w}, nil
}

// Weights returns the configured weights.
func (s *Scorer) Weights() Weights {
	return s.weights
}

// Score compares query against every section of ev.
// Any length mismatch between query and a stored vector returns ErrDimensionMismatch.
func (s *Scorer) Score(query []float32, ev EpisodeVectors) (Breakdown, error) {
	var b Breakdown
	var err error

	if b.Title, err = sectionScore(query, ev.Title); err != nil {
		return Breakdown{}, fmt.Errorf("title: %w", err)
	}
	if b.Intro, err = sectionScore(query, ev.Intro); err != nil {
		return Breakdown{}, fmt.Errorf("intro: %w", err)
	}
	if b.Outro, err = sectionScore(query, ev.Outro); err != nil {
		return Breakdown{}, fmt.Errorf("outro: %w", err)
	}
	if b.Chunks, b.BestChunk, err = MaxCosine(query, ev.Chunks); err != nil {
		return Breakdown{}, fmt.Errorf("chunks: %w", err)
	}

	b.Confidence = s.weights.Combine(b)
	return b, nil
}

func sectionScore(query, section []float32) (float64, error) {
	if len(section) == 0 {
		return 0, nil
	}
	return Cosine(query, section)
}
