// Package testutil provides an in-memory store and deterministic provider
// stubs for tests.
package testutil

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/raphaelgruber/podsearch/internal/db"
	"github.com/raphaelgruber/podsearch/internal/models"
)

// OpenTestDB opens an in-memory database with the schema applied.
// It is closed when the test ends.
func OpenTestDB(t testing.TB) *db.Client {
	t.Helper()
	client, err := db.Open(context.Background(), db.MemoryPath, nil)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

// StubEmbedder returns fixed vectors for registered texts and a
// deterministic hash-derived vector for anything else.
type StubEmbedder struct {
	Dim int

	mu      sync.Mutex
	vectors map[string][]float32
	failOn  map[string]error
	failAll error
	calls   []string
}

// NewStubEmbedder creates a stub producing vectors of length dim.
func NewStubEmbedder(dim int) *StubEmbedder {
	return &StubEmbedder{
		Dim:     dim,
		vectors: make(map[string][]float32),
		failOn:  make(map[string]error),
	}
}

// Set registers the vector returned for text.
func (s *StubEmbedder) Set(text string, vec []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors[text] = vec
}

// FailOn makes Embed return err (wrapped as a provider error) for text.
func (s *StubEmbedder) FailOn(text string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failOn[text] = err
}

// FailAll makes every Embed call fail with err. Pass nil to reset.
func (s *StubEmbedder) FailAll(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAll = err
}

// Calls returns the texts embedded so far.
func (s *StubEmbedder) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// Embed implements the embedding capability.
func (s *StubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, text)

	if s.failAll != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrProvider, s.failAll)
	}
	if err, ok := s.failOn[text]; ok {
		return nil, fmt.Errorf("%w: %w", models.ErrProvider, err)
	}
	if v, ok := s.vectors[text]; ok {
		return append([]float32(nil), v...), nil
	}
	return HashVector(text, s.Dim), nil
}

// Dimension returns the configured vector length.
func (s *StubEmbedder) Dimension() int {
	return s.Dim
}

// HashVector derives a unit vector from text.
func HashVector(text string, dim int) []float32 {
	v := make([]float32, dim)
	var norm float64
	for i := range v {
		h := fnv.New32a()
		fmt.Fprintf(h, "%d:%s", i, text)
		x := float64(h.Sum32()%2000)/1000 - 1
		v[i] = float32(x)
		norm += x * x
	}
	if norm == 0 {
		return v
	}
	n := float32(math.Sqrt(norm))
	for i := range v {
		v[i] /= n
	}
	return v
}

// Axis returns a unit vector of length dim whose cosine with Axis(0) is sim.
func Axis(dim int, sim float64) []float32 {
	v := make([]float32, dim)
	v[0] = float32(sim)
	if dim > 1 {
		v[1] = float32(math.Sqrt(math.Max(0, 1-sim*sim)))
	}
	return v
}

// StubGenerator records prompts and returns a canned reply.
type StubGenerator struct {
	Reply string
	Err   error

	mu        sync.Mutex
	Systems   []string
	Prompts   []string
	Histories [][]models.Message
}

// GenerateWithHistory implements the generation capability.
func (g *StubGenerator) GenerateWithHistory(ctx context.Context, system string, history []models.Message, prompt string) (string, error) {
	g.mu.Lock()
	g.Systems = append(g.Systems, system)
	g.Prompts = append(g.Prompts, prompt)
	g.Histories = append(g.Histories, append([]models.Message(nil), history...))
	g.mu.Unlock()

	if g.Err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrProvider, g.Err)
	}
	return g.Reply, nil
}

// StreamWithHistory delivers the reply word by word to onToken.
func (g *StubGenerator) StreamWithHistory(ctx context.Context, system string, history []models.Message, prompt string, onToken func(string) error) (string, error) {
	reply, err := g.GenerateWithHistory(ctx, system, history, prompt)
	if err != nil {
		return "", err
	}
	words := strings.SplitAfter(reply, " ")
	for _, w := range words {
		if err := onToken(w); err != nil {
			return "", err
		}
	}
	return reply, nil
}

// LastPrompt returns the most recent user prompt, empty if none.
func (g *StubGenerator) LastPrompt() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.Prompts) == 0 {
		return ""
	}
	return g.Prompts[len(g.Prompts)-1]
}
