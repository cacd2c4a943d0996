// Package scoring ranks episodes against a query embedding.
//
// Cosine similarity is the only similarity primitive. An episode's
// confidence is a weighted sum of its title, intro, best chunk and
// outro similarities.
package scoring

import (
	"fmt"
	"math"

	"github.com/raphaelgruber/podsearch/internal/models"
)

// Cosine returns the cosine similarity of a and b.
// A zero-norm vector yields 0. Vectors of different length are an error.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", models.ErrDimensionMismatch, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// MaxCosine returns the highest similarity between query and any of vectors,
// along with its index. An empty set yields (0, -1).
func MaxCosine(query []float32, vectors [][]float32) (float64, int, error) {
	best, bestIdx := 0.0, -1
	for i, v := range vectors {
		sim, err := Cosine(query, v)
		if err != nil {
			return 0, -1, fmt.Errorf("vector %d: %w", i, err)
		}
		if bestIdx == -1 || sim > best {
			best, bestIdx = sim, i
		}
	}
	if bestIdx == -1 {
		return 0, -1, nil
	}
	return best, bestIdx, nil
}
