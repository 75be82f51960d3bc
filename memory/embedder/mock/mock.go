// Package mock provides a deterministic memory.Embedder for tests and
// examples. The same text always maps to the same unit vector, so
// similarity assertions are reproducible without a model server.
package mock

import (
	"context"
	"hash/fnv"
	"math"
)

const defaultDimensions = 384

// MockEmbedder generates embeddings from a hash of the text.
type MockEmbedder struct {
	dimensions int
}

// New creates a mock embedder with 384 dimensions, matching the shape
// of all-MiniLM-L6-v2 output.
func New() *MockEmbedder {
	return NewWithDimensions(defaultDimensions)
}

// NewWithDimensions creates a mock embedder producing vectors of the
// given size.
func NewWithDimensions(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = defaultDimensions
	}
	return &MockEmbedder{dimensions: dimensions}
}

// Embed derives a deterministic unit vector from the text hash.
func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	h.Write([]byte(text))

	// The hash seeds an LCG; each step yields one element in [-1, 1].
	seed := h.Sum64()
	embedding := make([]float32, m.dimensions)
	for i := range embedding {
		seed = seed*6364136223846793005 + 1442695040888963407
		embedding[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}

	return normalize(embedding), nil
}

// Dimensions returns the embedding size.
func (m *MockEmbedder) Dimensions() int {
	return m.dimensions
}

// normalize converts the vector to unit length.
func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}

	norm = float32(math.Sqrt(float64(norm)))
	normalized := make([]float32, len(vec))
	for i, v := range vec {
		normalized[i] = v / norm
	}
	return normalized
}
