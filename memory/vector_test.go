package memory_test

import (
	"math"
	"testing"

	"github.com/blockvoltcr7/mem0-ai-api/memory"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"length mismatch", []float32{1, 2}, []float32{1, 2, 3}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 2}, 0},
		{"empty", nil, nil, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := memory.CosineSimilarity(tc.a, tc.b)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("CosineSimilarity = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestEmbeddingBytesRoundTrip(t *testing.T) {
	original := []float32{0.1, -0.5, 3.25, 0, -1e6}
	decoded := memory.BytesToEmbedding(memory.EmbeddingToBytes(original))
	if len(decoded) != len(original) {
		t.Fatalf("decoded %d values, want %d", len(decoded), len(original))
	}
	for i := range original {
		if decoded[i] != original[i] {
			t.Errorf("value %d: got %v, want %v", i, decoded[i], original[i])
		}
	}
}

func TestBytesToEmbeddingRejectsRaggedInput(t *testing.T) {
	if got := memory.BytesToEmbedding([]byte{1, 2, 3}); got != nil {
		t.Errorf("expected nil for a 3-byte blob, got %v", got)
	}
}
