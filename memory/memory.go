package memory

import (
	"context"
	"errors"
)

// ErrOwnerRequired is returned by every Store operation invoked without
// an owner id. The check runs before any backend call.
var ErrOwnerRequired = errors.New("owner id is required")

// Hit is a single scored search result.
type Hit struct {
	Record     *Record
	Similarity float64
}

// Store is the vector+metadata storage backend interface.
// Implementations: MemStore (tests/examples), ChromemStore (embedded),
// SQLiteStore (durable single file), QdrantStore (remote).
//
// Every operation takes the owner id as an explicit parameter. That is
// the isolation boundary: a Store never matches records across owners,
// and a Filter cannot re-scope a call because owner is not a filter key.
type Store interface {
	// Upsert persists a record and returns its id. The record's
	// embedding must be set; Upsert never computes embeddings.
	Upsert(ctx context.Context, rec *Record) (string, error)

	// Search returns up to k hits for the owner ordered by similarity,
	// highest first, restricted to records matching the filter.
	Search(ctx context.Context, ownerID string, embedding []float32, filter Filter, k int) ([]Hit, error)

	// DeleteAll removes every record for the owner and returns how many
	// were deleted. This is the only destructive operation.
	DeleteAll(ctx context.Context, ownerID string) (int, error)
}

// Embedder converts text to vector embeddings. One embedder per
// deployment; records from different embedding spaces never share a
// store.
// Implementations: MockEmbedder (testing), OpenAIEmbedder,
// OllamaEmbedder, ONNXEmbedder (local, build tag onnx), CachedEmbedder
// (ristretto decorator over any of the above).
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}
