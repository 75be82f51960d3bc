// Package cached wraps another memory.Embedder with an in-process
// cache, so repeated query texts (status checks, recurring phrasings)
// skip the embedding round trip.
package cached

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"

	"github.com/blockvoltcr7/mem0-ai-api/memory"
)

// Config holds cache sizing.
type Config struct {
	// MaxBytes caps the memory spent on cached vectors.
	MaxBytes int64

	// NumCounters sizes the admission frequency sketch. Roughly ten
	// times the expected number of cached entries.
	NumCounters int64
}

// DefaultConfig provides sensible defaults: ~64MB of vectors.
var DefaultConfig = Config{
	MaxBytes:    64 << 20,
	NumCounters: 100_000,
}

// CachedEmbedder is a memory.Embedder decorator with a ristretto cache.
type CachedEmbedder struct {
	inner memory.Embedder
	cache *ristretto.Cache
}

// New wraps inner with a cache.
func New(inner memory.Embedder, cfg Config) (*CachedEmbedder, error) {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultConfig.MaxBytes
	}
	if cfg.NumCounters <= 0 {
		cfg.NumCounters = DefaultConfig.NumCounters
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}

	return &CachedEmbedder{inner: inner, cache: cache}, nil
}

// Embed returns the cached vector for the text, or embeds and caches it.
func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if val, ok := e.cache.Get(text); ok {
		if cached, ok := val.([]float32); ok {
			out := make([]float32, len(cached))
			copy(out, cached)
			return out, nil
		}
	}

	embedding, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	stored := make([]float32, len(embedding))
	copy(stored, embedding)
	e.cache.Set(text, stored, int64(len(stored)*4))

	return embedding, nil
}

// Dimensions returns the inner embedder's size.
func (e *CachedEmbedder) Dimensions() int {
	return e.inner.Dimensions()
}

// Wait blocks until pending cache writes are applied. Ristretto admits
// entries asynchronously; tests use this for deterministic hits.
func (e *CachedEmbedder) Wait() {
	e.cache.Wait()
}

// Close releases the cache's resources.
func (e *CachedEmbedder) Close() {
	e.cache.Close()
}
