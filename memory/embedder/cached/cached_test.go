package cached

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

// countingEmbedder counts how many times the inner embedder runs.
type countingEmbedder struct {
	calls atomic.Int64
	fail  bool
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls.Add(1)
	if c.fail {
		return nil, errors.New("embedder down")
	}
	return []float32{1, 0, 0}, nil
}

func (c *countingEmbedder) Dimensions() int { return 3 }

func TestEmbedCachesRepeatedText(t *testing.T) {
	inner := &countingEmbedder{}
	e, err := New(inner, Config{})
	if err != nil {
		t.Fatalf("Failed to create cached embedder: %v", err)
	}
	defer e.Close()
	ctx := context.Background()

	if _, err := e.Embed(ctx, "what am i taking"); err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	e.Wait()

	if _, err := e.Embed(ctx, "what am i taking"); err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if got := inner.calls.Load(); got != 1 {
		t.Errorf("inner embedder ran %d times, want 1", got)
	}

	if _, err := e.Embed(ctx, "different text"); err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if got := inner.calls.Load(); got != 2 {
		t.Errorf("inner embedder ran %d times, want 2", got)
	}
}

func TestEmbedDoesNotCacheFailures(t *testing.T) {
	inner := &countingEmbedder{fail: true}
	e, err := New(inner, Config{})
	if err != nil {
		t.Fatalf("Failed to create cached embedder: %v", err)
	}
	defer e.Close()
	ctx := context.Background()

	if _, err := e.Embed(ctx, "text"); err == nil {
		t.Fatal("expected the inner error to surface")
	}
	e.Wait()

	inner.fail = false
	if _, err := e.Embed(ctx, "text"); err != nil {
		t.Fatalf("Embed failed after recovery: %v", err)
	}
	if got := inner.calls.Load(); got != 2 {
		t.Errorf("inner embedder ran %d times, want 2 (failure not cached)", got)
	}
}

func TestCachedVectorIsIsolated(t *testing.T) {
	inner := &countingEmbedder{}
	e, err := New(inner, Config{})
	if err != nil {
		t.Fatalf("Failed to create cached embedder: %v", err)
	}
	defer e.Close()
	ctx := context.Background()

	first, err := e.Embed(ctx, "text")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	e.Wait()
	first[0] = 99

	second, err := e.Embed(ctx, "text")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if second[0] == 99 {
		t.Error("mutating a returned vector leaked into the cache")
	}
}

func TestDimensionsDelegates(t *testing.T) {
	e, err := New(&countingEmbedder{}, Config{})
	if err != nil {
		t.Fatalf("Failed to create cached embedder: %v", err)
	}
	defer e.Close()
	if got := e.Dimensions(); got != 3 {
		t.Errorf("Dimensions = %d, want 3", got)
	}
}
