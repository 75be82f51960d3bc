package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/blockvoltcr7/mem0-ai-api/memory"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "memories.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestRecord(t *testing.T, owner, content string, embedding []float32, safety bool) *memory.Record {
	t.Helper()
	createdAt := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	meta := memory.Metadata{
		Category:        memory.CategoryDosingProtocol,
		RecencyBucket:   memory.RecencyBucket(createdAt),
		SafetyCritical:  safety,
		SourceAuthority: memory.AuthorityUserReported,
		SessionID:       "s1",
		Tags:            []string{"bpc-157", "dosing"},
		Confidence:      0.9,
	}
	rec, err := memory.NewRecord(owner, content, embedding, meta, createdAt)
	if err != nil {
		t.Fatalf("Failed to create record: %v", err)
	}
	return rec
}

func TestUpsertAndSearchRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := newTestRecord(t, "alice", "morning dosing works best", []float32{0.5, -0.25, 1}, true)
	if _, err := store.Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	hits, err := store.Search(ctx, "alice", []float32{0.5, -0.25, 1}, nil, 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("got %d hits, want 1", len(hits))
	}

	got := hits[0].Record
	if got.ID != rec.ID {
		t.Errorf("id = %q, want %q", got.ID, rec.ID)
	}
	if got.Content != rec.Content {
		t.Errorf("content = %q", got.Content)
	}
	if got.Metadata.Category != memory.CategoryDosingProtocol {
		t.Errorf("category = %q", got.Metadata.Category)
	}
	if !got.Metadata.SafetyCritical {
		t.Error("safety-critical flag lost in round trip")
	}
	if len(got.Metadata.Tags) != 2 {
		t.Errorf("tags = %v", got.Metadata.Tags)
	}
	if got.SessionID != "s1" {
		t.Errorf("session id = %q", got.SessionID)
	}
	if got.CreatedAt.Unix() != rec.CreatedAt.Unix() {
		t.Errorf("created at = %v, want %v", got.CreatedAt, rec.CreatedAt)
	}
	if len(got.Embedding) != 3 || got.Embedding[2] != 1 {
		t.Errorf("embedding = %v", got.Embedding)
	}
	if hits[0].Similarity < 0.999 {
		t.Errorf("identical embedding should score ~1, got %v", hits[0].Similarity)
	}
}

func TestUpsertReplacesSameID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := newTestRecord(t, "alice", "original", []float32{1, 0, 0}, false)
	if _, err := store.Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	updated := rec.Clone()
	updated.Content = "replaced"
	if _, err := store.Upsert(ctx, updated); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	hits, err := store.Search(ctx, "alice", []float32{1, 0, 0}, nil, 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("got %d hits, want 1 after replacing", len(hits))
	}
	if hits[0].Record.Content != "replaced" {
		t.Errorf("content = %q", hits[0].Record.Content)
	}
}

func TestOwnerIsolation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Upsert(ctx, newTestRecord(t, "alice", "alice's record", []float32{1, 0, 0}, false)); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	hits, err := store.Search(ctx, "bob", []float32{1, 0, 0}, nil, 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("bob can see alice's records: %d hits", len(hits))
	}
}

func TestSearchAppliesFilterAndRanking(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	near := newTestRecord(t, "alice", "near safety", []float32{1, 0, 0}, true)
	farSafety := newTestRecord(t, "alice", "far safety", []float32{0, 1, 0}, true)
	nearPlain := newTestRecord(t, "alice", "near plain", []float32{1, 0.1, 0}, false)
	for _, rec := range []*memory.Record{near, farSafety, nearPlain} {
		if _, err := store.Upsert(ctx, rec); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	filter := memory.Filter{memory.KeySafetyCritical: {"true"}}
	hits, err := store.Search(ctx, "alice", []float32{1, 0, 0}, filter, 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	if hits[0].Record.Content != "near safety" {
		t.Errorf("best safety match should rank first, got %q", hits[0].Record.Content)
	}
	for _, h := range hits {
		if !h.Record.Metadata.SafetyCritical {
			t.Errorf("non-safety record %q passed the filter", h.Record.Content)
		}
	}
}

func TestSearchTrimsToK(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		if _, err := store.Upsert(ctx, newTestRecord(t, "alice", "note", []float32{1, 0, 0}, false)); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	hits, err := store.Search(ctx, "alice", []float32{1, 0, 0}, nil, 3)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 3 {
		t.Errorf("got %d hits, want 3", len(hits))
	}
}

func TestDeleteAll(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, err := store.Upsert(ctx, newTestRecord(t, "alice", "note", []float32{1, 0, 0}, false)); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}
	if _, err := store.Upsert(ctx, newTestRecord(t, "bob", "bob's note", []float32{1, 0, 0}, false)); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	n, err := store.DeleteAll(ctx, "alice")
	if err != nil {
		t.Fatalf("DeleteAll failed: %v", err)
	}
	if n != 4 {
		t.Errorf("deleted %d rows, want 4", n)
	}

	hits, err := store.Search(ctx, "alice", []float32{1, 0, 0}, nil, 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("alice still has %d records after purge", len(hits))
	}

	bobHits, err := store.Search(ctx, "bob", []float32{1, 0, 0}, nil, 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(bobHits) != 1 {
		t.Errorf("purging alice disturbed bob: %d hits", len(bobHits))
	}
}

func TestReopenKeepsRecords(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "memories.db")
	ctx := context.Background()

	store, err := Open(path)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	rec := newTestRecord(t, "alice", "survives restart", []float32{1, 0, 0}, false)
	if _, err := store.Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	defer reopened.Close()

	hits, err := reopened.Search(ctx, "alice", []float32{1, 0, 0}, nil, 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 1 || hits[0].Record.Content != "survives restart" {
		t.Errorf("record did not survive reopen: %v hits", len(hits))
	}
}
