// Package memstore provides an in-memory Store implementation.
//
// It keeps every record in process memory with no persistence, which
// makes it the right backend for tests, examples, and single-run
// experiments. Owner scoping, metadata filtering, and similarity
// ranking behave exactly as they do in the durable backends.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/blockvoltcr7/mem0-ai-api/memory"
)

// MemStore is an in-memory memory.Store. Safe for concurrent use.
type MemStore struct {
	mu     sync.RWMutex
	owners map[string][]*memory.Record
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		owners: make(map[string][]*memory.Record),
	}
}

// Upsert stores a record under its owner, replacing any record with the
// same ID. The record is copied on the way in so later mutations by the
// caller cannot change stored state.
func (s *MemStore) Upsert(ctx context.Context, rec *memory.Record) (string, error) {
	if rec.OwnerID == "" {
		return "", memory.ErrOwnerRequired
	}

	stored := rec.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.owners[rec.OwnerID]
	for i, existing := range records {
		if existing.ID == stored.ID {
			records[i] = stored
			return stored.ID, nil
		}
	}
	s.owners[rec.OwnerID] = append(records, stored)
	return stored.ID, nil
}

// Search scans the owner's records, applies the metadata filter, and
// returns up to k hits ranked by cosine similarity to the query
// embedding. Records belonging to other owners are never considered.
func (s *MemStore) Search(ctx context.Context, ownerID string, embedding []float32, filter memory.Filter, k int) ([]memory.Hit, error) {
	if ownerID == "" {
		return nil, memory.ErrOwnerRequired
	}
	if k <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var hits []memory.Hit
	for _, rec := range s.owners[ownerID] {
		if !filter.MatchesRecord(rec) {
			continue
		}
		hits = append(hits, memory.Hit{
			Record:     rec.Clone(),
			Similarity: memory.CosineSimilarity(embedding, rec.Embedding),
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Similarity > hits[j].Similarity
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// DeleteAll removes every record belonging to the owner and returns
// how many were removed.
func (s *MemStore) DeleteAll(ctx context.Context, ownerID string) (int, error) {
	if ownerID == "" {
		return 0, memory.ErrOwnerRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.owners[ownerID])
	delete(s.owners, ownerID)
	return n, nil
}
