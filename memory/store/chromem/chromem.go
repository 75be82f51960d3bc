// Package chromem provides a memory.Store backed by chromem-go, a pure
// Go embedded vector database. Records live in process memory, so this
// backend suits single-instance deployments that want real vector
// search without running a separate database.
package chromem

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	chromem "github.com/philippgille/chromem-go"

	"github.com/blockvoltcr7/mem0-ai-api/memory"
)

// Reserved document metadata keys used for rehydration. They sit next
// to the record's own metadata keys in the chromem document.
const (
	docKeyOwnerID   = "owner_id"
	docKeyCreatedAt = "created_at"
)

// ChromemStore wraps chromem-go for vector storage. Each owner gets a
// dedicated collection, so a query can never cross owner boundaries.
type ChromemStore struct {
	db          *chromem.DB
	mu          sync.RWMutex
	collections map[string]*chromem.Collection
	counts      map[string]int
}

// New creates an empty chromem-based store.
func New() (*ChromemStore, error) {
	return &ChromemStore{
		db:          chromem.NewDB(),
		collections: make(map[string]*chromem.Collection),
		counts:      make(map[string]int),
	}, nil
}

// getOrCreateCollection returns the collection for an owner, creating
// it on first use.
func (s *ChromemStore) getOrCreateCollection(ownerID string) (*chromem.Collection, error) {
	s.mu.RLock()
	col, exists := s.collections[ownerID]
	s.mu.RUnlock()

	if exists {
		return col, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check after acquiring write lock
	if col, exists := s.collections[ownerID]; exists {
		return col, nil
	}

	col, err := s.db.CreateCollection(
		fmt.Sprintf("owner_%s", ownerID),
		nil, // No custom embedding func (we provide embeddings)
		nil, // No custom distance func (use default cosine)
	)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	s.collections[ownerID] = col
	return col, nil
}

// Upsert stores a record in its owner's collection.
func (s *ChromemStore) Upsert(ctx context.Context, rec *memory.Record) (string, error) {
	if rec.OwnerID == "" {
		return "", memory.ErrOwnerRequired
	}

	col, err := s.getOrCreateCollection(rec.OwnerID)
	if err != nil {
		return "", err
	}

	doc := chromem.Document{
		ID:        rec.ID,
		Content:   rec.Content,
		Embedding: rec.Embedding,
		Metadata:  documentMetadata(rec),
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return "", fmt.Errorf("add document: %w", err)
	}

	s.mu.Lock()
	s.counts[rec.OwnerID]++
	s.mu.Unlock()

	log.Debug("stored record", "store", "chromem", "id", rec.ID, "owner", rec.OwnerID)
	return rec.ID, nil
}

// Search queries the owner's collection by embedding, applies the
// metadata filter, and returns up to k hits ranked by similarity.
//
// chromem's where clause only supports single-value equality, so the
// filter (value sets, tag intersection) is applied here after an
// over-fetched query.
func (s *ChromemStore) Search(ctx context.Context, ownerID string, embedding []float32, filter memory.Filter, k int) ([]memory.Hit, error) {
	if ownerID == "" {
		return nil, memory.ErrOwnerRequired
	}
	if k <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	col, exists := s.collections[ownerID]
	total := s.counts[ownerID]
	s.mu.RUnlock()

	if !exists || total == 0 {
		return nil, nil
	}

	// Fetch the whole collection when a filter needs post-matching;
	// otherwise k documents suffice. Collections are per owner, so
	// this stays small.
	fetch := k
	if len(filter) > 0 || fetch > total {
		fetch = total
	}

	// chromem requires nResults <= collection size. The recorded count
	// can run ahead when a document is re-added under the same ID, so
	// retry with smaller limits if necessary.
	var results []chromem.Result
	for limit := fetch; limit >= 1; limit-- {
		var err error
		results, err = col.QueryEmbedding(ctx, embedding, limit, nil, nil)
		if err == nil {
			break
		}
		if isInsufficientDocsError(err) {
			if limit == 1 {
				return nil, nil
			}
			continue
		}
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	var hits []memory.Hit
	for i, result := range results {
		rec, err := recordFromResult(ownerID, result)
		if err != nil {
			log.Warn("skipping undecodable document", "store", "chromem", "index", i, "error", err)
			continue
		}
		if !filter.MatchesRecord(rec) {
			continue
		}
		hits = append(hits, memory.Hit{Record: rec, Similarity: float64(result.Similarity)})
		if len(hits) == k {
			break
		}
	}
	return hits, nil
}

// DeleteAll drops the owner's collection and returns how many records
// it held.
func (s *ChromemStore) DeleteAll(ctx context.Context, ownerID string) (int, error) {
	if ownerID == "" {
		return 0, memory.ErrOwnerRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists := s.collections[ownerID]
	if !exists {
		return 0, nil
	}

	if err := s.db.DeleteCollection(fmt.Sprintf("owner_%s", ownerID)); err != nil {
		return 0, fmt.Errorf("delete collection: %w", err)
	}

	n := s.counts[ownerID]
	delete(s.collections, ownerID)
	delete(s.counts, ownerID)

	log.Debug("purged owner", "store", "chromem", "owner", ownerID, "records", n)
	return n, nil
}

// documentMetadata flattens a record into chromem document metadata:
// the encoded record metadata plus the fields needed to rebuild the
// record on the way out.
func documentMetadata(rec *memory.Record) map[string]string {
	meta := rec.Metadata.Encode()
	meta[docKeyOwnerID] = rec.OwnerID
	meta[docKeyCreatedAt] = rec.CreatedAt.UTC().Format(time.RFC3339)
	return meta
}

// recordFromResult rebuilds a record from a chromem query result.
func recordFromResult(ownerID string, result chromem.Result) (*memory.Record, error) {
	if owner := result.Metadata[docKeyOwnerID]; owner != ownerID {
		return nil, fmt.Errorf("document %s belongs to owner %q, queried %q", result.ID, owner, ownerID)
	}

	createdAt, err := time.Parse(time.RFC3339, result.Metadata[docKeyCreatedAt])
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	meta := memory.DecodeMetadata(result.Metadata)
	return &memory.Record{
		ID:        result.ID,
		OwnerID:   ownerID,
		Content:   result.Content,
		Embedding: result.Embedding,
		Metadata:  meta,
		CreatedAt: createdAt,
		SessionID: meta.SessionID,
	}, nil
}

// isInsufficientDocsError checks if error is due to insufficient documents.
func isInsufficientDocsError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "nResults must be") || strings.Contains(msg, "number of documents")
}
