// Package qdrant provides a memory.Store backed by a remote Qdrant
// instance over its REST API.
//
// All owners share one collection; every point carries an owner_id
// payload field and every query pushes an owner_id match condition
// down to Qdrant, so records from other owners never leave the server.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/blockvoltcr7/mem0-ai-api/memory"
)

// Payload keys that live beside the record's encoded metadata.
const (
	payloadOwnerID   = "owner_id"
	payloadContent   = "content"
	payloadCreatedAt = "created_at"
)

// QdrantStore talks to a Qdrant collection over HTTP.
type QdrantStore struct {
	baseURL    string
	collection string
	dimension  int
	httpClient *http.Client
}

// New creates a store for the given Qdrant endpoint and collection.
// Call EnsureCollection before first use.
func New(baseURL, collection string, dimension int) *QdrantStore {
	return &QdrantStore{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		collection: collection,
		dimension:  dimension,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// EnsureCollection creates the collection if it does not exist yet.
func (s *QdrantStore) EnsureCollection(ctx context.Context) error {
	path := "/collections/" + s.collection

	status, _, err := s.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if status == http.StatusOK {
		return nil
	}

	body := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     s.dimension,
			"distance": "Cosine",
		},
	}
	status, respBody, err := s.do(ctx, http.MethodPut, path, body)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("qdrant PUT %s: status %d: %s", path, status, respBody)
	}

	log.Info("created qdrant collection", "collection", s.collection, "dimension", s.dimension)
	return nil
}

// Ping reports whether the Qdrant instance is reachable.
func (s *QdrantStore) Ping(ctx context.Context) error {
	status, body, err := s.do(ctx, http.MethodGet, "/collections", nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("qdrant GET /collections: status %d: %s", status, body)
	}
	return nil
}

// Upsert writes the record as a point. The write waits for Qdrant to
// apply it, so the record is visible to searches that follow.
func (s *QdrantStore) Upsert(ctx context.Context, rec *memory.Record) (string, error) {
	if rec.OwnerID == "" {
		return "", memory.ErrOwnerRequired
	}
	if s.dimension > 0 && len(rec.Embedding) != s.dimension {
		return "", fmt.Errorf("embedding has %d dimensions, collection expects %d", len(rec.Embedding), s.dimension)
	}

	path := fmt.Sprintf("/collections/%s/points?wait=true", s.collection)
	body := map[string]interface{}{
		"points": []map[string]interface{}{
			{
				"id":      rec.ID,
				"vector":  rec.Embedding,
				"payload": pointPayload(rec),
			},
		},
	}

	status, respBody, err := s.do(ctx, http.MethodPut, path, body)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("qdrant PUT %s: status %d: %s", path, status, respBody)
	}
	return rec.ID, nil
}

// Search queries the collection with the owner condition and the
// metadata filter pushed down to Qdrant.
func (s *QdrantStore) Search(ctx context.Context, ownerID string, embedding []float32, filter memory.Filter, k int) ([]memory.Hit, error) {
	if ownerID == "" {
		return nil, memory.ErrOwnerRequired
	}
	if k <= 0 {
		return nil, nil
	}

	path := fmt.Sprintf("/collections/%s/points/search", s.collection)
	body := map[string]interface{}{
		"vector":       embedding,
		"limit":        k,
		"with_payload": true,
		"filter":       searchFilter(ownerID, filter),
	}

	status, respBody, err := s.do(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("qdrant POST %s: status %d: %s", path, status, respBody)
	}

	var parsed struct {
		Result []struct {
			ID      string                 `json:"id"`
			Score   float64                `json:"score"`
			Payload map[string]interface{} `json:"payload"`
		} `json:"result"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	var hits []memory.Hit
	for _, point := range parsed.Result {
		rec, err := recordFromPayload(point.ID, point.Payload)
		if err != nil {
			log.Warn("skipping undecodable point", "store", "qdrant", "id", point.ID, "error", err)
			continue
		}
		hits = append(hits, memory.Hit{Record: rec, Similarity: point.Score})
	}
	return hits, nil
}

// DeleteAll removes every point belonging to the owner. The count is
// taken first with an exact filter so the caller learns how many
// records the purge removed.
func (s *QdrantStore) DeleteAll(ctx context.Context, ownerID string) (int, error) {
	if ownerID == "" {
		return 0, memory.ErrOwnerRequired
	}

	ownerFilter := searchFilter(ownerID, nil)

	countPath := fmt.Sprintf("/collections/%s/points/count", s.collection)
	status, respBody, err := s.do(ctx, http.MethodPost, countPath, map[string]interface{}{
		"filter": ownerFilter,
		"exact":  true,
	})
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK {
		return 0, fmt.Errorf("qdrant POST %s: status %d: %s", countPath, status, respBody)
	}

	var counted struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if err := json.Unmarshal(respBody, &counted); err != nil {
		return 0, fmt.Errorf("decode count response: %w", err)
	}
	if counted.Result.Count == 0 {
		return 0, nil
	}

	deletePath := fmt.Sprintf("/collections/%s/points/delete?wait=true", s.collection)
	status, respBody, err = s.do(ctx, http.MethodPost, deletePath, map[string]interface{}{
		"filter": ownerFilter,
	})
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK {
		return 0, fmt.Errorf("qdrant POST %s: status %d: %s", deletePath, status, respBody)
	}

	log.Debug("purged owner", "store", "qdrant", "owner", ownerID, "records", counted.Result.Count)
	return counted.Result.Count, nil
}

// do sends one JSON request and returns the status code and body.
func (s *QdrantStore) do(ctx context.Context, method, path string, body interface{}) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("qdrant %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

// searchFilter builds the Qdrant filter for an owner plus an optional
// metadata filter. Each metadata key becomes a must condition matching
// any accepted value; tags stored as arrays intersect the same way.
func searchFilter(ownerID string, filter memory.Filter) map[string]interface{} {
	must := []map[string]interface{}{
		{"key": payloadOwnerID, "match": map[string]interface{}{"value": ownerID}},
	}
	for key, values := range filter {
		if len(values) == 0 {
			continue
		}
		must = append(must, map[string]interface{}{
			"key":   key,
			"match": map[string]interface{}{"any": values},
		})
	}
	return map[string]interface{}{"must": must}
}

// pointPayload flattens a record into a Qdrant payload. Metadata values
// stay strings so filter conditions compare exactly; tags become a
// keyword array for native any-matching.
func pointPayload(rec *memory.Record) map[string]interface{} {
	payload := map[string]interface{}{
		payloadOwnerID:   rec.OwnerID,
		payloadContent:   rec.Content,
		payloadCreatedAt: rec.CreatedAt.UTC().Format(time.RFC3339),
	}
	for k, v := range rec.Metadata.Encode() {
		if k == memory.KeyTags {
			payload[k] = rec.Metadata.Tags
			continue
		}
		payload[k] = v
	}
	return payload
}

// recordFromPayload rebuilds a record from a point payload.
func recordFromPayload(id string, payload map[string]interface{}) (*memory.Record, error) {
	ownerID, _ := payload[payloadOwnerID].(string)
	if ownerID == "" {
		return nil, fmt.Errorf("point %s has no owner_id payload", id)
	}
	content, _ := payload[payloadContent].(string)

	createdRaw, _ := payload[payloadCreatedAt].(string)
	createdAt, err := time.Parse(time.RFC3339, createdRaw)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	encoded := make(map[string]string)
	for k, v := range payload {
		switch val := v.(type) {
		case string:
			encoded[k] = val
		case []interface{}:
			if k == memory.KeyTags {
				var tags []string
				for _, item := range val {
					if s, ok := item.(string); ok {
						tags = append(tags, s)
					}
				}
				encoded[k] = strings.Join(tags, ",")
			}
		}
	}

	meta := memory.DecodeMetadata(encoded)
	return &memory.Record{
		ID:        id,
		OwnerID:   ownerID,
		Content:   content,
		Metadata:  meta,
		CreatedAt: createdAt,
		SessionID: meta.SessionID,
	}, nil
}
