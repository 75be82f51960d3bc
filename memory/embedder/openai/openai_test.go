package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected an error for a missing api key")
	}
}

func TestEmbed(t *testing.T) {
	var gotModel string
	var gotInput []interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("Failed to decode request: %v", err)
		}
		gotModel, _ = body["model"].(string)
		gotInput, _ = body["input"].([]interface{})
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"object": "list",
			"data": [{"object": "embedding", "index": 0, "embedding": [0.1, 0.2, 0.3]}],
			"model": "text-embedding-3-small",
			"usage": {"prompt_tokens": 5, "total_tokens": 5}
		}`)
	}))
	defer srv.Close()

	e, err := New(Config{APIKey: "test-key", BaseURL: srv.URL, Dimensions: 3})
	if err != nil {
		t.Fatalf("Failed to create embedder: %v", err)
	}

	embedding, err := e.Embed(context.Background(), "started BPC-157")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}

	if gotModel != "text-embedding-3-small" {
		t.Errorf("model = %q", gotModel)
	}
	if len(gotInput) != 1 || gotInput[0] != "started BPC-157" {
		t.Errorf("input = %v", gotInput)
	}
	want := []float32{0.1, 0.2, 0.3}
	if len(embedding) != len(want) {
		t.Fatalf("embedding has %d elements, want %d", len(embedding), len(want))
	}
	for i := range want {
		if diff := embedding[i] - want[i]; diff > 1e-6 || diff < -1e-6 {
			t.Errorf("element %d = %v, want %v", i, embedding[i], want[i])
		}
	}
}

func TestEmbedEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"object": "list", "data": [], "model": "text-embedding-3-small", "usage": {"prompt_tokens": 0, "total_tokens": 0}}`)
	}))
	defer srv.Close()

	e, err := New(Config{APIKey: "test-key", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("Failed to create embedder: %v", err)
	}
	if _, err := e.Embed(context.Background(), "text"); err == nil {
		t.Error("expected an error for an empty data array")
	}
}

func TestDimensionsDefaults(t *testing.T) {
	e, err := New(Config{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("Failed to create embedder: %v", err)
	}
	if got := e.Dimensions(); got != 1536 {
		t.Errorf("default dimensions = %d, want 1536", got)
	}
}
