package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"github.com/blockvoltcr7/mem0-ai-api/api"
	"github.com/blockvoltcr7/mem0-ai-api/engine"
	gwmock "github.com/blockvoltcr7/mem0-ai-api/gateway/mock"
	embmock "github.com/blockvoltcr7/mem0-ai-api/memory/embedder/mock"
	"github.com/blockvoltcr7/mem0-ai-api/memory/store/memstore"
)

func newTestRouter(gen *gwmock.MockGenerator, store *memstore.MemStore, apiKey string) *chi.Mux {
	eng := engine.New(store, embmock.New(), gen, engine.WithLogger(log.New(io.Discard)))
	return api.NewRouter(eng, api.NewHealthHandler(), apiKey, log.New(io.Discard))
}

func postChat(router http.Handler, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("Failed to decode response body: %v", err)
	}
	return v
}

func TestChatEndpoint(t *testing.T) {
	gen := gwmock.New("Noted, starting BPC-157.", "You told me you take BPC-157.")
	gen.EchoContext = true
	router := newTestRouter(gen, memstore.NewMemStore(), "")

	rec := postChat(router, "", `{"user_id":"alice","message":"I started BPC-157 today at 250mcg","session_id":"s1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[api.ChatResponse](t, rec)
	if resp.Response == "" {
		t.Error("empty response text")
	}
	if resp.UserID != "alice" || resp.SessionID != "s1" {
		t.Errorf("identity echo = %q/%q", resp.UserID, resp.SessionID)
	}
	if resp.MemoriesCreated != 1 {
		t.Errorf("memories_created = %d, want 1", resp.MemoriesCreated)
	}
	if resp.Metadata.ModelUsed != "mock" {
		t.Errorf("model_used = %q", resp.Metadata.ModelUsed)
	}
	if resp.Metadata.Plans == nil {
		t.Error("metadata.plans missing")
	}

	rec = postChat(router, "", `{"user_id":"alice","message":"What am I taking?","session_id":"s1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	resp = decodeBody[api.ChatResponse](t, rec)
	if resp.MemoriesFound < 1 {
		t.Errorf("memories_found = %d, want >= 1", resp.MemoriesFound)
	}
	if !strings.Contains(resp.Response, "BPC-157") {
		t.Errorf("response %q should recall the earlier turn", resp.Response)
	}

	// A different user sees none of alice's history.
	rec = postChat(router, "", `{"user_id":"bob","message":"What am I taking?"}`)
	resp = decodeBody[api.ChatResponse](t, rec)
	if resp.MemoriesFound != 0 {
		t.Errorf("bob's memories_found = %d, want 0", resp.MemoriesFound)
	}
}

func TestChatValidation(t *testing.T) {
	router := newTestRouter(gwmock.New(), memstore.NewMemStore(), "")

	cases := []struct {
		name     string
		body     string
		wantCode string
	}{
		{"missing user_id", `{"message":"hello"}`, "invalid_user_id"},
		{"blank user_id", `{"user_id":"   ","message":"hello"}`, "invalid_user_id"},
		{"forged user_id", `{"user_id":"alice or 1=1","message":"hello"}`, "invalid_user_id"},
		{"missing message", `{"user_id":"alice"}`, "invalid_message"},
		{"blank message", `{"user_id":"alice","message":"  "}`, "invalid_message"},
		{"bad session_id", `{"user_id":"alice","message":"hi","session_id":"has spaces"}`, "invalid_session_id"},
		{"malformed json", `{"user_id":`, "invalid_request"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postChat(router, "", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			errResp := decodeBody[api.ErrorResponse](t, rec)
			if errResp.ErrorCode != tc.wantCode {
				t.Errorf("error_code = %q, want %q", errResp.ErrorCode, tc.wantCode)
			}
			if errResp.Message == "" {
				t.Error("error message missing")
			}
			if len(errResp.Suggestions) == 0 {
				t.Error("suggestions missing")
			}
		})
	}
}

func TestChatGenerationUnavailable(t *testing.T) {
	gen := gwmock.New()
	gen.Err = errors.New("model overloaded")
	router := newTestRouter(gen, memstore.NewMemStore(), "")

	rec := postChat(router, "", `{"user_id":"alice","message":"hello"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	errResp := decodeBody[api.ErrorResponse](t, rec)
	if errResp.ErrorCode != "generation_unavailable" {
		t.Errorf("error_code = %q", errResp.ErrorCode)
	}
}

func TestChatMetadataBecomesTags(t *testing.T) {
	store := memstore.NewMemStore()
	router := newTestRouter(gwmock.New(), store, "")

	body := `{"user_id":"alice","message":"hello","metadata":{"domain":"peptide_coaching","category":"peptide_therapy"}}`
	rec := postChat(router, "", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	probe, err := embmock.New().Embed(context.Background(), "probe")
	if err != nil {
		t.Fatalf("Failed to embed probe: %v", err)
	}
	hits, err := store.Search(context.Background(), "alice", probe, nil, 10)
	if err != nil {
		t.Fatalf("Failed to inspect store: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("store holds %d records, want 1", len(hits))
	}

	tags := hits[0].Record.Metadata.Tags
	var sawDomain, sawCategory bool
	for _, tag := range tags {
		if tag == "domain=peptide_coaching" {
			sawDomain = true
		}
		if strings.HasPrefix(tag, "category=") {
			sawCategory = true
		}
	}
	if !sawDomain {
		t.Errorf("tags %v missing domain pair", tags)
	}
	// A metadata value naming a known category steers retrieval instead
	// of becoming a tag.
	if sawCategory {
		t.Errorf("tags %v should not contain the category pair", tags)
	}
}

func TestPurgeEndpoint(t *testing.T) {
	router := newTestRouter(gwmock.New(), memstore.NewMemStore(), "")

	for i := 0; i < 2; i++ {
		if rec := postChat(router, "", `{"user_id":"alice","message":"note"}`); rec.Code != http.StatusOK {
			t.Fatalf("seed turn status = %d", rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/memories/alice", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	purge := decodeBody[api.PurgeResponse](t, rec)
	if purge.UserID != "alice" || purge.Deleted != 2 {
		t.Errorf("purge = %+v, want alice/2", purge)
	}

	// Purging again is a no-op, not an error.
	req = httptest.NewRequest(http.MethodDelete, "/api/v1/memories/alice", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("repeat purge status = %d", rec.Code)
	}
	purge = decodeBody[api.PurgeResponse](t, rec)
	if purge.Deleted != 0 {
		t.Errorf("repeat purge deleted = %d, want 0", purge.Deleted)
	}

	// Owner ids are validated in the path too.
	long := strings.Repeat("x", 101)
	req = httptest.NewRequest(http.MethodDelete, "/api/v1/memories/"+long, nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	errResp := decodeBody[api.ErrorResponse](t, rec)
	if errResp.ErrorCode != "invalid_user_id" {
		t.Errorf("error_code = %q", errResp.ErrorCode)
	}
}

func TestBearerAuth(t *testing.T) {
	router := newTestRouter(gwmock.New(), memstore.NewMemStore(), "secret")

	if rec := postChat(router, "", `{"user_id":"alice","message":"hi"}`); rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", rec.Code)
	}
	rec := postChat(router, "wrong", `{"user_id":"alice","message":"hi"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong token: status = %d, want 401", rec.Code)
	}
	errResp := decodeBody[api.ErrorResponse](t, rec)
	if errResp.ErrorCode != "unauthorized" {
		t.Errorf("error_code = %q", errResp.ErrorCode)
	}

	if rec := postChat(router, "secret", `{"user_id":"alice","message":"hi"}`); rec.Code != http.StatusOK {
		t.Errorf("valid token: status = %d, want 200", rec.Code)
	}

	// Health stays open without a token.
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	hrec := httptest.NewRecorder()
	router.ServeHTTP(hrec, req)
	if hrec.Code != http.StatusOK {
		t.Errorf("/health status = %d, want 200", hrec.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	router := newTestRouter(gwmock.New(), memstore.NewMemStore(), "")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	health := decodeBody[api.HealthResponse](t, rec)
	if health.Status != "healthy" || health.Message == "" || health.Timestamp == "" {
		t.Errorf("health = %+v", health)
	}
}

func TestDetailedHealth(t *testing.T) {
	eng := engine.New(memstore.NewMemStore(), embmock.New(), gwmock.New(), engine.WithLogger(log.New(io.Discard)))

	t.Run("all healthy", func(t *testing.T) {
		health := api.NewHealthHandler(
			api.HealthCheck{Name: "store", Probe: func(ctx context.Context) error { return nil }},
			api.HealthCheck{Name: "generator"},
		)
		router := api.NewRouter(eng, health, "", log.New(io.Discard))

		req := httptest.NewRequest(http.MethodGet, "/health/detailed", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		resp := decodeBody[api.DetailedHealthResponse](t, rec)
		if resp.Status != "healthy" {
			t.Errorf("status = %q", resp.Status)
		}
		if resp.Services["store"].Status != "ok" {
			t.Errorf("store check = %+v", resp.Services["store"])
		}
		if resp.Services["generator"].Status != "configured" {
			t.Errorf("generator check = %+v", resp.Services["generator"])
		}
	})

	t.Run("degraded", func(t *testing.T) {
		health := api.NewHealthHandler(
			api.HealthCheck{Name: "store", Probe: func(ctx context.Context) error { return errors.New("connection refused") }},
			api.HealthCheck{Name: "embedder", Probe: func(ctx context.Context) error { return nil }},
		)
		router := api.NewRouter(eng, health, "", log.New(io.Discard))

		req := httptest.NewRequest(http.MethodGet, "/health/detailed", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d, want 503", rec.Code)
		}
		resp := decodeBody[api.DetailedHealthResponse](t, rec)
		if resp.Status != "degraded" {
			t.Errorf("status = %q", resp.Status)
		}
		if resp.Services["store"].Status != "error" || resp.Services["store"].Message == "" {
			t.Errorf("store check = %+v", resp.Services["store"])
		}
		if resp.Services["embedder"].Status != "ok" {
			t.Errorf("embedder check = %+v", resp.Services["embedder"])
		}
	})
}

func TestRequestIDHeader(t *testing.T) {
	router := newTestRouter(gwmock.New(), memstore.NewMemStore(), "")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if id := rec.Header().Get("X-Request-ID"); len(id) != 8 {
		t.Errorf("X-Request-ID = %q, want 8 characters", id)
	}
}

func TestCORSPreflight(t *testing.T) {
	router := newTestRouter(gwmock.New(), memstore.NewMemStore(), "secret")

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/chat", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS origin header")
	}
}

func TestNotFoundEnvelope(t *testing.T) {
	router := newTestRouter(gwmock.New(), memstore.NewMemStore(), "")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/unknown", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	errResp := decodeBody[api.ErrorResponse](t, rec)
	if errResp.ErrorCode != "not_found" {
		t.Errorf("error_code = %q", errResp.ErrorCode)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := api.Recovery(log.New(io.Discard))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	errResp := decodeBody[api.ErrorResponse](t, rec)
	if errResp.ErrorCode != "internal_error" {
		t.Errorf("error_code = %q", errResp.ErrorCode)
	}
}
