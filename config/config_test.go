package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// clearEnv blanks every variable Load reads, so a developer's shell
// does not leak into assertions.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CONFIG_FILE", "ADDR", "LOG_LEVEL", "SYSTEM_PROMPT",
		"STORE_BACKEND", "SQLITE_PATH", "QDRANT_URL", "QDRANT_COLLECTION",
		"EMBEDDER_PROVIDER", "EMBEDDING_MODEL", "EMBEDDING_DIM", "OLLAMA_BASE_URL", "EMBEDDER_CACHE",
		"GENERATOR_PROVIDER", "GENERATOR_MODEL", "GENERATOR_MAX_TOKENS", "GENERATOR_TEMPERATURE",
		"PLAN_K", "SAFETY_PLAN_K", "RECENCY_WEEKS", "MAX_RESULTS", "CONTEXT_BUDGET",
		"SAFETY_EPSILON", "RECENCY_WEIGHT", "RECENCY_HALF_LIFE_DAYS",
		"EMBED_TIMEOUT_SECONDS", "SEARCH_TIMEOUT_SECONDS", "GENERATE_TIMEOUT_SECONDS", "WRITE_TIMEOUT_SECONDS",
		"API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY",
	} {
		t.Setenv(key, "")
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Addr != ":8000" {
		t.Errorf("addr = %q", cfg.Addr)
	}
	if cfg.Store.Backend != StoreMemory {
		t.Errorf("store backend = %q", cfg.Store.Backend)
	}
	if cfg.Embedder.Provider != EmbedderMock || cfg.Generator.Provider != GeneratorMock {
		t.Errorf("providers = %q/%q, want mock/mock", cfg.Embedder.Provider, cfg.Generator.Provider)
	}
	if cfg.Retrieval.PlanK != 5 || cfg.Retrieval.SafetyPlanK != 8 {
		t.Errorf("plan budgets = %d/%d", cfg.Retrieval.PlanK, cfg.Retrieval.SafetyPlanK)
	}
	if cfg.Retrieval.SafetyEpsilon != 0.05 {
		t.Errorf("safety epsilon = %f", cfg.Retrieval.SafetyEpsilon)
	}
	if cfg.Retrieval.ContextBudget != 2000 {
		t.Errorf("context budget = %d", cfg.Retrieval.ContextBudget)
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("ADDR", ":9090")
	t.Setenv("STORE_BACKEND", "sqlite")
	t.Setenv("SQLITE_PATH", "/tmp/mem.db")
	t.Setenv("PLAN_K", "3")
	t.Setenv("SAFETY_EPSILON", "0.1")
	t.Setenv("EMBEDDER_CACHE", "true")
	t.Setenv("GENERATOR_PROVIDER", "anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Addr != ":9090" {
		t.Errorf("addr = %q", cfg.Addr)
	}
	if cfg.Store.Backend != StoreSQLite || cfg.Store.SQLitePath != "/tmp/mem.db" {
		t.Errorf("store = %+v", cfg.Store)
	}
	if cfg.Retrieval.PlanK != 3 {
		t.Errorf("plan k = %d", cfg.Retrieval.PlanK)
	}
	if cfg.Retrieval.SafetyEpsilon != 0.1 {
		t.Errorf("safety epsilon = %f", cfg.Retrieval.SafetyEpsilon)
	}
	if !cfg.Embedder.Cache {
		t.Error("embedder cache not enabled")
	}
	if cfg.Generator.Provider != GeneratorAnthropic || cfg.AnthropicAPIKey != "sk-test" {
		t.Errorf("generator = %+v", cfg.Generator)
	}
}

func TestYAMLFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := `
addr: ":7070"
log_level: debug
retrieval:
  plan_k: 7
  context_budget: 4000
generator:
  provider: mock
  max_tokens: 500
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	// Environment still beats the file.
	t.Setenv("ADDR", ":6060")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Addr != ":6060" {
		t.Errorf("addr = %q, environment should override the file", cfg.Addr)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log level = %q", cfg.LogLevel)
	}
	if cfg.Retrieval.PlanK != 7 || cfg.Retrieval.ContextBudget != 4000 {
		t.Errorf("retrieval = %+v", cfg.Retrieval)
	}
	if cfg.Generator.MaxTokens != 500 {
		t.Errorf("max tokens = %d", cfg.Generator.MaxTokens)
	}
	// Values the file does not mention keep their defaults.
	if cfg.Retrieval.SafetyPlanK != 8 {
		t.Errorf("safety plan k = %d, want default 8", cfg.Retrieval.SafetyPlanK)
	}
}

func TestYAMLFileExpandsEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("QDRANT_HOST", "qdrant.internal")

	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := `
store:
  backend: qdrant
  qdrant_url: "http://${QDRANT_HOST}:6333"
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Store.QdrantURL != "http://qdrant.internal:6333" {
		t.Errorf("qdrant url = %q", cfg.Store.QdrantURL)
	}
}

func TestYAMLFileRejectsUnknownKeys(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("adress: \":9\"\n"), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)

	if _, err := Load(); err == nil {
		t.Fatal("expected an error for a misspelled key")
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))

	if _, err := Load(); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty addr", func(c *Config) { c.Addr = "" }, "ADDR"},
		{"unknown backend", func(c *Config) { c.Store.Backend = "redis" }, "store backend"},
		{"sqlite without path", func(c *Config) { c.Store.Backend = StoreSQLite; c.Store.SQLitePath = "" }, "SQLITE_PATH"},
		{"qdrant without url", func(c *Config) { c.Store.Backend = StoreQdrant; c.Store.QdrantURL = "" }, "QDRANT_URL"},
		{"unknown embedder", func(c *Config) { c.Embedder.Provider = "cohere" }, "embedder provider"},
		{"openai embedder without key", func(c *Config) { c.Embedder.Provider = EmbedderOpenAI }, "OPENAI_API_KEY"},
		{"unknown generator", func(c *Config) { c.Generator.Provider = "llama" }, "generator provider"},
		{"anthropic without key", func(c *Config) { c.Generator.Provider = GeneratorAnthropic }, "ANTHROPIC_API_KEY"},
		{"zero plan k", func(c *Config) { c.Retrieval.PlanK = 0 }, "PLAN_K"},
		{"zero max results", func(c *Config) { c.Retrieval.MaxResults = 0 }, "MAX_RESULTS"},
		{"zero budget", func(c *Config) { c.Retrieval.ContextBudget = 0 }, "CONTEXT_BUDGET"},
		{"negative epsilon", func(c *Config) { c.Retrieval.SafetyEpsilon = -0.1 }, "SAFETY_EPSILON"},
		{"oversized recency weight", func(c *Config) { c.Retrieval.RecencyWeight = 1.5 }, "RECENCY_WEIGHT"},
		{"zero generate timeout", func(c *Config) { c.Timeouts.GenerateSeconds = 0 }, "GENERATE_TIMEOUT_SECONDS"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected a validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q should mention %q", err, tc.want)
			}
		})
	}
}
