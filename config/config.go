// Package config assembles runtime settings for the server binary.
//
// Settings are layered: compiled-in defaults, then an optional YAML
// file named by CONFIG_FILE, then environment variables. Later layers
// win. API keys are environment-only and never read from the file.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Store backends and provider names accepted by Validate.
const (
	StoreMemory  = "memory"
	StoreChromem = "chromem"
	StoreSQLite  = "sqlite"
	StoreQdrant  = "qdrant"

	EmbedderMock   = "mock"
	EmbedderOpenAI = "openai"
	EmbedderOllama = "ollama"

	GeneratorMock      = "mock"
	GeneratorOpenAI    = "openai"
	GeneratorAnthropic = "anthropic"
)

// StoreConfig selects and tunes the record store.
type StoreConfig struct {
	// Backend is one of memory, chromem, sqlite, or qdrant.
	Backend string `yaml:"backend"`

	// SQLitePath is the database file used by the sqlite backend.
	SQLitePath string `yaml:"sqlite_path"`

	// QdrantURL and QdrantCollection configure the qdrant backend.
	QdrantURL        string `yaml:"qdrant_url"`
	QdrantCollection string `yaml:"qdrant_collection"`
}

// EmbedderConfig selects and tunes the embedding provider.
type EmbedderConfig struct {
	// Provider is one of mock, openai, or ollama.
	Provider string `yaml:"provider"`

	// Model names the embedding model. Empty uses the provider default.
	Model string `yaml:"model"`

	// Dimensions is the vector size. Zero uses the provider default.
	Dimensions int `yaml:"dimensions"`

	// OllamaURL is the Ollama server address.
	OllamaURL string `yaml:"ollama_url"`

	// Cache wraps the embedder in a ristretto read-through cache.
	Cache bool `yaml:"cache"`
}

// GeneratorConfig selects and tunes the reply model.
type GeneratorConfig struct {
	// Provider is one of mock, openai, or anthropic.
	Provider string `yaml:"provider"`

	// Model names the chat model. Empty uses the provider default.
	Model string `yaml:"model"`

	// MaxTokens caps reply length. Zero uses the provider default.
	MaxTokens int `yaml:"max_tokens"`

	// Temperature controls sampling. Zero uses the provider default.
	Temperature float64 `yaml:"temperature"`
}

// RetrievalConfig tunes memory search and context assembly.
type RetrievalConfig struct {
	// PlanK and SafetyPlanK are per-plan result budgets.
	PlanK       int `yaml:"plan_k"`
	SafetyPlanK int `yaml:"safety_plan_k"`

	// RecencyWeeks is the current-topic plan's window width.
	RecencyWeeks int `yaml:"recency_weeks"`

	// MaxResults caps the merged candidate list.
	MaxResults int `yaml:"max_results"`

	// ContextBudget is the rendered context cap in characters.
	ContextBudget int `yaml:"context_budget"`

	// SafetyEpsilon is the tie-break distance for promoting
	// safety-critical candidates during ranking.
	SafetyEpsilon float64 `yaml:"safety_epsilon"`

	// RecencyWeight and RecencyHalfLifeDays shape the freshness term
	// added to similarity scores.
	RecencyWeight       float64 `yaml:"recency_weight"`
	RecencyHalfLifeDays float64 `yaml:"recency_half_life_days"`
}

// TimeoutConfig bounds the engine's per-call deadlines, in seconds.
type TimeoutConfig struct {
	EmbedSeconds    int `yaml:"embed_seconds"`
	SearchSeconds   int `yaml:"search_seconds"`
	GenerateSeconds int `yaml:"generate_seconds"`
	WriteSeconds    int `yaml:"write_seconds"`
}

// Config holds every runtime setting for the server.
type Config struct {
	// Addr is the listen address, host:port.
	Addr string `yaml:"addr"`

	// LogLevel is debug, info, warn, or error.
	LogLevel string `yaml:"log_level"`

	// SystemPrompt overrides the built-in coaching prompt.
	SystemPrompt string `yaml:"system_prompt"`

	Store     StoreConfig     `yaml:"store"`
	Embedder  EmbedderConfig  `yaml:"embedder"`
	Generator GeneratorConfig `yaml:"generator"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Timeouts  TimeoutConfig   `yaml:"timeouts"`

	// APIKey guards the /api/v1 routes. Empty disables auth.
	// Environment-only.
	APIKey string `yaml:"-"`

	// OpenAIAPIKey and AnthropicAPIKey authenticate the hosted
	// providers. Environment-only.
	OpenAIAPIKey    string `yaml:"-"`
	AnthropicAPIKey string `yaml:"-"`
}

// Default returns the development configuration: everything in-process,
// no API keys needed.
func Default() *Config {
	return &Config{
		Addr:     ":8000",
		LogLevel: "info",
		Store: StoreConfig{
			Backend:          StoreMemory,
			SQLitePath:       "memories.db",
			QdrantURL:        "http://localhost:6333",
			QdrantCollection: "peptide_health_coaching_memories",
		},
		Embedder: EmbedderConfig{
			Provider:  EmbedderMock,
			OllamaURL: "http://localhost:11434",
		},
		Generator: GeneratorConfig{
			Provider: GeneratorMock,
		},
		Retrieval: RetrievalConfig{
			PlanK:               5,
			SafetyPlanK:         8,
			RecencyWeeks:        4,
			MaxResults:          6,
			ContextBudget:       2000,
			SafetyEpsilon:       0.05,
			RecencyWeight:       0.15,
			RecencyHalfLifeDays: 14,
		},
		Timeouts: TimeoutConfig{
			EmbedSeconds:    10,
			SearchSeconds:   10,
			GenerateSeconds: 60,
			WriteSeconds:    15,
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file
// named by CONFIG_FILE, and the environment, in that order.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// loadFile overlays settings from a YAML file. ${VAR} references in
// the file are expanded from the environment before parsing; unknown
// keys are rejected so typos fail loudly.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	data = []byte(os.ExpandEnv(string(data)))

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	return decoder.Decode(c)
}

// applyEnv overlays environment variables onto the current values.
func (c *Config) applyEnv() {
	c.Addr = envStr("ADDR", c.Addr)
	c.LogLevel = envStr("LOG_LEVEL", c.LogLevel)
	c.SystemPrompt = envStr("SYSTEM_PROMPT", c.SystemPrompt)

	c.Store.Backend = envStr("STORE_BACKEND", c.Store.Backend)
	c.Store.SQLitePath = envStr("SQLITE_PATH", c.Store.SQLitePath)
	c.Store.QdrantURL = envStr("QDRANT_URL", c.Store.QdrantURL)
	c.Store.QdrantCollection = envStr("QDRANT_COLLECTION", c.Store.QdrantCollection)

	c.Embedder.Provider = envStr("EMBEDDER_PROVIDER", c.Embedder.Provider)
	c.Embedder.Model = envStr("EMBEDDING_MODEL", c.Embedder.Model)
	c.Embedder.Dimensions = envInt("EMBEDDING_DIM", c.Embedder.Dimensions)
	c.Embedder.OllamaURL = envStr("OLLAMA_BASE_URL", c.Embedder.OllamaURL)
	c.Embedder.Cache = envBool("EMBEDDER_CACHE", c.Embedder.Cache)

	c.Generator.Provider = envStr("GENERATOR_PROVIDER", c.Generator.Provider)
	c.Generator.Model = envStr("GENERATOR_MODEL", c.Generator.Model)
	c.Generator.MaxTokens = envInt("GENERATOR_MAX_TOKENS", c.Generator.MaxTokens)
	c.Generator.Temperature = envFloat("GENERATOR_TEMPERATURE", c.Generator.Temperature)

	c.Retrieval.PlanK = envInt("PLAN_K", c.Retrieval.PlanK)
	c.Retrieval.SafetyPlanK = envInt("SAFETY_PLAN_K", c.Retrieval.SafetyPlanK)
	c.Retrieval.RecencyWeeks = envInt("RECENCY_WEEKS", c.Retrieval.RecencyWeeks)
	c.Retrieval.MaxResults = envInt("MAX_RESULTS", c.Retrieval.MaxResults)
	c.Retrieval.ContextBudget = envInt("CONTEXT_BUDGET", c.Retrieval.ContextBudget)
	c.Retrieval.SafetyEpsilon = envFloat("SAFETY_EPSILON", c.Retrieval.SafetyEpsilon)
	c.Retrieval.RecencyWeight = envFloat("RECENCY_WEIGHT", c.Retrieval.RecencyWeight)
	c.Retrieval.RecencyHalfLifeDays = envFloat("RECENCY_HALF_LIFE_DAYS", c.Retrieval.RecencyHalfLifeDays)

	c.Timeouts.EmbedSeconds = envInt("EMBED_TIMEOUT_SECONDS", c.Timeouts.EmbedSeconds)
	c.Timeouts.SearchSeconds = envInt("SEARCH_TIMEOUT_SECONDS", c.Timeouts.SearchSeconds)
	c.Timeouts.GenerateSeconds = envInt("GENERATE_TIMEOUT_SECONDS", c.Timeouts.GenerateSeconds)
	c.Timeouts.WriteSeconds = envInt("WRITE_TIMEOUT_SECONDS", c.Timeouts.WriteSeconds)

	c.APIKey = envStr("API_KEY", c.APIKey)
	c.OpenAIAPIKey = envStr("OPENAI_API_KEY", c.OpenAIAPIKey)
	c.AnthropicAPIKey = envStr("ANTHROPIC_API_KEY", c.AnthropicAPIKey)
}

// Validate checks ranges and cross-field requirements.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("ADDR must not be empty")
	}

	switch c.Store.Backend {
	case StoreMemory, StoreChromem:
	case StoreSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH must not be empty for the sqlite backend")
		}
	case StoreQdrant:
		if c.Store.QdrantURL == "" {
			return fmt.Errorf("QDRANT_URL must not be empty for the qdrant backend")
		}
		if c.Store.QdrantCollection == "" {
			return fmt.Errorf("QDRANT_COLLECTION must not be empty for the qdrant backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	switch c.Embedder.Provider {
	case EmbedderMock, EmbedderOllama:
	case EmbedderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for the openai embedder")
		}
	default:
		return fmt.Errorf("unknown embedder provider %q", c.Embedder.Provider)
	}
	if c.Embedder.Dimensions < 0 {
		return fmt.Errorf("EMBEDDING_DIM must not be negative, got %d", c.Embedder.Dimensions)
	}

	switch c.Generator.Provider {
	case GeneratorMock:
	case GeneratorOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for the openai generator")
		}
	case GeneratorAnthropic:
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required for the anthropic generator")
		}
	default:
		return fmt.Errorf("unknown generator provider %q", c.Generator.Provider)
	}

	if c.Retrieval.PlanK < 1 {
		return fmt.Errorf("PLAN_K must be at least 1, got %d", c.Retrieval.PlanK)
	}
	if c.Retrieval.SafetyPlanK < 1 {
		return fmt.Errorf("SAFETY_PLAN_K must be at least 1, got %d", c.Retrieval.SafetyPlanK)
	}
	if c.Retrieval.RecencyWeeks < 1 {
		return fmt.Errorf("RECENCY_WEEKS must be at least 1, got %d", c.Retrieval.RecencyWeeks)
	}
	if c.Retrieval.MaxResults < 1 {
		return fmt.Errorf("MAX_RESULTS must be at least 1, got %d", c.Retrieval.MaxResults)
	}
	if c.Retrieval.ContextBudget < 1 {
		return fmt.Errorf("CONTEXT_BUDGET must be positive, got %d", c.Retrieval.ContextBudget)
	}
	if c.Retrieval.SafetyEpsilon < 0 {
		return fmt.Errorf("SAFETY_EPSILON must not be negative, got %f", c.Retrieval.SafetyEpsilon)
	}
	if c.Retrieval.RecencyWeight < 0 || c.Retrieval.RecencyWeight > 1 {
		return fmt.Errorf("RECENCY_WEIGHT must be between 0 and 1, got %f", c.Retrieval.RecencyWeight)
	}
	if c.Retrieval.RecencyHalfLifeDays <= 0 {
		return fmt.Errorf("RECENCY_HALF_LIFE_DAYS must be positive, got %f", c.Retrieval.RecencyHalfLifeDays)
	}

	for name, secs := range map[string]int{
		"EMBED_TIMEOUT_SECONDS":    c.Timeouts.EmbedSeconds,
		"SEARCH_TIMEOUT_SECONDS":   c.Timeouts.SearchSeconds,
		"GENERATE_TIMEOUT_SECONDS": c.Timeouts.GenerateSeconds,
		"WRITE_TIMEOUT_SECONDS":    c.Timeouts.WriteSeconds,
	} {
		if secs < 1 {
			return fmt.Errorf("%s must be at least 1, got %d", name, secs)
		}
	}

	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
