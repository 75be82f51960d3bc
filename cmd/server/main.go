// Command server runs the memory-augmented chat API.
//
// Configuration comes from the environment and an optional YAML file;
// see the config package for every knob. The default configuration
// serves mock providers from an in-memory store, so the binary boots
// with no API keys and no external services.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/blockvoltcr7/mem0-ai-api/api"
	"github.com/blockvoltcr7/mem0-ai-api/config"
	"github.com/blockvoltcr7/mem0-ai-api/engine"
	"github.com/blockvoltcr7/mem0-ai-api/gateway"
	gwanthropic "github.com/blockvoltcr7/mem0-ai-api/gateway/anthropic"
	gwmock "github.com/blockvoltcr7/mem0-ai-api/gateway/mock"
	gwopenai "github.com/blockvoltcr7/mem0-ai-api/gateway/openai"
	"github.com/blockvoltcr7/mem0-ai-api/memory"
	"github.com/blockvoltcr7/mem0-ai-api/memory/embedder/cached"
	embmock "github.com/blockvoltcr7/mem0-ai-api/memory/embedder/mock"
	embollama "github.com/blockvoltcr7/mem0-ai-api/memory/embedder/ollama"
	embopenai "github.com/blockvoltcr7/mem0-ai-api/memory/embedder/openai"
	"github.com/blockvoltcr7/mem0-ai-api/memory/store/chromem"
	"github.com/blockvoltcr7/mem0-ai-api/memory/store/memstore"
	"github.com/blockvoltcr7/mem0-ai-api/memory/store/qdrant"
	"github.com/blockvoltcr7/mem0-ai-api/memory/store/sqlite"
)

func main() {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "server",
	})

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if lvl, err := log.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}

	embedder, embedderCheck, closeEmbedder, err := buildEmbedder(cfg)
	if err != nil {
		logger.Error("failed to build embedder", "error", err)
		os.Exit(1)
	}
	defer closeEmbedder()

	store, storeCheck, closeStore, err := buildStore(cfg, embedder.Dimensions(), logger)
	if err != nil {
		logger.Error("failed to build store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	generator, err := buildGenerator(cfg)
	if err != nil {
		logger.Error("failed to build generator", "error", err)
		os.Exit(1)
	}

	eng := engine.New(store, embedder, generator,
		engine.WithConfig(engine.Config{
			SystemPrompt:    cfg.SystemPrompt,
			GenerateTimeout: time.Duration(cfg.Timeouts.GenerateSeconds) * time.Second,
			WriteTimeout:    time.Duration(cfg.Timeouts.WriteSeconds) * time.Second,
			Strategy: memory.StrategyConfig{
				PlanK:        cfg.Retrieval.PlanK,
				SafetyPlanK:  cfg.Retrieval.SafetyPlanK,
				RecencyWeeks: cfg.Retrieval.RecencyWeeks,
			},
			Retriever: memory.RetrieverConfig{
				MaxResults:          cfg.Retrieval.MaxResults,
				EmbedTimeout:        time.Duration(cfg.Timeouts.EmbedSeconds) * time.Second,
				SearchTimeout:       time.Duration(cfg.Timeouts.SearchSeconds) * time.Second,
				SafetyEpsilon:       cfg.Retrieval.SafetyEpsilon,
				RecencyWeight:       cfg.Retrieval.RecencyWeight,
				RecencyHalfLifeDays: cfg.Retrieval.RecencyHalfLifeDays,
			},
			Assembler: memory.AssemblerConfig{
				Budget: cfg.Retrieval.ContextBudget,
			},
		}),
		engine.WithLogger(logger.WithPrefix("engine")),
	)

	health := api.NewHealthHandler(
		storeCheck,
		embedderCheck,
		api.HealthCheck{Name: "generator"},
	)
	router := api.NewRouter(eng, health, cfg.APIKey, logger.WithPrefix("api"))

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("server starting",
			"addr", cfg.Addr,
			"store", cfg.Store.Backend,
			"embedder", cfg.Embedder.Provider,
			"generator", cfg.Generator.Provider,
			"auth", cfg.APIKey != "",
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	logger.Info("server stopped")
}

// buildEmbedder returns the configured embedder, its health check, and
// a cleanup function.
func buildEmbedder(cfg *config.Config) (memory.Embedder, api.HealthCheck, func(), error) {
	noop := func() {}

	var inner memory.Embedder
	check := api.HealthCheck{Name: "embedder"}
	switch cfg.Embedder.Provider {
	case config.EmbedderOpenAI:
		emb, err := embopenai.New(embopenai.Config{
			APIKey:     cfg.OpenAIAPIKey,
			Model:      cfg.Embedder.Model,
			Dimensions: cfg.Embedder.Dimensions,
		})
		if err != nil {
			return nil, check, noop, err
		}
		inner = emb
	case config.EmbedderOllama:
		emb := embollama.New(embollama.Config{
			BaseURL:    cfg.Embedder.OllamaURL,
			Model:      cfg.Embedder.Model,
			Dimensions: cfg.Embedder.Dimensions,
		})
		check.Probe = emb.Ping
		inner = emb
	default:
		inner = embmock.NewWithDimensions(cfg.Embedder.Dimensions)
	}

	if !cfg.Embedder.Cache {
		return inner, check, noop, nil
	}
	wrapped, err := cached.New(inner, cached.Config{})
	if err != nil {
		return nil, check, noop, err
	}
	return wrapped, check, wrapped.Close, nil
}

// buildStore returns the configured store, its health check, and a
// cleanup function. The qdrant collection is created eagerly; when
// qdrant is down at boot the server still starts and the health
// endpoint reports the outage.
func buildStore(cfg *config.Config, dimensions int, logger *log.Logger) (memory.Store, api.HealthCheck, func(), error) {
	noop := func() {}

	check := api.HealthCheck{Name: "store"}
	switch cfg.Store.Backend {
	case config.StoreMemory:
		return memstore.NewMemStore(), check, noop, nil

	case config.StoreChromem:
		st, err := chromem.New()
		return st, check, noop, err

	case config.StoreSQLite:
		st, err := sqlite.Open(cfg.Store.SQLitePath)
		if err != nil {
			return nil, check, noop, err
		}
		check.Probe = st.Ping
		return st, check, func() { _ = st.Close() }, nil

	case config.StoreQdrant:
		st := qdrant.New(cfg.Store.QdrantURL, cfg.Store.QdrantCollection, dimensions)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := st.EnsureCollection(ctx); err != nil {
			logger.Warn("qdrant not available at startup, will retry on first use", "error", err)
		}
		check.Probe = st.Ping
		return st, check, noop, nil
	}

	return memstore.NewMemStore(), check, noop, nil
}

// buildGenerator returns the configured reply gateway.
func buildGenerator(cfg *config.Config) (gateway.Generator, error) {
	switch cfg.Generator.Provider {
	case config.GeneratorOpenAI:
		return gwopenai.New(gwopenai.Config{
			APIKey:      cfg.OpenAIAPIKey,
			Model:       cfg.Generator.Model,
			MaxTokens:   cfg.Generator.MaxTokens,
			Temperature: cfg.Generator.Temperature,
		})
	case config.GeneratorAnthropic:
		return gwanthropic.New(gwanthropic.Config{
			APIKey:      cfg.AnthropicAPIKey,
			Model:       cfg.Generator.Model,
			MaxTokens:   cfg.Generator.MaxTokens,
			Temperature: cfg.Generator.Temperature,
		})
	}
	return gwmock.New(), nil
}
