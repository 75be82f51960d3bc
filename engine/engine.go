// Package engine implements the conversation core: one entry point
// that turns an owner's message into a reply using that owner's
// memories, then records the exchange as a new memory.
//
// The engine is stateless between turns and safe for concurrent use.
// Retrieval trouble degrades a turn; only generation failure aborts it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/blockvoltcr7/mem0-ai-api/core"
	"github.com/blockvoltcr7/mem0-ai-api/gateway"
	"github.com/blockvoltcr7/mem0-ai-api/memory"
)

// ErrGenerationUnavailable wraps any generation failure, including
// timeouts. The turn produced no reply and wrote no record.
var ErrGenerationUnavailable = errors.New("generation unavailable")

// Stage names the last step a turn completed.
type Stage string

const (
	StageReceived         Stage = "received"
	StageFiltersComputed  Stage = "filters_computed"
	StageRetrieved        Stage = "retrieved"
	StageContextAssembled Stage = "context_assembled"
	StageGenerated        Stage = "generated"
	StageWritten          Stage = "written"
	StageCompleted        Stage = "completed"
)

// Config holds engine settings.
type Config struct {
	// SystemPrompt sets the assistant's role for every turn.
	SystemPrompt string

	// GenerateTimeout bounds the generation call.
	GenerateTimeout time.Duration

	// WriteTimeout bounds the write-back (embedding plus upsert).
	WriteTimeout time.Duration

	// Strategy configures message classification and retrieval plans.
	Strategy memory.StrategyConfig

	// Retriever configures plan execution, merging, and ranking.
	Retriever memory.RetrieverConfig

	// Assembler configures context dedup and the character budget.
	Assembler memory.AssemblerConfig
}

// DefaultConfig provides sensible defaults.
var DefaultConfig = Config{
	SystemPrompt:    DefaultSystemPrompt,
	GenerateTimeout: 60 * time.Second,
	WriteTimeout:    15 * time.Second,
	Strategy:        memory.DefaultStrategyConfig,
	Retriever:       memory.DefaultRetrieverConfig,
	Assembler:       memory.DefaultAssemblerConfig,
}

// Engine orchestrates retrieve, assemble, generate, and write-back for
// one turn at a time.
type Engine struct {
	store     memory.Store
	embedder  memory.Embedder
	generator gateway.Generator

	strategy  *memory.Strategy
	retriever *memory.Retriever
	assembler *memory.Assembler

	logger *log.Logger
	clock  func() time.Time
	cfg    Config
}

// Option configures the engine.
type Option func(*Engine)

// WithConfig replaces the default configuration.
func WithConfig(cfg Config) Option {
	return func(e *Engine) {
		e.cfg = cfg
	}
}

// WithLogger sets the engine's logger.
func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithClock sets the time source used for record timestamps and
// recency buckets. Tests pin this.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithStrategy replaces the built-in metadata strategy.
func WithStrategy(s *memory.Strategy) Option {
	return func(e *Engine) {
		e.strategy = s
	}
}

// New creates an engine over the given store, embedder, and generator.
func New(store memory.Store, embedder memory.Embedder, generator gateway.Generator, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		embedder:  embedder,
		generator: generator,
		cfg:       DefaultConfig,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.logger == nil {
		e.logger = log.Default()
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	if e.cfg.SystemPrompt == "" {
		e.cfg.SystemPrompt = DefaultSystemPrompt
	}
	if e.cfg.GenerateTimeout <= 0 {
		e.cfg.GenerateTimeout = DefaultConfig.GenerateTimeout
	}
	if e.cfg.WriteTimeout <= 0 {
		e.cfg.WriteTimeout = DefaultConfig.WriteTimeout
	}

	if e.strategy == nil {
		scfg := e.cfg.Strategy
		if scfg.Clock == nil {
			scfg.Clock = e.clock
		}
		e.strategy = memory.NewStrategy(scfg)
	}

	rcfg := e.cfg.Retriever
	if rcfg.Clock == nil {
		rcfg.Clock = e.clock
	}
	e.retriever = memory.NewRetriever(store, embedder, rcfg)
	e.assembler = memory.NewAssembler(e.cfg.Assembler)

	return e
}

// TurnStats reports what happened inside one turn.
type TurnStats struct {
	// Interaction is the classified interaction type.
	Interaction memory.InteractionType

	// PlanHits counts raw hits per executed retrieval plan.
	PlanHits map[string]int

	// MemoriesFound is the total hits across plans, before merging.
	MemoriesFound int

	// MemoriesCreated is 1 when the turn's record was written, else 0.
	MemoriesCreated int

	// DegradedPlans names plans that failed and contributed nothing.
	DegradedPlans []string

	// WriteFailed is set when the reply was generated but the record
	// could not be written.
	WriteFailed bool

	// Stage is the last stage the turn completed.
	Stage Stage

	// ModelUsed names the model that generated the reply.
	ModelUsed string

	RetrievalLatency  time.Duration
	GenerationLatency time.Duration
	WriteLatency      time.Duration
	TotalLatency      time.Duration
}

// TurnResult is the outcome of a successful turn.
type TurnResult struct {
	// Reply is the assistant's reply text.
	Reply string

	// Stats describes the turn's execution.
	Stats TurnStats
}

type turnSettings struct {
	activeCategory string
	extraTags      []string
}

// TurnOption adjusts a single turn without changing the engine.
type TurnOption func(*turnSettings)

// WithActiveCategory tells the strategy which topic the caller believes
// the session is about. It scopes the current-topic plan when the
// message itself names no category.
func WithActiveCategory(category string) TurnOption {
	return func(s *turnSettings) {
		s.activeCategory = category
	}
}

// WithExtraTags adds caller-supplied sub-tags to the record written for
// this turn. Tags are normalized to the stored form; blank tags are
// dropped.
func WithExtraTags(tags ...string) TurnOption {
	return func(s *turnSettings) {
		s.extraTags = append(s.extraTags, tags...)
	}
}

// normalizeTag lowercases a caller tag and strips the characters the
// encoded tag list reserves.
func normalizeTag(tag string) string {
	tag = strings.ReplaceAll(tag, ",", " ")
	return strings.Join(strings.Fields(strings.ToLower(tag)), " ")
}

func appendMissingTag(tags []string, tag string) []string {
	for _, t := range tags {
		if t == tag {
			return tags
		}
	}
	return append(tags, tag)
}

// HandleTurn runs one conversation turn for an owner.
//
// The reply is generated using only the owner's memories. The exchange
// is recorded strictly after generation, so a turn never retrieves its
// own record. A write-back failure does not discard the reply; it is
// reported through the stats instead.
func (e *Engine) HandleTurn(ctx context.Context, ownerID, message, sessionID string, opts ...TurnOption) (*TurnResult, error) {
	start := time.Now()

	if err := core.ValidateOwnerID(ownerID); err != nil {
		return nil, err
	}
	if err := core.ValidateMessage(message); err != nil {
		return nil, err
	}
	if err := core.ValidateSessionID(sessionID); err != nil {
		return nil, err
	}

	var settings turnSettings
	for _, opt := range opts {
		opt(&settings)
	}

	stats := TurnStats{Stage: StageReceived, PlanHits: map[string]int{}}

	// === CLASSIFY AND PLAN ===
	directive := e.strategy.Evaluate(message, memory.Session{
		ID:             sessionID,
		ActiveCategory: settings.activeCategory,
	})
	for _, tag := range settings.extraTags {
		if tag = normalizeTag(tag); tag != "" {
			directive.Write.Tags = appendMissingTag(directive.Write.Tags, tag)
		}
	}
	stats.Interaction = directive.Interaction
	stats.Stage = StageFiltersComputed
	e.logger.Debug("turn planned",
		"owner", ownerID,
		"interaction", directive.Interaction,
		"plans", len(directive.Plans))

	// === RETRIEVE ===
	// Plan failures already degrade inside the retriever; an error here
	// still must not block generation.
	retrievalStart := time.Now()
	retrieved, err := e.retriever.Retrieve(ctx, ownerID, directive)
	if err != nil {
		e.logger.Warn("retrieval failed, continuing without memories",
			"owner", ownerID, "error", err)
		retrieved = &memory.RetrievalResult{}
	}
	stats.RetrievalLatency = time.Since(retrievalStart)
	stats.MemoriesFound = retrieved.Found()
	stats.DegradedPlans = retrieved.Degraded
	for plan, hits := range retrieved.PlanHits {
		stats.PlanHits[plan] = hits
	}
	stats.Stage = StageRetrieved

	// === ASSEMBLE CONTEXT ===
	assembled := e.assembler.Assemble(retrieved.Candidates)
	stats.Stage = StageContextAssembled

	// === GENERATE ===
	generationStart := time.Now()
	genCtx, cancel := context.WithTimeout(ctx, e.cfg.GenerateTimeout)
	reply, err := e.generator.Generate(genCtx, &gateway.Request{
		SystemPrompt:  e.cfg.SystemPrompt,
		MemoryContext: assembled.Render(),
		UserMessage:   message,
	})
	cancel()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGenerationUnavailable, err)
	}
	stats.GenerationLatency = time.Since(generationStart)
	stats.ModelUsed = reply.Model
	stats.Stage = StageGenerated

	// === WRITE BACK ===
	writeStart := time.Now()
	if err := e.writeTurnRecord(ctx, ownerID, message, reply.Text, directive.Write); err != nil {
		e.logger.Warn("memory write failed, returning reply without a record",
			"owner", ownerID, "error", err)
		stats.WriteFailed = true
	} else {
		stats.MemoriesCreated = 1
		stats.Stage = StageWritten
	}
	stats.WriteLatency = time.Since(writeStart)

	if !stats.WriteFailed {
		stats.Stage = StageCompleted
	}
	stats.TotalLatency = time.Since(start)

	return &TurnResult{Reply: reply.Text, Stats: stats}, nil
}

// writeTurnRecord embeds and stores this turn's exchange under the
// directive's write-time metadata.
func (e *Engine) writeTurnRecord(ctx context.Context, ownerID, message, replyText string, meta memory.Metadata) error {
	content := fmt.Sprintf("User: %s\nAssistant: %s", message, replyText)

	writeCtx, cancel := context.WithTimeout(ctx, e.cfg.WriteTimeout)
	defer cancel()

	embedding, err := e.embedder.Embed(writeCtx, content)
	if err != nil {
		return fmt.Errorf("embed record: %w", err)
	}

	rec, err := memory.NewRecord(ownerID, content, embedding, meta, e.clock())
	if err != nil {
		return fmt.Errorf("build record: %w", err)
	}

	if _, err := e.store.Upsert(writeCtx, rec); err != nil {
		return fmt.Errorf("store record: %w", err)
	}
	return nil
}

// PurgeOwner deletes every record belonging to the owner and returns
// how many were removed.
func (e *Engine) PurgeOwner(ctx context.Context, ownerID string) (int, error) {
	if err := core.ValidateOwnerID(ownerID); err != nil {
		return 0, err
	}

	n, err := e.store.DeleteAll(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("purge owner: %w", err)
	}

	e.logger.Info("purged owner memories", "owner", ownerID, "deleted", n)
	return n, nil
}

// DefaultSystemPrompt is the health-coach deployment's system prompt.
const DefaultSystemPrompt = `You are a knowledgeable AI health coach specializing in peptide therapy. You provide evidence-based information while emphasizing that peptides like BPC-157 are not FDA-approved for human use and should only be used under medical supervision. Use the provided conversation history to give personalized responses.`
