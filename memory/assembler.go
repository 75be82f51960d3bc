package memory

import (
	"strings"
	"time"
)

const contextHeader = "Relevant conversation history:"

// AssemblerConfig tunes dedup and the context size budget.
type AssemblerConfig struct {
	// Budget is the maximum rendered context size in characters.
	// Records are included whole or not at all; the assembler never
	// cuts inside a record.
	Budget int

	// DedupWindow is the creation-time distance within which two
	// records from the same session can be considered near-identical.
	DedupWindow time.Duration
}

// DefaultAssemblerConfig matches the generation prompt budget used by
// the engine.
var DefaultAssemblerConfig = AssemblerConfig{
	Budget:      2000,
	DedupWindow: 10 * time.Minute,
}

// ContextEntry is one included record with the scores and plans that
// got it here, so callers can audit what influenced a generation.
type ContextEntry struct {
	Content    string
	Metadata   Metadata
	CreatedAt  time.Time
	Similarity float64
	Score      float64
	Plans      []string
}

// Context is the bounded, ordered set of memory contents handed to the
// generation step. An empty context is a normal state, not an error;
// first-time owners always generate from an empty one.
type Context struct {
	Entries []ContextEntry
}

// Empty reports whether no records made it into the context.
func (c *Context) Empty() bool {
	return len(c.Entries) == 0
}

// Render produces the prompt block: a header line followed by one
// dash bullet per record, continuation lines indented under their
// bullet. Empty contexts render to the empty string.
func (c *Context) Render() string {
	if len(c.Entries) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(contextHeader)
	for _, e := range c.Entries {
		b.WriteString("\n")
		b.WriteString(renderEntry(e.Content))
	}
	return b.String()
}

func renderEntry(content string) string {
	return "- " + strings.ReplaceAll(content, "\n", "\n  ")
}

// Assembler turns a ranked candidate list into a bounded Context.
type Assembler struct {
	cfg AssemblerConfig
}

// NewAssembler builds an assembler. Zero-valued config fields fall back
// to DefaultAssemblerConfig.
func NewAssembler(cfg AssemblerConfig) *Assembler {
	if cfg.Budget <= 0 {
		cfg.Budget = DefaultAssemblerConfig.Budget
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = DefaultAssemblerConfig.DedupWindow
	}
	return &Assembler{cfg: cfg}
}

// Assemble dedups near-identical candidates, then admits records in
// rank order until the next one would push the rendered size past the
// budget. Dropping from the low-ranked end and keeping the largest
// fitting prefix are the same operation because rendered sizes only
// accumulate.
func (a *Assembler) Assemble(cands []Candidate) *Context {
	kept := a.dedup(cands)

	ctx := &Context{}
	used := 0
	for _, c := range kept {
		cost := len(renderEntry(c.Record.Content)) + 1
		if len(ctx.Entries) == 0 {
			cost += len(contextHeader)
		}
		if used+cost > a.cfg.Budget {
			break
		}
		used += cost
		ctx.Entries = append(ctx.Entries, ContextEntry{
			Content:    c.Record.Content,
			Metadata:   c.Record.Metadata,
			CreatedAt:  c.Record.CreatedAt,
			Similarity: c.Similarity,
			Score:      c.Score,
			Plans:      c.Plans,
		})
	}
	return ctx
}

type keptCandidate struct {
	Record     *Record
	normed     string
	Similarity float64
	Score      float64
	Plans      []string
}

// dedup drops a candidate when a higher-ranked one from the same
// session, created within the dedup window, carries the same (or a
// containing) normalized content. The higher-ranked record always
// survives.
func (a *Assembler) dedup(cands []Candidate) []keptCandidate {
	kept := make([]keptCandidate, 0, len(cands))
	for _, c := range cands {
		norm := normalizeContent(c.Record.Content)
		duplicate := false
		for _, k := range kept {
			if k.Record.SessionID != c.Record.SessionID {
				continue
			}
			gap := k.Record.CreatedAt.Sub(c.Record.CreatedAt)
			if gap < 0 {
				gap = -gap
			}
			if gap > a.cfg.DedupWindow {
				continue
			}
			if k.normed == norm || strings.Contains(k.normed, norm) || strings.Contains(norm, k.normed) {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}
		kept = append(kept, keptCandidate{
			Record:     c.Record,
			normed:     norm,
			Similarity: c.Similarity,
			Score:      c.Score,
			Plans:      c.Plans,
		})
	}
	return kept
}

// normalizeContent lowercases and collapses runs of whitespace so
// trivially reformatted copies of the same exchange compare equal.
func normalizeContent(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
