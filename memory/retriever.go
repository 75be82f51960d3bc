package memory

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
)

// RetrieverConfig tunes plan execution and ranking.
type RetrieverConfig struct {
	// MaxResults caps the merged candidate list regardless of how many
	// plans ran.
	MaxResults int

	// EmbedTimeout bounds each embedding call.
	EmbedTimeout time.Duration

	// SearchTimeout bounds each store search call.
	SearchTimeout time.Duration

	// SafetyEpsilon is the score distance within which a
	// safety-critical candidate is promoted past a non-safety one.
	SafetyEpsilon float64

	// RecencyWeight scales the recency term added to similarity.
	RecencyWeight float64

	// RecencyHalfLifeDays controls how fast the recency term decays.
	RecencyHalfLifeDays float64

	// Clock supplies the current time for age computation. Nil means
	// time.Now.
	Clock func() time.Time
}

// DefaultRetrieverConfig bounds context fan-in at six records and keeps
// the recency term small relative to similarity.
var DefaultRetrieverConfig = RetrieverConfig{
	MaxResults:          6,
	EmbedTimeout:        10 * time.Second,
	SearchTimeout:       10 * time.Second,
	SafetyEpsilon:       0.05,
	RecencyWeight:       0.15,
	RecencyHalfLifeDays: 14,
}

// Candidate is one merged, scored retrieval result. Plans records which
// plans surfaced it, for auditability.
type Candidate struct {
	Record     *Record
	Similarity float64
	Score      float64
	Plans      []string
}

// RetrievalResult is the merged outcome of one directive's plans.
type RetrievalResult struct {
	// Candidates is ranked best first and capped at MaxResults.
	Candidates []Candidate

	// PlanHits maps plan name to result count for plans that ran
	// successfully.
	PlanHits map[string]int

	// Degraded lists plans that failed. A degraded plan contributed
	// zero results; it never aborts its siblings.
	Degraded []string
}

// Found returns the total hit count across successful plans, before
// dedup and capping.
func (r *RetrievalResult) Found() int {
	total := 0
	for _, n := range r.PlanHits {
		total += n
	}
	return total
}

// Retriever executes retrieval plans against a store and merges the
// results into one ranked candidate list. Plans run as independent
// fork-join tasks writing into per-plan slots; there is no shared
// accumulator and one plan's failure cannot cancel another's work.
type Retriever struct {
	store    Store
	embedder Embedder
	cfg      RetrieverConfig
	now      func() time.Time
}

// NewRetriever builds a retriever. Zero-valued config fields fall back
// to DefaultRetrieverConfig.
func NewRetriever(store Store, embedder Embedder, cfg RetrieverConfig) *Retriever {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = DefaultRetrieverConfig.MaxResults
	}
	if cfg.EmbedTimeout <= 0 {
		cfg.EmbedTimeout = DefaultRetrieverConfig.EmbedTimeout
	}
	if cfg.SearchTimeout <= 0 {
		cfg.SearchTimeout = DefaultRetrieverConfig.SearchTimeout
	}
	if cfg.SafetyEpsilon <= 0 {
		cfg.SafetyEpsilon = DefaultRetrieverConfig.SafetyEpsilon
	}
	if cfg.RecencyWeight <= 0 {
		cfg.RecencyWeight = DefaultRetrieverConfig.RecencyWeight
	}
	if cfg.RecencyHalfLifeDays <= 0 {
		cfg.RecencyHalfLifeDays = DefaultRetrieverConfig.RecencyHalfLifeDays
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &Retriever{store: store, embedder: embedder, cfg: cfg, now: now}
}

type planOutcome struct {
	plan Plan
	hits []Hit
	err  error
}

// Retrieve runs every plan in the directive and returns the merged,
// ranked, capped candidate list. Store or embedder failures degrade the
// affected plan to zero results instead of failing the call; the error
// return is reserved for an empty owner id.
func (r *Retriever) Retrieve(ctx context.Context, ownerID string, d *Directive) (*RetrievalResult, error) {
	if ownerID == "" {
		return nil, ErrOwnerRequired
	}

	outcomes := make([]planOutcome, len(d.Plans))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range d.Plans {
		i, p := i, p
		g.Go(func() error {
			outcomes[i] = r.runPlan(gctx, ownerID, p)
			return nil
		})
	}
	// Closures never return errors; Wait only joins the forks.
	_ = g.Wait()

	result := &RetrievalResult{PlanHits: make(map[string]int, len(d.Plans))}
	byID := make(map[string]*Candidate)
	order := make([]string, 0, len(outcomes)*4)
	for _, out := range outcomes {
		if out.err != nil {
			log.Warn("retrieval plan degraded", "plan", out.plan.Name, "error", out.err)
			result.Degraded = append(result.Degraded, out.plan.Name)
			continue
		}
		result.PlanHits[out.plan.Name] = len(out.hits)
		for _, hit := range out.hits {
			if c, ok := byID[hit.Record.ID]; ok {
				if hit.Similarity > c.Similarity {
					c.Similarity = hit.Similarity
				}
				c.Plans = appendUnique(c.Plans, out.plan.Name)
				continue
			}
			byID[hit.Record.ID] = &Candidate{
				Record:     hit.Record,
				Similarity: hit.Similarity,
				Plans:      []string{out.plan.Name},
			}
			order = append(order, hit.Record.ID)
		}
	}

	merged := make([]Candidate, 0, len(order))
	for _, id := range order {
		c := byID[id]
		c.Score = c.Similarity + r.cfg.RecencyWeight*r.retrievability(c.Record.CreatedAt)
		merged = append(merged, *c)
	}
	r.rank(merged)

	if len(merged) > r.cfg.MaxResults {
		merged = merged[:r.cfg.MaxResults]
	}
	result.Candidates = merged
	return result, nil
}

func (r *Retriever) runPlan(ctx context.Context, ownerID string, p Plan) planOutcome {
	embedCtx, cancelEmbed := context.WithTimeout(ctx, r.cfg.EmbedTimeout)
	vector, err := r.embedder.Embed(embedCtx, p.Query)
	cancelEmbed()
	if err != nil {
		return planOutcome{plan: p, err: err}
	}

	searchCtx, cancelSearch := context.WithTimeout(ctx, r.cfg.SearchTimeout)
	hits, err := r.store.Search(searchCtx, ownerID, vector, p.Filter, p.K)
	cancelSearch()
	if err != nil {
		return planOutcome{plan: p, err: err}
	}
	return planOutcome{plan: p, hits: hits}
}

// retrievability is an exponential decay on record age, floored so old
// memories are dampened but never vanish from scoring.
func (r *Retriever) retrievability(createdAt time.Time) float64 {
	ageDays := r.now().Sub(createdAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	v := math.Exp(-ageDays / r.cfg.RecencyHalfLifeDays)
	if v < 0.05 {
		v = 0.05
	}
	return v
}

// rank sorts by composite score, then promotes safety-critical
// candidates past non-safety neighbors whose score lead is within
// epsilon. A clearly better non-safety record still wins; the promotion
// only breaks near-ties.
func (r *Retriever) rank(cands []Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].Score > cands[j].Score
	})
	for i := 1; i < len(cands); i++ {
		for j := i; j > 0; j-- {
			prev, cur := cands[j-1], cands[j]
			if !cur.Record.Metadata.SafetyCritical || prev.Record.Metadata.SafetyCritical {
				break
			}
			if prev.Score-cur.Score > r.cfg.SafetyEpsilon {
				break
			}
			cands[j-1], cands[j] = cur, prev
		}
	}
}
