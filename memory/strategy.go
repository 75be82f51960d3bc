package memory

import (
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// InteractionType is the classifier label for an incoming message.
type InteractionType string

const (
	InteractionStatus          InteractionType = "status inquiry"
	InteractionSafety          InteractionType = "risk/safety inquiry"
	InteractionParameterChange InteractionType = "parameter-change inquiry"
	InteractionGeneral         InteractionType = "general"
)

// Plan names. Each plan is one scoped search with its own purpose.
const (
	PlanCurrentTopic       = "current-topic"
	PlanHistoricalBaseline = "historical-baseline"
	PlanSafetyCrossref     = "safety-crossref"
	PlanGeneral            = "general"
)

// Plan is a single scoped search request: what to embed, how to
// filter, and how many results this plan may contribute.
type Plan struct {
	Name   string
	Query  string
	Filter Filter
	K      int
}

// Directive is the strategy engine's full output for one message: the
// retrieval plans to run and the metadata to attach to the record this
// turn will write.
type Directive struct {
	Interaction InteractionType
	Plans       []Plan
	Write       Metadata
}

// Session carries the owner's current session state into
// classification. Both fields are optional.
type Session struct {
	// ID groups related exchanges; copied into write metadata.
	ID string

	// ActiveCategory is the topic the caller believes the session is
	// about, used to scope the current-topic plan when the message
	// itself names no category.
	ActiveCategory string
}

// StrategyConfig tunes plan budgets and recency windows.
type StrategyConfig struct {
	// PlanK is the per-plan result budget for routine plans.
	PlanK int

	// SafetyPlanK is the budget for the safety-crossref plan. Safety
	// plans see more candidates than routine plans.
	SafetyPlanK int

	// RecencyWeeks is the window width for the current-topic plan.
	RecencyWeeks int

	// Clock supplies the current time for recency buckets. Nil means
	// time.Now. Injectable so tests pin the calendar.
	Clock func() time.Time
}

// DefaultStrategyConfig mirrors the production deployment: five results
// per routine plan, eight for safety, a four week current-topic window.
var DefaultStrategyConfig = StrategyConfig{
	PlanK:        5,
	SafetyPlanK:  8,
	RecencyWeeks: 4,
}

// Classification is deterministic and rule-based. Keyword patterns plus
// a small decision table, no model call, so the component is fast and
// testable in isolation. Priority: safety > parameter-change > status.
var (
	safetyPattern = regexp.MustCompile(`(?i)(\bsafe\b|\bsafety\b|\brisks?\b|\bdanger(?:ous)?\b|side effects?|\binteractions?\b|contraindicat\w*|\bwarnings?\b|\boverdose\b|\ballerg\w*|\btoxic\w*)`)

	changePattern = regexp.MustCompile(`(?i)(\bincreas\w*|\bdecreas\w*|\braise\b|\blower\b|\badjust\w*|\bswitch\w*|\bstart(?:ed|ing)?\b|\bstop(?:ped|ping)?\b|\btitrat\w*|\bdose\b|\bdosage\b|\bdosing\b|\d+\s?(?:mcg|mg|iu)\b)`)

	statusPattern = regexp.MustCompile(`(?i)(what am i taking|am i taking|what('| a)?m i on|\bcurrently\b|\bso far\b|\bstatus\b|\bprogress\b|my (?:stack|protocol|regimen|routine)|how (?:is|are) my)`)
)

// categoryLexicon maps closed categories to the keywords that select
// them. Order matters: the first category with a hit wins, so specific
// domains come before wellness catch-alls.
var categoryLexicon = []struct {
	category string
	terms    []string
}{
	{CategoryPeptideTherapy, []string{
		"bpc-157", "bpc157", "tb-500", "tb500", "ipamorelin", "cjc-1295",
		"cjc1295", "ghk-cu", "semaglutide", "tirzepatide", "mots-c",
		"epitalon", "thymosin", "sermorelin", "tesamorelin", "peptide",
	}},
	{CategoryDosingProtocol, []string{
		"dose", "dosage", "dosing", "mcg", "protocol", "cycle",
		"titration", "frequency", "injection",
	}},
	{CategorySafetyProfile, []string{
		"side effect", "interaction", "contraindication", "safety",
		"risk", "warning",
	}},
	{CategoryGeneralWellness, []string{
		"sleep", "recovery", "energy", "wellness", "diet", "exercise",
		"training", "stress", "mood",
	}},
}

// Strategy translates "what is this message about" into structured
// retrieval plans and write-time tags. It never fails: an
// unclassifiable message degrades to the general plan.
type Strategy struct {
	cfg StrategyConfig
	now func() time.Time
}

// NewStrategy builds a strategy engine. Zero-valued config fields fall
// back to DefaultStrategyConfig.
func NewStrategy(cfg StrategyConfig) *Strategy {
	if cfg.PlanK <= 0 {
		cfg.PlanK = DefaultStrategyConfig.PlanK
	}
	if cfg.SafetyPlanK <= 0 {
		cfg.SafetyPlanK = DefaultStrategyConfig.SafetyPlanK
	}
	if cfg.RecencyWeeks <= 0 {
		cfg.RecencyWeeks = DefaultStrategyConfig.RecencyWeeks
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &Strategy{cfg: cfg, now: now}
}

// Classify returns the interaction type for a message. Exported so the
// decision table is testable without building full directives.
func (s *Strategy) Classify(message string) InteractionType {
	// Rule 1: safety language dominates everything else.
	if safetyPattern.MatchString(message) {
		log.Debug("classified interaction", "type", InteractionSafety)
		return InteractionSafety
	}
	// Rule 2: dose or regimen changes.
	if changePattern.MatchString(message) {
		log.Debug("classified interaction", "type", InteractionParameterChange)
		return InteractionParameterChange
	}
	// Rule 3: questions about current state.
	if statusPattern.MatchString(message) {
		log.Debug("classified interaction", "type", InteractionStatus)
		return InteractionStatus
	}
	// Rule 4: everything else, including unparseable input.
	return InteractionGeneral
}

// Evaluate produces the directive for one message. The returned plans
// carry only metadata constraints; owner scoping is structural and
// applied by the store.
func (s *Strategy) Evaluate(message string, sess Session) *Directive {
	interaction := s.Classify(message)
	category, tags := s.categorize(message)
	now := s.now()

	d := &Directive{
		Interaction: interaction,
		Write: Metadata{
			Category:        category,
			RecencyBucket:   RecencyBucket(now),
			SafetyCritical:  interaction == InteractionSafety || interaction == InteractionParameterChange,
			SourceAuthority: AuthorityUserReported,
			SessionID:       sess.ID,
			Tags:            tags,
			Confidence:      s.confidence(interaction, category),
		},
	}

	if interaction == InteractionGeneral {
		// Loose fallback: one owner-wide plan, no metadata constraints.
		d.Plans = []Plan{{Name: PlanGeneral, Query: message, Filter: Filter{}, K: s.cfg.PlanK}}
		return d
	}

	topicFilter := Filter{KeyRecencyBucket: RecencyWindow(now, s.cfg.RecencyWeeks)}
	topic := category
	if topic == CategoryGeneral && sess.ActiveCategory != "" {
		topic = sess.ActiveCategory
	}
	if topic != CategoryGeneral {
		topicFilter[KeyCategory] = []string{topic}
	}

	d.Plans = []Plan{
		{Name: PlanCurrentTopic, Query: message, Filter: topicFilter, K: s.cfg.PlanK},
		// Owner-wide and unwindowed: what is known about this owner at all.
		{Name: PlanHistoricalBaseline, Query: message, Filter: Filter{}, K: s.cfg.PlanK},
	}

	if d.Write.SafetyCritical {
		// Larger budget, no recency constraint: old safety-critical
		// records stay reachable.
		d.Plans = append(d.Plans, Plan{
			Name:   PlanSafetyCrossref,
			Query:  message,
			Filter: Filter{KeySafetyCritical: []string{"true"}},
			K:      s.cfg.SafetyPlanK,
		})
	}
	return d
}

// categorize picks the write-time category and collects matched
// compound names as tags. Only treatment terms become tags; generic
// dosing or wellness keywords select a category without tagging.
func (s *Strategy) categorize(message string) (string, []string) {
	lower := strings.ToLower(message)
	category := CategoryGeneral
	var tags []string
	for _, entry := range categoryLexicon {
		matched := false
		for _, term := range entry.terms {
			if strings.Contains(lower, term) {
				matched = true
				if entry.category == CategoryPeptideTherapy {
					tags = appendUnique(tags, term)
				}
			}
		}
		if matched && category == CategoryGeneral {
			category = entry.category
		}
	}
	return category, tags
}

func (s *Strategy) confidence(interaction InteractionType, category string) float64 {
	if interaction == InteractionGeneral && category == CategoryGeneral {
		return 0.5
	}
	return 0.9
}

func appendUnique(set []string, v string) []string {
	for _, s := range set {
		if s == v {
			return set
		}
	}
	return append(set, v)
}
