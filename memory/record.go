package memory

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Top-level categories. The vocabulary is closed so filters stay
// queryable; open-ended domain detail goes into Metadata.Tags.
const (
	CategoryPeptideTherapy  = "peptide_therapy"
	CategoryDosingProtocol  = "dosing_protocol"
	CategorySafetyProfile   = "safety_profile"
	CategoryGeneralWellness = "general_wellness"
	CategoryGeneral         = "general"
)

// Source authority values. User-reported content came from the user's
// own messages; system-asserted content was derived by the engine.
const (
	AuthorityUserReported   = "user-reported"
	AuthoritySystemAsserted = "system-asserted"
)

// Metadata keys as they appear in encoded form and in filters.
const (
	KeyCategory        = "category"
	KeyRecencyBucket   = "recency_bucket"
	KeySafetyCritical  = "safety_critical"
	KeySourceAuthority = "source_authority"
	KeySessionID       = "session_id"
	KeyTags            = "tags"
	KeyConfidence      = "confidence"
)

// Metadata is the structured tag set attached to every record at write
// time. It is a typed struct rather than a free-form map so misuse is
// caught at construction, and it encodes to a flat string map for
// storage backends.
type Metadata struct {
	// Category is one of the Category* constants.
	Category string

	// RecencyBucket is the ISO-week label of the write time, e.g.
	// "2026-W35". Computed by the strategy engine from its clock.
	RecencyBucket string

	// SafetyCritical marks risk-adjacent content. Safety-critical
	// records are promoted during ranking ties and targeted by the
	// safety-crossref retrieval plan.
	SafetyCritical bool

	// SourceAuthority is one of the Authority* constants.
	SourceAuthority string

	// SessionID mirrors the record's session so filters can reach it.
	SessionID string

	// Tags is the open extension point: normalized domain sub-tags
	// such as compound names. Multi-valued; a tags filter matches on
	// intersection.
	Tags []string

	// Confidence is the classifier's confidence in [0,1]. Best effort;
	// misclassification is a quality defect, not an error.
	Confidence float64
}

var validCategories = map[string]bool{
	CategoryPeptideTherapy:  true,
	CategoryDosingProtocol:  true,
	CategorySafetyProfile:   true,
	CategoryGeneralWellness: true,
	CategoryGeneral:         true,
}

// ValidCategory reports whether c belongs to the closed category
// vocabulary.
func ValidCategory(c string) bool {
	return validCategories[c]
}

// Validate checks the closed parts of the vocabulary.
func (m Metadata) Validate() error {
	if !validCategories[m.Category] {
		return fmt.Errorf("unknown category %q", m.Category)
	}
	if m.SourceAuthority != AuthorityUserReported && m.SourceAuthority != AuthoritySystemAsserted {
		return fmt.Errorf("unknown source authority %q", m.SourceAuthority)
	}
	if m.Confidence < 0 || m.Confidence > 1 {
		return fmt.Errorf("confidence %v outside [0,1]", m.Confidence)
	}
	return nil
}

// Encode flattens the metadata to the string map shape shared by all
// store backends. Empty optional fields are omitted so equality filters
// do not match on blanks.
func (m Metadata) Encode() map[string]string {
	enc := map[string]string{
		KeyCategory:        m.Category,
		KeyRecencyBucket:   m.RecencyBucket,
		KeySafetyCritical:  strconv.FormatBool(m.SafetyCritical),
		KeySourceAuthority: m.SourceAuthority,
		KeyConfidence:      strconv.FormatFloat(m.Confidence, 'f', 2, 64),
	}
	if m.SessionID != "" {
		enc[KeySessionID] = m.SessionID
	}
	if len(m.Tags) > 0 {
		enc[KeyTags] = strings.Join(m.Tags, ",")
	}
	return enc
}

// DecodeMetadata rebuilds a Metadata from its encoded form. Unparseable
// scalar fields decode to zero values rather than failing; stored data
// is read-only and a bad tag should not make a record unreadable.
func DecodeMetadata(enc map[string]string) Metadata {
	m := Metadata{
		Category:        enc[KeyCategory],
		RecencyBucket:   enc[KeyRecencyBucket],
		SourceAuthority: enc[KeySourceAuthority],
		SessionID:       enc[KeySessionID],
	}
	if v, err := strconv.ParseBool(enc[KeySafetyCritical]); err == nil {
		m.SafetyCritical = v
	}
	if v, err := strconv.ParseFloat(enc[KeyConfidence], 64); err == nil {
		m.Confidence = v
	}
	if raw := enc[KeyTags]; raw != "" {
		m.Tags = strings.Split(raw, ",")
	}
	return m
}

// Record is one stored unit of conversational content. Records are
// immutable after creation; corrections are modeled as new records and
// the only destructive operation is the owner-scoped purge.
type Record struct {
	ID        string
	OwnerID   string
	Content   string
	Embedding []float32
	Metadata  Metadata
	CreatedAt time.Time
	SessionID string
}

// NewRecord builds a record with a fresh id. The embedding must already
// be derived from content by the deployment's single embedder; it is
// never recomputed. SessionID comes from the metadata so the two can
// not disagree.
func NewRecord(ownerID, content string, embedding []float32, meta Metadata, createdAt time.Time) (*Record, error) {
	if ownerID == "" {
		return nil, ErrOwnerRequired
	}
	if err := meta.Validate(); err != nil {
		return nil, fmt.Errorf("record metadata: %w", err)
	}
	return &Record{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Content:   content,
		Embedding: embedding,
		Metadata:  meta,
		CreatedAt: createdAt,
		SessionID: meta.SessionID,
	}, nil
}

// Clone returns a deep copy. Store implementations hand out clones so
// callers cannot mutate stored state through returned pointers.
func (r *Record) Clone() *Record {
	cp := *r
	if r.Embedding != nil {
		cp.Embedding = make([]float32, len(r.Embedding))
		copy(cp.Embedding, r.Embedding)
	}
	if r.Metadata.Tags != nil {
		cp.Metadata.Tags = make([]string, len(r.Metadata.Tags))
		copy(cp.Metadata.Tags, r.Metadata.Tags)
	}
	return &cp
}
