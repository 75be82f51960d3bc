package memory

import (
	"fmt"
	"time"
)

// Filter is an ephemeral metadata constraint attached to a retrieval
// plan. Keys conjoin: a record must satisfy every key present. Values
// within a key disjoin: any accepted value matches. The owner scope is
// NOT expressed here; it is a separate parameter on Store operations
// and cannot be overridden by a filter.
type Filter map[string][]string

// Clone returns an independent copy.
func (f Filter) Clone() Filter {
	if f == nil {
		return nil
	}
	cp := make(Filter, len(f))
	for k, vs := range f {
		cp[k] = append([]string(nil), vs...)
	}
	return cp
}

// Matches evaluates the filter against an encoded metadata map. The
// tags key is multi-valued on both sides: it matches when the record's
// tag set intersects the accepted set. Every other key is an equality
// check against the accepted values.
func (f Filter) Matches(meta map[string]string) bool {
	for key, accepted := range f {
		if len(accepted) == 0 {
			continue
		}
		got, ok := meta[key]
		if !ok {
			return false
		}
		if key == KeyTags {
			if !tagsOverlap(got, accepted) {
				return false
			}
			continue
		}
		if !containsString(accepted, got) {
			return false
		}
	}
	return true
}

// MatchesRecord evaluates the filter against a record's metadata.
func (f Filter) MatchesRecord(rec *Record) bool {
	if len(f) == 0 {
		return true
	}
	return f.Matches(rec.Metadata.Encode())
}

func tagsOverlap(encoded string, accepted []string) bool {
	start := 0
	for i := 0; i <= len(encoded); i++ {
		if i == len(encoded) || encoded[i] == ',' {
			if containsString(accepted, encoded[start:i]) {
				return true
			}
			start = i + 1
		}
	}
	return false
}

func containsString(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// RecencyBucket returns the calendar label for t: the ISO week in
// "2026-W35" form, computed in UTC. Buckets are equality-queryable, so
// a recency window is just a set of adjacent labels.
func RecencyBucket(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

// RecencyWindow returns the bucket labels covering the current week and
// the weeks-1 weeks before it, newest first. weeks < 1 is treated as 1.
func RecencyWindow(now time.Time, weeks int) []string {
	if weeks < 1 {
		weeks = 1
	}
	labels := make([]string, 0, weeks)
	seen := make(map[string]bool, weeks)
	for i := 0; i < weeks; i++ {
		label := RecencyBucket(now.AddDate(0, 0, -7*i))
		if !seen[label] {
			seen[label] = true
			labels = append(labels, label)
		}
	}
	return labels
}
