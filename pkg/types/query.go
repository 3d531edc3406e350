// Copyright HCSS Utils, 2026. All rights reserved.

// Package types defines shared data structures for the scholar-query-splitter
// pipeline: query modifiers, concrete query specifications, hit-count results,
// splitting strategies, and coverage reports.
package types

import (
	"fmt"
	"strings"
	"time"
)

// ModifierKind distinguishes the two sources of narrowing terms.
type ModifierKind string

const (
	KindKeyword ModifierKind = "keyword"
	KindEntity  ModifierKind = "entity"
)

// Modifier is a candidate narrowing term ranked by the external extraction
// step. A modifier is immutable once ranked; scoring and combination logic
// operate on Text and Score only, Kind and Category are carried for reporting.
type Modifier struct {
	// Text is the keyword or entity surface form, without quotes.
	Text string `json:"text" yaml:"text"`

	// Kind tags the modifier as a keyword or a named entity.
	Kind ModifierKind `json:"kind" yaml:"kind"`

	// Category is the entity label (e.g. "ORG", "GPE") for entity modifiers.
	// Empty for keywords.
	Category string `json:"category,omitempty" yaml:"category,omitempty"`

	// Score is the extraction relevance score, used for tie-breaking.
	Score float64 `json:"score" yaml:"score"`
}

// Operator selects how a QuerySpec combines its modifiers with the base query.
type Operator string

const (
	// OpAnd conjoins each modifier with the base query.
	OpAnd Operator = "AND"

	// OpNot negates each modifier, forming the residual of a partition.
	OpNot Operator = "NOT"
)

// QuerySpec is one concrete boolean query: a base expression plus zero or
// more modifiers combined with a single operator, optionally restricted to a
// year range.
type QuerySpec struct {
	Base      string     `json:"base" yaml:"base"`
	Modifiers []Modifier `json:"modifiers,omitempty" yaml:"modifiers,omitempty"`
	Operator  Operator   `json:"operator,omitempty" yaml:"operator,omitempty"`
	YearStart int        `json:"year_start,omitempty" yaml:"year_start,omitempty"`
	YearEnd   int        `json:"year_end,omitempty" yaml:"year_end,omitempty"`
}

// QueryText renders the spec as a boolean query string. Modifiers are quoted
// so multi-word terms stay phrases.
func (q QuerySpec) QueryText() string {
	var b strings.Builder
	b.WriteString(q.Base)
	for _, m := range q.Modifiers {
		switch q.Operator {
		case OpNot:
			b.WriteString(` AND NOT "`)
		default:
			b.WriteString(` AND "`)
		}
		b.WriteString(m.Text)
		b.WriteString(`"`)
	}
	return b.String()
}

// HasYearRange reports whether the spec restricts publication years.
func (q QuerySpec) HasYearRange() bool {
	return q.YearStart > 0 || q.YearEnd > 0
}

// CacheKey returns the normalized identity of the spec: whitespace-collapsed,
// quote-normalized query text plus the year range. Two specs with the same
// key must receive the same HitCountResult.
func (q QuerySpec) CacheKey() string {
	return fmt.Sprintf("%s|%d-%d", NormalizeQuery(q.QueryText()), q.YearStart, q.YearEnd)
}

// quoteNormalizer folds typographic quotes into plain ASCII ones so visually
// identical queries share a cache entry.
var quoteNormalizer = strings.NewReplacer(
	"“", `"`, "”", `"`,
	"‘", "'", "’", "'",
)

// NormalizeQuery collapses runs of whitespace and normalizes quote characters.
func NormalizeQuery(text string) string {
	return strings.Join(strings.Fields(quoteNormalizer.Replace(text)), " ")
}

// HitStatus classifies the outcome of one oracle call.
type HitStatus string

const (
	// StatusSuccess means Count is a real hit count (possibly zero).
	StatusSuccess HitStatus = "success"

	// StatusBlocked means the service signaled abuse detection and the retry
	// budget was exhausted. Count is 0 but must not be read as a true zero.
	StatusBlocked HitStatus = "blocked"

	// StatusNetworkError means transient connectivity failures persisted past
	// the short retry budget.
	StatusNetworkError HitStatus = "network_error"

	// StatusParseError means the response had an unexpected shape. Not retried.
	StatusParseError HitStatus = "parse_error"

	// StatusSimulated means Count was synthesized by the simulated oracle.
	StatusSimulated HitStatus = "simulated"
)

// HitCountResult is the oracle's answer for one QuerySpec. Created exactly
// once per distinct cache key and never mutated afterwards.
type HitCountResult struct {
	Spec      QuerySpec `json:"spec" yaml:"spec"`
	Count     int       `json:"count" yaml:"count"`
	Status    HitStatus `json:"status" yaml:"status"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// Resolved reports whether Count carries a usable hit count. Blocked,
// network-error, and parse-error results are unresolved: their zero count
// means "could not determine", not "zero hits".
func (r HitCountResult) Resolved() bool {
	return r.Status == StatusSuccess || r.Status == StatusSimulated
}

// EntryType tags how a committed strategy entry was formed.
type EntryType string

const (
	// EntrySingle is the base query alone or with one positive modifier.
	EntrySingle EntryType = "single"

	// EntryCombo conjoins two or more positive modifiers.
	EntryCombo EntryType = "combo"

	// EntryExclusion negates every consumed modifier, capturing the residual.
	EntryExclusion EntryType = "exclusion"
)

// SplitEntry is one committed element of a splitting strategy.
type SplitEntry struct {
	Spec  QuerySpec `json:"spec" yaml:"spec"`
	Count int       `json:"count" yaml:"count"`
	Type  EntryType `json:"type" yaml:"type"`

	// Oversized marks an entry whose count still exceeds the target after the
	// available modifiers were exhausted at maximum combination depth.
	Oversized bool `json:"oversized,omitempty" yaml:"oversized,omitempty"`

	// Unresolved marks an entry whose count could not be determined.
	Unresolved bool `json:"unresolved,omitempty" yaml:"unresolved,omitempty"`
}

// Positive reports whether the entry contributes positive coverage, as
// opposed to the residual exclusion entry.
func (e SplitEntry) Positive() bool {
	return e.Type == EntrySingle || e.Type == EntryCombo
}

// SplittingStrategy is the ordered partition plan for one year. Every entry
// not flagged Oversized or Unresolved has Count at or under the target size.
type SplittingStrategy struct {
	Year    int          `json:"year" yaml:"year"`
	Entries []SplitEntry `json:"entries" yaml:"entries"`
}
