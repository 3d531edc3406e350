// Copyright HCSS Utils, 2026. All rights reserved.

package types

import "time"

// CoverageMap summarizes how much of one year's result set the generated
// sub-queries capture. CoveragePercent is an upper-bound estimate: positive
// entries may overlap, and the oracle exposes only aggregate counts, so the
// overlap cannot be deduplicated.
type CoverageMap struct {
	Year      int `json:"year" yaml:"year"`
	BaseTotal int `json:"base_total" yaml:"base_total"`

	// PositiveTotal sums the counts of all single and combo entries.
	PositiveTotal int `json:"positive_total" yaml:"positive_total"`

	// ResidualCount is the hit count of the exclusion query that negates
	// every consumed modifier. Zero when the base query fit under the target.
	ResidualCount int `json:"residual_count" yaml:"residual_count"`

	// CoveragePercent is 1 - ResidualCount/BaseTotal, clamped to [0, 1].
	CoveragePercent float64 `json:"coverage_percent" yaml:"coverage_percent"`

	// Incomplete is set when CoveragePercent falls below the configured
	// threshold or when any entry is oversized or unresolved.
	Incomplete bool `json:"incomplete,omitempty" yaml:"incomplete,omitempty"`

	QueryCount int `json:"query_count" yaml:"query_count"`
}

// YearOutcome pairs a year's strategy with its coverage summary. This is the
// unit of persistence: a resumed run reloads finished years from the store.
type YearOutcome struct {
	Year     int               `json:"year" yaml:"year"`
	Strategy SplittingStrategy `json:"strategy" yaml:"strategy"`
	Coverage CoverageMap       `json:"coverage" yaml:"coverage"`
}

// QueryRecord is one row of the persisted query list.
type QueryRecord struct {
	Year      int       `json:"year" yaml:"year"`
	QueryID   int       `json:"query_id" yaml:"query_id"`
	QueryText string    `json:"query" yaml:"query"`
	Modifiers []string  `json:"modifiers" yaml:"modifiers"`
	Type      EntryType `json:"type" yaml:"type"`
	HitCount  int       `json:"hits" yaml:"hits"`
}

// FinalReport aggregates all per-year outcomes for a run.
type FinalReport struct {
	BaseQuery  string    `json:"base_query" yaml:"base_query"`
	StartYear  int       `json:"start_year" yaml:"start_year"`
	EndYear    int       `json:"end_year" yaml:"end_year"`
	TargetSize int       `json:"target_size" yaml:"target_size"`
	Timestamp  time.Time `json:"timestamp" yaml:"timestamp"`

	Years []YearOutcome `json:"years" yaml:"years"`

	// TotalQueries counts every committed entry across all years.
	TotalQueries int `json:"total_queries" yaml:"total_queries"`

	// OverallCoverage is the base-total-weighted mean of per-year coverage.
	OverallCoverage float64 `json:"overall_coverage" yaml:"overall_coverage"`

	// IncompleteYears lists years whose coverage fell short of the threshold.
	IncompleteYears []int `json:"incomplete_years,omitempty" yaml:"incomplete_years,omitempty"`
}

// Records flattens the report into persisted query list rows, numbering
// queries sequentially within each year.
func (r FinalReport) Records() []QueryRecord {
	var records []QueryRecord
	for _, y := range r.Years {
		for i, e := range y.Strategy.Entries {
			mods := make([]string, 0, len(e.Spec.Modifiers))
			for _, m := range e.Spec.Modifiers {
				mods = append(mods, m.Text)
			}
			records = append(records, QueryRecord{
				Year:      y.Year,
				QueryID:   i + 1,
				QueryText: e.Spec.QueryText(),
				Modifiers: mods,
				Type:      e.Type,
				HitCount:  e.Count,
			})
		}
	}
	return records
}
