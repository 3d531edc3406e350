// Copyright HCSS Utils, 2026. All rights reserved.

package splitter

import "github.com/hcss-utils/scholar-query-splitter/pkg/types"

// Summarize accumulates a year's coverage estimate from its executed
// strategy. The residual is the count of the final exclusion entry, the one
// that negates every positive modifier of the deepest partition, so coverage
// is 1 - residual/baseTotal, clamped to [0, 1].
//
// Positive entries may overlap, and the oracle offers no item identities to
// deduplicate them, so PositiveTotal is an upper bound and CoveragePercent is
// an estimate, not a set-theoretic proof. A year falls below threshold, or
// carries an oversized or unresolved entry, and it is flagged incomplete;
// incompleteness is reported, never fatal.
func Summarize(strategy types.SplittingStrategy, baseTotal int, threshold float64) types.CoverageMap {
	cov := types.CoverageMap{
		Year:       strategy.Year,
		BaseTotal:  baseTotal,
		QueryCount: len(strategy.Entries),
	}

	degraded := false
	residual := 0
	for _, e := range strategy.Entries {
		if e.Oversized || e.Unresolved {
			degraded = true
		}
		if e.Positive() {
			cov.PositiveTotal += e.Count
		}
		if e.Type == types.EntryExclusion && !e.Unresolved {
			// Later exclusions refine earlier ones; the last wins.
			residual = e.Count
		}
	}
	cov.ResidualCount = residual

	if baseTotal > 0 {
		pct := 1.0 - float64(residual)/float64(baseTotal)
		if pct < 0 {
			pct = 0
		}
		if pct > 1 {
			pct = 1
		}
		cov.CoveragePercent = pct
	}

	cov.Incomplete = degraded || cov.CoveragePercent < threshold
	return cov
}
