// Copyright HCSS Utils, 2026. All rights reserved.

package splitter

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/hcss-utils/scholar-query-splitter/internal/oracle"
	"github.com/hcss-utils/scholar-query-splitter/pkg/types"
)

// YearStore persists per-year outcomes so an interrupted run resumes without
// re-issuing oracle calls for finished years.
type YearStore interface {
	// LoadYear returns the stored outcome for a year, or nil if absent.
	LoadYear(year int) (*types.YearOutcome, error)
	SaveYear(outcome types.YearOutcome) error
}

// Run drives the splitting engine across the configured year range: for each
// year it ranks modifiers, builds the strategy, and summarizes coverage, then
// aggregates everything into the final report. Oracle calls are issued from
// this single flow; cancellation between calls leaves a valid partial report.
// A year that cannot be fully covered is recorded incomplete, never fatal —
// the only fatal conditions are malformed configuration, rejected before any
// oracle call, and context cancellation.
func Run(ctx context.Context, counter oracle.Counter, candidates []types.Modifier, cfg types.SplitConfig, store YearStore, w io.Writer) (types.FinalReport, error) {
	cfg = cfg.WithSplitDefaults()
	if err := cfg.Validate(); err != nil {
		return types.FinalReport{}, err
	}

	report := types.FinalReport{
		BaseQuery:  cfg.BaseQuery,
		StartYear:  cfg.StartYear,
		EndYear:    cfg.EndYear,
		TargetSize: cfg.TargetSize,
		Timestamp:  time.Now(),
	}

	for year := cfg.StartYear; year <= cfg.EndYear; year++ {
		select {
		case <-ctx.Done():
			return finalize(report), ctx.Err()
		default:
		}

		if store != nil {
			stored, err := store.LoadYear(year)
			if err != nil {
				return finalize(report), fmt.Errorf("loading year %d: %w", year, err)
			}
			if stored != nil {
				fmt.Fprintf(w, "year %d: resumed from store (%d queries, %.1f%% coverage)\n",
					year, stored.Coverage.QueryCount, stored.Coverage.CoveragePercent*100)
				report.Years = append(report.Years, *stored)
				continue
			}
		}

		outcome, err := runYear(ctx, counter, candidates, cfg, year, w)
		if err != nil {
			return finalize(report), err
		}

		report.Years = append(report.Years, outcome)
		if store != nil {
			if err := store.SaveYear(outcome); err != nil {
				fmt.Fprintf(w, "warning: persisting year %d failed: %v\n", year, err)
			}
		}

		fmt.Fprintf(w, "year %d: %d queries, %.1f%% coverage\n",
			year, outcome.Coverage.QueryCount, outcome.Coverage.CoveragePercent*100)
	}

	return finalize(report), nil
}

func runYear(ctx context.Context, counter oracle.Counter, candidates []types.Modifier, cfg types.SplitConfig, year int, w io.Writer) (types.YearOutcome, error) {
	fmt.Fprintf(w, "year %d: counting base query\n", year)

	baseSpec := types.QuerySpec{Base: cfg.BaseQuery, YearStart: year, YearEnd: year}
	baseRes, err := counter.Count(ctx, baseSpec)
	if err != nil {
		return types.YearOutcome{}, err
	}

	if !baseRes.Resolved() {
		// Without a base count nothing can be planned for this year; record
		// it unresolved and move on rather than aborting the run.
		fmt.Fprintf(w, "warning: year %d: base count unresolved (%s)\n", year, baseRes.Status)
		strategy := types.SplittingStrategy{
			Year: year,
			Entries: []types.SplitEntry{
				{Spec: baseSpec, Type: types.EntrySingle, Unresolved: true},
			},
		}
		return types.YearOutcome{
			Year:     year,
			Strategy: strategy,
			Coverage: Summarize(strategy, 0, cfg.CoverageThreshold),
		}, nil
	}

	fmt.Fprintf(w, "year %d: base query has %d hits (target %d)\n", year, baseRes.Count, cfg.TargetSize)

	var ranked []RankedModifier
	if baseRes.Count > cfg.TargetSize {
		ranked, err = RankModifiers(ctx, counter, cfg.BaseQuery, year, year, baseRes.Count, candidates, cfg, w)
		if err != nil {
			return types.YearOutcome{}, err
		}
		fmt.Fprintf(w, "year %d: %d effective modifiers\n", year, len(ranked))
	}

	strategy, err := BuildStrategy(ctx, counter, cfg.BaseQuery, year, baseRes.Count, ranked, cfg, w)
	if err != nil {
		return types.YearOutcome{}, err
	}

	return types.YearOutcome{
		Year:     year,
		Strategy: strategy,
		Coverage: Summarize(strategy, baseRes.Count, cfg.CoverageThreshold),
	}, nil
}

// finalize fills the aggregate fields from the collected years: the overall
// coverage estimate is weighted by each year's base total.
func finalize(report types.FinalReport) types.FinalReport {
	var weighted float64
	var totalBase int

	for _, y := range report.Years {
		report.TotalQueries += len(y.Strategy.Entries)
		weighted += y.Coverage.CoveragePercent * float64(y.Coverage.BaseTotal)
		totalBase += y.Coverage.BaseTotal
		if y.Coverage.Incomplete {
			report.IncompleteYears = append(report.IncompleteYears, y.Year)
		}
	}
	if totalBase > 0 {
		report.OverallCoverage = weighted / float64(totalBase)
	}
	return report
}
