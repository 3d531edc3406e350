// Copyright HCSS Utils, 2026. All rights reserved.

package splitter

import (
	"context"
	"fmt"
	"io"

	"github.com/hcss-utils/scholar-query-splitter/internal/oracle"
	"github.com/hcss-utils/scholar-query-splitter/pkg/types"
)

// BuildStrategy assembles the partition plan for one year. Walking the ranked
// modifiers in effectiveness order it commits single-modifier queries that
// fit under the target, deepens over-cap ones into combos up to MaxDepth, and
// closes each partition with an exclusion query negating every consumed
// modifier. An exclusion still over the cap is recursively decomposed with
// the remaining modifiers under the same MaxQueries/MaxDepth budgets. When no
// modifier can bring a partition under the cap the entry is committed flagged
// oversized rather than looping.
func BuildStrategy(ctx context.Context, counter oracle.Counter, base string, year, baseCount int, ranked []RankedModifier, cfg types.SplitConfig, w io.Writer) (types.SplittingStrategy, error) {
	strategy := types.SplittingStrategy{Year: year}

	baseSpec := types.QuerySpec{Base: base, YearStart: year, YearEnd: year}

	// Inclusive boundary: a base count exactly at the target is satisfied.
	if baseCount <= cfg.TargetSize {
		strategy.Entries = append(strategy.Entries, types.SplitEntry{
			Spec:  baseSpec,
			Count: baseCount,
			Type:  types.EntrySingle,
		})
		return strategy, nil
	}

	b := &builder{
		counter:  counter,
		cfg:      cfg,
		year:     year,
		w:        w,
		consumed: make(map[string]bool),
	}

	if err := b.splitPartition(ctx, base, baseCount, ranked, cfg.MaxDepth); err != nil {
		strategy.Entries = b.entries
		return strategy, err
	}

	// Every candidate was useless: commit the base itself so the year is
	// represented, oversized, and let the report mark it incomplete.
	if len(b.entries) == 0 {
		fmt.Fprintf(w, "warning: year %d: no modifier narrows the base query, committing oversized\n", year)
		b.entries = append(b.entries, types.SplitEntry{
			Spec:      baseSpec,
			Count:     baseCount,
			Type:      types.EntrySingle,
			Oversized: true,
		})
	}

	strategy.Entries = b.entries
	return strategy, nil
}

type builder struct {
	counter  oracle.Counter
	cfg      types.SplitConfig
	year     int
	w        io.Writer
	entries  []types.SplitEntry
	consumed map[string]bool
}

func (b *builder) positiveBudget() int {
	return b.cfg.MaxQueries - len(b.entries)
}

func (b *builder) spec(base string, mods ...types.Modifier) types.QuerySpec {
	return types.QuerySpec{
		Base:      base,
		Modifiers: mods,
		Operator:  types.OpAnd,
		YearStart: b.year,
		YearEnd:   b.year,
	}
}

// splitPartition decomposes one partition: positive entries first, then the
// exclusion that captures whatever they missed. residualDepth bounds how many
// times an over-cap exclusion may itself be decomposed.
func (b *builder) splitPartition(ctx context.Context, base string, baseCount int, ranked []RankedModifier, residualDepth int) error {
	var used []types.Modifier

	for i := range ranked {
		if b.positiveBudget() <= 0 {
			break
		}
		m := ranked[i]
		if b.consumed[m.Modifier.Text] {
			continue
		}

		spec := b.spec(base, m.Modifier)
		res, err := b.counter.Count(ctx, spec)
		if err != nil {
			return err
		}
		if !res.Resolved() {
			fmt.Fprintf(b.w, "warning: probe %q unresolved (%s)\n", spec.QueryText(), res.Status)
			continue
		}
		// Zero hits narrows nothing; a count equal to the partition's base is
		// degenerate, likely a parsing artifact rather than a real filter.
		if res.Count == 0 || res.Count >= baseCount {
			continue
		}

		var entry types.SplitEntry
		if res.Count <= b.cfg.TargetSize {
			entry = types.SplitEntry{Spec: spec, Count: res.Count, Type: types.EntrySingle}
		} else {
			deepened, err := b.deepen(ctx, spec, res.Count, ranked[i+1:])
			if err != nil {
				return err
			}
			entry = deepened
		}

		b.entries = append(b.entries, entry)
		for _, em := range entry.Spec.Modifiers {
			b.consumed[em.Text] = true
		}
		used = append(used, entry.Spec.Modifiers...)
	}

	if len(used) == 0 {
		return nil
	}

	return b.addExclusion(ctx, base, used, ranked, residualDepth)
}

// deepen grows an over-cap single into a combo by conjoining further
// unconsumed modifiers, one per depth level, until the count fits or MaxDepth
// is reached. At MaxDepth the smallest spec reached is committed oversized.
func (b *builder) deepen(ctx context.Context, spec types.QuerySpec, count int, rest []RankedModifier) (types.SplitEntry, error) {
	// Depth budget is enforced before probing deeper, never after.
	if len(spec.Modifiers) >= b.cfg.MaxDepth {
		return types.SplitEntry{Spec: spec, Count: count, Type: entryType(spec), Oversized: true}, nil
	}

	for j := range rest {
		m := rest[j]
		if b.consumed[m.Modifier.Text] || containsModifier(spec.Modifiers, m.Modifier.Text) {
			continue
		}

		next := spec
		next.Modifiers = append(append([]types.Modifier{}, spec.Modifiers...), m.Modifier)

		res, err := b.counter.Count(ctx, next)
		if err != nil {
			return types.SplitEntry{}, err
		}
		if !res.Resolved() || res.Count == 0 || res.Count >= count {
			continue
		}
		if res.Count <= b.cfg.TargetSize {
			return types.SplitEntry{Spec: next, Count: res.Count, Type: types.EntryCombo}, nil
		}
		return b.deepen(ctx, next, res.Count, rest[j+1:])
	}

	// No remaining modifier reduces this partition further.
	return types.SplitEntry{Spec: spec, Count: count, Type: entryType(spec), Oversized: true}, nil
}

// addExclusion closes a partition with base AND NOT every consumed modifier.
// An over-cap residual is itself decomposed with the remaining modifiers
// while residualDepth allows; otherwise the entry is committed as-is, flagged
// oversized.
func (b *builder) addExclusion(ctx context.Context, base string, used []types.Modifier, ranked []RankedModifier, residualDepth int) error {
	spec := types.QuerySpec{
		Base:      base,
		Modifiers: used,
		Operator:  types.OpNot,
		YearStart: b.year,
		YearEnd:   b.year,
	}

	res, err := b.counter.Count(ctx, spec)
	if err != nil {
		return err
	}

	entry := types.SplitEntry{Spec: spec, Count: res.Count, Type: types.EntryExclusion}
	if !res.Resolved() {
		entry.Unresolved = true
		b.entries = append(b.entries, entry)
		return nil
	}

	if res.Count > b.cfg.TargetSize && residualDepth > 0 && b.positiveBudget() > 0 && b.hasUnconsumed(ranked) {
		fmt.Fprintf(b.w, "residual still %d hits, decomposing further\n", res.Count)
		before := len(b.entries)
		if err := b.splitPartition(ctx, spec.QueryText(), res.Count, ranked, residualDepth-1); err != nil {
			return err
		}
		if len(b.entries) > before {
			return nil
		}
		// The recursion consumed nothing, so the residual must still be
		// represented by this entry.
	}

	entry.Oversized = res.Count > b.cfg.TargetSize
	b.entries = append(b.entries, entry)
	return nil
}

func (b *builder) hasUnconsumed(ranked []RankedModifier) bool {
	for _, m := range ranked {
		if !b.consumed[m.Modifier.Text] {
			return true
		}
	}
	return false
}

func entryType(spec types.QuerySpec) types.EntryType {
	if len(spec.Modifiers) > 1 {
		return types.EntryCombo
	}
	return types.EntrySingle
}

func containsModifier(mods []types.Modifier, text string) bool {
	for _, m := range mods {
		if m.Text == text {
			return true
		}
	}
	return false
}
