// Copyright HCSS Utils, 2026. All rights reserved.

// Package splitter decomposes an over-cap boolean query into a bounded set of
// narrower sub-queries. The tester scores candidate modifiers by how well
// each narrows the base query, the builder greedily assembles single, combo,
// and exclusion sub-queries until every partition fits under the target size,
// and the coverage tracker estimates how much of the base result set the
// generated queries capture.
package splitter

import (
	"context"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/hcss-utils/scholar-query-splitter/internal/oracle"
	"github.com/hcss-utils/scholar-query-splitter/pkg/types"
)

// RankedModifier pairs a candidate with the hit count it produced when
// conjoined with the base query.
type RankedModifier struct {
	Modifier types.Modifier `json:"modifier" yaml:"modifier"`
	Count    int            `json:"count" yaml:"count"`
}

// RankModifiers probes a bounded sample of top-ranked candidates, one oracle
// call per candidate ANDed with the base query, and orders them by splitting
// effectiveness: counts close to the target size split the space most
// efficiently, zero-count candidates are useless, and candidates whose count
// equals the base count have no discriminating power. Keywords and entities
// are tested identically. Ties break on extraction score, descending.
func RankModifiers(ctx context.Context, counter oracle.Counter, base string, yearStart, yearEnd, baseCount int, candidates []types.Modifier, cfg types.SplitConfig, w io.Writer) ([]RankedModifier, error) {
	sample := sampleCandidates(candidates, cfg.SampleSize)

	var ranked []RankedModifier
	for _, m := range sample {
		spec := types.QuerySpec{
			Base:      base,
			Modifiers: []types.Modifier{m},
			Operator:  types.OpAnd,
			YearStart: yearStart,
			YearEnd:   yearEnd,
		}

		res, err := counter.Count(ctx, spec)
		if err != nil {
			return ranked, err
		}
		if !res.Resolved() {
			fmt.Fprintf(w, "warning: modifier %q unresolved (%s), skipping\n", m.Text, res.Status)
			continue
		}
		if res.Count == 0 || res.Count >= baseCount {
			continue
		}
		ranked = append(ranked, RankedModifier{Modifier: m, Count: res.Count})
	}

	target := float64(cfg.TargetSize)
	sort.SliceStable(ranked, func(i, j int) bool {
		di := splitDistance(float64(ranked[i].Count), target)
		dj := splitDistance(float64(ranked[j].Count), target)
		if di != dj {
			return di < dj
		}
		return ranked[i].Modifier.Score > ranked[j].Modifier.Score
	})

	return ranked, nil
}

// splitDistance measures how far a count is from the ideal chunk size, in log
// ratio so that "half the target" and "double the target" rank equally.
func splitDistance(count, target float64) float64 {
	return math.Abs(math.Log(count / target))
}

// sampleCandidates takes the top n candidates of each kind, preserving the
// provider's ranking within a kind.
func sampleCandidates(candidates []types.Modifier, n int) []types.Modifier {
	if n <= 0 {
		return candidates
	}
	perKind := make(map[types.ModifierKind]int)
	var sample []types.Modifier
	for _, m := range candidates {
		if perKind[m.Kind] >= n {
			continue
		}
		perKind[m.Kind]++
		sample = append(sample, m)
	}
	return sample
}
