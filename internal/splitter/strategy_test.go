// Copyright HCSS Utils, 2026. All rights reserved.

package splitter

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hcss-utils/scholar-query-splitter/pkg/types"
)

// scriptedCounter answers probes from a fixed table of query text to hit
// count, per year. Unknown queries resolve to zero so they are discarded
// rather than failing the walk; forced statuses simulate blocks and faults.
type scriptedCounter struct {
	mu     sync.Mutex
	counts map[int]map[string]int
	status map[string]types.HitStatus
	calls  int
}

func newScriptedCounter() *scriptedCounter {
	return &scriptedCounter{
		counts: make(map[int]map[string]int),
		status: make(map[string]types.HitStatus),
	}
}

func (s *scriptedCounter) set(year int, query string, count int) {
	if s.counts[year] == nil {
		s.counts[year] = make(map[string]int)
	}
	s.counts[year][types.NormalizeQuery(query)] = count
}

func (s *scriptedCounter) force(query string, status types.HitStatus) {
	s.status[types.NormalizeQuery(query)] = status
}

func (s *scriptedCounter) Count(ctx context.Context, spec types.QuerySpec) (types.HitCountResult, error) {
	if err := ctx.Err(); err != nil {
		return types.HitCountResult{Spec: spec}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	text := types.NormalizeQuery(spec.QueryText())
	if st, ok := s.status[text]; ok {
		return types.HitCountResult{Spec: spec, Status: st}, nil
	}
	return types.HitCountResult{
		Spec:   spec,
		Count:  s.counts[spec.YearStart][text],
		Status: types.StatusSuccess,
	}, nil
}

func (s *scriptedCounter) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func kw(text string, score float64) types.Modifier {
	return types.Modifier{Text: text, Kind: types.KindKeyword, Score: score}
}

func rankedOf(mods ...RankedModifier) []RankedModifier { return mods }

func testSplitConfig() types.SplitConfig {
	return types.SplitConfig{
		BaseQuery:         "climate adaptation",
		StartYear:         2020,
		EndYear:           2020,
		TargetSize:        900,
		SampleSize:        30,
		MaxQueries:        50,
		MaxDepth:          3,
		CoverageThreshold: 0.95,
	}
}

func TestBuildStrategyBaseUnderTarget(t *testing.T) {
	counter := newScriptedCounter()
	cfg := testSplitConfig()

	strategy, err := BuildStrategy(context.Background(), counter, "climate adaptation", 2020, 750, nil, cfg, &bytes.Buffer{})
	require.NoError(t, err)

	require.Len(t, strategy.Entries, 1)
	e := strategy.Entries[0]
	assert.Equal(t, types.EntrySingle, e.Type)
	assert.Equal(t, 750, e.Count)
	assert.Equal(t, "climate adaptation", e.Spec.QueryText())
	assert.False(t, e.Oversized)
	assert.Equal(t, 0, counter.callCount(), "a base under the target needs no probes")
}

func TestBuildStrategyBaseExactlyAtTarget(t *testing.T) {
	counter := newScriptedCounter()
	cfg := testSplitConfig()

	strategy, err := BuildStrategy(context.Background(), counter, "climate adaptation", 2020, 900, nil, cfg, &bytes.Buffer{})
	require.NoError(t, err)

	require.Len(t, strategy.Entries, 1)
	assert.False(t, strategy.Entries[0].Oversized, "the boundary is inclusive")
}

func TestBuildStrategySinglesComboAndExclusion(t *testing.T) {
	counter := newScriptedCounter()
	counter.set(2020, `climate adaptation AND "resilience"`, 800)
	counter.set(2020, `climate adaptation AND "policy"`, 1200)
	counter.set(2020, `climate adaptation AND "policy" AND "flood"`, 400)
	counter.set(2020, `climate adaptation AND "governance"`, 850)
	counter.set(2020, `climate adaptation AND NOT "resilience" AND NOT "policy" AND NOT "flood" AND NOT "governance"`, 300)

	ranked := rankedOf(
		RankedModifier{Modifier: kw("resilience", 0.9), Count: 800},
		RankedModifier{Modifier: kw("policy", 0.8), Count: 1200},
		RankedModifier{Modifier: kw("flood", 0.7), Count: 600},
		RankedModifier{Modifier: kw("governance", 0.6), Count: 850},
	)

	strategy, err := BuildStrategy(context.Background(), counter, "climate adaptation", 2020, 3456, ranked, testSplitConfig(), &bytes.Buffer{})
	require.NoError(t, err)
	require.Len(t, strategy.Entries, 4)

	assert.Equal(t, types.EntrySingle, strategy.Entries[0].Type)
	assert.Equal(t, 800, strategy.Entries[0].Count)
	assert.Equal(t, `climate adaptation AND "resilience"`, strategy.Entries[0].Spec.QueryText())

	// Policy alone is over the target, so it deepens into a combo.
	assert.Equal(t, types.EntryCombo, strategy.Entries[1].Type)
	assert.Equal(t, 400, strategy.Entries[1].Count)
	assert.Equal(t, `climate adaptation AND "policy" AND "flood"`, strategy.Entries[1].Spec.QueryText())

	// Flood was consumed by the combo, so governance is the next single.
	assert.Equal(t, types.EntrySingle, strategy.Entries[2].Type)
	assert.Equal(t, 850, strategy.Entries[2].Count)

	last := strategy.Entries[3]
	assert.Equal(t, types.EntryExclusion, last.Type)
	assert.Equal(t, 300, last.Count)
	assert.False(t, last.Oversized)
	assert.Equal(t,
		`climate adaptation AND NOT "resilience" AND NOT "policy" AND NOT "flood" AND NOT "governance"`,
		last.Spec.QueryText())

	// Every committed entry fits under the target.
	for _, e := range strategy.Entries {
		assert.LessOrEqual(t, e.Count, 900)
	}
}

func TestBuildStrategyDecomposesOverCapResidual(t *testing.T) {
	counter := newScriptedCounter()
	counter.set(2021, `migration AND "drought"`, 600)
	counter.set(2021, `migration AND "famine"`, 4000) // >= base count, degenerate
	counter.set(2021, `migration AND NOT "drought"`, 2600)
	counter.set(2021, `migration AND NOT "drought" AND "famine"`, 700)
	counter.set(2021, `migration AND NOT "drought" AND NOT "famine"`, 500)

	ranked := rankedOf(
		RankedModifier{Modifier: kw("drought", 0.9), Count: 600},
		RankedModifier{Modifier: kw("famine", 0.8), Count: 4000},
	)

	cfg := testSplitConfig()
	var buf bytes.Buffer
	strategy, err := BuildStrategy(context.Background(), counter, "migration", 2021, 3456, ranked, cfg, &buf)
	require.NoError(t, err)
	require.Len(t, strategy.Entries, 3)

	assert.Equal(t, `migration AND "drought"`, strategy.Entries[0].Spec.QueryText())

	// The over-cap residual becomes a new partition base for the modifier
	// that was degenerate against the original base.
	assert.Equal(t, `migration AND NOT "drought" AND "famine"`, strategy.Entries[1].Spec.QueryText())
	assert.Equal(t, 700, strategy.Entries[1].Count)
	assert.Equal(t, types.EntrySingle, strategy.Entries[1].Type)

	last := strategy.Entries[2]
	assert.Equal(t, types.EntryExclusion, last.Type)
	assert.Equal(t, 500, last.Count)
	assert.Contains(t, buf.String(), "decomposing further")
}

func TestBuildStrategyDepthLimitCommitsOversized(t *testing.T) {
	counter := newScriptedCounter()
	counter.set(2020, `climate adaptation AND "alpha"`, 2000)
	counter.set(2020, `climate adaptation AND "alpha" AND "beta"`, 1500)
	// gamma narrows nothing anywhere; the query table leaves it at zero.
	counter.set(2020, `climate adaptation AND NOT "alpha" AND NOT "beta"`, 2900)

	ranked := rankedOf(
		RankedModifier{Modifier: kw("alpha", 0.9), Count: 2000},
		RankedModifier{Modifier: kw("beta", 0.8), Count: 1500},
		RankedModifier{Modifier: kw("gamma", 0.7), Count: 100},
	)

	cfg := testSplitConfig()
	cfg.MaxDepth = 2

	strategy, err := BuildStrategy(context.Background(), counter, "climate adaptation", 2020, 3456, ranked, cfg, &bytes.Buffer{})
	require.NoError(t, err)
	require.Len(t, strategy.Entries, 2)

	combo := strategy.Entries[0]
	assert.Equal(t, types.EntryCombo, combo.Type)
	assert.Equal(t, 1500, combo.Count)
	assert.True(t, combo.Oversized, "depth limit reached with the count still over the target")

	// The residual is over the cap too, and the only unconsumed modifier is
	// useless in it, so the exclusion is committed oversized rather than lost.
	last := strategy.Entries[1]
	assert.Equal(t, types.EntryExclusion, last.Type)
	assert.Equal(t, 2900, last.Count)
	assert.True(t, last.Oversized)
}

func TestBuildStrategyMaxQueriesBoundsPositives(t *testing.T) {
	counter := newScriptedCounter()
	counter.set(2020, `climate adaptation AND "alpha"`, 700)
	counter.set(2020, `climate adaptation AND "beta"`, 650)
	counter.set(2020, `climate adaptation AND "gamma"`, 600)
	counter.set(2020, `climate adaptation AND NOT "alpha" AND NOT "beta"`, 800)

	ranked := rankedOf(
		RankedModifier{Modifier: kw("alpha", 0.9), Count: 700},
		RankedModifier{Modifier: kw("beta", 0.8), Count: 650},
		RankedModifier{Modifier: kw("gamma", 0.7), Count: 600},
	)

	cfg := testSplitConfig()
	cfg.MaxQueries = 2

	strategy, err := BuildStrategy(context.Background(), counter, "climate adaptation", 2020, 3456, ranked, cfg, &bytes.Buffer{})
	require.NoError(t, err)

	// Two positives plus the closing exclusion; gamma never probed.
	require.Len(t, strategy.Entries, 3)
	assert.Equal(t, types.EntrySingle, strategy.Entries[0].Type)
	assert.Equal(t, types.EntrySingle, strategy.Entries[1].Type)
	assert.Equal(t, types.EntryExclusion, strategy.Entries[2].Type)
}

func TestBuildStrategyNoUsefulModifierCommitsOversizedBase(t *testing.T) {
	counter := newScriptedCounter()
	// Both candidates resolve to zero hits: useless.
	ranked := rankedOf(
		RankedModifier{Modifier: kw("alpha", 0.9), Count: 10},
		RankedModifier{Modifier: kw("beta", 0.8), Count: 10},
	)

	var buf bytes.Buffer
	strategy, err := BuildStrategy(context.Background(), counter, "climate adaptation", 2020, 3456, ranked, testSplitConfig(), &buf)
	require.NoError(t, err)

	require.Len(t, strategy.Entries, 1)
	e := strategy.Entries[0]
	assert.Equal(t, types.EntrySingle, e.Type)
	assert.True(t, e.Oversized)
	assert.Equal(t, 3456, e.Count)
	assert.Contains(t, buf.String(), "no modifier narrows")
}

func TestBuildStrategyUnresolvedExclusion(t *testing.T) {
	counter := newScriptedCounter()
	counter.set(2020, `climate adaptation AND "alpha"`, 700)
	counter.force(`climate adaptation AND NOT "alpha"`, types.StatusBlocked)

	ranked := rankedOf(RankedModifier{Modifier: kw("alpha", 0.9), Count: 700})

	strategy, err := BuildStrategy(context.Background(), counter, "climate adaptation", 2020, 3456, ranked, testSplitConfig(), &bytes.Buffer{})
	require.NoError(t, err)
	require.Len(t, strategy.Entries, 2)

	last := strategy.Entries[1]
	assert.Equal(t, types.EntryExclusion, last.Type)
	assert.True(t, last.Unresolved)
}

func TestBuildStrategyUnresolvedProbeSkipped(t *testing.T) {
	counter := newScriptedCounter()
	counter.force(`climate adaptation AND "alpha"`, types.StatusBlocked)
	counter.set(2020, `climate adaptation AND "beta"`, 700)
	counter.set(2020, `climate adaptation AND NOT "beta"`, 850)

	ranked := rankedOf(
		RankedModifier{Modifier: kw("alpha", 0.9), Count: 700},
		RankedModifier{Modifier: kw("beta", 0.8), Count: 700},
	)

	var buf bytes.Buffer
	strategy, err := BuildStrategy(context.Background(), counter, "climate adaptation", 2020, 3456, ranked, testSplitConfig(), &buf)
	require.NoError(t, err)

	require.Len(t, strategy.Entries, 2)
	assert.Equal(t, `climate adaptation AND "beta"`, strategy.Entries[0].Spec.QueryText())
	assert.Contains(t, buf.String(), "unresolved")
}

func TestBuildStrategyCancelledContext(t *testing.T) {
	counter := newScriptedCounter()
	ranked := rankedOf(RankedModifier{Modifier: kw("alpha", 0.9), Count: 700})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := BuildStrategy(ctx, counter, "climate adaptation", 2020, 3456, ranked, testSplitConfig(), &bytes.Buffer{})
	assert.ErrorIs(t, err, context.Canceled)
}
