// Copyright HCSS Utils, 2026. All rights reserved.

package oracle

import (
	"context"
	"hash/fnv"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/hcss-utils/scholar-query-splitter/pkg/types"
)

// SimulatedCounter synthesizes hit counts without contacting any external
// service. Counts are deterministic per query: the base expression and year
// seed a pseudo-random base count, and every modifier applies a stable
// narrowing factor, so more AND terms always yield smaller counts and an
// exclusion query yields the complementary residual. The splitting logic can
// therefore be exercised end to end with repeatable outcomes.
type SimulatedCounter struct {
	// MaxCount bounds the synthesized base counts (default 10000).
	MaxCount int

	// BlockFirst makes the first N calls per key report a block, exercising
	// unresolved-result handling downstream.
	BlockFirst int

	mu    sync.Mutex
	calls map[string]int
}

// NewSimulatedCounter returns a simulated oracle with default bounds.
func NewSimulatedCounter() *SimulatedCounter {
	return &SimulatedCounter{MaxCount: 10000}
}

// Count synthesizes a result for spec. The only possible error is context
// cancellation.
func (s *SimulatedCounter) Count(ctx context.Context, spec types.QuerySpec) (types.HitCountResult, error) {
	if err := ctx.Err(); err != nil {
		return types.HitCountResult{Spec: spec}, err
	}

	result := types.HitCountResult{Spec: spec, Timestamp: time.Now()}

	key := spec.CacheKey()
	s.mu.Lock()
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	s.calls[key]++
	blocked := s.calls[key] <= s.BlockFirst
	s.mu.Unlock()

	if blocked {
		result.Status = types.StatusBlocked
		return result, nil
	}

	result.Count = s.synthesize(spec)
	result.Status = types.StatusSimulated
	return result, nil
}

// CallsFor reports how many times a key was requested. Used by tests to
// assert cache idempotence.
func (s *SimulatedCounter) CallsFor(spec types.QuerySpec) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[spec.CacheKey()]
}

func (s *SimulatedCounter) synthesize(spec types.QuerySpec) int {
	maxCount := s.MaxCount
	if maxCount <= 0 {
		maxCount = 10000
	}

	base := baseCount(spec.Base, spec.YearStart, spec.YearEnd, maxCount)

	scale := 1.0
	for _, m := range spec.Modifiers {
		f := narrowingFactor(m.Text)
		if spec.Operator == types.OpNot {
			f = 1.0 - f
		}
		scale *= f
	}

	return int(float64(base) * scale)
}

// baseCount derives a stable pseudo-random count in [maxCount/10, maxCount]
// from the base expression and year range.
func baseCount(base string, yearStart, yearEnd, maxCount int) int {
	rng := seededRand(base, yearStart, yearEnd)
	floor := maxCount / 10
	return floor + rng.IntN(maxCount-floor+1)
}

// narrowingFactor maps a modifier to a stable fraction in [0.05, 0.45]: every
// AND term cuts the count at least in half, and distinct terms cut it by
// distinct amounts.
func narrowingFactor(text string) float64 {
	rng := seededRand(text, 0, 0)
	return 0.05 + rng.Float64()*0.40
}

func seededRand(text string, a, b int) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(types.NormalizeQuery(text)))
	h.Write([]byte{byte(a), byte(a >> 8), byte(b), byte(b >> 8)})
	seed := h.Sum64()
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
