// Copyright HCSS Utils, 2026. All rights reserved.

package oracle

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hcss-utils/scholar-query-splitter/pkg/types"
)

// Pacer spaces out oracle calls. Before every uncached call it waits on a
// shared token bucket and then sleeps a uniform random politeness delay; after
// a block signal it supplies an escalating backoff, reset on the next success.
//
// One Pacer is constructed per run and shared by every caller, so parallel
// callers cannot exceed the effective call frequency of the sequential case.
type Pacer struct {
	cfg     types.OracleConfig
	limiter *rate.Limiter

	mu         sync.Mutex
	blockDelay time.Duration
}

// NewPacer builds a pacer from oracle configuration. A zero RequestsPerMinute
// disables the token bucket, leaving only the politeness delay.
func NewPacer(cfg types.OracleConfig) *Pacer {
	p := &Pacer{cfg: cfg}
	if cfg.RequestsPerMinute > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerMinute/60.0), 1)
	}
	return p
}

// Wait blocks until the next oracle call may be issued: first the token
// bucket, then a delay drawn uniformly from [MinDelay, MaxDelay]. Returns
// ctx.Err() if the context is cancelled while waiting.
func (p *Pacer) Wait(ctx context.Context) error {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	return sleep(ctx, p.politenessDelay())
}

func (p *Pacer) politenessDelay() time.Duration {
	min, max := p.cfg.MinDelay, p.cfg.MaxDelay
	if max <= min {
		return min
	}
	return min + rand.N(max-min)
}

// WaitBlocked sleeps the current block backoff and escalates it for the next
// consecutive block: ErrorDelay, then multiplied by BackoffFactor per block,
// capped at MaxErrorDelay. It returns the delay it slept.
func (p *Pacer) WaitBlocked(ctx context.Context) (time.Duration, error) {
	d := p.nextBlockDelay()
	if err := sleep(ctx, d); err != nil {
		return 0, err
	}
	return d, nil
}

// nextBlockDelay advances the escalation state and returns the delay to sleep
// now. The returned sequence is non-decreasing and bounded by MaxErrorDelay.
func (p *Pacer) nextBlockDelay() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.blockDelay == 0 {
		p.blockDelay = p.cfg.ErrorDelay
	}
	d := p.blockDelay

	next := time.Duration(float64(p.blockDelay) * p.cfg.BackoffFactor)
	if next > p.cfg.MaxErrorDelay {
		next = p.cfg.MaxErrorDelay
	}
	if next > p.blockDelay {
		p.blockDelay = next
	}
	return d
}

// Reset clears the block escalation after a successful call.
func (p *Pacer) Reset() {
	p.mu.Lock()
	p.blockDelay = 0
	p.mu.Unlock()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
