// Copyright HCSS Utils, 2026. All rights reserved.

package oracle

import (
	"context"
	"sync"

	"github.com/hcss-utils/scholar-query-splitter/pkg/types"
)

// Persister is an optional write-through layer under the in-memory cache,
// letting a resumed run reuse counts from an earlier process. Only resolved
// results are persisted; a blocked or errored probe may succeed next run.
type Persister interface {
	LookupCount(key string) (types.HitCountResult, bool, error)
	SaveCount(key string, result types.HitCountResult) error
}

type cacheEntry struct {
	done chan struct{}
	res  types.HitCountResult
	err  error
}

// CachedCounter memoizes another Counter by normalized query text plus year
// range. A second request for a cached key returns the stored result without
// an external call. Concurrent first requests for the same key are collapsed:
// the first writer issues the call, later callers block until it completes
// and reuse its result.
type CachedCounter struct {
	next  Counter
	store Persister

	mu      sync.Mutex
	entries map[string]*cacheEntry
}

// NewCachedCounter wraps next with memoization. store may be nil.
func NewCachedCounter(next Counter, store Persister) *CachedCounter {
	return &CachedCounter{
		next:    next,
		store:   store,
		entries: make(map[string]*cacheEntry),
	}
}

// Count returns the memoized result for spec's cache key, issuing at most one
// call to the underlying counter per key for the cache's lifetime.
func (c *CachedCounter) Count(ctx context.Context, spec types.QuerySpec) (types.HitCountResult, error) {
	key := spec.CacheKey()

	for {
		c.mu.Lock()
		if e, ok := c.entries[key]; ok {
			c.mu.Unlock()
			select {
			case <-ctx.Done():
				return types.HitCountResult{Spec: spec}, ctx.Err()
			case <-e.done:
			}
			if e.err != nil {
				// The first writer was cancelled; its entry is gone, so the
				// next iteration competes to become the new writer.
				if ctx.Err() != nil {
					return types.HitCountResult{Spec: spec}, ctx.Err()
				}
				continue
			}
			return e.res, nil
		}

		if c.store != nil {
			if res, ok, err := c.store.LookupCount(key); err == nil && ok {
				e := &cacheEntry{done: make(chan struct{}), res: res}
				close(e.done)
				c.entries[key] = e
				c.mu.Unlock()
				return res, nil
			}
		}

		e := &cacheEntry{done: make(chan struct{})}
		c.entries[key] = e
		c.mu.Unlock()

		res, err := c.next.Count(ctx, spec)

		c.mu.Lock()
		if err != nil {
			delete(c.entries, key)
			e.err = err
		} else {
			e.res = res
			if c.store != nil && res.Resolved() {
				// Persistence failures are not fatal; the in-memory entry
				// still serves this run.
				_ = c.store.SaveCount(key, res)
			}
		}
		c.mu.Unlock()
		close(e.done)

		return res, err
	}
}

// CachedLen reports how many distinct keys the cache holds. Used by progress
// reporting and tests.
func (c *CachedCounter) CachedLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
