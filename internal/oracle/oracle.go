// Copyright HCSS Utils, 2026. All rights reserved.

// Package oracle answers "how many hits does this query have" against the
// external search endpoint. The real client paces itself aggressively and
// classifies every expected failure into a typed status instead of an error;
// a caching decorator guarantees one external call per distinct query, and a
// simulated client satisfies the same contract offline.
package oracle

import (
	"context"

	"github.com/hcss-utils/scholar-query-splitter/pkg/types"
)

// Counter answers hit-count questions for query specs.
//
// Count returns an error only for context cancellation or programmer-level
// misuse. Expected failure modes of the external service (blocks, transient
// network faults, unparseable responses) are reported through the result's
// Status so callers can distinguish "true zero hits" from "could not
// determine" and pattern-match their recovery policy per kind.
type Counter interface {
	Count(ctx context.Context, spec types.QuerySpec) (types.HitCountResult, error)
}
