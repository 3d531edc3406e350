// Copyright HCSS Utils, 2026. All rights reserved.

// Package modifiers loads and filters the candidate narrowing terms produced
// by the external keyword/entity extraction step. The extraction models
// themselves are out of process; this package consumes their ranked output
// files and normalizes both kinds into the shared Modifier form.
package modifiers

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/hcss-utils/scholar-query-splitter/pkg/types"
)

// stopPhrases are generic scholarly boilerplate terms that narrow nothing.
var stopPhrases = map[string]bool{
	"case study":        true,
	"literature review": true,
	"systematic review": true,
	"meta analysis":     true,
	"research paper":    true,
	"conference paper":  true,
	"journal article":   true,
	"working paper":     true,
	"technical report":  true,
}

// candidateFile is the on-disk shape the extraction step writes.
type candidateFile struct {
	Keywords []struct {
		Text  string  `json:"text"`
		Score float64 `json:"score"`
	} `json:"keywords"`
	Entities []struct {
		Text     string  `json:"text"`
		Category string  `json:"category"`
		Score    float64 `json:"score"`
	} `json:"entities"`
}

// CandidateSet holds pre-ranked keyword and entity candidates.
type CandidateSet struct {
	Keywords []types.Modifier
	Entities []types.Modifier
}

// Load reads a candidate file produced by the extraction step. Both lists
// keep the provider's ranking order.
func Load(path string) (CandidateSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return CandidateSet{}, fmt.Errorf("reading candidates %s: %w", path, err)
	}

	var cf candidateFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return CandidateSet{}, fmt.Errorf("parsing candidates %s: %w", path, err)
	}

	var set CandidateSet
	for _, k := range cf.Keywords {
		set.Keywords = append(set.Keywords, types.Modifier{
			Text:  k.Text,
			Kind:  types.KindKeyword,
			Score: k.Score,
		})
	}
	for _, e := range cf.Entities {
		set.Entities = append(set.Entities, types.Modifier{
			Text:     e.Text,
			Kind:     types.KindEntity,
			Category: e.Category,
			Score:    e.Score,
		})
	}
	return set, nil
}

// Filter keeps only candidates usable as narrowing modifiers: uni- and
// bi-grams that are not stop phrases, do not already appear in the base
// query, and are unique by text across both kinds.
func (c CandidateSet) Filter(baseQuery string) CandidateSet {
	base := strings.ToLower(baseQuery)
	seen := make(map[string]bool)

	keep := func(m types.Modifier) bool {
		text := strings.ToLower(strings.TrimSpace(m.Text))
		if text == "" || seen[text] {
			return false
		}
		if n := len(strings.Fields(text)); n == 0 || n > 2 {
			return false
		}
		if stopPhrases[text] || strings.Contains(base, text) {
			return false
		}
		seen[text] = true
		return true
	}

	var out CandidateSet
	for _, m := range c.Keywords {
		if keep(m) {
			out.Keywords = append(out.Keywords, m)
		}
	}
	for _, m := range c.Entities {
		if keep(m) {
			out.Entities = append(out.Entities, m)
		}
	}
	return out
}

// Merged concatenates keywords then entities, preserving per-kind ranking.
// The effectiveness tester samples each kind independently, so order between
// kinds does not bias the probes.
func (c CandidateSet) Merged() []types.Modifier {
	merged := make([]types.Modifier, 0, len(c.Keywords)+len(c.Entities))
	merged = append(merged, c.Keywords...)
	merged = append(merged, c.Entities...)
	return merged
}
