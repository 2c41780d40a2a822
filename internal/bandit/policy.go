// Recomate - Conversational Companion Topic Engine
// Copyright 2026 yasut0ra
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/yasut0ra/recomate

package bandit

import (
	"gonum.org/v1/gonum/mat"
)

// Policy implements disjoint linear UCB selection over catalog arms.
// Selection is read-only with respect to model state: each candidate is
// scored from a snapshot, so a concurrent reward application can never
// be half-visible to a single selection pass.
type Policy struct {
	alpha float64
}

func newPolicy(alpha float64) *Policy {
	return &Policy{alpha: alpha}
}

// Alpha returns the exploration weight.
func (p *Policy) Alpha() float64 { return p.alpha }

// selection is the outcome of one policy pass.
type selection struct {
	topicID string
	score   float64
	count   int64
}

// Select scores every candidate and returns the arm with the highest
// upper confidence bound. Ties break toward the arm with fewer applied
// rewards, then toward the lexicographically smaller topic id, so the
// outcome is deterministic for a fixed catalog state.
func (p *Policy) Select(cat *Catalog, x *mat.VecDense, candidates []string) (selection, error) {
	if len(candidates) == 0 {
		return selection{}, ErrEmptyCandidates
	}

	var best selection
	found := false
	for _, id := range candidates {
		snap := cat.GetOrCreateArm(id).Snapshot()
		cand := selection{
			topicID: id,
			score:   snap.Score(x, p.alpha),
			count:   snap.Count,
		}
		if !found || better(cand, best) {
			best = cand
			found = true
		}
	}
	return best, nil
}

func better(a, b selection) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	if a.count != b.count {
		return a.count < b.count
	}
	return a.topicID < b.topicID
}
