// Recomate - Conversational Companion Topic Engine
// Copyright 2026 yasut0ra
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/yasut0ra/recomate

package bandit

import (
	"math"
	"time"
)

const (
	// maxRecency caps the inter-turn gap considered by the encoder.
	// Anything above an hour reads as "user has been away".
	maxRecency = time.Hour

	// maxTurnIndex caps the conversation-depth feature. Sessions longer
	// than this all look equally deep.
	maxTurnIndex = 50
)

// Signals carries the raw per-turn inputs the encoder turns into a
// context vector. Zero values are valid and encode as neutral defaults:
// an unknown mood contributes an all-zero one-hot block, a zero Now
// suppresses the time-of-day features, and a zero SincePrevTurn reads
// as an immediate follow-up.
type Signals struct {
	// Mood is the companion's current affective state.
	Mood string

	// Now is the wall-clock time of the turn.
	Now time.Time

	// SincePrevTurn is the gap since the user's previous turn.
	SincePrevTurn time.Duration

	// TurnIndex is the zero-based position of this turn in the session.
	TurnIndex int

	// Tone and Humor are the user's stored preference weights in [0, 1].
	Tone  float64
	Humor float64
}

// Encoder maps turn signals onto a fixed-layout context vector:
//
//	[bias | mood one-hot | time-of-day sin,cos | tone | humor | recency | depth]
//
// The layout, and therefore the dimensionality, is fixed at construction.
// Encoding is pure: the same signals always produce the same vector.
type Encoder struct {
	moodIndex map[string]int
	dim       int
}

// NewEncoder builds an encoder whose mood one-hot block covers the given
// states in order. The states slice must be non-empty and free of
// duplicates; the engine validates this via its own configuration.
func NewEncoder(moodStates []string) *Encoder {
	idx := make(map[string]int, len(moodStates))
	for i, s := range moodStates {
		idx[s] = i
	}
	return &Encoder{
		moodIndex: idx,
		dim:       1 + len(moodStates) + 2 + 2 + 2,
	}
}

// Dim returns the length of vectors produced by Encode.
func (e *Encoder) Dim() int { return e.dim }

// Encode produces the context vector for one turn. Every component lies
// in [-1, 1] so no single signal dominates the linear model.
func (e *Encoder) Encode(s Signals) []float64 {
	x := make([]float64, e.dim)
	x[0] = 1 // bias

	if i, ok := e.moodIndex[s.Mood]; ok {
		x[1+i] = 1
	}

	off := 1 + len(e.moodIndex)
	if !s.Now.IsZero() {
		sec := float64(s.Now.Hour()*3600 + s.Now.Minute()*60 + s.Now.Second())
		angle := 2 * math.Pi * sec / 86400
		x[off] = math.Sin(angle)
		x[off+1] = math.Cos(angle)
	}

	x[off+2] = clamp01(s.Tone)
	x[off+3] = clamp01(s.Humor)

	if s.SincePrevTurn > 0 {
		gap := s.SincePrevTurn
		if gap > maxRecency {
			gap = maxRecency
		}
		x[off+4] = float64(gap) / float64(maxRecency)
	}

	depth := s.TurnIndex
	if depth > maxTurnIndex {
		depth = maxTurnIndex
	}
	if depth > 0 {
		x[off+5] = float64(depth) / float64(maxTurnIndex)
	}

	return x
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
