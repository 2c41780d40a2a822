// Recomate - Conversational Companion Topic Engine
// Copyright 2026 yasut0ra
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/yasut0ra/recomate

package bandit

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the engine. Callers match with errors.Is.
var (
	// ErrConfig indicates an invalid engine configuration (non-positive
	// regularization, negative exploration weight, empty mood states).
	ErrConfig = errors.New("invalid bandit configuration")

	// ErrEmptyCandidates indicates selection was requested with no
	// candidate topics available.
	ErrEmptyCandidates = errors.New("empty candidate set")

	// ErrDuplicateReward indicates the referenced selection event was
	// already rewarded, evicted, or never existed. Either way the reward
	// is not applied.
	ErrDuplicateReward = errors.New("duplicate or unknown reward event")

	// ErrUnknownTopic indicates a reference to a topic id the catalog
	// has never seen.
	ErrUnknownTopic = errors.New("unknown topic")

	// ErrDimensionMismatch indicates a context vector whose length does
	// not match the engine's feature dimensionality.
	ErrDimensionMismatch = errors.New("context dimension mismatch")
)

// DimensionError carries the expected and observed context vector lengths.
// It unwraps to ErrDimensionMismatch.
type DimensionError struct {
	Want int
	Got  int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("context dimension mismatch: want %d, got %d", e.Want, e.Got)
}

func (e *DimensionError) Unwrap() error { return ErrDimensionMismatch }
