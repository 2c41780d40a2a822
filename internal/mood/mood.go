// Recomate - Conversational Companion Topic Engine
// Copyright 2026 yasut0ra
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/yasut0ra/recomate

// Package mood implements the companion's affective state machine:
// named mood states with per-state expression weights, trigger-driven
// transitions, and slowly drifting internal meters.
package mood

import (
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultState is the mood every user starts in.
const DefaultState = "穏やか"

// States lists every mood in a fixed order. The topic engine's feature
// layout depends on this order, so it must not change between restarts
// without discarding persisted model state.
var States = []string{"穏やか", "陽気", "ツン", "いたずら", "哲学", "心配"}

// triggers maps interaction triggers onto target states. An unknown or
// empty trigger falls back to a random state change.
var triggers = map[string]string{
	"greet":      "陽気",
	"success":    "陽気",
	"relax":      "穏やか",
	"concern":    "心配",
	"tease":      "ツン",
	"philosophy": "哲学",
	"mischief":   "いたずら",
}

// stateWeights are the per-state expression weights surfaced to
// response rendering.
var stateWeights = map[string]map[string]float64{
	"穏やか":  {"calm": 0.8, "cheer": 0.6},
	"陽気":   {"calm": 0.6, "cheer": 0.9},
	"ツン":   {"calm": 0.4, "cheer": 0.5},
	"いたずら": {"calm": 0.5, "cheer": 0.7},
	"哲学":   {"calm": 0.7, "cheer": 0.5},
	"心配":   {"calm": 0.3, "cheer": 0.2},
}

// Meters are the companion's internal drives, each clamped to [0, 1].
type Meters struct {
	Curiosity   float64 `json:"curiosity"`
	Rest        float64 `json:"rest"`
	Orderliness float64 `json:"orderliness"`
	Closeness   float64 `json:"closeness"`
}

func defaultMeters() Meters {
	return Meters{Curiosity: 0.3, Rest: 0.5, Orderliness: 0.6, Closeness: 0.5}
}

// State is one user's mood at a point in time.
type State struct {
	UserID    string             `json:"userId"`
	Current   string             `json:"current"`
	Trigger   string             `json:"trigger,omitempty"`
	Weights   map[string]float64 `json:"weights"`
	Meters    Meters             `json:"meters"`
	ChangedAt time.Time          `json:"changedAt"`
}

// Service tracks per-user mood state in memory. All methods are safe
// for concurrent use.
type Service struct {
	mu      sync.Mutex
	states  map[string]*State
	rng     *rand.Rand
	initial string
	logger  zerolog.Logger
}

// NewService builds a mood service whose users start in the given
// state. An empty initial state means DefaultState.
func NewService(initial string, logger zerolog.Logger) *Service {
	if _, ok := stateWeights[initial]; !ok {
		initial = DefaultState
	}
	return &Service{
		states:  make(map[string]*State),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		initial: initial,
		logger:  logger.With().Str("component", "mood").Logger(),
	}
}

// Current returns the user's present mood state, materializing the
// initial state on first sight.
func (s *Service) Current(userID string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.ensure(userID)
}

// Transition moves the user to a new mood. A recognized trigger maps
// deterministically onto its target state; anything else picks a random
// state different from the current one. Internal meters drift toward
// the behavior the new state implies.
func (s *Service) Transition(userID, trigger string) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.ensure(userID)
	previous := st.Current

	next, ok := triggers[trigger]
	if !ok {
		next = s.randomOther(previous)
	}

	st.Current = next
	st.Trigger = trigger
	st.Weights = copyWeights(stateWeights[next])
	st.ChangedAt = time.Now().UTC()

	m := &st.Meters
	m.Curiosity = clamp01(m.Curiosity + s.uniform(-0.05, 0.1))
	if next == "穏やか" {
		m.Rest = clamp01(m.Rest + 0.1)
	} else {
		m.Rest = clamp01(m.Rest - 0.05)
	}
	m.Orderliness = clamp01(m.Orderliness + s.uniform(-0.03, 0.05))
	if next == "陽気" || next == "心配" {
		m.Closeness = clamp01(m.Closeness + 0.08)
	} else {
		m.Closeness = clamp01(m.Closeness - 0.02)
	}

	s.logger.Debug().
		Str("user", userID).
		Str("from", previous).
		Str("to", next).
		Str("trigger", trigger).
		Msg("Mood transition")
	return *st
}

// Snapshot exports every tracked user's state for persistence.
func (s *Service) Snapshot() []State {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]State, 0, len(s.states))
	for _, st := range s.states {
		cp := *st
		cp.Weights = copyWeights(st.Weights)
		out = append(out, cp)
	}
	return out
}

// Restore loads persisted states, replacing any in-memory entry for
// the same user. States naming an unknown mood are reset to the
// service's initial state but keep their meters.
func (s *Service) Restore(states []State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, st := range states {
		cp := st
		if _, ok := stateWeights[cp.Current]; !ok {
			cp.Current = s.initial
		}
		cp.Weights = copyWeights(stateWeights[cp.Current])
		s.states[cp.UserID] = &cp
	}
}

func (s *Service) ensure(userID string) *State {
	st, ok := s.states[userID]
	if !ok {
		st = &State{
			UserID:    userID,
			Current:   s.initial,
			Weights:   copyWeights(stateWeights[s.initial]),
			Meters:    defaultMeters(),
			ChangedAt: time.Now().UTC(),
		}
		s.states[userID] = st
	}
	return st
}

func (s *Service) randomOther(previous string) string {
	candidates := make([]string, 0, len(States)-1)
	for _, st := range States {
		if st != previous {
			candidates = append(candidates, st)
		}
	}
	if len(candidates) == 0 {
		return previous
	}
	return candidates[s.rng.Intn(len(candidates))]
}

func (s *Service) uniform(lo, hi float64) float64 {
	return lo + s.rng.Float64()*(hi-lo)
}

func copyWeights(w map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
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
