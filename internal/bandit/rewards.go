// Recomate - Conversational Companion Topic Engine
// Copyright 2026 yasut0ra
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/yasut0ra/recomate

package bandit

import (
	"strings"
	"sync"
	"time"
)

// Reward values attributed to emotion labels. Anything outside the
// known set maps to the neutral value.
const (
	RewardPositive = 0.9
	RewardNegative = 0.2
	RewardNeutral  = 0.6
)

// RewardForLabel maps a free-form emotion label onto a reward in [0, 1].
// Matching is case-insensitive.
func RewardForLabel(label string) float64 {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "happy", "surprised":
		return RewardPositive
	case "sad", "angry":
		return RewardNegative
	default:
		return RewardNeutral
	}
}

// SelectionEvent records one topic choice pending reward attribution.
// The context vector is pinned at selection time: the reward later
// applies against exactly the features the choice was scored with, even
// if the encoder inputs have since moved on.
type SelectionEvent struct {
	ID      string    `json:"id"`
	TopicID string    `json:"topicId"`
	Context []float64 `json:"context"`
	Score   float64   `json:"score"`
	At      time.Time `json:"at"`
}

// eventRegistry holds pending selection events keyed by id. Consuming
// an event removes it, which makes reward ingestion idempotent: the
// second ingest of the same id finds nothing and is rejected. A bounded
// FIFO eviction keeps abandoned selections from leaking.
type eventRegistry struct {
	mu      sync.Mutex
	pending map[string]*SelectionEvent
	order   []string
	max     int
}

func newEventRegistry(max int) *eventRegistry {
	return &eventRegistry{
		pending: make(map[string]*SelectionEvent),
		max:     max,
	}
}

func (r *eventRegistry) add(ev *SelectionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pending[ev.ID] = ev
	r.order = append(r.order, ev.ID)
	if len(r.order) >= 2*r.max {
		r.compact()
	}
	for len(r.pending) > r.max && len(r.order) > 0 {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.pending, oldest)
	}
}

// compact rebuilds the eviction queue from the ids still pending.
// Consumed events leave their id behind in the queue; rebuilding
// whenever the queue reaches twice the registry bound keeps it at
// O(max) for an amortized O(1) cost per add.
func (r *eventRegistry) compact() {
	kept := r.order[:0]
	for _, id := range r.order {
		if _, ok := r.pending[id]; ok {
			kept = append(kept, id)
		}
	}
	r.order = kept
}

// take removes and returns the pending event for id. Unknown and
// already-consumed ids both report ErrDuplicateReward.
func (r *eventRegistry) take(id string) (*SelectionEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ev, ok := r.pending[id]
	if !ok {
		return nil, ErrDuplicateReward
	}
	delete(r.pending, id)
	return ev, nil
}

func (r *eventRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
