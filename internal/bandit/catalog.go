// Recomate - Conversational Companion Topic Engine
// Copyright 2026 yasut0ra
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/yasut0ra/recomate

package bandit

import (
	"sort"
	"sync"
)

// Topic is a catalog entry: a stable id, a human-facing label, and an
// unordered set of subtopic tags used for conversational steering.
type Topic struct {
	ID        string   `json:"id"`
	Label     string   `json:"label"`
	Subtopics []string `json:"subtopics,omitempty"`
}

// Catalog owns the topic registry and the per-topic arms. Registration
// is idempotent: re-registering a topic unions its subtopics and never
// resets the arm. Arms are created lazily on first use so restored
// state and fresh registrations converge on the same path.
type Catalog struct {
	mu     sync.RWMutex
	dim    int
	lambda float64
	topics map[string]*Topic
	arms   map[string]*Arm
}

func newCatalog(dim int, lambda float64) *Catalog {
	return &Catalog{
		dim:    dim,
		lambda: lambda,
		topics: make(map[string]*Topic),
		arms:   make(map[string]*Arm),
	}
}

// Register adds or updates a topic. Subtopics are merged as a set; an
// empty label leaves any existing label intact.
func (c *Catalog) Register(id, label string, subtopics []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.topics[id]
	if !ok {
		t = &Topic{ID: id}
		c.topics[id] = t
	}
	if label != "" {
		t.Label = label
	}
	for _, sub := range subtopics {
		if sub == "" || containsString(t.Subtopics, sub) {
			continue
		}
		t.Subtopics = append(t.Subtopics, sub)
	}
	sort.Strings(t.Subtopics)
}

// Topic returns a copy of the catalog entry for id.
func (c *Catalog) Topic(id string) (Topic, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.topics[id]
	if !ok {
		return Topic{}, false
	}
	return copyTopic(t), true
}

// Topics returns all catalog entries ordered by id.
func (c *Catalog) Topics() []Topic {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Topic, 0, len(c.topics))
	for _, t := range c.topics {
		out = append(out, copyTopic(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// TopicIDs returns the registered topic ids ordered lexicographically.
func (c *Catalog) TopicIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]string, 0, len(c.topics))
	for id := range c.topics {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Arm returns the arm for id if one has been materialized.
func (c *Catalog) Arm(id string) (*Arm, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.arms[id]
	return a, ok
}

// GetOrCreateArm returns the arm for a registered topic, creating a
// fresh λ·I arm atomically on first use. Unknown topics are registered
// with their id as label so an arm never exists without a catalog entry.
func (c *Catalog) GetOrCreateArm(id string) *Arm {
	c.mu.RLock()
	a, ok := c.arms[id]
	c.mu.RUnlock()
	if ok {
		return a
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if a, ok := c.arms[id]; ok {
		return a
	}
	if _, ok := c.topics[id]; !ok {
		c.topics[id] = &Topic{ID: id, Label: id}
	}
	a = newArm(id, c.dim, c.lambda)
	c.arms[id] = a
	return a
}

// Arms returns all materialized arms ordered by topic id.
func (c *Catalog) Arms() []*Arm {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*Arm, 0, len(c.arms))
	for _, a := range c.arms {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].topicID < out[j].topicID })
	return out
}

// Len returns the number of registered topics.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.topics)
}

func copyTopic(t *Topic) Topic {
	return Topic{
		ID:        t.ID,
		Label:     t.Label,
		Subtopics: append([]string(nil), t.Subtopics...),
	}
}

func containsString(s []string, v string) bool {
	for _, e := range s {
		if e == v {
			return true
		}
	}
	return false
}
