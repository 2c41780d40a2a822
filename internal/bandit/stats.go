// Recomate - Conversational Companion Topic Engine
// Copyright 2026 yasut0ra
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/yasut0ra/recomate

package bandit

// TopicStats summarizes one arm's learning progress for consumers that
// must not see raw model internals.
type TopicStats struct {
	// Value is the mean observed reward, 0 for unvisited topics.
	Value float64 `json:"value"`
	// Count is the number of rewards applied.
	Count int64 `json:"count"`
	// Frequency is this topic's share of all selections, 0 when nothing
	// has been selected yet.
	Frequency float64 `json:"frequency"`
}

// Stats is the engine's aggregate projection: every registered topic
// (visited or not), the subtopic tags, and the global counters.
type Stats struct {
	Topics          map[string]TopicStats `json:"topics"`
	Subtopics       map[string][]string   `json:"subtopics"`
	TotalSelections int64                 `json:"totalSelections"`
	FeatureDim      int                   `json:"featureDim"`
}

// Stats projects a consistent view over the catalog. Each arm is read
// under its own lock; the total is the sum of the observed counts so
// frequencies always add up to 1 within the projection.
func (e *Engine) Stats() Stats {
	topics := e.catalog.Topics()

	type row struct {
		count int64
		cum   float64
	}
	rows := make(map[string]row, len(topics))
	var total int64
	for _, t := range topics {
		if arm, ok := e.catalog.Arm(t.ID); ok {
			snap := arm.Snapshot()
			rows[t.ID] = row{count: snap.Count, cum: snap.CumulativeReward}
			total += snap.Count
		} else {
			rows[t.ID] = row{}
		}
	}

	out := Stats{
		Topics:          make(map[string]TopicStats, len(topics)),
		Subtopics:       make(map[string][]string, len(topics)),
		TotalSelections: total,
		FeatureDim:      e.encoder.Dim(),
	}
	for _, t := range topics {
		r := rows[t.ID]
		ts := TopicStats{Count: r.count}
		if r.count > 0 {
			ts.Value = r.cum / float64(r.count)
		}
		if total > 0 {
			ts.Frequency = float64(r.count) / float64(total)
		}
		out.Topics[t.ID] = ts
		subs := make([]string, len(t.Subtopics))
		copy(subs, t.Subtopics)
		out.Subtopics[t.ID] = subs
	}
	return out
}
