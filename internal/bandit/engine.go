// Recomate - Conversational Companion Topic Engine
// Copyright 2026 yasut0ra
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/yasut0ra/recomate

// Package bandit implements the contextual topic-selection engine: a
// disjoint linear UCB model with one ridge-regression arm per topic,
// deterministic tie-breaking, idempotent reward ingestion keyed by
// selection events, and a write-behind-friendly dirty-state export.
package bandit

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/yasut0ra/recomate/internal/metrics"
)

// Learning phases derived from an arm's reward count relative to the
// configured warmup threshold.
const (
	PhaseUnvisited = "unvisited"
	PhaseExploring = "exploring"
	PhaseConverged = "converged"
)

// Config carries the engine's tunables. Zero values are rejected by New
// except WarmupSelections and MaxPendingEvents, which fall back to
// defaults.
type Config struct {
	// Alpha is the exploration weight. 0 is pure exploitation.
	Alpha float64
	// Lambda is the ridge regularization; the design matrix starts as
	// Lambda times the identity. Must be positive.
	Lambda float64
	// WarmupSelections is the per-arm reward count below which the arm
	// reports the exploring phase.
	WarmupSelections int
	// MaxPendingEvents bounds the registry of selections awaiting a
	// reward before the oldest get evicted.
	MaxPendingEvents int
	// MoodStates fixes the mood one-hot block of the feature layout.
	MoodStates []string
}

const (
	defaultWarmupSelections = 10
	defaultMaxPending       = 4096
)

// Engine ties the encoder, catalog, policy, and reward registry
// together behind a single concurrency-safe facade.
type Engine struct {
	cfg     Config
	logger  zerolog.Logger
	encoder *Encoder
	catalog *Catalog
	policy  *Policy
	events  *eventRegistry
}

// New validates the configuration and builds an empty engine. Topics
// are registered afterwards, either from configuration seeds or from
// persisted state.
func New(cfg Config, logger zerolog.Logger) (*Engine, error) {
	if cfg.Lambda <= 0 {
		return nil, fmt.Errorf("%w: lambda must be positive, got %g", ErrConfig, cfg.Lambda)
	}
	if cfg.Alpha < 0 {
		return nil, fmt.Errorf("%w: alpha must be non-negative, got %g", ErrConfig, cfg.Alpha)
	}
	if len(cfg.MoodStates) == 0 {
		return nil, fmt.Errorf("%w: at least one mood state required", ErrConfig)
	}
	seen := make(map[string]struct{}, len(cfg.MoodStates))
	for _, s := range cfg.MoodStates {
		if _, dup := seen[s]; dup {
			return nil, fmt.Errorf("%w: duplicate mood state %q", ErrConfig, s)
		}
		seen[s] = struct{}{}
	}
	if cfg.WarmupSelections <= 0 {
		cfg.WarmupSelections = defaultWarmupSelections
	}
	if cfg.MaxPendingEvents <= 0 {
		cfg.MaxPendingEvents = defaultMaxPending
	}

	enc := NewEncoder(cfg.MoodStates)
	e := &Engine{
		cfg:     cfg,
		logger:  logger.With().Str("component", "bandit").Logger(),
		encoder: enc,
		catalog: newCatalog(enc.Dim(), cfg.Lambda),
		policy:  newPolicy(cfg.Alpha),
		events:  newEventRegistry(cfg.MaxPendingEvents),
	}
	e.logger.Info().
		Float64("alpha", cfg.Alpha).
		Float64("lambda", cfg.Lambda).
		Int("feature_dim", enc.Dim()).
		Msg("Bandit engine initialized")
	return e, nil
}

// Encoder returns the engine's feature encoder.
func (e *Engine) Encoder() *Encoder { return e.encoder }

// FeatureDim returns the context vector length the engine accepts.
func (e *Engine) FeatureDim() int { return e.encoder.Dim() }

// RegisterTopic adds or updates a catalog entry. Idempotent.
func (e *Engine) RegisterTopic(id, label string, subtopics []string) error {
	if id == "" {
		return errors.New("topic id must not be empty")
	}
	e.catalog.Register(id, label, subtopics)
	metrics.SetTopicCount(e.catalog.Len())
	return nil
}

// Topics lists the catalog ordered by id.
func (e *Engine) Topics() []Topic { return e.catalog.Topics() }

// Topic returns a single catalog entry.
func (e *Engine) Topic(id string) (Topic, error) {
	t, ok := e.catalog.Topic(id)
	if !ok {
		return Topic{}, fmt.Errorf("%w: %s", ErrUnknownTopic, id)
	}
	return t, nil
}

// Select scores the candidate topics against the context vector and
// returns a selection event for the winner. A nil or empty candidate
// slice means "all registered topics". The dimension check runs before
// any arm is touched, so a mismatched vector cannot perturb state.
func (e *Engine) Select(x []float64, candidates []string) (*SelectionEvent, error) {
	if len(x) != e.encoder.Dim() {
		return nil, &DimensionError{Want: e.encoder.Dim(), Got: len(x)}
	}
	if len(candidates) == 0 {
		candidates = e.catalog.TopicIDs()
	}
	if len(candidates) == 0 {
		return nil, ErrEmptyCandidates
	}

	start := time.Now()
	vec := mat.NewVecDense(len(x), append([]float64(nil), x...))
	best, err := e.policy.Select(e.catalog, vec, candidates)
	if err != nil {
		return nil, err
	}

	ev := &SelectionEvent{
		ID:      uuid.NewString(),
		TopicID: best.topicID,
		Context: append([]float64(nil), x...),
		Score:   best.score,
		At:      time.Now().UTC(),
	}
	e.events.add(ev)

	metrics.RecordSelection(best.topicID, time.Since(start).Seconds())
	e.logger.Debug().
		Str("topic", best.topicID).
		Str("event_id", ev.ID).
		Float64("score", best.score).
		Int("candidates", len(candidates)).
		Msg("Topic selected")
	return ev, nil
}

// Ingest applies a numeric reward to the selection event's arm using
// the context pinned at selection time. The event is consumed: a second
// ingest of the same id returns ErrDuplicateReward and changes nothing.
// Rewards are clamped to [0, 1].
func (e *Engine) Ingest(eventID string, reward float64) (float64, error) {
	ev, err := e.events.take(eventID)
	if err != nil {
		metrics.RecordDuplicateReward()
		return 0, fmt.Errorf("event %s: %w", eventID, err)
	}

	reward = clamp01(reward)
	arm := e.catalog.GetOrCreateArm(ev.TopicID)
	vec := mat.NewVecDense(len(ev.Context), append([]float64(nil), ev.Context...))
	arm.applyUpdate(vec, reward, ev.At)

	metrics.RecordReward(ev.TopicID, reward)
	metrics.SetTotalSelections(e.totalSelections())
	e.logger.Debug().
		Str("topic", ev.TopicID).
		Str("event_id", eventID).
		Float64("reward", reward).
		Int64("count", arm.Count()).
		Msg("Reward applied")
	return reward, nil
}

// IngestLabel maps an emotion label onto a reward and applies it.
// Returns the reward value actually applied.
func (e *Engine) IngestLabel(eventID, label string) (float64, error) {
	return e.Ingest(eventID, RewardForLabel(label))
}

// PendingEvents reports the number of selections still awaiting reward.
func (e *Engine) PendingEvents() int { return e.events.len() }

// Phase classifies an arm's learning progress by reward count.
func (e *Engine) Phase(topicID string) string {
	arm, ok := e.catalog.Arm(topicID)
	if !ok {
		return PhaseUnvisited
	}
	switch n := arm.Count(); {
	case n == 0:
		return PhaseUnvisited
	case n < int64(e.cfg.WarmupSelections):
		return PhaseExploring
	default:
		return PhaseConverged
	}
}

// DirtyStates exports the state of every arm with unpersisted updates.
// Pair with MarkFlushed after a successful write.
func (e *Engine) DirtyStates() []ArmState {
	var out []ArmState
	for _, arm := range e.catalog.Arms() {
		if arm.dirty() {
			out = append(out, arm.State())
		}
	}
	return out
}

// MarkFlushed acknowledges durably written states. Arms that mutated
// after their state was exported stay dirty for the next flush cycle.
func (e *Engine) MarkFlushed(states []ArmState) {
	for _, st := range states {
		if arm, ok := e.catalog.Arm(st.TopicID); ok {
			arm.markFlushed(st.seq)
		}
	}
}

// RestoreArms rebuilds arms from persisted states. States whose
// dimensionality no longer matches the feature layout are skipped with
// a warning; the topic then restarts from a fresh arm, which is safe if
// suboptimal. Returns the number of arms restored.
func (e *Engine) RestoreArms(states []ArmState) int {
	restored := 0
	for _, st := range states {
		arm := e.catalog.GetOrCreateArm(st.TopicID)
		if err := arm.restore(st); err != nil {
			e.logger.Warn().
				Err(err).
				Str("topic", st.TopicID).
				Msg("Skipping incompatible persisted arm")
			continue
		}
		restored++
	}
	metrics.SetTopicCount(e.catalog.Len())
	metrics.SetTotalSelections(e.totalSelections())
	if restored > 0 {
		e.logger.Info().Int("arms", restored).Msg("Arm states restored")
	}
	return restored
}

func (e *Engine) totalSelections() int64 {
	var total int64
	for _, arm := range e.catalog.Arms() {
		total += arm.Count()
	}
	return total
}
