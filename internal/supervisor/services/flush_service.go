// Recomate - Conversational Companion Topic Engine
// Copyright 2026 yasut0ra
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/yasut0ra/recomate

package services

import (
	"context"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/yasut0ra/recomate/internal/bandit"
	"github.com/yasut0ra/recomate/internal/logging"
	"github.com/yasut0ra/recomate/internal/metrics"
	"github.com/yasut0ra/recomate/internal/mood"
)

// ArmFlusher is the engine side of the write-behind contract.
type ArmFlusher interface {
	DirtyStates() []bandit.ArmState
	MarkFlushed([]bandit.ArmState)
}

// MoodSnapshotter exports mood states for persistence.
type MoodSnapshotter interface {
	Snapshot() []mood.State
}

// StateSaver is the storage side of the write-behind contract.
type StateSaver interface {
	SaveArms(ctx context.Context, states []bandit.ArmState) error
	SaveMoodStates(ctx context.Context, states []mood.State) error
}

// FlushService periodically writes dirty engine state behind a circuit
// breaker. A failed flush leaves the arms dirty, so nothing is lost
// while the store recovers; the breaker keeps a broken store from
// being hammered every tick.
type FlushService struct {
	engine   ArmFlusher
	moods    MoodSnapshotter
	store    StateSaver
	interval time.Duration
	breaker  *gobreaker.CircuitBreaker[any]
}

// NewFlushService builds the flusher. moods may be nil when mood
// persistence is not wanted.
func NewFlushService(engine ArmFlusher, moods MoodSnapshotter, store StateSaver, interval time.Duration) *FlushService {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	breaker := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "state-flush",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("component", "flusher").
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state change")
		},
	})
	return &FlushService{
		engine:   engine,
		moods:    moods,
		store:    store,
		interval: interval,
		breaker:  breaker,
	}
}

// Serve implements suture.Service: flush on every tick, then one final
// flush on shutdown so a clean exit loses nothing.
func (f *FlushService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			f.flush(ctx)

		case <-ctx.Done():
			finalCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			f.flush(finalCtx)
			cancel()
			return ctx.Err()
		}
	}
}

func (f *FlushService) flush(ctx context.Context) {
	states := f.engine.DirtyStates()
	var moods []mood.State
	if f.moods != nil {
		moods = f.moods.Snapshot()
	}
	if len(states) == 0 && len(moods) == 0 {
		return
	}

	start := time.Now()
	_, err := f.breaker.Execute(func() (any, error) {
		if err := f.store.SaveArms(ctx, states); err != nil {
			return nil, err
		}
		return nil, f.store.SaveMoodStates(ctx, moods)
	})
	metrics.RecordFlush(time.Since(start), len(states), err)
	if err != nil {
		logging.Warn().
			Str("component", "flusher").
			Err(err).
			Int("arms", len(states)).
			Msg("State flush failed")
		return
	}

	f.engine.MarkFlushed(states)
	logging.Debug().
		Str("component", "flusher").
		Int("arms", len(states)).
		Int("moods", len(moods)).
		Dur("duration", time.Since(start)).
		Msg("State flushed")
}

// String identifies the service in supervisor logs.
func (f *FlushService) String() string {
	return "state-flusher"
}
