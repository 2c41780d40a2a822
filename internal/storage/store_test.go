// Recomate - Conversational Companion Topic Engine
// Copyright 2026 yasut0ra
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/yasut0ra/recomate

package storage

import (
	"context"
	"testing"
	"time"

	"github.com/yasut0ra/recomate/internal/bandit"
	"github.com/yasut0ra/recomate/internal/mood"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Options{InMemory: true})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close() failed: %v", err)
		}
	})
	return s
}

func TestArmStateRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	states := []bandit.ArmState{
		{
			TopicID:          "movies",
			Dim:              2,
			Lambda:           1.0,
			A:                []float64{2, 0, 0, 1},
			B:                []float64{0.9, 0},
			Count:            1,
			CumulativeReward: 0.9,
			LastSelectedAt:   time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC),
		},
		{
			TopicID: "travel",
			Dim:     2,
			Lambda:  1.0,
			A:       []float64{1, 0, 0, 1},
			B:       []float64{0, 0},
		},
	}
	if err := s.SaveArms(ctx, states); err != nil {
		t.Fatalf("SaveArms() failed: %v", err)
	}

	loaded, err := s.LoadArms(ctx)
	if err != nil {
		t.Fatalf("LoadArms() failed: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("LoadArms() = %d states, want 2", len(loaded))
	}

	byID := make(map[string]bandit.ArmState, len(loaded))
	for _, st := range loaded {
		byID[st.TopicID] = st
	}
	movies, ok := byID["movies"]
	if !ok {
		t.Fatal("movies arm missing after round trip")
	}
	if movies.Count != 1 || movies.CumulativeReward != 0.9 {
		t.Errorf("movies = %+v, want count=1 cum=0.9", movies)
	}
	if len(movies.A) != 4 || movies.A[0] != 2 {
		t.Errorf("movies A = %v, want [2 0 0 1]", movies.A)
	}
	if !movies.LastSelectedAt.Equal(states[0].LastSelectedAt) {
		t.Errorf("LastSelectedAt = %v, want %v", movies.LastSelectedAt, states[0].LastSelectedAt)
	}
}

func TestSaveArmsOverwritesByTopic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveArms(ctx, []bandit.ArmState{{TopicID: "games", Dim: 2, Count: 1}}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveArms(ctx, []bandit.ArmState{{TopicID: "games", Dim: 2, Count: 5}}); err != nil {
		t.Fatal(err)
	}

	loaded, err := s.LoadArms(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 1 {
		t.Fatalf("LoadArms() = %d states, want 1", len(loaded))
	}
	if loaded[0].Count != 5 {
		t.Errorf("count = %d, want latest write 5", loaded[0].Count)
	}
}

func TestTopicRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	topics := []bandit.Topic{
		{ID: "movies", Label: "Movies", Subtopics: []string{"anime", "sci-fi"}},
		{ID: "food", Label: "Food"},
	}
	if err := s.SaveTopics(ctx, topics); err != nil {
		t.Fatalf("SaveTopics() failed: %v", err)
	}

	loaded, err := s.LoadTopics(ctx)
	if err != nil {
		t.Fatalf("LoadTopics() failed: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("LoadTopics() = %d, want 2", len(loaded))
	}
	for _, topic := range loaded {
		if topic.ID == "movies" && len(topic.Subtopics) != 2 {
			t.Errorf("movies subtopics = %v, want 2 entries", topic.Subtopics)
		}
	}
}

func TestMoodStateRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	states := []mood.State{
		{
			UserID:  "user-1",
			Current: "陽気",
			Trigger: "greet",
			Weights: map[string]float64{"calm": 0.6, "cheer": 0.9},
			Meters:  mood.Meters{Curiosity: 0.4, Rest: 0.5, Orderliness: 0.6, Closeness: 0.58},
		},
	}
	if err := s.SaveMoodStates(ctx, states); err != nil {
		t.Fatalf("SaveMoodStates() failed: %v", err)
	}

	loaded, err := s.LoadMoodStates(ctx)
	if err != nil {
		t.Fatalf("LoadMoodStates() failed: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("LoadMoodStates() = %d, want 1", len(loaded))
	}
	if loaded[0].Current != "陽気" || loaded[0].Meters.Closeness != 0.58 {
		t.Errorf("loaded = %+v, want preserved state", loaded[0])
	}
}

func TestLoadEmptyStore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	arms, err := s.LoadArms(ctx)
	if err != nil {
		t.Fatalf("LoadArms() failed: %v", err)
	}
	if len(arms) != 0 {
		t.Errorf("LoadArms() = %d states on empty store, want 0", len(arms))
	}
}

func TestSaveRespectsCanceledContext(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.SaveArms(ctx, []bandit.ArmState{{TopicID: "movies", Dim: 2}})
	if err == nil {
		t.Error("SaveArms() succeeded with canceled context")
	}
}
