// Recomate - Conversational Companion Topic Engine
// Copyright 2026 yasut0ra
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/yasut0ra/recomate

package bandit

import (
	"math"
	"testing"
	"time"
)

var testMoodStates = []string{"calm", "cheerful", "prickly", "mischievous", "pensive", "worried"}

func TestEncoderDim(t *testing.T) {
	enc := NewEncoder(testMoodStates)
	// bias + 6 mood states + sin/cos + tone/humor + recency/depth
	if got, want := enc.Dim(), 13; got != want {
		t.Errorf("Dim() = %d, want %d", got, want)
	}
}

func TestEncodeDeterministic(t *testing.T) {
	enc := NewEncoder(testMoodStates)
	s := Signals{
		Mood:          "cheerful",
		Now:           time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC),
		SincePrevTurn: 5 * time.Minute,
		TurnIndex:     7,
		Tone:          0.6,
		Humor:         0.5,
	}
	a := enc.Encode(s)
	b := enc.Encode(s)
	if len(a) != enc.Dim() {
		t.Fatalf("len = %d, want %d", len(a), enc.Dim())
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("component %d differs between identical encodings: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestEncodeLayout(t *testing.T) {
	enc := NewEncoder(testMoodStates)
	noon := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	x := enc.Encode(Signals{
		Mood:          "prickly",
		Now:           noon,
		SincePrevTurn: 30 * time.Minute,
		TurnIndex:     25,
		Tone:          0.8,
		Humor:         0.3,
	})

	if x[0] != 1 {
		t.Errorf("bias = %v, want 1", x[0])
	}
	for i, state := range testMoodStates {
		want := 0.0
		if state == "prickly" {
			want = 1
		}
		if x[1+i] != want {
			t.Errorf("mood[%s] = %v, want %v", state, x[1+i], want)
		}
	}
	// Noon: sin(pi) ~ 0, cos(pi) = -1.
	if math.Abs(x[7]) > 1e-9 {
		t.Errorf("tod sin = %v, want ~0", x[7])
	}
	if !almostEqual(x[8], -1) {
		t.Errorf("tod cos = %v, want -1", x[8])
	}
	if !almostEqual(x[9], 0.8) {
		t.Errorf("tone = %v, want 0.8", x[9])
	}
	if !almostEqual(x[10], 0.3) {
		t.Errorf("humor = %v, want 0.3", x[10])
	}
	if !almostEqual(x[11], 0.5) {
		t.Errorf("recency = %v, want 0.5", x[11])
	}
	if !almostEqual(x[12], 0.5) {
		t.Errorf("depth = %v, want 0.5", x[12])
	}
}

func TestEncodeDefaults(t *testing.T) {
	// Missing signals encode as neutral defaults rather than failing.
	enc := NewEncoder(testMoodStates)
	x := enc.Encode(Signals{})

	if x[0] != 1 {
		t.Errorf("bias = %v, want 1", x[0])
	}
	for i := 1; i < len(x); i++ {
		if x[i] != 0 {
			t.Errorf("component %d = %v, want 0 for zero signals", i, x[i])
		}
	}

	// An unknown mood leaves the whole one-hot block zero.
	x = enc.Encode(Signals{Mood: "ecstatic"})
	for i := 1; i <= len(testMoodStates); i++ {
		if x[i] != 0 {
			t.Errorf("mood component %d = %v for unknown mood, want 0", i, x[i])
		}
	}
}

func TestEncodeClamping(t *testing.T) {
	enc := NewEncoder(testMoodStates)
	x := enc.Encode(Signals{
		SincePrevTurn: 48 * time.Hour,
		TurnIndex:     10000,
		Tone:          7.5,
		Humor:         -2,
	})
	if !almostEqual(x[9], 1) {
		t.Errorf("tone = %v, want clamped to 1", x[9])
	}
	if x[10] != 0 {
		t.Errorf("humor = %v, want clamped to 0", x[10])
	}
	if !almostEqual(x[11], 1) {
		t.Errorf("recency = %v, want capped at 1", x[11])
	}
	if !almostEqual(x[12], 1) {
		t.Errorf("depth = %v, want capped at 1", x[12])
	}
}

func TestRewardForLabel(t *testing.T) {
	tests := []struct {
		label string
		want  float64
	}{
		{"happy", 0.9},
		{"surprised", 0.9},
		{"HAPPY", 0.9},
		{"sad", 0.2},
		{"angry", 0.2},
		{"neutral", 0.6},
		{"", 0.6},
		{"confused", 0.6},
		{"  happy  ", 0.9},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			if got := RewardForLabel(tt.label); got != tt.want {
				t.Errorf("RewardForLabel(%q) = %v, want %v", tt.label, got, tt.want)
			}
		})
	}
}
