// Recomate - Conversational Companion Topic Engine
// Copyright 2026 yasut0ra
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/yasut0ra/recomate

package bandit

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

func newTestEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	if cfg.Lambda == 0 {
		cfg.Lambda = 1.0
	}
	if cfg.MoodStates == nil {
		cfg.MoodStates = testMoodStates
	}
	e, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return e
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero lambda", Config{Alpha: 1, Lambda: 0, MoodStates: testMoodStates}},
		{"negative lambda", Config{Alpha: 1, Lambda: -1, MoodStates: testMoodStates}},
		{"negative alpha", Config{Alpha: -0.1, Lambda: 1, MoodStates: testMoodStates}},
		{"no mood states", Config{Alpha: 1, Lambda: 1}},
		{"duplicate mood states", Config{Alpha: 1, Lambda: 1, MoodStates: []string{"calm", "calm"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg, zerolog.Nop())
			if !errors.Is(err, ErrConfig) {
				t.Errorf("New() error = %v, want ErrConfig", err)
			}
		})
	}
}

func TestSelectEmptyCatalog(t *testing.T) {
	e := newTestEngine(t, Config{Alpha: 1})
	x := make([]float64, e.FeatureDim())
	x[0] = 1

	if _, err := e.Select(x, nil); !errors.Is(err, ErrEmptyCandidates) {
		t.Errorf("Select() error = %v, want ErrEmptyCandidates", err)
	}
}

func TestSelectDimensionMismatchLeavesStateUntouched(t *testing.T) {
	e := newTestEngine(t, Config{Alpha: 1})
	if err := e.RegisterTopic("movies", "Movies", nil); err != nil {
		t.Fatal(err)
	}

	_, err := e.Select([]float64{1, 2, 3}, nil)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("Select() error = %v, want ErrDimensionMismatch", err)
	}
	var dimErr *DimensionError
	if !errors.As(err, &dimErr) {
		t.Fatalf("error = %v, want *DimensionError", err)
	}
	if dimErr.Want != e.FeatureDim() || dimErr.Got != 3 {
		t.Errorf("DimensionError = %+v, want Want=%d Got=3", dimErr, e.FeatureDim())
	}

	// No arm may have been materialized, no event recorded.
	if _, ok := e.catalog.Arm("movies"); ok {
		t.Error("dimension mismatch materialized an arm")
	}
	if e.PendingEvents() != 0 {
		t.Errorf("PendingEvents() = %d, want 0", e.PendingEvents())
	}
}

func TestSelectColdStartTieBreak(t *testing.T) {
	// All arms are cold, so every score is the identical exploration
	// bonus and the lexicographically smallest id must win.
	e := newTestEngine(t, Config{Alpha: 1})
	for _, id := range []string{"travel", "movies", "games"} {
		if err := e.RegisterTopic(id, "", nil); err != nil {
			t.Fatal(err)
		}
	}

	x := make([]float64, e.FeatureDim())
	x[0] = 1
	ev, err := e.Select(x, nil)
	if err != nil {
		t.Fatalf("Select() failed: %v", err)
	}
	if ev.TopicID != "games" {
		t.Errorf("selected %q, want lexicographic winner \"games\"", ev.TopicID)
	}
	if ev.ID == "" {
		t.Error("selection event has empty id")
	}
	if len(ev.Context) != e.FeatureDim() {
		t.Errorf("event context length = %d, want %d", len(ev.Context), e.FeatureDim())
	}
}

func TestSelectPrefersFewerSelectionsOnTie(t *testing.T) {
	// Reward "aaa" with the neutral value on an orthogonal context so
	// its score for the probe context stays equal to a cold arm's. The
	// count tie-break must then prefer the cold "zzz".
	e := newTestEngine(t, Config{Alpha: 1})
	for _, id := range []string{"aaa", "zzz"} {
		if err := e.RegisterTopic(id, "", nil); err != nil {
			t.Fatal(err)
		}
	}

	// Train aaa on component 1 only.
	train := make([]float64, e.FeatureDim())
	train[1] = 1
	ev, err := e.Select(train, []string{"aaa"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Ingest(ev.ID, 0.6); err != nil {
		t.Fatal(err)
	}

	// Probe on component 2: orthogonal to the training context, so the
	// exploit term is 0 for both arms and the explore term is equal.
	probe := make([]float64, e.FeatureDim())
	probe[2] = 1
	got, err := e.Select(probe, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got.TopicID != "zzz" {
		t.Errorf("selected %q, want less-selected \"zzz\"", got.TopicID)
	}
}

func TestSelectExploitsLearnedReward(t *testing.T) {
	// After enough positive rewards on one topic in a fixed context,
	// low alpha selection must converge onto it.
	e := newTestEngine(t, Config{Alpha: 0.1})
	for _, id := range []string{"movies", "weather"} {
		if err := e.RegisterTopic(id, "", nil); err != nil {
			t.Fatal(err)
		}
	}

	x := make([]float64, e.FeatureDim())
	x[0] = 1
	x[1] = 1 // calm mood

	for i := 0; i < 20; i++ {
		ev, err := e.Select(x, []string{"movies"})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := e.Ingest(ev.ID, 0.9); err != nil {
			t.Fatal(err)
		}
		ev, err = e.Select(x, []string{"weather"})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := e.Ingest(ev.ID, 0.2); err != nil {
			t.Fatal(err)
		}
	}

	ev, err := e.Select(x, nil)
	if err != nil {
		t.Fatal(err)
	}
	if ev.TopicID != "movies" {
		t.Errorf("selected %q after training, want \"movies\"", ev.TopicID)
	}
}

func TestIngestDuplicateRejected(t *testing.T) {
	e := newTestEngine(t, Config{Alpha: 1})
	if err := e.RegisterTopic("food", "", nil); err != nil {
		t.Fatal(err)
	}

	x := make([]float64, e.FeatureDim())
	x[0] = 1
	ev, err := e.Select(x, nil)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := e.Ingest(ev.ID, 0.9); err != nil {
		t.Fatalf("first Ingest failed: %v", err)
	}
	arm, _ := e.catalog.Arm("food")
	before := arm.State()

	if _, err := e.Ingest(ev.ID, 0.9); !errors.Is(err, ErrDuplicateReward) {
		t.Errorf("second Ingest error = %v, want ErrDuplicateReward", err)
	}
	after := arm.State()
	if after.Count != before.Count || after.CumulativeReward != before.CumulativeReward {
		t.Error("duplicate ingest mutated arm state")
	}
	for i := range before.A {
		if before.A[i] != after.A[i] {
			t.Fatalf("duplicate ingest changed design matrix at %d", i)
		}
	}
}

func TestIngestUnknownEvent(t *testing.T) {
	e := newTestEngine(t, Config{Alpha: 1})
	if _, err := e.Ingest("no-such-event", 0.5); !errors.Is(err, ErrDuplicateReward) {
		t.Errorf("Ingest() error = %v, want ErrDuplicateReward", err)
	}
}

func TestIngestClampsReward(t *testing.T) {
	e := newTestEngine(t, Config{Alpha: 1})
	if err := e.RegisterTopic("food", "", nil); err != nil {
		t.Fatal(err)
	}
	x := make([]float64, e.FeatureDim())
	x[0] = 1

	ev, _ := e.Select(x, nil)
	applied, err := e.Ingest(ev.ID, 3.7)
	if err != nil {
		t.Fatal(err)
	}
	if applied != 1 {
		t.Errorf("applied reward = %v, want clamped to 1", applied)
	}

	ev, _ = e.Select(x, nil)
	applied, err = e.Ingest(ev.ID, -0.4)
	if err != nil {
		t.Fatal(err)
	}
	if applied != 0 {
		t.Errorf("applied reward = %v, want clamped to 0", applied)
	}
}

func TestIngestLabel(t *testing.T) {
	e := newTestEngine(t, Config{Alpha: 1})
	if err := e.RegisterTopic("music", "", nil); err != nil {
		t.Fatal(err)
	}
	x := make([]float64, e.FeatureDim())
	x[0] = 1

	ev, _ := e.Select(x, nil)
	reward, err := e.IngestLabel(ev.ID, "happy")
	if err != nil {
		t.Fatal(err)
	}
	if reward != 0.9 {
		t.Errorf("reward for happy = %v, want 0.9", reward)
	}
}

func TestRewardAppliesPinnedContext(t *testing.T) {
	// The reward must update the arm with the context captured at
	// selection time, not whatever the encoder would produce now.
	e := newTestEngine(t, Config{Alpha: 1})
	if err := e.RegisterTopic("hobbies", "", nil); err != nil {
		t.Fatal(err)
	}

	x := make([]float64, e.FeatureDim())
	x[0] = 1
	x[3] = 1
	ev, err := e.Select(x, nil)
	if err != nil {
		t.Fatal(err)
	}

	// Mutating the caller's slice after selection must not leak into
	// the pending event.
	x[3] = 0
	if _, err := e.Ingest(ev.ID, 1); err != nil {
		t.Fatal(err)
	}

	arm, _ := e.catalog.Arm("hobbies")
	st := arm.State()
	// b = r*x with r=1, so b[3] reflects the pinned context component.
	if !almostEqual(st.B[3], 1) {
		t.Errorf("b[3] = %v, want 1 (pinned context)", st.B[3])
	}
}

func TestStatsProjection(t *testing.T) {
	e := newTestEngine(t, Config{Alpha: 1})
	if err := e.RegisterTopic("movies", "Movies", []string{"sci-fi", "anime"}); err != nil {
		t.Fatal(err)
	}
	if err := e.RegisterTopic("travel", "Travel", nil); err != nil {
		t.Fatal(err)
	}

	x := make([]float64, e.FeatureDim())
	x[0] = 1
	for i := 0; i < 3; i++ {
		ev, err := e.Select(x, []string{"movies"})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := e.Ingest(ev.ID, 0.9); err != nil {
			t.Fatal(err)
		}
	}
	ev, err := e.Select(x, []string{"travel"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Ingest(ev.ID, 0.2); err != nil {
		t.Fatal(err)
	}

	stats := e.Stats()
	if stats.TotalSelections != 4 {
		t.Errorf("TotalSelections = %d, want 4", stats.TotalSelections)
	}
	if stats.FeatureDim != e.FeatureDim() {
		t.Errorf("FeatureDim = %d, want %d", stats.FeatureDim, e.FeatureDim())
	}

	movies := stats.Topics["movies"]
	if movies.Count != 3 {
		t.Errorf("movies count = %d, want 3", movies.Count)
	}
	if !almostEqual(movies.Value, 0.9) {
		t.Errorf("movies value = %v, want 0.9", movies.Value)
	}
	if !almostEqual(movies.Frequency, 0.75) {
		t.Errorf("movies frequency = %v, want 0.75", movies.Frequency)
	}

	travel := stats.Topics["travel"]
	if !almostEqual(travel.Value, 0.2) {
		t.Errorf("travel value = %v, want 0.2", travel.Value)
	}
	if !almostEqual(travel.Frequency, 0.25) {
		t.Errorf("travel frequency = %v, want 0.25", travel.Frequency)
	}

	var sum float64
	for _, ts := range stats.Topics {
		sum += ts.Frequency
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("frequencies sum to %v, want 1", sum)
	}

	subs := stats.Subtopics["movies"]
	if len(subs) != 2 || subs[0] != "anime" || subs[1] != "sci-fi" {
		t.Errorf("movies subtopics = %v, want [anime sci-fi]", subs)
	}
}

func TestStatsUnvisitedTopic(t *testing.T) {
	e := newTestEngine(t, Config{Alpha: 1})
	if err := e.RegisterTopic("daily_life", "Daily life", nil); err != nil {
		t.Fatal(err)
	}

	stats := e.Stats()
	ts, ok := stats.Topics["daily_life"]
	if !ok {
		t.Fatal("unvisited topic missing from stats")
	}
	if ts.Value != 0 || ts.Count != 0 || ts.Frequency != 0 {
		t.Errorf("unvisited topic stats = %+v, want zeros", ts)
	}
	if stats.TotalSelections != 0 {
		t.Errorf("TotalSelections = %d, want 0", stats.TotalSelections)
	}
}

func TestRegisterTopicIdempotent(t *testing.T) {
	e := newTestEngine(t, Config{Alpha: 1})
	if err := e.RegisterTopic("movies", "Movies", []string{"anime"}); err != nil {
		t.Fatal(err)
	}

	x := make([]float64, e.FeatureDim())
	x[0] = 1
	ev, _ := e.Select(x, nil)
	if _, err := e.Ingest(ev.ID, 0.9); err != nil {
		t.Fatal(err)
	}

	// Re-registration unions subtopics and keeps the learned arm.
	if err := e.RegisterTopic("movies", "Movies", []string{"sci-fi", "anime"}); err != nil {
		t.Fatal(err)
	}
	topic, err := e.Topic("movies")
	if err != nil {
		t.Fatal(err)
	}
	if len(topic.Subtopics) != 2 {
		t.Errorf("subtopics = %v, want union of 2", topic.Subtopics)
	}
	arm, _ := e.catalog.Arm("movies")
	if arm.Count() != 1 {
		t.Errorf("arm count after re-registration = %d, want 1", arm.Count())
	}
}

func TestPhase(t *testing.T) {
	e := newTestEngine(t, Config{Alpha: 1, WarmupSelections: 3})
	if err := e.RegisterTopic("games", "", nil); err != nil {
		t.Fatal(err)
	}

	if got := e.Phase("games"); got != PhaseUnvisited {
		t.Errorf("Phase = %q, want %q", got, PhaseUnvisited)
	}

	x := make([]float64, e.FeatureDim())
	x[0] = 1
	for i := 0; i < 2; i++ {
		ev, _ := e.Select(x, nil)
		if _, err := e.Ingest(ev.ID, 0.6); err != nil {
			t.Fatal(err)
		}
	}
	if got := e.Phase("games"); got != PhaseExploring {
		t.Errorf("Phase = %q, want %q", got, PhaseExploring)
	}

	ev, _ := e.Select(x, nil)
	if _, err := e.Ingest(ev.ID, 0.6); err != nil {
		t.Fatal(err)
	}
	if got := e.Phase("games"); got != PhaseConverged {
		t.Errorf("Phase = %q, want %q", got, PhaseConverged)
	}
}

func TestDirtyStatesAndRestore(t *testing.T) {
	e := newTestEngine(t, Config{Alpha: 1})
	for _, id := range []string{"movies", "travel"} {
		if err := e.RegisterTopic(id, "", nil); err != nil {
			t.Fatal(err)
		}
	}

	if len(e.DirtyStates()) != 0 {
		t.Error("fresh engine reported dirty arms")
	}

	x := make([]float64, e.FeatureDim())
	x[0] = 1
	ev, _ := e.Select(x, []string{"movies"})
	if _, err := e.Ingest(ev.ID, 0.9); err != nil {
		t.Fatal(err)
	}

	dirty := e.DirtyStates()
	if len(dirty) != 1 || dirty[0].TopicID != "movies" {
		t.Fatalf("DirtyStates() = %v entries, want exactly movies", len(dirty))
	}

	e.MarkFlushed(dirty)
	if len(e.DirtyStates()) != 0 {
		t.Error("arms still dirty after MarkFlushed")
	}

	// A second engine restores the flushed state and scores identically.
	e2 := newTestEngine(t, Config{Alpha: 1})
	if n := e2.RestoreArms(dirty); n != 1 {
		t.Fatalf("RestoreArms() = %d, want 1", n)
	}
	want := e.Stats().Topics["movies"]
	got := e2.Stats().Topics["movies"]
	if got.Count != want.Count || !almostEqual(got.Value, want.Value) {
		t.Errorf("restored stats = %+v, want %+v", got, want)
	}
}

func TestRestoreArmsSkipsIncompatibleDim(t *testing.T) {
	e := newTestEngine(t, Config{Alpha: 1, MoodStates: []string{"calm"}})
	other := newTestEngine(t, Config{Alpha: 1})

	x := make([]float64, other.FeatureDim())
	x[0] = 1
	if err := other.RegisterTopic("movies", "", nil); err != nil {
		t.Fatal(err)
	}
	ev, _ := other.Select(x, nil)
	if _, err := other.Ingest(ev.ID, 0.9); err != nil {
		t.Fatal(err)
	}

	states := other.DirtyStates()
	if n := e.RestoreArms(states); n != 0 {
		t.Errorf("RestoreArms() = %d, want 0 for incompatible dims", n)
	}
	// The topic is still registered with a fresh arm.
	if _, err := e.Topic("movies"); err != nil {
		t.Errorf("topic not registered after skipped restore: %v", err)
	}
}

func TestPendingEventEviction(t *testing.T) {
	e := newTestEngine(t, Config{Alpha: 1, MaxPendingEvents: 2})
	if err := e.RegisterTopic("movies", "", nil); err != nil {
		t.Fatal(err)
	}
	x := make([]float64, e.FeatureDim())
	x[0] = 1

	first, _ := e.Select(x, nil)
	e.Select(x, nil)
	e.Select(x, nil)

	if got := e.PendingEvents(); got != 2 {
		t.Errorf("PendingEvents() = %d, want 2", got)
	}
	// The oldest event was evicted, so its reward is now rejected.
	if _, err := e.Ingest(first.ID, 0.9); !errors.Is(err, ErrDuplicateReward) {
		t.Errorf("Ingest(evicted) error = %v, want ErrDuplicateReward", err)
	}
}

func TestEventRegistryBoundedWhenConsumed(t *testing.T) {
	// Consuming every event must not let the eviction queue grow past
	// its bound over a long run of select/reward pairs.
	r := newEventRegistry(8)
	for i := 0; i < 1000; i++ {
		ev := &SelectionEvent{ID: fmt.Sprintf("ev-%d", i), TopicID: "movies"}
		r.add(ev)
		if _, err := r.take(ev.ID); err != nil {
			t.Fatalf("take(%s) failed: %v", ev.ID, err)
		}
	}
	if got := r.len(); got != 0 {
		t.Errorf("len() = %d, want 0", got)
	}
	r.mu.Lock()
	queued := len(r.order)
	r.mu.Unlock()
	if queued >= 2*r.max {
		t.Errorf("eviction queue holds %d ids, want fewer than %d", queued, 2*r.max)
	}
}

func TestEventRegistryCompactKeepsPending(t *testing.T) {
	r := newEventRegistry(64)
	keep := &SelectionEvent{ID: "keep", TopicID: "music"}
	r.add(keep)

	// Enough consumed churn to force several queue rebuilds.
	for i := 0; i < 500; i++ {
		ev := &SelectionEvent{ID: fmt.Sprintf("churn-%d", i), TopicID: "movies"}
		r.add(ev)
		if _, err := r.take(ev.ID); err != nil {
			t.Fatalf("take(%s) failed: %v", ev.ID, err)
		}
	}

	ev, err := r.take("keep")
	if err != nil {
		t.Fatalf("take(keep) failed after churn: %v", err)
	}
	if ev != keep {
		t.Error("take(keep) returned a different event")
	}
}

func TestCatalogConcurrentGetOrCreateArm(t *testing.T) {
	c := newCatalog(4, 1.0)

	const workers = 16
	arms := make([]*Arm, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			arms[i] = c.GetOrCreateArm("movies")
		}(i)
	}
	wg.Wait()

	for i := 1; i < workers; i++ {
		if arms[i] != arms[0] {
			t.Fatalf("worker %d received a distinct arm instance", i)
		}
	}
	if got := c.Len(); got != 1 {
		t.Errorf("Len() = %d, want 1", got)
	}
}

func TestRegisterTopicRejectsEmptyID(t *testing.T) {
	e := newTestEngine(t, Config{Alpha: 1})

	err := e.RegisterTopic("", "Movies", nil)
	if err == nil {
		t.Fatal("RegisterTopic with empty id succeeded, want error")
	}
	if errors.Is(err, ErrUnknownTopic) {
		t.Errorf("empty id reported as unknown topic: %v", err)
	}
	if got := len(e.Topics()); got != 0 {
		t.Errorf("Topics() has %d entries after rejected registration, want 0", got)
	}
}

func TestConcurrentSelectAndIngest(t *testing.T) {
	e := newTestEngine(t, Config{Alpha: 1})
	for _, id := range []string{"movies", "music", "games", "food"} {
		if err := e.RegisterTopic(id, "", nil); err != nil {
			t.Fatal(err)
		}
	}

	x := make([]float64, e.FeatureDim())
	x[0] = 1
	const workers = 8
	const rounds = 50

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				ev, err := e.Select(x, nil)
				if err != nil {
					t.Errorf("Select failed: %v", err)
					return
				}
				if _, err := e.Ingest(ev.ID, 0.6); err != nil {
					t.Errorf("Ingest failed: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	stats := e.Stats()
	if stats.TotalSelections != workers*rounds {
		t.Errorf("TotalSelections = %d, want %d", stats.TotalSelections, workers*rounds)
	}
	var sum float64
	for _, ts := range stats.Topics {
		sum += ts.Frequency
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("frequencies sum to %v, want 1", sum)
	}
}
