// Recomate - Conversational Companion Topic Engine
// Copyright 2026 yasut0ra
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/yasut0ra/recomate

// Package pipeline orchestrates one conversational turn: encode the
// current signals, select a topic, render a response, attribute the
// resulting emotion back to the selection as a reward, and nudge the
// companion's mood.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/yasut0ra/recomate/internal/bandit"
	"github.com/yasut0ra/recomate/internal/mood"
)

// Responder renders a reply for an utterance steered toward a topic,
// and labels the emotional read of the exchange. Implementations may
// call out to an LLM; RuleBasedResponder is the offline fallback.
type Responder interface {
	Respond(ctx context.Context, utterance string, topic bandit.Topic) (reply, emotion string, err error)
}

// Preferences are the user's stored conversational preference weights.
type Preferences struct {
	Tone  float64
	Humor float64
}

// DefaultPreferences mirror a fresh user profile.
func DefaultPreferences() Preferences {
	return Preferences{Tone: 0.6, Humor: 0.5}
}

// Result is the outcome of one processed turn.
type Result struct {
	EventID  string  `json:"eventId"`
	Topic    string  `json:"topic"`
	Label    string  `json:"label"`
	Reply    string  `json:"reply"`
	Emotion  string  `json:"emotion"`
	Reward   float64 `json:"reward"`
	Mood     string  `json:"mood"`
	FellBack bool    `json:"fellBack"`
}

// session tracks per-user conversational position.
type session struct {
	lastTurnAt time.Time
	turns      int
	prefs      Preferences
}

// Processor runs turns end to end. Safe for concurrent use; turns for
// the same user serialize only on the cheap session bookkeeping.
type Processor struct {
	engine       *bandit.Engine
	moods        *mood.Service
	responder    Responder
	defaultTopic string
	logger       zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*session

	// now is swappable for tests.
	now func() time.Time
}

// New builds a turn processor. defaultTopic is the fallback used when
// selection fails; it is registered on first use.
func New(engine *bandit.Engine, moods *mood.Service, responder Responder, defaultTopic string, logger zerolog.Logger) *Processor {
	return &Processor{
		engine:       engine,
		moods:        moods,
		responder:    responder,
		defaultTopic: defaultTopic,
		logger:       logger.With().Str("component", "pipeline").Logger(),
		sessions:     make(map[string]*session),
		now:          time.Now,
	}
}

// SetPreferences stores the user's preference weights for subsequent
// turns.
func (p *Processor) SetPreferences(userID string, prefs Preferences) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ensureSession(userID).prefs = prefs
}

// Turn processes one user utterance. A recoverable selection failure
// (empty catalog, context/arm dimension mismatch) falls back to the
// default topic instead of surfacing an error to the conversation;
// every other failure aborts the turn.
func (p *Processor) Turn(ctx context.Context, userID, utterance string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := p.now()
	signals := p.takeSignals(userID, now)
	x := p.engine.Encoder().Encode(signals)

	res := &Result{Mood: signals.Mood}
	var topic bandit.Topic

	ev, err := p.engine.Select(x, nil)
	switch {
	case err == nil:
		res.EventID = ev.ID
		topic, err = p.engine.Topic(ev.TopicID)
		if err != nil {
			return nil, err
		}
	case errors.Is(err, bandit.ErrEmptyCandidates), errors.Is(err, bandit.ErrDimensionMismatch):
		res.FellBack = true
		topic = bandit.Topic{ID: p.defaultTopic, Label: p.defaultTopic}
		p.logger.Warn().Err(err).Str("user", userID).Msg("Selection unavailable, using default topic")
	default:
		return nil, err
	}
	res.Topic = topic.ID

	reply, emotion, err := p.responder.Respond(ctx, utterance, topic)
	if err != nil {
		// A missing reply still counts as a (neutral) outcome for the
		// selection; the conversation layer shows its own apology.
		p.logger.Error().Err(err).Str("user", userID).Msg("Responder failed")
		emotion = "neutral"
	}
	res.Reply = reply
	res.Emotion = emotion

	if res.EventID != "" {
		reward, err := p.engine.IngestLabel(res.EventID, emotion)
		if err != nil {
			return nil, err
		}
		res.Reward = reward
	}

	if trigger := moodTrigger(emotion); trigger != "" {
		st := p.moods.Transition(userID, trigger)
		res.Mood = st.Current
	}

	p.logger.Debug().
		Str("user", userID).
		Str("topic", res.Topic).
		Str("emotion", res.Emotion).
		Float64("reward", res.Reward).
		Bool("fellback", res.FellBack).
		Msg("Turn processed")
	return res, nil
}

// takeSignals snapshots the session bookkeeping into encoder signals
// and advances the session by one turn.
func (p *Processor) takeSignals(userID string, now time.Time) bandit.Signals {
	moodState := p.moods.Current(userID).Current

	p.mu.Lock()
	defer p.mu.Unlock()
	sess := p.ensureSession(userID)

	var gap time.Duration
	if !sess.lastTurnAt.IsZero() {
		gap = now.Sub(sess.lastTurnAt)
	}
	s := bandit.Signals{
		Mood:          moodState,
		Now:           now,
		SincePrevTurn: gap,
		TurnIndex:     sess.turns,
		Tone:          sess.prefs.Tone,
		Humor:         sess.prefs.Humor,
	}
	sess.lastTurnAt = now
	sess.turns++
	return s
}

func (p *Processor) ensureSession(userID string) *session {
	sess, ok := p.sessions[userID]
	if !ok {
		sess = &session{prefs: DefaultPreferences()}
		p.sessions[userID] = sess
	}
	return sess
}

// moodTrigger maps the turn's emotional read onto a mood transition
// trigger. Neutral exchanges leave the mood alone.
func moodTrigger(emotion string) string {
	switch emotion {
	case "happy":
		return "success"
	case "surprised":
		return "mischief"
	case "sad", "angry":
		return "concern"
	default:
		return ""
	}
}
