// Recomate - Conversational Companion Topic Engine
// Copyright 2026 yasut0ra
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/yasut0ra/recomate

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/yasut0ra/recomate/internal/bandit"
	"github.com/yasut0ra/recomate/internal/mood"
	"github.com/yasut0ra/recomate/internal/pipeline"
)

// Handler serves the topic engine's HTTP endpoints.
type Handler struct {
	engine    *bandit.Engine
	moods     *mood.Service
	processor *pipeline.Processor
	validate  *validator.Validate
	started   time.Time

	// TurnTimeout bounds a single conversational turn.
	turnTimeout time.Duration
}

// NewHandler builds the handler set.
func NewHandler(engine *bandit.Engine, moods *mood.Service, processor *pipeline.Processor, turnTimeout time.Duration) *Handler {
	if turnTimeout <= 0 {
		turnTimeout = 10 * time.Second
	}
	return &Handler{
		engine:      engine,
		moods:       moods,
		processor:   processor,
		validate:    validator.New(),
		started:     time.Now(),
		turnTimeout: turnTimeout,
	}
}

// Health reports liveness and basic engine state.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
		"topics":         len(h.engine.Topics()),
		"feature_dim":    h.engine.FeatureDim(),
		"pending_events": h.engine.PendingEvents(),
	})
}

// TopicStats returns the engine's learning statistics projection.
func (h *Handler) TopicStats(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(h.engine.Stats())
}

// ListTopics returns the topic catalog.
func (h *Handler) ListTopics(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]interface{}{
		"topics": h.engine.Topics(),
	})
}

// registerTopicRequest is the payload for topic registration.
type registerTopicRequest struct {
	ID        string   `json:"id" validate:"required,max=128"`
	Label     string   `json:"label" validate:"max=256"`
	Subtopics []string `json:"subtopics" validate:"max=32,dive,max=256"`
}

// RegisterTopic adds or updates a catalog entry.
func (h *Handler) RegisterTopic(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req registerTopicRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rw.BadRequest("Invalid JSON body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		rw.ValidationError("Invalid topic registration", err.Error())
		return
	}

	if err := h.engine.RegisterTopic(req.ID, req.Label, req.Subtopics); err != nil {
		rw.BadRequest(err.Error())
		return
	}
	topic, err := h.engine.Topic(req.ID)
	if err != nil {
		rw.InternalError("Topic registration failed")
		return
	}
	rw.Created(topic)
}

// GetTopic returns one catalog entry with its learning phase.
func (h *Handler) GetTopic(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	id := chi.URLParam(r, "id")

	topic, err := h.engine.Topic(id)
	if err != nil {
		rw.NotFound("Unknown topic: " + id)
		return
	}
	rw.Success(map[string]interface{}{
		"topic": topic,
		"phase": h.engine.Phase(id),
	})
}

// selectRequest is the payload for an explicit selection call.
type selectRequest struct {
	UserID     string   `json:"userId" validate:"required,max=128"`
	Candidates []string `json:"candidates" validate:"max=256,dive,max=128"`
	Context    struct {
		Mood          string  `json:"mood"`
		Tone          float64 `json:"tone"`
		Humor         float64 `json:"humor"`
		TurnIndex     int     `json:"turnIndex"`
		SincePrevTurn string  `json:"sincePrevTurn"`
	} `json:"context"`
}

// SelectTopic runs one explicit selection against caller-supplied
// signals and returns the pending event.
func (h *Handler) SelectTopic(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req selectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rw.BadRequest("Invalid JSON body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		rw.ValidationError("Invalid selection request", err.Error())
		return
	}

	signals := bandit.Signals{
		Mood:      req.Context.Mood,
		Now:       time.Now(),
		TurnIndex: req.Context.TurnIndex,
		Tone:      req.Context.Tone,
		Humor:     req.Context.Humor,
	}
	if req.Context.SincePrevTurn != "" {
		if gap, err := time.ParseDuration(req.Context.SincePrevTurn); err == nil {
			signals.SincePrevTurn = gap
		}
	}
	if signals.Mood == "" {
		signals.Mood = h.moods.Current(req.UserID).Current
	}

	x := h.engine.Encoder().Encode(signals)
	ev, err := h.engine.Select(x, req.Candidates)
	if err != nil {
		h.writeEngineError(rw, err)
		return
	}
	rw.Success(map[string]interface{}{
		"eventId": ev.ID,
		"topic":   ev.TopicID,
		"score":   ev.Score,
	})
}

// rewardRequest attributes an outcome to a selection event. Either an
// explicit reward or an emotion label must be present.
type rewardRequest struct {
	EventID string   `json:"eventId" validate:"required,max=128"`
	Label   string   `json:"label" validate:"max=64"`
	Reward  *float64 `json:"reward"`
}

// Reward applies a reward to a prior selection.
func (h *Handler) Reward(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req rewardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rw.BadRequest("Invalid JSON body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		rw.ValidationError("Invalid reward request", err.Error())
		return
	}

	var applied float64
	var err error
	if req.Reward != nil {
		applied, err = h.engine.Ingest(req.EventID, *req.Reward)
	} else {
		applied, err = h.engine.IngestLabel(req.EventID, req.Label)
	}
	if err != nil {
		h.writeEngineError(rw, err)
		return
	}
	rw.Success(map[string]interface{}{
		"eventId": req.EventID,
		"reward":  applied,
	})
}

// turnRequest is one conversational turn.
type turnRequest struct {
	UserID    string `json:"userId" validate:"required,max=128"`
	Utterance string `json:"utterance" validate:"required,max=4096"`
}

// Turn processes a full conversational turn through the pipeline.
func (h *Handler) Turn(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rw.BadRequest("Invalid JSON body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		rw.ValidationError("Invalid turn request", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.turnTimeout)
	defer cancel()

	res, err := h.processor.Turn(ctx, req.UserID, req.Utterance)
	if err != nil {
		h.writeEngineError(rw, err)
		return
	}
	rw.Success(res)
}

// GetMood returns the user's current mood state.
func (h *Handler) GetMood(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	NewResponseWriter(w, r).Success(h.moods.Current(userID))
}

// moodTransitionRequest drives an explicit mood transition.
type moodTransitionRequest struct {
	Trigger string `json:"trigger" validate:"max=64"`
}

// MoodTransition transitions the user's mood via a trigger.
func (h *Handler) MoodTransition(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	userID := chi.URLParam(r, "userId")
	if userID == "" {
		rw.BadRequest("Missing user id")
		return
	}

	var req moodTransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rw.BadRequest("Invalid JSON body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		rw.ValidationError("Invalid mood transition", err.Error())
		return
	}

	rw.Success(h.moods.Transition(userID, req.Trigger))
}

// writeEngineError maps engine errors onto API error codes.
func (h *Handler) writeEngineError(rw *ResponseWriter, err error) {
	switch {
	case errors.Is(err, bandit.ErrDimensionMismatch):
		rw.Error(http.StatusBadRequest, ErrCodeDimensionMismatch, err.Error())
	case errors.Is(err, bandit.ErrEmptyCandidates):
		rw.Error(http.StatusConflict, ErrCodeEmptyCandidates, "No candidate topics registered")
	case errors.Is(err, bandit.ErrDuplicateReward):
		rw.Error(http.StatusConflict, ErrCodeDuplicateReward, "Reward event unknown or already applied")
	case errors.Is(err, bandit.ErrUnknownTopic):
		rw.Error(http.StatusNotFound, ErrCodeUnknownTopic, err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		rw.ServiceUnavailable("Turn timed out")
	default:
		rw.InternalError("Internal error")
	}
}
