// Recomate - Conversational Companion Topic Engine
// Copyright 2026 yasut0ra
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/yasut0ra/recomate

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/yasut0ra/recomate/internal/metrics"
)

// RouterConfig carries the HTTP surface tunables.
type RouterConfig struct {
	// CORSOrigins lists allowed origins; empty disables CORS headers.
	CORSOrigins []string
	// RateLimitRequests per RateLimitWindow per client IP. Zero
	// disables rate limiting.
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// NewRouter wires the chi router: global middleware, health and
// metrics endpoints, and the versioned API.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestID())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(RequestLogging())

	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.Get("/health", h.Health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RateLimitRequests > 0 {
			r.Use(httprate.LimitByIP(cfg.RateLimitRequests, cfg.RateLimitWindow))
		}

		r.Route("/topics", func(r chi.Router) {
			r.Get("/", h.ListTopics)
			r.Post("/", h.RegisterTopic)
			r.Get("/stats", h.TopicStats)
			r.Get("/{id}", h.GetTopic)
		})

		r.Post("/select", h.SelectTopic)
		r.Post("/rewards", h.Reward)
		r.Post("/turns", h.Turn)

		r.Route("/moods", func(r chi.Router) {
			r.Get("/{userId}", h.GetMood)
			r.Post("/{userId}/transition", h.MoodTransition)
		})
	})

	return r
}
