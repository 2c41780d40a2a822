// Recomate - Conversational Companion Topic Engine
// Copyright 2026 yasut0ra
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/yasut0ra/recomate

// Package main is the entry point for the Recomate topic engine server.
//
// Recomate learns which conversation topics a companion should raise,
// per context, using a linear UCB contextual bandit with one model arm
// per topic. Rewards come from the emotional read of each exchange.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: layered settings from defaults, config.yaml, and
//     environment variables (Koanf v2)
//  2. Logging: zerolog, console or JSON format
//  3. Storage: BadgerDB state store for arms, topics, and moods
//  4. Engine: the bandit engine, restored from persisted state and
//     seeded with configured topics
//  5. Mood service: the companion's affective state machine
//  6. Pipeline: the per-turn orchestrator with the rule-based responder
//  7. Supervision: suture tree running the HTTP server and the
//     write-behind state flusher
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins):
//   - Environment variables (HTTP_PORT, BANDIT_ALPHA, STORAGE_PATH, ...)
//   - Config file (config.yaml, or CONFIG_PATH)
//   - Built-in defaults
//
// # Signal Handling
//
// The server shuts down gracefully on SIGINT and SIGTERM: the HTTP
// server drains in-flight requests, the flusher writes a final state
// snapshot, and the store is closed.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/yasut0ra/recomate/internal/api"
	"github.com/yasut0ra/recomate/internal/bandit"
	"github.com/yasut0ra/recomate/internal/config"
	"github.com/yasut0ra/recomate/internal/logging"
	"github.com/yasut0ra/recomate/internal/mood"
	"github.com/yasut0ra/recomate/internal/pipeline"
	"github.com/yasut0ra/recomate/internal/storage"
	"github.com/yasut0ra/recomate/internal/supervisor"
	"github.com/yasut0ra/recomate/internal/supervisor/services"
)

func main() {
	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("Server failed")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Msg("Starting Recomate")

	store, err := storage.Open(storage.Options{
		Path:       cfg.Storage.Path,
		InMemory:   cfg.Storage.Path == "",
		SyncWrites: cfg.Storage.SyncWrites,
	})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Error().Err(err).Msg("Store close failed")
		}
	}()

	engine, err := bandit.New(bandit.Config{
		Alpha:            cfg.Bandit.Alpha,
		Lambda:           cfg.Bandit.Lambda,
		WarmupSelections: cfg.Bandit.WarmupSelections,
		MaxPendingEvents: cfg.Bandit.MaxPendingEvents,
		MoodStates:       mood.States,
	}, logging.Logger())
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := restoreState(ctx, store, engine); err != nil {
		return err
	}
	for _, id := range cfg.Bandit.Topics {
		if err := engine.RegisterTopic(id, id, nil); err != nil {
			return fmt.Errorf("seed topic %s: %w", id, err)
		}
	}

	moods := mood.NewService(cfg.Mood.InitialState, logging.Logger())
	if states, err := store.LoadMoodStates(ctx); err != nil {
		logging.Warn().Err(err).Msg("Mood state restore failed, starting fresh")
	} else {
		moods.Restore(states)
	}

	responder := pipeline.NewRuleBasedResponder()
	processor := pipeline.New(engine, moods, responder, cfg.Bandit.DefaultTopic, logging.Logger())

	handler := api.NewHandler(engine, moods, processor, cfg.Pipeline.TurnTimeout)
	router := api.NewRouter(handler, api.RouterConfig{
		CORSOrigins:       cfg.Server.CORSOrigins,
		RateLimitRequests: cfg.Server.RateLimitReqs,
		RateLimitWindow:   cfg.Server.RateLimitWindow,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       2 * cfg.Server.Timeout,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.Timeout))
	tree.AddDataService(services.NewFlushService(engine, moods, store, cfg.Storage.FlushInterval))

	logging.Info().
		Int("topics", len(engine.Topics())).
		Int("feature_dim", engine.FeatureDim()).
		Str("addr", server.Addr).
		Msg("Recomate ready")

	err = tree.Serve(ctx)
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("supervisor: %w", err)
	}

	// Catalog membership changes rarely, so it is written once on the
	// way out rather than per flush tick.
	saveCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.Timeout)
	defer cancel()
	if err := store.SaveTopics(saveCtx, engine.Topics()); err != nil {
		logging.Error().Err(err).Msg("Topic catalog save failed")
	}

	logging.Info().Msg("Shutdown complete")
	return nil
}

// restoreState rebuilds the engine from persisted topics and arms.
func restoreState(ctx context.Context, store *storage.Store, engine *bandit.Engine) error {
	topics, err := store.LoadTopics(ctx)
	if err != nil {
		return fmt.Errorf("load topics: %w", err)
	}
	for _, t := range topics {
		if err := engine.RegisterTopic(t.ID, t.Label, t.Subtopics); err != nil {
			return fmt.Errorf("restore topic %s: %w", t.ID, err)
		}
	}

	arms, err := store.LoadArms(ctx)
	if err != nil {
		return fmt.Errorf("load arms: %w", err)
	}
	engine.RestoreArms(arms)
	return nil
}
