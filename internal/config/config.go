// Recomate - Conversational Companion Topic Engine
// Copyright 2026 yasut0ra
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/yasut0ra/recomate

// Package config provides layered configuration for Recomate.
//
// Configuration is loaded via Koanf v2 with the following precedence
// (highest wins): environment variables > config file > built-in defaults.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root configuration for the Recomate server.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Logging  LoggingConfig  `koanf:"logging"`
	Bandit   BanditConfig   `koanf:"bandit"`
	Storage  StorageConfig  `koanf:"storage"`
	Mood     MoodConfig     `koanf:"mood"`
	Pipeline PipelineConfig `koanf:"pipeline"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string        `koanf:"host" validate:"required"`
	Port        int           `koanf:"port" validate:"gt=0,lte=65535"`
	Timeout     time.Duration `koanf:"timeout" validate:"gt=0"`
	CORSOrigins []string      `koanf:"cors_origins"`
	// RateLimitReqs requests per RateLimitWindow per client IP.
	RateLimitReqs   int           `koanf:"rate_limit_reqs" validate:"gte=0"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// BanditConfig holds topic-recommendation engine settings.
type BanditConfig struct {
	// Alpha is the exploration coefficient. Larger values bias selection
	// toward under-sampled topics. Typical range: 0.1-2.0.
	Alpha float64 `koanf:"alpha" validate:"gte=0"`

	// Lambda is the ridge regularization constant used to initialize each
	// arm's design matrix. Must be positive to keep the matrix invertible.
	Lambda float64 `koanf:"lambda" validate:"gt=0"`

	// WarmupSelections is the per-arm selection count below which an arm is
	// considered to still be exploring. Informational only; scoring does
	// not branch on it.
	WarmupSelections int `koanf:"warmup_selections" validate:"gte=0"`

	// DefaultTopic is the fallback topic returned when selection cannot
	// run (no candidates, dimension mismatch).
	DefaultTopic string `koanf:"default_topic" validate:"required"`

	// Topics seeds the catalog at startup. Additional topics may still be
	// registered at runtime.
	Topics []string `koanf:"topics"`

	// MaxPendingEvents bounds the number of outstanding unrewarded
	// selection events retained in memory.
	MaxPendingEvents int `koanf:"max_pending_events" validate:"gt=0"`
}

// StorageConfig holds durable store settings.
type StorageConfig struct {
	// Path is the BadgerDB directory. Empty means in-memory (tests).
	Path string `koanf:"path"`

	// FlushInterval is how often dirty arm state is written behind.
	FlushInterval time.Duration `koanf:"flush_interval" validate:"gt=0"`

	// SyncWrites enables fsync on every Badger write.
	SyncWrites bool `koanf:"sync_writes"`
}

// MoodConfig holds mood state machine settings.
type MoodConfig struct {
	InitialState string `koanf:"initial_state" validate:"required"`
}

// PipelineConfig holds conversational turn pipeline settings.
type PipelineConfig struct {
	TurnTimeout time.Duration `koanf:"turn_timeout" validate:"gt=0"`
}

// Validate checks the configuration for errors. Violations here are fatal
// at startup; nothing downstream can run with an invalid config.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	if c.Bandit.Alpha > 10 {
		return fmt.Errorf("bandit.alpha %.2f is unreasonably large (max 10)", c.Bandit.Alpha)
	}
	if c.Server.RateLimitReqs > 0 && c.Server.RateLimitWindow <= 0 {
		return fmt.Errorf("server.rate_limit_window must be positive when rate limiting is enabled")
	}

	return nil
}
