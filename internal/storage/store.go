// Recomate - Conversational Companion Topic Engine
// Copyright 2026 yasut0ra
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/yasut0ra/recomate

// Package storage persists engine state in BadgerDB: arm models, the
// topic catalog, and per-user mood states. Values are JSON; keys are
// namespaced by prefix so each concern can be scanned independently.
package storage

import (
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/yasut0ra/recomate/internal/bandit"
	"github.com/yasut0ra/recomate/internal/logging"
	"github.com/yasut0ra/recomate/internal/mood"
)

// Key prefixes for BadgerDB storage
const (
	armKeyPrefix   = "arm:"
	topicKeyPrefix = "topic:"
	moodKeyPrefix  = "mood:"
)

// Options configures the store.
type Options struct {
	// Path is the BadgerDB directory. Ignored when InMemory is set.
	Path string
	// InMemory runs BadgerDB without disk, for tests.
	InMemory bool
	// SyncWrites forces an fsync per write batch. Slower, safer.
	SyncWrites bool
}

// Store is a BadgerDB-backed persistence layer. All methods are safe
// for concurrent use; batch writes are transactional, so a crashed
// flush never leaves a half-written set of arms.
type Store struct {
	db *badger.DB
}

// Open creates or reopens the store at the configured path.
func Open(opts Options) (*Store, error) {
	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if opts.Path == "" {
			return nil, fmt.Errorf("storage path required")
		}
		bopts = badger.DefaultOptions(opts.Path)
		bopts.SyncWrites = opts.SyncWrites
	}
	// Badger's own logger is noisy; state changes are logged here.
	bopts.Logger = nil

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	logging.Info().
		Str("component", "storage").
		Str("path", opts.Path).
		Bool("in_memory", opts.InMemory).
		Bool("sync_writes", opts.SyncWrites).
		Msg("Store opened")
	return &Store{db: db}, nil
}

// Close flushes and closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveArms writes a batch of arm states in one transaction.
func (s *Store) SaveArms(ctx context.Context, states []bandit.ArmState) error {
	if len(states) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		for i := range states {
			data, err := json.Marshal(&states[i])
			if err != nil {
				return fmt.Errorf("marshal arm %s: %w", states[i].TopicID, err)
			}
			key := []byte(armKeyPrefix + states[i].TopicID)
			if err := txn.Set(key, data); err != nil {
				return fmt.Errorf("set arm %s: %w", states[i].TopicID, err)
			}
		}
		return nil
	})
}

// LoadArms reads every persisted arm state.
func (s *Store) LoadArms(ctx context.Context) ([]bandit.ArmState, error) {
	var out []bandit.ArmState
	err := s.scanPrefix(ctx, armKeyPrefix, func(val []byte) error {
		var st bandit.ArmState
		if err := json.Unmarshal(val, &st); err != nil {
			return fmt.Errorf("unmarshal arm state: %w", err)
		}
		out = append(out, st)
		return nil
	})
	return out, err
}

// SaveTopics writes the topic catalog in one transaction.
func (s *Store) SaveTopics(ctx context.Context, topics []bandit.Topic) error {
	if len(topics) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		for i := range topics {
			data, err := json.Marshal(&topics[i])
			if err != nil {
				return fmt.Errorf("marshal topic %s: %w", topics[i].ID, err)
			}
			if err := txn.Set([]byte(topicKeyPrefix+topics[i].ID), data); err != nil {
				return fmt.Errorf("set topic %s: %w", topics[i].ID, err)
			}
		}
		return nil
	})
}

// LoadTopics reads the persisted topic catalog.
func (s *Store) LoadTopics(ctx context.Context) ([]bandit.Topic, error) {
	var out []bandit.Topic
	err := s.scanPrefix(ctx, topicKeyPrefix, func(val []byte) error {
		var t bandit.Topic
		if err := json.Unmarshal(val, &t); err != nil {
			return fmt.Errorf("unmarshal topic: %w", err)
		}
		out = append(out, t)
		return nil
	})
	return out, err
}

// SaveMoodStates writes per-user mood states in one transaction.
func (s *Store) SaveMoodStates(ctx context.Context, states []mood.State) error {
	if len(states) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		for i := range states {
			data, err := json.Marshal(&states[i])
			if err != nil {
				return fmt.Errorf("marshal mood %s: %w", states[i].UserID, err)
			}
			if err := txn.Set([]byte(moodKeyPrefix+states[i].UserID), data); err != nil {
				return fmt.Errorf("set mood %s: %w", states[i].UserID, err)
			}
		}
		return nil
	})
}

// LoadMoodStates reads every persisted mood state.
func (s *Store) LoadMoodStates(ctx context.Context) ([]mood.State, error) {
	var out []mood.State
	err := s.scanPrefix(ctx, moodKeyPrefix, func(val []byte) error {
		var st mood.State
		if err := json.Unmarshal(val, &st); err != nil {
			return fmt.Errorf("unmarshal mood state: %w", err)
		}
		out = append(out, st)
		return nil
	})
	return out, err
}

func (s *Store) scanPrefix(ctx context.Context, prefix string, visit func(val []byte) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{
			PrefetchValues: true,
			PrefetchSize:   64,
			Prefix:         []byte(prefix),
		})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := it.Item().Value(visit); err != nil {
				return err
			}
		}
		return nil
	})
}
