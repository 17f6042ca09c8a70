// AlertFeed - Real-time Operational Alert Delivery Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/alertfeed

// Package kvstore is the durable key-value layer under every persisted
// piece of pipeline state. Values are JSON blobs stored in BadgerDB; a
// group of blobs written through PutMany lands in a single transaction so
// related state (events and their unread markers) is never torn.
package kvstore

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/goccy/go-json"

	"github.com/tomtom215/alertfeed/internal/logging"
)

var (
	// ErrClosed is returned by any operation after Close.
	ErrClosed = errors.New("kvstore: closed")

	// ErrNotFound is returned by Get when the key has never been written.
	ErrNotFound = errors.New("kvstore: key not found")
)

// Well-known keys.
const (
	KeyEvents      = "events"
	KeyUnread      = "unread"
	KeySyncState   = "sync_state"
	KeyRecentIDs   = "recent_ids"
	KeyClientID    = "client_id"
	KeyLiveness    = "liveness"
	KeyReadMarkers = "read_markers"
)

// Config controls how the BadgerDB instance is opened.
type Config struct {
	// Path is the data directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps everything in RAM. Used by tests.
	InMemory bool

	// SyncWrites forces fsync after every transaction.
	SyncWrites bool

	// Compression enables Snappy compression for values.
	Compression bool
}

// Store persists JSON blobs under string keys.
type Store struct {
	db *badger.DB

	mu     sync.RWMutex
	closed bool
}

// Open opens or creates the database described by cfg.
func Open(cfg Config) (*Store, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, fmt.Errorf("kvstore: path is required")
		}
		opts = badger.DefaultOptions(cfg.Path)
		opts.SyncWrites = cfg.SyncWrites
	}
	if cfg.Compression {
		opts.Compression = options.Snappy
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("in_memory", cfg.InMemory).
		Bool("sync_writes", cfg.SyncWrites).
		Msg("State store opened")
	return &Store{db: db}, nil
}

// Get decodes the value stored under key into v.
func (s *Store) Get(key string, v interface{}) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get %s: %w", key, err)
		}
		return item.Value(func(val []byte) error {
			if err := json.Unmarshal(val, v); err != nil {
				return fmt.Errorf("unmarshal %s: %w", key, err)
			}
			return nil
		})
	})
}

// Put encodes v and stores it under key.
func (s *Store) Put(key string, v interface{}) error {
	return s.PutMany(map[string]interface{}{key: v})
}

// PutMany stores every value in one transaction.
func (s *Store) PutMany(values map[string]interface{}) error {
	encoded := make(map[string][]byte, len(values))
	for key, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", key, err)
		}
		encoded[key] = data
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	return s.db.Update(func(txn *badger.Txn) error {
		for key, data := range encoded {
			if err := txn.Set([]byte(key), data); err != nil {
				return fmt.Errorf("set %s: %w", key, err)
			}
		}
		return nil
	})
}

// Delete removes keys. Missing keys are not an error.
func (s *Store) Delete(keys ...string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	return s.db.Update(func(txn *badger.Txn) error {
		for _, key := range keys {
			if err := txn.Delete([]byte(key)); err != nil {
				return fmt.Errorf("delete %s: %w", key, err)
			}
		}
		return nil
	})
}

// Close flushes and closes the database. Safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close BadgerDB: %w", err)
	}
	logging.Info().Msg("State store closed")
	return nil
}
