// AlertFeed - Real-time Operational Alert Delivery Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/alertfeed

// Package liveness writes a periodic heartbeat marker so the next start can
// tell a clean shutdown from a killed process.
package liveness

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/alertfeed/internal/kvstore"
	"github.com/tomtom215/alertfeed/internal/logging"
)

// Defaults for Config.
const (
	DefaultInterval = 30 * time.Second
	DefaultKillGap  = 2 * time.Minute
)

// Storage is the persistence liveness needs.
type Storage interface {
	Get(key string, v interface{}) error
	Put(key string, v interface{}) error
}

// Marker is the persisted heartbeat.
type Marker struct {
	Time  time.Time `json:"time"`
	Clean bool      `json:"clean"`
}

// Verdict is the result of inspecting the marker at startup.
type Verdict struct {
	Killed bool
	Last   Marker
	Gap    time.Duration
	Found  bool
}

// Check reads the last marker and decides whether the previous run was
// killed: the marker must exist, not be clean, and be older than killGap.
func Check(storage Storage, killGap time.Duration, now time.Time) (Verdict, error) {
	if killGap <= 0 {
		killGap = DefaultKillGap
	}
	var m Marker
	if err := storage.Get(kvstore.KeyLiveness, &m); err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return Verdict{}, nil
		}
		return Verdict{}, fmt.Errorf("read liveness marker: %w", err)
	}
	v := Verdict{Last: m, Found: true, Gap: now.Sub(m.Time)}
	v.Killed = !m.Clean && v.Gap > killGap
	return v, nil
}

// Writer refreshes the marker on an interval and runs tick hooks.
type Writer struct {
	storage  Storage
	interval time.Duration
	now      func() time.Time

	mu    sync.Mutex
	hooks []func()
}

// NewWriter creates a writer. interval <= 0 uses DefaultInterval.
func NewWriter(storage Storage, interval time.Duration) *Writer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Writer{storage: storage, interval: interval, now: time.Now}
}

// OnTick registers fn to run after each marker write.
func (w *Writer) OnTick(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.hooks = append(w.hooks, fn)
}

// Beat writes an unclean marker stamped now.
func (w *Writer) Beat() error {
	return w.write(false)
}

// MarkClean writes a clean marker. Called last during orderly shutdown.
func (w *Writer) MarkClean() error {
	return w.write(true)
}

func (w *Writer) write(clean bool) error {
	if err := w.storage.Put(kvstore.KeyLiveness, Marker{Time: w.now().UTC(), Clean: clean}); err != nil {
		return fmt.Errorf("write liveness marker: %w", err)
	}
	return nil
}

// Serve beats immediately and then every interval until ctx is canceled.
func (w *Writer) Serve(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.tick()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.tick()
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (w *Writer) String() string {
	return "liveness-writer"
}

func (w *Writer) tick() {
	if err := w.Beat(); err != nil {
		logging.Warn().Err(err).Msg("Liveness marker write failed")
	}
	w.mu.Lock()
	hooks := append([]func(){}, w.hooks...)
	w.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}
