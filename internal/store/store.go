// AlertFeed - Real-time Operational Alert Delivery Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/alertfeed

package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomtom215/alertfeed/internal/kvstore"
	"github.com/tomtom215/alertfeed/internal/logging"
	"github.com/tomtom215/alertfeed/internal/metrics"
	"github.com/tomtom215/alertfeed/internal/models"
)

// Storage is the persistence the event store needs. *kvstore.Store
// satisfies it.
type Storage interface {
	Get(key string, v interface{}) error
	PutMany(values map[string]interface{}) error
}

// Config tunes save scheduling and retention.
type Config struct {
	// Retention is the age beyond which the sweep removes an event.
	Retention time.Duration

	// SweepSchedule is a cron spec for the retention sweep.
	SweepSchedule string

	// ForceSaveThreshold triggers a synchronous save once this many events
	// are unsaved.
	ForceSaveThreshold int

	// BusyThreshold is the unsaved count above which the short debounce is used.
	BusyThreshold int

	// SteadyDebounce applies in live mode with few unsaved events.
	SteadyDebounce time.Duration

	// BusyDebounce applies during catch-up or under a high unsaved count.
	BusyDebounce time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Retention:          7 * 24 * time.Hour,
		SweepSchedule:      "@every 3h",
		ForceSaveThreshold: 50,
		BusyThreshold:      20,
		SteadyDebounce:     2 * time.Second,
		BusyDebounce:       250 * time.Millisecond,
	}
}

// channelEvents holds one channel's events in arrival order (oldest first).
type channelEvents struct {
	mu     sync.RWMutex
	events []models.Event
	ids    map[string]struct{}
	unread int
}

// Store keeps accepted events per channel and guarantees an event id is
// stored at most once per channel.
type Store struct {
	mu       sync.RWMutex
	channels map[string]*channelEvents

	storage Storage
	cfg     Config

	saver   *kvstore.Debouncer
	saveMu  sync.Mutex
	unsaved atomic.Int64
	forcing atomic.Bool

	// catchUp reports whether any channel is replaying a backlog.
	catchUp func() bool

	now func() time.Time
}

// New creates an event store. catchUp may be nil.
func New(storage Storage, cfg Config, catchUp func() bool) *Store {
	def := DefaultConfig()
	if cfg.Retention <= 0 {
		cfg.Retention = def.Retention
	}
	if cfg.SweepSchedule == "" {
		cfg.SweepSchedule = def.SweepSchedule
	}
	if cfg.ForceSaveThreshold <= 0 {
		cfg.ForceSaveThreshold = def.ForceSaveThreshold
	}
	if cfg.BusyThreshold <= 0 {
		cfg.BusyThreshold = def.BusyThreshold
	}
	if cfg.SteadyDebounce <= 0 {
		cfg.SteadyDebounce = def.SteadyDebounce
	}
	if cfg.BusyDebounce <= 0 {
		cfg.BusyDebounce = def.BusyDebounce
	}
	if catchUp == nil {
		catchUp = func() bool { return false }
	}

	s := &Store{
		channels: make(map[string]*channelEvents),
		storage:  storage,
		cfg:      cfg,
		catchUp:  catchUp,
		now:      time.Now,
	}
	s.saver = kvstore.NewDebouncer(func() {
		if err := s.save(); err != nil {
			logging.Warn().Err(err).Msg("Event store save failed, will retry on next change")
		}
	}, 2*cfg.SteadyDebounce)
	return s
}

// Load restores persisted events and unread counts.
func (s *Store) Load() error {
	var events map[string][]models.Event
	if err := s.storage.Get(kvstore.KeyEvents, &events); err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load events: %w", err)
	}
	var unread map[string]int
	if err := s.storage.Get(kvstore.KeyUnread, &unread); err != nil && !errors.Is(err, kvstore.ErrNotFound) {
		return fmt.Errorf("load unread counts: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for channel, list := range events {
		ce := &channelEvents{ids: make(map[string]struct{}, len(list))}
		for _, e := range list {
			if _, dup := ce.ids[e.ID]; dup {
				continue
			}
			ce.ids[e.ID] = struct{}{}
			ce.events = append(ce.events, e)
		}
		ce.unread = min(unread[channel], len(ce.events))
		s.channels[channel] = ce
		total += len(ce.events)
	}
	metrics.StoredEvents.Set(float64(total))
	logging.Info().Int("channels", len(events)).Int("events", total).Msg("Event store restored")
	return nil
}

func (s *Store) get(channel string) *channelEvents {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.channels[channel]
}

func (s *Store) getOrCreate(channel string) *channelEvents {
	if ce := s.get(channel); ce != nil {
		return ce
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if ce, ok := s.channels[channel]; ok {
		return ce
	}
	ce := &channelEvents{ids: make(map[string]struct{})}
	s.channels[channel] = ce
	return ce
}

// AddEvent stores event unless its id is already present on its channel.
// Returns true if the event was stored.
func (s *Store) AddEvent(event *models.Event) bool {
	ce := s.getOrCreate(event.Channel())

	ce.mu.Lock()
	if _, dup := ce.ids[event.ID]; dup {
		ce.mu.Unlock()
		return false
	}
	ce.ids[event.ID] = struct{}{}
	ce.events = append(ce.events, *event)
	ce.unread++
	ce.mu.Unlock()

	metrics.StoredEvents.Inc()
	s.scheduleSave(s.unsaved.Add(1))
	return true
}

// scheduleSave picks the save strategy for the current unsaved count.
func (s *Store) scheduleSave(unsaved int64) {
	if unsaved >= int64(s.cfg.ForceSaveThreshold) && s.forcing.CompareAndSwap(false, true) {
		defer s.forcing.Store(false)
		s.saver.Cancel()
		if err := s.save(); err != nil {
			logging.Warn().Err(err).Int64("unsaved", unsaved).Msg("Forced event save failed")
			s.saver.Trigger(s.cfg.BusyDebounce)
		}
		return
	}
	s.saver.Trigger(s.saveDelay(unsaved))
}

func (s *Store) saveDelay(unsaved int64) time.Duration {
	if s.catchUp() || unsaved >= int64(s.cfg.BusyThreshold) {
		return s.cfg.BusyDebounce
	}
	return s.cfg.SteadyDebounce
}

// Contains reports whether channel holds an event with id.
func (s *Store) Contains(channel, id string) bool {
	ce := s.get(channel)
	if ce == nil {
		return false
	}
	ce.mu.RLock()
	defer ce.mu.RUnlock()
	_, ok := ce.ids[id]
	return ok
}

// Events returns up to limit of channel's events, newest first. A limit
// of zero or less returns all of them.
func (s *Store) Events(channel string, limit int) []models.Event {
	ce := s.get(channel)
	if ce == nil {
		return nil
	}
	ce.mu.RLock()
	defer ce.mu.RUnlock()

	n := len(ce.events)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]models.Event, 0, n)
	for i := len(ce.events) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, ce.events[i])
	}
	return out
}

// Latest returns channel's most recently stored event.
func (s *Store) Latest(channel string) (models.Event, bool) {
	events := s.Events(channel, 1)
	if len(events) == 0 {
		return models.Event{}, false
	}
	return events[0], true
}

// Count returns how many events channel holds.
func (s *Store) Count(channel string) int {
	ce := s.get(channel)
	if ce == nil {
		return 0
	}
	ce.mu.RLock()
	defer ce.mu.RUnlock()
	return len(ce.events)
}

// TotalCount returns the number of events across all channels.
func (s *Store) TotalCount() int {
	total := 0
	for _, channel := range s.Channels() {
		total += s.Count(channel)
	}
	return total
}

// Channels lists channels with stored state, sorted.
func (s *Store) Channels() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.channels))
	for channel := range s.channels {
		out = append(out, channel)
	}
	sort.Strings(out)
	return out
}

// UnreadCount returns channel's unread counter.
func (s *Store) UnreadCount(channel string) int {
	ce := s.get(channel)
	if ce == nil {
		return 0
	}
	ce.mu.RLock()
	defer ce.mu.RUnlock()
	return ce.unread
}

// TotalUnread sums unread counters over all channels.
func (s *Store) TotalUnread() int {
	total := 0
	for _, channel := range s.Channels() {
		total += s.UnreadCount(channel)
	}
	return total
}

// MarkRead zeroes channel's unread counter.
func (s *Store) MarkRead(channel string) {
	ce := s.get(channel)
	if ce == nil {
		return
	}
	ce.mu.Lock()
	changed := ce.unread != 0
	ce.unread = 0
	ce.mu.Unlock()
	if changed {
		s.saver.Trigger(s.cfg.SteadyDebounce)
	}
}

// Sweep removes events older than the retention window and returns how
// many were removed. Nothing younger than the window is touched.
func (s *Store) Sweep() int {
	cutoff := s.now().Add(-s.cfg.Retention).Unix()

	s.mu.RLock()
	targets := make([]*channelEvents, 0, len(s.channels))
	for _, ce := range s.channels {
		targets = append(targets, ce)
	}
	s.mu.RUnlock()

	removed := 0
	for _, ce := range targets {
		ce.mu.Lock()
		kept := ce.events[:0]
		for _, e := range ce.events {
			if e.Timestamp < cutoff {
				delete(ce.ids, e.ID)
				removed++
				continue
			}
			kept = append(kept, e)
		}
		clear(ce.events[len(kept):])
		ce.events = kept
		ce.unread = min(ce.unread, len(ce.events))
		ce.mu.Unlock()
	}

	if removed > 0 {
		metrics.RetentionRemoved.Add(float64(removed))
		metrics.StoredEvents.Sub(float64(removed))
		s.saver.Trigger(s.cfg.BusyDebounce)
		logging.Info().Int("removed", removed).Dur("retention", s.cfg.Retention).Msg("Retention sweep removed old events")
	}
	return removed
}

// ClearChannel drops every event and the unread counter for channel.
func (s *Store) ClearChannel(channel string) {
	s.mu.Lock()
	ce := s.channels[channel]
	delete(s.channels, channel)
	s.mu.Unlock()
	if ce != nil {
		ce.mu.RLock()
		metrics.StoredEvents.Sub(float64(len(ce.events)))
		ce.mu.RUnlock()
	}
	s.saver.Trigger(s.cfg.BusyDebounce)
}

// ClearAll drops everything.
func (s *Store) ClearAll() {
	s.mu.Lock()
	s.channels = make(map[string]*channelEvents)
	s.mu.Unlock()
	metrics.StoredEvents.Set(0)
	s.saver.Trigger(s.cfg.BusyDebounce)
}

// UnsavedCount returns how many events were added since the last write.
func (s *Store) UnsavedCount() int64 {
	return s.unsaved.Load()
}

// ForceSave writes events and unread counts now, bypassing the debounce.
func (s *Store) ForceSave() error {
	s.saver.Cancel()
	return s.save()
}

// Close cancels any pending debounced save.
func (s *Store) Close() {
	s.saver.Stop()
}

func (s *Store) snapshot() (map[string][]models.Event, map[string]int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := make(map[string][]models.Event, len(s.channels))
	unread := make(map[string]int, len(s.channels))
	for channel, ce := range s.channels {
		ce.mu.RLock()
		events[channel] = append([]models.Event(nil), ce.events...)
		unread[channel] = ce.unread
		ce.mu.RUnlock()
	}
	return events, unread
}

func (s *Store) save() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	pending := s.unsaved.Swap(0)
	start := time.Now()
	events, unread := s.snapshot()
	err := s.storage.PutMany(map[string]interface{}{
		kvstore.KeyEvents: events,
		kvstore.KeyUnread: unread,
	})
	metrics.RecordSave("events", time.Since(start), err)
	if err != nil {
		s.unsaved.Add(pending)
		return fmt.Errorf("save events: %w", err)
	}
	return nil
}
