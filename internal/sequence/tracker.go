// AlertFeed - Real-time Operational Alert Delivery Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/alertfeed

package sequence

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/alertfeed/internal/kvstore"
	"github.com/tomtom215/alertfeed/internal/logging"
	"github.com/tomtom215/alertfeed/internal/metrics"
	"github.com/tomtom215/alertfeed/internal/models"
)

// DefaultSaveDebounce is how long bursts of updates coalesce before the
// sync state is written.
const DefaultSaveDebounce = 500 * time.Millisecond

// saveMaxWaitFactor bounds how long steady traffic can postpone a save, as
// a multiple of the debounce.
const saveMaxWaitFactor = 4

// Storage is the persistence the tracker needs. *kvstore.Store satisfies it.
type Storage interface {
	Get(key string, v interface{}) error
	Put(key string, v interface{}) error
}

// channelState is everything the tracker knows about one channel. Each
// channel has its own lock so workers on different channels never contend.
type channelState struct {
	mu sync.Mutex

	info models.ChannelSyncInfo

	catchUp bool
	seen    map[int64]struct{}

	// received counts events routed to the channel since catch-up was
	// last enabled, duplicates included.
	received int64
}

// Tracker is the per-channel dedup and ordering state machine.
//
// In catch-up mode a channel remembers every sequence number it has
// accepted, because a replayed backlog reaches concurrent workers out of
// order. In live mode only the high-water mark is compared.
type Tracker struct {
	mu       sync.RWMutex
	channels map[string]*channelState

	storage      Storage
	saver        *kvstore.Debouncer
	saveDebounce time.Duration

	// saveMu orders writes so a later save always carries a newer snapshot.
	saveMu sync.Mutex

	now func() time.Time
}

// NewTracker creates a tracker persisting through storage. A zero
// saveDebounce uses DefaultSaveDebounce.
func NewTracker(storage Storage, saveDebounce time.Duration) *Tracker {
	if saveDebounce <= 0 {
		saveDebounce = DefaultSaveDebounce
	}
	t := &Tracker{
		channels:     make(map[string]*channelState),
		storage:      storage,
		saveDebounce: saveDebounce,
		now:          time.Now,
	}
	t.saver = kvstore.NewDebouncer(func() {
		if err := t.save(); err != nil {
			logging.Warn().Err(err).Msg("Sync state save failed, will retry on next change")
		}
	}, saveMaxWaitFactor*saveDebounce)
	return t
}

// Load restores persisted sync state. Missing state is not an error.
// Channels are loaded in live mode; the connection supervisor enables
// catch-up before subscribing.
func (t *Tracker) Load() error {
	var persisted map[string]models.ChannelSyncInfo
	if err := t.storage.Get(kvstore.KeySyncState, &persisted); err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load sync state: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for channel, info := range persisted {
		t.channels[channel] = &channelState{info: info}
	}
	logging.Info().Int("channels", len(persisted)).Msg("Sync state restored")
	return nil
}

func (t *Tracker) get(channel string) *channelState {
	t.mu.RLock()
	cs := t.channels[channel]
	t.mu.RUnlock()
	return cs
}

func (t *Tracker) getOrCreate(channel string) *channelState {
	if cs := t.get(channel); cs != nil {
		return cs
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if cs, ok := t.channels[channel]; ok {
		return cs
	}
	cs := &channelState{}
	t.channels[channel] = cs
	return cs
}

// RecordEventReceived decides whether an event is new for its channel and,
// if so, advances the channel's sync info. A false return means the event
// is a duplicate by sequence; the caller should still acknowledge it.
func (t *Tracker) RecordEventReceived(channel, eventID string, timestamp, seq int64) bool {
	cs := t.getOrCreate(channel)

	cs.mu.Lock()
	if seq > 0 {
		if cs.catchUp {
			if cs.seen == nil {
				cs.seen = make(map[int64]struct{})
			}
			if _, dup := cs.seen[seq]; dup {
				cs.mu.Unlock()
				metrics.SequenceRejections.WithLabelValues("catchup").Inc()
				return false
			}
			cs.seen[seq] = struct{}{}
		} else if seq <= cs.info.HighestSeq {
			cs.mu.Unlock()
			metrics.SequenceRejections.WithLabelValues("live").Inc()
			return false
		}
	}

	info := &cs.info
	info.TotalReceived++
	info.LastSyncTime = t.now()

	switch {
	case seq > info.HighestSeq:
		info.HighestSeq = seq
		info.LastEventSeq = seq
		info.LastEventID = eventID
		info.LastEventTimestamp = timestamp
	case seq == 0 && timestamp >= info.LastEventTimestamp:
		info.LastEventID = eventID
		info.LastEventTimestamp = timestamp
	}
	cs.mu.Unlock()

	t.saver.Trigger(t.saveDebounce)
	return true
}

// NoteArrival counts an event routed to channel, whether or not it turns
// out to be a duplicate. The catch-up monitor only lets a channel go live
// after something arrived, and a replayed backlog may be all duplicates.
func (t *Tracker) NoteArrival(channel string) {
	cs := t.get(channel)
	if cs == nil {
		return
	}
	cs.mu.Lock()
	if cs.catchUp {
		cs.received++
	}
	cs.mu.Unlock()
}

// EnableCatchUpMode switches channel into catch-up, creating its state if
// needed. A channel already in catch-up keeps its sequence set and arrival
// count so a reconnect in the middle of a backlog keeps deduplicating
// against it and does not delay going live.
func (t *Tracker) EnableCatchUpMode(channel string) {
	cs := t.getOrCreate(channel)
	cs.mu.Lock()
	if !cs.catchUp {
		cs.catchUp = true
		cs.seen = make(map[int64]struct{})
		cs.received = 0
	}
	cs.mu.Unlock()

	t.updateCatchUpGauge()
	logging.Debug().Str("channel", channel).Msg("Catch-up mode enabled")
}

// DisableCatchUpMode moves channel to live mode and drops its sequence set.
func (t *Tracker) DisableCatchUpMode(channel string) {
	cs := t.get(channel)
	if cs == nil {
		return
	}
	cs.mu.Lock()
	wasCatchUp := cs.catchUp
	cs.catchUp = false
	cs.seen = nil
	cs.received = 0
	highest := cs.info.HighestSeq
	cs.mu.Unlock()

	if wasCatchUp {
		t.updateCatchUpGauge()
		logging.Info().Str("channel", channel).Int64("highest_seq", highest).Msg("Catch-up complete, channel live")
	}
}

// IsCatchUp reports whether channel is in catch-up mode.
func (t *Tracker) IsCatchUp(channel string) bool {
	cs := t.get(channel)
	if cs == nil {
		return false
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.catchUp
}

// CatchUpChannels lists channels currently in catch-up mode, sorted.
func (t *Tracker) CatchUpChannels() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []string
	for channel, cs := range t.channels {
		cs.mu.Lock()
		if cs.catchUp {
			out = append(out, channel)
		}
		cs.mu.Unlock()
	}
	sort.Strings(out)
	return out
}

// AnyInCatchUp reports whether at least one channel is in catch-up mode.
func (t *Tracker) AnyInCatchUp() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, cs := range t.channels {
		cs.mu.Lock()
		c := cs.catchUp
		cs.mu.Unlock()
		if c {
			return true
		}
	}
	return false
}

// ReceivedSinceCatchUp returns how many events arrived for channel since
// catch-up was last enabled.
func (t *Tracker) ReceivedSinceCatchUp(channel string) int64 {
	cs := t.get(channel)
	if cs == nil {
		return 0
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.received
}

// SyncInfo returns a copy of channel's sync info.
func (t *Tracker) SyncInfo(channel string) (models.ChannelSyncInfo, bool) {
	cs := t.get(channel)
	if cs == nil {
		return models.ChannelSyncInfo{}, false
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.info, true
}

// Channels lists every channel with state, sorted.
func (t *Tracker) Channels() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.channels))
	for channel := range t.channels {
		out = append(out, channel)
	}
	sort.Strings(out)
	return out
}

// SyncPositions returns resume points for the channels that have received
// anything. Channels without a position are omitted.
func (t *Tracker) SyncPositions(channels []string) map[string]models.SyncPosition {
	out := make(map[string]models.SyncPosition)
	for _, channel := range channels {
		info, ok := t.SyncInfo(channel)
		if !ok || !info.HasPosition() {
			continue
		}
		out[channel] = models.SyncPosition{
			LastEventID:   info.LastEventID,
			LastTimestamp: info.LastEventTimestamp,
			LastSeq:       info.LastEventSeq,
		}
	}
	return out
}

// ClearChannel forgets everything about channel.
func (t *Tracker) ClearChannel(channel string) {
	t.mu.Lock()
	delete(t.channels, channel)
	t.mu.Unlock()
	t.updateCatchUpGauge()
	t.saver.Trigger(t.saveDebounce)
}

// ClearAll forgets every channel.
func (t *Tracker) ClearAll() {
	t.mu.Lock()
	t.channels = make(map[string]*channelState)
	t.mu.Unlock()
	t.updateCatchUpGauge()
	t.saver.Trigger(t.saveDebounce)
}

// ForceSave writes the sync state now, bypassing the debounce.
func (t *Tracker) ForceSave() error {
	t.saver.Cancel()
	return t.save()
}

// Close cancels any pending debounced save. Call ForceSave first to keep
// the latest state.
func (t *Tracker) Close() {
	t.saver.Stop()
}

func (t *Tracker) snapshot() map[string]models.ChannelSyncInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]models.ChannelSyncInfo, len(t.channels))
	for channel, cs := range t.channels {
		cs.mu.Lock()
		out[channel] = cs.info
		cs.mu.Unlock()
	}
	return out
}

func (t *Tracker) save() error {
	t.saveMu.Lock()
	defer t.saveMu.Unlock()

	start := time.Now()
	err := t.storage.Put(kvstore.KeySyncState, t.snapshot())
	metrics.RecordSave("sync_state", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("save sync state: %w", err)
	}
	return nil
}

func (t *Tracker) updateCatchUpGauge() {
	metrics.ChannelsInCatchUp.Set(float64(len(t.CatchUpChannels())))
}
