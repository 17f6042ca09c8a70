// AlertFeed - Real-time Operational Alert Delivery Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/alertfeed

// Package catchup decides when a channel's replayed backlog has drained
// and switches it from catch-up to live dedup.
package catchup

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/alertfeed/internal/logging"
)

// Defaults for Config.
const (
	DefaultPollInterval = 5 * time.Second
	DefaultQuietPolls   = 3
)

// Tracker is the part of the sequence tracker the monitor drives.
type Tracker interface {
	CatchUpChannels() []string
	ReceivedSinceCatchUp(channel string) int64
	DisableCatchUpMode(channel string)
}

// Workers reports whether ingestion has nothing queued or in flight.
type Workers interface {
	Idle() bool
}

// Config tunes the monitor.
type Config struct {
	PollInterval time.Duration
	QuietPolls   int
}

// Monitor polls catch-up channels and moves each to live mode once it has
// been quiet for QuietPolls consecutive polls. Quiet means the workers are
// idle and the channel has received at least one event.
type Monitor struct {
	tracker Tracker
	workers Workers
	cfg     Config

	mu     sync.Mutex
	quiet  map[string]int
	onLive func(channel string)
}

// NewMonitor creates a monitor.
func NewMonitor(tracker Tracker, workers Workers, cfg Config) *Monitor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.QuietPolls <= 0 {
		cfg.QuietPolls = DefaultQuietPolls
	}
	return &Monitor{
		tracker: tracker,
		workers: workers,
		cfg:     cfg,
		quiet:   make(map[string]int),
	}
}

// OnLive registers fn to be called after a channel goes live.
func (m *Monitor) OnLive(fn func(channel string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onLive = fn
}

// Serve polls until ctx is canceled.
func (m *Monitor) Serve(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.Poll()
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (m *Monitor) String() string {
	return "catchup-monitor"
}

// Poll runs one observation and returns the channels that went live.
func (m *Monitor) Poll() []string {
	channels := m.tracker.CatchUpChannels()
	idle := m.workers.Idle()

	m.mu.Lock()
	active := make(map[string]struct{}, len(channels))
	var live []string
	for _, channel := range channels {
		active[channel] = struct{}{}
		if !idle || m.tracker.ReceivedSinceCatchUp(channel) == 0 {
			m.quiet[channel] = 0
			continue
		}
		m.quiet[channel]++
		if m.quiet[channel] >= m.cfg.QuietPolls {
			delete(m.quiet, channel)
			live = append(live, channel)
		}
	}
	// forget counters of channels no longer catching up
	for channel := range m.quiet {
		if _, ok := active[channel]; !ok {
			delete(m.quiet, channel)
		}
	}
	onLive := m.onLive
	m.mu.Unlock()

	for _, channel := range live {
		m.tracker.DisableCatchUpMode(channel)
		logging.Info().Str("channel", channel).Int("quiet_polls", m.cfg.QuietPolls).Msg("Backlog drained")
		if onLive != nil {
			onLive(channel)
		}
	}
	return live
}

// QuietCount returns channel's consecutive quiet observations.
func (m *Monitor) QuietCount(channel string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.quiet[channel]
}
