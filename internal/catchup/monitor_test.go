// AlertFeed - Real-time Operational Alert Delivery Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/alertfeed

package catchup

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeTracker struct {
	mu       sync.Mutex
	catchUp  map[string]bool
	received map[string]int64
}

func newFakeTracker(channels ...string) *fakeTracker {
	ft := &fakeTracker{catchUp: map[string]bool{}, received: map[string]int64{}}
	for _, c := range channels {
		ft.catchUp[c] = true
	}
	return ft
}

func (f *fakeTracker) CatchUpChannels() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for c, on := range f.catchUp {
		if on {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeTracker) ReceivedSinceCatchUp(channel string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.received[channel]
}

func (f *fakeTracker) DisableCatchUpMode(channel string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.catchUp[channel] = false
}

func (f *fakeTracker) inCatchUp(channel string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.catchUp[channel]
}

type fakeWorkers struct{ idle atomic.Bool }

func (w *fakeWorkers) Idle() bool { return w.idle.Load() }

func TestRequiresConsecutiveQuietPolls(t *testing.T) {
	tr := newFakeTracker("a")
	tr.received["a"] = 10
	w := &fakeWorkers{}
	m := NewMonitor(tr, w, Config{QuietPolls: 3})

	// N-1 busy polls then one quiet poll: no transition
	m.Poll()
	m.Poll()
	w.idle.Store(true)
	if live := m.Poll(); len(live) != 0 {
		t.Fatalf("went live after one quiet poll: %v", live)
	}
	if m.QuietCount("a") != 1 {
		t.Errorf("quiet count = %d", m.QuietCount("a"))
	}

	// interruption resets the streak
	w.idle.Store(false)
	m.Poll()
	w.idle.Store(true)
	m.Poll()
	m.Poll()
	if !tr.inCatchUp("a") {
		t.Fatal("transitioned before third consecutive quiet poll")
	}
	live := m.Poll()
	if len(live) != 1 || live[0] != "a" {
		t.Fatalf("live = %v", live)
	}
	if tr.inCatchUp("a") {
		t.Error("tracker still in catch-up")
	}
	if m.QuietCount("a") != 0 {
		t.Error("counter not cleared on transition")
	}
}

func TestChannelWithoutEventsStaysInCatchUp(t *testing.T) {
	tr := newFakeTracker("empty")
	w := &fakeWorkers{}
	w.idle.Store(true)
	m := NewMonitor(tr, w, Config{QuietPolls: 2})
	for i := 0; i < 5; i++ {
		m.Poll()
	}
	if !tr.inCatchUp("empty") {
		t.Error("channel with no events left catch-up")
	}
}

func TestOnLiveCallback(t *testing.T) {
	tr := newFakeTracker("a", "b")
	tr.received["a"] = 1
	w := &fakeWorkers{}
	w.idle.Store(true)
	m := NewMonitor(tr, w, Config{QuietPolls: 1})
	var got []string
	m.OnLive(func(c string) { got = append(got, c) })
	m.Poll()
	if len(got) != 1 || got[0] != "a" {
		t.Errorf("OnLive = %v", got)
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	tr := newFakeTracker("a")
	tr.received["a"] = 1
	w := &fakeWorkers{}
	w.idle.Store(true)
	m := NewMonitor(tr, w, Config{PollInterval: 5 * time.Millisecond, QuietPolls: 3})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Serve(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for tr.inCatchUp("a") && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if tr.inCatchUp("a") {
		t.Error("monitor never transitioned channel")
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve = %v", err)
	}
}
