// AlertFeed - Real-time Operational Alert Delivery Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/alertfeed

package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/alertfeed/internal/kvstore"
	"github.com/tomtom215/alertfeed/internal/models"
)

func newTestKV(t *testing.T) *kvstore.Store {
	t.Helper()
	kv, err := kvstore.Open(kvstore.Config{Path: t.TempDir()})
	if err != nil {
		t.Fatalf("open kvstore: %v", err)
	}
	t.Cleanup(func() { _ = kv.Close() })
	return kv
}

// countingStorage wraps a Storage and counts PutMany calls.
type countingStorage struct {
	Storage
	puts atomic.Int32
	fail atomic.Bool
}

func (c *countingStorage) PutMany(values map[string]interface{}) error {
	c.puts.Add(1)
	if c.fail.Load() {
		return errors.New("disk full")
	}
	return c.Storage.PutMany(values)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SteadyDebounce = time.Hour
	cfg.BusyDebounce = time.Hour
	return cfg
}

func event(area, typ, id string, ts int64) *models.Event {
	return &models.Event{ID: id, Timestamp: ts, Area: area, Type: typ}
}

func checkIntEqual(t *testing.T, fieldName string, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("%s: expected %d, got %d", fieldName, want, got)
	}
}

func TestAddEventDedupByID(t *testing.T) {
	s := New(newTestKV(t), testConfig(), nil)
	defer s.Close()

	if !s.AddEvent(event("barora", "cd", "e1", 1)) {
		t.Fatal("first add rejected")
	}
	if s.AddEvent(event("barora", "cd", "e1", 1)) {
		t.Error("duplicate id stored")
	}
	// same id on another channel is a different event
	if !s.AddEvent(event("depot", "cd", "e1", 1)) {
		t.Error("same id on other channel rejected")
	}
	checkIntEqual(t, "barora_cd count", s.Count("barora_cd"), 1)
	checkIntEqual(t, "unread", s.UnreadCount("barora_cd"), 1)
	checkIntEqual(t, "total", s.TotalCount(), 2)
}

func TestEventsNewestFirst(t *testing.T) {
	s := New(newTestKV(t), testConfig(), nil)
	defer s.Close()
	for i := 1; i <= 5; i++ {
		s.AddEvent(event("a", "b", fmt.Sprintf("e%d", i), int64(i)))
	}

	all := s.Events("a_b", 0)
	if len(all) != 5 || all[0].ID != "e5" || all[4].ID != "e1" {
		t.Errorf("order = %v", ids(all))
	}
	top := s.Events("a_b", 2)
	if len(top) != 2 || top[1].ID != "e4" {
		t.Errorf("limited = %v", ids(top))
	}
	latest, ok := s.Latest("a_b")
	if !ok || latest.ID != "e5" {
		t.Errorf("Latest = %v, %v", latest.ID, ok)
	}
	if s.Events("missing", 0) != nil {
		t.Error("expected nil for unknown channel")
	}
}

func ids(events []models.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.ID
	}
	return out
}

func TestConcurrentAddsNoDuplicates(t *testing.T) {
	s := New(newTestKV(t), testConfig(), nil)
	defer s.Close()

	var wg sync.WaitGroup
	var stored atomic.Int32
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				if s.AddEvent(event("a", "b", fmt.Sprintf("e%d", i), int64(i))) {
					stored.Add(1)
				}
			}
		}()
	}
	wg.Wait()
	if stored.Load() != 200 {
		t.Errorf("stored = %d, want 200", stored.Load())
	}
	checkIntEqual(t, "count", s.Count("a_b"), 200)
}

func TestForcedSaveAtThreshold(t *testing.T) {
	cs := &countingStorage{Storage: newTestKV(t)}
	cfg := testConfig()
	cfg.ForceSaveThreshold = 10
	s := New(cs, cfg, nil)
	defer s.Close()

	for i := 0; i < 9; i++ {
		s.AddEvent(event("a", "b", fmt.Sprintf("e%d", i), 1))
	}
	if cs.puts.Load() != 0 {
		t.Fatalf("saved before threshold: %d", cs.puts.Load())
	}
	s.AddEvent(event("a", "b", "e9", 1))
	if cs.puts.Load() != 1 {
		t.Errorf("puts = %d, want 1 after threshold", cs.puts.Load())
	}
	if s.UnsavedCount() != 0 {
		t.Errorf("unsaved = %d after forced save", s.UnsavedCount())
	}
}

func TestFailedSaveKeepsUnsavedCount(t *testing.T) {
	cs := &countingStorage{Storage: newTestKV(t)}
	s := New(cs, testConfig(), nil)
	defer s.Close()
	s.AddEvent(event("a", "b", "e1", 1))
	cs.fail.Store(true)
	if err := s.ForceSave(); err == nil {
		t.Fatal("expected error")
	}
	if s.UnsavedCount() != 1 {
		t.Errorf("unsaved = %d, want 1", s.UnsavedCount())
	}
}

func TestSaveDelayAdapts(t *testing.T) {
	var catchUp atomic.Bool
	cfg := DefaultConfig()
	s := New(newTestKV(t), cfg, catchUp.Load)
	defer s.Close()

	if d := s.saveDelay(1); d != cfg.SteadyDebounce {
		t.Errorf("steady delay = %v", d)
	}
	if d := s.saveDelay(int64(cfg.BusyThreshold)); d != cfg.BusyDebounce {
		t.Errorf("busy delay = %v", d)
	}
	catchUp.Store(true)
	if d := s.saveDelay(1); d != cfg.BusyDebounce {
		t.Errorf("catch-up delay = %v", d)
	}
}

func TestPersistAndLoad(t *testing.T) {
	kv := newTestKV(t)
	s := New(kv, testConfig(), nil)
	s.AddEvent(event("a", "b", "e1", 1))
	s.AddEvent(event("a", "b", "e2", 2))
	s.AddEvent(event("c", "d", "x", 3))
	s.MarkRead("c_d")
	if err := s.ForceSave(); err != nil {
		t.Fatalf("ForceSave: %v", err)
	}
	s.Close()

	loaded := New(kv, testConfig(), nil)
	defer loaded.Close()
	if err := loaded.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	checkIntEqual(t, "a_b count", loaded.Count("a_b"), 2)
	checkIntEqual(t, "a_b unread", loaded.UnreadCount("a_b"), 2)
	checkIntEqual(t, "c_d unread", loaded.UnreadCount("c_d"), 0)
	if loaded.AddEvent(event("a", "b", "e2", 2)) {
		t.Error("reloaded store accepted a stored id")
	}
}

func TestUnreadAndMarkRead(t *testing.T) {
	s := New(newTestKV(t), testConfig(), nil)
	defer s.Close()
	s.AddEvent(event("a", "b", "1", 1))
	s.AddEvent(event("a", "b", "2", 1))
	s.AddEvent(event("c", "d", "1", 1))
	checkIntEqual(t, "total unread", s.TotalUnread(), 3)
	s.MarkRead("a_b")
	checkIntEqual(t, "a_b unread", s.UnreadCount("a_b"), 0)
	checkIntEqual(t, "total unread", s.TotalUnread(), 1)
	s.MarkRead("unknown")
}

func TestSweepRemovesOnlyExpired(t *testing.T) {
	cfg := testConfig()
	cfg.Retention = 7 * 24 * time.Hour
	s := New(newTestKV(t), cfg, nil)
	defer s.Close()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	old := now.Add(-8 * 24 * time.Hour).Unix()
	edge := now.Add(-7 * 24 * time.Hour).Unix()
	fresh := now.Add(-time.Hour).Unix()

	s.AddEvent(event("a", "b", "old1", old))
	s.AddEvent(event("a", "b", "edge", edge))
	s.AddEvent(event("a", "b", "fresh", fresh))
	s.AddEvent(event("a", "b", "old2", old))
	// a busy channel keeps everything young regardless of volume
	for i := 0; i < 100; i++ {
		s.AddEvent(event("busy", "x", fmt.Sprintf("e%d", i), fresh))
	}

	removed := s.Sweep()
	checkIntEqual(t, "removed", removed, 2)
	got := ids(s.Events("a_b", 0))
	if len(got) != 2 || got[0] != "fresh" || got[1] != "edge" {
		t.Errorf("remaining = %v", got)
	}
	checkIntEqual(t, "busy count", s.Count("busy_x"), 100)
	checkIntEqual(t, "a_b unread clamped", s.UnreadCount("a_b"), 2)
	if s.Contains("a_b", "old1") {
		t.Error("swept id still indexed")
	}
	// a swept id may be stored again
	if !s.AddEvent(event("a", "b", "old1", fresh)) {
		t.Error("re-add after sweep rejected")
	}
}

func TestClearChannelAndAll(t *testing.T) {
	s := New(newTestKV(t), testConfig(), nil)
	defer s.Close()
	s.AddEvent(event("a", "b", "1", 1))
	s.AddEvent(event("c", "d", "1", 1))
	s.ClearChannel("a_b")
	checkIntEqual(t, "a_b", s.Count("a_b"), 0)
	checkIntEqual(t, "c_d", s.Count("c_d"), 1)
	s.ClearAll()
	checkIntEqual(t, "channels", len(s.Channels()), 0)
}

func TestSweeperServe(t *testing.T) {
	cfg := testConfig()
	cfg.SweepSchedule = "@every 1h"
	s := New(newTestKV(t), cfg, nil)
	defer s.Close()
	s.AddEvent(event("a", "b", "ancient", 1))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewSweeper(s).Serve(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for s.Count("a_b") != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	checkIntEqual(t, "count after startup sweep", s.Count("a_b"), 0)

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestSweeperRejectsBadSchedule(t *testing.T) {
	cfg := testConfig()
	cfg.SweepSchedule = "not a schedule"
	s := New(newTestKV(t), cfg, nil)
	defer s.Close()
	if err := NewSweeper(s).Serve(context.Background()); err == nil {
		t.Error("expected schedule error")
	}
}
