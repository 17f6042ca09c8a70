// AlertFeed - Real-time Operational Alert Delivery Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/alertfeed

package liveness

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/alertfeed/internal/kvstore"
)

func openKV(t *testing.T) *kvstore.Store {
	t.Helper()
	kv, err := kvstore.Open(kvstore.Config{InMemory: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = kv.Close() })
	return kv
}

func TestCheck(t *testing.T) {
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		marker *Marker
		now    time.Time
		killed bool
	}{
		{"no marker", nil, base, false},
		{"clean shutdown long ago", &Marker{Time: base, Clean: true}, base.Add(time.Hour), false},
		{"unclean within gap", &Marker{Time: base}, base.Add(90 * time.Second), false},
		{"unclean three minute gap", &Marker{Time: base}, base.Add(3 * time.Minute), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kv := openKV(t)
			if tt.marker != nil {
				if err := kv.Put(kvstore.KeyLiveness, tt.marker); err != nil {
					t.Fatalf("put: %v", err)
				}
			}
			v, err := Check(kv, 2*time.Minute, tt.now)
			if err != nil {
				t.Fatalf("Check: %v", err)
			}
			if v.Killed != tt.killed {
				t.Errorf("Killed = %v, want %v (gap %v)", v.Killed, tt.killed, v.Gap)
			}
			if v.Found != (tt.marker != nil) {
				t.Errorf("Found = %v", v.Found)
			}
		})
	}
}

func TestWriterBeatAndClean(t *testing.T) {
	kv := openKV(t)
	w := NewWriter(kv, time.Hour)
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	if err := w.Beat(); err != nil {
		t.Fatalf("Beat: %v", err)
	}
	v, _ := Check(kv, time.Minute, now.Add(5*time.Minute))
	if !v.Killed {
		t.Error("stale unclean marker not reported as kill")
	}

	if err := w.MarkClean(); err != nil {
		t.Fatalf("MarkClean: %v", err)
	}
	v, _ = Check(kv, time.Minute, now.Add(5*time.Minute))
	if v.Killed || !v.Last.Clean {
		t.Errorf("verdict after clean = %+v", v)
	}
}

func TestServeRunsHooks(t *testing.T) {
	kv := openKV(t)
	w := NewWriter(kv, 10*time.Millisecond)
	var ticks atomic.Int32
	w.OnTick(func() { ticks.Add(1) })

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()
	_ = w.Serve(ctx)

	if ticks.Load() < 2 {
		t.Errorf("ticks = %d, want at least 2", ticks.Load())
	}
	var m Marker
	if err := kv.Get(kvstore.KeyLiveness, &m); err != nil || m.Clean {
		t.Errorf("marker = %+v, err = %v", m, err)
	}
}
