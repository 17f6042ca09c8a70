// AlertFeed - Real-time Operational Alert Delivery Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/alertfeed

package ingest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/alertfeed/internal/cache"
	"github.com/tomtom215/alertfeed/internal/kvstore"
	"github.com/tomtom215/alertfeed/internal/models"
	"github.com/tomtom215/alertfeed/internal/sequence"
	"github.com/tomtom215/alertfeed/internal/store"
	"github.com/tomtom215/alertfeed/internal/subscriptions"
)

type ackRecorder struct {
	mu  sync.Mutex
	ids []string
}

func (a *ackRecorder) Enqueue(id string) {
	a.mu.Lock()
	a.ids = append(a.ids, id)
	a.mu.Unlock()
}

func (a *ackRecorder) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.ids)
}

type notifyRecorder struct {
	mu    sync.Mutex
	muted []bool
}

func (n *notifyRecorder) NewEvent(_ models.Event, muted bool) {
	n.mu.Lock()
	n.muted = append(n.muted, muted)
	n.mu.Unlock()
}

type cameraRecorder struct {
	raw string
}

func (c *cameraRecorder) HandleCameraList(raw string) { c.raw = raw }

type fixture struct {
	proc    *Processor
	tracker *sequence.Tracker
	store   *store.Store
	acks    *ackRecorder
	notes   *notifyRecorder
	cameras *cameraRecorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	kv, err := kvstore.Open(kvstore.Config{InMemory: true})
	if err != nil {
		t.Fatalf("open kvstore: %v", err)
	}
	t.Cleanup(func() { _ = kv.Close() })

	reg, err := subscriptions.FromChannels([]string{"barora_cd", "depot_speed"}, []string{"depot_speed"}, nil)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	tracker := sequence.NewTracker(kv, time.Hour)
	t.Cleanup(tracker.Close)
	cfg := store.DefaultConfig()
	cfg.SteadyDebounce = time.Hour
	cfg.BusyDebounce = time.Hour
	cfg.ForceSaveThreshold = 100000
	st := store.New(kv, cfg, tracker.AnyInCatchUp)
	t.Cleanup(st.Close)

	f := &fixture{
		tracker: tracker,
		store:   st,
		acks:    &ackRecorder{},
		notes:   &notifyRecorder{},
		cameras: &cameraRecorder{},
	}
	f.proc = NewProcessor(Deps{
		Registry: reg,
		Recent:   cache.NewRecentIDs(1000, time.Minute),
		Tracker:  tracker,
		Store:    st,
		Acks:     f.acks,
		Notifier: f.notes,
		Cameras:  f.cameras,
	})
	return f
}

func eventJSON(area, typ, id string, seq int64, requireAck bool) []byte {
	return []byte(fmt.Sprintf(
		`{"id":%q,"timestamp":1767225600,"area":%q,"type":%q,"data":{"_seq":%d,"_requireAck":%t,"location":{"lat":1,"lng":2}}}`,
		id, area, typ, seq, requireAck))
}

func checkOutcome(t *testing.T, what string, got, want models.Outcome) {
	t.Helper()
	if got != want {
		t.Errorf("%s: outcome = %s, want %s", what, got, want)
	}
}

func TestClassification(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		raw  string
		want models.Outcome
	}{
		{"subscribed ack", `{"status":"subscribed"}`, models.OutcomeControl},
		{"server error", `{"error":"rate limited"}`, models.OutcomeControl},
		{"camera list", `{"type":"camera-list","data":{"_raw_camera_json":"[{\"id\":1}]"}}`, models.OutcomeControl},
		{"camera list without payload", `{"type":"camera-list","data":{}}`, models.OutcomeMalformed},
		{"not json", `{{{`, models.OutcomeMalformed},
		{"missing id", `{"area":"barora","type":"cd","data":{}}`, models.OutcomeMalformed},
		{"missing area", `{"id":"x","type":"cd"}`, models.OutcomeMalformed},
		{"bad timestamp", `{"id":"x","area":"barora","type":"cd","timestamp":"soon"}`, models.OutcomeMalformed},
		{"unsubscribed", string(eventJSON("nowhere", "cd", "u1", 1, false)), models.OutcomeDroppedUnsubscribed},
		{"domain event", string(eventJSON("barora", "cd", "e1", 1, false)), models.OutcomeAccepted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkOutcome(t, tt.name, f.proc.Process([]byte(tt.raw)), tt.want)
		})
	}

	if f.cameras.raw != `[{"id":1}]` {
		t.Errorf("camera payload = %q", f.cameras.raw)
	}
	st := f.proc.Stats()
	if st.ServerErrors != 1 || st.Malformed != 5 || st.Dropped != 1 || st.Accepted != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestDroppedEventDoesNotTouchSyncState(t *testing.T) {
	f := newFixture(t)
	f.proc.Process(eventJSON("nowhere", "cd", "u1", 5, true))
	f.proc.Process([]byte(`{"id":"x","area":"barora","type":"cd","timestamp":"soon"}`))

	if _, ok := f.tracker.SyncInfo("nowhere_cd"); ok {
		t.Error("unsubscribed event created sync state")
	}
	if _, ok := f.tracker.SyncInfo("barora_cd"); ok {
		t.Error("malformed event created sync state")
	}
	if f.acks.count() != 1 {
		t.Errorf("acks = %d, dropped ack-required event should still be acked", f.acks.count())
	}
}

func TestIdempotentFeed(t *testing.T) {
	f := newFixture(t)
	raw := eventJSON("barora", "cd", "e1", 1, true)

	checkOutcome(t, "first", f.proc.Process(raw), models.OutcomeAccepted)
	checkOutcome(t, "second", f.proc.Process(raw), models.OutcomeDuplicate)

	if n := f.store.Count("barora_cd"); n != 1 {
		t.Errorf("stored = %d, want 1", n)
	}
	if f.acks.count() != 2 {
		t.Errorf("acks = %d, duplicate must be acked too", f.acks.count())
	}
	info, _ := f.tracker.SyncInfo("barora_cd")
	if info.TotalReceived != 1 {
		t.Errorf("TotalReceived = %d, want 1", info.TotalReceived)
	}
}

func TestSeqDuplicateWithNewID(t *testing.T) {
	f := newFixture(t)
	f.proc.Process(eventJSON("barora", "cd", "e1", 7, false))
	checkOutcome(t, "same seq new id", f.proc.Process(eventJSON("barora", "cd", "e1-retry", 7, false)), models.OutcomeDuplicate)
}

func TestMutedChannelStoredAndFlagged(t *testing.T) {
	f := newFixture(t)
	checkOutcome(t, "muted", f.proc.Process(eventJSON("depot", "speed", "s1", 1, false)), models.OutcomeAccepted)
	f.proc.Process(eventJSON("barora", "cd", "c1", 1, false))

	if f.store.Count("depot_speed") != 1 {
		t.Error("muted event not stored")
	}
	if len(f.notes.muted) != 2 || !f.notes.muted[0] || f.notes.muted[1] {
		t.Errorf("muted flags = %v", f.notes.muted)
	}
}

func TestUndatedEventStampedOnReceipt(t *testing.T) {
	f := newFixture(t)
	received := time.Unix(1767225600, 0)
	f.proc.now = func() time.Time { return received }

	raw := []byte(`{"id":"u1","area":"barora","type":"cd","data":{"_seq":1}}`)
	checkOutcome(t, "undated event", f.proc.Process(raw), models.OutcomeAccepted)

	got, ok := f.store.Latest("barora_cd")
	if !ok {
		t.Fatal("event not stored")
	}
	if got.Timestamp != received.Unix() {
		t.Errorf("Timestamp = %d, want %d", got.Timestamp, received.Unix())
	}
	info, _ := f.tracker.SyncInfo("barora_cd")
	if info.LastEventTimestamp != received.Unix() {
		t.Errorf("LastEventTimestamp = %d, want %d", info.LastEventTimestamp, received.Unix())
	}
}

func TestQueueFIFOAndIdle(t *testing.T) {
	q := NewQueue()
	if !q.Idle() {
		t.Error("new queue not idle")
	}
	for i := 0; i < 3000; i++ {
		q.Push([]byte(fmt.Sprint(i)))
	}
	for i := 0; i < 3000; i++ {
		msg, ok := q.Pop()
		if !ok || string(msg) != fmt.Sprint(i) {
			t.Fatalf("pop %d = %q, %v", i, msg, ok)
		}
		if q.Idle() {
			t.Fatal("idle while a popped message is in flight")
		}
		q.Done()
	}
	if _, ok := q.Pop(); ok {
		t.Error("pop from empty queue succeeded")
	}
	if !q.Idle() || q.Len() != 0 {
		t.Error("drained queue not idle")
	}
}

func TestDefaultWorkersClamped(t *testing.T) {
	n := DefaultWorkers()
	if n < MinWorkers || n > MaxWorkers {
		t.Errorf("DefaultWorkers = %d", n)
	}
}

type panicky struct {
	mu    sync.Mutex
	calls int
}

func (p *panicky) Process(raw []byte) models.Outcome {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if string(raw) == "boom" {
		panic("bad message")
	}
	return models.OutcomeAccepted
}

func TestPoolSurvivesPanic(t *testing.T) {
	h := &panicky{}
	pool := NewPool(NewQueue(), h, 2, time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pool.Serve(ctx) }()

	pool.Submit([]byte("boom"))
	pool.Submit([]byte("fine"))
	pool.Submit([]byte("boom"))
	pool.Submit([]byte("fine"))

	deadline := time.Now().Add(2 * time.Second)
	for !pool.Idle() && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	cancel()
	<-done

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.calls != 4 {
		t.Errorf("calls = %d, want 4", h.calls)
	}
}

func TestPoolConcurrentCatchUp(t *testing.T) {
	f := newFixture(t)
	f.tracker.EnableCatchUpMode("barora_cd")
	pool := NewPool(NewQueue(), f.proc, 8, time.Millisecond)

	// 150 events, each delivered twice, pushed before workers start
	for round := 0; round < 2; round++ {
		for seq := int64(150); seq >= 1; seq-- {
			pool.Submit(eventJSON("barora", "cd", fmt.Sprintf("e%d", seq), seq, true))
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pool.Serve(ctx) }()
	deadline := time.Now().Add(5 * time.Second)
	for !pool.Idle() && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	cancel()
	<-done

	if n := f.store.Count("barora_cd"); n != 150 {
		t.Errorf("stored = %d, want 150", n)
	}
	info, _ := f.tracker.SyncInfo("barora_cd")
	if info.HighestSeq != 150 {
		t.Errorf("HighestSeq = %d", info.HighestSeq)
	}
	if f.acks.count() != 300 {
		t.Errorf("acks = %d, want 300", f.acks.count())
	}
}
