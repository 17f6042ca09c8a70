// AlertFeed - Real-time Operational Alert Delivery Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/alertfeed

package uibridge

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/alertfeed/internal/models"
	"github.com/tomtom215/alertfeed/internal/notify"
)

type fakeBackend struct {
	mu        sync.Mutex
	connected bool
	read      []string
	cleared   []string
	clearErr  error
	events    map[string][]models.Event
}

func (b *fakeBackend) Channels() []ChannelSummary {
	return []ChannelSummary{{Channel: "barora_cd", Stored: 2, Unread: 1, CatchUp: true}}
}

func (b *fakeBackend) Events(channel string, limit int) []models.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	evs := b.events[channel]
	if len(evs) > limit {
		evs = evs[:limit]
	}
	return evs
}

func (b *fakeBackend) Health() Health {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Health{Connected: b.connected, ClientID: "abc"}
}

func (b *fakeBackend) MarkRead(channel string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.read = append(b.read, channel)
}

func (b *fakeBackend) ClearChannel(channel string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cleared = append(b.cleared, channel)
	return b.clearErr
}

func (b *fakeBackend) readChannels() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.read...)
}

type harness struct {
	hub     *Hub
	backend *fakeBackend
	server  *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = hub.RunWithContext(ctx)
		close(done)
	}()

	backend := &fakeBackend{events: map[string][]models.Event{
		"barora_cd": {
			{ID: "e2", Timestamp: 2, Area: "barora", Type: "cd"},
			{ID: "e1", Timestamp: 1, Area: "barora", Type: "cd"},
		},
	}}
	srv := NewServer(Config{}, hub, backend)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		cancel()
		<-done
	})
	return &harness{hub: hub, backend: backend, server: ts}
}

func (h *harness) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	waitFor(t, time.Second, func() bool { return h.hub.ClientCount() > 0 })
	return conn
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("deadline: %v", err)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg map[string]interface{}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}
	return msg
}

func TestHubBroadcastReachesClient(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)

	h.hub.Broadcast(Message{Type: MessageTypeChannelUpdated, Data: map[string]string{"channel": "barora_cd"}})
	msg := readMessage(t, conn)
	if msg["type"] != MessageTypeChannelUpdated {
		t.Errorf("type = %v", msg["type"])
	}
}

func TestClientPingAndMarkRead(t *testing.T) {
	h := newHarness(t)
	h.hub.OnCommand(func(msg ClientMessage) {
		if msg.Type == MessageTypeMarkRead {
			h.backend.MarkRead(msg.Channel)
		}
	})
	conn := h.dial(t)

	if err := conn.WriteJSON(ClientMessage{Type: MessageTypePing}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	if msg := readMessage(t, conn); msg["type"] != MessageTypePong {
		t.Errorf("reply = %v", msg)
	}

	if err := conn.WriteJSON(ClientMessage{Type: MessageTypeMarkRead, Channel: "barora_cd"}); err != nil {
		t.Fatalf("write mark_read: %v", err)
	}
	waitFor(t, time.Second, func() bool { return len(h.backend.readChannels()) == 1 })
}

func TestHubShutdownClosesClients(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.RunWithContext(ctx) }()

	srv := NewServer(Config{}, hub, &fakeBackend{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitFor(t, time.Second, func() bool { return hub.ClientCount() == 1 })

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("RunWithContext = %v", err)
	}
	if hub.ClientCount() != 0 {
		t.Errorf("clients after shutdown = %d", hub.ClientCount())
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected close after hub shutdown")
	}
}

func TestRelayForwardsBusNotifications(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)

	bus := notify.NewBus(16)
	defer bus.Close()
	relay := NewRelay(bus, h.hub)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = relay.Serve(ctx) }()

	d := notify.NewDispatcher(bus, nil, notify.Config{})
	go func() { _ = d.Serve(ctx) }()

	// the relay subscribes asynchronously; publish until a message arrives
	got := make(chan map[string]interface{}, 1)
	go func() {
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			close(got)
			return
		}
		var msg map[string]interface{}
		_ = json.Unmarshal(data, &msg)
		got <- msg
	}()

	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case msg, ok := <-got:
			if !ok {
				t.Fatal("no relayed message")
			}
			if msg["type"] != MessageTypeNewEvent {
				t.Errorf("type = %v", msg["type"])
			}
			data, _ := msg["data"].(map[string]interface{})
			if data["channel"] != "barora_cd" {
				t.Errorf("data = %v", data)
			}
			return
		case <-tick.C:
			d.NewEvent(models.Event{ID: "e1", Timestamp: 1, Area: "barora", Type: "cd"}, false)
		}
	}
}

func TestHTTPRoutes(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"health disconnected", http.MethodGet, "/healthz", http.StatusServiceUnavailable},
		{"metrics", http.MethodGet, "/metrics", http.StatusOK},
		{"channels", http.MethodGet, "/api/channels", http.StatusOK},
		{"events", http.MethodGet, "/api/channels/barora_cd/events?limit=1", http.StatusOK},
		{"events bad limit", http.MethodGet, "/api/channels/barora_cd/events?limit=zero", http.StatusBadRequest},
		{"mark read", http.MethodPost, "/api/channels/barora_cd/read", http.StatusNoContent},
		{"clear", http.MethodDelete, "/api/channels/barora_cd", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, h.server.URL+tt.path, nil)
			if err != nil {
				t.Fatal(err)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}

	resp, err := http.Get(h.server.URL + "/api/channels/barora_cd/events?limit=1")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var events []models.Event
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].ID != "e2" {
		t.Errorf("events = %+v", events)
	}
}

func TestHealthOKWhenConnected(t *testing.T) {
	h := newHarness(t)
	h.backend.mu.Lock()
	h.backend.connected = true
	h.backend.mu.Unlock()

	resp, err := http.Get(h.server.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
	var body Health
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.ClientID != "abc" || !body.Connected {
		t.Errorf("health = %+v", body)
	}
}

func TestClearChannelError(t *testing.T) {
	h := newHarness(t)
	h.backend.mu.Lock()
	h.backend.clearErr = errors.New("disk full")
	h.backend.mu.Unlock()

	req, _ := http.NewRequest(http.MethodDelete, h.server.URL+"/api/channels/x", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestCheckOrigin(t *testing.T) {
	s := NewServer(Config{AllowedOrigins: []string{"http://localhost:3000"}}, NewHub(), &fakeBackend{})
	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://localhost:3000", true},
		{"http://evil.example", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		if got := s.checkOrigin(r); got != tt.want {
			t.Errorf("checkOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}
