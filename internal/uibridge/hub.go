// AlertFeed - Real-time Operational Alert Delivery Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/alertfeed

package uibridge

import (
	"context"
	"sort"
	"sync"

	"github.com/tomtom215/alertfeed/internal/logging"
	"github.com/tomtom215/alertfeed/internal/metrics"
)

// Message types exchanged with UI clients.
const (
	MessageTypeNewEvent       = "new_event"
	MessageTypeChannelUpdated = "channel_updated"
	MessageTypeMarkRead       = "mark_read"
	MessageTypePing           = "ping"
	MessageTypePong           = "pong"
)

// Message is what the hub sends to UI clients.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// ClientMessage is what UI clients send to the hub.
type ClientMessage struct {
	Type    string `json:"type"`
	Channel string `json:"channel,omitempty"`
}

// CommandHandler handles a non-ping message from a UI client.
type CommandHandler func(msg ClientMessage)

// Hub tracks connected UI clients and fans broadcasts out to them. A client
// whose send buffer is full is dropped rather than slowing the others.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex

	done     chan struct{}
	doneOnce sync.Once

	commandMu sync.RWMutex
	onCommand CommandHandler
}

// NewHub creates a hub. Run it with RunWithContext.
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan Message, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		done:       make(chan struct{}),
	}
}

// Done is closed once the hub has shut down.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// OnCommand registers the handler for client commands such as mark_read.
func (h *Hub) OnCommand(fn CommandHandler) {
	h.commandMu.Lock()
	defer h.commandMu.Unlock()
	h.onCommand = fn
}

func (h *Hub) command(msg ClientMessage) {
	h.commandMu.RLock()
	fn := h.onCommand
	h.commandMu.RUnlock()
	if fn != nil {
		fn(msg)
	}
}

// RunWithContext serves lifecycle and broadcast events until ctx is
// canceled, then closes every client.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		// lifecycle events take priority over broadcasts
		select {
		case <-ctx.Done():
			h.shutdown()
			return ctx.Err()
		case client := <-h.Register:
			h.add(client)
			continue
		case client := <-h.Unregister:
			h.remove(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown()
			return ctx.Err()
		case client := <-h.Register:
			h.add(client)
		case client := <-h.Unregister:
			h.remove(client)
		case message := <-h.broadcast:
			h.broadcastToClients(message)
		}
	}
}

// Serve implements suture.Service.
func (h *Hub) Serve(ctx context.Context) error {
	return h.RunWithContext(ctx)
}

// String implements fmt.Stringer for supervisor logging.
func (h *Hub) String() string {
	return "ui-hub"
}

func (h *Hub) add(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	n := len(h.clients)
	h.mu.Unlock()
	metrics.UIClients.Set(float64(n))
	logging.Debug().Uint64("client", client.id).Int("total_clients", n).Msg("UI client connected")
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.UIClients.Set(float64(n))
	logging.Debug().Uint64("client", client.id).Int("total_clients", n).Msg("UI client disconnected")
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	n := len(h.clients)
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.mu.Unlock()
	h.doneOnce.Do(func() { close(h.done) })
	metrics.UIClients.Set(0)
	logging.Info().Str("component", "ui-hub").Int("clients_closed", n).Msg("UI hub stopped")
}

func (h *Hub) broadcastToClients(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	for _, client := range clients {
		select {
		case client.send <- message:
		default:
			logging.Warn().Uint64("client", client.id).Msg("UI client too slow, disconnecting")
			close(client.send)
			delete(h.clients, client)
		}
	}
	metrics.UIClients.Set(float64(len(h.clients)))
}

// Broadcast queues message for every client. It never blocks; when the
// broadcast buffer is full the message is dropped.
func (h *Hub) Broadcast(message Message) {
	select {
	case h.broadcast <- message:
	default:
		logging.Warn().Str("message_type", message.Type).Msg("UI broadcast buffer full, dropping message")
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
