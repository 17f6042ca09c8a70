// AlertFeed - Real-time Operational Alert Delivery Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/alertfeed

package uibridge

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/alertfeed/internal/logging"
	"github.com/tomtom215/alertfeed/internal/models"
)

// DefaultEventsLimit caps /api/channels/{channel}/events when no limit is given.
const DefaultEventsLimit = 100

// Config configures the local HTTP listener.
type Config struct {
	Addr              string
	AllowedOrigins    []string
	RateLimitRequests int
	RateLimitWindow   time.Duration
	ShutdownTimeout   time.Duration
}

// ChannelSummary is one row of /api/channels.
type ChannelSummary struct {
	Channel            string `json:"channel"`
	Stored             int    `json:"stored"`
	Unread             int    `json:"unread"`
	CatchUp            bool   `json:"catch_up"`
	Muted              bool   `json:"muted"`
	Pinned             bool   `json:"pinned"`
	LastEventID        string `json:"last_event_id,omitempty"`
	LastEventTimestamp int64  `json:"last_event_timestamp,omitempty"`
	LastSeq            int64  `json:"last_seq,omitempty"`
	HighestSeq         int64  `json:"highest_seq,omitempty"`
}

// Health is the /healthz body.
type Health struct {
	Connected       bool     `json:"connected"`
	Subscribed      bool     `json:"subscribed"`
	ClientID        string   `json:"client_id"`
	CatchUpChannels []string `json:"catch_up_channels"`
	QueueDepth      int      `json:"queue_depth"`
	UIClients       int      `json:"ui_clients"`
}

// Backend is the pipeline surface the HTTP routes expose.
type Backend interface {
	Channels() []ChannelSummary
	Events(channel string, limit int) []models.Event
	Health() Health
	MarkRead(channel string)
	ClearChannel(channel string) error
}

// Server serves the UI websocket, metrics and a small JSON API.
type Server struct {
	cfg      Config
	hub      *Hub
	backend  Backend
	upgrader websocket.Upgrader
}

// NewServer creates a server. It does not listen until Serve.
func NewServer(cfg Config, hub *Hub, backend Backend) *Server {
	if cfg.RateLimitRequests <= 0 {
		cfg.RateLimitRequests = 120
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = time.Minute
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	s := &Server{cfg: cfg, hub: hub, backend: backend}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      s.checkOrigin,
	}
	return s
}

// Handler builds the route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", s.health)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", s.handleWebSocket)

	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type"},
			MaxAge:         300,
		}))
		r.Use(httprate.LimitByIP(s.cfg.RateLimitRequests, s.cfg.RateLimitWindow))

		r.Get("/channels", s.listChannels)
		r.Get("/channels/{channel}/events", s.channelEvents)
		r.Post("/channels/{channel}/read", s.markRead)
		r.Delete("/channels/{channel}", s.clearChannel)
	})
	return r
}

// Serve listens on cfg.Addr until ctx is canceled.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", ln.Addr().String()).Msg("UI bridge listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Warn().Err(err).Msg("UI bridge shutdown")
		}
		return ctx.Err()
	}
}

// String implements fmt.Stringer for supervisor logging.
func (s *Server) String() string {
	return "ui-http"
}

// checkOrigin accepts non-browser clients (no Origin) and configured origins.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	logging.Warn().Str("origin", origin).Msg("UI websocket rejected from unlisted origin")
	return false
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Debug().Err(err).Msg("UI websocket upgrade failed")
		return
	}
	client := NewClient(s.hub, conn)
	select {
	case s.hub.Register <- client:
		client.Start()
	case <-s.hub.Done():
		_ = conn.Close()
	case <-r.Context().Done():
		_ = conn.Close()
	}
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	h := s.backend.Health()
	h.UIClients = s.hub.ClientCount()
	status := http.StatusOK
	if !h.Connected {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, h)
}

func (s *Server) listChannels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.backend.Channels())
}

func (s *Server) channelEvents(w http.ResponseWriter, r *http.Request) {
	limit := DefaultEventsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	events := s.backend.Events(chi.URLParam(r, "channel"), limit)
	if events == nil {
		events = []models.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) markRead(w http.ResponseWriter, r *http.Request) {
	s.backend.MarkRead(chi.URLParam(r, "channel"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) clearChannel(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.ClearChannel(chi.URLParam(r, "channel")); err != nil {
		logging.Error().Err(err).Msg("Failed to clear channel")
		writeError(w, http.StatusInternalServerError, "clear failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
