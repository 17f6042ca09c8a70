// AlertFeed - Real-time Operational Alert Delivery Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/alertfeed

package connection

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/alertfeed/internal/logging"
	"github.com/tomtom215/alertfeed/internal/metrics"
	"github.com/tomtom215/alertfeed/internal/models"
)

// ErrNotConnected is returned by sends while no socket is open.
var ErrNotConnected = errors.New("connection: not connected")

// Config tunes the supervisor.
type Config struct {
	// URL is the feed's websocket endpoint.
	URL string

	HandshakeTimeout time.Duration

	// SettleDelay is the wait between open and sending the subscription.
	SettleDelay time.Duration

	// SubscribeDedupWindow suppresses an identical subscription sent on the
	// same socket within this window.
	SubscribeDedupWindow time.Duration

	// PingInterval is the heartbeat period; PongWait is how long the read
	// side tolerates silence before declaring the socket dead.
	PingInterval time.Duration
	PongWait     time.Duration
	WriteWait    time.Duration

	// ReconnectBase is multiplied by min(attempt, MaxBackoffSteps).
	ReconnectBase   time.Duration
	MaxBackoffSteps int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout:     10 * time.Second,
		SettleDelay:          500 * time.Millisecond,
		SubscribeDedupWindow: 5 * time.Second,
		PingInterval:         25 * time.Second,
		PongWait:             60 * time.Second,
		WriteWait:            10 * time.Second,
		ReconnectBase:        2 * time.Second,
		MaxBackoffSteps:      12,
	}
}

// SubscriptionProvider builds the subscribe request for a new socket. It is
// called right before the request is written, so it may prepare state the
// first replayed event depends on. ok=false skips subscribing.
type SubscriptionProvider interface {
	SubscribeRequest() (req models.SubscribeRequest, ok bool)
}

// session is one open socket and the goroutines serving it.
type session struct {
	conn      *websocket.Conn
	done      chan struct{}
	closeOnce sync.Once

	lastSub   []byte
	lastSubAt time.Time
}

func (ss *session) stop() {
	ss.closeOnce.Do(func() {
		close(ss.done)
		_ = ss.conn.Close()
	})
}

// Supervisor owns the feed socket: dialing, subscribing, heartbeat and
// reconnecting. Inbound frames go to onMessage on the read goroutine, so
// onMessage must not block.
type Supervisor struct {
	cfg       Config
	dialer    *websocket.Dialer
	provider  SubscriptionProvider
	onMessage func([]byte)

	stateMu sync.RWMutex
	onState func(connected bool)

	// connecting guards against concurrent dials.
	connecting atomic.Bool
	attempts   atomic.Int32
	subscribed atomic.Bool

	connMu  sync.RWMutex
	current *session

	writeMu sync.Mutex

	timerMu        sync.Mutex
	stopped        bool
	reconnectTimer *time.Timer
	settleTimer    *time.Timer
	runCtx         context.Context
	runCancel      context.CancelFunc

	wg sync.WaitGroup
}

// NewSupervisor creates a supervisor. Zero config fields take defaults.
func NewSupervisor(cfg Config, provider SubscriptionProvider, onMessage func([]byte)) *Supervisor {
	def := DefaultConfig()
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = def.SettleDelay
	}
	if cfg.SubscribeDedupWindow <= 0 {
		cfg.SubscribeDedupWindow = def.SubscribeDedupWindow
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = def.PongWait
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = def.WriteWait
	}
	if cfg.ReconnectBase <= 0 {
		cfg.ReconnectBase = def.ReconnectBase
	}
	if cfg.MaxBackoffSteps <= 0 {
		cfg.MaxBackoffSteps = def.MaxBackoffSteps
	}

	return &Supervisor{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout:  cfg.HandshakeTimeout,
			EnableCompression: true,
		},
		provider:  provider,
		onMessage: onMessage,
	}
}

// OnStateChange registers fn to be told when the socket opens or closes.
func (s *Supervisor) OnStateChange(fn func(connected bool)) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.onState = fn
}

func (s *Supervisor) notifyState(connected bool) {
	metrics.SetConnected(connected)
	s.stateMu.RLock()
	fn := s.onState
	s.stateMu.RUnlock()
	if fn != nil {
		fn(connected)
	}
}

// BackoffDelay returns the wait before reconnect attempt n (1-based).
func (s *Supervisor) BackoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return s.cfg.ReconnectBase * time.Duration(min(attempt, s.cfg.MaxBackoffSteps))
}

// Connect opens the socket. It returns immediately if a socket is open or
// another Connect is dialing. A failed dial schedules a reconnect and
// returns the error. Connect after Disconnect re-arms reconnection.
func (s *Supervisor) Connect(ctx context.Context) error {
	return s.dial(ctx, s.arm())
}

// arm clears the stopped flag and returns the context reconnects run under.
func (s *Supervisor) arm() context.Context {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	if s.stopped || s.runCtx == nil || s.runCtx.Err() != nil {
		s.runCtx, s.runCancel = context.WithCancel(context.Background())
	}
	s.stopped = false
	return s.runCtx
}

func (s *Supervisor) dial(ctx, runCtx context.Context) error {
	if s.IsConnected() {
		return nil
	}
	if !s.connecting.CompareAndSwap(false, true) {
		return nil
	}
	defer s.connecting.Store(false)

	logging.Info().Str("url", s.cfg.URL).Int32("attempt", s.attempts.Load()).Msg("Connecting to alert feed")

	conn, resp, err := s.dialer.DialContext(ctx, s.cfg.URL, nil)
	if resp != nil && resp.Body != nil {
		if cerr := resp.Body.Close(); cerr != nil {
			logging.Debug().Err(cerr).Msg("Failed to close handshake response body")
		}
	}
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)
		} else {
			err = fmt.Errorf("websocket dial failed: %w", err)
		}
		logging.Warn().Err(err).Msg("Alert feed connection failed")
		s.scheduleReconnect(runCtx)
		return err
	}

	if !s.open(runCtx, conn) {
		_ = conn.Close()
	}
	return nil
}

// open installs conn as the current session. Returns false if the
// supervisor was stopped while dialing.
func (s *Supervisor) open(runCtx context.Context, conn *websocket.Conn) bool {
	ss := &session{conn: conn, done: make(chan struct{})}

	s.timerMu.Lock()
	if s.stopped || runCtx.Err() != nil {
		s.timerMu.Unlock()
		return false
	}

	s.connMu.Lock()
	s.current = ss
	s.connMu.Unlock()

	s.attempts.Store(0)
	s.subscribed.Store(false)

	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	})

	s.wg.Add(2)
	go s.readLoop(runCtx, ss)
	go s.heartbeat(ss)

	if s.settleTimer != nil {
		s.settleTimer.Stop()
	}
	s.settleTimer = time.AfterFunc(s.cfg.SettleDelay, func() {
		if s.isCurrent(ss) {
			s.subscribe(ss)
		}
	})
	s.timerMu.Unlock()

	logging.Info().Msg("Alert feed connected")
	s.notifyState(true)
	return true
}

func (s *Supervisor) isCurrent(ss *session) bool {
	s.connMu.RLock()
	defer s.connMu.RUnlock()
	return s.current == ss
}

// Resubscribe sends the subscription again on the open socket, for use
// after the subscribed channel set changes.
func (s *Supervisor) Resubscribe() {
	s.connMu.RLock()
	ss := s.current
	s.connMu.RUnlock()
	if ss == nil {
		return
	}
	s.subscribed.Store(false)
	s.subscribe(ss)
}

func (s *Supervisor) subscribe(ss *session) {
	if !s.subscribed.CompareAndSwap(false, true) {
		return
	}

	req, ok := s.provider.SubscribeRequest()
	if !ok {
		logging.Info().Msg("No subscriptions, skipping subscribe")
		return
	}
	data, err := json.Marshal(req)
	if err != nil {
		s.subscribed.Store(false)
		logging.Error().Err(err).Msg("Failed to encode subscribe request")
		return
	}

	now := time.Now()
	s.writeMu.Lock()
	if bytes.Equal(ss.lastSub, data) && now.Sub(ss.lastSubAt) < s.cfg.SubscribeDedupWindow {
		s.writeMu.Unlock()
		metrics.SubscriptionsSent.WithLabelValues("suppressed").Inc()
		logging.Debug().Msg("Identical subscribe request sent recently, suppressed")
		return
	}
	err = s.writeLocked(ss, data)
	if err == nil {
		ss.lastSub = data
		ss.lastSubAt = now
	}
	s.writeMu.Unlock()

	if err != nil {
		s.subscribed.Store(false)
		metrics.SubscriptionsSent.WithLabelValues("failed").Inc()
		logging.Warn().Err(err).Msg("Failed to send subscribe request")
		return
	}
	metrics.SubscriptionsSent.WithLabelValues("sent").Inc()
	logging.Info().
		Int("filters", len(req.Filters)).
		Int("sync_channels", len(req.SyncState)).
		Bool("reset_consumers", req.ResetConsumers).
		Msg("Subscribe request sent")
}

func (s *Supervisor) readLoop(runCtx context.Context, ss *session) {
	defer s.wg.Done()
	for {
		_, msg, err := ss.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.Info().Msg("Alert feed closed by server")
			} else if s.isCurrent(ss) {
				logging.Warn().Err(err).Msg("Alert feed read failed")
			}
			s.handleClose(runCtx, ss)
			return
		}
		_ = ss.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
		if s.onMessage != nil {
			s.onMessage(msg)
		}
	}
}

func (s *Supervisor) heartbeat(ss *session) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ss.done:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := ss.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.WriteWait))
			s.writeMu.Unlock()
			if err != nil {
				logging.Warn().Err(err).Msg("Heartbeat failed")
				ss.stop()
				return
			}
		}
	}
}

// handleClose tears down ss if it is still current and schedules a reconnect.
func (s *Supervisor) handleClose(runCtx context.Context, ss *session) {
	s.connMu.Lock()
	if s.current != ss {
		s.connMu.Unlock()
		ss.stop()
		return
	}
	s.current = nil
	s.connMu.Unlock()

	ss.stop()
	s.subscribed.Store(false)
	s.notifyState(false)
	s.scheduleReconnect(runCtx)
}

func (s *Supervisor) scheduleReconnect(runCtx context.Context) {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	if s.stopped || runCtx.Err() != nil {
		return
	}

	attempt := int(s.attempts.Add(1))
	delay := s.BackoffDelay(attempt)
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
	}
	s.reconnectTimer = time.AfterFunc(delay, func() {
		if runCtx.Err() != nil {
			return
		}
		_ = s.dial(runCtx, runCtx)
	})
	metrics.ReconnectAttempts.Inc()
	logging.Info().Int("attempt", attempt).Dur("delay", delay).Msg("Reconnect scheduled")
}

// Disconnect cancels pending reconnects and closes the socket with a
// normal closure.
func (s *Supervisor) Disconnect() {
	s.timerMu.Lock()
	s.stopped = true
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	if s.settleTimer != nil {
		s.settleTimer.Stop()
		s.settleTimer = nil
	}
	if s.runCancel != nil {
		s.runCancel()
	}
	s.timerMu.Unlock()

	s.connMu.Lock()
	ss := s.current
	s.current = nil
	s.connMu.Unlock()

	if ss != nil {
		s.writeMu.Lock()
		err := ss.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		s.writeMu.Unlock()
		if err != nil {
			logging.Debug().Err(err).Msg("Failed to send close frame")
		}
		ss.stop()
		s.subscribed.Store(false)
		s.notifyState(false)
	}

	s.wg.Wait()
	s.attempts.Store(0)
	logging.Info().Msg("Alert feed disconnected")
}

// IsConnected reports whether a socket is open.
func (s *Supervisor) IsConnected() bool {
	s.connMu.RLock()
	defer s.connMu.RUnlock()
	return s.current != nil
}

// Subscribed reports whether the subscription was sent on the current socket.
func (s *Supervisor) Subscribed() bool {
	return s.IsConnected() && s.subscribed.Load()
}

// Attempts returns the reconnect attempts since the last successful open.
func (s *Supervisor) Attempts() int {
	return int(s.attempts.Load())
}

// SendJSON encodes v and writes it as one text frame.
func (s *Supervisor) SendJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	s.connMu.RLock()
	ss := s.current
	s.connMu.RUnlock()
	if ss == nil {
		return ErrNotConnected
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.writeLocked(ss, data)
}

// writeLocked writes one frame; caller holds writeMu.
func (s *Supervisor) writeLocked(ss *session, data []byte) error {
	if err := ss.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := ss.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}
