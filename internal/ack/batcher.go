// AlertFeed - Real-time Operational Alert Delivery Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/alertfeed

// Package ack coalesces event acknowledgements into as few outbound
// messages as possible.
package ack

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/alertfeed/internal/logging"
	"github.com/tomtom215/alertfeed/internal/metrics"
	"github.com/tomtom215/alertfeed/internal/models"
)

// Flush triggers, used as metric labels.
const (
	triggerSize   = "size"
	triggerTimer  = "timer"
	triggerManual = "manual"
)

const breakerName = "ack-sender"

// Sender writes one JSON message to the server.
type Sender interface {
	SendJSON(v interface{}) error
}

// Config tunes batching.
type Config struct {
	// BatchSize flushes immediately once this many ids are pending.
	BatchSize int

	// FlushInterval is how long the first pending id waits before a timed flush.
	FlushInterval time.Duration

	// MaxPerMessage caps the ids in one batch_ack message.
	MaxPerMessage int

	// BreakerFailures is the consecutive send failures that open the breaker.
	BreakerFailures uint32

	// BreakerTimeout is how long the breaker stays open before probing.
	BreakerTimeout time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:       50,
		FlushInterval:   100 * time.Millisecond,
		MaxPerMessage:   100,
		BreakerFailures: 5,
		BreakerTimeout:  10 * time.Second,
	}
}

// Batcher buffers acknowledgement ids and sends them in batches.
//
// Delivery is at-least-once: ids from a failed send go back to the front
// of the buffer and are retried on the next cycle.
type Batcher struct {
	sender   Sender
	clientID string
	cfg      Config
	cb       *gobreaker.CircuitBreaker[interface{}]

	mu      sync.Mutex
	pending []string

	// armed wakes Serve to start the flush timer.
	armed chan struct{}
}

// NewBatcher creates a batcher that sends through sender on behalf of clientID.
func NewBatcher(sender Sender, clientID string, cfg Config) *Batcher {
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.MaxPerMessage <= 0 {
		cfg.MaxPerMessage = def.MaxPerMessage
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = def.BreakerFailures
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = def.BreakerTimeout
	}

	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	b := &Batcher{
		sender:   sender,
		clientID: clientID,
		cfg:      cfg,
		armed:    make(chan struct{}, 1),
	}
	b.cb = gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("from", from.String()).Str("to", to.String()).Msg("[CIRCUIT BREAKER] Ack sender state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})
	return b
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// Enqueue adds an id. Reaching BatchSize sends exactly BatchSize ids on
// the calling goroutine; anything left waits for the timer.
func (b *Batcher) Enqueue(eventID string) {
	if eventID == "" {
		return
	}

	b.mu.Lock()
	wasEmpty := len(b.pending) == 0
	b.pending = append(b.pending, eventID)
	var cut []string
	if len(b.pending) >= b.cfg.BatchSize {
		cut = make([]string, b.cfg.BatchSize)
		copy(cut, b.pending)
		b.pending = append(b.pending[:0:0], b.pending[b.cfg.BatchSize:]...)
	}
	remaining := len(b.pending)
	b.mu.Unlock()

	metrics.AckPending.Set(float64(remaining))
	if wasEmpty {
		b.arm()
	}
	if cut != nil {
		if err := b.send(cut, triggerSize); err != nil {
			b.requeue(cut)
		}
	}
}

// Pending returns the number of buffered ids.
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Flush sends everything pending now. Ids that fail are re-queued and the
// first error is returned.
func (b *Batcher) Flush() error {
	return b.flushAll(triggerManual)
}

// Serve runs the flush timer until ctx is canceled.
func (b *Batcher) Serve(ctx context.Context) error {
	timer := time.NewTimer(b.cfg.FlushInterval)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.armed:
			timer.Reset(b.cfg.FlushInterval)
		case <-timer.C:
			if err := b.flushAll(triggerTimer); err != nil {
				logging.Debug().Err(err).Int("pending", b.Pending()).Msg("Ack flush deferred")
			}
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (b *Batcher) String() string {
	return "ack-batcher"
}

func (b *Batcher) arm() {
	select {
	case b.armed <- struct{}{}:
	default:
	}
}

func (b *Batcher) flushAll(trigger string) error {
	b.mu.Lock()
	ids := b.pending
	b.pending = nil
	b.mu.Unlock()
	metrics.AckPending.Set(0)

	for start := 0; start < len(ids); start += b.cfg.MaxPerMessage {
		end := min(start+b.cfg.MaxPerMessage, len(ids))
		if err := b.send(ids[start:end], trigger); err != nil {
			b.requeue(ids[start:])
			return err
		}
	}
	return nil
}

// requeue puts ids back ahead of anything enqueued since they were taken.
func (b *Batcher) requeue(ids []string) {
	metrics.AckFailures.Inc()
	b.mu.Lock()
	merged := make([]string, 0, len(ids)+len(b.pending))
	merged = append(merged, ids...)
	merged = append(merged, b.pending...)
	b.pending = merged
	n := len(b.pending)
	b.mu.Unlock()

	metrics.AckPending.Set(float64(n))
	b.arm()
}

func (b *Batcher) send(ids []string, trigger string) error {
	var msg interface{}
	if len(ids) == 1 {
		msg = models.AckMessage{Type: models.AckTypeSingle, EventID: ids[0], ClientID: b.clientID}
	} else {
		msg = models.BatchAckMessage{
			Type:     models.AckTypeBatch,
			EventIDs: append([]string(nil), ids...),
			ClientID: b.clientID,
		}
	}

	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.sender.SendJSON(msg)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("ack sender unavailable: %w", err)
		}
		return fmt.Errorf("send %d acks: %w", len(ids), err)
	}
	metrics.RecordAckFlush(len(ids), trigger)
	return nil
}
