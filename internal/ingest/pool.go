// AlertFeed - Real-time Operational Alert Delivery Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/alertfeed

package ingest

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/alertfeed/internal/logging"
	"github.com/tomtom215/alertfeed/internal/metrics"
	"github.com/tomtom215/alertfeed/internal/models"
)

// Worker bounds.
const (
	MinWorkers      = 4
	MaxWorkers      = 8
	DefaultIdleWait = 5 * time.Millisecond
)

// Handler processes one raw message.
type Handler interface {
	Process(raw []byte) models.Outcome
}

// DefaultWorkers returns the CPU count clamped to [MinWorkers, MaxWorkers].
func DefaultWorkers() int {
	return min(max(runtime.NumCPU(), MinWorkers), MaxWorkers)
}

// Pool drains a Queue with a fixed set of workers.
type Pool struct {
	queue    *Queue
	handler  Handler
	workers  int
	idleWait time.Duration
}

// NewPool creates a pool. workers <= 0 uses DefaultWorkers and idleWait <= 0
// uses DefaultIdleWait.
func NewPool(queue *Queue, handler Handler, workers int, idleWait time.Duration) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers()
	}
	if idleWait <= 0 {
		idleWait = DefaultIdleWait
	}
	return &Pool{queue: queue, handler: handler, workers: workers, idleWait: idleWait}
}

// Workers returns the number of workers Serve starts.
func (p *Pool) Workers() int {
	return p.workers
}

// Submit enqueues raw. It is the transport's message callback and never blocks.
func (p *Pool) Submit(raw []byte) {
	p.queue.Push(raw)
}

// Idle reports whether every submitted message has been processed.
func (p *Pool) Idle() bool {
	return p.queue.Idle()
}

// Serve runs the workers until ctx is canceled.
func (p *Pool) Serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.workers; i++ {
		g.Go(func() error {
			return p.work(gctx)
		})
	}
	logging.Info().Int("workers", p.workers).Msg("Ingest workers started")
	err := g.Wait()
	logging.Info().Msg("Ingest workers stopped")
	return err
}

// String implements fmt.Stringer for supervisor logging.
func (p *Pool) String() string {
	return "ingest-pool"
}

func (p *Pool) work(ctx context.Context) error {
	idle := time.NewTimer(p.idleWait)
	defer idle.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg, ok := p.queue.Pop()
		if !ok {
			idle.Reset(p.idleWait)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-idle.C:
			}
			continue
		}
		p.handle(msg)
	}
}

// handle runs the handler and contains any panic to the one message.
func (p *Pool) handle(msg []byte) {
	start := time.Now()
	outcome := models.OutcomeMalformed
	defer func() {
		if r := recover(); r != nil {
			metrics.WorkerPanics.Inc()
			logging.Error().Str("panic", fmt.Sprint(r)).Int("bytes", len(msg)).Msg("Recovered panic while processing message")
			outcome = models.OutcomeMalformed
		}
		metrics.RecordOutcome(outcome.String(), time.Since(start))
		p.queue.Done()
	}()
	outcome = p.handler.Process(msg)
}
