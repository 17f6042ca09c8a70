// AlertFeed - Real-time Operational Alert Delivery Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/alertfeed

package ingest

import (
	"sync"

	"github.com/tomtom215/alertfeed/internal/metrics"
)

// Queue is an unbounded FIFO of raw inbound messages. Push never blocks,
// so the transport read loop is never held up by slow workers.
//
// The queue also counts messages that have been popped but not yet marked
// Done, so Idle can tell "nothing queued" apart from "nothing happening".
type Queue struct {
	mu     sync.Mutex
	items  [][]byte
	head   int
	active int
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Push appends msg.
func (q *Queue) Push(msg []byte) {
	q.mu.Lock()
	q.items = append(q.items, msg)
	depth := len(q.items) - q.head
	q.mu.Unlock()
	metrics.IngestQueueDepth.Set(float64(depth))
}

// Pop removes the oldest message. A successful Pop must be followed by Done.
func (q *Queue) Pop() ([]byte, bool) {
	q.mu.Lock()
	if q.head == len(q.items) {
		q.mu.Unlock()
		return nil, false
	}
	msg := q.items[q.head]
	q.items[q.head] = nil
	q.head++
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	} else if q.head > 1024 && q.head*2 > len(q.items) {
		q.items = append(q.items[:0:0], q.items[q.head:]...)
		q.head = 0
	}
	q.active++
	depth := len(q.items) - q.head
	q.mu.Unlock()

	metrics.IngestQueueDepth.Set(float64(depth))
	return msg, true
}

// Done marks a popped message as fully processed.
func (q *Queue) Done() {
	q.mu.Lock()
	q.active--
	q.mu.Unlock()
}

// Len returns the number of queued messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

// Idle reports whether the queue is empty and no popped message is still
// being processed.
func (q *Queue) Idle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.head == len(q.items) && q.active == 0
}
