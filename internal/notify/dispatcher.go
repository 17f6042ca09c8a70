// AlertFeed - Real-time Operational Alert Delivery Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/alertfeed

package notify

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/tomtom215/alertfeed/internal/logging"
	"github.com/tomtom215/alertfeed/internal/metrics"
	"github.com/tomtom215/alertfeed/internal/models"
)

// DefaultCoalesceWindow bounds how long a catch-up notification waits for
// newer events on the same channel.
const DefaultCoalesceWindow = 500 * time.Millisecond

// Config tunes the dispatcher.
type Config struct {
	CoalesceWindow time.Duration
}

type item struct {
	topic string
	note  Notification
}

// Dispatcher delivers notifications from worker goroutines to the bus on a
// single goroutine. NewEvent and ChannelUpdated never block the caller.
//
// While a channel is in catch-up, new-event notifications for it are
// folded into one per CoalesceWindow carrying the newest event, so a
// replayed backlog produces a handful of UI updates instead of hundreds.
type Dispatcher struct {
	pub     message.Publisher
	catchUp func(channel string) bool
	cfg     Config

	mu    sync.Mutex
	inbox []item
	wake  chan struct{}

	// owned by Serve
	pending map[string]*Notification
}

// NewDispatcher creates a dispatcher publishing to pub. catchUp reports
// whether a channel is replaying its backlog; nil disables coalescing.
func NewDispatcher(pub message.Publisher, catchUp func(channel string) bool, cfg Config) *Dispatcher {
	if cfg.CoalesceWindow <= 0 {
		cfg.CoalesceWindow = DefaultCoalesceWindow
	}
	if catchUp == nil {
		catchUp = func(string) bool { return false }
	}
	return &Dispatcher{
		pub:     pub,
		catchUp: catchUp,
		cfg:     cfg,
		wake:    make(chan struct{}, 1),
		pending: make(map[string]*Notification),
	}
}

// NewEvent queues a new-event notification.
func (d *Dispatcher) NewEvent(event models.Event, muted bool) {
	ev := event
	d.enqueue(item{
		topic: TopicNewEvent,
		note:  Notification{Channel: event.Channel(), Event: &ev, Muted: muted},
	})
}

// ChannelUpdated queues a notification that channel's stored state changed
// without a new event, e.g. after a clear or a read.
func (d *Dispatcher) ChannelUpdated(channel string) {
	d.enqueue(item{topic: TopicChannelUpdated, note: Notification{Channel: channel}})
}

func (d *Dispatcher) enqueue(it item) {
	d.mu.Lock()
	d.inbox = append(d.inbox, it)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Serve delivers notifications until ctx is canceled, then flushes any
// coalesced notifications.
func (d *Dispatcher) Serve(ctx context.Context) error {
	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			d.drain()
			d.flushPending()
			return ctx.Err()
		case <-d.wake:
			d.drain()
			if len(d.pending) > 0 && timerC == nil {
				timer = time.NewTimer(d.cfg.CoalesceWindow)
				timerC = timer.C
			}
		case <-timerC:
			timer, timerC = nil, nil
			d.flushPending()
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (d *Dispatcher) String() string {
	return "notify-dispatcher"
}

func (d *Dispatcher) drain() {
	d.mu.Lock()
	items := d.inbox
	d.inbox = nil
	d.mu.Unlock()

	for _, it := range items {
		if it.topic == TopicNewEvent && d.catchUp(it.note.Channel) {
			d.coalesce(it.note)
			continue
		}
		d.publish(it.topic, it.note)
	}
}

func (d *Dispatcher) coalesce(note Notification) {
	prev, ok := d.pending[note.Channel]
	if !ok {
		d.pending[note.Channel] = &note
		return
	}
	metrics.NotificationsCoalesced.Inc()
	// any unmuted event un-mutes the folded notification
	muted := prev.Muted && note.Muted
	// backlog arrives out of order; keep the newest by timestamp
	if note.Event.Timestamp >= prev.Event.Timestamp {
		note.Coalesced = prev.Coalesced + 1
		note.Muted = muted
		d.pending[note.Channel] = &note
		return
	}
	prev.Coalesced++
	prev.Muted = muted
}

func (d *Dispatcher) flushPending() {
	for channel, note := range d.pending {
		d.publish(TopicNewEvent, *note)
		delete(d.pending, channel)
	}
}

func (d *Dispatcher) publish(topic string, note Notification) {
	payload, err := json.Marshal(note)
	if err != nil {
		logging.Error().Err(err).Str("channel", note.Channel).Msg("Failed to encode notification")
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(MetaChannel, note.Channel)
	msg.Metadata.Set(MetaMuted, strconv.FormatBool(note.Muted))

	if err := d.pub.Publish(topic, msg); err != nil {
		logging.Warn().Err(err).Str("topic", topic).Str("channel", note.Channel).Msg("Failed to publish notification")
		return
	}
	metrics.NotificationsPublished.WithLabelValues(topic).Inc()
}
