// AlertFeed - Real-time Operational Alert Delivery Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/alertfeed

package ingest

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/tomtom215/alertfeed/internal/cache"
	"github.com/tomtom215/alertfeed/internal/logging"
	"github.com/tomtom215/alertfeed/internal/metrics"
	"github.com/tomtom215/alertfeed/internal/models"
	"github.com/tomtom215/alertfeed/internal/subscriptions"
)

// ErrMalformed wraps every parse and validation failure.
var ErrMalformed = errors.New("malformed message")

// SequenceTracker decides whether an event is new for its channel.
type SequenceTracker interface {
	NoteArrival(channel string)
	RecordEventReceived(channel, eventID string, timestamp, seq int64) bool
}

// EventStore persists accepted events.
type EventStore interface {
	AddEvent(event *models.Event) bool
}

// Acknowledger queues acknowledgements.
type Acknowledger interface {
	Enqueue(eventID string)
}

// Notifier is told about each stored event.
type Notifier interface {
	NewEvent(event models.Event, muted bool)
}

// RecentIDs is the short-window duplicate filter.
type RecentIDs interface {
	Seen(key string) bool
}

// CameraHandler receives camera inventory payloads.
type CameraHandler interface {
	HandleCameraList(rawJSON string)
}

// Deps are the collaborators a Processor drives.
type Deps struct {
	Registry subscriptions.Registry
	Recent   RecentIDs
	Tracker  SequenceTracker
	Store    EventStore
	Acks     Acknowledger
	Notifier Notifier
	Cameras  CameraHandler
}

// Stats counts processing outcomes.
type Stats struct {
	Received     int64 `json:"received"`
	Accepted     int64 `json:"accepted"`
	Duplicates   int64 `json:"duplicates"`
	Dropped      int64 `json:"dropped"`
	Malformed    int64 `json:"malformed"`
	Control      int64 `json:"control"`
	ServerErrors int64 `json:"serverErrors"`
}

// Processor classifies inbound messages and runs domain events through
// dedup, storage, acknowledgement and notification. It is safe for use by
// many workers at once.
type Processor struct {
	deps     Deps
	validate *validator.Validate
	throttle *logging.Throttle
	now      func() time.Time

	received     atomic.Int64
	accepted     atomic.Int64
	duplicates   atomic.Int64
	dropped      atomic.Int64
	malformed    atomic.Int64
	control      atomic.Int64
	serverErrors atomic.Int64
}

// NewProcessor creates a processor. Notifier and Cameras may be nil.
func NewProcessor(deps Deps) *Processor {
	return &Processor{
		deps:     deps,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		throttle: logging.NewThrottle(10 * time.Second),
		now:      time.Now,
	}
}

// Process handles one raw message and reports what happened to it.
func (p *Processor) Process(raw []byte) models.Outcome {
	p.received.Add(1)

	outcome, err := p.process(raw)
	switch outcome {
	case models.OutcomeAccepted:
		p.accepted.Add(1)
	case models.OutcomeDuplicate:
		p.duplicates.Add(1)
	case models.OutcomeDroppedUnsubscribed:
		p.dropped.Add(1)
	case models.OutcomeMalformed:
		p.malformed.Add(1)
		p.throttle.Do(func() {
			logging.Warn().Err(err).Int64("malformed_total", p.malformed.Load()).Msg("Dropping malformed message")
		})
	case models.OutcomeControl:
		p.control.Add(1)
	}
	return outcome
}

func (p *Processor) process(raw []byte) (models.Outcome, error) {
	var env models.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return models.OutcomeMalformed, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch {
	case env.Status == models.StatusSubscribed:
		logging.Debug().Msg("Subscription acknowledged by server")
		return models.OutcomeControl, nil
	case len(env.Error) > 0 && string(env.Error) != "null":
		p.serverErrors.Add(1)
		metrics.ServerErrors.Inc()
		logging.Warn().RawJSON("error", env.Error).Msg("Server reported error")
		return models.OutcomeControl, nil
	case env.Type == models.MessageCameraList:
		return p.handleCameraList(env.Data)
	}

	event, err := p.parseEvent(&env)
	if err != nil {
		return models.OutcomeMalformed, err
	}
	return p.handleEvent(event), nil
}

func (p *Processor) handleCameraList(data json.RawMessage) (models.Outcome, error) {
	var body map[string]json.RawMessage
	if err := json.Unmarshal(data, &body); err != nil {
		return models.OutcomeMalformed, fmt.Errorf("%w: camera list: %v", ErrMalformed, err)
	}
	var rawJSON string
	if err := json.Unmarshal(body[models.CameraRawKey], &rawJSON); err != nil {
		return models.OutcomeMalformed, fmt.Errorf("%w: camera list missing %s", ErrMalformed, models.CameraRawKey)
	}
	if p.deps.Cameras != nil {
		p.deps.Cameras.HandleCameraList(rawJSON)
	}
	return models.OutcomeControl, nil
}

func (p *Processor) parseEvent(env *models.Envelope) (*models.Event, error) {
	event := &models.Event{
		ID:   env.ID,
		Area: env.Area,
		Type: env.Type,
	}
	if env.Timestamp != "" {
		ts, err := parseTimestamp(env.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("%w: timestamp: %v", ErrMalformed, err)
		}
		event.Timestamp = ts
	}
	// an undated event would otherwise be swept as decades old
	if event.Timestamp <= 0 {
		event.Timestamp = p.now().Unix()
	}
	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, &event.Data); err != nil {
			return nil, fmt.Errorf("%w: data: %v", ErrMalformed, err)
		}
	}
	if err := p.validate.Struct(event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return event, nil
}

func parseTimestamp(n json.Number) (int64, error) {
	if ts, err := n.Int64(); err == nil {
		return ts, nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, err
	}
	return int64(f), nil
}

func (p *Processor) handleEvent(event *models.Event) models.Outcome {
	channel := event.Channel()
	log := logging.Logger().With().Str("channel", channel).Str("event_id", event.ID).Int64("seq", event.Seq()).Logger()

	sub, ok := p.deps.Registry.Lookup(channel)
	if !ok {
		p.ack(event)
		log.Debug().Msg("Dropping event for unsubscribed channel")
		return models.OutcomeDroppedUnsubscribed
	}
	p.deps.Tracker.NoteArrival(channel)

	if p.deps.Recent != nil && p.deps.Recent.Seen(cache.Key(channel, event.ID)) {
		p.ack(event)
		return models.OutcomeDuplicate
	}

	if !p.deps.Tracker.RecordEventReceived(channel, event.ID, event.Timestamp, event.Seq()) {
		p.ack(event)
		log.Debug().Msg("Duplicate by sequence")
		return models.OutcomeDuplicate
	}

	if !p.deps.Store.AddEvent(event) {
		p.ack(event)
		log.Debug().Msg("Duplicate by id")
		return models.OutcomeDuplicate
	}

	p.ack(event)
	if p.deps.Notifier != nil {
		p.deps.Notifier.NewEvent(*event, sub.Muted)
	}
	return models.OutcomeAccepted
}

func (p *Processor) ack(event *models.Event) {
	if event.RequiresAck() && p.deps.Acks != nil {
		p.deps.Acks.Enqueue(event.ID)
	}
}

// Stats returns a snapshot of the outcome counters.
func (p *Processor) Stats() Stats {
	return Stats{
		Received:     p.received.Load(),
		Accepted:     p.accepted.Load(),
		Duplicates:   p.duplicates.Load(),
		Dropped:      p.dropped.Load(),
		Malformed:    p.malformed.Load(),
		Control:      p.control.Load(),
		ServerErrors: p.serverErrors.Load(),
	}
}
