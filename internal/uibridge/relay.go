// AlertFeed - Real-time Operational Alert Delivery Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/alertfeed

package uibridge

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/alertfeed/internal/logging"
	"github.com/tomtom215/alertfeed/internal/notify"
)

var topicTypes = map[string]string{
	notify.TopicNewEvent:       MessageTypeNewEvent,
	notify.TopicChannelUpdated: MessageTypeChannelUpdated,
}

// Relay copies notifications from the bus to the hub.
type Relay struct {
	sub message.Subscriber
	hub *Hub
}

// NewRelay creates a relay reading from sub.
func NewRelay(sub message.Subscriber, hub *Hub) *Relay {
	return &Relay{sub: sub, hub: hub}
}

// Serve relays until ctx is canceled.
func (r *Relay) Serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for topic, msgType := range topicTypes {
		msgs, err := r.sub.Subscribe(gctx, topic)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
		g.Go(func() error {
			r.relay(gctx, msgType, msgs)
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}

// String implements fmt.Stringer for supervisor logging.
func (r *Relay) String() string {
	return "ui-relay"
}

func (r *Relay) relay(ctx context.Context, msgType string, msgs <-chan *message.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			note, err := notify.Decode(msg)
			msg.Ack()
			if err != nil {
				logging.Warn().Err(err).Msg("Dropping undecodable notification")
				continue
			}
			r.hub.Broadcast(Message{Type: msgType, Data: note})
		}
	}
}
