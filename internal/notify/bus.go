// AlertFeed - Real-time Operational Alert Delivery Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/alertfeed

package notify

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"

	"github.com/tomtom215/alertfeed/internal/logging"
	"github.com/tomtom215/alertfeed/internal/models"
)

// Bus topics.
const (
	TopicNewEvent       = "alerts.new_event"
	TopicChannelUpdated = "alerts.channel_updated"
)

// Topics lists every topic the dispatcher publishes on.
var Topics = []string{TopicNewEvent, TopicChannelUpdated}

// Metadata keys set on every bus message.
const (
	MetaChannel = "channel"
	MetaMuted   = "muted"
)

// Notification is the payload of every bus message.
type Notification struct {
	Channel string        `json:"channel"`
	Event   *models.Event `json:"event,omitempty"`
	Muted   bool          `json:"muted,omitempty"`
	// Coalesced counts the earlier events this notification replaces.
	Coalesced int `json:"coalesced,omitempty"`
}

// Decode parses a bus message payload.
func Decode(msg *message.Message) (Notification, error) {
	var n Notification
	if err := json.Unmarshal(msg.Payload, &n); err != nil {
		return n, fmt.Errorf("decode notification %s: %w", msg.UUID, err)
	}
	return n, nil
}

// Bus is the in-process pub/sub the dispatcher publishes to and the UI
// bridge and NATS forwarder consume from.
type Bus struct {
	pubsub *gochannel.GoChannel
}

// NewBus creates an in-memory bus. Slow subscribers do not block
// publishers beyond buffer.
func NewBus(buffer int64) *Bus {
	if buffer <= 0 {
		buffer = 256
	}
	logger := watermill.NewSlogLogger(logging.NewSlogLogger())
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: buffer,
		}, logger),
	}
}

// Publish implements message.Publisher.
func (b *Bus) Publish(topic string, msgs ...*message.Message) error {
	return b.pubsub.Publish(topic, msgs...)
}

// Subscribe implements message.Subscriber.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, topic)
}

// Close shuts down all subscriptions.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}
