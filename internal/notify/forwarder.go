// AlertFeed - Real-time Operational Alert Delivery Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/alertfeed

package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/alertfeed/internal/logging"
	"github.com/tomtom215/alertfeed/internal/metrics"
)

// NATSConfig configures the optional NATS fan-out for an external alert
// presentation process.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
}

// Forwarder republishes every bus notification to NATS core subjects
// named SubjectPrefix + topic.
type Forwarder struct {
	sub    message.Subscriber
	pub    message.Publisher
	prefix string
	logger watermill.LoggerAdapter
}

// NewForwarder connects to NATS and returns a forwarder reading from sub.
func NewForwarder(sub message.Subscriber, cfg NATSConfig) (*Forwarder, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("nats url required")
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = 2 * time.Second
	}
	logger := watermill.NewSlogLogger(logging.NewSlogLogger())

	natsOpts := []natsgo.Option{
		natsgo.Name("alertfeed"),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream:   wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create nats publisher: %w", err)
	}

	return &Forwarder{sub: sub, pub: pub, prefix: cfg.SubjectPrefix, logger: logger}, nil
}

// Subject returns the NATS subject used for a bus topic.
func (f *Forwarder) Subject(topic string) string {
	return f.prefix + topic
}

// Serve forwards until ctx is canceled, then closes the NATS publisher.
func (f *Forwarder) Serve(ctx context.Context) error {
	defer func() {
		if err := f.pub.Close(); err != nil {
			logging.Warn().Err(err).Msg("Failed to close NATS publisher")
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	for _, topic := range Topics {
		msgs, err := f.sub.Subscribe(gctx, topic)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
		subject := f.Subject(topic)
		g.Go(func() error {
			f.forward(gctx, subject, msgs)
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}

// String implements fmt.Stringer for supervisor logging.
func (f *Forwarder) String() string {
	return "nats-forwarder"
}

func (f *Forwarder) forward(ctx context.Context, subject string, msgs <-chan *message.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			if err := f.pub.Publish(subject, msg.Copy()); err != nil {
				metrics.NATSForwarded.WithLabelValues("error").Inc()
				f.logger.Error("NATS forward failed", err, watermill.LogFields{"subject": subject})
			} else {
				metrics.NATSForwarded.WithLabelValues("ok").Inc()
			}
			// the local bus is best-effort; never redeliver
			msg.Ack()
		}
	}
}
