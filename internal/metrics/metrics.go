// AlertFeed - Real-time Operational Alert Delivery Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/alertfeed

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion Metrics
	EventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertfeed_events_total",
			Help: "Inbound messages by processing outcome",
		},
		[]string{"outcome"}, // accepted, duplicate, dropped_unsubscribed, malformed, control
	)

	ServerErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alertfeed_server_errors_total",
			Help: "Error messages received from the feed server",
		},
	)

	IngestQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "alertfeed_ingest_queue_depth",
			Help: "Raw messages waiting for a worker",
		},
	)

	IngestProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "alertfeed_ingest_processing_seconds",
			Help:    "Time spent processing one inbound message",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		},
	)

	WorkerPanics = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alertfeed_worker_panics_total",
			Help: "Recovered panics while processing a message",
		},
	)

	// Sequence Metrics
	SequenceRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertfeed_sequence_rejections_total",
			Help: "Events rejected by the sequence tracker",
		},
		[]string{"mode"}, // catchup, live
	)

	ChannelsInCatchUp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "alertfeed_channels_catchup",
			Help: "Channels currently in catch-up mode",
		},
	)

	// Ack Metrics
	AckFlushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertfeed_ack_flushes_total",
			Help: "Ack messages sent by kind",
		},
		[]string{"kind", "trigger"}, // kind: ack, batch_ack; trigger: size, timer, manual
	)

	AckFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alertfeed_ack_failures_total",
			Help: "Ack sends that failed and were re-queued",
		},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "alertfeed_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertfeed_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	AckPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "alertfeed_ack_pending",
			Help: "Event ids waiting to be acknowledged",
		},
	)

	// Store Metrics
	StoredEvents = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "alertfeed_stored_events",
			Help: "Events held in the event store",
		},
	)

	StoreSaveDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "alertfeed_store_save_seconds",
			Help:    "Duration of persisting state to disk",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"component"}, // events, sync_state, recent_ids
	)

	StoreSaveErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertfeed_store_save_errors_total",
			Help: "Failed state persistence attempts",
		},
		[]string{"component"},
	)

	RetentionRemoved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alertfeed_retention_removed_total",
			Help: "Events removed by the retention sweep",
		},
	)

	// Connection Metrics
	ConnectionState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "alertfeed_connection_up",
			Help: "1 when the feed connection is open",
		},
	)

	ReconnectAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alertfeed_reconnect_attempts_total",
			Help: "Reconnection attempts scheduled",
		},
	)

	SubscriptionsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertfeed_subscriptions_total",
			Help: "Subscribe requests by result",
		},
		[]string{"result"}, // sent, suppressed, failed
	)

	// Notification Metrics
	NotificationsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertfeed_notifications_total",
			Help: "Notifications delivered to the UI bus",
		},
		[]string{"topic"},
	)

	NotificationsCoalesced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alertfeed_notifications_coalesced_total",
			Help: "New-event notifications folded into a later one during catch-up",
		},
	)

	NATSForwarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertfeed_nats_forwarded_total",
			Help: "Bus notifications republished to NATS",
		},
		[]string{"result"}, // ok, error
	)

	UIClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "alertfeed_ui_clients",
			Help: "Connected local UI websocket clients",
		},
	)
)

// RecordOutcome counts one processed message.
func RecordOutcome(outcome string, duration time.Duration) {
	EventsReceived.WithLabelValues(outcome).Inc()
	IngestProcessingDuration.Observe(duration.Seconds())
}

// RecordAckFlush counts one ack message and its trigger.
func RecordAckFlush(ids int, trigger string) {
	kind := "ack"
	if ids > 1 {
		kind = "batch_ack"
	}
	AckFlushes.WithLabelValues(kind, trigger).Inc()
}

// RecordSave observes a persistence attempt for component.
func RecordSave(component string, duration time.Duration, err error) {
	StoreSaveDuration.WithLabelValues(component).Observe(duration.Seconds())
	if err != nil {
		StoreSaveErrors.WithLabelValues(component).Inc()
	}
}

// SetConnected updates the connection gauge.
func SetConnected(up bool) {
	if up {
		ConnectionState.Set(1)
		return
	}
	ConnectionState.Set(0)
}
