// AlertFeed - Real-time Operational Alert Delivery Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/alertfeed

/*
Package metrics exposes Prometheus instrumentation for the alert pipeline.

All collectors are registered on the default registry through promauto and
served by the UI bridge at /metrics:

	curl http://localhost:8787/metrics

Counters cover message outcomes, sequence rejections, ack flushes and
persistence failures. Gauges track queue depth, pending acks, stored
events, catch-up channels and the connection state.
*/
package metrics
