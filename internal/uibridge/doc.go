// AlertFeed - Real-time Operational Alert Delivery Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/alertfeed

// Package uibridge exposes the pipeline to a local presentation layer.
//
// The Relay copies bus notifications into the Hub, which fans them out to
// WebSocket clients connected on /ws. Clients may send {"type":"ping"} and
// {"type":"mark_read","channel":"..."}. The Server also mounts /metrics,
// /healthz and a small /api for channel summaries, recent events, marking a
// channel read and clearing it.
package uibridge
