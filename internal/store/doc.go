// AlertFeed - Real-time Operational Alert Delivery Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/alertfeed

// Package store holds accepted events per channel with unread counters.
//
// Saves are debounced with a delay that adapts to load: short while any
// channel is catching up or many events are unsaved, longer in steady
// state. Crossing ForceSaveThreshold unsaved events forces a synchronous
// save on the adding goroutine, bounding what an unexpected kill can lose.
// Events and unread counters are written in one transaction.
//
// A cron-driven Sweeper removes events older than the retention window.
package store
