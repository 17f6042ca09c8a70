// AlertFeed - Real-time Operational Alert Delivery Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/alertfeed

package models

// Outcome is the result of pushing one inbound message through the pipeline.
type Outcome int

const (
	// OutcomeAccepted means the event was stored.
	OutcomeAccepted Outcome = iota
	// OutcomeDuplicate means the event was already seen (by id or sequence).
	OutcomeDuplicate
	// OutcomeDroppedUnsubscribed means the channel is not in the registry.
	OutcomeDroppedUnsubscribed
	// OutcomeMalformed means the message could not be parsed or validated.
	OutcomeMalformed
	// OutcomeControl covers subscription acks, server errors and camera lists.
	OutcomeControl
)

// String returns the label used in logs and metrics.
func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeDroppedUnsubscribed:
		return "dropped_unsubscribed"
	case OutcomeMalformed:
		return "malformed"
	case OutcomeControl:
		return "control"
	default:
		return "unknown"
	}
}
