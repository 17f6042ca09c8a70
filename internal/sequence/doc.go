// AlertFeed - Real-time Operational Alert Delivery Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/alertfeed

/*
Package sequence tracks per-channel delivery position and rejects events
that were already seen.

# Modes

Each channel is in one of two modes:

  - Catch-up: entered just before a subscribe request is sent. The tracker
    keeps the set of every sequence number accepted since, and an event is
    new iff its sequence is not in the set. Required because the replayed
    backlog is processed by concurrent workers in no particular order.
  - Live: entered when the catch-up monitor sees the backlog drained. An
    event is new iff its sequence is above the channel's high-water mark.

Events with no sequence (seq 0) are always accepted here; the event store's
id check is their only dedup guard.

# Sync Info

Accepting an event with a sequence above the high-water mark moves the
channel's last event pointers forward. A lower sequence accepted during
catch-up is counted but never moves the pointers back. Sequence-less
events advance the last id and timestamp when their timestamp is not
older than the stored one.

Sync info is saved through a debounced write (500ms by default); ForceSave
writes synchronously and is called during shutdown.
*/
package sequence
