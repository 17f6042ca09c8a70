// AlertFeed - Real-time Operational Alert Delivery Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/alertfeed

/*
Package notify carries "new event" and "channel updated" notifications from
the ingestion workers to presentation consumers.

Workers call Dispatcher.NewEvent, which only appends to an inbox. A single
Serve goroutine publishes to a Watermill gochannel Bus on the topics
TopicNewEvent and TopicChannelUpdated. Consumers subscribe to the Bus:

  - the uibridge hub relays every notification to local WebSocket clients
  - Forwarder (optional) republishes to NATS core subjects for an external
    alert presentation process

# Catch-up Coalescing

While a channel replays its backlog, new-event notifications for it are held
for CoalesceWindow and collapsed into one carrying the newest event and a
Coalesced count. Live channels publish immediately.

# Ordering

Delivery is best-effort. The gochannel bus may reorder notifications across
a burst and drops them when no subscriber is attached.
*/
package notify
