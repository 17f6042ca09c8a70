// AlertFeed - Real-time Operational Alert Delivery Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/alertfeed

/*
Package pipeline assembles one alert feed client from its services.

New opens the BadgerDB state store and builds, in order: the client id,
the subscription registry, the recent id cache, the sequence tracker, the
event store, the notification bus and dispatcher, the ingestion queue and
worker pool, the connection supervisor, the ack batcher, the catch-up
monitor, the liveness writer and the UI bridge. Long-running services are
added to a suture tree.

# Startup

Before anything connects, the liveness marker left by the previous run is
checked. An unclean marker older than the kill gap means the process was
killed: the recent id cache is not restored and every channel with sync
state is put back into catch-up mode. Otherwise the recent id snapshot is
restored.

Every (re)connection enables catch-up for each subscribed channel and then
sends the subscribe request with the last known position of each channel.

# Shutdown

	1. stop the supervisor tree (workers, batcher, monitor, bridge)
	2. flush pending acks over the still-open socket
	3. force-save sync state and events, persist recent ids
	4. write a clean liveness marker
	5. close the socket, the bus and the state store

The pipeline also implements uibridge.Backend, so the HTTP routes read
channel summaries and health straight from it.
*/
package pipeline
