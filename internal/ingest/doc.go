// AlertFeed - Real-time Operational Alert Delivery Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/alertfeed

/*
Package ingest moves raw socket messages into the pipeline.

The transport pushes each message onto an unbounded Queue and returns.
A Pool of workers (CPU count clamped to 4..8) pops messages and hands them
to a Processor, which classifies them:

  - {"status":"subscribed"}: control, ignored
  - {"error":...}: counted as a server error, ignored
  - {"type":"camera-list",...}: passed to the camera handler
  - anything else: a domain event

A domain event goes through, in order: the subscription registry (drop
unknown channels), the recent id cache, the sequence tracker and the event
store. Events that require an acknowledgement are acknowledged whatever the
outcome, including drops and duplicates, so the server stops redelivering.
Stored events are passed to the notifier.

Parse failures and panics are contained to the one message and counted.
*/
package ingest
