// AlertFeed - Real-time Operational Alert Delivery Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/alertfeed

/*
Package models defines the alert feed data types and wire messages.

Key types:

  - Event: one alert, keyed by id within its channel
  - Payload: the event "data" object with typed known keys and an Extra bag
  - ChannelSyncInfo: per-channel resume position and counters
  - SubscribeRequest, AckMessage, BatchAckMessage: outbound messages
  - Envelope: the union of every inbound message shape
  - Outcome: what processing did with a message

A channel is the key "{area}_{type}"; see ChannelKey and SplitChannelKey.
*/
package models
