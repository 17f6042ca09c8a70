// AlertFeed - Real-time Operational Alert Delivery Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/alertfeed

/*
Package connection supervises the websocket to the alert feed.

Lifecycle of one socket:

 1. Connect dials unless a socket is open or another dial is running.
 2. On open the reconnect counter and the subscribed flag are reset, the
    ping heartbeat starts, and after SettleDelay the subscribe request is
    written once. An identical request written on the same socket inside
    SubscribeDedupWindow is suppressed.
 3. Every inbound frame is handed to the message callback, which is
    expected to enqueue and return.
 4. When the socket fails the heartbeat stops and a reconnect is scheduled
    after ReconnectBase * min(attempt, MaxBackoffSteps). There is no
    attempt limit.

Disconnect cancels pending timers and closes with a normal closure.
*/
package connection
