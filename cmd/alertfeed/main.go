// AlertFeed - Real-time Operational Alert Delivery Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/alertfeed

// Package main is the entry point for the alertfeed client.
//
// alertfeed keeps a websocket open to an operational alert backend, stores
// each alert exactly once per channel, acknowledges alerts back to the
// server and republishes new alerts to a local UI bridge and, optionally,
// NATS.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins):
//   - Environment variables (FEED_URL, SUBSCRIPTIONS, DATA_DIR, ...)
//   - Config file (config.yaml, or CONFIG_PATH)
//   - Built-in defaults
//
// # Commands
//
//	alertfeed run                 connect and process alerts until SIGINT/SIGTERM
//	alertfeed client-id           print the device client id
//	alertfeed reset-client-id     generate a new client id
//	alertfeed clear [channel]     delete stored state for one or all channels
//	alertfeed version             print build information
//
// # Example Usage
//
//	export FEED_URL=wss://alerts.example.com/ws
//	export SUBSCRIPTIONS=barora_cd,depot_speeding
//	export DATA_DIR=/var/lib/alertfeed
//	./alertfeed run
package main

import (
	"os"

	"github.com/tomtom215/alertfeed/internal/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logging.Error().Err(err).Msg("alertfeed failed")
		os.Exit(1)
	}
}
