// AlertFeed - Real-time Operational Alert Delivery Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/alertfeed

/*
Package config loads AlertFeed configuration with koanf v2.

# Sources

Layers are applied in order, later layers winning:
  - built-in defaults (defaultConfig)
  - an optional YAML file: CONFIG_PATH, else config.yaml, config.yml,
    /etc/alertfeed/config.yaml, /etc/alertfeed/config.yml
  - environment variables from an explicit mapping table

Unmapped environment variables are ignored.

# Common Environment Variables

	FEED_URL              connection.url (required, ws:// or wss://)
	DATA_DIR              storage.path
	SUBSCRIPTIONS         subscriptions.channels, comma-separated area_type keys
	MUTED_SUBSCRIPTIONS   subscriptions.muted
	ACK_BATCH_SIZE        ack.batch_size
	KILL_GAP              liveness.kill_gap
	CATCHUP_QUIET_POLLS   catchup.quiet_polls
	RECENT_TTL            recent.ttl
	NATS_ENABLED          notify.nats.enabled
	HTTP_ADDR             http.addr
	LOG_LEVEL, LOG_FORMAT logging

Durations use Go syntax ("500ms", "2m", "168h").

# Validation

Validate runs go-playground/validator struct tags for ranges, then
cross-field rules (ping shorter than pong wait, batch size within the
per-message cap, parseable sweep schedule, muted channels subscribed).
Failures are returned as *ValidationError.
*/
package config
