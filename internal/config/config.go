// AlertFeed - Real-time Operational Alert Delivery Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/alertfeed

package config

import "time"

// Config holds all application configuration.
//
// Loading order (koanf v2):
//  1. Defaults from defaultConfig
//  2. Optional YAML file (config.yaml, or CONFIG_PATH)
//  3. Environment variables listed in envMappings
type Config struct {
	Connection    ConnectionConfig    `koanf:"connection"`
	Storage       StorageConfig       `koanf:"storage"`
	Ingest        IngestConfig        `koanf:"ingest"`
	Sequence      SequenceConfig      `koanf:"sequence"`
	Ack           AckConfig           `koanf:"ack"`
	Store         StoreConfig         `koanf:"store"`
	CatchUp       CatchUpConfig       `koanf:"catchup"`
	Liveness      LivenessConfig      `koanf:"liveness"`
	Recent        RecentConfig        `koanf:"recent"`
	Notify        NotifyConfig        `koanf:"notify"`
	HTTP          HTTPConfig          `koanf:"http"`
	Subscriptions SubscriptionsConfig `koanf:"subscriptions"`
	Supervisor    SupervisorConfig    `koanf:"supervisor"`
	Logging       LoggingConfig       `koanf:"logging"`
}

// ConnectionConfig configures the feed socket.
type ConnectionConfig struct {
	// URL is the ws:// or wss:// feed endpoint.
	URL string `koanf:"url" validate:"required,url"`

	HandshakeTimeout time.Duration `koanf:"handshake_timeout" validate:"gt=0"`

	// SettleDelay is the pause between open and the subscribe message.
	// Default: 500ms
	SettleDelay time.Duration `koanf:"settle_delay" validate:"gte=0"`

	// SubscribeDedupWindow suppresses an identical subscribe on the same
	// socket. Default: 5s
	SubscribeDedupWindow time.Duration `koanf:"subscribe_dedup_window" validate:"gte=0"`

	PingInterval time.Duration `koanf:"ping_interval" validate:"gt=0"`
	PongWait     time.Duration `koanf:"pong_wait" validate:"gt=0"`
	WriteWait    time.Duration `koanf:"write_wait" validate:"gt=0"`

	// Reconnect delay is ReconnectBase * min(attempt, MaxBackoffSteps).
	ReconnectBase   time.Duration `koanf:"reconnect_base" validate:"gt=0"`
	MaxBackoffSteps int           `koanf:"max_backoff_steps" validate:"gte=1"`
}

// StorageConfig configures the BadgerDB directory.
type StorageConfig struct {
	Path        string `koanf:"path"`
	InMemory    bool   `koanf:"in_memory"`
	SyncWrites  bool   `koanf:"sync_writes"`
	Compression bool   `koanf:"compression"`
}

// IngestConfig sizes the worker pool.
type IngestConfig struct {
	// Workers defaults to clamp(NumCPU, 4, 8) when zero.
	Workers  int           `koanf:"workers" validate:"gte=0,lte=64"`
	IdleWait time.Duration `koanf:"idle_wait" validate:"gt=0"`
}

// SequenceConfig configures the tracker's persistence.
type SequenceConfig struct {
	SaveDebounce time.Duration `koanf:"save_debounce" validate:"gt=0"`
}

// AckConfig configures acknowledgement batching.
type AckConfig struct {
	BatchSize       int           `koanf:"batch_size" validate:"gte=1"`
	FlushInterval   time.Duration `koanf:"flush_interval" validate:"gt=0"`
	MaxPerMessage   int           `koanf:"max_per_message" validate:"gte=1"`
	BreakerFailures uint32        `koanf:"breaker_failures" validate:"gte=1"`
	BreakerTimeout  time.Duration `koanf:"breaker_timeout" validate:"gt=0"`
}

// StoreConfig configures the event store.
type StoreConfig struct {
	Retention          time.Duration `koanf:"retention" validate:"gt=0"`
	SweepSchedule      string        `koanf:"sweep_schedule" validate:"required"`
	ForceSaveThreshold int           `koanf:"force_save_threshold" validate:"gte=1"`
	BusyThreshold      int           `koanf:"busy_threshold" validate:"gte=1"`
	SteadyDebounce     time.Duration `koanf:"steady_debounce" validate:"gt=0"`
	BusyDebounce       time.Duration `koanf:"busy_debounce" validate:"gt=0"`
}

// CatchUpConfig configures the catch-up completion monitor.
type CatchUpConfig struct {
	PollInterval time.Duration `koanf:"poll_interval" validate:"gt=0"`

	// QuietPolls is K, the consecutive quiet observations before a channel
	// goes live. Default: 3
	QuietPolls int `koanf:"quiet_polls" validate:"gte=1"`
}

// LivenessConfig configures the liveness marker and kill detection.
type LivenessConfig struct {
	Interval time.Duration `koanf:"interval" validate:"gt=0"`

	// KillGap is how stale an unclean marker must be to count as a kill.
	// Default: 2m
	KillGap time.Duration `koanf:"kill_gap" validate:"gt=0"`
}

// RecentConfig sizes the recent-id dedup cache.
type RecentConfig struct {
	Capacity int           `koanf:"capacity" validate:"gte=1"`
	TTL      time.Duration `koanf:"ttl" validate:"gt=0"`
}

// NotifyConfig configures the notification bus.
type NotifyConfig struct {
	CoalesceWindow time.Duration `koanf:"coalesce_window" validate:"gt=0"`
	BusBuffer      int64         `koanf:"bus_buffer" validate:"gte=1"`
	NATS           NATSConfig    `koanf:"nats"`
}

// NATSConfig configures the optional NATS forwarder.
type NATSConfig struct {
	Enabled       bool          `koanf:"enabled"`
	URL           string        `koanf:"url"`
	SubjectPrefix string        `koanf:"subject_prefix"`
	MaxReconnects int           `koanf:"max_reconnects"`
	ReconnectWait time.Duration `koanf:"reconnect_wait"`
}

// HTTPConfig configures the local UI bridge listener.
type HTTPConfig struct {
	Enabled           bool          `koanf:"enabled"`
	Addr              string        `koanf:"addr"`
	AllowedOrigins    []string      `koanf:"allowed_origins"`
	RateLimitRequests int           `koanf:"rate_limit_requests" validate:"gte=0"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window" validate:"gte=0"`
}

// SubscriptionsConfig seeds the subscription registry. Channels are
// "area_type" keys.
type SubscriptionsConfig struct {
	Channels []string `koanf:"channels"`
	Muted    []string `koanf:"muted"`
	Pinned   []string `koanf:"pinned"`
}

// SupervisorConfig tunes the suture tree.
type SupervisorConfig struct {
	FailureThreshold float64       `koanf:"failure_threshold" validate:"gte=0"`
	FailureBackoff   time.Duration `koanf:"failure_backoff" validate:"gte=0"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout" validate:"gte=0"`
}

// LoggingConfig configures zerolog.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	// Default: info
	Level string `koanf:"level" validate:"oneof=trace debug info warn error"`

	// Format is json or console. Default: json
	Format string `koanf:"format" validate:"oneof=json console"`

	// Caller includes file and line in logs.
	Caller bool `koanf:"caller"`
}
