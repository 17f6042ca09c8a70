// AlertFeed - Real-time Operational Alert Delivery Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/alertfeed

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order; the first existing file wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/alertfeed/config.yaml",
	"/etc/alertfeed/config.yml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Connection: ConnectionConfig{
			HandshakeTimeout:     10 * time.Second,
			SettleDelay:          500 * time.Millisecond,
			SubscribeDedupWindow: 5 * time.Second,
			PingInterval:         25 * time.Second,
			PongWait:             60 * time.Second,
			WriteWait:            10 * time.Second,
			ReconnectBase:        2 * time.Second,
			MaxBackoffSteps:      12,
		},
		Storage: StorageConfig{
			Path:        "./data",
			SyncWrites:  false,
			Compression: true,
		},
		Ingest: IngestConfig{
			Workers:  0,
			IdleWait: 5 * time.Millisecond,
		},
		Sequence: SequenceConfig{
			SaveDebounce: 500 * time.Millisecond,
		},
		Ack: AckConfig{
			BatchSize:       50,
			FlushInterval:   100 * time.Millisecond,
			MaxPerMessage:   100,
			BreakerFailures: 5,
			BreakerTimeout:  10 * time.Second,
		},
		Store: StoreConfig{
			Retention:          7 * 24 * time.Hour,
			SweepSchedule:      "@every 3h",
			ForceSaveThreshold: 50,
			BusyThreshold:      20,
			SteadyDebounce:     2 * time.Second,
			BusyDebounce:       250 * time.Millisecond,
		},
		CatchUp: CatchUpConfig{
			PollInterval: 5 * time.Second,
			QuietPolls:   3,
		},
		Liveness: LivenessConfig{
			Interval: 30 * time.Second,
			KillGap:  2 * time.Minute,
		},
		Recent: RecentConfig{
			Capacity: 10000,
			TTL:      5 * time.Minute,
		},
		Notify: NotifyConfig{
			CoalesceWindow: 500 * time.Millisecond,
			BusBuffer:      256,
			NATS: NATSConfig{
				Enabled:       false,
				URL:           "nats://127.0.0.1:4222",
				SubjectPrefix: "alertfeed.",
				MaxReconnects: -1,
				ReconnectWait: 2 * time.Second,
			},
		},
		HTTP: HTTPConfig{
			Enabled:           true,
			Addr:              "127.0.0.1:8787",
			AllowedOrigins:    []string{"http://localhost:8787", "http://127.0.0.1:8787"},
			RateLimitRequests: 120,
			RateLimitWindow:   time.Minute,
		},
		Supervisor: SupervisorConfig{
			FailureThreshold: 5,
			FailureBackoff:   15 * time.Second,
			ShutdownTimeout:  10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Default returns the built-in defaults without reading files or env.
func Default() *Config {
	return defaultConfig()
}

// Load reads defaults, then the config file, then environment variables,
// and validates the result.
func Load() (*Config, error) {
	cfg, err := Read()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Read layers configuration like Load but skips validation. Maintenance
// commands that only touch local state use it so they work without a
// feed URL.
func Read() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths accept comma-separated strings from env vars.
var sliceConfigPaths = []string{
	"subscriptions.channels",
	"subscriptions.muted",
	"subscriptions.pinned",
	"http.allowed_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok {
			// absent, or already a list from YAML
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps environment variable names (lowercased) to koanf paths.
// Unlisted variables are ignored so unrelated env cannot leak into config.
var envMappings = map[string]string{
	// Connection
	"feed_url":                    "connection.url",
	"feed_handshake_timeout":      "connection.handshake_timeout",
	"feed_settle_delay":           "connection.settle_delay",
	"feed_subscribe_dedup_window": "connection.subscribe_dedup_window",
	"feed_ping_interval":          "connection.ping_interval",
	"feed_pong_wait":              "connection.pong_wait",
	"feed_reconnect_base":         "connection.reconnect_base",
	"feed_max_backoff_steps":      "connection.max_backoff_steps",

	// Storage
	"data_dir":            "storage.path",
	"storage_in_memory":   "storage.in_memory",
	"storage_sync_writes": "storage.sync_writes",

	// Ingest
	"ingest_workers":   "ingest.workers",
	"ingest_idle_wait": "ingest.idle_wait",

	// Sequence tracker
	"sequence_save_debounce": "sequence.save_debounce",

	// Acks
	"ack_batch_size":       "ack.batch_size",
	"ack_flush_interval":   "ack.flush_interval",
	"ack_max_per_message":  "ack.max_per_message",
	"ack_breaker_failures": "ack.breaker_failures",
	"ack_breaker_timeout":  "ack.breaker_timeout",

	// Event store
	"store_retention":            "store.retention",
	"store_sweep_schedule":       "store.sweep_schedule",
	"store_force_save_threshold": "store.force_save_threshold",
	"store_busy_threshold":       "store.busy_threshold",
	"store_steady_debounce":      "store.steady_debounce",
	"store_busy_debounce":        "store.busy_debounce",

	// Catch-up
	"catchup_poll_interval": "catchup.poll_interval",
	"catchup_quiet_polls":   "catchup.quiet_polls",

	// Liveness
	"liveness_interval": "liveness.interval",
	"kill_gap":          "liveness.kill_gap",

	// Recent ids
	"recent_capacity": "recent.capacity",
	"recent_ttl":      "recent.ttl",

	// Notifications
	"notify_coalesce_window": "notify.coalesce_window",
	"notify_bus_buffer":      "notify.bus_buffer",
	"nats_enabled":           "notify.nats.enabled",
	"nats_url":               "notify.nats.url",
	"nats_subject_prefix":    "notify.nats.subject_prefix",
	"nats_max_reconnects":    "notify.nats.max_reconnects",
	"nats_reconnect_wait":    "notify.nats.reconnect_wait",

	// HTTP
	"http_enabled":        "http.enabled",
	"http_addr":           "http.addr",
	"cors_origins":        "http.allowed_origins",
	"rate_limit_requests": "http.rate_limit_requests",
	"rate_limit_window":   "http.rate_limit_window",

	// Subscriptions
	"subscriptions":        "subscriptions.channels",
	"muted_subscriptions":  "subscriptions.muted",
	"pinned_subscriptions": "subscriptions.pinned",

	// Supervisor
	"supervisor_failure_threshold": "supervisor.failure_threshold",
	"supervisor_failure_backoff":   "supervisor.failure_backoff",
	"supervisor_shutdown_timeout":  "supervisor.shutdown_timeout",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps FEED_URL to connection.url and so on. Unmapped
// keys return "" and are skipped.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
