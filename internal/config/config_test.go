// AlertFeed - Real-time Operational Alert Delivery Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/alertfeed

package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Connection.URL = "wss://feed.example/ws"
	cfg.Subscriptions.Channels = []string{"barora_cd", "depot_speeding"}
	return cfg
}

func TestDefaultsAreValidOnceURLIsSet(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestDefaultHeuristics(t *testing.T) {
	cfg := Default()
	checks := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"recent ttl", cfg.Recent.TTL, 5 * time.Minute},
		{"kill gap", cfg.Liveness.KillGap, 2 * time.Minute},
		{"quiet polls", cfg.CatchUp.QuietPolls, 3},
		{"ack batch", cfg.Ack.BatchSize, 50},
		{"ack cap", cfg.Ack.MaxPerMessage, 100},
		{"force save", cfg.Store.ForceSaveThreshold, 50},
		{"tracker debounce", cfg.Sequence.SaveDebounce, 500 * time.Millisecond},
		{"retention", cfg.Store.Retention, 7 * 24 * time.Hour},
		{"settle", cfg.Connection.SettleDelay, 500 * time.Millisecond},
		{"dedup window", cfg.Connection.SubscribeDedupWindow, 5 * time.Second},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"missing url", func(c *Config) { c.Connection.URL = "" }, "Connection.URL"},
		{"http scheme", func(c *Config) { c.Connection.URL = "http://feed.example" }, "Connection.URL"},
		{"ping not below pong", func(c *Config) { c.Connection.PingInterval = c.Connection.PongWait }, "Connection.PingInterval"},
		{"zero quiet polls", func(c *Config) { c.CatchUp.QuietPolls = 0 }, "CatchUp.QuietPolls"},
		{"batch above cap", func(c *Config) { c.Ack.BatchSize = 200 }, "Ack.BatchSize"},
		{"bad sweep schedule", func(c *Config) { c.Store.SweepSchedule = "every now and then" }, "Store.SweepSchedule"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "Logging.Level"},
		{"no storage path", func(c *Config) { c.Storage.Path = "" }, "Storage.Path"},
		{"nats without url", func(c *Config) {
			c.Notify.NATS.Enabled = true
			c.Notify.NATS.URL = ""
		}, "Notify.NATS.URL"},
		{"bad channel key", func(c *Config) { c.Subscriptions.Channels = []string{"barora"} }, "Subscriptions.Channels"},
		{"muted not subscribed", func(c *Config) { c.Subscriptions.Muted = []string{"other_cd"} }, "Subscriptions"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate = %v, want *ValidationError", err)
			}
			if verr.Field != tt.field {
				t.Errorf("field = %q, want %q (%v)", verr.Field, tt.field, verr)
			}
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("FEED_URL", "ws://127.0.0.1:9000/feed")
	t.Setenv("SUBSCRIPTIONS", "barora_cd, depot_speeding")
	t.Setenv("MUTED_SUBSCRIPTIONS", "depot_speeding")
	t.Setenv("ACK_BATCH_SIZE", "10")
	t.Setenv("KILL_GAP", "3m")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("UNRELATED_SETTING", "ignored")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Connection.URL != "ws://127.0.0.1:9000/feed" {
		t.Errorf("url = %q", cfg.Connection.URL)
	}
	if want := []string{"barora_cd", "depot_speeding"}; !reflect.DeepEqual(cfg.Subscriptions.Channels, want) {
		t.Errorf("channels = %v, want %v", cfg.Subscriptions.Channels, want)
	}
	if !reflect.DeepEqual(cfg.Subscriptions.Muted, []string{"depot_speeding"}) {
		t.Errorf("muted = %v", cfg.Subscriptions.Muted)
	}
	if cfg.Ack.BatchSize != 10 {
		t.Errorf("batch size = %d", cfg.Ack.BatchSize)
	}
	if cfg.Liveness.KillGap != 3*time.Minute {
		t.Errorf("kill gap = %v", cfg.Liveness.KillGap)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %q", cfg.Logging.Level)
	}
	// untouched defaults survive
	if cfg.CatchUp.QuietPolls != 3 {
		t.Errorf("quiet polls = %d", cfg.CatchUp.QuietPolls)
	}
}

func TestLoadFileThenEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
connection:
  url: wss://file.example/ws
subscriptions:
  channels:
    - barora_cd
catchup:
  quiet_polls: 5
store:
  retention: 48h
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("CATCHUP_QUIET_POLLS", "4")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Connection.URL != "wss://file.example/ws" {
		t.Errorf("url = %q", cfg.Connection.URL)
	}
	if cfg.CatchUp.QuietPolls != 4 {
		t.Errorf("env should override file: quiet polls = %d", cfg.CatchUp.QuietPolls)
	}
	if cfg.Store.Retention != 48*time.Hour {
		t.Errorf("retention = %v", cfg.Store.Retention)
	}
	if len(cfg.Subscriptions.Channels) != 1 || cfg.Subscriptions.Channels[0] != "barora_cd" {
		t.Errorf("channels = %v", cfg.Subscriptions.Channels)
	}
}

func TestLoadFailsValidation(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("FEED_URL", "")

	_, err := Load()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Load = %v, want wrapped *ValidationError", err)
	}
}

func TestReadSkipsValidation(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("FEED_URL", "")
	t.Setenv("DATA_DIR", "/var/lib/alertfeed")

	cfg, err := Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if cfg.Storage.Path != "/var/lib/alertfeed" {
		t.Errorf("storage path = %q", cfg.Storage.Path)
	}
}

func TestEnvTransformIgnoresUnmapped(t *testing.T) {
	if got := envTransformFunc("FEED_URL"); got != "connection.url" {
		t.Errorf("FEED_URL -> %q", got)
	}
	if got := envTransformFunc("HOME"); got != "" {
		t.Errorf("HOME -> %q, want skipped", got)
	}
}
