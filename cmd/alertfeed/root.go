// AlertFeed - Real-time Operational Alert Delivery Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/alertfeed

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tomtom215/alertfeed/internal/config"
	"github.com/tomtom215/alertfeed/internal/kvstore"
	"github.com/tomtom215/alertfeed/internal/logging"
)

// Version information, set at build time via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "alertfeed",
		Short: "Real-time operational alert delivery client",
		Long: `alertfeed keeps a persistent connection to the alert backend, stores
every alert exactly once per channel and acknowledges it back to the server.

Configuration comes from config.yaml (or CONFIG_PATH) and environment
variables such as FEED_URL, SUBSCRIPTIONS and DATA_DIR.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newRunCmd(),
		newClientIDCmd(),
		newResetClientIDCmd(),
		newClearCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Display version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "alertfeed version %s\n", Version)
			fmt.Fprintf(out, "Git commit: %s\n", GitCommit)
			fmt.Fprintf(out, "Built: %s\n", BuildDate)
		},
	}
}

// readLocalConfig loads configuration for commands that only touch local
// state, so they work without a feed URL.
func readLocalConfig() (*config.Config, error) {
	cfg, err := config.Read()
	if err != nil {
		return nil, err
	}
	initLogging(cfg)
	return cfg, nil
}

func initLogging(cfg *config.Config) {
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
}

func openState(cfg *config.Config) (*kvstore.Store, error) {
	kv, err := kvstore.Open(kvstore.Config{
		Path:        cfg.Storage.Path,
		InMemory:    cfg.Storage.InMemory,
		SyncWrites:  cfg.Storage.SyncWrites,
		Compression: cfg.Storage.Compression,
	})
	if err != nil {
		return nil, fmt.Errorf("open state in %s (is alertfeed already running?): %w", cfg.Storage.Path, err)
	}
	return kv, nil
}
