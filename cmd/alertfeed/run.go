// AlertFeed - Real-time Operational Alert Delivery Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/alertfeed

package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tomtom215/alertfeed/internal/config"
	"github.com/tomtom215/alertfeed/internal/logging"
	"github.com/tomtom215/alertfeed/internal/pipeline"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to the feed and process alerts until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			initLogging(cfg)

			logging.Info().
				Str("feed_url", cfg.Connection.URL).
				Str("data_dir", cfg.Storage.Path).
				Strs("subscriptions", cfg.Subscriptions.Channels).
				Bool("http", cfg.HTTP.Enabled).
				Bool("nats", cfg.Notify.NATS.Enabled).
				Str("version", Version).
				Msg("Starting alertfeed")

			p, err := pipeline.New(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, p)
		},
	}
}

func run(ctx context.Context, p *pipeline.Pipeline) error {
	if err := p.Run(ctx); err != nil {
		logging.Error().Err(err).Msg("Shutdown completed with errors")
		return err
	}
	logging.Info().Msg("Shutdown complete")
	return nil
}
