// AlertFeed - Real-time Operational Alert Delivery Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/alertfeed

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tomtom215/alertfeed/internal/identity"
	"github.com/tomtom215/alertfeed/internal/logging"
	"github.com/tomtom215/alertfeed/internal/models"
	"github.com/tomtom215/alertfeed/internal/pipeline"
)

func newClientIDCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "client-id",
		Short: "Print the device client id, creating it on first use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			cfg, err := readLocalConfig()
			if err != nil {
				return err
			}
			kv, err := openState(cfg)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, kv.Close()) }()

			id, err := identity.Load(kv)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
}

func newResetClientIDCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-client-id",
		Short: "Replace the device client id",
		Long: `Generates a new client id. The server treats the device as new and
will not resume any consumer tied to the old id.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			cfg, err := readLocalConfig()
			if err != nil {
				return err
			}
			kv, err := openState(cfg)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, kv.Close()) }()

			old, _, err := identity.Current(kv)
			if err != nil {
				return err
			}
			id, err := identity.Reset(kv)
			if err != nil {
				return err
			}
			logging.Info().Str("old", old).Str("new", id).Msg("Client id reset")
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
}

func newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear [channel]",
		Short: "Delete sync state and stored alerts for one channel, or all",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			cfg, err := readLocalConfig()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				if _, _, ok := models.SplitChannelKey(args[0]); !ok {
					return fmt.Errorf("%q is not an area_type channel key", args[0])
				}
			}

			p, err := pipeline.New(cfg)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, p.Shutdown()) }()

			if len(args) == 1 {
				if err := p.ClearChannel(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "cleared %s\n", args[0])
				return nil
			}
			if err := p.ClearAll(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "cleared all channels")
			return nil
		},
	}
}
