// AlertFeed - Real-time Operational Alert Delivery Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/alertfeed

package store

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/tomtom215/alertfeed/internal/logging"
)

// Sweeper runs the retention sweep on a cron schedule.
type Sweeper struct {
	store    *Store
	schedule string
}

// NewSweeper creates a sweeper using the store's configured schedule.
func NewSweeper(s *Store) *Sweeper {
	return &Sweeper{store: s, schedule: s.cfg.SweepSchedule}
}

// Serve sweeps once, then on every schedule tick until ctx is canceled.
func (w *Sweeper) Serve(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(w.schedule, func() { w.store.Sweep() }); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", w.schedule, err)
	}

	w.store.Sweep()
	c.Start()
	logging.Info().Str("schedule", w.schedule).Msg("Retention sweeper started")

	<-ctx.Done()
	<-c.Stop().Done()
	logging.Info().Msg("Retention sweeper stopped")
	return ctx.Err()
}

// String implements fmt.Stringer for supervisor logging.
func (w *Sweeper) String() string {
	return "retention-sweeper"
}
