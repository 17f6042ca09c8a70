// AlertFeed - Real-time Operational Alert Delivery Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/alertfeed

/*
Package supervisor runs the pipeline's long-lived services under suture v4.

# Tree

	RootSupervisor ("alertfeed")
	├── "storage-layer"
	│   ├── retention-sweeper
	│   └── liveness-writer
	├── "ingest-layer"
	│   ├── ingest-pool
	│   ├── ack-batcher
	│   ├── catchup-monitor
	│   ├── notify-dispatcher
	│   └── nats-forwarder (when notify.nats.enabled)
	└── "ui-layer"
	    ├── ui-hub
	    ├── ui-relay
	    └── ui-http (when http.enabled)

A crashed service is restarted with suture's backoff. Failures are counted
per layer, so a crash loop in the UI never restarts ingestion.

# Logging

Supervisor events (service panics, restarts, backoff) are routed through
sutureslog into the process zerolog logger via logging.NewSlogLogger.

# Usage

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	tree.AddIngestService(pool)
	tree.AddUIService(hub)
	errCh := tree.ServeBackground(ctx)
*/
package supervisor
