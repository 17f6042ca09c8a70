// AlertFeed - Real-time Operational Alert Delivery Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/alertfeed

/*
Package cache holds the recent event id filter.

RecentIDs is a bounded LRU with a per-entry TTL keyed by channel and event
id. The ingest processor consults it before the sequence tracker, so a
redelivered event inside the window is absorbed without touching tracker
or store locks.

Entries expire lazily on lookup and on CleanupExpired. Snapshot and
Restore carry the live entries across a clean restart; after a detected
kill the snapshot is discarded.
*/
package cache
