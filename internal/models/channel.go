// AlertFeed - Real-time Operational Alert Delivery Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/alertfeed

package models

import (
	"strings"
	"time"
)

// ChannelKey derives the channel identifier "{area}_{type}".
func ChannelKey(area, eventType string) string {
	return area + "_" + eventType
}

// SplitChannelKey reverses ChannelKey. Areas may not contain underscores
// but event types may, so the split happens at the first underscore.
func SplitChannelKey(channel string) (area, eventType string, ok bool) {
	area, eventType, ok = strings.Cut(channel, "_")
	if !ok || area == "" || eventType == "" {
		return "", "", false
	}
	return area, eventType, true
}

// ChannelSyncInfo is the per-channel synchronization state sent back to
// the server on subscribe so it can resume the stream.
type ChannelSyncInfo struct {
	LastEventID        string    `json:"lastEventId"`
	LastEventTimestamp int64     `json:"lastEventTimestamp"`
	LastEventSeq       int64     `json:"lastEventSeq"`
	HighestSeq         int64     `json:"highestSeq"`
	TotalReceived      int64     `json:"totalReceived"`
	LastSyncTime       time.Time `json:"lastSyncTime"`
}

// HasPosition reports whether the channel has received anything the server
// can resume from.
func (s *ChannelSyncInfo) HasPosition() bool {
	return s.LastEventID != "" || s.HighestSeq > 0
}
