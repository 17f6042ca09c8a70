// AlertFeed - Real-time Operational Alert Delivery Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/alertfeed

package models

import "github.com/goccy/go-json"

// Outbound message types.
const (
	AckTypeSingle = "ack"
	AckTypeBatch  = "batch_ack"
)

// Inbound markers.
const (
	StatusSubscribed  = "subscribed"
	MessageCameraList = "camera-list"
	CameraRawKey      = "_raw_camera_json"
)

// Filter selects one channel in a subscribe request.
type Filter struct {
	Area      string `json:"area"`
	EventType string `json:"eventType"`
}

// SyncPosition is the resume point for one channel.
type SyncPosition struct {
	LastEventID   string `json:"lastEventId"`
	LastTimestamp int64  `json:"lastTimestamp"`
	LastSeq       int64  `json:"lastSeq"`
}

// SubscribeRequest is sent once per connection after the settle delay.
type SubscribeRequest struct {
	ClientID       string                  `json:"clientId"`
	Filters        []Filter                `json:"filters"`
	SyncState      map[string]SyncPosition `json:"syncState,omitempty"`
	ResetConsumers bool                    `json:"resetConsumers"`
}

// Channels returns the channel keys named by the request filters.
func (r *SubscribeRequest) Channels() []string {
	out := make([]string, 0, len(r.Filters))
	for _, f := range r.Filters {
		out = append(out, ChannelKey(f.Area, f.EventType))
	}
	return out
}

// AckMessage acknowledges a single event.
type AckMessage struct {
	Type     string `json:"type"`
	EventID  string `json:"eventId"`
	ClientID string `json:"clientId"`
}

// BatchAckMessage acknowledges several events at once.
type BatchAckMessage struct {
	Type     string   `json:"type"`
	EventIDs []string `json:"eventIds"`
	ClientID string   `json:"clientId"`
}

// Envelope is the union of every inbound message shape. Workers decode
// into it once and classify by which fields are present.
type Envelope struct {
	Status    string          `json:"status,omitempty"`
	Error     json.RawMessage `json:"error,omitempty"`
	ID        string          `json:"id,omitempty"`
	Timestamp json.Number     `json:"timestamp,omitempty"`
	Area      string          `json:"area,omitempty"`
	Type      string          `json:"type,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}
