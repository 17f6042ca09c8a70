// AlertFeed - Real-time Operational Alert Delivery Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/alertfeed

package models

import (
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Event is a single operational alert received from the feed.
// It is immutable once accepted by the event store.
type Event struct {
	ID        string  `json:"id" validate:"required"`
	Timestamp int64   `json:"timestamp"` // seconds since epoch
	Area      string  `json:"area" validate:"required"`
	Type      string  `json:"type" validate:"required"`
	Data      Payload `json:"data"`
}

// Channel returns the channel key the event belongs to.
func (e *Event) Channel() string {
	return ChannelKey(e.Area, e.Type)
}

// Seq returns the server-assigned sequence number, 0 when absent.
func (e *Event) Seq() int64 {
	return e.Data.Seq
}

// RequiresAck reports whether the server expects an acknowledgement.
func (e *Event) RequiresAck() bool {
	return e.Data.RequireAck
}

// Location is the position attached to an alert.
type Location struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address,omitempty"`
}

// Geofence describes the zone whose boundary triggered the alert.
type Geofence struct {
	ID     string `json:"id,omitempty"`
	Name   string `json:"name,omitempty"`
	Action string `json:"action,omitempty"` // enter, exit, dwell
}

// VehicleInfo identifies the vehicle an alert refers to.
type VehicleInfo struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Plate string `json:"plate,omitempty"`
}

// Payload keys with a typed representation.
const (
	keySeq        = "_seq"
	keyRequireAck = "_requireAck"
	keyLocation   = "location"
	keyEventTime  = "eventTime"
	keyGeofence   = "geofence"
	keyVehicle    = "vehicle"
)

// Payload is the structured "data" object of an event. Known keys are
// decoded into typed fields; everything else, including known keys whose
// shape does not match, is kept verbatim in Extra and written back out on
// marshal.
type Payload struct {
	Seq        int64
	RequireAck bool
	Location   *Location
	EventTime  string
	Geofence   *Geofence
	Vehicle    *VehicleInfo
	Extra      map[string]json.RawMessage
}

// UnmarshalJSON decodes known keys leniently so an unexpected shape for one
// optional field never rejects the whole event.
func (p *Payload) UnmarshalJSON(data []byte) error {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*p = Payload{}
	for key, val := range raw {
		if !p.decodeKnown(key, val) {
			if p.Extra == nil {
				p.Extra = make(map[string]json.RawMessage)
			}
			p.Extra[key] = val
		}
	}
	return nil
}

func (p *Payload) decodeKnown(key string, val json.RawMessage) bool {
	switch key {
	case keySeq:
		seq, ok := parseSeq(val)
		if ok {
			p.Seq = seq
		}
		return ok
	case keyRequireAck:
		return json.Unmarshal(val, &p.RequireAck) == nil
	case keyEventTime:
		return json.Unmarshal(val, &p.EventTime) == nil
	case keyLocation:
		var loc Location
		if json.Unmarshal(val, &loc) != nil {
			return false
		}
		p.Location = &loc
		return true
	case keyGeofence:
		var gf Geofence
		if json.Unmarshal(val, &gf) != nil {
			return false
		}
		p.Geofence = &gf
		return true
	case keyVehicle:
		var v VehicleInfo
		if json.Unmarshal(val, &v) != nil {
			return false
		}
		p.Vehicle = &v
		return true
	}
	return false
}

// parseSeq accepts numeric or numeric-string sequence values.
func parseSeq(val json.RawMessage) (int64, bool) {
	var n json.Number
	if err := json.Unmarshal(val, &n); err == nil {
		if i, err := n.Int64(); err == nil && i >= 0 {
			return i, true
		}
		if f, err := n.Float64(); err == nil && f >= 0 {
			return int64(f), true
		}
		return 0, false
	}
	var s string
	if err := json.Unmarshal(val, &s); err == nil {
		i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err == nil && i >= 0 {
			return i, true
		}
	}
	return 0, false
}

// MarshalJSON writes typed fields under their wire keys and merges Extra.
func (p Payload) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.Extra)+6)
	for k, v := range p.Extra {
		out[k] = v
	}
	if p.Seq > 0 {
		out[keySeq] = p.Seq
	}
	if p.RequireAck {
		out[keyRequireAck] = true
	}
	if p.Location != nil {
		out[keyLocation] = p.Location
	}
	if p.EventTime != "" {
		out[keyEventTime] = p.EventTime
	}
	if p.Geofence != nil {
		out[keyGeofence] = p.Geofence
	}
	if p.Vehicle != nil {
		out[keyVehicle] = p.Vehicle
	}
	return json.Marshal(out)
}
