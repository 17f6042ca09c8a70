// AlertFeed - Real-time Operational Alert Delivery Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/alertfeed

package models

import (
	"testing"

	"github.com/goccy/go-json"
)

func TestPayloadUnmarshal_KnownFields(t *testing.T) {
	raw := `{"_seq":42,"_requireAck":true,"eventTime":"2026-01-02T03:04:05Z",
		"location":{"lat":1.5,"lng":-2.25,"address":"Dock 4"},
		"geofence":{"id":"gf1","name":"Yard","action":"enter"},
		"vehicle":{"id":"v9","plate":"AB-123"},
		"speed":88}`

	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.Seq != 42 {
		t.Errorf("Seq = %d, want 42", p.Seq)
	}
	if !p.RequireAck {
		t.Error("RequireAck = false, want true")
	}
	if p.Location == nil || p.Location.Address != "Dock 4" {
		t.Errorf("Location = %+v", p.Location)
	}
	if p.Geofence == nil || p.Geofence.Action != "enter" {
		t.Errorf("Geofence = %+v", p.Geofence)
	}
	if p.Vehicle == nil || p.Vehicle.Plate != "AB-123" {
		t.Errorf("Vehicle = %+v", p.Vehicle)
	}
	if string(p.Extra["speed"]) != "88" {
		t.Errorf("Extra[speed] = %q", p.Extra["speed"])
	}
}

func TestPayloadUnmarshal_Lenient(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantSeq int64
		extra   string
	}{
		{"string seq", `{"_seq":"17"}`, 17, ""},
		{"float seq", `{"_seq":9.0}`, 9, ""},
		{"garbage seq", `{"_seq":"abc"}`, 0, "_seq"},
		{"negative seq", `{"_seq":-3}`, 0, "_seq"},
		{"bad location", `{"location":"somewhere"}`, 0, "location"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p Payload
			if err := json.Unmarshal([]byte(tt.raw), &p); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if p.Seq != tt.wantSeq {
				t.Errorf("Seq = %d, want %d", p.Seq, tt.wantSeq)
			}
			if tt.extra != "" {
				if _, ok := p.Extra[tt.extra]; !ok {
					t.Errorf("expected %q preserved in Extra", tt.extra)
				}
			}
		})
	}
}

func TestPayloadMarshal_PreservesExtra(t *testing.T) {
	in := `{"_seq":5,"custom":{"a":1}}`
	var p Payload
	if err := json.Unmarshal([]byte(in), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	out, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back map[string]any
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatalf("unmarshal back: %v", err)
	}
	if back["_seq"] != float64(5) {
		t.Errorf("_seq = %v", back["_seq"])
	}
	if _, ok := back["custom"]; !ok {
		t.Error("custom key lost")
	}
	if _, ok := back["_requireAck"]; ok {
		t.Error("false _requireAck should be omitted")
	}
}

func TestEventChannel(t *testing.T) {
	e := Event{ID: "e1", Area: "barora", Type: "cd"}
	if got := e.Channel(); got != "barora_cd" {
		t.Errorf("Channel() = %q, want barora_cd", got)
	}
}

func TestSplitChannelKey(t *testing.T) {
	area, typ, ok := SplitChannelKey("north_geofence_exit")
	if !ok || area != "north" || typ != "geofence_exit" {
		t.Errorf("got (%q, %q, %v)", area, typ, ok)
	}
	if _, _, ok := SplitChannelKey("nounderscore"); ok {
		t.Error("expected failure without separator")
	}
	if _, _, ok := SplitChannelKey("_x"); ok {
		t.Error("expected failure with empty area")
	}
}

func TestOutcomeString(t *testing.T) {
	if OutcomeDroppedUnsubscribed.String() != "dropped_unsubscribed" {
		t.Errorf("got %q", OutcomeDroppedUnsubscribed.String())
	}
	if Outcome(99).String() != "unknown" {
		t.Errorf("got %q", Outcome(99).String())
	}
}
