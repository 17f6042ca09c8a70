// AlertFeed - Real-time Operational Alert Delivery Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/alertfeed

package identity

import (
	"testing"

	"github.com/google/uuid"

	"github.com/tomtom215/alertfeed/internal/kvstore"
)

func TestLoadIsStable(t *testing.T) {
	dir := t.TempDir()
	kv, err := kvstore.Open(kvstore.Config{Path: dir})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	first, err := Load(kv)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := uuid.Parse(first); err != nil {
		t.Errorf("id %q is not a UUID", first)
	}
	again, _ := Load(kv)
	if again != first {
		t.Errorf("second Load = %q, want %q", again, first)
	}
	_ = kv.Close()

	kv, err = kvstore.Open(kvstore.Config{Path: dir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer kv.Close()
	restarted, _ := Load(kv)
	if restarted != first {
		t.Errorf("id changed across restart: %q -> %q", first, restarted)
	}
}

func TestReset(t *testing.T) {
	kv, err := kvstore.Open(kvstore.Config{InMemory: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer kv.Close()

	if _, ok, _ := Current(kv); ok {
		t.Error("Current reported id on empty store")
	}
	first, _ := Load(kv)
	second, err := Reset(kv)
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if second == first {
		t.Error("Reset returned the same id")
	}
	cur, ok, _ := Current(kv)
	if !ok || cur != second {
		t.Errorf("Current = %q, %v", cur, ok)
	}
}

func TestCurrentIgnoresGarbage(t *testing.T) {
	kv, err := kvstore.Open(kvstore.Config{InMemory: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer kv.Close()
	_ = kv.Put(kvstore.KeyClientID, "not-a-uuid")
	if _, ok, _ := Current(kv); ok {
		t.Error("garbage id accepted")
	}
}
