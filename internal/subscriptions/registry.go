// AlertFeed - Real-time Operational Alert Delivery Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/alertfeed

// Package subscriptions is the registry of channels the user follows.
// The pipeline only reads it: events for channels that are not registered
// are dropped, and muted channels are stored without alerting.
package subscriptions

import (
	"fmt"
	"sort"
	"sync"

	"github.com/tomtom215/alertfeed/internal/models"
)

// Subscription is one followed channel.
type Subscription struct {
	Area      string `json:"area"`
	EventType string `json:"eventType"`
	Muted     bool   `json:"muted"`
	Pinned    bool   `json:"pinned"`
}

// Channel returns the subscription's channel key.
func (s Subscription) Channel() string {
	return models.ChannelKey(s.Area, s.EventType)
}

// Registry is the read side used by the pipeline.
type Registry interface {
	Lookup(channel string) (Subscription, bool)
	List() []Subscription
}

// MemoryRegistry is a Registry seeded from configuration.
type MemoryRegistry struct {
	mu   sync.RWMutex
	subs map[string]Subscription
}

// NewMemoryRegistry creates a registry holding subs.
func NewMemoryRegistry(subs ...Subscription) *MemoryRegistry {
	r := &MemoryRegistry{subs: make(map[string]Subscription, len(subs))}
	for _, s := range subs {
		r.subs[s.Channel()] = s
	}
	return r
}

// FromChannels builds a registry from "area_type" keys. Channels listed in
// muted or pinned get the matching flag.
func FromChannels(channels, muted, pinned []string) (*MemoryRegistry, error) {
	mutedSet := toSet(muted)
	pinnedSet := toSet(pinned)

	subs := make([]Subscription, 0, len(channels))
	for _, channel := range channels {
		area, eventType, ok := models.SplitChannelKey(channel)
		if !ok {
			return nil, fmt.Errorf("invalid channel %q: want area_type", channel)
		}
		subs = append(subs, Subscription{
			Area:      area,
			EventType: eventType,
			Muted:     mutedSet[channel],
			Pinned:    pinnedSet[channel],
		})
	}
	return NewMemoryRegistry(subs...), nil
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}

// Lookup returns the subscription for channel.
func (r *MemoryRegistry) Lookup(channel string) (Subscription, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.subs[channel]
	return s, ok
}

// List returns all subscriptions ordered by channel.
func (r *MemoryRegistry) List() []Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Subscription, 0, len(r.subs))
	for _, s := range r.subs {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Channel() < out[j].Channel() })
	return out
}

// Add registers or replaces a subscription.
func (r *MemoryRegistry) Add(s Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[s.Channel()] = s
}

// Remove unregisters channel.
func (r *MemoryRegistry) Remove(channel string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.subs[channel]
	delete(r.subs, channel)
	return ok
}

// SetMuted toggles the muted flag. Returns false if channel is unknown.
func (r *MemoryRegistry) SetMuted(channel string, muted bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[channel]
	if !ok {
		return false
	}
	s.Muted = muted
	r.subs[channel] = s
	return true
}

// Channels lists the channel keys of every subscription in reg.
func Channels(reg Registry) []string {
	subs := reg.List()
	out := make([]string, len(subs))
	for i, s := range subs {
		out[i] = s.Channel()
	}
	return out
}
