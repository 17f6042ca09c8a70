// AlertFeed - Real-time Operational Alert Delivery Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/alertfeed

// Package cache holds the recent event id cache used to drop redelivered
// events before they reach the sequence tracker.
package cache

import (
	"sync"
	"time"
)

// Defaults for NewRecentIDs.
const (
	DefaultCapacity = 10000
	DefaultTTL      = 5 * time.Minute
)

type entry struct {
	key       string
	prev      *entry
	next      *entry
	expiresAt time.Time
}

// SnapshotEntry is the persisted form of one cached id.
type SnapshotEntry struct {
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// RecentIDs is a thread-safe LRU set of event keys with a TTL.
// Lookups, inserts and evictions are O(1): a doubly-linked list orders
// entries by recency and a map indexes them.
type RecentIDs struct {
	mu sync.Mutex

	capacity int
	ttl      time.Duration
	now      func() time.Time

	items map[string]*entry

	// head.next is the most recently seen, tail.prev the least
	head *entry
	tail *entry

	hits   int64
	misses int64
}

// NewRecentIDs creates a cache holding at most capacity keys for ttl each.
func NewRecentIDs(capacity int, ttl time.Duration) *RecentIDs {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	c := &RecentIDs{
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
		items:    make(map[string]*entry, capacity),
		head:     &entry{},
		tail:     &entry{},
	}
	c.head.next = c.tail
	c.tail.prev = c.head
	return c
}

// Key builds the cache key for an event on a channel.
func Key(channel, eventID string) string {
	return channel + "/" + eventID
}

// Seen reports whether key was recorded within the TTL. If it was not,
// the key is recorded now so the next call for it returns true.
func (c *RecentIDs) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if e, ok := c.items[key]; ok {
		if !now.After(e.expiresAt) {
			c.moveToFront(e)
			c.hits++
			return true
		}
		c.removeEntry(e)
	}

	c.insert(key, now.Add(c.ttl))
	c.misses++
	return false
}

// Contains checks for key without recording it.
func (c *RecentIDs) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.items[key]; ok {
		return !c.now().After(e.expiresAt)
	}
	return false
}

// Forget removes key. Returns true if it was present.
func (c *RecentIDs) Forget(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.items[key]; ok {
		c.removeEntry(e)
		return true
	}
	return false
}

// Len returns the number of cached keys, expired or not.
func (c *RecentIDs) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Clear drops every key.
func (c *RecentIDs) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*entry, c.capacity)
	c.head.next = c.tail
	c.tail.prev = c.head
}

// CleanupExpired removes expired keys and returns how many were dropped.
func (c *RecentIDs) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for e := c.tail.prev; e != c.head; {
		prev := e.prev
		if now.After(e.expiresAt) {
			c.removeEntry(e)
			removed++
		}
		e = prev
	}
	return removed
}

// Stats returns hit and miss counts along with the current size.
func (c *RecentIDs) Stats() (hits, misses int64, size int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses, len(c.items)
}

// Snapshot returns live keys ordered least to most recently seen, so
// Restore replays them into the same recency order.
func (c *RecentIDs) Snapshot() []SnapshotEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	out := make([]SnapshotEntry, 0, len(c.items))
	for e := c.tail.prev; e != c.head; e = e.prev {
		if now.After(e.expiresAt) {
			continue
		}
		out = append(out, SnapshotEntry{Key: e.key, ExpiresAt: e.expiresAt})
	}
	return out
}

// Restore loads a snapshot, skipping entries that have already expired.
func (c *RecentIDs) Restore(entries []SnapshotEntry) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	loaded := 0
	for _, se := range entries {
		if se.Key == "" || now.After(se.ExpiresAt) {
			continue
		}
		if e, ok := c.items[se.Key]; ok {
			c.removeEntry(e)
		}
		c.insert(se.Key, se.ExpiresAt)
		loaded++
	}
	return loaded
}

// Internal methods (must be called with lock held)

func (c *RecentIDs) insert(key string, expiresAt time.Time) {
	e := &entry{key: key, expiresAt: expiresAt}
	c.addToFront(e)
	c.items[key] = e
	for len(c.items) > c.capacity {
		c.evictOldest()
	}
}

func (c *RecentIDs) addToFront(e *entry) {
	e.prev = c.head
	e.next = c.head.next
	c.head.next.prev = e
	c.head.next = e
}

func (c *RecentIDs) moveToFront(e *entry) {
	e.prev.next = e.next
	e.next.prev = e.prev
	c.addToFront(e)
}

func (c *RecentIDs) removeEntry(e *entry) {
	e.prev.next = e.next
	e.next.prev = e.prev
	delete(c.items, e.key)
}

func (c *RecentIDs) evictOldest() {
	oldest := c.tail.prev
	if oldest == c.head {
		return
	}
	c.removeEntry(oldest)
}
