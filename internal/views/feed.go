// Package views reconciles raw relay traffic into consistent
// application state. Every view verifies events before admitting them,
// ingests idempotently (duplicates across relays collapse to one entry)
// and orders deterministically: created_at first, lexicographic event
// ID as tie-break.
package views

import (
	"log/slog"
	"sort"
	"sync"

	"nostrchat/internal/nostr"
)

// Order selects the display direction of a timeline.
type Order int

const (
	// OldestFirst is chat-style: newest message at the bottom.
	OldestFirst Order = iota
	// NewestFirst is social-feed-style.
	NewestFirst
)

// Feed is an ordered, deduplicated timeline of events.
type Feed struct {
	mu     sync.RWMutex
	order  Order
	max    int
	events []nostr.Event
	seen   map[string]bool
}

// NewFeed creates a feed holding at most maxEvents entries. When full,
// the oldest entry is evicted.
func NewFeed(order Order, maxEvents int) *Feed {
	return &Feed{
		order:  order,
		max:    maxEvents,
		events: make([]nostr.Event, 0, maxEvents),
		seen:   make(map[string]bool),
	}
}

// less reports whether a sorts before b for this feed's order.
func (f *Feed) less(a, b *nostr.Event) bool {
	if a.CreatedAt != b.CreatedAt {
		if f.order == OldestFirst {
			return a.CreatedAt < b.CreatedAt
		}
		return a.CreatedAt > b.CreatedAt
	}
	if f.order == OldestFirst {
		return a.ID < b.ID
	}
	return a.ID > b.ID
}

// Ingest admits one event: verification failures and duplicates are
// dropped silently. Returns true if the feed changed.
func (f *Feed) Ingest(evt nostr.Event) bool {
	if !nostr.Verify(&evt) {
		slog.Debug("feed: dropping unverifiable event", "event_id", nostr.ShortID(evt.ID))
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.seen[evt.ID] {
		return false
	}
	f.seen[evt.ID] = true

	// Insert in sorted position
	idx := sort.Search(len(f.events), func(i int) bool {
		return f.less(&evt, &f.events[i])
	})
	f.events = append(f.events, nostr.Event{})
	copy(f.events[idx+1:], f.events[idx:])
	f.events[idx] = evt

	if f.max > 0 && len(f.events) > f.max {
		// Evict from the old end: for chat order that is the front of
		// the slice, for social order the back.
		if f.order == OldestFirst {
			evicted := f.events[0]
			f.events = f.events[1:]
			delete(f.seen, evicted.ID)
		} else {
			evicted := f.events[len(f.events)-1]
			f.events = f.events[:len(f.events)-1]
			delete(f.seen, evicted.ID)
		}
	}
	return true
}

// Events returns a snapshot of the timeline in display order.
func (f *Feed) Events() []nostr.Event {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]nostr.Event, len(f.events))
	copy(out, f.events)
	return out
}

// Len returns the number of admitted events.
func (f *Feed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.events)
}
