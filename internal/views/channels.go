package views

import (
	"encoding/json"
	"log/slog"
	"sort"
	"sync"

	"nostrchat/internal/nostr"
)

// channelMetadata is the JSON shape of kind-40/41 content.
type channelMetadata struct {
	Name    string `json:"name"`
	About   string `json:"about"`
	Picture string `json:"picture"`
}

// Channel is the reconciled state of one public channel. ID is the
// kind-40 creation event's ID; metadata reflects the winning kind-41
// update overlaid on the creation.
type Channel struct {
	ID        string `json:"id"`
	Creator   string `json:"creator"`
	Name      string `json:"name"`
	About     string `json:"about,omitempty"`
	Picture   string `json:"picture,omitempty"`
	CreatedAt int64  `json:"created_at"`

	metaCreatedAt int64
	metaID        string
}

// ChannelDirectory merges kind-40 creations with kind-41 metadata
// updates. Metadata is replaceable per channel: greatest created_at
// wins, ties to the greater event ID. Updates arriving before their
// creation are held and applied once the creation shows up.
type ChannelDirectory struct {
	mu       sync.RWMutex
	channels map[string]*Channel
	pending  map[string]*pendingMeta
}

type pendingMeta struct {
	meta      channelMetadata
	createdAt int64
	eventID   string
}

func NewChannelDirectory() *ChannelDirectory {
	return &ChannelDirectory{
		channels: make(map[string]*Channel),
		pending:  make(map[string]*pendingMeta),
	}
}

// Ingest applies one kind-40 or kind-41 event. Everything else is
// ignored. Returns true when a channel's resolved state changed.
func (d *ChannelDirectory) Ingest(evt nostr.Event) bool {
	switch evt.Kind {
	case nostr.KindChannelCreate:
		return d.ingestCreate(evt)
	case nostr.KindChannelMetadata:
		return d.ingestMetadata(evt)
	default:
		return false
	}
}

func (d *ChannelDirectory) ingestCreate(evt nostr.Event) bool {
	if !nostr.Verify(&evt) {
		slog.Debug("channels: dropping unverifiable creation", "event_id", nostr.ShortID(evt.ID))
		return false
	}

	var meta channelMetadata
	if err := json.Unmarshal([]byte(evt.Content), &meta); err != nil {
		slog.Debug("channels: malformed creation content", "event_id", nostr.ShortID(evt.ID))
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.channels[evt.ID]; exists {
		return false
	}
	ch := &Channel{
		ID:        evt.ID,
		Creator:   evt.PubKey,
		Name:      meta.Name,
		About:     meta.About,
		Picture:   meta.Picture,
		CreatedAt: evt.CreatedAt,
	}
	if held, ok := d.pending[evt.ID]; ok {
		applyMetadata(ch, held.meta, held.createdAt, held.eventID)
		delete(d.pending, evt.ID)
	}
	d.channels[evt.ID] = ch
	return true
}

func (d *ChannelDirectory) ingestMetadata(evt nostr.Event) bool {
	if !nostr.Verify(&evt) {
		slog.Debug("channels: dropping unverifiable metadata", "event_id", nostr.ShortID(evt.ID))
		return false
	}

	channelID := evt.FirstTagValue("e")
	if channelID == "" {
		return false
	}
	var meta channelMetadata
	if err := json.Unmarshal([]byte(evt.Content), &meta); err != nil {
		slog.Debug("channels: malformed metadata content", "event_id", nostr.ShortID(evt.ID))
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ch, exists := d.channels[channelID]
	if !exists {
		held, ok := d.pending[channelID]
		if ok && !supersedes(evt.CreatedAt, evt.ID, held.createdAt, held.eventID) {
			return false
		}
		d.pending[channelID] = &pendingMeta{meta: meta, createdAt: evt.CreatedAt, eventID: evt.ID}
		return false
	}

	if !supersedes(evt.CreatedAt, evt.ID, ch.metaCreatedAt, ch.metaID) {
		return false
	}
	applyMetadata(ch, meta, evt.CreatedAt, evt.ID)
	return true
}

// applyMetadata overlays an update on a channel field-wise: empty
// fields in the update leave the current value in place, so partial
// updates do not erase what the creation set.
func applyMetadata(ch *Channel, meta channelMetadata, createdAt int64, eventID string) {
	if meta.Name != "" {
		ch.Name = meta.Name
	}
	if meta.About != "" {
		ch.About = meta.About
	}
	if meta.Picture != "" {
		ch.Picture = meta.Picture
	}
	ch.metaCreatedAt = createdAt
	ch.metaID = eventID
}

// Get returns the reconciled channel, or nil if its creation has not
// been seen.
func (d *ChannelDirectory) Get(channelID string) *Channel {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if ch, ok := d.channels[channelID]; ok {
		clone := *ch
		return &clone
	}
	return nil
}

// Channels returns every known channel, newest creation first.
func (d *ChannelDirectory) Channels() []Channel {
	d.mu.RLock()
	out := make([]Channel, 0, len(d.channels))
	for _, ch := range d.channels {
		out = append(out, *ch)
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// rosterWindow is how many recent channel messages the roster samples.
const rosterWindow = 50

// ChannelRoster approximates a channel's membership as the distinct
// authors of its most recent messages. It is a sample, not a census:
// members who have not written within the window do not appear.
type ChannelRoster struct {
	channelID string
	mu        sync.RWMutex
	seen      map[string]bool
	recent    []nostr.Event
}

func NewChannelRoster(channelID string) *ChannelRoster {
	return &ChannelRoster{channelID: channelID, seen: make(map[string]bool)}
}

// Ingest admits one kind-42 message addressed to this channel (root e
// tag). The window keeps only the most recent entries.
func (r *ChannelRoster) Ingest(evt nostr.Event) bool {
	if evt.Kind != nostr.KindChannelMessage || evt.FirstTagValue("e") != r.channelID {
		return false
	}
	if !nostr.Verify(&evt) {
		slog.Debug("roster: dropping unverifiable message", "event_id", nostr.ShortID(evt.ID))
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.seen[evt.ID] {
		return false
	}
	r.seen[evt.ID] = true

	idx := sort.Search(len(r.recent), func(i int) bool {
		other := &r.recent[i]
		if evt.CreatedAt != other.CreatedAt {
			return evt.CreatedAt > other.CreatedAt
		}
		return evt.ID > other.ID
	})
	r.recent = append(r.recent, nostr.Event{})
	copy(r.recent[idx+1:], r.recent[idx:])
	r.recent[idx] = evt

	if len(r.recent) > rosterWindow {
		evicted := r.recent[len(r.recent)-1]
		r.recent = r.recent[:len(r.recent)-1]
		delete(r.seen, evicted.ID)
	}
	return true
}

// Members returns the distinct authors within the window, most recently
// active first.
func (r *ChannelRoster) Members() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.recent))
	distinct := make(map[string]bool)
	for _, evt := range r.recent {
		if !distinct[evt.PubKey] {
			distinct[evt.PubKey] = true
			out = append(out, evt.PubKey)
		}
	}
	return out
}
