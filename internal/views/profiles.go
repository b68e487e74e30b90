package views

import (
	"encoding/json"
	"log/slog"
	"sync"

	"nostrchat/internal/nostr"
)

// Profile is the parsed kind-0 metadata for one author.
type Profile struct {
	Pubkey      string `json:"pubkey"`
	Name        string `json:"name,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	About       string `json:"about,omitempty"`
	Picture     string `json:"picture,omitempty"`
	Nip05       string `json:"nip05,omitempty"`
	CreatedAt   int64  `json:"-"`
	eventID     string
}

// BestName returns the most specific human-readable label available.
func (p *Profile) BestName() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	if p.Name != "" {
		return p.Name
	}
	if len(p.Pubkey) >= 8 {
		return p.Pubkey[:8]
	}
	return p.Pubkey
}

// ProfileDirectory resolves kind-0 metadata events, one winner per
// author. Metadata is replaceable: the greatest created_at wins no
// matter what order relays deliver in, with ties broken by the
// lexicographically greater event ID so every client converges on the
// same winner.
type ProfileDirectory struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
}

func NewProfileDirectory() *ProfileDirectory {
	return &ProfileDirectory{profiles: make(map[string]*Profile)}
}

// supersedes reports whether a replaceable candidate beats the current
// winner.
func supersedes(newCreatedAt int64, newID string, curCreatedAt int64, curID string) bool {
	if newCreatedAt != curCreatedAt {
		return newCreatedAt > curCreatedAt
	}
	return newID > curID
}

// Ingest applies one kind-0 event. Unverifiable events, wrong kinds and
// malformed profile JSON are dropped. Returns true when the author's
// resolved profile changed.
func (d *ProfileDirectory) Ingest(evt nostr.Event) bool {
	if evt.Kind != nostr.KindProfileMetadata {
		return false
	}
	if !nostr.Verify(&evt) {
		slog.Debug("profiles: dropping unverifiable event", "event_id", nostr.ShortID(evt.ID))
		return false
	}

	var parsed Profile
	if err := json.Unmarshal([]byte(evt.Content), &parsed); err != nil {
		slog.Debug("profiles: malformed metadata content", "pubkey", nostr.ShortID(evt.PubKey))
		return false
	}
	parsed.Pubkey = evt.PubKey
	parsed.CreatedAt = evt.CreatedAt
	parsed.eventID = evt.ID

	d.mu.Lock()
	defer d.mu.Unlock()

	cur, ok := d.profiles[evt.PubKey]
	if ok && !supersedes(evt.CreatedAt, evt.ID, cur.CreatedAt, cur.eventID) {
		return false
	}
	d.profiles[evt.PubKey] = &parsed
	return true
}

// Get returns the resolved profile for a pubkey, or nil if none has
// been seen.
func (d *ProfileDirectory) Get(pubkey string) *Profile {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if p, ok := d.profiles[pubkey]; ok {
		clone := *p
		return &clone
	}
	return nil
}

// NameFor resolves a display label, falling back to a pubkey prefix
// when no profile is known.
func (d *ProfileDirectory) NameFor(pubkey string) string {
	if p := d.Get(pubkey); p != nil {
		return p.BestName()
	}
	if len(pubkey) >= 8 {
		return pubkey[:8]
	}
	return pubkey
}

// Len returns the number of authors with a resolved profile.
func (d *ProfileDirectory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.profiles)
}
