package views

import (
	"log/slog"
	"sort"
	"sync"

	"nostrchat/internal/nips"
	"nostrchat/internal/nostr"
	"nostrchat/internal/payload"
)

// DecryptFailedPlaceholder is shown in place of a direct message whose
// ciphertext could not be opened. The event itself stays visible.
const DecryptFailedPlaceholder = "Encrypted message"

// Decrypter opens direct-message ciphertexts for the session keypair.
// *identity.Cipher satisfies it.
type Decrypter interface {
	Decrypt(peerPubkey, ciphertext string) (string, error)
}

// DMCounterparty returns the other party of a kind-4 event relative to
// self, and whether the event belongs to self's mailbox at all. An
// event qualifies when self authored it to a peer, or a peer addressed
// it to self. Third-party traffic and self-to-self without a p tag do
// not qualify.
func DMCounterparty(evt *nostr.Event, self string) (string, bool) {
	if evt.Kind != nostr.KindEncryptedDM {
		return "", false
	}
	recipient := evt.FirstTagValue("p")
	if evt.PubKey == self && recipient != "" {
		return recipient, true
	}
	if recipient == self && evt.PubKey != self {
		return evt.PubKey, true
	}
	return "", false
}

// DirectMessage is one decrypted entry of a DM thread.
type DirectMessage struct {
	Event       nostr.Event
	Text        string
	Attachments []payload.Attachment
	FromSelf    bool
	Failed      bool
}

// Thread reconciles the kind-4 conversation between the session key and
// one counterparty. Events from any other party, including DMs the peer
// exchanges with third parties, never enter the thread.
type Thread struct {
	self     string
	peer     string
	cipher   Decrypter
	mu       sync.RWMutex
	seen     map[string]bool
	messages []DirectMessage
}

func NewThread(self, peer string, cipher Decrypter) *Thread {
	return &Thread{
		self:   self,
		peer:   peer,
		cipher: cipher,
		seen:   make(map[string]bool),
	}
}

// Ingest admits one event into the thread. Non-matching, unverifiable
// and duplicate events are dropped. A decryption failure still admits
// the event, with placeholder text, so the timeline shows that a
// message exists.
func (t *Thread) Ingest(evt nostr.Event) bool {
	peer, ok := DMCounterparty(&evt, t.self)
	if !ok || peer != t.peer {
		return false
	}
	if !nostr.Verify(&evt) {
		slog.Debug("thread: dropping unverifiable event", "event_id", nostr.ShortID(evt.ID))
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.seen[evt.ID] {
		return false
	}
	t.seen[evt.ID] = true

	msg := DirectMessage{Event: evt, FromSelf: evt.PubKey == t.self}
	plaintext, err := t.cipher.Decrypt(t.peer, evt.Content)
	if err != nil {
		msg.Text = DecryptFailedPlaceholder
		msg.Failed = true
	} else {
		text, attachments := payload.Decode(plaintext)
		msg.Text = text
		msg.Attachments = attachments
	}

	idx := sort.Search(len(t.messages), func(i int) bool {
		other := &t.messages[i].Event
		if evt.CreatedAt != other.CreatedAt {
			return evt.CreatedAt < other.CreatedAt
		}
		return evt.ID < other.ID
	})
	t.messages = append(t.messages, DirectMessage{})
	copy(t.messages[idx+1:], t.messages[idx:])
	t.messages[idx] = msg
	return true
}

// Messages returns the thread oldest-first.
func (t *Thread) Messages() []DirectMessage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]DirectMessage, len(t.messages))
	copy(out, t.messages)
	return out
}

// Conversation summarizes the latest exchange with one counterparty.
type Conversation struct {
	Peer      string
	PeerName  string
	Preview   string
	CreatedAt int64
	FromSelf  bool
	latestID  string
}

// ConversationList folds all of the session's kind-4 traffic into one
// summary per counterparty, carrying the latest message as a decrypted
// preview. Profiles resolve peer names when a directory is attached.
type ConversationList struct {
	self     string
	cipher   Decrypter
	profiles *ProfileDirectory
	mu       sync.RWMutex
	seen     map[string]bool
	latest   map[string]*Conversation
}

// NewConversationList builds a list for the session pubkey. profiles
// may be nil; peers then show as pubkey prefixes.
func NewConversationList(self string, cipher Decrypter, profiles *ProfileDirectory) *ConversationList {
	return &ConversationList{
		self:     self,
		cipher:   cipher,
		profiles: profiles,
		seen:     make(map[string]bool),
		latest:   make(map[string]*Conversation),
	}
}

// Ingest folds one event into the per-counterparty summaries. Returns
// true when a summary changed.
func (l *ConversationList) Ingest(evt nostr.Event) bool {
	peer, ok := DMCounterparty(&evt, l.self)
	if !ok {
		return false
	}
	if !nostr.Verify(&evt) {
		slog.Debug("conversations: dropping unverifiable event", "event_id", nostr.ShortID(evt.ID))
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.seen[evt.ID] {
		return false
	}
	l.seen[evt.ID] = true

	cur, exists := l.latest[peer]
	if exists && !supersedes(evt.CreatedAt, evt.ID, cur.CreatedAt, cur.latestID) {
		return false
	}

	preview := DecryptFailedPlaceholder
	if plaintext, err := l.cipher.Decrypt(peer, evt.Content); err == nil {
		text, attachments := payload.Decode(plaintext)
		preview = text
		if preview == "" && len(attachments) > 0 {
			preview = "[" + string(attachments[0].Kind) + "]"
		}
	} else if err != nips.ErrDecryptionFailed {
		slog.Debug("conversations: decrypt error", "peer", nostr.ShortID(peer), "error", err)
	}

	l.latest[peer] = &Conversation{
		Peer:      peer,
		Preview:   preview,
		CreatedAt: evt.CreatedAt,
		FromSelf:  evt.PubKey == l.self,
		latestID:  evt.ID,
	}
	return true
}

// Conversations returns the summaries newest-first, with peer names
// resolved against the profile directory at call time.
func (l *ConversationList) Conversations() []Conversation {
	l.mu.RLock()
	out := make([]Conversation, 0, len(l.latest))
	for _, c := range l.latest {
		out = append(out, *c)
	}
	l.mu.RUnlock()

	for i := range out {
		if l.profiles != nil {
			out[i].PeerName = l.profiles.NameFor(out[i].Peer)
		} else if len(out[i].Peer) >= 8 {
			out[i].PeerName = out[i].Peer[:8]
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].latestID > out[j].latestID
	})
	return out
}
