package nostr

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// Event kinds used by the client (NIP-01, NIP-04, NIP-28)
const (
	KindProfileMetadata = 0
	KindTextNote        = 1
	KindEncryptedDM     = 4
	KindChannelCreate   = 40
	KindChannelMetadata = 41
	KindChannelMessage  = 42
)

// ErrSignatureInvalid is returned when an event fails verification.
// Consumers must treat such events as untrusted and drop them.
var ErrSignatureInvalid = errors.New("event signature invalid")

// Event is a signed, content-addressed, immutable protocol message.
// Once signed it is never mutated, only superseded logically for
// replaceable kinds.
type Event struct {
	ID         string     `json:"id"`
	PubKey     string     `json:"pubkey"`
	CreatedAt  int64      `json:"created_at"`
	Kind       int        `json:"kind"`
	Tags       [][]string `json:"tags"`
	Content    string     `json:"content"`
	Sig        string     `json:"sig"`
	RelaysSeen []string   `json:"-"`
}

// ComputeEventID returns the SHA256 of the canonical JSON serialization:
// [0, pubkey, created_at, kind, tags, content]
//
// HTML characters (<, >, &) must NOT be escaped, or relays recomputing
// the hash will disagree on the ID. Go's json.Marshal escapes them by
// default, so we go through an Encoder with SetEscapeHTML(false).
func ComputeEventID(ev *Event) string {
	tags := ev.Tags
	if tags == nil {
		tags = [][]string{}
	}
	serialized := []interface{}{
		0,
		ev.PubKey,
		ev.CreatedAt,
		ev.Kind,
		tags,
		ev.Content,
	}

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	encoder.Encode(serialized)

	// Encoder.Encode adds a trailing newline, remove it
	jsonBytes := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))

	hash := sha256.Sum256(jsonBytes)
	return hex.EncodeToString(hash[:])
}

// Sign fills in PubKey, ID and Sig from the private key. The remaining
// fields (CreatedAt, Kind, Tags, Content) must already be set.
func Sign(ev *Event, privKey *btcec.PrivateKey) error {
	// x-only pubkey (32 bytes), BIP-340 format
	ev.PubKey = hex.EncodeToString(privKey.PubKey().SerializeCompressed()[1:])
	if ev.Tags == nil {
		ev.Tags = [][]string{}
	}
	ev.ID = ComputeEventID(ev)

	idBytes, err := hex.DecodeString(ev.ID)
	if err != nil {
		return err
	}
	sig, err := schnorr.Sign(privKey, idBytes)
	if err != nil {
		return err
	}
	ev.Sig = hex.EncodeToString(sig.Serialize())
	return nil
}

// Verify recomputes the event ID from its fields, checks it against the
// declared ID, and verifies the Schnorr signature against the declared
// author key. Returns false on any mismatch.
func Verify(ev *Event) bool {
	if len(ev.Sig) != 128 || len(ev.PubKey) != 64 {
		return false
	}
	if ComputeEventID(ev) != ev.ID {
		return false
	}

	sigBytes, err := hex.DecodeString(ev.Sig)
	if err != nil {
		return false
	}
	pubKeyBytes, err := hex.DecodeString(ev.PubKey)
	if err != nil {
		return false
	}
	idBytes, err := hex.DecodeString(ev.ID)
	if err != nil {
		return false
	}

	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return false
	}
	pubKey, err := schnorr.ParsePubKey(pubKeyBytes)
	if err != nil {
		return false
	}

	return sig.Verify(idBytes, pubKey)
}

// ParseEventFromInterface converts raw websocket data to an Event
// (avoids JSON re-encoding). Trust filtering is the reconciler's job;
// this only rejects frames missing the required fields.
func ParseEventFromInterface(data interface{}) (Event, bool) {
	m, ok := data.(map[string]interface{})
	if !ok {
		return Event{}, false
	}

	evt := Event{}

	if id, ok := m["id"].(string); ok {
		evt.ID = id
	}
	if pk, ok := m["pubkey"].(string); ok {
		evt.PubKey = pk
	}
	if createdAt, ok := m["created_at"].(float64); ok {
		evt.CreatedAt = int64(createdAt)
	}
	if kind, ok := m["kind"].(float64); ok {
		evt.Kind = int(kind)
	}
	if content, ok := m["content"].(string); ok {
		evt.Content = content
	}
	if sig, ok := m["sig"].(string); ok {
		evt.Sig = sig
	}

	if tags, ok := m["tags"].([]interface{}); ok {
		evt.Tags = make([][]string, 0, len(tags))
		for _, tag := range tags {
			if tagArr, ok := tag.([]interface{}); ok {
				strTag := make([]string, 0, len(tagArr))
				for _, elem := range tagArr {
					if s, ok := elem.(string); ok {
						strTag = append(strTag, s)
					}
				}
				evt.Tags = append(evt.Tags, strTag)
			}
		}
	}

	return evt, evt.ID != ""
}

// FirstTagValue returns the value of the first tag with the given name,
// or "" if none exists.
func (ev *Event) FirstTagValue(name string) string {
	for _, tag := range ev.Tags {
		if len(tag) >= 2 && tag[0] == name {
			return tag[1]
		}
	}
	return ""
}

// ShortID truncates ID/pubkey to 12 chars for logging
func ShortID(id string) string {
	if len(id) >= 12 {
		return id[:12]
	}
	return id
}
