// Package publish builds, signs and broadcasts the events the client
// produces. All operations share the same shape: assemble a template,
// sign with the session keys, hand it to the pool's at-least-one-of-N
// broadcast. On failure the caller's composed input stays intact; the
// aggregate error is returned as-is.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"nostrchat/internal/identity"
	"nostrchat/internal/nostr"
)

// Broadcaster delivers a signed event to a relay set. *pool.RelayPool
// satisfies it.
type Broadcaster interface {
	Publish(ctx context.Context, relayURLs []string, ev *nostr.Event) error
}

// Coordinator signs and broadcasts events for one session.
type Coordinator struct {
	keys      *identity.Keys
	cipher    *identity.Cipher
	broadcast Broadcaster
}

func NewCoordinator(keys *identity.Keys, broadcast Broadcaster) *Coordinator {
	return &Coordinator{
		keys:      keys,
		cipher:    identity.NewCipher(keys),
		broadcast: broadcast,
	}
}

// send signs the template and broadcasts it. The returned event carries
// the final ID and signature.
func (c *Coordinator) send(ctx context.Context, relays []string, ev *nostr.Event) (*nostr.Event, error) {
	if ev.CreatedAt == 0 {
		ev.CreatedAt = time.Now().Unix()
	}
	if err := nostr.Sign(ev, c.keys.PrivateKey()); err != nil {
		return nil, fmt.Errorf("signing event: %w", err)
	}
	if err := c.broadcast.Publish(ctx, relays, ev); err != nil {
		return nil, err
	}
	slog.Debug("event published", "kind", ev.Kind, "event_id", nostr.ShortID(ev.ID))
	return ev, nil
}

// Note publishes a public kind-1 note.
func (c *Coordinator) Note(ctx context.Context, relays []string, content string) (*nostr.Event, error) {
	ev := &nostr.Event{
		Kind:    nostr.KindTextNote,
		Content: content,
	}
	return c.send(ctx, relays, ev)
}

// DirectMessage encrypts content to the recipient and publishes a
// kind-4 event tagged with the recipient's pubkey.
func (c *Coordinator) DirectMessage(ctx context.Context, relays []string, recipientHex, content string) (*nostr.Event, error) {
	ciphertext, err := c.cipher.Encrypt(recipientHex, content)
	if err != nil {
		return nil, fmt.Errorf("encrypting message: %w", err)
	}
	ev := &nostr.Event{
		Kind:    nostr.KindEncryptedDM,
		Tags:    [][]string{{"p", recipientHex}},
		Content: ciphertext,
	}
	return c.send(ctx, relays, ev)
}

// ChannelCreate publishes a kind-40 creation event and returns the new
// channel's ID, which is the event ID.
func (c *Coordinator) ChannelCreate(ctx context.Context, relays []string, name, about string) (string, error) {
	meta, err := json.Marshal(map[string]string{"name": name, "about": about})
	if err != nil {
		return "", err
	}
	ev := &nostr.Event{
		Kind:    nostr.KindChannelCreate,
		Content: string(meta),
	}
	ev, err = c.send(ctx, relays, ev)
	if err != nil {
		return "", err
	}
	return ev.ID, nil
}

// ChannelMessage publishes a kind-42 message into a channel, tagged
// with the channel's creation event as root.
func (c *Coordinator) ChannelMessage(ctx context.Context, relays []string, channelID, content string) (*nostr.Event, error) {
	ev := &nostr.Event{
		Kind:    nostr.KindChannelMessage,
		Tags:    [][]string{{"e", channelID, "", "root"}},
		Content: content,
	}
	return c.send(ctx, relays, ev)
}

// ChannelMetadata publishes a kind-41 metadata update for a channel the
// session created. Empty fields are omitted so readers merge them
// field-wise.
func (c *Coordinator) ChannelMetadata(ctx context.Context, relays []string, channelID, name, about, picture string) (*nostr.Event, error) {
	meta := map[string]string{}
	if name != "" {
		meta["name"] = name
	}
	if about != "" {
		meta["about"] = about
	}
	if picture != "" {
		meta["picture"] = picture
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	ev := &nostr.Event{
		Kind:    nostr.KindChannelMetadata,
		Tags:    [][]string{{"e", channelID}},
		Content: string(raw),
	}
	return c.send(ctx, relays, ev)
}

// ProfileMetadata publishes the session's kind-0 profile.
func (c *Coordinator) ProfileMetadata(ctx context.Context, relays []string, name, about, picture string) (*nostr.Event, error) {
	meta := map[string]string{}
	if name != "" {
		meta["name"] = name
	}
	if about != "" {
		meta["about"] = about
	}
	if picture != "" {
		meta["picture"] = picture
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	ev := &nostr.Event{
		Kind:    nostr.KindProfileMetadata,
		Content: string(raw),
	}
	return c.send(ctx, relays, ev)
}
