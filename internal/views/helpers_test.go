package views

import (
	"testing"

	"nostrchat/internal/identity"
	"nostrchat/internal/nips"
	"nostrchat/internal/nostr"
)

func newKeys(t *testing.T) *identity.Keys {
	t.Helper()
	keys, err := identity.Generate()
	if err != nil {
		t.Fatalf("generating keys: %v", err)
	}
	return keys
}

func signEvent(t *testing.T, keys *identity.Keys, kind int, createdAt int64, tags [][]string, content string) nostr.Event {
	t.Helper()
	ev := nostr.Event{
		CreatedAt: createdAt,
		Kind:      kind,
		Tags:      tags,
		Content:   content,
	}
	if err := nostr.Sign(&ev, keys.PrivateKey()); err != nil {
		t.Fatalf("signing event: %v", err)
	}
	return ev
}

// fakeDecrypter echoes ciphertext back as plaintext, or fails for
// ciphertexts it was told to reject.
type fakeDecrypter struct {
	reject map[string]bool
}

func (f *fakeDecrypter) Decrypt(peerPubkey, ciphertext string) (string, error) {
	if f.reject[ciphertext] {
		return "", nips.ErrDecryptionFailed
	}
	return ciphertext, nil
}
