package identity

import (
	"encoding/hex"
	"fmt"

	"nostrchat/internal/nips"
)

// Cipher binds the session keys to peer-to-peer encryption. Direct
// messages on the wire use NIP-04; NIP-44 is available for peers that
// negotiate it.
type Cipher struct {
	keys *Keys
}

// NewCipher returns a cipher for the session keypair.
func NewCipher(keys *Keys) *Cipher {
	return &Cipher{keys: keys}
}

// Encrypt encrypts plaintext to the peer's x-only hex pubkey (NIP-04).
func (c *Cipher) Encrypt(peerPubkey, plaintext string) (string, error) {
	shared, err := c.sharedSecret(peerPubkey)
	if err != nil {
		return "", err
	}
	return nips.Nip04Encrypt(plaintext, shared)
}

// Decrypt decrypts a NIP-04 ciphertext from the peer. Wrong peer key or
// corrupt ciphertext returns nips.ErrDecryptionFailed; callers show a
// placeholder instead of the message.
func (c *Cipher) Decrypt(peerPubkey, ciphertext string) (string, error) {
	shared, err := c.sharedSecret(peerPubkey)
	if err != nil {
		return "", nips.ErrDecryptionFailed
	}
	return nips.Nip04Decrypt(ciphertext, shared)
}

// EncryptV2 encrypts plaintext to the peer using NIP-44 v2.
func (c *Cipher) EncryptV2(peerPubkey, plaintext string) (string, error) {
	convKey, err := c.conversationKey(peerPubkey)
	if err != nil {
		return "", err
	}
	return nips.Nip44Encrypt(plaintext, convKey)
}

// DecryptV2 decrypts a NIP-44 v2 payload from the peer.
func (c *Cipher) DecryptV2(peerPubkey, ciphertext string) (string, error) {
	convKey, err := c.conversationKey(peerPubkey)
	if err != nil {
		return "", nips.ErrDecryptionFailed
	}
	return nips.Nip44Decrypt(ciphertext, convKey)
}

func (c *Cipher) sharedSecret(peerPubkey string) ([]byte, error) {
	peer, err := hex.DecodeString(peerPubkey)
	if err != nil {
		return nil, fmt.Errorf("%w: bad peer pubkey", ErrInvalidKeyFormat)
	}
	return nips.Nip04SharedSecret(c.keys.SecretKey, peer)
}

func (c *Cipher) conversationKey(peerPubkey string) ([]byte, error) {
	peer, err := hex.DecodeString(peerPubkey)
	if err != nil {
		return nil, fmt.Errorf("%w: bad peer pubkey", ErrInvalidKeyFormat)
	}
	return nips.Nip44ConversationKey(c.keys.SecretKey, peer)
}
