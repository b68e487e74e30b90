// Package identity manages the session keypair: generation, loading
// from an encoded secret, and the bech32 display encodings.
package identity

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"

	"nostrchat/internal/nips"
)

// ErrInvalidKeyFormat is returned when an encoded secret key fails to
// parse: wrong prefix, bad checksum or wrong payload length.
var ErrInvalidKeyFormat = errors.New("invalid key format")

// Keys holds a session keypair. The secret key never leaves the
// process; only the encoded public forms are meant for display.
type Keys struct {
	SecretKey []byte // 32 bytes, exclusively owned by the session
	PublicKey string // x-only pubkey, hex
	Nsec      string // bech32 secret encoding
	Npub      string // bech32 public encoding
}

// Generate produces a fresh random keypair. It only fails if the
// system's entropy source does, which we treat as fatal for the caller.
func Generate() (*Keys, error) {
	privKey, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, err
	}
	return fromSecret(privKey.Serialize())
}

// FromNsec parses an nsec1... encoded secret and derives the full
// keypair. Anything that is not a well-formed nsec (an npub, a hex
// string, a corrupted checksum) yields ErrInvalidKeyFormat.
func FromNsec(nsec string) (*Keys, error) {
	raw, err := nips.DecodeNsec(nsec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyFormat, err)
	}
	return fromSecret(raw)
}

func fromSecret(secret []byte) (*Keys, error) {
	if len(secret) != 32 {
		return nil, ErrInvalidKeyFormat
	}
	privKey, _ := btcec.PrivKeyFromBytes(secret)
	if privKey == nil {
		return nil, ErrInvalidKeyFormat
	}

	// x-only pubkey (32 bytes), BIP-340 format
	pubBytes := privKey.PubKey().SerializeCompressed()[1:]

	nsec, err := nips.EncodeNsec(secret)
	if err != nil {
		return nil, err
	}
	npub, err := nips.EncodeNpub(pubBytes)
	if err != nil {
		return nil, err
	}

	return &Keys{
		SecretKey: secret,
		PublicKey: hex.EncodeToString(pubBytes),
		Nsec:      nsec,
		Npub:      npub,
	}, nil
}

// PrivateKey returns the parsed secp256k1 private key for signing.
func (k *Keys) PrivateKey() *btcec.PrivateKey {
	priv, _ := btcec.PrivKeyFromBytes(k.SecretKey)
	return priv
}

// ResolvePubkey accepts an npub or a 64-char hex pubkey and returns the
// hex form. Used wherever the user pastes a counterparty key.
func ResolvePubkey(input string) (string, error) {
	if len(input) == 64 {
		if _, err := hex.DecodeString(input); err == nil {
			return input, nil
		}
	}
	raw, err := nips.DecodeNpub(input)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidKeyFormat, err)
	}
	return hex.EncodeToString(raw), nil
}
