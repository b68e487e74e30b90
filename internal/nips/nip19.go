package nips

import (
	"encoding/hex"
	"errors"
	"strings"
)

// NIP-19 bech32 entities for keys and event IDs. The nsec/npub prefixes
// are deliberately distinct so a public key can never be accepted where
// a secret is expected.

// ErrWrongPrefix is returned when a bech32 entity carries an unexpected
// human-readable prefix (e.g. an npub passed where an nsec is required).
var ErrWrongPrefix = errors.New("unexpected bech32 prefix")

// EncodeNpub encodes a 32-byte x-only public key to npub format.
func EncodeNpub(pubkey []byte) (string, error) {
	return encodeKey("npub", pubkey)
}

// EncodeNsec encodes a 32-byte secret key to nsec format.
func EncodeNsec(seckey []byte) (string, error) {
	return encodeKey("nsec", seckey)
}

// EncodeNote encodes a 32-byte event ID to note format.
func EncodeNote(eventID []byte) (string, error) {
	return encodeKey("note", eventID)
}

// EncodeNpubHex encodes a hex pubkey to npub format.
func EncodeNpubHex(hexPubkey string) (string, error) {
	raw, err := hex.DecodeString(hexPubkey)
	if err != nil {
		return "", err
	}
	return EncodeNpub(raw)
}

func encodeKey(hrp string, raw []byte) (string, error) {
	if len(raw) != 32 {
		return "", errors.New("invalid key length")
	}
	// Convert 8-bit bytes to 5-bit groups
	data, err := Bech32ConvertBits(raw, 8, 5, true)
	if err != nil {
		return "", err
	}
	return Bech32Encode(hrp, data)
}

// DecodeNsec decodes an nsec1... string into the raw 32-byte secret key.
func DecodeNsec(nsec string) ([]byte, error) {
	return decodeKey("nsec", nsec)
}

// DecodeNpub decodes an npub1... string into the raw 32-byte public key.
func DecodeNpub(npub string) ([]byte, error) {
	return decodeKey("npub", npub)
}

// DecodeNote decodes a note1... string into the raw 32-byte event ID.
func DecodeNote(note string) ([]byte, error) {
	return decodeKey("note", note)
}

func decodeKey(wantHrp, bech string) ([]byte, error) {
	if !strings.HasPrefix(strings.ToLower(bech), wantHrp+"1") {
		return nil, ErrWrongPrefix
	}
	hrp, data, err := Bech32Decode(bech)
	if err != nil {
		return nil, err
	}
	if hrp != wantHrp {
		return nil, ErrWrongPrefix
	}
	raw, err := Bech32ConvertBits(data, 5, 8, false)
	if err != nil {
		return nil, err
	}
	if len(raw) != 32 {
		return nil, errors.New("invalid payload length")
	}
	return raw, nil
}
