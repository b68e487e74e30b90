package identity

import (
	"encoding/hex"
	"errors"
	"strings"
	"testing"
)

func TestGenerateDerivation(t *testing.T) {
	keys, err := Generate()
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(keys.SecretKey) != 32 {
		t.Errorf("secret key length = %d, want 32", len(keys.SecretKey))
	}
	if len(keys.PublicKey) != 64 {
		t.Errorf("public key hex length = %d, want 64", len(keys.PublicKey))
	}

	// The public key must be re-derivable from the secret.
	derived := keys.PrivateKey().PubKey().SerializeCompressed()[1:]
	if hex.EncodeToString(derived) != keys.PublicKey {
		t.Error("public key does not match derivation from secret")
	}
}

func TestNsecRoundTrip(t *testing.T) {
	keys, err := Generate()
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	loaded, err := FromNsec(keys.Nsec)
	if err != nil {
		t.Fatalf("FromNsec failed on our own encoding: %v", err)
	}
	if hex.EncodeToString(loaded.SecretKey) != hex.EncodeToString(keys.SecretKey) {
		t.Error("secret key changed across encode/decode")
	}
	if loaded.PublicKey != keys.PublicKey {
		t.Error("public key changed across encode/decode")
	}
	if loaded.Npub != keys.Npub {
		t.Error("npub changed across encode/decode")
	}
}

func TestFromNsecRejectsNpub(t *testing.T) {
	keys, err := Generate()
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	_, err = FromNsec(keys.Npub)
	if err == nil {
		t.Fatal("FromNsec accepted an npub")
	}
	if !errors.Is(err, ErrInvalidKeyFormat) {
		t.Errorf("error = %v, want ErrInvalidKeyFormat", err)
	}
}

func TestFromNsecRejectsGarbage(t *testing.T) {
	for _, input := range []string{"", "nsec1", "hello world", "nsec1qqqqqqqq"} {
		if _, err := FromNsec(input); !errors.Is(err, ErrInvalidKeyFormat) {
			t.Errorf("FromNsec(%q) error = %v, want ErrInvalidKeyFormat", input, err)
		}
	}
}

func TestResolvePubkey(t *testing.T) {
	keys, err := Generate()
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	fromHex, err := ResolvePubkey(keys.PublicKey)
	if err != nil {
		t.Fatalf("ResolvePubkey(hex) failed: %v", err)
	}
	if fromHex != keys.PublicKey {
		t.Error("hex input should pass through unchanged")
	}

	fromNpub, err := ResolvePubkey(keys.Npub)
	if err != nil {
		t.Fatalf("ResolvePubkey(npub) failed: %v", err)
	}
	if fromNpub != keys.PublicKey {
		t.Error("npub input should resolve to the same hex key")
	}

	if _, err := ResolvePubkey(strings.Repeat("z", 64)); err == nil {
		t.Error("ResolvePubkey accepted non-hex input of the right length")
	}
	if _, err := ResolvePubkey(keys.Nsec); err == nil {
		t.Error("ResolvePubkey accepted an nsec")
	}
}
