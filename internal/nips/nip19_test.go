package nips

import (
	"encoding/hex"
	"strings"
	"testing"
)

// Reference vectors from the NIP-19 document.
const (
	vectorPubHex  = "3bf0c63fcb93463407af97a5e5ee64fa883d107ef9e558472c4eb9aaaefa459d"
	vectorNpub    = "npub180cvv07tjdrrgpa0j7j7tmnyl2yr6yr7l8j4s3evf6u64th6gkwsyjh6w6"
	vectorSecHex  = "67dea2ed018072d675f5415ecfaed7d2597555e202d85b3d65ea4e58d2d92ffa"
	vectorNsec    = "nsec1vl029mgpspedva04g90vltkh6fvh240zqtv9k0t9af8935ke9laqsnlfe5"
)

func TestEncodeNpubVector(t *testing.T) {
	raw, _ := hex.DecodeString(vectorPubHex)
	npub, err := EncodeNpub(raw)
	if err != nil {
		t.Fatalf("EncodeNpub failed: %v", err)
	}
	if npub != vectorNpub {
		t.Errorf("npub mismatch\n  got:      %s\n  expected: %s", npub, vectorNpub)
	}
}

func TestEncodeNsecVector(t *testing.T) {
	raw, _ := hex.DecodeString(vectorSecHex)
	nsec, err := EncodeNsec(raw)
	if err != nil {
		t.Fatalf("EncodeNsec failed: %v", err)
	}
	if nsec != vectorNsec {
		t.Errorf("nsec mismatch\n  got:      %s\n  expected: %s", nsec, vectorNsec)
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	raw, _ := hex.DecodeString(vectorSecHex)

	nsec, err := EncodeNsec(raw)
	if err != nil {
		t.Fatalf("EncodeNsec failed: %v", err)
	}
	decoded, err := DecodeNsec(nsec)
	if err != nil {
		t.Fatalf("DecodeNsec failed: %v", err)
	}
	if hex.EncodeToString(decoded) != vectorSecHex {
		t.Errorf("round trip lost data: got %x", decoded)
	}
}

func TestNoteRoundTrip(t *testing.T) {
	raw, _ := hex.DecodeString(vectorPubHex) // any 32 bytes will do
	note, err := EncodeNote(raw)
	if err != nil {
		t.Fatalf("EncodeNote failed: %v", err)
	}
	if !strings.HasPrefix(note, "note1") {
		t.Errorf("note encoding = %q, want note1 prefix", note)
	}
	decoded, err := DecodeNote(note)
	if err != nil {
		t.Fatalf("DecodeNote failed: %v", err)
	}
	if hex.EncodeToString(decoded) != vectorPubHex {
		t.Errorf("round trip lost data: got %x", decoded)
	}
}

func TestEncodeNpubHex(t *testing.T) {
	npub, err := EncodeNpubHex(vectorPubHex)
	if err != nil {
		t.Fatalf("EncodeNpubHex failed: %v", err)
	}
	if npub != vectorNpub {
		t.Errorf("npub mismatch\n  got:      %s\n  expected: %s", npub, vectorNpub)
	}
	if _, err := EncodeNpubHex("zz"); err == nil {
		t.Error("EncodeNpubHex accepted non-hex input")
	}
}

func TestDecodeRejectsWrongPrefix(t *testing.T) {
	// An npub must never be accepted where a secret is expected.
	if _, err := DecodeNsec(vectorNpub); err == nil {
		t.Error("DecodeNsec accepted an npub")
	}
	if _, err := DecodeNpub(vectorNsec); err == nil {
		t.Error("DecodeNpub accepted an nsec")
	}
}

func TestDecodeRejectsCorruptChecksum(t *testing.T) {
	// Flip the final character so the checksum no longer matches.
	last := vectorNpub[len(vectorNpub)-1]
	replacement := byte('q')
	if last == 'q' {
		replacement = 'p'
	}
	corrupt := vectorNpub[:len(vectorNpub)-1] + string(replacement)
	if _, err := DecodeNpub(corrupt); err == nil {
		t.Error("DecodeNpub accepted a corrupt checksum")
	}
}

func TestEncodeRejectsWrongLength(t *testing.T) {
	if _, err := EncodeNpub(make([]byte, 31)); err == nil {
		t.Error("EncodeNpub accepted a short key")
	}
	if _, err := EncodeNsec(make([]byte, 33)); err == nil {
		t.Error("EncodeNsec accepted a long key")
	}
}

func TestDecodeAcceptsUppercase(t *testing.T) {
	decoded, err := DecodeNpub(strings.ToUpper(vectorNpub))
	if err != nil {
		t.Fatalf("DecodeNpub rejected uppercase input: %v", err)
	}
	if hex.EncodeToString(decoded) != vectorPubHex {
		t.Errorf("uppercase decode mismatch: got %x", decoded)
	}
}
