package nostr

import (
	"encoding/json"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
)

func signedEvent(t *testing.T, kind int, tags [][]string, content string) Event {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	ev := Event{
		CreatedAt: 1756700000,
		Kind:      kind,
		Tags:      tags,
		Content:   content,
	}
	if err := Sign(&ev, priv); err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	return ev
}

func TestSignThenVerify(t *testing.T) {
	ev := signedEvent(t, KindTextNote, [][]string{{"t", "test"}}, "hello relay")
	if !Verify(&ev) {
		t.Fatal("freshly signed event failed verification")
	}
	if len(ev.ID) != 64 || len(ev.Sig) != 128 || len(ev.PubKey) != 64 {
		t.Errorf("unexpected field lengths: id=%d sig=%d pubkey=%d", len(ev.ID), len(ev.Sig), len(ev.PubKey))
	}
}

// flipLastHex replaces the final hex digit with a different one.
func flipLastHex(s string) string {
	last := byte('0')
	if s[len(s)-1] == '0' {
		last = '1'
	}
	return s[:len(s)-1] + string(last)
}

func TestVerifyRejectsMutation(t *testing.T) {
	base := signedEvent(t, KindTextNote, [][]string{{"p", "aa"}}, "immutable")

	mutations := map[string]func(ev *Event){
		"content":    func(ev *Event) { ev.Content = "tampered" },
		"kind":       func(ev *Event) { ev.Kind = KindEncryptedDM },
		"created_at": func(ev *Event) { ev.CreatedAt++ },
		"tags":       func(ev *Event) { ev.Tags = append(ev.Tags, []string{"e", "bb"}) },
		"pubkey":     func(ev *Event) { ev.PubKey = flipLastHex(ev.PubKey) },
		"id":         func(ev *Event) { ev.ID = flipLastHex(ev.ID) },
		"sig":        func(ev *Event) { ev.Sig = flipLastHex(ev.Sig) },
	}
	for name, mutate := range mutations {
		ev := base
		ev.Tags = append([][]string(nil), base.Tags...)
		mutate(&ev)
		if Verify(&ev) {
			t.Errorf("verification passed after mutating %s", name)
		}
	}
}

func TestComputeEventIDStability(t *testing.T) {
	ev := Event{
		PubKey:    "bbde6a0e8847e1cdb2ba5ec021cc949eb3cef125b8304a748fe11c0407990eec",
		CreatedAt: 1764783557,
		Kind:      KindTextNote,
		Tags:      [][]string{{"t", "greeting"}},
		Content:   `content with <angle brackets> & ampersand`,
	}
	first := ComputeEventID(&ev)

	// The ID must survive a JSON round trip of the event fields,
	// including characters that encoding/json would HTML-escape by
	// default.
	raw, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var parsed Event
	if err := json.Unmarshal(raw, &parsed); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	second := ComputeEventID(&parsed)
	if first != second {
		t.Errorf("ID changed across JSON round trip\n  before: %s\n  after:  %s", first, second)
	}
}

func TestComputeEventIDNilTags(t *testing.T) {
	withNil := Event{PubKey: "aa", CreatedAt: 1, Kind: 1, Content: "x"}
	withEmpty := Event{PubKey: "aa", CreatedAt: 1, Kind: 1, Tags: [][]string{}, Content: "x"}

	idNil := ComputeEventID(&withNil)
	idEmpty := ComputeEventID(&withEmpty)
	if idNil != idEmpty {
		t.Error("nil and empty tag lists should canonicalize identically")
	}
}

func TestParseEventFromInterface(t *testing.T) {
	raw := map[string]interface{}{
		"id":         "abc",
		"pubkey":     "def",
		"created_at": float64(1756700000),
		"kind":       float64(42),
		"tags":       []interface{}{[]interface{}{"e", "root-id", "", "root"}},
		"content":    "hi",
		"sig":        "0011",
	}
	ev, ok := ParseEventFromInterface(raw)
	if !ok {
		t.Fatal("ParseEventFromInterface rejected a well-formed event")
	}
	if ev.Kind != 42 || ev.CreatedAt != 1756700000 || ev.Content != "hi" {
		t.Errorf("fields not carried over: %+v", ev)
	}
	if got := ev.FirstTagValue("e"); got != "root-id" {
		t.Errorf("FirstTagValue(e) = %q, want root-id", got)
	}
	if got := ev.FirstTagValue("p"); got != "" {
		t.Errorf("FirstTagValue(p) = %q, want empty", got)
	}
}
