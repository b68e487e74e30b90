package nostr

import (
	"testing"
)

func TestFilterToReqOnlySetFields(t *testing.T) {
	since := int64(1756000000)
	f := Filter{
		Kinds:   []int{KindTextNote, KindChannelMessage},
		Authors: []string{"aa", "bb"},
		PTags:   []string{"cc"},
		Since:   &since,
		Limit:   20,
	}
	req := f.ToReq()

	for _, key := range []string{"kinds", "authors", "#p", "since", "limit"} {
		if _, ok := req[key]; !ok {
			t.Errorf("missing key %q in REQ filter", key)
		}
	}
	for _, key := range []string{"ids", "#e", "until"} {
		if _, ok := req[key]; ok {
			t.Errorf("unset key %q leaked into REQ filter", key)
		}
	}
}

func TestFilterToReqEmpty(t *testing.T) {
	req := Filter{}.ToReq()
	if len(req) != 0 {
		t.Errorf("empty filter produced %d keys: %v", len(req), req)
	}
}

func TestFilterMatches(t *testing.T) {
	since := int64(100)
	until := int64(200)
	f := Filter{
		Kinds:   []int{KindEncryptedDM},
		Authors: []string{"alice"},
		PTags:   []string{"bob"},
		Since:   &since,
		Until:   &until,
		Limit:   10,
	}

	match := Event{Kind: KindEncryptedDM, PubKey: "alice", CreatedAt: 150, Tags: [][]string{{"p", "bob"}}}
	if !f.Matches(&match) {
		t.Error("expected event to match")
	}

	cases := map[string]Event{
		"wrong kind":   {Kind: KindTextNote, PubKey: "alice", CreatedAt: 150, Tags: [][]string{{"p", "bob"}}},
		"wrong author": {Kind: KindEncryptedDM, PubKey: "carol", CreatedAt: 150, Tags: [][]string{{"p", "bob"}}},
		"wrong p tag":  {Kind: KindEncryptedDM, PubKey: "alice", CreatedAt: 150, Tags: [][]string{{"p", "dave"}}},
		"too early":    {Kind: KindEncryptedDM, PubKey: "alice", CreatedAt: 50, Tags: [][]string{{"p", "bob"}}},
		"too late":     {Kind: KindEncryptedDM, PubKey: "alice", CreatedAt: 250, Tags: [][]string{{"p", "bob"}}},
	}
	for name, ev := range cases {
		if f.Matches(&ev) {
			t.Errorf("%s: event should not match", name)
		}
	}
}
