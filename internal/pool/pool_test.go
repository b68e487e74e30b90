package pool

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"nostrchat/internal/nostr"
)

// fakeRelay is an in-process relay speaking just enough of the wire
// protocol for the pool: REQ answered with stored events plus EOSE,
// EVENT answered with an OK frame.
type fakeRelay struct {
	srv           *httptest.Server
	stored        []nostr.Event
	acceptPublish bool
	rejectReason  string
}

func newFakeRelay(t *testing.T, stored []nostr.Event, acceptPublish bool, rejectReason string) *fakeRelay {
	t.Helper()
	fr := &fakeRelay{stored: stored, acceptPublish: acceptPublish, rejectReason: rejectReason}
	upgrader := websocket.Upgrader{}

	fr.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			var msg []interface{}
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if len(msg) < 2 {
				continue
			}
			switch msg[0] {
			case "REQ":
				subID, _ := msg[1].(string)
				for _, evt := range fr.stored {
					conn.WriteJSON([]interface{}{"EVENT", subID, evt})
				}
				conn.WriteJSON([]interface{}{"EOSE", subID})
			case "EVENT":
				evt, ok := msg[1].(map[string]interface{})
				if !ok {
					continue
				}
				eventID, _ := evt["id"].(string)
				conn.WriteJSON([]interface{}{"OK", eventID, fr.acceptPublish, fr.rejectReason})
			case "CLOSE":
				// nothing to do
			}
		}
	}))
	t.Cleanup(fr.srv.Close)
	return fr
}

func (fr *fakeRelay) url() string {
	return "ws" + strings.TrimPrefix(fr.srv.URL, "http")
}

func storedEvent(id, content string) nostr.Event {
	return nostr.Event{
		ID:        id,
		PubKey:    "aa11",
		CreatedAt: 1756700000,
		Kind:      nostr.KindTextNote,
		Tags:      [][]string{},
		Content:   content,
		Sig:       "bb22",
	}
}

func TestValidateRelayURL(t *testing.T) {
	valid := []string{"wss://relay.damus.io", "ws://127.0.0.1:8080", "wss://relay.example/path"}
	for _, u := range valid {
		if err := validateRelayURL(u); err != nil {
			t.Errorf("validateRelayURL(%q) = %v, want nil", u, err)
		}
	}
	invalid := []string{"https://relay.damus.io", "relay.damus.io", "wss://", ""}
	for _, u := range invalid {
		if err := validateRelayURL(u); err == nil {
			t.Errorf("validateRelayURL(%q) accepted", u)
		}
	}
}

func TestSubscribeDeliversStoredEventsAndEOSE(t *testing.T) {
	relay := newFakeRelay(t, []nostr.Event{storedEvent("e1", "one"), storedEvent("e2", "two")}, true, "")
	p := New()
	defer p.Close()

	sub, err := p.Subscribe(context.Background(), relay.url(), "test-sub", nostr.Filter{Kinds: []int{nostr.KindTextNote}})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer p.Unsubscribe(sub)

	var got []string
	deadline := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case evt := <-sub.EventChan:
			got = append(got, evt.Content)
			if len(evt.RelaysSeen) != 1 || evt.RelaysSeen[0] != relay.url() {
				t.Errorf("RelaysSeen = %v, want [%s]", evt.RelaysSeen, relay.url())
			}
		case <-deadline:
			t.Fatalf("timed out after %d events", len(got))
		}
	}

	select {
	case <-sub.EOSEChan:
	case <-time.After(2 * time.Second):
		t.Fatal("no EOSE received")
	}
}

func TestSubscribeManyPreservesCrossRelayDuplicates(t *testing.T) {
	evt := storedEvent("same-id", "dup")
	relayA := newFakeRelay(t, []nostr.Event{evt}, true, "")
	relayB := newFakeRelay(t, []nostr.Event{evt}, true, "")
	p := New()
	defer p.Close()

	sub := p.SubscribeMany(context.Background(), []string{relayA.url(), relayB.url()}, nostr.Filter{Kinds: []int{nostr.KindTextNote}}, EOSEAll)
	defer sub.Close()

	select {
	case <-sub.EOSE:
	case <-time.After(2 * time.Second):
		t.Fatal("aggregate EOSE never fired with EOSEAll")
	}

	// The same event from two relays comes through twice; dedup is the
	// reconciler's job, not the pool's.
	count := 0
	drain := time.After(500 * time.Millisecond)
	for count < 2 {
		select {
		case <-sub.Events:
			count++
		case <-drain:
			t.Fatalf("got %d copies, want 2", count)
		}
	}
}

func TestSubscribeManySkipsDeadRelay(t *testing.T) {
	relay := newFakeRelay(t, []nostr.Event{storedEvent("e1", "alive")}, true, "")
	p := New()
	defer p.Close()

	// Port 1 refuses connections; the aggregate must still settle.
	sub := p.SubscribeMany(context.Background(), []string{"ws://127.0.0.1:1", relay.url()}, nostr.Filter{}, EOSEAll)
	defer sub.Close()

	select {
	case evt := <-sub.Events:
		if evt.Content != "alive" {
			t.Errorf("unexpected event %q", evt.Content)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("healthy relay's events not delivered")
	}

	select {
	case <-sub.EOSE:
	case <-time.After(2 * time.Second):
		t.Fatal("EOSE never fired when one relay was down")
	}
}

func TestSubscribeManyCloseIdempotent(t *testing.T) {
	relay := newFakeRelay(t, nil, true, "")
	p := New()
	defer p.Close()

	sub := p.SubscribeMany(context.Background(), []string{relay.url()}, nostr.Filter{}, EOSEFirst)
	sub.Close()
	sub.Close()
}

func TestPublishFirstAcceptWins(t *testing.T) {
	rejectA := newFakeRelay(t, nil, false, "blocked: spam")
	accept := newFakeRelay(t, nil, true, "")
	rejectB := newFakeRelay(t, nil, false, "rate-limited")
	p := New()
	defer p.Close()

	ev := storedEvent("pub-1", "out")
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	err := p.Publish(ctx, []string{rejectA.url(), accept.url(), rejectB.url()}, &ev)
	if err != nil {
		t.Fatalf("Publish failed despite one accepting relay: %v", err)
	}
}

func TestPublishAllRejectAggregatesReasons(t *testing.T) {
	rejectA := newFakeRelay(t, nil, false, "blocked: spam")
	rejectB := newFakeRelay(t, nil, false, "rate-limited")
	rejectC := newFakeRelay(t, nil, false, "pow required")
	p := New()
	defer p.Close()

	ev := storedEvent("pub-2", "out")
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	err := p.Publish(ctx, []string{rejectA.url(), rejectB.url(), rejectC.url()}, &ev)
	if err == nil {
		t.Fatal("Publish succeeded with all relays rejecting")
	}

	pubErr, ok := err.(*PublishError)
	if !ok {
		t.Fatalf("error type = %T, want *PublishError", err)
	}
	if len(pubErr.Failures) != 3 {
		t.Errorf("got %d failures, want 3", len(pubErr.Failures))
	}
	msg := err.Error()
	for _, reason := range []string{"blocked: spam", "rate-limited", "pow required"} {
		if !strings.Contains(msg, reason) {
			t.Errorf("aggregate error missing reason %q: %s", reason, msg)
		}
	}
}

func TestPublishNoRelays(t *testing.T) {
	p := New()
	defer p.Close()

	ev := storedEvent("pub-3", "out")
	err := p.Publish(context.Background(), nil, &ev)
	if _, ok := err.(*PublishError); !ok {
		t.Fatalf("error = %v, want *PublishError", err)
	}
}

func TestUnsubscribeIdempotent(t *testing.T) {
	relay := newFakeRelay(t, nil, true, "")
	p := New()
	defer p.Close()

	sub, err := p.Subscribe(context.Background(), relay.url(), "once", nostr.Filter{})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	p.Unsubscribe(sub)
	p.Unsubscribe(sub)

	select {
	case <-sub.Done:
	default:
		t.Error("Done not closed after Unsubscribe")
	}
}

func TestConnectionSharedAcrossSubscriptions(t *testing.T) {
	relay := newFakeRelay(t, nil, true, "")
	p := New()
	defer p.Close()

	subA, err := p.Subscribe(context.Background(), relay.url(), "a", nostr.Filter{})
	if err != nil {
		t.Fatalf("Subscribe a: %v", err)
	}
	subB, err := p.Subscribe(context.Background(), relay.url(), "b", nostr.Filter{})
	if err != nil {
		t.Fatalf("Subscribe b: %v", err)
	}
	defer p.Unsubscribe(subA)
	defer p.Unsubscribe(subB)

	if got := p.ConnectionCount(); got != 1 {
		t.Errorf("ConnectionCount = %d, want 1 (pooled per URL)", got)
	}
}

func TestCloseRelayTearsDownSubscriptions(t *testing.T) {
	relay := newFakeRelay(t, nil, true, "")
	p := New()
	defer p.Close()

	sub, err := p.Subscribe(context.Background(), relay.url(), "doomed", nostr.Filter{})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	p.CloseRelay(relay.url())

	select {
	case <-sub.Done:
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not torn down when its relay was closed")
	}
	if got := p.ConnectionCount(); got != 0 {
		t.Errorf("ConnectionCount = %d, want 0", got)
	}
}
