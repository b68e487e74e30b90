package pool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"nostrchat/internal/nostr"
)

// defaultPublishTimeout bounds how long we wait for a relay OK when the
// caller's context carries no deadline of its own.
const defaultPublishTimeout = 10 * time.Second

// RelayFailure records one relay's rejection or timeout during publish.
type RelayFailure struct {
	RelayURL string
	Reason   string
}

// PublishError aggregates every relay's failure when no relay accepted
// the event.
type PublishError struct {
	EventID  string
	Failures []RelayFailure
}

func (e *PublishError) Error() string {
	reasons := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		reasons = append(reasons, fmt.Sprintf("%s: %s", f.RelayURL, f.Reason))
	}
	return fmt.Sprintf("publish %s failed on all relays: %s", nostr.ShortID(e.EventID), strings.Join(reasons, "; "))
}

// eventFrame builds the ["EVENT", ...] wire frame. The event JSON must
// not HTML-escape <, > or &, so this goes through an Encoder with
// SetEscapeHTML(false) rather than WriteJSON.
func eventFrame(ev *nostr.Event) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(ev); err != nil {
		return nil, err
	}
	eventJSON := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
	return []byte(fmt.Sprintf(`["EVENT",%s]`, eventJSON)), nil
}

// Publish broadcasts a signed event to every relay concurrently and
// resolves as soon as one relay acknowledges acceptance. It fails only
// when all relays reject or time out, returning a *PublishError that
// carries each relay's reason. Best-effort durability, not consensus.
func (p *RelayPool) Publish(ctx context.Context, relayURLs []string, ev *nostr.Event) error {
	if len(relayURLs) == 0 {
		return &PublishError{EventID: ev.ID, Failures: []RelayFailure{{RelayURL: "", Reason: "no relays configured"}}}
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultPublishTimeout)
		defer cancel()
	}

	frame, err := eventFrame(ev)
	if err != nil {
		return err
	}

	type outcome struct {
		relayURL string
		err      error
	}
	results := make(chan outcome, len(relayURLs))

	for _, relayURL := range relayURLs {
		go func(relayURL string) {
			err := p.publishToRelay(ctx, relayURL, ev.ID, frame)
			results <- outcome{relayURL: relayURL, err: err}
		}(relayURL)
	}

	failures := make([]RelayFailure, 0, len(relayURLs))
	for range relayURLs {
		res := <-results
		if res.err == nil {
			slog.Debug("publish accepted", "relay", res.relayURL, "event_id", nostr.ShortID(ev.ID))
			return nil
		}
		failures = append(failures, RelayFailure{RelayURL: res.relayURL, Reason: res.err.Error()})
	}

	return &PublishError{EventID: ev.ID, Failures: failures}
}

// publishToRelay sends the frame on one relay and waits for its OK.
func (p *RelayPool) publishToRelay(ctx context.Context, relayURL, eventID string, frame []byte) error {
	rc, err := p.getOrCreateConn(ctx, relayURL)
	if err != nil {
		return err
	}

	waiter := make(chan publishResult, 1)
	rc.mu.Lock()
	if rc.closed {
		rc.mu.Unlock()
		return errors.New("connection closed")
	}
	rc.pendingOKs[eventID] = waiter
	rc.mu.Unlock()

	defer func() {
		rc.mu.Lock()
		delete(rc.pendingOKs, eventID)
		rc.mu.Unlock()
	}()

	rc.writeMu.Lock()
	rc.conn.SetWriteDeadline(time.Now().Add(defaultPublishTimeout))
	err = rc.conn.WriteMessage(websocket.TextMessage, frame)
	rc.conn.SetWriteDeadline(time.Time{})
	rc.writeMu.Unlock()
	if err != nil {
		return err
	}

	select {
	case res := <-waiter:
		if !res.accepted {
			reason := res.reason
			if reason == "" {
				reason = "rejected"
			}
			return errors.New(reason)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timed out waiting for OK: %w", ctx.Err())
	}
}
