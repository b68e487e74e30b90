// Package pool manages connections to multiple untrusted relays behind
// a single subscribe/publish interface. Connections are pooled per URL
// and shared by all subscriptions; one relay failing never aborts work
// against the others.
package pool

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"nostrchat/internal/nostr"
)

// ErrConnectionFailed wraps relay dial/handshake failures.
var ErrConnectionFailed = errors.New("relay connection failed")

// validateRelayURL accepts ws:// and wss:// URLs with a host.
func validateRelayURL(relayURL string) error {
	parsed, err := url.Parse(relayURL)
	if err != nil {
		return err
	}
	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return errors.New("relay URL must use ws or wss scheme")
	}
	if parsed.Hostname() == "" {
		return errors.New("relay URL missing host")
	}
	return nil
}

// Subscription is an active subscription on a single relay connection.
type Subscription struct {
	ID        string
	RelayURL  string
	EventChan chan nostr.Event
	EOSEChan  chan bool
	Done      chan struct{}
	closeOnce sync.Once
}

// markDone closes the Done channel exactly once.
func (s *Subscription) markDone() {
	s.closeOnce.Do(func() {
		close(s.Done)
	})
}

type publishResult struct {
	accepted bool
	reason   string
}

// RelayConn manages a single websocket connection with multiple
// subscriptions and pending publish acknowledgements.
type RelayConn struct {
	conn          *websocket.Conn
	relayURL      string
	mu            sync.Mutex
	writeMu       sync.Mutex
	subscriptions map[string]*Subscription
	pendingOKs    map[string]chan publishResult // event ID -> waiter
	closed        bool
	lastActivity  time.Time
}

// RelayPool manages connections to multiple relays. Construct one with
// New and pass it by reference to everything that needs relay access;
// there is deliberately no package-level instance.
type RelayPool struct {
	mu          sync.RWMutex
	connections map[string]*RelayConn // relayURL -> connection
	closed      bool
	stop        chan struct{}
}

// New creates a connection pool and starts its idle-connection reaper.
func New() *RelayPool {
	pool := &RelayPool{
		connections: make(map[string]*RelayConn),
		stop:        make(chan struct{}),
	}
	go pool.cleanupLoop()
	return pool
}

// getOrCreateConn gets an existing connection or dials a new one.
func (p *RelayPool) getOrCreateConn(ctx context.Context, relayURL string) (*RelayConn, error) {
	if err := validateRelayURL(relayURL); err != nil {
		return nil, err
	}

	p.mu.RLock()
	rc := p.connections[relayURL]
	p.mu.RUnlock()

	if rc != nil && !rc.isClosed() {
		return rc, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Double-check after acquiring write lock
	rc = p.connections[relayURL]
	if rc != nil && !rc.isClosed() {
		return rc, nil
	}

	slog.Debug("pool: creating new connection", "relay", relayURL)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, relayURL, nil)
	if err != nil {
		return nil, errors.Join(ErrConnectionFailed, err)
	}

	rc = &RelayConn{
		conn:          conn,
		relayURL:      relayURL,
		subscriptions: make(map[string]*Subscription),
		pendingOKs:    make(map[string]chan publishResult),
		lastActivity:  time.Now(),
	}

	p.connections[relayURL] = rc

	go rc.readLoop()

	return rc, nil
}

func (rc *RelayConn) isClosed() bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.closed
}

// Subscribe opens a subscription on a single relay. The returned
// Subscription delivers matching events on EventChan, one end-of-stored
// signal per relay pass on EOSEChan, and closes Done when torn down.
func (p *RelayPool) Subscribe(ctx context.Context, relayURL, subID string, filter nostr.Filter) (*Subscription, error) {
	const maxRetries = 3
	var rc *RelayConn
	var err error
	var connected bool

	for attempt := 0; attempt < maxRetries; attempt++ {
		rc, err = p.getOrCreateConn(ctx, relayURL)
		if err != nil {
			return nil, err
		}

		rc.mu.Lock()
		if rc.closed {
			rc.mu.Unlock()
			// Connection died under us, drop it and retry
			p.mu.Lock()
			delete(p.connections, relayURL)
			p.mu.Unlock()
			continue
		}
		connected = true
		break
	}

	if !connected {
		return nil, errors.Join(ErrConnectionFailed, errors.New("failed to establish connection after retries"))
	}

	sub := &Subscription{
		ID:        subID,
		RelayURL:  relayURL,
		EventChan: make(chan nostr.Event, 100),
		EOSEChan:  make(chan bool, 1),
		Done:      make(chan struct{}),
	}

	// rc.mu is still held from the loop above
	rc.subscriptions[subID] = sub
	rc.mu.Unlock()

	req := []interface{}{"REQ", subID, filter.ToReq()}
	rc.writeMu.Lock()
	err = rc.conn.WriteJSON(req)
	rc.writeMu.Unlock()

	if err != nil {
		rc.mu.Lock()
		delete(rc.subscriptions, subID)
		rc.mu.Unlock()
		rc.markClosed()
		return nil, errors.Join(ErrConnectionFailed, err)
	}

	rc.touch()
	return sub, nil
}

// Unsubscribe sends CLOSE and stops event delivery. Safe to call more
// than once.
func (p *RelayPool) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	p.mu.RLock()
	rc := p.connections[sub.RelayURL]
	p.mu.RUnlock()

	if rc == nil {
		sub.markDone()
		return
	}

	rc.mu.Lock()
	_, exists := rc.subscriptions[sub.ID]
	shouldSendClose := !rc.closed && exists
	if exists {
		delete(rc.subscriptions, sub.ID)
	}
	rc.mu.Unlock()

	// Best effort; the connection may already be gone
	if shouldSendClose {
		closeMsg := []interface{}{"CLOSE", sub.ID}
		rc.writeMu.Lock()
		rc.conn.WriteJSON(closeMsg)
		rc.writeMu.Unlock()
	}

	sub.markDone()
}

func (rc *RelayConn) touch() {
	rc.mu.Lock()
	rc.lastActivity = time.Now()
	rc.mu.Unlock()
}

// readLoop continuously reads from the connection and routes frames to
// subscriptions and publish waiters.
func (rc *RelayConn) readLoop() {
	defer rc.markClosed()

	for {
		var msg []interface{}
		err := rc.conn.ReadJSON(&msg)
		if err != nil {
			if !rc.isClosed() {
				slog.Debug("pool: read error", "relay", rc.relayURL, "error", err)
			}
			return
		}

		rc.touch()

		if len(msg) < 2 {
			continue
		}

		msgType, ok := msg[0].(string)
		if !ok {
			continue
		}

		switch msgType {
		case "EVENT":
			if len(msg) < 3 {
				continue
			}
			subID, ok := msg[1].(string)
			if !ok {
				continue
			}

			evt, ok := nostr.ParseEventFromInterface(msg[2])
			if !ok {
				continue
			}
			evt.RelaysSeen = []string{rc.relayURL}

			rc.mu.Lock()
			sub := rc.subscriptions[subID]
			rc.mu.Unlock()

			if sub != nil {
				select {
				case sub.EventChan <- evt:
				case <-sub.Done:
				default:
					// Channel full, drop event
				}
			}

		case "EOSE":
			subID, ok := msg[1].(string)
			if !ok {
				continue
			}

			rc.mu.Lock()
			sub := rc.subscriptions[subID]
			rc.mu.Unlock()

			if sub != nil {
				select {
				case sub.EOSEChan <- true:
				default:
				}
			}

		case "OK":
			// ["OK", <event-id>, <accepted>, <message>]
			eventID, ok := msg[1].(string)
			if !ok {
				continue
			}
			accepted := false
			if len(msg) >= 3 {
				accepted, _ = msg[2].(bool)
			}
			reason := ""
			if len(msg) >= 4 {
				reason, _ = msg[3].(string)
			}

			rc.mu.Lock()
			waiter := rc.pendingOKs[eventID]
			delete(rc.pendingOKs, eventID)
			rc.mu.Unlock()

			if waiter != nil {
				select {
				case waiter <- publishResult{accepted: accepted, reason: reason}:
				default:
				}
			}

		case "CLOSED":
			subID, _ := msg[1].(string)
			rc.mu.Lock()
			sub := rc.subscriptions[subID]
			if sub != nil {
				delete(rc.subscriptions, subID)
			}
			rc.mu.Unlock()
			if sub != nil {
				sub.markDone()
			}

		case "NOTICE":
			notice, _ := msg[1].(string)
			slog.Info("pool: NOTICE", "relay", rc.relayURL, "notice", notice)
		}
	}
}

// markClosed marks the connection as closed and tears down all of its
// subscriptions and publish waiters.
func (rc *RelayConn) markClosed() {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.closed {
		return
	}

	rc.closed = true
	rc.conn.Close()

	for _, sub := range rc.subscriptions {
		sub.markDone()
	}
	rc.subscriptions = make(map[string]*Subscription)

	for id, waiter := range rc.pendingOKs {
		select {
		case waiter <- publishResult{accepted: false, reason: "connection closed"}:
		default:
		}
		delete(rc.pendingOKs, id)
	}
}

// cleanupLoop periodically removes stale connections.
func (p *RelayPool) cleanupLoop() {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.cleanup()
		case <-p.stop:
			return
		}
	}
}

// cleanup removes connections that are dead or idle with no
// subscriptions.
func (p *RelayPool) cleanup() {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	for url, rc := range p.connections {
		rc.mu.Lock()
		idle := len(rc.subscriptions) == 0 && len(rc.pendingOKs) == 0 &&
			now.Sub(rc.lastActivity) > 2*time.Minute
		dead := rc.closed
		rc.mu.Unlock()

		if dead || idle {
			if !dead {
				slog.Debug("pool: closing idle connection", "relay", url)
				rc.markClosed()
			}
			delete(p.connections, url)
		}
	}
}

// CloseRelay tears down the connection to a specific relay, e.g. when
// the user removes it from the configured set.
func (p *RelayPool) CloseRelay(relayURL string) {
	p.mu.Lock()
	rc := p.connections[relayURL]
	delete(p.connections, relayURL)
	p.mu.Unlock()

	if rc != nil {
		rc.markClosed()
	}
}

// Close shuts the pool down: all connections are torn down and the
// reaper stops. The pool must not be used afterwards.
func (p *RelayPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.stop)
	conns := make([]*RelayConn, 0, len(p.connections))
	for _, rc := range p.connections {
		conns = append(conns, rc)
	}
	p.connections = make(map[string]*RelayConn)
	p.mu.Unlock()

	for _, rc := range conns {
		rc.markClosed()
	}
}

// ConnectionCount returns the number of pooled connections.
func (p *RelayPool) ConnectionCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.connections)
}
