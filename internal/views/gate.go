package views

import (
	"sync"
	"time"
)

// Bounds on how long a view shows its loading state before giving up
// and rendering whatever has arrived. Late events still apply.
const (
	ChatLoadTimeout    = 2 * time.Second
	ListingLoadTimeout = 3500 * time.Millisecond
)

// LoadingGate turns a subscription's end-of-stored-events signal into a
// bounded loading state. The gate opens on the first EOSE or when the
// timeout fires, whichever comes first; it never re-closes.
type LoadingGate struct {
	idle  chan struct{}
	once  sync.Once
	timer *time.Timer
}

// NewLoadingGate starts a gate that opens after at most timeout.
func NewLoadingGate(timeout time.Duration) *LoadingGate {
	g := &LoadingGate{idle: make(chan struct{})}
	g.timer = time.AfterFunc(timeout, g.open)
	return g
}

func (g *LoadingGate) open() {
	g.once.Do(func() { close(g.idle) })
}

// SignalEOSE opens the gate early. Safe to call more than once and
// after the timeout.
func (g *LoadingGate) SignalEOSE() {
	g.timer.Stop()
	g.open()
}

// Idle returns a channel closed when loading ends.
func (g *LoadingGate) Idle() <-chan struct{} {
	return g.idle
}

// Loading reports whether the gate is still closed.
func (g *LoadingGate) Loading() bool {
	select {
	case <-g.idle:
		return false
	default:
		return true
	}
}
