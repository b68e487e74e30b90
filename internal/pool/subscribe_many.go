package pool

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"nostrchat/internal/nostr"
)

// EOSEPolicy controls how many per-relay end-of-stored-events signals an
// aggregate subscription waits for before surfacing its single EOSE.
// Call sites name their policy explicitly; there is no global rule.
type EOSEPolicy int

// EOSEAll waits for every subscribed relay to signal (or die).
const EOSEAll EOSEPolicy = 0

// EOSEFirst fires on the first relay's signal.
const EOSEFirst EOSEPolicy = 1

// EOSECount waits for n relay signals.
func EOSECount(n int) EOSEPolicy {
	return EOSEPolicy(n)
}

// MultiSubscription aggregates one logical subscription across N
// relays. Events carries the merged stream, including duplicates seen
// on more than one relay (deduplication belongs to the reconciler).
// EOSE receives exactly one value per subscribe call, according to the
// policy; it may never fire if relays withhold the signal, so consumers
// pair it with a timeout.
type MultiSubscription struct {
	Events chan nostr.Event
	EOSE   chan struct{}

	pool      *RelayPool
	subs      []*Subscription
	subsMu    sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// SubscribeMany opens the filter against every given relay and merges
// the results. Relays that fail to connect are skipped with a log line;
// the subscription succeeds as long as the handle itself is usable.
// Close must be called to stop delivery and release relay resources.
func (p *RelayPool) SubscribeMany(ctx context.Context, relayURLs []string, filter nostr.Filter, policy EOSEPolicy) *MultiSubscription {
	m := &MultiSubscription{
		Events: make(chan nostr.Event, 256),
		EOSE:   make(chan struct{}, 1),
		pool:   p,
		done:   make(chan struct{}),
	}

	subID := "sub-" + uuid.NewString()[:8]
	eoseSignals := make(chan string, len(relayURLs))

	attached := 0
	for _, relayURL := range relayURLs {
		sub, err := p.Subscribe(ctx, relayURL, subID, filter)
		if err != nil {
			slog.Debug("subscribe failed, skipping relay", "relay", relayURL, "error", err)
			continue
		}
		attached++
		m.subsMu.Lock()
		m.subs = append(m.subs, sub)
		m.subsMu.Unlock()

		m.wg.Add(1)
		go m.forward(sub, eoseSignals)
	}

	target := int(policy)
	if target == 0 || target > attached {
		target = attached
	}

	go m.trackEOSE(eoseSignals, target)

	go func() {
		m.wg.Wait()
		close(m.Events)
	}()

	return m
}

// forward relays one subscription's traffic into the merged channels
// until the relay, the subscription or the aggregate handle goes away.
func (m *MultiSubscription) forward(sub *Subscription, eoseSignals chan<- string) {
	defer m.wg.Done()
	eoseSent := false

	for {
		select {
		case <-m.done:
			return
		case <-sub.Done:
			// A dead relay counts as drained so the EOSE policy can
			// still be met when one relay never answers.
			if !eoseSent {
				eoseSent = true
				select {
				case eoseSignals <- sub.RelayURL:
				default:
				}
			}
			return
		case evt := <-sub.EventChan:
			select {
			case m.Events <- evt:
			case <-m.done:
				return
			}
		case <-sub.EOSEChan:
			if !eoseSent {
				eoseSent = true
				select {
				case eoseSignals <- sub.RelayURL:
				default:
				}
			}
		}
	}
}

// trackEOSE fires the aggregate EOSE exactly once after target relay
// signals.
func (m *MultiSubscription) trackEOSE(eoseSignals <-chan string, target int) {
	if target <= 0 {
		// No relay attached; surface EOSE immediately so callers do
		// not hang on an empty relay set.
		select {
		case m.EOSE <- struct{}{}:
		default:
		}
		return
	}

	count := 0
	for {
		select {
		case <-m.done:
			return
		case relayURL := <-eoseSignals:
			count++
			slog.Debug("aggregate EOSE progress", "relay", relayURL, "count", count, "target", target)
			if count >= target {
				select {
				case m.EOSE <- struct{}{}:
				default:
				}
				return
			}
		}
	}
}

// Close stops delivery synchronously and releases every per-relay
// subscription. Safe to call multiple times.
func (m *MultiSubscription) Close() {
	m.closeOnce.Do(func() {
		close(m.done)
		m.subsMu.Lock()
		subs := m.subs
		m.subs = nil
		m.subsMu.Unlock()
		for _, sub := range subs {
			m.pool.Unsubscribe(sub)
		}
	})
}
