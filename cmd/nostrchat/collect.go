package main

import (
	"nostrchat/internal/nostr"
	"nostrchat/internal/pool"
	"nostrchat/internal/views"
)

// collectUntilIdle drains an aggregate subscription into ingest until
// the loading gate opens, then returns. The EOSE signal opens the gate
// early; otherwise the gate's own timeout ends collection.
func collectUntilIdle(sub *pool.MultiSubscription, gate *views.LoadingGate, ingest func(nostr.Event) bool) {
	for {
		select {
		case evt, ok := <-sub.Events:
			if !ok {
				return
			}
			ingest(evt)
		case <-sub.EOSE:
			gate.SignalEOSE()
		case <-gate.Idle():
			// Drain whatever is already buffered before rendering.
			for {
				select {
				case evt, ok := <-sub.Events:
					if !ok {
						return
					}
					ingest(evt)
				default:
					return
				}
			}
		}
	}
}
