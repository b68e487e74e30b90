package pool

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

// healthCheckTimeout caps how long a probe waits for the handshake.
const healthCheckTimeout = 5 * time.Second

// HealthStatus classifies a relay probe result.
type HealthStatus string

const (
	StatusConnected HealthStatus = "connected"
	StatusError     HealthStatus = "error"
)

// HealthReport is the outcome of probing one relay.
type HealthReport struct {
	URL       string       `json:"url"`
	LatencyMs int64        `json:"latency_ms"` // -1 on failure
	Status    HealthStatus `json:"status"`
	ErrorMsg  string       `json:"error_msg,omitempty"`
}

// CheckHealth measures time-to-open for a relay using a throwaway
// connection. Live subscriptions on the same URL are untouched: the
// probe never goes through the pool.
func CheckHealth(ctx context.Context, relayURL string) HealthReport {
	if err := validateRelayURL(relayURL); err != nil {
		return HealthReport{URL: relayURL, LatencyMs: -1, Status: StatusError, ErrorMsg: err.Error()}
	}

	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: healthCheckTimeout}

	start := time.Now()
	conn, _, err := dialer.DialContext(ctx, relayURL, nil)
	if err != nil {
		msg := err.Error()
		if ctx.Err() != nil {
			msg = "timeout"
		}
		return HealthReport{URL: relayURL, LatencyMs: -1, Status: StatusError, ErrorMsg: msg}
	}
	elapsed := time.Since(start).Milliseconds()
	conn.Close()

	return HealthReport{URL: relayURL, LatencyMs: elapsed, Status: StatusConnected}
}

// CheckAll probes every relay concurrently and returns reports in the
// same order as the input.
func CheckAll(ctx context.Context, relayURLs []string) []HealthReport {
	reports := make([]HealthReport, len(relayURLs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, relayURL := range relayURLs {
		i, relayURL := i, relayURL
		g.Go(func() error {
			reports[i] = CheckHealth(ctx, relayURL)
			return nil
		})
	}
	g.Wait()

	return reports
}
