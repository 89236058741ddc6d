// Package ratelimit throttles outgoing calls to the chain SDK bridge.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/SVOIcom/everscale-connect-backend/internal/metrics"
)

// Limiter is a token bucket shared by all calls to one network server.
type Limiter struct {
	limiter *rate.Limiter
	network string
}

// NewLimiter allows rps calls per second with burst capacity. A non-positive
// rps disables limiting.
func NewLimiter(rps float64, burst int, network string) *Limiter {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiter: rate.NewLimiter(limit, burst),
		network: network,
	}
}

// Wait blocks until one token is available or ctx is done. Exactly one token
// is consumed per successful call.
func (l *Limiter) Wait(ctx context.Context) error {
	r := l.limiter.Reserve()
	if !r.OK() {
		return fmt.Errorf("rate: cannot reserve token")
	}
	delay := r.Delay()
	if delay <= 0 {
		return nil
	}
	metrics.UpstreamRateLimitWaits.WithLabelValues(l.network).Inc()
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	}
}
