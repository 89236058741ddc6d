package proxy

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/SVOIcom/everscale-connect-backend/internal/metrics"
	"github.com/SVOIcom/everscale-connect-backend/pkg/proxyclient"
)

const (
	// staleLimiterTTL is how long a per-IP limiter can be idle before cleanup.
	staleLimiterTTL = 10 * time.Minute

	cleanupInterval = 1 * time.Minute
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPLimiter applies one token bucket per client IP and route.
type IPLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry // key: "route|clientIP"
	rps      rate.Limit
	burst    int
	logger   *slog.Logger
	nowFunc  func() time.Time
	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewIPLimiter starts a background goroutine that evicts idle limiters.
// Call Stop to release it.
func NewIPLimiter(rps float64, burst int, logger *slog.Logger) *IPLimiter {
	if burst < 1 {
		burst = 1
	}
	l := &IPLimiter{
		limiters: make(map[string]*limiterEntry),
		rps:      rate.Limit(rps),
		burst:    burst,
		logger:   logger.With("component", "proxy_ratelimit"),
		nowFunc:  time.Now,
		stopCh:   make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// Stop is safe to call multiple times.
func (l *IPLimiter) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopCh)
	})
}

func (l *IPLimiter) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.evictStale()
		}
	}
}

func (l *IPLimiter) evictStale() {
	now := l.nowFunc()
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, entry := range l.limiters {
		if now.Sub(entry.lastSeen) > staleLimiterTTL {
			delete(l.limiters, key)
		}
	}
}

// LimiterCount returns the number of live limiter entries.
func (l *IPLimiter) LimiterCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// Wrap rejects requests over the limit with 429 and an error envelope.
func (l *IPLimiter) Wrap(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientIP := extractClientIP(r)
		limiter := l.get(route + "|" + clientIP)

		if !limiter.Allow() {
			metrics.ProxyRateLimited.WithLabelValues(route).Inc()
			retryAfter := 1
			if l.rps > 0 {
				retryAfter = int(float64(l.burst)/float64(l.rps)) + 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			writeJSON(w, http.StatusTooManyRequests, proxyclient.Envelope{
				Status: proxyclient.StatusError,
				Error:  "rate limit exceeded",
			})
			l.logger.Warn("proxy rate limit exceeded",
				"route", route,
				"path", r.URL.Path,
				"client_ip", clientIP,
			)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (l *IPLimiter) get(key string) *rate.Limiter {
	now := l.nowFunc()

	l.mu.Lock()
	defer l.mu.Unlock()

	if entry, ok := l.limiters[key]; ok {
		entry.lastSeen = now
		return entry.limiter
	}
	limiter := rate.NewLimiter(l.rps, l.burst)
	l.limiters[key] = &limiterEntry{limiter: limiter, lastSeen: now}
	return limiter
}

// extractClientIP checks X-Forwarded-For (first hop), X-Real-IP, then RemoteAddr.
func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.IndexByte(xff, ','); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
