package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Proxy, upstream SDK and cluster collectors, partitioned by route or network server.

var (
	// Proxy HTTP surface
	ProxyRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "everconnect",
		Subsystem: "proxy",
		Name:      "requests_total",
		Help:      "Total proxy requests by route and envelope status",
	}, []string{"route", "status"})

	ProxyRequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "everconnect",
		Subsystem: "proxy",
		Name:      "request_duration_seconds",
		Help:      "Proxy request handling duration",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"route"})

	ProxyRateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "everconnect",
		Subsystem: "proxy",
		Name:      "rate_limited_total",
		Help:      "Total requests rejected by the per-client rate limiter",
	}, []string{"route"})

	// Response cache
	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "everconnect",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total response cache hits",
	}, []string{"route"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "everconnect",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total response cache misses that triggered an upstream call",
	}, []string{"route"})

	CacheCoalesced = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "everconnect",
		Subsystem: "cache",
		Name:      "coalesced_total",
		Help:      "Total requests that joined an in-flight computation",
	}, []string{"route"})

	CacheL2Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "everconnect",
		Subsystem: "cache",
		Name:      "l2_errors_total",
		Help:      "Total failed reads or writes against the shared response store",
	}, []string{"op"})

	// Chain SDK bridge
	UpstreamCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "everconnect",
		Subsystem: "upstream",
		Name:      "calls_total",
		Help:      "Total chain SDK bridge calls by outcome",
	}, []string{"network", "method", "status"})

	UpstreamLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "everconnect",
		Subsystem: "upstream",
		Name:      "call_duration_seconds",
		Help:      "Chain SDK bridge call duration",
		Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"network", "method"})

	UpstreamRateLimitWaits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "everconnect",
		Subsystem: "upstream",
		Name:      "rate_limit_waits_total",
		Help:      "Total times upstream calls waited for the rate limiter",
	}, []string{"network"})

	UpstreamBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "everconnect",
		Subsystem: "upstream",
		Name:      "breaker_state",
		Help:      "Circuit breaker state per network server (0 closed, 1 open, 2 half-open)",
	}, []string{"network"})

	// Cluster
	WorkersAlive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "everconnect",
		Subsystem: "cluster",
		Name:      "workers_alive",
		Help:      "Current number of running worker processes",
	})

	WorkerRestartsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "everconnect",
		Subsystem: "cluster",
		Name:      "worker_restarts_total",
		Help:      "Total worker processes respawned after exit",
	})

	BroadcastsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "everconnect",
		Subsystem: "cluster",
		Name:      "broadcasts_total",
		Help:      "Total worker messages relayed to all workers",
	}, []string{"cmd"})

	// Alerts
	AlertsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "everconnect",
		Subsystem: "alert",
		Name:      "sent_total",
		Help:      "Total alerts delivered per channel",
	}, []string{"channel", "type"})

	AlertsCooldownSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "everconnect",
		Subsystem: "alert",
		Name:      "cooldown_skipped_total",
		Help:      "Total alerts suppressed by the cooldown window",
	}, []string{"channel", "type"})
)
