package everclient

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/SVOIcom/everscale-connect-backend/internal/circuitbreaker"
	"github.com/SVOIcom/everscale-connect-backend/internal/ratelimit"
	"github.com/SVOIcom/everscale-connect-backend/internal/retry"
)

// BreakerHook is called when the breaker of a network server changes state.
type BreakerHook func(network string, from, to circuitbreaker.State)

type PoolConfig struct {
	BridgeURL       string
	RPS             float64
	Burst           int
	Retry           retry.Policy
	HTTPClient      *http.Client
	OnBreakerChange BreakerHook
}

// Pool keeps one Client per network server, each with its own limiter and
// breaker.
type Pool struct {
	cfg    PoolConfig
	logger *slog.Logger

	mu      sync.Mutex
	clients map[string]*Client
}

var _ Factory = (*Pool)(nil)

func NewPool(cfg PoolConfig, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Retry.Attempts == 0 {
		cfg.Retry = retry.DefaultPolicy
	}
	return &Pool{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[string]*Client),
	}
}

func (p *Pool) Get(network string) SDK {
	return p.client(network)
}

func (p *Pool) client(network string) *Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[network]; ok {
		return c
	}
	opts := []Option{
		WithLimiter(ratelimit.NewLimiter(p.cfg.RPS, p.cfg.Burst, network)),
		WithRetryPolicy(p.cfg.Retry),
		WithBreaker(newBreaker(network, p.cfg.OnBreakerChange)),
	}
	if p.cfg.HTTPClient != nil {
		opts = append(opts, WithHTTPClient(p.cfg.HTTPClient))
	}
	c := NewClient(p.cfg.BridgeURL, network, p.logger, opts...)
	p.clients[network] = c
	p.logger.Info("sdk client created", "network", network)
	return c
}

// Len reports how many network servers have a client.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}
