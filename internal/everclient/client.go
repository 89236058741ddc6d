// Package everclient calls the chain SDK through a JSON-RPC bridge. Method
// names are SDK function names such as "tvm.run_tvm"; every request carries
// the network server it targets.
package everclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/SVOIcom/everscale-connect-backend/internal/circuitbreaker"
	"github.com/SVOIcom/everscale-connect-backend/internal/metrics"
	"github.com/SVOIcom/everscale-connect-backend/internal/ratelimit"
	"github.com/SVOIcom/everscale-connect-backend/internal/retry"
	"github.com/SVOIcom/everscale-connect-backend/internal/tracing"
)

// SDKError is an error reported by the chain SDK. It marshals to the same
// {code, message, data} shape the SDK produces.
type SDKError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *SDKError) Error() string {
	return e.Message
}

// ExitCode returns the TVM exit code carried in data, if any.
func (e *SDKError) ExitCode() (int, bool) {
	if len(e.Data) == 0 {
		return 0, false
	}
	var data struct {
		ExitCode *int `json:"exit_code"`
	}
	if err := json.Unmarshal(e.Data, &data); err != nil || data.ExitCode == nil {
		return 0, false
	}
	return *data.ExitCode, true
}

// Temporary reports network module failures (codes 6xx).
func (e *SDKError) Temporary() bool {
	return e.Code >= 600 && e.Code < 700
}

type bridgeRequest struct {
	JSONRPC string       `json:"jsonrpc"`
	ID      int64        `json:"id"`
	Method  string       `json:"method"`
	Params  bridgeParams `json:"params"`
}

type bridgeParams struct {
	Network string `json:"network"`
	Params  any    `json:"params"`
}

type bridgeResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *SDKError       `json:"error,omitempty"`
}

// Client is bound to one network server.
type Client struct {
	httpClient *http.Client
	bridgeURL  string
	network    string
	requestID  atomic.Int64
	limiter    *ratelimit.Limiter
	breaker    *circuitbreaker.Breaker
	policy     retry.Policy
	logger     *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithLimiter(l *ratelimit.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

func WithBreaker(b *circuitbreaker.Breaker) Option {
	return func(c *Client) { c.breaker = b }
}

func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) { c.policy = p }
}

func NewClient(bridgeURL, network string, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		bridgeURL:  bridgeURL,
		network:    network,
		policy:     retry.DefaultPolicy,
		logger:     logger.With("component", "everclient", "network", network),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.limiter == nil {
		c.limiter = ratelimit.NewLimiter(0, 1, network)
	}
	if c.breaker == nil {
		c.breaker = newBreaker(network, nil)
	}
	return c
}

// newBreaker trips on transient upstream failures only. onChange, when set,
// observes every state transition after the metric is updated.
func newBreaker(network string, onChange BreakerHook) *circuitbreaker.Breaker {
	return circuitbreaker.New(circuitbreaker.Config{
		IsFailure: func(err error) bool {
			return err != nil && retry.Classify(err).IsTransient()
		},
		OnStateChange: func(from, to circuitbreaker.State) {
			metrics.UpstreamBreakerState.WithLabelValues(network).Set(float64(to))
			if onChange != nil {
				onChange(network, from, to)
			}
		},
	})
}

func (c *Client) Network() string {
	return c.network
}

// call invokes one SDK function and decodes its result into out.
func (c *Client) call(ctx context.Context, fn string, params, out any) error {
	start := time.Now()
	raw, err := retry.Do(ctx, c.policy, c.logger, fn, func() (json.RawMessage, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		var raw json.RawMessage
		err := c.breaker.Do(func() error {
			var err error
			raw, err = c.post(ctx, fn, params)
			return err
		})
		return raw, err
	})
	metrics.UpstreamLatency.WithLabelValues(c.network, fn).Observe(time.Since(start).Seconds())
	metrics.UpstreamCallsTotal.WithLabelValues(c.network, fn, callStatus(err)).Inc()
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode %s result: %w", fn, err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, fn string, params any) (json.RawMessage, error) {
	body, err := json.Marshal(bridgeRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  fn,
		Params:  bridgeParams{Network: c.network, Params: params},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.bridgeURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-ID", uuid.NewString())
	tracing.Inject(ctx, httpReq.Header)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, retry.Transient(fmt.Errorf("http request: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, retry.Transient(fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http status %d: %s", resp.StatusCode, string(respBody))
	}

	var bridgeResp bridgeResponse
	if err := json.Unmarshal(respBody, &bridgeResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if bridgeResp.Error != nil {
		return nil, bridgeResp.Error
	}
	return bridgeResp.Result, nil
}

func callStatus(err error) string {
	var sdkErr *SDKError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		return "circuit_open"
	case errors.As(err, &sdkErr):
		return "sdk_error"
	case retry.Classify(err).IsTransient():
		return "transient"
	default:
		return "error"
	}
}
