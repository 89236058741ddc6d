// Package proxyclient talks to the backend proxy that runs read-only contract
// calls and payload encoding on behalf of browser-less clients.
package proxyclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/SVOIcom/everscale-connect-backend/internal/retry"
	"github.com/SVOIcom/everscale-connect-backend/internal/tracing"
	"github.com/SVOIcom/everscale-connect-backend/pkg/address"
	"github.com/SVOIcom/everscale-connect-backend/pkg/rpc"
)

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// RequestBody is the JSON body of both proxy routes. Abi carries the ABI
// document serialized as a string.
type RequestBody struct {
	Abi   string         `json:"abi"`
	Input map[string]any `json:"input"`
}

// Envelope is the response of every proxy route.
type Envelope struct {
	Status       string          `json:"status"`
	Result       json.RawMessage `json:"result,omitempty"`
	Error        string          `json:"error,omitempty"`
	EncodedError string          `json:"encodedError,omitempty"`
}

// ExitCode extracts the TVM exit code from an encoded upstream error.
func ExitCode(encoded string) (int, bool) {
	if encoded == "" {
		return 0, false
	}
	var parsed struct {
		Data struct {
			ExitCode *int `json:"exit_code"`
		} `json:"data"`
	}
	if err := json.Unmarshal([]byte(encoded), &parsed); err != nil || parsed.Data.ExitCode == nil {
		return 0, false
	}
	return *parsed.Data.ExitCode, true
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	policy     retry.Policy
	logger     *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) { c.policy = p }
}

// New returns a client for the proxy mounted at baseURL, for example
// "https://connect.example.org/EverscaleBackendProvider".
func New(baseURL string, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		policy:     retry.DefaultPolicy,
		logger:     logger.With("component", "proxy_client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunLocal executes method locally on the contract at addr in network.
func (c *Client) RunLocal(ctx context.Context, network string, addr address.Address, method, abiJSON string, input map[string]any) (map[string]any, error) {
	endpoint := c.baseURL + "/runLocal/" + url.PathEscape(network) + "/" + url.PathEscape(addr.String()) + "/" + url.PathEscape(method)
	raw, err := c.post(ctx, "runLocal", endpoint, abiJSON, input)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode runLocal result: %w", err)
	}
	return out, nil
}

// Payload encodes an internal message body calling method with input.
func (c *Client) Payload(ctx context.Context, network, method, abiJSON string, input map[string]any) (string, error) {
	endpoint := c.baseURL + "/payload/" + url.PathEscape(network) + "/" + url.PathEscape(method)
	raw, err := c.post(ctx, "payload", endpoint, abiJSON, input)
	if err != nil {
		return "", err
	}
	var body string
	if err := json.Unmarshal(raw, &body); err != nil {
		return "", fmt.Errorf("decode payload result: %w", err)
	}
	return body, nil
}

func (c *Client) post(ctx context.Context, op, endpoint, abiJSON string, input map[string]any) (json.RawMessage, error) {
	if input == nil {
		input = map[string]any{}
	}
	body, err := json.Marshal(RequestBody{Abi: abiJSON, Input: input})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return retry.Do(ctx, c.policy, c.logger, op, func() (json.RawMessage, error) {
		return c.do(ctx, op, endpoint, body)
	})
}

func (c *Client) do(ctx context.Context, op, endpoint string, body []byte) (json.RawMessage, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-ID", uuid.NewString())
	tracing.Inject(ctx, httpReq.Header)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &rpc.UpstreamError{Op: op, Message: err.Error(), Transient: true, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &rpc.UpstreamError{Op: op, Message: "read response: " + err.Error(), Transient: true, Err: err}
	}

	var env Envelope
	if err := json.Unmarshal(respBody, &env); err != nil || env.Status == "" {
		msg := fmt.Sprintf("http status %d: %s", resp.StatusCode, string(respBody))
		return nil, &rpc.UpstreamError{Op: op, Message: msg, Transient: resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests}
	}
	if env.Status == StatusError {
		if code, ok := ExitCode(env.EncodedError); ok {
			return nil, &rpc.UpstreamError{Op: op, Message: env.Error, Encoded: env.EncodedError, Err: &rpc.TvmException{Code: code}}
		}
		return nil, &rpc.UpstreamError{
			Op:        op,
			Message:   env.Error,
			Encoded:   env.EncodedError,
			Transient: resp.StatusCode == http.StatusTooManyRequests,
		}
	}
	return env.Result, nil
}
