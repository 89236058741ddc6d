package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// HTTPTransport speaks JSON-RPC 2.0 over plain HTTP POST requests.
type HTTPTransport struct {
	httpClient *http.Client
	url        string
	requestID  atomic.Int64
	logger     *slog.Logger
}

func NewHTTPTransport(url string, logger *slog.Logger) *HTTPTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPTransport{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		url:        url,
		logger:     logger.With("component", "rpc_http"),
	}
}

// WithHTTPClient replaces the underlying client.
func (t *HTTPTransport) WithHTTPClient(c *http.Client) *HTTPTransport {
	t.httpClient = c
	return t
}

func (t *HTTPTransport) Request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	req := request{
		JSONRPC: "2.0",
		ID:      t.requestID.Add(1),
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http status %d: %s", resp.StatusCode, string(respBody))
	}

	var rpcResp response
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	if rpcResp.Error != nil {
		t.logger.Debug("rpc error", "method", method, "code", rpcResp.Error.Code, "message", rpcResp.Error.Message)
		return nil, rpcResp.Error
	}

	return rpcResp.Result, nil
}
