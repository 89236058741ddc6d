package everclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SVOIcom/everscale-connect-backend/internal/circuitbreaker"
	"github.com/SVOIcom/everscale-connect-backend/internal/retry"
	"github.com/SVOIcom/everscale-connect-backend/pkg/address"
)

const (
	testNetwork = "eri01.main.everos.dev"
	testAddr    = "0:388820c348e6b2a5e38c8c8f1bf4088cdc384fc67219bd064f60c7d8d1092eb1"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonHTTPResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type bridgeCall struct {
	Method  string
	Network string
	Params  map[string]any
}

// fakeBridge answers SDK functions from a table. A value of type *SDKError
// is returned as the JSON-RPC error.
type fakeBridge struct {
	t       *testing.T
	mu      sync.Mutex
	calls   []bridgeCall
	answers map[string]any
}

func (b *fakeBridge) roundTrip(r *http.Request) (*http.Response, error) {
	var req struct {
		ID     int64  `json:"id"`
		Method string `json:"method"`
		Params struct {
			Network string         `json:"network"`
			Params  map[string]any `json:"params"`
		} `json:"params"`
	}
	require.NoError(b.t, json.NewDecoder(r.Body).Decode(&req))

	b.mu.Lock()
	b.calls = append(b.calls, bridgeCall{Method: req.Method, Network: req.Params.Network, Params: req.Params.Params})
	answer := b.answers[req.Method]
	b.mu.Unlock()

	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	switch v := answer.(type) {
	case *SDKError:
		resp["error"] = v
	case string:
		resp["result"] = json.RawMessage(v)
	default:
		resp["result"] = json.RawMessage(`{}`)
	}
	raw, err := json.Marshal(resp)
	require.NoError(b.t, err)
	return jsonHTTPResponse(http.StatusOK, string(raw)), nil
}

func (b *fakeBridge) methods() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.calls))
	for _, c := range b.calls {
		out = append(out, c.Method)
	}
	return out
}

func newTestClient(t *testing.T, answers map[string]any, opts ...Option) (*Client, *fakeBridge) {
	t.Helper()
	bridge := &fakeBridge{t: t, answers: answers}
	opts = append([]Option{
		WithHTTPClient(&http.Client{Transport: roundTripFunc(bridge.roundTrip)}),
		WithRetryPolicy(retry.Policy{Attempts: 3, Delay: time.Millisecond}),
	}, opts...)
	return NewClient("http://bridge.local/rpc", testNetwork, discardLogger(), opts...), bridge
}

func TestClient_RunLocalComposesSDKCalls(t *testing.T) {
	c, bridge := newTestClient(t, map[string]any{
		"net.query_collection": `{"result":[{"boc":"te6account"}]}`,
		"abi.encode_message":   `{"message":"te6message","message_id":"m1"}`,
		"tvm.run_tvm":          `{"decoded":{"output":{"value0":"42"}}}`,
	})

	out, err := c.RunLocal(context.Background(), address.New(testAddr), `{"functions":[]}`, "getValue", map[string]any{"answerId": 0})
	require.NoError(t, err)
	assert.Equal(t, "42", out["value0"])

	assert.Equal(t, []string{"net.query_collection", "abi.encode_message", "tvm.run_tvm"}, bridge.methods())
	for _, call := range bridge.calls {
		assert.Equal(t, testNetwork, call.Network)
	}

	encode := bridge.calls[1].Params
	assert.Equal(t, testAddr, encode["address"])
	assert.Equal(t, map[string]any{"type": "None"}, encode["signer"])
	assert.Equal(t, "getValue", encode["call_set"].(map[string]any)["function_name"])

	run := bridge.calls[2].Params
	assert.Equal(t, "te6message", run["message"])
	assert.Equal(t, "te6account", run["account"])
}

func TestClient_RunLocalMissingAccount(t *testing.T) {
	c, bridge := newTestClient(t, map[string]any{
		"net.query_collection": `{"result":[]}`,
	})

	_, err := c.RunLocal(context.Background(), address.New(testAddr), "{}", "m", nil)
	assert.ErrorIs(t, err, ErrAccountNotFound)
	assert.Equal(t, []string{"net.query_collection"}, bridge.methods())
}

func TestClient_SDKErrorKeepsExitCode(t *testing.T) {
	c, bridge := newTestClient(t, map[string]any{
		"net.query_collection": `{"result":[{"boc":"te6account"}]}`,
		"abi.encode_message":   `{"message":"te6message"}`,
		"tvm.run_tvm": &SDKError{
			Code:    414,
			Message: "Contract execution was terminated with error",
			Data:    json.RawMessage(`{"exit_code":60,"phase":"computeVm"}`),
		},
	})

	_, err := c.RunLocal(context.Background(), address.New(testAddr), "{}", "m", nil)
	var sdkErr *SDKError
	require.True(t, errors.As(err, &sdkErr))
	assert.Equal(t, 414, sdkErr.Code)
	code, ok := sdkErr.ExitCode()
	assert.True(t, ok)
	assert.Equal(t, 60, code)

	// Execution failures are not retried.
	assert.Len(t, bridge.methods(), 3)
}

func TestClient_RetriesNetworkModuleErrors(t *testing.T) {
	attempts := 0
	c, _ := newTestClient(t, nil)
	c.httpClient = &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		attempts++
		if attempts < 3 {
			return jsonHTTPResponse(http.StatusOK, `{"jsonrpc":"2.0","id":1,"error":{"code":603,"message":"Query failed"}}`), nil
		}
		return jsonHTTPResponse(http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":{"body":"te6body"}}`), nil
	})}

	body, err := c.EncodeInternalBody(context.Background(), "{}", "transfer", nil)
	require.NoError(t, err)
	assert.Equal(t, "te6body", body)
	assert.Equal(t, 3, attempts)
}

func TestClient_BreakerOpensOnRepeatedTransportFailures(t *testing.T) {
	breaker := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: 2,
		OpenTimeout:      time.Hour,
		IsFailure:        func(err error) bool { return err != nil && retry.Classify(err).IsTransient() },
	})
	calls := 0
	c, _ := newTestClient(t, nil, WithBreaker(breaker), WithRetryPolicy(retry.Policy{Attempts: 1}))
	c.httpClient = &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		calls++
		return jsonHTTPResponse(http.StatusServiceUnavailable, "unavailable"), nil
	})}

	for i := 0; i < 2; i++ {
		_, err := c.EncodeInternalBody(context.Background(), "{}", "m", nil)
		require.Error(t, err)
	}
	_, err := c.EncodeInternalBody(context.Background(), "{}", "m", nil)
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.Equal(t, 2, calls)
}

func TestClient_GetAccount(t *testing.T) {
	c, bridge := newTestClient(t, map[string]any{
		"net.query_collection": `{"result":[{"id":"` + testAddr + `","acc_type":1,"balance":"1500000000","boc":"te6","code_hash":"ab","last_trans_lt":"77","last_paid":1700000000}]}`,
	})

	state, err := c.GetAccount(context.Background(), address.New(testAddr))
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, "1500000000", state.Balance)
	assert.True(t, state.IsDeployed)
	assert.Equal(t, "te6", state.Boc)
	assert.Equal(t, "77", state.LastTransactionID.Lt)
	assert.Equal(t, int64(1700000000), state.GenTimings.GenUtime)

	filter := bridge.calls[0].Params["filter"].(map[string]any)
	assert.Equal(t, map[string]any{"eq": testAddr}, filter["id"])
}

func TestClient_GetAccountMissing(t *testing.T) {
	c, _ := newTestClient(t, map[string]any{"net.query_collection": `{"result":[]}`})

	state, err := c.GetAccount(context.Background(), address.New(testAddr))
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestClient_FindAccounts(t *testing.T) {
	other := "0:00000000000000000000000000000000000000000000000000000000000000cc"
	c, bridge := newTestClient(t, map[string]any{
		"net.query_collection": `{"result":[{"id":"` + testAddr + `"},{"id":"` + other + `"}]}`,
	})

	found, err := c.FindAccounts(context.Background(), "ab12")
	require.NoError(t, err)
	assert.Equal(t, []address.Address{address.New(testAddr), address.New(other)}, found)

	filter := bridge.calls[0].Params["filter"].(map[string]any)
	assert.Equal(t, map[string]any{"eq": "ab12"}, filter["code_hash"])
	assert.Equal(t, "id", bridge.calls[0].Params["result"])
}

func TestPool_OneClientPerNetwork(t *testing.T) {
	p := NewPool(PoolConfig{BridgeURL: "http://bridge.local/rpc", RPS: 10, Burst: 5}, discardLogger())

	a := p.Get("eri01.main.everos.dev")
	b := p.Get("eri01.main.everos.dev")
	c := p.Get("eri01.net.everos.dev")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, 2, p.Len())
	assert.Equal(t, "eri01.net.everos.dev", c.(*Client).Network())
}

func TestPool_BreakerHookSeesTransitions(t *testing.T) {
	type transition struct {
		network  string
		from, to circuitbreaker.State
	}
	var (
		mu   sync.Mutex
		seen []transition
	)
	p := NewPool(PoolConfig{
		BridgeURL: "http://bridge.local/rpc",
		Retry:     retry.Policy{Attempts: 1},
		HTTPClient: &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
			return jsonHTTPResponse(http.StatusBadGateway, "bad gateway"), nil
		})},
		OnBreakerChange: func(network string, from, to circuitbreaker.State) {
			mu.Lock()
			seen = append(seen, transition{network, from, to})
			mu.Unlock()
		},
	}, discardLogger())

	sdk := p.Get(testNetwork)
	for i := 0; i < 6; i++ {
		_, _ = sdk.EncodeInternalBody(context.Background(), "{}", "m", nil)
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 1)
	assert.Equal(t, transition{testNetwork, circuitbreaker.StateClosed, circuitbreaker.StateOpen}, seen[0])
}

func TestSDKError_Temporary(t *testing.T) {
	assert.True(t, (&SDKError{Code: 607}).Temporary())
	assert.False(t, (&SDKError{Code: 414}).Temporary())
	_, ok := (&SDKError{Code: 1}).ExitCode()
	assert.False(t, ok)
}
