package rpc

import (
	"context"
	"encoding/json"
)

// Transport delivers a named request with a params object to a wallet runtime
// and returns the raw result.
type Transport interface {
	Request(ctx context.Context, method string, params any) (json.RawMessage, error)
}

// Notification is an event pushed by the runtime.
type Notification struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// EventTransport is a Transport that also pushes notifications. The channel is
// closed when the transport shuts down.
type EventTransport interface {
	Transport
	Notifications() <-chan Notification
}

type Availability int

const (
	NotAvailable Availability = iota
	Available
)

func (a Availability) String() string {
	if a == Available {
		return "available"
	}
	return "not_available"
}

// Detector reports whether a compatible wallet runtime can be reached.
type Detector func(ctx context.Context) Availability

// request and response are the JSON-RPC 2.0 envelopes shared by the HTTP and
// WebSocket transports.
type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
}
