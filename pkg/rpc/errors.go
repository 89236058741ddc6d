package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrProviderNotFound        = errors.New("everscale provider was not found")
	ErrProviderNotInitialized  = errors.New("everscale provider was not initialized yet")
	ErrInsufficientPermissions = errors.New("insufficient permissions")
)

// TvmException reports a local contract execution that ended with a
// non-zero exit code or produced no output.
type TvmException struct {
	Code int
}

func (e *TvmException) Error() string {
	return fmt.Sprintf("TvmException: %d", e.Code)
}

// UnsupportedOperationError is returned by provider variants for operations
// they do not implement.
type UnsupportedOperationError struct {
	Provider string
	Op       string
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("%s: %s is not supported", e.Provider, e.Op)
}

// UpstreamError wraps a failed call to a wallet runtime, the chain SDK or the
// backend proxy. Encoded holds the serialized cause as received. Transient is
// set for transport failures that are worth retrying.
type UpstreamError struct {
	Op        string
	Message   string
	Encoded   string
	Transient bool
	Err       error
}

func (e *UpstreamError) Error() string {
	if e.Op == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is an UpstreamError marked transient.
func IsTransient(err error) bool {
	var upstream *UpstreamError
	return errors.As(err, &upstream) && upstream.Transient
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// classify turns a JSON-RPC error into the typed error callers inspect.
func classify(method string, rpcErr *Error) error {
	if strings.Contains(strings.ToLower(rpcErr.Message), "insufficient permissions") {
		return fmt.Errorf("%s: %w", method, ErrInsufficientPermissions)
	}
	encoded, _ := json.Marshal(rpcErr)
	return &UpstreamError{
		Op:      method,
		Message: rpcErr.Message,
		Encoded: string(encoded),
		Err:     rpcErr,
	}
}

func transportError(method string, err error) error {
	return &UpstreamError{
		Op:        method,
		Message:   err.Error(),
		Transient: true,
		Err:       err,
	}
}
