// Package retry classifies upstream failures as transient or terminal and
// retries the transient ones.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"
	"time"

	retrygo "github.com/avast/retry-go/v4"

	"github.com/SVOIcom/everscale-connect-backend/pkg/rpc"
)

type Class string

const (
	ClassTerminal  Class = "terminal"
	ClassTransient Class = "transient"
)

type Decision struct {
	Class  Class
	Reason string
}

func (d Decision) IsTransient() bool {
	return d.Class == ClassTransient
}

type classifiedError struct {
	err    error
	class  Class
	reason string
}

func (e *classifiedError) Error() string {
	return e.err.Error()
}

func (e *classifiedError) Unwrap() error {
	return e.err
}

func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{err: err, class: ClassTransient, reason: "explicit_transient"}
}

func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{err: err, class: ClassTerminal, reason: "explicit_terminal"}
}

// Classify decides whether retrying err can help. Unknown errors are terminal.
func Classify(err error) Decision {
	if err == nil {
		return Decision{Class: ClassTerminal, Reason: "nil_error"}
	}

	var marked *classifiedError
	if errors.As(err, &marked) {
		return Decision{Class: marked.class, Reason: marked.reason}
	}

	if errors.Is(err, context.Canceled) {
		return Decision{Class: ClassTerminal, Reason: "context_canceled"}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Decision{Class: ClassTransient, Reason: "context_deadline_exceeded"}
	}

	var tvm *rpc.TvmException
	if errors.As(err, &tvm) {
		return Decision{Class: ClassTerminal, Reason: "tvm_exit_code"}
	}

	var rpcErr *rpc.Error
	if errors.As(err, &rpcErr) {
		return classifyJSONRPCCode(rpcErr.Code)
	}

	var upstream *rpc.UpstreamError
	if errors.As(err, &upstream) && upstream.Transient {
		return Decision{Class: ClassTransient, Reason: "upstream_transport"}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Decision{Class: ClassTransient, Reason: "net_timeout"}
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return Decision{Class: ClassTransient, Reason: "temporary"}
	}

	lower := strings.ToLower(err.Error())
	if containsAny(lower, terminalMessageTokens) {
		return Decision{Class: ClassTerminal, Reason: "message_terminal"}
	}
	if containsAny(lower, transientMessageTokens) {
		return Decision{Class: ClassTransient, Reason: "message_transient"}
	}

	return Decision{Class: ClassTerminal, Reason: "unknown_terminal_default"}
}

func classifyJSONRPCCode(code int) Decision {
	if code == -32603 || code == -32005 {
		return Decision{Class: ClassTransient, Reason: "jsonrpc_server_transient"}
	}
	if code <= -32000 && code >= -32099 {
		return Decision{Class: ClassTransient, Reason: "jsonrpc_server_range"}
	}
	return Decision{Class: ClassTerminal, Reason: "jsonrpc_terminal"}
}

func containsAny(msg string, tokens []string) bool {
	for _, token := range tokens {
		if strings.Contains(msg, token) {
			return true
		}
	}
	return false
}

var transientMessageTokens = []string{
	"timeout",
	"timed out",
	"temporar",
	"unavailable",
	"connection reset",
	"connection refused",
	"broken pipe",
	"econnreset",
	"econnrefused",
	"too many requests",
	"rate limit",
	"http status 429",
	"http status 502",
	"http status 503",
	"http status 504",
	"server closed idle connection",
	"network module suspended",
	"websocket disconnected",
	"query failed",
}

var terminalMessageTokens = []string{
	"invalid params",
	"invalid abi",
	"method not found",
	"parse error",
	"account not found",
	"account missing",
	"insufficient permissions",
	"not supported",
	"encode",
	"decode",
}

// Policy bounds Do.
type Policy struct {
	Attempts uint
	Delay    time.Duration
}

var DefaultPolicy = Policy{Attempts: 3, Delay: 200 * time.Millisecond}

// Do runs fn until it succeeds, returns a terminal error, or the attempts are
// used up. The last error is returned unwrapped.
func Do[T any](ctx context.Context, p Policy, logger *slog.Logger, op string, fn func() (T, error)) (T, error) {
	if p.Attempts == 0 {
		p.Attempts = 1
	}
	return retrygo.DoWithData(fn,
		retrygo.Context(ctx),
		retrygo.Attempts(p.Attempts),
		retrygo.Delay(p.Delay),
		retrygo.DelayType(retrygo.BackOffDelay),
		retrygo.LastErrorOnly(true),
		retrygo.RetryIf(func(err error) bool {
			return Classify(err).IsTransient()
		}),
		retrygo.OnRetry(func(attempt uint, err error) {
			if logger != nil {
				logger.Warn("retrying upstream call", "op", op, "attempt", attempt+1, "error", err)
			}
		}),
	)
}
