// Package contract binds an ABI and an address to a provider and exposes one
// method handle per ABI function.
package contract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/xssnick/tonutils-go/tlb"

	"github.com/SVOIcom/everscale-connect-backend/pkg/abi"
	"github.com/SVOIcom/everscale-connect-backend/pkg/address"
	"github.com/SVOIcom/everscale-connect-backend/pkg/models"
	"github.com/SVOIcom/everscale-connect-backend/pkg/rpc"
	"github.com/SVOIcom/everscale-connect-backend/pkg/subscription"
)

const DefaultResultTimeout = 60 * time.Second

var ErrUnknownMethod = errors.New("unknown contract method")

// Provider is the part of the capability surface a contract needs.
type Provider interface {
	Name() string
	RunLocal(ctx context.Context, p rpc.RunLocalParams) (*rpc.RunLocalResult, error)
	SendMessage(ctx context.Context, p rpc.MessageParams) (*models.Transaction, error)
	EstimateFees(ctx context.Context, p rpc.MessageParams) (string, error)
	SendExternalMessage(ctx context.Context, p rpc.ExternalMessageParams, unsigned bool) (*rpc.ExternalMessageResult, error)
	EncodeInternalInput(ctx context.Context, call models.FunctionCall) (string, error)
	DecodeTransaction(ctx context.Context, p rpc.DecodeTransactionParams) (*rpc.DecodedTransaction, error)
	DecodeTransactionEvents(ctx context.Context, tx models.Transaction, abiJSON string) ([]rpc.DecodedEvent, error)
	DecodeInput(ctx context.Context, p rpc.DecodeInputParams) (*rpc.DecodedInput, error)
	DecodeOutput(ctx context.Context, p rpc.DecodeOutputParams) (*rpc.DecodedOutput, error)
	GetFullContractState(ctx context.Context, addr address.Address) (*models.FullContractState, error)
	Subscribe(ctx context.Context, kind subscription.Kind, addr address.Address) (*subscription.Subscription, error)
}

type Contract struct {
	provider      Provider
	abi           *abi.Descriptor
	address       address.Address
	resultTimeout time.Duration
	logger        *slog.Logger
}

type Option func(*Contract)

// WithResultTimeout bounds how long SendWithResult waits for the child
// transaction.
func WithResultTimeout(d time.Duration) Option {
	return func(c *Contract) { c.resultTimeout = d }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Contract) { c.logger = logger }
}

func New(p Provider, d *abi.Descriptor, addr address.Address, opts ...Option) *Contract {
	c := &Contract{
		provider:      p,
		abi:           d,
		address:       addr,
		resultTimeout: DefaultResultTimeout,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "contract", "address", addr.String())
	return c
}

func (c *Contract) ABI() *abi.Descriptor {
	return c.abi
}

func (c *Contract) Address() address.Address {
	return c.address
}

// Methods lists callable function names in ABI order. The constructor is
// excluded.
func (c *Contract) Methods() []string {
	names := make([]string, 0, len(c.abi.Functions))
	for _, fn := range c.abi.Functions {
		if fn.Name == abi.ConstructorName {
			continue
		}
		names = append(names, fn.Name)
	}
	return names
}

// Method returns a handle for name with params serialized to wire form.
func (c *Contract) Method(name string, params map[string]any) (*Method, error) {
	if name == abi.ConstructorName {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, name)
	}
	fn, ok := c.abi.Function(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, name)
	}
	return &Method{
		contract: c,
		fn:       fn,
		params:   abi.SerializeObject(params),
	}, nil
}

// Call is shorthand for Method(name, params).Call(ctx, opts).
func (c *Contract) Call(ctx context.Context, name string, params map[string]any, opts CallOptions) (map[string]any, error) {
	m, err := c.Method(name, params)
	if err != nil {
		return nil, err
	}
	return m.Call(ctx, opts)
}

// Payload is shorthand for Method(name, params).Payload(ctx).
func (c *Contract) Payload(ctx context.Context, name string, params map[string]any) (string, error) {
	m, err := c.Method(name, params)
	if err != nil {
		return "", err
	}
	return m.Payload(ctx)
}

func (c *Contract) State(ctx context.Context) (*models.FullContractState, error) {
	return c.provider.GetFullContractState(ctx, c.address)
}

// Balance returns zero for accounts that do not exist.
func (c *Contract) Balance(ctx context.Context) (tlb.Coins, error) {
	state, err := c.State(ctx)
	if err != nil {
		return tlb.ZeroCoins, err
	}
	if state == nil || state.Balance == "" {
		return tlb.ZeroCoins, nil
	}
	coins, err := tlb.FromNanoTONStr(state.Balance)
	if err != nil {
		return tlb.ZeroCoins, fmt.Errorf("parse balance %q: %w", state.Balance, err)
	}
	return coins, nil
}

type DecodedTransaction struct {
	Method string
	Input  map[string]any
	Output map[string]any
}

type DecodedEvent struct {
	Event string
	Data  map[string]any
}

type DecodedInput struct {
	Method string
	Input  map[string]any
}

type DecodedOutput struct {
	Method string
	Output map[string]any
}

// DecodeTransaction tries to decode tx as a call of one of methods (all
// functions when empty). It returns nil when nothing matches or decoding
// fails.
func (c *Contract) DecodeTransaction(ctx context.Context, tx models.Transaction, methods ...string) *DecodedTransaction {
	res, err := c.provider.DecodeTransaction(ctx, rpc.DecodeTransactionParams{
		Transaction: tx,
		Abi:         c.abi.JSON(),
		Method:      c.methodSelector(methods),
	})
	if err != nil || res == nil {
		return nil
	}
	fn, ok := c.abi.Function(res.Method)
	if !ok {
		return nil
	}
	input, err := decodeParams(fn.Inputs, res.Input)
	if err != nil {
		return nil
	}
	output, err := decodeParams(fn.Outputs, res.Output)
	if err != nil {
		return nil
	}
	return &DecodedTransaction{Method: res.Method, Input: input, Output: output}
}

// DecodeTransactionEvents returns an empty slice when decoding fails.
func (c *Contract) DecodeTransactionEvents(ctx context.Context, tx models.Transaction) []DecodedEvent {
	events, err := c.provider.DecodeTransactionEvents(ctx, tx, c.abi.JSON())
	if err != nil {
		return []DecodedEvent{}
	}
	out := make([]DecodedEvent, 0, len(events))
	for _, ev := range events {
		desc, ok := c.abi.Event(ev.Event)
		if !ok {
			return []DecodedEvent{}
		}
		data, err := decodeParams(desc.Inputs, ev.Data)
		if err != nil {
			return []DecodedEvent{}
		}
		out = append(out, DecodedEvent{Event: ev.Event, Data: data})
	}
	return out
}

func (c *Contract) DecodeInputMessage(ctx context.Context, body string, internal bool, methods ...string) *DecodedInput {
	res, err := c.provider.DecodeInput(ctx, rpc.DecodeInputParams{
		Abi:      c.abi.JSON(),
		Body:     body,
		Internal: internal,
		Method:   c.methodSelector(methods),
	})
	if err != nil || res == nil {
		return nil
	}
	fn, ok := c.abi.Function(res.Method)
	if !ok {
		return nil
	}
	input, err := decodeParams(fn.Inputs, res.Input)
	if err != nil {
		return nil
	}
	return &DecodedInput{Method: res.Method, Input: input}
}

func (c *Contract) DecodeOutputMessage(ctx context.Context, body string, methods ...string) *DecodedOutput {
	res, err := c.provider.DecodeOutput(ctx, rpc.DecodeOutputParams{
		Abi:    c.abi.JSON(),
		Body:   body,
		Method: c.methodSelector(methods),
	})
	if err != nil || res == nil {
		return nil
	}
	fn, ok := c.abi.Function(res.Method)
	if !ok {
		return nil
	}
	output, err := decodeParams(fn.Outputs, res.Output)
	if err != nil {
		return nil
	}
	return &DecodedOutput{Method: res.Method, Output: output}
}

func (c *Contract) methodSelector(methods []string) any {
	switch len(methods) {
	case 0:
		all := c.Methods()
		sort.Strings(all)
		return all
	case 1:
		return methods[0]
	default:
		return methods
	}
}

// decodeParams decodes raw against params. An empty parameter list decodes to
// an empty map.
func decodeParams(params []abi.Param, raw map[string]any) (map[string]any, error) {
	if len(params) == 0 {
		return map[string]any{}, nil
	}
	return abi.ParseObject(params, raw)
}
