package contract

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/xssnick/tonutils-go/tlb"

	"github.com/SVOIcom/everscale-connect-backend/pkg/abi"
	"github.com/SVOIcom/everscale-connect-backend/pkg/address"
	"github.com/SVOIcom/everscale-connect-backend/pkg/models"
	"github.com/SVOIcom/everscale-connect-backend/pkg/rpc"
	"github.com/SVOIcom/everscale-connect-backend/pkg/subscription"
)

var ErrResultTimeout = errors.New("timed out waiting for child transaction")

const unsubscribeTimeout = 10 * time.Second

// Method is a bound call of one ABI function with fixed parameters.
type Method struct {
	contract *Contract
	fn       abi.Function
	params   map[string]any
}

type CallOptions struct {
	CachedState *models.FullContractState
	Responsible bool
}

type SendOptions struct {
	From   address.Address
	Amount tlb.Coins
	// Bounce defaults to true when nil.
	Bounce *bool
}

type ExternalOptions struct {
	PublicKey        string
	StateInit        string
	Local            bool
	WithoutSignature bool
}

type SendResult struct {
	Parent *models.Transaction
	Child  *models.Transaction
	// Output is nil when the child transaction could not be decoded.
	Output map[string]any
}

type ExternalResult struct {
	Transaction *models.Transaction
	Output      map[string]any
}

func (m *Method) Name() string {
	return m.fn.Name
}

// FunctionCall returns the unencoded call payload.
func (m *Method) FunctionCall() models.FunctionCall {
	return models.FunctionCall{
		Abi:    m.contract.abi.JSON(),
		Method: m.fn.Name,
		Params: m.params,
	}
}

// Call runs the function locally and returns its decoded output.
func (m *Method) Call(ctx context.Context, opts CallOptions) (map[string]any, error) {
	res, err := m.contract.provider.RunLocal(ctx, rpc.RunLocalParams{
		Address:      m.contract.address,
		CachedState:  opts.CachedState,
		Responsible:  opts.Responsible,
		FunctionCall: m.FunctionCall(),
	})
	if err != nil {
		return nil, err
	}
	if res.Output == nil || res.Code != 0 {
		return nil, &rpc.TvmException{Code: res.Code}
	}
	return decodeParams(m.fn.Outputs, res.Output)
}

func (m *Method) messageParams(opts SendOptions) rpc.MessageParams {
	bounce := true
	if opts.Bounce != nil {
		bounce = *opts.Bounce
	}
	call := m.FunctionCall()
	return rpc.MessageParams{
		Sender:    opts.From,
		Recipient: m.contract.address,
		Amount:    opts.Amount.Nano().String(),
		Bounce:    bounce,
		Payload:   &call,
	}
}

// Send submits an internal message from opts.From to the contract.
func (m *Method) Send(ctx context.Context, opts SendOptions) (*models.Transaction, error) {
	return m.contract.provider.SendMessage(ctx, m.messageParams(opts))
}

func (m *Method) EstimateFees(ctx context.Context, opts SendOptions) (string, error) {
	return m.contract.provider.EstimateFees(ctx, m.messageParams(opts))
}

func (m *Method) SendExternal(ctx context.Context, opts ExternalOptions) (*ExternalResult, error) {
	res, err := m.contract.provider.SendExternalMessage(ctx, rpc.ExternalMessageParams{
		PublicKey: opts.PublicKey,
		Recipient: m.contract.address,
		StateInit: opts.StateInit,
		Payload:   m.FunctionCall(),
		Local:     opts.Local,
	}, opts.WithoutSignature)
	if err != nil {
		return nil, err
	}
	out := &ExternalResult{Transaction: &res.Transaction}
	if res.Output != nil {
		decoded, err := decodeParams(m.fn.Outputs, res.Output)
		if err != nil {
			return nil, err
		}
		out.Output = decoded
	}
	return out, nil
}

// Payload encodes the call as a message body without sending it.
func (m *Method) Payload(ctx context.Context) (string, error) {
	return m.contract.provider.EncodeInternalInput(ctx, m.FunctionCall())
}

// Deploy is reserved for constructor deployment and always fails.
func (m *Method) Deploy(context.Context) error {
	return &rpc.UnsupportedOperationError{Provider: m.contract.provider.Name(), Op: "deploy"}
}

// SendWithResult sends the message and waits for the transaction it causes on
// the contract. The temporary subscription is always released.
func (m *Method) SendWithResult(ctx context.Context, opts SendOptions) (*SendResult, error) {
	c := m.contract
	sub, err := c.provider.Subscribe(ctx, subscription.TransactionsFound, c.address)
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", c.address, err)
	}
	defer func() {
		uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), unsubscribeTimeout)
		defer cancel()
		if err := sub.Unsubscribe(uctx); err != nil {
			c.logger.Warn("release result subscription failed", "error", err)
		}
	}()

	w := &childWaiter{from: opts.From, found: make(chan models.Transaction, 1)}
	sub.On(subscription.Data, w.observe)

	parent, err := m.Send(ctx, opts)
	if err != nil {
		return nil, err
	}
	w.setParent(parent, c.address)

	timer := time.NewTimer(c.resultTimeout)
	defer timer.Stop()

	var child models.Transaction
	select {
	case child = <-w.found:
	case <-timer.C:
		return nil, fmt.Errorf("%s: %w", m.fn.Name, ErrResultTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	result := &SendResult{Parent: parent, Child: &child}
	decoded, err := c.provider.DecodeTransaction(ctx, rpc.DecodeTransactionParams{
		Transaction: child,
		Abi:         c.abi.JSON(),
		Method:      m.fn.Name,
	})
	if err != nil {
		c.logger.Warn("decode child transaction failed", "method", m.fn.Name, "error", err)
		return result, nil
	}
	if decoded != nil {
		output, err := decodeParams(m.fn.Outputs, decoded.Output)
		if err != nil {
			c.logger.Warn("decode child output failed", "method", m.fn.Name, "error", err)
			return result, nil
		}
		result.Output = output
	}
	return result, nil
}

// childWaiter collects transactions sent by from until the parent is known,
// then resolves the first one whose inbound message the parent emitted.
type childWaiter struct {
	from  address.Address
	found chan models.Transaction

	mu         sync.Mutex
	candidates []models.Transaction
	expected   map[string]struct{}
	resolved   bool
}

func (w *childWaiter) observe(data any) {
	batch, ok := data.(models.TransactionsFound)
	if !ok {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, tx := range batch.Transactions {
		if tx.InMessage.Src == nil || *tx.InMessage.Src != w.from {
			continue
		}
		if w.expected == nil {
			w.candidates = append(w.candidates, tx)
			continue
		}
		if _, ok := w.expected[tx.InMessage.Hash]; ok {
			w.resolve(tx)
		}
	}
}

func (w *childWaiter) setParent(parent *models.Transaction, target address.Address) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.expected = make(map[string]struct{})
	for _, msg := range parent.OutMessages {
		if msg.Dst != nil && *msg.Dst == target {
			w.expected[msg.Hash] = struct{}{}
		}
	}
	for _, tx := range w.candidates {
		if _, ok := w.expected[tx.InMessage.Hash]; ok {
			w.resolve(tx)
			break
		}
	}
	w.candidates = nil
}

// resolve requires w.mu.
func (w *childWaiter) resolve(tx models.Transaction) {
	if w.resolved {
		return
	}
	w.resolved = true
	w.found <- tx
}
