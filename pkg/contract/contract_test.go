package contract

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xssnick/tonutils-go/tlb"

	"github.com/SVOIcom/everscale-connect-backend/pkg/abi"
	"github.com/SVOIcom/everscale-connect-backend/pkg/address"
	"github.com/SVOIcom/everscale-connect-backend/pkg/models"
	"github.com/SVOIcom/everscale-connect-backend/pkg/rpc"
	"github.com/SVOIcom/everscale-connect-backend/pkg/subscription"
)

const tokenABI = `{
	"ABI version": 2,
	"functions": [
		{"name": "constructor", "inputs": [], "outputs": []},
		{"name": "balance", "inputs": [{"name": "answerId", "type": "uint32"}], "outputs": [{"name": "value0", "type": "uint128"}]},
		{"name": "owner", "inputs": [], "outputs": [{"name": "value0", "type": "address"}]},
		{"name": "transfer", "inputs": [{"name": "to", "type": "address"}, {"name": "amount", "type": "uint128"}], "outputs": []},
		{"name": "mint", "inputs": [{"name": "amount", "type": "uint128"}], "outputs": [{"name": "minted", "type": "uint128"}]}
	],
	"events": [
		{"name": "Transfer", "inputs": [{"name": "to", "type": "address"}]}
	]
}`

var (
	target = address.New("0:388820c348e6b2a5e38c8c8f1bf4088cdc384fc67219bd064f60c7d8d1092eb1")
	wallet = address.New("0:0000000000000000000000000000000000000000000000000000000000000001")
)

type nopBackend struct{}

func (nopBackend) SubscribeContract(context.Context, address.Address, models.ContractUpdatesSubscription) error {
	return nil
}

func (nopBackend) UnsubscribeContract(context.Context, address.Address) error { return nil }

type fakeProvider struct {
	subs *subscription.Manager

	runLocal     func(rpc.RunLocalParams) (*rpc.RunLocalResult, error)
	sendMessage  func(rpc.MessageParams) (*models.Transaction, error)
	decodeTx     func(rpc.DecodeTransactionParams) (*rpc.DecodedTransaction, error)
	decodeEvents func() ([]rpc.DecodedEvent, error)
	external     func(rpc.ExternalMessageParams, bool) (*rpc.ExternalMessageResult, error)
	state        *models.FullContractState
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{subs: subscription.NewManager(nopBackend{}, slog.New(slog.NewTextHandler(io.Discard, nil)))}
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) RunLocal(_ context.Context, p rpc.RunLocalParams) (*rpc.RunLocalResult, error) {
	return f.runLocal(p)
}

func (f *fakeProvider) SendMessage(_ context.Context, p rpc.MessageParams) (*models.Transaction, error) {
	return f.sendMessage(p)
}

func (f *fakeProvider) EstimateFees(context.Context, rpc.MessageParams) (string, error) {
	return "12345", nil
}

func (f *fakeProvider) SendExternalMessage(_ context.Context, p rpc.ExternalMessageParams, unsigned bool) (*rpc.ExternalMessageResult, error) {
	return f.external(p, unsigned)
}

func (f *fakeProvider) EncodeInternalInput(_ context.Context, call models.FunctionCall) (string, error) {
	return "body:" + call.Method, nil
}

func (f *fakeProvider) DecodeTransaction(_ context.Context, p rpc.DecodeTransactionParams) (*rpc.DecodedTransaction, error) {
	return f.decodeTx(p)
}

func (f *fakeProvider) DecodeTransactionEvents(context.Context, models.Transaction, string) ([]rpc.DecodedEvent, error) {
	return f.decodeEvents()
}

func (f *fakeProvider) DecodeInput(context.Context, rpc.DecodeInputParams) (*rpc.DecodedInput, error) {
	return &rpc.DecodedInput{Method: "transfer", Input: map[string]any{"to": wallet.String(), "amount": "5"}}, nil
}

func (f *fakeProvider) DecodeOutput(context.Context, rpc.DecodeOutputParams) (*rpc.DecodedOutput, error) {
	return nil, errors.New("not an output")
}

func (f *fakeProvider) GetFullContractState(context.Context, address.Address) (*models.FullContractState, error) {
	return f.state, nil
}

func (f *fakeProvider) Subscribe(ctx context.Context, kind subscription.Kind, addr address.Address) (*subscription.Subscription, error) {
	return f.subs.Subscribe(ctx, kind, addr)
}

func newTestContract(t *testing.T, p *fakeProvider, opts ...Option) *Contract {
	t.Helper()
	d, err := abi.ParseString(tokenABI)
	require.NoError(t, err)
	return New(p, d, target, opts...)
}

func TestContract_MethodsExcludeConstructor(t *testing.T) {
	c := newTestContract(t, newFakeProvider())
	assert.Equal(t, []string{"balance", "owner", "transfer", "mint"}, c.Methods())

	_, err := c.Method("constructor", nil)
	assert.True(t, errors.Is(err, ErrUnknownMethod))
	_, err = c.Method("burn", nil)
	assert.True(t, errors.Is(err, ErrUnknownMethod))
}

func TestMethod_CallDecodesOutput(t *testing.T) {
	p := newFakeProvider()
	p.runLocal = func(params rpc.RunLocalParams) (*rpc.RunLocalResult, error) {
		assert.Equal(t, target, params.Address)
		assert.Equal(t, "owner", params.FunctionCall.Method)
		return &rpc.RunLocalResult{Output: map[string]any{"value0": wallet.String()}, Code: 0}, nil
	}
	c := newTestContract(t, p)

	out, err := c.Call(context.Background(), "owner", nil, CallOptions{})
	require.NoError(t, err)
	assert.Equal(t, wallet, out["value0"])
}

func TestMethod_CallTvmException(t *testing.T) {
	p := newFakeProvider()
	p.runLocal = func(rpc.RunLocalParams) (*rpc.RunLocalResult, error) {
		return &rpc.RunLocalResult{Output: map[string]any{}, Code: 42}, nil
	}
	c := newTestContract(t, p)

	_, err := c.Call(context.Background(), "balance", map[string]any{"answerId": 0}, CallOptions{})
	var tvm *rpc.TvmException
	require.True(t, errors.As(err, &tvm))
	assert.Equal(t, 42, tvm.Code)

	p.runLocal = func(rpc.RunLocalParams) (*rpc.RunLocalResult, error) {
		return &rpc.RunLocalResult{Output: nil, Code: 0}, nil
	}
	_, err = c.Call(context.Background(), "balance", map[string]any{"answerId": 0}, CallOptions{})
	require.True(t, errors.As(err, &tvm))
	assert.Equal(t, 0, tvm.Code)
}

func TestMethod_EmptyOutputsDecodeToEmptyMap(t *testing.T) {
	p := newFakeProvider()
	p.runLocal = func(rpc.RunLocalParams) (*rpc.RunLocalResult, error) {
		return &rpc.RunLocalResult{Output: map[string]any{}, Code: 0}, nil
	}
	c := newTestContract(t, p)

	out, err := c.Call(context.Background(), "transfer", map[string]any{"to": wallet, "amount": "1"}, CallOptions{})
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestMethod_SendSerializesParamsAndDefaultsBounce(t *testing.T) {
	p := newFakeProvider()
	var got rpc.MessageParams
	p.sendMessage = func(params rpc.MessageParams) (*models.Transaction, error) {
		got = params
		return &models.Transaction{ID: models.TransactionID{Lt: "1"}}, nil
	}
	c := newTestContract(t, p)

	m, err := c.Method("transfer", map[string]any{"to": wallet, "amount": "100"})
	require.NoError(t, err)
	_, err = m.Send(context.Background(), SendOptions{From: wallet, Amount: tlb.MustFromTON("0.5")})
	require.NoError(t, err)

	assert.True(t, got.Bounce)
	assert.Equal(t, "500000000", got.Amount)
	assert.Equal(t, target, got.Recipient)
	require.NotNil(t, got.Payload)
	assert.Equal(t, wallet.String(), got.Payload.Params["to"])

	noBounce := false
	_, err = m.Send(context.Background(), SendOptions{From: wallet, Bounce: &noBounce})
	require.NoError(t, err)
	assert.False(t, got.Bounce)
}

func TestMethod_DeployUnsupported(t *testing.T) {
	c := newTestContract(t, newFakeProvider())
	m, err := c.Method("mint", map[string]any{"amount": "1"})
	require.NoError(t, err)

	var unsupported *rpc.UnsupportedOperationError
	require.True(t, errors.As(m.Deploy(context.Background()), &unsupported))
	assert.Equal(t, "deploy", unsupported.Op)
}

func TestMethod_PayloadAndFunctionCall(t *testing.T) {
	c := newTestContract(t, newFakeProvider())
	body, err := c.Payload(context.Background(), "mint", map[string]any{"amount": "1"})
	require.NoError(t, err)
	assert.Equal(t, "body:mint", body)

	m, err := c.Method("mint", map[string]any{"amount": "1"})
	require.NoError(t, err)
	call := m.FunctionCall()
	assert.Equal(t, c.ABI().JSON(), call.Abi)
	assert.Equal(t, map[string]any{"amount": "1"}, call.Params)
}

func TestMethod_SendExternalUnsigned(t *testing.T) {
	p := newFakeProvider()
	p.external = func(params rpc.ExternalMessageParams, unsigned bool) (*rpc.ExternalMessageResult, error) {
		assert.True(t, unsigned)
		assert.True(t, params.Local)
		return &rpc.ExternalMessageResult{Output: map[string]any{"minted": "9"}}, nil
	}
	c := newTestContract(t, p)
	m, err := c.Method("mint", map[string]any{"amount": "9"})
	require.NoError(t, err)

	res, err := m.SendExternal(context.Background(), ExternalOptions{Local: true, WithoutSignature: true})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"minted": "9"}, res.Output)
}

func parentWithChildMessage(hash string) *models.Transaction {
	return &models.Transaction{
		ID: models.TransactionID{Lt: "10", Hash: "parent"},
		OutMessages: []models.Message{
			{Hash: "other", Dst: wallet.Ptr()},
			{Hash: hash, Dst: target.Ptr()},
		},
	}
}

func childTx(hash string) models.Transaction {
	return models.Transaction{
		ID:        models.TransactionID{Lt: "11", Hash: "child"},
		InMessage: models.Message{Hash: hash, Src: wallet.Ptr(), Dst: target.Ptr()},
	}
}

func TestMethod_SendWithResult(t *testing.T) {
	p := newFakeProvider()
	p.sendMessage = func(rpc.MessageParams) (*models.Transaction, error) {
		// the child arrives before the parent is returned
		p.subs.Dispatch(subscription.Event{
			Kind:    subscription.TransactionsFound,
			Address: target,
			Data:    models.TransactionsFound{Address: target, Transactions: []models.Transaction{childTx("msg-1")}},
		})
		return parentWithChildMessage("msg-1"), nil
	}
	p.decodeTx = func(params rpc.DecodeTransactionParams) (*rpc.DecodedTransaction, error) {
		assert.Equal(t, "mint", params.Method)
		return &rpc.DecodedTransaction{Method: "mint", Output: map[string]any{"minted": "3"}}, nil
	}
	c := newTestContract(t, p)
	m, err := c.Method("mint", map[string]any{"amount": "3"})
	require.NoError(t, err)

	res, err := m.SendWithResult(context.Background(), SendOptions{From: wallet})
	require.NoError(t, err)
	assert.Equal(t, "parent", res.Parent.ID.Hash)
	assert.Equal(t, "child", res.Child.ID.Hash)
	assert.Equal(t, map[string]any{"minted": "3"}, res.Output)
	assert.Equal(t, 0, p.subs.ActiveCount(subscription.TransactionsFound))
}

func TestMethod_SendWithResultChildAfterParent(t *testing.T) {
	p := newFakeProvider()
	p.sendMessage = func(rpc.MessageParams) (*models.Transaction, error) {
		go func() {
			time.Sleep(10 * time.Millisecond)
			p.subs.Dispatch(subscription.Event{
				Kind:    subscription.TransactionsFound,
				Address: target,
				Data:    models.TransactionsFound{Address: target, Transactions: []models.Transaction{childTx("msg-2")}},
			})
		}()
		return parentWithChildMessage("msg-2"), nil
	}
	p.decodeTx = func(rpc.DecodeTransactionParams) (*rpc.DecodedTransaction, error) {
		return nil, errors.New("cannot decode")
	}
	c := newTestContract(t, p)
	m, err := c.Method("mint", map[string]any{"amount": "3"})
	require.NoError(t, err)

	res, err := m.SendWithResult(context.Background(), SendOptions{From: wallet})
	require.NoError(t, err)
	assert.Equal(t, "child", res.Child.ID.Hash)
	assert.Nil(t, res.Output)
}

func TestMethod_SendWithResultTimeoutReleasesSubscription(t *testing.T) {
	p := newFakeProvider()
	p.sendMessage = func(rpc.MessageParams) (*models.Transaction, error) {
		return parentWithChildMessage("never"), nil
	}
	c := newTestContract(t, p, WithResultTimeout(20*time.Millisecond))
	m, err := c.Method("mint", map[string]any{"amount": "3"})
	require.NoError(t, err)

	_, err = m.SendWithResult(context.Background(), SendOptions{From: wallet})
	assert.True(t, errors.Is(err, ErrResultTimeout))
	assert.Equal(t, 0, p.subs.ActiveCount(subscription.TransactionsFound))
}

func TestMethod_SendWithResultSendFailureReleasesSubscription(t *testing.T) {
	p := newFakeProvider()
	p.sendMessage = func(rpc.MessageParams) (*models.Transaction, error) {
		return nil, errors.New("rejected")
	}
	c := newTestContract(t, p)
	m, err := c.Method("mint", map[string]any{"amount": "3"})
	require.NoError(t, err)

	_, err = m.SendWithResult(context.Background(), SendOptions{From: wallet})
	assert.EqualError(t, err, "rejected")
	assert.Equal(t, 0, p.subs.ActiveCount(subscription.TransactionsFound))
}

func TestContract_BestEffortDecoders(t *testing.T) {
	p := newFakeProvider()
	p.decodeTx = func(rpc.DecodeTransactionParams) (*rpc.DecodedTransaction, error) {
		return nil, errors.New("no match")
	}
	p.decodeEvents = func() ([]rpc.DecodedEvent, error) {
		return []rpc.DecodedEvent{{Event: "Transfer", Data: map[string]any{"to": wallet.String()}}}, nil
	}
	c := newTestContract(t, p)
	ctx := context.Background()

	assert.Nil(t, c.DecodeTransaction(ctx, models.Transaction{}))

	events := c.DecodeTransactionEvents(ctx, models.Transaction{})
	require.Len(t, events, 1)
	assert.Equal(t, wallet, events[0].Data["to"])

	p.decodeEvents = func() ([]rpc.DecodedEvent, error) { return nil, errors.New("boom") }
	assert.Empty(t, c.DecodeTransactionEvents(ctx, models.Transaction{}))
	assert.NotNil(t, c.DecodeTransactionEvents(ctx, models.Transaction{}))

	in := c.DecodeInputMessage(ctx, "te6", true)
	require.NotNil(t, in)
	assert.Equal(t, wallet, in.Input["to"])

	assert.Nil(t, c.DecodeOutputMessage(ctx, "te6"))
}

func TestContract_Balance(t *testing.T) {
	p := newFakeProvider()
	c := newTestContract(t, p)

	balance, err := c.Balance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0", balance.Nano().String())

	p.state = &models.FullContractState{ContractState: models.ContractState{Balance: "1500000000"}}
	balance, err = c.Balance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1500000000", balance.Nano().String())
}
