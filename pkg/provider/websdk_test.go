package provider

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xssnick/tonutils-go/tlb"
	"go.uber.org/mock/gomock"

	"github.com/SVOIcom/everscale-connect-backend/internal/everclient"
	"github.com/SVOIcom/everscale-connect-backend/internal/everclient/mocks"
	"github.com/SVOIcom/everscale-connect-backend/pkg/abi"
	"github.com/SVOIcom/everscale-connect-backend/pkg/address"
	"github.com/SVOIcom/everscale-connect-backend/pkg/contract"
	"github.com/SVOIcom/everscale-connect-backend/pkg/models"
	"github.com/SVOIcom/everscale-connect-backend/pkg/rpc"
)

type transfer struct {
	publicKey string
	from, to  address.Address
	amount    string
	payload   string
	bounce    bool
}

type fakeWalletRuntime struct {
	mu        sync.Mutex
	server    string
	publicKey string
	info      WalletInfo
	transfers []transfer
}

func (f *fakeWalletRuntime) NetworkServer(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.server, nil
}

func (f *fakeWalletRuntime) PublicKey(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.publicKey, nil
}

func (f *fakeWalletRuntime) WalletInfo(context.Context) (WalletInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.info, nil
}

func (f *fakeWalletRuntime) WalletTransfer(_ context.Context, publicKey string, from, to address.Address, amount tlb.Coins, payload string, bounce bool) (*models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transfers = append(f.transfers, transfer{publicKey, from, to, amount.Nano().String(), payload, bounce})
	return &models.Transaction{ID: models.TransactionID{Lt: "11", Hash: "h11"}}, nil
}

func (f *fakeWalletRuntime) SignDataRaw(_ context.Context, publicKey, data string) (*models.SignedData, error) {
	return &models.SignedData{Signature: publicKey + ":" + data}, nil
}

func (f *fakeWalletRuntime) PackIntoCell(context.Context, []abi.Param, map[string]any) (string, error) {
	return "te6cell", nil
}

func (f *fakeWalletRuntime) UnpackFromCell(context.Context, []abi.Param, string, bool) (map[string]any, error) {
	return map[string]any{}, nil
}

func (f *fakeWalletRuntime) VerifySignature(context.Context, rpc.VerifySignatureParams) (bool, error) {
	return true, nil
}

func newWebSDK(t *testing.T, runtime *fakeWalletRuntime) (*WebSDKWallet, *mocks.MockFactory, *mocks.MockSDK) {
	t.Helper()
	ctrl := gomock.NewController(t)
	factory := mocks.NewMockFactory(ctrl)
	sdk := mocks.NewMockSDK(ctrl)
	w := NewWebSDKWallet(runtime, factory, WithLogger(discardLogger()), WithWalletABI(walletABI), WithWatchInterval(time.Hour))
	t.Cleanup(func() { _ = w.Close() })
	return w, factory, sdk
}

func TestWebSDK_RunLocalThroughContract(t *testing.T) {
	runtime := &fakeWalletRuntime{server: "net.ton.dev"}
	w, factory, sdk := newWebSDK(t, runtime)
	factory.EXPECT().Get("net.ton.dev").Return(sdk).Times(1)
	require.NoError(t, w.Start(context.Background()))

	sdk.EXPECT().
		RunLocal(gomock.Any(), walletA, gomock.Any(), "getCustodians", gomock.Any()).
		Return(map[string]any{"custodians": []any{"0x01", "0x02"}}, nil)

	c, err := w.LoadContract(context.Background(), walletABI, walletA)
	require.NoError(t, err)
	out, err := c.Call(context.Background(), "getCustodians", nil, contract.CallOptions{})
	require.NoError(t, err)
	assert.Equal(t, []any{"0x01", "0x02"}, out["custodians"])
}

func TestWebSDK_ExitCodeBecomesTvmException(t *testing.T) {
	runtime := &fakeWalletRuntime{server: "net.ton.dev"}
	w, factory, sdk := newWebSDK(t, runtime)
	factory.EXPECT().Get("net.ton.dev").Return(sdk)
	require.NoError(t, w.Start(context.Background()))

	sdk.EXPECT().
		RunLocal(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, &everclient.SDKError{Code: 414, Message: "Contract execution was terminated with error", Data: json.RawMessage(`{"exit_code":60}`)})

	c := w.BindContract(mustDescriptor(t), walletA)
	_, err := c.Call(context.Background(), "getCustodians", nil, contract.CallOptions{})
	var tvm *rpc.TvmException
	require.ErrorAs(t, err, &tvm)
	assert.Equal(t, 60, tvm.Code)
}

func TestWebSDK_NetworkSwitchRebuildsSDK(t *testing.T) {
	runtime := &fakeWalletRuntime{server: "net.ton.dev"}
	w, factory, sdk := newWebSDK(t, runtime)
	mainSDK := mocks.NewMockSDK(gomock.NewController(t))
	gomock.InOrder(
		factory.EXPECT().Get("net.ton.dev").Return(sdk),
		factory.EXPECT().Get("main.ton.dev").Return(mainSDK),
	)
	require.NoError(t, w.Start(context.Background()))

	var got []Event
	require.NoError(t, w.On(EventNetworkChanged, func(ev Event) { got = append(got, ev) }))

	runtime.mu.Lock()
	runtime.server = "main.ton.dev"
	runtime.mu.Unlock()
	require.NoError(t, w.sync(context.Background()))

	require.Len(t, got, 1)
	assert.Equal(t, NetworkMain, got[0].Data.(Network).Name)
	assert.Equal(t, NetworkTest, got[0].Previous.(Network).Name)

	mainSDK.EXPECT().GetAccount(gomock.Any(), walletB).Return(nil, nil)
	state, err := w.GetFullContractState(context.Background(), walletB)
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestWebSDK_WalletTransferEncodesPayload(t *testing.T) {
	runtime := &fakeWalletRuntime{server: "net.ton.dev"}
	w, factory, sdk := newWebSDK(t, runtime)
	factory.EXPECT().Get("net.ton.dev").Return(sdk).AnyTimes()
	require.NoError(t, w.Start(context.Background()))

	runtime.mu.Lock()
	runtime.publicKey = "pk"
	runtime.info = WalletInfo{Address: walletA}
	runtime.mu.Unlock()

	payload := &models.FunctionCall{Abi: walletABI, Method: "getCustodians", Params: map[string]any{}}
	sdk.EXPECT().EncodeInternalBody(gomock.Any(), walletABI, "getCustodians", gomock.Any()).Return("te6body", nil)

	tx, err := w.WalletTransfer(context.Background(), walletB, tlb.MustFromTON("2"), payload, true)
	require.NoError(t, err)
	assert.Equal(t, "11", tx.ID.Lt)

	require.Len(t, runtime.transfers, 1)
	assert.Equal(t, transfer{"pk", walletA, walletB, "2000000000", "te6body", true}, runtime.transfers[0])
}

func TestWebSDK_PermissionsAndUnsupported(t *testing.T) {
	runtime := &fakeWalletRuntime{server: "net.ton.dev"}
	w, factory, sdk := newWebSDK(t, runtime)
	factory.EXPECT().Get("net.ton.dev").Return(sdk).AnyTimes()
	ctx := context.Background()
	require.NoError(t, w.Start(ctx))

	_, err := w.RequestPermissions(ctx)
	assert.ErrorIs(t, err, rpc.ErrInsufficientPermissions)

	runtime.mu.Lock()
	runtime.publicKey = "pk"
	runtime.info = WalletInfo{Address: walletA}
	runtime.mu.Unlock()
	acct, err := w.RequestPermissions(ctx)
	require.NoError(t, err)
	assert.Equal(t, "pk", acct.PublicKey)

	_, err = w.EncryptData(ctx, rpc.EncryptDataParams{})
	assert.True(t, IsUnsupported(err))

	signed, err := w.SignDataRaw(ctx, "pk", "AA==")
	require.NoError(t, err)
	assert.Equal(t, "pk:AA==", signed.Signature)
}

func TestWebSDK_CapabilitiesRequireStart(t *testing.T) {
	runtime := &fakeWalletRuntime{
		server:    "net.ton.dev",
		publicKey: "pk",
		info:      WalletInfo{Address: walletA},
	}
	w, factory, sdk := newWebSDK(t, runtime)
	ctx := context.Background()

	_, err := w.LoadContract(ctx, walletABI, walletA)
	assert.ErrorIs(t, err, rpc.ErrProviderNotInitialized)
	_, err = w.GetWallet(ctx)
	assert.ErrorIs(t, err, rpc.ErrProviderNotInitialized)
	_, err = w.GetKeypair(ctx)
	assert.ErrorIs(t, err, rpc.ErrProviderNotInitialized)
	_, err = w.RequestPermissions(ctx)
	assert.ErrorIs(t, err, rpc.ErrProviderNotInitialized)
	_, err = w.WalletTransfer(ctx, walletB, tlb.MustFromTON("1"), nil, false)
	assert.ErrorIs(t, err, rpc.ErrProviderNotInitialized)
	_, err = w.SignDataRaw(ctx, "pk", "AA==")
	assert.ErrorIs(t, err, rpc.ErrProviderNotInitialized)
	_, err = w.GetFullContractState(ctx, walletA)
	assert.ErrorIs(t, err, rpc.ErrProviderNotInitialized)

	c := w.BindContract(mustDescriptor(t), walletA)
	_, err = c.Call(ctx, "getCustodians", nil, contract.CallOptions{})
	assert.ErrorIs(t, err, rpc.ErrProviderNotInitialized)
	assert.Empty(t, runtime.transfers)

	factory.EXPECT().Get("net.ton.dev").Return(sdk)
	sdk.EXPECT().GetAccount(gomock.Any(), walletA).Return(&models.FullContractState{}, nil).AnyTimes()
	require.NoError(t, w.Start(ctx))

	kp, err := w.GetKeypair(ctx)
	require.NoError(t, err)
	assert.Equal(t, "pk", kp.Public)

	require.NoError(t, w.Close())
	_, err = w.GetWallet(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func mustDescriptor(t *testing.T) *abi.Descriptor {
	t.Helper()
	d, err := abi.ParseString(walletABI)
	require.NoError(t, err)
	return d
}
