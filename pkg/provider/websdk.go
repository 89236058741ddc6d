package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/xssnick/tonutils-go/tlb"

	"github.com/SVOIcom/everscale-connect-backend/internal/everclient"
	"github.com/SVOIcom/everscale-connect-backend/pkg/abi"
	"github.com/SVOIcom/everscale-connect-backend/pkg/address"
	"github.com/SVOIcom/everscale-connect-backend/pkg/models"
	"github.com/SVOIcom/everscale-connect-backend/pkg/rpc"
)

const webSDKIcon = "https://github.com/SVOIcom/browser-extension/raw/main/icons/128.png"

// accountNotDeployed is reported for runLocal on an account without state.
const accountNotDeployed = -1

type WalletInfo struct {
	Address      address.Address           `json:"address"`
	ContractType models.WalletContractType `json:"contractType,omitempty"`
}

// WalletRuntime is the account side of a web SDK wallet. Chain reads go
// through the SDK bridge instead.
type WalletRuntime interface {
	NetworkServer(ctx context.Context) (string, error)
	// PublicKey returns an empty key when no account is selected.
	PublicKey(ctx context.Context) (string, error)
	WalletInfo(ctx context.Context) (WalletInfo, error)
	WalletTransfer(ctx context.Context, publicKey string, from, to address.Address, amount tlb.Coins, payload string, bounce bool) (*models.Transaction, error)
	SignDataRaw(ctx context.Context, publicKey, data string) (*models.SignedData, error)
	PackIntoCell(ctx context.Context, structure []abi.Param, data map[string]any) (string, error)
	UnpackFromCell(ctx context.Context, structure []abi.Param, boc string, allowPartial bool) (map[string]any, error)
	VerifySignature(ctx context.Context, p rpc.VerifySignatureParams) (bool, error)
}

// WebSDKWallet combines a wallet runtime with the chain SDK bridge. The SDK
// client follows the runtime's network.
type WebSDKWallet struct {
	*base
	runtime WalletRuntime
	sdks    everclient.Factory

	sdkMu sync.RWMutex
	sdk   everclient.SDK
}

var _ variant = (*WebSDKWallet)(nil)

func NewWebSDKWallet(runtime WalletRuntime, sdks everclient.Factory, opts ...Option) *WebSDKWallet {
	w := &WebSDKWallet{
		base:    newBase("Everscale Wallet", webSDKIcon, opts),
		runtime: runtime,
		sdks:    sdks,
	}
	w.bind(w, nil, nil)
	return w
}

func (w *WebSDKWallet) currentNetwork(ctx context.Context) (string, error) {
	return w.runtime.NetworkServer(ctx)
}

func (w *WebSDKWallet) account(ctx context.Context) (*models.AccountInteraction, error) {
	pub, err := w.runtime.PublicKey(ctx)
	if err != nil {
		return nil, err
	}
	info, err := w.runtime.WalletInfo(ctx)
	if err != nil {
		return nil, err
	}
	if pub == "" && info.Address.IsZero() {
		return nil, nil
	}
	return &models.AccountInteraction{
		Address:      info.Address,
		PublicKey:    pub,
		ContractType: info.ContractType,
	}, nil
}

func (w *WebSDKWallet) onNetwork(n Network) {
	w.sdkMu.Lock()
	w.sdk = w.sdks.Get(n.Server)
	w.sdkMu.Unlock()
	w.logger.Info("chain sdk switched", "network", n.Server)
}

func (w *WebSDKWallet) chain(ctx context.Context) (everclient.SDK, error) {
	if err := w.ready(); err != nil {
		return nil, err
	}
	w.sdkMu.RLock()
	sdk := w.sdk
	w.sdkMu.RUnlock()
	if sdk != nil {
		return sdk, nil
	}
	server, err := w.runtime.NetworkServer(ctx)
	if err != nil {
		return nil, fmt.Errorf("network: %w", err)
	}
	return w.sdks.Get(server), nil
}

// RequestPermissions grants everything the runtime has; there is no prompt.
func (w *WebSDKWallet) RequestPermissions(ctx context.Context, _ ...models.Permission) (*models.AccountInteraction, error) {
	if err := w.ready(); err != nil {
		return nil, err
	}
	acct, err := w.account(ctx)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, fmt.Errorf("requestPermissions: %w", rpc.ErrInsufficientPermissions)
	}
	return acct, nil
}

func (w *WebSDKWallet) RevokePermissions(context.Context) error {
	return nil
}

func (w *WebSDKWallet) GetProviderState(ctx context.Context) (*models.ProviderState, error) {
	if err := w.ready(); err != nil {
		return nil, err
	}
	server, err := w.runtime.NetworkServer(ctx)
	if err != nil {
		return nil, err
	}
	acct, err := w.account(ctx)
	if err != nil {
		return nil, err
	}
	basic := true
	return &models.ProviderState{
		SelectedConnection:   server,
		SupportedPermissions: DefaultPermissions,
		Permissions:          models.Permissions{Basic: &basic, AccountInteraction: acct},
	}, nil
}

// RunLocal reports a TVM exit code as a result code so that contract calls
// surface it as a TvmException.
func (w *WebSDKWallet) RunLocal(ctx context.Context, p rpc.RunLocalParams) (*rpc.RunLocalResult, error) {
	sdk, err := w.chain(ctx)
	if err != nil {
		return nil, err
	}
	output, err := sdk.RunLocal(ctx, p.Address, p.FunctionCall.Abi, p.FunctionCall.Method, p.FunctionCall.Params)
	if err != nil {
		if errors.Is(err, everclient.ErrAccountNotFound) {
			return &rpc.RunLocalResult{Code: accountNotDeployed}, nil
		}
		var sdkErr *everclient.SDKError
		if errors.As(err, &sdkErr) {
			if code, ok := sdkErr.ExitCode(); ok {
				return &rpc.RunLocalResult{Code: code}, nil
			}
		}
		return nil, err
	}
	return &rpc.RunLocalResult{Output: output}, nil
}

func (w *WebSDKWallet) EncodeInternalInput(ctx context.Context, call models.FunctionCall) (string, error) {
	sdk, err := w.chain(ctx)
	if err != nil {
		return "", err
	}
	return sdk.EncodeInternalBody(ctx, call.Abi, call.Method, call.Params)
}

func (w *WebSDKWallet) GetFullContractState(ctx context.Context, addr address.Address) (*models.FullContractState, error) {
	sdk, err := w.chain(ctx)
	if err != nil {
		return nil, err
	}
	return sdk.GetAccount(ctx, addr)
}

// FindAccountsByCodeHash searches the current network for accounts running
// the code with the given hash.
func (w *WebSDKWallet) FindAccountsByCodeHash(ctx context.Context, codeHash string) ([]address.Address, error) {
	sdk, err := w.chain(ctx)
	if err != nil {
		return nil, err
	}
	return sdk.FindAccounts(ctx, codeHash)
}

// SendMessage encodes the payload through the SDK and hands the transfer to
// the runtime, which signs it with the account key.
func (w *WebSDKWallet) SendMessage(ctx context.Context, p rpc.MessageParams) (*models.Transaction, error) {
	if err := w.ready(); err != nil {
		return nil, err
	}
	var body string
	if p.Payload != nil {
		encoded, err := w.EncodeInternalInput(ctx, *p.Payload)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		body = encoded
	}
	amount, err := tlb.FromNanoTONStr(p.Amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", p.Amount, err)
	}
	pub, err := w.runtime.PublicKey(ctx)
	if err != nil {
		return nil, err
	}
	return w.runtime.WalletTransfer(ctx, pub, p.Sender, p.Recipient, amount, body, p.Bounce)
}

func (w *WebSDKWallet) WalletTransfer(ctx context.Context, to address.Address, amount tlb.Coins, payload *models.FunctionCall, bounce bool) (*models.Transaction, error) {
	if err := w.ready(); err != nil {
		return nil, err
	}
	acct, err := w.account(ctx)
	if err != nil {
		return nil, err
	}
	if acct == nil || acct.Address.IsZero() {
		return nil, fmt.Errorf("walletTransfer: %w", rpc.ErrInsufficientPermissions)
	}
	return w.SendMessage(ctx, rpc.MessageParams{
		Sender:    acct.Address,
		Recipient: to,
		Amount:    amount.Nano().String(),
		Bounce:    bounce,
		Payload:   payload,
	})
}

func (w *WebSDKWallet) SignDataRaw(ctx context.Context, publicKey, data string) (*models.SignedData, error) {
	if err := w.ready(); err != nil {
		return nil, err
	}
	return w.runtime.SignDataRaw(ctx, publicKey, data)
}

func (w *WebSDKWallet) VerifySignature(ctx context.Context, p rpc.VerifySignatureParams) (bool, error) {
	if err := w.ready(); err != nil {
		return false, err
	}
	return w.runtime.VerifySignature(ctx, p)
}

func (w *WebSDKWallet) PackIntoCell(ctx context.Context, structure []abi.Param, data map[string]any) (string, error) {
	if err := w.ready(); err != nil {
		return "", err
	}
	return w.runtime.PackIntoCell(ctx, structure, abi.SerializeObject(data))
}

func (w *WebSDKWallet) UnpackFromCell(ctx context.Context, structure []abi.Param, boc string, allowPartial bool) (map[string]any, error) {
	if err := w.ready(); err != nil {
		return nil, err
	}
	return w.runtime.UnpackFromCell(ctx, structure, boc, allowPartial)
}
