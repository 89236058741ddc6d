package provider

import (
	"context"
	"fmt"

	"github.com/xssnick/tonutils-go/tlb"

	"github.com/SVOIcom/everscale-connect-backend/pkg/abi"
	"github.com/SVOIcom/everscale-connect-backend/pkg/address"
	"github.com/SVOIcom/everscale-connect-backend/pkg/models"
	"github.com/SVOIcom/everscale-connect-backend/pkg/rpc"
	"github.com/SVOIcom/everscale-connect-backend/pkg/subscription"
)

const extensionIcon = "https://raw.githubusercontent.com/broxus/ton-wallet-crystal-browser-extension/master/src/popup/icons/icon128.png"

// ExtensionWallet talks to an injected wallet runtime over JSON-RPC. With a
// WebSocket transport it also relays the runtime's notifications.
type ExtensionWallet struct {
	*base
	client *rpc.Client
}

var _ variant = (*ExtensionWallet)(nil)

func NewExtensionWallet(transport rpc.Transport, opts ...Option) *ExtensionWallet {
	w := &ExtensionWallet{base: newBase("EVER Wallet", extensionIcon, opts)}
	clientOpts := []rpc.Option{rpc.WithObserver(w.observe)}
	if w.opts.detect != nil {
		clientOpts = append(clientOpts, rpc.WithDetector(w.opts.detect))
	}
	w.client = rpc.NewClient(transport, w.opts.logger, clientOpts...)
	w.bind(w, w.client.Subscriptions(), extensionNetworks)
	return w
}

// Client exposes the raw capability surface.
func (w *ExtensionWallet) Client() *rpc.Client {
	return w.client
}

func (w *ExtensionWallet) Start(ctx context.Context) error {
	if err := w.client.EnsureInitialized(ctx); err != nil {
		return err
	}
	return w.start(ctx)
}

// observe turns runtime notifications into provider events. Network and
// permission changes also trigger a state sync so the derived events fire
// without waiting for the next tick.
func (w *ExtensionWallet) observe(ev subscription.Event) {
	switch ev.Kind {
	case subscription.NetworkChanged:
		w.resync()
	case subscription.PermissionsChanged:
		w.emit(Event{Name: EventPermissionsChanged, Data: ev.Data})
		w.resync()
	default:
		w.emit(Event{Name: string(ev.Kind), Data: ev.Data})
	}
}

func (w *ExtensionWallet) currentNetwork(ctx context.Context) (string, error) {
	state, err := w.client.GetProviderState(ctx)
	if err != nil {
		return "", err
	}
	return ConnectionServer(state.SelectedConnection), nil
}

func (w *ExtensionWallet) account(ctx context.Context) (*models.AccountInteraction, error) {
	state, err := w.client.GetProviderState(ctx)
	if err != nil {
		return nil, err
	}
	return state.Permissions.AccountInteraction, nil
}

func (w *ExtensionWallet) onNetwork(Network) {}

func (w *ExtensionWallet) RequestPermissions(ctx context.Context, perms ...models.Permission) (*models.AccountInteraction, error) {
	if len(perms) == 0 {
		perms = DefaultPermissions
	}
	if err := w.client.EnsureInitialized(ctx); err != nil {
		return nil, err
	}
	granted, err := w.client.RequestPermissions(ctx, perms)
	if err != nil {
		return nil, err
	}
	if granted.AccountInteraction == nil {
		return nil, fmt.Errorf("requestPermissions: %w", rpc.ErrInsufficientPermissions)
	}
	return granted.AccountInteraction, nil
}

func (w *ExtensionWallet) RevokePermissions(ctx context.Context) error {
	return w.client.Disconnect(ctx)
}

func (w *ExtensionWallet) GetProviderState(ctx context.Context) (*models.ProviderState, error) {
	return w.client.GetProviderState(ctx)
}

func (w *ExtensionWallet) WalletTransfer(ctx context.Context, to address.Address, amount tlb.Coins, payload *models.FunctionCall, bounce bool) (*models.Transaction, error) {
	acct, err := w.account(ctx)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, fmt.Errorf("walletTransfer: %w", rpc.ErrInsufficientPermissions)
	}
	return w.client.SendMessage(ctx, rpc.MessageParams{
		Sender:    acct.Address,
		Recipient: to,
		Amount:    amount.Nano().String(),
		Bounce:    bounce,
		Payload:   payload,
	})
}

func (w *ExtensionWallet) RunLocal(ctx context.Context, p rpc.RunLocalParams) (*rpc.RunLocalResult, error) {
	return w.client.RunLocal(ctx, p)
}

func (w *ExtensionWallet) SendMessage(ctx context.Context, p rpc.MessageParams) (*models.Transaction, error) {
	return w.client.SendMessage(ctx, p)
}

func (w *ExtensionWallet) EstimateFees(ctx context.Context, p rpc.MessageParams) (string, error) {
	return w.client.EstimateFees(ctx, p)
}

func (w *ExtensionWallet) SendExternalMessage(ctx context.Context, p rpc.ExternalMessageParams, unsigned bool) (*rpc.ExternalMessageResult, error) {
	return w.client.SendExternalMessage(ctx, p, unsigned)
}

func (w *ExtensionWallet) EncodeInternalInput(ctx context.Context, call models.FunctionCall) (string, error) {
	return w.client.EncodeInternalInput(ctx, call)
}

func (w *ExtensionWallet) DecodeTransaction(ctx context.Context, p rpc.DecodeTransactionParams) (*rpc.DecodedTransaction, error) {
	return w.client.DecodeTransaction(ctx, p)
}

func (w *ExtensionWallet) DecodeTransactionEvents(ctx context.Context, tx models.Transaction, abiJSON string) ([]rpc.DecodedEvent, error) {
	return w.client.DecodeTransactionEvents(ctx, tx, abiJSON)
}

func (w *ExtensionWallet) DecodeInput(ctx context.Context, p rpc.DecodeInputParams) (*rpc.DecodedInput, error) {
	return w.client.DecodeInput(ctx, p)
}

func (w *ExtensionWallet) DecodeOutput(ctx context.Context, p rpc.DecodeOutputParams) (*rpc.DecodedOutput, error) {
	return w.client.DecodeOutput(ctx, p)
}

func (w *ExtensionWallet) GetFullContractState(ctx context.Context, addr address.Address) (*models.FullContractState, error) {
	return w.client.GetFullContractState(ctx, addr)
}

func (w *ExtensionWallet) SignData(ctx context.Context, publicKey, data string) (*models.SignedData, error) {
	return w.client.SignData(ctx, rpc.SignDataParams{PublicKey: publicKey, Data: data})
}

func (w *ExtensionWallet) SignDataRaw(ctx context.Context, publicKey, data string) (*models.SignedData, error) {
	return w.client.SignDataRaw(ctx, rpc.SignDataParams{PublicKey: publicKey, Data: data})
}

func (w *ExtensionWallet) VerifySignature(ctx context.Context, p rpc.VerifySignatureParams) (bool, error) {
	return w.client.VerifySignature(ctx, p)
}

func (w *ExtensionWallet) EncryptData(ctx context.Context, p rpc.EncryptDataParams) ([]models.EncryptedData, error) {
	return w.client.EncryptData(ctx, p)
}

func (w *ExtensionWallet) DecryptData(ctx context.Context, data models.EncryptedData) (string, error) {
	return w.client.DecryptData(ctx, data)
}

func (w *ExtensionWallet) PackIntoCell(ctx context.Context, structure []abi.Param, data map[string]any) (string, error) {
	return w.client.PackIntoCell(ctx, structure, data)
}

func (w *ExtensionWallet) UnpackFromCell(ctx context.Context, structure []abi.Param, boc string, allowPartial bool) (map[string]any, error) {
	return w.client.UnpackFromCell(ctx, structure, boc, allowPartial)
}
