// Package provider exposes one application-facing wallet interface over the
// supported connection variants: an injected extension wallet, a web SDK
// wallet and the read-only backend proxy.
package provider

import (
	"context"
	"errors"

	"github.com/xssnick/tonutils-go/tlb"

	"github.com/SVOIcom/everscale-connect-backend/pkg/abi"
	"github.com/SVOIcom/everscale-connect-backend/pkg/address"
	"github.com/SVOIcom/everscale-connect-backend/pkg/contract"
	"github.com/SVOIcom/everscale-connect-backend/pkg/models"
	"github.com/SVOIcom/everscale-connect-backend/pkg/rpc"
	"github.com/SVOIcom/everscale-connect-backend/pkg/subscription"
)

// Events published through On.
const (
	EventConnected            = "connected"
	EventDisconnected         = "disconnected"
	EventNetworkChanged       = "networkChanged"
	EventPubkeyChanged        = "pubkeyChanged"
	EventAddressChanged       = "addressChanged"
	EventBalanceChanged       = "balanceChanged"
	EventPermissionsChanged   = "permissionsChanged"
	EventLoggedOut            = "loggedOut"
	EventTransactionsFound    = "transactionsFound"
	EventContractStateChanged = "contractStateChanged"
)

var knownEvents = map[string]struct{}{
	EventConnected:            {},
	EventDisconnected:         {},
	EventNetworkChanged:       {},
	EventPubkeyChanged:        {},
	EventAddressChanged:       {},
	EventBalanceChanged:       {},
	EventPermissionsChanged:   {},
	EventLoggedOut:            {},
	EventTransactionsFound:    {},
	EventContractStateChanged: {},
}

var (
	ErrUnknownEvent = errors.New("unknown provider event")
	ErrInvalidKind  = errors.New("invalid provider")
	ErrClosed       = errors.New("provider closed")
)

// Event is delivered to handlers registered with On. Data holds the new
// value; Previous holds the replaced one for change events.
type Event struct {
	Name     string
	Provider Provider
	Data     any
	Previous any
	// Wallet is set for balanceChanged.
	Wallet *Wallet
}

type Handler func(Event)

// Keypair never carries a secret key; wallets keep it to themselves.
type Keypair struct {
	Public string
	Secret string
}

type Network struct {
	Server   string
	Name     string
	Explorer string
}

// Wallet is the connected account. Address is zero and Contract nil when no
// account is available.
type Wallet struct {
	Address  address.Address
	Balance  tlb.Coins
	Contract *contract.Contract
}

// Provider is the capability surface applications program against.
type Provider interface {
	Name() string
	IconURL() string

	// Start connects to the runtime, records the initial network and account
	// silently and launches the watchdog. Close stops it.
	Start(ctx context.Context) error
	Close() error

	RequestPermissions(ctx context.Context, perms ...models.Permission) (*models.AccountInteraction, error)
	RevokePermissions(ctx context.Context) error
	GetProviderState(ctx context.Context) (*models.ProviderState, error)

	GetWallet(ctx context.Context) (*Wallet, error)
	GetKeypair(ctx context.Context) (Keypair, error)
	GetNetwork(ctx context.Context) (Network, error)
	// WalletTransfer sends amount from the connected wallet. payload may be
	// nil for a plain transfer.
	WalletTransfer(ctx context.Context, to address.Address, amount tlb.Coins, payload *models.FunctionCall, bounce bool) (*models.Transaction, error)

	// LoadContract accepts an ABI URL or an inline ABI document.
	LoadContract(ctx context.Context, abiOrURL string, addr address.Address) (*contract.Contract, error)
	BindContract(d *abi.Descriptor, addr address.Address) *contract.Contract

	Subscribe(ctx context.Context, kind subscription.Kind, addr address.Address) (*subscription.Subscription, error)
	On(event string, h Handler) error

	SignData(ctx context.Context, publicKey, data string) (*models.SignedData, error)
	SignDataRaw(ctx context.Context, publicKey, data string) (*models.SignedData, error)
	VerifySignature(ctx context.Context, p rpc.VerifySignatureParams) (bool, error)
	EncryptData(ctx context.Context, p rpc.EncryptDataParams) ([]models.EncryptedData, error)
	DecryptData(ctx context.Context, data models.EncryptedData) (string, error)
	PackIntoCell(ctx context.Context, structure []abi.Param, data map[string]any) (string, error)
	UnpackFromCell(ctx context.Context, structure []abi.Param, boc string, allowPartial bool) (map[string]any, error)
}

// DefaultPermissions is requested when RequestPermissions gets none.
var DefaultPermissions = []models.Permission{
	models.PermissionBasic,
	models.PermissionAccountInteraction,
}
