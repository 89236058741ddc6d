package tokens

import (
	"context"
	"math/big"

	"github.com/xssnick/tonutils-go/tlb"

	"github.com/SVOIcom/everscale-connect-backend/pkg/address"
	"github.com/SVOIcom/everscale-connect-backend/pkg/contract"
)

// DefaultDeployWalletValue is attached to a new token wallet on deploy.
var DefaultDeployWalletValue = tlb.MustFromTON("0.5")

type TokenInfo struct {
	Name        string
	Symbol      string
	Decimals    int
	TotalSupply *big.Int
}

// TokenRoot is a TIP-3.1 token root.
type TokenRoot struct {
	loader   Loader
	opts     options
	contract *contract.Contract
}

func NewTokenRoot(ctx context.Context, l Loader, addr address.Address, opts ...Option) (*TokenRoot, error) {
	o := newOptions(opts)
	c, err := o.load(ctx, l, ABITokenRoot, addr)
	if err != nil {
		return nil, err
	}
	return &TokenRoot{loader: l, opts: o, contract: c}, nil
}

func (r *TokenRoot) Address() address.Address {
	return r.contract.Address()
}

func (r *TokenRoot) GetTokenInfo(ctx context.Context) (*TokenInfo, error) {
	info := &TokenInfo{}
	for _, getter := range []struct {
		method string
		dst    *string
	}{
		{"name", &info.Name},
		{"symbol", &info.Symbol},
	} {
		out, err := call(ctx, r.contract, getter.method, answering(nil))
		if err != nil {
			return nil, err
		}
		if *getter.dst, err = stringField(out, "value0"); err != nil {
			return nil, err
		}
	}

	out, err := call(ctx, r.contract, "decimals", answering(nil))
	if err != nil {
		return nil, err
	}
	decimals, err := intField(out, "value0")
	if err != nil {
		return nil, err
	}
	info.Decimals = int(decimals.Int64())

	out, err = call(ctx, r.contract, "totalSupply", answering(nil))
	if err != nil {
		return nil, err
	}
	if info.TotalSupply, err = intField(out, "value0"); err != nil {
		return nil, err
	}
	return info, nil
}

// WalletOf returns the token wallet address of owner. The wallet may not be
// deployed yet.
func (r *TokenRoot) WalletOf(ctx context.Context, owner address.Address) (address.Address, error) {
	out, err := call(ctx, r.contract, "walletOf", answering(map[string]any{"walletOwner": owner}))
	if err != nil {
		return address.Address{}, err
	}
	return addressField(out, "value0")
}

// Wallet binds the token wallet of owner.
func (r *TokenRoot) Wallet(ctx context.Context, owner address.Address) (*TokenWallet, error) {
	addr, err := r.WalletOf(ctx, owner)
	if err != nil {
		return nil, err
	}
	c, err := r.opts.load(ctx, r.loader, ABITokenWallet, addr)
	if err != nil {
		return nil, err
	}
	return &TokenWallet{contract: c}, nil
}

// DeployWalletPayload encodes the root call deploying a wallet for owner.
// The message carrying it must be sent to the root with enough value to
// cover deployValue.
func (r *TokenRoot) DeployWalletPayload(ctx context.Context, owner address.Address, deployValue tlb.Coins) (string, error) {
	return r.contract.Payload(ctx, "deployWallet", answering(map[string]any{
		"walletOwner":       owner,
		"deployWalletValue": deployValue.Nano().String(),
	}))
}

// TokenWallet is a TIP-3.1 token wallet.
type TokenWallet struct {
	contract *contract.Contract
}

func NewTokenWallet(ctx context.Context, l Loader, addr address.Address, opts ...Option) (*TokenWallet, error) {
	c, err := newOptions(opts).load(ctx, l, ABITokenWallet, addr)
	if err != nil {
		return nil, err
	}
	return &TokenWallet{contract: c}, nil
}

func (w *TokenWallet) Address() address.Address {
	return w.contract.Address()
}

// Balance is in the token's smallest units.
func (w *TokenWallet) Balance(ctx context.Context) (*big.Int, error) {
	out, err := call(ctx, w.contract, "balance", answering(nil))
	if err != nil {
		return nil, err
	}
	return intField(out, "value0")
}

// Transfer describes a wallet to wallet token transfer. A zero
// RemainingGasTo returns the change to the sending wallet.
type Transfer struct {
	To             address.Address
	Amount         *big.Int
	RemainingGasTo address.Address
	Notify         bool
	Payload        string
}

// TransferPayload encodes transferToWallet. The owner sends it to this
// wallet as an internal message.
func (w *TokenWallet) TransferPayload(ctx context.Context, t Transfer) (string, error) {
	gasTo := t.RemainingGasTo
	if gasTo.IsZero() {
		gasTo = w.contract.Address()
	}
	amount := "0"
	if t.Amount != nil {
		amount = t.Amount.String()
	}
	return w.contract.Payload(ctx, "transferToWallet", map[string]any{
		"amount":               amount,
		"recipientTokenWallet": t.To,
		"remainingGasTo":       gasTo,
		"notify":               t.Notify,
		"payload":              t.Payload,
	})
}
