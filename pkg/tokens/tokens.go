// Package tokens wraps the TIP-3.1 fungible token and TIP-4 NFT contracts
// on top of a provider. Every wrapper loads its contracts through
// LoadContract, so ABI documents are fetched once per provider.
package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"math/big"
	"strings"

	"github.com/SVOIcom/everscale-connect-backend/pkg/address"
	"github.com/SVOIcom/everscale-connect-backend/pkg/contract"
	"github.com/SVOIcom/everscale-connect-backend/pkg/provider"
)

// ABI names, as keys of provider.ABIURLs.
const (
	ABITokenRoot          = "TIP31_ROOT"
	ABITokenWallet        = "TIP31_WALLET"
	ABICollection         = "TIP41_COLLECTION"
	ABICollectionIndexing = "TIP43_COLLECTION"
	ABICollectionMetadata = "TIP42_COLLECTION_METADATA"
	ABINft                = "TIP41_NFT"
	ABIIndexHelper        = "NFT_INDEX_HELPER"
)

var (
	ErrUnexpectedOutput = errors.New("unexpected contract output")
	// ErrNoAccountSearch is returned by OwnerNfts when the provider cannot
	// list accounts by code hash.
	ErrNoAccountSearch = errors.New("provider cannot search accounts by code hash")
)

// Loader is the part of a provider the wrappers need. provider.Provider
// satisfies it.
type Loader interface {
	LoadContract(ctx context.Context, abiOrURL string, addr address.Address) (*contract.Contract, error)
}

// AccountFinder is implemented by providers that can list accounts by code
// hash, such as the web SDK wallet.
type AccountFinder interface {
	FindAccountsByCodeHash(ctx context.Context, codeHash string) ([]address.Address, error)
}

type options struct {
	abis        map[string]string
	indexHelper address.Address
}

type Option func(*options)

// WithABI replaces the ABI registered under name with an inline document or
// another URL.
func WithABI(name, abiOrURL string) Option {
	return func(o *options) { o.abis[name] = abiOrURL }
}

// WithIndexHelper sets the NFT index helper used by OwnerNfts.
func WithIndexHelper(addr address.Address) Option {
	return func(o *options) { o.indexHelper = addr }
}

func newOptions(opts []Option) options {
	o := options{
		abis:        maps.Clone(provider.ABIURLs),
		indexHelper: address.New(provider.WellKnownAddresses[ABIIndexHelper]),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) load(ctx context.Context, l Loader, name string, addr address.Address) (*contract.Contract, error) {
	src, ok := o.abis[name]
	if !ok {
		return nil, fmt.Errorf("no abi registered as %s", name)
	}
	c, err := l.LoadContract(ctx, src, addr)
	if err != nil {
		return nil, fmt.Errorf("load %s at %s: %w", name, addr, err)
	}
	return c, nil
}

// answering builds the input of a responsible getter.
func answering(params map[string]any) map[string]any {
	in := map[string]any{"answerId": 0}
	for k, v := range params {
		in[k] = v
	}
	return in
}

func call(ctx context.Context, c *contract.Contract, method string, params map[string]any) (map[string]any, error) {
	out, err := c.Call(ctx, method, params, contract.CallOptions{})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return out, nil
}

func stringField(out map[string]any, key string) (string, error) {
	switch v := out[key].(type) {
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	default:
		return "", fmt.Errorf("%w: %s is %T", ErrUnexpectedOutput, key, out[key])
	}
}

func addressField(out map[string]any, key string) (address.Address, error) {
	switch v := out[key].(type) {
	case address.Address:
		return v, nil
	case string:
		return address.New(v), nil
	default:
		return address.Address{}, fmt.Errorf("%w: %s is %T", ErrUnexpectedOutput, key, out[key])
	}
}

// intField reads an integer token. The SDK renders them as decimal or 0x
// prefixed strings; the backend proxy may hand back JSON numbers.
func intField(out map[string]any, key string) (*big.Int, error) {
	var s string
	switch v := out[key].(type) {
	case string:
		s = v
	case json.Number:
		s = v.String()
	case float64:
		f := new(big.Float).SetFloat64(v)
		if !f.IsInt() {
			return nil, fmt.Errorf("%w: %s is not an integer", ErrUnexpectedOutput, key)
		}
		n, _ := f.Int(nil)
		return n, nil
	default:
		return nil, fmt.Errorf("%w: %s is %T", ErrUnexpectedOutput, key, out[key])
	}

	base := 10
	if rest, ok := strings.CutPrefix(s, "0x"); ok {
		s, base = rest, 16
	}
	n, ok := new(big.Int).SetString(s, base)
	if !ok {
		return nil, fmt.Errorf("%w: %s=%q", ErrUnexpectedOutput, key, out[key])
	}
	return n, nil
}

// hashField reads a uint256 hash as 64 lowercase hex digits.
func hashField(out map[string]any, key string) (string, error) {
	n, err := intField(out, key)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%064x", n), nil
}
