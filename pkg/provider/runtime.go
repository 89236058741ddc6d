package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/xssnick/tonutils-go/tlb"

	"github.com/SVOIcom/everscale-connect-backend/pkg/abi"
	"github.com/SVOIcom/everscale-connect-backend/pkg/address"
	"github.com/SVOIcom/everscale-connect-backend/pkg/models"
	"github.com/SVOIcom/everscale-connect-backend/pkg/rpc"
)

// RPCRuntime is a WalletRuntime reached over a JSON-RPC transport. Method
// names follow the web SDK namespaces (network.*, accounts.*, everscale.*).
type RPCRuntime struct {
	transport rpc.Transport
}

var _ WalletRuntime = (*RPCRuntime)(nil)

func NewRPCRuntime(transport rpc.Transport) *RPCRuntime {
	return &RPCRuntime{transport: transport}
}

func (r *RPCRuntime) request(ctx context.Context, method string, params, out any) error {
	raw, err := r.transport.Request(ctx, method, params)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%s: unmarshal result: %w", method, err)
	}
	return nil
}

func (r *RPCRuntime) NetworkServer(ctx context.Context) (string, error) {
	var out struct {
		Network struct {
			URL string `json:"url"`
		} `json:"network"`
	}
	if err := r.request(ctx, "network.get", nil, &out); err != nil {
		return "", err
	}
	return out.Network.URL, nil
}

func (r *RPCRuntime) PublicKey(ctx context.Context) (string, error) {
	var out struct {
		Public string `json:"public"`
	}
	err := r.request(ctx, "accounts.getAccount", nil, &out)
	return out.Public, err
}

func (r *RPCRuntime) WalletInfo(ctx context.Context) (WalletInfo, error) {
	var out WalletInfo
	err := r.request(ctx, "accounts.getWalletInfo", nil, &out)
	return out, err
}

func (r *RPCRuntime) WalletTransfer(ctx context.Context, publicKey string, from, to address.Address, amount tlb.Coins, payload string, bounce bool) (*models.Transaction, error) {
	params := map[string]any{
		"publicKey": publicKey,
		"from":      from,
		"to":        to,
		"amount":    amount.Nano().String(),
		"payload":   payload,
		"bounce":    bounce,
	}
	var out struct {
		Transaction models.Transaction `json:"transaction"`
	}
	if err := r.request(ctx, "accounts.walletTransfer", params, &out); err != nil {
		return nil, err
	}
	return &out.Transaction, nil
}

func (r *RPCRuntime) SignDataRaw(ctx context.Context, publicKey, data string) (*models.SignedData, error) {
	var out models.SignedData
	params := rpc.SignDataParams{PublicKey: publicKey, Data: data}
	if err := r.request(ctx, "accounts.signDataRaw", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *RPCRuntime) PackIntoCell(ctx context.Context, structure []abi.Param, data map[string]any) (string, error) {
	var out struct {
		Boc string `json:"boc"`
	}
	params := map[string]any{"structure": structure, "data": data}
	err := r.request(ctx, "everscale.packIntoCell", params, &out)
	return out.Boc, err
}

func (r *RPCRuntime) UnpackFromCell(ctx context.Context, structure []abi.Param, boc string, allowPartial bool) (map[string]any, error) {
	var out struct {
		Data map[string]any `json:"data"`
	}
	params := map[string]any{"structure": structure, "boc": boc, "allowPartial": allowPartial}
	if err := r.request(ctx, "everscale.unpackFromCell", params, &out); err != nil {
		return nil, err
	}
	return abi.ParseObject(structure, out.Data)
}

func (r *RPCRuntime) VerifySignature(ctx context.Context, p rpc.VerifySignatureParams) (bool, error) {
	var out struct {
		IsValid bool `json:"isValid"`
	}
	err := r.request(ctx, "everscale.verifySignature", p, &out)
	return out.IsValid, err
}
