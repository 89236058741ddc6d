package everclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/SVOIcom/everscale-connect-backend/pkg/address"
	"github.com/SVOIcom/everscale-connect-backend/pkg/models"
)

//go:generate mockgen -source=sdk.go -destination=mocks/mock_sdk.go -package=mocks

var ErrAccountNotFound = errors.New("account not found")

// SDK is the subset of chain SDK operations the proxy and the web SDK wallet
// need.
type SDK interface {
	// RunLocal executes method on the current account state without
	// broadcasting and returns the decoded output.
	RunLocal(ctx context.Context, addr address.Address, abiJSON, method string, input map[string]any) (map[string]any, error)
	// EncodeInternalBody encodes an unsigned internal message body.
	EncodeInternalBody(ctx context.Context, abiJSON, method string, input map[string]any) (string, error)
	// GetAccount returns nil when the account does not exist.
	GetAccount(ctx context.Context, addr address.Address) (*models.FullContractState, error)
	// FindAccounts lists accounts whose code hash is codeHash.
	FindAccounts(ctx context.Context, codeHash string) ([]address.Address, error)
}

// Factory hands out SDK clients per network server.
type Factory interface {
	Get(network string) SDK
}

var _ SDK = (*Client)(nil)

type abiSpec struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type callSet struct {
	FunctionName string         `json:"function_name"`
	Input        map[string]any `json:"input"`
}

type signer struct {
	Type string `json:"type"`
}

var noSigner = signer{Type: "None"}

func jsonABI(abiJSON string) abiSpec {
	return abiSpec{Type: "Json", Value: abiJSON}
}

type queryCollectionParams struct {
	Collection string         `json:"collection"`
	Filter     map[string]any `json:"filter"`
	Result     string         `json:"result"`
	Limit      int            `json:"limit,omitempty"`
}

type queryCollectionResult struct {
	Result []json.RawMessage `json:"result"`
}

type encodeMessageParams struct {
	Abi     abiSpec `json:"abi"`
	Address string  `json:"address"`
	CallSet callSet `json:"call_set"`
	Signer  signer  `json:"signer"`
}

type encodeMessageResult struct {
	Message   string `json:"message"`
	MessageID string `json:"message_id"`
}

type runTvmParams struct {
	Message string  `json:"message"`
	Account string  `json:"account"`
	Abi     abiSpec `json:"abi"`
}

type runTvmResult struct {
	Decoded *struct {
		Output map[string]any `json:"output"`
	} `json:"decoded"`
}

type encodeMessageBodyParams struct {
	Abi        abiSpec `json:"abi"`
	CallSet    callSet `json:"call_set"`
	IsInternal bool    `json:"is_internal"`
	Signer     signer  `json:"signer"`
}

type encodeMessageBodyResult struct {
	Body string `json:"body"`
}

type accountRecord struct {
	ID          string      `json:"id"`
	AccType     int         `json:"acc_type"`
	Balance     json.Number `json:"balance"`
	Boc         string      `json:"boc"`
	CodeHash    string      `json:"code_hash"`
	LastTransLt json.Number `json:"last_trans_lt"`
	LastPaid    int64       `json:"last_paid"`
}

const accountFields = "id acc_type balance(format: DEC) boc code_hash last_trans_lt(format: DEC) last_paid"

// accActive is the acc_type of a deployed account.
const accActive = 1

func (c *Client) queryAccount(ctx context.Context, addr address.Address, fields string) (json.RawMessage, error) {
	var res queryCollectionResult
	err := c.call(ctx, "net.query_collection", queryCollectionParams{
		Collection: "accounts",
		Filter:     map[string]any{"id": map[string]any{"eq": addr.String()}},
		Result:     fields,
		Limit:      1,
	}, &res)
	if err != nil {
		return nil, err
	}
	if len(res.Result) == 0 {
		return nil, nil
	}
	return res.Result[0], nil
}

func (c *Client) RunLocal(ctx context.Context, addr address.Address, abiJSON, method string, input map[string]any) (map[string]any, error) {
	raw, err := c.queryAccount(ctx, addr, "boc")
	if err != nil {
		return nil, fmt.Errorf("query account: %w", err)
	}
	var account struct {
		Boc string `json:"boc"`
	}
	if raw != nil {
		if err := json.Unmarshal(raw, &account); err != nil {
			return nil, fmt.Errorf("decode account: %w", err)
		}
	}
	if account.Boc == "" {
		return nil, fmt.Errorf("%s: %w", addr, ErrAccountNotFound)
	}

	if input == nil {
		input = map[string]any{}
	}
	var msg encodeMessageResult
	err = c.call(ctx, "abi.encode_message", encodeMessageParams{
		Abi:     jsonABI(abiJSON),
		Address: addr.String(),
		CallSet: callSet{FunctionName: method, Input: input},
		Signer:  noSigner,
	}, &msg)
	if err != nil {
		return nil, err
	}

	var run runTvmResult
	err = c.call(ctx, "tvm.run_tvm", runTvmParams{
		Message: msg.Message,
		Account: account.Boc,
		Abi:     jsonABI(abiJSON),
	}, &run)
	if err != nil {
		return nil, err
	}
	if run.Decoded == nil {
		return nil, nil
	}
	return run.Decoded.Output, nil
}

func (c *Client) EncodeInternalBody(ctx context.Context, abiJSON, method string, input map[string]any) (string, error) {
	if input == nil {
		input = map[string]any{}
	}
	var res encodeMessageBodyResult
	err := c.call(ctx, "abi.encode_message_body", encodeMessageBodyParams{
		Abi:        jsonABI(abiJSON),
		CallSet:    callSet{FunctionName: method, Input: input},
		IsInternal: true,
		Signer:     noSigner,
	}, &res)
	if err != nil {
		return "", err
	}
	return res.Body, nil
}

func (c *Client) GetAccount(ctx context.Context, addr address.Address) (*models.FullContractState, error) {
	raw, err := c.queryAccount(ctx, addr, accountFields)
	if err != nil {
		return nil, fmt.Errorf("query account: %w", err)
	}
	if raw == nil {
		return nil, nil
	}
	var rec accountRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode account: %w", err)
	}
	state := &models.FullContractState{
		ContractState: models.ContractState{
			Balance:    rec.Balance.String(),
			GenTimings: models.GenTimings{GenUtime: rec.LastPaid},
			IsDeployed: rec.AccType == accActive,
			CodeHash:   rec.CodeHash,
		},
		Boc: rec.Boc,
	}
	if lt := rec.LastTransLt.String(); lt != "" {
		state.LastTransactionID = &models.LastTransactionID{IsExact: true, Lt: lt}
	}
	return state, nil
}

func (c *Client) FindAccounts(ctx context.Context, codeHash string) ([]address.Address, error) {
	var res queryCollectionResult
	err := c.call(ctx, "net.query_collection", queryCollectionParams{
		Collection: "accounts",
		Filter:     map[string]any{"code_hash": map[string]any{"eq": codeHash}},
		Result:     "id",
	}, &res)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	out := make([]address.Address, 0, len(res.Result))
	for _, raw := range res.Result {
		var rec struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("decode account: %w", err)
		}
		out = append(out, address.New(rec.ID))
	}
	return out, nil
}
