package rpc

import (
	"github.com/SVOIcom/everscale-connect-backend/pkg/address"
	"github.com/SVOIcom/everscale-connect-backend/pkg/models"
)

type TransactionsQuery struct {
	Address      address.Address       `json:"address"`
	Continuation *models.TransactionID `json:"continuation,omitempty"`
	Limit        int                   `json:"limit,omitempty"`
}

type TransactionsPage struct {
	Transactions []models.Transaction          `json:"transactions"`
	Continuation *models.TransactionID         `json:"continuation,omitempty"`
	Info         *models.TransactionsBatchInfo `json:"info,omitempty"`
}

type ExpectedAddressParams struct {
	Tvc        string         `json:"tvc"`
	InitParams map[string]any `json:"initParams"`
	PublicKey  string         `json:"publicKey,omitempty"`
}

type SplitTvcResult struct {
	Data *string `json:"data"`
	Code *string `json:"code"`
}

type VerifySignatureParams struct {
	PublicKey string `json:"publicKey"`
	DataHash  string `json:"dataHash"`
	Signature string `json:"signature"`
}

type SignDataParams struct {
	PublicKey string `json:"publicKey"`
	Data      string `json:"data"`
}

type EncryptDataParams struct {
	PublicKey           string   `json:"publicKey"`
	RecipientPublicKeys []string `json:"recipientPublicKeys"`
	Algorithm           string   `json:"algorithm"`
	Data                string   `json:"data"`
}

// MessageParams describes an internal message from a wallet.
type MessageParams struct {
	Sender    address.Address      `json:"sender"`
	Recipient address.Address      `json:"recipient"`
	Amount    string               `json:"amount"`
	Bounce    bool                 `json:"bounce"`
	Payload   *models.FunctionCall `json:"payload,omitempty"`
}

type ExternalMessageParams struct {
	PublicKey string              `json:"publicKey"`
	Recipient address.Address     `json:"recipient"`
	StateInit string              `json:"stateInit,omitempty"`
	Payload   models.FunctionCall `json:"payload"`
	Local     bool                `json:"local,omitempty"`
}

type ExternalMessageResult struct {
	Transaction models.Transaction `json:"transaction"`
	Output      map[string]any     `json:"output,omitempty"`
}

type RunLocalParams struct {
	Address      address.Address           `json:"address"`
	CachedState  *models.FullContractState `json:"cachedState,omitempty"`
	Responsible  bool                      `json:"responsible,omitempty"`
	FunctionCall models.FunctionCall       `json:"functionCall"`
}

// RunLocalResult carries the raw output, nil when execution produced none.
type RunLocalResult struct {
	Output map[string]any `json:"output"`
	Code   int            `json:"code"`
}

type DecodeTransactionParams struct {
	Transaction models.Transaction `json:"transaction"`
	Abi         string             `json:"abi"`
	Method      any                `json:"method"`
}

type DecodedTransaction struct {
	Method string         `json:"method"`
	Input  map[string]any `json:"input"`
	Output map[string]any `json:"output"`
}

type DecodedEvent struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

type DecodeInputParams struct {
	Abi      string `json:"abi"`
	Body     string `json:"body"`
	Internal bool   `json:"internal"`
	Method   any    `json:"method"`
}

type DecodedInput struct {
	Method string         `json:"method"`
	Input  map[string]any `json:"input"`
}

type DecodeOutputParams struct {
	Abi    string `json:"abi"`
	Body   string `json:"body"`
	Method any    `json:"method"`
}

type DecodedOutput struct {
	Method string         `json:"method"`
	Output map[string]any `json:"output"`
}
