// Package models holds the wire models exchanged with wallet runtimes and the
// backend proxy.
package models

import (
	"github.com/SVOIcom/everscale-connect-backend/pkg/address"
)

type AccountStatus string

const (
	AccountUninit   AccountStatus = "uninit"
	AccountFrozen   AccountStatus = "frozen"
	AccountActive   AccountStatus = "active"
	AccountNonexist AccountStatus = "nonexist"
)

type TransactionID struct {
	Lt   string `json:"lt"`
	Hash string `json:"hash"`
}

type LastTransactionID struct {
	IsExact bool   `json:"isExact"`
	Lt      string `json:"lt"`
	Hash    string `json:"hash,omitempty"`
}

type Message struct {
	Hash     string           `json:"hash"`
	Src      *address.Address `json:"src,omitempty"`
	Dst      *address.Address `json:"dst,omitempty"`
	Value    string           `json:"value"`
	Bounce   bool             `json:"bounce"`
	Bounced  bool             `json:"bounced"`
	Body     string           `json:"body,omitempty"`
	BodyHash string           `json:"bodyHash,omitempty"`
}

// Transaction is a processed account transaction. Transactions are ordered by
// the logical time in ID.Lt.
type Transaction struct {
	ID                TransactionID  `json:"id"`
	PrevTransactionID *TransactionID `json:"prevTransactionId,omitempty"`
	CreatedAt         int64          `json:"createdAt"`
	Aborted           bool           `json:"aborted"`
	ExitCode          *int           `json:"exitCode,omitempty"`
	ResultCode        *int           `json:"resultCode,omitempty"`
	OrigStatus        AccountStatus  `json:"origStatus"`
	EndStatus         AccountStatus  `json:"endStatus"`
	TotalFees         string         `json:"totalFees"`
	InMessage         Message        `json:"inMessage"`
	OutMessages       []Message      `json:"outMessages"`
}

type BatchType string

const (
	BatchOld BatchType = "old"
	BatchNew BatchType = "new"
)

type TransactionsBatchInfo struct {
	MinLt     string    `json:"minLt"`
	MaxLt     string    `json:"maxLt"`
	BatchType BatchType `json:"batchType"`
}

type GenTimings struct {
	GenLt    string `json:"genLt"`
	GenUtime int64  `json:"genUtime"`
}

type ContractState struct {
	Balance           string             `json:"balance"`
	GenTimings        GenTimings         `json:"genTimings"`
	LastTransactionID *LastTransactionID `json:"lastTransactionId,omitempty"`
	IsDeployed        bool               `json:"isDeployed"`
	CodeHash          string             `json:"codeHash,omitempty"`
}

type FullContractState struct {
	ContractState
	Boc string `json:"boc"`
}

type WalletContractType string

const (
	WalletSafeMultisig       WalletContractType = "SafeMultisigWallet"
	WalletSafeMultisig24h    WalletContractType = "SafeMultisigWallet24h"
	WalletSetcodeMultisig    WalletContractType = "SetcodeMultisigWallet"
	WalletBridgeMultisig     WalletContractType = "BridgeMultisigWallet"
	WalletSurf               WalletContractType = "SurfWallet"
	WalletV3                 WalletContractType = "WalletV3"
	WalletEverWallet         WalletContractType = "EverWallet"
	WalletHighloadWalletV2   WalletContractType = "HighloadWalletV2"
	WalletMultisig2          WalletContractType = "Multisig2"
	WalletMultisig2With24Hrs WalletContractType = "Multisig2_1"
)

type AccountInteraction struct {
	Address      address.Address    `json:"address"`
	PublicKey    string             `json:"publicKey"`
	ContractType WalletContractType `json:"contractType"`
}

type Permission string

const (
	PermissionBasic              Permission = "basic"
	PermissionAccountInteraction Permission = "accountInteraction"
)

// Permissions is the set of permissions granted to the application. Fields
// are nil when the permission is not granted.
type Permissions struct {
	Basic              *bool               `json:"basic,omitempty"`
	AccountInteraction *AccountInteraction `json:"accountInteraction,omitempty"`
}

func (p Permissions) HasBasic() bool {
	return p.Basic != nil && *p.Basic
}

type ContractUpdatesSubscription struct {
	State        bool `json:"state"`
	Transactions bool `json:"transactions"`
}

// Union merges the flags of two subscription requests.
func (s ContractUpdatesSubscription) Union(other ContractUpdatesSubscription) ContractUpdatesSubscription {
	return ContractUpdatesSubscription{
		State:        s.State || other.State,
		Transactions: s.Transactions || other.Transactions,
	}
}

func (s ContractUpdatesSubscription) IsEmpty() bool {
	return !s.State && !s.Transactions
}

type ProviderState struct {
	Version              string                                 `json:"version"`
	NumericVersion       int64                                  `json:"numericVersion"`
	SelectedConnection   string                                 `json:"selectedConnection"`
	SupportedPermissions []Permission                           `json:"supportedPermissions"`
	Permissions          Permissions                            `json:"permissions"`
	Subscriptions        map[string]ContractUpdatesSubscription `json:"subscriptions"`
}

// FunctionCall is an unencoded call payload: ABI, method and parameters.
type FunctionCall struct {
	Abi    string         `json:"abi"`
	Method string         `json:"method"`
	Params map[string]any `json:"params"`
}

type EncryptedData struct {
	Algorithm          string `json:"algorithm"`
	SourcePublicKey    string `json:"sourcePublicKey"`
	RecipientPublicKey string `json:"recipientPublicKey"`
	Data               string `json:"data"`
	Nonce              string `json:"nonce"`
}

type SignedData struct {
	DataHash       string `json:"dataHash,omitempty"`
	Signature      string `json:"signature"`
	SignatureHex   string `json:"signatureHex"`
	SignatureParts any    `json:"signatureParts,omitempty"`
}

type TransactionsFound struct {
	Address      address.Address       `json:"address"`
	Transactions []Transaction         `json:"transactions"`
	Info         TransactionsBatchInfo `json:"info"`
}

type ContractStateChanged struct {
	Address address.Address `json:"address"`
	State   ContractState   `json:"state"`
}

type PermissionsChanged struct {
	Permissions Permissions `json:"permissions"`
}

type NetworkChanged struct {
	SelectedConnection string `json:"selectedConnection"`
}
