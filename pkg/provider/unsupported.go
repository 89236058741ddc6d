package provider

import (
	"context"

	"github.com/xssnick/tonutils-go/tlb"

	"github.com/SVOIcom/everscale-connect-backend/pkg/abi"
	"github.com/SVOIcom/everscale-connect-backend/pkg/address"
	"github.com/SVOIcom/everscale-connect-backend/pkg/models"
	"github.com/SVOIcom/everscale-connect-backend/pkg/rpc"
)

// Defaults for operations a variant does not override.

func (b *base) RequestPermissions(context.Context, ...models.Permission) (*models.AccountInteraction, error) {
	return nil, b.unsupported("requestPermissions")
}

func (b *base) RevokePermissions(context.Context) error {
	return b.unsupported("revokePermissions")
}

func (b *base) GetProviderState(context.Context) (*models.ProviderState, error) {
	return nil, b.unsupported("getProviderState")
}

func (b *base) WalletTransfer(context.Context, address.Address, tlb.Coins, *models.FunctionCall, bool) (*models.Transaction, error) {
	return nil, b.unsupported("walletTransfer")
}

func (b *base) RunLocal(context.Context, rpc.RunLocalParams) (*rpc.RunLocalResult, error) {
	return nil, b.unsupported("runLocal")
}

func (b *base) SendMessage(context.Context, rpc.MessageParams) (*models.Transaction, error) {
	return nil, b.unsupported("sendMessage")
}

func (b *base) EstimateFees(context.Context, rpc.MessageParams) (string, error) {
	return "", b.unsupported("estimateFees")
}

func (b *base) SendExternalMessage(context.Context, rpc.ExternalMessageParams, bool) (*rpc.ExternalMessageResult, error) {
	return nil, b.unsupported("sendExternalMessage")
}

func (b *base) EncodeInternalInput(context.Context, models.FunctionCall) (string, error) {
	return "", b.unsupported("encodeInternalInput")
}

func (b *base) DecodeTransaction(context.Context, rpc.DecodeTransactionParams) (*rpc.DecodedTransaction, error) {
	return nil, b.unsupported("decodeTransaction")
}

func (b *base) DecodeTransactionEvents(context.Context, models.Transaction, string) ([]rpc.DecodedEvent, error) {
	return nil, b.unsupported("decodeTransactionEvents")
}

func (b *base) DecodeInput(context.Context, rpc.DecodeInputParams) (*rpc.DecodedInput, error) {
	return nil, b.unsupported("decodeInput")
}

func (b *base) DecodeOutput(context.Context, rpc.DecodeOutputParams) (*rpc.DecodedOutput, error) {
	return nil, b.unsupported("decodeOutput")
}

func (b *base) GetFullContractState(context.Context, address.Address) (*models.FullContractState, error) {
	return nil, b.unsupported("getFullContractState")
}

func (b *base) SignData(context.Context, string, string) (*models.SignedData, error) {
	return nil, b.unsupported("signData")
}

func (b *base) SignDataRaw(context.Context, string, string) (*models.SignedData, error) {
	return nil, b.unsupported("signDataRaw")
}

func (b *base) VerifySignature(context.Context, rpc.VerifySignatureParams) (bool, error) {
	return false, b.unsupported("verifySignature")
}

func (b *base) EncryptData(context.Context, rpc.EncryptDataParams) ([]models.EncryptedData, error) {
	return nil, b.unsupported("encryptData")
}

func (b *base) DecryptData(context.Context, models.EncryptedData) (string, error) {
	return "", b.unsupported("decryptData")
}

func (b *base) PackIntoCell(context.Context, []abi.Param, map[string]any) (string, error) {
	return "", b.unsupported("packIntoCell")
}

func (b *base) UnpackFromCell(context.Context, []abi.Param, string, bool) (map[string]any, error) {
	return nil, b.unsupported("unpackFromCell")
}
