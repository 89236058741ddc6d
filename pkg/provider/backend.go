package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/SVOIcom/everscale-connect-backend/pkg/models"
	"github.com/SVOIcom/everscale-connect-backend/pkg/proxyclient"
	"github.com/SVOIcom/everscale-connect-backend/pkg/rpc"
)

// DefaultBackendNetwork is the server the backend proxy queries unless told
// otherwise.
const DefaultBackendNetwork = "eri01.main.everos.dev"

// BackendWallet reads contracts through the backend proxy. It has no account:
// signing, sending and contract subscriptions are unsupported.
type BackendWallet struct {
	*base
	proxy  *proxyclient.Client
	server string
}

var _ variant = (*BackendWallet)(nil)

// NewBackendWallet queries network through proxy. An empty network selects
// DefaultBackendNetwork.
func NewBackendWallet(proxy *proxyclient.Client, network string, opts ...Option) *BackendWallet {
	if network == "" {
		network = DefaultBackendNetwork
	}
	w := &BackendWallet{
		base:   newBase("Everscale Backend", "", opts),
		proxy:  proxy,
		server: network,
	}
	w.bind(w, nil, nil)
	return w
}

func (w *BackendWallet) currentNetwork(context.Context) (string, error) {
	return w.server, nil
}

func (w *BackendWallet) account(context.Context) (*models.AccountInteraction, error) {
	return nil, nil
}

func (w *BackendWallet) onNetwork(Network) {}

// RequestPermissions can only grant basic access.
func (w *BackendWallet) RequestPermissions(_ context.Context, perms ...models.Permission) (*models.AccountInteraction, error) {
	if err := w.ready(); err != nil {
		return nil, err
	}
	if len(perms) == 0 {
		perms = DefaultPermissions
	}
	for _, p := range perms {
		if p != models.PermissionBasic {
			return nil, fmt.Errorf("requestPermissions %s: %w", p, rpc.ErrInsufficientPermissions)
		}
	}
	return nil, nil
}

func (w *BackendWallet) RevokePermissions(context.Context) error {
	return nil
}

func (w *BackendWallet) GetProviderState(context.Context) (*models.ProviderState, error) {
	if err := w.ready(); err != nil {
		return nil, err
	}
	basic := true
	return &models.ProviderState{
		SelectedConnection:   w.server,
		SupportedPermissions: []models.Permission{models.PermissionBasic},
		Permissions:          models.Permissions{Basic: &basic},
	}, nil
}

func (w *BackendWallet) RunLocal(ctx context.Context, p rpc.RunLocalParams) (*rpc.RunLocalResult, error) {
	if err := w.ready(); err != nil {
		return nil, err
	}
	output, err := w.proxy.RunLocal(ctx, w.server, p.Address, p.FunctionCall.Method, p.FunctionCall.Abi, p.FunctionCall.Params)
	if err != nil {
		var tvm *rpc.TvmException
		if errors.As(err, &tvm) {
			return &rpc.RunLocalResult{Code: tvm.Code}, nil
		}
		return nil, err
	}
	return &rpc.RunLocalResult{Output: output}, nil
}

func (w *BackendWallet) EncodeInternalInput(ctx context.Context, call models.FunctionCall) (string, error) {
	if err := w.ready(); err != nil {
		return "", err
	}
	return w.proxy.Payload(ctx, w.server, call.Method, call.Abi, call.Params)
}
