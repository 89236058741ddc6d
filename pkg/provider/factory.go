package provider

import (
	"errors"
	"fmt"
	"strings"

	"github.com/SVOIcom/everscale-connect-backend/internal/everclient"
	"github.com/SVOIcom/everscale-connect-backend/pkg/proxyclient"
	"github.com/SVOIcom/everscale-connect-backend/pkg/rpc"
)

type Kind string

const (
	KindEverWallet      Kind = "everwallet"
	KindEverscaleWallet Kind = "everscalewallet"
	KindEverBackendWeb  Kind = "everbackendweb"
)

// Deprecated names still accepted by ParseKind.
var kindAliases = map[string]Kind{
	"crystalwallet": KindEverWallet,
	"tonwallet":     KindEverscaleWallet,
	"tonbackendweb": KindEverBackendWeb,
}

var errMissingDependency = errors.New("missing provider dependency")

func ParseKind(s string) (Kind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	switch k := Kind(name); k {
	case KindEverWallet, KindEverscaleWallet, KindEverBackendWeb:
		return k, nil
	}
	if k, ok := kindAliases[name]; ok {
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
}

// Deps carries what the variants are built from. Only the fields of the
// requested kind are needed.
type Deps struct {
	// Transport reaches the extension wallet runtime.
	Transport rpc.Transport
	// Runtime and SDKs back the web SDK wallet.
	Runtime WalletRuntime
	SDKs    everclient.Factory
	// Proxy and Network back the backend wallet.
	Proxy   *proxyclient.Client
	Network string
}

// New builds the provider for kind. The provider is not started.
func New(kind string, deps Deps, opts ...Option) (Provider, error) {
	k, err := ParseKind(kind)
	if err != nil {
		return nil, err
	}
	switch k {
	case KindEverWallet:
		if deps.Transport == nil {
			return nil, fmt.Errorf("%s: %w: transport", k, errMissingDependency)
		}
		return NewExtensionWallet(deps.Transport, opts...), nil
	case KindEverscaleWallet:
		if deps.Runtime == nil || deps.SDKs == nil {
			return nil, fmt.Errorf("%s: %w: runtime and sdk factory", k, errMissingDependency)
		}
		return NewWebSDKWallet(deps.Runtime, deps.SDKs, opts...), nil
	default:
		if deps.Proxy == nil {
			return nil, fmt.Errorf("%s: %w: proxy client", k, errMissingDependency)
		}
		return NewBackendWallet(deps.Proxy, deps.Network, opts...), nil
	}
}
