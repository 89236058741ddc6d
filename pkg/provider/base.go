package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	evbus "github.com/asaskevich/EventBus"
	"github.com/xssnick/tonutils-go/tlb"
	"golang.org/x/sync/singleflight"

	"github.com/SVOIcom/everscale-connect-backend/pkg/abi"
	"github.com/SVOIcom/everscale-connect-backend/pkg/address"
	"github.com/SVOIcom/everscale-connect-backend/pkg/contract"
	"github.com/SVOIcom/everscale-connect-backend/pkg/models"
	"github.com/SVOIcom/everscale-connect-backend/pkg/rpc"
	"github.com/SVOIcom/everscale-connect-backend/pkg/subscription"
)

const (
	abiFetchTimeout = 30 * time.Second
	maxABISize      = 4 << 20
)

type options struct {
	logger        *slog.Logger
	httpClient    *http.Client
	watchInterval time.Duration
	resultTimeout time.Duration
	walletABI     string
	detect        rpc.Detector
}

type Option func(*options)

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithHTTPClient sets the client used to fetch ABI documents.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

func WithWatchInterval(d time.Duration) Option {
	return func(o *options) { o.watchInterval = d }
}

// WithResultTimeout is passed to every contract the provider creates.
func WithResultTimeout(d time.Duration) Option {
	return func(o *options) { o.resultTimeout = d }
}

// WithWalletABI overrides the ABI used for the connected wallet contract.
func WithWalletABI(abiOrURL string) Option {
	return func(o *options) { o.walletABI = abiOrURL }
}

// WithDetector sets the runtime availability check of the extension wallet.
func WithDetector(d rpc.Detector) Option {
	return func(o *options) { o.detect = d }
}

// variant is implemented by each concrete provider. The base calls back into
// it so that contracts and the watchdog see the variant's own operations.
type variant interface {
	Provider
	contract.Provider
	currentNetwork(ctx context.Context) (string, error)
	// account returns nil when no account is connected.
	account(ctx context.Context) (*models.AccountInteraction, error)
	onNetwork(n Network)
}

type contractKey struct {
	abi  string
	addr address.Address
}

// base carries what every variant shares: the ABI and contract caches, the
// event bus and the state watchdog.
type base struct {
	name      string
	icon      string
	opts      options
	logger    *slog.Logger
	v         variant
	subs      *subscription.Manager
	overrides map[string]string

	bus evbus.Bus

	abiGroup  singleflight.Group
	cacheMu   sync.Mutex
	abis      map[string]*abi.Descriptor
	contracts map[contractKey]*contract.Contract

	mu         sync.Mutex
	network    *Network
	pubkey     *string
	walletAddr *address.Address
	balance    *tlb.Coins
	wallet     *contract.Contract

	// live turns true right before the initial sync so that the sync can
	// already read contracts through the variant.
	live atomic.Bool
	shut atomic.Bool

	lifeMu  sync.Mutex
	started bool
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}
	kick    chan struct{}
}

func newBase(name, icon string, opts []Option) *base {
	o := options{
		logger:        slog.Default(),
		httpClient:    &http.Client{Timeout: abiFetchTimeout},
		watchInterval: DefaultWatchInterval,
		resultTimeout: contract.DefaultResultTimeout,
		walletABI:     SafeMultisigABI,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &base{
		name:      name,
		icon:      icon,
		opts:      o,
		logger:    o.logger.With("component", "provider", "provider", name),
		bus:       evbus.New(),
		abis:      make(map[string]*abi.Descriptor),
		contracts: make(map[contractKey]*contract.Contract),
		kick:      make(chan struct{}, 1),
	}
}

// bind attaches the concrete variant. subs may be nil for variants without
// contract subscriptions.
func (b *base) bind(v variant, subs *subscription.Manager, overrides map[string]string) {
	b.v = v
	b.overrides = overrides
	if subs == nil {
		subs = subscription.NewManager(unsupportedBackend{provider: b.name}, b.opts.logger)
	}
	b.subs = subs
}

func (b *base) Name() string {
	return b.name
}

func (b *base) IconURL() string {
	return b.icon
}

func (b *base) start(ctx context.Context) error {
	b.lifeMu.Lock()
	defer b.lifeMu.Unlock()
	if b.closed {
		return ErrClosed
	}
	if b.started {
		return nil
	}
	b.live.Store(true)
	if err := b.sync(ctx); err != nil {
		b.live.Store(false)
		return fmt.Errorf("initial state: %w", err)
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.done = make(chan struct{})
	b.started = true
	go b.watch(watchCtx)
	return nil
}

func (b *base) Start(ctx context.Context) error {
	return b.start(ctx)
}

// Close stops the watchdog and waits for a running tick to finish.
func (b *base) Close() error {
	b.lifeMu.Lock()
	if b.closed {
		b.lifeMu.Unlock()
		return nil
	}
	b.closed = true
	b.shut.Store(true)
	b.live.Store(false)
	started := b.started
	b.lifeMu.Unlock()

	if started {
		b.cancel()
		<-b.done
	}
	return nil
}

// ready fails every capability until Start succeeds and after Close.
func (b *base) ready() error {
	if b.shut.Load() {
		return ErrClosed
	}
	if !b.live.Load() {
		return rpc.ErrProviderNotInitialized
	}
	return nil
}

// watch runs one sync per tick. Ticks never overlap.
func (b *base) watch(ctx context.Context) {
	defer close(b.done)
	ticker := time.NewTicker(b.opts.watchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-b.kick:
		}
		tickCtx, cancel := context.WithTimeout(ctx, b.opts.watchInterval)
		if err := b.sync(tickCtx); err != nil && ctx.Err() == nil {
			b.logger.Warn("state sync failed", "error", err)
		}
		cancel()
	}
}

// resync asks the watchdog for an immediate tick.
func (b *base) resync() {
	select {
	case b.kick <- struct{}{}:
	default:
	}
}

// sync compares the runtime state with the last observation. The first
// observation of each value is recorded without an event.
func (b *base) sync(ctx context.Context) error {
	server, err := b.v.currentNetwork(ctx)
	if err != nil {
		return fmt.Errorf("network: %w", err)
	}
	network := resolve(server, b.overrides)

	b.mu.Lock()
	prevNetwork := b.network
	networkChanged := prevNetwork == nil || prevNetwork.Server != network.Server
	if networkChanged {
		b.network = &network
	}
	b.mu.Unlock()
	if networkChanged {
		b.v.onNetwork(network)
		if prevNetwork != nil {
			b.emit(Event{Name: EventNetworkChanged, Data: network, Previous: *prevNetwork})
		}
	}

	acct, err := b.v.account(ctx)
	if err != nil {
		return fmt.Errorf("account: %w", err)
	}
	var (
		pubkey string
		addr   address.Address
	)
	if acct != nil {
		pubkey, addr = acct.PublicKey, acct.Address
	}

	b.mu.Lock()
	prevKey, prevAddr := b.pubkey, b.walletAddr
	b.pubkey, b.walletAddr = &pubkey, &addr
	if prevAddr != nil && *prevAddr != addr {
		b.wallet = nil
	}
	b.mu.Unlock()
	if prevKey != nil && *prevKey != pubkey {
		b.emit(Event{Name: EventPubkeyChanged, Data: pubkey, Previous: *prevKey})
	}
	if prevAddr != nil && *prevAddr != addr {
		b.emit(Event{Name: EventAddressChanged, Data: addr, Previous: *prevAddr})
	}

	wallet, err := b.walletFor(ctx, addr)
	if err != nil {
		return fmt.Errorf("wallet: %w", err)
	}
	balance := wallet.Balance

	b.mu.Lock()
	prevBalance := b.balance
	b.balance = &balance
	b.mu.Unlock()
	if prevBalance != nil && prevBalance.Nano().Cmp(balance.Nano()) != 0 {
		b.emit(Event{Name: EventBalanceChanged, Data: balance, Previous: *prevBalance, Wallet: wallet})
	}
	return nil
}

func (b *base) GetNetwork(ctx context.Context) (Network, error) {
	b.mu.Lock()
	cached := b.network
	b.mu.Unlock()
	if cached != nil {
		return *cached, nil
	}
	server, err := b.v.currentNetwork(ctx)
	if err != nil {
		return Network{}, err
	}
	return resolve(server, b.overrides), nil
}

func (b *base) GetKeypair(ctx context.Context) (Keypair, error) {
	if err := b.ready(); err != nil {
		return Keypair{}, err
	}
	acct, err := b.v.account(ctx)
	if err != nil {
		return Keypair{}, err
	}
	if acct == nil {
		return Keypair{}, fmt.Errorf("keypair: %w", rpc.ErrInsufficientPermissions)
	}
	return Keypair{Public: acct.PublicKey}, nil
}

// GetWallet returns an empty wallet when no account is connected.
func (b *base) GetWallet(ctx context.Context) (*Wallet, error) {
	if err := b.ready(); err != nil {
		return nil, err
	}
	acct, err := b.v.account(ctx)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return &Wallet{Balance: tlb.ZeroCoins}, nil
	}
	return b.walletFor(ctx, acct.Address)
}

func (b *base) walletFor(ctx context.Context, addr address.Address) (*Wallet, error) {
	if addr.IsZero() {
		return &Wallet{Balance: tlb.ZeroCoins}, nil
	}
	c, err := b.walletContract(ctx, addr)
	if err != nil {
		return nil, err
	}
	balance, err := c.Balance(ctx)
	if err != nil {
		return nil, err
	}
	return &Wallet{Address: addr, Balance: balance, Contract: c}, nil
}

func (b *base) walletContract(ctx context.Context, addr address.Address) (*contract.Contract, error) {
	b.mu.Lock()
	cached := b.wallet
	b.mu.Unlock()
	if cached != nil && cached.Address() == addr {
		return cached, nil
	}
	c, err := b.loadContract(ctx, b.opts.walletABI, addr)
	if err != nil {
		return nil, fmt.Errorf("load wallet contract: %w", err)
	}
	b.mu.Lock()
	b.wallet = c
	b.mu.Unlock()
	return c, nil
}

// LoadContract returns the same contract for the same ABI source and address.
// ABI documents behind a URL are fetched once; failed fetches are not cached.
func (b *base) LoadContract(ctx context.Context, abiOrURL string, addr address.Address) (*contract.Contract, error) {
	if err := b.ready(); err != nil {
		return nil, err
	}
	return b.loadContract(ctx, abiOrURL, addr)
}

func (b *base) loadContract(ctx context.Context, abiOrURL string, addr address.Address) (*contract.Contract, error) {
	d, key, err := b.loadABI(ctx, abiOrURL)
	if err != nil {
		return nil, err
	}
	return b.contractFor(key, d, addr), nil
}

// BindContract never fails; calls on the contract fail with
// rpc.ErrProviderNotInitialized until Start succeeds.
func (b *base) BindContract(d *abi.Descriptor, addr address.Address) *contract.Contract {
	return b.contractFor("abi:"+d.Fingerprint(), d, addr)
}

func (b *base) contractFor(key string, d *abi.Descriptor, addr address.Address) *contract.Contract {
	ck := contractKey{abi: key, addr: addr}
	b.cacheMu.Lock()
	defer b.cacheMu.Unlock()
	if c, ok := b.contracts[ck]; ok {
		return c
	}
	c := contract.New(b.v, d, addr,
		contract.WithResultTimeout(b.opts.resultTimeout),
		contract.WithLogger(b.opts.logger),
	)
	b.contracts[ck] = c
	return c
}

func (b *base) loadABI(ctx context.Context, abiOrURL string) (*abi.Descriptor, string, error) {
	src := strings.TrimSpace(abiOrURL)
	if strings.HasPrefix(src, "{") {
		d, err := abi.ParseString(src)
		if err != nil {
			return nil, "", err
		}
		return d, "abi:" + d.Fingerprint(), nil
	}

	b.cacheMu.Lock()
	d, ok := b.abis[src]
	b.cacheMu.Unlock()
	if ok {
		return d, src, nil
	}

	v, err, _ := b.abiGroup.Do(src, func() (any, error) {
		b.cacheMu.Lock()
		d, ok := b.abis[src]
		b.cacheMu.Unlock()
		if ok {
			return d, nil
		}
		d, err := b.fetchABI(context.WithoutCancel(ctx), src)
		if err != nil {
			return nil, err
		}
		b.cacheMu.Lock()
		b.abis[src] = d
		b.cacheMu.Unlock()
		return d, nil
	})
	if err != nil {
		return nil, "", err
	}
	return v.(*abi.Descriptor), src, nil
}

func (b *base) fetchABI(ctx context.Context, url string) (*abi.Descriptor, error) {
	ctx, cancel := context.WithTimeout(ctx, abiFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("abi request %s: %w", url, err)
	}
	resp, err := b.opts.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch abi %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxABISize))
	if err != nil {
		return nil, fmt.Errorf("read abi %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch abi %s: http status %d", url, resp.StatusCode)
	}
	d, err := abi.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("parse abi %s: %w", url, err)
	}
	b.logger.Debug("abi loaded", "url", url, "functions", len(d.Functions))
	return d, nil
}

func (b *base) Subscribe(ctx context.Context, kind subscription.Kind, addr address.Address) (*subscription.Subscription, error) {
	if err := b.ready(); err != nil {
		return nil, err
	}
	return b.subs.Subscribe(ctx, kind, addr)
}

// On registers h for event. Handlers run synchronously in registration order
// and must not call On themselves. A panicking handler is logged and skipped.
func (b *base) On(event string, h Handler) error {
	if _, ok := knownEvents[event]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEvent, event)
	}
	return b.bus.Subscribe(event, func(ev Event) {
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("event handler panicked", "event", ev.Name, "panic", r)
			}
		}()
		h(ev)
	})
}

func (b *base) emit(ev Event) {
	ev.Provider = b.v
	b.bus.Publish(ev.Name, ev)
}

func (b *base) unsupported(op string) error {
	return &rpc.UnsupportedOperationError{Provider: b.name, Op: op}
}

// unsupportedBackend backs the subscription manager of variants that cannot
// watch contracts. Global kinds still register locally.
type unsupportedBackend struct {
	provider string
}

func (u unsupportedBackend) SubscribeContract(context.Context, address.Address, models.ContractUpdatesSubscription) error {
	return &rpc.UnsupportedOperationError{Provider: u.provider, Op: "subscribe"}
}

func (u unsupportedBackend) UnsubscribeContract(context.Context, address.Address) error {
	return nil
}

// IsUnsupported reports whether err says the provider lacks an operation.
func IsUnsupported(err error) bool {
	var target *rpc.UnsupportedOperationError
	return errors.As(err, &target)
}
