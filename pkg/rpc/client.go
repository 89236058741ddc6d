package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/SVOIcom/everscale-connect-backend/pkg/abi"
	"github.com/SVOIcom/everscale-connect-backend/pkg/address"
	"github.com/SVOIcom/everscale-connect-backend/pkg/models"
	"github.com/SVOIcom/everscale-connect-backend/pkg/subscription"
)

// Client is the typed capability surface of a wallet runtime reached through
// a Transport. Every method except EnsureInitialized fails with
// ErrProviderNotInitialized until EnsureInitialized succeeds.
type Client struct {
	detect   Detector
	fallback func(ctx context.Context) (Transport, error)
	observer func(subscription.Event)
	logger   *slog.Logger
	subs     *subscription.Manager

	mu          sync.RWMutex
	transport   Transport
	initialized bool
	initErr     error
	initOnce    sync.Once
}

type Option func(*Client)

// WithDetector sets the availability check run by EnsureInitialized.
func WithDetector(d Detector) Option {
	return func(c *Client) { c.detect = d }
}

// WithFallback sets a transport factory used when the detector reports the
// primary runtime unavailable.
func WithFallback(f func(ctx context.Context) (Transport, error)) Option {
	return func(c *Client) { c.fallback = f }
}

// WithObserver registers fn to see every notification after it has been
// dispatched to subscriptions.
func WithObserver(fn func(subscription.Event)) Option {
	return func(c *Client) { c.observer = fn }
}

func NewClient(transport Transport, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		transport: transport,
		logger:    logger.With("component", "rpc_client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.subs = subscription.NewManager(c, logger)
	return c
}

// Subscriptions exposes the multiplexer fed by runtime notifications.
func (c *Client) Subscriptions() *subscription.Manager {
	return c.subs
}

// EnsureInitialized checks the runtime once and, when it is reachable, starts
// forwarding its notifications. Later calls return the first outcome.
func (c *Client) EnsureInitialized(ctx context.Context) error {
	c.initOnce.Do(func() {
		c.initErr = c.initialize(ctx)
	})
	return c.initErr
}

func (c *Client) initialize(ctx context.Context) error {
	transport := c.transport
	available := transport != nil
	if available && c.detect != nil {
		available = c.detect(ctx) == Available
	}

	if !available {
		if c.fallback == nil {
			return ErrProviderNotFound
		}
		fb, err := c.fallback(ctx)
		if err != nil {
			return fmt.Errorf("%w: fallback: %v", ErrProviderNotFound, err)
		}
		if fb == nil {
			return ErrProviderNotFound
		}
		transport = fb
	}

	c.mu.Lock()
	c.transport = transport
	c.initialized = true
	c.mu.Unlock()

	if events, ok := transport.(EventTransport); ok {
		go c.forward(events.Notifications())
	}
	return nil
}

func (c *Client) IsInitialized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initialized
}

// forward decodes notifications and hands them to the multiplexer. It is the
// only dispatcher, which keeps per-address ordering.
func (c *Client) forward(ch <-chan Notification) {
	for n := range ch {
		ev, err := decodeNotification(n)
		if err != nil {
			c.logger.Warn("dropping notification", "method", n.Method, "error", err)
			continue
		}
		c.subs.Dispatch(ev)
		if c.observer != nil {
			c.observer(ev)
		}
	}
}

func decodeNotification(n Notification) (subscription.Event, error) {
	kind := subscription.Kind(n.Method)
	ev := subscription.Event{Kind: kind}
	switch kind {
	case subscription.TransactionsFound:
		var data models.TransactionsFound
		if err := decode(n.Params, &data); err != nil {
			return ev, err
		}
		ev.Address, ev.Data = data.Address, data
	case subscription.ContractStateChanged:
		var data models.ContractStateChanged
		if err := decode(n.Params, &data); err != nil {
			return ev, err
		}
		ev.Address, ev.Data = data.Address, data
	case subscription.PermissionsChanged:
		var data models.PermissionsChanged
		if err := decode(n.Params, &data); err != nil {
			return ev, err
		}
		ev.Data = data
	case subscription.NetworkChanged:
		var data models.NetworkChanged
		if err := decode(n.Params, &data); err != nil {
			return ev, err
		}
		ev.Data = data
	case subscription.Connected, subscription.Disconnected, subscription.LoggedOut:
		var data any
		if len(n.Params) > 0 {
			if err := decode(n.Params, &data); err != nil {
				return ev, err
			}
		}
		ev.Data = data
	default:
		return ev, fmt.Errorf("%w: %s", subscription.ErrUnknownKind, n.Method)
	}
	return ev, nil
}

func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	c.mu.RLock()
	transport, ok := c.transport, c.initialized
	c.mu.RUnlock()
	if !ok {
		return ErrProviderNotInitialized
	}

	result, err := transport.Request(ctx, method, params)
	if err != nil {
		var rpcErr *Error
		if errors.As(err, &rpcErr) {
			return classify(method, rpcErr)
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", method, err)
		}
		return transportError(method, err)
	}
	if out == nil || len(result) == 0 {
		return nil
	}
	if err := decode(result, out); err != nil {
		return fmt.Errorf("%s: unmarshal result: %w", method, err)
	}
	return nil
}

func decode(raw json.RawMessage, out any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(out)
}

func (c *Client) RequestPermissions(ctx context.Context, permissions []models.Permission) (models.Permissions, error) {
	var granted models.Permissions
	err := c.call(ctx, "requestPermissions", map[string]any{"permissions": permissions}, &granted)
	return granted, err
}

func (c *Client) ChangeAccount(ctx context.Context) error {
	return c.call(ctx, "changeAccount", nil, nil)
}

func (c *Client) Disconnect(ctx context.Context) error {
	return c.call(ctx, "disconnect", nil, nil)
}

func (c *Client) GetProviderState(ctx context.Context) (*models.ProviderState, error) {
	var state models.ProviderState
	if err := c.call(ctx, "getProviderState", nil, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// GetFullContractState returns nil when the account does not exist.
func (c *Client) GetFullContractState(ctx context.Context, addr address.Address) (*models.FullContractState, error) {
	var out struct {
		State *models.FullContractState `json:"state"`
	}
	if err := c.call(ctx, "getFullContractState", map[string]any{"address": addr}, &out); err != nil {
		return nil, err
	}
	return out.State, nil
}

func (c *Client) GetTransactions(ctx context.Context, q TransactionsQuery) (*TransactionsPage, error) {
	var page TransactionsPage
	if err := c.call(ctx, "getTransactions", q, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetTransaction returns nil when no transaction has the hash.
func (c *Client) GetTransaction(ctx context.Context, hash string) (*models.Transaction, error) {
	var out struct {
		Transaction *models.Transaction `json:"transaction"`
	}
	if err := c.call(ctx, "getTransaction", map[string]any{"hash": hash}, &out); err != nil {
		return nil, err
	}
	return out.Transaction, nil
}

func (c *Client) GetExpectedAddress(ctx context.Context, d *abi.Descriptor, p ExpectedAddressParams) (address.Address, error) {
	params := map[string]any{
		"abi":        d.JSON(),
		"tvc":        p.Tvc,
		"initParams": abi.SerializeObject(p.InitParams),
	}
	if p.PublicKey != "" {
		params["publicKey"] = p.PublicKey
	}
	var out struct {
		Address address.Address `json:"address"`
	}
	if err := c.call(ctx, "getExpectedAddress", params, &out); err != nil {
		return address.Address{}, err
	}
	return out.Address, nil
}

func (c *Client) GetBocHash(ctx context.Context, boc string) (string, error) {
	var out struct {
		Hash string `json:"hash"`
	}
	err := c.call(ctx, "getBocHash", map[string]any{"boc": boc}, &out)
	return out.Hash, err
}

func (c *Client) PackIntoCell(ctx context.Context, structure []abi.Param, data map[string]any) (string, error) {
	var out struct {
		Boc string `json:"boc"`
	}
	params := map[string]any{"structure": structure, "data": abi.SerializeObject(data)}
	err := c.call(ctx, "packIntoCell", params, &out)
	return out.Boc, err
}

func (c *Client) UnpackFromCell(ctx context.Context, structure []abi.Param, boc string, allowPartial bool) (map[string]any, error) {
	var out struct {
		Data map[string]any `json:"data"`
	}
	params := map[string]any{"structure": structure, "boc": boc, "allowPartial": allowPartial}
	if err := c.call(ctx, "unpackFromCell", params, &out); err != nil {
		return nil, err
	}
	return abi.ParseObject(structure, out.Data)
}

func (c *Client) ExtractPublicKey(ctx context.Context, boc string) (string, error) {
	var out struct {
		PublicKey string `json:"publicKey"`
	}
	err := c.call(ctx, "extractPublicKey", map[string]any{"boc": boc}, &out)
	return out.PublicKey, err
}

func (c *Client) CodeToTvc(ctx context.Context, code string) (string, error) {
	var out struct {
		Tvc string `json:"tvc"`
	}
	err := c.call(ctx, "codeToTvc", map[string]any{"code": code}, &out)
	return out.Tvc, err
}

func (c *Client) SplitTvc(ctx context.Context, tvc string) (*SplitTvcResult, error) {
	var out SplitTvcResult
	if err := c.call(ctx, "splitTvc", map[string]any{"tvc": tvc}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) VerifySignature(ctx context.Context, p VerifySignatureParams) (bool, error) {
	var out struct {
		IsValid bool `json:"isValid"`
	}
	err := c.call(ctx, "verifySignature", p, &out)
	return out.IsValid, err
}

func (c *Client) SignData(ctx context.Context, p SignDataParams) (*models.SignedData, error) {
	var out models.SignedData
	if err := c.call(ctx, "signData", p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SignDataRaw(ctx context.Context, p SignDataParams) (*models.SignedData, error) {
	var out models.SignedData
	if err := c.call(ctx, "signDataRaw", p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) EncryptData(ctx context.Context, p EncryptDataParams) ([]models.EncryptedData, error) {
	var out struct {
		EncryptedData []models.EncryptedData `json:"encryptedData"`
	}
	if err := c.call(ctx, "encryptData", p, &out); err != nil {
		return nil, err
	}
	return out.EncryptedData, nil
}

func (c *Client) DecryptData(ctx context.Context, data models.EncryptedData) (string, error) {
	var out struct {
		Data string `json:"data"`
	}
	err := c.call(ctx, "decryptData", map[string]any{"encryptedData": data}, &out)
	return out.Data, err
}

func (c *Client) SendMessage(ctx context.Context, p MessageParams) (*models.Transaction, error) {
	var out struct {
		Transaction models.Transaction `json:"transaction"`
	}
	if err := c.call(ctx, "sendMessage", p, &out); err != nil {
		return nil, err
	}
	return &out.Transaction, nil
}

func (c *Client) EstimateFees(ctx context.Context, p MessageParams) (string, error) {
	var out struct {
		Fees string `json:"fees"`
	}
	err := c.call(ctx, "estimateFees", p, &out)
	return out.Fees, err
}

// SendExternalMessage submits an external message. Unsigned messages go
// through sendUnsignedExternalMessage.
func (c *Client) SendExternalMessage(ctx context.Context, p ExternalMessageParams, unsigned bool) (*ExternalMessageResult, error) {
	method := "sendExternalMessage"
	if unsigned {
		method = "sendUnsignedExternalMessage"
	}
	var out ExternalMessageResult
	if err := c.call(ctx, method, p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RunLocal(ctx context.Context, p RunLocalParams) (*RunLocalResult, error) {
	var out RunLocalResult
	if err := c.call(ctx, "runLocal", p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) EncodeInternalInput(ctx context.Context, call models.FunctionCall) (string, error) {
	var out struct {
		Boc string `json:"boc"`
	}
	err := c.call(ctx, "encodeInternalInput", call, &out)
	return out.Boc, err
}

// DecodeTransaction returns nil when no ABI function matches.
func (c *Client) DecodeTransaction(ctx context.Context, p DecodeTransactionParams) (*DecodedTransaction, error) {
	var out *DecodedTransaction
	if err := c.call(ctx, "decodeTransaction", p, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) DecodeTransactionEvents(ctx context.Context, tx models.Transaction, abiJSON string) ([]DecodedEvent, error) {
	var out struct {
		Events []DecodedEvent `json:"events"`
	}
	params := map[string]any{"transaction": tx, "abi": abiJSON}
	if err := c.call(ctx, "decodeTransactionEvents", params, &out); err != nil {
		return nil, err
	}
	return out.Events, nil
}

func (c *Client) DecodeInput(ctx context.Context, p DecodeInputParams) (*DecodedInput, error) {
	var out *DecodedInput
	if err := c.call(ctx, "decodeInput", p, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) DecodeOutput(ctx context.Context, p DecodeOutputParams) (*DecodedOutput, error) {
	var out *DecodedOutput
	if err := c.call(ctx, "decodeOutput", p, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Subscribe opens a logical subscription through the multiplexer.
func (c *Client) Subscribe(ctx context.Context, kind subscription.Kind, addr address.Address) (*subscription.Subscription, error) {
	if !c.IsInitialized() {
		return nil, ErrProviderNotInitialized
	}
	return c.subs.Subscribe(ctx, kind, addr)
}

// SubscribeContract and UnsubscribeContract make Client the multiplexer's
// backend.
func (c *Client) SubscribeContract(ctx context.Context, addr address.Address, subs models.ContractUpdatesSubscription) error {
	return c.call(ctx, "subscribe", map[string]any{"address": addr, "subscriptions": subs}, nil)
}

func (c *Client) UnsubscribeContract(ctx context.Context, addr address.Address) error {
	return c.call(ctx, "unsubscribe", map[string]any{"address": addr}, nil)
}
