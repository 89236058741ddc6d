// Package subscription multiplexes logical event subscriptions onto the
// minimum set of underlying contract subscriptions.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/SVOIcom/everscale-connect-backend/pkg/address"
	"github.com/SVOIcom/everscale-connect-backend/pkg/models"
)

type Kind string

const (
	Connected            Kind = "connected"
	Disconnected         Kind = "disconnected"
	NetworkChanged       Kind = "networkChanged"
	PermissionsChanged   Kind = "permissionsChanged"
	LoggedOut            Kind = "loggedOut"
	TransactionsFound    Kind = "transactionsFound"
	ContractStateChanged Kind = "contractStateChanged"
)

// IsContract reports whether the kind is scoped to a contract address and
// needs an underlying subscription.
func (k Kind) IsContract() bool {
	return k == TransactionsFound || k == ContractStateChanged
}

func (k Kind) valid() bool {
	switch k {
	case Connected, Disconnected, NetworkChanged, PermissionsChanged, LoggedOut, TransactionsFound, ContractStateChanged:
		return true
	}
	return false
}

var (
	ErrUnknownKind     = errors.New("unknown subscription event")
	ErrAddressRequired = errors.New("contract subscription requires an address")
)

// Backend performs the underlying per-address subscription calls.
type Backend interface {
	SubscribeContract(ctx context.Context, addr address.Address, subs models.ContractUpdatesSubscription) error
	UnsubscribeContract(ctx context.Context, addr address.Address) error
}

// Event is one notification received from the provider. Address is set for
// contract kinds.
type Event struct {
	Kind    Kind
	Address address.Address
	Data    any
}

// Manager tracks every live logical subscription. Contract subscriptions on
// the same address are folded into one underlying subscription carrying the
// union of their flags, and a backend call is made only when that union
// changes.
type Manager struct {
	backend Backend
	logger  *slog.Logger

	mu        sync.Mutex
	nextID    uint64
	listeners map[Kind]map[uint64]*Subscription
	contracts map[address.Address]map[uint64]models.ContractUpdatesSubscription
	addrLocks map[address.Address]*sync.Mutex
}

func NewManager(backend Backend, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		backend:   backend,
		logger:    logger.With("component", "subscriptions"),
		listeners: make(map[Kind]map[uint64]*Subscription),
		contracts: make(map[address.Address]map[uint64]models.ContractUpdatesSubscription),
		addrLocks: make(map[address.Address]*sync.Mutex),
	}
}

// New creates an inactive subscription so handlers can be attached before
// Subscribe is called.
func (m *Manager) New(kind Kind, addr address.Address) (*Subscription, error) {
	if !kind.valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	if kind.IsContract() && addr.IsZero() {
		return nil, ErrAddressRequired
	}

	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.mu.Unlock()

	return &Subscription{
		id:       id,
		kind:     kind,
		addr:     addr,
		manager:  m,
		handlers: make(map[Lifecycle][]Handler),
	}, nil
}

// Subscribe creates and activates a subscription.
func (m *Manager) Subscribe(ctx context.Context, kind Kind, addr address.Address) (*Subscription, error) {
	sub, err := m.New(kind, addr)
	if err != nil {
		return nil, err
	}
	if err := sub.Subscribe(ctx); err != nil {
		return nil, err
	}
	return sub, nil
}

// Dispatch delivers an event to every matching active subscription in
// registration order. It must be called from a single goroutine per event
// source to keep per-address ordering.
func (m *Manager) Dispatch(ev Event) {
	m.mu.Lock()
	targets := make([]*Subscription, 0, len(m.listeners[ev.Kind]))
	for _, sub := range m.listeners[ev.Kind] {
		if ev.Kind.IsContract() && sub.addr != ev.Address {
			continue
		}
		targets = append(targets, sub)
	}
	m.mu.Unlock()

	sort.Slice(targets, func(i, j int) bool { return targets[i].id < targets[j].id })
	for _, sub := range targets {
		sub.fire(Data, ev.Data)
	}
}

// Total returns the folded flags currently requested for addr.
func (m *Manager) Total(addr address.Address) models.ContractUpdatesSubscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	total, _ := fold(m.contracts[addr], 0)
	return total
}

// ActiveCount returns the number of active subscriptions of kind.
func (m *Manager) ActiveCount(kind Kind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listeners[kind])
}

func (m *Manager) addrLock(addr address.Address) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.addrLocks[addr]
	if !ok {
		l = &sync.Mutex{}
		m.addrLocks[addr] = l
	}
	return l
}

func (m *Manager) activate(ctx context.Context, sub *Subscription) error {
	if !sub.kind.IsContract() {
		m.mu.Lock()
		m.register(sub)
		m.mu.Unlock()
		return nil
	}

	lock := m.addrLock(sub.addr)
	lock.Lock()
	defer lock.Unlock()

	flags := models.ContractUpdatesSubscription{
		State:        sub.kind == ContractStateChanged,
		Transactions: sub.kind == TransactionsFound,
	}

	m.mu.Lock()
	m.register(sub)
	entries, ok := m.contracts[sub.addr]
	if !ok {
		entries = make(map[uint64]models.ContractUpdatesSubscription)
		m.contracts[sub.addr] = entries
	}
	entries[sub.id] = flags
	total, withoutSelf := fold(entries, sub.id)
	m.mu.Unlock()

	if total == withoutSelf {
		return nil
	}
	if err := m.backend.SubscribeContract(ctx, sub.addr, total); err != nil {
		m.mu.Lock()
		m.unregister(sub)
		m.removeContract(sub.addr, sub.id)
		m.mu.Unlock()
		return fmt.Errorf("subscribe %s: %w", sub.addr, err)
	}
	m.logger.Debug("contract subscription updated",
		"address", sub.addr.String(),
		"state", total.State,
		"transactions", total.Transactions,
	)
	return nil
}

func (m *Manager) deactivate(ctx context.Context, sub *Subscription) error {
	if !sub.kind.IsContract() {
		m.mu.Lock()
		m.unregister(sub)
		m.mu.Unlock()
		return nil
	}

	lock := m.addrLock(sub.addr)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	m.unregister(sub)
	entries, ok := m.contracts[sub.addr]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	if _, ok := entries[sub.id]; !ok {
		m.mu.Unlock()
		return nil
	}
	total, withoutSelf := fold(entries, sub.id)
	m.removeContract(sub.addr, sub.id)
	m.mu.Unlock()

	switch {
	case withoutSelf.IsEmpty():
		if err := m.backend.UnsubscribeContract(ctx, sub.addr); err != nil {
			return fmt.Errorf("unsubscribe %s: %w", sub.addr, err)
		}
	case total != withoutSelf:
		if err := m.backend.SubscribeContract(ctx, sub.addr, withoutSelf); err != nil {
			return fmt.Errorf("resubscribe %s: %w", sub.addr, err)
		}
	}
	return nil
}

// register and the helpers below require m.mu.
func (m *Manager) register(sub *Subscription) {
	byID, ok := m.listeners[sub.kind]
	if !ok {
		byID = make(map[uint64]*Subscription)
		m.listeners[sub.kind] = byID
	}
	byID[sub.id] = sub
}

func (m *Manager) unregister(sub *Subscription) {
	delete(m.listeners[sub.kind], sub.id)
}

func (m *Manager) removeContract(addr address.Address, id uint64) {
	entries := m.contracts[addr]
	delete(entries, id)
	if len(entries) == 0 {
		delete(m.contracts, addr)
	}
}

// fold returns the union of all entries and the union of all entries except
// the one with id except.
func fold(entries map[uint64]models.ContractUpdatesSubscription, except uint64) (total, withoutExcluded models.ContractUpdatesSubscription) {
	for id, flags := range entries {
		total = total.Union(flags)
		if id != except {
			withoutExcluded = withoutExcluded.Union(flags)
		}
	}
	return total, withoutExcluded
}
