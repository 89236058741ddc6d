package subscription

import (
	"context"
	"sync"

	"github.com/SVOIcom/everscale-connect-backend/pkg/address"
)

type Lifecycle string

const (
	Data         Lifecycle = "data"
	Subscribed   Lifecycle = "subscribed"
	Unsubscribed Lifecycle = "unsubscribed"
)

// Handler receives event data. Subscribed and Unsubscribed handlers get nil.
type Handler func(data any)

// Subscription is one logical listener. It is safe for concurrent use.
type Subscription struct {
	id      uint64
	kind    Kind
	addr    address.Address
	manager *Manager

	mu       sync.Mutex
	handlers map[Lifecycle][]Handler
	active   bool
}

func (s *Subscription) Kind() Kind {
	return s.kind
}

func (s *Subscription) Address() address.Address {
	return s.addr
}

// On registers a handler and returns s for chaining.
func (s *Subscription) On(event Lifecycle, h Handler) *Subscription {
	s.mu.Lock()
	s.handlers[event] = append(s.handlers[event], h)
	s.mu.Unlock()
	return s
}

// Subscribe activates the subscription. Calling it on an active subscription
// is a no-op. On failure the subscription stays inactive and the underlying
// state is rolled back.
func (s *Subscription) Subscribe(ctx context.Context) error {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return nil
	}
	s.active = true
	s.mu.Unlock()

	if err := s.manager.activate(ctx, s); err != nil {
		s.mu.Lock()
		s.active = false
		s.mu.Unlock()
		return err
	}
	s.fire(Subscribed, nil)
	return nil
}

// Unsubscribe deactivates the subscription. Local state is released even
// when the underlying call fails.
func (s *Subscription) Unsubscribe(ctx context.Context) error {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return nil
	}
	s.active = false
	s.mu.Unlock()

	if err := s.manager.deactivate(ctx, s); err != nil {
		return err
	}
	s.fire(Unsubscribed, nil)
	return nil
}

func (s *Subscription) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Subscription) fire(event Lifecycle, data any) {
	s.mu.Lock()
	handlers := append([]Handler(nil), s.handlers[event]...)
	s.mu.Unlock()

	for _, h := range handlers {
		s.invoke(event, h, data)
	}
}

func (s *Subscription) invoke(event Lifecycle, h Handler, data any) {
	defer func() {
		if r := recover(); r != nil {
			s.manager.logger.Error("subscription handler panicked",
				"kind", string(s.kind),
				"event", string(event),
				"panic", r,
			)
		}
	}()
	h(data)
}
