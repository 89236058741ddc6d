package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/SVOIcom/everscale-connect-backend/internal/metrics"
)

const DefaultTimeout = 8 * time.Second

var ErrTimeout = errors.New("cache: computation timed out")

// Store is an optional second-level store shared between processes.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Memo computes values on miss and caches successful results. At most one
// computation per key runs at a time; concurrent callers for the same key
// share its result. Failures and timeouts are never stored.
type Memo[V any] struct {
	local   Cache[string, V]
	store   Store
	group   singleflight.Group
	timeout time.Duration
	route   string
	logger  *slog.Logger
}

type MemoOption[V any] func(*Memo[V])

// WithStore adds a shared store consulted after the local cache.
func WithStore[V any](s Store) MemoOption[V] {
	return func(m *Memo[V]) { m.store = s }
}

func WithTimeout[V any](d time.Duration) MemoOption[V] {
	return func(m *Memo[V]) { m.timeout = d }
}

func WithLogger[V any](l *slog.Logger) MemoOption[V] {
	return func(m *Memo[V]) { m.logger = l }
}

// NewMemo caches into local; route labels the cache metrics.
func NewMemo[V any](local Cache[string, V], route string, opts ...MemoOption[V]) *Memo[V] {
	m := &Memo[V]{
		local:   local,
		timeout: DefaultTimeout,
		route:   route,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "memo", "route", route)
	return m
}

type memoResult[V any] struct {
	value V
	err   error
}

// Load returns the cached value for key or computes it with fn. fn receives a
// context bounded by the memo timeout and detached from the caller, so one
// caller giving up does not fail the others waiting on the same key.
func (m *Memo[V]) Load(ctx context.Context, key string, fn func(context.Context) (V, error)) (V, error) {
	if v, ok := m.local.Get(key); ok {
		metrics.CacheHits.WithLabelValues(m.route).Inc()
		return v, nil
	}

	ch := m.group.DoChan(key, func() (any, error) {
		return m.fill(ctx, key, fn)
	})
	select {
	case res := <-ch:
		if res.Shared {
			metrics.CacheCoalesced.WithLabelValues(m.route).Inc()
		}
		if res.Err != nil {
			var zero V
			return zero, res.Err
		}
		return res.Val.(V), nil
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

func (m *Memo[V]) fill(ctx context.Context, key string, fn func(context.Context) (V, error)) (V, error) {
	ctx = context.WithoutCancel(ctx)
	if v, ok := m.local.Get(key); ok {
		return v, nil
	}
	if v, ok := m.loadStore(ctx, key); ok {
		m.local.Put(key, v)
		metrics.CacheHits.WithLabelValues(m.route).Inc()
		return v, nil
	}
	metrics.CacheMisses.WithLabelValues(m.route).Inc()

	cctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	done := make(chan memoResult[V], 1)
	go func() {
		v, err := fn(cctx)
		done <- memoResult[V]{value: v, err: err}
	}()

	var res memoResult[V]
	select {
	case res = <-done:
	case <-cctx.Done():
		res.err = fmt.Errorf("%w after %s", ErrTimeout, m.timeout)
	}
	if res.err != nil {
		var zero V
		return zero, res.err
	}

	m.local.Put(key, res.value)
	m.saveStore(ctx, key, res.value)
	return res.value, nil
}

func (m *Memo[V]) loadStore(ctx context.Context, key string) (V, bool) {
	var zero V
	if m.store == nil {
		return zero, false
	}
	raw, ok, err := m.store.Get(ctx, key)
	if err != nil {
		metrics.CacheL2Errors.WithLabelValues("get").Inc()
		m.logger.Warn("shared store read failed", "key", key, "error", err)
		return zero, false
	}
	if !ok {
		return zero, false
	}
	var v V
	if err := json.Unmarshal(raw, &v); err != nil {
		metrics.CacheL2Errors.WithLabelValues("decode").Inc()
		return zero, false
	}
	return v, true
}

func (m *Memo[V]) saveStore(ctx context.Context, key string, v V) {
	if m.store == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		metrics.CacheL2Errors.WithLabelValues("encode").Inc()
		return
	}
	if err := m.store.Set(ctx, key, raw, m.local.TTL()); err != nil {
		metrics.CacheL2Errors.WithLabelValues("set").Inc()
		m.logger.Warn("shared store write failed", "key", key, "error", err)
	}
}

// Forget drops key from the local cache.
func (m *Memo[V]) Forget(key string) {
	m.local.Delete(key)
}

// Purge drops every locally cached value. The shared store is left alone;
// its entries expire on their own.
func (m *Memo[V]) Purge() {
	m.local.Purge()
}
