// Package redis keeps proxy responses in Redis so that worker processes can
// share results they computed.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ResponseStore prefixes every key with namespace + ":".
type ResponseStore struct {
	client    *redis.Client
	namespace string
}

func NewResponseStore(ctx context.Context, url, namespace string) (*ResponseStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &ResponseStore{client: client, namespace: namespace}, nil
}

func (s *ResponseStore) Key(key string) string {
	return namespacedKey(s.namespace, key)
}

func (s *ResponseStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := s.client.Get(ctx, s.Key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

func (s *ResponseStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, s.Key(key), value, ttl).Err()
}

func (s *ResponseStore) Close() error {
	return s.client.Close()
}

func namespacedKey(namespace, key string) string {
	if namespace == "" {
		return key
	}
	return namespace + ":" + key
}

// MemoryStore is an in-process ResponseStore stand-in for tests and for
// running a single worker without Redis.
type MemoryStore struct {
	mu        sync.Mutex
	namespace string
	items     map[string]memoryItem
	nowFn     func() time.Time
}

type memoryItem struct {
	value     []byte
	expiresAt time.Time
}

func NewMemoryStore(namespace string) *MemoryStore {
	return &MemoryStore{
		namespace: namespace,
		items:     make(map[string]memoryItem),
		nowFn:     time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := namespacedKey(s.namespace, key)
	item, ok := s.items[k]
	if !ok {
		return nil, false, nil
	}
	if !item.expiresAt.IsZero() && !s.nowFn().Before(item.expiresAt) {
		delete(s.items, k)
		return nil, false, nil
	}
	return append([]byte(nil), item.value...), true, nil
}

// Set stores value; a non-positive ttl never expires, as with Redis SET.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item := memoryItem{value: append([]byte(nil), value...)}
	if ttl > 0 {
		item.expiresAt = s.nowFn().Add(ttl)
	}
	s.items[namespacedKey(s.namespace, key)] = item
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
