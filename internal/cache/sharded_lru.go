package cache

import (
	"hash/fnv"
	"time"
)

const defaultShardCount = 16

// Cache is implemented by LRU and ShardedLRU.
type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	Put(key K, value V)
	Delete(key K)
	Purge()
	Len() int
	TTL() time.Duration
	Stats() (hits, misses int64)
}

var (
	_ Cache[string, int] = (*LRU[string, int])(nil)
	_ Cache[string, int] = (*ShardedLRU[string, int])(nil)
)

// ShardedLRU spreads keys over independent LRU shards picked by FNV-32a of
// the key, so concurrent requests for different keys rarely share a lock.
type ShardedLRU[K comparable, V any] struct {
	shards   []*LRU[K, V]
	keyToStr func(K) string
	ttl      time.Duration
}

// NewShardedLRU splits totalCapacity evenly over shardCount shards
// (defaultShardCount when shardCount <= 0).
func NewShardedLRU[K comparable, V any](totalCapacity int, ttl time.Duration, shardCount int, keyFn func(K) string) *ShardedLRU[K, V] {
	if shardCount <= 0 {
		shardCount = defaultShardCount
	}
	perShard := totalCapacity / shardCount
	if perShard < 1 {
		perShard = 1
	}
	shards := make([]*LRU[K, V], shardCount)
	for i := range shards {
		shards[i] = NewLRU[K, V](perShard, ttl)
	}
	return &ShardedLRU[K, V]{shards: shards, keyToStr: keyFn, ttl: ttl}
}

// NewStringLRU is a ShardedLRU keyed by strings.
func NewStringLRU[V any](totalCapacity int, ttl time.Duration) *ShardedLRU[string, V] {
	return NewShardedLRU[string, V](totalCapacity, ttl, defaultShardCount, func(k string) string { return k })
}

func (s *ShardedLRU[K, V]) shard(key K) *LRU[K, V] {
	h := fnv.New32a()
	h.Write([]byte(s.keyToStr(key)))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

func (s *ShardedLRU[K, V]) Get(key K) (V, bool) {
	return s.shard(key).Get(key)
}

func (s *ShardedLRU[K, V]) Put(key K, value V) {
	s.shard(key).Put(key, value)
}

func (s *ShardedLRU[K, V]) Delete(key K) {
	s.shard(key).Delete(key)
}

func (s *ShardedLRU[K, V]) Purge() {
	for _, sh := range s.shards {
		sh.Purge()
	}
}

func (s *ShardedLRU[K, V]) Len() int {
	total := 0
	for _, sh := range s.shards {
		total += sh.Len()
	}
	return total
}

func (s *ShardedLRU[K, V]) TTL() time.Duration {
	return s.ttl
}

func (s *ShardedLRU[K, V]) Stats() (hits, misses int64) {
	for _, sh := range s.shards {
		h, m := sh.Stats()
		hits += h
		misses += m
	}
	return
}
