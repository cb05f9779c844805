package simplecache

import (
	"context"
	"time"

	c "github.com/unkn0wn-root/simplecache/codec"
	pr "github.com/unkn0wn-root/simplecache/provider"
)

// Cache is the provider-agnostic facade. K is the logical key type, V the
// value type; values are serialized by a pluggable Codec[V]. Every operation
// addresses a (namespace, key) pair.
type Cache[K comparable, V any] interface {
	// Single
	Get(ctx context.Context, ns string, key K) (v V, ok bool, err error)
	Put(ctx context.Context, ns string, key K, value V, ttl time.Duration) error
	PutIfAbsent(ctx context.Context, ns string, key K, value V, ttl time.Duration) (bool, error)
	Remove(ctx context.Context, ns string, key K) (bool, error)
	Exists(ctx context.Context, ns string, key K) (bool, error)
	Expire(ctx context.Context, ns string, key K, ttl time.Duration) (bool, error)

	// Batch (keys with no stored value are omitted from results)
	GetAll(ctx context.Context, ns string, keys []K) (map[K]V, error)
	PutAll(ctx context.Context, ns string, items map[K]V, ttl time.Duration) error
	PutAllIfAbsent(ctx context.Context, ns string, items map[K]V, ttl time.Duration) (bool, error)
	RemoveAll(ctx context.Context, ns string, keys []K) (bool, error)
	ExistsAll(ctx context.Context, ns string, keys []K) (bool, error)
	CountExisting(ctx context.Context, ns string, keys []K) (int64, error)

	// Cache-aside
	GetOrCompute(ctx context.Context, ns string, key K, fn LoadFunc[K, V], opts ...LoadOption) (V, bool, error)
	GetAllOrCompute(ctx context.Context, ns string, keys []K, fn BatchLoadFunc[K, V], opts ...LoadOption) (map[K]V, error)

	// Namespace and keyspace
	Clear(ctx context.Context, ns string) (bool, error)
	ClearAll(ctx context.Context, intent Intent) (bool, error)

	// Mutual exclusion
	Lock(key string, lease time.Duration) (*Lock, error)
	WithLock(ctx context.Context, key string, lease time.Duration, fn func(context.Context) error) (bool, error)

	KeyCodec() KeyCodec
	Close(context.Context) error
}

// Intent is an explicit acknowledgement required by destructive operations.
type Intent int

// FlushDatabase acknowledges that ClearAll drops every key of the logical
// database the provider is bound to, not only this cache's prefix.
const FlushDatabase Intent = 1

// Options tune the cache. Only Provider and Codec are required.
type Options[V any] struct {
	// Required
	Provider pr.Provider
	Codec    c.Codec[V]

	Prefix string // application prefix; blank => keys start at the namespace
	Logger Logger // if nil, NopLogger is used
	Hooks  Hooks  // if nil, NopHooks is used

	VolatilityTime time.Duration // upper bound of negative marker TTLs; 0 => 10s
	LockAttempts   int           // Acquire attempts; 0 => 3
	LockDelay      time.Duration // delay between attempts; 0 => 200ms

	// SelfHealCorrupt makes GetOrCompute delete an undecodable entry and
	// recompute instead of returning the *DecodeError.
	SelfHealCorrupt bool

	// DisableSingleflight stops collapsing concurrent GetOrCompute calls for
	// the same key within this process.
	DisableSingleflight bool

	// RandN returns a uniform int64 in [0, n). nil => math/rand/v2.Int64N.
	RandN func(n int64) int64
}

func New[K comparable, V any](opts Options[V]) (Cache[K, V], error) {
	return newCache[K, V](opts)
}
