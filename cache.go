package simplecache

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	c "github.com/unkn0wn-root/simplecache/codec"
	"github.com/unkn0wn-root/simplecache/internal/wire"
	pr "github.com/unkn0wn-root/simplecache/provider"
)

type cache[K comparable, V any] struct {
	provider pr.Provider
	codec    c.Codec[V]
	keys     KeyCodec
	backend  string
	log      Logger
	hooks    Hooks

	volatility   time.Duration
	randN        func(int64) int64
	lockAttempts int
	lockDelay    time.Duration
	selfHeal     bool

	sf     *singleflight.Group // nil when disabled
	closed atomic.Bool
}

var _ Cache[string, struct{}] = (*cache[string, struct{}])(nil)

func newCache[K comparable, V any](opts Options[V]) (*cache[K, V], error) {
	if opts.Provider == nil {
		return nil, ErrNilProvider
	}
	if opts.Codec == nil {
		return nil, ErrNilCodec
	}

	c := &cache[K, V]{
		provider: opts.Provider,
		codec:    opts.Codec,
		keys:     KeyCodec{Prefix: opts.Prefix},
		backend:  pr.NameOf(opts.Provider),
		selfHeal: opts.SelfHealCorrupt,
	}

	// defaults
	c.log = coalesce[Logger](opts.Logger, NopLogger{})
	c.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	c.volatility = positive(opts.VolatilityTime, VolatilityTime)
	c.lockAttempts = positive(opts.LockAttempts, DefaultLockAttempts)
	c.lockDelay = positive(opts.LockDelay, DefaultLockDelay)

	if opts.RandN != nil {
		c.randN = opts.RandN
	} else {
		c.randN = rand.Int64N
	}
	if !opts.DisableSingleflight {
		c.sf = &singleflight.Group{}
	}
	return c, nil
}

func (c *cache[K, V]) KeyCodec() KeyCodec { return c.keys }

// Close closes the provider. Safe to call multiple times.
func (c *cache[K, V]) Close(ctx context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.provider.Close(ctx)
}

func (c *cache[K, V]) check() error {
	if c.closed.Load() {
		return ErrClosed
	}
	return nil
}

func (c *cache[K, V]) Get(ctx context.Context, ns string, key K) (V, bool, error) {
	var zero V
	if err := c.check(); err != nil {
		return zero, false, err
	}
	k := c.keys.BuildKey(ns, key)
	raw, ok, err := c.provider.Get(ctx, k)
	if err != nil {
		return zero, false, storeErr(c.backend, "get", k, err)
	}
	if !ok {
		return zero, false, nil
	}
	v, neg, err := c.decode(k, raw)
	if err != nil {
		c.hooks.DecodeFailed(k, false, err)
		return zero, false, err
	}
	if neg {
		return zero, false, nil
	}
	return v, true, nil
}

func (c *cache[K, V]) Put(ctx context.Context, ns string, key K, value V, ttl time.Duration) error {
	if err := c.check(); err != nil {
		return err
	}
	b, err := c.encode(value)
	if err != nil {
		return err
	}
	k := c.keys.BuildKey(ns, key)
	return storeErr(c.backend, "put", k, c.provider.Set(ctx, k, b, ttl))
}

// PutIfAbsent writes only when key is absent. With ttl > 0 the value and its
// expiry land in one atomic SET NX PX; a key is never left without its TTL.
func (c *cache[K, V]) PutIfAbsent(ctx context.Context, ns string, key K, value V, ttl time.Duration) (bool, error) {
	if err := c.check(); err != nil {
		return false, err
	}
	b, err := c.encode(value)
	if err != nil {
		return false, err
	}
	k := c.keys.BuildKey(ns, key)
	ok, err := c.provider.SetNX(ctx, k, b, ttl)
	if err != nil {
		return false, storeErr(c.backend, "put_if_absent", k, err)
	}
	return ok, nil
}

func (c *cache[K, V]) Remove(ctx context.Context, ns string, key K) (bool, error) {
	if err := c.check(); err != nil {
		return false, err
	}
	k := c.keys.BuildKey(ns, key)
	n, err := c.provider.Del(ctx, k)
	if err != nil {
		return false, storeErr(c.backend, "remove", k, err)
	}
	return n > 0, nil
}

// Exists reports whether anything is stored under key, negative markers included.
func (c *cache[K, V]) Exists(ctx context.Context, ns string, key K) (bool, error) {
	if err := c.check(); err != nil {
		return false, err
	}
	k := c.keys.BuildKey(ns, key)
	n, err := c.provider.Exists(ctx, k)
	if err != nil {
		return false, storeErr(c.backend, "exists", k, err)
	}
	return n > 0, nil
}

// Expire replaces key's TTL. It reports false when key is absent.
func (c *cache[K, V]) Expire(ctx context.Context, ns string, key K, ttl time.Duration) (bool, error) {
	if err := c.check(); err != nil {
		return false, err
	}
	if ttl <= 0 {
		return false, ErrInvalidTTL
	}
	k := c.keys.BuildKey(ns, key)
	ok, err := c.provider.PExpire(ctx, k, ttl)
	if err != nil {
		return false, storeErr(c.backend, "expire", k, err)
	}
	return ok, nil
}

// Clear deletes every key of ns. It runs KEYS over the whole keyspace and
// then deletes in chunks; not atomic, and keys written meanwhile may survive.
// Backends without pattern scan return a *CapabilityError. LockNamespace is
// refused with ErrReservedNamespace; leases are left to expire.
func (c *cache[K, V]) Clear(ctx context.Context, ns string) (bool, error) {
	if err := c.check(); err != nil {
		return false, err
	}
	if ns == LockNamespace {
		return false, ErrReservedNamespace
	}
	pattern := c.keys.BuildNamespacePattern(ns)
	keys, err := c.provider.Keys(ctx, pattern)
	if err != nil {
		return false, storeErr(c.backend, "clear", "", err)
	}
	var deleted int64
	for start := 0; start < len(keys); start += clearChunk {
		end := min(start+clearChunk, len(keys))
		n, err := c.provider.Del(ctx, keys[start:end]...)
		if err != nil {
			return deleted > 0, storeErr(c.backend, "clear", "", err)
		}
		deleted += n
	}
	c.log.Info("namespace cleared", Fields{"ns": ns, "matched": len(keys), "deleted": deleted})
	return deleted > 0, nil
}

// ClearAll flushes the whole logical database, including keys that do not
// belong to this cache. intent must be FlushDatabase.
func (c *cache[K, V]) ClearAll(ctx context.Context, intent Intent) (bool, error) {
	if err := c.check(); err != nil {
		return false, err
	}
	if intent != FlushDatabase {
		return false, ErrNotConfirmed
	}
	if err := c.provider.FlushDB(ctx); err != nil {
		return false, storeErr(c.backend, "clear_all", "", err)
	}
	c.log.Warn("database flushed", Fields{"backend": c.backend})
	return true, nil
}

// Lock returns an unacquired lock handle for key under LockNamespace. Lock
// keys share the cache keyspace, so LockNamespace must not be used for cache
// entries.
func (c *cache[K, V]) Lock(key string, lease time.Duration) (*Lock, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	return NewLock(c.provider, c.keys.BuildKey(LockNamespace, key), lease, LockOptions{
		Attempts: c.lockAttempts,
		Delay:    c.lockDelay,
		Logger:   c.log,
		Hooks:    c.hooks,
	})
}

// WithLock runs fn while holding the lock. It reports false, without calling
// fn, when the lock could not be acquired.
func (c *cache[K, V]) WithLock(ctx context.Context, key string, lease time.Duration, fn func(context.Context) error) (bool, error) {
	l, err := c.Lock(key, lease)
	if err != nil {
		return false, err
	}
	return l.Run(ctx, fn)
}

func (c *cache[K, V]) encode(v V) ([]byte, error) {
	payload, err := c.codec.Encode(v)
	if err != nil {
		return nil, fmt.Errorf("simplecache: encode: %w", err)
	}
	return wire.EncodeValue(payload), nil
}

// decode unwraps a stored entry. neg reports a negative marker.
func (c *cache[K, V]) decode(storeKey string, raw []byte) (v V, neg bool, err error) {
	kind, payload, err := wire.Decode(raw)
	if err != nil {
		return v, false, &DecodeError{Key: storeKey, Err: err}
	}
	if kind == wire.KindNegative {
		return v, true, nil
	}
	v, err = c.codec.Decode(payload)
	if err != nil {
		return v, false, &DecodeError{Key: storeKey, Err: err}
	}
	return v, false, nil
}
