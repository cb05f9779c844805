package simplecache

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/unkn0wn-root/simplecache/internal/wire"
)

// LoadFunc computes the value for key from the source of truth. ok=false
// means the source has no value; that result is cached as a negative marker.
type LoadFunc[K comparable, V any] func(ctx context.Context, key K) (v V, ok bool, err error)

// BatchLoadFunc computes values for keys; keys it leaves out of the map have no value.
type BatchLoadFunc[K comparable, V any] func(ctx context.Context, keys []K) (map[K]V, error)

type loadOptions struct {
	ttl       time.Duration
	overwrite bool
}

type LoadOption func(*loadOptions)

// WithTTL sets the TTL of computed values. Default: no expiry.
func WithTTL(ttl time.Duration) LoadOption {
	return func(o *loadOptions) { o.ttl = ttl }
}

// WithOverwrite stores computed values unconditionally instead of only when
// the key is still absent.
func WithOverwrite() LoadOption {
	return func(o *loadOptions) { o.overwrite = true }
}

type loaded[V any] struct {
	v  V
	ok bool
}

// GetOrCompute returns the cached value for key or computes, caches and
// returns it.
//
//  1. GET; a value is returned, a negative marker reports ok=false.
//  2. On a miss, EXISTS; if another writer stored the key meanwhile it is
//     read once more.
//  3. Otherwise fn runs. "No value" is cached as a negative marker with a TTL
//     drawn from [VolatilityTime/10, VolatilityTime) so markers across keys
//     and processes do not expire together.
//  4. A value is stored with SET NX (SET when WithOverwrite), never
//     clobbering a racing writer.
//  5. The computed value is returned even if the write failed.
//
// Store errors on the read path degrade to computing. A stored entry that
// cannot be decoded is returned as *DecodeError unless SelfHealCorrupt is
// set. Concurrent calls for the same key in this process share one
// computation; the first caller's options apply. Each caller waits on its own
// ctx, and a caller whose ctx is still live never inherits the context error
// of the caller that led the shared computation: it computes again instead.
func (c *cache[K, V]) GetOrCompute(ctx context.Context, ns string, key K, fn LoadFunc[K, V], opts ...LoadOption) (V, bool, error) {
	var zero V
	if err := c.check(); err != nil {
		return zero, false, err
	}
	var o loadOptions
	for _, opt := range opts {
		opt(&o)
	}
	k := c.keys.BuildKey(ns, key)
	if c.sf == nil {
		return c.getOrCompute(ctx, k, key, fn, o)
	}
	for {
		led := false
		ch := c.sf.DoChan(k, func() (any, error) {
			led = true
			v, ok, err := c.getOrCompute(ctx, k, key, fn, o)
			return loaded[V]{v: v, ok: ok}, err
		})
		var res singleflight.Result
		select {
		case <-ctx.Done():
			return zero, false, ctx.Err()
		case res = <-ch:
		}
		if res.Err == nil {
			l := res.Val.(loaded[V])
			return l.v, l.ok, nil
		}
		if led || !isContextErr(res.Err) || ctx.Err() != nil {
			return zero, false, res.Err
		}
		c.log.Debug("shared load canceled by its leader; retrying", Fields{"key": k})
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (c *cache[K, V]) getOrCompute(ctx context.Context, k string, key K, fn LoadFunc[K, V], o loadOptions) (V, bool, error) {
	var zero V
	for reread := false; ; reread = true {
		raw, found, err := c.provider.Get(ctx, k)
		if err != nil {
			c.degraded(k, err)
			return c.compute(ctx, k, key, fn, o)
		}
		if found {
			v, neg, err := c.decode(k, raw)
			switch {
			case err == nil && neg:
				return zero, false, nil
			case err == nil:
				return v, true, nil
			case !c.selfHeal:
				c.hooks.DecodeFailed(k, false, err)
				return zero, false, err
			}
			_, delErr := c.provider.Del(ctx, k)
			c.hooks.DecodeFailed(k, delErr == nil, err)
			c.log.Warn("corrupt entry dropped; recomputing", Fields{"key": k, "err": err})
			return c.compute(ctx, k, key, fn, o)
		}
		if reread {
			break // appeared and vanished again; compute
		}
		n, err := c.provider.Exists(ctx, k)
		if err != nil {
			c.degraded(k, err)
			break
		}
		if n == 0 {
			break
		}
	}
	return c.compute(ctx, k, key, fn, o)
}

func (c *cache[K, V]) compute(ctx context.Context, k string, key K, fn LoadFunc[K, V], o loadOptions) (V, bool, error) {
	var zero V
	v, ok, err := fn(ctx, key)
	if err != nil {
		return zero, false, err
	}
	if !ok {
		ttl := c.negativeTTL()
		if _, err := c.provider.SetNX(ctx, k, wire.EncodeNegative(), ttl); err != nil {
			c.writeBackFailed(k, err)
		} else {
			c.hooks.NegativeCached(k, ttl)
			c.log.Debug("negative result cached", Fields{"key": k, "ttl": ttl})
		}
		return zero, false, nil
	}

	b, err := c.encode(v)
	if err == nil {
		if o.overwrite {
			err = c.provider.Set(ctx, k, b, o.ttl)
		} else {
			_, err = c.provider.SetNX(ctx, k, b, o.ttl)
		}
	}
	if err != nil {
		c.writeBackFailed(k, err)
	}
	return v, true, nil
}

// GetAllOrCompute returns cached values for keys and loads the rest through
// fn in one call. Loaded values are written with PutAll; write failures are
// reported through hooks and do not fail the call. Keys holding a negative
// marker are not reloaded.
func (c *cache[K, V]) GetAllOrCompute(ctx context.Context, ns string, keys []K, fn BatchLoadFunc[K, V], opts ...LoadOption) (map[K]V, error) {
	var o loadOptions
	for _, opt := range opts {
		opt(&o)
	}
	out, neg, err := c.getAll(ctx, ns, keys)
	if err != nil {
		switch {
		case errors.Is(err, ErrClosed):
			return nil, err
		case out != nil: // some entries failed to decode
			if !c.selfHeal {
				return out, err
			}
			// corrupt keys are reloaded below and overwritten by PutAll
		default:
			c.degraded(ns, err)
			out, neg = make(map[K]V, len(keys)), map[K]struct{}{}
		}
	}

	var missing []K
	seen := make(map[K]struct{}, len(keys))
	for _, k := range keys {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		if _, ok := out[k]; ok {
			continue
		}
		if _, ok := neg[k]; ok {
			continue
		}
		missing = append(missing, k)
	}
	if len(missing) == 0 {
		return out, nil
	}

	got, err := fn(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(got) == 0 {
		return out, nil
	}
	if err := c.PutAll(ctx, ns, got, o.ttl); err != nil {
		c.writeBackFailed(ns, err)
	}
	for k, v := range got {
		out[k] = v
	}
	return out, nil
}

// negativeTTL draws a uniform TTL in [volatility/10, volatility) at
// millisecond granularity, never below 1ms.
func (c *cache[K, V]) negativeTTL() time.Duration {
	hi := c.volatility.Milliseconds()
	lo := hi / 10
	ms := lo
	if span := hi - lo; span > 0 {
		ms += c.randN(span)
	}
	return time.Duration(max(ms, 1)) * time.Millisecond
}

func (c *cache[K, V]) degraded(k string, err error) {
	c.hooks.ReadDegraded(k, err)
	c.log.Warn("cache read failed; computing from source", Fields{"key": k, "err": err})
}

func (c *cache[K, V]) writeBackFailed(k string, err error) {
	c.hooks.WriteBackFailed(k, err)
	c.log.Warn("best-effort cache write failed", Fields{"key": k, "err": err})
}
