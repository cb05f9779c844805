package simplecache

import (
	"context"
	"errors"
	"time"

	pr "github.com/unkn0wn-root/simplecache/provider"
)

// keyBatch pairs logical keys with their store keys, preserving order.
type keyBatch[K comparable] struct {
	keys  []K
	store []string
}

func (c *cache[K, V]) batch(ns string, keys []K) keyBatch[K] {
	return keyBatch[K]{keys: keys, store: BuildKeys(c.keys, ns, keys)}
}

// distinct drops repeated store keys, keeping first occurrences.
func (b keyBatch[K]) distinct() keyBatch[K] {
	seen := make(map[string]struct{}, len(b.store))
	out := keyBatch[K]{keys: make([]K, 0, len(b.keys)), store: make([]string, 0, len(b.store))}
	for i, sk := range b.store {
		if _, dup := seen[sk]; dup {
			continue
		}
		seen[sk] = struct{}{}
		out.keys = append(out.keys, b.keys[i])
		out.store = append(out.store, sk)
	}
	return out
}

// GetAll returns the stored values for keys. Absent keys and negative markers
// are omitted. Entries that fail to decode are omitted too and reported in
// err, one *DecodeError each; the map still holds everything that decoded.
func (c *cache[K, V]) GetAll(ctx context.Context, ns string, keys []K) (map[K]V, error) {
	out, _, err := c.getAll(ctx, ns, keys)
	return out, err
}

// getAll also returns the keys that hold a negative marker.
func (c *cache[K, V]) getAll(ctx context.Context, ns string, keys []K) (map[K]V, map[K]struct{}, error) {
	if err := c.check(); err != nil {
		return nil, nil, err
	}
	out := make(map[K]V, len(keys))
	neg := make(map[K]struct{})
	if len(keys) == 0 {
		return out, neg, nil
	}

	b := c.batch(ns, keys).distinct()
	res, err := c.provider.MGet(ctx, b.store)
	if err != nil {
		return nil, nil, storeErr(c.backend, "get_all", "", err)
	}
	var errs []error
	for i, r := range res {
		if !r.Found {
			continue
		}
		v, isNeg, err := c.decode(b.store[i], r.Value)
		switch {
		case err != nil:
			c.hooks.DecodeFailed(b.store[i], false, err)
			errs = append(errs, err)
		case isNeg:
			neg[b.keys[i]] = struct{}{}
		default:
			out[b.keys[i]] = v
		}
	}
	return out, neg, errors.Join(errs...)
}

// PutAll writes every item unconditionally. The multi-key write is atomic as
// a set, but TTLs are applied afterwards, one key at a time, and that pass is
// NOT atomic with the write: if it fails the values stay, without expiry, and
// the returned *ExpireError names the affected keys.
func (c *cache[K, V]) PutAll(ctx context.Context, ns string, items map[K]V, ttl time.Duration) error {
	if err := c.check(); err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	batch, err := c.items(ns, items)
	if err != nil {
		return err
	}
	if err := c.provider.MSet(ctx, batch); err != nil {
		return storeErr(c.backend, "put_all", "", err)
	}
	if ttl <= 0 {
		return nil
	}

	var xe ExpireError
	for _, it := range batch {
		if _, err := c.provider.PExpire(ctx, it.Key, ttl); err != nil {
			xe.Keys = append(xe.Keys, it.Key)
			xe.Errs = append(xe.Errs, storeErr(c.backend, "expire", it.Key, err))
		}
	}
	if len(xe.Keys) == 0 {
		return nil
	}
	c.hooks.ExpirePassFailed(ns, len(xe.Keys))
	c.log.Warn("ttl pass incomplete; entries persist without expiry", Fields{
		"ns":     ns,
		"failed": len(xe.Keys),
		"total":  len(batch),
	})
	return &xe
}

// PutAllIfAbsent writes all items only if none of their keys exist, with
// value and TTL applied as one atomic unit. Backends without an atomic
// multi-key conditional write return a *CapabilityError.
func (c *cache[K, V]) PutAllIfAbsent(ctx context.Context, ns string, items map[K]V, ttl time.Duration) (bool, error) {
	if err := c.check(); err != nil {
		return false, err
	}
	if len(items) == 0 {
		return false, nil
	}
	batch, err := c.items(ns, items)
	if err != nil {
		return false, err
	}
	ok, err := c.provider.MSetNX(ctx, batch, ttl)
	if err != nil {
		return false, storeErr(c.backend, "put_all_if_absent", "", err)
	}
	return ok, nil
}

// RemoveAll reports whether at least one key was deleted.
func (c *cache[K, V]) RemoveAll(ctx context.Context, ns string, keys []K) (bool, error) {
	if err := c.check(); err != nil {
		return false, err
	}
	if len(keys) == 0 {
		return false, nil
	}
	n, err := c.provider.Del(ctx, c.batch(ns, keys).distinct().store...)
	if err != nil {
		return false, storeErr(c.backend, "remove_all", "", err)
	}
	return n > 0, nil
}

// ExistsAll reports whether every distinct key exists. An empty keys slice
// reports false.
func (c *cache[K, V]) ExistsAll(ctx context.Context, ns string, keys []K) (bool, error) {
	if err := c.check(); err != nil {
		return false, err
	}
	if len(keys) == 0 {
		return false, nil
	}
	b := c.batch(ns, keys).distinct()
	n, err := c.provider.Exists(ctx, b.store...)
	if err != nil {
		return false, storeErr(c.backend, "exists_all", "", err)
	}
	return n == int64(len(b.store)), nil
}

// CountExisting returns the store's EXISTS count for keys; duplicates count
// once per occurrence.
func (c *cache[K, V]) CountExisting(ctx context.Context, ns string, keys []K) (int64, error) {
	if err := c.check(); err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := c.provider.Exists(ctx, c.batch(ns, keys).store...)
	if err != nil {
		return 0, storeErr(c.backend, "count_existing", "", err)
	}
	return n, nil
}

func (c *cache[K, V]) items(ns string, items map[K]V) ([]pr.Item, error) {
	out := make([]pr.Item, 0, len(items))
	for k, v := range items {
		b, err := c.encode(v)
		if err != nil {
			return nil, err
		}
		out = append(out, pr.Item{Key: c.keys.BuildKey(ns, k), Value: b})
	}
	return out, nil
}
