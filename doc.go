// Package simplecache is a cache-access facade over a remote key-value store.
//
// It provides namespaced key construction, a cache-aside (get-or-compute)
// protocol with negative caching, batch reads and writes, and a lease-based
// distributed lock released by an atomic compare-and-delete script.
//
// Components:
//   - Provider: the store command surface (go-redis, valkey-go, in-memory,
//     ristretto, bigcache). Backends that cannot perform an operation
//     atomically report it and the cache returns a *CapabilityError.
//   - Codec[V]: (de)serializes V <-> []byte.
//   - KeyCodec: prefix:namespace:key store keys and namespace glob patterns.
//   - Lock: UNLOCKED -> ACQUIRING -> LOCKED -> RELEASING -> UNLOCKED.
//
// Keys:
//
//	<prefix>:<namespace>:<key>   - cache entries
//	<prefix>:lock:<key>          - lock leases (Cache.Lock)
//
// Cache-aside:
//
//	u, ok, err := cache.GetOrCompute(ctx, "User", id, loadUser, simplecache.WithTTL(time.Hour))
//
// A load that finds nothing stores a short-lived negative marker so repeated
// misses do not hammer the source; markers expire at staggered times.
//
// Guarantees and gaps:
//   - PutIfAbsent and PutAllIfAbsent apply value and TTL as one atomic unit.
//   - PutAll writes values atomically as a set, then applies TTLs in a second,
//     non-atomic pass; a failure there leaves entries without expiry and is
//     reported as *ExpireError.
//   - Clear enumerates then deletes. Keys written during the scan may survive.
package simplecache
