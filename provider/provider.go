// Package provider defines the store contract used by simplecache.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly the
// same []byte that was previously passed to Set for a key (no prepended/appended
// metadata, no re-encoding, no mutation). If a store performs internal transforms
// (e.g., compression), they MUST be fully reversed so that the bytes returned by
// Get are identical to the bytes provided to Set.
//
// A store that cannot offer an operation atomically returns ErrUnsupported for it
// instead of approximating it with several independent commands.
package provider

import (
	"context"
	"errors"
	"time"
)

// ErrUnsupported is returned by drivers for operations the backend cannot
// perform (or cannot perform atomically).
var ErrUnsupported = errors.New("provider: operation not supported by backend")

// ErrRejected is returned when a local store refused a write under pressure.
var ErrRejected = errors.New("provider: write rejected by store")

// Item is a single key/value pair of a multi-key write.
type Item struct {
	Key   string
	Value []byte
}

// Result is one slot of an MGet reply. Found=false means the key was absent.
type Result struct {
	Value []byte
	Found bool
}

// Provider is the command surface simplecache needs from a remote key-value store.
// Must be safe for concurrent use. A ttl <= 0 always means "no expiry".
type Provider interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// MGet returns one Result per key, in the order of keys.
	MGet(ctx context.Context, keys []string) ([]Result, error)

	// Set unconditionally stores value with the given TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SetNX stores value only if key is absent. When ttl > 0 the write and the
	// expiry MUST be applied as one atomic unit.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// MSet writes all items as a set. It never applies a TTL.
	MSet(ctx context.Context, items []Item) error

	// MSetNX writes all items only if none of the keys exist. When ttl > 0 every
	// key gets the expiry inside the same atomic unit.
	MSetNX(ctx context.Context, items []Item, ttl time.Duration) (bool, error)

	// PExpire sets a millisecond-precision expiry. Returns false when the key is absent.
	PExpire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Del removes keys and reports how many existed.
	Del(ctx context.Context, keys ...string) (int64, error)

	// Exists reports how many of keys exist (duplicates counted each time).
	Exists(ctx context.Context, keys ...string) (int64, error)

	// Keys returns every key matching a Redis-style glob pattern.
	Keys(ctx context.Context, pattern string) ([]string, error)

	// FlushDB drops every key of the logical database this provider is bound to.
	FlushDB(ctx context.Context) error

	// Eval runs s atomically against the store and returns its integer reply.
	Eval(ctx context.Context, s *Script, keys []string, args []string) (int64, error)

	// Close releases resources.
	Close(ctx context.Context) error
}

// Namer is optionally implemented by providers to name their backend in errors.
type Namer interface {
	Name() string
}

// NameOf returns the backend name of p, or "unknown".
func NameOf(p Provider) string {
	if n, ok := p.(Namer); ok {
		return n.Name()
	}
	return "unknown"
}

// Scripter is optionally implemented by providers to report whether Eval can
// ever succeed. Providers that do not implement it are assumed to run scripts.
type Scripter interface {
	CanEval() bool
}

// CanEval reports whether p can run scripts.
func CanEval(p Provider) bool {
	if s, ok := p.(Scripter); ok {
		return s.CanEval()
	}
	return true
}
