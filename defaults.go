package simplecache

import "time"

const (
	// VolatilityTime bounds negative marker TTLs: each marker lives for a
	// uniform random duration in [VolatilityTime/10, VolatilityTime).
	VolatilityTime = 10 * time.Second

	DefaultLockAttempts = 3
	DefaultLockDelay    = 200 * time.Millisecond

	// LockNamespace is the namespace Cache.Lock builds lock keys under. It is
	// reserved: Clear refuses it.
	LockNamespace = "lock"

	clearChunk = 512 // keys per DEL during Clear
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

// positive returns def unless v > 0.
func positive[T int | time.Duration](v, def T) T {
	if v > 0 {
		return v
	}
	return def
}
