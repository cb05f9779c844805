package simplecache

import "time"

// Fields is a minimal structured field map for logs.
type Fields map[string]any

// Logger is a tiny leveled logger. Provide an adapter around logging stack.
// If Logger is nil in Options, logging is disabled.
type Logger interface {
	Debug(msg string, f Fields)
	Info(msg string, f Fields)
	Warn(msg string, f Fields)
	Error(msg string, f Fields)
}

type NopLogger struct{}

func (NopLogger) Debug(string, Fields) {}
func (NopLogger) Info(string, Fields)  {}
func (NopLogger) Warn(string, Fields)  {}
func (NopLogger) Error(string, Fields) {}

// Hooks are callbacks for high-signal events. Implementations MUST be cheap
// and non-blocking; they run on the caller's goroutine.
type Hooks interface {
	// Stored bytes failed framing or decoding. healed reports whether the
	// entry was deleted so the next read recomputes.
	DecodeFailed(storeKey string, healed bool, err error)

	// A cache-aside read hit a store error and fell through to compute.
	ReadDegraded(storeKey string, err error)

	// The best-effort write after a compute failed; the value was still returned.
	WriteBackFailed(storeKey string, err error)

	// A negative marker was stored for storeKey.
	NegativeCached(storeKey string, ttl time.Duration)

	// PutAll wrote values but could not apply the TTL to failed of them.
	ExpirePassFailed(namespace string, failed int)

	// Acquire gave up after attempts because another holder owned the lease.
	LockContended(lockKey string, attempts int, waited time.Duration)

	// Release or Extend found the lease gone or owned by another holder.
	LockLost(lockKey string)

	// Release failed with a store error; the lease will still expire by TTL.
	LockReleaseFailed(lockKey string, err error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) DecodeFailed(string, bool, error)         {}
func (NopHooks) ReadDegraded(string, error)               {}
func (NopHooks) WriteBackFailed(string, error)            {}
func (NopHooks) NegativeCached(string, time.Duration)     {}
func (NopHooks) ExpirePassFailed(string, int)             {}
func (NopHooks) LockContended(string, int, time.Duration) {}
func (NopHooks) LockLost(string)                          {}
func (NopHooks) LockReleaseFailed(string, error)          {}

// MultiHooks fans every event out to each element in order.
type MultiHooks []Hooks

var _ Hooks = MultiHooks(nil)

func (m MultiHooks) DecodeFailed(k string, healed bool, err error) {
	for _, h := range m {
		h.DecodeFailed(k, healed, err)
	}
}

func (m MultiHooks) ReadDegraded(k string, err error) {
	for _, h := range m {
		h.ReadDegraded(k, err)
	}
}

func (m MultiHooks) WriteBackFailed(k string, err error) {
	for _, h := range m {
		h.WriteBackFailed(k, err)
	}
}

func (m MultiHooks) NegativeCached(k string, ttl time.Duration) {
	for _, h := range m {
		h.NegativeCached(k, ttl)
	}
}

func (m MultiHooks) ExpirePassFailed(ns string, failed int) {
	for _, h := range m {
		h.ExpirePassFailed(ns, failed)
	}
}

func (m MultiHooks) LockContended(k string, attempts int, waited time.Duration) {
	for _, h := range m {
		h.LockContended(k, attempts, waited)
	}
}

func (m MultiHooks) LockLost(k string) {
	for _, h := range m {
		h.LockLost(k)
	}
}

func (m MultiHooks) LockReleaseFailed(k string, err error) {
	for _, h := range m {
		h.LockReleaseFailed(k, err)
	}
}
