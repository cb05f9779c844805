package simplecache

import (
	"errors"
	"fmt"
	"strings"

	pr "github.com/unkn0wn-root/simplecache/provider"
)

var (
	// ErrUnsupported is wrapped by every *CapabilityError.
	ErrUnsupported = pr.ErrUnsupported

	// ErrNotConfirmed is returned by ClearAll without the FlushDatabase intent.
	ErrNotConfirmed = errors.New("simplecache: destructive operation not confirmed")

	// ErrReservedNamespace is returned by Clear for LockNamespace, which holds
	// live leases of other processes.
	ErrReservedNamespace = errors.New("simplecache: namespace reserved for locks")

	ErrInvalidTTL  = errors.New("simplecache: ttl must be positive")
	ErrClosed      = errors.New("simplecache: cache closed")
	ErrNilProvider = errors.New("simplecache: provider is required")
	ErrNilCodec    = errors.New("simplecache: codec is required")
)

// CapabilityError reports an operation the backend cannot perform, or cannot
// perform atomically. It is never degraded to a weaker approximation.
type CapabilityError struct {
	Op      string
	Backend string
	Err     error
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("simplecache: %s is not supported by the %s backend: %v", e.Op, e.Backend, e.Err)
}

func (e *CapabilityError) Unwrap() error { return e.Err }

// DecodeError means bytes were stored under Key but could not be turned back
// into a value. It is distinct from a miss.
type DecodeError struct {
	Key string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("simplecache: decode %q: %v", e.Key, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// StoreError is a transient failure talking to the store (connectivity,
// timeout, server error). Plain reads and writes are never retried.
type StoreError struct {
	Op  string
	Key string // empty for multi-key and keyspace operations
	Err error
}

func (e *StoreError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("simplecache: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("simplecache: %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// ExpireError is returned by PutAll when the values were written but the
// follow-up TTL pass failed for some keys. Those entries persist without
// expiry until overwritten or removed.
type ExpireError struct {
	Keys []string
	Errs []error
}

func (e *ExpireError) Error() string {
	const show = 3
	ks := e.Keys
	more := ""
	if len(ks) > show {
		more = fmt.Sprintf(" (+%d more)", len(ks)-show)
		ks = ks[:show]
	}
	return fmt.Sprintf("simplecache: values written but ttl not applied to %d key(s): %s%s",
		len(e.Keys), strings.Join(ks, ", "), more)
}

func (e *ExpireError) Unwrap() []error { return e.Errs }

// AcquireError is returned when a lock could not be acquired because the
// store kept failing, as opposed to another holder owning the lease.
type AcquireError struct {
	Key      string
	Attempts int
	Err      error // last store error
}

func (e *AcquireError) Error() string {
	return fmt.Sprintf("simplecache: acquire %q failed after %d attempt(s): %v", e.Key, e.Attempts, e.Err)
}

func (e *AcquireError) Unwrap() error { return e.Err }

// storeErr classifies a driver error: ErrUnsupported becomes a
// *CapabilityError, anything else a *StoreError.
func storeErr(backend, op, key string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pr.ErrUnsupported) {
		return &CapabilityError{Op: op, Backend: backend, Err: err}
	}
	return &StoreError{Op: op, Key: key, Err: err}
}
