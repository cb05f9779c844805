package simplecache

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	pr "github.com/unkn0wn-root/simplecache/provider"
)

// LockState is the local view of a lease. The store is authoritative: a
// LOCKED handle may already have lost its lease to expiry.
type LockState int32

const (
	Unlocked LockState = iota
	Acquiring
	Locked
	Releasing
)

func (s LockState) String() string {
	switch s {
	case Unlocked:
		return "UNLOCKED"
	case Acquiring:
		return "ACQUIRING"
	case Locked:
		return "LOCKED"
	case Releasing:
		return "RELEASING"
	}
	return "LockState(" + strconv.Itoa(int(s)) + ")"
}

// ErrLockBusy is returned when a handle is asked to acquire while it is
// already acquiring or holding its lease. One handle serves one critical section.
var ErrLockBusy = errors.New("simplecache: lock handle already acquiring or locked")

// releaseTimeout bounds the release issued by Close when the caller's
// context is already done.
const releaseTimeout = 2 * time.Second

type LockOptions struct {
	Attempts int           // Acquire attempts; 0 => 3
	Delay    time.Duration // fixed delay between attempts; 0 => 200ms
	Logger   Logger
	Hooks    Hooks

	// NewToken returns a holder token unique across processes. nil => UUIDv7.
	NewToken func() (string, error)
}

// Lock is a lease-based mutual exclusion handle over one store key.
//
// Acquiring is a single SET key token NX PX lease, so a lock key is never
// left without its expiry. Release deletes the key only if it still holds
// this handle's token. A handle is not meant to be shared between goroutines
// beyond calling Close from a deferred cleanup.
type Lock struct {
	p        pr.Provider
	backend  string
	key      string
	lease    time.Duration
	attempts int
	delay    time.Duration
	log      Logger
	hooks    Hooks
	newToken func() (string, error)

	mu     sync.Mutex
	state  LockState
	token  string
	closed bool
	once   sync.Once
}

// NewLock returns an unacquired handle for the store key. A provider that
// cannot run scripts could take a lease but never release it, so it is
// rejected with a *CapabilityError.
func NewLock(p pr.Provider, key string, lease time.Duration, opts LockOptions) (*Lock, error) {
	if p == nil {
		return nil, ErrNilProvider
	}
	if lease <= 0 {
		return nil, ErrInvalidTTL
	}
	if !pr.CanEval(p) {
		return nil, &CapabilityError{Op: "lock", Backend: pr.NameOf(p), Err: pr.ErrUnsupported}
	}
	l := &Lock{
		p:        p,
		backend:  pr.NameOf(p),
		key:      key,
		lease:    lease,
		attempts: positive(opts.Attempts, DefaultLockAttempts),
		delay:    positive(opts.Delay, DefaultLockDelay),
		log:      coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:    coalesce[Hooks](opts.Hooks, NopHooks{}),
		newToken: opts.NewToken,
	}
	if l.newToken == nil {
		l.newToken = uuidToken
	}
	return l, nil
}

func uuidToken() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func (l *Lock) Key() string { return l.key }

func (l *Lock) State() LockState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Token returns the holder token while LOCKED, "" otherwise.
func (l *Lock) Token() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != Locked {
		return ""
	}
	return l.token
}

// TryAcquire makes one attempt with a fresh token. Contention is (false, nil).
func (l *Lock) TryAcquire(ctx context.Context) (bool, error) {
	if err := l.begin(); err != nil {
		return false, err
	}
	return l.attempt(ctx)
}

// Acquire retries TryAcquire with the handle's attempts and delay.
func (l *Lock) Acquire(ctx context.Context) (bool, error) {
	return l.AcquireWith(ctx, l.delay, l.attempts)
}

// AcquireWith makes up to attempts tries spaced by delay. It reports false
// with a nil error when another holder kept the lease, and false with an
// *AcquireError when the final attempt failed on the store. Store errors on
// earlier attempts only consume the budget.
func (l *Lock) AcquireWith(ctx context.Context, delay time.Duration, attempts int) (bool, error) {
	if attempts <= 0 {
		attempts = 1
	}
	start := time.Now()
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			if err := sleep(ctx, delay); err != nil {
				return false, err
			}
		}
		if err := l.begin(); err != nil {
			return false, err
		}
		ok, err := l.attempt(ctx)
		if ok {
			return true, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		lastErr = err
		if err != nil {
			l.log.Debug("lock attempt failed", Fields{"key": l.key, "attempt": i + 1, "err": err})
		}
	}
	if lastErr != nil {
		return false, &AcquireError{Key: l.key, Attempts: attempts, Err: lastErr}
	}
	waited := time.Since(start)
	l.hooks.LockContended(l.key, attempts, waited)
	l.log.Debug("lock contended", Fields{"key": l.key, "attempts": attempts, "waited": waited})
	return false, nil
}

// begin moves UNLOCKED -> ACQUIRING.
func (l *Lock) begin() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	if l.state != Unlocked {
		return ErrLockBusy
	}
	l.state = Acquiring
	return nil
}

// attempt runs in ACQUIRING and leaves the handle LOCKED or UNLOCKED.
func (l *Lock) attempt(ctx context.Context) (bool, error) {
	token, err := l.newToken()
	if err == nil {
		var ok bool
		ok, err = l.p.SetNX(ctx, l.key, []byte(token), l.lease)
		if err == nil && ok {
			l.mu.Lock()
			l.state, l.token = Locked, token
			l.mu.Unlock()
			return true, nil
		}
	}
	l.mu.Lock()
	l.state = Unlocked
	l.mu.Unlock()
	return false, storeErr(l.backend, "lock", l.key, err)
}

// Release gives the lease back. It reports true only when this handle's
// token was still stored and got deleted. A never-acquired handle, an
// expired lease or a lease now owned by another holder all report false and
// delete nothing. On a store error the handle stays LOCKED so Release can be
// retried; the lease expires by TTL regardless.
func (l *Lock) Release(ctx context.Context) (bool, error) {
	l.mu.Lock()
	if l.state != Locked {
		l.mu.Unlock()
		return false, nil
	}
	l.state = Releasing
	token := l.token
	l.mu.Unlock()

	n, err := l.p.Eval(ctx, releaseScript, []string{l.key}, []string{token})

	l.mu.Lock()
	defer l.mu.Unlock()
	if err != nil {
		l.state = Locked
		return false, storeErr(l.backend, "unlock", l.key, err)
	}
	l.state, l.token = Unlocked, ""
	if n == 0 {
		l.hooks.LockLost(l.key)
		l.log.Warn("lock lease lost before release", Fields{"key": l.key})
		return false, nil
	}
	return true, nil
}

// Extend resets the lease to lease while this handle still holds it. On
// loss it reports false and the handle returns to UNLOCKED.
func (l *Lock) Extend(ctx context.Context, lease time.Duration) (bool, error) {
	if lease <= 0 {
		return false, ErrInvalidTTL
	}
	l.mu.Lock()
	if l.state != Locked {
		l.mu.Unlock()
		return false, nil
	}
	token := l.token
	l.mu.Unlock()

	ms := strconv.FormatInt(max(lease.Milliseconds(), 1), 10)
	n, err := l.p.Eval(ctx, extendScript, []string{l.key}, []string{token, ms})
	if err != nil {
		return false, storeErr(l.backend, "extend", l.key, err)
	}
	if n == 1 {
		return true, nil
	}
	l.mu.Lock()
	if l.state == Locked && l.token == token {
		l.state, l.token = Unlocked, ""
	}
	l.mu.Unlock()
	l.hooks.LockLost(l.key)
	l.log.Warn("lock lease lost before extend", Fields{"key": l.key})
	return false, nil
}

// Close is the scoped cleanup: it releases at most once, on every exit path,
// whether or not the lock was acquired, and never returns an error. Release
// failures are logged and reported through hooks. The handle cannot be
// acquired again afterwards.
func (l *Lock) Close(ctx context.Context) {
	l.once.Do(func() {
		l.mu.Lock()
		l.closed = true
		l.mu.Unlock()

		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if _, err := l.Release(rctx); err != nil {
			l.hooks.LockReleaseFailed(l.key, err)
			l.log.Error("lock release failed; lease will expire", Fields{
				"key":   l.key,
				"lease": l.lease,
				"err":   err,
			})
		}
	})
}

// Run acquires the lock, runs fn and releases. It reports false without
// calling fn when the lock was not acquired. fn's error is returned as is.
func (l *Lock) Run(ctx context.Context, fn func(context.Context) error) (bool, error) {
	defer l.Close(ctx)
	ok, err := l.Acquire(ctx)
	if !ok {
		return false, err
	}
	return true, fn(ctx)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
