// Package asynchook moves hook delivery off the cache's hot path.
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{DegradedEvery: 10})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
// Events are dropped, and counted, when the queue is full.
package asynchook

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/simplecache"
)

type Hooks struct {
	inner   simplecache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex // guards closed against sends on a closed queue
	closed  bool
	dropped atomic.Uint64
}

var _ simplecache.Hooks = (*Hooks)(nil)

func New(inner simplecache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close stops accepting events and waits for queued ones to be delivered.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped returns how many events were discarded on a full or closed queue.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default: // drop
		h.dropped.Add(1)
	}
}

func (h *Hooks) LockLost(k string)                { h.try(func() { h.inner.LockLost(k) }) }
func (h *Hooks) ReadDegraded(k string, err error) { h.try(func() { h.inner.ReadDegraded(k, err) }) }
func (h *Hooks) DecodeFailed(k string, healed bool, err error) {
	h.try(func() { h.inner.DecodeFailed(k, healed, err) })
}
func (h *Hooks) WriteBackFailed(k string, err error) {
	h.try(func() { h.inner.WriteBackFailed(k, err) })
}
func (h *Hooks) NegativeCached(k string, ttl time.Duration) {
	h.try(func() { h.inner.NegativeCached(k, ttl) })
}
func (h *Hooks) ExpirePassFailed(ns string, failed int) {
	h.try(func() { h.inner.ExpirePassFailed(ns, failed) })
}
func (h *Hooks) LockContended(k string, attempts int, waited time.Duration) {
	h.try(func() { h.inner.LockContended(k, attempts, waited) })
}
func (h *Hooks) LockReleaseFailed(k string, err error) {
	h.try(func() { h.inner.LockReleaseFailed(k, err) })
}
