// Package memory is an in-process provider with the full command surface:
// per-entry TTLs, atomic MSetNX, KEYS globbing and local script execution.
// Intended for tests, the CLI and single-process deployments.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	pr "github.com/unkn0wn-root/simplecache/provider"
)

var ErrClosed = errors.New("memory provider: closed")

type entry struct {
	v   []byte
	exp time.Time // zero => no expiry
}

func (e entry) expired(now time.Time) bool {
	return !e.exp.IsZero() && !now.Before(e.exp)
}

type Provider struct {
	mu     sync.Mutex
	m      map[string]entry
	now    func() time.Time
	closed bool
}

var _ pr.Provider = (*Provider)(nil)

type Option func(*Provider)

// WithClock replaces time.Now; tests use it to move expiry forward.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) {
		if now != nil {
			p.now = now
		}
	}
}

func New(opts ...Option) *Provider {
	p := &Provider{m: make(map[string]entry), now: time.Now}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Provider) Name() string { return "memory" }

// TTL reports the remaining lifetime of key. ok=false when absent; a zero
// duration with ok=true means the key never expires.
func (p *Provider) TTL(key string) (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.lookup(key)
	if !ok {
		return 0, false
	}
	if e.exp.IsZero() {
		return 0, true
	}
	return e.exp.Sub(p.now()), true
}

// Len returns the number of live keys.
func (p *Provider) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	now := p.now()
	for _, e := range p.m {
		if !e.expired(now) {
			n++
		}
	}
	return n
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, false, ErrClosed
	}
	e, ok := p.lookup(key)
	if !ok {
		return nil, false, nil
	}
	return clone(e.v), true, nil
}

func (p *Provider) MGet(_ context.Context, keys []string) ([]pr.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	out := make([]pr.Result, len(keys))
	for i, k := range keys {
		if e, ok := p.lookup(k); ok {
			out[i] = pr.Result{Value: clone(e.v), Found: true}
		}
	}
	return out, nil
}

func (p *Provider) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.store(key, value, ttl)
	return nil
}

func (p *Provider) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false, ErrClosed
	}
	if _, ok := p.lookup(key); ok {
		return false, nil
	}
	p.store(key, value, ttl)
	return true, nil
}

// MSet overwrites values and, like the Redis command, clears any previous TTL.
func (p *Provider) MSet(_ context.Context, items []pr.Item) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	for _, it := range items {
		p.store(it.Key, it.Value, 0)
	}
	return nil
}

func (p *Provider) MSetNX(_ context.Context, items []pr.Item, ttl time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false, ErrClosed
	}
	if len(items) == 0 {
		return false, nil
	}
	for _, it := range items {
		if _, ok := p.lookup(it.Key); ok {
			return false, nil
		}
	}
	for _, it := range items {
		p.store(it.Key, it.Value, ttl)
	}
	return true, nil
}

func (p *Provider) PExpire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false, ErrClosed
	}
	return p.expire(key, ttl), nil
}

func (p *Provider) Del(_ context.Context, keys ...string) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, ErrClosed
	}
	var n int64
	for _, k := range keys {
		if p.remove(k) {
			n++
		}
	}
	return n, nil
}

func (p *Provider) Exists(_ context.Context, keys ...string) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, ErrClosed
	}
	var n int64
	for _, k := range keys {
		if _, ok := p.lookup(k); ok {
			n++
		}
	}
	return n, nil
}

func (p *Provider) Keys(_ context.Context, pattern string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	now := p.now()
	var out []string
	for k, e := range p.m {
		if e.expired(now) {
			delete(p.m, k)
			continue
		}
		if pr.Match(pattern, k) {
			out = append(out, k)
		}
	}
	return out, nil
}

func (p *Provider) FlushDB(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.m = make(map[string]entry)
	return nil
}

// Eval runs the script's local implementation while holding the store lock,
// which gives it the same all-or-nothing view a Lua script has on the server.
func (p *Provider) Eval(_ context.Context, s *pr.Script, keys []string, args []string) (int64, error) {
	fn := s.Local()
	if fn == nil {
		return 0, pr.ErrUnsupported
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, ErrClosed
	}
	return fn(tx{p}, keys, args)
}

func (p *Provider) Close(context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.m = nil
	p.mu.Unlock()
	return nil
}

// lookup, store, expire and remove expect p.mu held.

func (p *Provider) lookup(key string) (entry, bool) {
	e, ok := p.m[key]
	if !ok {
		return entry{}, false
	}
	if e.expired(p.now()) {
		delete(p.m, key)
		return entry{}, false
	}
	return e, true
}

func (p *Provider) store(key string, value []byte, ttl time.Duration) {
	e := entry{v: clone(value)}
	if ttl > 0 {
		e.exp = p.now().Add(ttl)
	}
	p.m[key] = e
}

func (p *Provider) expire(key string, ttl time.Duration) bool {
	e, ok := p.lookup(key)
	if !ok {
		return false
	}
	if ttl <= 0 {
		delete(p.m, key) // PEXPIRE with a non-positive TTL deletes the key
		return true
	}
	e.exp = p.now().Add(ttl)
	p.m[key] = e
	return true
}

func (p *Provider) remove(key string) bool {
	if _, ok := p.lookup(key); !ok {
		return false
	}
	delete(p.m, key)
	return true
}

type tx struct{ p *Provider }

func (t tx) Get(key string) ([]byte, bool) {
	e, ok := t.p.lookup(key)
	if !ok {
		return nil, false
	}
	return clone(e.v), true
}

func (t tx) Exists(key string) bool {
	_, ok := t.p.lookup(key)
	return ok
}

func (t tx) Set(key string, value []byte, ttl time.Duration) { t.p.store(key, value, ttl) }
func (t tx) Del(key string) bool                             { return t.p.remove(key) }
func (t tx) PExpire(key string, ttl time.Duration) bool      { return t.p.expire(key, ttl) }

func clone(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
