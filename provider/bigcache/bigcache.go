// Package bigcache adapts allegro/bigcache to the simplecache provider
// contract as a degraded in-process backend.
//
// BigCache has no per-entry TTL, so each entry carries its own deadline in
// an 8-byte header and expired entries read as absent. LifeWindow still
// evicts every entry after that window, whatever TTL it was written with.
// There is no atomic multi-key conditional write and no script engine:
// MSetNX and Eval return provider.ErrUnsupported. MSet writes items one by
// one under the write lock; a failed item leaves the earlier ones written.
package bigcache

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"time"

	bc "github.com/allegro/bigcache/v3"

	pr "github.com/unkn0wn-root/simplecache/provider"
)

const hdrLen = 8 // big-endian unix nanos deadline; 0 => none

type Provider struct {
	c   *bc.BigCache
	now func() time.Time

	// mu serializes every write so check-then-write sequences stay atomic
	// within this process.
	mu sync.Mutex
}

var _ pr.Provider = (*Provider)(nil)

type Config struct {
	LifeWindow         time.Duration // upper bound on any entry's lifetime
	CleanWindow        time.Duration
	MaxEntriesInWindow int
	MaxEntrySize       int
	HardMaxCacheSizeMB int // ~ memory limit; 0 = unlimited

	Now func() time.Time // nil => time.Now
}

func New(cfg Config) (*Provider, error) {
	if cfg.LifeWindow <= 0 {
		return nil, errors.New("bigcache: LifeWindow must be positive")
	}
	conf := bc.DefaultConfig(cfg.LifeWindow)
	if cfg.CleanWindow > 0 {
		conf.CleanWindow = cfg.CleanWindow
	}
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	conf.Verbose = false
	c, err := bc.New(context.Background(), conf)
	if err != nil {
		return nil, err
	}
	p := &Provider{c: c, now: cfg.Now}
	if p.now == nil {
		p.now = time.Now
	}
	return p, nil
}

func (p *Provider) Name() string { return "bigcache" }

// CanEval is false: there is no script engine, so locks cannot be released.
func (p *Provider) CanEval() bool { return false }

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	return p.get(key)
}

func (p *Provider) get(key string) ([]byte, bool, error) {
	raw, err := p.c.Get(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	v, live := p.unwrap(raw)
	if !live {
		_ = p.c.Delete(key)
		return nil, false, nil
	}
	return v, true, nil
}

func (p *Provider) MGet(_ context.Context, keys []string) ([]pr.Result, error) {
	out := make([]pr.Result, len(keys))
	for i, k := range keys {
		v, ok, err := p.get(k)
		if err != nil {
			return nil, err
		}
		out[i] = pr.Result{Value: v, Found: ok}
	}
	return out, nil
}

func (p *Provider) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.set(key, value, ttl)
}

func (p *Provider) set(key string, value []byte, ttl time.Duration) error {
	return p.c.Set(key, p.wrap(value, ttl))
}

func (p *Provider) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok, err := p.get(key)
	if err != nil || ok {
		return false, err
	}
	if err := p.set(key, value, ttl); err != nil {
		return false, err
	}
	return true, nil
}

// MSet writes each item in turn; a failure leaves earlier items written.
func (p *Provider) MSet(_ context.Context, items []pr.Item) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, it := range items {
		if err := p.set(it.Key, it.Value, 0); err != nil {
			return err
		}
	}
	return nil
}

func (p *Provider) MSetNX(context.Context, []pr.Item, time.Duration) (bool, error) {
	return false, pr.ErrUnsupported
}

// PExpire rewrites the entry with a new deadline.
func (p *Provider) PExpire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok, err := p.get(key)
	if err != nil || !ok {
		return false, err
	}
	if ttl <= 0 {
		return true, p.del(key)
	}
	if err := p.set(key, v, ttl); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Provider) Del(_ context.Context, keys ...string) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var n int64
	for _, k := range keys {
		_, ok, err := p.get(k)
		if err != nil {
			return n, err
		}
		if !ok {
			continue
		}
		if err := p.del(k); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (p *Provider) del(key string) error {
	if err := p.c.Delete(key); err != nil && !errors.Is(err, bc.ErrEntryNotFound) {
		return err
	}
	return nil
}

func (p *Provider) Exists(_ context.Context, keys ...string) (int64, error) {
	var n int64
	for _, k := range keys {
		_, ok, err := p.get(k)
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

// Keys walks every shard. Entries written during the walk may be missed.
func (p *Provider) Keys(_ context.Context, pattern string) ([]string, error) {
	var out []string
	it := p.c.Iterator()
	for it.SetNext() {
		e, err := it.Value()
		if err != nil {
			// entry evicted under the iterator
			continue
		}
		if _, live := p.unwrap(e.Value()); !live {
			continue
		}
		if pr.Match(pattern, e.Key()) {
			out = append(out, e.Key())
		}
	}
	return out, nil
}

func (p *Provider) FlushDB(context.Context) error {
	return p.c.Reset()
}

func (p *Provider) Eval(context.Context, *pr.Script, []string, []string) (int64, error) {
	return 0, pr.ErrUnsupported
}

func (p *Provider) Close(_ context.Context) error {
	return p.c.Close()
}

func (p *Provider) wrap(value []byte, ttl time.Duration) []byte {
	out := make([]byte, hdrLen+len(value))
	if ttl > 0 {
		binary.BigEndian.PutUint64(out, uint64(p.now().Add(ttl).UnixNano()))
	}
	copy(out[hdrLen:], value)
	return out
}

// unwrap returns a copy of the value; bigcache reuses its buffers.
func (p *Provider) unwrap(raw []byte) ([]byte, bool) {
	if len(raw) < hdrLen {
		return nil, false
	}
	if dl := int64(binary.BigEndian.Uint64(raw)); dl != 0 && p.now().UnixNano() >= dl {
		return nil, false
	}
	v := make([]byte, len(raw)-hdrLen)
	copy(v, raw[hdrLen:])
	return v, true
}
