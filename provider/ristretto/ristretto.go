// Package ristretto adapts a ristretto cache to the simplecache provider
// contract. It is a degraded backend: there is no key enumeration, no atomic
// multi-key conditional write and no script engine, so Keys, MSetNX and Eval
// return provider.ErrUnsupported. Ristretto admission is probabilistic and may
// drop a write; such writes surface as provider.ErrRejected. MSet is the one
// multi-key write kept: a rejected item leaves the others written, and the
// joined error names the rejection.
package ristretto

import (
	"context"
	"errors"
	"sync"
	"time"

	rc "github.com/dgraph-io/ristretto"

	pr "github.com/unkn0wn-root/simplecache/provider"
)

type Provider struct {
	c *rc.Cache

	// mu serializes every write so SetNX stays check-then-set atomic within
	// this process.
	mu sync.Mutex
}

var _ pr.Provider = (*Provider)(nil)

type Config struct {
	NumCounters int64
	MaxCost     int64
	BufferItems int64
	Metrics     bool
	// Cost of each entry is its byte length.
}

func New(cfg Config) (*Provider, error) {
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 || cfg.BufferItems <= 0 {
		return nil, errors.New("ristretto: invalid config")
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	return &Provider{c: c}, nil
}

func (p *Provider) Name() string { return "ristretto" }

// CanEval is false: there is no script engine, so locks cannot be released.
func (p *Provider) CanEval() bool { return false }

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	return p.get(key)
}

func (p *Provider) get(key string) ([]byte, bool, error) {
	v, ok := p.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, _ := v.([]byte)
	if b == nil {
		// self-heal: drop unexpected entry shape
		p.c.Del(key)
		return nil, false, nil
	}
	return b, true, nil
}

func (p *Provider) MGet(_ context.Context, keys []string) ([]pr.Result, error) {
	out := make([]pr.Result, len(keys))
	for i, k := range keys {
		b, ok, _ := p.get(k)
		out[i] = pr.Result{Value: b, Found: ok}
	}
	return out, nil
}

func (p *Provider) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.set(key, value, ttl)
}

// set expects p.mu held. It waits for the write buffer so a following Get observes the value.
func (p *Provider) set(key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if !p.c.SetWithTTL(key, value, int64(len(value)), ttl) {
		return pr.ErrRejected
	}
	p.c.Wait()
	return nil
}

func (p *Provider) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.c.Get(key); ok {
		return false, nil
	}
	if err := p.set(key, value, ttl); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Provider) MSet(_ context.Context, items []pr.Item) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	for _, it := range items {
		if err := p.set(it.Key, it.Value, 0); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Provider) MSetNX(context.Context, []pr.Item, time.Duration) (bool, error) {
	return false, pr.ErrUnsupported
}

// PExpire rewrites the entry with a new TTL; ristretto has no in-place expiry update.
func (p *Provider) PExpire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok, _ := p.get(key)
	if !ok {
		return false, nil
	}
	if ttl <= 0 {
		p.c.Del(key)
		return true, nil
	}
	if err := p.set(key, b, ttl); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Provider) Del(_ context.Context, keys ...string) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := p.c.Get(k); ok {
			n++
		}
		p.c.Del(k)
	}
	return n, nil
}

func (p *Provider) Exists(_ context.Context, keys ...string) (int64, error) {
	var n int64
	for _, k := range keys {
		if _, ok := p.c.Get(k); ok {
			n++
		}
	}
	return n, nil
}

func (p *Provider) Keys(context.Context, string) ([]string, error) {
	return nil, pr.ErrUnsupported
}

func (p *Provider) FlushDB(context.Context) error {
	p.c.Clear()
	return nil
}

func (p *Provider) Eval(context.Context, *pr.Script, []string, []string) (int64, error) {
	return 0, pr.ErrUnsupported
}

func (p *Provider) Close(_ context.Context) error {
	p.c.Wait()
	p.c.Close()
	return nil
}

// Metrics exposes ristretto's counters; nil unless Config.Metrics was set.
func (p *Provider) Metrics() *rc.Metrics { return p.c.Metrics }
