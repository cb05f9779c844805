// Package valkey is the valkey-go driver for simplecache.
package valkey

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/valkey-io/valkey-go"

	pr "github.com/unkn0wn-root/simplecache/provider"
)

var ErrNilClient = errors.New("valkey provider: nil client")

type Provider struct {
	client      valkey.Client
	closeClient bool
	scripts     sync.Map // *pr.Script -> *valkey.Lua
	closeOnce   sync.Once
}

var _ pr.Provider = (*Provider)(nil)

type Config struct {
	Client      valkey.Client
	CloseClient bool // set true only if this provider exclusively owns the client
}

func New(cfg Config) (*Provider, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	return &Provider{client: cfg.Client, closeClient: cfg.CloseClient}, nil
}

// Dial creates an owned client for addr and pings it.
func Dial(ctx context.Context, addr string) (*Provider, error) {
	if addr == "" {
		addr = "localhost:6379"
	}
	client, err := valkey.NewClient(valkey.ClientOption{InitAddress: []string{addr}})
	if err != nil {
		return nil, fmt.Errorf("create valkey client: %w", err)
	}
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("valkey ping failed: %w", err)
	}
	return &Provider{client: client, closeClient: true}, nil
}

func (p *Provider) Name() string { return "valkey" }

func (p *Provider) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := p.client.Do(ctx, p.client.B().Get().Key(key).Build()).AsBytes()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

func (p *Provider) MGet(ctx context.Context, keys []string) ([]pr.Result, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	msgs, err := p.client.Do(ctx, p.client.B().Mget().Key(keys...).Build()).ToArray()
	if err != nil {
		return nil, err
	}
	if len(msgs) != len(keys) {
		return nil, fmt.Errorf("valkey mget: %d replies for %d keys", len(msgs), len(keys))
	}
	out := make([]pr.Result, len(keys))
	for i, m := range msgs {
		if m.IsNil() {
			continue
		}
		b, err := m.AsBytes()
		if err != nil {
			return nil, fmt.Errorf("valkey mget %q: %w", keys[i], err)
		}
		out[i] = pr.Result{Value: b, Found: true}
	}
	return out, nil
}

func (p *Provider) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var cmd valkey.Completed
	if ttl > 0 {
		cmd = p.client.B().Set().Key(key).Value(valkey.BinaryString(value)).PxMilliseconds(ms(ttl)).Build()
	} else {
		cmd = p.client.B().Set().Key(key).Value(valkey.BinaryString(value)).Build()
	}
	return p.client.Do(ctx, cmd).Error()
}

// SetNX issues SET key value NX [PX ttl]; a nil reply means the key existed.
func (p *Provider) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	var cmd valkey.Completed
	if ttl > 0 {
		cmd = p.client.B().Set().Key(key).Value(valkey.BinaryString(value)).Nx().PxMilliseconds(ms(ttl)).Build()
	} else {
		cmd = p.client.B().Set().Key(key).Value(valkey.BinaryString(value)).Nx().Build()
	}
	err := p.client.Do(ctx, cmd).Error()
	if valkey.IsValkeyNil(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (p *Provider) MSet(ctx context.Context, items []pr.Item) error {
	if len(items) == 0 {
		return nil
	}
	kv := p.client.B().Mset().KeyValue()
	for _, it := range items {
		kv = kv.KeyValue(it.Key, valkey.BinaryString(it.Value))
	}
	return p.client.Do(ctx, kv.Build()).Error()
}

func (p *Provider) MSetNX(ctx context.Context, items []pr.Item, ttl time.Duration) (bool, error) {
	if len(items) == 0 {
		return false, nil
	}
	if ttl <= 0 {
		kv := p.client.B().Msetnx().KeyValue()
		for _, it := range items {
			kv = kv.KeyValue(it.Key, valkey.BinaryString(it.Value))
		}
		n, err := p.client.Do(ctx, kv.Build()).AsInt64()
		return n == 1, err
	}
	keys := make([]string, len(items))
	args := make([]string, 0, len(items)+1)
	args = append(args, strconv.FormatInt(ms(ttl), 10))
	for i, it := range items {
		keys[i] = it.Key
		args = append(args, string(it.Value))
	}
	n, err := p.Eval(ctx, pr.MSetNXWithTTL, keys, args)
	return n == 1, err
}

func (p *Provider) PExpire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	var millis int64
	if ttl > 0 {
		millis = ms(ttl)
	}
	n, err := p.client.Do(ctx, p.client.B().Pexpire().Key(key).Milliseconds(millis).Build()).AsInt64()
	return n == 1, err
}

func (p *Provider) Del(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	return p.client.Do(ctx, p.client.B().Del().Key(keys...).Build()).AsInt64()
}

func (p *Provider) Exists(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	return p.client.Do(ctx, p.client.B().Exists().Key(keys...).Build()).AsInt64()
}

func (p *Provider) Keys(ctx context.Context, pattern string) ([]string, error) {
	return p.client.Do(ctx, p.client.B().Keys().Pattern(pattern).Build()).AsStrSlice()
}

func (p *Provider) FlushDB(ctx context.Context) error {
	return p.client.Do(ctx, p.client.B().Flushdb().Build()).Error()
}

// Eval runs the script with EVALSHA, falling back to EVAL on NOSCRIPT.
func (p *Provider) Eval(ctx context.Context, s *pr.Script, keys []string, args []string) (int64, error) {
	return p.lua(s).Exec(ctx, p.client, keys, args).AsInt64()
}

func (p *Provider) lua(s *pr.Script) *valkey.Lua {
	if v, ok := p.scripts.Load(s); ok {
		return v.(*valkey.Lua)
	}
	v, _ := p.scripts.LoadOrStore(s, valkey.NewLuaScript(s.Lua()))
	return v.(*valkey.Lua)
}

// ms rounds a positive ttl to whole milliseconds, never below one.
func ms(ttl time.Duration) int64 {
	if n := ttl.Milliseconds(); n > 0 {
		return n
	}
	return 1
}

func (p *Provider) Close(context.Context) error {
	if p.closeClient {
		p.closeOnce.Do(p.client.Close)
	}
	return nil
}
