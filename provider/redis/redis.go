// Package redis is the go-redis driver for simplecache.
//
// Works with any goredis.UniversalClient (single node, sentinel, cluster).
// In cluster mode multi-key commands and scripts must hash to one slot; use
// hash tags in the cache prefix or namespace when that matters.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	pr "github.com/unkn0wn-root/simplecache/provider"
)

var ErrNilClient = errors.New("redis provider: nil client")

type Redis struct {
	rdb         goredis.UniversalClient
	closeClient bool
	scripts     sync.Map // *pr.Script -> *goredis.Script
}

var _ pr.Provider = (*Redis)(nil)

type Config struct {
	Client      goredis.UniversalClient
	CloseClient bool // set true only if this provider exclusively owns the client
}

func New(cfg Config) (*Redis, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	return &Redis{rdb: cfg.Client, closeClient: cfg.CloseClient}, nil
}

func (p *Redis) Name() string { return "redis" }

// Client exposes the underlying client for commands outside the provider contract.
func (p *Redis) Client() goredis.UniversalClient { return p.rdb }

func (p *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := p.rdb.Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return nil, false, nil // miss
	}
	if err != nil {
		return nil, false, err // transport/server error
	}
	return b, true, nil
}

func (p *Redis) MGet(ctx context.Context, keys []string) ([]pr.Result, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	vals, err := p.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]pr.Result, len(keys))
	for i, v := range vals {
		switch vv := v.(type) {
		case nil:
		case string:
			out[i] = pr.Result{Value: []byte(vv), Found: true}
		case []byte:
			out[i] = pr.Result{Value: vv, Found: true}
		default:
			return nil, fmt.Errorf("redis mget: unexpected reply %T at %q", v, keys[i])
		}
	}
	return out, nil
}

func (p *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return p.rdb.Set(ctx, key, value, noExpiry(ttl)).Err()
}

// SetNX maps to SET key value NX PX ttl, a single atomic command.
func (p *Redis) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return p.rdb.SetNX(ctx, key, value, noExpiry(ttl)).Result()
}

func (p *Redis) MSet(ctx context.Context, items []pr.Item) error {
	if len(items) == 0 {
		return nil
	}
	return p.rdb.MSet(ctx, pairs(items)...).Err()
}

func (p *Redis) MSetNX(ctx context.Context, items []pr.Item, ttl time.Duration) (bool, error) {
	if len(items) == 0 {
		return false, nil
	}
	if ttl <= 0 {
		return p.rdb.MSetNX(ctx, pairs(items)...).Result()
	}
	keys := make([]string, len(items))
	args := make([]string, 0, len(items)+1)
	args = append(args, strconv.FormatInt(max(ttl.Milliseconds(), 1), 10))
	for i, it := range items {
		keys[i] = it.Key
		args = append(args, string(it.Value))
	}
	n, err := p.Eval(ctx, pr.MSetNXWithTTL, keys, args)
	return n == 1, err
}

func (p *Redis) PExpire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return p.rdb.PExpire(ctx, key, ttl).Result()
}

func (p *Redis) Del(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	return p.rdb.Del(ctx, keys...).Result()
}

func (p *Redis) Exists(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	return p.rdb.Exists(ctx, keys...).Result()
}

// Keys runs KEYS, which is O(n) over the whole database and blocks the server
// while it runs.
func (p *Redis) Keys(ctx context.Context, pattern string) ([]string, error) {
	return p.rdb.Keys(ctx, pattern).Result()
}

func (p *Redis) FlushDB(ctx context.Context) error {
	return p.rdb.FlushDB(ctx).Err()
}

// Eval runs the script with EVALSHA, falling back to EVAL on NOSCRIPT.
func (p *Redis) Eval(ctx context.Context, s *pr.Script, keys []string, args []string) (int64, error) {
	argv := make([]any, len(args))
	for i, a := range args {
		argv[i] = a
	}
	return p.script(s).Run(ctx, p.rdb, keys, argv...).Int64()
}

func (p *Redis) script(s *pr.Script) *goredis.Script {
	if v, ok := p.scripts.Load(s); ok {
		return v.(*goredis.Script)
	}
	v, _ := p.scripts.LoadOrStore(s, goredis.NewScript(s.Lua()))
	return v.(*goredis.Script)
}

// Close releases the underlying redis client only when this provider owns it.
// Safe to call multiple times; repeated calls become no-ops.
func (p *Redis) Close(context.Context) error {
	if p.closeClient {
		if err := p.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}

func noExpiry(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0 // go-redis: 0 => no expiry
	}
	return ttl
}

func pairs(items []pr.Item) []any {
	out := make([]any, 0, 2*len(items))
	for _, it := range items {
		out = append(out, it.Key, it.Value)
	}
	return out
}
