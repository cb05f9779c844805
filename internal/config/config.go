// Package config loads simplecache settings and builds the provider and
// codec they describe.
package config

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	vk "github.com/valkey-io/valkey-go"

	"github.com/unkn0wn-root/simplecache"
	"github.com/unkn0wn-root/simplecache/codec"
	pr "github.com/unkn0wn-root/simplecache/provider"
	"github.com/unkn0wn-root/simplecache/provider/bigcache"
	"github.com/unkn0wn-root/simplecache/provider/memory"
	"github.com/unkn0wn-root/simplecache/provider/redis"
	"github.com/unkn0wn-root/simplecache/provider/ristretto"
	"github.com/unkn0wn-root/simplecache/provider/valkey"
)

const EnvPrefix = "SIMPLECACHE"

type Config struct {
	Store   StoreConfig   `mapstructure:"store"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Lock    LockConfig    `mapstructure:"lock"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type StoreConfig struct {
	Backend     string          `mapstructure:"backend"` // "redis" | "valkey" | "memory" | "ristretto" | "bigcache"
	Addr        string          `mapstructure:"addr"`
	Password    string          `mapstructure:"password"`
	DB          int             `mapstructure:"db"`
	PoolSize    int             `mapstructure:"pool_size"`
	DialTimeout time.Duration   `mapstructure:"dial_timeout"`
	Ristretto   RistrettoConfig `mapstructure:"ristretto"`
	Bigcache    BigcacheConfig  `mapstructure:"bigcache"`
}

type BigcacheConfig struct {
	LifeWindow         time.Duration `mapstructure:"life_window"`
	HardMaxCacheSizeMB int           `mapstructure:"hard_max_cache_size_mb"`
}

type RistrettoConfig struct {
	NumCounters int64 `mapstructure:"num_counters"`
	MaxCost     int64 `mapstructure:"max_cost"`
	BufferItems int64 `mapstructure:"buffer_items"`
}

type CacheConfig struct {
	Prefix          string        `mapstructure:"prefix"`
	Codec           string        `mapstructure:"codec"`       // "json" | "cbor" | "msgpack" | "string"
	Compression     string        `mapstructure:"compression"` // "" | "zstd" | "s2"
	MaxValueBytes   int           `mapstructure:"max_value_bytes"`
	VolatilityTime  time.Duration `mapstructure:"volatility_time"`
	SelfHealCorrupt bool          `mapstructure:"self_heal_corrupt"`
}

type LockConfig struct {
	Attempts int           `mapstructure:"attempts"`
	Delay    time.Duration `mapstructure:"delay"`
	Lease    time.Duration `mapstructure:"lease"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" | "console"
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.backend", "redis")
	v.SetDefault("store.addr", "localhost:6379")
	v.SetDefault("store.password", "")
	v.SetDefault("store.db", 0)
	v.SetDefault("store.pool_size", 0)
	v.SetDefault("store.dial_timeout", 5*time.Second)
	v.SetDefault("store.ristretto.num_counters", int64(1e6))
	v.SetDefault("store.ristretto.max_cost", int64(64<<20))
	v.SetDefault("store.ristretto.buffer_items", int64(64))
	v.SetDefault("store.bigcache.life_window", 10*time.Minute)
	v.SetDefault("store.bigcache.hard_max_cache_size_mb", 0)

	v.SetDefault("cache.prefix", "")
	v.SetDefault("cache.codec", "json")
	v.SetDefault("cache.compression", "")
	v.SetDefault("cache.max_value_bytes", 0)
	v.SetDefault("cache.volatility_time", simplecache.VolatilityTime)
	v.SetDefault("cache.self_heal_corrupt", false)

	v.SetDefault("lock.attempts", simplecache.DefaultLockAttempts)
	v.SetDefault("lock.delay", simplecache.DefaultLockDelay)
	v.SetDefault("lock.lease", 30*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("metrics.enabled", false)
}

// Load reads the YAML file at path, if any, and overlays environment
// variables: SIMPLECACHE_STORE_ADDR -> store.addr.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// NewProvider connects the configured backend. The returned provider owns its
// client and closes it on Close.
func NewProvider(ctx context.Context, sc StoreConfig) (pr.Provider, error) {
	switch sc.Backend {
	case "", "redis":
		rdb := goredis.NewClient(&goredis.Options{
			Addr:        sc.Addr,
			Password:    sc.Password,
			DB:          sc.DB,
			PoolSize:    sc.PoolSize,
			DialTimeout: sc.DialTimeout,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("redis ping %s: %w", sc.Addr, err)
		}
		return redis.New(redis.Config{Client: rdb, CloseClient: true})
	case "valkey":
		client, err := vk.NewClient(vk.ClientOption{
			InitAddress: []string{sc.Addr},
			Password:    sc.Password,
			SelectDB:    sc.DB,
			Dialer:      net.Dialer{Timeout: sc.DialTimeout},
		})
		if err != nil {
			return nil, fmt.Errorf("create valkey client: %w", err)
		}
		return valkey.New(valkey.Config{Client: client, CloseClient: true})
	case "memory":
		return memory.New(), nil
	case "ristretto":
		return ristretto.New(ristretto.Config{
			NumCounters: sc.Ristretto.NumCounters,
			MaxCost:     sc.Ristretto.MaxCost,
			BufferItems: sc.Ristretto.BufferItems,
		})
	case "bigcache":
		return bigcache.New(bigcache.Config{
			LifeWindow:         sc.Bigcache.LifeWindow,
			HardMaxCacheSizeMB: sc.Bigcache.HardMaxCacheSizeMB,
		})
	}
	return nil, fmt.Errorf("unknown store backend %q", sc.Backend)
}

// NewCodec returns the configured value codec. "string" only applies when V
// is string; compression and size limits wrap whichever codec is chosen.
func NewCodec[V any](cc CacheConfig) (codec.Codec[V], error) {
	var (
		c   codec.Codec[V]
		err error
	)
	if cc.Codec == "string" {
		s, ok := any(codec.String{}).(codec.Codec[V])
		if !ok {
			return nil, fmt.Errorf("codec %q needs string values", cc.Codec)
		}
		c = s
	} else if c, err = codec.Named[V](cc.Codec); err != nil {
		return nil, fmt.Errorf("codec %q: %w", cc.Codec, err)
	}

	switch cc.Compression {
	case "":
	case "zstd":
		z, err := codec.Zstd(c, 0, uint64(max(cc.MaxValueBytes, 0)))
		if err != nil {
			return nil, err
		}
		c = z
	case "s2":
		c = codec.S2(c)
	default:
		return nil, fmt.Errorf("unknown compression %q", cc.Compression)
	}

	if cc.MaxValueBytes > 0 {
		c = codec.Limit[V]{Inner: c, MaxEncode: cc.MaxValueBytes, MaxDecode: cc.MaxValueBytes}
	}
	return c, nil
}

// CacheOptions maps the cache and lock sections onto simplecache.Options.
func CacheOptions[V any](cfg *Config, p pr.Provider, c codec.Codec[V]) simplecache.Options[V] {
	return simplecache.Options[V]{
		Provider:        p,
		Codec:           c,
		Prefix:          cfg.Cache.Prefix,
		VolatilityTime:  cfg.Cache.VolatilityTime,
		LockAttempts:    cfg.Lock.Attempts,
		LockDelay:       cfg.Lock.Delay,
		SelfHealCorrupt: cfg.Cache.SelfHealCorrupt,
	}
}
