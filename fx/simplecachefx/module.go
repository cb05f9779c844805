// Package simplecachefx provides an fx module that wires a store provider,
// hooks and a string cache from a config.Config.
package simplecachefx

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/unkn0wn-root/simplecache"
	promhooks "github.com/unkn0wn-root/simplecache/hooks/prometheus"
	"github.com/unkn0wn-root/simplecache/internal/config"
	zaplog "github.com/unkn0wn-root/simplecache/log/zap"
	pr "github.com/unkn0wn-root/simplecache/provider"
)

// Module provides simplecache.Cache[string, string] and the provider behind it.
// Requires a *config.Config and a *zap.Logger to be provided. A
// prometheus.Registerer is used when present and metrics are enabled.
var Module = fx.Module("simplecache",
	fx.Provide(
		newProvider,
		newHooks,
		newCache,
	),
)

func newProvider(lc fx.Lifecycle, cfg *config.Config) (pr.Provider, error) {
	p, err := config.NewProvider(context.Background(), cfg.Store)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return p.Close(ctx)
		},
	})
	return p, nil
}

// HooksParams holds dependencies for the hook sinks.
type HooksParams struct {
	fx.In

	Config     *config.Config
	Registerer prometheus.Registerer `optional:"true"`
}

func newHooks(p HooksParams) (simplecache.Hooks, error) {
	if !p.Config.Metrics.Enabled {
		return simplecache.NopHooks{}, nil
	}
	h, err := promhooks.New(p.Registerer)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// Params holds dependencies for creating the cache.
type Params struct {
	fx.In

	Config   *config.Config
	Logger   *zap.Logger
	Provider pr.Provider
	Hooks    simplecache.Hooks
}

// Result holds the provided cache.
type Result struct {
	fx.Out

	Cache simplecache.Cache[string, string]
}

// newCache does not close the provider; newProvider's stop hook owns it.
func newCache(p Params) (Result, error) {
	c, err := config.NewCodec[string](p.Config.Cache)
	if err != nil {
		return Result{}, err
	}
	opts := config.CacheOptions(p.Config, p.Provider, c)
	opts.Logger = zaplog.Logger{L: p.Logger.Named("simplecache")}
	opts.Hooks = p.Hooks
	cache, err := simplecache.New[string, string](opts)
	if err != nil {
		return Result{}, err
	}
	return Result{Cache: cache}, nil
}
