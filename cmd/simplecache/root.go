package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/simplecache"
	"github.com/unkn0wn-root/simplecache/internal/config"
	zaplog "github.com/unkn0wn-root/simplecache/log/zap"
)

// app carries what every subcommand needs once the root pre-run has loaded
// the configuration.
type app struct {
	// Global flags.
	configPath string
	backend    string
	addr       string
	prefix     string
	verbose    bool

	cfg   *config.Config
	log   *zap.Logger
	cache simplecache.Cache[string, string]
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "simplecache",
		Short: "Inspect and maintain simplecache entries on a Redis-compatible store",
		Long: `simplecache talks to the same store and key layout as the library
(prefix:namespace:key) so operators can read, write and clear entries and
take locks by hand.

Examples:
  # Read a value
  simplecache get User u1

  # Write a value with a TTL
  simplecache put User u1 '{"id":"u1"}' --ttl 10m

  # Drop a namespace
  simplecache clear User

  # Hold a lock for 30 seconds
  simplecache lock job-42 --lease 30s --hold 30s`,
		SilenceUsage:      true,
		PersistentPreRunE: a.open,
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.close(cmd.Context())
		},
	}

	f := root.PersistentFlags()
	f.StringVarP(&a.configPath, "config", "c", "", "path to a YAML config file")
	f.StringVar(&a.backend, "backend", "", "store backend: redis, valkey, memory, ristretto or bigcache")
	f.StringVar(&a.addr, "addr", "", "store address (host:port)")
	f.StringVar(&a.prefix, "prefix", "", "application key prefix")
	f.BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newGetCmd(a),
		newPutCmd(a),
		newDelCmd(a),
		newExistsCmd(a),
		newClearCmd(a),
		newFlushCmd(a),
		newLockCmd(a),
	)
	return root
}

func (a *app) open(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.backend != "" {
		cfg.Store.Backend = a.backend
	}
	if a.addr != "" {
		cfg.Store.Addr = a.addr
	}
	if cmd.Flags().Changed("prefix") {
		cfg.Cache.Prefix = a.prefix
	}
	if cfg.Cache.Codec == "" || cfg.Cache.Codec == "json" {
		cfg.Cache.Codec = "string" // CLI values are raw text
	}
	a.cfg = cfg

	if a.log, err = newLogger(cfg.Log, a.verbose); err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}

	p, err := config.NewProvider(cmd.Context(), cfg.Store)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	c, err := config.NewCodec[string](cfg.Cache)
	if err != nil {
		_ = p.Close(cmd.Context())
		return err
	}
	opts := config.CacheOptions(cfg, p, c)
	opts.Logger = zaplog.Logger{L: a.log.Named("simplecache")}
	if a.cache, err = simplecache.New[string, string](opts); err != nil {
		_ = p.Close(cmd.Context())
		return fmt.Errorf("creating cache: %w", err)
	}
	return nil
}

func (a *app) close(ctx context.Context) error {
	if a.log != nil {
		defer func() { _ = a.log.Sync() }()
	}
	if a.cache == nil {
		return nil
	}
	return a.cache.Close(ctx)
}

func newLogger(lc config.LogConfig, verbose bool) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(lc.Level)
	if err != nil {
		return nil, err
	}
	if verbose {
		level = zapcore.DebugLevel
	}
	zc := zap.NewDevelopmentConfig()
	if lc.Format == "json" {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	return zc.Build()
}
