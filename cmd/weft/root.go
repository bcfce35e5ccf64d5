package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/weft"
	"github.com/aretw0/weft/internal/config"
	"github.com/aretw0/weft/internal/logging"
	"github.com/aretw0/weft/pkg/adapters/file"
	"github.com/aretw0/weft/pkg/adapters/memory"
	"github.com/aretw0/weft/pkg/adapters/redis"
	"github.com/aretw0/weft/pkg/persistence/middleware"
	"github.com/aretw0/weft/pkg/ports"
	"github.com/spf13/cobra"
)

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "weft",
		Short:         "weft runs dataflow workflows incrementally",
		Long:          `weft executes graphs of typed nodes, caching every node result by content fingerprint so unchanged work is never repeated.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags (available to all commands)
	cmd.PersistentFlags().String("config", config.DefaultPath, "Configuration file (YAML or JSON)")
	cmd.PersistentFlags().String("cache-dir", "", "Directory of the file cache tier (overrides cache.root)")
	cmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error (overrides log.level)")

	cmd.AddCommand(newRunCmd(), newValidateCmd(), newNodesCmd(), newCacheCmd(), newVersionCmd())
	return cmd
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration file and applies persistent flag overrides.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if cmd.Flags().Changed("cache-dir") {
		cfg.Cache.Root, _ = cmd.Flags().GetString("cache-dir")
		if cfg.Cache.Backend != config.BackendRedis {
			cfg.Cache.Backend = config.BackendFile
		}
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level, _ = cmd.Flags().GetString("log-level")
	}
	return cfg, cfg.Validate()
}

func newLogger(cmd *cobra.Command, cfg config.Config) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	return logging.NewWithWriter(cmd.ErrOrStderr(), level, format), nil
}

// newTier opens the durable cache tier selected by the configuration,
// sealing entries when an encryption key is configured.
func newTier(ctx context.Context, cfg config.Config) (ports.CacheTier, func() error, error) {
	tier, closer, err := openTier(ctx, cfg)
	if err != nil || cfg.Cache.EncryptionKey == "" {
		return tier, closer, err
	}
	key, err := middleware.ParseKey(cfg.Cache.EncryptionKey)
	if err != nil {
		_ = closer()
		return nil, nil, err
	}
	mw, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key})
	if err != nil {
		_ = closer()
		return nil, nil, err
	}
	return middleware.Chain(tier, mw), closer, nil
}

func openTier(ctx context.Context, cfg config.Config) (ports.CacheTier, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Cache.Backend {
	case config.BackendMemory:
		return memory.NewTier(), noop, nil
	case config.BackendRedis:
		ttl, err := cfg.Redis.TTLDuration()
		if err != nil {
			return nil, noop, err
		}
		tier := redis.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			redis.WithPrefix(cfg.Redis.Prefix),
			redis.WithTTL(ttl),
		)
		if err := tier.Ping(ctx); err != nil {
			_ = tier.Close()
			return nil, noop, fmt.Errorf("redis cache at %s is unreachable: %w", cfg.Redis.Addr, err)
		}
		return tier, tier.Close, nil
	default:
		return file.New(cfg.Cache.Root), noop, nil
	}
}

// newEngine builds the engine described by the configuration. The returned closer
// releases the cache tier.
func newEngine(cmd *cobra.Command, cfg config.Config, opts ...weft.Option) (*weft.Engine, func() error, error) {
	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return nil, nil, err
	}
	tier, closer, err := newTier(cmd.Context(), cfg)
	if err != nil {
		return nil, nil, err
	}

	base := []weft.Option{
		weft.WithLogger(logger),
		weft.WithCacheTier(tier),
		weft.WithCacheRoot(cfg.Cache.Root),
		weft.WithMemoryBudget(cfg.Cache.MemoryEntries, cfg.Cache.MemoryBytes),
		weft.WithConcurrency(cfg.Engine.Concurrency),
	}
	eng, err := weft.New(append(base, opts...)...)
	if err != nil {
		_ = closer()
		return nil, nil, fmt.Errorf("failed to init engine: %w", err)
	}
	return eng, closer, nil
}
