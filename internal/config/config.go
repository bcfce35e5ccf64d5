// Package config loads the weft configuration file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aretw0/weft/internal/logging"
	"github.com/aretw0/weft/pkg/persistence/middleware"
	"gopkg.in/yaml.v3"
)

// Cache backends.
const (
	BackendFile   = "file"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// DefaultPath is where the CLI looks for a configuration file.
const DefaultPath = "weft.yaml"

// EnvEncryptionKey keeps the cache key out of configuration files.
const EnvEncryptionKey = "WEFT_CACHE_ENCRYPTION_KEY"

// Config is the complete configuration of a weft process.
type Config struct {
	Cache   CacheConfig   `yaml:"cache" json:"cache"`
	Redis   RedisConfig   `yaml:"redis" json:"redis"`
	Engine  EngineConfig  `yaml:"engine" json:"engine"`
	Log     LogConfig     `yaml:"log" json:"log"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
}

// CacheConfig selects the durable tier and bounds the in-process one.
type CacheConfig struct {
	Backend       string `yaml:"backend" json:"backend"`
	Root          string `yaml:"root" json:"root"`
	MemoryEntries int    `yaml:"memory_entries" json:"memory_entries"`
	MemoryBytes   int64  `yaml:"memory_bytes" json:"memory_bytes"`
	// EncryptionKey is a hex encoded AES-256 key sealing durable entries.
	// EnvEncryptionKey overrides it.
	EncryptionKey string `yaml:"encryption_key" json:"encryption_key"`
}

// RedisConfig configures the redis backend.
type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
	Prefix   string `yaml:"prefix" json:"prefix"`
	// TTL is a Go duration string; empty keeps entries until cleared.
	TTL string `yaml:"ttl" json:"ttl"`
}

// EngineConfig tunes the scheduler.
type EngineConfig struct {
	// Concurrency bounds parallel node invocations; 0 uses every CPU.
	Concurrency int `yaml:"concurrency" json:"concurrency"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

// Defaults returns the configuration used when no file is present.
func Defaults() Config {
	return Config{
		Cache: CacheConfig{
			Backend:       BackendFile,
			Root:          filepath.Join(".weft", "cache"),
			MemoryEntries: 256,
			MemoryBytes:   256 << 20,
		},
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "weft:cache:",
		},
		Log: LogConfig{
			Level:  "info",
			Format: string(logging.FormatText),
		},
	}
}

// Load reads a YAML or JSON file (chosen by extension) over the defaults.
// A missing file yields the defaults. EnvEncryptionKey is applied last.
func Load(path string) (Config, error) {
	cfg, err := load(path)
	if err != nil {
		return cfg, err
	}
	if key := os.Getenv(EnvEncryptionKey); key != "" {
		cfg.Cache.EncryptionKey = key
	}
	if err := cfg.Validate(); err != nil {
		if path == "" {
			return cfg, fmt.Errorf("invalid config: %w", err)
		}
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func load(path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	return cfg, nil
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	switch c.Cache.Backend {
	case BackendFile, BackendMemory, BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("cache.backend: unknown backend %q", c.Cache.Backend))
	}
	if c.Cache.Backend == BackendFile && c.Cache.Root == "" {
		errs = append(errs, errors.New("cache.root: required for the file backend"))
	}
	if c.Cache.MemoryEntries < 0 {
		errs = append(errs, errors.New("cache.memory_entries: must not be negative"))
	}
	if c.Cache.MemoryBytes < 0 {
		errs = append(errs, errors.New("cache.memory_bytes: must not be negative"))
	}
	if c.Cache.EncryptionKey != "" {
		if _, err := middleware.ParseKey(c.Cache.EncryptionKey); err != nil {
			errs = append(errs, fmt.Errorf("cache.encryption_key: %w", err))
		}
	}
	if _, err := c.Redis.TTLDuration(); err != nil {
		errs = append(errs, err)
	}
	if c.Engine.Concurrency < 0 {
		errs = append(errs, errors.New("engine.concurrency: must not be negative"))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if _, err := logging.ParseFormat(c.Log.Format); err != nil {
		errs = append(errs, fmt.Errorf("log.format: %w", err))
	}
	return errors.Join(errs...)
}

// TTLDuration parses TTL. Empty means no expiry.
func (r RedisConfig) TTLDuration() (time.Duration, error) {
	if r.TTL == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(r.TTL)
	if err != nil {
		return 0, fmt.Errorf("redis.ttl: %w", err)
	}
	if d < 0 {
		return 0, errors.New("redis.ttl: must not be negative")
	}
	return d, nil
}
