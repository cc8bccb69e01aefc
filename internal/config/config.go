// Copyright 2025 James Ross

// Package config loads doop's runtime configuration from YAML with
// environment-variable overrides, following the teacher's viper +
// mapstructure shape (internal/config/config.go in
// flyingrobots/go-redis-work-queue): a defaultConfig, a Load that layers
// viper defaults under an optional file and env vars, and a Validate that
// rejects out-of-range values before the caller wires anything up.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Scheduler carries scheduler defaults, mirroring spec.md §3's documented
// per-attribute defaults. scheduler.NewItem and scheduler.NewGroup hard-code
// the same values and do not read this struct; of these fields only
// DefaultAgingFactor is passed into pushes, by cmd/doopctl.
type Scheduler struct {
	DefaultAgingFactor    float64       `mapstructure:"default_aging_factor"`
	DefaultMinFracPrio    float64       `mapstructure:"default_minimum_fractional_priority"`
	DefaultMaxRetries     int           `mapstructure:"default_max_retries"`
	DefaultBackoffFactor  float64       `mapstructure:"default_backoff_factor"`
	DefaultBaseRetryDelay time.Duration `mapstructure:"default_base_retry_delay"`
	DefaultJitter         float64       `mapstructure:"default_jitter"`
	DefaultDeadlineWindow time.Duration `mapstructure:"default_deadline_window"`
	DefaultGroupTokens    float64       `mapstructure:"default_group_max_tokens"`
	DefaultGroupRefill    float64       `mapstructure:"default_group_refill_rate"`
	SnapshotPath          string        `mapstructure:"snapshot_path"`
}

// Chunking selects and parameterizes the blobstore.Chunker variant, per
// spec.md §4.3.
type Chunking struct {
	Strategy        string `mapstructure:"strategy"` // "fixed" or "fastcdc"
	FixedSize       int    `mapstructure:"fixed_size"`
	FastCDCMin      int    `mapstructure:"fastcdc_min"`
	FastCDCAvg      int    `mapstructure:"fastcdc_avg"`
	FastCDCMax      int    `mapstructure:"fastcdc_max"`
	FastCDCMaskBits int    `mapstructure:"fastcdc_mask_bits"`
}

// Compression names and parameterizes a blobstore.Compressor variant, per
// spec.md §4.4. Validate checks it, but nothing in this module reads it:
// cmd/doopctl does not wrap its chunk store in a compressor.
type Compression struct {
	Strategy     string `mapstructure:"strategy"` // identity|zstd|zlib|lzma|brotli
	ZstdLevel    int    `mapstructure:"zstd_level"`
	BrotliQuality int   `mapstructure:"brotli_quality"`
}

// KVBackend selects and parameterizes the kvstore.Store variant, per
// spec.md §4.5.
type KVBackend struct {
	Strategy     string `mapstructure:"strategy"` // memory|lru|redis|sqlite|hybrid
	LRUSize      int    `mapstructure:"lru_size"`
	RedisAddr    string `mapstructure:"redis_addr"`
	RedisPrefix  string `mapstructure:"redis_key_prefix"`
	SQLitePath   string `mapstructure:"sqlite_path"`
	HybridRemote string `mapstructure:"hybrid_remote"` // "redis" or "sqlite", used when Strategy == "hybrid"
}

// CircuitBreaker guards the Redis-backed kvstore.Store against a failing
// or overloaded server, grounded in the teacher's internal/breaker and its
// internal/worker wiring (worker.go's cb.Allow()/cb.Record(ok) pair).
type CircuitBreaker struct {
	Enabled          bool          `mapstructure:"enabled"`
	FailureThreshold float64       `mapstructure:"failure_threshold"`
	Window           time.Duration `mapstructure:"window"`
	CooldownPeriod   time.Duration `mapstructure:"cooldown_period"`
	MinSamples       int           `mapstructure:"min_samples"`
}

// Blobstore carries the config for the storage core's chunking,
// compression, KV backend, and Redis resilience.
type Blobstore struct {
	Chunking       Chunking        `mapstructure:"chunking"`
	Compression    Compression     `mapstructure:"compression"`
	KV             KVBackend       `mapstructure:"kv"`
	CircuitBreaker CircuitBreaker  `mapstructure:"circuit_breaker"`
}

type Observability struct {
	LogLevel string `mapstructure:"log_level"`
}

type Config struct {
	Scheduler     Scheduler     `mapstructure:"scheduler"`
	Blobstore     Blobstore     `mapstructure:"blobstore"`
	Observability Observability `mapstructure:"observability"`
}

func defaultConfig() *Config {
	return &Config{
		Scheduler: Scheduler{
			DefaultAgingFactor:    0.9,
			DefaultMinFracPrio:    0.1,
			DefaultMaxRetries:     3,
			DefaultBackoffFactor:  2.0,
			DefaultBaseRetryDelay: 100 * time.Millisecond,
			DefaultJitter:         0.1,
			DefaultDeadlineWindow: 52 * 7 * 24 * time.Hour,
			DefaultGroupTokens:    10,
			DefaultGroupRefill:    1.0,
			SnapshotPath:          "./doop-queue.json",
		},
		Blobstore: Blobstore{
			Chunking: Chunking{
				Strategy:        "fastcdc",
				FixedSize:       4096,
				FastCDCMin:      2048,
				FastCDCAvg:      8192,
				FastCDCMax:      65536,
				FastCDCMaskBits: 13,
			},
			Compression: Compression{
				Strategy:      "zstd",
				ZstdLevel:     3,
				BrotliQuality: 5,
			},
			KV: KVBackend{
				Strategy:    "memory",
				LRUSize:     10000,
				RedisAddr:   "localhost:6379",
				RedisPrefix: "doop:blob:",
				SQLitePath:  "./doop-chunks.db",
			},
			CircuitBreaker: CircuitBreaker{
				Enabled:          true,
				FailureThreshold: 0.5,
				Window:           1 * time.Minute,
				CooldownPeriod:   30 * time.Second,
				MinSamples:       20,
			},
		},
		Observability: Observability{
			LogLevel: "info",
		},
	}
}

// Load reads configuration from a YAML file (if present) layered under
// viper defaults, with environment-variable overrides (e.g.
// SCHEDULER_DEFAULT_AGING_FACTOR).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := defaultConfig()
	v.SetDefault("scheduler.default_aging_factor", def.Scheduler.DefaultAgingFactor)
	v.SetDefault("scheduler.default_minimum_fractional_priority", def.Scheduler.DefaultMinFracPrio)
	v.SetDefault("scheduler.default_max_retries", def.Scheduler.DefaultMaxRetries)
	v.SetDefault("scheduler.default_backoff_factor", def.Scheduler.DefaultBackoffFactor)
	v.SetDefault("scheduler.default_base_retry_delay", def.Scheduler.DefaultBaseRetryDelay)
	v.SetDefault("scheduler.default_jitter", def.Scheduler.DefaultJitter)
	v.SetDefault("scheduler.default_deadline_window", def.Scheduler.DefaultDeadlineWindow)
	v.SetDefault("scheduler.default_group_max_tokens", def.Scheduler.DefaultGroupTokens)
	v.SetDefault("scheduler.default_group_refill_rate", def.Scheduler.DefaultGroupRefill)
	v.SetDefault("scheduler.snapshot_path", def.Scheduler.SnapshotPath)

	v.SetDefault("blobstore.chunking.strategy", def.Blobstore.Chunking.Strategy)
	v.SetDefault("blobstore.chunking.fixed_size", def.Blobstore.Chunking.FixedSize)
	v.SetDefault("blobstore.chunking.fastcdc_min", def.Blobstore.Chunking.FastCDCMin)
	v.SetDefault("blobstore.chunking.fastcdc_avg", def.Blobstore.Chunking.FastCDCAvg)
	v.SetDefault("blobstore.chunking.fastcdc_max", def.Blobstore.Chunking.FastCDCMax)
	v.SetDefault("blobstore.chunking.fastcdc_mask_bits", def.Blobstore.Chunking.FastCDCMaskBits)

	v.SetDefault("blobstore.compression.strategy", def.Blobstore.Compression.Strategy)
	v.SetDefault("blobstore.compression.zstd_level", def.Blobstore.Compression.ZstdLevel)
	v.SetDefault("blobstore.compression.brotli_quality", def.Blobstore.Compression.BrotliQuality)

	v.SetDefault("blobstore.kv.strategy", def.Blobstore.KV.Strategy)
	v.SetDefault("blobstore.kv.lru_size", def.Blobstore.KV.LRUSize)
	v.SetDefault("blobstore.kv.redis_addr", def.Blobstore.KV.RedisAddr)
	v.SetDefault("blobstore.kv.redis_key_prefix", def.Blobstore.KV.RedisPrefix)
	v.SetDefault("blobstore.kv.sqlite_path", def.Blobstore.KV.SQLitePath)
	v.SetDefault("blobstore.kv.hybrid_remote", def.Blobstore.KV.HybridRemote)

	v.SetDefault("blobstore.circuit_breaker.enabled", def.Blobstore.CircuitBreaker.Enabled)
	v.SetDefault("blobstore.circuit_breaker.failure_threshold", def.Blobstore.CircuitBreaker.FailureThreshold)
	v.SetDefault("blobstore.circuit_breaker.window", def.Blobstore.CircuitBreaker.Window)
	v.SetDefault("blobstore.circuit_breaker.cooldown_period", def.Blobstore.CircuitBreaker.CooldownPeriod)
	v.SetDefault("blobstore.circuit_breaker.min_samples", def.Blobstore.CircuitBreaker.MinSamples)

	v.SetDefault("observability.log_level", def.Observability.LogLevel)

	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks config constraints and returns an error on invalid settings.
func Validate(cfg *Config) error {
	if cfg.Scheduler.DefaultAgingFactor <= 0 || cfg.Scheduler.DefaultAgingFactor > 1 {
		return fmt.Errorf("scheduler.default_aging_factor must be in (0, 1]")
	}
	if cfg.Scheduler.DefaultMinFracPrio < 0 || cfg.Scheduler.DefaultMinFracPrio > 1 {
		return fmt.Errorf("scheduler.default_minimum_fractional_priority must be in [0, 1]")
	}
	if cfg.Scheduler.DefaultJitter < 0 || cfg.Scheduler.DefaultJitter > 1 {
		return fmt.Errorf("scheduler.default_jitter must be in [0, 1]")
	}
	if cfg.Scheduler.DefaultBackoffFactor < 1 {
		return fmt.Errorf("scheduler.default_backoff_factor must be >= 1")
	}
	if cfg.Scheduler.DefaultGroupTokens <= 0 {
		return fmt.Errorf("scheduler.default_group_max_tokens must be > 0")
	}
	if cfg.Scheduler.DefaultGroupRefill < 0 {
		return fmt.Errorf("scheduler.default_group_refill_rate must be >= 0")
	}

	switch cfg.Blobstore.Chunking.Strategy {
	case "fixed", "fastcdc":
	default:
		return fmt.Errorf("blobstore.chunking.strategy must be 'fixed' or 'fastcdc'")
	}
	if cfg.Blobstore.Chunking.Strategy == "fastcdc" {
		c := cfg.Blobstore.Chunking
		if !(c.FastCDCMin > 0 && c.FastCDCMin <= c.FastCDCAvg && c.FastCDCAvg <= c.FastCDCMax) {
			return fmt.Errorf("blobstore.chunking fastcdc bounds must satisfy 0 < min <= avg <= max")
		}
	}
	switch cfg.Blobstore.Compression.Strategy {
	case "identity", "zstd", "zlib", "lzma", "brotli":
	default:
		return fmt.Errorf("blobstore.compression.strategy must be one of identity|zstd|zlib|lzma|brotli")
	}
	switch cfg.Blobstore.KV.Strategy {
	case "memory", "lru", "redis", "sqlite", "hybrid":
	default:
		return fmt.Errorf("blobstore.kv.strategy must be one of memory|lru|redis|sqlite|hybrid")
	}
	if cfg.Blobstore.KV.Strategy == "lru" && cfg.Blobstore.KV.LRUSize <= 0 {
		return fmt.Errorf("blobstore.kv.lru_size must be > 0")
	}
	return nil
}
