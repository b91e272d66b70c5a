// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authsync Contributors

// Package config loads daemon configuration. Values are layered:
// built-in defaults, then an optional YAML file, then command line
// flags, with later layers winning.
package config

import (
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Default values for daemon configuration.
const (
	DefaultMetricsAddr = "127.0.0.1:9464"
	DefaultCacheKey    = "authsync:session"
	DefaultLogFormat   = "json"
	DefaultLogLevel    = "info"
	DefaultSessionTTL  = time.Hour
)

// Config is the daemon configuration.
type Config struct {
	// DatabaseURL is the PostgreSQL DSN for the profile store. Empty
	// selects the in-memory store.
	DatabaseURL string `koanf:"database_url"`

	// RedisAddr is the session cache address. Empty selects the
	// in-memory fallback directly.
	RedisAddr string `koanf:"redis_addr"`

	// CacheKey is the Redis key holding the persisted session blob.
	CacheKey string `koanf:"cache_key"`

	// MetricsAddr is the metrics/health HTTP listen address. Empty
	// disables the observability server.
	MetricsAddr string `koanf:"metrics_addr"`

	// SigningKey signs local access tokens. A random per-process key is
	// generated when empty.
	SigningKey string `koanf:"signing_key"`

	// SessionTTL is the access token lifetime.
	SessionTTL time.Duration `koanf:"session_ttl"`

	LogFormat string `koanf:"log_format"`
	LogLevel  string `koanf:"log_level"`
}

// defaults is the base configuration layer.
func defaults() map[string]any {
	return map[string]any{
		"database_url": "",
		"redis_addr":   "",
		"cache_key":    DefaultCacheKey,
		"metrics_addr": DefaultMetricsAddr,
		"signing_key":  "",
		"session_ttl":  DefaultSessionTTL,
		"log_format":   DefaultLogFormat,
		"log_level":    DefaultLogLevel,
	}
}

// Load builds the configuration from defaults, the optional YAML file at
// path, and the given flag set. Flags use dashes where keys use
// underscores (--redis-addr sets redis_addr). A missing file is an error
// only when a path was given; flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, oops.Code("CONFIG_DEFAULTS_FAILED").Wrap(err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_FILE_FAILED").
				With("path", path).
				Wrap(err)
		}
	}

	if flags != nil {
		p := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key := flagKey(f.Name)
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(p, nil); err != nil {
			return nil, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_UNMARSHAL_FAILED").Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// flagKey maps a flag name to its config key.
func flagKey(name string) string {
	out := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		if name[i] == '-' {
			out[i] = '_'
		} else {
			out[i] = name[i]
		}
	}
	return string(out)
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.LogFormat {
	case "json", "text":
	default:
		return oops.Code("CONFIG_INVALID").
			With("log_format", c.LogFormat).
			Errorf("log_format must be json or text")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return oops.Code("CONFIG_INVALID").
			With("log_level", c.LogLevel).
			Errorf("log_level must be debug, info, warn, or error")
	}

	if c.SessionTTL <= 0 {
		return oops.Code("CONFIG_INVALID").
			With("session_ttl", c.SessionTTL.String()).
			Errorf("session_ttl must be positive")
	}

	if c.CacheKey == "" {
		return oops.Code("CONFIG_INVALID").Errorf("cache_key must not be empty")
	}
	return nil
}

// RegisterFlags declares the daemon configuration flags on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("database-url", "", "PostgreSQL DSN for the profile store (empty = in-memory)")
	fs.String("redis-addr", "", "Redis address for the session cache (empty = in-memory)")
	fs.String("cache-key", DefaultCacheKey, "Redis key for the persisted session blob")
	fs.String("metrics-addr", DefaultMetricsAddr, "metrics/health HTTP address (empty = disabled)")
	fs.String("signing-key", "", "access token signing key (empty = random per process)")
	fs.Duration("session-ttl", DefaultSessionTTL, "access token lifetime")
	fs.String("log-format", DefaultLogFormat, "log format (json or text)")
	fs.String("log-level", DefaultLogLevel, "log level (debug, info, warn, error)")
}
