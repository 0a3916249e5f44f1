// Package config resolves runtime settings from a .env file and STEPFLOW_* variables.
// Command-line flags are applied on top by the CLI.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment variable names.
const (
	EnvCatalog         = "STEPFLOW_CATALOG"
	EnvAddr            = "STEPFLOW_ADDR"
	EnvLogLevel        = "STEPFLOW_LOG_LEVEL"
	EnvLogFormat       = "STEPFLOW_LOG_FORMAT"
	EnvRedisAddr       = "STEPFLOW_REDIS_ADDR"
	EnvRedisPrefix     = "STEPFLOW_REDIS_PREFIX"
	EnvLockTTL         = "STEPFLOW_LOCK_TTL"
	EnvIsolateProfiles = "STEPFLOW_ISOLATE_PROFILES"
	EnvMetrics         = "STEPFLOW_METRICS"
	EnvFeatureFlags    = "STEPFLOW_FEATURE_FLAGS"
)

// Config holds the resolved settings.
type Config struct {
	Catalog         string
	Addr            string
	LogLevel        string
	LogFormat       string
	RedisAddr       string
	RedisPrefix     string
	LockTTL         time.Duration
	IsolateProfiles bool
	Metrics         bool
	FeatureFlags    map[string]bool
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Catalog:         ".",
		Addr:            ":8080",
		LogLevel:        "info",
		LogFormat:       "text",
		RedisPrefix:     "stepflow:",
		LockTTL:         30 * time.Second,
		IsolateProfiles: true,
		Metrics:         true,
	}
}

// Load reads the given .env files (default ".env"), then the environment.
// Missing .env files are ignored; variables already set in the environment win.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv resolves the settings through lookup, starting from Default.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str(EnvCatalog, &cfg.Catalog)
	str(EnvAddr, &cfg.Addr)
	str(EnvLogLevel, &cfg.LogLevel)
	str(EnvLogFormat, &cfg.LogFormat)
	str(EnvRedisAddr, &cfg.RedisAddr)
	str(EnvRedisPrefix, &cfg.RedisPrefix)

	var errs []error
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	boolean(EnvIsolateProfiles, &cfg.IsolateProfiles)
	boolean(EnvMetrics, &cfg.Metrics)

	if v, ok := lookup(EnvLockTTL); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvLockTTL, err))
		} else {
			cfg.LockTTL = d
		}
	}

	if v, ok := lookup(EnvFeatureFlags); ok && v != "" {
		cfg.FeatureFlags = ParseFlags(v)
	}

	return cfg, errors.Join(errs...)
}

// ParseFlags parses "a,b,!c" into {a: true, b: true, c: false}.
func ParseFlags(s string) map[string]bool {
	flags := make(map[string]bool)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if name, off := strings.CutPrefix(part, "!"); off {
			flags[name] = false
			continue
		}
		flags[part] = true
	}
	return flags
}
