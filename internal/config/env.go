package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvConfig is the flat environment-variable-driven configuration for a host
// process embedding this core, resolving exactly the variables named in
// spec §6 plus the resilience/DR tunables named in §4.6-4.10. Unlike
// maddy's directive-tree Map, there is no declarative config language here:
// the host service owns its own configuration surface and only needs this
// core's knobs resolved from its environment.
type EnvConfig struct {
	DNSBackend string `env:"SENTINEL_DNS_BACKEND" default:"system"`

	GeoIPServiceURL string `env:"SENTINEL_GEOIP_URL"`
	GeoIPAPIKey     string `env:"SENTINEL_GEOIP_KEY"`

	OAuthClientID     string `env:"SENTINEL_OAUTH_CLIENT_ID"`
	OAuthClientSecret string `env:"SENTINEL_OAUTH_CLIENT_SECRET"`

	BackupEncryptionKey string `env:"SENTINEL_BACKUP_KEY" required:"true"`
	LogLevel            string `env:"SENTINEL_LOG_LEVEL" default:"info"`

	BreakerFailureThreshold uint32        `env:"SENTINEL_BREAKER_FAILURE_THRESHOLD" default:"5"`
	BreakerResetTimeout     time.Duration `env:"SENTINEL_BREAKER_RESET_TIMEOUT" default:"30s"`

	PoolMinConns int `env:"SENTINEL_POOL_MIN_CONNS" default:"1"`
	PoolMaxConns int `env:"SENTINEL_POOL_MAX_CONNS" default:"10"`

	QueryCacheMaxEntries int           `env:"SENTINEL_QUERY_CACHE_MAX_ENTRIES" default:"10000"`
	QueryCacheDefaultTTL time.Duration `env:"SENTINEL_QUERY_CACHE_TTL" default:"5m"`

	DRRetentionWindow time.Duration `env:"SENTINEL_DR_RETENTION_WINDOW" default:"168h"`
}

// MissingRequiredError reports a required environment variable that was not
// set and has no default.
type MissingRequiredError struct {
	Var string
}

func (e *MissingRequiredError) Error() string {
	return fmt.Sprintf("config: required environment variable %s is not set", e.Var)
}

// FromEnv resolves an EnvConfig through lookup (os.LookupEnv when nil). Each
// field's variable name, default and required flag are written out below and
// match the field's `env`/`default`/`required` tags; the tags themselves are
// not read at run time. This is a flat env-var counterpart of maddy's
// framework/config.Map directive processor.
func FromEnv(lookup func(string) (string, bool)) (EnvConfig, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	var cfg EnvConfig
	str := func(key, def string, required bool) (string, error) {
		if v, ok := lookup(key); ok && v != "" {
			return v, nil
		}
		if required {
			return "", &MissingRequiredError{Var: key}
		}
		return def, nil
	}

	var err error
	if cfg.DNSBackend, err = str("SENTINEL_DNS_BACKEND", "system", false); err != nil {
		return cfg, err
	}
	cfg.GeoIPServiceURL, _ = str("SENTINEL_GEOIP_URL", "", false)
	cfg.GeoIPAPIKey, _ = str("SENTINEL_GEOIP_KEY", "", false)
	cfg.OAuthClientID, _ = str("SENTINEL_OAUTH_CLIENT_ID", "", false)
	cfg.OAuthClientSecret, _ = str("SENTINEL_OAUTH_CLIENT_SECRET", "", false)
	if cfg.BackupEncryptionKey, err = str("SENTINEL_BACKUP_KEY", "", true); err != nil {
		return cfg, err
	}
	if cfg.LogLevel, err = str("SENTINEL_LOG_LEVEL", "info", false); err != nil {
		return cfg, err
	}

	u32, err := parseUint32("SENTINEL_BREAKER_FAILURE_THRESHOLD", 5, lookup)
	if err != nil {
		return cfg, err
	}
	cfg.BreakerFailureThreshold = u32

	if cfg.BreakerResetTimeout, err = parseDuration("SENTINEL_BREAKER_RESET_TIMEOUT", 30*time.Second, lookup); err != nil {
		return cfg, err
	}
	if cfg.PoolMinConns, err = parseInt("SENTINEL_POOL_MIN_CONNS", 1, lookup); err != nil {
		return cfg, err
	}
	if cfg.PoolMaxConns, err = parseInt("SENTINEL_POOL_MAX_CONNS", 10, lookup); err != nil {
		return cfg, err
	}
	if cfg.QueryCacheMaxEntries, err = parseInt("SENTINEL_QUERY_CACHE_MAX_ENTRIES", 10000, lookup); err != nil {
		return cfg, err
	}
	if cfg.QueryCacheDefaultTTL, err = parseDuration("SENTINEL_QUERY_CACHE_TTL", 5*time.Minute, lookup); err != nil {
		return cfg, err
	}
	if cfg.DRRetentionWindow, err = parseDuration("SENTINEL_DR_RETENTION_WINDOW", 168*time.Hour, lookup); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func parseInt(key string, def int, lookup func(string) (string, bool)) (int, error) {
	v, ok := lookup(key)
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

func parseUint32(key string, def uint32, lookup func(string) (string, bool)) (uint32, error) {
	v, ok := lookup(key)
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return uint32(n), nil
}

func parseDuration(key string, def time.Duration, lookup func(string) (string, bool)) (time.Duration, error) {
	v, ok := lookup(key)
	if !ok || v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}
