package config

import (
	"testing"
	"time"
)

func lookupFromMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestFromEnv_AppliesDefaults(t *testing.T) {
	cfg, err := FromEnv(lookupFromMap(map[string]string{
		"SENTINEL_BACKUP_KEY": "secret",
	}))
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.DNSBackend != "system" {
		t.Fatalf("expected default dns backend, got %q", cfg.DNSBackend)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("expected default log level, got %q", cfg.LogLevel)
	}
	if cfg.BreakerResetTimeout != 30*time.Second {
		t.Fatalf("expected default breaker reset timeout, got %s", cfg.BreakerResetTimeout)
	}
	if cfg.PoolMaxConns != 10 {
		t.Fatalf("expected default pool max conns, got %d", cfg.PoolMaxConns)
	}
}

func TestFromEnv_MissingRequiredErrors(t *testing.T) {
	_, err := FromEnv(lookupFromMap(map[string]string{}))
	if err == nil {
		t.Fatal("expected an error when SENTINEL_BACKUP_KEY is unset")
	}
	if _, ok := err.(*MissingRequiredError); !ok {
		t.Fatalf("expected *MissingRequiredError, got %T", err)
	}
}

func TestFromEnv_OverridesDefaults(t *testing.T) {
	cfg, err := FromEnv(lookupFromMap(map[string]string{
		"SENTINEL_BACKUP_KEY":        "secret",
		"SENTINEL_LOG_LEVEL":         "debug",
		"SENTINEL_POOL_MAX_CONNS":    "25",
		"SENTINEL_DR_RETENTION_WINDOW": "72h",
	}))
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected overridden log level, got %q", cfg.LogLevel)
	}
	if cfg.PoolMaxConns != 25 {
		t.Fatalf("expected overridden pool max conns, got %d", cfg.PoolMaxConns)
	}
	if cfg.DRRetentionWindow != 72*time.Hour {
		t.Fatalf("expected overridden retention window, got %s", cfg.DRRetentionWindow)
	}
}

func TestFromEnv_InvalidIntErrors(t *testing.T) {
	_, err := FromEnv(lookupFromMap(map[string]string{
		"SENTINEL_BACKUP_KEY":      "secret",
		"SENTINEL_POOL_MIN_CONNS": "not-a-number",
	}))
	if err == nil {
		t.Fatal("expected a parse error for an invalid int")
	}
}
