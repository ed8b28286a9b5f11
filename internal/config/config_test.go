package config

import (
	"testing"
	"time"
)

func TestLoadSQLiteDoesNotRequireMySQLSettings(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("APP_PORT", "8081")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("SQLITE_PATH", "/tmp/gbus-test.db")
	t.Setenv("NOSHOW_PENALTY", "15")
	t.Setenv("SESSION_LOCK_TTL", "3s")

	cfg := Load()
	if cfg.DBDriver != "sqlite" {
		t.Fatalf("DBDriver = %q, want sqlite", cfg.DBDriver)
	}
	if cfg.SQLitePath != "/tmp/gbus-test.db" {
		t.Errorf("SQLitePath = %q", cfg.SQLitePath)
	}
	if cfg.NoShowPenalty != 15 {
		t.Errorf("NoShowPenalty = %d, want 15", cfg.NoShowPenalty)
	}
	if cfg.WarnPenalty != 10 {
		t.Errorf("WarnPenalty = %d, want default 10", cfg.WarnPenalty)
	}
	if cfg.QueueAlertBefore != 3 {
		t.Errorf("QueueAlertBefore = %d, want default 3", cfg.QueueAlertBefore)
	}
	if cfg.SessionLockTTL != 3*time.Second {
		t.Errorf("SessionLockTTL = %s, want 3s", cfg.SessionLockTTL)
	}
	if cfg.DBHost != "" {
		t.Errorf("DBHost should stay empty for sqlite, got %q", cfg.DBHost)
	}
}

func TestAMQPURLFallback(t *testing.T) {
	t.Setenv("RABBITMQ_URL", "")
	t.Setenv("AMQP_URL", "amqp://fallback")
	if got := amqpURL(); got != "amqp://fallback" {
		t.Fatalf("amqpURL() = %q", got)
	}
	t.Setenv("RABBITMQ_URL", "amqp://primary")
	if got := amqpURL(); got != "amqp://primary" {
		t.Fatalf("amqpURL() = %q", got)
	}
}

func TestRateLimitConfigNormalisation(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_EVERY", "2s")
	t.Setenv("RATE_LIMIT_TTL", "1s")

	cfg := LoadRateLimitConfig()
	if cfg.Capacity != 1 {
		t.Errorf("Capacity = %d, want clamp to 1", cfg.Capacity)
	}
	if cfg.RefillTokens != 1 || cfg.RefillInterval != 2*time.Second {
		t.Errorf("refill = %d/%s, want 1/2s", cfg.RefillTokens, cfg.RefillInterval)
	}
	if cfg.TTL != 10*time.Second {
		t.Errorf("TTL = %s, want 5x refill interval", cfg.TTL)
	}
}

func TestCacheConfigMethods(t *testing.T) {
	t.Setenv("CACHE_METHODS", "get, head ,")
	t.Setenv("CACHE_ENABLED", "off")

	cfg := LoadCacheConfig()
	if cfg.Enabled {
		t.Error("CACHE_ENABLED=off should disable the cache")
	}
	if !cfg.Methods["GET"] || !cfg.Methods["HEAD"] || len(cfg.Methods) != 2 {
		t.Errorf("Methods = %v", cfg.Methods)
	}
}

func TestEnvHelpersFallBackOnGarbage(t *testing.T) {
	t.Setenv("X_INT", "abc")
	t.Setenv("X_DUR", "soon")
	t.Setenv("X_BOOL", "maybe")
	if envInt("X_INT", 7) != 7 {
		t.Error("envInt should fall back")
	}
	if envDur("X_DUR", time.Minute) != time.Minute {
		t.Error("envDur should fall back")
	}
	if !envBool("X_BOOL", true) {
		t.Error("envBool should fall back")
	}
}
