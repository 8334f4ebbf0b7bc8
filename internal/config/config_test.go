package config

import (
	"testing"
	"time"
)

func TestEnvStrFallback(t *testing.T) {
	// TEST_STR_MISSING is not set.
	if v := envStr("TEST_STR_MISSING", "fallback"); v != "fallback" {
		t.Fatalf("expected fallback, got %q", v)
	}
}

func TestEnvIntValid(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	if v := envInt("TEST_INT", 0); v != 42 {
		t.Fatalf("expected 42, got %d", v)
	}
}

func TestEnvIntInvalidUsesDefault(t *testing.T) {
	t.Setenv("TEST_INT_BAD", "abc")
	if v := envInt("TEST_INT_BAD", 7); v != 7 {
		t.Fatalf("expected default 7, got %d", v)
	}
}

func TestEnvBool(t *testing.T) {
	t.Setenv("TEST_BOOL", "false")
	if envBool("TEST_BOOL", true) {
		t.Fatal("expected false")
	}
	if !envBool("TEST_BOOL_MISSING", true) {
		t.Fatal("expected default true")
	}
}

func TestEnvDuration(t *testing.T) {
	t.Setenv("TEST_DUR", "45s")
	if v := envDuration("TEST_DUR", time.Second); v != 45*time.Second {
		t.Fatalf("expected 45s, got %s", v)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DatabaseName != "cicd_db" {
		t.Fatalf("expected cicd_db, got %q", cfg.DatabaseName)
	}
	if cfg.Collection != "cdPipelineEvents" {
		t.Fatalf("expected cdPipelineEvents, got %q", cfg.Collection)
	}
	if cfg.CacheTTL != 300*time.Second {
		t.Fatalf("expected 300s TTL, got %s", cfg.CacheTTL)
	}
}

func TestValidateRejectsZeroTTL(t *testing.T) {
	cfg := Config{
		MongoURI:            "mongodb://localhost:27017",
		DatabaseName:        "cicd_db",
		MaxRequestBodyBytes: 1,
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero cache TTL, got nil")
	}
}
