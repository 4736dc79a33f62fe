package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("REXCARDS_AUTH_SECRET", "test-secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("unexpected addr: %s", cfg.HTTPAddr)
	}
	if cfg.Auth.AccessTTL != 15*time.Minute {
		t.Fatalf("unexpected access ttl: %v", cfg.Auth.AccessTTL)
	}
	if cfg.Auth.RefreshTTL != 336*time.Hour {
		t.Fatalf("unexpected refresh ttl: %v", cfg.Auth.RefreshTTL)
	}
	if cfg.Hash.MemoryKiB != 65536 || cfg.Hash.Iterations != 3 || cfg.Hash.Parallelism != 4 {
		t.Fatalf("unexpected hash params: %+v", cfg.Hash)
	}
}

func TestLoadRejectsMissingSecret(t *testing.T) {
	t.Setenv("REXCARDS_AUTH_SECRET", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing secret")
	}
}

func TestLoadRejectsInvertedTTLs(t *testing.T) {
	t.Setenv("REXCARDS_AUTH_SECRET", "test-secret")
	t.Setenv("REXCARDS_AUTH_ACCESS_TTL", "1h")
	t.Setenv("REXCARDS_AUTH_REFRESH_TTL", "30m")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for refresh ttl below access ttl")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("REXCARDS_AUTH_SECRET", "test-secret")
	t.Setenv("REXCARDS_HTTP_ADDR", ":9090")
	t.Setenv("REXCARDS_HASH_MEMORY_KIB", "131072")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Fatalf("unexpected addr: %s", cfg.HTTPAddr)
	}
	if cfg.Hash.MemoryKiB != 131072 {
		t.Fatalf("unexpected memory: %d", cfg.Hash.MemoryKiB)
	}
}
