package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Addr != ":8080" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.Store != "memory" {
		t.Errorf("Store = %q", cfg.Store)
	}
	if cfg.GatewayTimeout != 15*time.Second {
		t.Errorf("GatewayTimeout = %v", cfg.GatewayTimeout)
	}
	if cfg.SweepInterval != time.Minute || cfg.SweepStaleAfter != 5*time.Minute {
		t.Errorf("sweep settings = %v / %v", cfg.SweepInterval, cfg.SweepStaleAfter)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE", "bolt")
	t.Setenv("BOLT_PATH", "/tmp/x.db")
	t.Setenv("SWEEP_INTERVAL", "30s")
	t.Setenv("SWEEP_STALE_AFTER", "not-a-duration")

	cfg := Load()
	if cfg.Store != "bolt" || cfg.BoltPath != "/tmp/x.db" {
		t.Errorf("store = %q path = %q", cfg.Store, cfg.BoltPath)
	}
	if cfg.SweepInterval != 30*time.Second {
		t.Errorf("SweepInterval = %v", cfg.SweepInterval)
	}
	// Unparseable durations fall back to the default.
	if cfg.SweepStaleAfter != 5*time.Minute {
		t.Errorf("SweepStaleAfter = %v", cfg.SweepStaleAfter)
	}
}
