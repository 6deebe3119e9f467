package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"funnel/internal/config"
)

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, _, exists, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if exists {
		t.Fatal("expected missing config file to report exists=false")
	}
	if cfg.Worker.BatchSize != 10 {
		t.Fatalf("unexpected default batch size: %d", cfg.Worker.BatchSize)
	}
	if cfg.Worker.WakeMode != "auto" {
		t.Fatalf("unexpected default wake mode: %q", cfg.Worker.WakeMode)
	}
	if !filepath.IsAbs(cfg.Paths.QueueDir) {
		t.Fatalf("queue_dir not expanded: %q", cfg.Paths.QueueDir)
	}
}

func TestLoadAppliesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "funnel.toml")
	content := strings.Join([]string{
		"[paths]",
		`queue_dir = "` + filepath.Join(dir, "queue") + `"`,
		"[worker]",
		"batch_size = 25",
		"poll_interval = 1",
		`wake_mode = "polling"`,
		"[backoff]",
		"base_seconds = 1",
		"cap_seconds = 5",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to be found")
	}
	if resolved != path {
		t.Fatalf("unexpected resolved path: %q", resolved)
	}
	if cfg.Worker.BatchSize != 25 {
		t.Fatalf("override not applied: %d", cfg.Worker.BatchSize)
	}
	if cfg.Worker.WakeMode != "polling" {
		t.Fatalf("wake mode override not applied: %q", cfg.Worker.WakeMode)
	}
	if cfg.Backoff.CapSeconds != 5 {
		t.Fatalf("backoff override not applied: %d", cfg.Backoff.CapSeconds)
	}
	// Untouched sections keep defaults.
	if cfg.Worker.MaxRetries != 3 {
		t.Fatalf("unexpected max retries: %d", cfg.Worker.MaxRetries)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"zero batch size", func(c *config.Config) { c.Worker.BatchSize = 0 }},
		{"negative retries", func(c *config.Config) { c.Worker.MaxRetries = -1 }},
		{"bad wake mode", func(c *config.Config) { c.Worker.WakeMode = "carrier-pigeon" }},
		{"bad log format", func(c *config.Config) { c.Logging.Format = "xml" }},
		{"cap below base", func(c *config.Config) { c.Backoff.BaseSeconds = 30; c.Backoff.CapSeconds = 5 }},
		{"multiplier below one", func(c *config.Config) { c.Backoff.Multiplier = 0.5 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load of sample failed: %v", err)
	}
	if !exists {
		t.Fatal("expected sample config to exist")
	}
	def := config.Default()
	if cfg.Worker.BatchSize != def.Worker.BatchSize || cfg.Backoff.CapSeconds != def.Backoff.CapSeconds {
		t.Fatal("sample config should match defaults")
	}
}
