package testsupport

import (
	"path/filepath"
	"testing"

	"funnel/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test
// and timing knobs small enough for fast tests.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.QueueDir = filepath.Join(base, "queue")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.ArchiveDir = filepath.Join(base, "archive")
	cfg.Datastore.Path = filepath.Join(base, "data.db")
	cfg.Worker.PollInterval = 1
	cfg.Worker.BatchSize = 10
	cfg.Worker.IdleExitSeconds = 0
	cfg.Worker.Autostart = false
	cfg.Backoff.BaseSeconds = 1
	cfg.Backoff.CapSeconds = 1

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithMaxRetries overrides the retry budget on the test config.
func WithMaxRetries(n int) ConfigOption {
	return func(c *config.Config) {
		c.Worker.MaxRetries = n
	}
}

// WithBatchSize overrides the claim batch size on the test config.
func WithBatchSize(n int) ConfigOption {
	return func(c *config.Config) {
		c.Worker.BatchSize = n
	}
}

// WithWakeMode forces a wake source implementation on the test config.
func WithWakeMode(mode string) ConfigOption {
	return func(c *config.Config) {
		c.Worker.WakeMode = mode
	}
}
