package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	QueueDir   string `toml:"queue_dir"`
	LogDir     string `toml:"log_dir"`
	ArchiveDir string `toml:"archive_dir"`
}

// Datastore contains configuration for the downstream SQLite database the
// worker serializes writes against.
type Datastore struct {
	Path          string `toml:"path"`
	BusyTimeoutMS int    `toml:"busy_timeout_ms"`
}

// Worker contains configuration for the worker daemon loop.
type Worker struct {
	PollInterval             int    `toml:"poll_interval"`
	BatchSize                int    `toml:"batch_size"`
	MaxRetries               int    `toml:"max_retries"`
	IdleExitSeconds          int    `toml:"idle_exit_seconds"`
	ProcessingTimeoutSeconds int    `toml:"processing_timeout_seconds"`
	ExecutorTimeoutSeconds   int    `toml:"executor_timeout"`
	WakeMode                 string `toml:"wake_mode"`
	RetryPriorityBump        int    `toml:"retry_priority_bump"`
	Autostart                bool   `toml:"autostart"`
}

// Backoff contains the retry delay schedule for transient execution failures.
type Backoff struct {
	BaseSeconds int     `toml:"base_seconds"`
	Multiplier  float64 `toml:"multiplier"`
	CapSeconds  int     `toml:"cap_seconds"`
}

// Maintenance contains retention windows for out-of-band cleanup jobs.
type Maintenance struct {
	ArchiveRetentionHours int `toml:"archive_retention_hours"`
	PurgeRetentionHours   int `toml:"purge_retention_hours"`
	WorkerLogMaxMiB       int `toml:"worker_log_max_mib"`
	RotatedLogKeep        int `toml:"rotated_log_keep"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for funnel.
//
// Configuration sections by subsystem:
//   - Paths: queue, log, and cold-archive directories
//   - Datastore: the downstream SQLite database
//   - Worker: daemon polling, batching, retry, and timeout knobs
//   - Backoff: transient-failure retry delay schedule
//   - Maintenance: archive/purge retention and log rotation caps
//   - Logging: log format, level, and retention
type Config struct {
	Paths       Paths       `toml:"paths"`
	Datastore   Datastore   `toml:"datastore"`
	Worker      Worker      `toml:"worker"`
	Backoff     Backoff     `toml:"backoff"`
	Maintenance Maintenance `toml:"maintenance"`
	Logging     Logging     `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/funnel/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("funnel.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for queue and worker operation.
// ArchiveDir is created on a best-effort basis so enqueue keeps working when
// cold storage is temporarily unavailable.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.QueueDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.ArchiveDir) != "" {
		_ = os.MkdirAll(c.Paths.ArchiveDir, 0o755)
	}
	return nil
}

// DatastorePath returns the expanded path to the downstream SQLite database.
func (c *Config) DatastorePath() string {
	return c.Datastore.Path
}

// WorkerLogPath returns the path of the worker daemon log inside the log directory.
func (c *Config) WorkerLogPath() string {
	return filepath.Join(c.Paths.LogDir, "worker.log")
}

// WorkerPIDPath returns the path of the worker pid file inside the queue directory.
func (c *Config) WorkerPIDPath() string {
	return filepath.Join(c.Paths.QueueDir, "worker.pid")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
