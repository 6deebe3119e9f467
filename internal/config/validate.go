package config

import (
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateWorker(); err != nil {
		return err
	}
	if err := c.validateBackoff(); err != nil {
		return err
	}
	if err := c.validateMaintenance(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.QueueDir) == "" {
		return fmt.Errorf("paths.queue_dir must be set")
	}
	if strings.TrimSpace(c.Datastore.Path) == "" {
		return fmt.Errorf("datastore.path must be set")
	}
	return nil
}

func (c *Config) validateWorker() error {
	if c.Worker.PollInterval <= 0 {
		return fmt.Errorf("worker.poll_interval must be positive, got %d", c.Worker.PollInterval)
	}
	if c.Worker.BatchSize <= 0 {
		return fmt.Errorf("worker.batch_size must be positive, got %d", c.Worker.BatchSize)
	}
	if c.Worker.MaxRetries < 0 {
		return fmt.Errorf("worker.max_retries must not be negative, got %d", c.Worker.MaxRetries)
	}
	if c.Worker.IdleExitSeconds < 0 {
		return fmt.Errorf("worker.idle_exit_seconds must not be negative, got %d", c.Worker.IdleExitSeconds)
	}
	if c.Worker.ProcessingTimeoutSeconds <= 0 {
		return fmt.Errorf("worker.processing_timeout_seconds must be positive, got %d", c.Worker.ProcessingTimeoutSeconds)
	}
	if c.Worker.ExecutorTimeoutSeconds <= 0 {
		return fmt.Errorf("worker.executor_timeout must be positive, got %d", c.Worker.ExecutorTimeoutSeconds)
	}
	if c.Worker.RetryPriorityBump < 0 {
		return fmt.Errorf("worker.retry_priority_bump must not be negative, got %d", c.Worker.RetryPriorityBump)
	}
	switch c.Worker.WakeMode {
	case "auto", "events", "polling":
	default:
		return fmt.Errorf("worker.wake_mode must be one of auto, events, polling; got %q", c.Worker.WakeMode)
	}
	return nil
}

func (c *Config) validateBackoff() error {
	if c.Backoff.Multiplier < 1 {
		return fmt.Errorf("backoff.multiplier must be at least 1, got %g", c.Backoff.Multiplier)
	}
	if c.Backoff.CapSeconds < c.Backoff.BaseSeconds {
		return fmt.Errorf("backoff.cap_seconds (%d) must not be below backoff.base_seconds (%d)",
			c.Backoff.CapSeconds, c.Backoff.BaseSeconds)
	}
	return nil
}

func (c *Config) validateMaintenance() error {
	if c.Maintenance.ArchiveRetentionHours < 0 {
		return fmt.Errorf("maintenance.archive_retention_hours must not be negative, got %d", c.Maintenance.ArchiveRetentionHours)
	}
	if c.Maintenance.PurgeRetentionHours < 0 {
		return fmt.Errorf("maintenance.purge_retention_hours must not be negative, got %d", c.Maintenance.PurgeRetentionHours)
	}
	if c.Maintenance.WorkerLogMaxMiB < 0 {
		return fmt.Errorf("maintenance.worker_log_max_mib must not be negative, got %d", c.Maintenance.WorkerLogMaxMiB)
	}
	if c.Maintenance.RotatedLogKeep < 0 {
		return fmt.Errorf("maintenance.rotated_log_keep must not be negative, got %d", c.Maintenance.RotatedLogKeep)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}
	return nil
}
