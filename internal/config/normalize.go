package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeDatastore(); err != nil {
		return err
	}
	c.normalizeWorker()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.QueueDir) == "" {
		c.Paths.QueueDir = defaultQueueDir
	}
	if c.Paths.QueueDir, err = expandPath(c.Paths.QueueDir); err != nil {
		return fmt.Errorf("paths.queue_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.ArchiveDir) == "" {
		c.Paths.ArchiveDir = defaultArchiveDir
	}
	if c.Paths.ArchiveDir, err = expandPath(c.Paths.ArchiveDir); err != nil {
		return fmt.Errorf("paths.archive_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeDatastore() error {
	if c.Datastore.Path == "" {
		if value, ok := os.LookupEnv("FUNNEL_DATASTORE"); ok {
			c.Datastore.Path = value
		} else {
			c.Datastore.Path = defaultDatastorePath
		}
	}
	var err error
	if c.Datastore.Path, err = expandPath(c.Datastore.Path); err != nil {
		return fmt.Errorf("datastore.path: %w", err)
	}
	if c.Datastore.BusyTimeoutMS <= 0 {
		c.Datastore.BusyTimeoutMS = defaultDatastoreBusyMS
	}
	return nil
}

func (c *Config) normalizeWorker() {
	c.Worker.WakeMode = strings.ToLower(strings.TrimSpace(c.Worker.WakeMode))
	if c.Worker.WakeMode == "" {
		c.Worker.WakeMode = defaultWakeMode
	}
	if c.Worker.PollInterval <= 0 {
		c.Worker.PollInterval = defaultPollInterval
	}
	if c.Worker.BatchSize <= 0 {
		c.Worker.BatchSize = defaultBatchSize
	}
	if c.Worker.ExecutorTimeoutSeconds <= 0 {
		c.Worker.ExecutorTimeoutSeconds = defaultExecutorTimeout
	}
	if c.Backoff.BaseSeconds <= 0 {
		c.Backoff.BaseSeconds = defaultBackoffBaseSeconds
	}
	if c.Backoff.Multiplier <= 0 {
		c.Backoff.Multiplier = defaultBackoffMultiplier
	}
	if c.Backoff.CapSeconds <= 0 {
		c.Backoff.CapSeconds = defaultBackoffCapSeconds
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
