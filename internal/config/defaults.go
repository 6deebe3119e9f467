package config

const (
	defaultQueueDir              = "~/.local/share/funnel/queue"
	defaultLogDir                = "~/.local/share/funnel/logs"
	defaultArchiveDir            = "~/.local/share/funnel/archive"
	defaultDatastorePath         = "~/.local/share/funnel/data.db"
	defaultDatastoreBusyMS       = 5000
	defaultPollInterval          = 2
	defaultBatchSize             = 10
	defaultMaxRetries            = 3
	defaultIdleExitSeconds       = 300
	defaultProcessingTimeout     = 300
	defaultExecutorTimeout       = 30
	defaultWakeMode              = "auto"
	defaultBackoffBaseSeconds    = 2
	defaultBackoffMultiplier     = 2.0
	defaultBackoffCapSeconds     = 60
	defaultArchiveRetentionHours = 24
	defaultPurgeRetentionHours   = 168
	defaultWorkerLogMaxMiB       = 10
	defaultRotatedLogKeep        = 3
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultLogRetentionDays      = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			QueueDir:   defaultQueueDir,
			LogDir:     defaultLogDir,
			ArchiveDir: defaultArchiveDir,
		},
		Datastore: Datastore{
			Path:          defaultDatastorePath,
			BusyTimeoutMS: defaultDatastoreBusyMS,
		},
		Worker: Worker{
			PollInterval:             defaultPollInterval,
			BatchSize:                defaultBatchSize,
			MaxRetries:               defaultMaxRetries,
			IdleExitSeconds:          defaultIdleExitSeconds,
			ProcessingTimeoutSeconds: defaultProcessingTimeout,
			ExecutorTimeoutSeconds:   defaultExecutorTimeout,
			WakeMode:                 defaultWakeMode,
			Autostart:                true,
		},
		Backoff: Backoff{
			BaseSeconds: defaultBackoffBaseSeconds,
			Multiplier:  defaultBackoffMultiplier,
			CapSeconds:  defaultBackoffCapSeconds,
		},
		Maintenance: Maintenance{
			ArchiveRetentionHours: defaultArchiveRetentionHours,
			PurgeRetentionHours:   defaultPurgeRetentionHours,
			WorkerLogMaxMiB:       defaultWorkerLogMaxMiB,
			RotatedLogKeep:        defaultRotatedLogKeep,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
