package config

const (
	defaultDataDir                = "~/.local/share/flowscribe"
	defaultLogDir                 = "~/.local/share/flowscribe/logs"
	defaultExportDir              = "~/Downloads/flowscribe-backups"
	defaultIntervalMinutes        = 10
	defaultMaxSnapshotsPerSession = 5
	defaultMaxGlobalSnapshots     = 3
	defaultErrorRetrySeconds      = 30
	defaultTriggerQueueSize       = 16
	defaultNotifyRequestTimeout   = 10
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultLogRetentionDays       = 60
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Backup: Backup{
			Provider:               ProviderDirectory,
			ExportDir:              defaultExportDir,
			IncludeGlobalState:     true,
			IntervalMinutes:        defaultIntervalMinutes,
			MaxSnapshotsPerSession: defaultMaxSnapshotsPerSession,
			MaxGlobalSnapshots:     defaultMaxGlobalSnapshots,
		},
		Scheduler: Scheduler{
			ErrorRetrySeconds: defaultErrorRetrySeconds,
			TriggerQueueSize:  defaultTriggerQueueSize,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			BackupComplete: true,
			Recovery:       true,
			Errors:         true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
