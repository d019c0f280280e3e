package config

import "strings"

// normalize expands paths, trims strings, and clamps user-editable limits to
// their documented bounds. Runs before Validate so later packages can rely on
// the invariants without re-checking.
func (c *Config) normalize() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}

	c.Backup.Provider = strings.ToLower(strings.TrimSpace(c.Backup.Provider))
	if c.Backup.Provider == "" {
		c.Backup.Provider = ProviderDirectory
	}
	c.Backup.Location = strings.TrimSpace(c.Backup.Location)
	if c.Backup.Location != "" {
		if c.Backup.Location, err = expandPath(c.Backup.Location); err != nil {
			return err
		}
	}
	c.Backup.ExportDir = strings.TrimSpace(c.Backup.ExportDir)
	if c.Backup.ExportDir != "" {
		if c.Backup.ExportDir, err = expandPath(c.Backup.ExportDir); err != nil {
			return err
		}
	}

	c.Backup.IntervalMinutes = clampInt(c.Backup.IntervalMinutes, MinIntervalMinutes, MaxIntervalMinutes)
	if c.Backup.MaxSnapshotsPerSession < 1 {
		c.Backup.MaxSnapshotsPerSession = 1
	}
	if c.Backup.MaxGlobalSnapshots < 1 {
		c.Backup.MaxGlobalSnapshots = 1
	}

	if c.Scheduler.ErrorRetrySeconds <= 0 {
		c.Scheduler.ErrorRetrySeconds = defaultErrorRetrySeconds
	}
	if c.Scheduler.TriggerQueueSize <= 0 {
		c.Scheduler.TriggerQueueSize = defaultTriggerQueueSize
	}

	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)

	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}

	return nil
}

func clampInt(value, low, high int) int {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}
