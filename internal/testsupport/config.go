package testsupport

import (
	"path/filepath"
	"testing"

	"github.com/mvonrenteln/FlowScribe-sub003/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Backup.Enabled = true
	cfgVal.Backup.Location = filepath.Join(base, "backups")
	cfgVal.Backup.ExportDir = filepath.Join(base, "exports")

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithProvider sets the backup provider kind on the test config.
func WithProvider(kind string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Backup.Provider = kind
	}
}

// WithInterval sets the backup interval in minutes on the test config.
func WithInterval(minutes int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Backup.IntervalMinutes = minutes
	}
}

// WithRetention sets the per-session and global snapshot caps.
func WithRetention(perSession, global int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Backup.MaxSnapshotsPerSession = perSession
		b.cfg.Backup.MaxGlobalSnapshots = global
	}
}

// WithGlobalState toggles whether cross-session state is included in backups.
func WithGlobalState(include bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Backup.IncludeGlobalState = include
	}
}
