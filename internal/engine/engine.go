// Package engine assembles the backup daemon: provider selection, the
// scheduler, the dirty guard, restore, notifications, and single-instance
// locking. It is the one facade the IPC layer and the CLI talk to.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/gofrs/flock"

	"github.com/mvonrenteln/FlowScribe-sub003/internal/appstate"
	"github.com/mvonrenteln/FlowScribe-sub003/internal/config"
	"github.com/mvonrenteln/FlowScribe-sub003/internal/dirty"
	"github.com/mvonrenteln/FlowScribe-sub003/internal/logging"
	"github.com/mvonrenteln/FlowScribe-sub003/internal/notifications"
	"github.com/mvonrenteln/FlowScribe-sub003/internal/provider"
	"github.com/mvonrenteln/FlowScribe-sub003/internal/restore"
	"github.com/mvonrenteln/FlowScribe-sub003/internal/scheduler"
)

// Engine coordinates the backup subsystems and enforces single-instance
// execution.
type Engine struct {
	cfg        *config.Config
	configPath string
	logger     *slog.Logger
	appVersion string

	store    *appstate.Store
	provider *switchableProvider
	guard    *dirty.Guard
	notifier notifications.Service
	sched    *scheduler.Scheduler
	restorer *restore.Service
	watcher  *configWatcher

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Options tunes engine construction beyond the config file.
type Options struct {
	// ConfigPath enables hot reload of the backup policy when set.
	ConfigPath string
	// AppVersion is stamped into every snapshot this engine writes.
	AppVersion string
	// Notifier overrides the ntfy-backed service, used by tests.
	Notifier notifications.Service
}

// New constructs an engine with initialized dependencies. The previously
// adopted backup root, if any, overrides the configured location.
func New(cfg *config.Config, logger *slog.Logger, opts Options) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("engine requires config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	store, err := appstate.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}

	root := cfg.Backup.Location
	if adopted, err := store.AdoptedRoot(context.Background()); err == nil && adopted != "" {
		root = adopted
	}
	inner, err := buildProvider(cfg, root)
	if err != nil {
		store.Close()
		return nil, err
	}
	prov := newSwitchableProvider(inner)

	guard := dirty.NewGuard(store, logger)
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}

	sched, err := scheduler.New(cfg, scheduler.Deps{
		Provider:   prov,
		State:      store,
		Guard:      guard,
		Source:     newFSSource(cfg.Paths.DataDir),
		Notifier:   notifier,
		Logger:     logger,
		AppVersion: opts.AppVersion,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("build scheduler: %w", err)
	}

	return &Engine{
		cfg:        cfg,
		configPath: opts.ConfigPath,
		logger:     logging.NewComponentLogger(logger, "engine"),
		appVersion: opts.AppVersion,
		store:      store,
		provider:   prov,
		guard:      guard,
		notifier:   notifier,
		sched:      sched,
		restorer:   restore.NewService(prov, store, logger),
		lockPath:   cfg.LockPath(),
		lock:       flock.New(cfg.LockPath()),
	}, nil
}

func buildProvider(cfg *config.Config, root string) (provider.Provider, error) {
	switch cfg.Backup.Provider {
	case config.ProviderDirectory:
		return provider.NewDirectory(root), nil
	case config.ProviderExport:
		return provider.NewExport(cfg.Backup.ExportDir), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Backup.Provider)
	}
}

// Start acquires the instance lock, launches the scheduler, arms config hot
// reload, and surfaces any recovery offers left over from the previous run.
func (e *Engine) Start(ctx context.Context) error {
	if e.running.Load() {
		return errors.New("engine already running")
	}

	ok, err := e.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another flowscribed instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.sched.Start(runCtx)

	if e.cfg.Backup.Enabled {
		if err := e.sched.Enable(runCtx); err != nil {
			if errors.Is(err, provider.ErrCancelled) {
				e.logger.Warn("backups configured on but no location chosen",
					logging.String(logging.FieldErrorHint, "set backup.location and restart, or run enable"),
					logging.String(logging.FieldEventType, "backup_location_missing"))
			} else {
				logging.ErrorWithContext(e.logger, "failed to enable backups", "backup_enable_failed",
					logging.Error(err))
			}
		}
	}

	if e.configPath != "" {
		watcher, err := newConfigWatcher(e.configPath, e.logger, e.applyConfig)
		if err != nil {
			e.logger.Warn("config hot reload unavailable", logging.Error(err))
		} else {
			e.watcher = watcher
			e.watcher.start(runCtx)
		}
	}

	e.running.Store(true)
	e.logger.Info("backup engine started",
		logging.String("lock", e.lockPath),
		logging.String(logging.FieldProvider, e.provider.Kind()),
		logging.String(logging.FieldEventType, "engine_started"))

	e.announceRecovery(runCtx)
	return nil
}

// Stop shuts the scheduler down and releases the instance lock.
func (e *Engine) Stop() {
	if !e.running.Load() {
		return
	}
	if e.watcher != nil {
		e.watcher.close()
		e.watcher = nil
	}
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.sched.Stop()
	if err := e.lock.Unlock(); err != nil {
		e.logger.Warn("failed to release instance lock", logging.Error(err))
	}
	e.running.Store(false)
	e.logger.Info("backup engine stopped",
		logging.String(logging.FieldEventType, "engine_stopped"))
}

// Close stops the engine and releases held resources.
func (e *Engine) Close() error {
	e.Stop()
	if e.store != nil {
		return e.store.Close()
	}
	return nil
}

// PID returns the engine's process id for status surfaces.
func (e *Engine) PID() int { return os.Getpid() }

// announceRecovery surfaces dirty markers left by the previous run. A
// marker here means a session was (or may have been) lost with unsaved
// changes; the user decides what happens next, the engine only informs.
func (e *Engine) announceRecovery(ctx context.Context) {
	recoveries, err := e.RecoveryStatus(ctx)
	if err != nil {
		e.logger.Warn("recovery scan failed", logging.Error(err))
		return
	}
	for _, recovery := range recoveries {
		e.logger.Info("session closed with unsaved changes",
			logging.String(logging.FieldSessionKey, recovery.SessionKeyHash),
			logging.String("hint", string(recovery.Hint)),
			logging.String(logging.FieldEventType, "recovery_pending"))
		if recovery.Hint == dirty.HintBackupAvailable && !e.cfg.Backup.DisableDirtyReminders {
			if err := e.notifier.NotifyRecoveryAvailable(ctx, recovery.SessionLabel); err != nil {
				e.logger.Debug("recovery notification failed", logging.Error(err))
			}
		}
	}
}

// applyConfig swaps in a freshly loaded backup policy.
func (e *Engine) applyConfig(cfg *config.Config) {
	e.sched.UpdatePolicy(cfg.Backup)
	e.logger.Info("backup policy reloaded",
		logging.String(logging.FieldEventType, "config_reloaded"))
}
