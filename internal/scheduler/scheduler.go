package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mvonrenteln/FlowScribe-sub003/internal/appstate"
	"github.com/mvonrenteln/FlowScribe-sub003/internal/config"
	"github.com/mvonrenteln/FlowScribe-sub003/internal/dirty"
	"github.com/mvonrenteln/FlowScribe-sub003/internal/logging"
	"github.com/mvonrenteln/FlowScribe-sub003/internal/manifest"
	"github.com/mvonrenteln/FlowScribe-sub003/internal/notifications"
	"github.com/mvonrenteln/FlowScribe-sub003/internal/provider"
)

// State is the scheduler's backup availability state.
type State string

const (
	// StateDisabled means backups are off; nothing runs until Enable.
	StateDisabled State = "disabled"
	// StateEnabled means periodic backups are armed and running.
	StateEnabled State = "enabled"
	// StatePaused means access to the backup root was lost; only
	// Reauthorize leaves this state.
	StatePaused State = "paused"
	// StateError means the last run failed for a non-permission reason;
	// the scheduler retries on its error backoff.
	StateError State = "error"
)

// ErrNotEnabled reports a backup request while the scheduler is disabled.
var ErrNotEnabled = errors.New("backups are not enabled")

// SessionData is one session's state as captured by the source.
type SessionData struct {
	SessionKey   string
	SessionLabel string
	Data         json.RawMessage
}

// Source supplies the application state to back up. CollectGlobal may
// return (nil, nil) when there is no cross-session state to capture.
type Source interface {
	CollectSessions(ctx context.Context) ([]SessionData, error)
	CollectGlobal(ctx context.Context) (json.RawMessage, error)
}

// RunResult summarizes one completed backup run.
type RunResult struct {
	Reason         manifest.Reason
	Sessions       int
	GlobalIncluded bool
	Evicted        int
	StartedAt      time.Time
	FinishedAt     time.Time
}

// Status is a point-in-time snapshot of the scheduler for status surfaces.
type Status struct {
	State        State
	Location     string
	Running      bool
	LastBackupAt time.Time
	LastError    string
	NextDue      time.Time
}

// Deps collects the scheduler's collaborators.
type Deps struct {
	Provider   provider.Provider
	State      *appstate.Store
	Guard      *dirty.Guard
	Source     Source
	Notifier   notifications.Service
	Logger     *slog.Logger
	AppVersion string
}

// Scheduler owns the backup state machine and the periodic run loop.
type Scheduler struct {
	provider   provider.Provider
	state      *appstate.Store
	guard      *dirty.Guard
	source     Source
	notifier   notifications.Service
	logger     *slog.Logger
	appVersion string
	now        func() time.Time

	// runMu serializes backup runs. Holding it is what single-flight means.
	runMu sync.Mutex

	mu           sync.Mutex
	policy       config.Backup
	timing       config.Scheduler
	st           State
	location     string
	lastBackup   time.Time
	lastAttempt  time.Time
	lastActivity time.Time
	lastErr      error
	running      bool
	pending      *pendingRun

	triggers chan manifest.Reason
	wake     chan struct{}
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// New builds a scheduler. Call Start to arm the periodic loop.
func New(cfg *config.Config, deps Deps) (*Scheduler, error) {
	if deps.Provider == nil {
		return nil, errors.New("scheduler requires a provider")
	}
	if deps.State == nil {
		return nil, errors.New("scheduler requires a state store")
	}
	if deps.Source == nil {
		return nil, errors.New("scheduler requires a source")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	queueSize := cfg.Scheduler.TriggerQueueSize
	if queueSize < 1 {
		queueSize = 1
	}

	s := &Scheduler{
		provider:   deps.Provider,
		state:      deps.State,
		guard:      deps.Guard,
		source:     deps.Source,
		notifier:   notifier,
		logger:     logging.NewComponentLogger(logger, "scheduler"),
		appVersion: deps.AppVersion,
		now:        time.Now,
		policy:     cfg.Backup,
		timing:     cfg.Scheduler,
		st:         StateDisabled,
		triggers:   make(chan manifest.Reason, queueSize),
		wake:       make(chan struct{}, 1),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}

	// Rehydrate bookkeeping so restart does not reset the backup cadence.
	if at, _, err := deps.State.LastBackup(context.Background()); err == nil {
		s.lastBackup = at
	}
	return s, nil
}

// Start launches the periodic loop. It returns immediately; the loop runs
// until Stop or context cancellation.
func (s *Scheduler) Start(ctx context.Context) {
	go s.loop(ctx)
}

// Stop shuts the loop down and waits for any in-flight run to finish.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

// Enable activates backups through the provider. A cancelled location
// selection leaves the scheduler disabled and is reported unchanged so the
// caller can distinguish it from a failure.
func (s *Scheduler) Enable(ctx context.Context) error {
	label, err := s.provider.Enable(ctx)
	if err != nil {
		if !errors.Is(err, provider.ErrCancelled) {
			s.setError(err)
		}
		return err
	}

	s.mu.Lock()
	s.st = StateEnabled
	s.location = label
	s.lastErr = nil
	s.mu.Unlock()

	s.logger.Info("backups enabled",
		logging.String(logging.FieldProvider, s.provider.Kind()),
		logging.String("location", label),
		logging.String(logging.FieldEventType, "backup_enabled"))
	s.kick()
	return nil
}

// Disable turns periodic backups off. Existing snapshots are left alone.
func (s *Scheduler) Disable() {
	s.mu.Lock()
	s.st = StateDisabled
	s.lastErr = nil
	s.mu.Unlock()
	s.logger.Info("backups disabled",
		logging.String(logging.FieldEventType, "backup_disabled"))
}

// Reauthorize re-runs provider enablement to regain access after a pause.
// On success the scheduler resumes and immediately schedules a catch-up run.
func (s *Scheduler) Reauthorize(ctx context.Context) error {
	label, err := s.provider.Enable(ctx)
	if err != nil {
		return fmt.Errorf("reauthorize: %w", err)
	}
	if !s.provider.VerifyAccess(ctx) {
		return fmt.Errorf("reauthorize: %w", provider.ErrPermission)
	}

	s.mu.Lock()
	s.st = StateEnabled
	s.location = label
	s.lastErr = nil
	s.mu.Unlock()

	s.logger.Info("backup access reauthorized",
		logging.String("location", label),
		logging.String(logging.FieldEventType, "backup_reauthorized"))
	s.Request(manifest.ReasonCritical)
	return nil
}

// NotifyActivity records user activity. Periodic runs wait for a quiet
// window after the last activity, bounded so backups cannot be starved.
func (s *Scheduler) NotifyActivity() {
	s.mu.Lock()
	s.lastActivity = s.now()
	s.mu.Unlock()
}

// Request enqueues a backup trigger without blocking. Triggers arriving
// while the queue is full are coalesced into the ones already pending.
func (s *Scheduler) Request(reason manifest.Reason) {
	select {
	case s.triggers <- reason:
		s.kick()
	default:
	}
}

// pendingRun is the single follow-up run shared by every trigger that
// arrives while a run is in flight. Mid-run triggers are recorded, not
// executed; the finishing run services the latest recorded reason once.
type pendingRun struct {
	reason manifest.Reason
	done   chan struct{}
	result RunResult
	err    error
}

// BackupNow runs a backup synchronously. At most one run is ever in flight;
// callers arriving mid-run coalesce into one shared follow-up run instead
// of each taking a turn.
func (s *Scheduler) BackupNow(ctx context.Context, reason manifest.Reason) (RunResult, error) {
	s.mu.Lock()
	if s.st == StateDisabled {
		s.mu.Unlock()
		return RunResult{}, ErrNotEnabled
	}
	if s.running {
		p := s.pending
		if p == nil {
			p = &pendingRun{done: make(chan struct{})}
			s.pending = p
		}
		p.reason = reason
		s.mu.Unlock()
		select {
		case <-p.done:
			return p.result, p.err
		case <-ctx.Done():
			return RunResult{}, ctx.Err()
		}
	}
	s.mu.Unlock()
	return s.run(ctx, reason)
}

// Status returns a snapshot of the scheduler state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := Status{
		State:        s.st,
		Location:     s.location,
		Running:      s.running,
		LastBackupAt: s.lastBackup,
	}
	if s.lastErr != nil {
		status.LastError = s.lastErr.Error()
	}
	if s.st == StateEnabled {
		// The same postponement the loop applies, so the surfaced due time
		// never predates the run that will actually happen.
		status.NextDue = nextAutoRun(s.now(), s.lastBackup, s.lastActivity, s.interval())
	}
	return status
}

// UpdatePolicy applies a reloaded backup policy. Timing changes take effect
// at the next loop wakeup; an in-flight run finishes under the old policy.
func (s *Scheduler) UpdatePolicy(policy config.Backup) {
	s.mu.Lock()
	s.policy = policy
	s.mu.Unlock()
	s.kick()
}

// interval and retryDelay read policy fields; callers hold s.mu or accept a
// single stale read.
func (s *Scheduler) interval() time.Duration {
	return time.Duration(s.policy.IntervalMinutes) * time.Minute
}

func (s *Scheduler) retryDelay() time.Duration {
	secs := s.timing.ErrorRetrySeconds
	if secs < 1 {
		secs = 30
	}
	return time.Duration(secs) * time.Second
}

// kick nudges the loop to recompute its timer.
func (s *Scheduler) kick() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) setError(err error) {
	s.mu.Lock()
	s.st = StateError
	s.lastErr = err
	s.mu.Unlock()
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		delay, ok := s.nextDelay()
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		if ok {
			timer.Reset(delay)
		} else {
			// Nothing scheduled; park until kicked.
			timer.Reset(time.Hour)
		}

		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-s.wake:
			continue
		case reason := <-s.triggers:
			s.drainTriggers()
			if _, err := s.run(ctx, reason); err != nil {
				s.logRunFailure(err)
			}
		case <-timer.C:
			if !ok || !s.autoDue() {
				continue
			}
			if _, err := s.run(ctx, manifest.ReasonAuto); err != nil {
				s.logRunFailure(err)
			}
		}
	}
}

// drainTriggers coalesces queued triggers into the run about to start.
func (s *Scheduler) drainTriggers() {
	for {
		select {
		case <-s.triggers:
		default:
			return
		}
	}
}

// nextDelay computes how long the loop should sleep before the next
// automatic run, or false when no automatic run is scheduled.
func (s *Scheduler) nextDelay() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.st {
	case StateEnabled:
		due := nextAutoRun(s.now(), s.lastBackup, s.lastActivity, s.interval())
		delay := due.Sub(s.now())
		if delay < 0 {
			delay = 0
		}
		return delay, true
	case StateError:
		due := s.lastAttempt.Add(s.retryDelay())
		delay := due.Sub(s.now())
		if delay < 0 {
			delay = 0
		}
		return delay, true
	default:
		return 0, false
	}
}

func (s *Scheduler) logRunFailure(err error) {
	if errors.Is(err, provider.ErrPermission) {
		return
	}
	logging.ErrorWithContext(s.logger, "backup run failed", "backup_failed",
		logging.Error(err))
}
