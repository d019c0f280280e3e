package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/mvonrenteln/FlowScribe-sub003/internal/dirty"
	"github.com/mvonrenteln/FlowScribe-sub003/internal/logging"
	"github.com/mvonrenteln/FlowScribe-sub003/internal/manifest"
	"github.com/mvonrenteln/FlowScribe-sub003/internal/provider"
	"github.com/mvonrenteln/FlowScribe-sub003/internal/restore"
	"github.com/mvonrenteln/FlowScribe-sub003/internal/scheduler"
	"github.com/mvonrenteln/FlowScribe-sub003/internal/snapshot"
)

// Status is the engine's runtime summary for status surfaces.
type Status struct {
	Running          bool
	PID              int
	Scheduler        scheduler.Status
	ProviderKind     string
	ProviderLabel    string
	SupportsRestore  bool
	StateDBPath      string
	LockPath         string
	DirtySessions    int
	LastBackupAt     time.Time
	LastBackupStatus string
}

// Status reports the engine and scheduler state.
func (e *Engine) Status(ctx context.Context) Status {
	status := Status{
		Running:         e.running.Load(),
		PID:             e.PID(),
		Scheduler:       e.sched.Status(),
		ProviderKind:    e.provider.Kind(),
		ProviderLabel:   e.provider.Label(),
		SupportsRestore: e.provider.SupportsRestore(),
		StateDBPath:     e.store.Path(),
		LockPath:        e.lockPath,
	}
	if sessions, err := e.store.DirtySessions(ctx); err == nil {
		status.DirtySessions = len(sessions)
	}
	if at, result, err := e.store.LastBackup(ctx); err == nil {
		status.LastBackupAt = at
		status.LastBackupStatus = result
	}
	return status
}

// Enable turns backups on through the provider.
func (e *Engine) Enable(ctx context.Context) error {
	return e.sched.Enable(ctx)
}

// Disable turns periodic backups off.
func (e *Engine) Disable() {
	e.sched.Disable()
}

// BackupNow triggers a synchronous backup run.
func (e *Engine) BackupNow(ctx context.Context, reason string) (scheduler.RunResult, error) {
	parsed, ok := manifest.ParseReason(reason)
	if !ok {
		parsed = manifest.ReasonManual
	}
	return e.sched.BackupNow(ctx, parsed)
}

// Reauthorize restores access to the backup root after a permission pause.
func (e *Engine) Reauthorize(ctx context.Context) error {
	return e.sched.Reauthorize(ctx)
}

// MarkDirty records that a session has unsaved changes and counts as user
// activity for backup scheduling.
func (e *Engine) MarkDirty(ctx context.Context, sessionKey, sessionLabel string) error {
	if err := e.guard.Arm(ctx, sessionKey, sessionLabel); err != nil {
		return err
	}
	e.sched.NotifyActivity()
	return nil
}

// ClearDirty removes a session's dirty marker after its state was saved
// outside the backup pipeline.
func (e *Engine) ClearDirty(ctx context.Context, sessionKey string) error {
	return e.guard.Disarm(ctx, sessionKey)
}

// DismissDirty discards a recovery offer by its hashed session key.
func (e *Engine) DismissDirty(ctx context.Context, sessionKeyHash string) error {
	return e.guard.Dismiss(ctx, sessionKeyHash)
}

// RecoveryStatus lists sessions that closed with unsaved changes and what
// recovery can offer for each.
func (e *Engine) RecoveryStatus(ctx context.Context) ([]dirty.Recovery, error) {
	accessible := e.provider.SupportsRestore() && e.provider.VerifyAccess(ctx)
	m := manifest.New()
	if accessible {
		var err error
		m, err = e.provider.ReadManifest(ctx)
		if err != nil {
			// Treat an unreadable manifest like missing access: the user
			// must intervene before snapshots can be listed.
			accessible = false
			m = manifest.New()
		}
	}
	return e.guard.Pending(ctx, m, accessible)
}

// ListSnapshots returns the backup root's contents grouped per session.
func (e *Engine) ListSnapshots(ctx context.Context) (restore.Listing, error) {
	return e.restorer.List(ctx)
}

// Restore reads, verifies, and decodes one snapshot by manifest filename.
func (e *Engine) Restore(ctx context.Context, filename string) (snapshot.Payload, manifest.Entry, error) {
	return e.restorer.Restore(ctx, filename)
}

// RestoreFile decodes a standalone snapshot file from a local path.
func (e *Engine) RestoreFile(path string) (snapshot.Payload, snapshot.Header, error) {
	return e.restorer.RestoreFile(path)
}

// AdoptRoot validates an existing backup root, records it durably, and
// switches the engine over to it immediately.
func (e *Engine) AdoptRoot(ctx context.Context, root string) (manifest.Manifest, error) {
	m, err := e.restorer.Adopt(ctx, root)
	if err != nil {
		return manifest.Manifest{}, err
	}
	e.provider.swap(provider.NewDirectory(root))
	if err := e.sched.Enable(ctx); err != nil {
		return manifest.Manifest{}, fmt.Errorf("enable adopted root: %w", err)
	}
	// Establish manifest continuity under the new root right away.
	e.sched.Request(manifest.ReasonCritical)
	e.logger.Info("switched to adopted backup root",
		logging.String("location", root),
		logging.String(logging.FieldEventType, "root_switched"))
	return m, nil
}

// TestNotification sends a test message through the notification service.
func (e *Engine) TestNotification(ctx context.Context) (bool, string, error) {
	if err := e.notifier.TestNotification(ctx); err != nil {
		return false, err.Error(), err
	}
	return true, "test notification sent", nil
}
