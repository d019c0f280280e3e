package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mvonrenteln/FlowScribe-sub003/internal/config"
	"github.com/mvonrenteln/FlowScribe-sub003/internal/logging"
	"github.com/mvonrenteln/FlowScribe-sub003/internal/manifest"
	"github.com/mvonrenteln/FlowScribe-sub003/internal/provider"
	"github.com/mvonrenteln/FlowScribe-sub003/internal/snapshot"
)

// run executes a backup and then services the follow-up, if triggers were
// coalesced while it was in flight. Every mid-run caller shares that one
// follow-up run.
func (s *Scheduler) run(ctx context.Context, reason manifest.Reason) (RunResult, error) {
	result, err := s.runOnce(ctx, reason)
	for {
		s.mu.Lock()
		p := s.pending
		s.pending = nil
		s.mu.Unlock()
		if p == nil {
			return result, err
		}
		p.result, p.err = s.runOnce(ctx, p.reason)
		close(p.done)
	}
}

// runOnce executes one backup end to end. runMu guarantees single-flight.
func (s *Scheduler) runOnce(ctx context.Context, reason manifest.Reason) (RunResult, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	s.mu.Lock()
	if s.st == StateDisabled {
		s.mu.Unlock()
		return RunResult{}, ErrNotEnabled
	}
	s.running = true
	s.lastAttempt = s.now()
	policy := s.policy
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	logger := s.logger.With(
		logging.String(logging.FieldRunID, uuid.NewString()),
		logging.String(logging.FieldReason, string(reason)))
	started := s.now()
	logger.Info("backup run started",
		logging.String(logging.FieldEventType, "backup_started"))

	// Access is verified before anything is written. A revoked grant pauses
	// the scheduler; retrying without reauthorization cannot succeed.
	if !s.provider.VerifyAccess(ctx) {
		s.pause(ctx, logger)
		return RunResult{}, fmt.Errorf("backup run: %w", provider.ErrPermission)
	}

	sessions, err := s.source.CollectSessions(ctx)
	if err != nil {
		return RunResult{}, s.fail(ctx, logger, fmt.Errorf("collect sessions: %w", err))
	}

	var (
		entries []manifest.Entry
		backed  []string
	)
	for _, session := range sessions {
		entry, err := s.writeOne(ctx, session, reason, started)
		if err != nil {
			if errors.Is(err, provider.ErrPermission) {
				s.pause(ctx, logger)
				return RunResult{}, err
			}
			return RunResult{}, s.fail(ctx, logger, err)
		}
		entries = append(entries, entry)
		backed = append(backed, entry.SessionKeyHash)
	}

	globalIncluded := false
	if policy.IncludeGlobalState {
		data, err := s.source.CollectGlobal(ctx)
		if err != nil {
			return RunResult{}, s.fail(ctx, logger, fmt.Errorf("collect global state: %w", err))
		}
		if len(data) > 0 {
			entry, err := s.writeOne(ctx, SessionData{
				SessionKey:   manifest.GlobalSessionKey,
				SessionLabel: "Application state",
				Data:         data,
			}, reason, started)
			if err != nil {
				if errors.Is(err, provider.ErrPermission) {
					s.pause(ctx, logger)
					return RunResult{}, err
				}
				return RunResult{}, s.fail(ctx, logger, err)
			}
			entries = append(entries, entry)
			globalIncluded = true
		}
	}

	evicted, err := s.index(ctx, logger, entries, policy)
	if err != nil {
		if errors.Is(err, provider.ErrPermission) {
			s.pause(ctx, logger)
			return RunResult{}, err
		}
		return RunResult{}, s.fail(ctx, logger, err)
	}

	// Dirty markers clear only now, after the snapshots they cover are both
	// written and indexed.
	if s.guard != nil {
		for _, hash := range backed {
			if err := s.guard.DisarmHash(ctx, hash); err != nil {
				logging.WarnWithContext(logger, "failed to clear dirty marker", "dirty_clear_failed",
					logging.String(logging.FieldSessionKey, hash),
					logging.Error(err))
			}
		}
	}

	finished := s.now()
	if err := s.state.RecordBackup(ctx, finished, "ok"); err != nil {
		logging.WarnWithContext(logger, "failed to record backup bookkeeping", "bookkeeping_failed",
			logging.Error(err))
	}

	s.mu.Lock()
	s.st = StateEnabled
	s.lastBackup = finished
	s.lastErr = nil
	location := s.location
	s.mu.Unlock()

	result := RunResult{
		Reason:         reason,
		Sessions:       len(sessions),
		GlobalIncluded: globalIncluded,
		Evicted:        evicted,
		StartedAt:      started,
		FinishedAt:     finished,
	}
	logger.Info("backup run completed",
		slog.Int("sessions", result.Sessions),
		slog.Int("evicted", result.Evicted),
		slog.Duration("elapsed", finished.Sub(started)),
		logging.String(logging.FieldEventType, "backup_completed"))
	if err := s.notifier.NotifyBackupCompleted(ctx, result.Sessions, location); err != nil {
		logger.Debug("backup notification failed", logging.Error(err))
	}
	return result, nil
}

// writeOne encodes and durably writes a single snapshot, returning the
// manifest entry that will index it.
func (s *Scheduler) writeOne(ctx context.Context, session SessionData, reason manifest.Reason, createdAt time.Time) (manifest.Entry, error) {
	hash := session.SessionKey
	if hash != manifest.GlobalSessionKey {
		hash = manifest.HashSessionKey(session.SessionKey)
	}

	id, err := s.state.NextSnapshotID(ctx)
	if err != nil {
		return manifest.Entry{}, fmt.Errorf("allocate snapshot id: %w", err)
	}

	blob, info, err := snapshot.Encode(snapshot.Payload{
		SessionKeyHash: hash,
		SessionLabel:   session.SessionLabel,
		CreatedAt:      createdAt,
		Reason:         reason,
		Data:           session.Data,
	}, s.appVersion)
	if err != nil {
		return manifest.Entry{}, fmt.Errorf("encode snapshot: %w", err)
	}

	path := provider.SnapshotPath(hash, id, reason)
	if err := s.provider.WriteSnapshot(ctx, path, blob); err != nil {
		return manifest.Entry{}, fmt.Errorf("write snapshot: %w", err)
	}

	return manifest.Entry{
		Filename:       path,
		SessionKeyHash: hash,
		SessionLabel:   session.SessionLabel,
		CreatedAt:      createdAt.UTC(),
		Reason:         reason,
		AppVersion:     info.AppVersion,
		SchemaVersion:  info.SchemaVersion,
		CompressedSize: info.CompressedSize,
		Checksum:       info.Checksum,
	}, nil
}

// index publishes the new entries in the manifest, applies retention, and
// deletes evicted files. The manifest is re-read fresh so concurrent writers
// at the same root are never clobbered by a stale in-memory copy, and it is
// persisted before any file is deleted.
func (s *Scheduler) index(ctx context.Context, logger *slog.Logger, entries []manifest.Entry, policy config.Backup) (int, error) {
	if !s.provider.SupportsRestore() {
		// Export-style providers have no manifest and no retention; every
		// exported file stands alone.
		return 0, nil
	}

	m, err := s.provider.ReadManifest(ctx)
	if err != nil {
		return 0, fmt.Errorf("read manifest: %w", err)
	}
	for _, entry := range entries {
		m = manifest.Append(m, entry)
	}

	pruned, evicted := manifest.Prune(m, manifest.PruneConfig{
		MaxSnapshotsPerSession: policy.MaxSnapshotsPerSession,
		MaxGlobalSnapshots:     policy.MaxGlobalSnapshots,
	})
	if err := s.provider.WriteManifest(ctx, pruned); err != nil {
		return 0, fmt.Errorf("write manifest: %w", err)
	}

	if len(evicted) > 0 {
		paths := make([]string, 0, len(evicted))
		for _, entry := range evicted {
			paths = append(paths, entry.Filename)
		}
		for _, failure := range s.provider.DeleteSnapshots(ctx, paths) {
			logging.WarnWithContext(logger, "failed to delete evicted snapshot", "evict_delete_failed",
				logging.String("path", failure.Path),
				logging.Error(failure.Err))
		}
	}
	return len(evicted), nil
}

// pause transitions to StatePaused after a permission loss. Only
// Reauthorize resumes from here; the error backoff never does.
func (s *Scheduler) pause(ctx context.Context, logger *slog.Logger) {
	s.mu.Lock()
	alreadyPaused := s.st == StatePaused
	s.st = StatePaused
	s.lastErr = provider.ErrPermission
	location := s.location
	s.mu.Unlock()

	if alreadyPaused {
		return
	}
	logging.WarnWithContext(logger, "backup paused: storage access lost", "backup_paused",
		logging.String("location", location),
		logging.String(logging.FieldErrorHint, "run reauthorize to restore access"),
		logging.String(logging.FieldImpact, "periodic backups suspended"))
	if err := s.notifier.NotifyPermissionLost(ctx, location); err != nil {
		logger.Debug("permission notification failed", logging.Error(err))
	}
}

// fail records a non-permission run failure and arms the retry backoff.
func (s *Scheduler) fail(ctx context.Context, logger *slog.Logger, err error) error {
	s.setError(err)
	if recordErr := s.state.RecordBackup(ctx, s.now(), "error: "+err.Error()); recordErr != nil {
		logger.Debug("failed to record backup error", logging.Error(recordErr))
	}
	if notifyErr := s.notifier.NotifyBackupFailed(ctx, err); notifyErr != nil {
		logger.Debug("failure notification failed", logging.Error(notifyErr))
	}
	return fmt.Errorf("backup run: %w", err)
}
