package appstate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Keys for single-valued settings in app_settings.
const (
	keyAdoptedRoot      = "adopted_root"
	keyLastBackupAt     = "last_backup_at"
	keyLastBackupStatus = "last_backup_status"
)

// DirtySession is a durable marker for a session that was unloaded (or may
// have been) with unsaved changes. It exists so the next startup can offer
// recovery even after a crash.
type DirtySession struct {
	SessionKeyHash string
	SessionLabel   string
	MarkedAt       time.Time
}

// NextSnapshotID returns the next value of the monotonic snapshot counter
// and advances it. The counter never repeats a value, even across restarts,
// so snapshot filenames stay unique and lexicographically ordered.
func (s *Store) NextSnapshotID(ctx context.Context) (uint64, error) {
	ctx = ensureContext(ctx)
	var id uint64
	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin counter tx: %w", err)
		}
		defer func() {
			_ = tx.Rollback()
		}()
		row := tx.QueryRowContext(ctx, "SELECT next_id FROM snapshot_counter WHERE id = 1")
		if err := row.Scan(&id); err != nil {
			return fmt.Errorf("read snapshot counter: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "UPDATE snapshot_counter SET next_id = next_id + 1 WHERE id = 1"); err != nil {
			return fmt.Errorf("advance snapshot counter: %w", err)
		}
		return tx.Commit()
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// MarkDirty records a durable dirty marker for the session. Marking an
// already-dirty session refreshes its label and timestamp.
func (s *Store) MarkDirty(ctx context.Context, sessionKeyHash, sessionLabel string, at time.Time) error {
	if sessionKeyHash == "" {
		return errors.New("mark dirty: empty session key hash")
	}
	return s.execWithRetry(ctx,
		`INSERT INTO dirty_sessions (session_key_hash, session_label, marked_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(session_key_hash) DO UPDATE SET
		   session_label = excluded.session_label,
		   marked_at = excluded.marked_at`,
		sessionKeyHash, sessionLabel, at.UTC().Format(time.RFC3339Nano))
}

// ClearDirty removes the dirty marker for one session. Clearing a session
// that is not dirty is not an error.
func (s *Store) ClearDirty(ctx context.Context, sessionKeyHash string) error {
	return s.execWithRetry(ctx,
		"DELETE FROM dirty_sessions WHERE session_key_hash = ?", sessionKeyHash)
}

// ClearAllDirty removes every dirty marker.
func (s *Store) ClearAllDirty(ctx context.Context) error {
	return s.execWithRetry(ctx, "DELETE FROM dirty_sessions")
}

// DirtySessions returns all dirty markers, oldest first.
func (s *Store) DirtySessions(ctx context.Context) ([]DirtySession, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		"SELECT session_key_hash, session_label, marked_at FROM dirty_sessions ORDER BY marked_at ASC")
	if err != nil {
		return nil, fmt.Errorf("query dirty sessions: %w", err)
	}
	defer rows.Close()

	var sessions []DirtySession
	for rows.Next() {
		var (
			session  DirtySession
			markedAt string
		)
		if err := rows.Scan(&session.SessionKeyHash, &session.SessionLabel, &markedAt); err != nil {
			return nil, fmt.Errorf("scan dirty session: %w", err)
		}
		parsed, err := time.Parse(time.RFC3339Nano, markedAt)
		if err != nil {
			return nil, fmt.Errorf("parse marked_at %q: %w", markedAt, err)
		}
		session.MarkedAt = parsed
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// IsDirty reports whether a dirty marker exists for the session.
func (s *Store) IsDirty(ctx context.Context, sessionKeyHash string) (bool, error) {
	ctx = ensureContext(ctx)
	var count int
	row := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM dirty_sessions WHERE session_key_hash = ?", sessionKeyHash)
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("check dirty marker: %w", err)
	}
	return count > 0, nil
}

// SetAdoptedRoot records the backup root the user has adopted. An empty
// path clears the adoption.
func (s *Store) SetAdoptedRoot(ctx context.Context, path string) error {
	if path == "" {
		return s.deleteSetting(ctx, keyAdoptedRoot)
	}
	return s.setSetting(ctx, keyAdoptedRoot, path)
}

// AdoptedRoot returns the adopted backup root, or "" when none is recorded.
func (s *Store) AdoptedRoot(ctx context.Context) (string, error) {
	return s.getSetting(ctx, keyAdoptedRoot)
}

// RecordBackup stores the time and outcome of the most recent backup run.
func (s *Store) RecordBackup(ctx context.Context, at time.Time, status string) error {
	if err := s.setSetting(ctx, keyLastBackupAt, at.UTC().Format(time.RFC3339Nano)); err != nil {
		return err
	}
	return s.setSetting(ctx, keyLastBackupStatus, status)
}

// LastBackup returns the recorded time and outcome of the most recent backup
// run. A zero time means no backup has been recorded.
func (s *Store) LastBackup(ctx context.Context) (time.Time, string, error) {
	raw, err := s.getSetting(ctx, keyLastBackupAt)
	if err != nil {
		return time.Time{}, "", err
	}
	status, err := s.getSetting(ctx, keyLastBackupStatus)
	if err != nil {
		return time.Time{}, "", err
	}
	if raw == "" {
		return time.Time{}, status, nil
	}
	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("parse last backup time %q: %w", raw, err)
	}
	return at, status, nil
}

func (s *Store) setSetting(ctx context.Context, key, value string) error {
	return s.execWithRetry(ctx,
		`INSERT INTO app_settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
}

func (s *Store) getSetting(ctx context.Context, key string) (string, error) {
	ctx = ensureContext(ctx)
	var value string
	row := s.db.QueryRowContext(ctx, "SELECT value FROM app_settings WHERE key = ?", key)
	err := row.Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read setting %q: %w", key, err)
	}
	return value, nil
}

func (s *Store) deleteSetting(ctx context.Context, key string) error {
	return s.execWithRetry(ctx, "DELETE FROM app_settings WHERE key = ?", key)
}
