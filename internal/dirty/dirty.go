// Package dirty implements the unsaved-changes guard. A session is armed
// when it accumulates edits, disarmed when those edits are safely persisted,
// and any marker still present at startup means the previous run ended with
// work at risk. The marker is durable so a crash cannot erase the evidence.
package dirty

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mvonrenteln/FlowScribe-sub003/internal/appstate"
	"github.com/mvonrenteln/FlowScribe-sub003/internal/logging"
	"github.com/mvonrenteln/FlowScribe-sub003/internal/manifest"
)

// Hint classifies what recovery can offer for one dirty session.
type Hint string

const (
	// HintBackupAvailable means a snapshot of the session exists and can be
	// restored.
	HintBackupAvailable Hint = "backup-available"
	// HintPermissionNeeded means snapshots may exist but the backup root is
	// currently inaccessible; the user must reauthorize first.
	HintPermissionNeeded Hint = "permission-needed"
	// HintNoBackup means no snapshot of the session exists anywhere we can
	// see. The marker still matters: the user should know work was lost.
	HintNoBackup Hint = "no-backup"
)

// Recovery describes one dirty session found at startup together with what
// can be done about it.
type Recovery struct {
	SessionKeyHash string
	SessionLabel   string
	MarkedAt       time.Time
	Hint           Hint
}

// Guard arms and disarms durable dirty markers around session lifecycles.
type Guard struct {
	store  *appstate.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewGuard builds a guard over the given state store.
func NewGuard(store *appstate.Store, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Guard{
		store:  store,
		logger: logging.NewComponentLogger(logger, "dirty"),
		now:    time.Now,
	}
}

// Arm records that the session has unsaved changes. Arming is idempotent;
// repeated calls refresh the label and timestamp.
func (g *Guard) Arm(ctx context.Context, sessionKey, sessionLabel string) error {
	hash := manifest.HashSessionKey(sessionKey)
	if err := g.store.MarkDirty(ctx, hash, sessionLabel, g.now()); err != nil {
		return fmt.Errorf("arm dirty marker: %w", err)
	}
	g.logger.Debug("dirty marker armed",
		logging.String(logging.FieldSessionKey, hash),
		logging.String(logging.FieldEventType, "dirty_armed"))
	return nil
}

// Disarm clears the marker after the session's changes were persisted. Only
// a successful backup or an explicit user dismissal may call this.
func (g *Guard) Disarm(ctx context.Context, sessionKey string) error {
	return g.DisarmHash(ctx, manifest.HashSessionKey(sessionKey))
}

// DisarmHash clears the marker by its already-hashed key.
func (g *Guard) DisarmHash(ctx context.Context, sessionKeyHash string) error {
	if err := g.store.ClearDirty(ctx, sessionKeyHash); err != nil {
		return fmt.Errorf("disarm dirty marker: %w", err)
	}
	g.logger.Debug("dirty marker cleared",
		logging.String(logging.FieldSessionKey, sessionKeyHash),
		logging.String(logging.FieldEventType, "dirty_cleared"))
	return nil
}

// Dismiss clears a marker because the user chose to discard the recovery
// offer. Dismissing an unknown session is not an error.
func (g *Guard) Dismiss(ctx context.Context, sessionKeyHash string) error {
	return g.DisarmHash(ctx, sessionKeyHash)
}

// Pending returns the recovery offers for every dirty marker. The manifest
// decides backup-available versus no-backup; a false accessible flag
// overrides both, since nothing can be read until the root is reauthorized.
func (g *Guard) Pending(ctx context.Context, m manifest.Manifest, accessible bool) ([]Recovery, error) {
	sessions, err := g.store.DirtySessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list dirty sessions: %w", err)
	}
	if len(sessions) == 0 {
		return nil, nil
	}

	buckets := m.Buckets()
	recoveries := make([]Recovery, 0, len(sessions))
	for _, session := range sessions {
		recovery := Recovery{
			SessionKeyHash: session.SessionKeyHash,
			SessionLabel:   session.SessionLabel,
			MarkedAt:       session.MarkedAt,
		}
		switch {
		case !accessible:
			recovery.Hint = HintPermissionNeeded
		case len(buckets[session.SessionKeyHash]) > 0:
			recovery.Hint = HintBackupAvailable
		default:
			recovery.Hint = HintNoBackup
		}
		recoveries = append(recoveries, recovery)
	}
	return recoveries, nil
}
