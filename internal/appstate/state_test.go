package appstate_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/mvonrenteln/FlowScribe-sub003/internal/appstate"
)

func newStore(t *testing.T) *appstate.Store {
	t.Helper()
	store, err := appstate.OpenPath(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return store
}

func TestNextSnapshotIDMonotonic(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	var prev uint64
	for i := 0; i < 5; i++ {
		id, err := store.NextSnapshotID(ctx)
		if err != nil {
			t.Fatalf("NextSnapshotID: %v", err)
		}
		if id <= prev {
			t.Fatalf("counter not monotonic: %d after %d", id, prev)
		}
		prev = id
	}
}

func TestNextSnapshotIDSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	store, err := appstate.OpenPath(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	first, err := store.NextSnapshotID(ctx)
	if err != nil {
		t.Fatalf("NextSnapshotID: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	reopened, err := appstate.OpenPath(path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer reopened.Close()
	second, err := reopened.NextSnapshotID(ctx)
	if err != nil {
		t.Fatalf("NextSnapshotID after reopen: %v", err)
	}
	if second <= first {
		t.Fatalf("counter repeated across reopen: %d then %d", first, second)
	}
}

func TestDirtyMarkerLifecycle(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	markedAt := time.Date(2026, 5, 1, 10, 30, 0, 0, time.UTC)

	if err := store.MarkDirty(ctx, "aaaa", "Monday interview", markedAt); err != nil {
		t.Fatalf("MarkDirty: %v", err)
	}
	dirty, err := store.IsDirty(ctx, "aaaa")
	if err != nil {
		t.Fatalf("IsDirty: %v", err)
	}
	if !dirty {
		t.Fatal("expected session to be dirty")
	}

	// Re-marking refreshes rather than duplicates.
	if err := store.MarkDirty(ctx, "aaaa", "Monday interview (edited)", markedAt.Add(time.Minute)); err != nil {
		t.Fatalf("MarkDirty refresh: %v", err)
	}
	sessions, err := store.DirtySessions(ctx)
	if err != nil {
		t.Fatalf("DirtySessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected one dirty session, got %d", len(sessions))
	}
	if sessions[0].SessionLabel != "Monday interview (edited)" {
		t.Fatalf("label not refreshed: %q", sessions[0].SessionLabel)
	}
	if !sessions[0].MarkedAt.Equal(markedAt.Add(time.Minute)) {
		t.Fatalf("marked_at not refreshed: %v", sessions[0].MarkedAt)
	}

	if err := store.ClearDirty(ctx, "aaaa"); err != nil {
		t.Fatalf("ClearDirty: %v", err)
	}
	dirty, err = store.IsDirty(ctx, "aaaa")
	if err != nil {
		t.Fatalf("IsDirty after clear: %v", err)
	}
	if dirty {
		t.Fatal("expected marker to be cleared")
	}

	// Clearing an absent marker is fine.
	if err := store.ClearDirty(ctx, "missing"); err != nil {
		t.Fatalf("ClearDirty missing: %v", err)
	}
}

func TestDirtySessionsOrderedOldestFirst(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

	if err := store.MarkDirty(ctx, "later", "", base.Add(time.Hour)); err != nil {
		t.Fatalf("MarkDirty: %v", err)
	}
	if err := store.MarkDirty(ctx, "earlier", "", base); err != nil {
		t.Fatalf("MarkDirty: %v", err)
	}

	sessions, err := store.DirtySessions(ctx)
	if err != nil {
		t.Fatalf("DirtySessions: %v", err)
	}
	if len(sessions) != 2 || sessions[0].SessionKeyHash != "earlier" {
		t.Fatalf("expected oldest-first ordering, got %+v", sessions)
	}
}

func TestAdoptedRoot(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	root, err := store.AdoptedRoot(ctx)
	if err != nil {
		t.Fatalf("AdoptedRoot: %v", err)
	}
	if root != "" {
		t.Fatalf("expected no adopted root initially, got %q", root)
	}

	if err := store.SetAdoptedRoot(ctx, "/srv/backups"); err != nil {
		t.Fatalf("SetAdoptedRoot: %v", err)
	}
	root, err = store.AdoptedRoot(ctx)
	if err != nil {
		t.Fatalf("AdoptedRoot: %v", err)
	}
	if root != "/srv/backups" {
		t.Fatalf("expected adopted root, got %q", root)
	}

	if err := store.SetAdoptedRoot(ctx, ""); err != nil {
		t.Fatalf("clear adopted root: %v", err)
	}
	root, err = store.AdoptedRoot(ctx)
	if err != nil {
		t.Fatalf("AdoptedRoot after clear: %v", err)
	}
	if root != "" {
		t.Fatalf("expected cleared root, got %q", root)
	}
}

func TestLastBackupBookkeeping(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	at, status, err := store.LastBackup(ctx)
	if err != nil {
		t.Fatalf("LastBackup: %v", err)
	}
	if !at.IsZero() || status != "" {
		t.Fatalf("expected empty bookkeeping, got %v %q", at, status)
	}

	when := time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)
	if err := store.RecordBackup(ctx, when, "ok"); err != nil {
		t.Fatalf("RecordBackup: %v", err)
	}
	at, status, err = store.LastBackup(ctx)
	if err != nil {
		t.Fatalf("LastBackup: %v", err)
	}
	if !at.Equal(when) || status != "ok" {
		t.Fatalf("bookkeeping mismatch: %v %q", at, status)
	}
}
