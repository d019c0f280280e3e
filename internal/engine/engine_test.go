package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mvonrenteln/FlowScribe-sub003/internal/config"
	"github.com/mvonrenteln/FlowScribe-sub003/internal/dirty"
	"github.com/mvonrenteln/FlowScribe-sub003/internal/engine"
	"github.com/mvonrenteln/FlowScribe-sub003/internal/manifest"
	"github.com/mvonrenteln/FlowScribe-sub003/internal/provider"
	"github.com/mvonrenteln/FlowScribe-sub003/internal/restore"
	"github.com/mvonrenteln/FlowScribe-sub003/internal/snapshot"
	"github.com/mvonrenteln/FlowScribe-sub003/internal/testsupport"
)

func newEngine(t *testing.T, cfg *config.Config) (*engine.Engine, *testsupport.RecordingNotifier) {
	t.Helper()
	notifier := &testsupport.RecordingNotifier{}
	eng, err := engine.New(cfg, nil, engine.Options{
		AppVersion: "2.1.0-test",
		Notifier:   notifier,
	})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	t.Cleanup(func() { eng.Close() })
	return eng, notifier
}

func startEngine(t *testing.T, eng *engine.Engine) {
	t.Helper()
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("engine.Start: %v", err)
	}
	t.Cleanup(eng.Stop)
}

func TestEngineBackupEndToEnd(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithGlobalState(true))
	testsupport.WriteSessionDoc(t, cfg, "interview-01", "Monday interview", json.RawMessage(`{"text":"hello"}`))
	testsupport.WriteGlobalDoc(t, cfg, json.RawMessage(`{"glossary":["term"]}`))

	eng, notifier := newEngine(t, cfg)
	startEngine(t, eng)
	ctx := context.Background()

	result, err := eng.BackupNow(ctx, "manual")
	if err != nil {
		t.Fatalf("BackupNow: %v", err)
	}
	if result.Sessions != 1 || !result.GlobalIncluded {
		t.Fatalf("unexpected run result: %+v", result)
	}

	if _, err := os.Stat(filepath.Join(cfg.Backup.Location, manifest.Filename)); err != nil {
		t.Fatalf("manifest not written at root: %v", err)
	}

	listing, err := eng.ListSnapshots(ctx)
	if err != nil {
		t.Fatalf("ListSnapshots: %v", err)
	}
	if len(listing.Sessions) != 1 || len(listing.Global) != 1 {
		t.Fatalf("unexpected listing: %d sessions, %d global", len(listing.Sessions), len(listing.Global))
	}

	entry := listing.Sessions[0].Snapshots[0]
	payload, restored, err := eng.Restore(ctx, entry.Filename)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if restored.SessionLabel != "Monday interview" {
		t.Fatalf("restored label = %q", restored.SessionLabel)
	}
	var doc struct {
		Document json.RawMessage `json:"document"`
	}
	if err := json.Unmarshal(payload.Data, &doc); err != nil {
		t.Fatalf("restored payload invalid: %v", err)
	}
	if len(doc.Document) == 0 {
		t.Fatal("restored payload lost the document")
	}

	events := notifier.Recorded()
	if len(events) == 0 || events[len(events)-1] != "backup_completed" {
		t.Fatalf("expected completion notification, got %v", events)
	}
}

func TestEngineSingleInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first, _ := newEngine(t, cfg)
	startEngine(t, first)

	second, _ := newEngine(t, cfg)
	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Fatal("expected second instance to be rejected")
	}
}

func TestEngineRecoveryStatusLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteSessionDoc(t, cfg, "draft", "Draft", json.RawMessage(`{"text":"wip"}`))

	eng, _ := newEngine(t, cfg)
	startEngine(t, eng)
	ctx := context.Background()

	if err := eng.MarkDirty(ctx, "draft", "Draft"); err != nil {
		t.Fatalf("MarkDirty: %v", err)
	}

	recoveries, err := eng.RecoveryStatus(ctx)
	if err != nil {
		t.Fatalf("RecoveryStatus: %v", err)
	}
	if len(recoveries) != 1 {
		t.Fatalf("expected one recovery, got %d", len(recoveries))
	}
	if recoveries[0].Hint != dirty.HintNoBackup {
		t.Fatalf("expected no-backup hint before any run, got %q", recoveries[0].Hint)
	}

	// A successful backup clears the marker.
	if _, err := eng.BackupNow(ctx, "manual"); err != nil {
		t.Fatalf("BackupNow: %v", err)
	}
	recoveries, err = eng.RecoveryStatus(ctx)
	if err != nil {
		t.Fatalf("RecoveryStatus: %v", err)
	}
	if len(recoveries) != 0 {
		t.Fatalf("expected no recoveries after backup, got %+v", recoveries)
	}
}

func TestEngineDismissDirty(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	eng, _ := newEngine(t, cfg)
	startEngine(t, eng)
	ctx := context.Background()

	if err := eng.MarkDirty(ctx, "scratch", ""); err != nil {
		t.Fatalf("MarkDirty: %v", err)
	}
	hash := manifest.HashSessionKey("scratch")
	if err := eng.DismissDirty(ctx, hash); err != nil {
		t.Fatalf("DismissDirty: %v", err)
	}
	recoveries, err := eng.RecoveryStatus(ctx)
	if err != nil {
		t.Fatalf("RecoveryStatus: %v", err)
	}
	if len(recoveries) != 0 {
		t.Fatalf("expected dismissed marker to be gone, got %+v", recoveries)
	}
}

func TestEngineAdoptRoot(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	eng, _ := newEngine(t, cfg)
	startEngine(t, eng)
	ctx := context.Background()

	// Seed a foreign backup root with one snapshot and a manifest.
	foreign := filepath.Join(t.TempDir(), "old-backups")
	dir := provider.NewDirectory(foreign)
	if _, err := dir.Enable(ctx); err != nil {
		t.Fatalf("enable foreign root: %v", err)
	}
	hash := manifest.HashSessionKey("legacy")
	blob, info, err := snapshot.Encode(snapshot.Payload{
		SessionKeyHash: hash,
		SessionLabel:   "Legacy session",
		CreatedAt:      time.Now().UTC(),
		Reason:         manifest.ReasonManual,
		Data:           json.RawMessage(`{"text":"old"}`),
	}, "2.0.0")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	path := provider.SnapshotPath(hash, 1, manifest.ReasonManual)
	if err := dir.WriteSnapshot(ctx, path, blob); err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}
	seeded := manifest.Append(manifest.New(), manifest.Entry{
		Filename:       path,
		SessionKeyHash: hash,
		SessionLabel:   "Legacy session",
		CreatedAt:      time.Now().UTC(),
		Reason:         manifest.ReasonManual,
		SchemaVersion:  info.SchemaVersion,
		CompressedSize: info.CompressedSize,
		Checksum:       info.Checksum,
	})
	if err := dir.WriteManifest(ctx, seeded); err != nil {
		t.Fatalf("seed manifest: %v", err)
	}

	adopted, err := eng.AdoptRoot(ctx, foreign)
	if err != nil {
		t.Fatalf("AdoptRoot: %v", err)
	}
	if len(adopted.Snapshots) != 1 {
		t.Fatalf("adopted manifest entries = %d", len(adopted.Snapshots))
	}

	status := eng.Status(ctx)
	if status.ProviderLabel != foreign {
		t.Fatalf("provider label = %q, want %q", status.ProviderLabel, foreign)
	}

	listing, err := eng.ListSnapshots(ctx)
	if err != nil {
		t.Fatalf("ListSnapshots after adopt: %v", err)
	}
	if len(listing.Sessions) != 1 || listing.Sessions[0].SessionLabel != "Legacy session" {
		t.Fatalf("unexpected adopted listing: %+v", listing.Sessions)
	}

	if _, _, err := eng.Restore(ctx, path); err != nil {
		t.Fatalf("restore from adopted root: %v", err)
	}
}

func TestEngineAdoptRejectsEmptyDir(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	eng, _ := newEngine(t, cfg)
	startEngine(t, eng)

	_, err := eng.AdoptRoot(context.Background(), t.TempDir())
	if err == nil {
		t.Fatal("expected adoption of an empty directory to fail")
	}
}

func TestEngineBackupNowUnknownReasonFallsBackToManual(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteSessionDoc(t, cfg, "s", "S", json.RawMessage(`{"x":1}`))
	eng, _ := newEngine(t, cfg)
	startEngine(t, eng)

	result, err := eng.BackupNow(context.Background(), "bogus")
	if err != nil {
		t.Fatalf("BackupNow: %v", err)
	}
	if result.Reason != manifest.ReasonManual {
		t.Fatalf("expected manual fallback, got %s", result.Reason)
	}
}

func TestEngineExportProviderListUnsupported(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithProvider(config.ProviderExport))
	eng, _ := newEngine(t, cfg)
	startEngine(t, eng)

	_, err := eng.ListSnapshots(context.Background())
	if !errors.Is(err, restore.ErrRestoreUnsupported) {
		t.Fatalf("expected ErrRestoreUnsupported, got %v", err)
	}
}
