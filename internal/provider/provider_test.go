package provider_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mvonrenteln/FlowScribe-sub003/internal/manifest"
	"github.com/mvonrenteln/FlowScribe-sub003/internal/provider"
)

func TestDirectoryEnableRequiresLocation(t *testing.T) {
	p := provider.NewDirectory("")
	if _, err := p.Enable(context.Background()); !errors.Is(err, provider.ErrCancelled) {
		t.Fatalf("expected ErrCancelled for empty root, got %v", err)
	}
}

func TestDirectoryEnableCreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "backups")
	p := provider.NewDirectory(root)

	label, err := p.Enable(context.Background())
	if err != nil {
		t.Fatalf("Enable failed: %v", err)
	}
	if label != root {
		t.Fatalf("expected label %q, got %q", root, label)
	}
	if !p.VerifyAccess(context.Background()) {
		t.Fatal("expected access to freshly created root")
	}
}

func TestDirectorySnapshotRoundTrip(t *testing.T) {
	p := provider.NewDirectory(t.TempDir())
	ctx := context.Background()

	path := provider.SnapshotPath("deadbeefdeadbeef", 42, manifest.ReasonAuto)
	blob := []byte("snapshot-bytes")
	if err := p.WriteSnapshot(ctx, path, blob); err != nil {
		t.Fatalf("WriteSnapshot failed: %v", err)
	}

	got, err := p.ReadSnapshot(ctx, path)
	if err != nil {
		t.Fatalf("ReadSnapshot failed: %v", err)
	}
	if string(got) != string(blob) {
		t.Fatalf("read back %q, want %q", got, blob)
	}
}

func TestDirectoryManifestAbsentIsEmpty(t *testing.T) {
	p := provider.NewDirectory(t.TempDir())

	m, err := p.ReadManifest(context.Background())
	if err != nil {
		t.Fatalf("ReadManifest failed: %v", err)
	}
	if len(m.Snapshots) != 0 || len(m.GlobalSnapshots) != 0 {
		t.Fatal("expected empty manifest when none exists")
	}
	if m.ManifestVersion != manifest.Version {
		t.Fatalf("expected manifest version %d, got %d", manifest.Version, m.ManifestVersion)
	}
}

func TestDirectoryManifestRoundTrip(t *testing.T) {
	p := provider.NewDirectory(t.TempDir())
	ctx := context.Background()

	m := manifest.Append(manifest.New(), manifest.Entry{
		Filename:       provider.SnapshotPath("cafe0123cafe0123", 7, manifest.ReasonManual),
		SessionKeyHash: "cafe0123cafe0123",
		CreatedAt:      time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		Reason:         manifest.ReasonManual,
		SchemaVersion:  2,
		Checksum:       "abc",
	})
	if err := p.WriteManifest(ctx, m); err != nil {
		t.Fatalf("WriteManifest failed: %v", err)
	}

	got, err := p.ReadManifest(ctx)
	if err != nil {
		t.Fatalf("ReadManifest failed: %v", err)
	}
	if len(got.Snapshots) != 1 || got.Snapshots[0].Checksum != "abc" {
		t.Fatalf("manifest did not survive round trip: %+v", got)
	}
}

func TestDirectoryRejectsEscapingPaths(t *testing.T) {
	p := provider.NewDirectory(t.TempDir())
	ctx := context.Background()

	for _, path := range []string{"/etc/passwd", "../outside.fsz", "sessions/../../x.fsz", ""} {
		if err := p.WriteSnapshot(ctx, path, []byte("x")); err == nil {
			t.Fatalf("expected rejection of path %q", path)
		}
		if _, err := p.ReadSnapshot(ctx, path); err == nil {
			t.Fatalf("expected read rejection of path %q", path)
		}
	}
}

func TestDirectoryDeleteSnapshotsBestEffort(t *testing.T) {
	p := provider.NewDirectory(t.TempDir())
	ctx := context.Background()

	existing := provider.SnapshotPath("feedfacefeedface", 1, manifest.ReasonAuto)
	if err := p.WriteSnapshot(ctx, existing, []byte("x")); err != nil {
		t.Fatalf("WriteSnapshot failed: %v", err)
	}
	missing := provider.SnapshotPath("feedfacefeedface", 2, manifest.ReasonAuto)
	bad := "../escape.fsz"

	failures := p.DeleteSnapshots(ctx, []string{existing, missing, bad})
	if len(failures) != 1 {
		t.Fatalf("expected one failure (escaping path), got %d: %v", len(failures), failures)
	}
	if failures[0].Path != bad {
		t.Fatalf("unexpected failing path %q", failures[0].Path)
	}
	if _, err := p.ReadSnapshot(ctx, existing); err == nil {
		t.Fatal("existing snapshot should have been deleted")
	}
}

func TestDirectoryVerifyAccessMissingRoot(t *testing.T) {
	p := provider.NewDirectory(filepath.Join(t.TempDir(), "never-created"))
	if p.VerifyAccess(context.Background()) {
		t.Fatal("expected no access to a missing root")
	}
}

func TestDirectoryClassifiesPermissionErrors(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("permission bits do not bind root")
	}
	root := t.TempDir()
	p := provider.NewDirectory(root)
	if err := os.Chmod(root, 0o555); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	t.Cleanup(func() { os.Chmod(root, 0o755) })

	err := p.WriteSnapshot(context.Background(), "sessions/a/0000000000000001_auto.fsz", []byte("x"))
	if !errors.Is(err, provider.ErrPermission) {
		t.Fatalf("expected ErrPermission, got %v", err)
	}
	if p.VerifyAccess(context.Background()) {
		t.Fatal("expected VerifyAccess to fail on read-only root")
	}
}

func TestExportWritesFlattenedFiles(t *testing.T) {
	dir := t.TempDir()
	p := provider.NewExport(dir)
	ctx := context.Background()

	path := provider.SnapshotPath("deadbeefdeadbeef", 3, manifest.ReasonCritical)
	if err := p.WriteSnapshot(ctx, path, []byte("blob")); err != nil {
		t.Fatalf("WriteSnapshot failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read export dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one exported file, got %d", len(entries))
	}
	name := entries[0].Name()
	if filepath.Ext(name) != ".fsz" {
		t.Fatalf("unexpected export name %q", name)
	}
	if filepath.Base(name) != name {
		t.Fatalf("export created nested path %q", name)
	}
}

func TestExportIsWriteOnly(t *testing.T) {
	p := provider.NewExport(t.TempDir())
	ctx := context.Background()

	if p.SupportsRestore() {
		t.Fatal("export provider must not claim restore support")
	}
	if _, err := p.ReadManifest(ctx); !errors.Is(err, provider.ErrNotSupported) {
		t.Fatalf("expected ErrNotSupported from ReadManifest, got %v", err)
	}
	if _, err := p.ReadSnapshot(ctx, "sessions/a/b.fsz"); !errors.Is(err, provider.ErrNotSupported) {
		t.Fatalf("expected ErrNotSupported from ReadSnapshot, got %v", err)
	}
	if err := p.WriteManifest(ctx, manifest.New()); err != nil {
		t.Fatalf("WriteManifest should be a silent no-op, got %v", err)
	}
	if failures := p.DeleteSnapshots(ctx, []string{"sessions/a/b.fsz"}); failures != nil {
		t.Fatalf("export delete should never report failures, got %v", failures)
	}
}

func TestSnapshotPathFormat(t *testing.T) {
	got := provider.SnapshotPath("0123456789abcdef", 12, manifest.ReasonManual)
	want := "sessions/0123456789abcdef/0000000000000012_manual.fsz"
	if got != want {
		t.Fatalf("SnapshotPath = %q, want %q", got, want)
	}
}
