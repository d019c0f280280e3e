package restore_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mvonrenteln/FlowScribe-sub003/internal/manifest"
	"github.com/mvonrenteln/FlowScribe-sub003/internal/provider"
	"github.com/mvonrenteln/FlowScribe-sub003/internal/restore"
	"github.com/mvonrenteln/FlowScribe-sub003/internal/snapshot"
	"github.com/mvonrenteln/FlowScribe-sub003/internal/testsupport"
)

func writeSnapshot(t *testing.T, prov *testsupport.FakeProvider, m manifest.Manifest, sessionKey, label string, id uint64, createdAt time.Time, data string) manifest.Manifest {
	t.Helper()
	hash := manifest.HashSessionKey(sessionKey)
	if sessionKey == manifest.GlobalSessionKey {
		hash = manifest.GlobalSessionKey
	}
	blob, info, err := snapshot.Encode(snapshot.Payload{
		SessionKeyHash: hash,
		SessionLabel:   label,
		CreatedAt:      createdAt,
		Reason:         manifest.ReasonAuto,
		Data:           json.RawMessage(data),
	}, "2.1.0-test")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	path := provider.SnapshotPath(hash, id, manifest.ReasonAuto)
	if err := prov.WriteSnapshot(context.Background(), path, blob); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}
	m = manifest.Append(m, manifest.Entry{
		Filename:       path,
		SessionKeyHash: hash,
		SessionLabel:   label,
		CreatedAt:      createdAt,
		Reason:         manifest.ReasonAuto,
		AppVersion:     info.AppVersion,
		SchemaVersion:  info.SchemaVersion,
		CompressedSize: info.CompressedSize,
		Checksum:       info.Checksum,
	})
	if err := prov.WriteManifest(context.Background(), m); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return m
}

func TestListGroupsBySession(t *testing.T) {
	prov := testsupport.NewFakeProvider()
	svc := restore.NewService(prov, nil, nil)
	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	m := manifest.New()
	m = writeSnapshot(t, prov, m, "alpha", "Alpha old", 1, base, `{"v":1}`)
	m = writeSnapshot(t, prov, m, "alpha", "Alpha new", 2, base.Add(time.Hour), `{"v":2}`)
	m = writeSnapshot(t, prov, m, "beta", "Beta", 3, base.Add(2*time.Hour), `{"v":3}`)
	writeSnapshot(t, prov, m, manifest.GlobalSessionKey, "Application state", 4, base.Add(3*time.Hour), `{"g":1}`)

	listing, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(listing.Sessions) != 2 {
		t.Fatalf("expected 2 session groups, got %d", len(listing.Sessions))
	}
	// Beta has the newest snapshot, so it sorts first.
	if listing.Sessions[0].SessionLabel != "Beta" {
		t.Fatalf("expected Beta first, got %q", listing.Sessions[0].SessionLabel)
	}
	alpha := listing.Sessions[1]
	if len(alpha.Snapshots) != 2 {
		t.Fatalf("expected 2 alpha snapshots, got %d", len(alpha.Snapshots))
	}
	// The group label comes from the newest snapshot.
	if alpha.SessionLabel != "Alpha new" {
		t.Fatalf("group label = %q", alpha.SessionLabel)
	}
	if !alpha.Snapshots[0].CreatedAt.After(alpha.Snapshots[1].CreatedAt) {
		t.Fatal("snapshots within group must be newest first")
	}
	if len(listing.Global) != 1 {
		t.Fatalf("expected 1 global snapshot, got %d", len(listing.Global))
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	prov := testsupport.NewFakeProvider()
	svc := restore.NewService(prov, nil, nil)
	createdAt := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	m := writeSnapshot(t, prov, manifest.New(), "alpha", "Alpha", 1, createdAt, `{"document":{"text":"hello"}}`)

	payload, entry, err := svc.Restore(context.Background(), m.Snapshots[0].Filename)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if entry.Filename != m.Snapshots[0].Filename {
		t.Fatalf("entry mismatch: %s", entry.Filename)
	}
	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(payload.Data, &decoded); err != nil {
		t.Fatalf("payload data invalid: %v", err)
	}
	if _, ok := decoded["document"]; !ok {
		t.Fatal("restored payload lost its document")
	}
}

func TestRestoreRejectsCorruptSnapshot(t *testing.T) {
	prov := testsupport.NewFakeProvider()
	svc := restore.NewService(prov, nil, nil)
	createdAt := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	m := writeSnapshot(t, prov, manifest.New(), "alpha", "Alpha", 1, createdAt, `{"x":1}`)
	filename := m.Snapshots[0].Filename

	// Flip one byte in the stored blob.
	blob := prov.Files()[filename]
	blob[len(blob)/2] ^= 0xff
	if err := prov.WriteSnapshot(context.Background(), filename, blob); err != nil {
		t.Fatalf("corrupt write: %v", err)
	}

	_, _, err := svc.Restore(context.Background(), filename)
	if !errors.Is(err, snapshot.ErrChecksumMismatch) {
		t.Fatalf("expected checksum mismatch, got %v", err)
	}
}

func TestRestoreUnknownFilename(t *testing.T) {
	prov := testsupport.NewFakeProvider()
	svc := restore.NewService(prov, nil, nil)

	_, _, err := svc.Restore(context.Background(), "sessions/none/0000000000000001_auto.fsz")
	if !errors.Is(err, restore.ErrSnapshotNotFound) {
		t.Fatalf("expected ErrSnapshotNotFound, got %v", err)
	}
}

func TestRestoreUnsupportedProvider(t *testing.T) {
	prov := testsupport.NewFakeProvider()
	prov.Restorable = false
	svc := restore.NewService(prov, nil, nil)

	if _, err := svc.List(context.Background()); !errors.Is(err, restore.ErrRestoreUnsupported) {
		t.Fatalf("expected ErrRestoreUnsupported from List, got %v", err)
	}
	if _, _, err := svc.Restore(context.Background(), "x"); !errors.Is(err, restore.ErrRestoreUnsupported) {
		t.Fatalf("expected ErrRestoreUnsupported from Restore, got %v", err)
	}
}

func TestRestoreFileAdHoc(t *testing.T) {
	svc := restore.NewService(testsupport.NewFakeProvider(), nil, nil)

	blob, _, err := snapshot.Encode(snapshot.Payload{
		SessionKeyHash: manifest.HashSessionKey("alpha"),
		SessionLabel:   "Alpha",
		CreatedAt:      time.Now(),
		Reason:         manifest.ReasonManual,
		Data:           json.RawMessage(`{"x":1}`),
	}, "2.1.0-test")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	path := filepath.Join(t.TempDir(), "exported.fsz")
	if err := os.WriteFile(path, blob, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	payload, header, err := svc.RestoreFile(path)
	if err != nil {
		t.Fatalf("RestoreFile: %v", err)
	}
	if header.SessionLabel != "Alpha" {
		t.Fatalf("header label = %q", header.SessionLabel)
	}
	if len(payload.Data) == 0 {
		t.Fatal("empty payload data")
	}
}

func TestRestoreFileRejectsGarbage(t *testing.T) {
	svc := restore.NewService(testsupport.NewFakeProvider(), nil, nil)
	path := filepath.Join(t.TempDir(), "junk.fsz")
	if err := os.WriteFile(path, []byte("not a snapshot"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, _, err := svc.RestoreFile(path); err == nil {
		t.Fatal("expected decode failure")
	}
}

// seedDirectoryRoot builds a real on-disk backup root with one verified
// snapshot and returns its manifest filename.
func seedDirectoryRoot(t *testing.T, root string) string {
	t.Helper()
	ctx := context.Background()
	dir := provider.NewDirectory(root)

	blob, info, err := snapshot.Encode(snapshot.Payload{
		SessionKeyHash: manifest.HashSessionKey("alpha"),
		SessionLabel:   "Alpha",
		CreatedAt:      time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC),
		Reason:         manifest.ReasonManual,
		Data:           json.RawMessage(`{"document":{"text":"hello"}}`),
	}, "2.1.0-test")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	path := provider.SnapshotPath(manifest.HashSessionKey("alpha"), 1, manifest.ReasonManual)
	if err := dir.WriteSnapshot(ctx, path, blob); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}
	m := manifest.Append(manifest.New(), manifest.Entry{
		Filename:       path,
		SessionKeyHash: manifest.HashSessionKey("alpha"),
		SessionLabel:   "Alpha",
		CreatedAt:      time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC),
		Reason:         manifest.ReasonManual,
		AppVersion:     info.AppVersion,
		SchemaVersion:  info.SchemaVersion,
		CompressedSize: info.CompressedSize,
		Checksum:       info.Checksum,
	})
	if err := dir.WriteManifest(ctx, m); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return path
}

func TestFromRootRestoresWithManifestAuthority(t *testing.T) {
	root := t.TempDir()
	filename := seedDirectoryRoot(t, root)
	ctx := context.Background()

	svc := restore.FromRoot(root, nil)

	listing, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(listing.Sessions) != 1 || len(listing.Sessions[0].Snapshots) != 1 {
		t.Fatalf("unexpected listing: %+v", listing)
	}

	payload, entry, err := svc.Restore(ctx, filename)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if entry.Filename != filename {
		t.Fatalf("entry filename = %q", entry.Filename)
	}
	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(payload.Data, &decoded); err != nil {
		t.Fatalf("payload data invalid: %v", err)
	}
	if _, ok := decoded["document"]; !ok {
		t.Fatal("restored payload lost its document")
	}
}

func TestFromRootRejectsCorruptSnapshot(t *testing.T) {
	root := t.TempDir()
	filename := seedDirectoryRoot(t, root)

	full := filepath.Join(root, filepath.FromSlash(filename))
	blob, err := os.ReadFile(full)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	blob[len(blob)/2] ^= 0xff
	if err := os.WriteFile(full, blob, 0o644); err != nil {
		t.Fatalf("corrupt snapshot: %v", err)
	}

	svc := restore.FromRoot(root, nil)
	_, _, err = svc.Restore(context.Background(), filename)
	if !errors.Is(err, snapshot.ErrChecksumMismatch) {
		t.Fatalf("expected checksum mismatch, got %v", err)
	}
}

func TestAdoptRequiresManifest(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	svc := restore.NewService(testsupport.NewFakeProvider(), store, nil)

	if _, err := svc.Adopt(context.Background(), t.TempDir()); !errors.Is(err, restore.ErrNoManifest) {
		t.Fatalf("expected ErrNoManifest, got %v", err)
	}
}

func TestAdoptRecordsRoot(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	svc := restore.NewService(testsupport.NewFakeProvider(), store, nil)
	ctx := context.Background()

	root := t.TempDir()
	dir := provider.NewDirectory(root)
	m := manifest.Append(manifest.New(), manifest.Entry{
		Filename:       "sessions/abcd/0000000000000001_auto.fsz",
		SessionKeyHash: "abcd",
		CreatedAt:      time.Now().UTC(),
		Reason:         manifest.ReasonAuto,
	})
	if err := dir.WriteManifest(ctx, m); err != nil {
		t.Fatalf("seed manifest: %v", err)
	}

	adopted, err := svc.Adopt(ctx, root)
	if err != nil {
		t.Fatalf("Adopt: %v", err)
	}
	if len(adopted.Snapshots) != 1 {
		t.Fatalf("expected adopted manifest with 1 entry, got %d", len(adopted.Snapshots))
	}
	recorded, err := store.AdoptedRoot(ctx)
	if err != nil {
		t.Fatalf("AdoptedRoot: %v", err)
	}
	if recorded != root {
		t.Fatalf("adopted root = %q, want %q", recorded, root)
	}
}
