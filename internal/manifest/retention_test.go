package manifest_test

import (
	"testing"
	"time"

	"github.com/mvonrenteln/FlowScribe-sub003/internal/manifest"
)

func TestPruneCapsEveryBucket(t *testing.T) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	m := manifest.New()
	for session, count := range map[string]int{"aaa": 5, "bbb": 2} {
		for i := 0; i < count; i++ {
			m = manifest.Append(m, entryAt(session, i, base.Add(time.Duration(i)*time.Minute)))
		}
	}
	for i := 0; i < 4; i++ {
		m = manifest.Append(m, entryAt(manifest.GlobalSessionKey, i, base.Add(time.Duration(i)*time.Minute)))
	}

	pruned, evicted := manifest.Prune(m, manifest.PruneConfig{MaxSnapshotsPerSession: 3, MaxGlobalSnapshots: 2})

	buckets := pruned.Buckets()
	if len(buckets["aaa"]) != 3 {
		t.Fatalf("expected session aaa capped at 3, got %d", len(buckets["aaa"]))
	}
	if len(buckets["bbb"]) != 2 {
		t.Fatalf("expected session bbb untouched at 2, got %d", len(buckets["bbb"]))
	}
	if len(pruned.GlobalSnapshots) != 2 {
		t.Fatalf("expected global capped at 2, got %d", len(pruned.GlobalSnapshots))
	}

	total := len(pruned.Snapshots) + len(pruned.GlobalSnapshots) + len(evicted)
	if want := len(m.Snapshots) + len(m.GlobalSnapshots); total != want {
		t.Fatalf("kept+evicted=%d does not cover original %d", total, want)
	}
}

func TestPruneKeepsNewestEntries(t *testing.T) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	m := manifest.New()
	// Out-of-order appends with a duplicated timestamp.
	m = manifest.Append(m, entryAt("aaa", 2, base.Add(2*time.Minute)))
	m = manifest.Append(m, entryAt("aaa", 1, base.Add(time.Minute)))
	m = manifest.Append(m, entryAt("aaa", 4, base.Add(3*time.Minute)))
	m = manifest.Append(m, entryAt("aaa", 3, base.Add(3*time.Minute)))

	pruned, evicted := manifest.Prune(m, manifest.PruneConfig{MaxSnapshotsPerSession: 2, MaxGlobalSnapshots: 1})

	kept := pruned.Buckets()["aaa"]
	if len(kept) != 2 || len(evicted) != 2 {
		t.Fatalf("expected 2 kept + 2 evicted, got %d + %d", len(kept), len(evicted))
	}
	// Newest timestamp is duplicated; the larger filename (seq 4) wins first.
	if kept[0].Filename != entryAt("aaa", 4, base).Filename {
		t.Fatalf("expected seq 4 kept first, got %s", kept[0].Filename)
	}
	if kept[1].Filename != entryAt("aaa", 3, base).Filename {
		t.Fatalf("expected seq 3 kept second, got %s", kept[1].Filename)
	}
}

// The documented example: cap 2, createdAt [1,2,3] keeps [3,2], evicts [1].
func TestPruneConcreteExample(t *testing.T) {
	base := time.Unix(0, 0).UTC()
	m := manifest.New()
	for i := 1; i <= 3; i++ {
		m = manifest.Append(m, entryAt("aaa", i, base.Add(time.Duration(i)*time.Second)))
	}

	pruned, evicted := manifest.Prune(m, manifest.PruneConfig{MaxSnapshotsPerSession: 2, MaxGlobalSnapshots: 1})

	kept := pruned.Buckets()["aaa"]
	if len(kept) != 2 {
		t.Fatalf("expected 2 kept, got %d", len(kept))
	}
	if !kept[0].CreatedAt.Equal(base.Add(3*time.Second)) || !kept[1].CreatedAt.Equal(base.Add(2*time.Second)) {
		t.Fatalf("expected kept [3,2], got [%v,%v]", kept[0].CreatedAt, kept[1].CreatedAt)
	}
	if len(evicted) != 1 || !evicted[0].CreatedAt.Equal(base.Add(time.Second)) {
		t.Fatalf("expected evicted [1], got %v", evicted)
	}
}

func TestPruneEmptyManifest(t *testing.T) {
	pruned, evicted := manifest.Prune(manifest.New(), manifest.PruneConfig{MaxSnapshotsPerSession: 2, MaxGlobalSnapshots: 2})
	if len(pruned.Snapshots) != 0 || len(pruned.GlobalSnapshots) != 0 || len(evicted) != 0 {
		t.Fatalf("expected empty result, got %+v / %v", pruned, evicted)
	}
	if pruned.ManifestVersion != manifest.Version {
		t.Fatalf("expected manifest version %d, got %d", manifest.Version, pruned.ManifestVersion)
	}
}
