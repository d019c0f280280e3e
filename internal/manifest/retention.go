package manifest

// PruneConfig carries the retention caps applied during pruning.
type PruneConfig struct {
	MaxSnapshotsPerSession int
	MaxGlobalSnapshots     int
}

// Prune applies retention caps to every session bucket and the global bucket.
// Kept entries are always the newest ones; everything beyond a cap is
// returned as evicted so the caller can delete the files after the pruned
// manifest has been durably persisted. The union of kept and evicted entries
// always equals the input.
func Prune(m Manifest, cfg PruneConfig) (Manifest, []Entry) {
	perSession := cfg.MaxSnapshotsPerSession
	if perSession < 1 {
		perSession = 1
	}
	global := cfg.MaxGlobalSnapshots
	if global < 1 {
		global = 1
	}

	out := Manifest{ManifestVersion: m.ManifestVersion}
	if out.ManifestVersion == 0 {
		out.ManifestVersion = Version
	}

	var evicted []Entry

	counts := make(map[string]int)
	for _, entry := range sortedCopy(m.Snapshots) {
		if counts[entry.SessionKeyHash] < perSession {
			out.Snapshots = append(out.Snapshots, entry)
			counts[entry.SessionKeyHash]++
		} else {
			evicted = append(evicted, entry)
		}
	}

	for i, entry := range sortedCopy(m.GlobalSnapshots) {
		if i < global {
			out.GlobalSnapshots = append(out.GlobalSnapshots, entry)
		} else {
			evicted = append(evicted, entry)
		}
	}

	return out, evicted
}

func sortedCopy(entries []Entry) []Entry {
	cp := append([]Entry(nil), entries...)
	sortNewestFirst(cp)
	return cp
}
