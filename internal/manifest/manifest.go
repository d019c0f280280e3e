package manifest

import (
	"sort"
	"strings"
	"time"
)

// Version is the current manifest schema version.
const Version = 1

// Filename is the manifest file name at the backup root.
const Filename = "manifest.json"

// GlobalSessionKey is the sentinel session key hash for snapshots of
// cross-session state (glossary, spellcheck, AI settings).
const GlobalSessionKey = "global"

// Reason records what triggered a snapshot.
type Reason string

const (
	ReasonManual   Reason = "manual"
	ReasonAuto     Reason = "auto"
	ReasonCritical Reason = "critical"
)

// ParseReason converts a string into a known Reason.
func ParseReason(value string) (Reason, bool) {
	switch Reason(strings.ToLower(strings.TrimSpace(value))) {
	case ReasonManual:
		return ReasonManual, true
	case ReasonAuto:
		return ReasonAuto, true
	case ReasonCritical:
		return ReasonCritical, true
	}
	return "", false
}

// Entry describes one snapshot file known to exist at the backup root.
type Entry struct {
	Filename       string    `json:"filename"`
	SessionKeyHash string    `json:"session_key_hash"`
	SessionLabel   string    `json:"session_label,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	Reason         Reason    `json:"reason"`
	AppVersion     string    `json:"app_version"`
	SchemaVersion  int       `json:"schema_version"`
	CompressedSize int64     `json:"compressed_size"`
	Checksum       string    `json:"checksum"`
}

// IsGlobal reports whether the entry belongs to the global pseudo-session.
func (e Entry) IsGlobal() bool {
	return e.SessionKeyHash == GlobalSessionKey
}

// Manifest is the durable index of all snapshots at a backup root. The
// manifest is the single source of truth for what exists: an entry is only
// added after its snapshot file has been durably written.
type Manifest struct {
	ManifestVersion int     `json:"manifest_version"`
	Snapshots       []Entry `json:"snapshots"`
	GlobalSnapshots []Entry `json:"global_snapshots"`
}

// New returns an empty manifest at the current version.
func New() Manifest {
	return Manifest{ManifestVersion: Version}
}

// Append returns a copy of the manifest with the entry inserted into the
// correct partition, newest first.
func Append(m Manifest, entry Entry) Manifest {
	out := clone(m)
	if out.ManifestVersion == 0 {
		out.ManifestVersion = Version
	}
	if entry.IsGlobal() {
		out.GlobalSnapshots = insertSorted(out.GlobalSnapshots, entry)
	} else {
		out.Snapshots = insertSorted(out.Snapshots, entry)
	}
	return out
}

// Buckets groups per-session entries by session key hash, each bucket newest
// first. Global snapshots are not included; callers present them separately.
func (m Manifest) Buckets() map[string][]Entry {
	buckets := make(map[string][]Entry)
	for _, entry := range m.Snapshots {
		buckets[entry.SessionKeyHash] = append(buckets[entry.SessionKeyHash], entry)
	}
	for key := range buckets {
		sortNewestFirst(buckets[key])
	}
	return buckets
}

// Find returns the entry with the given filename, searching both partitions.
func (m Manifest) Find(filename string) (Entry, bool) {
	for _, entry := range m.Snapshots {
		if entry.Filename == filename {
			return entry, true
		}
	}
	for _, entry := range m.GlobalSnapshots {
		if entry.Filename == filename {
			return entry, true
		}
	}
	return Entry{}, false
}

// Remove returns a copy of the manifest without the entries whose filenames
// appear in the exclusion set.
func Remove(m Manifest, filenames []string) Manifest {
	drop := make(map[string]struct{}, len(filenames))
	for _, name := range filenames {
		drop[name] = struct{}{}
	}
	out := Manifest{ManifestVersion: m.ManifestVersion}
	if out.ManifestVersion == 0 {
		out.ManifestVersion = Version
	}
	for _, entry := range m.Snapshots {
		if _, ok := drop[entry.Filename]; !ok {
			out.Snapshots = append(out.Snapshots, entry)
		}
	}
	for _, entry := range m.GlobalSnapshots {
		if _, ok := drop[entry.Filename]; !ok {
			out.GlobalSnapshots = append(out.GlobalSnapshots, entry)
		}
	}
	return out
}

func clone(m Manifest) Manifest {
	out := Manifest{ManifestVersion: m.ManifestVersion}
	out.Snapshots = append([]Entry(nil), m.Snapshots...)
	out.GlobalSnapshots = append([]Entry(nil), m.GlobalSnapshots...)
	return out
}

func insertSorted(entries []Entry, entry Entry) []Entry {
	entries = append(entries, entry)
	sortNewestFirst(entries)
	return entries
}

// sortNewestFirst orders entries by CreatedAt descending. Identical
// timestamps fall back to the lexicographically larger filename first;
// filenames embed a monotonically increasing id, so this is a stable
// secondary key.
func sortNewestFirst(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.Filename > b.Filename
	})
}
