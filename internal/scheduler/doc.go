// Package scheduler drives periodic and on-demand backups. It owns the
// backup state machine (disabled, enabled, paused, error), enforces
// single-flight execution, and applies the full pipeline for every run:
// verify access, capture sessions, write snapshots, index them in the
// manifest, prune retention overflow, and clear dirty markers. Snapshot
// files are always durably written before the manifest references them, so
// a crash between the two steps leaves an orphaned file, never a dangling
// index entry.
package scheduler
