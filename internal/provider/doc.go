// Package provider abstracts the storage backend snapshots are written to.
// Two variants exist: a directory-rooted provider with full read/write and a
// write-only export provider used when no durable root is available. Access
// to a root is treated as a revocable capability, so callers verify before
// every write and re-enable when verification fails.
package provider
