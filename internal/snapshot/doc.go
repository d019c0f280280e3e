// Package snapshot encodes application state into the versioned, compressed,
// checksummed blob format written to a backup root, and decodes it back with
// integrity verification and schema migration on the way in.
package snapshot
