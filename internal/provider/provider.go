package provider

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/mvonrenteln/FlowScribe-sub003/internal/manifest"
)

var (
	// ErrCancelled reports that the user aborted choosing a storage location.
	// It is a distinguished non-error outcome: callers leave all state as-is.
	ErrCancelled = errors.New("storage location selection cancelled")
	// ErrPermission reports that access to the storage root was denied or has
	// been revoked. Recoverable by re-enabling the provider, never by retrying
	// the failed operation.
	ErrPermission = errors.New("storage permission denied or lost")
	// ErrNotSupported reports an operation the provider variant cannot do.
	ErrNotSupported = errors.New("operation not supported by this provider")
)

// DeleteFailure records one snapshot file that could not be removed during
// eviction. Non-fatal by contract: the manifest no longer references the
// file, so the only cost is disk space.
type DeleteFailure struct {
	Path string
	Err  error
}

// Provider is the uniform capability surface over a storage backend. All
// methods that touch storage take a context; nothing else in the engine
// suspends.
type Provider interface {
	// Kind returns the config-level provider name.
	Kind() string
	// Label returns a human-readable description of the storage location.
	Label() string
	// SupportsRestore reports whether snapshots can be read back. Callers
	// gate restore surfaces on this, never on the concrete type.
	SupportsRestore() bool
	// IsSupported reports whether this variant can work in the current
	// environment at all.
	IsSupported() bool
	// Enable prepares the storage root, creating it if needed, and returns
	// its label. Returns ErrCancelled when no location has been chosen.
	Enable(ctx context.Context) (string, error)
	// VerifyAccess is a non-prompting permission probe. A false result means
	// the capability was revoked; the caller pauses instead of writing.
	VerifyAccess(ctx context.Context) bool
	WriteSnapshot(ctx context.Context, path string, data []byte) error
	WriteManifest(ctx context.Context, m manifest.Manifest) error
	// ReadManifest returns an empty manifest, not an error, when none exists yet.
	ReadManifest(ctx context.Context) (manifest.Manifest, error)
	ReadSnapshot(ctx context.Context, path string) ([]byte, error)
	// DeleteSnapshots removes evicted files best-effort and reports per-path
	// failures rather than aborting.
	DeleteSnapshots(ctx context.Context, paths []string) []DeleteFailure
}

// SnapshotPath builds the manifest-relative path for a new snapshot file.
// The zero-padded monotonic id sorts lexicographically, which the retention
// tie-break relies on.
func SnapshotPath(sessionKeyHash string, id uint64, reason manifest.Reason) string {
	return fmt.Sprintf("sessions/%s/%016d_%s%s", sessionKeyHash, id, reason, snapshotExt)
}

const snapshotExt = ".fsz"

// classify wraps filesystem errors so callers can branch on the taxonomy
// with errors.Is instead of inspecting OS error strings.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrPermission) {
		return fmt.Errorf("%s: %w: %v", op, ErrPermission, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// validRelPath rejects absolute paths and parent traversal so a corrupted
// manifest cannot direct reads or deletes outside the root.
func validRelPath(path string) error {
	if path == "" {
		return errors.New("empty snapshot path")
	}
	if strings.HasPrefix(path, "/") || strings.HasPrefix(path, "\\") {
		return fmt.Errorf("absolute snapshot path %q", path)
	}
	for _, part := range strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' }) {
		if part == ".." {
			return fmt.Errorf("snapshot path %q escapes the backup root", path)
		}
	}
	return nil
}
