package provider

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/mvonrenteln/FlowScribe-sub003/internal/config"
	"github.com/mvonrenteln/FlowScribe-sub003/internal/manifest"
)

// Export is the download-style fallback: each snapshot becomes a standalone
// file in an export directory the engine never reads back. There is no
// manifest authority and no restore capability; callers must gate on
// SupportsRestore rather than assume symmetric operations.
type Export struct {
	dir string
}

// NewExport builds the write-only provider over the given export directory.
func NewExport(dir string) *Export {
	return &Export{dir: dir}
}

func (e *Export) Kind() string { return config.ProviderExport }

func (e *Export) Label() string { return e.dir }

func (e *Export) SupportsRestore() bool { return false }

func (e *Export) IsSupported() bool { return e.dir != "" }

func (e *Export) Enable(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if e.dir == "" {
		return "", ErrCancelled
	}
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", classify("enable export directory", err)
	}
	return e.dir, nil
}

func (e *Export) VerifyAccess(ctx context.Context) bool {
	if ctx.Err() != nil || e.dir == "" {
		return false
	}
	info, err := os.Stat(e.dir)
	if err != nil || !info.IsDir() {
		return false
	}
	return unix.Access(e.dir, unix.W_OK|unix.X_OK) == nil
}

// WriteSnapshot flattens the manifest-relative path into a single exported
// filename so every snapshot stands alone.
func (e *Export) WriteSnapshot(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validRelPath(path); err != nil {
		return err
	}
	name := strings.ReplaceAll(strings.TrimPrefix(path, "sessions/"), "/", "_")
	full := filepath.Join(e.dir, name)
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return classify("export snapshot", err)
	}
	return nil
}

// WriteManifest succeeds without writing. Exported files are outside the
// engine's control, so a manifest would claim an authority it cannot have.
func (e *Export) WriteManifest(ctx context.Context, _ manifest.Manifest) error {
	return ctx.Err()
}

func (e *Export) ReadManifest(ctx context.Context) (manifest.Manifest, error) {
	if err := ctx.Err(); err != nil {
		return manifest.Manifest{}, err
	}
	return manifest.Manifest{}, fmt.Errorf("read manifest: %w", ErrNotSupported)
}

func (e *Export) ReadSnapshot(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("read snapshot %q: %w", path, ErrNotSupported)
}

// DeleteSnapshots never removes exported files; once handed to the user
// they are theirs.
func (e *Export) DeleteSnapshots(context.Context, []string) []DeleteFailure {
	return nil
}
