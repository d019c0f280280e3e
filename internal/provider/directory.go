package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/mvonrenteln/FlowScribe-sub003/internal/config"
	"github.com/mvonrenteln/FlowScribe-sub003/internal/manifest"
)

// Directory is the filesystem-rooted provider. Snapshots and the manifest
// live under a single user-chosen root directory; every publish is a
// temp-file write followed by a rename so readers never observe a partial
// file.
type Directory struct {
	root string
}

// NewDirectory builds a provider over the given root. An empty root is
// allowed; Enable reports ErrCancelled until a location has been chosen.
func NewDirectory(root string) *Directory {
	return &Directory{root: root}
}

func (d *Directory) Kind() string { return config.ProviderDirectory }

func (d *Directory) Label() string { return d.root }

func (d *Directory) SupportsRestore() bool { return true }

func (d *Directory) IsSupported() bool { return true }

// Enable creates the root directory if needed and probes write access. This
// is the only place the engine ever creates the root; a mistyped location in
// config stays an error instead of silently becoming a new backup root.
func (d *Directory) Enable(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if d.root == "" {
		return "", ErrCancelled
	}
	if err := os.MkdirAll(d.root, 0o755); err != nil {
		return "", classify("enable backup root", err)
	}
	if !d.VerifyAccess(ctx) {
		return "", fmt.Errorf("enable backup root %q: %w", d.root, ErrPermission)
	}
	return d.root, nil
}

// VerifyAccess probes the root for read+write permission without prompting
// or creating anything.
func (d *Directory) VerifyAccess(ctx context.Context) bool {
	if ctx.Err() != nil || d.root == "" {
		return false
	}
	info, err := os.Stat(d.root)
	if err != nil || !info.IsDir() {
		return false
	}
	return unix.Access(d.root, unix.R_OK|unix.W_OK|unix.X_OK) == nil
}

func (d *Directory) WriteSnapshot(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validRelPath(path); err != nil {
		return err
	}
	full := filepath.Join(d.root, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return classify("create snapshot directory", err)
	}
	return d.publish(full, data)
}

func (d *Directory) WriteManifest(ctx context.Context, m manifest.Manifest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	return d.publish(filepath.Join(d.root, manifest.Filename), data)
}

func (d *Directory) ReadManifest(ctx context.Context) (manifest.Manifest, error) {
	if err := ctx.Err(); err != nil {
		return manifest.Manifest{}, err
	}
	data, err := os.ReadFile(filepath.Join(d.root, manifest.Filename))
	if errors.Is(err, fs.ErrNotExist) {
		return manifest.New(), nil
	}
	if err != nil {
		return manifest.Manifest{}, classify("read manifest", err)
	}
	var m manifest.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return manifest.Manifest{}, fmt.Errorf("parse manifest: %w", err)
	}
	return m, nil
}

func (d *Directory) ReadSnapshot(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validRelPath(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(d.root, filepath.FromSlash(path)))
	if err != nil {
		return nil, classify("read snapshot", err)
	}
	return data, nil
}

func (d *Directory) DeleteSnapshots(ctx context.Context, paths []string) []DeleteFailure {
	var failures []DeleteFailure
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			failures = append(failures, DeleteFailure{Path: path, Err: err})
			continue
		}
		if err := validRelPath(path); err != nil {
			failures = append(failures, DeleteFailure{Path: path, Err: err})
			continue
		}
		full := filepath.Join(d.root, filepath.FromSlash(path))
		if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
			failures = append(failures, DeleteFailure{Path: path, Err: classify("delete snapshot", err)})
		}
	}
	return failures
}

// publish writes to a temp file in the target directory and renames it into
// place. Rename within one directory is atomic on POSIX filesystems.
func (d *Directory) publish(full string, data []byte) error {
	dir := filepath.Dir(full)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return classify("create temp file", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return classify("write temp file", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return classify("sync temp file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return classify("close temp file", err)
	}
	if err := os.Rename(tmpName, full); err != nil {
		os.Remove(tmpName)
		return classify("publish file", err)
	}
	return nil
}
