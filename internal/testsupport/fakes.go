package testsupport

import (
	"context"
	"sync"
	"time"

	"github.com/mvonrenteln/FlowScribe-sub003/internal/manifest"
	"github.com/mvonrenteln/FlowScribe-sub003/internal/provider"
)

// FakeProvider is an in-memory provider.Provider with failure injection.
// Safe for concurrent use.
type FakeProvider struct {
	mu        sync.Mutex
	files     map[string][]byte
	manifests []manifest.Manifest

	Accessible    bool
	EnableErr     error
	WriteErr      error
	ManifestErr   error
	ReadErr       error
	Restorable    bool
	EnabledLabel  string
	WriteCount    int
	ManifestCount int
}

// NewFakeProvider returns a healthy, restorable fake provider.
func NewFakeProvider() *FakeProvider {
	return &FakeProvider{
		files:        make(map[string][]byte),
		Accessible:   true,
		Restorable:   true,
		EnabledLabel: "fake://backups",
	}
}

func (f *FakeProvider) Kind() string          { return "fake" }
func (f *FakeProvider) Label() string         { return f.EnabledLabel }
func (f *FakeProvider) SupportsRestore() bool { return f.Restorable }
func (f *FakeProvider) IsSupported() bool     { return true }

func (f *FakeProvider) Enable(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if f.EnableErr != nil {
		return "", f.EnableErr
	}
	f.mu.Lock()
	f.Accessible = true
	f.mu.Unlock()
	return f.EnabledLabel, nil
}

func (f *FakeProvider) VerifyAccess(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Accessible
}

// RevokeAccess makes subsequent VerifyAccess calls fail, simulating a lost
// permission grant.
func (f *FakeProvider) RevokeAccess() {
	f.mu.Lock()
	f.Accessible = false
	f.mu.Unlock()
}

func (f *FakeProvider) WriteSnapshot(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.WriteErr != nil {
		return f.WriteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path] = append([]byte(nil), data...)
	f.WriteCount++
	return nil
}

func (f *FakeProvider) WriteManifest(ctx context.Context, m manifest.Manifest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.ManifestErr != nil {
		return f.ManifestErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.manifests = append(f.manifests, m)
	f.ManifestCount++
	return nil
}

func (f *FakeProvider) ReadManifest(ctx context.Context) (manifest.Manifest, error) {
	if err := ctx.Err(); err != nil {
		return manifest.Manifest{}, err
	}
	if f.ReadErr != nil {
		return manifest.Manifest{}, f.ReadErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.manifests) == 0 {
		return manifest.New(), nil
	}
	return f.manifests[len(f.manifests)-1], nil
}

func (f *FakeProvider) ReadSnapshot(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.ReadErr != nil {
		return nil, f.ReadErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[path]
	if !ok {
		return nil, &notFoundError{path: path}
	}
	return append([]byte(nil), data...), nil
}

func (f *FakeProvider) DeleteSnapshots(ctx context.Context, paths []string) []provider.DeleteFailure {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, path := range paths {
		delete(f.files, path)
	}
	return nil
}

// Manifest returns the most recently written manifest, or an empty one.
func (f *FakeProvider) Manifest() manifest.Manifest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.manifests) == 0 {
		return manifest.New()
	}
	return f.manifests[len(f.manifests)-1]
}

// Files returns a copy of the stored snapshot paths.
func (f *FakeProvider) Files() map[string][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string][]byte, len(f.files))
	for k, v := range f.files {
		out[k] = append([]byte(nil), v...)
	}
	return out
}

type notFoundError struct {
	path string
}

func (e *notFoundError) Error() string { return "snapshot not found: " + e.path }

// RecordingNotifier captures notification calls for assertions. It
// implements notifications.Service.
type RecordingNotifier struct {
	mu     sync.Mutex
	Events []string
}

func (r *RecordingNotifier) record(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, event)
}

// Recorded returns a copy of the captured event names.
func (r *RecordingNotifier) Recorded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.Events...)
}

func (r *RecordingNotifier) NotifyBackupCompleted(_ context.Context, _ int, _ string) error {
	r.record("backup_completed")
	return nil
}

func (r *RecordingNotifier) NotifyBackupFailed(_ context.Context, _ error) error {
	r.record("backup_failed")
	return nil
}

func (r *RecordingNotifier) NotifyPermissionLost(_ context.Context, _ string) error {
	r.record("permission_lost")
	return nil
}

func (r *RecordingNotifier) NotifyRecoveryAvailable(_ context.Context, _ string) error {
	r.record("recovery_available")
	return nil
}

func (r *RecordingNotifier) NotifyError(_ context.Context, _ error, _ string) error {
	r.record("error")
	return nil
}

func (r *RecordingNotifier) TestNotification(context.Context) error {
	r.record("test")
	return nil
}

// WaitFor polls the condition until it holds or the deadline passes.
func WaitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
