package engine

import (
	"context"
	"sync"

	"github.com/mvonrenteln/FlowScribe-sub003/internal/manifest"
	"github.com/mvonrenteln/FlowScribe-sub003/internal/provider"
)

// switchableProvider delegates to an inner provider that can be swapped at
// runtime, which is how adopting a new backup root takes effect without
// tearing down the scheduler.
type switchableProvider struct {
	mu    sync.RWMutex
	inner provider.Provider
}

func newSwitchableProvider(inner provider.Provider) *switchableProvider {
	return &switchableProvider{inner: inner}
}

func (p *switchableProvider) swap(inner provider.Provider) {
	p.mu.Lock()
	p.inner = inner
	p.mu.Unlock()
}

func (p *switchableProvider) get() provider.Provider {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.inner
}

func (p *switchableProvider) Kind() string          { return p.get().Kind() }
func (p *switchableProvider) Label() string         { return p.get().Label() }
func (p *switchableProvider) SupportsRestore() bool { return p.get().SupportsRestore() }
func (p *switchableProvider) IsSupported() bool     { return p.get().IsSupported() }

func (p *switchableProvider) Enable(ctx context.Context) (string, error) {
	return p.get().Enable(ctx)
}

func (p *switchableProvider) VerifyAccess(ctx context.Context) bool {
	return p.get().VerifyAccess(ctx)
}

func (p *switchableProvider) WriteSnapshot(ctx context.Context, path string, data []byte) error {
	return p.get().WriteSnapshot(ctx, path, data)
}

func (p *switchableProvider) WriteManifest(ctx context.Context, m manifest.Manifest) error {
	return p.get().WriteManifest(ctx, m)
}

func (p *switchableProvider) ReadManifest(ctx context.Context) (manifest.Manifest, error) {
	return p.get().ReadManifest(ctx)
}

func (p *switchableProvider) ReadSnapshot(ctx context.Context, path string) ([]byte, error) {
	return p.get().ReadSnapshot(ctx, path)
}

func (p *switchableProvider) DeleteSnapshots(ctx context.Context, paths []string) []provider.DeleteFailure {
	return p.get().DeleteSnapshots(ctx, paths)
}
