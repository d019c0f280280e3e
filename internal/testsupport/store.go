package testsupport

import (
	"testing"

	"github.com/mvonrenteln/FlowScribe-sub003/internal/appstate"
	"github.com/mvonrenteln/FlowScribe-sub003/internal/config"
)

// MustOpenStore opens an appstate.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *appstate.Store {
	t.Helper()

	store, err := appstate.Open(cfg)
	if err != nil {
		t.Fatalf("appstate.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}
