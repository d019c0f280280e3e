package testsupport

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/mvonrenteln/FlowScribe-sub003/internal/config"
)

// WriteSessionDoc places a session document in the config's data directory
// where the filesystem source will pick it up. The document body is the
// given data wrapped in the on-disk session envelope.
func WriteSessionDoc(t testing.TB, cfg *config.Config, sessionKey, label string, data json.RawMessage) string {
	t.Helper()

	doc := map[string]any{
		"session_key":   sessionKey,
		"session_label": label,
		"document":      data,
	}
	body, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		t.Fatalf("marshal session doc: %v", err)
	}

	dir := filepath.Join(cfg.Paths.DataDir, "sessions")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	path := filepath.Join(dir, sessionKey+".json")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("write session doc: %v", err)
	}
	return path
}

// WriteGlobalDoc places the cross-session state document in the data
// directory.
func WriteGlobalDoc(t testing.TB, cfg *config.Config, data json.RawMessage) string {
	t.Helper()

	if err := os.MkdirAll(cfg.Paths.DataDir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", cfg.Paths.DataDir, err)
	}
	path := filepath.Join(cfg.Paths.DataDir, "global.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write global doc: %v", err)
	}
	return path
}
