package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mvonrenteln/FlowScribe-sub003/internal/scheduler"
)

// fsSource captures application state from the daemon's data directory.
// Session documents live under sessions/ as one JSON file each; the
// cross-session state lives in global.json. The envelope carries the
// session key and label; the whole document body is what gets snapshotted.
type fsSource struct {
	dataDir string
}

func newFSSource(dataDir string) *fsSource {
	return &fsSource{dataDir: dataDir}
}

type sessionEnvelope struct {
	SessionKey   string `json:"session_key"`
	SessionLabel string `json:"session_label"`
}

func (s *fsSource) CollectSessions(ctx context.Context) ([]scheduler.SessionData, error) {
	dir := filepath.Join(s.dataDir, "sessions")
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read sessions directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	sessions := make([]scheduler.SessionData, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		body, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read session document %s: %w", name, err)
		}
		var envelope sessionEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			return nil, fmt.Errorf("parse session document %s: %w", name, err)
		}
		key := envelope.SessionKey
		if key == "" {
			key = strings.TrimSuffix(name, ".json")
		}
		sessions = append(sessions, scheduler.SessionData{
			SessionKey:   key,
			SessionLabel: envelope.SessionLabel,
			Data:         body,
		})
	}
	return sessions, nil
}

func (s *fsSource) CollectGlobal(ctx context.Context) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	body, err := os.ReadFile(filepath.Join(s.dataDir, "global.json"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read global state: %w", err)
	}
	if !json.Valid(body) {
		return nil, errors.New("global state is not valid JSON")
	}
	return body, nil
}
