package engine

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mvonrenteln/FlowScribe-sub003/internal/config"
	"github.com/mvonrenteln/FlowScribe-sub003/internal/logging"
)

// configWatcher reloads the backup policy when the config file changes on
// disk. The watch is on the parent directory because editors typically
// replace the file by rename, which drops a watch on the file itself.
type configWatcher struct {
	path    string
	logger  *slog.Logger
	apply   func(*config.Config)
	watcher *fsnotify.Watcher
	done    chan struct{}
}

func newConfigWatcher(path string, logger *slog.Logger, apply func(*config.Config)) (*configWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create config watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch config directory: %w", err)
	}
	return &configWatcher{
		path:    path,
		logger:  logging.NewComponentLogger(logger, "configwatch"),
		apply:   apply,
		watcher: watcher,
		done:    make(chan struct{}),
	}, nil
}

func (w *configWatcher) start(ctx context.Context) {
	go w.loop(ctx)
}

func (w *configWatcher) close() {
	w.watcher.Close()
	<-w.done
}

func (w *configWatcher) loop(ctx context.Context) {
	defer close(w.done)

	// Editors emit bursts of events per save; a short debounce collapses
	// them into one reload.
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			pending = time.After(250 * time.Millisecond)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watch error", logging.Error(err))
		case <-pending:
			pending = nil
			w.reload()
		}
	}
}

func (w *configWatcher) reload() {
	cfg, _, _, err := config.Load(w.path)
	if err != nil {
		logging.WarnWithContext(w.logger, "config reload failed, keeping previous policy", "config_reload_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "new settings not applied"))
		return
	}
	w.apply(cfg)
}
