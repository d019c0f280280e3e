package logging

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCleanupOldLogsRemovesExpiredFiles(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "flowscribed-old.log")
	fresh := filepath.Join(dir, "flowscribed-fresh.log")
	excluded := filepath.Join(dir, "flowscribed-current.log")
	unrelated := filepath.Join(dir, "notes.txt")

	for _, path := range []string{old, fresh, excluded, unrelated} {
		if err := os.WriteFile(path, []byte("log\n"), 0o644); err != nil {
			t.Fatalf("seed file: %v", err)
		}
	}
	stale := time.Now().AddDate(0, 0, -10)
	for _, path := range []string{old, excluded, unrelated} {
		if err := os.Chtimes(path, stale, stale); err != nil {
			t.Fatalf("age file: %v", err)
		}
	}

	CleanupOldLogs(NewNop(), 7, RetentionTarget{
		Dir:     dir,
		Pattern: "flowscribed-*.log",
		Exclude: []string{excluded},
	})

	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatalf("expected expired log to be removed, stat err = %v", err)
	}
	for _, path := range []string{fresh, excluded, unrelated} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %s to survive: %v", path, err)
		}
	}
}

func TestCleanupOldLogsDisabled(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "flowscribed-old.log")
	if err := os.WriteFile(old, []byte("log\n"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	stale := time.Now().AddDate(0, 0, -100)
	if err := os.Chtimes(old, stale, stale); err != nil {
		t.Fatalf("age file: %v", err)
	}

	CleanupOldLogs(NewNop(), 0, RetentionTarget{Dir: dir, Pattern: "flowscribed-*.log"})

	if _, err := os.Stat(old); err != nil {
		t.Fatalf("retention of 0 must not prune, stat err = %v", err)
	}
}
