package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConsoleHandlerRendering(t *testing.T) {
	var buf bytes.Buffer
	level := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, level))

	NewComponentLogger(logger, "scheduler").Info("backup complete",
		String("sessions", "2"),
		String(FieldEventType, "backup_completed"))

	line := strings.TrimSpace(buf.String())
	if !strings.Contains(line, " INFO scheduler: backup complete") {
		t.Fatalf("unexpected console line: %q", line)
	}
	if !strings.Contains(line, "sessions=2") || !strings.Contains(line, "event_type=backup_completed") {
		t.Fatalf("attrs missing from console line: %q", line)
	}
}

func TestConsoleHandlerQuotesValuesWithSpaces(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newConsoleHandler(&buf, new(slog.LevelVar)))

	logger.Warn("permission lost", String("location", "/tmp/my backups"))

	if !strings.Contains(buf.String(), `location="/tmp/my backups"`) {
		t.Fatalf("expected quoted value, got %q", buf.String())
	}
}

func TestConsoleHandlerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	level := new(slog.LevelVar)
	level.Set(slog.LevelWarn)
	logger := slog.New(newConsoleHandler(&buf, level))

	logger.Info("invisible")
	logger.Warn("visible")

	out := buf.String()
	if strings.Contains(out, "invisible") {
		t.Fatalf("info record leaked past warn level: %q", out)
	}
	if !strings.Contains(out, "visible") {
		t.Fatalf("warn record missing: %q", out)
	}
}

func TestNewJSONFormatWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "flowscribed.log")
	logger, err := New(Options{Level: "debug", Format: "json", OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logger.Debug("state recorded", String(FieldComponent, "appstate"))

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &record); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, data)
	}
	if record["msg"] != "state recorded" || record["level"] != "debug" {
		t.Fatalf("unexpected record: %#v", record)
	}
	if _, ok := record["ts"]; !ok {
		t.Fatalf("record missing ts field: %#v", record)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "yaml"}); err == nil {
		t.Fatal("expected unknown format to be rejected")
	}
}

func TestWarnWithContextFillsRequiredFields(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newConsoleHandler(&buf, new(slog.LevelVar)))

	WarnWithContext(logger, "manifest delete failed", "manifest_delete_failed")

	out := buf.String()
	for _, field := range []string{FieldEventType, FieldErrorHint, FieldImpact} {
		if !strings.Contains(out, field+"=") {
			t.Fatalf("warn record missing %s: %q", field, out)
		}
	}
}
