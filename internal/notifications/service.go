package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mvonrenteln/FlowScribe-sub003/internal/config"
)

const userAgent = "FlowScribe/0.1.0"

// Service defines the notification surface exposed to the backup engine.
type Service interface {
	NotifyBackupCompleted(ctx context.Context, sessions int, location string) error
	NotifyBackupFailed(ctx context.Context, err error) error
	NotifyPermissionLost(ctx context.Context, location string) error
	NotifyRecoveryAvailable(ctx context.Context, sessionLabel string) error
	NotifyError(ctx context.Context, err error, contextLabel string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &http.Client{Timeout: timeout}
	return &ntfyService{
		endpoint:       topic,
		client:         client,
		backupComplete: cfg.Notifications.BackupComplete,
		recovery:       cfg.Notifications.Recovery,
		errors:         cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint       string
	client         *http.Client
	backupComplete bool
	recovery       bool
	errors         bool
}

func (n *ntfyService) NotifyBackupCompleted(ctx context.Context, sessions int, location string) error {
	if !n.backupComplete {
		return nil
	}
	location = strings.TrimSpace(location)
	message := fmt.Sprintf("Backup complete: %d session(s)", sessions)
	if location != "" {
		message = fmt.Sprintf("%s\nLocation: %s", message, location)
	}
	data := payload{
		title:   "FlowScribe - Backup Complete",
		message: message,
		tags:    []string{"flowscribe", "backup", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyBackupFailed(ctx context.Context, err error) error {
	if !n.errors {
		return nil
	}
	message := "Backup failed"
	if err != nil {
		message = fmt.Sprintf("Backup failed: %s", strings.TrimSpace(err.Error()))
	}
	data := payload{
		title:    "FlowScribe - Backup Failed",
		message:  message,
		tags:     []string{"flowscribe", "backup", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyPermissionLost(ctx context.Context, location string) error {
	if !n.errors {
		return nil
	}
	location = strings.TrimSpace(location)
	message := "Backup paused: access to the backup location was lost.\nReauthorize to resume."
	if location != "" {
		message = fmt.Sprintf("Backup paused: access to %s was lost.\nReauthorize to resume.", location)
	}
	data := payload{
		title:    "FlowScribe - Backup Paused",
		message:  message,
		tags:     []string{"flowscribe", "backup", "permission"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyRecoveryAvailable(ctx context.Context, sessionLabel string) error {
	if !n.recovery {
		return nil
	}
	sessionLabel = strings.TrimSpace(sessionLabel)
	message := "A session closed with unsaved changes. A backup is available to restore."
	if sessionLabel != "" {
		message = fmt.Sprintf("%q closed with unsaved changes. A backup is available to restore.", sessionLabel)
	}
	data := payload{
		title:   "FlowScribe - Recovery Available",
		message: message,
		tags:    []string{"flowscribe", "recovery"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "FlowScribe - Error",
		message:  builder.String(),
		tags:     []string{"flowscribe", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "FlowScribe - Test",
		message:  "Notification system test",
		tags:     []string{"flowscribe", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyBackupCompleted(context.Context, int, string) error { return nil }
func (noopService) NotifyBackupFailed(context.Context, error) error          { return nil }
func (noopService) NotifyPermissionLost(context.Context, string) error       { return nil }
func (noopService) NotifyRecoveryAvailable(context.Context, string) error    { return nil }
func (noopService) NotifyError(context.Context, error, string) error         { return nil }
func (noopService) TestNotification(context.Context) error                   { return nil }
