package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mvonrenteln/FlowScribe-sub003/internal/daemonctl"
	"github.com/mvonrenteln/FlowScribe-sub003/internal/ipc"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and backup status",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			reachable, _, _ := daemonctl.ProcessInfo(ctx.socketPath())
			if !reachable {
				for _, line := range renderSectionHeader("Daemon", colorize) {
					fmt.Fprintln(stdout, line)
				}
				fmt.Fprintln(stdout, renderStatusLine("FlowScribe", statusWarn, "Not running (run `flowscribe start`)", colorize))
				cfg := ctx.configValue()
				if cfg != nil {
					fmt.Fprintln(stdout, renderStatusLine("Provider", statusInfo, cfg.Backup.Provider, colorize))
					if cfg.Backup.Location != "" {
						fmt.Fprintln(stdout, renderStatusLine("Location", statusInfo, cfg.Backup.Location, colorize))
					}
				}
				return nil
			}

			return ctx.withClient(func(client *ipc.Client) error {
				status, err := client.Status()
				if err != nil {
					return err
				}
				renderStatus(cmd, status, colorize)
				return nil
			})
		},
	}
}

func renderStatus(cmd *cobra.Command, status *ipc.StatusResponse, colorize bool) {
	stdout := cmd.OutOrStdout()

	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(stdout, line)
	}
	fmt.Fprintln(stdout, renderStatusLine("FlowScribe", statusOK, fmt.Sprintf("Running (pid %d)", status.PID), colorize))
	fmt.Fprintln(stdout, renderStatusLine("State DB", statusInfo, status.StateDBPath, colorize))
	fmt.Fprintln(stdout)

	for _, line := range renderSectionHeader("Backups", colorize) {
		fmt.Fprintln(stdout, line)
	}
	fmt.Fprintln(stdout, renderStatusLine("Scheduler", schedulerStateKind(status.State), status.State, colorize))
	fmt.Fprintln(stdout, renderStatusLine("Provider", statusInfo, status.ProviderKind, colorize))
	if status.Location != "" {
		fmt.Fprintln(stdout, renderStatusLine("Location", statusInfo, status.Location, colorize))
	}
	fmt.Fprintln(stdout, renderStatusLine("Restore support", statusInfo, yesNo(status.SupportsRestore), colorize))
	fmt.Fprintln(stdout, renderStatusLine("Last backup", lastBackupKind(status), lastBackupDetail(status), colorize))
	if status.State == "enabled" && !status.NextDue.IsZero() {
		fmt.Fprintln(stdout, renderStatusLine("Next due", statusInfo, formatTime(status.NextDue), colorize))
	}
	if status.LastError != "" {
		fmt.Fprintln(stdout, renderStatusLine("Last error", statusError, status.LastError, colorize))
	}
	if status.DirtySessions > 0 {
		detail := fmt.Sprintf("%d session(s) with unsaved changes (run `flowscribe recovery`)", status.DirtySessions)
		fmt.Fprintln(stdout, renderStatusLine("Recovery", statusWarn, detail, colorize))
	}
}

func schedulerStateKind(state string) statusKind {
	switch state {
	case "enabled":
		return statusOK
	case "paused":
		return statusWarn
	case "error":
		return statusError
	default:
		return statusInfo
	}
}

func lastBackupKind(status *ipc.StatusResponse) statusKind {
	switch {
	case status.LastBackupAt.IsZero():
		return statusInfo
	case status.LastBackupStatus == "ok":
		return statusOK
	default:
		return statusWarn
	}
}

func lastBackupDetail(status *ipc.StatusResponse) string {
	if status.LastBackupAt.IsZero() {
		return "never"
	}
	detail := formatTime(status.LastBackupAt)
	if status.LastBackupStatus != "" && status.LastBackupStatus != "ok" {
		detail = fmt.Sprintf("%s (%s)", detail, status.LastBackupStatus)
	}
	return detail
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return "never"
	}
	return value.Local().Format("2006-01-02 15:04:05")
}
