package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mvonrenteln/FlowScribe-sub003/internal/ipc"
)

func newRecoveryCommand(ctx *commandContext) *cobra.Command {
	recoveryCmd := &cobra.Command{
		Use:   "recovery",
		Short: "List sessions that closed with unsaved changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.RecoveryStatus()
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				if len(resp.Recoveries) == 0 {
					fmt.Fprintln(stdout, "No pending recoveries")
					return nil
				}
				rows := make([][]string, 0, len(resp.Recoveries))
				for _, recovery := range resp.Recoveries {
					label := recovery.SessionLabel
					if label == "" {
						label = "(unnamed)"
					}
					rows = append(rows, []string{
						label,
						recovery.SessionKeyHash,
						formatTime(recovery.MarkedAt),
						recoveryHintText(recovery.Hint),
					})
				}
				table := renderTable(
					[]string{"Session", "Key", "Marked", "Recovery"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
				)
				fmt.Fprintln(stdout, table)
				return nil
			})
		},
	}

	recoveryCmd.AddCommand(newDismissCommand(ctx))
	return recoveryCmd
}

func recoveryHintText(hint string) string {
	switch hint {
	case "backup-available":
		return "snapshot available (flowscribe snapshots)"
	case "permission-needed":
		return "backup location inaccessible (flowscribe reauthorize)"
	default:
		return "no snapshot of this session exists"
	}
}

func newDismissCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "dismiss <session-key-hash>",
		Short: "Discard a recovery offer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.DismissDirty(args[0]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Recovery offer dismissed")
				return nil
			})
		},
	}
}

// newDirtyCommand exposes the dirty markers for editor integrations that
// drive the daemon over the CLI instead of the socket directly.
func newDirtyCommand(ctx *commandContext) *cobra.Command {
	dirtyCmd := &cobra.Command{
		Use:   "dirty",
		Short: "Manage unsaved-changes markers",
	}

	var label string
	markCmd := &cobra.Command{
		Use:   "mark <session-key>",
		Short: "Mark a session as having unsaved changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.MarkDirty(args[0], label); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Session marked dirty")
				return nil
			})
		},
	}
	markCmd.Flags().StringVar(&label, "label", "", "Human readable session label")

	clearCmd := &cobra.Command{
		Use:   "clear <session-key>",
		Short: "Clear a session's unsaved-changes marker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.ClearDirty(args[0]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Marker cleared")
				return nil
			})
		},
	}

	dirtyCmd.AddCommand(markCmd)
	dirtyCmd.AddCommand(clearCmd)
	return dirtyCmd
}
