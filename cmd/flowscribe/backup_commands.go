package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mvonrenteln/FlowScribe-sub003/internal/ipc"
)

func newEnableCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "enable",
		Short: "Turn periodic backups on",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Enable()
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				if resp.Cancelled {
					fmt.Fprintln(stdout, "No backup location chosen; set backup.location in the config and retry")
					return nil
				}
				if !resp.Enabled {
					return fmt.Errorf("enable backups: %s", resp.Message)
				}
				fmt.Fprintln(stdout, "Backups enabled")
				return nil
			})
		},
	}
}

func newDisableCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "disable",
		Short: "Turn periodic backups off",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.Disable(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Backups disabled")
				return nil
			})
		},
	}
}

func newBackupNowCommand(ctx *commandContext) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "now",
		Short: "Run a backup immediately",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.BackupNow(reason)
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				duration := resp.FinishedAt.Sub(resp.StartedAt).Round(10 * time.Millisecond)
				fmt.Fprintf(stdout, "Backup complete: %d session(s)", resp.Sessions)
				if resp.GlobalIncluded {
					fmt.Fprint(stdout, " + global state")
				}
				fmt.Fprintf(stdout, " in %s\n", duration)
				if resp.Evicted > 0 {
					fmt.Fprintf(stdout, "Evicted %d old snapshot(s)\n", resp.Evicted)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "manual", "Backup reason (manual or critical)")
	return cmd
}

func newReauthorizeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reauthorize",
		Short: "Restore backup root access after a permission pause",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Reauthorize()
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				if !resp.Resumed {
					return fmt.Errorf("reauthorize: %s", resp.Message)
				}
				fmt.Fprintln(stdout, "Backup access restored; scheduling resumed")
				return nil
			})
		},
	}
}
