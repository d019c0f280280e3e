package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mvonrenteln/FlowScribe-sub003/internal/config"
	"github.com/mvonrenteln/FlowScribe-sub003/internal/ipc"
	"github.com/mvonrenteln/FlowScribe-sub003/internal/restore"
	"github.com/mvonrenteln/FlowScribe-sub003/internal/snapshot"
)

func newSnapshotsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshots",
		Short: "List snapshots in the backup location",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				listing, err := client.SnapshotList()
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				if len(listing.Sessions) == 0 && len(listing.Global) == 0 {
					fmt.Fprintln(stdout, "No snapshots found")
					return nil
				}

				rows := make([][]string, 0, 16)
				for _, group := range listing.Sessions {
					label := group.SessionLabel
					if label == "" {
						label = group.SessionKeyHash
					}
					for _, entry := range group.Snapshots {
						rows = append(rows, snapshotRow(label, entry))
					}
				}
				for _, entry := range listing.Global {
					rows = append(rows, snapshotRow("(global)", entry))
				}

				table := renderTable(
					[]string{"Session", "Created", "Reason", "Size", "Filename"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				)
				fmt.Fprintln(stdout, table)
				return nil
			})
		},
	}
}

func snapshotRow(label string, entry ipc.SnapshotEntry) []string {
	return []string{
		label,
		formatTime(entry.CreatedAt),
		entry.Reason,
		formatBytes(entry.CompressedSize),
		entry.Filename,
	}
}

func newRestoreCommand(ctx *commandContext) *cobra.Command {
	var fromFile string
	var fromRoot string
	var outputPath string

	cmd := &cobra.Command{
		Use:   "restore [filename]",
		Short: "Restore a snapshot and print its payload",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if fromFile != "" {
				return restoreLocalFile(cmd, fromFile, outputPath)
			}
			if fromRoot != "" {
				var filename string
				if len(args) == 1 {
					filename = args[0]
				}
				return restoreFromRoot(cmd, fromRoot, filename, outputPath)
			}
			if len(args) != 1 {
				return fmt.Errorf("snapshot filename is required (or use --root/--file for an ad hoc restore)")
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Restore(args[0])
				if err != nil {
					return err
				}
				label := resp.SessionLabel
				if label == "" {
					label = resp.SessionKeyHash
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Restored %q from %s (schema v%d, app %s)\n",
					label, formatTime(resp.CreatedAt), resp.SchemaVersion, resp.AppVersion)
				return writePayload(cmd, resp.Data, outputPath)
			})
		},
	}
	cmd.Flags().StringVar(&fromFile, "file", "", "Decode a local snapshot file instead of asking the daemon")
	cmd.Flags().StringVar(&fromRoot, "root", "", "Restore from another backup directory without adopting it")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write the payload to a file instead of stdout")
	return cmd
}

// restoreFromRoot restores from a foreign backup root through a temporary
// provider: the root's manifest and checksums are authoritative, but the
// configured backup location is untouched. Without a filename it lists the
// root's snapshots so the user can pick one.
func restoreFromRoot(cmd *cobra.Command, root, filename, outputPath string) error {
	expanded, err := config.ExpandPath(root)
	if err != nil {
		return err
	}
	svc := restore.FromRoot(expanded, nil)

	if filename == "" {
		listing, err := svc.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(listing.Sessions) == 0 && len(listing.Global) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No snapshots found")
			return nil
		}
		rows := make([][]string, 0, 16)
		for _, group := range listing.Sessions {
			label := group.SessionLabel
			if label == "" {
				label = group.SessionKeyHash
			}
			for _, entry := range group.Snapshots {
				rows = append(rows, []string{label, formatTime(entry.CreatedAt), string(entry.Reason), formatBytes(entry.CompressedSize), entry.Filename})
			}
		}
		for _, entry := range listing.Global {
			rows = append(rows, []string{"(global)", formatTime(entry.CreatedAt), string(entry.Reason), formatBytes(entry.CompressedSize), entry.Filename})
		}
		table := renderTable(
			[]string{"Session", "Created", "Reason", "Size", "Filename"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
		)
		fmt.Fprintln(cmd.OutOrStdout(), table)
		fmt.Fprintln(cmd.ErrOrStderr(), "Pick a filename: flowscribe restore --root <dir> <filename>")
		return nil
	}

	payload, entry, err := svc.Restore(cmd.Context(), filename)
	if err != nil {
		return err
	}
	label := payload.SessionLabel
	if label == "" {
		label = payload.SessionKeyHash
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Restored %q from %s (schema v%d, app %s)\n",
		label, formatTime(entry.CreatedAt), entry.SchemaVersion, entry.AppVersion)
	fmt.Fprintf(cmd.ErrOrStderr(), "Backup location unchanged; run `flowscribe adopt %s` to back up here from now on\n", expanded)
	return writePayload(cmd, payload.Data, outputPath)
}

// restoreLocalFile decodes a snapshot without the daemon. The gzip CRC is the
// only integrity check here; a manifest checksum only exists inside a backup
// root.
func restoreLocalFile(cmd *cobra.Command, path, outputPath string) error {
	expanded, err := config.ExpandPath(path)
	if err != nil {
		return err
	}
	blob, err := os.ReadFile(expanded)
	if err != nil {
		return fmt.Errorf("read snapshot file: %w", err)
	}
	payload, header, err := snapshot.Decode(blob)
	if err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	label := payload.SessionLabel
	if label == "" {
		label = payload.SessionKeyHash
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Restored %q from %s (schema v%d, app %s)\n",
		label, formatTime(payload.CreatedAt), header.SchemaVersion, header.AppVersion)
	return writePayload(cmd, payload.Data, outputPath)
}

func writePayload(cmd *cobra.Command, data []byte, outputPath string) error {
	if strings.TrimSpace(outputPath) == "" {
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}
	expanded, err := config.ExpandPath(outputPath)
	if err != nil {
		return err
	}
	if err := os.WriteFile(expanded, data, 0o644); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote payload to %s\n", expanded)
	return nil
}

func newAdoptCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "adopt <directory>",
		Short: "Adopt an existing backup directory as the active root",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Adopt(root)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Adopted %s: %d session snapshot(s), %d global snapshot(s)\n",
					root, resp.Snapshots, resp.GlobalSnapshots)
				return nil
			})
		},
	}
}

func formatBytes(size int64) string {
	switch {
	case size >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(size)/(1<<20))
	case size >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(size)/(1<<10))
	default:
		return fmt.Sprintf("%d B", size)
	}
}
