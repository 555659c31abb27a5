package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"mdip/core/appbootstrap"

	"github.com/spf13/cobra"
)

var backupLabel string

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Create, list and prune database backups",
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Snapshot the database into the backup directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *appbootstrap.Runtime) error {
			artifact, err := rt.Backups.CreateBackup(ctx, "system", backupLabel)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "backup written %s sha256=%s\n", artifact.Path, artifact.Manifest.Checksum)
			return nil
		})
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backups, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *appbootstrap.Runtime) error {
			items, err := rt.Backups.List(ctx)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FILE\tCREATED\tENGINE\tSCHEMA\tSIZE")
			for _, it := range items {
				m := it.Manifest
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\n", m.Filename, m.CreatedAt.Format("2006-01-02 15:04:05"), m.DBEngine, m.GooseDBVersion, m.SizeBytes)
			}
			return tw.Flush()
		})
	},
}

var backupPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete backups beyond the configured retention count",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *appbootstrap.Runtime) error {
			n, err := rt.Backups.Prune(ctx, "system")
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pruned %d backups\n", n)
			return nil
		})
	},
}

func init() {
	backupCreateCmd.Flags().StringVar(&backupLabel, "label", "", "label appended to the file name")
	backupCmd.AddCommand(backupCreateCmd, backupListCmd, backupPruneCmd)
}
