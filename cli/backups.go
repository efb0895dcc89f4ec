package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"brkdash/internal/client"

	"github.com/spf13/cobra"
)

func (a *app) backupsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "backups",
		Short:   "List, download and delete company configuration backups",
		GroupID: "documents",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List backups, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			backups, err := a.client.ListBackups(cmd.Context())
			if err != nil {
				return fmt.Errorf("listing backups: %w", err)
			}
			if a.jsonOutput {
				return printJSON(cmd.OutOrStdout(), backups)
			}
			printBackupTable(cmd.OutOrStdout(), backups)
			return nil
		},
	})

	download := &cobra.Command{
		Use:   "download <filename>",
		Short: "Download a backup (to stdout unless -o is given)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output, _ := cmd.Flags().GetString("output")

			var w io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("creating %s: %w", output, err)
				}
				defer f.Close()
				w = f
			}

			n, err := a.client.DownloadBackup(cmd.Context(), args[0], w)
			if err != nil {
				if output != "" && output != "-" {
					os.Remove(output)
				}
				return fmt.Errorf("downloading %s: %w", args[0], err)
			}
			if output != "" && output != "-" {
				printOK(cmd.ErrOrStderr(), "Wrote %s (%s)", output, humanSize(n))
			}
			return nil
		},
	}
	download.Flags().StringP("output", "o", "", "write the backup to this file")
	cmd.AddCommand(download)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <filename>...",
		Short: "Delete one or more backups",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := a.client.DeleteBackups(cmd.Context(), args)
			if resp != nil {
				if a.jsonOutput {
					if perr := printJSON(cmd.OutOrStdout(), resp); perr != nil {
						return perr
					}
				} else {
					printDeleteResults(cmd.OutOrStdout(), resp)
				}
			}
			if errors.Is(err, client.ErrPartialDelete) {
				return fmt.Errorf("%d of %d backup(s) could not be deleted", len(args)-resp.DeletedCount, len(args))
			}
			if err != nil {
				return fmt.Errorf("deleting backups: %w", err)
			}
			return nil
		},
	})

	return cmd
}
