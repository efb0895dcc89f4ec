package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func (a *app) healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "health",
		Short:   "Check that the dashboard service is up",
		GroupID: "system",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := a.client.Health(cmd.Context())
			if err != nil {
				return fmt.Errorf("checking health: %w", err)
			}
			if a.jsonOutput {
				if err := printJSON(cmd.OutOrStdout(), h); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%s)\n", h.Service, h.Status, h.Timestamp)
			}
			if h.Status != "ok" {
				return fmt.Errorf("unhealthy: %s", h.Status)
			}
			return nil
		},
	}
}

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		Short:   "Show which satellite services are reachable",
		GroupID: "system",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := a.client.ServicesStatus(cmd.Context())
			if err != nil {
				return fmt.Errorf("checking services: %w", err)
			}
			if a.jsonOutput {
				return printJSON(cmd.OutOrStdout(), status)
			}
			printServiceStatus(cmd.OutOrStdout(), status)
			return nil
		},
	}
}

func (a *app) auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "audit",
		Short:   "Show recent configuration changes (needs the audit database)",
		GroupID: "system",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			entries, err := a.client.AuditLog(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("listing audit entries: %w", err)
			}
			if a.jsonOutput {
				return printJSON(cmd.OutOrStdout(), entries)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tOPERATION\tDOCUMENT\tDETAIL")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.CreatedAt.Local().Format("2006-01-02 15:04:05"), e.Operation, e.Document, e.Detail)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().Int("limit", 20, "number of entries to show")
	return cmd
}
