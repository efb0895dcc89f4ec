// Package cli implements the brkdash command line: the service itself
// ("serve") and a client for every operation it exposes.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"brkdash/internal/client"

	"github.com/spf13/cobra"
)

type app struct {
	baseURL    string
	timeout    time.Duration
	jsonOutput bool

	client *client.Client
}

func defaultBaseURL() string {
	if s := os.Getenv("BRK_DASHBOARD_URL"); s != "" {
		return s
	}
	return client.DefaultBaseURL
}

// NewRootCmd builds the full command tree. Each call returns independent
// state, so tests can run commands side by side.
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "brkdash <command>",
		Short:         "BRK CNC dashboard configuration service and client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.client = client.New(a.baseURL, a.timeout)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.baseURL, "url", defaultBaseURL(), "dashboard service URL")
	root.PersistentFlags().DurationVar(&a.timeout, "timeout", 30*time.Second, "request timeout")
	root.PersistentFlags().BoolVar(&a.jsonOutput, "json", false, "output as JSON")

	root.AddGroup(
		&cobra.Group{ID: "documents", Title: "Documents:"},
		&cobra.Group{ID: "entities", Title: "Company entities:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)
	cobra.EnableCommandSorting = false

	// Documents
	root.AddCommand(a.documentCmd("setup", "Setup wizard configuration"))
	root.AddCommand(a.documentCmd("company", "Company configuration"))
	root.AddCommand(a.backupsCmd())

	// Company entities
	root.AddCommand(a.machineCmd())
	root.AddCommand(a.cycleCmd())
	root.AddCommand(a.toolCategoryCmd())
	root.AddCommand(a.ruleCmd())
	root.AddCommand(a.entityCmd())

	// System
	root.AddCommand(a.serveCmd())
	root.AddCommand(a.healthCmd())
	root.AddCommand(a.statusCmd())
	root.AddCommand(a.auditCmd())
	root.AddCommand(a.watchCmd())

	return root
}

// Execute runs the CLI and reports errors on stderr. SIGINT and SIGTERM
// cancel the command's context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
