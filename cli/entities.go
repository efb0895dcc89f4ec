package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"brkdash/internal/client"
	"brkdash/internal/configdoc/model"

	"github.com/spf13/cobra"
)

// entityVerb is one file-driven mutator such as "machine update <file>".
// run is a method expression so the client is resolved when the command
// runs, after the persistent flags are parsed.
type entityVerb[T any] struct {
	use   string
	short string
	done  string
	run   func(c *client.Client, ctx context.Context, v T) error
	id    func(v T) string
}

func (e entityVerb[T]) command(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   e.use + " <file>",
		Short: e.short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var v T
			if err := decodeFile(cmd, args[0], &v); err != nil {
				return err
			}
			if err := e.run(a.client, cmd.Context(), v); err != nil {
				return err
			}
			printOK(cmd.OutOrStdout(), "%s %s", e.done, e.id(v))
			return nil
		},
	}
}

func deleteByID(a *app, short, done string, run func(c *client.Client, ctx context.Context, id string) error) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, id := range args {
				if err := run(a.client, cmd.Context(), id); err != nil {
					return fmt.Errorf("deleting %s: %w", id, err)
				}
				printOK(cmd.OutOrStdout(), "%s %s", done, id)
			}
			return nil
		},
	}
}

func (a *app) machineCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "machine", Short: "Manage machines", GroupID: "entities"}
	id := func(m model.Machine) string { return m.ID }
	cmd.AddCommand(
		entityVerb[model.Machine]{use: "add", short: "Add the machine described in file", done: "Added machine", run: (*client.Client).AddMachine, id: id}.command(a),
		entityVerb[model.Machine]{use: "update", short: "Replace a machine with the one in file", done: "Updated machine", run: (*client.Client).UpdateMachine, id: id}.command(a),
		deleteByID(a, "Delete machines by id", "Deleted machine", (*client.Client).DeleteMachine),
	)
	return cmd
}

func (a *app) cycleCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "cycle", Short: "Manage machining cycles", GroupID: "entities"}
	cmd.AddCommand(
		entityVerb[model.Cycle]{use: "update", short: "Replace a cycle with the one in file", done: "Updated cycle", run: (*client.Client).UpdateCycle,
			id: func(c model.Cycle) string { return c.ID }}.command(a),
	)
	return cmd
}

func (a *app) toolCategoryCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "tool-category", Short: "Manage tool categories", GroupID: "entities"}
	cmd.AddCommand(
		entityVerb[model.ToolCategory]{use: "update", short: "Replace a tool category with the one in file", done: "Updated tool category", run: (*client.Client).UpdateToolCategory,
			id: func(tc model.ToolCategory) string { return tc.ID }}.command(a),
	)
	return cmd
}

func (a *app) ruleCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "rule", Short: "Manage validation rules", GroupID: "entities"}
	id := func(r model.ValidationRule) string { return r.ID }
	cmd.AddCommand(
		entityVerb[model.ValidationRule]{use: "add", short: "Add the validation rule described in file", done: "Added rule", run: (*client.Client).AddValidationRule, id: id}.command(a),
		entityVerb[model.ValidationRule]{use: "update", short: "Replace a validation rule with the one in file", done: "Updated rule", run: (*client.Client).UpdateValidationRule, id: id}.command(a),
		deleteByID(a, "Delete validation rules by id", "Deleted rule", (*client.Client).DeleteValidationRule),
	)
	return cmd
}

// entityCmd exposes the server-side entity operations, which lock the
// document on the server instead of saving a locally modified copy.
func (a *app) entityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "entity",
		Short:   "Atomic server-side edits of any company collection",
		GroupID: "entities",
	}

	report := func(cmd *cobra.Command, resp *model.EntityResponse) error {
		if a.jsonOutput {
			return printJSON(cmd.OutOrStdout(), resp)
		}
		printOK(cmd.OutOrStdout(), "%s", resp.Message)
		if resp.Backup != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "  previous version kept as %s\n", resp.Backup)
		}
		return nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <collection> <file>",
		Short: "Add the element in file to collection",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readJSONArg(cmd, args[1])
			if err != nil {
				return err
			}
			resp, err := a.client.AddEntity(cmd.Context(), args[0], json.RawMessage(data))
			if err != nil {
				return err
			}
			return report(cmd, resp)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "update <collection> <id> <file>",
		Short: "Replace element id of collection with the one in file",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readJSONArg(cmd, args[2])
			if err != nil {
				return err
			}
			resp, err := a.client.UpdateEntity(cmd.Context(), args[0], args[1], json.RawMessage(data))
			if err != nil {
				return err
			}
			return report(cmd, resp)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <collection> <id>",
		Short: "Delete element id of collection",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := a.client.DeleteEntity(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return report(cmd, resp)
		},
	})

	return cmd
}
