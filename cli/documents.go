package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"brkdash/internal/client"
	"brkdash/internal/configdoc/model"

	"github.com/spf13/cobra"
)

// documentCmd builds "setup" or "company", which share show/save/reset.
func (a *app) documentCmd(name, short string) *cobra.Command {
	company := name == "company"

	cmd := &cobra.Command{
		Use:     name,
		Short:   short,
		GroupID: "documents",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the saved document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				doc json.RawMessage
				err error
			)
			if company {
				doc, err = a.client.LoadCompanyConfigRaw(cmd.Context())
			} else {
				doc, err = a.client.LoadSetupConfig(cmd.Context())
			}
			if client.IsFirstTimeSetup(err) {
				return fmt.Errorf("no setup configuration saved yet, first time setup required")
			}
			if err != nil {
				return fmt.Errorf("loading %s configuration: %w", name, err)
			}
			return printDocument(cmd.OutOrStdout(), doc)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "save <file>",
		Short: "Replace the document with the JSON object in file (- for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readJSONArg(cmd, args[0])
			if err != nil {
				return err
			}
			var resp *model.SaveResponse
			if company {
				resp, err = a.client.SaveCompanyConfig(cmd.Context(), data)
			} else {
				resp, err = a.client.SaveSetupConfig(cmd.Context(), data)
			}
			if err != nil {
				return fmt.Errorf("saving %s configuration: %w", name, err)
			}
			if a.jsonOutput {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			printOK(cmd.OutOrStdout(), "%s (%s)", resp.Message, resp.Path)
			if resp.Backup != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "  previous version kept as %s\n", resp.Backup)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Archive and remove the document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				resp *model.ResetResponse
				err  error
			)
			if company {
				resp, err = a.client.ResetCompanyConfig(cmd.Context())
			} else {
				resp, err = a.client.ResetSetupConfig(cmd.Context())
			}
			if err != nil {
				return fmt.Errorf("resetting %s configuration: %w", name, err)
			}
			if a.jsonOutput {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			printOK(cmd.OutOrStdout(), "%s", resp.Message)
			return nil
		},
	})

	return cmd
}

// readJSONArg reads path, or stdin for "-", and checks that it holds JSON.
func readJSONArg(cmd *cobra.Command, path string) (json.RawMessage, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("%s does not contain valid JSON", path)
	}
	return data, nil
}

// decodeFile reads a JSON file into v.
func decodeFile(cmd *cobra.Command, path string, v any) error {
	data, err := readJSONArg(cmd, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}
