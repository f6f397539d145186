package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Nyukimin/toolrouter/internal/adapter/jsonrpc"
	"github.com/Nyukimin/toolrouter/internal/domain/tool"
)

var (
	toolsRemote string
	toolsJSON   bool
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List registered tools",
	Long: `List the tools this router would register, or with --remote the tools
offered by a running toolrouter server.`,
	RunE: runTools,
}

func init() {
	rootCmd.AddCommand(toolsCmd)

	toolsCmd.Flags().StringVar(&toolsRemote, "remote", "", "Base URL of a running toolrouter server")
	toolsCmd.Flags().BoolVar(&toolsJSON, "json", false, "Print JSON")
}

func runTools(cmd *cobra.Command, args []string) error {
	var catalog []tool.Descriptor
	if toolsRemote != "" {
		infos, err := jsonrpc.NewClient(toolsRemote).ListTools(cmd.Context())
		if err != nil {
			return fmt.Errorf("list remote tools: %w", err)
		}
		for _, info := range infos {
			catalog = append(catalog, tool.Descriptor{Name: info.Name, Description: info.Description, Version: info.Version})
		}
	} else {
		deps, err := buildDependencies(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		catalog = deps.invoker.Registry().Catalog()
	}

	out := cmd.OutOrStdout()
	if toolsJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(catalog)
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tVERSION\tDESCRIPTION")
	for _, d := range catalog {
		fmt.Fprintf(w, "%s\t%s\t%s\n", d.Name, d.Version, d.Description)
	}
	return w.Flush()
}
