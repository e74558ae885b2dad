package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newPurgeCmd() *cobra.Command {
	var (
		scope scopeFlags
		yes   bool
	)

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete chunks matching a filter",
		Long: `Purge removes every chunk matching the given filter. At least one of
--document, --doc-name, --project or --module is required. The answer cache
is cleared when anything was removed.`,
		Example: `  rag-engine-cli purge --doc-name bom.xlsx
  rag-engine-cli purge --project p1 --module dc_cable --yes`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			filter, err := scope.filter()
			if err != nil {
				return err
			}
			if filter.IsEmpty() {
				return fmt.Errorf("at least one of --document, --doc-name, --project or --module is required")
			}

			ui := NewUI(outputJSON, noColor)
			if !yes && !outputJSON {
				ok, err := confirm(fmt.Sprintf("Delete all chunks matching %s?", describeFilter(scope)))
				if err != nil {
					return err
				}
				if !ok {
					ui.Info("Aborted")
					return nil
				}
			}

			svc, err := openServices(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()

			removed, err := svc.Pipeline.Purge(ctx, filter)
			if err != nil {
				return fmt.Errorf("purge: %w", err)
			}

			if outputJSON {
				return printJSON(map[string]int{"removed": removed})
			}
			if removed == 0 {
				ui.Warning("No chunks matched")
				return nil
			}
			ui.Success("Removed %d chunks", removed)
			return nil
		},
	}

	scope.register(cmd, true)
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func describeFilter(s scopeFlags) string {
	var parts []string
	add := func(k, v string) {
		if v != "" {
			parts = append(parts, k+"="+v)
		}
	}
	add("document", s.document)
	add("doc-name", s.docName)
	add("project", s.project)
	add("module", s.module)
	return strings.Join(parts, " ")
}

func confirm(prompt string) (bool, error) {
	fmt.Fprintf(os.Stderr, "%s [y/N]: ", prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return false, nil
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
