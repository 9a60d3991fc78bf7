package commands

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/bryanwahyu/sbom-tm/internal/rules"
)

func newRulesCmd(root *rootFlags) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "List the loaded threat rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := checkFormat(format, formatTable, formatJSON, formatPlain)
			if err != nil {
				return err
			}
			cfg, _, err := loadConfig(cmd, root)
			if err != nil {
				return err
			}
			list, err := rules.Load(cfg.Paths.RulesDir, !cfg.Rules.DisableBuiltin)
			if err != nil {
				return fmt.Errorf("loading rules: %w", err)
			}
			return printRules(cmd, list, format)
		},
	}
	cmd.Flags().StringVar(&format, "format", formatTable, "Output format (table, json, plain)")
	return cmd
}

func printRules(cmd *cobra.Command, list []rules.Rule, format string) error {
	out := cmd.OutOrStdout()
	switch format {
	case formatJSON:
		if list == nil {
			list = []rules.Rule{}
		}
		return writeJSON(out, list)
	case formatPlain:
		fmt.Fprintln(out, "Loaded rules:")
		for _, r := range list {
			fmt.Fprintf(out, "- %s: %s\n", r.ID, r.Description)
		}
		return nil
	}

	tbl := newTable(out, table.Row{"ID", "Severity", "Description", "Source"})
	tbl.SetColumnConfigs([]table.ColumnConfig{{Number: 3, WidthMax: 60}})
	for _, r := range list {
		sev := r.Severity
		if sev == "" {
			sev = "medium"
		}
		tbl.AppendRow(table.Row{r.ID, sev, r.Description, r.Source})
	}
	tbl.AppendFooter(table.Row{fmt.Sprintf("%d rules loaded", len(list))})
	tbl.Render()
	return nil
}
