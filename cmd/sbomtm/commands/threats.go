package commands

import (
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/bryanwahyu/sbom-tm/internal/domain/threats"
	"github.com/bryanwahyu/sbom-tm/internal/middleware"
)

func newThreatsCmd(root *rootFlags) *cobra.Command {
	var project, format string
	cmd := &cobra.Command{
		Use:   "threats",
		Short: "List stored threat hypotheses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := checkFormat(format, formatTable, formatJSON)
			if err != nil {
				return err
			}
			if err := middleware.ValidateProject(project); err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cmd, root, true)
			if err != nil {
				return err
			}
			defer a.Close()

			list, err := a.scans.ListThreats(cmd.Context(), project)
			if err != nil {
				return err
			}
			if format == formatJSON {
				return writeJSON(cmd.OutOrStdout(), list)
			}
			printThreats(cmd, list)
			return nil
		},
	}
	cmd.Flags().StringVarP(&project, "project", "p", "", "Only threats of this project")
	cmd.Flags().StringVar(&format, "format", formatTable, "Output format (table, json)")
	cmd.AddCommand(newThreatStatusCmd(root))
	return cmd
}

func newThreatStatusCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status <threat-id> <status>",
		Short: "Set the triage status of a threat (open, mitigated, accepted, false_positive)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid threat id %q", args[0])
			}
			if err := middleware.ValidateStatus(args[1]); err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cmd, root, true)
			if err != nil {
				return err
			}
			defer a.Close()

			t, err := a.scans.UpdateThreatStatus(cmd.Context(), id, threats.Status(args[1]))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[SBOM-TM] threat %d (%s) is now %s\n", t.ThreatID, t.RuleID, t.Status)
			return nil
		},
	}
}

func printThreats(cmd *cobra.Command, list []threats.Export) {
	tbl := newTable(cmd.OutOrStdout(), table.Row{"ID", "Rule", "Service", "CVE", "Severity", "Score", "Status"})
	for _, t := range list {
		tbl.AppendRow(table.Row{
			t.ThreatID,
			t.RuleID,
			t.Target.Service,
			deref(t.Evidence.CVE),
			deref(t.Evidence.Severity),
			fmt.Sprintf("%.1f", t.Score),
			t.Status,
		})
	}
	tbl.AppendFooter(table.Row{fmt.Sprintf("%d threats", len(list))})
	tbl.Render()
}
