package commands

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/bryanwahyu/sbom-tm/internal/middleware"
)

func newErrorsCmd(root *rootFlags) *cobra.Command {
	var (
		project string
		format  string
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "errors",
		Short: "Show errors recovered during past scans (scanner fallback, KEV feed, reports, upload)",
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

			list, err := a.scans.ScanErrorsFor(cmd.Context(), project, middleware.ValidateLimit(limit))
			if err != nil {
				return err
			}
			if format == formatJSON {
				return writeJSON(cmd.OutOrStdout(), list)
			}

			tbl := newTable(cmd.OutOrStdout(), table.Row{"When", "Project", "Scan", "Phase", "Message"})
			tbl.SetColumnConfigs([]table.ColumnConfig{{Number: 5, WidthMax: 70}})
			for _, e := range list {
				tbl.AppendRow(table.Row{e.CreatedAt.UTC().Format(time.RFC3339), e.Project, e.ScanID, e.Phase, e.Message})
			}
			tbl.AppendFooter(table.Row{fmt.Sprintf("%d errors", len(list))})
			tbl.Render()
			return nil
		},
	}
	cmd.Flags().StringVarP(&project, "project", "p", "default", "Project name")
	cmd.Flags().StringVar(&format, "format", formatTable, "Output format (table, json)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of entries (max 100)")
	return cmd
}
