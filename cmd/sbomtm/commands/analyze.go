package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bryanwahyu/sbom-tm/internal/domain/threats"
	"github.com/bryanwahyu/sbom-tm/internal/middleware"
)

func newAnalyzeCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <scan-id>",
		Short: "Ask the analyst (OpenAI, or the offline heuristic) to assess a scan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := middleware.ValidateScanID(args[0]); err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cmd, root, true)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.ai.AnalyzeScan(cmd.Context(), threats.ScanID(args[0]))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "[SBOM-TM] analysis %s of scan %s (model=%s)\n", res.ID, res.ScanID, res.Model)
			return writeJSON(out, json.RawMessage(res.Result))
		},
	}
}
