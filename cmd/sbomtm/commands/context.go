package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bryanwahyu/sbom-tm/internal/contextgen"
)

func newContextCmd() *cobra.Command {
	var sbomPath, project, outDir string
	cmd := &cobra.Command{
		Use:   "context [path]",
		Short: "Generate a service context file from a project directory or SBOM",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) > 0 {
				dir = args[0]
			}
			if dir == "" && sbomPath == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "Please provide either --sbom <path> or --path <path>")
				return nil
			}
			if dir != "" {
				info, err := os.Stat(dir)
				if err != nil {
					return fmt.Errorf("path not found: %s", dir)
				}
				// file biasa dianggap sbom
				if !info.IsDir() && sbomPath == "" {
					sbomPath, dir = dir, ""
				}
			}

			out, err := contextgen.GenerateContextFile(contextgen.Request{
				SBOMPath:    sbomPath,
				ProjectDir:  dir,
				ProjectName: project,
				OutputDir:   outDir,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[SBOM-TM] generated context file: %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&sbomPath, "sbom", "", "CycloneDX JSON SBOM used when the directory has no Node packages")
	cmd.Flags().StringVarP(&project, "project", "p", "", "Service name (defaults to the package or directory name)")
	cmd.Flags().StringVarP(&outDir, "output", "o", "", "Output directory (default <path>/.sbom_tm)")
	return cmd
}
