// Package commands implements the sbom-tm command line.
package commands

import (
	"os"

	"github.com/spf13/cobra"
)

type rootFlags struct {
	config   string
	logLevel string
}

// NewRootCmd builds the sbom-tm command tree.
func NewRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "sbom-tm",
		Short:         "SBOM threat modeller",
		Long:          `sbom-tm scans a CycloneDX SBOM with Trivy, enriches the findings with CISA KEV and service context, and turns them into scored threat hypotheses.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultConfig := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		defaultConfig = v
	}
	root.PersistentFlags().StringVar(&flags.config, "config", defaultConfig, "Path to config.yaml (env CONFIG_PATH)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Override log level (debug, info, warn, error)")

	root.AddCommand(
		newScanCmd(flags),
		newRulesCmd(flags),
		newThreatsCmd(flags),
		newErrorsCmd(flags),
		newContextCmd(),
		newKEVCmd(flags),
		newAnalyzeCmd(flags),
		newServeCmd(flags),
	)
	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
