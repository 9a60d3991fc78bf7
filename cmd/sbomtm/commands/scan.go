package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	appscans "github.com/bryanwahyu/sbom-tm/internal/application/scans"
	"github.com/bryanwahyu/sbom-tm/internal/contextgen"
	"github.com/bryanwahyu/sbom-tm/internal/infra/executor/syft"
)

// GeneratedContextsDir is the cache subdirectory for generated context files.
const GeneratedContextsDir = "generated_contexts"

type scanFlags struct {
	sbom    string
	project string
	context string
	offline bool
}

func newScanCmd(root *rootFlags) *cobra.Command {
	f := &scanFlags{}
	cmd := &cobra.Command{
		Use:   "scan [path]",
		Short: "Scan an SBOM (or a project directory) and build threat hypotheses",
		Long: `Scan runs Trivy over a CycloneDX SBOM, enriches the findings and writes JSON, HTML and SARIF reports.

path may be an SBOM file or a project directory. For a directory the SBOM is generated with syft.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, root, f, args)
		},
	}
	cmd.Flags().StringVar(&f.sbom, "sbom", "", "Path to a CycloneDX JSON SBOM")
	cmd.Flags().StringVarP(&f.project, "project", "p", "default", "Project name")
	cmd.Flags().StringVar(&f.context, "context", "", "Service context JSON file (generated when omitted)")
	cmd.Flags().BoolVar(&f.offline, "offline", false, "Skip network access for Trivy and the KEV feed")
	return cmd
}

func runScan(cmd *cobra.Command, root *rootFlags, f *scanFlags, args []string) error {
	out := cmd.OutOrStdout()
	path := ""
	if len(args) > 0 {
		path = args[0]
	}
	if path == "" && f.sbom == "" {
		fmt.Fprintln(out, "Please provide either --sbom <path> or --path <path>")
		return nil
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cmd, root, f.offline)
	if err != nil {
		return err
	}
	defer a.Close()

	sbomPath, projectDir := f.sbom, ""
	if sbomPath == "" {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("path not found: %s", path)
		}
		if info.IsDir() {
			projectDir = path
		} else {
			sbomPath = path
		}
	} else if path != "" {
		projectDir = path
	}

	// belum ada sbom, generate pakai syft
	if sbomPath == "" {
		generated, err := syft.NewGenerator(a.cfg.Syft.Binary).Generate(ctx, projectDir)
		if err != nil {
			return err
		}
		defer os.Remove(generated)
		sbomPath = generated
	}

	contextPath := f.context
	if contextPath == "" {
		generated, err := contextgen.GenerateContextFile(contextgen.Request{
			SBOMPath:    sbomPath,
			ProjectDir:  projectDir,
			ProjectName: f.project,
			OutputDir:   filepath.Join(a.cfg.Paths.CacheDir, GeneratedContextsDir),
		})
		if err != nil {
			a.log.Warn("context generation failed, scanning without context", "error", err)
		} else {
			contextPath = generated
			fmt.Fprintf(out, "[SBOM-TM] generated context file: %s\n", contextPath)
		}
	}

	fmt.Fprintf(out, "[SBOM-TM] scanning SBOM: %s\n", sbomPath)
	res, err := a.scans.Run(ctx, appscans.Request{
		SBOMPath:    sbomPath,
		Project:     f.project,
		ContextPath: contextPath,
		Offline:     f.offline,
	})
	if err != nil {
		return err
	}
	printScanResult(cmd, res)
	return nil
}

func printScanResult(cmd *cobra.Command, res appscans.Result) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "[SBOM-TM] project=%s components=%d vulns=%d threats=%d\n",
		res.Project, res.ComponentCount, res.VulnerabilityCount, res.ThreatCount)
	fmt.Fprintf(out, "[SBOM-TM] scan id: %s\n", res.ScanID)
	fmt.Fprintf(out, "[SBOM-TM] json report: %s\n", res.JSONReport)
	fmt.Fprintf(out, "[SBOM-TM] html report: %s\n", res.HTMLReport)
	fmt.Fprintf(out, "[SBOM-TM] sarif report: %s\n", res.SARIFReport)
	for _, name := range sortedKeys(res.ArtifactURLs) {
		fmt.Fprintf(out, "[SBOM-TM] uploaded %s: %s\n", name, res.ArtifactURLs[name])
	}
}
