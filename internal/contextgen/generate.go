package contextgen

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bryanwahyu/sbom-tm/internal/sbom"
	"github.com/bryanwahyu/sbom-tm/internal/servicectx"
)

// Request describes what to analyse. At least one of SBOMPath and
// ProjectDir should be set.
type Request struct {
	SBOMPath    string
	ProjectDir  string
	ProjectName string
	// OutputDir defaults to <ProjectDir>/.sbom_tm, else the SBOM directory,
	// else the working directory.
	OutputDir string
}

// GenerateContextFile writes <service>_context.generated.json and returns
// its path. Node packages found in the project tree take precedence over
// the SBOM components.
func GenerateContextFile(req Request) (string, error) {
	var found []nodeComponent
	if req.ProjectDir != "" {
		found = collectNodeComponents(req.ProjectDir)
	}
	if len(found) == 0 && req.SBOMPath != "" {
		if _, err := os.Stat(req.SBOMPath); err == nil {
			comps, err := sbom.LoadComponents(req.SBOMPath)
			if err != nil {
				return "", err
			}
			for _, c := range comps {
				found = append(found, nodeComponent{Component: c})
			}
		}
	}

	comps := make([]sbom.ParsedComponent, len(found))
	for i, f := range found {
		comps[i] = f.Component
	}
	profile := DetectApplicationProfile(req.ProjectDir, req.ProjectName, comps)

	outDir := req.OutputDir
	if outDir == "" {
		switch {
		case req.ProjectDir != "":
			outDir = filepath.Join(req.ProjectDir, ".sbom_tm")
		case req.SBOMPath != "":
			outDir = filepath.Dir(req.SBOMPath)
		default:
			wd, err := os.Getwd()
			if err != nil {
				return "", err
			}
			outDir = wd
		}
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("creating context dir: %w", err)
	}

	entries := make([]servicectx.Entry, 0, len(found))
	for _, f := range found {
		entries = append(entries, buildEntry(f, profile))
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return "", err
	}
	out := filepath.Join(outDir, SafeServiceName(profile.ServiceName)+"_context.generated.json")
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return "", fmt.Errorf("writing context: %w", err)
	}
	return out, nil
}

// SafeServiceName makes a service name usable as a file name.
func SafeServiceName(name string) string {
	safe := strings.NewReplacer(" ", "-", "/", "-", `\`, "-").Replace(name)
	if safe == "" {
		return "service"
	}
	return safe
}

func buildEntry(f nodeComponent, p ApplicationProfile) servicectx.Entry {
	service := f.Service
	if service == "" {
		service = p.ServiceName
	}
	return servicectx.Entry{
		ComponentName:   f.Component.Name,
		ComponentPURL:   f.Component.PURL,
		Service:         service,
		Environment:     p.Environment,
		InternetExposed: p.InternetExposed,
		DataClass:       p.DataClass,
		ValueMetric:     p.ValueMetric,
		Exposure:        map[string]any{"internet": p.InternetExposed},
	}
}
