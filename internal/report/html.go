package report

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bryanwahyu/sbom-tm/internal/domain/threats"
)

// TemplateName is the file looked up in the templates directory.
const TemplateName = "report.html.tmpl"

//go:embed templates/report.html.tmpl
var templates embed.FS

var funcs = template.FuncMap{
	"join": func(items []string) string { return strings.Join(items, ", ") },
	"deref": func(s *string) string {
		if s == nil {
			return "-"
		}
		return *s
	},
	"field": func(m map[string]any, key string) string {
		if v, ok := m[key]; ok && v != nil {
			return fmt.Sprint(v)
		}
		return ""
	},
	"kev": func(intel map[string]any) bool {
		listed, _ := intel["kev_listed"].(bool)
		return listed
	},
	"scoreClass": func(score float64) string {
		switch {
		case score >= 90:
			return "critical"
		case score >= 70:
			return "high"
		case score >= 40:
			return "medium"
		}
		return "low"
	},
}

// LoadTemplate parses <dir>/report.html.tmpl when it exists, else the
// embedded default.
func LoadTemplate(dir string) (*template.Template, error) {
	if dir != "" {
		path := filepath.Join(dir, TemplateName)
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			t, err := template.New(TemplateName).Funcs(funcs).Parse(string(data))
			if err != nil {
				return nil, fmt.Errorf("parsing %s: %w", path, err)
			}
			return t, nil
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
	}
	return template.New(TemplateName).Funcs(funcs).ParseFS(templates, "templates/"+TemplateName)
}

type htmlData struct {
	Project   string
	Generated time.Time
	Threats   []threats.Export
}

// WriteHTML renders items with tmpl. Values are HTML-escaped.
func WriteHTML(w io.Writer, tmpl *template.Template, project string, items []threats.Export, now time.Time) error {
	return tmpl.Execute(w, htmlData{Project: project, Generated: now.UTC(), Threats: items})
}
