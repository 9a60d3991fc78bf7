// Package report renders exported threats as JSON, HTML and SARIF files.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/bryanwahyu/sbom-tm/internal/domain/threats"
)

// Paths of the files written for one scan.
type Paths struct {
	JSON  string `json:"json"`
	HTML  string `json:"html"`
	SARIF string `json:"sarif"`
}

// Writer writes reports into Dir. TemplatesDir may hold a report.html.tmpl
// replacing the embedded HTML template.
type Writer struct {
	Dir          string
	TemplatesDir string
	Now          func() time.Time
}

func NewWriter(dir, templatesDir string) *Writer {
	return &Writer{Dir: dir, TemplatesDir: templatesDir, Now: time.Now}
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SafeName makes a project name usable in a file name.
func SafeName(project string) string {
	s := unsafeName.ReplaceAllString(project, "_")
	if s == "" || s == "." || s == ".." {
		return "project"
	}
	return s
}

// WriteAll writes <project>_report.{json,html,sarif}.
func (w *Writer) WriteAll(project string, items []threats.Export) (Paths, error) {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return Paths{}, fmt.Errorf("creating report dir: %w", err)
	}
	now := w.now()
	base := filepath.Join(w.Dir, SafeName(project)+"_report")
	p := Paths{JSON: base + ".json", HTML: base + ".html", SARIF: base + ".sarif"}

	if err := writeFile(p.JSON, func(f *os.File) error { return WriteJSON(f, items, now) }); err != nil {
		return Paths{}, err
	}
	tmpl, err := LoadTemplate(w.TemplatesDir)
	if err != nil {
		return Paths{}, err
	}
	if err := writeFile(p.HTML, func(f *os.File) error { return WriteHTML(f, tmpl, project, items, now) }); err != nil {
		return Paths{}, err
	}
	if err := writeFile(p.SARIF, func(f *os.File) error { return WriteSARIF(f, items) }); err != nil {
		return Paths{}, err
	}
	return p, nil
}

func (w *Writer) now() time.Time {
	if w.Now == nil {
		return time.Now().UTC()
	}
	return w.Now().UTC()
}

func writeFile(path string, fn func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := fn(f); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}
