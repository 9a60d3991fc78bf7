package report

import (
	"encoding/json"
	"io"
	"time"

	"github.com/bryanwahyu/sbom-tm/internal/domain/threats"
)

// Document is the JSON report layout.
type Document struct {
	GeneratedAt string           `json:"generated_at"`
	Threats     []threats.Export `json:"threats"`
}

// WriteJSON writes {generated_at, threats} indented by two spaces.
func WriteJSON(w io.Writer, items []threats.Export, now time.Time) error {
	if items == nil {
		items = []threats.Export{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(Document{
		GeneratedAt: now.UTC().Format(time.RFC3339),
		Threats:     items,
	})
}
