// Package sbom reads CycloneDX JSON documents into flat component records.
package sbom

import (
	"fmt"
	"io"
	"os"

	cdx "github.com/CycloneDX/cyclonedx-go"

	"github.com/bryanwahyu/sbom-tm/internal/domain/threats"
)

// ParsedComponent is one entry of the SBOM components list.
type ParsedComponent struct {
	Name       string            `json:"name"`
	Version    string            `json:"version,omitempty"`
	PURL       string            `json:"purl,omitempty"`
	Supplier   string            `json:"supplier,omitempty"`
	Hashes     map[string]string `json:"hashes"`
	Properties map[string]string `json:"properties"`
}

// Map returns the generic view used by rule conditions. Empty optional
// fields become nil so that conditions can test for absence.
func (c ParsedComponent) Map() map[string]any {
	hashes := make(map[string]any, len(c.Hashes))
	for k, v := range c.Hashes {
		hashes[k] = v
	}
	props := make(map[string]any, len(c.Properties))
	for k, v := range c.Properties {
		props[k] = v
	}
	return map[string]any{
		"name":       c.Name,
		"version":    optional(c.Version),
		"purl":       optional(c.PURL),
		"supplier":   optional(c.Supplier),
		"hashes":     hashes,
		"properties": props,
	}
}

func optional(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Load decodes a CycloneDX JSON document from path.
func Load(path string) (*cdx.BOM, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening sbom: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode decodes a CycloneDX JSON document.
func Decode(r io.Reader) (*cdx.BOM, error) {
	bom := new(cdx.BOM)
	if err := cdx.NewBOMDecoder(r, cdx.BOMFileFormatJSON).Decode(bom); err != nil {
		return nil, fmt.Errorf("%w: %v", threats.ErrInvalidSBOM, err)
	}
	return bom, nil
}

// Components flattens the top-level components of bom, in document order.
func Components(bom *cdx.BOM) []ParsedComponent {
	if bom == nil || bom.Components == nil {
		return nil
	}
	out := make([]ParsedComponent, 0, len(*bom.Components))
	for _, c := range *bom.Components {
		out = append(out, parse(c))
	}
	return out
}

// LoadComponents reads path and returns its components.
func LoadComponents(path string) ([]ParsedComponent, error) {
	bom, err := Load(path)
	if err != nil {
		return nil, err
	}
	return Components(bom), nil
}

func parse(c cdx.Component) ParsedComponent {
	pc := ParsedComponent{
		Name:       c.Name,
		Version:    c.Version,
		PURL:       c.PackageURL,
		Hashes:     map[string]string{},
		Properties: map[string]string{},
	}
	if pc.Name == "" {
		pc.Name = "unknown"
	}
	if c.Supplier != nil {
		pc.Supplier = c.Supplier.Name
	}
	if c.Hashes != nil {
		for _, h := range *c.Hashes {
			pc.Hashes[string(h.Algorithm)] = h.Value
		}
	}
	if c.Properties != nil {
		for _, p := range *c.Properties {
			pc.Properties[p.Name] = p.Value
		}
	}
	return pc
}
