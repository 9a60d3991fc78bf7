// Package servicectx maps SBOM components to the service that ships them and
// the business value of the data that service handles.
package servicectx

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/bryanwahyu/sbom-tm/internal/sbom"
)

// ServiceContext describes where a component runs.
type ServiceContext struct {
	Service         string         `json:"service"`
	Environment     string         `json:"environment"`
	InternetExposed bool           `json:"internet_exposed"`
	DataClass       []string       `json:"data_class"`
	ValueMetric     string         `json:"value_metric"`
	Exposure        map[string]any `json:"exposure"`
}

// Map returns the generic view used by rules and the scorer. A nil context
// maps to an empty document.
func (c *ServiceContext) Map() map[string]any {
	if c == nil {
		return map[string]any{}
	}
	dc := make([]any, len(c.DataClass))
	for i, d := range c.DataClass {
		dc[i] = d
	}
	exposure := c.Exposure
	if exposure == nil {
		exposure = map[string]any{}
	}
	return map[string]any{
		"service":          c.Service,
		"environment":      c.Environment,
		"internet_exposed": c.InternetExposed,
		"data_class":       dc,
		"value_metric":     c.ValueMetric,
		"exposure":         exposure,
	}
}

// Entry is one record of a context file.
type Entry struct {
	ComponentName   string         `json:"component_name,omitempty"`
	ComponentPURL   string         `json:"component_purl,omitempty"`
	Service         string         `json:"service,omitempty"`
	Environment     string         `json:"environment,omitempty"`
	InternetExposed bool           `json:"internet_exposed"`
	DataClass       dataClass      `json:"data_class,omitempty"`
	ValueMetric     string         `json:"value_metric,omitempty"`
	Exposure        map[string]any `json:"exposure,omitempty"`
}

// dataClass accepts either a single string or a list of scalars.
type dataClass []string

func (d *dataClass) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*d = nil
		return nil
	}
	var single string
	if err := json.Unmarshal(b, &single); err == nil {
		*d = dataClass{single}
		return nil
	}
	var list []any
	if err := json.Unmarshal(b, &list); err != nil {
		return fmt.Errorf("data_class: %w", err)
	}
	out := make(dataClass, 0, len(list))
	for _, item := range list {
		out = append(out, fmt.Sprint(item))
	}
	*d = out
	return nil
}

// Key returns the mapping key of the entry: its purl, else its name.
func (e Entry) Key() string {
	if e.ComponentPURL != "" {
		return e.ComponentPURL
	}
	return e.ComponentName
}

// Context applies defaults and converts e into a ServiceContext.
func (e Entry) Context() *ServiceContext {
	sc := &ServiceContext{
		Service:         e.Service,
		Environment:     e.Environment,
		InternetExposed: e.InternetExposed,
		DataClass:       []string(e.DataClass),
		ValueMetric:     e.ValueMetric,
		Exposure:        e.Exposure,
	}
	if sc.Service == "" {
		sc.Service = "unknown"
	}
	if sc.Environment == "" {
		sc.Environment = "dev"
	}
	if sc.ValueMetric == "" {
		sc.ValueMetric = "medium"
	}
	if sc.DataClass == nil {
		sc.DataClass = []string{}
	}
	if sc.Exposure == nil {
		sc.Exposure = map[string]any{}
	}
	return sc
}

// Load reads a context file. An empty path yields an empty mapping.
func Load(path string) (map[string]*ServiceContext, error) {
	mapping := map[string]*ServiceContext{}
	if path == "" {
		return mapping, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading context: %w", err)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing context %s: %w", path, err)
	}
	for _, e := range entries {
		mapping[e.Key()] = e.Context()
	}
	return mapping, nil
}

// Resolve finds the context of c: purl match first, then name.
func Resolve(c sbom.ParsedComponent, mapping map[string]*ServiceContext) *ServiceContext {
	if c.PURL != "" {
		if sc, ok := mapping[c.PURL]; ok {
			return sc
		}
	}
	if c.Name != "" {
		if sc, ok := mapping[c.Name]; ok {
			return sc
		}
	}
	return nil
}
