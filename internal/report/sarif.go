package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/bryanwahyu/sbom-tm/internal/domain/threats"
)

// ToolVersion is the version reported in SARIF output.
var ToolVersion = "dev"

type sarifLog struct {
	Schema  string     `json:"$schema"`
	Version string     `json:"version"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool     `json:"tool"`
	Results []sarifResult `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name           string      `json:"name"`
	Version        string      `json:"version"`
	InformationURI string      `json:"informationUri"`
	Rules          []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID               string             `json:"id"`
	Name             string             `json:"name"`
	ShortDescription sarifMessage       `json:"shortDescription"`
	DefaultConfig    sarifDefaultConfig `json:"defaultConfiguration"`
	Properties       sarifRuleProps     `json:"properties"`
}

type sarifDefaultConfig struct {
	Level string `json:"level"`
}

type sarifRuleProps struct {
	Tags []string `json:"tags,omitempty"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifResult struct {
	RuleID     string          `json:"ruleId"`
	RuleIndex  int             `json:"ruleIndex"`
	Level      string          `json:"level"`
	Message    sarifMessage    `json:"message"`
	Locations  []sarifLocation `json:"locations"`
	Properties map[string]any  `json:"properties,omitempty"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
}

type sarifArtifactLocation struct {
	URI string `json:"uri"`
}

// WriteSARIF writes items as a SARIF 2.1.0 log. Each result points at the
// component purl (or name) since findings have no source line.
func WriteSARIF(w io.Writer, items []threats.Export) error {
	ruleIndex := map[string]int{}
	rules := []sarifRule{}
	for _, it := range items {
		if _, ok := ruleIndex[it.RuleID]; ok {
			continue
		}
		ruleIndex[it.RuleID] = len(rules)
		rules = append(rules, sarifRule{
			ID:               it.RuleID,
			Name:             it.RuleID,
			ShortDescription: sarifMessage{Text: ruleText(it)},
			DefaultConfig:    sarifDefaultConfig{Level: scoreToLevel(it.Score)},
			Properties:       sarifRuleProps{Tags: append([]string{"security"}, it.Objective...)},
		})
	}

	results := []sarifResult{}
	for _, it := range items {
		results = append(results, sarifResult{
			RuleID:    it.RuleID,
			RuleIndex: ruleIndex[it.RuleID],
			Level:     scoreToLevel(it.Score),
			Message:   sarifMessage{Text: resultText(it)},
			Locations: []sarifLocation{{
				PhysicalLocation: sarifPhysicalLocation{
					ArtifactLocation: sarifArtifactLocation{URI: componentURI(it)},
				},
			}},
			Properties: map[string]any{
				"score":     it.Score,
				"threat_id": it.ThreatID,
				"service":   it.Target.Service,
				"status":    string(it.Status),
			},
		})
	}

	log := sarifLog{
		Schema:  "https://docs.oasis-open.org/sarif/sarif/v2.1.0/sarif-schema-2.1.0.json",
		Version: "2.1.0",
		Runs: []sarifRun{{
			Tool: sarifTool{Driver: sarifDriver{
				Name:           "sbom-tm",
				Version:        ToolVersion,
				InformationURI: "https://github.com/bryanwahyu/sbom-tm",
				Rules:          rules,
			}},
			Results: results,
		}},
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(log)
}

func scoreToLevel(score float64) string {
	switch {
	case score >= 70:
		return "error"
	case score >= 40:
		return "warning"
	case score > 0:
		return "note"
	}
	return "none"
}

func ruleText(it threats.Export) string {
	if len(it.Pattern) > 0 {
		return strings.Join(it.Pattern, ", ")
	}
	return it.RuleID
}

func resultText(it threats.Export) string {
	cve := "unknown vulnerability"
	if it.Evidence.CVE != nil && *it.Evidence.CVE != "" {
		cve = *it.Evidence.CVE
	}
	name, _ := it.Target.Component["name"].(string)
	return fmt.Sprintf("%s in %s (service %s): %s, score %.2f", cve, name, it.Target.Service, ruleText(it), it.Score)
}

func componentURI(it threats.Export) string {
	if purl, ok := it.Target.Component["purl"].(string); ok && purl != "" {
		return purl
	}
	if name, ok := it.Target.Component["name"].(string); ok && name != "" {
		return name
	}
	return "unknown"
}
