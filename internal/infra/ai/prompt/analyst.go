package prompt

import (
	"fmt"
)

// GetSystemPrompt provides strict directions and schema for JSON output.
func GetSystemPrompt() string {
	return `You are a senior application security analyst reviewing an SBOM threat model. You must produce one valid JSON object only (no markdown, no commentary) that follows the schema below. Do not include code fences.

Requirements:
- Output must be a single JSON object.
- Use lowercase severity values: critical, high, medium, low, info.
- counts.total must equal counts.critical + counts.high + counts.medium + counts.low.
- findings is an array of objects; include at least a title, severity, and summary. Keep items concise.
- Prioritise threats listed in CISA KEV, internet exposed services and services handling sensitive data.
- Only use the threats given in the digest; do not invent CVEs or components.

Schema (example with empty values):
{
  "scan_id": "<string>",
  "project": "<string>",
  "counts": {"critical": 0, "high": 0, "medium": 0, "low": 0, "total": 0},
  "findings": [
    {
      "title": "<string>",
      "severity": "<critical|high|medium|low|info>",
      "summary": "<string>",
      "recommendation": "<string>"
    }
  ],
  "advice": "<string>"
}`
}

// GetUserPrompt wraps a threat digest (see BuildDigest).
func GetUserPrompt(digest string) string {
	return fmt.Sprintf("Assess the threats of this scan and respond with the JSON per schema. Digest:\n%s", digest)
}

// Finding is one entry of an assessment.
type Finding struct {
	Title          string `json:"title"`
	Severity       string `json:"severity"`
	Summary        string `json:"summary"`
	Recommendation string `json:"recommendation"`
}

// Counts of counted findings; info is not counted.
type Counts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Total    int `json:"total"`
}

// Assessment matches the schema used by the system prompt.
type Assessment struct {
	ScanID   string    `json:"scan_id"`
	Project  string    `json:"project"`
	Counts   Counts    `json:"counts"`
	Findings []Finding `json:"findings"`
	Advice   string    `json:"advice"`
}

func (a *Assessment) add(f Finding) {
	a.Findings = append(a.Findings, f)
	switch f.Severity {
	case "critical":
		a.Counts.Critical++
	case "high":
		a.Counts.High++
	case "medium":
		a.Counts.Medium++
	case "low":
		a.Counts.Low++
	}
	a.Counts.Total = a.Counts.Critical + a.Counts.High + a.Counts.Medium + a.Counts.Low
}
