package prompt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bryanwahyu/sbom-tm/internal/domain/ai"
	"github.com/bryanwahyu/sbom-tm/internal/domain/threats"
)

// MaxDigestThreats caps the threats sent to the analyst.
const MaxDigestThreats = 50

const maxFindings = 20

// HeuristicModel is the model name recorded for offline assessments.
const HeuristicModel = "heuristic"

// Digest is the compact view of a scan handed to the analyst.
type Digest struct {
	ScanID  string                 `json:"scan_id"`
	Project string                 `json:"project"`
	Counts  threats.SeverityCounts `json:"counts"`
	Threats []DigestThreat         `json:"threats"`
	// Omitted counts threats left out of the digest.
	Omitted int `json:"omitted,omitempty"`
}

type DigestThreat struct {
	ThreatID        int64    `json:"threat_id"`
	RuleID          string   `json:"rule_id"`
	Service         string   `json:"service"`
	Component       string   `json:"component"`
	CVE             string   `json:"cve,omitempty"`
	Severity        string   `json:"severity,omitempty"`
	CVSS            *float64 `json:"cvss,omitempty"`
	KEV             bool     `json:"kev"`
	DataClass       []string `json:"data_class"`
	Score           float64  `json:"score"`
	Status          string   `json:"status"`
	Pattern         []string `json:"pattern"`
	Recommendations []string `json:"recommendations"`
}

// BuildDigest serialises the threats of scan, already ordered by score.
func BuildDigest(scan *threats.ProjectScan, items []threats.Export) (string, error) {
	d := Digest{ScanID: string(scan.ID), Project: scan.Project, Counts: scan.Counts, Threats: []DigestThreat{}}
	for i, it := range items {
		if i == MaxDigestThreats {
			d.Omitted = len(items) - i
			break
		}
		d.Threats = append(d.Threats, digestThreat(it))
	}
	b, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding digest: %w", err)
	}
	return string(b), nil
}

// ScanDigester is the ai.Digester backed by BuildDigest.
type ScanDigester struct{}

var _ ai.Digester = ScanDigester{}

func (ScanDigester) Digest(scan *threats.ProjectScan, items []threats.Export) (string, error) {
	return BuildDigest(scan, items)
}

func digestThreat(it threats.Export) DigestThreat {
	dt := DigestThreat{
		ThreatID:        it.ThreatID,
		RuleID:          it.RuleID,
		Service:         it.Target.Service,
		Component:       componentLabel(it.Target.Component),
		CVSS:            it.Evidence.CVSS,
		DataClass:       it.Value.DataClass,
		Score:           it.Score,
		Status:          string(it.Status),
		Pattern:         it.Pattern,
		Recommendations: it.RecommendedActions,
	}
	if it.Evidence.CVE != nil {
		dt.CVE = *it.Evidence.CVE
	}
	if it.Evidence.Severity != nil {
		dt.Severity = *it.Evidence.Severity
	}
	if v, ok := it.Evidence.Intel["kev_listed"].(bool); ok {
		dt.KEV = v
	}
	return dt
}

func componentLabel(c map[string]any) string {
	name, _ := c["name"].(string)
	if v, ok := c["version"].(string); ok && v != "" {
		return name + "@" + v
	}
	return name
}

// Heuristic is the offline analyst used when no API key is configured. Its
// output is deterministic for a given digest.
type Heuristic struct{}

var _ ai.Client = Heuristic{}

func (Heuristic) Model() string { return HeuristicModel }

// Analyze implements ai.Client.
func (Heuristic) Analyze(_ context.Context, digest string) (string, error) {
	var d Digest
	if err := json.Unmarshal([]byte(digest), &d); err != nil {
		return "", fmt.Errorf("decoding digest: %w", err)
	}
	out := Assess(d)
	b, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("failed to marshal assessment: %w", err)
	}
	return string(b), nil
}

// Assess groups the digest threats per CVE and component and grades each
// group by its highest score.
func Assess(d Digest) Assessment {
	out := Assessment{ScanID: d.ScanID, Project: d.Project, Findings: make([]Finding, 0, maxFindings)}

	type group struct {
		key     string
		threats []DigestThreat
	}
	var groups []*group
	byKey := map[string]*group{}
	for _, t := range d.Threats {
		if t.Status != "" && t.Status != string(threats.StatusOpen) {
			continue
		}
		key := t.CVE + "|" + t.Component
		g, ok := byKey[key]
		if !ok {
			g = &group{key: key}
			byKey[key] = g
			groups = append(groups, g)
		}
		g.threats = append(g.threats, t)
	}

	kevCount := 0
	for _, g := range groups {
		if len(out.Findings) == maxFindings {
			break
		}
		top := g.threats[0]
		var rules, recs []string
		seen := map[string]bool{}
		kev := false
		for _, t := range g.threats {
			rules = append(rules, t.RuleID)
			kev = kev || t.KEV
			if t.Score > top.Score {
				top = t
			}
			for _, r := range t.Recommendations {
				if !seen[r] {
					seen[r] = true
					recs = append(recs, r)
				}
			}
		}
		if kev {
			kevCount++
		}

		title := top.Component
		if top.CVE != "" {
			title = fmt.Sprintf("%s in %s", top.CVE, top.Component)
		}
		summary := fmt.Sprintf("Service %s, score %.2f, matched %s.", top.Service, top.Score, strings.Join(rules, ", "))
		if kev {
			summary += " Listed in CISA KEV."
		}
		rec := strings.Join(recs, " ")
		if rec == "" {
			rec = "Upgrade the component to a fixed version."
		}
		out.add(Finding{Title: title, Severity: grade(top.Score, kev), Summary: summary, Recommendation: rec})
	}

	switch {
	case len(out.Findings) == 0:
		out.add(Finding{
			Title:          "No open threats",
			Severity:       "info",
			Summary:        "The scan produced no open threat hypotheses.",
			Recommendation: "Keep the SBOM current and rescan on every release.",
		})
		out.Advice = "Maintain good hygiene: regenerate the SBOM on every build and keep the KEV cache fresh."
	case out.Counts.Critical > 0 || kevCount > 0:
		out.Advice = "Immediate action required: patch known exploited and critical components first, starting with internet exposed services."
	case out.Counts.High+out.Counts.Medium > 0:
		out.Advice = "Schedule upgrades for the affected components and review exposure of the services that ship them."
	default:
		out.Advice = "Only low risk threats remain; fold the upgrades into regular dependency maintenance."
	}
	return out
}

func grade(score float64, kev bool) string {
	switch {
	case score >= 80 || (kev && score >= 60):
		return "critical"
	case score >= 60:
		return "high"
	case score >= 40:
		return "medium"
	}
	return "low"
}
