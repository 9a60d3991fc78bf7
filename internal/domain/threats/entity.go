package threats

import (
	"time"
)

// ScanID identifier untuk ProjectScan
type ScanID string

// Status of a threat hypothesis
type Status string

const (
	StatusOpen          Status = "open"
	StatusMitigated     Status = "mitigated"
	StatusAccepted      Status = "accepted"
	StatusFalsePositive Status = "false_positive"
)

// Valid reports whether s is one of the known threat statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusMitigated, StatusAccepted, StatusFalsePositive:
		return true
	}
	return false
}

// SeverityCounts value object
type SeverityCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Unknown  int `json:"unknown"`
	Total    int `json:"total"`
}

// ProjectScan is one run of the pipeline over a single SBOM.
type ProjectScan struct {
	ID        ScanID         `json:"id"`
	Project   string         `json:"project"`
	SBOMPath  string         `json:"sbom_path"`
	Counts    SeverityCounts `json:"counts"`
	CreatedAt time.Time      `json:"created_at"`
}

// Component is a persisted SBOM component.
type Component struct {
	ID         int64             `json:"id"`
	ScanID     ScanID            `json:"scan_id"`
	Name       string            `json:"name"`
	Version    string            `json:"version,omitempty"`
	PURL       string            `json:"purl,omitempty"`
	Supplier   string            `json:"supplier,omitempty"`
	Hashes     map[string]string `json:"hashes,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

// Vulnerability is a scanner finding attached to a component. Raw keeps the
// enriched scanner payload as-is.
type Vulnerability struct {
	ID              int64          `json:"id"`
	ComponentID     int64          `json:"component_id"`
	CVE             string         `json:"cve,omitempty"`
	Severity        string         `json:"severity,omitempty"`
	CVSS            *float64       `json:"cvss,omitempty"`
	ExploitMaturity string         `json:"exploit_maturity,omitempty"`
	Published       string         `json:"published,omitempty"`
	Raw             map[string]any `json:"raw"`
}

// Threat is a scored hypothesis produced by a rule for a vulnerability.
type Threat struct {
	ID              int64      `json:"id"`
	Project         string     `json:"project"`
	ScanID          ScanID     `json:"scan_id"`
	VulnerabilityID int64      `json:"vulnerability_id"`
	RuleID          string     `json:"rule_id"`
	Score           float64    `json:"score"`
	Status          Status     `json:"status"`
	Hypothesis      Hypothesis `json:"hypothesis"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Hypothesis is the threat payload exported to reports and the API.
type Hypothesis struct {
	Target             Target   `json:"target"`
	Value              Value    `json:"value"`
	Pattern            []string `json:"pattern"`
	Objective          []string `json:"objective"`
	Evidence           Evidence `json:"evidence"`
	RecommendedActions []string `json:"recommended_actions"`
	Score              float64  `json:"score"`
	Status             Status   `json:"status"`
}

type Target struct {
	Service   string         `json:"service"`
	Component map[string]any `json:"component"`
}

type Value struct {
	DataClass   []string `json:"data_class"`
	ValueMetric string   `json:"value_metric"`
}

type Evidence struct {
	CVE             *string        `json:"cve"`
	Severity        *string        `json:"severity"`
	CVSS            *float64       `json:"cvss"`
	ExploitMaturity *string        `json:"exploit_maturity"`
	Intel           map[string]any `json:"intel"`
}

// Export is the report/API view of a threat: the hypothesis plus identifiers.
type Export struct {
	Hypothesis
	RuleID   string `json:"rule_id"`
	ThreatID int64  `json:"threat_id"`
}

// Export builds the report/API view of t.
func (t *Threat) Export() Export {
	h := t.Hypothesis
	h.Score = t.Score
	h.Status = t.Status
	return Export{Hypothesis: h, RuleID: t.RuleID, ThreatID: t.ID}
}

// Summary rekap scan dan threat untuk satu project
type Summary struct {
	Project     string         `json:"project,omitempty"`
	SinceDays   int            `json:"since_days"`
	TotalScans  int            `json:"total_scans"`
	Counts      SeverityCounts `json:"counts"`
	OpenThreats int            `json:"open_threats"`
	MaxScore    float64        `json:"max_score"`
}
