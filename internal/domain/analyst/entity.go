package analyst

import "time"

// AnalysisID identifier type
type AnalysisID string

// Analysis represents an AI assessment of one scan's threats, stored for
// auditing and retrieval.
type Analysis struct {
	ID        AnalysisID `json:"id"`
	Project   string     `json:"project"`
	ScanID    string     `json:"scan_id"`
	Model     string     `json:"model"`
	Result    string     `json:"result"` // JSON string from the analyst
	CreatedAt time.Time  `json:"created_at"`
}
