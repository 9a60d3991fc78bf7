package scanerrors

import "time"

// Phase of the scan pipeline where an error was recovered
type Phase string

const (
	PhaseTrivy       Phase = "trivy"
	PhaseThreatIntel Phase = "threatintel"
	PhaseReport      Phase = "report"
	PhaseUpload      Phase = "upload"
)

// ScanError represents a persisted scan error entry
type ScanError struct {
	ID          int64     `json:"id"`
	Project     string    `json:"project"`
	ScanID      string    `json:"scan_id,omitempty"`
	Phase       Phase     `json:"phase"`
	Message     string    `json:"message"`
	DetailsJSON string    `json:"details_json,omitempty"` // raw JSON string
	CreatedAt   time.Time `json:"created_at"`
}
