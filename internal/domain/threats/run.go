package threats

// RunRequest untuk VulnerabilityScanner
type RunRequest struct {
	SBOMPath string
	Offline  bool
}

// RunResult hasil dari VulnerabilityScanner. Report is the decoded scanner
// JSON document.
type RunResult struct {
	Report     map[string]any
	ExitCode   int
	DurationMS int64
}
