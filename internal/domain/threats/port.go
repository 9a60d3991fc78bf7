package threats

import "context"

// Repository port (interface untuk persistence)
type Repository interface {
	CreateScan(ctx context.Context, s *ProjectScan) error
	UpdateScanCounts(ctx context.Context, id ScanID, counts SeverityCounts) error
	GetScan(ctx context.Context, id ScanID) (*ProjectScan, error)
	LatestScans(ctx context.Context, project string, limit int) ([]*ProjectScan, error)
	PaginateScans(ctx context.Context, project string, page, pageSize int) (PaginatedScans, error)

	SaveComponent(ctx context.Context, c *Component) error
	SaveVulnerability(ctx context.Context, v *Vulnerability) error
	SaveThreat(ctx context.Context, t *Threat) error

	ListThreats(ctx context.Context, project string) ([]*Threat, error)
	ListThreatsByScan(ctx context.Context, id ScanID) ([]*Threat, error)
	GetThreat(ctx context.Context, id int64) (*Threat, error)
	UpdateThreatStatus(ctx context.Context, id int64, status Status) error

	Summary(ctx context.Context, project string, sinceDays int) (Summary, error)
}

// Store is a Repository that can run a unit of work atomically. fn sees a
// Repository bound to the transaction; it commits when fn returns nil.
type Store interface {
	Repository
	InTx(ctx context.Context, fn func(Repository) error) error
}

// VulnerabilityScanner port (interface untuk eksekusi scanner)
type VulnerabilityScanner interface {
	ScanSBOM(ctx context.Context, req RunRequest) (RunResult, error)
}

// ArtifactStore port (interface untuk penyimpanan report)
type ArtifactStore interface {
	Upload(ctx context.Context, localPath, key string) (string, error)
}
