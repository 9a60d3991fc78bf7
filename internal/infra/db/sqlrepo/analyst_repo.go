package sqlrepo

import (
	"context"
	"database/sql"
	"strings"

	"github.com/bryanwahyu/sbom-tm/internal/domain/analyst"
)

type AnalystRepository struct {
	q       querier
	dialect Dialect
}

var _ analyst.Repository = (*AnalystRepository)(nil)

func NewAnalystRepository(db *sql.DB, d Dialect) *AnalystRepository {
	return &AnalystRepository{q: db, dialect: d}
}

// Save inserts an analysis record
func (r *AnalystRepository) Save(ctx context.Context, a *analyst.Analysis) error {
	const q = `
INSERT INTO analyses (id, project, scan_id, model, result_json, created_at)
VALUES (?,?,?,?,?,?)`
	result := a.Result
	if strings.TrimSpace(result) == "" {
		// result_json harus JSON valid
		result = "{}"
	}
	a.CreatedAt = orNow(a.CreatedAt)
	_, err := r.q.ExecContext(ctx, r.dialect.Rebind(q),
		string(a.ID), dashIfEmpty(a.Project), a.ScanID, dashIfEmpty(a.Model), result, a.CreatedAt)
	return err
}

// LatestByScan returns the most recent analysis of a scan.
func (r *AnalystRepository) LatestByScan(ctx context.Context, scanID string) (*analyst.Analysis, error) {
	const q = `
SELECT id, project, scan_id, model, result_json, created_at
FROM analyses
WHERE scan_id = ?
ORDER BY created_at DESC
LIMIT 1`
	var a analyst.Analysis
	var id string
	err := r.q.QueryRowContext(ctx, r.dialect.Rebind(q), scanID).
		Scan(&id, &a.Project, &a.ScanID, &a.Model, &a.Result, &a.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	a.ID = analyst.AnalysisID(id)
	return &a, nil
}

