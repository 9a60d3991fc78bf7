package sqlrepo

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/bryanwahyu/sbom-tm/internal/domain/scanerrors"
)

type ScanErrorRepository struct {
	q       querier
	dialect Dialect
}

var _ scanerrors.Repository = (*ScanErrorRepository)(nil)

func NewScanErrorRepository(db *sql.DB, d Dialect) *ScanErrorRepository {
	return &ScanErrorRepository{q: db, dialect: d}
}

func (r *ScanErrorRepository) Save(ctx context.Context, e *scanerrors.ScanError) error {
	const q = `
INSERT INTO scan_errors (project, scan_id, phase, message, details_json, created_at)
VALUES (?,?,?,?,?,?)`
	msg := e.Message
	if strings.TrimSpace(msg) == "" {
		msg = "-"
	}
	details := e.DetailsJSON
	if strings.TrimSpace(details) == "" {
		details = "{}"
	} else {
		// ensure valid json; if invalid, wrap as string field
		var js any
		if json.Unmarshal([]byte(details), &js) != nil {
			b, _ := json.Marshal(map[string]string{"raw": details})
			details = string(b)
		}
	}
	e.DetailsJSON = details
	e.CreatedAt = orNow(e.CreatedAt)

	args := []any{dashIfEmpty(e.Project), dashIfEmpty(e.ScanID), dashIfEmpty(string(e.Phase)), msg, details, e.CreatedAt}
	if r.dialect.Returning {
		return r.q.QueryRowContext(ctx, r.dialect.Rebind(q+" RETURNING id"), args...).Scan(&e.ID)
	}
	res, err := r.q.ExecContext(ctx, r.dialect.Rebind(q), args...)
	if err != nil {
		return err
	}
	e.ID, err = res.LastInsertId()
	return err
}

// ListByProject returns the newest errors of a project first.
func (r *ScanErrorRepository) ListByProject(ctx context.Context, project string, limit int) ([]*scanerrors.ScanError, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT id, project, scan_id, phase, message, details_json, created_at
FROM scan_errors
WHERE project = ?
ORDER BY created_at DESC, id DESC
LIMIT ?`
	rows, err := r.q.QueryContext(ctx, r.dialect.Rebind(q), project, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*scanerrors.ScanError
	for rows.Next() {
		var e scanerrors.ScanError
		var phase string
		if err := rows.Scan(&e.ID, &e.Project, &e.ScanID, &phase, &e.Message, &e.DetailsJSON, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Phase = scanerrors.Phase(phase)
		out = append(out, &e)
	}
	return out, rows.Err()
}
