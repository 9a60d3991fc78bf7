package sqlrepo

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	"github.com/bryanwahyu/sbom-tm/internal/domain/threats"
)

// maxOffset bounds OFFSET so (page-1)*pageSize never overflows.
const maxOffset = math.MaxInt32

const scanColumns = `id, project, sbom_path, critical, high, medium, low, unknown, total, created_at`

// CreateScan inserts a scan record with zero counts.
func (s *Store) CreateScan(ctx context.Context, sc *threats.ProjectScan) error {
	sc.CreatedAt = orNow(sc.CreatedAt)
	const q = `
INSERT INTO project_scans (` + scanColumns + `)
VALUES (?,?,?,?,?,?,?,?,?,?)`
	_, err := s.exec(ctx, q,
		string(sc.ID), sc.Project, sc.SBOMPath,
		sc.Counts.Critical, sc.Counts.High, sc.Counts.Medium, sc.Counts.Low, sc.Counts.Unknown, sc.Counts.Total,
		sc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting scan: %w", err)
	}
	return nil
}

// UpdateScanCounts updates only the counts columns for a specific scan id
func (s *Store) UpdateScanCounts(ctx context.Context, id threats.ScanID, c threats.SeverityCounts) error {
	const q = `
UPDATE project_scans
SET critical = ?, high = ?, medium = ?, low = ?, unknown = ?, total = ?
WHERE id = ?`
	res, err := s.exec(ctx, q, c.Critical, c.High, c.Medium, c.Low, c.Unknown, c.Total, string(id))
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		_, err := s.GetScan(ctx, id)
		return err
	}
	return nil
}

// GetScan by id
func (s *Store) GetScan(ctx context.Context, id threats.ScanID) (*threats.ProjectScan, error) {
	row := s.queryRow(ctx, `SELECT `+scanColumns+` FROM project_scans WHERE id = ?`, string(id))
	sc, err := scanScan(row)
	if err != nil {
		return nil, notFound(err)
	}
	return sc, nil
}

// LatestScans of a project, newest first. An empty project lists all.
func (s *Store) LatestScans(ctx context.Context, project string, limit int) ([]*threats.ProjectScan, error) {
	if limit <= 0 {
		limit = 20
	}
	q := `SELECT ` + scanColumns + ` FROM project_scans`
	var args []any
	if project != "" {
		q += ` WHERE project = ?`
		args = append(args, project)
	}
	q += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)
	return s.listScans(ctx, q, args...)
}

// PaginateScans with offset + limit (classic pagination)
func (s *Store) PaginateScans(ctx context.Context, project string, page, pageSize int) (threats.PaginatedScans, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if page-1 > maxOffset/pageSize {
		page = maxOffset/pageSize + 1
	}
	offset := (page - 1) * pageSize

	where := ""
	var args []any
	if project != "" {
		where = ` WHERE project = ?`
		args = append(args, project)
	}

	var total int64
	if err := s.queryRow(ctx, `SELECT COUNT(*) FROM project_scans`+where, args...).Scan(&total); err != nil {
		return threats.PaginatedScans{}, fmt.Errorf("counting scans: %w", err)
	}

	q := `SELECT ` + scanColumns + ` FROM project_scans` + where + ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	scans, err := s.listScans(ctx, q, append(args, pageSize, offset)...)
	if err != nil {
		return threats.PaginatedScans{}, err
	}
	if scans == nil {
		scans = []*threats.ProjectScan{}
	}

	return threats.PaginatedScans{
		Data:       scans,
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: int(math.Ceil(float64(total) / float64(pageSize))),
	}, nil
}

func (s *Store) listScans(ctx context.Context, q string, args ...any) ([]*threats.ProjectScan, error) {
	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying scans: %w", err)
	}
	defer rows.Close()

	var out []*threats.ProjectScan
	for rows.Next() {
		sc, err := scanScan(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScan(r rowScanner) (*threats.ProjectScan, error) {
	var sc threats.ProjectScan
	var id string
	c := &sc.Counts
	if err := r.Scan(&id, &sc.Project, &sc.SBOMPath,
		&c.Critical, &c.High, &c.Medium, &c.Low, &c.Unknown, &c.Total,
		&sc.CreatedAt,
	); err != nil {
		return nil, err
	}
	sc.ID = threats.ScanID(id)
	return &sc, nil
}

// SaveComponent inserts c and sets its id.
func (s *Store) SaveComponent(ctx context.Context, c *threats.Component) error {
	hashes, err := encodeJSON(orEmptyStrings(c.Hashes))
	if err != nil {
		return err
	}
	props, err := encodeJSON(orEmptyStrings(c.Properties))
	if err != nil {
		return err
	}
	const q = `
INSERT INTO components (scan_id, name, version, purl, supplier, hashes, properties)
VALUES (?,?,?,?,?,?,?)`
	id, err := s.insert(ctx, q,
		string(c.ScanID), c.Name, nullString(c.Version), nullString(c.PURL), nullString(c.Supplier),
		hashes, props,
	)
	if err != nil {
		return fmt.Errorf("inserting component: %w", err)
	}
	c.ID = id
	return nil
}

// SaveVulnerability inserts v and sets its id.
func (s *Store) SaveVulnerability(ctx context.Context, v *threats.Vulnerability) error {
	raw := v.Raw
	if raw == nil {
		raw = map[string]any{}
	}
	payload, err := encodeJSON(raw)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO vulnerabilities (component_id, cve, severity, cvss, exploit_maturity, published, raw)
VALUES (?,?,?,?,?,?,?)`
	id, err := s.insert(ctx, q,
		v.ComponentID, nullString(v.CVE), nullString(v.Severity), nullFloat(v.CVSS),
		nullString(v.ExploitMaturity), nullString(v.Published), payload,
	)
	if err != nil {
		return fmt.Errorf("inserting vulnerability: %w", err)
	}
	v.ID = id
	return nil
}

// Summary rekap scan dan threat sejak N hari terakhir.
func (s *Store) Summary(ctx context.Context, project string, sinceDays int) (threats.Summary, error) {
	if sinceDays <= 0 {
		sinceDays = 7
	}
	cut := now().AddDate(0, 0, -sinceDays)
	out := threats.Summary{Project: project, SinceDays: sinceDays}

	filter := ` WHERE created_at >= ?`
	args := []any{cut}
	if project != "" {
		filter += ` AND project = ?`
		args = append(args, project)
	}

	c := &out.Counts
	q := `
SELECT COUNT(*),
       COALESCE(SUM(critical),0), COALESCE(SUM(high),0), COALESCE(SUM(medium),0),
       COALESCE(SUM(low),0), COALESCE(SUM(unknown),0), COALESCE(SUM(total),0)
FROM project_scans` + filter
	if err := s.queryRow(ctx, q, args...).Scan(&out.TotalScans,
		&c.Critical, &c.High, &c.Medium, &c.Low, &c.Unknown, &c.Total); err != nil {
		return threats.Summary{}, fmt.Errorf("summarising scans: %w", err)
	}

	var maxScore sql.NullFloat64
	q = `SELECT COUNT(*), MAX(score) FROM threats` + filter + ` AND status = ?`
	if err := s.queryRow(ctx, q, append(args, string(threats.StatusOpen))...).Scan(&out.OpenThreats, &maxScore); err != nil {
		return threats.Summary{}, fmt.Errorf("summarising threats: %w", err)
	}
	out.MaxScore = maxScore.Float64
	return out, nil
}

func orEmptyStrings(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
