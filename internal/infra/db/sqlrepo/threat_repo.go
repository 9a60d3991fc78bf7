package sqlrepo

import (
	"context"
	"fmt"

	"github.com/bryanwahyu/sbom-tm/internal/domain/threats"
)

const threatColumns = `id, project, scan_id, vulnerability_id, rule_id, score, status, hypothesis, created_at`

// SaveThreat inserts t and sets its id. An empty status is stored as open.
func (s *Store) SaveThreat(ctx context.Context, t *threats.Threat) error {
	if t.Status == "" {
		t.Status = threats.StatusOpen
	}
	t.CreatedAt = orNow(t.CreatedAt)
	hyp, err := encodeJSON(t.Hypothesis)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO threats (project, scan_id, vulnerability_id, rule_id, score, status, hypothesis, created_at)
VALUES (?,?,?,?,?,?,?,?)`
	id, err := s.insert(ctx, q,
		t.Project, string(t.ScanID), t.VulnerabilityID, t.RuleID, t.Score, string(t.Status), hyp, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting threat: %w", err)
	}
	t.ID = id
	return nil
}

// ListThreats of a project in insertion order. An empty project lists all.
func (s *Store) ListThreats(ctx context.Context, project string) ([]*threats.Threat, error) {
	q := `SELECT ` + threatColumns + ` FROM threats`
	var args []any
	if project != "" {
		q += ` WHERE project = ?`
		args = append(args, project)
	}
	return s.listThreats(ctx, q+` ORDER BY id`, args...)
}

// ListThreatsByScan returns the threats of one scan, highest score first.
func (s *Store) ListThreatsByScan(ctx context.Context, id threats.ScanID) ([]*threats.Threat, error) {
	q := `SELECT ` + threatColumns + ` FROM threats WHERE scan_id = ? ORDER BY score DESC, id`
	return s.listThreats(ctx, q, string(id))
}

func (s *Store) GetThreat(ctx context.Context, id int64) (*threats.Threat, error) {
	row := s.queryRow(ctx, `SELECT `+threatColumns+` FROM threats WHERE id = ?`, id)
	t, err := scanThreat(row)
	if err != nil {
		return nil, notFound(err)
	}
	return t, nil
}

// UpdateThreatStatus hanya update kolom status
func (s *Store) UpdateThreatStatus(ctx context.Context, id int64, status threats.Status) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", threats.ErrInvalidStatus, status)
	}
	res, err := s.exec(ctx, `UPDATE threats SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// MySQL reports 0 affected rows when the value is unchanged.
		if _, err := s.GetThreat(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) listThreats(ctx context.Context, q string, args ...any) ([]*threats.Threat, error) {
	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying threats: %w", err)
	}
	defer rows.Close()

	var out []*threats.Threat
	for rows.Next() {
		t, err := scanThreat(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanThreat(r rowScanner) (*threats.Threat, error) {
	var t threats.Threat
	var scanID, status, hyp string
	if err := r.Scan(&t.ID, &t.Project, &scanID, &t.VulnerabilityID, &t.RuleID, &t.Score, &status, &hyp, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.ScanID = threats.ScanID(scanID)
	t.Status = threats.Status(status)
	if err := decodeJSON(hyp, &t.Hypothesis); err != nil {
		return nil, fmt.Errorf("decoding hypothesis of threat %d: %w", t.ID, err)
	}
	return &t, nil
}
