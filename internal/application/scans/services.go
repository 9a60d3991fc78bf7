package scans

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/bryanwahyu/sbom-tm/internal/application"
	"github.com/bryanwahyu/sbom-tm/internal/domain/scanerrors"
	"github.com/bryanwahyu/sbom-tm/internal/domain/threats"
	"github.com/bryanwahyu/sbom-tm/internal/infra/executor/trivy"
	"github.com/bryanwahyu/sbom-tm/internal/logging"
	"github.com/bryanwahyu/sbom-tm/internal/report"
	"github.com/bryanwahyu/sbom-tm/internal/rules"
	"github.com/bryanwahyu/sbom-tm/internal/sbom"
	"github.com/bryanwahyu/sbom-tm/internal/scoring"
	"github.com/bryanwahyu/sbom-tm/internal/servicectx"
)

// FallbackReportName is read from the cache dir when the scanner fails.
const FallbackReportName = "sample_trivy_report.json"

// Intel annotates vulnerabilities with threat intelligence. The error is
// informational: vulnerabilities are annotated even when it is non-nil.
// Offline enrichment must not leave the machine.
type Intel interface {
	Enrich(ctx context.Context, vulns []map[string]any, offline bool) error
}

// RuleEvaluator produces hypotheses for one component/vulnerability pair.
type RuleEvaluator interface {
	Evaluate(component, vuln, ctx, intel map[string]any) []rules.Hypothesis
}

// ReportWriter renders the exported threats of a scan.
type ReportWriter interface {
	WriteAll(project string, items []threats.Export) (report.Paths, error)
}

// Service implements use-cases untuk scan pipeline.
// Artifacts and ScanErrors are optional.
type Service struct {
	Store      threats.Store
	Scanner    threats.VulnerabilityScanner
	Rules      RuleEvaluator
	Intel      Intel
	Reports    ReportWriter
	Artifacts  threats.ArtifactStore
	ScanErrors scanerrors.Repository
	Clock      application.Clock
	Log        *slog.Logger
	// CacheDir holds the fallback scanner report.
	CacheDir string
}

// Request untuk satu scan
type Request struct {
	SBOMPath    string `json:"sbom_path"`
	Project     string `json:"project"`
	ContextPath string `json:"context_path,omitempty"`
	Offline     bool   `json:"offline"`
}

// Result of a completed scan.
type Result struct {
	ScanID             threats.ScanID         `json:"scan_id"`
	Project            string                 `json:"project"`
	ComponentCount     int                    `json:"component_count"`
	VulnerabilityCount int                    `json:"vulnerability_count"`
	ThreatCount        int                    `json:"threat_count"`
	Counts             threats.SeverityCounts `json:"counts"`
	JSONReport         string                 `json:"json_report"`
	HTMLReport         string                 `json:"html_report"`
	SARIFReport        string                 `json:"sarif_report"`
	ArtifactURLs       map[string]string      `json:"artifact_urls,omitempty"`
}

// RunUntilDone → jalanin scan dengan context.Background()
// cocok dipanggil dari goroutine di router supaya gak kena context canceled
func (s *Service) RunUntilDone(req Request) (Result, error) {
	return s.Run(context.Background(), req)
}

// Run jalankan pipeline: sbom → trivy → rules → simpan → report
func (s *Service) Run(ctx context.Context, req Request) (Result, error) {
	log := logging.OrDefault(s.Log)
	clock := application.OrSystem(s.Clock)
	if strings.TrimSpace(req.Project) == "" {
		req.Project = "default"
	}
	scanID := threats.ScanID(uuid.New().String())
	log = log.With("scan_id", scanID, "project", req.Project)

	components, err := sbom.LoadComponents(req.SBOMPath)
	if err != nil {
		return Result{}, err
	}
	mapping, err := servicectx.Load(req.ContextPath)
	if err != nil {
		return Result{}, err
	}

	// jalankan trivy sekali, tanpa retry
	trivyReport, err := s.scan(ctx, scanID, req)
	if err != nil {
		return Result{}, err
	}
	index := trivy.ExtractVulnerabilities(trivyReport)

	res := Result{ScanID: scanID, Project: req.Project, ComponentCount: len(components)}
	var exports []threats.Export
	var intelErr error

	err = s.Store.InTx(ctx, func(repo threats.Repository) error {
		now := clock.Now()
		scan := &threats.ProjectScan{ID: scanID, Project: req.Project, SBOMPath: req.SBOMPath, CreatedAt: now}
		if err := repo.CreateScan(ctx, scan); err != nil {
			return err
		}

		var saved []*threats.Vulnerability
		for _, pc := range components {
			comp := &threats.Component{
				ScanID:     scanID,
				Name:       pc.Name,
				Version:    pc.Version,
				PURL:       pc.PURL,
				Supplier:   pc.Supplier,
				Hashes:     pc.Hashes,
				Properties: pc.Properties,
			}
			if err := repo.SaveComponent(ctx, comp); err != nil {
				return err
			}

			vulns := trivy.VulnerabilitiesFor(pc.PURL, pc.Name, index)
			if len(vulns) == 0 {
				continue
			}
			sc := servicectx.Resolve(pc, mapping)
			ctxMap := sc.Map()
			compMap := pc.Map()

			if err := s.Intel.Enrich(ctx, vulns, req.Offline); err != nil && intelErr == nil {
				intelErr = err
			}

			for _, v := range vulns {
				rec := vulnerabilityRecord(comp.ID, v)
				if err := repo.SaveVulnerability(ctx, rec); err != nil {
					return err
				}
				saved = append(saved, rec)

				intel, _ := v["threatintel"].(map[string]any)
				for _, h := range s.Rules.Evaluate(compMap, v, ctxMap, intel) {
					mult := h.PatternMultiplier * scoring.SeverityMultiplier(h.RuleSeverity)
					score := scoring.ComputeScore(v, ctxMap, h.ScoreFactors, mult)
					t := &threats.Threat{
						Project:         req.Project,
						ScanID:          scanID,
						VulnerabilityID: rec.ID,
						RuleID:          h.RuleID,
						Score:           score,
						Status:          threats.StatusOpen,
						Hypothesis:      buildHypothesis(compMap, sc, v, intel, h, score),
						CreatedAt:       now,
					}
					if err := repo.SaveThreat(ctx, t); err != nil {
						return err
					}
					exports = append(exports, t.Export())
				}
			}
		}

		res.VulnerabilityCount = len(saved)
		res.Counts = threats.CountSeverities(saved)
		return repo.UpdateScanCounts(ctx, scanID, res.Counts)
	})
	if err != nil {
		return Result{}, fmt.Errorf("persisting scan: %w", err)
	}
	res.ThreatCount = len(exports)
	// dicatat setelah commit; sqlite cuma punya satu koneksi
	if intelErr != nil {
		s.recordError(ctx, scanID, req.Project, scanerrors.PhaseThreatIntel, intelErr, nil)
	}

	paths, err := s.Reports.WriteAll(req.Project, exports)
	if err != nil {
		s.recordError(ctx, scanID, req.Project, scanerrors.PhaseReport, err, nil)
		return res, fmt.Errorf("writing reports: %w", err)
	}
	res.JSONReport, res.HTMLReport, res.SARIFReport = paths.JSON, paths.HTML, paths.SARIF
	res.ArtifactURLs = s.upload(ctx, scanID, req.Project, paths)

	log.Info("scan completed",
		"components", res.ComponentCount,
		"vulnerabilities", res.VulnerabilityCount,
		"threats", res.ThreatCount,
	)
	return res, nil
}

// scan runs the scanner; on a scanner failure the cached fallback report is
// used when present.
func (s *Service) scan(ctx context.Context, scanID threats.ScanID, req Request) (map[string]any, error) {
	out, err := s.Scanner.ScanSBOM(ctx, threats.RunRequest{SBOMPath: req.SBOMPath, Offline: req.Offline})
	if err == nil {
		return out.Report, nil
	}
	if !errors.Is(err, threats.ErrScannerFailed) || s.CacheDir == "" {
		return nil, err
	}
	fallback := filepath.Join(s.CacheDir, FallbackReportName)
	data, rerr := os.ReadFile(fallback)
	if rerr != nil {
		return nil, err
	}
	var doc map[string]any
	if jerr := json.Unmarshal(data, &doc); jerr != nil {
		return nil, fmt.Errorf("%w (fallback report %s: %v)", err, fallback, jerr)
	}
	logging.OrDefault(s.Log).Warn("scanner failed, using fallback report", "error", err, "fallback", fallback)
	s.recordError(ctx, scanID, req.Project, scanerrors.PhaseTrivy, err, map[string]any{"fallback": fallback})
	return doc, nil
}

// upload report ke artifact store, kalau dikonfigurasi
func (s *Service) upload(ctx context.Context, scanID threats.ScanID, project string, p report.Paths) map[string]string {
	if s.Artifacts == nil {
		return nil
	}
	urls := map[string]string{}
	for kind, path := range map[string]string{"json": p.JSON, "html": p.HTML, "sarif": p.SARIF} {
		key := fmt.Sprintf("%s/%s/%s", report.SafeName(project), scanID, filepath.Base(path))
		url, err := s.Artifacts.Upload(ctx, path, key)
		if err != nil {
			logging.OrDefault(s.Log).Warn("report upload failed", "kind", kind, "error", err)
			s.recordError(ctx, scanID, project, scanerrors.PhaseUpload, err, map[string]any{"file": path})
			continue
		}
		urls[kind] = url
	}
	return urls
}

func (s *Service) recordError(ctx context.Context, scanID threats.ScanID, project string, phase scanerrors.Phase, err error, details map[string]any) {
	if s.ScanErrors == nil {
		return
	}
	e := &scanerrors.ScanError{
		Project:   project,
		ScanID:    string(scanID),
		Phase:     phase,
		Message:   err.Error(),
		CreatedAt: application.OrSystem(s.Clock).Now(),
	}
	if details != nil {
		if b, jerr := json.Marshal(details); jerr == nil {
			e.DetailsJSON = string(b)
		}
	}
	if serr := s.ScanErrors.Save(ctx, e); serr != nil {
		logging.OrDefault(s.Log).Error("saving scan error", "phase", phase, "error", serr)
	}
}

func vulnerabilityRecord(componentID int64, v map[string]any) *threats.Vulnerability {
	return &threats.Vulnerability{
		ComponentID:     componentID,
		CVE:             firstString(v, "VulnerabilityID", "cve"),
		Severity:        firstString(v, "Severity", "severity"),
		CVSS:            scoring.CVSS(v),
		ExploitMaturity: firstString(v, "Exploitability", "exploit_maturity"),
		Published:       firstString(v, "PublishedDate", "published"),
		Raw:             v,
	}
}

func buildHypothesis(component map[string]any, sc *servicectx.ServiceContext, v, intel map[string]any, h rules.Hypothesis, score float64) threats.Hypothesis {
	service := "unknown"
	dataClass := []string{}
	valueMetric := "medium"
	if sc != nil {
		if sc.Service != "" {
			service = sc.Service
		}
		if sc.DataClass != nil {
			dataClass = sc.DataClass
		}
		if sc.ValueMetric != "" {
			valueMetric = sc.ValueMetric
		}
	}
	if intel == nil {
		intel = map[string]any{}
	}
	return threats.Hypothesis{
		Target:    threats.Target{Service: service, Component: component},
		Value:     threats.Value{DataClass: dataClass, ValueMetric: valueMetric},
		Pattern:   h.Pattern,
		Objective: h.Objective,
		Evidence: threats.Evidence{
			CVE:             optional(firstString(v, "VulnerabilityID", "cve")),
			Severity:        optional(firstString(v, "Severity", "severity")),
			CVSS:            scoring.CVSS(v),
			ExploitMaturity: optional(firstString(v, "Exploitability", "exploit_maturity")),
			Intel:           intel,
		},
		RecommendedActions: h.Recommendations,
		Score:              score,
		Status:             threats.StatusOpen,
	}
}

// firstString returns the first set value of keys as text. Non-string
// values (numeric IDs in hand-written reports) are formatted.
func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case nil:
		case bool:
			if v {
				return "true"
			}
		case string:
			if v != "" {
				return v
			}
		case float64:
			if v != 0 {
				return strconv.FormatFloat(v, 'f', -1, 64)
			}
		case int:
			if v != 0 {
				return fmt.Sprint(v)
			}
		default:
			if s := fmt.Sprint(v); s != "" && s != "[]" && s != "map[]" {
				return s
			}
		}
	}
	return ""
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

//
// ==== QUERIES ====
//

// ListThreats semua threat untuk project ("" = semua project)
func (s *Service) ListThreats(ctx context.Context, project string) ([]threats.Export, error) {
	list, err := s.Store.ListThreats(ctx, project)
	if err != nil {
		return nil, err
	}
	return exportAll(list), nil
}

// ScanThreats returns the threats of one scan, highest score first.
func (s *Service) ScanThreats(ctx context.Context, id threats.ScanID) ([]threats.Export, error) {
	if _, err := s.Store.GetScan(ctx, id); err != nil {
		return nil, err
	}
	list, err := s.Store.ListThreatsByScan(ctx, id)
	if err != nil {
		return nil, err
	}
	return exportAll(list), nil
}

// GetThreat ambil 1 threat by id
func (s *Service) GetThreat(ctx context.Context, id int64) (threats.Export, error) {
	t, err := s.Store.GetThreat(ctx, id)
	if err != nil {
		return threats.Export{}, err
	}
	return t.Export(), nil
}

// UpdateThreatStatus triage: open, mitigated, accepted, false_positive.
func (s *Service) UpdateThreatStatus(ctx context.Context, id int64, status threats.Status) (threats.Export, error) {
	if !status.Valid() {
		return threats.Export{}, fmt.Errorf("%w: %q", threats.ErrInvalidStatus, status)
	}
	if err := s.Store.UpdateThreatStatus(ctx, id, status); err != nil {
		return threats.Export{}, err
	}
	return s.GetThreat(ctx, id)
}

// LatestScans ambil N scan terakhir
func (s *Service) LatestScans(ctx context.Context, project string, limit int) ([]*threats.ProjectScan, error) {
	return s.Store.LatestScans(ctx, project, limit)
}

// PaginateScans ambil scan per halaman
func (s *Service) PaginateScans(ctx context.Context, project string, page, pageSize int) (threats.PaginatedScans, error) {
	return s.Store.PaginateScans(ctx, project, page, pageSize)
}

// GetScan ambil 1 scan by id
func (s *Service) GetScan(ctx context.Context, id threats.ScanID) (*threats.ProjectScan, error) {
	return s.Store.GetScan(ctx, id)
}

// Summary rekap hasil scan N hari terakhir
func (s *Service) Summary(ctx context.Context, project string, sinceDays int) (threats.Summary, error) {
	return s.Store.Summary(ctx, project, sinceDays)
}

// ScanErrorsFor lists recovered pipeline errors of a project.
func (s *Service) ScanErrorsFor(ctx context.Context, project string, limit int) ([]*scanerrors.ScanError, error) {
	if s.ScanErrors == nil {
		return []*scanerrors.ScanError{}, nil
	}
	return s.ScanErrors.ListByProject(ctx, project, limit)
}

func exportAll(list []*threats.Threat) []threats.Export {
	out := make([]threats.Export, 0, len(list))
	for _, t := range list {
		out = append(out, t.Export())
	}
	return out
}
