package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/bryanwahyu/sbom-tm/internal/application"
	"github.com/bryanwahyu/sbom-tm/internal/domain/ai"
	"github.com/bryanwahyu/sbom-tm/internal/domain/analyst"
	"github.com/bryanwahyu/sbom-tm/internal/domain/threats"
	"github.com/bryanwahyu/sbom-tm/internal/logging"
)

// ThreatSource is the read side of the threat repository used here.
type ThreatSource interface {
	GetScan(ctx context.Context, id threats.ScanID) (*threats.ProjectScan, error)
	ListThreatsByScan(ctx context.Context, id threats.ScanID) ([]*threats.Threat, error)
}

type Service struct {
	client   ai.Client
	digests  ai.Digester
	threats  ThreatSource
	analyses analyst.Repository
	clock    application.Clock
	log      *slog.Logger
}

func NewService(client ai.Client, digests ai.Digester, src ThreatSource, analyses analyst.Repository, clock application.Clock, log *slog.Logger) *Service {
	return &Service{
		client:   client,
		digests:  digests,
		threats:  src,
		analyses: analyses,
		clock:    application.OrSystem(clock),
		log:      logging.OrDefault(log),
	}
}

// AnalyzeScan minta assessment untuk semua threat di satu scan, lalu simpan.
func (s *Service) AnalyzeScan(ctx context.Context, scanID threats.ScanID) (*analyst.Analysis, error) {
	if s.client == nil || s.digests == nil {
		return nil, ai.ErrNotConfigured
	}
	scan, err := s.threats.GetScan(ctx, scanID)
	if err != nil {
		return nil, err
	}
	list, err := s.threats.ListThreatsByScan(ctx, scanID)
	if err != nil {
		return nil, err
	}
	items := make([]threats.Export, 0, len(list))
	for _, t := range list {
		items = append(items, t.Export())
	}
	digest, err := s.digests.Digest(scan, items)
	if err != nil {
		return nil, err
	}

	out, err := s.client.Analyze(ctx, digest)
	if err != nil {
		return nil, err
	}

	a := &analyst.Analysis{
		ID:        analyst.AnalysisID(uuid.New().String()),
		Project:   scan.Project,
		ScanID:    string(scan.ID),
		Model:     s.client.Model(),
		Result:    normalize(out),
		CreatedAt: s.clock.Now(),
	}
	if err := s.analyses.Save(ctx, a); err != nil {
		return nil, fmt.Errorf("saving analysis: %w", err)
	}
	s.log.Info("scan analysed", "scan_id", scanID, "model", a.Model, "threats", len(items))
	return a, nil
}

// LatestAnalysis ambil analysis terakhir untuk scan
func (s *Service) LatestAnalysis(ctx context.Context, scanID threats.ScanID) (*analyst.Analysis, error) {
	return s.analyses.LatestByScan(ctx, string(scanID))
}

// result_json harus JSON object; jawaban lain dibungkus
func normalize(out string) string {
	var obj map[string]any
	if json.Unmarshal([]byte(out), &obj) == nil {
		return out
	}
	b, _ := json.Marshal(map[string]string{"raw": out})
	return string(b)
}
