package ai_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appai "github.com/bryanwahyu/sbom-tm/internal/application/ai"
	"github.com/bryanwahyu/sbom-tm/internal/domain/ai"
	"github.com/bryanwahyu/sbom-tm/internal/domain/threats"
	"github.com/bryanwahyu/sbom-tm/internal/infra/ai/prompt"
	"github.com/bryanwahyu/sbom-tm/internal/infra/db/sqlite"
	"github.com/bryanwahyu/sbom-tm/internal/infra/db/sqlrepo"
)

type stubClient struct {
	out    string
	err    error
	digest string
}

func (s *stubClient) Analyze(_ context.Context, digest string) (string, error) {
	s.digest = digest
	return s.out, s.err
}

func (s *stubClient) Model() string { return "stub" }

type stubDigester struct {
	items []threats.Export
}

func (d *stubDigester) Digest(scan *threats.ProjectScan, items []threats.Export) (string, error) {
	d.items = items
	return "digest of " + string(scan.ID), nil
}

func setup(t *testing.T) (*sqlrepo.Store, *sqlrepo.AnalystRepository, threats.ScanID) {
	t.Helper()
	ctx := context.Background()
	db, err := sqlite.Connect(ctx, filepath.Join(t.TempDir(), "ai.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, sqlite.Migrate(ctx, db))

	store := sqlrepo.New(db, sqlrepo.SQLite)
	scan := &threats.ProjectScan{ID: "scan-1", Project: "payments", SBOMPath: "bom.json"}
	require.NoError(t, store.CreateScan(ctx, scan))
	c := &threats.Component{ScanID: scan.ID, Name: "log4j-core", Version: "2.14.1"}
	require.NoError(t, store.SaveComponent(ctx, c))
	v := &threats.Vulnerability{ComponentID: c.ID, CVE: "CVE-2021-44228", Severity: "CRITICAL", Raw: map[string]any{}}
	require.NoError(t, store.SaveVulnerability(ctx, v))
	cve := "CVE-2021-44228"
	require.NoError(t, store.SaveThreat(ctx, &threats.Threat{
		Project:         scan.Project,
		ScanID:          scan.ID,
		VulnerabilityID: v.ID,
		RuleID:          "kev-known-exploited",
		Score:           91,
		Hypothesis: threats.Hypothesis{
			Target:   threats.Target{Service: "payments-api", Component: map[string]any{"name": "log4j-core", "version": "2.14.1"}},
			Evidence: threats.Evidence{CVE: &cve, Intel: map[string]any{"kev_listed": true}},
		},
	}))
	return store, sqlrepo.NewAnalystRepository(db, sqlrepo.SQLite), scan.ID
}

func TestAnalyzeScanStoresResult(t *testing.T) {
	store, analyses, scanID := setup(t)
	client := &stubClient{out: `{"advice":"patch log4j"}`}
	svc := appai.NewService(client, prompt.ScanDigester{}, store, analyses, nil, nil)

	a, err := svc.AnalyzeScan(context.Background(), scanID)
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, "payments", a.Project)
	assert.Equal(t, "stub", a.Model)
	assert.Contains(t, client.digest, "CVE-2021-44228")

	got, err := svc.LatestAnalysis(context.Background(), scanID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.JSONEq(t, `{"advice":"patch log4j"}`, got.Result)
	assert.WithinDuration(t, time.Now(), got.CreatedAt, time.Minute)
}

func TestAnalyzeScanUsesDigester(t *testing.T) {
	store, analyses, scanID := setup(t)
	client := &stubClient{out: `{}`}
	digests := &stubDigester{}

	_, err := appai.NewService(client, digests, store, analyses, nil, nil).AnalyzeScan(context.Background(), scanID)
	require.NoError(t, err)
	assert.Equal(t, "digest of scan-1", client.digest)
	require.Len(t, digests.items, 1)
	assert.Equal(t, "kev-known-exploited", digests.items[0].RuleID)

	_, err = appai.NewService(client, nil, store, analyses, nil, nil).AnalyzeScan(context.Background(), scanID)
	require.ErrorIs(t, err, ai.ErrNotConfigured)
}

func TestAnalyzeScanWrapsNonJSON(t *testing.T) {
	store, analyses, scanID := setup(t)
	svc := appai.NewService(&stubClient{out: "looks fine"}, prompt.ScanDigester{}, store, analyses, nil, nil)

	a, err := svc.AnalyzeScan(context.Background(), scanID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"raw":"looks fine"}`, a.Result)
}

func TestAnalyzeScanWithHeuristic(t *testing.T) {
	store, analyses, scanID := setup(t)
	svc := appai.NewService(prompt.Heuristic{}, prompt.ScanDigester{}, store, analyses, nil, nil)

	a, err := svc.AnalyzeScan(context.Background(), scanID)
	require.NoError(t, err)
	assert.Equal(t, prompt.HeuristicModel, a.Model)

	var out prompt.Assessment
	require.NoError(t, json.Unmarshal([]byte(a.Result), &out))
	require.Len(t, out.Findings, 1)
	assert.Equal(t, "critical", out.Findings[0].Severity)
}

func TestAnalyzeScanErrors(t *testing.T) {
	store, analyses, scanID := setup(t)
	ctx := context.Background()

	_, err := appai.NewService(nil, prompt.ScanDigester{}, store, analyses, nil, nil).AnalyzeScan(ctx, scanID)
	require.ErrorIs(t, err, ai.ErrNotConfigured)

	svc := appai.NewService(&stubClient{err: ai.ErrQuotaExceeded}, prompt.ScanDigester{}, store, analyses, nil, nil)
	_, err = svc.AnalyzeScan(ctx, scanID)
	require.ErrorIs(t, err, ai.ErrQuotaExceeded)

	_, err = svc.AnalyzeScan(ctx, "missing")
	require.ErrorIs(t, err, threats.ErrNotFound)

	_, err = svc.LatestAnalysis(ctx, scanID)
	require.ErrorIs(t, err, threats.ErrNotFound)
}
