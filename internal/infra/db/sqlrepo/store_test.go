package sqlrepo_test

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/sbom-tm/internal/domain/analyst"
	"github.com/bryanwahyu/sbom-tm/internal/domain/scanerrors"
	"github.com/bryanwahyu/sbom-tm/internal/domain/threats"
	"github.com/bryanwahyu/sbom-tm/internal/infra/db/sqlite"
	"github.com/bryanwahyu/sbom-tm/internal/infra/db/sqlrepo"
)

func newStore(t *testing.T) (*sqlrepo.Store, *sqlrepo.ScanErrorRepository, *sqlrepo.AnalystRepository) {
	t.Helper()
	ctx := context.Background()
	db, err := sqlite.Connect(ctx, filepath.Join(t.TempDir(), "db", "test.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, sqlite.Migrate(ctx, db))
	// idempotent
	require.NoError(t, sqlite.Migrate(ctx, db))
	return sqlrepo.New(db, sqlrepo.SQLite),
		sqlrepo.NewScanErrorRepository(db, sqlrepo.SQLite),
		sqlrepo.NewAnalystRepository(db, sqlrepo.SQLite)
}

func seedThreat(t *testing.T, repo threats.Repository, project string, scanID threats.ScanID, score float64) *threats.Threat {
	t.Helper()
	ctx := context.Background()
	c := &threats.Component{ScanID: scanID, Name: "log4j-core", Version: "2.14.1", PURL: "pkg:maven/log4j-core@2.14.1"}
	require.NoError(t, repo.SaveComponent(ctx, c))
	cvss := 10.0
	v := &threats.Vulnerability{ComponentID: c.ID, CVE: "CVE-2021-44228", Severity: "CRITICAL", CVSS: &cvss, Raw: map[string]any{"VulnerabilityID": "CVE-2021-44228"}}
	require.NoError(t, repo.SaveVulnerability(ctx, v))
	cve := "CVE-2021-44228"
	th := &threats.Threat{
		Project:         project,
		ScanID:          scanID,
		VulnerabilityID: v.ID,
		RuleID:          "kev-known-exploited",
		Score:           score,
		Hypothesis: threats.Hypothesis{
			Target:   threats.Target{Service: "api", Component: map[string]any{"name": "log4j-core"}},
			Value:    threats.Value{DataClass: []string{"pii"}, ValueMetric: "high"},
			Pattern:  []string{"T1190"},
			Evidence: threats.Evidence{CVE: &cve, CVSS: &cvss, Intel: map[string]any{"kev_listed": true}},
			Score:    score,
			Status:   threats.StatusOpen,
		},
	}
	require.NoError(t, repo.SaveThreat(ctx, th))
	return th
}

func TestScanLifecycle(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newStore(t)

	scan := &threats.ProjectScan{ID: "scan-1", Project: "shop", SBOMPath: "bom.json"}
	require.NoError(t, store.CreateScan(ctx, scan))
	assert.False(t, scan.CreatedAt.IsZero())

	counts := threats.SeverityCounts{Critical: 1, High: 2, Total: 3}
	require.NoError(t, store.UpdateScanCounts(ctx, scan.ID, counts))
	require.ErrorIs(t, store.UpdateScanCounts(ctx, "missing", counts), threats.ErrNotFound)

	got, err := store.GetScan(ctx, scan.ID)
	require.NoError(t, err)
	assert.Equal(t, "shop", got.Project)
	assert.Equal(t, counts, got.Counts)
	assert.WithinDuration(t, scan.CreatedAt, got.CreatedAt, time.Second)

	_, err = store.GetScan(ctx, "missing")
	require.ErrorIs(t, err, threats.ErrNotFound)
}

func TestThreats(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newStore(t)

	for _, id := range []threats.ScanID{"a", "b"} {
		require.NoError(t, store.CreateScan(ctx, &threats.ProjectScan{ID: id, Project: "shop", SBOMPath: "bom.json"}))
	}
	require.NoError(t, store.CreateScan(ctx, &threats.ProjectScan{ID: "c", Project: "blog", SBOMPath: "bom.json"}))

	t1 := seedThreat(t, store, "shop", "a", 40)
	t2 := seedThreat(t, store, "shop", "a", 90)
	seedThreat(t, store, "blog", "c", 10)

	all, err := store.ListThreats(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	shop, err := store.ListThreats(ctx, "shop")
	require.NoError(t, err)
	require.Len(t, shop, 2)
	assert.Equal(t, t1.ID, shop[0].ID)

	byScan, err := store.ListThreatsByScan(ctx, "a")
	require.NoError(t, err)
	require.Len(t, byScan, 2)
	assert.Equal(t, t2.ID, byScan[0].ID)

	got, err := store.GetThreat(ctx, t1.ID)
	require.NoError(t, err)
	assert.Equal(t, threats.StatusOpen, got.Status)
	assert.Equal(t, "api", got.Hypothesis.Target.Service)
	assert.Equal(t, []string{"pii"}, got.Hypothesis.Value.DataClass)
	require.NotNil(t, got.Hypothesis.Evidence.CVE)
	assert.Equal(t, "CVE-2021-44228", *got.Hypothesis.Evidence.CVE)
	assert.Equal(t, true, got.Hypothesis.Evidence.Intel["kev_listed"])

	_, err = store.GetThreat(ctx, 9999)
	require.ErrorIs(t, err, threats.ErrNotFound)

	require.NoError(t, store.UpdateThreatStatus(ctx, t1.ID, threats.StatusMitigated))
	got, err = store.GetThreat(ctx, t1.ID)
	require.NoError(t, err)
	assert.Equal(t, threats.StatusMitigated, got.Status)
	assert.Equal(t, threats.StatusMitigated, got.Export().Status)

	require.ErrorIs(t, store.UpdateThreatStatus(ctx, t1.ID, "closed"), threats.ErrInvalidStatus)
	require.ErrorIs(t, store.UpdateThreatStatus(ctx, 9999, threats.StatusAccepted), threats.ErrNotFound)
}

func TestPaginateAndLatest(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newStore(t)
	base := time.Now().Add(-time.Hour)
	for i, id := range []threats.ScanID{"s1", "s2", "s3", "s4", "s5"} {
		require.NoError(t, store.CreateScan(ctx, &threats.ProjectScan{
			ID: id, Project: "shop", SBOMPath: "bom.json", CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, store.CreateScan(ctx, &threats.ProjectScan{ID: "other", Project: "blog", SBOMPath: "bom.json"}))

	page, err := store.PaginateScans(ctx, "shop", 2, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.Total)
	assert.Equal(t, 3, page.TotalPages)
	require.Len(t, page.Data, 2)
	assert.Equal(t, threats.ScanID("s3"), page.Data[0].ID)

	empty, err := store.PaginateScans(ctx, "nobody", 1, 10)
	require.NoError(t, err)
	assert.NotNil(t, empty.Data)
	assert.Zero(t, empty.Total)

	// page raksasa dari query string
	far, err := store.PaginateScans(ctx, "shop", math.MaxInt, 50)
	require.NoError(t, err)
	assert.Empty(t, far.Data)
	assert.Equal(t, int64(5), far.Total)
	assert.Equal(t, math.MaxInt32/50+1, far.Page)

	latest, err := store.LatestScans(ctx, "shop", 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, threats.ScanID("s5"), latest[0].ID)

	latestAll, err := store.LatestScans(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, latestAll, 6)
}

func TestSummary(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newStore(t)

	require.NoError(t, store.CreateScan(ctx, &threats.ProjectScan{ID: "old", Project: "shop", SBOMPath: "x", CreatedAt: time.Now().AddDate(0, 0, -30)}))
	require.NoError(t, store.UpdateScanCounts(ctx, "old", threats.SeverityCounts{Critical: 9, Total: 9}))
	require.NoError(t, store.CreateScan(ctx, &threats.ProjectScan{ID: "new", Project: "shop", SBOMPath: "x"}))
	require.NoError(t, store.UpdateScanCounts(ctx, "new", threats.SeverityCounts{Critical: 1, High: 1, Total: 2}))

	seedThreat(t, store, "shop", "new", 55)
	closed := seedThreat(t, store, "shop", "new", 99)
	require.NoError(t, store.UpdateThreatStatus(ctx, closed.ID, threats.StatusAccepted))

	sum, err := store.Summary(ctx, "shop", 7)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.TotalScans)
	assert.Equal(t, 1, sum.Counts.Critical)
	assert.Equal(t, 2, sum.Counts.Total)
	assert.Equal(t, 1, sum.OpenThreats)
	assert.Equal(t, 55.0, sum.MaxScore)

	none, err := store.Summary(ctx, "nobody", 0)
	require.NoError(t, err)
	assert.Equal(t, 7, none.SinceDays)
	assert.Zero(t, none.MaxScore)
}

func TestInTxRollsBack(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newStore(t)
	boom := errors.New("boom")

	err := store.InTx(ctx, func(repo threats.Repository) error {
		require.NoError(t, repo.CreateScan(ctx, &threats.ProjectScan{ID: "tx", Project: "shop", SBOMPath: "x"}))
		return boom
	})
	require.ErrorIs(t, err, boom)
	_, err = store.GetScan(ctx, "tx")
	require.ErrorIs(t, err, threats.ErrNotFound)

	err = store.InTx(ctx, func(repo threats.Repository) error {
		if err := repo.CreateScan(ctx, &threats.ProjectScan{ID: "tx", Project: "shop", SBOMPath: "x"}); err != nil {
			return err
		}
		seedThreat(t, repo, "shop", "tx", 12)
		return nil
	})
	require.NoError(t, err)
	list, err := store.ListThreatsByScan(ctx, "tx")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestScanErrorRepository(t *testing.T) {
	ctx := context.Background()
	_, repo, _ := newStore(t)

	require.NoError(t, repo.Save(ctx, &scanerrors.ScanError{Project: "shop", ScanID: "s1", Phase: scanerrors.PhaseTrivy, Message: "trivy: exit 2", DetailsJSON: "not json"}))
	require.NoError(t, repo.Save(ctx, &scanerrors.ScanError{Project: "shop", Phase: scanerrors.PhaseThreatIntel}))

	list, err := repo.ListByProject(ctx, "shop", 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, scanerrors.PhaseThreatIntel, list[0].Phase)
	assert.Equal(t, "-", list[0].Message)
	assert.Equal(t, "-", list[0].ScanID)
	assert.JSONEq(t, `{"raw": "not json"}`, list[1].DetailsJSON)
}

func TestAnalystRepository(t *testing.T) {
	ctx := context.Background()
	_, _, repo := newStore(t)

	_, err := repo.LatestByScan(ctx, "s1")
	require.ErrorIs(t, err, threats.ErrNotFound)

	require.NoError(t, repo.Save(ctx, &analyst.Analysis{ID: "a1", Project: "shop", ScanID: "s1", Model: "heuristic", CreatedAt: time.Now().Add(-time.Minute)}))
	require.NoError(t, repo.Save(ctx, &analyst.Analysis{ID: "a2", Project: "shop", ScanID: "s1", Model: "gpt-4o-mini", Result: `{"risk":"high"}`}))

	got, err := repo.LatestByScan(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, analyst.AnalysisID("a2"), got.ID)
	assert.JSONEq(t, `{"risk":"high"}`, got.Result)
}

func TestRebind(t *testing.T) {
	assert.Equal(t, "a = $1 AND b = $2", sqlrepo.Postgres.Rebind("a = ? AND b = ?"))
	assert.Equal(t, "a = ?", sqlrepo.MySQL.Rebind("a = ?"))
}
