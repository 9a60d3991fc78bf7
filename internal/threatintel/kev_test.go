package threatintel

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const feedBody = `{"vulnerabilities": [{"cveID": "CVE-2021-44228"}, {"cveId": "cve-2023-4863"}, {"vendorProject": "none"}]}`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func feedServer(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestKEVFetchAndCache(t *testing.T) {
	srv, hits := feedServer(t, http.StatusOK, feedBody)
	store := NewFileStore(t.TempDir())
	clk := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}

	e := NewEnricher(Options{URL: srv.URL, Store: store, Logger: quietLogger(), Now: clk.now})
	set, err := e.KEV(context.Background(), false)
	require.NoError(t, err)
	assert.Contains(t, set, "CVE-2021-44228")
	assert.Contains(t, set, "CVE-2023-4863")
	assert.Len(t, set, 2)

	_, _ = e.KEV(context.Background(), false)
	assert.Equal(t, int32(1), hits.Load())

	snap, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"CVE-2021-44228", "CVE-2023-4863"}, snap.CVEs)
	assert.True(t, snap.ExpiresAt.Equal(clk.t.Add(CacheTTL)))

	// A fresh process reuses the persisted snapshot.
	e2 := NewEnricher(Options{URL: srv.URL, Store: store, Logger: quietLogger(), Now: clk.now})
	set, err = e2.KEV(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, set, 2)
	assert.Equal(t, int32(1), hits.Load())

	// Expiry and force refresh both go back to the feed.
	clk.t = clk.t.Add(CacheTTL + time.Minute)
	_, _ = e2.KEV(context.Background(), false)
	assert.Equal(t, int32(2), hits.Load())
	_, _ = e2.KEV(context.Background(), true)
	assert.Equal(t, int32(3), hits.Load())
}

func TestKEVFetchFailureCachesEmptySet(t *testing.T) {
	srv, hits := feedServer(t, http.StatusBadGateway, "oops")
	store := NewFileStore(t.TempDir())
	clk := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}

	e := NewEnricher(Options{URL: srv.URL, Store: store, Logger: quietLogger(), Now: clk.now})
	set, err := e.KEV(context.Background(), false)
	require.Error(t, err)
	assert.Empty(t, set)
	set, err = e.KEV(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, set)
	assert.Equal(t, int32(1), hits.Load())

	snap, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.CVEs)
	assert.True(t, snap.ExpiresAt.Equal(clk.t.Add(FailureTTL)))
}

func TestKEVOfflineUsesExpiredSnapshot(t *testing.T) {
	srv, hits := feedServer(t, http.StatusOK, feedBody)
	store := NewFileStore(t.TempDir())
	old := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.Save(context.Background(), NewSnapshot(map[string]struct{}{"cve-2021-44228": {}}, old)))

	e := NewEnricher(Options{URL: srv.URL, Store: store, Offline: true, Logger: quietLogger()})
	set, err := e.KEV(context.Background(), true)
	require.NoError(t, err)
	assert.Contains(t, set, "CVE-2021-44228")
	assert.Equal(t, int32(0), hits.Load())

	empty := NewEnricher(Options{URL: srv.URL, Store: NewFileStore(t.TempDir()), Offline: true, Logger: quietLogger()})
	set, err = empty.KEV(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, set)
	assert.Equal(t, int32(0), hits.Load())
}

func TestRedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := NewRedisStore(rdb)
	_, err = store.Load(context.Background())
	require.ErrorIs(t, err, ErrNoSnapshot)

	srv, hits := feedServer(t, http.StatusOK, feedBody)
	e := NewEnricher(Options{URL: srv.URL, Store: store, Logger: quietLogger()})
	set, err := e.KEV(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, set, 2)
	assert.True(t, mr.Exists(RedisKey))

	other := NewEnricher(Options{URL: srv.URL, Store: store, Logger: quietLogger()})
	set, err = other.KEV(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, set, 2)
	assert.Equal(t, int32(1), hits.Load())
}

func TestEnrich(t *testing.T) {
	srv, _ := feedServer(t, http.StatusOK, feedBody)
	e := NewEnricher(Options{URL: srv.URL, Logger: quietLogger()})

	listed := map[string]any{"VulnerabilityID": "cve-2021-44228", "threatintel": map[string]any{"epss": 0.97}}
	other := map[string]any{"cve": "CVE-2000-0001"}
	none := map[string]any{}
	require.NoError(t, e.Enrich(context.Background(), []map[string]any{listed, other, none}, false))

	intel := listed["threatintel"].(map[string]any)
	assert.Equal(t, true, intel["kev_listed"])
	assert.Equal(t, 0.9, intel["chatter_score"])
	assert.Equal(t, []any{"CISA KEV"}, intel["sources"])
	assert.Equal(t, 0.97, intel["epss"])

	intel = other["threatintel"].(map[string]any)
	assert.Equal(t, false, intel["kev_listed"])
	assert.Equal(t, 0.1, intel["chatter_score"])
	assert.Equal(t, []any{}, intel["sources"])

	assert.Equal(t, false, none["threatintel"].(map[string]any)["kev_listed"])
}

func TestEnrichReportsFeedFailure(t *testing.T) {
	srv, _ := feedServer(t, http.StatusInternalServerError, "")
	e := NewEnricher(Options{URL: srv.URL, Logger: quietLogger()})
	v := map[string]any{"VulnerabilityID": "CVE-2021-44228"}
	require.Error(t, e.Enrich(context.Background(), []map[string]any{v}, false))
	assert.Equal(t, false, v["threatintel"].(map[string]any)["kev_listed"])
}

func TestEnrichOfflineCallSkipsFeed(t *testing.T) {
	srv, hits := feedServer(t, http.StatusOK, feedBody)
	e := NewEnricher(Options{URL: srv.URL, Store: NewFileStore(t.TempDir()), Logger: quietLogger()})
	assert.False(t, e.Offline())

	v := map[string]any{"VulnerabilityID": "CVE-2021-44228"}
	require.NoError(t, e.Enrich(context.Background(), []map[string]any{v}, true))
	assert.Equal(t, false, v["threatintel"].(map[string]any)["kev_listed"])
	assert.Zero(t, hits.Load())

	require.NoError(t, e.Enrich(context.Background(), []map[string]any{v}, false))
	assert.Equal(t, true, v["threatintel"].(map[string]any)["kev_listed"])
	assert.Equal(t, int32(1), hits.Load())
}

func TestCVEOf(t *testing.T) {
	assert.Equal(t, "CVE-1", CVEOf(map[string]any{"vulnerability_id": "cve-1", "id": "x"}))
	assert.Equal(t, "GHSA-XYZ", CVEOf(map[string]any{"id": "ghsa-xyz"}))
	assert.Equal(t, "", CVEOf(map[string]any{"VulnerabilityID": nil}))
}
