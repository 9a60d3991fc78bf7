package middleware

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/bryanwahyu/sbom-tm/internal/domain/threats"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	_, _ = w.Write([]byte(ClientFromContext(r.Context())))
})

func TestParseAPIKeys(t *testing.T) {
	keys := ParseAPIKeys([]string{"ci:s3cret", "bare-key", " ", "ops: other "})
	assert.Equal(t, map[string]string{"s3cret": "ci", "bare-key": "client-2", "other": "ops"}, keys)
}

func TestAPIKeyAuth(t *testing.T) {
	h := APIKeyAuth(map[string]string{"s3cret": "ci"})(okHandler)

	cases := []struct {
		name   string
		path   string
		header map[string]string
		status int
		body   string
	}{
		{"health is open", "/health", nil, http.StatusOK, ""},
		{"missing header", "/threats", nil, http.StatusUnauthorized, "missing Authorization header"},
		{"bearer", "/threats", map[string]string{"Authorization": "Bearer s3cret"}, http.StatusOK, "ci"},
		{"bare", "/threats", map[string]string{"Authorization": "s3cret"}, http.StatusOK, "ci"},
		{"x-api-key", "/threats", map[string]string{"X-API-Key": "s3cret"}, http.StatusOK, "ci"},
		{"wrong key", "/threats", map[string]string{"Authorization": "Bearer nope"}, http.StatusUnauthorized, "invalid API key"},
		{"empty bearer", "/threats", map[string]string{"Authorization": "Bearer  "}, http.StatusUnauthorized, "invalid Authorization header format"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			for k, v := range tc.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tc.body)
		})
	}
}

func TestRateLimiter(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rl := NewRateLimiter(2, 1)
	rl.now = func() time.Time { return now }
	h := rl.Middleware(okHandler)

	call := func(path, addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, call("/threats", "10.0.0.1:1111").Code)
	// port does not matter
	assert.Equal(t, http.StatusOK, call("/threats", "10.0.0.1:2222").Code)
	rec := call("/threats", "10.0.0.1:3333")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, call("/threats", "10.0.0.2:1111").Code)
	assert.Equal(t, http.StatusOK, call("/health", "10.0.0.1:1111").Code)

	now = now.Add(time.Second)
	assert.Equal(t, http.StatusOK, call("/threats", "10.0.0.1:1111").Code)

	now = now.Add(20 * time.Minute)
	rl.Sweep(10 * time.Minute)
	assert.Empty(t, rl.buckets)
}

func TestRunSweeperStops(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rl.RunSweeper(ctx, time.Millisecond, time.Hour)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

type checkerFunc func(context.Context) error

func (f checkerFunc) Check(ctx context.Context) error { return f(ctx) }

func TestHealthHandler(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "h.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	h := HealthHandler(map[string]HealthChecker{
		"database": &DatabaseHealthChecker{DB: db},
		"redis":    &RedisHealthChecker{Client: rdb},
	})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "healthy", status.Checks["redis"].Status)

	h = HealthHandler(map[string]HealthChecker{
		"database": checkerFunc(func(context.Context) error { return errors.New("db down") }),
	})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "db down")
}

func TestLivenessHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	LivenessHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetricsMiddleware(t *testing.T) {
	m := NewMetrics()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/threats/{id}", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNotFound) })
	r.Handle("/metrics", m.Handler())

	for _, id := range []string{"1", "2"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/threats/"+id, nil))
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "/threats/{id}", "404")))

	m.ScanStarted()
	m.ScanFinished(3, nil)
	m.ScanStarted()
	m.ScanFinished(0, errors.New("boom"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.scans.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.scans.WithLabelValues("failed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.threats))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.scansRunning))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "sbomtm_http_requests_total")
	assert.Contains(t, rec.Body.String(), "sbomtm_scans_total")
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	h := RequestLogger(log)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("hi"))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/rules", nil))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "http request", entry["msg"])
	assert.Equal(t, "/rules", entry["path"])
	assert.EqualValues(t, http.StatusTeapot, entry["status"])
	assert.EqualValues(t, 2, entry["bytes"])
}

func TestValidators(t *testing.T) {
	assert.NoError(t, ValidateProject(""))
	assert.NoError(t, ValidateProject("payments-api_v1.2"))
	assert.Error(t, ValidateProject("../etc"))
	assert.Error(t, ValidateProject(strings.Repeat("a", 65)))

	assert.NoError(t, ValidateScanID("6f1c1f43-8a4e-4f55-9d8c-2d9d8c1f0a11"))
	assert.Error(t, ValidateScanID(""))
	assert.Error(t, ValidateScanID("nope"))

	assert.NoError(t, ValidateStatus("false_positive"))
	assert.ErrorIs(t, ValidateStatus("closed"), threats.ErrInvalidStatus)

	assert.NoError(t, ValidatePath("examples/sample-sbom.json"))
	assert.NoError(t, ValidatePath("/tmp/bom..json"))
	assert.Error(t, ValidatePath("../secrets.json"))
	assert.Error(t, ValidatePath("/etc/passwd"))
	assert.Error(t, ValidatePath("bom.json; rm -rf /"))

	assert.Equal(t, "abc", SanitizeString(" a\x00b\x01c "))
	assert.Equal(t, 20, ValidateLimit(0))
	assert.Equal(t, 100, ValidateLimit(500))
	assert.Equal(t, 7, ValidateDays(-1))
	assert.Equal(t, 365, ValidateDays(1000))
}
