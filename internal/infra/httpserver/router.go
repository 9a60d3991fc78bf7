package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	appai "github.com/bryanwahyu/sbom-tm/internal/application/ai"
	appscans "github.com/bryanwahyu/sbom-tm/internal/application/scans"
	domai "github.com/bryanwahyu/sbom-tm/internal/domain/ai"
	"github.com/bryanwahyu/sbom-tm/internal/domain/analyst"
	"github.com/bryanwahyu/sbom-tm/internal/domain/threats"
	"github.com/bryanwahyu/sbom-tm/internal/logging"
	"github.com/bryanwahyu/sbom-tm/internal/middleware"
	"github.com/bryanwahyu/sbom-tm/internal/rules"
)

// Options wires the router. AI, Metrics, Limiter and APIKeys are optional.
type Options struct {
	Scans       *appscans.Service
	AI          *appai.Service
	Rules       []rules.Rule
	Metrics     *middleware.Metrics
	Health      map[string]middleware.HealthChecker
	APIKeys     map[string]string
	Limiter     *middleware.RateLimiter
	CORSOrigins []string
	Log         *slog.Logger
}

type Router struct {
	scansSvc *appscans.Service
	aiSvc    *appai.Service
	rules    []rules.Rule
	metrics  *middleware.Metrics
	log      *slog.Logger

	mux     chi.Router
	running sync.WaitGroup
}

func NewRouter(opts Options) *Router {
	r := &Router{
		scansSvc: opts.Scans,
		aiSvc:    opts.AI,
		rules:    opts.Rules,
		metrics:  opts.Metrics,
		log:      logging.OrDefault(opts.Log),
	}
	if r.metrics == nil {
		r.metrics = middleware.NewMetrics()
	}
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	mux := chi.NewRouter()
	mux.Use(chimw.RequestID)
	mux.Use(chimw.Recoverer)
	mux.Use(middleware.RequestLogger(r.log))
	mux.Use(r.metrics.Middleware)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		MaxAge:         300,
	}))

	mux.Get("/health", middleware.LivenessHandler)
	mux.Get("/healthz", middleware.HealthHandler(opts.Health))
	mux.Method(http.MethodGet, "/metrics", r.metrics.Handler())

	mux.Group(func(rt chi.Router) {
		if len(opts.APIKeys) > 0 {
			rt.Use(middleware.APIKeyAuth(opts.APIKeys))
		}
		if opts.Limiter != nil {
			rt.Use(opts.Limiter.Middleware)
		}

		rt.Get("/threats", r.wrap(r.handleListThreats, ""))
		rt.Get("/threats/{id}", r.wrap(r.handleGetThreat, "Threat not found"))
		rt.Patch("/threats/{id}", r.wrap(r.handleUpdateThreat, "Threat not found"))

		rt.Get("/scans", r.wrap(r.handleListScans, ""))
		rt.Post("/scans", r.wrap(r.handleTriggerScan, ""))
		rt.Get("/scans/{id}", r.wrap(r.handleGetScan, "Scan not found"))
		rt.Get("/scans/{id}/threats", r.wrap(r.handleScanThreats, "Scan not found"))
		rt.Post("/scans/{id}/analysis", r.wrap(r.handleAnalyze, "Scan not found"))
		rt.Get("/scans/{id}/analysis", r.wrap(r.handleGetAnalysis, "Analysis not found"))

		rt.Get("/summary", r.wrap(r.handleSummary, ""))
		rt.Get("/rules", r.wrap(r.handleRules, ""))
	})

	r.mux = mux
	return r
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Wait blocks until background scans started by POST /scans have finished.
func (r *Router) Wait() {
	r.running.Wait()
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// badRequest marks client errors.
type badRequest struct{ msg string }

func (e badRequest) Error() string { return e.msg }

func invalid(format string, args ...any) error {
	return badRequest{msg: fmt.Sprintf(format, args...)}
}

func (r *Router) wrap(h handlerFunc, notFound string) http.HandlerFunc {
	if notFound == "" {
		notFound = "not found"
	}
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		var br badRequest
		switch {
		case errors.Is(err, threats.ErrNotFound):
			writeError(w, http.StatusNotFound, notFound)
		case errors.As(err, &br), errors.Is(err, threats.ErrInvalidStatus):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domai.ErrQuotaExceeded):
			writeError(w, http.StatusTooManyRequests, "ai quota exceeded")
		case errors.Is(err, domai.ErrNotConfigured):
			writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			r.log.Error("request failed", "method", req.Method, "path", req.URL.Path, "error", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	_ = writeJSON(w, status, map[string]string{"detail": detail})
}

func projectParam(req *http.Request) (string, error) {
	project := req.URL.Query().Get("project")
	if err := middleware.ValidateProject(project); err != nil {
		return "", badRequest{msg: err.Error()}
	}
	return project, nil
}

func threatID(req *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(req, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, invalid("invalid threat id")
	}
	return id, nil
}

func scanID(req *http.Request) (threats.ScanID, error) {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateScanID(id); err != nil {
		return "", badRequest{msg: err.Error()}
	}
	return threats.ScanID(id), nil
}

// GET /threats?project=
func (r *Router) handleListThreats(w http.ResponseWriter, req *http.Request) error {
	project, err := projectParam(req)
	if err != nil {
		return err
	}
	list, err := r.scansSvc.ListThreats(req.Context(), project)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}

// GET /threats/{id}
func (r *Router) handleGetThreat(w http.ResponseWriter, req *http.Request) error {
	id, err := threatID(req)
	if err != nil {
		return err
	}
	t, err := r.scansSvc.GetThreat(req.Context(), id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, t)
}

// PATCH /threats/{id}
// Body: {"status": "mitigated"}
func (r *Router) handleUpdateThreat(w http.ResponseWriter, req *http.Request) error {
	id, err := threatID(req)
	if err != nil {
		return err
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return invalid("invalid JSON body")
	}
	if err := middleware.ValidateStatus(body.Status); err != nil {
		return err
	}
	t, err := r.scansSvc.UpdateThreatStatus(req.Context(), id, threats.Status(body.Status))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, t)
}

// GET /scans?project=&page=&page_size=
func (r *Router) handleListScans(w http.ResponseWriter, req *http.Request) error {
	project, err := projectParam(req)
	if err != nil {
		return err
	}
	page, _ := strconv.Atoi(req.URL.Query().Get("page"))
	size, _ := strconv.Atoi(req.URL.Query().Get("page_size"))

	out, err := r.scansSvc.PaginateScans(req.Context(), project, page, middleware.ValidateLimit(size))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, out)
}

// GET /scans/{id}
func (r *Router) handleGetScan(w http.ResponseWriter, req *http.Request) error {
	id, err := scanID(req)
	if err != nil {
		return err
	}
	scan, err := r.scansSvc.GetScan(req.Context(), id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, scan)
}

// GET /scans/{id}/threats
func (r *Router) handleScanThreats(w http.ResponseWriter, req *http.Request) error {
	id, err := scanID(req)
	if err != nil {
		return err
	}
	list, err := r.scansSvc.ScanThreats(req.Context(), id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}

// POST /scans
// Body: {"sbom_path": "...", "project": "...", "context_path": "...", "offline": false}
func (r *Router) handleTriggerScan(w http.ResponseWriter, req *http.Request) error {
	var body appscans.Request
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return invalid("invalid JSON body")
	}
	body.Project = middleware.SanitizeString(body.Project)
	if body.Project == "" {
		body.Project = "default"
	}
	if err := middleware.ValidateProject(body.Project); err != nil {
		return badRequest{msg: err.Error()}
	}
	if body.SBOMPath == "" {
		return invalid("sbom_path is required")
	}
	for _, p := range []string{body.SBOMPath, body.ContextPath} {
		if err := middleware.ValidatePath(p); err != nil {
			return badRequest{msg: err.Error()}
		}
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			return invalid("file not found: %s", p)
		}
	}

	// jalankan di background, biar jalan sampai selesai
	r.running.Add(1)
	r.metrics.ScanStarted()
	go func(cmd appscans.Request) {
		defer r.running.Done()
		res, err := r.scansSvc.RunUntilDone(cmd)
		r.metrics.ScanFinished(res.ThreatCount, err)
		if err != nil {
			r.log.Error("background scan failed", "project", cmd.Project, "sbom", cmd.SBOMPath, "error", err)
			return
		}
		r.log.Info("background scan finished", "project", cmd.Project, "scan_id", res.ScanID, "threats", res.ThreatCount)
	}(body)

	// langsung balikin respons ke client
	return writeJSON(w, http.StatusAccepted, map[string]any{
		"status":    "queued",
		"project":   body.Project,
		"sbom_path": body.SBOMPath,
		"message":   "scan started in background",
		"queued_at": time.Now().UTC(),
	})
}

type analysisResponse struct {
	ID        analyst.AnalysisID `json:"id"`
	Project   string             `json:"project"`
	ScanID    string             `json:"scan_id"`
	Model     string             `json:"model"`
	Result    json.RawMessage    `json:"result"`
	CreatedAt time.Time          `json:"created_at"`
}

func toResponse(a *analyst.Analysis) analysisResponse {
	return analysisResponse{
		ID:        a.ID,
		Project:   a.Project,
		ScanID:    a.ScanID,
		Model:     a.Model,
		Result:    json.RawMessage(a.Result),
		CreatedAt: a.CreatedAt,
	}
}

// POST /scans/{id}/analysis
func (r *Router) handleAnalyze(w http.ResponseWriter, req *http.Request) error {
	if r.aiSvc == nil {
		return domai.ErrNotConfigured
	}
	id, err := scanID(req)
	if err != nil {
		return err
	}
	a, err := r.aiSvc.AnalyzeScan(req.Context(), id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, toResponse(a))
}

// GET /scans/{id}/analysis
func (r *Router) handleGetAnalysis(w http.ResponseWriter, req *http.Request) error {
	if r.aiSvc == nil {
		return domai.ErrNotConfigured
	}
	id, err := scanID(req)
	if err != nil {
		return err
	}
	a, err := r.aiSvc.LatestAnalysis(req.Context(), id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, toResponse(a))
}

// GET /summary?project=&days=7
func (r *Router) handleSummary(w http.ResponseWriter, req *http.Request) error {
	project, err := projectParam(req)
	if err != nil {
		return err
	}
	days, _ := strconv.Atoi(req.URL.Query().Get("days"))

	summary, err := r.scansSvc.Summary(req.Context(), project, middleware.ValidateDays(days))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, summary)
}

// GET /rules
func (r *Router) handleRules(w http.ResponseWriter, _ *http.Request) error {
	list := r.rules
	if list == nil {
		list = []rules.Rule{}
	}
	return writeJSON(w, http.StatusOK, list)
}
