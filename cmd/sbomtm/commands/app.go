package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/bryanwahyu/sbom-tm/internal/application"
	appai "github.com/bryanwahyu/sbom-tm/internal/application/ai"
	appscans "github.com/bryanwahyu/sbom-tm/internal/application/scans"
	"github.com/bryanwahyu/sbom-tm/internal/config"
	domai "github.com/bryanwahyu/sbom-tm/internal/domain/ai"
	"github.com/bryanwahyu/sbom-tm/internal/infra/ai/openai"
	"github.com/bryanwahyu/sbom-tm/internal/infra/ai/prompt"
	"github.com/bryanwahyu/sbom-tm/internal/infra/db"
	"github.com/bryanwahyu/sbom-tm/internal/infra/executor/trivy"
	"github.com/bryanwahyu/sbom-tm/internal/infra/storage"
	"github.com/bryanwahyu/sbom-tm/internal/logging"
	"github.com/bryanwahyu/sbom-tm/internal/report"
	"github.com/bryanwahyu/sbom-tm/internal/rules"
	"github.com/bryanwahyu/sbom-tm/internal/threatintel"
)

// app holds everything a command needs, built from config.
type app struct {
	cfg   *config.Config
	log   *slog.Logger
	repos *db.Repos
	redis *redis.Client
	rules []rules.Rule
	kev   *threatintel.Enricher
	scans *appscans.Service
	ai    *appai.Service
}

// loadConfig reads config and builds the logger only.
func loadConfig(cmd *cobra.Command, flags *rootFlags) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(flags.config)
	if err != nil {
		return nil, nil, fmt.Errorf("config load error: %w", err)
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	return cfg, logging.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format), nil
}

// newApp wires config, database, scanner, intel, reports, storage and the
// analyst. offline also keeps the KEV feed from being fetched.
func newApp(ctx context.Context, cmd *cobra.Command, flags *rootFlags, offline bool) (*app, error) {
	cfg, log, err := loadConfig(cmd, flags)
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log}

	a.rules, err = rules.Load(cfg.Paths.RulesDir, !cfg.Rules.DisableBuiltin)
	if err != nil {
		return nil, fmt.Errorf("loading rules: %w", err)
	}

	a.repos, err = db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// KEV snapshot disimpan di file atau redis
	var kevStore threatintel.Store = threatintel.NewFileStore(cfg.Paths.CacheDir)
	if cfg.KEV.Cache == "redis" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		kevStore = threatintel.NewRedisStore(a.redis)
	}
	a.kev = threatintel.NewEnricher(threatintel.Options{
		URL:     cfg.KEV.URL,
		Store:   kevStore,
		Offline: offline || cfg.Trivy.Offline,
		Logger:  log,
	})

	a.scans = &appscans.Service{
		Store: a.repos.Threats,
		Scanner: trivy.NewRunner(trivy.Config{
			Binary:   cfg.Trivy.Binary,
			Mode:     cfg.Trivy.Mode,
			Image:    cfg.Trivy.Image,
			CacheDir: cfg.Paths.CacheDir,
			Offline:  cfg.Trivy.Offline,
		}),
		Rules:      rules.New(a.rules),
		Intel:      a.kev,
		Reports:    report.NewWriter(cfg.Paths.ReportDir, cfg.Paths.TemplatesDir),
		ScanErrors: a.repos.ScanErrors,
		Clock:      application.SystemClock{},
		Log:        log,
		CacheDir:   cfg.Paths.CacheDir,
	}

	// init minio kalau dikonfigurasi
	if cfg.MinioEnabled() {
		store, err := storage.New(ctx, storage.Config{
			Endpoint:  cfg.Minio.Endpoint,
			Region:    cfg.Minio.Region,
			Bucket:    cfg.Minio.BucketName,
			AccessKey: cfg.Minio.AccessKey,
			SecretKey: cfg.Minio.SecretKey,
			UseSSL:    cfg.Minio.UseSSL,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("minio init error: %w", err)
		}
		a.scans.Artifacts = store
	}

	var client domai.Client = prompt.Heuristic{}
	if cfg.OpenAI.APIKey != "" {
		client = openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model, "")
	}
	a.ai = appai.NewService(client, prompt.ScanDigester{}, a.repos.Threats, a.repos.Analyses, application.SystemClock{}, log)

	return a, nil
}

func (a *app) Close() {
	if a.redis != nil {
		a.redis.Close()
	}
	if a.repos != nil {
		a.repos.Close()
	}
}
