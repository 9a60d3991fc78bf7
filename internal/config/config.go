package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds every setting of the threat modeller.
type Config struct {
	BaseDir string `yaml:"baseDir"`

	Paths struct {
		DBPath       string `yaml:"dbPath"`
		RulesDir     string `yaml:"rulesDir"`
		ReportDir    string `yaml:"reportDir"`
		CacheDir     string `yaml:"cacheDir"`
		TemplatesDir string `yaml:"templatesDir"`
	} `yaml:"paths"`

	Server struct {
		Host    string   `yaml:"host"`
		Port    int      `yaml:"port"`
		APIKeys []string `yaml:"apiKeys"`
		// RateLimit is the token bucket capacity per client; 0 disables it.
		RateLimit  int      `yaml:"rateLimit"`
		RefillRate int      `yaml:"refillRate"`
		CORSOrigin []string `yaml:"corsOrigins"`
	} `yaml:"server"`

	Database struct {
		Driver   string `yaml:"driver"` // sqlite | mysql | postgres
		DSN      string `yaml:"dsn"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
	} `yaml:"database"`

	Trivy struct {
		Binary  string `yaml:"binary"`
		Mode    string `yaml:"mode"` // binary | docker
		Image   string `yaml:"image"`
		Offline bool   `yaml:"offline"`
	} `yaml:"trivy"`

	Syft struct {
		Binary string `yaml:"binary"`
	} `yaml:"syft"`

	KEV struct {
		URL   string `yaml:"url"`
		Cache string `yaml:"cache"` // file | redis
	} `yaml:"kev"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Rules struct {
		DisableBuiltin bool `yaml:"disableBuiltin"`
	} `yaml:"rules"`

	Minio struct {
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	OpenAI struct {
		APIKey string `yaml:"apiKey"`
		Model  string `yaml:"model"`
	} `yaml:"openai"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // text | json
	} `yaml:"log"`
}

// Default values.
const (
	DefaultHost        = "127.0.0.1"
	DefaultPort        = 8000
	DefaultDriver      = "sqlite"
	DefaultTrivyBinary = "trivy"
	DefaultTrivyImage  = "aquasec/trivy:latest"
	DefaultSyftBinary  = "syft"
	DefaultKEVURL      = "https://www.cisa.gov/sites/default/files/feeds/known_exploited_vulnerabilities.json"
	DefaultOpenAIModel = "gpt-4o-mini"
)

// Load baca file config (boleh tidak ada), .env, lalu environment.
// An empty path or a missing file yields the defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parsing %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.BaseDir, "SBOMTM_HOME")
	setString(&c.Paths.DBPath, "DB_PATH")
	setString(&c.Paths.RulesDir, "RULES_DIR")
	setString(&c.Paths.ReportDir, "REPORT_DIR")
	setString(&c.Paths.CacheDir, "TRIVY_CACHE_DIR")
	setString(&c.Paths.TemplatesDir, "TEMPLATE_DIR")

	setString(&c.Database.Driver, "DB_DRIVER")
	setString(&c.Database.DSN, "DB_DSN")

	setString(&c.Trivy.Binary, "TRIVY_BIN")
	setString(&c.Trivy.Mode, "TRIVY_MODE")
	setString(&c.Trivy.Image, "TRIVY_IMAGE")
	c.Trivy.Offline = boolEnv("TRIVY_OFFLINE", c.Trivy.Offline)
	setString(&c.Syft.Binary, "SYFT_BIN")

	setString(&c.KEV.URL, "KEV_URL")
	setString(&c.KEV.Cache, "KEV_CACHE")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")

	setString(&c.Minio.Endpoint, "MINIO_ENDPOINT")
	setString(&c.Minio.AccessKey, "MINIO_ACCESS_KEY")
	setString(&c.Minio.SecretKey, "MINIO_SECRET_KEY")
	setString(&c.Minio.BucketName, "MINIO_BUCKET")
	setString(&c.Minio.Region, "MINIO_REGION")
	c.Minio.UseSSL = boolEnv("MINIO_USE_SSL", c.Minio.UseSSL)

	setString(&c.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&c.OpenAI.Model, "OPENAI_MODEL")

	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.Format, "LOG_FORMAT")

	if v := os.Getenv("API_KEYS"); v != "" {
		c.Server.APIKeys = splitList(v)
	}
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
}

func (c *Config) applyDefaults() error {
	if c.BaseDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("resolving working directory: %w", err)
		}
		c.BaseDir = wd
	}
	orDefault(&c.Paths.DBPath, filepath.Join(c.BaseDir, "db", "sbom_tm.sqlite"))
	orDefault(&c.Paths.RulesDir, filepath.Join(c.BaseDir, "rules"))
	orDefault(&c.Paths.ReportDir, filepath.Join(c.BaseDir, "data", "reports"))
	orDefault(&c.Paths.CacheDir, filepath.Join(c.BaseDir, "data", "cache"))
	orDefault(&c.Paths.TemplatesDir, filepath.Join(c.BaseDir, "templates"))

	orDefault(&c.Server.Host, DefaultHost)
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.RateLimit > 0 && c.Server.RefillRate <= 0 {
		c.Server.RefillRate = 1
	}

	orDefault(&c.Database.Driver, DefaultDriver)
	c.Database.Driver = strings.ToLower(c.Database.Driver)
	orDefault(&c.Trivy.Binary, DefaultTrivyBinary)
	orDefault(&c.Trivy.Mode, "binary")
	orDefault(&c.Trivy.Image, DefaultTrivyImage)
	orDefault(&c.Syft.Binary, DefaultSyftBinary)
	orDefault(&c.KEV.URL, DefaultKEVURL)
	orDefault(&c.KEV.Cache, "file")
	orDefault(&c.OpenAI.Model, DefaultOpenAIModel)
	orDefault(&c.Log.Level, "info")
	orDefault(&c.Log.Format, "text")
	return nil
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "mysql", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q (sqlite, mysql, postgres)", c.Database.Driver)
	}
	switch c.Trivy.Mode {
	case "binary", "docker":
	default:
		return fmt.Errorf("unsupported trivy mode %q (binary, docker)", c.Trivy.Mode)
	}
	switch c.KEV.Cache {
	case "file":
	case "redis":
		if c.Redis.Addr == "" {
			return errors.New("kev cache redis requires redis.addr")
		}
	default:
		return fmt.Errorf("unsupported kev cache %q (file, redis)", c.KEV.Cache)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	return nil
}

// EnsureDirs creates every directory the pipeline writes to.
func (c *Config) EnsureDirs() error {
	dirs := []string{
		c.Paths.RulesDir,
		c.Paths.ReportDir,
		c.Paths.CacheDir,
		c.Paths.TemplatesDir,
	}
	if c.Database.Driver == "sqlite" {
		dirs = append(dirs, filepath.Dir(c.Paths.DBPath))
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", d, err)
		}
	}
	return nil
}

// DSN returns the data source name for the configured driver.
func (c *Config) DSN() string {
	if c.Database.DSN != "" {
		return c.Database.DSN
	}
	switch c.Database.Driver {
	case "mysql":
		return c.MySQLDSN()
	case "postgres":
		return c.PostgresDSN()
	default:
		return c.Paths.DBPath
	}
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// Helper untuk build DSN Postgres
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
	)
}

// MinioEnabled reports whether report upload is configured.
func (c *Config) MinioEnabled() bool {
	return c.Minio.Endpoint != "" && c.Minio.BucketName != ""
}

// ParseBool interprets the usual truthy spellings: 1, true, yes, on.
func ParseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func boolEnv(name string, def bool) bool {
	v, ok := os.LookupEnv(name)
	if !ok {
		return def
	}
	return ParseBool(v)
}

func setString(dst *string, name string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

func orDefault(dst *string, def string) {
	if strings.TrimSpace(*dst) == "" {
		*dst = def
	}
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
