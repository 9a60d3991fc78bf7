package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	base := t.TempDir()
	t.Setenv("SBOMTM_HOME", base)

	cfg, err := Load(filepath.Join(base, "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(base, "db", "sbom_tm.sqlite"), cfg.Paths.DBPath)
	assert.Equal(t, filepath.Join(base, "rules"), cfg.Paths.RulesDir)
	assert.Equal(t, filepath.Join(base, "data", "reports"), cfg.Paths.ReportDir)
	assert.Equal(t, filepath.Join(base, "data", "cache"), cfg.Paths.CacheDir)
	assert.Equal(t, filepath.Join(base, "templates"), cfg.Paths.TemplatesDir)
	assert.Equal(t, "trivy", cfg.Trivy.Binary)
	assert.False(t, cfg.Trivy.Offline)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, cfg.Paths.DBPath, cfg.DSN())
}

func TestLoad_FileThenEnvOverrides(t *testing.T) {
	base := t.TempDir()
	path := filepath.Join(base, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
baseDir: `+base+`
server:
  port: 9090
trivy:
  binary: /opt/trivy
database:
  driver: mysql
  host: db
  port: 3306
  user: u
  password: p
  name: sbom
`), 0o600))

	t.Setenv("TRIVY_OFFLINE", " Yes ")
	t.Setenv("RULES_DIR", filepath.Join(base, "custom-rules"))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "/opt/trivy", cfg.Trivy.Binary)
	assert.True(t, cfg.Trivy.Offline)
	assert.Equal(t, filepath.Join(base, "custom-rules"), cfg.Paths.RulesDir)
	assert.Equal(t, "u:p@tcp(db:3306)/sbom?parseTime=true&charset=utf8mb4&loc=UTC", cfg.DSN())
}

func TestLoad_RejectsUnknownDriver(t *testing.T) {
	t.Setenv("SBOMTM_HOME", t.TempDir())
	t.Setenv("DB_DRIVER", "oracle")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oracle")
}

func TestLoad_RedisCacheNeedsAddr(t *testing.T) {
	t.Setenv("SBOMTM_HOME", t.TempDir())
	t.Setenv("KEV_CACHE", "redis")

	_, err := Load("")
	require.Error(t, err)
}

func TestEnsureDirs(t *testing.T) {
	base := t.TempDir()
	t.Setenv("SBOMTM_HOME", base)

	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.EnsureDirs())

	for _, d := range []string{cfg.Paths.RulesDir, cfg.Paths.ReportDir, cfg.Paths.CacheDir, filepath.Dir(cfg.Paths.DBPath)} {
		info, err := os.Stat(d)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestParseBool(t *testing.T) {
	for _, v := range []string{"1", "true", "TRUE", "yes", " on "} {
		assert.True(t, ParseBool(v), v)
	}
	for _, v := range []string{"", "0", "false", "off", "nope"} {
		assert.False(t, ParseBool(v), v)
	}
}
