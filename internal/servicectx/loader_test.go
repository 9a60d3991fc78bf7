package servicectx

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/sbom-tm/internal/sbom"
)

func writeContext(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "context.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_EmptyPath(t *testing.T) {
	m, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, m)
}

func TestLoad_DefaultsAndKeys(t *testing.T) {
	path := writeContext(t, `[
  {"component_purl": "pkg:npm/express@4.18.0", "service": "web", "internet_exposed": true,
   "data_class": "pii", "value_metric": "high", "exposure": {"internet": 1.0}},
  {"component_name": "lodash", "data_class": ["general", 7]}
]`)
	m, err := Load(path)
	require.NoError(t, err)
	require.Len(t, m, 2)

	web := m["pkg:npm/express@4.18.0"]
	require.NotNil(t, web)
	assert.Equal(t, "web", web.Service)
	assert.Equal(t, "dev", web.Environment)
	assert.True(t, web.InternetExposed)
	assert.Equal(t, []string{"pii"}, web.DataClass)
	assert.Equal(t, "high", web.ValueMetric)
	assert.Equal(t, 1.0, web.Exposure["internet"])

	lodash := m["lodash"]
	require.NotNil(t, lodash)
	assert.Equal(t, "unknown", lodash.Service)
	assert.Equal(t, "medium", lodash.ValueMetric)
	assert.False(t, lodash.InternetExposed)
	assert.Equal(t, []string{"general", "7"}, lodash.DataClass)
	assert.Empty(t, lodash.Exposure)
}

func TestLoad_InvalidJSON(t *testing.T) {
	_, err := Load(writeContext(t, `{"not": "a list"}`))
	require.Error(t, err)
}

func TestResolve_PURLWinsOverName(t *testing.T) {
	byPURL := &ServiceContext{Service: "by-purl"}
	byName := &ServiceContext{Service: "by-name"}
	m := map[string]*ServiceContext{
		"pkg:npm/a@1": byPURL,
		"a":           byName,
	}

	assert.Same(t, byPURL, Resolve(sbom.ParsedComponent{Name: "a", PURL: "pkg:npm/a@1"}, m))
	assert.Same(t, byName, Resolve(sbom.ParsedComponent{Name: "a", PURL: "pkg:npm/a@2"}, m))
	assert.Nil(t, Resolve(sbom.ParsedComponent{Name: "b"}, m))
}

func TestMap_NilContext(t *testing.T) {
	var sc *ServiceContext
	assert.Empty(t, sc.Map())

	full := (&ServiceContext{Service: "s", DataClass: []string{"pii"}}).Map()
	assert.Equal(t, []any{"pii"}, full["data_class"])
	assert.Equal(t, map[string]any{}, full["exposure"])
}
