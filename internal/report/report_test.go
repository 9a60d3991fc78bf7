package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/sbom-tm/internal/domain/threats"
)

func sampleExports() []threats.Export {
	cve := "CVE-2021-44228"
	sev := "CRITICAL"
	cvss := 10.0
	return []threats.Export{{
		Hypothesis: threats.Hypothesis{
			Target: threats.Target{
				Service:   "checkout <api>",
				Component: map[string]any{"name": "log4j-core", "version": "2.14.1", "purl": "pkg:maven/org.apache.logging.log4j/log4j-core@2.14.1"},
			},
			Value:              threats.Value{DataClass: []string{"pii"}, ValueMetric: "high"},
			Pattern:            []string{"T1190 Exploit Public-Facing Application"},
			Objective:          []string{"initial-access"},
			Evidence:           threats.Evidence{CVE: &cve, Severity: &sev, CVSS: &cvss, Intel: map[string]any{"kev_listed": true}},
			RecommendedActions: []string{"Upgrade to 2.17.1"},
			Score:              100,
			Status:             threats.StatusOpen,
		},
		RuleID:   "internet-exposed-critical",
		ThreatID: 7,
	}, {
		Hypothesis: threats.Hypothesis{
			Target:  threats.Target{Service: "unknown", Component: map[string]any{"name": "left-pad"}},
			Pattern: []string{"Outdated dependency"},
			Score:   12.5,
			Status:  threats.StatusOpen,
		},
		RuleID:   "dependency-hygiene",
		ThreatID: 8,
	}}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("WIB", 7*3600))
	require.NoError(t, WriteJSON(&buf, sampleExports(), now))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "2026-03-01T05:00:00Z", doc["generated_at"])
	list := doc["threats"].([]any)
	require.Len(t, list, 2)
	first := list[0].(map[string]any)
	assert.Equal(t, float64(7), first["threat_id"])
	assert.Equal(t, "internet-exposed-critical", first["rule_id"])
	assert.Equal(t, float64(100), first["score"])
	assert.Equal(t, "open", first["status"])
	assert.Equal(t, "CVE-2021-44228", first["evidence"].(map[string]any)["cve"])
	assert.Contains(t, buf.String(), "\n  \"threats\"")

	buf.Reset()
	require.NoError(t, WriteJSON(&buf, nil, now))
	assert.Contains(t, buf.String(), `"threats": []`)
}

func TestWriteHTMLEscapes(t *testing.T) {
	tmpl, err := LoadTemplate("")
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, WriteHTML(&buf, tmpl, "shop", sampleExports(), time.Now()))
	out := buf.String()
	assert.Contains(t, out, "Threat model for shop")
	assert.Contains(t, out, "checkout &lt;api&gt;")
	assert.NotContains(t, out, "checkout <api>")
	assert.Contains(t, out, "log4j-core@2.14.1")
	assert.Contains(t, out, "(KEV)")
	assert.Contains(t, out, "100.00")
	assert.NotContains(t, out, "no value")
}

func TestTemplateOverride(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, TemplateName),
		[]byte(`custom {{ .Project }} {{ len .Threats }}`), 0o644))
	tmpl, err := LoadTemplate(dir)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, WriteHTML(&buf, tmpl, "shop", sampleExports(), time.Now()))
	assert.Equal(t, "custom shop 2", buf.String())

	require.NoError(t, os.WriteFile(filepath.Join(dir, TemplateName), []byte(`{{ .Broken `), 0o644))
	_, err = LoadTemplate(dir)
	require.Error(t, err)
}

func TestWriteSARIF(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSARIF(&buf, sampleExports()))

	var log sarifLog
	require.NoError(t, json.Unmarshal(buf.Bytes(), &log))
	assert.Equal(t, "2.1.0", log.Version)
	require.Len(t, log.Runs, 1)
	run := log.Runs[0]
	assert.Len(t, run.Tool.Driver.Rules, 2)
	require.Len(t, run.Results, 2)
	assert.Equal(t, "error", run.Results[0].Level)
	assert.Equal(t, "note", run.Results[1].Level)
	assert.Equal(t, 1, run.Results[1].RuleIndex)
	assert.Equal(t, "pkg:maven/org.apache.logging.log4j/log4j-core@2.14.1", run.Results[0].Locations[0].PhysicalLocation.ArtifactLocation.URI)
	assert.Equal(t, "left-pad", run.Results[1].Locations[0].PhysicalLocation.ArtifactLocation.URI)
	assert.True(t, strings.HasPrefix(run.Results[0].Message.Text, "CVE-2021-44228 in log4j-core"))
}

func TestWriteAll(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	w := NewWriter(dir, filepath.Join(t.TempDir(), "no-templates"))
	paths, err := w.WriteAll("my shop/v2", sampleExports())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "my_shop_v2_report.json"), paths.JSON)
	for _, p := range []string{paths.JSON, paths.HTML, paths.SARIF} {
		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.NotZero(t, info.Size())
	}
}

func TestSafeName(t *testing.T) {
	assert.Equal(t, "demo", SafeName("demo"))
	assert.Equal(t, "a_b", SafeName("a/b"))
	assert.Equal(t, "project", SafeName(".."))
	assert.Equal(t, "project", SafeName(""))
}
