package trivy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractVulnerabilities(t *testing.T) {
	report := map[string]any{
		"Results": []any{
			map[string]any{
				"Target": "bom.json",
				"Vulnerabilities": []any{
					map[string]any{
						"VulnerabilityID": "CVE-2021-44228",
						"PkgName":         "log4j-core",
						"PkgIdentifier":   map[string]any{"PURL": "pkg:maven/org.apache.logging.log4j/log4j-core@2.14.1"},
					},
					map[string]any{
						"VulnerabilityID": "CVE-2021-45046",
						"PkgName":         "log4j-core",
						"PkgIdentifier":   map[string]any{"PURL": "pkg:maven/org.apache.logging.log4j/log4j-core@2.14.1"},
					},
				},
			},
			map[string]any{
				"Target":          "other",
				"vulnerabilities": []any{map[string]any{"cve": "CVE-1", "packageName": "left-pad"}},
			},
			map[string]any{"Target": "clean"},
		},
	}

	idx := ExtractVulnerabilities(report)
	assert.Equal(t, 3, idx.Count())

	log4j := VulnerabilitiesFor("pkg:maven/org.apache.logging.log4j/log4j-core@2.14.1", "log4j-core", idx)
	require.Len(t, log4j, 2)
	assert.Equal(t, "CVE-2021-44228", log4j[0]["VulnerabilityID"])

	assert.Len(t, VulnerabilitiesFor("", "left-pad", idx), 1)
	assert.Empty(t, VulnerabilitiesFor("pkg:npm/left-pad@1.0.0", "left-pad", idx))
}

func TestExtractVulnerabilitiesLowerCaseResults(t *testing.T) {
	idx := ExtractVulnerabilities(map[string]any{
		"results": []any{map[string]any{"Vulnerabilities": []any{map[string]any{"PkgName": "x"}}}},
	})
	assert.Len(t, VulnerabilitiesFor("", "x", idx), 1)
	assert.Empty(t, ExtractVulnerabilities(map[string]any{}))
}
