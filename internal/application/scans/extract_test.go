package scans

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFirstString(t *testing.T) {
	tests := []struct {
		name string
		in   map[string]any
		want string
	}{
		{"string", map[string]any{"cve": "CVE-1"}, "CVE-1"},
		{"first key wins", map[string]any{"VulnerabilityID": "CVE-2", "cve": "CVE-1"}, "CVE-2"},
		{"empty falls through", map[string]any{"VulnerabilityID": "", "cve": "CVE-1"}, "CVE-1"},
		{"float", map[string]any{"cve": 44228.0}, "44228"},
		{"int", map[string]any{"severity": 3}, "3"},
		{"zero skipped", map[string]any{"cve": 0.0, "severity": "HIGH"}, "HIGH"},
		{"bool", map[string]any{"cve": true}, "true"},
		{"nil", map[string]any{"cve": nil}, ""},
		{"missing", map[string]any{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, firstString(tt.in, "VulnerabilityID", "cve", "severity"))
		})
	}
}

func TestVulnerabilityRecordKeepsNumericFields(t *testing.T) {
	rec := vulnerabilityRecord(7, map[string]any{"cve": 20211234.0, "severity": 4})
	assert.Equal(t, "20211234", rec.CVE)
	assert.Equal(t, "4", rec.Severity)
	assert.Equal(t, int64(7), rec.ComponentID)
}
