// Package scoring turns a vulnerability, its service context and a rule's
// weights into a 0-100 risk score.
package scoring

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
)

var exploitability = map[string]float64{
	"NONE":             0.0,
	"PROOF_OF_CONCEPT": 0.6,
	"ACTIVE":           1.0,
	"ACTIVE_EXPLOIT":   1.0,
}

var assetValue = map[string]float64{
	"low":    0.2,
	"medium": 0.5,
	"high":   1.0,
}

const (
	defaultAssetValue = 0.5
	defaultExposure   = 0.3
	exposedExposure   = 1.0

	defaultCVSSWeight           = 0.5
	defaultExploitabilityWeight = 0.3
	defaultAssetValueWeight     = 0.15
	defaultExposureWeight       = 0.05
)

var severityMultiplier = map[string]float64{
	"low":    0.8,
	"medium": 1.0,
	"high":   1.2,
}

// SeverityMultiplier returns the score multiplier of a rule severity.
func SeverityMultiplier(severity string) float64 {
	if m, ok := severityMultiplier[strings.ToLower(severity)]; ok {
		return m
	}
	return 1.0
}

// ComputeScore returns 100 * min(1, baseline * patternMultiplier) rounded to
// two decimals, where baseline is the weighted sum of CVSS severity,
// exploitability, asset value and internet exposure.
func ComputeScore(vuln, ctx map[string]any, factors map[string]float64, patternMultiplier float64) float64 {
	var severity float64
	if c := CVSS(vuln); c != nil {
		severity = *c / 10.0
	}

	maturity := "NONE"
	if v := firstString(vuln, "Exploitability", "exploit_maturity"); v != "" {
		maturity = strings.ToUpper(v)
	}
	exploit := exploitability[maturity]

	value := defaultAssetValue
	if vm, ok := ctx["value_metric"]; ok && vm != nil {
		if v, ok := assetValue[strings.ToLower(toString(vm))]; ok {
			value = v
		}
	}

	exposure := exposureOf(ctx)

	cvssW := factor(factors, defaultCVSSWeight, "cvss_weight")
	exploitW := factor(factors, defaultExploitabilityWeight, "exploitability_weight", "exploit_maturity_weight")
	valueW := factor(factors, defaultAssetValueWeight, "asset_value_weight")
	exposureW := factor(factors, defaultExposureWeight, "exposure_weight")

	baseline := cvssW*severity + exploitW*exploit + valueW*value + exposureW*exposure
	score := 100.0 * math.Min(1.0, baseline*patternMultiplier)
	return math.Round(score*100) / 100
}

func exposureOf(ctx map[string]any) float64 {
	var raw any
	found := false
	if exp, ok := ctx["exposure"].(map[string]any); ok {
		raw, found = exp["internet"]
	}
	if !found {
		raw = ctx["internet_exposed"]
	}
	switch v := raw.(type) {
	case nil:
		return defaultExposure
	case bool:
		if v {
			return exposedExposure
		}
		return defaultExposure
	default:
		if f, ok := ToFloat(v); ok {
			return f
		}
		return defaultExposure
	}
}

func factor(factors map[string]float64, def float64, keys ...string) float64 {
	for _, k := range keys {
		if v, ok := factors[k]; ok {
			return v
		}
	}
	return def
}

// CVSS extracts a base score from a scanner vulnerability. It understands a
// plain number, {"Score": n}, and the Trivy vendor map
// {"nvd": {"V3Score": n}, ...} with nvd preferred, then falls back to
// CVSSScore/cvssScore. It returns nil when no score is present.
func CVSS(vuln map[string]any) *float64 {
	raw := vuln["CVSS"]
	if isZero(raw) {
		raw = vuln["cvss"]
	}
	if f, ok := ToFloat(raw); ok {
		return &f
	}
	if m, ok := raw.(map[string]any); ok {
		for _, k := range []string{"Score", "score"} {
			if f, ok := ToFloat(m[k]); ok {
				return &f
			}
		}
		if f, ok := vendorScore(m); ok {
			return &f
		}
	}
	for _, k := range []string{"CVSSScore", "cvssScore"} {
		if f, ok := ToFloat(vuln[k]); ok {
			return &f
		}
	}
	return nil
}

func vendorScore(m map[string]any) (float64, bool) {
	vendors := make([]string, 0, len(m))
	for k := range m {
		if k != "nvd" {
			vendors = append(vendors, k)
		}
	}
	sort.Strings(vendors)
	vendors = append([]string{"nvd"}, vendors...)

	for _, name := range vendors {
		entry, ok := m[name].(map[string]any)
		if !ok {
			continue
		}
		for _, k := range []string{"V40Score", "V3Score", "V2Score"} {
			if f, ok := ToFloat(entry[k]); ok && f > 0 {
				return f, true
			}
		}
	}
	return 0, false
}

// ToFloat converts JSON/YAML numeric values and numeric strings.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok && !isZero(v) {
			return toString(v)
		}
	}
	return ""
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		b, err := json.Marshal(s)
		if err != nil {
			return ""
		}
		return strings.Trim(string(b), `"`)
	}
}

func isZero(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case bool:
		return !x
	case float64:
		return x == 0
	case map[string]any:
		return len(x) == 0
	case []any:
		return len(x) == 0
	}
	return false
}
