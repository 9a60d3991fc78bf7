package trivy

// Key identifies the package a finding belongs to.
type Key struct {
	PURL string
	Name string
}

// Index groups report findings by package.
type Index map[Key][]map[string]any

// ExtractVulnerabilities indexes every vulnerability of a trivy JSON report
// by (PkgIdentifier.PURL, PkgName). Lower-case keys are accepted as well.
func ExtractVulnerabilities(report map[string]any) Index {
	idx := Index{}
	results, ok := report["Results"].([]any)
	if !ok {
		results, _ = report["results"].([]any)
	}
	for _, item := range results {
		res, ok := item.(map[string]any)
		if !ok {
			continue
		}
		vulns, _ := res["Vulnerabilities"].([]any)
		if len(vulns) == 0 {
			vulns, _ = res["vulnerabilities"].([]any)
		}
		for _, raw := range vulns {
			v, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			k := Key{Name: str(v["PkgName"])}
			if k.Name == "" {
				k.Name = str(v["packageName"])
			}
			if id, ok := v["PkgIdentifier"].(map[string]any); ok {
				k.PURL = str(id["PURL"])
			}
			idx[k] = append(idx[k], v)
		}
	}
	return idx
}

// VulnerabilitiesFor returns the findings recorded for exactly (purl, name).
func VulnerabilitiesFor(purl, name string, idx Index) []map[string]any {
	return idx[Key{PURL: purl, Name: name}]
}

// Count returns the number of indexed findings.
func (idx Index) Count() int {
	n := 0
	for _, v := range idx {
		n += len(v)
	}
	return n
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
