// Package contextgen infers a service context file from a project tree and
// its SBOM when the user does not supply one.
package contextgen

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bryanwahyu/sbom-tm/internal/sbom"
)

// ApplicationProfile is the guessed deployment profile of a project.
type ApplicationProfile struct {
	ServiceName     string   `json:"service_name"`
	Environment     string   `json:"environment"`
	InternetExposed bool     `json:"internet_exposed"`
	DataClass       []string `json:"data_class"`
	ValueMetric     string   `json:"value_metric"`
}

var nodeServerHints = set("express", "fastify", "koa", "hapi", "restify", "next", "nuxt", "@nestjs/core")

var nodeDataHints = set("pg", "mysql", "mongoose", "redis", "@aws-sdk/client-dynamodb", "dynamodb", "@prisma/client")

var pyServerHints = set("flask", "django", "fastapi", "uvicorn")

var pyDataHints = set("sqlalchemy", "psycopg2", "psycopg2-binary", "django", "boto3")

var requirementSplit = regexp.MustCompile(`[<>=]`)

// DetectApplicationProfile guesses exposure and data sensitivity from
// component ecosystems, package.json and requirements.txt. projectDir may be
// empty.
func DetectApplicationProfile(projectDir, projectName string, components []sbom.ParsedComponent) ApplicationProfile {
	name := projectName
	if name == "" {
		if projectDir != "" {
			name = filepath.Base(projectDir)
		} else {
			name = "default-service"
		}
	}
	p := ApplicationProfile{
		ServiceName: name,
		Environment: "prod",
		DataClass:   []string{"general"},
		ValueMetric: "medium",
	}

	ecosystems := inferEcosystems(components)
	if ecosystems["npm"] {
		p.markExposed()
	}
	if ecosystems["pypi"] {
		p.markSensitive()
	}

	if projectDir == "" {
		return p
	}

	if manifest, ok := readManifest(filepath.Join(projectDir, "package.json")); ok {
		if n, ok := manifest["name"].(string); ok && strings.TrimSpace(n) != "" {
			p.ServiceName = strings.TrimSpace(n)
		}
		deps := map[string]bool{}
		for _, key := range []string{"dependencies", "devDependencies", "peerDependencies"} {
			if m, ok := manifest[key].(map[string]any); ok {
				for dep := range m {
					deps[strings.ToLower(dep)] = true
				}
			}
		}
		if intersects(deps, nodeServerHints) {
			p.markExposed()
		}
		if intersects(deps, nodeDataHints) {
			p.markSensitive()
		}
		if len(deps) > 0 {
			return p
		}
	}

	pkgs := pythonPackages(projectDir)
	if len(pkgs) > 0 && len(ecosystems) == 0 {
		if intersects(pkgs, pyServerHints) {
			p.markExposed()
		}
		if intersects(pkgs, pyDataHints) {
			p.markSensitive()
		}
	}
	return p
}

func (p *ApplicationProfile) markExposed() {
	p.InternetExposed = true
	p.ValueMetric = "high"
}

func (p *ApplicationProfile) markSensitive() {
	p.DataClass = []string{"pii"}
	p.ValueMetric = "high"
}

func inferEcosystems(components []sbom.ParsedComponent) map[string]bool {
	eco := map[string]bool{}
	for _, c := range components {
		purl := strings.ToLower(c.PURL)
		switch {
		case purl == "":
		case strings.HasPrefix(purl, "pkg:npm/"):
			eco["npm"] = true
		case strings.HasPrefix(purl, "pkg:pypi/"), strings.HasPrefix(purl, "pkg:python/"):
			eco["pypi"] = true
		case strings.HasPrefix(purl, "pkg:golang/"):
			eco["golang"] = true
		}
	}
	return eco
}

// pythonPackages baca requirements.txt, nama paket saja (lowercase).
func pythonPackages(projectDir string) map[string]bool {
	pkgs := map[string]bool{}
	f, err := os.Open(filepath.Join(projectDir, "requirements.txt"))
	if err != nil {
		return pkgs
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name := requirementSplit.Split(line, 2)[0]
		pkgs[strings.ToLower(strings.TrimSpace(name))] = true
	}
	return pkgs
}

// readManifest decodes a package.json; unreadable or malformed files are
// reported as absent.
func readManifest(path string) (map[string]any, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{}, true
	}
	return m, true
}

func set(items ...string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, i := range items {
		m[i] = true
	}
	return m
}

func intersects(a, b map[string]bool) bool {
	for k := range a {
		if b[k] {
			return true
		}
	}
	return false
}
