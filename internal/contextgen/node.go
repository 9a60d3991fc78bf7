package contextgen

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/bryanwahyu/sbom-tm/internal/sbom"
)

var importPattern = regexp.MustCompile(`(?:import\s+(?:[^'"]+\s+from\s+)?|require\()\s*['"]([^'"]+)['"]`)

var sourceSuffixes = set(".js", ".jsx", ".ts", ".tsx", ".mjs", ".cjs")

var skipDirs = set("node_modules", ".git", "dist", "build", "coverage", "__pycache__", ".next", ".turbo", "tmp", "out")

var dependencyKeys = []string{"dependencies", "devDependencies", "peerDependencies", "optionalDependencies"}

// nodeComponent is a dependency found in the project tree together with the
// source files that pull it in.
type nodeComponent struct {
	Component sbom.ParsedComponent
	Service   string
}

type declared struct {
	raw     string
	version string
}

// canonicalImport maps an import specifier to its package name: "@scope/pkg"
// for scoped packages, the first path segment otherwise. Relative, absolute
// and subpath (#) imports are not packages.
func canonicalImport(target string) string {
	v := strings.TrimSpace(target)
	if v == "" || strings.HasPrefix(v, ".") || strings.HasPrefix(v, "/") || strings.HasPrefix(v, "#") {
		return ""
	}
	if strings.HasPrefix(v, "@") {
		parts := strings.Split(v, "/")
		if len(parts) >= 2 {
			return parts[0] + "/" + parts[1]
		}
		return v
	}
	return strings.SplitN(v, "/", 2)[0]
}

func dependencyMap(manifest map[string]any) map[string]declared {
	out := map[string]declared{}
	for _, key := range dependencyKeys {
		deps, ok := manifest[key].(map[string]any)
		if !ok {
			continue
		}
		for raw, ver := range deps {
			canonical := canonicalImport(raw)
			if canonical == "" {
				continue
			}
			d := declared{raw: raw}
			if ver != nil {
				d.version = fmt.Sprint(ver)
			}
			out[canonical] = d
		}
	}
	return out
}

// usedPackages scans JS/TS sources for imports and requires, returning the
// set of relative source paths per package.
func usedPackages(projectDir string) map[string]map[string]bool {
	used := map[string]map[string]bool{}
	_ = filepath.WalkDir(projectDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != projectDir && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !sourceSuffixes[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil || !utf8.Valid(data) {
			return nil
		}
		rel, err := filepath.Rel(projectDir, path)
		if err != nil {
			rel = path
		}
		rel = filepath.ToSlash(rel)
		for _, m := range importPattern.FindAllStringSubmatch(string(data), -1) {
			if canonical := canonicalImport(m[1]); canonical != "" {
				if used[canonical] == nil {
					used[canonical] = map[string]bool{}
				}
				used[canonical][rel] = true
			}
		}
		return nil
	})
	return used
}

func serviceLabel(paths map[string]bool) string {
	if len(paths) == 0 {
		return "service"
	}
	labels := make([]string, 0, len(paths))
	for p := range paths {
		labels = append(labels, p)
	}
	sort.Strings(labels)
	return strings.Join(labels, ", ")
}

func npmComponent(name, version string) sbom.ParsedComponent {
	v := strings.TrimLeft(version, "^~")
	if v == "" {
		v = version
	}
	purl := "pkg:npm/" + name
	if v != "" {
		purl += "@" + v
	}
	return sbom.ParsedComponent{
		Name:       name,
		Version:    v,
		PURL:       purl,
		Hashes:     map[string]string{},
		Properties: map[string]string{},
	}
}

func resolveManifest(baseDir, pkg string) (string, bool) {
	nm := filepath.Join(baseDir, "node_modules")
	if _, err := os.Stat(nm); err != nil {
		return "", false
	}
	path := filepath.Join(append([]string{nm}, strings.Split(pkg, "/")...)...)
	manifest := filepath.Join(path, "package.json")
	if _, err := os.Stat(manifest); err != nil {
		return "", false
	}
	return manifest, true
}

type queued struct {
	pkg     string
	baseDir string
	service string
}

// collectNodeComponents returns the npm packages the project actually
// imports plus everything they pull in through node_modules, sorted by name.
// Transitive packages inherit the service label of their importer.
func collectNodeComponents(projectDir string) []nodeComponent {
	manifest, _ := readManifest(filepath.Join(projectDir, "package.json"))
	deps := dependencyMap(manifest)
	used := usedPackages(projectDir)

	var selected []string
	for name := range deps {
		if _, ok := used[name]; ok {
			selected = append(selected, name)
		}
	}
	if len(selected) == 0 {
		return nil
	}
	sort.Strings(selected)

	components := map[string]sbom.ParsedComponent{}
	services := map[string]string{}
	var queue []queued
	for _, name := range selected {
		label := serviceLabel(used[name])
		components[name] = npmComponent(deps[name].raw, deps[name].version)
		services[name] = label
		queue = append(queue, queued{pkg: name, baseDir: projectDir, service: label})
	}

	visited := map[string]bool{}
	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]
		if visited[item.pkg] {
			continue
		}
		visited[item.pkg] = true

		path, ok := resolveManifest(item.baseDir, item.pkg)
		if !ok {
			continue
		}
		data, _ := readManifest(path)

		canonical := item.pkg
		rawName, hasName := data["name"].(string)
		if hasName {
			if n := canonicalImport(rawName); n != "" {
				canonical = n
			}
		}

		existing, known := components[canonical]
		display := item.pkg
		switch {
		case hasName && strings.TrimSpace(rawName) != "":
			display = strings.TrimSpace(rawName)
		case known:
			display = existing.Name
		}
		var version string
		if v, ok := data["version"]; ok && v != nil {
			version = fmt.Sprint(v)
		} else if known {
			version = existing.Version
		}
		components[canonical] = npmComponent(display, version)
		if _, ok := services[canonical]; !ok {
			services[canonical] = item.service
		}

		children := dependencyMap(data)
		names := make([]string, 0, len(children))
		for n := range children {
			names = append(names, n)
		}
		sort.Strings(names)
		pkgDir := filepath.Dir(path)
		for _, n := range names {
			if _, ok := components[n]; !ok {
				components[n] = npmComponent(children[n].raw, children[n].version)
			}
			if _, ok := services[n]; !ok {
				services[n] = item.service
			}
			queue = append(queue, queued{pkg: n, baseDir: pkgDir, service: item.service})
		}
	}

	keys := make([]string, 0, len(components))
	for k := range components {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]nodeComponent, 0, len(keys))
	for _, k := range keys {
		out = append(out, nodeComponent{Component: components[k], Service: services[k]})
	}
	return out
}
