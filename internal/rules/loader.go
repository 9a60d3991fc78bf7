package rules

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/bryanwahyu/sbom-tm/internal/rules/builtin"
)

//go:embed schema.json
var schemaJSON []byte

// maxRuleFileSize is the maximum size for a single rule file (1 MB).
const maxRuleFileSize = 1 << 20

var ruleSchema = mustSchema()

func mustSchema() *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
	if err != nil {
		panic(fmt.Sprintf("rules: compiling schema: %v", err))
	}
	return s
}

// BuiltinSource is the Source of rules shipped inside the binary.
const BuiltinSource = "builtin"

// Load returns the builtin rules (unless disabled) merged with the rules of
// dir. Directory rules replace builtins sharing their ID.
func Load(dir string, includeBuiltin bool) ([]Rule, error) {
	var base []Rule
	if includeBuiltin {
		b, err := LoadFromFS(builtin.FS, BuiltinSource)
		if err != nil {
			return nil, fmt.Errorf("loading builtin rules: %w", err)
		}
		base = b
	}
	custom, err := LoadFromDir(dir)
	if err != nil {
		return nil, err
	}
	return Merge(base, custom), nil
}

// LoadFromFS loads every rule file of fsys in lexical order.
func LoadFromFS(fsys fs.FS, source string) ([]Rule, error) {
	var names []string
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && isRuleFile(p) {
			names = append(names, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	var all []Rule
	for _, name := range names {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		src := name
		if source != "" {
			src = source
		}
		rules, err := Parse(data, path.Ext(name), src)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", name, err)
		}
		all = append(all, rules...)
	}
	return all, nil
}

// LoadFromDir loads *.json, *.yaml and *.yml files directly under dir in
// sorted order. A missing directory yields no rules. Files larger than 1 MB
// are rejected.
func LoadFromDir(dir string) ([]Rule, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading rules dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && isRuleFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var all []Rule
	for _, name := range names {
		p := filepath.Join(dir, name)
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if info.Size() > maxRuleFileSize {
			return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrInvalidRule, p, maxRuleFileSize)
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", p, err)
		}
		rules, err := Parse(data, filepath.Ext(name), p)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", p, err)
		}
		all = append(all, rules...)
	}
	return all, nil
}

// Parse decodes a rule document (a single rule or a list of rules) encoded
// as JSON or YAML depending on ext, and validates it against the rule schema.
func Parse(data []byte, ext, source string) ([]Rule, error) {
	var doc any
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
	default:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
	}

	res, err := ruleSchema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidRule, strings.Join(msgs, "; "))
	}

	// Normalise through JSON so YAML and JSON rules carry the same value types.
	normalized, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var rules []Rule
	if _, isList := doc.([]any); isList {
		if err := json.Unmarshal(normalized, &rules); err != nil {
			return nil, err
		}
	} else {
		var r Rule
		if err := json.Unmarshal(normalized, &r); err != nil {
			return nil, err
		}
		rules = []Rule{r}
	}
	for i := range rules {
		rules[i].Source = source
	}
	return rules, nil
}

// Merge appends overrides to base; an override with an existing ID replaces
// the base rule in place.
func Merge(base, overrides []Rule) []Rule {
	out := make([]Rule, len(base), len(base)+len(overrides))
	copy(out, base)
	index := make(map[string]int, len(out))
	for i, r := range out {
		index[r.ID] = i
	}
	for _, r := range overrides {
		if i, ok := index[r.ID]; ok {
			out[i] = r
			continue
		}
		index[r.ID] = len(out)
		out = append(out, r)
	}
	return out
}

func isRuleFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}
