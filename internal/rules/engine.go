package rules

import (
	"fmt"
	"reflect"
	"strings"
)

// Engine matches loaded rules against vulnerability documents.
type Engine struct {
	rules []Rule
}

// New returns an engine over rules, kept in the given order.
func New(rules []Rule) *Engine {
	return &Engine{rules: rules}
}

// Rules returns the rules of the engine.
func (e *Engine) Rules() []Rule {
	return e.rules
}

// Evaluate returns a hypothesis for every rule whose conditions all hold on
// the document {component, vuln, context, threatintel}.
func (e *Engine) Evaluate(component, vuln, ctx, intel map[string]any) []Hypothesis {
	doc := map[string]any{
		"component":   orEmpty(component),
		"vuln":        orEmpty(vuln),
		"context":     orEmpty(ctx),
		"threatintel": orEmpty(intel),
	}
	var out []Hypothesis
	for _, r := range e.rules {
		if Matches(r, doc) {
			out = append(out, r.hypothesis())
		}
	}
	return out
}

// Matches reports whether every condition of r holds on doc.
func Matches(r Rule, doc map[string]any) bool {
	for _, cond := range r.Conditions {
		if !matchCondition(cond, doc) {
			return false
		}
	}
	return true
}

func matchCondition(cond map[string]any, doc map[string]any) bool {
	for field, expected := range cond {
		actual := dig(doc, field)
		if ops, ok := expected.(map[string]any); ok {
			for op, val := range ops {
				if !compare(actual, op, val) {
					return false
				}
			}
			continue
		}
		if !equal(actual, expected) {
			return false
		}
	}
	return true
}

// dig resolves a dotted path; any missing segment yields nil.
func dig(doc map[string]any, path string) any {
	var cur any = doc
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = m[part]
		if !ok {
			return nil
		}
	}
	return cur
}

func compare(actual any, op string, expected any) bool {
	switch op {
	case "eq":
		return equal(actual, expected)
	case "neq":
		return !equal(actual, expected)
	case "gte", "lte", "gt", "lt":
		c, ok := order(actual, expected)
		if !ok {
			return false
		}
		switch op {
		case "gte":
			return c >= 0
		case "lte":
			return c <= 0
		case "gt":
			return c > 0
		default:
			return c < 0
		}
	case "in":
		list, ok := asList(expected)
		if !ok {
			return false
		}
		for _, item := range list {
			if equal(actual, item) {
				return true
			}
		}
		return false
	case "contains":
		if a, ok := actual.(string); ok {
			return strings.Contains(a, fmt.Sprint(expected))
		}
		list, ok := asList(actual)
		if !ok {
			return false
		}
		for _, item := range list {
			if equal(item, expected) {
				return true
			}
		}
		return false
	}
	return false
}

// order compares two numbers or two strings; other pairs are unordered.
func order(a, b any) (int, bool) {
	if a == nil || b == nil {
		return 0, false
	}
	if x, ok := number(a); ok {
		y, ok := number(b)
		if !ok {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	}
	x, ok := a.(string)
	if !ok {
		return 0, false
	}
	y, ok := b.(string)
	if !ok {
		return 0, false
	}
	return strings.Compare(x, y), true
}

// equal compares numbers by value and lists element by element, so a
// []string context value equals the []any literal decoded from a rule.
func equal(a, b any) bool {
	if x, ok := number(a); ok {
		y, ok := number(b)
		return ok && x == y
	}
	as, aok := asList(a)
	bs, bok := asList(b)
	if aok || bok {
		if !aok || !bok || len(as) != len(bs) {
			return false
		}
		for i := range as {
			if !equal(as[i], bs[i]) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

// asList returns v as []any when it is any slice or array.
func asList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func number(v any) (float64, bool) {
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
	}
	return 0, false
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
