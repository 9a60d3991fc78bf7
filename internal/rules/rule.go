// Package rules loads threat rules and matches them against a
// component/vulnerability/context document.
package rules

import "errors"

// ErrInvalidRule marks a rule document that fails schema validation.
var ErrInvalidRule = errors.New("invalid rule")

// Rule is a threat hypothesis template.
type Rule struct {
	ID           string             `json:"id" yaml:"id"`
	Description  string             `json:"description" yaml:"description"`
	Severity     string             `json:"severity,omitempty" yaml:"severity,omitempty"`
	Conditions   []map[string]any   `json:"conditions" yaml:"conditions"`
	Result       Result             `json:"result" yaml:"result"`
	ScoreFactors map[string]float64 `json:"score_factors,omitempty" yaml:"score_factors,omitempty"`
	// Source is the file the rule was loaded from ("builtin" for embedded rules).
	Source string `json:"source,omitempty" yaml:"-"`
}

// Result is what a matching rule contributes to the hypothesis.
type Result struct {
	Pattern           []string `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Objective         []string `json:"objective,omitempty" yaml:"objective,omitempty"`
	Recommendations   []string `json:"recommendations,omitempty" yaml:"recommendations,omitempty"`
	PatternMultiplier *float64 `json:"pattern_multiplier,omitempty" yaml:"pattern_multiplier,omitempty"`
}

// Hypothesis is produced for every rule whose conditions all hold.
type Hypothesis struct {
	RuleID            string             `json:"rule_id"`
	Description       string             `json:"description"`
	RuleSeverity      string             `json:"rule_severity"`
	Pattern           []string           `json:"pattern"`
	Objective         []string           `json:"objective"`
	Recommendations   []string           `json:"recommendations"`
	PatternMultiplier float64            `json:"pattern_multiplier"`
	ScoreFactors      map[string]float64 `json:"score_factors"`
}

func (r Rule) hypothesis() Hypothesis {
	mult := 1.0
	if r.Result.PatternMultiplier != nil {
		mult = *r.Result.PatternMultiplier
	}
	sev := r.Severity
	if sev == "" {
		sev = "medium"
	}
	factors := r.ScoreFactors
	if factors == nil {
		factors = map[string]float64{}
	}
	return Hypothesis{
		RuleID:            r.ID,
		Description:       r.Description,
		RuleSeverity:      sev,
		Pattern:           nonNil(r.Result.Pattern),
		Objective:         nonNil(r.Result.Objective),
		Recommendations:   nonNil(r.Result.Recommendations),
		PatternMultiplier: mult,
		ScoreFactors:      factors,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
