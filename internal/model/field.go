package model

import (
	"regexp"

	"github.com/rotisserie/eris"
)

// SearchStrategy selects where the Zone Locator starts looking for a field.
type SearchStrategy string

const (
	StrategyAnchoredSameLine  SearchStrategy = "anchored_same_line"
	StrategyAnchoredMultiword SearchStrategy = "anchored_multiword"
	StrategyGeneralScan       SearchStrategy = "general_scan"
	StrategyRelativeFallback  SearchStrategy = "relative_fallback"
)

// Anchored reports whether the strategy searches next to a keyword anchor.
func (s SearchStrategy) Anchored() bool {
	return s == StrategyAnchoredSameLine || s == StrategyAnchoredMultiword
}

// ParseSearchStrategy validates a strategy name from configuration.
func ParseSearchStrategy(s string) (SearchStrategy, error) {
	switch st := SearchStrategy(s); st {
	case StrategyAnchoredSameLine, StrategyAnchoredMultiword, StrategyGeneralScan, StrategyRelativeFallback:
		return st, nil
	}
	return "", eris.Errorf("model: unknown search strategy %q", s)
}

// RuleKind is the semantic validation applied to a field value.
type RuleKind string

const (
	RuleAmount         RuleKind = "amount"
	RuleDate           RuleKind = "date"
	RuleReference      RuleKind = "reference"
	RuleIdentification RuleKind = "identification"
	RuleText           RuleKind = "text"
)

// ParseRuleKind validates a rule kind from configuration.
func ParseRuleKind(s string) (RuleKind, error) {
	switch k := RuleKind(s); k {
	case RuleAmount, RuleDate, RuleReference, RuleIdentification, RuleText:
		return k, nil
	}
	return "", eris.Errorf("model: unknown validation rule %q", s)
}

// ValidationRule combines a semantic kind with an optional full-match pattern.
// MinLength/MaxLength bound reference ids after non-alphanumerics are stripped.
type ValidationRule struct {
	Kind      RuleKind       `json:"kind"`
	Pattern   string         `json:"pattern,omitempty"`
	MinLength int            `json:"min_length,omitempty"`
	MaxLength int            `json:"max_length,omitempty"`
	Regex     *regexp.Regexp `json:"-"` // anchored form of Pattern, compiled at registry load
}

// Distance is the anchor search reach in pixels.
type Distance struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
}

// FieldDefinition describes how one receipt field is located and validated.
type FieldDefinition struct {
	Name        string         `json:"name"`
	Keywords    []string       `json:"keywords"`
	Rule        ValidationRule `json:"validation_rule"`
	Strategy    SearchStrategy `json:"search_strategy"`
	MaxDistance Distance       `json:"max_distance"`
	Required    bool           `json:"required"`
	Fallback    *RelRect       `json:"fallback,omitempty"`
	MinWords    int            `json:"min_words,omitempty"` // smallest multiword combination, default 2
}

// FieldRegistry is an ordered, indexed collection of field definitions.
type FieldRegistry struct {
	Fields   []FieldDefinition
	byName   map[string]*FieldDefinition
	required []*FieldDefinition
}

// NewFieldRegistry indexes the definitions and pre-compiles rule patterns.
// Definitions whose pattern does not compile keep a nil Regex and are
// validated by their semantic kind alone.
func NewFieldRegistry(fields []FieldDefinition) *FieldRegistry {
	r := &FieldRegistry{
		Fields: fields,
		byName: make(map[string]*FieldDefinition, len(fields)),
	}
	for i := range r.Fields {
		f := &r.Fields[i]
		if f.Rule.Pattern != "" && f.Rule.Regex == nil {
			if re, err := regexp.Compile(`^(?:` + f.Rule.Pattern + `)$`); err == nil {
				f.Rule.Regex = re
			}
		}
		r.byName[f.Name] = f
		if f.Required {
			r.required = append(r.required, f)
		}
	}
	return r
}

// ByName returns the definition for a field, or nil if not found.
func (r *FieldRegistry) ByName(name string) *FieldDefinition {
	return r.byName[name]
}

// Required returns the required definitions in catalog order.
func (r *FieldRegistry) Required() []*FieldDefinition {
	return r.required
}

// Names returns field names in catalog order.
func (r *FieldRegistry) Names() []string {
	names := make([]string, len(r.Fields))
	for i, f := range r.Fields {
		names[i] = f.Name
	}
	return names
}
