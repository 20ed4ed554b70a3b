// Package validate implements per-field acceptance and normalization rules
// for receipt values.
package validate

import (
	"strings"
	"time"
	"unicode"

	"github.com/sells-group/receipt-ocr/internal/model"
)

// Loose bounds for reference ids that come from a template region.
const (
	RelaxedReferenceMin = 6
	RelaxedReferenceMax = 20
)

// Identification number length bounds after stripping non-digits.
const (
	identificationMin = 7
	identificationMax = 9
)

// Mode selects strict or relaxed reference bounds.
type Mode int

const (
	Strict Mode = iota
	Relaxed
)

// Validator applies the rule of each catalog field. It is safe for
// concurrent use.
type Validator struct {
	fields *model.FieldRegistry
	now    func() time.Time
}

// Option configures a Validator.
type Option func(*Validator)

// WithClock overrides the time source used by date validation.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) { v.now = now }
}

// New creates a Validator for the given field catalog.
func New(fields *model.FieldRegistry, opts ...Option) *Validator {
	v := &Validator{fields: fields, now: time.Now}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Validate reports whether raw is acceptable for the named field.
func (v *Validator) Validate(fieldName, raw string) bool {
	_, ok := v.Normalize(fieldName, raw)
	return ok
}

// Normalize returns the canonical form of raw for the named field. Unknown
// field names are treated as free text.
func (v *Validator) Normalize(fieldName, raw string) (string, bool) {
	return v.NormalizeMode(fieldName, raw, Strict)
}

// NormalizeMode is Normalize with an explicit reference bound mode.
func (v *Validator) NormalizeMode(fieldName, raw string, mode Mode) (string, bool) {
	rule := model.ValidationRule{Kind: model.RuleText}
	if v.fields != nil {
		if def := v.fields.ByName(fieldName); def != nil {
			rule = def.Rule
		}
	}
	return v.normalizeRule(rule, raw, mode)
}

// Matches reports whether text satisfies the definition's optional pattern
// and its semantic rule, returning the normalized value.
func (v *Validator) Matches(def *model.FieldDefinition, text string, mode Mode) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	if mode == Strict && def.Rule.Regex != nil && !def.Rule.Regex.MatchString(text) {
		return "", false
	}
	return v.normalizeRule(def.Rule, text, mode)
}

func (v *Validator) normalizeRule(rule model.ValidationRule, raw string, mode Mode) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}
	switch rule.Kind {
	case model.RuleAmount:
		d, ok := NormalizeAmount(s)
		if !ok {
			return "", false
		}
		return FormatAmount(d), true
	case model.RuleDate:
		d, ok := ParseDate(s, v.now())
		if !ok {
			return "", false
		}
		return FormatDate(d), true
	case model.RuleReference:
		lo, hi := RelaxedReferenceMin, RelaxedReferenceMax
		if mode == Strict {
			if rule.MinLength > 0 {
				lo = rule.MinLength
			}
			if rule.MaxLength > 0 {
				hi = rule.MaxLength
			}
		}
		return NormalizeReference(s, lo, hi)
	case model.RuleIdentification:
		return NormalizeIdentification(s)
	default:
		return s, true
	}
}

// NormalizeReference strips non-alphanumerics and checks the length bound.
func NormalizeReference(raw string, minLen, maxLen int) (string, bool) {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToUpper(r)
		}
		return -1
	}, raw)
	n := len([]rune(cleaned))
	if n < minLen || n > maxLen {
		return "", false
	}
	return cleaned, true
}

// NormalizeIdentification keeps only digits; 7 to 9 digits are accepted.
// Nationality prefixes such as V- or E- are dropped with the separators.
func NormalizeIdentification(raw string) (string, bool) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)
	if len(digits) < identificationMin || len(digits) > identificationMax {
		return "", false
	}
	return digits, true
}
