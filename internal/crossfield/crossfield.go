// Package crossfield checks the assembled field set of a document and
// derives its overall confidence and status.
package crossfield

import (
	"go.uber.org/zap"

	"github.com/sells-group/receipt-ocr/internal/model"
	"github.com/sells-group/receipt-ocr/internal/validate"
)

// Outcome is the document-level verdict for a set of candidates.
type Outcome struct {
	Validation        model.ValidationResults
	OverallConfidence float64
	Status            model.Status
}

// Checker re-validates final field values against the catalog.
type Checker struct {
	fields        *model.FieldRegistry
	v             *validate.Validator
	lowConfidence float64
}

// New creates a Checker. Documents whose overall confidence is below
// lowConfidence are reported as low_confidence.
func New(fields *model.FieldRegistry, v *validate.Validator, lowConfidence float64) *Checker {
	return &Checker{fields: fields, v: v, lowConfidence: lowConfidence}
}

// Evaluate validates the candidates and derives the status. Status
// precedence: no_data_extracted, validation_failed, low_confidence,
// success.
func (c *Checker) Evaluate(cands map[string]model.ExtractionCandidate) Outcome {
	out := Outcome{
		Validation: model.ValidationResults{
			PerField:              make(map[string]bool, len(cands)),
			CrossValidationPassed: true,
		},
	}

	for name, cand := range cands {
		if cand.Value == "" {
			out.Validation.PerField[name] = false
			continue
		}
		out.Validation.PerField[name] = c.valid(name, cand)
	}

	for _, def := range c.fields.Required() {
		cand, ok := cands[def.Name]
		if !ok || cand.Value == "" {
			continue
		}
		if !out.Validation.PerField[def.Name] {
			out.Validation.CrossValidationPassed = false
			zap.L().Debug("crossfield: required field failed validation",
				zap.String("field", def.Name),
				zap.String("value", cand.Value),
			)
		}
	}

	var sum float64
	n := 0
	for _, cand := range cands {
		if cand.Successful {
			sum += cand.Confidence
			n++
		}
	}
	if n > 0 {
		out.OverallConfidence = model.ClampConfidence(sum / float64(n))
	}

	switch {
	case n == 0:
		out.Status = model.StatusNoDataExtracted
	case !out.Validation.CrossValidationPassed:
		out.Status = model.StatusValidationFailed
	case out.OverallConfidence < c.lowConfidence:
		out.Status = model.StatusLowConfidence
	default:
		out.Status = model.StatusSuccess
	}
	return out
}

func (c *Checker) valid(name string, cand model.ExtractionCandidate) bool {
	mode := validate.Strict
	if cand.Method == model.MethodTemplateROI {
		mode = validate.Relaxed
	}
	_, ok := c.v.NormalizeMode(name, cand.Value, mode)
	return ok
}
