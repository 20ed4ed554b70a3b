// Package extract assembles one ExtractionCandidate per catalog field for a
// document, driving the locator and consulting the correction model.
package extract

import (
	"context"
	"runtime/debug"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/receipt-ocr/internal/locate"
	"github.com/sells-group/receipt-ocr/internal/model"
	"github.com/sells-group/receipt-ocr/internal/validate"
)

// Corrector overrides a raw OCR value with a human-taught correction.
// Implementations must be safe for concurrent reads.
type Corrector interface {
	Correct(field, raw string, confidence float64) (string, float64)
}

type noCorrection struct{}

func (noCorrection) Correct(_, raw string, c float64) (string, float64) { return raw, c }

// Assembler builds candidates for every field in a registry. It holds no
// per-document state and may be shared across goroutines.
type Assembler struct {
	fields *model.FieldRegistry
	loc    *locate.Locator
	v      *validate.Validator
	corr   Corrector
}

// New creates an Assembler. corr may be nil.
func New(fields *model.FieldRegistry, loc *locate.Locator, v *validate.Validator, corr Corrector) *Assembler {
	if corr == nil {
		corr = noCorrection{}
	}
	return &Assembler{fields: fields, loc: loc, v: v, corr: corr}
}

// Assemble extracts every field from doc. With a template, fields that
// declare a template ROI are read from it and the rest run the cascade one
// field at a time. Without one, the cascade runs stage by stage across all
// fields. reader overrides the locator's region reader when non-nil.
func (a *Assembler) Assemble(ctx context.Context, doc *model.Document, tmpl *model.Template, reader locate.RegionReader) map[string]model.ExtractionCandidate {
	loc := a.loc
	if reader != nil {
		loc = loc.WithReader(reader)
	}
	out := make(map[string]model.ExtractionCandidate, len(a.fields.Fields))
	if len(a.fields.Fields) == 0 {
		return out
	}
	used := locate.NewUsedSet()

	if tmpl != nil {
		a.assembleTemplate(ctx, loc, doc, tmpl, used, out)
	} else {
		a.assembleCascade(ctx, loc, doc, used, out)
	}

	zap.L().Debug("extract: document assembled",
		zap.String("document_id", doc.ID),
		zap.Int("fields", len(out)),
		zap.Ints("used_tokens", used.Sorted()),
	)
	return out
}

func (a *Assembler) assembleTemplate(ctx context.Context, loc *locate.Locator, doc *model.Document, tmpl *model.Template, used locate.UsedSet, out map[string]model.ExtractionCandidate) {
	for i := range a.fields.Fields {
		def := &a.fields.Fields[i]
		if err := ctx.Err(); err != nil {
			out[def.Name] = errCandidate(def.Name, err.Error(), nil)
			continue
		}

		var roi model.Rect
		if rel, ok := tmpl.ROI(def.Name); ok {
			roi = rel.Abs(doc.Width, doc.Height)
		}
		out[def.Name], _ = guard(def.Name, nil, func() (model.ExtractionCandidate, bool) {
			var r locate.Result
			if roi.Empty() {
				r = loc.Locate(ctx, def, doc, used)
			} else {
				r = loc.LocateTemplateROI(ctx, def, roi, doc, used)
			}
			if !r.Found {
				return model.FailedCandidate(def.Name, r.Reason, r.Attempts), true
			}
			return a.candidate(def, r, r.Attempts), true
		})
	}
}

// assembleCascade runs each stage for every still-missing field before
// moving to the next stage, so a weak strategy for one field never claims
// a token that a stronger strategy for a later field would use.
func (a *Assembler) assembleCascade(ctx context.Context, loc *locate.Locator, doc *model.Document, used locate.UsedSet, out map[string]model.ExtractionCandidate) {
	attempts := make(map[string][]model.ProvenanceAttempt, len(a.fields.Fields))
	last := make(map[string]locate.Result, len(a.fields.Fields))

	for _, stage := range locate.Stages() {
		for i := range a.fields.Fields {
			def := &a.fields.Fields[i]
			if _, done := out[def.Name]; done || !loc.Applies(stage, def) {
				continue
			}
			if err := ctx.Err(); err != nil {
				out[def.Name] = errCandidate(def.Name, err.Error(), attempts[def.Name])
				continue
			}

			var r locate.Result
			c, ok := guard(def.Name, attempts[def.Name], func() (model.ExtractionCandidate, bool) {
				r = loc.Stage(ctx, stage, def, doc, used)
				attempts[def.Name] = append(attempts[def.Name], r.Attempts...)
				if !r.Found {
					return model.ExtractionCandidate{}, false
				}
				return a.candidate(def, r, attempts[def.Name]), true
			})
			if ok {
				out[def.Name] = c
				continue
			}
			last[def.Name] = r
		}
	}

	for i := range a.fields.Fields {
		name := a.fields.Fields[i].Name
		if _, done := out[name]; done {
			continue
		}
		reason := locate.ReasonNoMatch
		if r, ok := last[name]; ok && r.Reason != "" {
			reason = r.Reason
		}
		out[name] = model.FailedCandidate(name, reason, attempts[name])
	}
}

// ReasonCorrectionInvalid marks a candidate whose corrected value fails the
// field rule. The value is kept so cross validation reports it.
const ReasonCorrectionInvalid = "correction_invalid"

// candidate runs the located value through the correction model. A
// correction replaces the value with the taught one, normalized by the
// field rule; a correction the rule rejects leaves the candidate
// unsuccessful.
func (a *Assembler) candidate(def *model.FieldDefinition, r locate.Result, attempts []model.ProvenanceAttempt) model.ExtractionCandidate {
	mode := validate.Strict
	if r.Method == model.MethodTemplateROI {
		mode = validate.Relaxed
	}

	value, conf := r.Value, r.Confidence
	var reason string
	corrected, corrConf := a.corr.Correct(def.Name, r.Raw, r.Confidence)
	applied := corrected != r.Raw || corrConf != r.Confidence
	if applied {
		value = strings.TrimSpace(corrected)
		if norm, ok := a.v.NormalizeMode(def.Name, corrected, mode); ok {
			value = norm
		} else {
			reason = ReasonCorrectionInvalid
			zap.L().Warn("extract: correction fails field rule",
				zap.String("field", def.Name),
				zap.String("raw", r.Raw),
				zap.String("value", value),
			)
		}
		conf = corrConf
		zap.L().Debug("extract: correction applied",
			zap.String("field", def.Name),
			zap.String("raw", r.Raw),
			zap.String("value", value),
			zap.Float64("confidence", conf),
		)
	}

	return model.NewCandidate(model.ExtractionCandidate{
		FieldName:         def.Name,
		Value:             value,
		RawValue:          r.Raw,
		Confidence:        conf,
		ROI:               r.ROI,
		Method:            r.Method,
		Provenance:        attempts,
		Reason:            reason,
		TokenIndexes:      r.TokenIndexes,
		CorrectionApplied: applied,
	})
}

func errCandidate(field, msg string, attempts []model.ProvenanceAttempt) model.ExtractionCandidate {
	return model.NewCandidate(model.ExtractionCandidate{
		FieldName:  field,
		Method:     model.MethodNone,
		Error:      msg,
		Provenance: attempts,
	})
}

// guard runs one field step, converting a panic into an error candidate
// so the rest of the document continues.
func guard(field string, attempts []model.ProvenanceAttempt, fn func() (model.ExtractionCandidate, bool)) (c model.ExtractionCandidate, ok bool) {
	defer func() {
		if p := recover(); p != nil {
			zap.L().Error("extract: field panicked",
				zap.String("field", field),
				zap.Any("panic", p),
				zap.ByteString("stack", debug.Stack()),
			)
			c = errCandidate(field, eris.Errorf("extract: field %s: %v", field, p).Error(), attempts)
			ok = true
		}
	}()
	return fn()
}
