package locate

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/receipt-ocr/internal/model"
	"github.com/sells-group/receipt-ocr/internal/validate"
)

// LocateTemplateROI extracts a field from a template region: unused tokens
// inside the region first, then targeted OCR of the region, then center
// expansion around the region center. Region values are validated in
// relaxed mode.
func (l *Locator) LocateTemplateROI(ctx context.Context, def *model.FieldDefinition, roi model.Rect, doc *model.Document, used UsedSet) Result {
	var attempts []model.ProvenanceAttempt
	record := func(r Result) {
		attempts = append(attempts, model.ProvenanceAttempt{
			Method: r.Method, Value: r.Value, Confidence: r.Confidence, Reason: r.Reason,
		})
	}

	cands := candidatesIn(doc, roi, used, l.cfg.ValueMinConfidence, -1)
	r, ok := l.bestSingle(def, cands, validate.Relaxed)
	if !ok {
		r, ok = l.combinations(def, cands, validate.Relaxed, false)
	}
	if ok {
		r.Method = model.MethodTemplateROI
		used.Add(r.TokenIndexes...)
		record(r)
		r.Attempts = attempts
		return r
	}
	record(miss(model.MethodTemplateROI, ReasonNoMatch))

	if l.reader != nil {
		reading, err := l.reader.ReadRegion(ctx, roi, def.Rule.Kind)
		if err != nil {
			zap.L().Debug("locate: template roi read failed",
				zap.String("field", def.Name),
				zap.Error(err),
			)
		} else if raw, val, ok := l.pickValue(def, reading.Text, validate.Relaxed); ok {
			r := Result{
				Found:      true,
				Value:      val,
				Raw:        raw,
				Confidence: model.ClampConfidence(reading.Confidence),
				ROI:        roi,
				Method:     model.MethodTemplateROI,
			}
			record(r)
			r.Attempts = attempts
			return r
		}
		record(miss(model.MethodTemplateROI, ReasonNoMatch))
	}

	cx, cy := roi.Center()
	r = l.expand(ctx, def, doc, [][2]int{{cx, cy}})
	record(r)
	r.Attempts = attempts
	return r
}
