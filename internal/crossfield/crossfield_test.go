package crossfield

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/receipt-ocr/internal/catalog"
	"github.com/sells-group/receipt-ocr/internal/model"
	"github.com/sells-group/receipt-ocr/internal/validate"
)

func newChecker() *Checker {
	reg := model.NewFieldRegistry(catalog.DefaultFields())
	v := validate.New(reg, validate.WithClock(func() time.Time {
		return time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	}))
	return New(reg, v, 50)
}

func cand(field, value string, conf float64) model.ExtractionCandidate {
	return model.NewCandidate(model.ExtractionCandidate{
		FieldName:  field,
		Value:      value,
		Confidence: conf,
		Method:     model.MethodKeywordAnchored,
	})
}

func TestEvaluate_Scenarios(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		cands      map[string]model.ExtractionCandidate
		wantStatus model.Status
		wantConf   float64
		wantPassed bool
	}{
		{
			name: "no successful fields",
			cands: map[string]model.ExtractionCandidate{
				"monto": model.FailedCandidate("monto", "no_anchor_found", nil),
				"fecha": model.FailedCandidate("fecha", "no_match", nil),
			},
			wantStatus: model.StatusNoDataExtracted,
			wantConf:   0,
			wantPassed: true,
		},
		{
			name: "date fails cross validation",
			cands: map[string]model.ExtractionCandidate{
				"monto":     cand("monto", "1500.00", 90),
				"fecha":     cand("fecha", "31/02/2024", 90),
				"operacion": cand("operacion", "004512345678", 90),
			},
			wantStatus: model.StatusValidationFailed,
			wantConf:   90,
			wantPassed: false,
		},
		{
			name: "low mean confidence",
			cands: map[string]model.ExtractionCandidate{
				"monto":     cand("monto", "1500.00", 40),
				"fecha":     cand("fecha", "2024-06-15", 44),
				"operacion": cand("operacion", "004512345678", 42),
			},
			wantStatus: model.StatusLowConfidence,
			wantConf:   42,
			wantPassed: true,
		},
		{
			name: "success",
			cands: map[string]model.ExtractionCandidate{
				"monto":     cand("monto", "1500.00", 70),
				"fecha":     cand("fecha", "2024-06-15", 80),
				"operacion": cand("operacion", "004512345678", 90),
			},
			wantStatus: model.StatusSuccess,
			wantConf:   80,
			wantPassed: true,
		},
	}

	c := newChecker()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Evaluate(tt.cands)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.InDelta(t, tt.wantConf, got.OverallConfidence, 1e-9)
			assert.Equal(t, tt.wantPassed, got.Validation.CrossValidationPassed)
		})
	}
}

func TestEvaluate_MissingRequiredDoesNotFailCrossValidation(t *testing.T) {
	t.Parallel()

	got := newChecker().Evaluate(map[string]model.ExtractionCandidate{
		"monto":          cand("monto", "10.00", 90),
		"identificacion": model.FailedCandidate("identificacion", "no_match", nil),
	})
	assert.True(t, got.Validation.CrossValidationPassed)
	assert.False(t, got.Validation.PerField["identificacion"])
	assert.True(t, got.Validation.PerField["monto"])
	assert.Equal(t, model.StatusSuccess, got.Status)
}

func TestEvaluate_OptionalInvalidFieldIgnored(t *testing.T) {
	t.Parallel()

	got := newChecker().Evaluate(map[string]model.ExtractionCandidate{
		"monto":          cand("monto", "10.00", 90),
		"destino_numero": cand("destino_numero", "123", 90),
	})
	assert.False(t, got.Validation.PerField["destino_numero"])
	assert.True(t, got.Validation.CrossValidationPassed)
}

func TestEvaluate_TemplateValuesUseRelaxedBounds(t *testing.T) {
	t.Parallel()

	roi := model.NewCandidate(model.ExtractionCandidate{
		FieldName: "operacion", Value: "1234567", Confidence: 80, Method: model.MethodTemplateROI,
	})
	got := newChecker().Evaluate(map[string]model.ExtractionCandidate{"operacion": roi})
	assert.True(t, got.Validation.CrossValidationPassed)

	anchored := cand("operacion", "1234567", 80)
	got = newChecker().Evaluate(map[string]model.ExtractionCandidate{"operacion": anchored})
	assert.False(t, got.Validation.CrossValidationPassed)
	assert.Equal(t, model.StatusValidationFailed, got.Status)
}

func TestEvaluate_ConfigurableThreshold(t *testing.T) {
	t.Parallel()

	reg := model.NewFieldRegistry(catalog.DefaultFields())
	c := New(reg, validate.New(reg), 85)
	got := c.Evaluate(map[string]model.ExtractionCandidate{"monto": cand("monto", "10.00", 80)})
	assert.Equal(t, model.StatusLowConfidence, got.Status)
}
