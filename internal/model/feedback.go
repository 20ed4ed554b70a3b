package model

import (
	"strings"
	"time"
)

// RootCause classifies why an extracted value had to be corrected.
type RootCause string

const (
	CauseBadSegmentation   RootCause = "mala_segmentacion"
	CauseMisrecognizedChar RootCause = "caracter_mal_reconocido"
	CauseFieldNotDetected  RootCause = "campo_no_detectado"
	CauseTemplateError     RootCause = "error_de_plantilla"
	CauseWrongFormat       RootCause = "formato_erroneo"
	CauseMissingInfo       RootCause = "info_faltante"
	CauseImageNoise        RootCause = "ruido_imagen"
	CauseImageDistortion   RootCause = "distorsion_imagen"
	CauseNotAReceipt       RootCause = "clasificacion_erronea_no_recibo"
	CauseOther             RootCause = "otro"
)

var causeAliases = map[string]RootCause{
	"bad_segmentation":          CauseBadSegmentation,
	"segmentation":              CauseBadSegmentation,
	"misrecognized_character":   CauseMisrecognizedChar,
	"character_misrecognized":   CauseMisrecognizedChar,
	"field_not_detected":        CauseFieldNotDetected,
	"template_error":            CauseTemplateError,
	"wrong_format":              CauseWrongFormat,
	"format_error":              CauseWrongFormat,
	"missing_info":              CauseMissingInfo,
	"image_noise":               CauseImageNoise,
	"noise":                     CauseImageNoise,
	"image_distortion":          CauseImageDistortion,
	"distortion":                CauseImageDistortion,
	"not_a_receipt":             CauseNotAReceipt,
	"misclassified_not_receipt": CauseNotAReceipt,
	"other":                     CauseOther,
}

// causeDeltas are the confidence penalties folded into a correction entry.
var causeDeltas = map[RootCause]float64{
	CauseBadSegmentation:   -10,
	CauseMisrecognizedChar: -5,
	CauseFieldNotDetected:  -15,
	CauseTemplateError:     -8,
	CauseWrongFormat:       -3,
	CauseMissingInfo:       -12,
	CauseImageNoise:        -7,
	CauseImageDistortion:   -6,
	CauseNotAReceipt:       -20,
	CauseOther:             -2,
}

// NormalizeRootCause maps a cause name or English alias to its canonical
// form. Unknown causes are returned lower-cased and trimmed.
func NormalizeRootCause(s string) RootCause {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.ReplaceAll(key, " ", "_")
	if c, ok := causeAliases[key]; ok {
		return c
	}
	return RootCause(key)
}

// Delta returns the confidence delta for the cause and whether it is known.
func (c RootCause) Delta() (float64, bool) {
	d, ok := causeDeltas[c]
	return d, ok
}

// Known reports whether the cause is one of the canonical root causes.
func (c RootCause) Known() bool {
	_, ok := causeDeltas[c]
	return ok
}

// RootCauses returns the canonical causes in declaration order.
func RootCauses() []RootCause {
	return []RootCause{
		CauseBadSegmentation, CauseMisrecognizedChar, CauseFieldNotDetected,
		CauseTemplateError, CauseWrongFormat, CauseMissingInfo, CauseImageNoise,
		CauseImageDistortion, CauseNotAReceipt, CauseOther,
	}
}

// FeedbackEntry is one human correction of an extracted field.
type FeedbackEntry struct {
	ID             string    `json:"id"`
	ImageID        string    `json:"id_unico_imagen"`
	FieldName      string    `json:"campo_nombre"`
	RawOCROutput   string    `json:"raw_ocr_output"`
	CorrectedValue string    `json:"valor_corregido"`
	RootCause      RootCause `json:"causa_raiz"`
	Timestamp      time.Time `json:"timestamp_feedback"`
}

// FeedbackStats summarizes the pending feedback log.
type FeedbackStats struct {
	Total        int            `json:"total"`
	ByField      map[string]int `json:"by_field"`
	ByRootCause  map[string]int `json:"by_root_cause"`
	LastFeedback *time.Time     `json:"last_feedback,omitempty"`
}
