package model

import "time"

// Status is the document-level verdict.
type Status string

const (
	StatusSuccess          Status = "success"
	StatusLowConfidence    Status = "low_confidence"
	StatusValidationFailed Status = "validation_failed"
	StatusNoDataExtracted  Status = "no_data_extracted"
	StatusFailed           Status = "failed"
)

// ExitCode maps a status to the process exit code: 0 for success, 2 for
// warnings, 1 for everything else.
func (s Status) ExitCode() int {
	switch s {
	case StatusSuccess:
		return 0
	case StatusLowConfidence, StatusValidationFailed:
		return 2
	}
	return 1
}

// ExtractionMode describes how field regions were chosen for a document.
type ExtractionMode string

const (
	ModeTemplate ExtractionMode = "template"
	ModeDynamic  ExtractionMode = "dynamic"
	ModeNone     ExtractionMode = "none"
)

// ValidationResults holds per-field and cross-field validation outcomes.
type ValidationResults struct {
	PerField              map[string]bool `json:"per_field"`
	CrossValidationPassed bool            `json:"cross_validation_passed"`
}

// DocumentResult is the outward-facing record for one processed receipt.
type DocumentResult struct {
	DocumentID        string                         `json:"document_id"`
	ImagePath         string                         `json:"image_path,omitempty"`
	Success           bool                           `json:"success"`
	Method            ExtractionMode                 `json:"method"`
	TemplateName      string                         `json:"template_name,omitempty"`
	TemplateScore     float64                        `json:"template_score,omitempty"`
	Fields            map[string]ExtractionCandidate `json:"campos_extraidos"`
	Validation        ValidationResults              `json:"validation"`
	OverallConfidence float64                        `json:"overall_confidence"`
	Status            Status                         `json:"status"`
	Error             string                         `json:"error,omitempty"`
	StartedAt         time.Time                      `json:"started_at"`
	Duration          time.Duration                  `json:"duration_ns"`
}

// Values returns the successful field values keyed by field name.
func (r *DocumentResult) Values() map[string]string {
	out := make(map[string]string, len(r.Fields))
	for name, c := range r.Fields {
		if c.Successful {
			out[name] = c.Value
		}
	}
	return out
}

// FailedResult builds a well-formed result for a document that could not be
// processed at all.
func FailedResult(docID, imagePath string, startedAt time.Time, err error) *DocumentResult {
	r := &DocumentResult{
		DocumentID: docID,
		ImagePath:  imagePath,
		Method:     ModeNone,
		Fields:     map[string]ExtractionCandidate{},
		Validation: ValidationResults{PerField: map[string]bool{}},
		Status:     StatusFailed,
		StartedAt:  startedAt,
		Duration:   time.Since(startedAt),
	}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}
