package model

// Method names the strategy that produced a field value.
type Method string

const (
	MethodKeywordAnchored   Method = "keyword_anchored"
	MethodAnchoredMultiword Method = "anchored_multiword"
	MethodGeneralScan       Method = "general_scan"
	MethodRelativeFallback  Method = "relative_fallback"
	MethodCenterExpansion   Method = "center_expansion"
	MethodTemplateROI       Method = "template_roi"
	MethodNone              Method = "none"
)

// ProvenanceAttempt records a single location attempt for a field.
type ProvenanceAttempt struct {
	Method     Method  `json:"method"`
	Value      string  `json:"value,omitempty"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
}

// ExtractionCandidate is the outcome of extracting one field. Candidates
// are built once with NewCandidate and never mutated.
type ExtractionCandidate struct {
	FieldName         string              `json:"field_name"`
	Value             string              `json:"value"`
	RawValue          string              `json:"raw_value,omitempty"`
	Confidence        float64             `json:"confidence"`
	ROI               Rect                `json:"roi"`
	Method            Method              `json:"method"`
	Provenance        []ProvenanceAttempt `json:"provenance,omitempty"`
	Successful        bool                `json:"successful"`
	Reason            string              `json:"reason,omitempty"`
	Error             string              `json:"error,omitempty"`
	TokenIndexes      []int               `json:"token_indexes,omitempty"`
	CorrectionApplied bool                `json:"correction_applied,omitempty"`
}

// NewCandidate clamps confidence to [0,100] and derives Successful from the
// value: a candidate without a value is never successful and has zero
// confidence. A candidate with a value and a Reason keeps the value for
// inspection but is not successful; an Error discards the value.
func NewCandidate(c ExtractionCandidate) ExtractionCandidate {
	c.Confidence = ClampConfidence(c.Confidence)
	if c.Value == "" {
		c.Successful = false
		c.Confidence = 0
		if c.Method == "" {
			c.Method = MethodNone
		}
		return c
	}
	if c.Error != "" {
		c.Successful = false
		c.Value = ""
		c.Confidence = 0
		return c
	}
	c.Successful = c.Reason == ""
	return c
}

// FailedCandidate builds an unsuccessful candidate carrying a reason.
func FailedCandidate(field, reason string, attempts []ProvenanceAttempt) ExtractionCandidate {
	return NewCandidate(ExtractionCandidate{
		FieldName:  field,
		Method:     MethodNone,
		Reason:     reason,
		Provenance: attempts,
	})
}

// ClampConfidence restricts a confidence score to [0,100].
func ClampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 100:
		return 100
	}
	return c
}
