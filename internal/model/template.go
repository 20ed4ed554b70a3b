package model

// Template is a declarative description of a known receipt layout.
type Template struct {
	Name        string             `json:"name" yaml:"name"`
	TextAnchors []string           `json:"text_anchors" yaml:"text_anchors"`
	Regions     []RelRect          `json:"structural_regions" yaml:"structural_regions"`
	FieldROIs   map[string]RelRect `json:"per_field_roi" yaml:"per_field_roi"`
}

// ROI returns the template region for a field, if declared.
func (t *Template) ROI(field string) (RelRect, bool) {
	r, ok := t.FieldROIs[field]
	return r, ok
}
