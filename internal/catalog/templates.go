package catalog

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/receipt-ocr/internal/model"
)

// Problem is a template file that could not be loaded.
type Problem struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

// LoadTemplates reads every *.yaml / *.yml file in dir, in file name order.
// Malformed templates are logged and skipped. A missing directory yields an
// empty catalog.
func LoadTemplates(dir string) ([]model.Template, error) {
	templates, problems, err := CheckTemplates(dir)
	if err != nil {
		return nil, err
	}
	for _, p := range problems {
		zap.L().Warn("catalog: skipping malformed template",
			zap.String("file", p.File),
			zap.String("error", p.Error),
		)
	}

	zap.L().Debug("catalog: templates loaded",
		zap.String("dir", dir),
		zap.Int("count", len(templates)),
	)
	return templates, nil
}

// CheckTemplates loads the templates in dir like LoadTemplates but returns
// the malformed files instead of logging them.
func CheckTemplates(dir string) ([]model.Template, []Problem, error) {
	if dir == "" {
		return nil, nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			zap.L().Warn("catalog: templates directory not found", zap.String("dir", dir))
			return nil, nil, nil
		}
		return nil, nil, eris.Wrapf(err, "catalog: read templates dir %s", dir)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	templates := make([]model.Template, 0, len(names))
	var problems []Problem
	for _, name := range names {
		path := filepath.Join(dir, name)
		t, err := loadTemplate(path)
		if err != nil {
			problems = append(problems, Problem{File: path, Error: err.Error()})
			continue
		}
		templates = append(templates, *t)
	}
	return templates, problems, nil
}

// UnknownROIFields returns the per-field ROI names of t that the registry
// does not define, sorted.
func UnknownROIFields(t *model.Template, reg *model.FieldRegistry) []string {
	var unknown []string
	for field := range t.FieldROIs {
		if reg.ByName(field) == nil {
			unknown = append(unknown, field)
		}
	}
	sort.Strings(unknown)
	return unknown
}

func loadTemplate(path string) (*model.Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: read template")
	}

	var t model.Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, eris.Wrap(err, "catalog: parse template")
	}
	if t.Name == "" {
		t.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err := ValidateTemplate(&t); err != nil {
		return nil, err
	}
	return &t, nil
}

// ValidateTemplate checks that a template carries something to score and
// that every region lies inside the unit square.
func ValidateTemplate(t *model.Template) error {
	if len(t.TextAnchors) == 0 && len(t.Regions) == 0 {
		return eris.Errorf("catalog: template %q has no anchors or regions", t.Name)
	}
	for i, r := range t.Regions {
		if !r.Valid() {
			return eris.Errorf("catalog: template %q region %d out of range", t.Name, i)
		}
	}
	for field, r := range t.FieldROIs {
		if !r.Valid() {
			return eris.Errorf("catalog: template %q roi for %q out of range", t.Name, field)
		}
	}
	return nil
}
