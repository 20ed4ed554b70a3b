// Package catalog loads the declarative field and template catalogs.
package catalog

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/receipt-ocr/internal/model"
)

// fieldFile is the on-disk layout of a fields catalog.
type fieldFile struct {
	Fields []fieldEntry `yaml:"fields"`
}

type fieldEntry struct {
	Name        string         `yaml:"name"`
	Keywords    []string       `yaml:"keywords"`
	Validation  ruleEntry      `yaml:"validation"`
	Strategy    string         `yaml:"search_strategy"`
	MaxDistance model.Distance `yaml:"max_distance"`
	Required    bool           `yaml:"required"`
	Fallback    *model.RelRect `yaml:"fallback,omitempty"`
	MinWords    int            `yaml:"min_words"`
}

type ruleEntry struct {
	Kind      string `yaml:"kind"`
	Pattern   string `yaml:"pattern"`
	MinLength int    `yaml:"min_length"`
	MaxLength int    `yaml:"max_length"`
}

// LoadFields reads a field catalog. An empty path yields the built-in
// defaults. Unknown strategies or rule kinds are errors.
func LoadFields(path string) (*model.FieldRegistry, error) {
	if path == "" {
		return model.NewFieldRegistry(DefaultFields()), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: read fields %s", path)
	}

	var ff fieldFile
	if err := yaml.Unmarshal(data, &ff); err != nil {
		return nil, eris.Wrap(err, "catalog: parse fields")
	}

	defs, err := convertFields(ff.Fields)
	if err != nil {
		return nil, err
	}
	return model.NewFieldRegistry(defs), nil
}

func convertFields(entries []fieldEntry) ([]model.FieldDefinition, error) {
	if len(entries) == 0 {
		return nil, eris.New("catalog: fields file declares no fields")
	}

	seen := make(map[string]bool, len(entries))
	defs := make([]model.FieldDefinition, 0, len(entries))
	for i, e := range entries {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			return nil, eris.Errorf("catalog: field %d has no name", i)
		}
		if seen[name] {
			return nil, eris.Errorf("catalog: duplicate field %q", name)
		}
		seen[name] = true

		strategy, err := model.ParseSearchStrategy(e.Strategy)
		if err != nil {
			return nil, eris.Wrapf(err, "catalog: field %q", name)
		}
		kind, err := model.ParseRuleKind(e.Validation.Kind)
		if err != nil {
			return nil, eris.Wrapf(err, "catalog: field %q", name)
		}
		if e.Fallback != nil && !e.Fallback.Valid() {
			return nil, eris.Errorf("catalog: field %q has an invalid fallback region", name)
		}
		if strategy == model.StrategyRelativeFallback && e.Fallback == nil {
			return nil, eris.Errorf("catalog: field %q uses relative_fallback without a fallback region", name)
		}

		defs = append(defs, model.FieldDefinition{
			Name:     name,
			Keywords: e.Keywords,
			Rule: model.ValidationRule{
				Kind:      kind,
				Pattern:   e.Validation.Pattern,
				MinLength: e.Validation.MinLength,
				MaxLength: e.Validation.MaxLength,
			},
			Strategy:    strategy,
			MaxDistance: e.MaxDistance,
			Required:    e.Required,
			Fallback:    e.Fallback,
			MinWords:    e.MinWords,
		})
	}
	return defs, nil
}
