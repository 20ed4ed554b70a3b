package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/receipt-ocr/internal/catalog"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect the field and template catalogs",
}

// catalogReport is the outcome of catalog check.
type catalogReport struct {
	Fields         []string            `json:"fields"`
	RequiredFields []string            `json:"required_fields"`
	Templates      []string            `json:"templates"`
	Problems       []catalog.Problem   `json:"problems,omitempty"`
	UnknownROIs    map[string][]string `json:"unknown_roi_fields,omitempty"`
}

func (r catalogReport) ok() bool {
	return len(r.Problems) == 0 && len(r.UnknownROIs) == 0
}

var catalogCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Load both catalogs and report malformed entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("catalog"); err != nil {
			return err
		}
		rep, err := checkCatalog(cfg.Catalog.FieldsFile, cfg.Catalog.TemplatesDir)
		if err != nil {
			return err
		}
		if err := writeResult(cmd.OutOrStdout(), rep); err != nil {
			return err
		}
		if !rep.ok() {
			return eris.Errorf("catalog: %d malformed templates, %d templates with unknown fields",
				len(rep.Problems), len(rep.UnknownROIs))
		}
		return nil
	},
}

func checkCatalog(fieldsFile, templatesDir string) (catalogReport, error) {
	var rep catalogReport

	fields, err := catalog.LoadFields(fieldsFile)
	if err != nil {
		return rep, err
	}
	templates, problems, err := catalog.CheckTemplates(templatesDir)
	if err != nil {
		return rep, err
	}

	rep.Fields = fields.Names()
	for _, def := range fields.Required() {
		rep.RequiredFields = append(rep.RequiredFields, def.Name)
	}
	rep.Problems = problems
	for i := range templates {
		t := &templates[i]
		rep.Templates = append(rep.Templates, t.Name)
		if unknown := catalog.UnknownROIFields(t, fields); len(unknown) > 0 {
			if rep.UnknownROIs == nil {
				rep.UnknownROIs = map[string][]string{}
			}
			rep.UnknownROIs[t.Name] = unknown
		}
	}

	zap.L().With(zap.String("command", "catalog check")).Info("catalog checked",
		zap.Int("fields", len(rep.Fields)),
		zap.Int("templates", len(rep.Templates)),
		zap.Int("problems", len(rep.Problems)),
	)
	return rep, nil
}

func init() {
	catalogCmd.AddCommand(catalogCheckCmd)
	rootCmd.AddCommand(catalogCmd)
}
