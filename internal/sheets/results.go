package sheets

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/receipt-ocr/internal/model"
)

const amountFormat = "#,##0.00"

var resultColumns = []string{
	"document_id", "image_path", "status", "overall_confidence", "method", "template_name",
}

// ResultHeader returns the export header: fixed result columns followed by
// a value and a confidence column per registered field.
func ResultHeader(reg *model.FieldRegistry) []string {
	header := append([]string(nil), resultColumns...)
	for _, name := range reg.Names() {
		header = append(header, name, name+"_confidence")
	}
	return header
}

// ResultRow flattens one result into cells matching ResultHeader. Amount
// fields are emitted as numbers; a value that does not parse stays text.
func ResultRow(reg *model.FieldRegistry, r model.DocumentResult) []Cell {
	row := []Cell{
		TextCell(r.DocumentID),
		TextCell(r.ImagePath),
		TextCell(string(r.Status)),
		NumberCell(r.OverallConfidence, "0.00"),
		TextCell(string(r.Method)),
		TextCell(r.TemplateName),
	}
	for _, name := range reg.Names() {
		c, ok := r.Fields[name]
		if !ok || !c.Successful {
			row = append(row, TextCell(""), TextCell(""))
			continue
		}
		row = append(row, valueCell(reg.ByName(name), c.Value), NumberCell(c.Confidence, "0.00"))
	}
	return row
}

func valueCell(def *model.FieldDefinition, value string) Cell {
	if def == nil || def.Rule.Kind != model.RuleAmount {
		return TextCell(value)
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return TextCell(value)
	}
	return NumberCell(d.Round(2).InexactFloat64(), amountFormat)
}

// ExportResults writes results to path as .xlsx or .csv, chosen by extension.
func ExportResults(path string, reg *model.FieldRegistry, results []model.DocumentResult) error {
	header := ResultHeader(reg)
	rows := make([][]Cell, 0, len(results))
	for _, r := range results {
		rows = append(rows, ResultRow(reg, r))
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return WriteXLSX(path, "resultados", header, rows)
	case ".csv":
		f, err := os.Create(path)
		if err != nil {
			return eris.Wrapf(err, "sheets: create %s", path)
		}
		if err := WriteCSV(f, header, cellsToStrings(rows)); err != nil {
			f.Close() //nolint:errcheck
			return err
		}
		return eris.Wrapf(f.Close(), "sheets: close %s", path)
	}
	return eris.Errorf("sheets: unsupported export format %s", path)
}

func cellsToStrings(rows [][]Cell) [][]string {
	out := make([][]string, len(rows))
	for i, row := range rows {
		out[i] = make([]string, len(row))
		for j, c := range row {
			if c.Numeric {
				out[i][j] = strconv.FormatFloat(c.Number, 'f', 2, 64)
				continue
			}
			out[i][j] = c.Text
		}
	}
	return out
}
