package sheets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/receipt-ocr/internal/model"
)

// FeedbackColumns is the column layout of a manual feedback sheet.
var FeedbackColumns = []string{
	"id_unico_imagen",
	"campo_nombre",
	"raw_ocr_output",
	"valor_corregido",
	"causa_raiz",
	"timestamp_feedback",
}

var requiredFeedbackColumns = []string{"campo_nombre", "raw_ocr_output", "valor_corregido"}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ReadFeedback loads feedback entries from a .csv or .xlsx sheet whose
// header names FeedbackColumns in any order. Blank rows are skipped; a
// malformed timestamp is an error naming the row.
func ReadFeedback(ctx context.Context, path string) ([]model.FeedbackEntry, error) {
	var rows [][]string
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		rows, err = ReadXLSX(path, XLSXOptions{})
	case ".csv", "":
		var f *os.File
		f, err = os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "sheets: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		rows, err = ReadCSV(ctx, f, CSVOptions{TrimSpace: true, LazyQuotes: true})
	default:
		return nil, eris.Errorf("sheets: unsupported feedback file %s", path)
	}
	if err != nil {
		return nil, err
	}
	return ParseFeedback(rows)
}

// ParseFeedback converts a header row plus data rows into entries.
func ParseFeedback(rows [][]string) ([]model.FeedbackEntry, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	idx := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		idx[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	var missing []string
	for _, c := range requiredFeedbackColumns {
		if _, ok := idx[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, eris.Errorf("sheets: feedback header missing columns: %s", strings.Join(missing, ", "))
	}

	get := func(row []string, col string) string {
		i, ok := idx[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var entries []model.FeedbackEntry
	var errs []string
	for n, row := range rows[1:] {
		line := n + 2
		if blank(row) {
			continue
		}
		e := model.FeedbackEntry{
			ImageID:        get(row, "id_unico_imagen"),
			FieldName:      get(row, "campo_nombre"),
			RawOCROutput:   get(row, "raw_ocr_output"),
			CorrectedValue: get(row, "valor_corregido"),
			RootCause:      model.NormalizeRootCause(get(row, "causa_raiz")),
		}
		if ts := get(row, "timestamp_feedback"); ts != "" {
			t, err := parseTimestamp(ts)
			if err != nil {
				errs = append(errs, fmt.Sprintf("row %d: invalid timestamp %q", line, ts))
				continue
			}
			e.Timestamp = t
		}
		entries = append(entries, e)
	}
	if len(errs) > 0 {
		return nil, eris.Errorf("sheets: invalid feedback: %s", strings.Join(errs, "; "))
	}

	zap.L().Debug("sheets: feedback parsed", zap.Int("entries", len(entries)))
	return entries, nil
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, eris.Errorf("sheets: unrecognized timestamp %q", s)
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
