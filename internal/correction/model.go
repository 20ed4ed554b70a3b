// Package correction holds the learned map from raw OCR text to
// human-taught values, and the batch job that trains it from feedback.
package correction

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/receipt-ocr/internal/model"
)

// Correction is one human-taught value for a raw OCR string.
type Correction struct {
	Value  string         `json:"value"`
	Count  int            `json:"count"`
	Causes map[string]int `json:"causes,omitempty"`
}

// Entry collects every correction seen for one (field, raw text) pair.
// Corrections keep insertion order.
type Entry struct {
	Corrections          []Correction `json:"corrections"`
	ConfidenceAdjustment float64      `json:"confidence_adjustment"`
	LastUpdated          time.Time    `json:"last_updated"`
}

// best returns the correction with the highest count; the earliest
// inserted wins ties.
func (e *Entry) best() (Correction, bool) {
	var out Correction
	found := false
	for _, c := range e.Corrections {
		if !found || c.Count > out.Count {
			out = c
			found = true
		}
	}
	return out, found
}

func (e *Entry) valid() bool {
	if len(e.Corrections) == 0 {
		return false
	}
	for _, c := range e.Corrections {
		if c.Value == "" || c.Count < 1 {
			return false
		}
	}
	return true
}

// Model maps field name → raw OCR text → Entry. Extraction only reads it;
// the retrainer is the single writer. Safe for concurrent use.
type Model struct {
	mu     sync.RWMutex
	fields map[string]map[string]*Entry
}

// NewModel returns an empty model.
func NewModel() *Model {
	return &Model{fields: make(map[string]map[string]*Entry)}
}

// Load reads a model from path. A missing file yields an empty model.
// Entries that do not decode or hold no usable correction are logged and
// skipped.
func Load(path string) (*Model, error) {
	m := NewModel()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		zap.L().Info("correction: no model file, starting empty", zap.String("path", path))
		return m, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "correction: read model %s", path)
	}
	if strings.TrimSpace(string(data)) == "" {
		return m, nil
	}

	var raw map[string]map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrapf(err, "correction: parse model %s", path)
	}

	skipped := 0
	for field, byRaw := range raw {
		for text, msg := range byRaw {
			var e Entry
			if err := json.Unmarshal(msg, &e); err != nil || !e.valid() {
				zap.L().Warn("correction: skipping corrupt entry",
					zap.String("field", field),
					zap.String("raw", text),
					zap.Error(err),
				)
				skipped++
				continue
			}
			m.put(field, text, &e)
		}
	}

	zap.L().Debug("correction: model loaded",
		zap.String("path", path),
		zap.Int("entries", m.Len()),
		zap.Int("skipped", skipped),
	)
	return m, nil
}

func (m *Model) put(field, raw string, e *Entry) {
	byRaw, ok := m.fields[field]
	if !ok {
		byRaw = make(map[string]*Entry)
		m.fields[field] = byRaw
	}
	byRaw[raw] = e
}

// Correct returns the most frequent human correction for the raw text and
// the confidence shifted by the entry's adjustment. Unknown pairs return
// the inputs unchanged.
func (m *Model) Correct(field, raw string, confidence float64) (string, float64) {
	value, adj, ok := m.Lookup(field, raw)
	if !ok {
		return raw, confidence
	}
	return value, model.ClampConfidence(confidence + adj)
}

// Lookup returns the preferred corrected value and confidence adjustment
// for the pair, if the model has one.
func (m *Model) Lookup(field, raw string) (string, float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.fields[field][strings.TrimSpace(raw)]
	if !ok {
		return "", 0, false
	}
	c, ok := e.best()
	if !ok {
		return "", 0, false
	}
	return c.Value, e.ConfidenceAdjustment, true
}

// Entry returns a copy of the entry for the pair.
func (m *Model) Entry(field, raw string) (Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.fields[field][strings.TrimSpace(raw)]
	if !ok {
		return Entry{}, false
	}
	cp := *e
	cp.Corrections = make([]Correction, len(e.Corrections))
	for i, c := range e.Corrections {
		causes := make(map[string]int, len(c.Causes))
		for k, v := range c.Causes {
			causes[k] = v
		}
		cp.Corrections[i] = Correction{Value: c.Value, Count: c.Count, Causes: causes}
	}
	return cp, true
}

// Apply folds one feedback entry into the model, keyed by the trimmed raw
// text: the matching correction count and cause counter go up by one, and
// a known root cause moves the confidence adjustment halfway toward its
// delta. It reports false for
// entries missing a field, raw text or corrected value.
func (m *Model) Apply(fb model.FeedbackEntry) bool {
	field := strings.TrimSpace(fb.FieldName)
	raw := strings.TrimSpace(fb.RawOCROutput)
	corrected := strings.TrimSpace(fb.CorrectedValue)
	if field == "" || raw == "" || corrected == "" {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.fields[field][raw]
	if !ok {
		e = &Entry{}
		m.put(field, raw, e)
	}

	cause := string(fb.RootCause)
	idx := -1
	for i := range e.Corrections {
		if e.Corrections[i].Value == corrected {
			idx = i
			break
		}
	}
	if idx < 0 {
		e.Corrections = append(e.Corrections, Correction{Value: corrected, Causes: map[string]int{}})
		idx = len(e.Corrections) - 1
	}
	c := &e.Corrections[idx]
	c.Count++
	if cause != "" {
		if c.Causes == nil {
			c.Causes = map[string]int{}
		}
		c.Causes[cause]++
	}

	if delta, known := fb.RootCause.Delta(); known {
		e.ConfidenceAdjustment = (e.ConfidenceAdjustment + delta) / 2
	}
	e.LastUpdated = fb.Timestamp
	if e.LastUpdated.IsZero() {
		e.LastUpdated = time.Now().UTC()
	}
	return true
}

// Len returns the number of (field, raw text) entries.
func (m *Model) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, byRaw := range m.fields {
		n += len(byRaw)
	}
	return n
}

// Fields returns the field names with at least one entry, sorted.
func (m *Model) Fields() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.fields))
	for f, byRaw := range m.fields {
		if len(byRaw) > 0 {
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out
}

// Save writes the model as one JSON document. The file is replaced
// atomically via a temp file in the same directory.
func (m *Model) Save(path string) error {
	m.mu.RLock()
	data, err := json.MarshalIndent(m.fields, "", "  ")
	m.mu.RUnlock()
	if err != nil {
		return eris.Wrap(err, "correction: marshal model")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "correction: create dir %s", dir)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return eris.Wrap(err, "correction: create temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrap(err, "correction: write temp file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrap(err, "correction: sync temp file")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "correction: close temp file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		return eris.Wrapf(err, "correction: replace %s", path)
	}
	return nil
}
