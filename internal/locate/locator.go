// Package locate finds where in a token stream each field's value lies,
// trying a fixed cascade of strategies.
package locate

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/sells-group/receipt-ocr/internal/config"
	"github.com/sells-group/receipt-ocr/internal/model"
	"github.com/sells-group/receipt-ocr/internal/validate"
)

// Failure reasons recorded on unlocated fields.
const (
	ReasonNoAnchor               = "no_anchor_found"
	ReasonNoValueNearAnchor      = "no_value_near_anchor"
	ReasonNoMatch                = "no_match"
	ReasonConfidenceInsufficient = "confidence_insufficient"
	ReasonNoRegionReader         = "no_region_reader"
	ReasonNoFields               = "no_fields_to_extract"
	ReasonNotApplicable          = "not_applicable"
)

// maxExpansionSeeds bounds targeted OCR calls in center expansion.
const maxExpansionSeeds = 3

// Reading is the result of OCR over one image region.
type Reading struct {
	Text       string
	Confidence float64
}

// RegionReader performs targeted OCR over a region of the document image.
// The rule kind selects a recognition profile.
type RegionReader interface {
	ReadRegion(ctx context.Context, roi model.Rect, kind model.RuleKind) (Reading, error)
}

// Stage is one step of the cascade, in precedence order.
type Stage int

const (
	StageAnchored Stage = iota + 1
	StageScan
	StageFallback
	StageExpansion
)

// Stages returns every stage in precedence order.
func Stages() []Stage {
	return []Stage{StageAnchored, StageScan, StageFallback, StageExpansion}
}

func (s Stage) String() string {
	switch s {
	case StageAnchored:
		return "anchored"
	case StageScan:
		return "general_scan"
	case StageFallback:
		return "relative_fallback"
	case StageExpansion:
		return "center_expansion"
	}
	return "unknown"
}

// Result is the outcome of locating one field. When Found is false, Reason
// explains why.
type Result struct {
	Found        bool
	Value        string // normalized
	Raw          string // text as recognized
	Confidence   float64
	ROI          model.Rect
	Method       model.Method
	TokenIndexes []int
	Anchor       string
	Reason       string
	Attempts     []model.ProvenanceAttempt
}

func miss(method model.Method, reason string) Result {
	return Result{Method: method, Reason: reason}
}

// Locator runs the strategy cascade. It is stateless across documents; all
// per-document state lives in the UsedSet passed to each call.
type Locator struct {
	cfg    config.ExtractionConfig
	v      *validate.Validator
	reader RegionReader
}

// New creates a Locator. reader may be nil, which disables targeted OCR.
func New(cfg config.ExtractionConfig, v *validate.Validator, reader RegionReader) *Locator {
	return &Locator{cfg: cfg, v: v, reader: reader}
}

// WithReader returns a copy of the locator bound to a document's reader.
func (l *Locator) WithReader(reader RegionReader) *Locator {
	cp := *l
	cp.reader = reader
	return &cp
}

// Applies reports whether a stage runs for the definition.
func (l *Locator) Applies(stage Stage, def *model.FieldDefinition) bool {
	switch stage {
	case StageAnchored:
		return def.Strategy.Anchored() && len(def.Keywords) > 0
	case StageScan:
		return def.Strategy != model.StrategyRelativeFallback &&
			(len(def.Keywords) == 0 || def.Strategy == model.StrategyGeneralScan)
	case StageFallback:
		return def.Fallback != nil
	case StageExpansion:
		return true
	}
	return false
}

// Locate runs the cascade for one field, stopping at the first success.
func (l *Locator) Locate(ctx context.Context, def *model.FieldDefinition, doc *model.Document, used UsedSet) Result {
	var attempts []model.ProvenanceAttempt
	last := miss(model.MethodNone, ReasonNoMatch)
	for _, stage := range Stages() {
		if !l.Applies(stage, def) {
			continue
		}
		r := l.Stage(ctx, stage, def, doc, used)
		attempts = append(attempts, r.Attempts...)
		if r.Found {
			r.Attempts = attempts
			return r
		}
		last = r
	}
	last.Attempts = attempts
	return last
}

// Stage runs a single stage. Successful stages claim their tokens in used.
func (l *Locator) Stage(ctx context.Context, stage Stage, def *model.FieldDefinition, doc *model.Document, used UsedSet) Result {
	var r Result
	switch stage {
	case StageAnchored:
		r = l.anchored(def, doc, used)
	case StageScan:
		r = l.scan(def, doc, used)
	case StageFallback:
		r = l.fallback(ctx, def, doc, used)
	case StageExpansion:
		r = l.expand(ctx, def, doc, l.seeds(def, doc))
	default:
		r = miss(model.MethodNone, ReasonNotApplicable)
	}
	if r.Found {
		used.Add(r.TokenIndexes...)
	}
	r.Attempts = []model.ProvenanceAttempt{{
		Method:     r.Method,
		Value:      r.Value,
		Confidence: r.Confidence,
		Reason:     r.Reason,
	}}
	return r
}

// indexed pairs a token with its position in the document.
type indexed struct {
	idx int
	tok model.Token
}

// keywordMatch reports whether a token contains a keyword, ignoring case
// and accents. Keywords of two runes or fewer must start the token and be
// followed by a non-letter, so "CI" does not fire on "Comercio".
func keywordMatch(token, keyword string) bool {
	t := validate.Fold(token)
	k := validate.Fold(strings.TrimSpace(keyword))
	if k == "" {
		return false
	}
	if len([]rune(k)) > 2 {
		return strings.Contains(t, k)
	}
	if !strings.HasPrefix(t, k) {
		return false
	}
	rest := []rune(t[len(k):])
	return len(rest) == 0 || !unicode.IsLetter(rest[0])
}

func hasKeyword(tok model.Token, keywords []string) bool {
	for _, k := range keywords {
		if keywordMatch(tok.Text, k) {
			return true
		}
	}
	return false
}

// bestSingle returns the highest-confidence candidate whose text matches.
func (l *Locator) bestSingle(def *model.FieldDefinition, cands []indexed, mode validate.Mode) (Result, bool) {
	var best Result
	for _, c := range cands {
		val, ok := l.v.Matches(def, c.tok.Text, mode)
		if !ok || c.tok.Confidence <= best.Confidence {
			continue
		}
		best = Result{
			Found:        true,
			Value:        val,
			Raw:          strings.TrimSpace(c.tok.Text),
			Confidence:   c.tok.Confidence,
			ROI:          c.tok.Rect(),
			TokenIndexes: []int{c.idx},
		}
	}
	return best, best.Found
}

// combinations tries runs of adjacent tokens within one reading line whose
// joined text matches. With firstOnly the first match wins, otherwise the
// best average confidence.
func (l *Locator) combinations(def *model.FieldDefinition, cands []indexed, mode validate.Mode, firstOnly bool) (Result, bool) {
	minWords := max(def.MinWords, 2)
	maxWords := max(l.cfg.MaxMultiword, minWords)

	var best Result
	for _, line := range readingLines(cands, l.cfg.LineTolerancePx) {
		for start := range line {
			for n := minWords; n <= maxWords && start+n <= len(line); n++ {
				run := line[start : start+n]
				words := make([]string, n)
				idx := make([]int, n)
				var sum float64
				roi := model.Rect{}
				for i, c := range run {
					words[i] = strings.TrimSpace(c.tok.Text)
					idx[i] = c.idx
					sum += c.tok.Confidence
					roi = roi.Union(c.tok.Rect())
				}
				joined := strings.Join(words, " ")
				val, ok := l.v.Matches(def, joined, mode)
				if !ok {
					continue
				}
				avg := sum / float64(n)
				if avg <= best.Confidence {
					continue
				}
				best = Result{
					Found:        true,
					Value:        val,
					Raw:          joined,
					Confidence:   avg,
					ROI:          roi,
					TokenIndexes: idx,
				}
				if firstOnly {
					return best, true
				}
			}
		}
	}
	return best, best.Found
}

// readingLines groups tokens into lines, top to bottom, each ordered left to
// right. A token joins the current line when its vertical center is within
// tolerance of the line's first token.
func readingLines(cands []indexed, tolerance int) [][]indexed {
	sorted := make([]indexed, len(cands))
	copy(sorted, cands)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].tok, sorted[j].tok
		if a.Top != b.Top {
			return a.Top < b.Top
		}
		return a.Left < b.Left
	})

	var lines [][]indexed
	lineY := 0
	for _, c := range sorted {
		_, y := c.tok.Center()
		n := len(lines)
		if n > 0 && abs(y-lineY) <= tolerance {
			lines[n-1] = append(lines[n-1], c)
			continue
		}
		lines = append(lines, []indexed{c})
		lineY = y
	}
	for _, line := range lines {
		sort.SliceStable(line, func(i, j int) bool { return line[i].tok.Left < line[j].tok.Left })
	}
	return lines
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// candidatesIn returns unused tokens above minConf that intersect roi.
func candidatesIn(doc *model.Document, roi model.Rect, used UsedSet, minConf float64, exclude int) []indexed {
	var out []indexed
	for i, tok := range doc.Tokens {
		if i == exclude || used.Has(i) || tok.Confidence <= minConf {
			continue
		}
		if tok.Rect().Intersects(roi) {
			out = append(out, indexed{idx: i, tok: tok})
		}
	}
	return out
}
