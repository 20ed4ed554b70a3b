package locate

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/receipt-ocr/internal/model"
	"github.com/sells-group/receipt-ocr/internal/validate"
)

// anchored searches to the right of and below keyword anchors. Anchors are
// tried from highest confidence down; the first that yields a value wins.
func (l *Locator) anchored(def *model.FieldDefinition, doc *model.Document, used UsedSet) Result {
	method := model.MethodKeywordAnchored
	if def.Strategy == model.StrategyAnchoredMultiword {
		method = model.MethodAnchoredMultiword
	}

	var anchors []indexed
	for i, tok := range doc.Tokens {
		if used.Has(i) || tok.Confidence <= l.cfg.AnchorMinConfidence {
			continue
		}
		if hasKeyword(tok, def.Keywords) {
			anchors = append(anchors, indexed{idx: i, tok: tok})
		}
	}
	if len(anchors) == 0 {
		return miss(method, ReasonNoAnchor)
	}
	sort.SliceStable(anchors, func(i, j int) bool {
		return anchors[i].tok.Confidence > anchors[j].tok.Confidence
	})

	for _, a := range anchors {
		zone := model.Rect{
			Left:   a.tok.Left + a.tok.Width,
			Top:    a.tok.Top,
			Width:  def.MaxDistance.X,
			Height: a.tok.Height + def.MaxDistance.Y,
		}.Clamp(doc.Width, doc.Height)

		cands := candidatesIn(doc, zone, used, l.cfg.ValueMinConfidence, a.idx)
		r, ok := l.bestSingle(def, cands, validate.Strict)
		if !ok && def.Strategy == model.StrategyAnchoredMultiword {
			r, ok = l.combinations(def, cands, validate.Strict, false)
		}
		if !ok {
			continue
		}
		r.Method = method
		r.Anchor = strings.TrimSpace(a.tok.Text)
		r.TokenIndexes = append([]int{a.idx}, r.TokenIndexes...)
		return r
	}
	return miss(method, ReasonNoValueNearAnchor)
}

// scan tests every unused token in document order; the first match above
// the scan threshold wins. Fields needing several words also try same-line
// runs.
func (l *Locator) scan(def *model.FieldDefinition, doc *model.Document, used UsedSet) Result {
	var cands []indexed
	for i, tok := range doc.Tokens {
		if used.Has(i) || tok.Confidence <= l.cfg.ScanMinConfidence {
			continue
		}
		cands = append(cands, indexed{idx: i, tok: tok})
		val, ok := l.v.Matches(def, tok.Text, validate.Strict)
		if !ok {
			continue
		}
		return Result{
			Found:        true,
			Value:        val,
			Raw:          strings.TrimSpace(tok.Text),
			Confidence:   tok.Confidence,
			ROI:          tok.Rect(),
			Method:       model.MethodGeneralScan,
			TokenIndexes: []int{i},
		}
	}
	if def.MinWords > 1 {
		if r, ok := l.combinations(def, cands, validate.Strict, true); ok {
			r.Method = model.MethodGeneralScan
			return r
		}
	}
	return miss(model.MethodGeneralScan, ReasonNoMatch)
}

// fallback looks inside the definition's relative region. Confidence is
// fixed low whatever the tokens report.
func (l *Locator) fallback(ctx context.Context, def *model.FieldDefinition, doc *model.Document, used UsedSet) Result {
	method := model.MethodRelativeFallback
	if def.Fallback == nil || doc.Width <= 0 || doc.Height <= 0 {
		return miss(method, ReasonNotApplicable)
	}
	zone := def.Fallback.Abs(doc.Width, doc.Height)

	var inside []indexed
	for i, tok := range doc.Tokens {
		if used.Has(i) {
			continue
		}
		if x, y := tok.Center(); x >= zone.Left && x < zone.Right() && y >= zone.Top && y < zone.Bottom() {
			inside = append(inside, indexed{idx: i, tok: tok})
		}
	}

	r, ok := l.bestSingle(def, inside, validate.Strict)
	if !ok {
		r, ok = l.combinations(def, inside, validate.Strict, false)
	}
	if ok {
		r.Method = method
		r.Confidence = l.cfg.FallbackConfidence
		return r
	}

	if l.reader == nil {
		return miss(method, ReasonNoMatch)
	}
	reading, err := l.reader.ReadRegion(ctx, zone, def.Rule.Kind)
	if err != nil {
		zap.L().Debug("locate: fallback region read failed",
			zap.String("field", def.Name),
			zap.Error(err),
		)
		return miss(method, ReasonNoMatch)
	}
	raw, val, ok := l.pickValue(def, reading.Text, validate.Strict)
	if !ok {
		return miss(method, ReasonNoMatch)
	}
	return Result{
		Found:      true,
		Value:      val,
		Raw:        raw,
		Confidence: l.cfg.FallbackConfidence,
		ROI:        zone,
		Method:     method,
	}
}

// seeds are the centers of keyword tokens of any confidence, best first,
// or the image center when the document has none.
func (l *Locator) seeds(def *model.FieldDefinition, doc *model.Document) [][2]int {
	var kw []model.Token
	for _, tok := range doc.Tokens {
		if hasKeyword(tok, def.Keywords) {
			kw = append(kw, tok)
		}
	}
	sort.SliceStable(kw, func(i, j int) bool { return kw[i].Confidence > kw[j].Confidence })

	var out [][2]int
	for _, tok := range kw {
		if len(out) == maxExpansionSeeds {
			break
		}
		x, y := tok.Center()
		out = append(out, [2]int{x, y})
	}
	if len(out) == 0 {
		out = append(out, [2]int{doc.Width / 2, doc.Height / 2})
	}
	return out
}

// expand reads concentric square windows around each seed. The first
// window above the high-confidence mark that yields a value wins; otherwise
// the best matching window is kept if it reaches the minimum confidence.
func (l *Locator) expand(ctx context.Context, def *model.FieldDefinition, doc *model.Document, seeds [][2]int) Result {
	method := model.MethodCenterExpansion
	if l.reader == nil {
		return miss(method, ReasonNoRegionReader)
	}

	var best Result
	for _, seed := range seeds {
		for r := l.cfg.ExpansionStart; r <= l.cfg.ExpansionMax; r += l.cfg.ExpansionStep {
			if err := ctx.Err(); err != nil {
				return miss(method, ReasonNoMatch)
			}
			win := model.Rect{Left: seed[0] - r, Top: seed[1] - r, Width: 2 * r, Height: 2 * r}.Clamp(doc.Width, doc.Height)
			if win.Empty() {
				continue
			}
			reading, err := l.reader.ReadRegion(ctx, win, def.Rule.Kind)
			if err != nil {
				zap.L().Debug("locate: expansion window read failed",
					zap.String("field", def.Name),
					zap.Int("radius", r),
					zap.Error(err),
				)
				continue
			}
			raw, val, ok := l.pickValue(def, reading.Text, validate.Strict)
			if !ok {
				continue
			}
			cand := Result{
				Found:      true,
				Value:      val,
				Raw:        raw,
				Confidence: model.ClampConfidence(reading.Confidence),
				ROI:        win,
				Method:     method,
			}
			if cand.Confidence > l.cfg.HighConfidence {
				return cand
			}
			if cand.Confidence > best.Confidence || !best.Found {
				best = cand
			}
		}
	}

	if !best.Found {
		return miss(method, ReasonNoMatch)
	}
	if best.Confidence < l.cfg.MinConfidence {
		return Result{Method: method, Reason: ReasonConfidenceInsufficient, Confidence: best.Confidence, Value: best.Value}
	}
	return best
}

// pickValue finds a matching value in OCR text: the whole text first, then
// each line, then each word.
func (l *Locator) pickValue(def *model.FieldDefinition, text string, mode validate.Mode) (string, string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", "", false
	}
	pieces := []string{text}
	lines := strings.Split(text, "\n")
	if len(lines) > 1 {
		pieces = append(pieces, lines...)
	}
	if words := strings.Fields(text); len(words) > 1 {
		pieces = append(pieces, words...)
	}
	for _, p := range pieces {
		p = strings.TrimSpace(p)
		if val, ok := l.v.Matches(def, p, mode); ok {
			return p, val, true
		}
	}
	return "", "", false
}
