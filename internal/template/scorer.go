// Package template scores declarative receipt layouts against a document
// and selects the best match.
package template

import (
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/receipt-ocr/internal/config"
	"github.com/sells-group/receipt-ocr/internal/model"
	"github.com/sells-group/receipt-ocr/internal/validate"
)

// Breakdown holds the component scores of one template, each in [0,1].
type Breakdown struct {
	Text       float64 `json:"text"`
	Structural float64 `json:"structural"`
	Total      float64 `json:"total"`
}

// Match is a selected template with its score.
type Match struct {
	Template *model.Template
	Score    Breakdown
}

// Scorer evaluates templates. It holds no per-document state.
type Scorer struct {
	cfg config.TemplateConfig
}

// NewScorer creates a Scorer with the given weights and thresholds.
func NewScorer(cfg config.TemplateConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score computes the weighted score of t against the document.
func (s *Scorer) Score(t *model.Template, doc *model.Document) Breakdown {
	b := Breakdown{
		Text:       s.textScore(t, doc),
		Structural: s.structuralScore(t, doc),
	}
	b.Total = s.cfg.TextWeight*b.Text + s.cfg.StructuralWeight*b.Structural
	return b
}

// textScore is the fraction of anchors found in the full text or in any
// single token.
func (s *Scorer) textScore(t *model.Template, doc *model.Document) float64 {
	if len(t.TextAnchors) == 0 {
		return 0
	}

	fullText := validate.Fold(doc.FullText)
	folded := make([]string, len(doc.Tokens))
	for i, tok := range doc.Tokens {
		folded[i] = validate.Fold(tok.Text)
	}

	found := 0
	for _, anchor := range t.TextAnchors {
		a := validate.Fold(strings.TrimSpace(anchor))
		if a == "" {
			continue
		}
		if strings.Contains(fullText, a) {
			found++
			continue
		}
		for _, w := range folded {
			if strings.Contains(w, a) {
				found++
				break
			}
		}
	}
	return float64(found) / float64(len(t.TextAnchors))
}

// structuralScore is the fraction of expected regions covered, by at least
// OverlapRatio of their own area, by a single token box.
func (s *Scorer) structuralScore(t *model.Template, doc *model.Document) float64 {
	if len(t.Regions) == 0 || doc.Width <= 0 || doc.Height <= 0 {
		return 0
	}

	var boxes []model.Rect
	for _, tok := range doc.Tokens {
		if tok.Confidence > s.cfg.TokenMinConfidence {
			boxes = append(boxes, tok.Rect())
		}
	}
	if len(boxes) == 0 {
		return 0
	}

	matched := 0
	for _, region := range t.Regions {
		expected := region.Abs(doc.Width, doc.Height)
		area := expected.Area()
		if area == 0 {
			continue
		}
		for _, b := range boxes {
			overlap := expected.Intersection(b).Area()
			if float64(overlap)/float64(area) >= s.cfg.OverlapRatio {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(len(t.Regions))
}

// Select returns the highest-scoring template when its total reaches
// MinScore. Ties keep the earlier template, so catalog order decides.
func (s *Scorer) Select(templates []model.Template, doc *model.Document) (Match, bool) {
	var best Match
	bestTotal := -1.0
	for i := range templates {
		t := &templates[i]
		b := s.Score(t, doc)
		zap.L().Debug("template: scored",
			zap.String("template", t.Name),
			zap.Float64("text", b.Text),
			zap.Float64("structural", b.Structural),
			zap.Float64("total", b.Total),
		)
		if b.Total > bestTotal {
			best = Match{Template: t, Score: b}
			bestTotal = b.Total
		}
	}
	if best.Template == nil || bestTotal < s.cfg.MinScore {
		return Match{}, false
	}
	return best, true
}
