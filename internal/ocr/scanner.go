package ocr

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/receipt-ocr/internal/config"
	"github.com/sells-group/receipt-ocr/internal/locate"
	"github.com/sells-group/receipt-ocr/internal/model"
)

// Scanner turns an image file into a Document and a RegionReader bound to
// the same prepared image.
type Scanner struct {
	engine Engine
	cfg    config.OCRConfig
}

// NewScanner creates a Scanner.
func NewScanner(engine Engine, cfg config.OCRConfig) *Scanner {
	return &Scanner{engine: engine, cfg: cfg}
}

// Scan loads and recognizes the image at path. Tokens are returned as the
// engine produced them; filtering is left to the caller.
func (s *Scanner) Scan(ctx context.Context, id, path string) (*model.Document, locate.RegionReader, error) {
	img, err := LoadImage(path)
	if err != nil {
		return nil, nil, err
	}

	psm := s.cfg.PSM
	if psm == 0 {
		psm = PSMSingleBlock
	}
	page, err := s.engine.Recognize(ctx, img, Options{Language: s.cfg.Language, PSM: psm})
	if err != nil {
		return nil, nil, eris.Wrapf(err, "ocr: recognize %s", path)
	}

	b := img.Bounds()
	doc := &model.Document{
		ID:       id,
		Width:    b.Dx(),
		Height:   b.Dy(),
		Tokens:   page.Tokens,
		FullText: strings.TrimSpace(page.FullText),
	}
	zap.L().Debug("ocr: page recognized",
		zap.String("document_id", id),
		zap.Int("width", doc.Width),
		zap.Int("height", doc.Height),
		zap.Int("tokens", len(doc.Tokens)),
	)
	return doc, NewRegionReader(s.engine, img, s.cfg.Language), nil
}
