// Package tesseract implements ocr.Engine with the gosseract bindings.
package tesseract

import (
	"bytes"
	"context"
	"image"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
	"github.com/rotisserie/eris"

	"github.com/sells-group/receipt-ocr/internal/model"
	"github.com/sells-group/receipt-ocr/internal/ocr"
)

const defaultLanguage = "spa"

// Engine runs Tesseract with a fresh client per call, so one Engine may be
// shared across goroutines.
type Engine struct {
	tessdataPrefix string
	clientFactory  func() *gosseract.Client
}

var _ ocr.Engine = (*Engine)(nil)

// New creates an Engine. tessdataPrefix may be empty to use the system
// default.
func New(tessdataPrefix string) *Engine {
	return &Engine{tessdataPrefix: tessdataPrefix, clientFactory: gosseract.NewClient}
}

// Recognize implements ocr.Engine.
func (e *Engine) Recognize(ctx context.Context, img image.Image, opts ocr.Options) (*ocr.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, eris.Wrap(err, "tesseract: encode image")
	}

	c := e.clientFactory()
	defer c.Close() //nolint:errcheck
	if e.tessdataPrefix != "" {
		c.TessdataPrefix = e.tessdataPrefix
	}

	lang := opts.Language
	if lang == "" {
		lang = defaultLanguage
	}
	if err := c.SetLanguage(strings.Split(lang, "+")...); err != nil {
		return nil, eris.Wrap(err, "tesseract: set language")
	}
	if opts.PSM > 0 {
		if err := c.SetPageSegMode(gosseract.PageSegMode(opts.PSM)); err != nil {
			return nil, eris.Wrap(err, "tesseract: set page segmentation mode")
		}
	}
	if opts.Whitelist != "" {
		if err := c.SetWhitelist(opts.Whitelist); err != nil {
			return nil, eris.Wrap(err, "tesseract: set whitelist")
		}
	}
	if err := c.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, eris.Wrap(err, "tesseract: set image")
	}

	text, err := c.Text()
	if err != nil {
		return nil, eris.Wrap(err, "tesseract: recognize text")
	}
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, eris.Wrap(err, "tesseract: word boxes")
	}

	return &ocr.Page{Tokens: tokens(boxes), FullText: strings.TrimSpace(text)}, nil
}

func tokens(boxes []gosseract.BoundingBox) []model.Token {
	out := make([]model.Token, 0, len(boxes))
	for _, b := range boxes {
		out = append(out, model.Token{
			Text:       b.Word,
			Confidence: b.Confidence,
			Left:       b.Box.Min.X,
			Top:        b.Box.Min.Y,
			Width:      b.Box.Dx(),
			Height:     b.Box.Dy(),
		})
	}
	return out
}
