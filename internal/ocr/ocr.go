// Package ocr adapts an OCR engine and a decoded receipt image into the
// token view and targeted region reads the extraction engine consumes.
package ocr

import (
	"context"
	"image"

	"github.com/sells-group/receipt-ocr/internal/model"
)

// Page segmentation modes used by the receipt profiles.
const (
	PSMSingleBlock = 6
	PSMSingleLine  = 7
	PSMSingleWord  = 8
)

// Options selects the recognition profile for one call.
type Options struct {
	Language  string
	PSM       int
	Whitelist string
}

// Page is the result of recognizing one image.
type Page struct {
	Tokens   []model.Token
	FullText string
}

// Engine recognizes words in an image. Confidences are on the 0..100 scale
// and boxes are in the image's pixel coordinates.
type Engine interface {
	Recognize(ctx context.Context, img image.Image, opts Options) (*Page, error)
}

// ProfileFor returns the targeted-OCR profile for a field rule kind.
func ProfileFor(kind model.RuleKind, language string) Options {
	switch kind {
	case model.RuleAmount:
		return Options{Language: language, PSM: PSMSingleWord, Whitelist: "0123456789.,-"}
	case model.RuleDate:
		return Options{Language: language, PSM: PSMSingleWord, Whitelist: "0123456789/-:"}
	}
	return Options{Language: language, PSM: PSMSingleLine}
}
