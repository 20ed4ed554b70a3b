package ocr

import (
	"context"
	"image"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/receipt-ocr/internal/locate"
	"github.com/sells-group/receipt-ocr/internal/model"
)

// minRegionHeight is the crop height below which targeted reads are
// upscaled; Tesseract is unreliable on glyphs only a few pixels tall.
const minRegionHeight = 32

// RegionReader runs targeted OCR over rectangles of one prepared image.
type RegionReader struct {
	engine   Engine
	img      image.Image
	language string
}

var _ locate.RegionReader = (*RegionReader)(nil)

// NewRegionReader creates a reader over img.
func NewRegionReader(engine Engine, img image.Image, language string) *RegionReader {
	return &RegionReader{engine: engine, img: img, language: language}
}

// ReadRegion crops roi, recognizes it with the profile for kind and returns
// the words joined by single spaces with their mean confidence.
func (r *RegionReader) ReadRegion(ctx context.Context, roi model.Rect, kind model.RuleKind) (locate.Reading, error) {
	b := r.img.Bounds()
	roi = roi.Clamp(b.Dx(), b.Dy())
	if roi.Empty() {
		return locate.Reading{}, eris.New("ocr: region outside image")
	}

	crop := imaging.Crop(r.img, image.Rect(
		b.Min.X+roi.Left, b.Min.Y+roi.Top,
		b.Min.X+roi.Right(), b.Min.Y+roi.Bottom(),
	))
	var region image.Image = crop
	if roi.Height < minRegionHeight {
		region = imaging.Resize(crop, 0, 2*minRegionHeight, imaging.Lanczos)
	}

	page, err := r.engine.Recognize(ctx, region, ProfileFor(kind, r.language))
	if err != nil {
		return locate.Reading{}, eris.Wrap(err, "ocr: read region")
	}

	words := make([]string, 0, len(page.Tokens))
	var sum float64
	for _, t := range page.Tokens {
		text := strings.TrimSpace(t.Text)
		if text == "" {
			continue
		}
		words = append(words, text)
		sum += t.Confidence
	}
	if len(words) == 0 {
		return locate.Reading{}, nil
	}

	reading := locate.Reading{
		Text:       strings.Join(words, " "),
		Confidence: model.ClampConfidence(sum / float64(len(words))),
	}
	zap.L().Debug("ocr: region read",
		zap.String("kind", string(kind)),
		zap.Int("left", roi.Left),
		zap.Int("top", roi.Top),
		zap.Int("width", roi.Width),
		zap.Int("height", roi.Height),
		zap.String("text", reading.Text),
		zap.Float64("confidence", reading.Confidence),
	)
	return reading, nil
}
