package ocr

import (
	"image"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/rotisserie/eris"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// minHeight is the height below which receipt images are upscaled before
// recognition.
const minHeight = 1000

var supportedExt = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".bmp": true, ".tif": true, ".tiff": true, ".webp": true,
}

// Supported reports whether path has an image extension LoadImage decodes.
func Supported(path string) bool {
	return supportedExt[strings.ToLower(filepath.Ext(path))]
}

// LoadImage decodes the image at path, honoring EXIF orientation, and
// prepares it for recognition: grayscale, and upscaled when short.
func LoadImage(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, eris.Wrapf(err, "ocr: open image %s", path)
	}
	return Prepare(img), nil
}

// Prepare converts img to grayscale and upscales it to minHeight when it is
// shorter. The result is anchored at the origin.
func Prepare(img image.Image) image.Image {
	var out image.Image = imaging.Grayscale(img)
	if h := out.Bounds().Dy(); h > 0 && h < minHeight {
		out = imaging.Resize(out, 0, minHeight, imaging.Lanczos)
	}
	return out
}
