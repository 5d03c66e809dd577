package media

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/disintegration/imaging"
)

const (
	// NormalizedMime is the single output format for logos.
	NormalizedMime = "image/png"

	defaultMaxDimension = 512
)

// LogoNormalizer re-encodes logos into one format and bounding box so they
// render the same everywhere.
type LogoNormalizer struct {
	maxDimension int
}

func NewLogoNormalizer(maxDimension int) *LogoNormalizer {
	if maxDimension <= 0 {
		maxDimension = defaultMaxDimension
	}
	return &LogoNormalizer{maxDimension: maxDimension}
}

// Normalize decodes r, shrinks it to fit the bounding box and encodes PNG.
// Images smaller than the box are never enlarged.
func (n *LogoNormalizer) Normalize(r io.Reader) (data []byte, mimeType string, err error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() > n.maxDimension || bounds.Dy() > n.maxDimension {
		img = imaging.Fit(img, n.maxDimension, n.maxDimension, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, "", fmt.Errorf("encode png: %w", err)
	}

	return buf.Bytes(), NormalizedMime, nil
}

// Dimensions reports the pixel size of an encoded image without decoding it fully.
func Dimensions(r io.Reader) (width, height int, err error) {
	cfg, _, err := image.DecodeConfig(r)
	if err != nil {
		return 0, 0, fmt.Errorf("decode image config: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}
