package optimize

import (
	"bytes"
	"image"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
)

const (
	// MaxWidth bounds the derivative; narrower sources are never upscaled.
	MaxWidth = 1200

	// JPEGQuality is the fixed re-encode quality.
	JPEGQuality = 70

	// MaxUploadBytes rejects oversized payloads before staging. Policy
	// constant, not derived from Shopify's actual limit.
	MaxUploadBytes = 20 << 20
)

// Transcode decodes src, resizes so width <= MaxWidth with aspect ratio
// preserved, and re-encodes as JPEG. Returns the payload and final
// dimensions. CPU-bound and synchronous; callers run it before any
// network step continues.
func Transcode(src []byte) ([]byte, int, int, error) {
	img, err := imaging.Decode(bytes.NewReader(src), imaging.AutoOrientation(true))
	if err != nil {
		return nil, 0, 0, wrap(KindTranscode, err, "decode source image")
	}

	if img.Bounds().Dx() > MaxWidth {
		img = imaging.Resize(img, MaxWidth, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(JPEGQuality)); err != nil {
		return nil, 0, 0, wrap(KindTranscode, err, "encode jpeg")
	}

	b := img.Bounds()
	return buf.Bytes(), b.Dx(), b.Dy(), nil
}

// imageDims reads dimensions from the header without a full decode. Direct
// uploads pass bytes through untouched, so (0, 0) for non-image payloads
// is acceptable.
func imageDims(data []byte) (int, int) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}
