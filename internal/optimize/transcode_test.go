package optimize

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pngBytes renders a solid image so decode results are deterministic.
func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 120, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestTranscode_DownscalesWideImages(t *testing.T) {
	out, w, h, err := Transcode(pngBytes(t, 2400, 1200))
	require.NoError(t, err)

	assert.Equal(t, 1200, w)
	assert.Equal(t, 600, h)

	cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 1200, cfg.Width)
	assert.Equal(t, 600, cfg.Height)
}

func TestTranscode_NeverUpscales(t *testing.T) {
	tests := []struct {
		name string
		w, h int
	}{
		{"narrow", 640, 480},
		{"exactly at limit", 1200, 800},
		{"tiny", 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, w, h, err := Transcode(pngBytes(t, tt.w, tt.h))
			require.NoError(t, err)
			assert.Equal(t, tt.w, w)
			assert.Equal(t, tt.h, h)

			cfg, _, err := image.DecodeConfig(bytes.NewReader(out))
			require.NoError(t, err)
			assert.Equal(t, tt.w, cfg.Width)
			assert.Equal(t, tt.h, cfg.Height)
		})
	}
}

func TestTranscode_PreservesAspectRatio(t *testing.T) {
	_, w, h, err := Transcode(pngBytes(t, 3000, 2000))
	require.NoError(t, err)
	assert.Equal(t, 1200, w)
	assert.Equal(t, 800, h)
}

func TestTranscode_ReencodesJPEGSources(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 300, 200))
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, src, &jpeg.Options{Quality: 95}))

	out, w, h, err := Transcode(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 300, w)
	assert.Equal(t, 200, h)
	assert.NotEmpty(t, out)
}

func TestTranscode_MalformedInput(t *testing.T) {
	tests := []struct {
		name string
		src  []byte
	}{
		{"empty", nil},
		{"garbage", []byte("definitely not an image")},
		{"truncated png", pngBytes(t, 100, 100)[:20]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, err := Transcode(tt.src)
			require.Error(t, err)
			kind, ok := KindOf(err)
			require.True(t, ok)
			assert.Equal(t, KindTranscode, kind)
		})
	}
}

func TestImageDims(t *testing.T) {
	w, h := imageDims(pngBytes(t, 320, 240))
	assert.Equal(t, 320, w)
	assert.Equal(t, 240, h)

	w, h = imageDims([]byte("not an image"))
	assert.Zero(t, w)
	assert.Zero(t, h)
}
