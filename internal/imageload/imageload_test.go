package imageload

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fkcurrie/hub75-bcm/pkg/matrix"
)

const redBanner = `<?xml version="1.0"?>
<svg xmlns="http://www.w3.org/2000/svg" width="20" height="10" viewBox="0 0 20 10">
  <rect x="0" y="0" width="20" height="10" fill="#ff0000"/>
</svg>`

func solidPNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDecodePNGAtPanelHeight(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 40, 16))
	src.Set(3, 4, color.RGBA{10, 20, 30, 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))

	img, err := Decode(&buf, "frame.png", 16)
	require.NoError(t, err)
	assert.Equal(t, 40, img.Width)
	assert.Equal(t, 16, img.Height)
	assert.Equal(t, matrix.Pixel{R: 10, G: 20, B: 30}, img.At(3, 4))
	assert.Equal(t, matrix.Black, img.At(0, 0))
}

func TestDecodeScalesToHeight(t *testing.T) {
	data := solidPNG(t, 64, 32, color.RGBA{0, 255, 0, 255})

	img, err := Decode(bytes.NewReader(data), "big.png", 16)
	require.NoError(t, err)
	assert.Equal(t, 32, img.Width)
	assert.Equal(t, 16, img.Height)
	p := img.At(16, 8)
	assert.GreaterOrEqual(t, p.G, uint8(250))
	assert.Zero(t, p.R)
	assert.Zero(t, p.B)
}

func TestDecodePPM(t *testing.T) {
	data := append([]byte("P6\n# tiny\n2 1\n255\n"), 255, 0, 0, 0, 0, 255)
	img, err := Decode(bytes.NewReader(data), "tiny.ppm", 1)
	require.NoError(t, err)
	assert.Equal(t, matrix.Pixel{R: 255}, img.At(0, 0))
	assert.Equal(t, matrix.Pixel{B: 255}, img.At(1, 0))
}

func TestDecodeSVG(t *testing.T) {
	for _, name := range []string{"banner.svg", "banner"} {
		t.Run(name, func(t *testing.T) {
			img, err := Decode(strings.NewReader(redBanner), name, 16)
			require.NoError(t, err)
			assert.Equal(t, 32, img.Width)
			assert.Equal(t, 16, img.Height)

			p := img.At(16, 8)
			assert.GreaterOrEqual(t, p.R, uint8(250))
			assert.Zero(t, p.G)
			assert.Zero(t, p.B)
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode(strings.NewReader("not an image at all"), "notes.txt", 16)
	assert.ErrorIs(t, err, ErrUnknownFormat)

	_, err = Decode(bytes.NewReader([]byte("P6 4 4 255\n\x00")), "short.ppm", 16)
	assert.Error(t, err)

	_, err = Decode(strings.NewReader(redBanner), "banner.svg", 0)
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "red.png")
	require.NoError(t, os.WriteFile(path, solidPNG(t, 32, 16, color.RGBA{255, 0, 0, 255}), 0644))

	img, err := Load(path, 16)
	require.NoError(t, err)
	assert.NoError(t, img.Fits(16, 32))
	assert.Equal(t, matrix.Pixel{R: 255}, img.At(31, 15))

	_, err = Load(filepath.Join(t.TempDir(), "missing.png"), 16)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestScaleToHeightKeepsMatchingImage(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 5, 16))
	assert.Same(t, src, ScaleToHeight(src, 16))
}

func TestText(t *testing.T) {
	img := Text("HI", 16, 32, color.RGBA{255, 255, 255, 255})
	assert.Equal(t, 16, img.Height)
	assert.Equal(t, 2*7+32, img.Width)
	require.NoError(t, img.Fits(16, 32))

	lit := 0
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			if img.At(x, y) != matrix.Black {
				lit++
				assert.Less(t, x, 14, "text stays left of the trailing gap")
			}
		}
	}
	assert.Positive(t, lit)
}
