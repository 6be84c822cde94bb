// Package imageload turns image files into panel source images. PPM, PNG,
// JPEG, GIF, BMP, WebP and SVG are understood; everything is scaled to the
// panel height.
package imageload

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	// Decoders registered with image.Decode
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	_ "golang.org/x/image/webp"

	_ "github.com/fkcurrie/hub75-bcm/internal/ppm"
	"github.com/fkcurrie/hub75-bcm/pkg/matrix"
)

// ErrUnknownFormat is returned for input no decoder recognizes
var ErrUnknownFormat = errors.New("unknown image format")

// Load reads the image at path and scales it to rows pixels tall.
func Load(path string, rows int) (*matrix.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := Decode(f, filepath.Base(path), rows)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return img, nil
}

// Decode reads an image from r and scales it to rows pixels tall. name is
// only used to recognize SVG by extension; content sniffing covers the rest.
func Decode(r io.Reader, name string, rows int) (*matrix.Image, error) {
	if rows <= 0 {
		return nil, fmt.Errorf("invalid target height %d", rows)
	}

	br := bufio.NewReader(r)
	if isSVG(name, br) {
		img, err := rasterizeSVG(br, rows)
		if err != nil {
			return nil, err
		}
		return matrix.FromImage(img), nil
	}

	img, _, err := image.Decode(br)
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, name)
		}
		return nil, fmt.Errorf("failed to decode %s: %w", name, err)
	}
	return matrix.FromImage(ScaleToHeight(img, rows)), nil
}

// ScaleToHeight scales img to rows pixels tall, keeping its aspect ratio.
// Images already the right height are returned unchanged.
func ScaleToHeight(img image.Image, rows int) image.Image {
	b := img.Bounds()
	if b.Dy() == rows || b.Dy() == 0 {
		return img
	}
	width := scaledWidth(float64(b.Dx()), float64(b.Dy()), rows)
	dst := image.NewRGBA(image.Rect(0, 0, width, rows))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

func scaledWidth(w, h float64, rows int) int {
	width := int(math.Round(w * float64(rows) / h))
	if width < 1 {
		width = 1
	}
	return width
}

func isSVG(name string, br *bufio.Reader) bool {
	if strings.EqualFold(filepath.Ext(name), ".svg") {
		return true
	}
	head, _ := br.Peek(512)
	head = bytes.TrimSpace(head)
	return bytes.HasPrefix(head, []byte("<svg")) ||
		(bytes.HasPrefix(head, []byte("<?xml")) && bytes.Contains(head, []byte("<svg")))
}

func rasterizeSVG(r io.Reader, rows int) (*image.RGBA, error) {
	icon, err := oksvg.ReadIconStream(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse svg: %w", err)
	}
	if icon.ViewBox.W <= 0 || icon.ViewBox.H <= 0 {
		return nil, fmt.Errorf("svg has an empty view box")
	}

	width := scaledWidth(icon.ViewBox.W, icon.ViewBox.H, rows)
	icon.SetTarget(0, 0, float64(width), float64(rows))

	img := image.NewRGBA(image.Rect(0, 0, width, rows))
	scanner := rasterx.NewScannerGV(width, rows, img, img.Bounds())
	icon.Draw(rasterx.NewDasher(width, rows, scanner), 1)
	return img, nil
}

// Text renders msg as a scrolling banner rows pixels tall, followed by cols
// blank columns so the text leaves the panel before it wraps around.
func Text(msg string, rows, cols int, fg color.Color) *matrix.Image {
	face := basicfont.Face7x13
	width := font.MeasureString(face, msg).Ceil() + cols

	img := image.NewRGBA(image.Rect(0, 0, width, rows))
	draw.Draw(img, img.Bounds(), image.Black, image.Point{}, draw.Src)

	top := (rows - face.Height) / 2
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(fg),
		Face: face,
		Dot:  fixed.P(0, top+face.Ascent),
	}
	d.DrawString(msg)
	return matrix.FromImage(img)
}
