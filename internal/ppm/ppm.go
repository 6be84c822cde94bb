// Package ppm decodes binary Netpbm color images (P6).
//
// Importing the package registers the decoder with image.Decode.
package ppm

import (
	"bufio"
	"fmt"
	"image"
	"image/color"
	"io"
	"strconv"
)

const magic = "P6"

// MaxDimension bounds width and height to keep a corrupt header from
// allocating gigabytes
const MaxDimension = 1 << 14

// FormatError reports a malformed PPM stream.
type FormatError struct {
	Field  string
	Reason string
}

func (e *FormatError) Error() string {
	if e.Field == "" {
		return "ppm: " + e.Reason
	}
	return "ppm: " + e.Field + ": " + e.Reason
}

func init() {
	image.RegisterFormat("ppm", magic, Decode, DecodeConfig)
}

// Header is the parsed PPM header.
type Header struct {
	Width  int
	Height int
	MaxVal int
}

type reader struct {
	br *bufio.Reader
}

// skipSpace consumes whitespace and comments. A comment runs from '#' to the
// end of the line.
func (r *reader) skipSpace() error {
	for {
		b, err := r.br.ReadByte()
		if err != nil {
			return err
		}
		switch {
		case b == '#':
			if _, err := r.br.ReadString('\n'); err != nil {
				return err
			}
		case isSpace(b):
		default:
			return r.br.UnreadByte()
		}
	}
}

func (r *reader) number(field string) (int, error) {
	if err := r.skipSpace(); err != nil {
		return 0, unexpected(field, err)
	}
	var digits []byte
	for {
		b, err := r.br.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
		if b < '0' || b > '9' {
			if err := r.br.UnreadByte(); err != nil {
				return 0, err
			}
			break
		}
		digits = append(digits, b)
	}
	if len(digits) == 0 {
		return 0, &FormatError{Field: field, Reason: "not a number"}
	}
	n, err := strconv.Atoi(string(digits))
	if err != nil {
		return 0, &FormatError{Field: field, Reason: err.Error()}
	}
	return n, nil
}

func (r *reader) header() (Header, error) {
	var m [2]byte
	if _, err := io.ReadFull(r.br, m[:]); err != nil {
		return Header{}, unexpected("magic", err)
	}
	if string(m[:]) != magic {
		return Header{}, &FormatError{Field: "magic", Reason: fmt.Sprintf("%q is not P6", m[:])}
	}

	var h Header
	var err error
	if h.Width, err = r.number("width"); err != nil {
		return Header{}, err
	}
	if h.Height, err = r.number("height"); err != nil {
		return Header{}, err
	}
	if h.MaxVal, err = r.number("maxval"); err != nil {
		return Header{}, err
	}

	switch {
	case h.Width <= 0 || h.Width > MaxDimension:
		return Header{}, &FormatError{Field: "width", Reason: fmt.Sprintf("%d out of range", h.Width)}
	case h.Height <= 0 || h.Height > MaxDimension:
		return Header{}, &FormatError{Field: "height", Reason: fmt.Sprintf("%d out of range", h.Height)}
	case h.MaxVal <= 0 || h.MaxVal > 0xFFFF:
		return Header{}, &FormatError{Field: "maxval", Reason: fmt.Sprintf("%d out of range 1..65535", h.MaxVal)}
	}

	// Exactly one whitespace byte separates the header from the raster.
	b, err := r.br.ReadByte()
	if err != nil {
		return Header{}, unexpected("raster", err)
	}
	if !isSpace(b) {
		return Header{}, &FormatError{Field: "maxval", Reason: "missing whitespace before raster"}
	}
	return h, nil
}

// DecodeConfig returns the color model and dimensions of a PPM image without
// reading the raster.
func DecodeConfig(r io.Reader) (image.Config, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return image.Config{}, err
	}
	return image.Config{ColorModel: color.RGBAModel, Width: h.Width, Height: h.Height}, nil
}

// ReadHeader parses the header of a PPM stream
func ReadHeader(r io.Reader) (Header, error) {
	pr := &reader{br: bufio.NewReader(r)}
	return pr.header()
}

// Decode reads a P6 image. Samples are scaled linearly from 0..maxval to
// 0..255; 16-bit samples are big endian.
func Decode(r io.Reader) (image.Image, error) {
	pr := &reader{br: bufio.NewReader(r)}
	h, err := pr.header()
	if err != nil {
		return nil, err
	}

	sampleSize := 1
	if h.MaxVal > 0xFF {
		sampleSize = 2
	}
	row := make([]byte, h.Width*3*sampleSize)
	img := image.NewRGBA(image.Rect(0, 0, h.Width, h.Height))

	for y := 0; y < h.Height; y++ {
		if _, err := io.ReadFull(pr.br, row); err != nil {
			return nil, &FormatError{Field: "raster", Reason: fmt.Sprintf("row %d of %d: %v", y, h.Height, err)}
		}
		out := img.Pix[y*img.Stride:]
		for x := 0; x < h.Width; x++ {
			for c := 0; c < 3; c++ {
				i := (x*3 + c) * sampleSize
				v := int(row[i])
				if sampleSize == 2 {
					v = v<<8 | int(row[i+1])
				}
				if v > h.MaxVal {
					return nil, &FormatError{Field: "raster", Reason: fmt.Sprintf("sample %d exceeds maxval %d at (%d, %d)", v, h.MaxVal, x, y)}
				}
				out[x*4+c] = scale(v, h.MaxVal)
			}
			out[x*4+3] = 0xFF
		}
	}
	return img, nil
}

// scale maps v in 0..max onto 0..255, rounding to nearest
func scale(v, max int) uint8 {
	if max == 0xFF {
		return uint8(v)
	}
	return uint8((v*0xFF + max/2) / max)
}

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}

func unexpected(field string, err error) error {
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return &FormatError{Field: field, Reason: err.Error()}
}
