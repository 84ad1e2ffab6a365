// Package encode serializes composited surfaces.
//
// The default encoder writes JPEG at quality 85. The composite always has
// an opaque base beneath it, so alpha is dropped. PNG is available for
// lossless debugging output.
//
//	enc := encode.Encoder{}            // JPEG, quality 85
//	data, err := enc.Bytes(img)
//	url, err := enc.DataURL(img)       // data:image/jpeg;base64,...
//
// Output is deterministic for identical pixels and encoder configuration.
package encode

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"
	"io"
	"strings"

	apperr "github.com/matzehuels/snapcomp/pkg/errors"
)

// Format is an output encoding.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
)

// DefaultQuality is the JPEG quality used when none is set.
const DefaultQuality = 85

// Formats lists the supported output formats.
var Formats = []Format{FormatJPEG, FormatPNG}

// ParseFormat accepts "jpeg", "jpg" and "png" in any case.
// An empty string yields [FormatJPEG].
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "jpeg", "jpg":
		return FormatJPEG, nil
	case "png":
		return FormatPNG, nil
	}
	return "", apperr.New(apperr.ErrCodeInvalidFormat, "unsupported output format %q (want jpeg or png)", s)
}

// MediaType returns the media type written for f.
func (f Format) MediaType() string {
	if f == FormatPNG {
		return "image/png"
	}
	return "image/jpeg"
}

// Ext returns the file extension for f, without the dot.
func (f Format) Ext() string {
	if f == FormatPNG {
		return "png"
	}
	return "jpg"
}

// Encoder writes images in one format. The zero value encodes JPEG at
// [DefaultQuality].
type Encoder struct {
	Format  Format
	Quality int // JPEG quality 1-100; ignored for PNG
}

func (e Encoder) format() Format {
	if e.Format == "" {
		return FormatJPEG
	}
	return e.Format
}

func (e Encoder) quality() int {
	if e.Quality == 0 {
		return DefaultQuality
	}
	return e.Quality
}

// Validate checks the format and quality.
func (e Encoder) Validate() error {
	if _, err := ParseFormat(string(e.format())); err != nil {
		return err
	}
	if e.format() == FormatJPEG {
		return apperr.ValidateQuality(e.quality())
	}
	return nil
}

// MediaType returns the media type of the encoder's output.
func (e Encoder) MediaType() string { return e.format().MediaType() }

// Encode writes img to w.
func (e Encoder) Encode(w io.Writer, img image.Image) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if img == nil || img.Bounds().Empty() {
		return apperr.New(apperr.ErrCodeEncode, "nothing to encode")
	}

	var err error
	switch e.format() {
	case FormatPNG:
		enc := png.Encoder{CompressionLevel: png.DefaultCompression}
		err = enc.Encode(w, img)
	default:
		err = jpeg.Encode(w, opaque(img), &jpeg.Options{Quality: e.quality()})
	}
	if err != nil {
		return apperr.Wrap(apperr.ErrCodeEncode, err, "encode %s", e.format())
	}
	return nil
}

// Bytes encodes img into a new buffer.
func (e Encoder) Bytes(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := e.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DataURL encodes img as a base64 data URL.
func (e Encoder) DataURL(img image.Image) (string, error) {
	data, err := e.Bytes(img)
	if err != nil {
		return "", err
	}
	return DataURL(e.MediaType(), data), nil
}

// DataURL builds "data:<mediaType>;base64,<payload>".
func DataURL(mediaType string, data []byte) string {
	var b strings.Builder
	b.Grow(len("data:;base64,") + len(mediaType) + base64.StdEncoding.EncodedLen(len(data)))
	b.WriteString("data:")
	b.WriteString(mediaType)
	b.WriteString(";base64,")
	b.WriteString(base64.StdEncoding.EncodeToString(data))
	return b.String()
}

// opaque flattens any translucent pixels onto black so JPEG output matches
// what premultiplied compositing shows. Opaque images pass through.
func opaque(img image.Image) image.Image {
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return img
	}
	b := img.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, image.Black, image.Point{}, draw.Src)
	draw.Draw(dst, b, img, b.Min, draw.Over)
	return dst
}
