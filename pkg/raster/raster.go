// Package raster loads and decodes the bitmaps that feed a compositing pass.
//
// A raster source is a string naming where the encoded bytes live:
//
//	data:image/png;base64,iVBORw0KGgo...   inline data URL
//	https://exporter.local/scene/42.png    remote raster
//	file:///var/snapshots/base.png         local file URL
//	snapshots/base.png                     local path (relative to Loader.BaseDir)
//
// [Loader.Load] returns the undecoded bytes as a [Raw] so that callers can
// pass the original encoding through untouched. PNG, JPEG, GIF, WebP, BMP
// and TIFF are decoded.
package raster

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	apperr "github.com/matzehuels/snapcomp/pkg/errors"
)

// Raw is an encoded raster as loaded from its source.
type Raw struct {
	Source    string // source the bytes were loaded from
	MediaType string // e.g. "image/png"; may be empty until decoded
	Data      []byte
}

// Decode decodes the raster. The returned format name is the one
// registered with the image package ("png", "jpeg", ...).
func (r Raw) Decode() (image.Image, string, error) {
	if len(r.Data) == 0 {
		return nil, "", apperr.New(apperr.ErrCodeInvalidSource, "empty raster from %s", r.displaySource())
	}
	img, format, err := image.Decode(bytes.NewReader(r.Data))
	if err != nil {
		return nil, "", apperr.Wrap(apperr.ErrCodeInvalidSource, err, "decode raster from %s", r.displaySource())
	}
	if img.Bounds().Empty() {
		return nil, "", apperr.New(apperr.ErrCodeInvalidSource, "raster from %s has no pixels", r.displaySource())
	}
	return img, format, nil
}

// DecodeConfig reads only the raster header.
func (r Raw) DecodeConfig() (image.Config, string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(r.Data))
	if err != nil {
		return image.Config{}, "", apperr.Wrap(apperr.ErrCodeInvalidSource, err, "decode raster header from %s", r.displaySource())
	}
	return cfg, format, nil
}

// displaySource keeps data URLs out of error messages.
func (r Raw) displaySource() string {
	if len(r.Source) > 64 {
		return r.Source[:61] + "..."
	}
	if r.Source == "" {
		return "<inline>"
	}
	return r.Source
}

// MediaTypeForFormat maps an image package format name to a media type.
func MediaTypeForFormat(format string) string {
	switch format {
	case "":
		return ""
	case "jpeg":
		return "image/jpeg"
	default:
		return "image/" + format
	}
}

// ToRGBA returns img as an *image.RGBA anchored at the origin, copying
// only when needed.
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// Digest returns a SHA-256 hex digest of the decoded pixels and size.
// Two images with identical RGBA pixels share a digest regardless of how
// they were encoded.
func Digest(img image.Image) string {
	rgba := ToRGBA(img)
	h := sha256.New()
	b := rgba.Bounds()
	var dims [8]byte
	binary.BigEndian.PutUint32(dims[:4], uint32(b.Dx()))
	binary.BigEndian.PutUint32(dims[4:], uint32(b.Dy()))
	h.Write(dims[:])
	rowLen := b.Dx() * 4
	for y := 0; y < b.Dy(); y++ {
		off := y * rgba.Stride
		h.Write(rgba.Pix[off : off+rowLen])
	}
	return hex.EncodeToString(h.Sum(nil))
}

