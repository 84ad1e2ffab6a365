// Package compose flattens a base raster, captured region snapshots and a
// transparent overlay into one surface.
//
// Layers are drawn in a fixed order:
//
//  1. the base raster at the origin, unscaled
//  2. each placement, resampled from its native size into its pixel rect
//  3. the overlay, stretched to cover the whole surface
//
// Layer 3 restores non-capturable shapes that layer 2 painted over. Every
// non-capturable shape therefore ends up in front of every captured region,
// including shapes that were originally behind one.
package compose

import (
	"image"
	"image/draw"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/matzehuels/snapcomp/pkg/geom"
)

// Placement is one captured snapshot and the pixel rect it covers.
type Placement struct {
	ID    string
	Rect  geom.Rect
	Image image.Image
}

// Option configures [Compose].
type Option func(*options)

type options struct {
	interp xdraw.Interpolator
}

// WithInterpolator sets the resampler for placements and overlays.
// The default is [xdraw.BiLinear].
func WithInterpolator(i xdraw.Interpolator) Option {
	return func(o *options) {
		if i != nil {
			o.interp = i
		}
	}
}

// Compose draws base, then layers in order, then overlay onto a new surface
// with the base raster's dimensions. Later layers win where they overlap.
// Placements with no pixels or an empty rect are skipped, and anything
// outside the surface is clipped.
//
// When layers is empty and overlay is nil, base is returned as is.
func Compose(base image.Image, layers []Placement, overlay image.Image, opts ...Option) image.Image {
	if len(layers) == 0 && overlay == nil {
		return base
	}
	o := options{interp: xdraw.BiLinear}
	for _, opt := range opts {
		opt(&o)
	}

	bb := base.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bb.Dx(), bb.Dy()))
	draw.Draw(dst, dst.Bounds(), base, bb.Min, draw.Src)

	for _, l := range layers {
		drawPlacement(dst, l, o.interp)
	}
	if overlay != nil {
		drawOverlay(dst, overlay, o.interp)
	}
	return dst
}

func drawPlacement(dst *image.RGBA, p Placement, interp xdraw.Interpolator) {
	if p.Image == nil || p.Rect.Empty() || !p.Rect.Bounds().Overlaps(dst.Bounds()) {
		return
	}
	sr := p.Image.Bounds()
	if sr.Empty() {
		return
	}
	sx := p.Rect.W / float64(sr.Dx())
	sy := p.Rect.H / float64(sr.Dy())
	// Maps source pixel space onto the fractional destination rect.
	s2d := f64.Aff3{
		sx, 0, p.Rect.X - float64(sr.Min.X)*sx,
		0, sy, p.Rect.Y - float64(sr.Min.Y)*sy,
	}
	interp.Transform(dst, s2d, p.Image, sr, xdraw.Over, nil)
}

func drawOverlay(dst *image.RGBA, overlay image.Image, interp xdraw.Interpolator) {
	sr := overlay.Bounds()
	if sr.Empty() {
		return
	}
	if sr.Size() == dst.Bounds().Size() {
		draw.Draw(dst, dst.Bounds(), overlay, sr.Min, draw.Over)
		return
	}
	interp.Scale(dst, dst.Bounds(), overlay, sr, xdraw.Over, nil)
}
