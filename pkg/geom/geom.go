package geom

import (
	"fmt"
	"image"
	"math"
)

// Bounds is the bounding box of the exported selection in document units.
type Bounds struct {
	X      float64 `json:"x" toml:"x"`
	Y      float64 `json:"y" toml:"y"`
	Width  float64 `json:"width" toml:"width"`
	Height float64 `json:"height" toml:"height"`
}

// Validate reports an error if the bounds have no area or are not finite.
func (b Bounds) Validate() error {
	for _, v := range []float64{b.X, b.Y, b.Width, b.Height} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("bounds must be finite: %+v", b)
		}
	}
	if b.Width <= 0 || b.Height <= 0 {
		return fmt.Errorf("bounds must have positive size: width=%g height=%g", b.Width, b.Height)
	}
	return nil
}

// Region is a capturable shape in document units.
type Region struct {
	ID string  `json:"id" toml:"id"`
	X  float64 `json:"x" toml:"x"`
	Y  float64 `json:"y" toml:"y"`
	W  float64 `json:"w" toml:"w"`
	H  float64 `json:"h" toml:"h"`
}

// Rect is a rectangle in raster pixel space. Coordinates are fractional;
// the draw step resamples rather than rounding them away.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Empty reports whether the rectangle covers no area.
func (r Rect) Empty() bool {
	return !(r.W > 0) || !(r.H > 0)
}

// Bounds returns the smallest integer rectangle containing r.
func (r Rect) Bounds() image.Rectangle {
	return image.Rect(
		int(math.Floor(r.X)),
		int(math.Floor(r.Y)),
		int(math.Ceil(r.X+r.W)),
		int(math.Ceil(r.Y+r.H)),
	)
}

// String formats the rectangle for logs.
func (r Rect) String() string {
	return fmt.Sprintf("{x:%g y:%g w:%g h:%g}", r.X, r.Y, r.W, r.H)
}

// ScaleFactor derives the pixels-per-unit ratio of a raster rendered from
// bounds padded by padding on every side.
//
// It returns 0 when the padded width is not positive; callers validate
// bounds and padding before mapping.
func ScaleFactor(b Bounds, padding float64, rasterWidth int) float64 {
	logical := b.Width + 2*padding
	if !(logical > 0) {
		return 0
	}
	return float64(rasterWidth) / logical
}

// Mapper maps document-space regions into one raster's pixel grid.
// The zero value maps everything to the origin with zero size.
type Mapper struct {
	Bounds  Bounds
	Padding float64
	Scale   float64
}

// NewMapper computes the scale factor once for a compositing pass.
func NewMapper(b Bounds, padding float64, rasterWidth int) Mapper {
	return Mapper{
		Bounds:  b,
		Padding: padding,
		Scale:   ScaleFactor(b, padding, rasterWidth),
	}
}

// Map returns the pixel rectangle covered by r.
func (m Mapper) Map(r Region) Rect {
	return Rect{
		X: (r.X - m.Bounds.X + m.Padding) * m.Scale,
		Y: (r.Y - m.Bounds.Y + m.Padding) * m.Scale,
		W: r.W * m.Scale,
		H: r.H * m.Scale,
	}
}

// SkewY returns the relative difference between the mapper's scale and the
// scale implied by rasterHeight. Zero means the raster has the expected
// aspect ratio.
func (m Mapper) SkewY(rasterHeight int) float64 {
	logical := m.Bounds.Height + 2*m.Padding
	if !(logical > 0) || !(m.Scale > 0) {
		return 0
	}
	sy := float64(rasterHeight) / logical
	return math.Abs(sy-m.Scale) / m.Scale
}
