// Package scene describes the selection being exported and the exporter
// that rasterizes it.
//
// A selection is an ordered list of shapes. Capturable shapes host live
// content (embedded pages, widgets) that a vector renderer cannot draw; the
// exporter leaves a blank placeholder where they sit and the compositor
// fills it with a captured snapshot. Every other shape is non-capturable
// and is drawn by the exporter.
//
// The exporter is used twice per export. Once for the base raster, with an
// opaque background and placeholders for capturable shapes, and once for
// the overlay, with a transparent background and only the non-capturable
// shapes.
package scene

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"strconv"
	"strings"

	"github.com/matzehuels/snapcomp/pkg/capture"
	apperr "github.com/matzehuels/snapcomp/pkg/errors"
	"github.com/matzehuels/snapcomp/pkg/geom"
)

// Shape types understood by the vector exporter. Capturable shapes are
// usually TypeEmbed, but any type can be marked capturable.
const (
	TypeRect    = "rect"
	TypeEllipse = "ellipse"
	TypeLine    = "line"
	TypeText    = "text"
	TypeEmbed   = "embed"
)

// Shape is one selected shape in document units.
type Shape struct {
	ID         string  `json:"id" toml:"id"`
	Type       string  `json:"type,omitempty" toml:"type,omitempty"`
	Capturable bool    `json:"capturable,omitempty" toml:"capturable,omitempty"`
	X          float64 `json:"x" toml:"x"`
	Y          float64 `json:"y" toml:"y"`
	W          float64 `json:"w" toml:"w"`
	H          float64 `json:"h" toml:"h"`

	Fill        string  `json:"fill,omitempty" toml:"fill,omitempty"`
	Stroke      string  `json:"stroke,omitempty" toml:"stroke,omitempty"`
	StrokeWidth float64 `json:"stroke_width,omitempty" toml:"stroke_width,omitempty"`
	Opacity     float64 `json:"opacity,omitempty" toml:"opacity,omitempty"` // 0 means opaque
	Text        string  `json:"text,omitempty" toml:"text,omitempty"`
}

// Region returns the shape's capturable region.
func (s Shape) Region() geom.Region {
	return geom.Region{ID: s.ID, X: s.X, Y: s.Y, W: s.W, H: s.H}
}

// Selection is an ordered list of shapes, back to front.
type Selection []Shape

// Split partitions the selection into capturable regions and the remaining
// shapes, preserving order within each.
func (sel Selection) Split() ([]geom.Region, Selection) {
	var regions []geom.Region
	var others Selection
	for _, s := range sel {
		if s.Capturable {
			regions = append(regions, s.Region())
		} else {
			others = append(others, s)
		}
	}
	return regions, others
}

// Regions returns the capturable regions in selection order.
func (sel Selection) Regions() []geom.Region {
	regions, _ := sel.Split()
	return regions
}

// NonCapturable returns the shapes the exporter draws.
func (sel Selection) NonCapturable() Selection {
	_, others := sel.Split()
	return others
}

// Bounds returns the smallest box containing every shape.
func (sel Selection) Bounds() (geom.Bounds, bool) {
	if len(sel) == 0 {
		return geom.Bounds{}, false
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, s := range sel {
		x0, x1 := s.X, s.X+s.W
		y0, y1 := s.Y, s.Y+s.H
		minX, maxX = math.Min(minX, math.Min(x0, x1)), math.Max(maxX, math.Max(x0, x1))
		minY, maxY = math.Min(minY, math.Min(y0, y1)), math.Max(maxY, math.Max(y0, y1))
	}
	return geom.Bounds{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}, true
}

// Validate checks shape geometry and capturable ids. Capturable ids must be
// unique after "shape:" normalization.
func (sel Selection) Validate() error {
	seen := make(map[string]bool)
	for i, s := range sel {
		for _, v := range []float64{s.X, s.Y, s.W, s.H} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return apperr.New(apperr.ErrCodeInvalidInput, "shape %d (%s) has non-finite geometry", i, s.ID)
			}
		}
		if !s.Capturable {
			continue
		}
		if s.W < 0 || s.H < 0 {
			return apperr.New(apperr.ErrCodeInvalidRegion, "capturable shape %s has negative size", s.ID)
		}
		id := capture.NormalizeID(s.ID)
		if err := apperr.ValidateRegionID(id); err != nil {
			return fmt.Errorf("shape %d: %w", i, err)
		}
		if seen[id] {
			return apperr.New(apperr.ErrCodeInvalidRegion, "duplicate capturable shape id %q", s.ID)
		}
		seen[id] = true
	}
	return nil
}

// RenderOptions controls one exporter pass.
type RenderOptions struct {
	// TransparentBackground leaves the background unpainted.
	TransparentBackground bool

	// Scale is pixels per document unit. Zero means 1.
	Scale float64
}

// PixelSize returns the raster size an exporter produces for bounds padded
// by padding on every side.
func (o RenderOptions) PixelSize(b geom.Bounds, padding float64) image.Point {
	s := o.Scale
	if s <= 0 {
		s = 1
	}
	return image.Pt(
		int(math.Round((b.Width+2*padding)*s)),
		int(math.Round((b.Height+2*padding)*s)),
	)
}

// Exporter rasterizes shapes within padded bounds.
type Exporter interface {
	Render(ctx context.Context, shapes Selection, bounds geom.Bounds, padding float64, opts RenderOptions) (image.Image, error)
}

// ExporterFunc adapts a function to [Exporter].
type ExporterFunc func(ctx context.Context, shapes Selection, bounds geom.Bounds, padding float64, opts RenderOptions) (image.Image, error)

// Render calls f.
func (f ExporterFunc) Render(ctx context.Context, shapes Selection, bounds geom.Bounds, padding float64, opts RenderOptions) (image.Image, error) {
	return f(ctx, shapes, bounds, padding, opts)
}

// ParseColor parses "#rgb", "#rgba", "#rrggbb" and "#rrggbbaa" colors and
// the names "black", "white" and "transparent". Empty and "none" report
// ok=false, meaning the paint is absent.
func ParseColor(s string) (color.NRGBA, bool, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "", "none":
		return color.NRGBA{}, false, nil
	case "transparent":
		return color.NRGBA{}, true, nil
	case "black":
		return color.NRGBA{A: 255}, true, nil
	case "white":
		return color.NRGBA{255, 255, 255, 255}, true, nil
	}
	hex, ok := strings.CutPrefix(s, "#")
	if !ok {
		return color.NRGBA{}, false, fmt.Errorf("unsupported color %q", s)
	}
	if len(hex) == 3 || len(hex) == 4 {
		var b strings.Builder
		for _, r := range hex {
			b.WriteRune(r)
			b.WriteRune(r)
		}
		hex = b.String()
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	if len(hex) != 8 {
		return color.NRGBA{}, false, fmt.Errorf("unsupported color %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, false, fmt.Errorf("unsupported color %q", s)
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, true, nil
}
