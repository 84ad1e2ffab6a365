// Package vector rasterizes shape descriptors with a 2D vector canvas.
//
// It is a self-contained stand-in for a host application's scene exporter:
// rectangles, ellipses, lines and text are drawn from their paint
// properties, and capturable shapes are drawn as blank placeholders.
package vector

import (
	"context"
	"image"
	"image/color"

	"github.com/fogleman/gg"

	apperr "github.com/matzehuels/snapcomp/pkg/errors"
	"github.com/matzehuels/snapcomp/pkg/geom"
	"github.com/matzehuels/snapcomp/pkg/scene"
)

// Default paints.
var (
	DefaultBackground  = color.NRGBA{255, 255, 255, 255}
	DefaultPlaceholder = color.NRGBA{255, 255, 255, 255}
	DefaultStroke      = color.NRGBA{0, 0, 0, 255}
)

// Exporter draws shapes onto a new canvas per call.
// The zero value uses the default paints.
type Exporter struct {
	Background  color.Color // opaque passes only
	Placeholder color.Color // fill for capturable shapes
}

// New returns an exporter with default paints.
func New() *Exporter {
	return &Exporter{}
}

// Render draws shapes back to front. With TransparentBackground the canvas
// starts fully transparent.
func (e *Exporter) Render(ctx context.Context, shapes scene.Selection, bounds geom.Bounds, padding float64, opts scene.RenderOptions) (image.Image, error) {
	if err := bounds.Validate(); err != nil {
		return nil, apperr.Wrap(apperr.ErrCodeInvalidInput, err, "render scene")
	}
	size := opts.PixelSize(bounds, padding)
	if size.X <= 0 || size.Y <= 0 {
		return nil, apperr.New(apperr.ErrCodeInvalidInput, "render scene: empty canvas %v", size)
	}
	scale := opts.Scale
	if scale <= 0 {
		scale = 1
	}

	dc := gg.NewContext(size.X, size.Y)
	if !opts.TransparentBackground {
		dc.SetColor(orDefault(e.Background, DefaultBackground))
		dc.Clear()
	}
	dc.Scale(scale, scale)
	dc.Translate(padding-bounds.X, padding-bounds.Y)

	for _, s := range shapes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := e.draw(dc, s, scale); err != nil {
			return nil, apperr.Wrap(apperr.ErrCodeInvalidInput, err, "shape %s", s.ID)
		}
	}
	return dc.Image(), nil
}

// draw renders one shape in document units. Line widths are set in device
// pixels, so they are multiplied by scale.
func (e *Exporter) draw(dc *gg.Context, s scene.Shape, scale float64) error {
	if s.Capturable {
		dc.DrawRectangle(s.X, s.Y, s.W, s.H)
		dc.SetColor(orDefault(e.Placeholder, DefaultPlaceholder))
		dc.Fill()
		return nil
	}

	fill, hasFill, err := scene.ParseColor(s.Fill)
	if err != nil {
		return err
	}
	stroke, hasStroke, err := scene.ParseColor(s.Stroke)
	if err != nil {
		return err
	}
	fill, stroke = withOpacity(fill, s.Opacity), withOpacity(stroke, s.Opacity)
	lineWidth := s.StrokeWidth
	if lineWidth <= 0 {
		lineWidth = 1
	}
	lineWidth *= scale

	switch s.Type {
	case scene.TypeLine:
		if !hasStroke {
			stroke = withOpacity(DefaultStroke, s.Opacity)
		}
		dc.SetLineWidth(lineWidth)
		dc.SetColor(stroke)
		dc.DrawLine(s.X, s.Y, s.X+s.W, s.Y+s.H)
		dc.Stroke()
		return nil
	case scene.TypeText:
		if !hasFill {
			fill = withOpacity(DefaultStroke, s.Opacity)
		}
		dc.SetColor(fill)
		dc.DrawStringWrapped(s.Text, s.X+s.W/2, s.Y+s.H/2, 0.5, 0.5, s.W, 1.2, gg.AlignCenter)
		return nil
	case scene.TypeEllipse:
		dc.DrawEllipse(s.X+s.W/2, s.Y+s.H/2, s.W/2, s.H/2)
	default:
		dc.DrawRectangle(s.X, s.Y, s.W, s.H)
	}

	if hasFill {
		dc.SetColor(fill)
		if hasStroke {
			dc.FillPreserve()
		} else {
			dc.Fill()
		}
	}
	if hasStroke {
		dc.SetLineWidth(lineWidth)
		dc.SetColor(stroke)
		dc.Stroke()
	}
	dc.ClearPath()
	return nil
}

func withOpacity(c color.NRGBA, opacity float64) color.NRGBA {
	if opacity <= 0 || opacity >= 1 {
		return c
	}
	c.A = uint8(float64(c.A)*opacity + 0.5)
	return c
}

func orDefault(c color.Color, def color.Color) color.Color {
	if c == nil {
		return def
	}
	return c
}
