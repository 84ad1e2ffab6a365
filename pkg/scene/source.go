package scene

import (
	"context"
	"image"

	"github.com/matzehuels/snapcomp/pkg/geom"
	"github.com/matzehuels/snapcomp/pkg/raster"
)

// SourceExporter returns a raster rendered ahead of time by an external
// exporter. Shapes, bounds and options are ignored; the caller is trusted
// to have rendered Source from the same selection.
type SourceExporter struct {
	Loader *raster.Loader
	Source string
}

// Render loads and decodes Source.
func (e SourceExporter) Render(ctx context.Context, _ Selection, _ geom.Bounds, _ float64, _ RenderOptions) (image.Image, error) {
	l := e.Loader
	if l == nil {
		l = &raster.Loader{}
	}
	img, _, err := l.LoadImage(ctx, e.Source)
	if err != nil {
		return nil, err
	}
	return img, nil
}
