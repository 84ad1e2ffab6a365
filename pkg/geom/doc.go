// Package geom maps document-space geometry into raster pixel space.
//
// # Overview
//
// A compositing pass starts from a base raster that an external exporter
// rendered from a selection of shapes. The exporter pads the selection's
// bounding box by a fixed document-unit margin and then applies its own
// export scale and device pixel ratio, neither of which is visible here.
// This package recovers the effective pixels-per-unit ratio from the
// raster's actual width and maps capturable regions onto the raster grid.
//
//	m := geom.NewMapper(bounds, padding, base.Bounds().Dx())
//	rect := m.Map(region) // pixel-space rectangle within the base raster
//
// # Scale
//
// [ScaleFactor] is derived, never assumed:
//
//	scale = rasterWidth / (bounds.Width + 2*padding)
//
// The same scale is applied on both axes. Non-uniform aspect is not
// supported; [Mapper.SkewY] reports how far the raster height disagrees so
// callers can log it.
//
// # Degenerate Input
//
// [Mapper.Map] never fails. Regions outside the bounds or with zero size
// map to rectangles that are out of range or empty; the draw step clips
// them against the surface.
package geom
