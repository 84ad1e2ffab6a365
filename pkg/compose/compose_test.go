package compose

import (
	"image"
	"image/color"
	"image/draw"
	"testing"

	xdraw "golang.org/x/image/draw"

	"github.com/matzehuels/snapcomp/pkg/geom"
)

var (
	white       = color.RGBA{255, 255, 255, 255}
	red         = color.RGBA{255, 0, 0, 255}
	green       = color.RGBA{0, 255, 0, 255}
	blue        = color.RGBA{0, 0, 255, 255}
	transparent = color.RGBA{}
)

func fill(r image.Rectangle, c color.Color) *image.RGBA {
	img := image.NewRGBA(r)
	draw.Draw(img, r, image.NewUniform(c), image.Point{}, draw.Src)
	return img
}

func assertPixel(t *testing.T, img image.Image, x, y int, want color.RGBA) {
	t.Helper()
	got := color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
	if got != want {
		t.Errorf("pixel (%d,%d) = %v, want %v", x, y, got, want)
	}
}

func TestComposeLayerOrder(t *testing.T) {
	// 200x100 canvas with 10 units of padding rendered at 220x120.
	base := fill(image.Rect(0, 0, 220, 120), white)
	m := geom.NewMapper(geom.Bounds{Width: 200, Height: 100}, 10, base.Bounds().Dx())
	rect := m.Map(geom.Region{ID: "a", X: 50, Y: 20, W: 30, H: 30})

	// Snapshot captured at a different native resolution.
	snap := fill(image.Rect(0, 0, 90, 90), red)

	// Overlay shape sits on top of the region's lower right corner.
	overlay := fill(image.Rect(0, 0, 220, 120), transparent)
	draw.Draw(overlay, image.Rect(80, 50, 100, 70), image.NewUniform(blue), image.Point{}, draw.Src)

	out := Compose(base, []Placement{{ID: "a", Rect: rect, Image: snap}}, overlay)

	if out.Bounds() != base.Bounds() {
		t.Fatalf("bounds = %v, want %v", out.Bounds(), base.Bounds())
	}
	assertPixel(t, out, 5, 5, white)
	assertPixel(t, out, 150, 90, white)
	assertPixel(t, out, 59, 35, white) // just left of the mapped rect

	// Snapshot inside its rect, overlay on top of it and beyond it.
	assertPixel(t, out, 65, 35, red)
	assertPixel(t, out, 85, 55, blue)
	assertPixel(t, out, 95, 65, blue)
}

func TestComposeScaledPlacement(t *testing.T) {
	base := fill(image.Rect(0, 0, 440, 240), white)
	m := geom.NewMapper(geom.Bounds{Width: 200, Height: 100}, 10, base.Bounds().Dx())
	rect := m.Map(geom.Region{ID: "a", X: 50, Y: 20, W: 30, H: 30})

	out := Compose(base, []Placement{{Rect: rect, Image: fill(image.Rect(0, 0, 30, 30), red)}}, nil)

	assertPixel(t, out, 121, 61, red)
	assertPixel(t, out, 178, 118, red)
	assertPixel(t, out, 119, 90, white)
	assertPixel(t, out, 181, 90, white)
	assertPixel(t, out, 150, 181, white)
}

func TestComposeNoLayers(t *testing.T) {
	base := fill(image.Rect(0, 0, 10, 10), white)
	if out := Compose(base, nil, nil); out != image.Image(base) {
		t.Error("Compose with no layers should return base unchanged")
	}
}

func TestComposeOverlayOnly(t *testing.T) {
	base := fill(image.Rect(0, 0, 20, 20), white)
	overlay := fill(image.Rect(0, 0, 20, 20), transparent)
	overlay.Set(3, 3, blue)

	out := Compose(base, nil, overlay)
	assertPixel(t, out, 3, 3, blue)
	assertPixel(t, out, 10, 10, white)
	if base.At(3, 3) != color.Color(white) {
		t.Error("base raster must not be mutated")
	}
}

func TestComposeOverlayStretched(t *testing.T) {
	base := fill(image.Rect(0, 0, 40, 20), white)
	overlay := fill(image.Rect(0, 0, 4, 2), transparent)
	overlay.Set(3, 1, blue)

	out := Compose(base, nil, overlay, WithInterpolator(xdraw.NearestNeighbor))
	assertPixel(t, out, 35, 15, blue)
	assertPixel(t, out, 39, 19, blue)
	assertPixel(t, out, 29, 15, white)
	assertPixel(t, out, 35, 9, white)
}

func TestComposeLaterPlacementWins(t *testing.T) {
	base := fill(image.Rect(0, 0, 50, 50), white)
	layers := []Placement{
		{ID: "a", Rect: geom.Rect{X: 0, Y: 0, W: 30, H: 30}, Image: fill(image.Rect(0, 0, 3, 3), red)},
		{ID: "b", Rect: geom.Rect{X: 20, Y: 20, W: 30, H: 30}, Image: fill(image.Rect(0, 0, 3, 3), green)},
	}
	out := Compose(base, layers, nil, WithInterpolator(xdraw.NearestNeighbor))
	assertPixel(t, out, 10, 10, red)
	assertPixel(t, out, 25, 25, green)
	assertPixel(t, out, 45, 45, green)
}

func TestComposeClipsAndSkips(t *testing.T) {
	base := fill(image.Rect(0, 0, 20, 20), white)
	layers := []Placement{
		{ID: "off", Rect: geom.Rect{X: -10, Y: -10, W: 15, H: 15}, Image: fill(image.Rect(0, 0, 5, 5), red)},
		{ID: "outside", Rect: geom.Rect{X: 100, Y: 100, W: 10, H: 10}, Image: fill(image.Rect(0, 0, 5, 5), green)},
		{ID: "adjacent", Rect: geom.Rect{X: 20, Y: 15, W: 5, H: 5}, Image: fill(image.Rect(0, 0, 5, 5), green)},
		{ID: "zero", Rect: geom.Rect{X: 5, Y: 5, W: 0, H: 10}, Image: fill(image.Rect(0, 0, 5, 5), green)},
		{ID: "nil", Rect: geom.Rect{X: 5, Y: 5, W: 5, H: 5}},
		{ID: "empty", Rect: geom.Rect{X: 5, Y: 5, W: 5, H: 5}, Image: image.NewRGBA(image.Rectangle{})},
	}
	out := Compose(base, layers, nil, WithInterpolator(xdraw.NearestNeighbor))
	assertPixel(t, out, 2, 2, red)
	assertPixel(t, out, 7, 7, white)
	assertPixel(t, out, 19, 19, white)
	assertPixel(t, out, 19, 17, white)
}

func TestComposeOffsetSources(t *testing.T) {
	// Decoders and sub-images may report non-zero origins.
	base := fill(image.Rect(100, 100, 120, 110), white)
	snap := fill(image.Rect(7, 7, 9, 9), red)

	out := Compose(base, []Placement{{Rect: geom.Rect{X: 0, Y: 0, W: 10, H: 10}, Image: snap}}, nil,
		WithInterpolator(xdraw.NearestNeighbor))
	if out.Bounds() != image.Rect(0, 0, 20, 10) {
		t.Fatalf("bounds = %v, want (0,0)-(20,10)", out.Bounds())
	}
	assertPixel(t, out, 5, 5, red)
	assertPixel(t, out, 15, 5, white)
}
