package pipeline

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matzehuels/snapcomp/pkg/cache"
	"github.com/matzehuels/snapcomp/pkg/capture"
	"github.com/matzehuels/snapcomp/pkg/encode"
	apperr "github.com/matzehuels/snapcomp/pkg/errors"
	"github.com/matzehuels/snapcomp/pkg/geom"
	"github.com/matzehuels/snapcomp/pkg/scene"
)

var (
	red   = color.RGBA{255, 0, 0, 255}
	green = color.RGBA{0, 255, 0, 255}
	blue  = color.RGBA{0, 0, 255, 255}

	// 200x100 document units at padding 10 on a 220x120 base: scale 1.
	docBounds = geom.Bounds{X: 0, Y: 0, Width: 200, Height: 100}
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	return img
}

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

func pngURL(t *testing.T, img image.Image) string {
	t.Helper()
	return encode.DataURL("image/png", pngBytes(t, img))
}

func decodeResult(t *testing.T, r *Result) image.Image {
	t.Helper()
	img, _, err := image.Decode(bytes.NewReader(r.Data))
	if err != nil {
		t.Fatalf("decode result: %v", err)
	}
	return img
}

func pixel(img image.Image, x, y int) color.RGBA {
	return color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
}

// greenStripe renders a transparent overlay with an opaque green band
// across the bottom 20 pixels.
func greenStripe(calls *atomic.Int32) scene.Exporter {
	return scene.ExporterFunc(func(ctx context.Context, shapes scene.Selection, b geom.Bounds, padding float64, opts scene.RenderOptions) (image.Image, error) {
		if calls != nil {
			calls.Add(1)
		}
		size := opts.PixelSize(b, padding)
		img := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
		draw.Draw(img, image.Rect(0, size.Y-20, size.X, size.Y), &image.Uniform{C: green}, image.Point{}, draw.Src)
		return img, nil
	})
}

func scenarioSelection() scene.Selection {
	return scene.Selection{
		{ID: "label", Type: scene.TypeText, X: 0, Y: 80, W: 200, H: 20, Text: "caption"},
		{ID: "shape:a", Type: scene.TypeEmbed, Capturable: true, X: 50, Y: 20, W: 30, H: 30},
	}
}

func newRunner(p capture.Provider, e scene.Exporter) *Runner {
	r := NewRunner(nil, nil, nil)
	r.Provider = p
	r.Exporter = e
	return r
}

func TestExecutePassThrough(t *testing.T) {
	base := pngBytes(t, solid(220, 120, red))
	encoded := base64.StdEncoding.EncodeToString(base)

	tests := []struct {
		name string
		src  string
	}{
		{"declared png", encode.DataURL("image/png", base)},
		{"no media type", "data:;base64," + encoded},
		{"octet stream", "data:application/octet-stream;base64," + encoded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			r := newRunner(capture.Static{}, greenStripe(&calls))

			res, err := r.Execute(context.Background(), Options{
				Base:    tt.src,
				Bounds:  docBounds,
				Padding: 10,
				Selection: scene.Selection{
					{ID: "box", Type: scene.TypeRect, X: 0, Y: 0, W: 200, H: 100, Fill: "#000"},
				},
			})
			if err != nil {
				t.Fatalf("Execute() error: %v", err)
			}
			if !res.PassThrough {
				t.Error("PassThrough = false, want true")
			}
			if !bytes.Equal(res.Data, base) {
				t.Error("pass-through data differs from base bytes")
			}
			if res.MediaType != "image/png" {
				t.Errorf("MediaType = %q, want image/png", res.MediaType)
			}
			if res.Width != 220 || res.Height != 120 {
				t.Errorf("size = %dx%d, want 220x120", res.Width, res.Height)
			}
			if n := calls.Load(); n != 0 {
				t.Errorf("exporter called %d times, want 0", n)
			}
		})
	}
}

func TestExecuteComposite(t *testing.T) {
	r := newRunner(capture.Static{"a": solid(30, 30, blue)}, greenStripe(nil))

	res, err := r.Execute(context.Background(), Options{
		Base:      pngURL(t, solid(220, 120, red)),
		Bounds:    docBounds,
		Padding:   10,
		Selection: scenarioSelection(),
		Format:    "png",
	})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if res.PassThrough {
		t.Fatal("PassThrough = true, want false")
	}
	if res.Scale != 1 {
		t.Errorf("Scale = %v, want 1", res.Scale)
	}
	if !res.OverlayApplied {
		t.Error("OverlayApplied = false")
	}
	if res.Stats.Captured != 1 || res.Stats.Failed != 0 {
		t.Errorf("stats = %+v, want 1 captured", res.Stats)
	}
	want := geom.Rect{X: 60, Y: 30, W: 30, H: 30}
	if len(res.Regions) != 1 || res.Regions[0].Rect != want || !res.Regions[0].Captured {
		t.Fatalf("regions = %+v, want one captured at %v", res.Regions, want)
	}

	img := decodeResult(t, res)
	if got := img.Bounds().Size(); got != image.Pt(220, 120) {
		t.Fatalf("output size = %v, want 220x120", got)
	}
	tests := []struct {
		name string
		x, y int
		want color.RGBA
	}{
		{"base outside region", 5, 5, red},
		{"region interior", 70, 40, blue},
		{"region top-left", 60, 30, blue},
		{"just outside region", 90, 40, red},
		{"overlay on top", 70, 110, green},
	}
	for _, tt := range tests {
		if got := pixel(img, tt.x, tt.y); got != tt.want {
			t.Errorf("%s: pixel (%d,%d) = %v, want %v", tt.name, tt.x, tt.y, got, tt.want)
		}
	}
}

func TestExecuteScaledBase(t *testing.T) {
	r := newRunner(capture.Static{"a": solid(10, 10, blue)}, nil)

	res, err := r.Execute(context.Background(), Options{
		Base:      pngURL(t, solid(440, 240, red)),
		Bounds:    docBounds,
		Padding:   10,
		Selection: scenarioSelection(),
		Format:    "png",
	})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if res.Scale != 2 {
		t.Errorf("Scale = %v, want 2", res.Scale)
	}
	img := decodeResult(t, res)
	if got := pixel(img, 150, 90); got != blue {
		t.Errorf("scaled region pixel = %v, want blue", got)
	}
	if got := pixel(img, 115, 55); got != red {
		t.Errorf("pixel left of scaled region = %v, want red", got)
	}
	if res.OverlayApplied {
		t.Error("OverlayApplied = true without an exporter")
	}
}

func TestExecuteAllCapturesFail(t *testing.T) {
	r := newRunner(nil, greenStripe(nil))

	res, err := r.Execute(context.Background(), Options{
		Base:      pngURL(t, solid(220, 120, red)),
		Bounds:    docBounds,
		Padding:   10,
		Selection: scenarioSelection(),
		Format:    "png",
	})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if res.Stats.Failed != 1 || res.Stats.Captured != 0 {
		t.Errorf("stats = %+v, want 1 failed", res.Stats)
	}
	if res.Regions[0].Captured || res.Regions[0].Error == "" {
		t.Errorf("region report = %+v, want failure with error", res.Regions[0])
	}
	img := decodeResult(t, res)
	if got := pixel(img, 70, 40); got != red {
		t.Errorf("failed region pixel = %v, want base red", got)
	}
	if got := pixel(img, 70, 110); got != green {
		t.Errorf("overlay pixel = %v, want green", got)
	}
}

func TestExecutePartialFailure(t *testing.T) {
	sel := scene.Selection{
		{ID: "a", Capturable: true, X: 0, Y: 0, W: 50, H: 50},
		{ID: "missing", Capturable: true, X: 60, Y: 0, W: 50, H: 50},
		{ID: "c", Capturable: true, X: 120, Y: 0, W: 50, H: 50},
	}
	r := newRunner(capture.Static{"a": solid(5, 5, blue), "c": solid(5, 5, green)}, nil)

	res, err := r.Execute(context.Background(), Options{
		Base:      pngURL(t, solid(220, 120, red)),
		Bounds:    docBounds,
		Padding:   10,
		Selection: sel,
		Format:    "png",
	})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	var ids []string
	for _, rep := range res.Regions {
		ids = append(ids, rep.ID)
	}
	if got := strings.Join(ids, ","); got != "a,missing,c" {
		t.Errorf("region order = %s, want a,missing,c", got)
	}
	if res.Stats.Captured != 2 || res.Stats.Failed != 1 {
		t.Errorf("stats = %+v, want 2 captured 1 failed", res.Stats)
	}
	img := decodeResult(t, res)
	for _, tt := range []struct {
		x, y int
		want color.RGBA
	}{
		{30, 30, blue},
		{90, 30, red},
		{150, 30, green},
	} {
		if got := pixel(img, tt.x, tt.y); got != tt.want {
			t.Errorf("pixel (%d,%d) = %v, want %v", tt.x, tt.y, got, tt.want)
		}
	}
}

func TestExecuteOverlayFailure(t *testing.T) {
	failing := scene.ExporterFunc(func(context.Context, scene.Selection, geom.Bounds, float64, scene.RenderOptions) (image.Image, error) {
		return nil, errors.New("exporter crashed")
	})
	r := newRunner(capture.Static{"a": solid(30, 30, blue)}, failing)

	res, err := r.Execute(context.Background(), Options{
		Base:      pngURL(t, solid(220, 120, red)),
		Bounds:    docBounds,
		Padding:   10,
		Selection: scenarioSelection(),
		Format:    "png",
	})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if res.OverlayApplied {
		t.Error("OverlayApplied = true, want false")
	}
	if !strings.Contains(res.OverlayError, "exporter crashed") {
		t.Errorf("OverlayError = %q", res.OverlayError)
	}
	img := decodeResult(t, res)
	if got := pixel(img, 70, 40); got != blue {
		t.Errorf("region pixel = %v, want blue", got)
	}
	if got := pixel(img, 70, 110); got != red {
		t.Errorf("pixel under missing overlay = %v, want red", got)
	}
}

func TestExecuteOverlaySkippedWithoutOtherShapes(t *testing.T) {
	var calls atomic.Int32
	r := newRunner(capture.Static{"a": solid(30, 30, blue)}, greenStripe(&calls))

	_, err := r.Execute(context.Background(), Options{
		Base:      pngURL(t, solid(220, 120, red)),
		Bounds:    docBounds,
		Padding:   10,
		Selection: scene.Selection{{ID: "a", Capturable: true, X: 50, Y: 20, W: 30, H: 30}},
	})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if n := calls.Load(); n != 0 {
		t.Errorf("exporter called %d times, want 0", n)
	}
}

func TestExecuteInlineSources(t *testing.T) {
	stripe := solid(220, 120, color.RGBA{})
	draw.Draw(stripe, image.Rect(0, 100, 220, 120), &image.Uniform{C: green}, image.Point{}, draw.Src)

	r := NewRunner(nil, nil, nil)
	res, err := r.Execute(context.Background(), Options{
		Base:      pngURL(t, solid(220, 120, red)),
		Bounds:    docBounds,
		Padding:   10,
		Selection: scenarioSelection(),
		Overlay:   pngURL(t, stripe),
		Snapshots: map[string]string{"a": pngURL(t, solid(30, 30, blue))},
		Format:    "png",
	})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	img := decodeResult(t, res)
	if got := pixel(img, 70, 40); got != blue {
		t.Errorf("inline snapshot pixel = %v, want blue", got)
	}
	if got := pixel(img, 70, 110); got != green {
		t.Errorf("inline overlay pixel = %v, want green", got)
	}
}

func TestExecuteDefaultsToJPEG(t *testing.T) {
	r := newRunner(capture.Static{"a": solid(30, 30, blue)}, nil)
	res, err := r.Execute(context.Background(), Options{
		Base:      pngURL(t, solid(220, 120, red)),
		Bounds:    docBounds,
		Padding:   10,
		Selection: scenarioSelection(),
	})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if res.MediaType != "image/jpeg" {
		t.Errorf("MediaType = %q, want image/jpeg", res.MediaType)
	}
	if !strings.HasPrefix(res.DataURL(), "data:image/jpeg;base64,") {
		t.Errorf("DataURL() prefix = %.30s", res.DataURL())
	}
	img := decodeResult(t, res)
	if got := img.Bounds().Size(); got != image.Pt(220, 120) {
		t.Errorf("output size = %v, want 220x120", got)
	}
}

func TestExecuteCache(t *testing.T) {
	mem := cache.NewMemoryCache()
	r := NewRunner(mem, nil, nil)
	r.Provider = capture.Static{"a": solid(30, 30, blue)}
	opts := Options{
		Base:      pngURL(t, solid(220, 120, red)),
		Bounds:    docBounds,
		Padding:   10,
		Selection: scenarioSelection(),
	}

	first, err := r.Execute(context.Background(), opts)
	if err != nil {
		t.Fatalf("first Execute() error: %v", err)
	}
	if first.CacheInfo.Hit {
		t.Error("first pass reported a cache hit")
	}
	if !strings.HasPrefix(first.CacheInfo.Key, "artifact:") {
		t.Errorf("cache key = %q", first.CacheInfo.Key)
	}

	second, err := r.Execute(context.Background(), opts)
	if err != nil {
		t.Fatalf("second Execute() error: %v", err)
	}
	if !second.CacheInfo.Hit || !bytes.Equal(first.Data, second.Data) {
		t.Error("second pass should be served from cache with identical bytes")
	}

	// A different snapshot changes the key.
	r.Provider = capture.Static{"a": solid(30, 30, green)}
	third, err := r.Execute(context.Background(), opts)
	if err != nil {
		t.Fatalf("third Execute() error: %v", err)
	}
	if third.CacheInfo.Hit || third.CacheInfo.Key == first.CacheInfo.Key {
		t.Error("changed snapshot should miss the cache")
	}

	opts.Refresh = true
	r.Provider = capture.Static{"a": solid(30, 30, blue)}
	fourth, err := r.Execute(context.Background(), opts)
	if err != nil {
		t.Fatalf("refresh Execute() error: %v", err)
	}
	if fourth.CacheInfo.Hit {
		t.Error("refresh should bypass the cache")
	}
}

func TestExecuteErrors(t *testing.T) {
	base := pngURL(t, solid(220, 120, red))
	sel := scenarioSelection()

	tests := []struct {
		name string
		opts Options
		code apperr.Code
	}{
		{"missing base", Options{Bounds: docBounds, Selection: sel}, apperr.ErrCodeInvalidInput},
		{"negative padding", Options{Base: base, Bounds: docBounds, Padding: -1, Selection: sel}, apperr.ErrCodeInvalidInput},
		{"zero bounds", Options{Base: base, Bounds: geom.Bounds{Width: 0, Height: 10}, Selection: sel}, apperr.ErrCodeInvalidInput},
		{"bad format", Options{Base: base, Bounds: docBounds, Selection: sel, Format: "gif"}, apperr.ErrCodeInvalidFormat},
		{"bad quality", Options{Base: base, Bounds: docBounds, Selection: sel, Quality: 101}, apperr.ErrCodeInvalidFormat},
		{"duplicate ids", Options{Base: base, Bounds: docBounds, Selection: scene.Selection{
			{ID: "a", Capturable: true, W: 1, H: 1},
			{ID: "shape:a", Capturable: true, W: 1, H: 1},
		}}, apperr.ErrCodeInvalidRegion},
		{"unreadable base", Options{Base: "data:image/png;base64,AAAA", Bounds: docBounds, Selection: sel}, apperr.ErrCodeBaseLoad},
		{"missing base file", Options{Base: "/nonexistent/base.png", Bounds: docBounds, Selection: sel}, apperr.ErrCodeBaseLoad},
	}

	r := newRunner(capture.Static{"a": solid(30, 30, blue)}, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Execute(context.Background(), tt.opts)
			if err == nil {
				t.Fatal("Execute() succeeded, want error")
			}
			if !apperr.Is(err, tt.code) {
				t.Errorf("error code = %q, want %q (%v)", apperr.GetCode(err), tt.code, err)
			}
		})
	}
}

func TestExecuteCancelledCapture(t *testing.T) {
	stuck := capture.Func(func(ctx context.Context, id string) (image.Image, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	r := newRunner(stuck, nil)

	res, err := r.Execute(context.Background(), Options{
		Base:           pngURL(t, solid(220, 120, red)),
		Bounds:         docBounds,
		Padding:        10,
		Selection:      scenarioSelection(),
		CaptureTimeout: Duration(20 * time.Millisecond),
		Format:         "png",
	})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if res.Stats.Failed != 1 {
		t.Errorf("Failed = %d, want 1", res.Stats.Failed)
	}
}

func TestExecuteRequestID(t *testing.T) {
	r := newRunner(capture.Static{"a": solid(30, 30, blue)}, nil)
	opts := Options{
		Base:      pngURL(t, solid(220, 120, red)),
		Bounds:    docBounds,
		Padding:   10,
		Selection: scenarioSelection(),
	}

	res, err := r.Execute(context.Background(), opts)
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if res.RequestID == "" {
		t.Error("RequestID should be generated")
	}

	opts.RequestID = "req-1"
	res, err = r.Execute(context.Background(), opts)
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if res.RequestID != "req-1" {
		t.Errorf("RequestID = %q, want req-1", res.RequestID)
	}
}

func TestPlan(t *testing.T) {
	r := NewRunner(nil, nil, nil)
	plan, err := r.Plan(context.Background(), Options{
		Base:      pngURL(t, solid(440, 240, red)),
		Bounds:    docBounds,
		Padding:   10,
		Selection: scenarioSelection(),
	})
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	if plan.Width != 440 || plan.Height != 240 || plan.Scale != 2 {
		t.Errorf("plan = %dx%d scale %v, want 440x240 scale 2", plan.Width, plan.Height, plan.Scale)
	}
	if plan.SkewY != 0 {
		t.Errorf("SkewY = %v, want 0", plan.SkewY)
	}
	want := geom.Rect{X: 120, Y: 60, W: 60, H: 60}
	if len(plan.Regions) != 1 || plan.Regions[0].Rect != want {
		t.Errorf("regions = %+v, want one at %v", plan.Regions, want)
	}
	if plan.OverlayShapes != 1 {
		t.Errorf("OverlayShapes = %d, want 1", plan.OverlayShapes)
	}
}

func TestOptionsDefaults(t *testing.T) {
	opts := Options{
		Base: "base.png",
		Selection: scene.Selection{
			{ID: "a", Capturable: true, X: 10, Y: 20, W: 30, H: 40},
			{ID: "b", X: 50, Y: 0, W: 10, H: 10},
		},
	}
	if err := opts.ValidateAndSetDefaults(); err != nil {
		t.Fatalf("ValidateAndSetDefaults() error: %v", err)
	}
	if opts.Format != string(DefaultFormat) || opts.Quality != DefaultQuality {
		t.Errorf("encode defaults = %s/%d", opts.Format, opts.Quality)
	}
	if opts.Concurrency != DefaultConcurrency {
		t.Errorf("Concurrency = %d", opts.Concurrency)
	}
	if time.Duration(opts.CaptureTimeout) != DefaultCaptureTimeout {
		t.Errorf("CaptureTimeout = %v", time.Duration(opts.CaptureTimeout))
	}
	want := geom.Bounds{X: 10, Y: 0, Width: 50, Height: 60}
	if opts.Bounds != want {
		t.Errorf("derived Bounds = %+v, want %+v", opts.Bounds, want)
	}
	if !opts.HasCapturable() {
		t.Error("HasCapturable() = false")
	}
}

func TestDurationText(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("1500ms")); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if time.Duration(d) != 1500*time.Millisecond {
		t.Errorf("d = %v", time.Duration(d))
	}
	b, _ := d.MarshalText()
	if string(b) != "1.5s" {
		t.Errorf("MarshalText = %s, want 1.5s", b)
	}
	if err := d.UnmarshalText([]byte("soon")); err == nil {
		t.Error("UnmarshalText should reject garbage")
	}
}
