package pipeline

import (
	"time"

	"github.com/matzehuels/snapcomp/pkg/encode"
	"github.com/matzehuels/snapcomp/pkg/geom"
)

// Result contains the output of a compositing pass.
type Result struct {
	// Data is the encoded image. For a pass-through it is the base
	// raster's original bytes.
	Data []byte `json:"-"`

	// MediaType is the media type of Data.
	MediaType string `json:"media_type"`

	// Width and Height are the output size in pixels, always equal to the
	// base raster's.
	Width  int `json:"width"`
	Height int `json:"height"`

	// Scale is the derived pixels-per-unit factor. Zero for pass-through.
	Scale float64 `json:"scale"`

	// PassThrough is set when the selection had no capturable shapes.
	PassThrough bool `json:"pass_through"`

	// Regions reports every capturable region in selection order.
	Regions []RegionReport `json:"regions,omitempty"`

	// OverlayApplied is set when the overlay layer was drawn.
	OverlayApplied bool `json:"overlay_applied"`

	// OverlayError describes why the overlay was skipped, if it failed.
	OverlayError string `json:"overlay_error,omitempty"`

	RequestID string    `json:"request_id"`
	Stats     Stats     `json:"stats"`
	CacheInfo CacheInfo `json:"cache"`
}

// RegionReport describes one capturable region's fate.
type RegionReport struct {
	ID       string        `json:"id"`
	Rect     geom.Rect     `json:"rect"`
	Captured bool          `json:"captured"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// Stats contains pipeline execution statistics.
type Stats struct {
	Captured    int           `json:"captured"`
	Failed      int           `json:"failed"`
	LoadTime    time.Duration `json:"load_ns"`
	CaptureTime time.Duration `json:"capture_ns"`
	ComposeTime time.Duration `json:"compose_ns"`
	EncodeTime  time.Duration `json:"encode_ns"`
}

// CacheInfo tracks whether the artifact came from cache.
type CacheInfo struct {
	Key string `json:"key,omitempty"`
	Hit bool   `json:"hit"`
}

// DataURL returns the result as a base64 data URL.
func (r *Result) DataURL() string {
	return encode.DataURL(r.MediaType, r.Data)
}

// Plan is the geometry of a compositing pass without any capture.
type Plan struct {
	Width   int             `json:"width"`
	Height  int             `json:"height"`
	Scale   float64         `json:"scale"`
	SkewY   float64         `json:"skew_y"`
	Regions []PlannedRegion `json:"regions"`

	// OverlayShapes counts the shapes the overlay exporter draws.
	OverlayShapes int `json:"overlay_shapes"`
}

// PlannedRegion is a capturable region and its pixel rect.
type PlannedRegion struct {
	Region geom.Region `json:"region"`
	Rect   geom.Rect   `json:"rect"`
}
