// Package pipeline provides the compositing pipeline for snapcomp.
//
// This package implements the complete load → capture → compose → encode
// flow that is shared by the CLI and the HTTP API. By centralizing this
// logic, both entry points produce identical output for identical requests.
//
// # Architecture
//
// One call to [Runner.Execute] is one compositing pass:
//
//  1. Load: fetch and decode the base raster. Failure is fatal.
//  2. Capture: snapshot every capturable region concurrently while the
//     overlay of non-capturable shapes is rendered. Failures degrade.
//  3. Compose: base, then snapshots at their mapped rects, then overlay.
//  4. Encode: JPEG at quality 85 unless configured otherwise.
//
// A selection with no capturable shapes short-circuits after step 1 and
// returns the base raster's original bytes.
//
// # Usage
//
//	runner := pipeline.NewRunner(cache, nil, logger)
//	runner.Provider = dir.New("snapshots")
//	runner.Exporter = vector.New()
//	result, err := runner.Execute(ctx, pipeline.Options{
//	    Base:      "base.png",
//	    Bounds:    geom.Bounds{Width: 200, Height: 100},
//	    Padding:   10,
//	    Selection: shapes,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	url := result.DataURL()
package pipeline

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/snapcomp/pkg/capture"
	"github.com/matzehuels/snapcomp/pkg/encode"
	apperr "github.com/matzehuels/snapcomp/pkg/errors"
	"github.com/matzehuels/snapcomp/pkg/geom"
	"github.com/matzehuels/snapcomp/pkg/scene"
)

// =============================================================================
// Default Values - Single Source of Truth for CLI and API
// =============================================================================

const (
	// DefaultFormat is the default output encoding.
	DefaultFormat = encode.FormatJPEG

	// DefaultQuality is the default JPEG quality.
	DefaultQuality = encode.DefaultQuality

	// DefaultConcurrency is the default number of simultaneous captures.
	DefaultConcurrency = capture.DefaultConcurrency

	// DefaultCaptureTimeout bounds each region capture.
	DefaultCaptureTimeout = capture.DefaultTimeout

	// MaxRegions bounds the capturable shapes accepted in one request.
	MaxRegions = 512

	// SkewWarnThreshold is the relative x/y scale disagreement above
	// which a warning is logged.
	SkewWarnThreshold = 0.01
)

// =============================================================================
// Options - Pipeline Configuration
// =============================================================================

// Options contains all configuration for one compositing pass.
// This struct supports JSON and TOML serialization for API requests and
// manifests.
type Options struct {
	// Base is the base raster source: a data URL, an http(s) URL, a
	// file:// URL or a path.
	Base string `json:"base" toml:"base"`

	// Bounds is the selection's bounding box in document units. When zero
	// it is derived from the selection.
	Bounds geom.Bounds `json:"bounds" toml:"bounds"`

	// Padding is the margin the base raster was rendered with.
	Padding float64 `json:"padding" toml:"padding"`

	// Selection lists the exported shapes, back to front.
	Selection scene.Selection `json:"selection" toml:"selection"`

	// Overlay is an optional pre-rendered overlay source. When empty the
	// runner's exporter renders the overlay.
	Overlay string `json:"overlay,omitempty" toml:"overlay,omitempty"`

	// Snapshots maps region ids to snapshot sources. They take precedence
	// over the runner's provider.
	Snapshots map[string]string `json:"snapshots,omitempty" toml:"snapshots,omitempty"`

	// Output options
	Format  string `json:"format,omitempty" toml:"format,omitempty"`
	Quality int    `json:"quality,omitempty" toml:"quality,omitempty"`

	// Capture options
	Concurrency    int      `json:"concurrency,omitempty" toml:"concurrency,omitempty"`
	CaptureTimeout Duration `json:"capture_timeout,omitempty" toml:"capture_timeout,omitempty"`

	// Refresh bypasses the artifact cache.
	Refresh bool `json:"refresh,omitempty" toml:"refresh,omitempty"`

	// Runtime options (not serialized)
	Logger    *log.Logger `json:"-" toml:"-"`
	RequestID string      `json:"-" toml:"-"`

	// validated tracks whether ValidateAndSetDefaults has been called.
	validated bool
}

// Duration is a time.Duration that encodes as a string such as "30s".
type Duration time.Duration

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// =============================================================================
// Validation
// =============================================================================

// ValidateAndSetDefaults checks required fields and applies defaults.
// This method is idempotent - calling it multiple times has the same effect
// as calling it once. Every error carries [apperr.ErrCodeInvalidInput] or a
// more specific validation code.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}
	if o.Base == "" {
		return apperr.New(apperr.ErrCodeInvalidInput, "base raster source is required")
	}
	if err := o.Selection.Validate(); err != nil {
		return err
	}
	if n := len(o.Selection.Regions()); n > MaxRegions {
		return apperr.New(apperr.ErrCodeInvalidInput, "too many capturable shapes: %d (max %d)", n, MaxRegions)
	}
	if o.Bounds == (geom.Bounds{}) {
		if b, ok := o.Selection.Bounds(); ok {
			o.Bounds = b
		}
	}
	if err := o.Bounds.Validate(); err != nil {
		return apperr.Wrap(apperr.ErrCodeInvalidInput, err, "invalid bounds")
	}
	if o.Padding < 0 || math.IsNaN(o.Padding) || math.IsInf(o.Padding, 0) {
		return apperr.New(apperr.ErrCodeInvalidInput, "padding must be a finite value >= 0, got %g", o.Padding)
	}
	for id, src := range o.Snapshots {
		if err := apperr.ValidateRegionID(capture.NormalizeID(id)); err != nil {
			return err
		}
		if src == "" {
			return apperr.New(apperr.ErrCodeInvalidInput, "snapshot source for %s is empty", id)
		}
	}

	o.SetEncodeDefaults()
	if _, err := encode.ParseFormat(o.Format); err != nil {
		return err
	}
	if err := o.Encoder().Validate(); err != nil {
		return err
	}

	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.CaptureTimeout < 0 {
		return apperr.New(apperr.ErrCodeInvalidInput, "capture_timeout must be >= 0")
	}
	if o.CaptureTimeout == 0 {
		o.CaptureTimeout = Duration(DefaultCaptureTimeout)
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}

	o.validated = true
	return nil
}

// SetEncodeDefaults sets default values for encoding.
func (o *Options) SetEncodeDefaults() {
	if o.Format == "" {
		o.Format = string(DefaultFormat)
	}
	if o.Quality == 0 {
		o.Quality = DefaultQuality
	}
}

// Encoder returns the encoder configured by the options.
func (o *Options) Encoder() encode.Encoder {
	f, err := encode.ParseFormat(o.Format)
	if err != nil {
		f = encode.Format(o.Format)
	}
	return encode.Encoder{Format: f, Quality: o.Quality}
}

// HasCapturable reports whether the selection has any capturable shape.
func (o *Options) HasCapturable() bool {
	for _, s := range o.Selection {
		if s.Capturable {
			return true
		}
	}
	return false
}

// String summarizes the options for logs.
func (o *Options) String() string {
	regions, others := o.Selection.Split()
	return fmt.Sprintf("regions=%d others=%d format=%s quality=%d", len(regions), len(others), o.Format, o.Quality)
}
