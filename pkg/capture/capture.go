// Package capture acquires live-content snapshots for capturable regions.
//
// A [Provider] resolves a region id to an isolated rendering surface and
// returns its pixels. [CaptureAll] asks the provider for every region
// concurrently and returns one [Outcome] per region. Failures never cross
// region boundaries: a missing surface, an empty surface, a provider error,
// a panic or a timeout for one region becomes that region's Outcome.Err and
// every other region is still attempted.
//
// Provider implementations live in subpackages:
//
//   - dir: snapshot files named after the region id
//   - httpsurface: a snapshot service addressed by URL template
//   - browser: element screenshots from a headless Chrome page
//   - mongostore: snapshots stored in a MongoDB collection
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"runtime/debug"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	apperr "github.com/matzehuels/snapcomp/pkg/errors"
	"github.com/matzehuels/snapcomp/pkg/geom"
	"github.com/matzehuels/snapcomp/pkg/observability"
)

var (
	// ErrSurfaceNotFound means no rendering surface is tagged with the id.
	ErrSurfaceNotFound = errors.New("surface not found")

	// ErrSurfaceEmpty means the surface exists but has not loaded content.
	ErrSurfaceEmpty = errors.New("surface empty")
)

// DefaultConcurrency bounds simultaneous captures.
const DefaultConcurrency = 8

// DefaultTimeout bounds a single region capture.
const DefaultTimeout = 30 * time.Second

// Provider captures the rendering surface tagged with a region id.
type Provider interface {
	Capture(ctx context.Context, id string) (image.Image, error)
}

// Func adapts a function to [Provider].
type Func func(ctx context.Context, id string) (image.Image, error)

// Capture calls f.
func (f Func) Capture(ctx context.Context, id string) (image.Image, error) {
	return f(ctx, id)
}

// Outcome is the result of capturing one region.
type Outcome struct {
	Region   geom.Region
	Image    image.Image   // nil when Err is set
	Err      error         // REGION_CAPTURE_FAILED; wraps the provider error
	Duration time.Duration // time spent in the provider
}

// OK reports whether the region was captured.
func (o Outcome) OK() bool { return o.Err == nil && o.Image != nil }

// Option configures [CaptureAll].
type Option func(*config)

type config struct {
	concurrency int
	timeout     time.Duration
	logger      *log.Logger
}

// WithConcurrency sets the number of simultaneous captures.
// Values below 1 use [DefaultConcurrency].
func WithConcurrency(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithTimeout bounds each region's capture. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithLogger logs per-region failures at warn and successes at debug.
func WithLogger(l *log.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// CaptureAll captures every region and returns one outcome per region in
// input order. It returns only after every capture has resolved. A region
// whose capture is still running when ctx is done resolves with ctx's error.
func CaptureAll(ctx context.Context, p Provider, regions []geom.Region, opts ...Option) []Outcome {
	cfg := config{
		concurrency: DefaultConcurrency,
		timeout:     DefaultTimeout,
		logger:      log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	outcomes := make([]Outcome, len(regions))
	hooks := observability.Pipeline()

	// Region tasks never return an error, so one failure cannot cancel
	// the group context for its siblings.
	var g errgroup.Group
	g.SetLimit(cfg.concurrency)
	for i, r := range regions {
		outcomes[i].Region = r
		g.Go(func() error {
			start := time.Now()
			img, err := captureOne(ctx, p, r.ID, cfg.timeout)
			o := &outcomes[i]
			o.Duration = time.Since(start)
			if err != nil {
				o.Err = apperr.Wrap(apperr.ErrCodeRegionCapture, err, "capture region %s", r.ID)
				cfg.logger.Warn("region skipped", "region", r.ID, "err", err)
			} else {
				o.Image = img
				cfg.logger.Debug("region captured", "region", r.ID,
					"size", img.Bounds().Size(), "elapsed", o.Duration)
			}
			hooks.OnRegionCaptured(ctx, r.ID, o.Duration, o.Err)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// captureOne isolates a single provider call.
func captureOne(ctx context.Context, p Provider, id string, timeout time.Duration) (img image.Image, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		img image.Image
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("provider panic: %v\n%s", r, debug.Stack())}
			}
		}()
		img, err := p.Capture(ctx, id)
		done <- result{img, err}
	}()

	// A provider that ignores ctx is abandoned when ctx ends; its result
	// is discarded.
	select {
	case res := <-done:
		img, err = res.img, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	if img == nil || img.Bounds().Empty() {
		return nil, ErrSurfaceEmpty
	}
	return img, nil
}

// Successful returns the captured outcomes in their original order.
func Successful(outcomes []Outcome) []Outcome {
	ok := make([]Outcome, 0, len(outcomes))
	for _, o := range outcomes {
		if o.OK() {
			ok = append(ok, o)
		}
	}
	return ok
}

// Failed returns the outcomes that carry an error, in their original order.
func Failed(outcomes []Outcome) []Outcome {
	var failed []Outcome
	for _, o := range outcomes {
		if !o.OK() {
			failed = append(failed, o)
		}
	}
	return failed
}
