package pipeline

import (
	"context"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/snapcomp/pkg/cache"
	"github.com/matzehuels/snapcomp/pkg/capture"
	"github.com/matzehuels/snapcomp/pkg/compose"
	apperr "github.com/matzehuels/snapcomp/pkg/errors"
	"github.com/matzehuels/snapcomp/pkg/geom"
	"github.com/matzehuels/snapcomp/pkg/observability"
	"github.com/matzehuels/snapcomp/pkg/raster"
	"github.com/matzehuels/snapcomp/pkg/scene"
)

// Runner encapsulates pipeline execution with caching.
// Both CLI and API use this to avoid duplicating compositing logic.
//
// The Runner is stateless except for its collaborators - it doesn't
// store pipeline results. Multiple goroutines can safely use the same
// Runner with different options.
type Runner struct {
	Cache  cache.Cache
	Keyer  cache.Keyer
	Logger *log.Logger

	// Loader resolves base, overlay and inline snapshot sources.
	Loader *raster.Loader

	// Provider captures regions that have no inline snapshot.
	// Nil means only inline snapshots are used.
	Provider capture.Provider

	// Exporter renders the overlay when the request carries none.
	// Nil means no overlay is drawn for such requests.
	Exporter scene.Exporter
}

// NewRunner creates a runner with the given cache and keyer.
// If keyer is nil, a DefaultKeyer is used.
// If cache is nil, a NullCache is used (caching disabled).
func NewRunner(c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		Cache:  c,
		Keyer:  keyer,
		Logger: logger,
		Loader: &raster.Loader{},
	}
}

// Execute runs one compositing pass.
//
// Only invalid options, a base raster that cannot be loaded and an encoder
// failure return an error. Failed captures and a failed overlay are
// recorded on the result, which is still a complete image.
func (r *Runner) Execute(ctx context.Context, opts Options) (result *Result, err error) {
	r.applyLogger(&opts)
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	requestID := opts.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}
	logger := opts.Logger.With("request", shortID(requestID))

	regions, others := opts.Selection.Split()
	hooks := observability.Pipeline()
	hooks.OnCompositeStart(ctx, requestID, len(regions))
	start := time.Now()
	defer func() { hooks.OnCompositeComplete(ctx, requestID, time.Since(start), err) }()

	result = &Result{RequestID: requestID}

	// Stage 1: Load
	loadStart := time.Now()
	raw, err := r.loader().Load(ctx, opts.Base)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrCodeBaseLoad, err, "load base raster")
	}

	if !opts.HasCapturable() {
		cfg, format, err := raw.DecodeConfig()
		if err != nil {
			return nil, apperr.Wrap(apperr.ErrCodeBaseLoad, err, "decode base raster")
		}
		result.Stats.LoadTime = time.Since(loadStart)
		result.Data = raw.Data
		result.MediaType = mediaType(raw, format)
		result.Width, result.Height = cfg.Width, cfg.Height
		result.PassThrough = true
		logger.Info("no capturable shapes, passing base through",
			"size", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height))
		return result, nil
	}

	base, _, err := raw.Decode()
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrCodeBaseLoad, err, "decode base raster")
	}
	result.Stats.LoadTime = time.Since(loadStart)
	bb := base.Bounds()
	result.Width, result.Height = bb.Dx(), bb.Dy()

	mapper := geom.NewMapper(opts.Bounds, opts.Padding, bb.Dx())
	result.Scale = mapper.Scale
	if skew := mapper.SkewY(bb.Dy()); skew > SkewWarnThreshold {
		logger.Warn("base raster aspect ratio does not match bounds", "skew", fmt.Sprintf("%.2f%%", skew*100))
	}
	logger.Debug("loaded base raster",
		"size", fmt.Sprintf("%dx%d", bb.Dx(), bb.Dy()),
		"scale", mapper.Scale,
		"duration", result.Stats.LoadTime)

	// Stage 2: Capture regions and acquire the overlay concurrently
	captureStart := time.Now()
	var outcomes []capture.Outcome
	var overlay image.Image
	var overlayErr error

	var g errgroup.Group
	g.Go(func() error {
		outcomes = capture.CaptureAll(ctx, r.provider(opts), regions,
			capture.WithConcurrency(opts.Concurrency),
			capture.WithTimeout(time.Duration(opts.CaptureTimeout)),
			capture.WithLogger(logger),
		)
		return nil
	})
	if len(others) > 0 {
		g.Go(func() error {
			overlay, overlayErr = r.acquireOverlay(ctx, opts, others, mapper, bb.Size(), logger)
			return nil
		})
	}
	_ = g.Wait()
	result.Stats.CaptureTime = time.Since(captureStart)

	for _, o := range outcomes {
		rep := RegionReport{ID: o.Region.ID, Rect: mapper.Map(o.Region), Captured: o.OK(), Duration: o.Duration}
		if !o.OK() {
			rep.Error = errString(o.Err)
		}
		result.Regions = append(result.Regions, rep)
	}
	captured := capture.Successful(outcomes)
	placements := make([]compose.Placement, 0, len(captured))
	for _, o := range captured {
		placements = append(placements, compose.Placement{ID: o.Region.ID, Rect: mapper.Map(o.Region), Image: o.Image})
	}
	result.Stats.Captured = len(captured)
	result.Stats.Failed = len(capture.Failed(outcomes))
	if overlayErr != nil {
		result.OverlayError = overlayErr.Error()
	}
	result.OverlayApplied = overlay != nil

	logger.Info("captured regions",
		"captured", result.Stats.Captured,
		"failed", result.Stats.Failed,
		"overlay", result.OverlayApplied,
		"duration", result.Stats.CaptureTime)

	// Stage 3 and 4: Compose and encode, unless cached
	enc := opts.Encoder()
	result.MediaType = enc.MediaType()
	result.CacheInfo.Key = r.artifactKey(raw, placements, overlay, opts)
	if !opts.Refresh {
		if data, hit, err := r.Cache.Get(ctx, result.CacheInfo.Key); err == nil && hit {
			observability.Cache().OnCacheHit(ctx, "artifact")
			result.Data = data
			result.CacheInfo.Hit = true
			logger.Debug("artifact cache hit", "key", result.CacheInfo.Key)
			return result, nil
		}
		observability.Cache().OnCacheMiss(ctx, "artifact")
	}

	composeStart := time.Now()
	out := compose.Compose(base, placements, overlay)
	result.Stats.ComposeTime = time.Since(composeStart)

	encodeStart := time.Now()
	data, err := enc.Bytes(out)
	if err != nil {
		return nil, err
	}
	result.Stats.EncodeTime = time.Since(encodeStart)
	result.Data = data

	if err := r.Cache.Set(ctx, result.CacheInfo.Key, data, cache.TTLArtifact); err != nil {
		logger.Warn("cache write failed", "err", err)
	} else {
		observability.Cache().OnCacheSet(ctx, "artifact", len(data))
	}

	logger.Info("composited",
		"format", opts.Format,
		"bytes", len(data),
		"compose", result.Stats.ComposeTime,
		"encode", result.Stats.EncodeTime)

	return result, nil
}

// Plan computes the pixel rect of every capturable region without
// capturing anything. Only the base raster's header is decoded.
func (r *Runner) Plan(ctx context.Context, opts Options) (*Plan, error) {
	r.applyLogger(&opts)
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	raw, err := r.loader().Load(ctx, opts.Base)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrCodeBaseLoad, err, "load base raster")
	}
	cfg, _, err := raw.DecodeConfig()
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrCodeBaseLoad, err, "decode base raster")
	}

	mapper := geom.NewMapper(opts.Bounds, opts.Padding, cfg.Width)
	plan := &Plan{
		Width:  cfg.Width,
		Height: cfg.Height,
		Scale:  mapper.Scale,
		SkewY:  mapper.SkewY(cfg.Height),

		OverlayShapes: len(opts.Selection.NonCapturable()),
	}
	for _, region := range opts.Selection.Regions() {
		plan.Regions = append(plan.Regions, PlannedRegion{Region: region, Rect: mapper.Map(region)})
	}
	return plan, nil
}

// acquireOverlay renders or loads the overlay of non-capturable shapes.
// A nil image with a nil error means no overlay source is configured.
func (r *Runner) acquireOverlay(ctx context.Context, opts Options, others scene.Selection, m geom.Mapper, size image.Point, logger *log.Logger) (image.Image, error) {
	exporter := r.Exporter
	if opts.Overlay != "" {
		exporter = scene.SourceExporter{Loader: r.loader(), Source: opts.Overlay}
	}
	if exporter == nil {
		logger.Debug("no overlay exporter configured", "shapes", len(others))
		return nil, nil
	}

	start := time.Now()
	img, err := exporter.Render(ctx, others, opts.Bounds, opts.Padding, scene.RenderOptions{
		TransparentBackground: true,
		Scale:                 m.Scale,
	})
	if err == nil && (img == nil || img.Bounds().Empty()) {
		err = fmt.Errorf("exporter returned an empty overlay")
	}
	if err != nil {
		err = apperr.Wrap(apperr.ErrCodeOverlay, err, "acquire overlay")
		logger.Warn("overlay skipped", "err", err)
		observability.Pipeline().OnOverlay(ctx, false, time.Since(start), err)
		return nil, err
	}
	if got := img.Bounds().Size(); got != size {
		logger.Debug("overlay size differs from base, stretching", "overlay", got, "base", size)
	}
	observability.Pipeline().OnOverlay(ctx, true, time.Since(start), nil)
	return img, nil
}

// provider returns the request's inline snapshots chained in front of the
// runner's provider.
func (r *Runner) provider(opts Options) capture.Provider {
	var chain capture.Chain
	if len(opts.Snapshots) > 0 {
		chain = append(chain, r.inlineSnapshots(opts.Snapshots))
	}
	if r.Provider != nil {
		chain = append(chain, r.Provider)
	}
	return chain
}

func (r *Runner) inlineSnapshots(sources map[string]string) capture.Provider {
	byID := make(map[string]string, len(sources))
	for id, src := range sources {
		byID[capture.NormalizeID(id)] = src
	}
	return capture.Func(func(ctx context.Context, id string) (image.Image, error) {
		src, ok := byID[capture.NormalizeID(id)]
		if !ok {
			return nil, fmt.Errorf("%w: no inline snapshot for %s", capture.ErrSurfaceNotFound, id)
		}
		img, _, err := r.loader().LoadImage(ctx, src)
		return img, err
	})
}

// artifactKey derives the content-addressed cache key of the composite.
func (r *Runner) artifactKey(raw raster.Raw, placements []compose.Placement, overlay image.Image, opts Options) string {
	keyOpts := cache.ArtifactKeyOpts{
		Format:  opts.Format,
		Quality: opts.Quality,
	}
	for _, p := range placements {
		keyOpts.Layers = append(keyOpts.Layers, cache.LayerKey{
			ID:     p.ID,
			Digest: raster.Digest(p.Image),
			Rect:   [4]float64{p.Rect.X, p.Rect.Y, p.Rect.W, p.Rect.H},
		})
	}
	if overlay != nil {
		keyOpts.Overlay = raster.Digest(overlay)
	}
	return r.Keyer.ArtifactKey(cache.Hash(raw.Data), keyOpts)
}

func (r *Runner) loader() *raster.Loader {
	if r.Loader == nil {
		return &raster.Loader{}
	}
	return r.Loader
}

// Close releases resources held by the runner (primarily the cache).
func (r *Runner) Close() error {
	if r.Cache != nil {
		return r.Cache.Close()
	}
	return nil
}

// applyLogger sets the runner's logger on options if not already set.
func (r *Runner) applyLogger(opts *Options) {
	if opts.Logger == nil {
		opts.Logger = r.Logger
	}
}

// mediaType prefers the declared media type only when it names an image.
func mediaType(raw raster.Raw, format string) string {
	if strings.HasPrefix(raw.MediaType, "image/") {
		return raw.MediaType
	}
	return raster.MediaTypeForFormat(format)
}

func errString(err error) string {
	if err == nil {
		return capture.ErrSurfaceEmpty.Error()
	}
	return err.Error()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
