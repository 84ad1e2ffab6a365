// Package pkg provides the core libraries for snapcomp raster compositing.
//
// # Overview
//
// snapcomp flattens an exported diagram into one image: a base raster of
// the whole canvas, independently captured snapshots of its live-content
// regions, and an overlay of the remaining shapes. The pkg directory is
// organized into four areas:
//
//  1. Geometry and imaging ([geom], [raster], [compose], [encode])
//  2. Region capture ([capture] and its providers)
//  3. Orchestration ([pipeline], [manifest], [scene])
//  4. Infrastructure ([cache], [httputil], [errors], [observability])
//
// # Architecture
//
// The data flow through one composite request:
//
//	Manifest (base, bounds, padding, selection)
//	         ↓
//	    [raster] package (load and decode the base)
//	         ↓
//	    [geom] package (map region coordinates to pixels)
//	         ↓
//	    [capture] package (snapshot every capturable region concurrently)
//	         ↓
//	    [compose] package (base, then snapshots, then overlay)
//	         ↓
//	    [encode] package (JPEG or PNG bytes, data URL)
//
// # Quick Start
//
//	import (
//	    "context"
//	    "github.com/matzehuels/snapcomp/pkg/capture/dir"
//	    "github.com/matzehuels/snapcomp/pkg/pipeline"
//	    "github.com/matzehuels/snapcomp/pkg/scene/vector"
//	)
//
//	runner := pipeline.NewRunner(nil, nil, nil)
//	runner.Provider = dir.New("./snapshots")
//	runner.Exporter = vector.New()
//
//	res, _ := runner.Execute(context.Background(), pipeline.Options{
//	    Base:      "base.png",
//	    Bounds:    geom.Bounds{Width: 800, Height: 600},
//	    Padding:   10,
//	    Selection: selection,
//	})
//	os.WriteFile("out.jpg", res.Data, 0o644)
//
// # Main Packages
//
// [geom] - Canvas bounds, regions, pixel rects and the [geom.Mapper] that
// converts between them. The scale is derived from the base raster width.
//
// [raster] - Decoding of PNG, JPEG, GIF, BMP, TIFF and WebP plus the
// [raster.Loader] that resolves data URLs, http(s) URLs and file paths.
//
// [capture] - Concurrent, fault-isolated region capture. One failed or
// panicking region never aborts the others. Providers:
//
//   - [capture/dir]: snapshot files named after the region id
//   - [capture/httpsurface]: snapshot URLs from an {id} template
//   - [capture/browser]: element screenshots from headless Chrome
//   - [capture/mongostore]: snapshots stored in a MongoDB collection
//
// [compose] - Layer stacking: base, scaled snapshots, overlay.
//
// [encode] - Output encoding (JPEG quality 85 by default, or PNG).
//
// [scene] - Shape selections and the exporters that rasterize the overlay.
//
// [pipeline] - The complete composite operation used by the CLI and the
// HTTP server, including pass-through and artifact caching.
//
// [manifest] - JSON and TOML request files for the CLI.
//
// [cache] - Content-addressed artifact cache with file, memory, Redis and
// null backends.
//
// # Testing
//
//	go test ./pkg/...                    # All tests
//	go test ./pkg/capture/...            # Specific package
//	go test -run Example ./pkg/geom      # Examples only
//
// [geom]: https://pkg.go.dev/github.com/matzehuels/snapcomp/pkg/geom
// [raster]: https://pkg.go.dev/github.com/matzehuels/snapcomp/pkg/raster
// [compose]: https://pkg.go.dev/github.com/matzehuels/snapcomp/pkg/compose
// [encode]: https://pkg.go.dev/github.com/matzehuels/snapcomp/pkg/encode
// [capture]: https://pkg.go.dev/github.com/matzehuels/snapcomp/pkg/capture
// [capture/dir]: https://pkg.go.dev/github.com/matzehuels/snapcomp/pkg/capture/dir
// [capture/httpsurface]: https://pkg.go.dev/github.com/matzehuels/snapcomp/pkg/capture/httpsurface
// [capture/browser]: https://pkg.go.dev/github.com/matzehuels/snapcomp/pkg/capture/browser
// [capture/mongostore]: https://pkg.go.dev/github.com/matzehuels/snapcomp/pkg/capture/mongostore
// [scene]: https://pkg.go.dev/github.com/matzehuels/snapcomp/pkg/scene
// [pipeline]: https://pkg.go.dev/github.com/matzehuels/snapcomp/pkg/pipeline
// [manifest]: https://pkg.go.dev/github.com/matzehuels/snapcomp/pkg/manifest
// [cache]: https://pkg.go.dev/github.com/matzehuels/snapcomp/pkg/cache
// [httputil]: https://pkg.go.dev/github.com/matzehuels/snapcomp/pkg/httputil
// [errors]: https://pkg.go.dev/github.com/matzehuels/snapcomp/pkg/errors
// [observability]: https://pkg.go.dev/github.com/matzehuels/snapcomp/pkg/observability
package pkg
