// Package httputil provides HTTP utilities for fetching rasters.
//
// # Overview
//
// Base rasters, pre-rendered overlays and remote surface snapshots can all
// live behind HTTP. This package provides the shared plumbing:
//
//   - [Fetcher]: GET with status classification and observability hooks
//   - [Retry]: Automatic retry with exponential backoff
//
// # Status Handling
//
// [Fetcher.Get] classifies responses so callers can decide what a failure
// means for them:
//
//   - 200: body returned
//   - 204: empty body returned (callers treat it as "nothing rendered yet")
//   - 404, 410: [ErrNotFound]
//   - 429, 5xx, transport errors: [ErrNetwork], retried
//   - other statuses: [ErrNetwork], not retried
//
// # Retry
//
// Only errors wrapped in [RetryableError] are retried:
//
//	err := httputil.Retry(ctx, 3, time.Second, func() error {
//	    return fetchSomething()
//	})
package httputil
