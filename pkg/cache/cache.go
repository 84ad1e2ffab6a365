// Package cache stores encoded composites keyed by their inputs.
//
// Keys are content addressed: an artifact key hashes the base raster bytes,
// the pixel digests of every captured snapshot and the overlay, the
// geometry and the encoder settings. A hit therefore returns exactly the
// bytes a fresh compositing pass would produce, and no cached entry can
// leak state between unrelated requests.
//
// Backends:
//   - [FileCache]: one file per entry under a directory (CLI default)
//   - [RedisCache]: shared cache for server deployments
//   - [MemoryCache]: process-local, mostly for tests
//   - [NullCache]: caching disabled
package cache

import (
	"context"
	"time"
)

// Default TTLs.
const (
	// TTLArtifact bounds how long an encoded composite is kept.
	TTLArtifact = 7 * 24 * time.Hour
)

// Cache is a byte store with per-entry expiry.
type Cache interface {
	// Get returns the value for key. A miss is (nil, false, nil).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key. A zero ttl never expires.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	Close() error
}

// Keyer derives cache keys.
type Keyer interface {
	// ArtifactKey returns the key of an encoded composite built on the
	// base raster whose bytes hash to baseHash.
	ArtifactKey(baseHash string, opts ArtifactKeyOpts) string
}

// LayerKey identifies one drawn snapshot.
type LayerKey struct {
	ID     string     `json:"id"`
	Digest string     `json:"digest"` // pixel digest of the snapshot
	Rect   [4]float64 `json:"rect"`   // x, y, w, h in pixels
}

// ArtifactKeyOpts are the inputs of a composite besides the base raster.
type ArtifactKeyOpts struct {
	Layers  []LayerKey `json:"layers"`
	Overlay string     `json:"overlay,omitempty"` // pixel digest, empty when absent
	Format  string     `json:"format"`
	Quality int        `json:"quality"`
}

// DefaultKeyer hashes key inputs with SHA-256.
type DefaultKeyer struct{}

// NewDefaultKeyer returns the default keyer.
func NewDefaultKeyer() Keyer {
	return DefaultKeyer{}
}

// ArtifactKey returns "artifact:<sha256>".
func (DefaultKeyer) ArtifactKey(baseHash string, opts ArtifactKeyOpts) string {
	return hashKey("artifact", baseHash, opts)
}
