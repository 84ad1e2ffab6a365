package cache

// ScopedKeyer wraps a Keyer with a prefix. Builds prefix keys with their
// version so that a renderer change never serves composites made by an
// older binary.
//
//	keyer := cache.NewScopedKeyer(nil, buildinfo.CacheScope())
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix.
// The prefix is prepended to all generated keys.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{
		inner:  inner,
		prefix: prefix,
	}
}

// ArtifactKey generates a prefixed key for artifact caching.
func (k *ScopedKeyer) ArtifactKey(baseHash string, opts ArtifactKeyOpts) string {
	return k.prefix + k.inner.ArtifactKey(baseHash, opts)
}
