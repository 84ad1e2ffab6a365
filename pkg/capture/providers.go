package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
)

// ShapePrefix is the prefix some scene models put on shape ids.
const ShapePrefix = "shape:"

// NormalizeID strips [ShapePrefix] from id.
func NormalizeID(id string) string {
	return strings.TrimPrefix(id, ShapePrefix)
}

// Static serves snapshots from memory. Lookups try the id as given and
// then without [ShapePrefix].
type Static map[string]image.Image

// Capture returns the stored snapshot for id.
func (s Static) Capture(_ context.Context, id string) (image.Image, error) {
	img, ok := s[id]
	if !ok {
		img, ok = s[NormalizeID(id)]
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSurfaceNotFound, id)
	}
	if img == nil {
		return nil, fmt.Errorf("%w: %s", ErrSurfaceEmpty, id)
	}
	return img, nil
}

// Chain tries providers in order. It moves to the next provider only when
// the current one reports [ErrSurfaceNotFound]; any other error is final.
type Chain []Provider

// Capture returns the first snapshot found for id.
func (c Chain) Capture(ctx context.Context, id string) (image.Image, error) {
	for _, p := range c {
		if p == nil {
			continue
		}
		img, err := p.Capture(ctx, id)
		if errors.Is(err, ErrSurfaceNotFound) {
			continue
		}
		return img, err
	}
	return nil, fmt.Errorf("%w: %s", ErrSurfaceNotFound, id)
}
