// Package httpsurface captures regions from a snapshot service over HTTP.
//
// The service is addressed by a URL template containing "{id}", for
// example "http://renderer:9000/surfaces/{id}.png". The id is normalized
// and path-escaped before substitution. A 404 or 410 means the surface does
// not exist, and a 204 or an empty body means it has not loaded yet.
// Transient failures (429, 5xx, transport errors) are retried.
package httpsurface

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net/url"
	"strings"

	"github.com/matzehuels/snapcomp/pkg/capture"
	apperr "github.com/matzehuels/snapcomp/pkg/errors"
	"github.com/matzehuels/snapcomp/pkg/httputil"
	"github.com/matzehuels/snapcomp/pkg/raster"
)

// Placeholder is replaced with the region id in URL templates.
const Placeholder = "{id}"

// Provider fetches snapshots from a URL template.
type Provider struct {
	template string
	fetcher  *httputil.Fetcher
}

// New returns a provider for template. A nil fetcher uses the defaults of
// [httputil.Fetcher].
func New(template string, fetcher *httputil.Fetcher) (*Provider, error) {
	if !strings.Contains(template, Placeholder) {
		return nil, apperr.New(apperr.ErrCodeInvalidInput, "surface URL %q has no %s placeholder", template, Placeholder)
	}
	probe := strings.ReplaceAll(template, Placeholder, "x")
	u, err := url.Parse(probe)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, apperr.New(apperr.ErrCodeInvalidInput, "surface URL %q must be an absolute http(s) URL", template)
	}
	if fetcher == nil {
		fetcher = &httputil.Fetcher{}
	}
	return &Provider{template: template, fetcher: fetcher}, nil
}

// URL returns the snapshot URL for id.
func (p *Provider) URL(id string) string {
	return strings.ReplaceAll(p.template, Placeholder, url.PathEscape(capture.NormalizeID(id)))
}

// Capture fetches and decodes the snapshot for id.
func (p *Provider) Capture(ctx context.Context, id string) (image.Image, error) {
	if err := apperr.ValidateRegionID(capture.NormalizeID(id)); err != nil {
		return nil, err
	}
	u := p.URL(id)
	resp, err := p.fetcher.Get(ctx, u)
	if errors.Is(err, httputil.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", capture.ErrSurfaceNotFound, u)
	}
	if err != nil {
		return nil, err
	}
	if len(resp.Body) == 0 {
		return nil, fmt.Errorf("%w: %s returned no content", capture.ErrSurfaceEmpty, u)
	}
	img, _, err := raster.Raw{Source: u, Data: resp.Body}.Decode()
	if err != nil {
		return nil, err
	}
	return img, nil
}
