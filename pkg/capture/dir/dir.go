// Package dir serves region snapshots from files on disk.
//
// A snapshot for region "abc" is read from the first of abc.png, abc.jpg,
// abc.jpeg, abc.webp, abc.gif, abc.bmp, abc.tif or abc.tiff found in the
// directory. Ids with the "shape:" prefix are looked up without it.
package dir

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/matzehuels/snapcomp/pkg/capture"
	apperr "github.com/matzehuels/snapcomp/pkg/errors"
	"github.com/matzehuels/snapcomp/pkg/raster"
)

// Extensions are tried in order for each region id.
var Extensions = []string{".png", ".jpg", ".jpeg", ".webp", ".gif", ".bmp", ".tif", ".tiff"}

// Provider reads snapshots from Dir.
type Provider struct {
	Dir string
}

// New returns a provider rooted at dir.
func New(dir string) *Provider {
	return &Provider{Dir: dir}
}

// Capture decodes the snapshot file for id.
func (p *Provider) Capture(ctx context.Context, id string) (image.Image, error) {
	id = capture.NormalizeID(id)
	if err := apperr.ValidateRegionID(id); err != nil {
		return nil, err
	}
	path, err := p.find(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", capture.ErrSurfaceEmpty, path)
	}
	img, _, err := raster.Raw{Source: path, Data: data}.Decode()
	if err != nil {
		return nil, err
	}
	return img, nil
}

// Path returns the snapshot file for id, if one exists.
func (p *Provider) Path(id string) (string, bool) {
	path, err := p.find(capture.NormalizeID(id))
	return path, err == nil
}

func (p *Provider) find(id string) (string, error) {
	for _, ext := range Extensions {
		path := filepath.Join(p.Dir, id+ext)
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: no snapshot for %s in %s", capture.ErrSurfaceNotFound, id, p.Dir)
}
