// Package manifest reads compositing requests from JSON or TOML files.
//
// A manifest is a [pipeline.Options] document plus an optional output path.
// Relative file sources are resolved against the manifest's directory, so a
// manifest can sit next to its base raster and snapshots:
//
//	base = "base.png"
//	padding = 10
//	overlay = "overlay.png"
//	output = "out.jpg"
//
//	[bounds]
//	width = 200
//	height = 100
//
//	[[selection]]
//	id = "shape:a"
//	capturable = true
//	x = 50
//	y = 20
//	w = 30
//	h = 30
//
//	[snapshots]
//	"shape:a" = "snapshots/a.png"
package manifest

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	apperr "github.com/matzehuels/snapcomp/pkg/errors"
	"github.com/matzehuels/snapcomp/pkg/pipeline"
	"github.com/matzehuels/snapcomp/pkg/raster"
)

// Encoding names a manifest syntax.
type Encoding string

const (
	JSON Encoding = "json"
	TOML Encoding = "toml"
)

// Manifest is one compositing request read from a file.
type Manifest struct {
	pipeline.Options

	// Output is where the CLI writes the result. Empty means the caller
	// decides.
	Output string `json:"output,omitempty" toml:"output,omitempty"`

	// Dir is the directory relative sources were resolved against.
	Dir string `json:"-" toml:"-"`
}

// EncodingForPath picks the syntax from the file extension. Anything that
// is not .toml is read as JSON.
func EncodingForPath(path string) Encoding {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return TOML
	}
	return JSON
}

// Load reads the manifest at path and resolves its relative sources.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, apperr.Wrap(apperr.ErrCodeFileNotFound, err, "manifest %s", path)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrCodeInvalidManifest, err, "read manifest %s", path)
	}
	m, err := Parse(data, EncodingForPath(path))
	if err != nil {
		return nil, err
	}
	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrCodeInvalidManifest, err, "resolve manifest dir")
	}
	m.Resolve(dir)
	return m, nil
}

// Decode reads a manifest from r. Relative sources are left unresolved.
func Decode(r io.Reader, enc Encoding) (*Manifest, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrCodeInvalidManifest, err, "read manifest")
	}
	return Parse(data, enc)
}

// Parse decodes manifest bytes. Unknown fields are rejected so typos in a
// request do not silently fall back to defaults.
func Parse(data []byte, enc Encoding) (*Manifest, error) {
	var m Manifest
	switch enc {
	case TOML:
		md, err := toml.Decode(string(data), &m)
		if err != nil {
			return nil, apperr.Wrap(apperr.ErrCodeInvalidManifest, err, "parse TOML manifest")
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, apperr.New(apperr.ErrCodeInvalidManifest, "unknown manifest field %q", undecoded[0].String())
		}
	case JSON, "":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&m); err != nil {
			return nil, apperr.Wrap(apperr.ErrCodeInvalidManifest, err, "parse JSON manifest")
		}
	default:
		return nil, apperr.New(apperr.ErrCodeInvalidManifest, "unknown manifest encoding %q", enc)
	}
	return &m, nil
}

// Resolve rewrites relative file sources to paths under dir.
func (m *Manifest) Resolve(dir string) {
	m.Dir = dir
	m.Base = resolve(dir, m.Base)
	m.Overlay = resolve(dir, m.Overlay)
	if m.Output != "" && !filepath.IsAbs(m.Output) {
		m.Output = filepath.Join(dir, m.Output)
	}
	for id, src := range m.Snapshots {
		m.Snapshots[id] = resolve(dir, src)
	}
}

func resolve(dir, src string) string {
	if src == "" || !raster.IsPath(src) || filepath.IsAbs(src) {
		return src
	}
	return filepath.Join(dir, src)
}

// Encode writes the manifest in the given syntax.
func (m *Manifest) Encode(w io.Writer, enc Encoding) error {
	switch enc {
	case TOML:
		return toml.NewEncoder(w).Encode(m)
	default:
		e := json.NewEncoder(w)
		e.SetIndent("", "  ")
		return e.Encode(m)
	}
}
