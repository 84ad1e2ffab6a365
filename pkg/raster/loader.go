package raster

import (
	"context"
	"encoding/base64"
	"errors"
	"image"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	apperr "github.com/matzehuels/snapcomp/pkg/errors"
	"github.com/matzehuels/snapcomp/pkg/httputil"
)

// Loader resolves raster sources to bytes.
// The zero value loads data URLs and absolute paths and fetches HTTP
// sources with a default [httputil.Fetcher].
type Loader struct {
	// BaseDir resolves relative file paths. Empty means the working directory.
	BaseDir string

	// Fetcher performs HTTP(S) requests.
	Fetcher *httputil.Fetcher

	// DisableRemote rejects http(s) sources.
	DisableRemote bool

	// DisableFiles rejects file paths and file:// URLs.
	DisableFiles bool
}

// Load returns the encoded bytes named by src.
func (l *Loader) Load(ctx context.Context, src string) (Raw, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return Raw{}, apperr.New(apperr.ErrCodeInvalidSource, "raster source is empty")
	}

	switch scheme := sourceScheme(src); scheme {
	case "data":
		mt, data, err := ParseDataURL(src)
		if err != nil {
			return Raw{}, err
		}
		return Raw{Source: src, MediaType: mt, Data: data}, nil
	case "http", "https":
		if l.DisableRemote {
			return Raw{}, apperr.New(apperr.ErrCodeInvalidSource, "remote sources are disabled: %s", src)
		}
		return l.fetch(ctx, src)
	case "file":
		u, err := url.Parse(src)
		if err != nil {
			return Raw{}, apperr.Wrap(apperr.ErrCodeInvalidSource, err, "parse file URL %s", src)
		}
		return l.readFile(u.Path)
	case "":
		return l.readFile(src)
	default:
		return Raw{}, apperr.New(apperr.ErrCodeInvalidSource, "unsupported source scheme %q", scheme)
	}
}

// LoadImage loads and decodes src. The returned Raw carries the media
// type of the decoded format when the source did not declare one.
func (l *Loader) LoadImage(ctx context.Context, src string) (image.Image, Raw, error) {
	raw, err := l.Load(ctx, src)
	if err != nil {
		return nil, Raw{}, err
	}
	img, format, err := raw.Decode()
	if err != nil {
		return nil, raw, err
	}
	if raw.MediaType == "" || !strings.HasPrefix(raw.MediaType, "image/") {
		raw.MediaType = MediaTypeForFormat(format)
	}
	return img, raw, nil
}

func (l *Loader) fetch(ctx context.Context, src string) (Raw, error) {
	f := l.Fetcher
	if f == nil {
		f = &httputil.Fetcher{}
	}
	resp, err := f.Get(ctx, src)
	switch {
	case errors.Is(err, httputil.ErrNotFound):
		return Raw{}, apperr.Wrap(apperr.ErrCodeNotFound, err, "fetch %s", src)
	case errors.Is(err, context.DeadlineExceeded):
		return Raw{}, apperr.Wrap(apperr.ErrCodeTimeout, err, "fetch %s", src)
	case err != nil:
		return Raw{}, apperr.Wrap(apperr.ErrCodeNetwork, err, "fetch %s", src)
	}
	mt, _, _ := mime.ParseMediaType(resp.ContentType)
	if !strings.HasPrefix(mt, "image/") {
		mt = ""
	}
	return Raw{Source: src, MediaType: mt, Data: resp.Body}, nil
}

func (l *Loader) readFile(path string) (Raw, error) {
	if l.DisableFiles {
		return Raw{}, apperr.New(apperr.ErrCodeInvalidSource, "file sources are disabled: %s", path)
	}
	if !filepath.IsAbs(path) && l.BaseDir != "" {
		path = filepath.Join(l.BaseDir, path)
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Raw{}, apperr.Wrap(apperr.ErrCodeFileNotFound, err, "read %s", path)
	}
	if err != nil {
		return Raw{}, apperr.Wrap(apperr.ErrCodeInvalidSource, err, "read %s", path)
	}
	return Raw{Source: path, MediaType: mediaTypeForExt(filepath.Ext(path)), Data: data}, nil
}

// ParseDataURL decodes an RFC 2397 data URL.
func ParseDataURL(s string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return "", nil, apperr.New(apperr.ErrCodeInvalidSource, "not a data URL")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, apperr.New(apperr.ErrCodeInvalidSource, "data URL has no payload separator")
	}

	isBase64 := false
	if m, found := strings.CutSuffix(meta, ";base64"); found {
		meta, isBase64 = m, true
	}
	mt := "text/plain"
	if meta != "" {
		parsed, _, err := mime.ParseMediaType(meta)
		if err != nil {
			return "", nil, apperr.Wrap(apperr.ErrCodeInvalidSource, err, "data URL media type %q", meta)
		}
		mt = parsed
	}

	if isBase64 {
		data, err := decodeBase64(payload)
		if err != nil {
			return "", nil, apperr.Wrap(apperr.ErrCodeInvalidSource, err, "data URL payload")
		}
		return mt, data, nil
	}
	data, err := url.PathUnescape(payload)
	if err != nil {
		return "", nil, apperr.Wrap(apperr.ErrCodeInvalidSource, err, "data URL payload")
	}
	return mt, []byte(data), nil
}

// decodeBase64 accepts padded and unpadded payloads.
func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "=") || len(s)%4 == 0 {
		return base64.StdEncoding.DecodeString(s)
	}
	return base64.RawStdEncoding.DecodeString(s)
}

// IsPath reports whether src is a plain file path rather than a URL.
func IsPath(src string) bool {
	return sourceScheme(strings.TrimSpace(src)) == ""
}

func sourceScheme(src string) string {
	i := strings.Index(src, ":")
	if i <= 1 {
		// no scheme, or a Windows drive letter
		return ""
	}
	scheme := strings.ToLower(src[:i])
	for _, r := range scheme {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '+' || r == '-' || r == '.') {
			return ""
		}
	}
	return scheme
}

func mediaTypeForExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".bmp":
		return "image/bmp"
	case ".tif", ".tiff":
		return "image/tiff"
	}
	return ""
}
