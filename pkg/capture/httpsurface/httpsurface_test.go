package httpsurface

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matzehuels/snapcomp/pkg/capture"
	"github.com/matzehuels/snapcomp/pkg/httputil"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestNew(t *testing.T) {
	tests := []struct {
		template string
		wantErr  bool
	}{
		{"http://host/s/{id}.png", false},
		{"https://host/s?id={id}", false},
		{"http://host/s/static.png", true},
		{"ftp://host/{id}", true},
		{"/relative/{id}", true},
	}
	for _, tt := range tests {
		_, err := New(tt.template, nil)
		if (err != nil) != tt.wantErr {
			t.Errorf("New(%q) error = %v, wantErr %v", tt.template, err, tt.wantErr)
		}
	}
}

func TestProviderURL(t *testing.T) {
	p, err := New("http://host/s/{id}.png", nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := p.URL("shape:a b"); got != "http://host/s/a%20b.png" {
		t.Errorf("URL() = %q", got)
	}
}

func TestProviderCapture(t *testing.T) {
	snap := pngBytes(t, 6, 4)
	var flaky atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/s/ok.png":
			w.Write(snap)
		case "/s/loading.png":
			w.WriteHeader(http.StatusNoContent)
		case "/s/flaky.png":
			if flaky.Add(1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Write(snap)
		case "/s/garbage.png":
			w.Write([]byte("nope"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	p, err := New(srv.URL+"/s/{id}.png", &httputil.Fetcher{Delay: time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	for _, id := range []string{"ok", "shape:ok", "flaky"} {
		img, err := p.Capture(ctx, id)
		if err != nil {
			t.Fatalf("Capture(%q) error: %v", id, err)
		}
		if got := img.Bounds().Size(); got != image.Pt(6, 4) {
			t.Errorf("Capture(%q) size = %v, want 6x4", id, got)
		}
	}

	if _, err := p.Capture(ctx, "missing"); !errors.Is(err, capture.ErrSurfaceNotFound) {
		t.Errorf("missing: error = %v, want %v", err, capture.ErrSurfaceNotFound)
	}
	if _, err := p.Capture(ctx, "loading"); !errors.Is(err, capture.ErrSurfaceEmpty) {
		t.Errorf("loading: error = %v, want %v", err, capture.ErrSurfaceEmpty)
	}
	if _, err := p.Capture(ctx, "garbage"); err == nil {
		t.Error("garbage: expected decode error")
	}
	if _, err := p.Capture(ctx, "../x"); err == nil {
		t.Error("traversal id should be rejected")
	}
}
