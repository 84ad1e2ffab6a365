// Package browser captures regions as element screenshots from a headless
// Chrome page driven through the DevTools protocol.
//
// Each region is captured in its own tab: the tab loads Config.PageURL,
// looks up the element whose id is the region id formatted with
// Config.ElementFormat (default "iframe-1-%s"), and screenshots it at a
// device pixel ratio of 1. A missing element reports
// [capture.ErrSurfaceNotFound]. An iframe whose document has no body, or
// an empty body, reports [capture.ErrSurfaceEmpty].
//
// The provider either launches a local Chrome or attaches to a running one
// via Config.RemoteURL (a DevTools websocket URL).
package browser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"

	"github.com/matzehuels/snapcomp/pkg/capture"
	apperr "github.com/matzehuels/snapcomp/pkg/errors"
)

// DefaultElementFormat names the element that hosts a region's content.
const DefaultElementFormat = "iframe-1-%s"

// Config configures a [Provider].
type Config struct {
	// PageURL is the page hosting one element per capturable region.
	PageURL string

	// ElementFormat is a fmt format with one %s verb for the region id.
	ElementFormat string

	// RemoteURL attaches to a running browser instead of launching one.
	RemoteURL string

	// ExecPath overrides the Chrome binary.
	ExecPath string

	// Settle is waited after the page is ready, before the element lookup.
	Settle time.Duration

	// WindowWidth and WindowHeight size the viewport. Zero uses 1280x800.
	WindowWidth  int
	WindowHeight int

	Logger *log.Logger
}

func (c *Config) setDefaults() {
	if c.ElementFormat == "" {
		c.ElementFormat = DefaultElementFormat
	}
	if c.WindowWidth <= 0 {
		c.WindowWidth = 1280
	}
	if c.WindowHeight <= 0 {
		c.WindowHeight = 800
	}
	if c.Logger == nil {
		c.Logger = log.New(io.Discard)
	}
}

// Validate checks the page URL and element format.
func (c Config) Validate() error {
	u, err := url.Parse(c.PageURL)
	if err != nil || u.Scheme == "" {
		return apperr.New(apperr.ErrCodeInvalidInput, "browser page URL %q must be absolute", c.PageURL)
	}
	if c.ElementFormat != "" && strings.Count(c.ElementFormat, "%s") != 1 {
		return apperr.New(apperr.ErrCodeInvalidInput, "element format %q must contain exactly one %%s", c.ElementFormat)
	}
	return nil
}

// Provider captures element screenshots. It is safe for concurrent use;
// every capture runs in its own tab.
type Provider struct {
	cfg         Config
	browserCtx  context.Context
	cancelAlloc context.CancelFunc
	cancel      context.CancelFunc
}

// New starts (or attaches to) a browser. Close releases it.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.setDefaults()

	var allocCtx context.Context
	var cancelAlloc context.CancelFunc
	if cfg.RemoteURL != "" {
		allocCtx, cancelAlloc = chromedp.NewRemoteAllocator(context.WithoutCancel(ctx), cfg.RemoteURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight),
			chromedp.Flag("hide-scrollbars", true),
		)
		if cfg.ExecPath != "" {
			opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
		}
		allocCtx, cancelAlloc = chromedp.NewExecAllocator(context.WithoutCancel(ctx), opts...)
	}

	browserCtx, cancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(cfg.Logger.Debugf),
		chromedp.WithErrorf(cfg.Logger.Errorf),
	)
	// The first Run starts the browser.
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		cancelAlloc()
		return nil, apperr.Wrap(apperr.ErrCodeUnsupported, err, "start browser")
	}
	cfg.Logger.Debug("browser ready", "page", cfg.PageURL, "remote", cfg.RemoteURL != "")

	return &Provider{cfg: cfg, browserCtx: browserCtx, cancelAlloc: cancelAlloc, cancel: cancel}, nil
}

// Close shuts the browser down.
func (p *Provider) Close() error {
	p.cancel()
	p.cancelAlloc()
	return nil
}

// ElementID returns the element id that hosts region id.
func (p *Provider) ElementID(id string) string {
	return ElementID(p.cfg.ElementFormat, id)
}

// ElementID formats a region id into an element id.
func ElementID(format, id string) string {
	if format == "" {
		format = DefaultElementFormat
	}
	return fmt.Sprintf(format, capture.NormalizeID(id))
}

// surface states reported by surfaceScript
const (
	stateReady   = "ready"
	stateMissing = "missing"
	stateEmpty   = "empty"
)

// surfaceScript reports whether the element exists and, for same-origin
// iframes, whether its document has rendered a body.
func surfaceScript(elementID string) string {
	quoted, _ := json.Marshal(elementID)
	return fmt.Sprintf(`(() => {
  const el = document.getElementById(%s);
  if (!el) return %q;
  if (el.tagName === "IFRAME") {
    let doc = null;
    try { doc = el.contentDocument; } catch (e) { return %q; }
    if (!doc || !doc.body || doc.body.childNodes.length === 0) return %q;
  }
  return %q;
})()`, quoted, stateMissing, stateReady, stateEmpty, stateReady)
}

// Capture screenshots the element hosting id in a fresh tab.
func (p *Provider) Capture(ctx context.Context, id string) (image.Image, error) {
	tabCtx, cancel := chromedp.NewContext(p.browserCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	elementID := p.ElementID(id)
	var state string
	err := chromedp.Run(tabCtx,
		emulation.SetDeviceMetricsOverride(int64(p.cfg.WindowWidth), int64(p.cfg.WindowHeight), 1, false),
		chromedp.Navigate(p.cfg.PageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(p.cfg.Settle),
		chromedp.Evaluate(surfaceScript(elementID), &state),
	)
	if err != nil {
		return nil, p.contextErr(ctx, err)
	}
	switch state {
	case stateMissing:
		return nil, fmt.Errorf("%w: no element #%s", capture.ErrSurfaceNotFound, elementID)
	case stateEmpty:
		return nil, fmt.Errorf("%w: #%s has no loaded body", capture.ErrSurfaceEmpty, elementID)
	}

	var buf []byte
	if err := chromedp.Run(tabCtx, chromedp.Screenshot(elementID, &buf, chromedp.ByID)); err != nil {
		return nil, p.contextErr(ctx, err)
	}
	img, err := png.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("decode screenshot of #%s: %w", elementID, err)
	}
	return img, nil
}

// contextErr prefers the caller's context error over chromedp's.
func (p *Provider) contextErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}
