// Package render turns resolved pages into response payloads. The
// Dispatcher owns page resolution, cache-key computation, fallback policy
// and redirect/not-found handling; the actual component loading and
// HTML/JSON serialization are external collaborators.
package render

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/strata-dev/strata/pkg/manifest"
	"github.com/strata-dev/strata/pkg/pagecache"
	"github.com/strata-dev/strata/pkg/routepath"
)

// Collaborator errors.
var (
	// ErrPageNotFound signals a logical page with no loadable bundle. It is
	// expected control flow, not a failure: dispatch falls through to the
	// next candidate route or a 404.
	ErrPageNotFound = errors.New("render: page not found")
)

// WrappedBuildError marks a rendering-time compile failure surfaced during
// development. The build subsystem already reported it, so it is converted
// to a 500 without additional logging.
type WrappedBuildError struct {
	Err error
}

// Error implements the error interface.
func (e *WrappedBuildError) Error() string { return e.Err.Error() }

// Unwrap returns the underlying build error.
func (e *WrappedBuildError) Unwrap() error { return e.Err }

// BundleMode selects the invocation shape of a page bundle, decided once at
// load time.
type BundleMode int

const (
	// DirectRender bundles expose the page to the in-process renderer.
	DirectRender BundleMode = iota

	// BundledRender bundles are self-contained handlers (serverless-style
	// output) the renderer invokes as a unit.
	BundledRender
)

// PageBundle is what the ComponentLoader returns for a logical page.
type PageBundle struct {
	// Page is the logical page path the bundle was resolved for.
	Page string

	// Mode is fixed at load time and never re-derived per request.
	Mode BundleMode

	// SSG marks statically generated pages whose output is cacheable.
	SSG bool

	// StaticHTML, when non-nil, is a fully prebuilt page served verbatim
	// without invoking the renderer.
	StaticHTML []byte

	// FallbackHTML is the prebuilt skeleton for fallback:static pages.
	FallbackHTML []byte

	// Handle is an opaque reference the Renderer understands.
	Handle any
}

// ComponentLoader resolves logical page paths to renderable bundles. It must
// be locale-path aware: with a locale set, /{locale}{path} is tried before
// the bare path. A missing page is ErrPageNotFound.
type ComponentLoader interface {
	Load(ctx context.Context, page string, locale string) (*PageBundle, error)
}

// RenderOptions is the immutable per-request rendering context, built once
// at the top of dispatch and passed down by value.
type RenderOptions struct {
	Query         url.Values
	Params        routepath.Params
	Locale        string
	DefaultLocale string
	Locales       []string
	IsDataRequest bool
	IsFallback    bool
	Preview       bool
	Dev           bool
}

// RenderResult is what the Renderer produced for one page invocation.
type RenderResult struct {
	HTML       []byte
	PageData   json.RawMessage
	Revalidate manifest.Revalidate
	NotFound   bool
	Redirect   *pagecache.RedirectValue
}

// Renderer serializes a page bundle into HTML and page data.
type Renderer interface {
	Render(ctx context.Context, req *http.Request, bundle *PageBundle, opts RenderOptions) (*RenderResult, error)
}

// PayloadKind tags the response body type.
type PayloadKind int

const (
	// PayloadHTML is a rendered document.
	PayloadHTML PayloadKind = iota

	// PayloadJSON is serialized page data for a data request.
	PayloadJSON

	// PayloadEmpty carries no body (redirects).
	PayloadEmpty
)

// Payload is a fully determined response: body, status, headers and the
// caching policy derived from the entry that produced it.
type Payload struct {
	Kind       PayloadKind
	Body       []byte
	StatusCode int
	Headers    http.Header

	// Revalidate drives the Cache-Control header; zero means immutable
	// until redeploy.
	Revalidate manifest.Revalidate

	// NoCache forces private, uncached delivery (preview mode, fallback
	// skeletons, server-rendered output).
	NoCache bool
}

// WriteTo writes the payload to the response writer.
func (p *Payload) WriteTo(w http.ResponseWriter) error {
	h := w.Header()
	for name, values := range p.Headers {
		h[name] = values
	}
	switch p.Kind {
	case PayloadHTML:
		if h.Get("Content-Type") == "" {
			h.Set("Content-Type", "text/html; charset=utf-8")
		}
	case PayloadJSON:
		h.Set("Content-Type", "application/json")
	}
	if h.Get("Cache-Control") == "" {
		h.Set("Cache-Control", p.cacheControl())
	}
	status := p.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(p.Body) > 0 {
		_, err := w.Write(p.Body)
		return err
	}
	return nil
}

// cacheControl derives the Cache-Control header from the revalidation
// policy.
func (p *Payload) cacheControl() string {
	if p.NoCache {
		return "private, no-cache, no-store, max-age=0, must-revalidate"
	}
	if p.Revalidate.Forever {
		return "s-maxage=31536000, stale-while-revalidate"
	}
	if p.Revalidate.Seconds > 0 {
		return "s-maxage=" + strconv.Itoa(p.Revalidate.Seconds) + ", stale-while-revalidate"
	}
	return "private, no-cache, no-store, max-age=0, must-revalidate"
}
