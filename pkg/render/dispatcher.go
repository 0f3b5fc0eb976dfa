package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/strata-dev/strata/pkg/manifest"
	"github.com/strata-dev/strata/pkg/pagecache"
	"github.com/strata-dev/strata/pkg/routepath"
)

// KeyPolicy is the configurable policy for cache-key derivation. The
// interaction of AMP variants, trailing slashes and locale-prefixed roots is
// policy, not inference.
type KeyPolicy struct {
	// AMPQueryParam, when set, marks requests whose query contains this
	// param as AMP variants keyed separately.
	AMPQueryParam string

	// AMPSuffix is appended to the key for AMP variants. Default ".amp".
	AMPSuffix string

	// KeepTrailingSlash keys the slashed and unslashed forms separately.
	// Off by default: canonicalization already strips the slash.
	KeepTrailingSlash bool
}

// Options configures the dispatcher.
type Options struct {
	// Dev enables development behavior: on-demand fallback renders, error
	// detail in responses.
	Dev bool

	// MinimalMode disables caching and local error recovery; an external
	// layer owns both.
	MinimalMode bool

	// DynamicHTML forces fresh dynamic HTML for every request, disabling
	// cache keys even for statically generated pages.
	DynamicHTML bool

	DefaultLocale string
	Locales       []string

	KeyPolicy KeyPolicy

	Logger *slog.Logger
}

// Request is the explicit, immutable per-request rendering context.
type Request struct {
	// HTTP is the inbound request, used by the renderer collaborator.
	HTTP *http.Request

	// Pathname is the locale-stripped, canonicalized request path.
	Pathname string

	Query url.Values

	// Locale is the detected request locale, "" when i18n is off.
	Locale string

	// IsDataRequest marks /_next/data requests: the payload is the page's
	// serialized data, and redirects are emitted as JSON metadata.
	IsDataRequest bool

	// Preview marks an active preview-mode session, which bypasses caching.
	Preview bool
}

// DynamicRouteDescriptor pairs a dynamic logical page with its compiled
// matcher. Descriptors are ordered so static segments always match before
// parameterized ones.
type DynamicRouteDescriptor struct {
	Page    string
	pattern *routepath.Pattern
}

// Match tries the descriptor against a concrete path.
func (d *DynamicRouteDescriptor) Match(path string) (routepath.Params, bool) {
	return d.pattern.Match(path)
}

// matchOutcome is the explicit result of trying one candidate page, instead
// of exception-driven control flow.
type matchOutcome int

const (
	outcomeMatched matchOutcome = iota

	// outcomeNoFallback means the candidate's fallback policy rejects this
	// path; dispatch tries the next sibling route before giving up.
	outcomeNoFallback

	// outcomeNotFound means the page rendered to "not found".
	outcomeNotFound
)

// Dispatcher coordinates page resolution, caching and rendering.
type Dispatcher struct {
	opts      Options
	loader    ComponentLoader
	renderer  Renderer
	cache     *pagecache.Cache
	manifests *manifest.Set

	pages   manifest.Pages
	dynamic []DynamicRouteDescriptor
	logger  *slog.Logger
}

// NewDispatcher builds a dispatcher over the given manifests and
// collaborators. The dynamic route table is derived from the pages manifest
// once, in specificity order.
func NewDispatcher(manifests *manifest.Set, loader ComponentLoader, renderer Renderer, cache *pagecache.Cache, opts Options) (*Dispatcher, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.KeyPolicy.AMPSuffix == "" {
		opts.KeyPolicy.AMPSuffix = ".amp"
	}

	pages, err := manifests.Pages()
	if err != nil {
		return nil, err
	}

	var dynamicPages []string
	for page := range pages {
		if routepath.IsDynamic(page) {
			dynamicPages = append(dynamicPages, page)
		}
	}
	var dynamic []DynamicRouteDescriptor
	for _, page := range routepath.SortPages(dynamicPages) {
		pattern, err := routepath.Compile(page)
		if err != nil {
			return nil, fmt.Errorf("render: page %q: %w", page, err)
		}
		dynamic = append(dynamic, DynamicRouteDescriptor{Page: page, pattern: pattern})
	}

	return &Dispatcher{
		opts:      opts,
		loader:    loader,
		renderer:  renderer,
		cache:     cache,
		manifests: manifests,
		pages:     pages,
		dynamic:   dynamic,
		logger:    opts.Logger,
	}, nil
}

// candidate is one page that may answer the request.
type candidate struct {
	page   string
	params routepath.Params
}

// candidates resolves the ordered pages to try for a path: the exact page
// first, then dynamic descriptors in specificity order.
func (d *Dispatcher) candidates(path string) []candidate {
	var out []candidate
	if _, ok := d.pages[path]; ok {
		out = append(out, candidate{page: path})
	}
	for i := range d.dynamic {
		desc := &d.dynamic[i]
		if desc.Page == path {
			continue
		}
		if params, ok := desc.Match(path); ok {
			out = append(out, candidate{page: desc.Page, params: params})
		}
	}
	return out
}

// HasPage reports whether any page (exact or dynamic) would answer the path.
// The route table's page-check phase uses this before fallback rewrites.
func (d *Dispatcher) HasPage(path string) bool {
	return len(d.candidates(path)) > 0
}

// Resolve returns the logical page and captured params that would answer
// the path. Used to hand routing context to edge interceptors.
func (d *Dispatcher) Resolve(path string) (string, routepath.Params, bool) {
	cands := d.candidates(path)
	if len(cands) == 0 {
		return "", nil, false
	}
	return cands[0].page, cands[0].params, true
}

// HasExactPage reports whether the path names a known logical page.
func (d *Dispatcher) HasExactPage(page string) bool {
	_, ok := d.pages[page]
	return ok
}

// RenderPage resolves and renders the page answering req. ErrPageNotFound
// means no candidate could answer and the caller should present a 404.
func (d *Dispatcher) RenderPage(ctx context.Context, req *Request) (*Payload, error) {
	for _, cand := range d.candidates(req.Pathname) {
		outcome, payload, err := d.renderCandidate(ctx, req, cand)
		if err != nil {
			if err == ErrPageNotFound {
				// Bundle missing on disk: fall through to a sibling route.
				continue
			}
			return nil, err
		}
		switch outcome {
		case outcomeNoFallback:
			continue
		case outcomeNotFound:
			return nil, ErrPageNotFound
		default:
			return payload, nil
		}
	}
	return nil, ErrPageNotFound
}

// renderCandidate tries to answer the request with one candidate page.
func (d *Dispatcher) renderCandidate(ctx context.Context, req *Request, cand candidate) (matchOutcome, *Payload, error) {
	bundle, err := d.loader.Load(ctx, cand.page, req.Locale)
	if err != nil {
		return 0, nil, err
	}

	// Fully prebuilt page: served verbatim, no render machinery.
	if bundle.StaticHTML != nil && !bundle.SSG {
		return outcomeMatched, &Payload{
			Kind:       PayloadHTML,
			Body:       bundle.StaticHTML,
			Revalidate: manifest.Revalidate{Forever: true},
		}, nil
	}

	prerender, err := d.manifests.Prerender()
	if err != nil {
		return 0, nil, err
	}

	key := d.cacheKey(req, bundle)
	entry, err := d.cache.Get(ctx, key, d.producer(req, bundle, cand, prerender))
	if err != nil {
		if err == errNoFallback {
			// Unknown path with fallback disabled: the renderer was never
			// invoked; dispatch may still land on a sibling route.
			return outcomeNoFallback, nil, nil
		}
		return 0, nil, err
	}
	if entry == nil {
		// Producer wrote the response directly; nothing left to do.
		return outcomeMatched, nil, nil
	}
	return d.payloadFromEntry(req, entry, key)
}

// isKnownStaticPath checks the prerendered path set for the request path,
// with and without the locale prefix.
func (d *Dispatcher) isKnownStaticPath(prerender *manifest.Prerender, req *Request) bool {
	if prerender.HasStaticPath(req.Pathname) {
		return true
	}
	if req.Locale != "" {
		return prerender.HasStaticPath("/" + req.Locale + req.Pathname)
	}
	return false
}

// errNoFallback signals that a dynamic page rejects the requested path and
// the renderer must not run. Consumed inside RenderPage's candidate loop.
var errNoFallback = errors.New("render: no fallback for unresolved path")

// producer builds the cache producer for one page render. It only runs on a
// true cache miss, so a path already committed by an earlier render (for
// example through a client data request filling in a skeleton) is served
// from cache without re-checking fallback policy.
func (d *Dispatcher) producer(req *Request, bundle *PageBundle, cand candidate, prerender *manifest.Prerender) pagecache.Producer {
	return func(ctx context.Context, hasResolved bool) (*pagecache.Entry, error) {
		if routepath.IsDynamic(cand.page) && bundle.SSG && !d.opts.Dev && !req.Preview &&
			!d.isKnownStaticPath(prerender, req) {
			fallback, _ := prerender.FallbackFor(cand.page)
			switch fallback.Mode {
			case manifest.FallbackNone:
				return nil, errNoFallback
			case manifest.FallbackStatic:
				if !req.IsDataRequest {
					// Serve the prebuilt skeleton without storing it; the
					// client's follow-up data request performs the real
					// render and commits the entry.
					return &pagecache.Entry{
						Value:      &pagecache.Value{Kind: pagecache.KindPage, HTML: bundle.FallbackHTML},
						Revalidate: -1,
						ProducedAt: time.Now(),
					}, nil
				}
				// Data requests render blocking so the skeleton the client
				// already shows gets real data.
			}
		}

		result, err := d.renderer.Render(ctx, req.HTTP, bundle, RenderOptions{
			Query:         req.Query,
			Params:        cand.params,
			Locale:        req.Locale,
			DefaultLocale: d.opts.DefaultLocale,
			Locales:       d.opts.Locales,
			IsDataRequest: req.IsDataRequest,
			Preview:       req.Preview,
			Dev:           d.opts.Dev,
		})
		if err != nil {
			return nil, err
		}

		value := &pagecache.Value{Kind: pagecache.KindPage, HTML: result.HTML, PageData: result.PageData}
		switch {
		case result.NotFound:
			value = &pagecache.Value{Kind: pagecache.KindNotFound}
		case result.Redirect != nil:
			value = &pagecache.Value{Kind: pagecache.KindRedirect, Redirect: result.Redirect}
		}

		revalidate := result.Revalidate.Duration()
		if !bundle.SSG || d.opts.Dev {
			// Server-rendered and development output must never be stored.
			revalidate = -1
		}
		return &pagecache.Entry{
			Value:      value,
			Revalidate: revalidate,
			ProducedAt: time.Now(),
		}, nil
	}
}

// payloadFromEntry converts a cache entry into the typed response payload.
func (d *Dispatcher) payloadFromEntry(req *Request, entry *pagecache.Entry, key string) (matchOutcome, *Payload, error) {
	revalidate := manifest.Revalidate{}
	switch {
	case entry.Revalidate == 0:
		revalidate = manifest.Revalidate{Forever: true}
	case entry.Revalidate > 0:
		revalidate = manifest.Revalidate{Seconds: int(entry.Revalidate / time.Second)}
	}
	noCache := key == "" || req.Preview || entry.Revalidate < 0

	switch entry.Value.Kind {
	case pagecache.KindNotFound:
		return outcomeNotFound, nil, nil

	case pagecache.KindRedirect:
		redirect := entry.Value.Redirect
		if req.IsDataRequest {
			// Data requests receive the redirect as payload metadata, not
			// as an HTTP 3xx, so the client router can act on it.
			body := fmt.Sprintf(`{"pageProps":{"__N_REDIRECT":%s,"__N_REDIRECT_STATUS":%d},"__N_SSG":true}`,
				strconv.Quote(redirect.Destination), redirect.StatusCode)
			return outcomeMatched, &Payload{
				Kind:       PayloadJSON,
				Body:       []byte(body),
				Revalidate: revalidate,
				NoCache:    noCache,
			}, nil
		}
		headers := http.Header{}
		headers.Set("Location", redirect.Destination)
		return outcomeMatched, &Payload{
			Kind:       PayloadEmpty,
			StatusCode: redirect.StatusCode,
			Headers:    headers,
			Revalidate: revalidate,
			NoCache:    noCache,
		}, nil

	default:
		if req.IsDataRequest {
			return outcomeMatched, &Payload{
				Kind:       PayloadJSON,
				Body:       entry.Value.PageData,
				Revalidate: revalidate,
				NoCache:    noCache,
			}, nil
		}
		return outcomeMatched, &Payload{
			Kind:       PayloadHTML,
			Body:       entry.Value.HTML,
			Revalidate: revalidate,
			NoCache:    noCache,
		}, nil
	}
}

// cacheKey derives the cache key for a request, or "" when the response must
// never be cached: preview mode, minimal serving, forced dynamic HTML, and
// anything not statically generated.
func (d *Dispatcher) cacheKey(req *Request, bundle *PageBundle) string {
	if req.Preview || d.opts.MinimalMode || d.opts.DynamicHTML || !bundle.SSG {
		return ""
	}
	path := req.Pathname
	if !d.opts.KeyPolicy.KeepTrailingSlash {
		path = routepath.RemoveTrailingSlash(path)
	}
	key := path
	if req.Locale != "" {
		if path == "/" {
			key = "/" + req.Locale
		} else {
			key = "/" + req.Locale + path
		}
	}
	if p := d.opts.KeyPolicy.AMPQueryParam; p != "" {
		if v := req.Query.Get(p); v == "1" || v == "true" {
			key += d.opts.KeyPolicy.AMPSuffix
		}
	}
	return key
}
