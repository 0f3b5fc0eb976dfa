// Package router implements the phased route table: an ordered, immutable
// sequence of typed routes (headers, redirects, rewrites, middleware,
// filesystem, page check, catch-all) built once per server lifetime and
// executed per request. Rewrites restart matching from the top of the table
// with the rewritten path, which is how rewrite chaining works.
package router

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/strata-dev/strata/pkg/manifest"
	"github.com/strata-dev/strata/pkg/routepath"
)

// ErrTooManyRewrites guards against rewrite cycles in the custom route
// tables.
var ErrTooManyRewrites = errors.New("router: too many rewrites for one request")

// maxRestarts bounds how many times one request may re-enter the table after
// a rewrite.
const maxRestarts = 10

// Result is a route handler's verdict. Finished means the response was fully
// written and iteration stops. An unfinished result carrying a Pathname
// restarts matching from the top of the table with that path.
type Result struct {
	Finished bool
	Pathname string
	Query    url.Values
}

// RequestContext is the per-request mutable state threaded through the
// table. It is owned by the handling goroutine and never shared.
type RequestContext struct {
	W http.ResponseWriter
	R *http.Request

	// Pathname is the current logical path, updated by rewrites.
	Pathname string
	Query    url.Values

	Locale        string
	DefaultLocale string

	IsDataRequest bool
	Preview       bool
	MinimalMode   bool

	// Rewritten marks that at least one rewrite changed the path.
	Rewritten bool

	// StrippedLocale and HadTrailingSlash record normalization applied
	// before the table ran.
	StrippedLocale   bool
	HadTrailingSlash bool

	middlewareRan bool
}

// Handler handles one route match. params carries values captured by the
// route's source pattern; nil for the built-in phases.
type Handler func(ctx context.Context, rc *RequestContext, params map[string][]string) (Result, error)

// Route is one entry of the table.
type Route struct {
	Name string

	// check reports whether the route applies to the current path, with any
	// captured params. A nil check always matches.
	check func(rc *RequestContext) (map[string][]string, bool)

	handle Handler
}

// Config assembles a table. The Filesystem, Middleware and CatchAll handlers
// are injected so the table stays independent of static serving and
// rendering.
type Config struct {
	// Routes holds the custom header/redirect/rewrite rules. May be nil.
	Routes *manifest.Routes

	// Middleware runs the edge interceptor chain. Nil disables the
	// middleware catch-all.
	Middleware Handler

	// Filesystem serves static files and fully prebuilt pages. It returns
	// an unfinished result when no file answers the path.
	Filesystem Handler

	// PageChecker reports whether a page (exact or dynamic) would answer
	// the path. Checked before fallback rewrites run.
	PageChecker func(pathname string) bool

	// CatchAll renders the resolved page and always finishes.
	CatchAll Handler

	// Proxy serves rewrites whose destination is an external URL.
	Proxy func(rc *RequestContext, target *url.URL) error

	Logger *slog.Logger
}

// Table is the compiled route table. Immutable after construction and safe
// for concurrent reads.
type Table struct {
	routes []Route
	logger *slog.Logger
}

// New compiles the table in phase order: headers, redirects, beforeFiles
// rewrites, the middleware catch-all, filesystem, afterFiles rewrites, the
// page check, fallback rewrites, then the final catch-all. Middleware sits
// ahead of the filesystem phase so policy interceptors run even for requests
// a static file would satisfy.
func New(cfg Config) (*Table, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	t := &Table{logger: cfg.Logger}

	var rules manifest.Routes
	if cfg.Routes != nil {
		rules = *cfg.Routes
	}

	for _, rule := range rules.Headers {
		route, err := t.headerRoute(rule)
		if err != nil {
			return nil, err
		}
		t.routes = append(t.routes, route)
	}
	for _, rule := range rules.Redirects {
		route, err := t.redirectRoute(rule)
		if err != nil {
			return nil, err
		}
		t.routes = append(t.routes, route)
	}
	for _, rule := range rules.Rewrites.BeforeFiles {
		route, err := t.rewriteRoute("rewrite beforeFiles", rule, cfg.Proxy)
		if err != nil {
			return nil, err
		}
		t.routes = append(t.routes, route)
	}

	if cfg.Middleware != nil {
		t.routes = append(t.routes, Route{
			Name: "middleware",
			check: func(rc *RequestContext) (map[string][]string, bool) {
				return nil, !rc.middlewareRan
			},
			handle: func(ctx context.Context, rc *RequestContext, params map[string][]string) (Result, error) {
				rc.middlewareRan = true
				return cfg.Middleware(ctx, rc, params)
			},
		})
	}

	if cfg.Filesystem != nil {
		t.routes = append(t.routes, Route{Name: "filesystem", handle: cfg.Filesystem})
	}

	for _, rule := range rules.Rewrites.AfterFiles {
		route, err := t.rewriteRoute("rewrite afterFiles", rule, cfg.Proxy)
		if err != nil {
			return nil, err
		}
		t.routes = append(t.routes, route)
	}

	if cfg.PageChecker != nil && cfg.CatchAll != nil {
		t.routes = append(t.routes, Route{
			Name: "page check",
			check: func(rc *RequestContext) (map[string][]string, bool) {
				return nil, cfg.PageChecker(rc.Pathname)
			},
			handle: cfg.CatchAll,
		})
	}

	for _, rule := range rules.Rewrites.Fallback {
		route, err := t.rewriteRoute("rewrite fallback", rule, cfg.Proxy)
		if err != nil {
			return nil, err
		}
		t.routes = append(t.routes, route)
	}

	if cfg.CatchAll != nil {
		t.routes = append(t.routes, Route{Name: "catch-all", handle: cfg.CatchAll})
	}

	return t, nil
}

// Execute runs the table for one request. It returns true when some route
// produced a response. Errors propagate unchanged so the caller applies the
// serving mode's recovery policy.
func (t *Table) Execute(ctx context.Context, rc *RequestContext) (bool, error) {
	for restarts := 0; ; restarts++ {
		if restarts > maxRestarts {
			return false, ErrTooManyRewrites
		}

		restarted := false
		for i := range t.routes {
			route := &t.routes[i]

			var params map[string][]string
			if route.check != nil {
				var ok bool
				params, ok = route.check(rc)
				if !ok {
					continue
				}
			}

			res, err := route.handle(ctx, rc, params)
			if err != nil {
				return false, err
			}
			if res.Finished {
				return true, nil
			}
			if res.Pathname != "" && res.Pathname != rc.Pathname {
				t.logger.Debug("rewrite", "route", route.Name, "from", rc.Pathname, "to", res.Pathname)
				rc.Pathname = routepath.RemoveTrailingSlash(res.Pathname)
				if res.Query != nil {
					rc.Query = mergeQuery(rc.Query, res.Query)
				}
				rc.Rewritten = true
				restarted = true
				break
			}
			if res.Query != nil {
				rc.Query = mergeQuery(rc.Query, res.Query)
			}
		}
		if !restarted {
			return false, nil
		}
	}
}

// mergeQuery overlays extra params onto the request query. Rewritten values
// win over the inbound ones.
func mergeQuery(base, extra url.Values) url.Values {
	if base == nil {
		base = url.Values{}
	}
	for k, vs := range extra {
		base[k] = vs
	}
	return base
}
