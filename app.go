package strata

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/strata-dev/strata/pkg/edge"
	"github.com/strata-dev/strata/pkg/manifest"
	"github.com/strata-dev/strata/pkg/pagecache"
	"github.com/strata-dev/strata/pkg/render"
	"github.com/strata-dev/strata/pkg/routepath"
	"github.com/strata-dev/strata/pkg/router"
)

// previewCookie marks an active preview-mode session. Its value must match
// the credential minted into the prerender manifest at build time.
const previewCookie = "__prerender_bypass"

// Response header conventions for external routing layers.
const (
	headerMatchedPath  = "x-matched-path"
	headerDeploymentID = "x-deployment-id"
)

// =============================================================================
// App Type
// =============================================================================

// App is the page-serving core. It wires path normalization, the phased
// route table, the edge middleware chain, the response cache and the render
// dispatcher into a single http.Handler.
//
// Create an App with strata.New():
//
//	app, err := strata.New(strata.Config{DistDir: ".next"}, loader, renderer, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	http.ListenAndServe(":3000", app)
type App struct {
	config Config
	logger *slog.Logger

	manifests  *manifest.Set
	buildID    string
	deployment string
	preview    manifest.Preview

	cache      *pagecache.Cache
	dispatcher *render.Dispatcher
	presenter  *render.ErrorPresenter
	chain      *edge.Chain
	table      *router.Table
	proxy      *router.Proxy

	publicFS http.FileSystem
	assetFS  http.FileSystem
}

// New creates an App over a build output directory. The loader and renderer
// are the external collaborators producing page output; runner executes edge
// middleware and may be nil when the build has none.
func New(cfg Config, loader render.ComponentLoader, renderer render.Renderer, runner edge.Runner) (*App, error) {
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger

	manifests := manifest.NewSet(cfg.DistDir)
	buildID, err := manifests.BuildID()
	if err != nil {
		return nil, err
	}
	prerender, err := manifests.Prerender()
	if err != nil {
		return nil, err
	}

	deployment := cfg.DeploymentID
	if deployment == "" {
		deployment = buildID
	}

	cache := pagecache.New(
		pagecache.NewMemoryStore(cfg.Cache.MaxEntries),
		pagecache.WithLogger(logger),
		pagecache.WithHooks(cfg.Cache.Hooks),
		pagecache.WithDurable(cfg.Cache.Durable),
	)

	dispatcher, err := render.NewDispatcher(manifests, loader, renderer, cache, render.Options{
		Dev:           cfg.Dev,
		MinimalMode:   cfg.MinimalMode,
		DefaultLocale: cfg.I18n.DefaultLocale,
		Locales:       cfg.I18n.Locales,
		KeyPolicy:     cfg.KeyPolicy,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}

	app := &App{
		config:     cfg,
		logger:     logger,
		manifests:  manifests,
		buildID:    buildID,
		deployment: deployment,
		preview:    prerender.Preview,
		cache:      cache,
		dispatcher: dispatcher,
		presenter:  render.NewErrorPresenter(dispatcher, logger),
		proxy:      router.NewProxy(cfg.Proxy.Timeout, logger),
	}

	if runner != nil {
		mw, err := manifests.Middleware()
		if err != nil {
			return nil, err
		}
		if len(mw.Middleware) > 0 {
			chain, err := edge.NewChain(mw, runner, logger)
			if err != nil {
				return nil, err
			}
			app.chain = chain
		}
	}

	routes, err := manifests.Routes()
	if err != nil {
		return nil, err
	}

	tableCfg := router.Config{
		Routes:      routes,
		Filesystem:  app.filesystemRoute,
		PageChecker: dispatcher.HasPage,
		CatchAll:    app.catchAllRoute,
		Proxy:       app.proxy.Serve,
		Logger:      logger,
	}
	if app.chain != nil && app.chain.Enabled() {
		tableCfg.Middleware = app.middlewareRoute
	}
	table, err := router.New(tableCfg)
	if err != nil {
		return nil, err
	}
	app.table = table

	if cfg.Static.Dir != "" {
		app.publicFS = http.Dir(cfg.Static.Dir)
	}
	app.assetFS = http.Dir(filepath.Join(cfg.DistDir, "static"))

	return app, nil
}

// BuildID returns the build identifier read from the build output.
func (a *App) BuildID() string { return a.buildID }

// Cache exposes the response cache, used for explicit invalidation and for
// draining background work on shutdown.
func (a *App) Cache() *pagecache.Cache { return a.cache }

// =============================================================================
// http.Handler Implementation
// =============================================================================

// ServeHTTP implements http.Handler. The pipeline is: canonicalize the path,
// apply deployment/basePath/trailing-slash policy, strip the data-request
// and locale prefixes, then hand the request to the route table. Unhandled
// failures become error pages, except in minimal mode where they propagate.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	canonical, err := routepath.Canonicalize(r.URL.EscapedPath())
	if err != nil {
		// Malformed encoding never reaches the renderer.
		a.respondStatus(w, r, http.StatusBadRequest, err)
		return
	}
	path := canonical.Path

	if a.config.MinimalMode {
		if id := r.Header.Get(headerDeploymentID); id != "" && id != a.deployment {
			w.WriteHeader(http.StatusPreconditionFailed)
			return
		}
		if mp := r.Header.Get(headerMatchedPath); mp != "" {
			path = mp
		}
	}

	if a.config.BasePath != "" {
		stripped, ok := routepath.StripBasePath(path, a.config.BasePath)
		if !ok {
			a.respondStatus(w, r, http.StatusNotFound, nil)
			return
		}
		path = stripped
	}

	if strings.HasPrefix(path, "/_next/static/") {
		a.serveBuildAsset(w, r, path)
		return
	}

	hadSlash := canonical.HadTrailingSlash
	if a.redirectTrailingSlash(w, r, path, hadSlash) {
		return
	}

	isData := routepath.IsDataPath(path)
	if isData {
		page, ok := routepath.StripDataPath(path, a.buildID)
		if !ok {
			// Foreign build ID: the deployment this URL belongs to is gone.
			a.respondStatus(w, r, http.StatusNotFound, nil)
			return
		}
		path = page
	}

	locale, defaultLocale, strippedLocale := a.detectLocale(r, &path)
	if !isData && a.redirectLocaleRoot(w, r, path, locale, defaultLocale, strippedLocale) {
		return
	}

	query := r.URL.Query()
	if canonical.Query != "" {
		if extra, err := url.ParseQuery(canonical.Query); err == nil {
			for k, vs := range extra {
				query[k] = vs
			}
		}
	}

	rc := &router.RequestContext{
		W:                w,
		R:                r,
		Pathname:         path,
		Query:            query,
		Locale:           locale,
		DefaultLocale:    defaultLocale,
		IsDataRequest:    isData,
		Preview:          a.isPreview(r),
		MinimalMode:      a.config.MinimalMode,
		StrippedLocale:   strippedLocale,
		HadTrailingSlash: hadSlash,
	}

	handled, err := a.table.Execute(r.Context(), rc)
	if err != nil {
		a.handlePipelineError(rc, err)
		return
	}
	if !handled {
		a.respondError(rc, http.StatusNotFound, nil)
	}
}

// redirectTrailingSlash enforces the canonical slash form with a 308. Data
// requests and build assets are exempt, as are paths that look like files.
// The path arrives already normalized, so the original slash is carried in
// hadSlash rather than read off the path itself.
func (a *App) redirectTrailingSlash(w http.ResponseWriter, r *http.Request, path string, hadSlash bool) bool {
	if path == "/" || routepath.IsDataPath(path) || strings.HasPrefix(path, "/_next/") {
		return false
	}
	lastSeg := path[strings.LastIndex(path, "/")+1:]
	isFile := strings.Contains(lastSeg, ".")

	var target string
	switch {
	case !a.config.TrailingSlash && hadSlash:
		target = path
	case a.config.TrailingSlash && !hadSlash && !isFile:
		target = routepath.AddTrailingSlash(path)
	default:
		return false
	}
	target = routepath.AddBasePath(target, a.config.BasePath)
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	router.WriteRedirect(w, target, http.StatusPermanentRedirect)
	return true
}

// detectLocale strips a locale prefix from the path and falls back to
// domain, cookie and Accept-Language detection. It returns the effective
// locale, the effective default locale and whether the path carried a
// prefix.
func (a *App) detectLocale(r *http.Request, path *string) (locale, defaultLocale string, stripped bool) {
	i18n := a.config.I18n
	if len(i18n.Locales) == 0 {
		return "", "", false
	}
	defaultLocale = i18n.DefaultLocale
	if d := routepath.DomainForHost(r.Host, i18n.Domains); d != nil {
		defaultLocale = d.DefaultLocale
	}

	pl := routepath.StripPathLocale(*path, i18n.Locales)
	if pl.Locale != "" {
		*path = pl.Path
		return pl.Locale, defaultLocale, true
	}

	locale = defaultLocale
	if !i18n.DisableDetection {
		if c, err := r.Cookie(LocaleCookie); err == nil && c.Value != "" {
			if matched := routepath.NegotiateLocale(c.Value, i18n.Locales); matched != "" {
				locale = matched
			}
		} else if matched := routepath.NegotiateLocale(r.Header.Get("Accept-Language"), i18n.Locales); matched != "" {
			locale = matched
		}
	}
	return locale, defaultLocale, false
}

// redirectLocaleRoot sends visitors of the bare root to their detected
// locale's root. Only the root path redirects; deep links stay put.
func (a *App) redirectLocaleRoot(w http.ResponseWriter, r *http.Request, path, locale, defaultLocale string, stripped bool) bool {
	if path != "/" || stripped || locale == "" || a.config.I18n.DisableDetection {
		return false
	}
	if strings.EqualFold(locale, defaultLocale) {
		return false
	}
	target := routepath.AddBasePath(routepath.AddPathLocale(path, locale, defaultLocale), a.config.BasePath)
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	router.WriteRedirect(w, target, http.StatusTemporaryRedirect)
	return true
}

// isPreview reports whether the request carries a valid preview bypass
// cookie.
func (a *App) isPreview(r *http.Request) bool {
	if a.preview.ID == "" {
		return false
	}
	c, err := r.Cookie(previewCookie)
	return err == nil && c.Value == a.preview.ID
}

// =============================================================================
// Route Table Handlers
// =============================================================================

// middlewareRoute bridges the edge chain into the table: a chain rewrite
// re-enters the table, a redirect or refresh terminates, next falls through.
func (a *App) middlewareRoute(ctx context.Context, rc *router.RequestContext, _ map[string][]string) (router.Result, error) {
	page, params, _ := a.dispatcher.Resolve(rc.Pathname)
	result, err := a.chain.Run(ctx, rc.R, rc.Pathname, edge.PageInfo{Name: page, Params: params})
	if err != nil {
		return router.Result{}, err
	}
	if result == nil {
		return router.Result{}, nil
	}

	for name, values := range result.Headers {
		rc.W.Header()[http.CanonicalHeaderKey(name)] = values
	}

	switch result.Outcome {
	case edge.OutcomeRedirect:
		rc.W.Header().Set("Location", result.Location)
		rc.W.WriteHeader(result.StatusCode)
		return router.Result{Finished: true}, nil

	case edge.OutcomeRefresh:
		if result.StatusCode != 0 {
			rc.W.WriteHeader(result.StatusCode)
		}
		_, werr := rc.W.Write(result.Body)
		return router.Result{Finished: true}, werr

	case edge.OutcomeRewrite:
		return a.middlewareRewrite(rc, result.RewriteTarget)

	default:
		return router.Result{}, nil
	}
}

// middlewareRewrite handles a chain rewrite target: same-host targets
// re-enter the table, foreign hosts are proxied.
func (a *App) middlewareRewrite(rc *router.RequestContext, target string) (router.Result, error) {
	u, err := url.Parse(target)
	if err != nil {
		return router.Result{}, err
	}
	if u.Host != "" && u.Host != rc.R.Host {
		if err := a.proxy.Serve(rc, u); err != nil {
			return router.Result{}, err
		}
		return router.Result{Finished: true}, nil
	}

	path := u.Path
	if stripped, ok := routepath.StripBasePath(path, a.config.BasePath); ok {
		path = stripped
	}
	if pl := routepath.StripPathLocale(path, a.config.I18n.Locales); pl.Locale != "" {
		path = pl.Path
		rc.Locale = pl.Locale
	}
	return router.Result{Pathname: path, Query: u.Query()}, nil
}

// catchAllRoute renders the resolved page and always finishes. A not-found
// result flows through the error presenter so custom 404 pages apply.
func (a *App) catchAllRoute(ctx context.Context, rc *router.RequestContext, _ map[string][]string) (router.Result, error) {
	req := a.renderRequest(rc)

	if a.config.MinimalMode {
		if page, _, ok := a.dispatcher.Resolve(rc.Pathname); ok {
			rc.W.Header().Set(headerMatchedPath, page)
		}
	}

	payload, err := a.dispatcher.RenderPage(ctx, req)
	if err != nil {
		if errors.Is(err, render.ErrPageNotFound) {
			a.respondError(rc, http.StatusNotFound, nil)
			return router.Result{Finished: true}, nil
		}
		return router.Result{}, err
	}
	if payload == nil {
		return router.Result{Finished: true}, nil
	}
	return router.Result{Finished: true}, payload.WriteTo(rc.W)
}

// filesystemRoute serves public directory files. It never finishes a request
// it cannot satisfy, letting later phases run.
func (a *App) filesystemRoute(_ context.Context, rc *router.RequestContext, _ map[string][]string) (router.Result, error) {
	if a.publicFS == nil || !a.hasPublicFile(rc.Pathname) {
		return router.Result{}, nil
	}
	a.servePublicFile(rc.W, rc.R, rc.Pathname)
	return router.Result{Finished: true}, nil
}

// =============================================================================
// Error Handling
// =============================================================================

// renderRequest builds the immutable render context from the routed request.
func (a *App) renderRequest(rc *router.RequestContext) *render.Request {
	return &render.Request{
		HTTP:          rc.R,
		Pathname:      rc.Pathname,
		Query:         rc.Query,
		Locale:        rc.Locale,
		IsDataRequest: rc.IsDataRequest,
		Preview:       rc.Preview,
	}
}

// handlePipelineError applies the serving mode's recovery policy. In minimal
// mode errors propagate unmodified for external supervision; otherwise they
// become a 500 error page.
func (a *App) handlePipelineError(rc *router.RequestContext, err error) {
	if a.config.MinimalMode {
		if a.config.OnUnhandledError != nil {
			a.config.OnUnhandledError(err)
			return
		}
		panic(err)
	}
	var herr *HTTPError
	if errors.As(err, &herr) && herr.Status >= 400 {
		a.respondError(rc, herr.Status, herr.Err)
		return
	}
	a.respondError(rc, http.StatusInternalServerError, err)
}

// respondError renders an error page through the dispatcher.
func (a *App) respondError(rc *router.RequestContext, status int, cause error) {
	payload := a.presenter.RenderError(rc.R.Context(), a.renderRequest(rc), status, cause)
	if err := payload.WriteTo(rc.W); err != nil {
		a.logger.Warn("error response write failed", "path", rc.Pathname, "error", err)
	}
}

// respondStatus renders an error page for requests that failed before a
// request context existed.
func (a *App) respondStatus(w http.ResponseWriter, r *http.Request, status int, cause error) {
	req := &render.Request{HTTP: r, Pathname: r.URL.Path, Query: url.Values{}}
	payload := a.presenter.RenderError(r.Context(), req, status, cause)
	if err := payload.WriteTo(w); err != nil {
		a.logger.Warn("error response write failed", "path", r.URL.Path, "error", err)
	}
}
