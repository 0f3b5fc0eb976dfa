package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Set lazily loads the manifests of one build output directory. Each
// manifest is read at most once and then immutable; the Set is safe for
// concurrent use and is the only owner of the parsed tables.
type Set struct {
	distDir string

	prerenderOnce sync.Once
	prerender     *Prerender
	prerenderErr  error

	pagesOnce sync.Once
	pages     Pages
	pagesErr  error

	middlewareOnce sync.Once
	middleware     *Middleware
	middlewareErr  error

	routesOnce sync.Once
	routes     *Routes
	routesErr  error

	buildIDOnce sync.Once
	buildID     string
	buildIDErr  error
}

// NewSet creates a manifest set rooted at the build output directory.
func NewSet(distDir string) *Set {
	return &Set{distDir: distDir}
}

// DistDir returns the build output directory the set reads from.
func (s *Set) DistDir() string { return s.distDir }

// Prerender returns the prerender manifest. A build without one yields an
// empty manifest, not an error.
func (s *Set) Prerender() (*Prerender, error) {
	s.prerenderOnce.Do(func() {
		p := &Prerender{
			Routes:        map[string]PrerenderRoute{},
			DynamicRoutes: map[string]DynamicRoute{},
		}
		s.prerenderErr = readJSON(filepath.Join(s.distDir, PrerenderFile), p)
		s.prerender = p
	})
	return s.prerender, s.prerenderErr
}

// Pages returns the pages manifest.
func (s *Set) Pages() (Pages, error) {
	s.pagesOnce.Do(func() {
		pages := Pages{}
		s.pagesErr = readJSON(filepath.Join(s.distDir, PagesFile), &pages)
		s.pages = pages
	})
	return s.pages, s.pagesErr
}

// Middleware returns the middleware manifest.
func (s *Set) Middleware() (*Middleware, error) {
	s.middlewareOnce.Do(func() {
		m := &Middleware{Middleware: map[string]MiddlewareInfo{}}
		s.middlewareErr = readJSON(filepath.Join(s.distDir, MiddlewareFile), m)
		s.middleware = m
	})
	return s.middleware, s.middlewareErr
}

// Routes returns the routes manifest.
func (s *Set) Routes() (*Routes, error) {
	s.routesOnce.Do(func() {
		r := &Routes{}
		s.routesErr = readJSON(filepath.Join(s.distDir, RoutesFile), r)
		s.routes = r
	})
	return s.routes, s.routesErr
}

// BuildID returns the deployment identifier written at build time. Data
// requests embed it and are rejected when it does not match.
func (s *Set) BuildID() (string, error) {
	s.buildIDOnce.Do(func() {
		data, err := os.ReadFile(filepath.Join(s.distDir, BuildIDFile))
		if err != nil {
			s.buildIDErr = fmt.Errorf("manifest: read %s: %w", BuildIDFile, err)
			return
		}
		s.buildID = strings.TrimSpace(string(data))
	})
	return s.buildID, s.buildIDErr
}
