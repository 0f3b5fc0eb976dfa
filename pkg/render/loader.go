package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/strata-dev/strata/pkg/manifest"
	"github.com/strata-dev/strata/pkg/routepath"
)

// FSLoader loads page bundles from the build output directory. Bundles are
// loaded once per page and locale, then served from memory; the build output
// is immutable for the server's lifetime.
type FSLoader struct {
	manifests *manifest.Set

	ssgOnce  sync.Once
	ssgPages map[string]bool
	ssgErr   error

	mu      sync.Mutex
	bundles map[string]*PageBundle
}

// NewFSLoader creates a loader over a manifest set.
func NewFSLoader(manifests *manifest.Set) *FSLoader {
	return &FSLoader{
		manifests: manifests,
		bundles:   map[string]*PageBundle{},
	}
}

// Load implements ComponentLoader.
func (l *FSLoader) Load(_ context.Context, page, locale string) (*PageBundle, error) {
	key := page + "|" + locale

	l.mu.Lock()
	if b, ok := l.bundles[key]; ok {
		l.mu.Unlock()
		return b, nil
	}
	l.mu.Unlock()

	b, err := l.load(page, locale)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.bundles[key] = b
	l.mu.Unlock()
	return b, nil
}

func (l *FSLoader) load(page, locale string) (*PageBundle, error) {
	pages, err := l.manifests.Pages()
	if err != nil {
		return nil, err
	}
	file, ok := pages[page]
	if !ok {
		return nil, ErrPageNotFound
	}

	ssg, err := l.isSSG(page)
	if err != nil {
		return nil, err
	}

	bundle := &PageBundle{Page: page, Mode: BundledRender, SSG: ssg}

	// A .html bundle is a fully prebuilt page with no data fetching.
	if strings.HasSuffix(file, ".html") {
		html, err := l.readPageFile(file, locale)
		if err != nil {
			return nil, err
		}
		bundle.StaticHTML = html
		bundle.SSG = false
		return bundle, nil
	}

	if ssg && routepath.IsDynamic(page) {
		prerender, err := l.manifests.Prerender()
		if err != nil {
			return nil, err
		}
		if fb, ok := prerender.FallbackFor(page); ok && fb.Mode == manifest.FallbackStatic {
			skeleton, err := l.readPageFile(filepath.Join("pages", fb.Path), locale)
			if err != nil {
				return nil, fmt.Errorf("render: fallback skeleton for %s: %w", page, err)
			}
			bundle.FallbackHTML = skeleton
		}
	}
	return bundle, nil
}

// isSSG reports whether the page was statically generated. The page set is
// derived from the prerender manifest once.
func (l *FSLoader) isSSG(page string) (bool, error) {
	l.ssgOnce.Do(func() {
		prerender, err := l.manifests.Prerender()
		if err != nil {
			l.ssgErr = err
			return
		}
		set := map[string]bool{}
		for route, info := range prerender.Routes {
			if info.SrcRoute != "" {
				set[info.SrcRoute] = true
			} else {
				set[route] = true
			}
		}
		for route := range prerender.DynamicRoutes {
			set[route] = true
		}
		l.ssgPages = set
	})
	if l.ssgErr != nil {
		return false, l.ssgErr
	}
	return l.ssgPages[page], nil
}

// readPageFile reads a server output file, trying the locale-prefixed
// variant before the bare one.
func (l *FSLoader) readPageFile(rel, locale string) ([]byte, error) {
	root := filepath.Join(l.manifests.DistDir(), "server")

	var candidates []string
	if locale != "" && strings.HasPrefix(rel, "pages/") {
		candidates = append(candidates, filepath.Join(root, "pages", locale, strings.TrimPrefix(rel, "pages/")))
	}
	candidates = append(candidates, filepath.Join(root, rel))

	for _, p := range candidates {
		data, err := os.ReadFile(p)
		if err == nil {
			return data, nil
		}
		if !os.IsNotExist(err) {
			return nil, err
		}
	}
	return nil, ErrPageNotFound
}
