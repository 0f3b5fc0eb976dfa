package render

import (
	"context"
	"net/http"
	"os"
	"path/filepath"

	"github.com/strata-dev/strata/pkg/manifest"
	"github.com/strata-dev/strata/pkg/routepath"
)

// StaticRenderer serves prerendered build output: for a concrete path it
// reads the built HTML and data files and reports the manifest's
// regeneration interval. Paths without built output render as not found.
// It is the renderer behind the standalone serve command; embedders with
// live rendering plug in their own Renderer instead.
type StaticRenderer struct {
	manifests *manifest.Set
}

// NewStaticRenderer creates a renderer over a manifest set.
func NewStaticRenderer(manifests *manifest.Set) *StaticRenderer {
	return &StaticRenderer{manifests: manifests}
}

// Render implements Renderer.
func (s *StaticRenderer) Render(_ context.Context, _ *http.Request, bundle *PageBundle, opts RenderOptions) (*RenderResult, error) {
	path, err := s.concretePath(bundle.Page, opts.Params)
	if err != nil {
		return nil, err
	}

	html, ok, err := s.readOutput(path, opts.Locale, ".html")
	if err != nil {
		return nil, err
	}
	if !ok {
		return &RenderResult{NotFound: true}, nil
	}
	data, _, err := s.readOutput(path, opts.Locale, ".json")
	if err != nil {
		return nil, err
	}

	return &RenderResult{
		HTML:       html,
		PageData:   data,
		Revalidate: s.revalidateFor(path, opts.Locale),
	}, nil
}

// concretePath expands a dynamic page to the requested concrete path.
func (s *StaticRenderer) concretePath(page string, params routepath.Params) (string, error) {
	if !routepath.IsDynamic(page) {
		return page, nil
	}
	pattern, err := routepath.Compile(page)
	if err != nil {
		return "", err
	}
	return pattern.Interpolate(params)
}

// readOutput reads one built output file, trying the locale-prefixed
// variant first. A missing file is not an error.
func (s *StaticRenderer) readOutput(path, locale, ext string) ([]byte, bool, error) {
	name := path
	if name == "/" {
		name = "/index"
	}

	var candidates []string
	if locale != "" {
		candidates = append(candidates, filepath.Join(s.manifests.DistDir(), "server", "pages", locale, name+ext))
	}
	candidates = append(candidates, filepath.Join(s.manifests.DistDir(), "server", "pages", name+ext))

	for _, p := range candidates {
		data, err := os.ReadFile(p)
		if err == nil {
			return data, true, nil
		}
		if !os.IsNotExist(err) {
			return nil, false, err
		}
	}
	return nil, false, nil
}

// revalidateFor looks up the build-time regeneration interval for a path.
func (s *StaticRenderer) revalidateFor(path, locale string) manifest.Revalidate {
	prerender, err := s.manifests.Prerender()
	if err != nil || prerender == nil {
		return manifest.Revalidate{Forever: true}
	}
	if locale != "" {
		if route, ok := prerender.Routes["/"+locale+path]; ok {
			return route.InitialRevalidate
		}
	}
	if route, ok := prerender.Routes[path]; ok {
		return route.InitialRevalidate
	}
	return manifest.Revalidate{Forever: true}
}
