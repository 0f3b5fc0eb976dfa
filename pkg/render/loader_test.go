package render

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/strata-dev/strata/pkg/manifest"
	"github.com/strata-dev/strata/pkg/routepath"
)

// buildDist lays out a minimal build output directory.
func buildDist(t *testing.T, pages map[string]string, prerender *manifest.Prerender, files map[string]string) *manifest.Set {
	t.Helper()
	dir := t.TempDir()
	writeJSONFile(t, dir, manifest.PagesFile, pages)
	if prerender != nil {
		writeJSONFile(t, dir, manifest.PrerenderFile, prerender)
	}
	for rel, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return manifest.NewSet(dir)
}

func TestFSLoaderStaticHTML(t *testing.T) {
	set := buildDist(t,
		map[string]string{"/about": "pages/about.html"},
		nil,
		map[string]string{"server/pages/about.html": "<html>about</html>"})
	loader := NewFSLoader(set)

	bundle, err := loader.Load(context.Background(), "/about", "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(bundle.StaticHTML) != "<html>about</html>" {
		t.Errorf("StaticHTML = %q", bundle.StaticHTML)
	}
	if bundle.SSG {
		t.Error("prebuilt html bundle marked SSG")
	}

	// Loads are memoized per page and locale.
	again, err := loader.Load(context.Background(), "/about", "")
	if err != nil {
		t.Fatalf("Load again: %v", err)
	}
	if again != bundle {
		t.Error("second Load returned a different bundle")
	}
}

func TestFSLoaderLocaleVariant(t *testing.T) {
	set := buildDist(t,
		map[string]string{"/about": "pages/about.html"},
		nil,
		map[string]string{
			"server/pages/about.html":    "<html>en</html>",
			"server/pages/fr/about.html": "<html>fr</html>",
		})
	loader := NewFSLoader(set)

	bundle, err := loader.Load(context.Background(), "/about", "fr")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(bundle.StaticHTML) != "<html>fr</html>" {
		t.Errorf("StaticHTML = %q, want locale variant", bundle.StaticHTML)
	}

	// A locale without its own file falls back to the bare one.
	bundle, err = loader.Load(context.Background(), "/about", "de")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(bundle.StaticHTML) != "<html>en</html>" {
		t.Errorf("StaticHTML = %q, want bare file", bundle.StaticHTML)
	}
}

func TestFSLoaderSSGDetection(t *testing.T) {
	set := buildDist(t,
		map[string]string{
			"/blog/[slug]": "pages/blog/[slug].js",
			"/ssr":         "pages/ssr.js",
		},
		&manifest.Prerender{
			Version: 4,
			Routes: map[string]manifest.PrerenderRoute{
				"/blog/first": {SrcRoute: "/blog/[slug]"},
			},
			DynamicRoutes: map[string]manifest.DynamicRoute{
				"/blog/[slug]": {Fallback: manifest.Fallback{Mode: manifest.FallbackStatic, Path: "/blog/[slug].html"}},
			},
		},
		map[string]string{"server/pages/blog/[slug].html": "<html>skeleton</html>"})
	loader := NewFSLoader(set)

	bundle, err := loader.Load(context.Background(), "/blog/[slug]", "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !bundle.SSG {
		t.Error("prerendered page not marked SSG")
	}
	if string(bundle.FallbackHTML) != "<html>skeleton</html>" {
		t.Errorf("FallbackHTML = %q", bundle.FallbackHTML)
	}

	bundle, err = loader.Load(context.Background(), "/ssr", "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if bundle.SSG {
		t.Error("server-rendered page marked SSG")
	}

	if _, err := loader.Load(context.Background(), "/missing", ""); err != ErrPageNotFound {
		t.Errorf("Load(/missing) = %v, want ErrPageNotFound", err)
	}
}

func TestStaticRendererServesBuiltOutput(t *testing.T) {
	set := buildDist(t,
		map[string]string{"/blog/[slug]": "pages/blog/[slug].js"},
		&manifest.Prerender{
			Version: 4,
			Routes: map[string]manifest.PrerenderRoute{
				"/blog/first": {InitialRevalidate: manifest.Revalidate{Seconds: 60}, SrcRoute: "/blog/[slug]"},
			},
			DynamicRoutes: map[string]manifest.DynamicRoute{},
		},
		map[string]string{
			"server/pages/blog/first.html": "<html>first</html>",
			"server/pages/blog/first.json": `{"pageProps":{"n":1}}`,
		})
	renderer := NewStaticRenderer(set)

	params := routepath.Params{"slug": {Values: []string{"first"}}}
	result, err := renderer.Render(context.Background(), nil, &PageBundle{Page: "/blog/[slug]", SSG: true},
		RenderOptions{Query: url.Values{}, Params: params})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if string(result.HTML) != "<html>first</html>" {
		t.Errorf("HTML = %q", result.HTML)
	}
	if string(result.PageData) != `{"pageProps":{"n":1}}` {
		t.Errorf("PageData = %q", result.PageData)
	}
	if result.Revalidate.Seconds != 60 {
		t.Errorf("Revalidate = %+v, want 60s", result.Revalidate)
	}

	// A path without built output is not found.
	missing := routepath.Params{"slug": {Values: []string{"absent"}}}
	result, err = renderer.Render(context.Background(), nil, &PageBundle{Page: "/blog/[slug]", SSG: true},
		RenderOptions{Query: url.Values{}, Params: missing})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !result.NotFound {
		t.Error("missing output not reported as not found")
	}
}
