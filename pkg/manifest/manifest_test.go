package manifest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFallbackUnmarshal(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Fallback
	}{
		{"blocking", `null`, Fallback{Mode: FallbackBlocking}},
		{"none", `false`, Fallback{Mode: FallbackNone}},
		{"static", `"/blog/[slug].html"`, Fallback{Mode: FallbackStatic, Path: "/blog/[slug].html"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f Fallback
			if err := json.Unmarshal([]byte(tt.in), &f); err != nil {
				t.Fatalf("Unmarshal(%s): %v", tt.in, err)
			}
			if f != tt.want {
				t.Errorf("Unmarshal(%s) = %+v, want %+v", tt.in, f, tt.want)
			}
			out, err := json.Marshal(f)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			if string(out) != tt.in {
				t.Errorf("Marshal = %s, want %s", out, tt.in)
			}
		})
	}

	var f Fallback
	if err := json.Unmarshal([]byte(`42`), &f); err == nil {
		t.Error("Unmarshal(42) succeeded, want error")
	}
}

func TestRevalidateUnmarshal(t *testing.T) {
	var r Revalidate
	if err := json.Unmarshal([]byte(`false`), &r); err != nil {
		t.Fatalf("Unmarshal(false): %v", err)
	}
	if !r.Forever || r.Duration() != 0 {
		t.Errorf("Unmarshal(false) = %+v", r)
	}

	if err := json.Unmarshal([]byte(`60`), &r); err != nil {
		t.Fatalf("Unmarshal(60): %v", err)
	}
	if r.Forever || r.Seconds != 60 || r.Duration() != time.Minute {
		t.Errorf("Unmarshal(60) = %+v", r)
	}

	if err := json.Unmarshal([]byte(`"soon"`), &r); err == nil {
		t.Error(`Unmarshal("soon") succeeded, want error`)
	}
}

func TestRedirectStatus(t *testing.T) {
	if got := (RedirectRule{}).Status(); got != 307 {
		t.Errorf("default status = %d, want 307", got)
	}
	if got := (RedirectRule{Permanent: true}).Status(); got != 308 {
		t.Errorf("permanent status = %d, want 308", got)
	}
	if got := (RedirectRule{StatusCode: 301, Permanent: true}).Status(); got != 301 {
		t.Errorf("explicit status = %d, want 301", got)
	}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestSetLoads(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, PrerenderFile, `{
		"version": 4,
		"routes": {
			"/blog/first": {"initialRevalidateSeconds": 60, "srcRoute": "/blog/[slug]"}
		},
		"dynamicRoutes": {
			"/blog/[slug]": {"fallback": "/blog/[slug].html"},
			"/gone/[id]": {"fallback": false}
		},
		"preview": {"previewModeId": "abc123"}
	}`)
	writeFile(t, dir, PagesFile, `{"/": "pages/index.html", "/blog/[slug]": "pages/blog/[slug].js"}`)
	writeFile(t, dir, RoutesFile, `{
		"version": 3,
		"redirects": [{"source": "/old", "destination": "/new", "permanent": true}],
		"rewrites": {"beforeFiles": [{"source": "/proxy/:path*", "destination": "https://example.com/:path*"}]}
	}`)
	writeFile(t, dir, BuildIDFile, "build-xyz\n")

	set := NewSet(dir)

	prerender, err := set.Prerender()
	if err != nil {
		t.Fatalf("Prerender: %v", err)
	}
	if !prerender.HasStaticPath("/blog/first") {
		t.Error("HasStaticPath(/blog/first) = false")
	}
	if prerender.HasStaticPath("/blog/other") {
		t.Error("HasStaticPath(/blog/other) = true")
	}
	fb, ok := prerender.FallbackFor("/blog/[slug]")
	if !ok || fb.Mode != FallbackStatic || fb.Path != "/blog/[slug].html" {
		t.Errorf("FallbackFor(/blog/[slug]) = (%+v, %v)", fb, ok)
	}
	fb, ok = prerender.FallbackFor("/gone/[id]")
	if !ok || fb.Mode != FallbackNone {
		t.Errorf("FallbackFor(/gone/[id]) = (%+v, %v)", fb, ok)
	}
	if _, ok := prerender.FallbackFor("/ssr/[id]"); ok {
		t.Error("FallbackFor(/ssr/[id]) ok = true")
	}
	if prerender.Preview.ID != "abc123" {
		t.Errorf("Preview.ID = %q", prerender.Preview.ID)
	}

	pages, err := set.Pages()
	if err != nil {
		t.Fatalf("Pages: %v", err)
	}
	if pages["/"] != "pages/index.html" {
		t.Errorf("pages[/] = %q", pages["/"])
	}

	routes, err := set.Routes()
	if err != nil {
		t.Fatalf("Routes: %v", err)
	}
	if len(routes.Redirects) != 1 || routes.Redirects[0].Status() != 308 {
		t.Errorf("redirects = %+v", routes.Redirects)
	}
	if len(routes.Rewrites.BeforeFiles) != 1 {
		t.Errorf("beforeFiles = %+v", routes.Rewrites.BeforeFiles)
	}

	id, err := set.BuildID()
	if err != nil {
		t.Fatalf("BuildID: %v", err)
	}
	if id != "build-xyz" {
		t.Errorf("BuildID = %q", id)
	}
}

func TestSetMissingFiles(t *testing.T) {
	set := NewSet(t.TempDir())

	prerender, err := set.Prerender()
	if err != nil {
		t.Fatalf("Prerender: %v", err)
	}
	if len(prerender.Routes) != 0 || len(prerender.DynamicRoutes) != 0 {
		t.Errorf("prerender not empty: %+v", prerender)
	}

	pages, err := set.Pages()
	if err != nil {
		t.Fatalf("Pages: %v", err)
	}
	if len(pages) != 0 {
		t.Errorf("pages not empty: %+v", pages)
	}

	mw, err := set.Middleware()
	if err != nil {
		t.Fatalf("Middleware: %v", err)
	}
	if len(mw.Middleware) != 0 {
		t.Errorf("middleware not empty: %+v", mw)
	}

	if _, err := set.BuildID(); err == nil {
		t.Error("BuildID with no file succeeded, want error")
	}
}
